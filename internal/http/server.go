package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sk-go/agentflow/internal/log"
	"github.com/sk-go/agentflow/pkg/cache"
	"github.com/sk-go/agentflow/pkg/service"
)

func StartServer(port string, store cache.Cache) error {
	svc := service.NewOrchestratorService(store, log.GetLogger())
	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/templates", templatesHandler(svc))
	http.HandleFunc("/executions", executionsHandler(svc))

	log.GetLogger().Infof("Starting AgentFlow server on :%s", port)
	return http.ListenAndServe(":"+port, nil)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "AgentFlow server is running")
}

func templatesHandler(svc *service.OrchestratorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, svc.GetAllTemplates())
	}
}

func executionsHandler(svc *service.OrchestratorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, svc.GetActiveExecutions())
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
