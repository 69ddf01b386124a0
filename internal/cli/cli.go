package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sk-go/agentflow/internal/log"
	internal_storage "github.com/sk-go/agentflow/internal/storage"
	"github.com/sk-go/agentflow/pkg/cache"
	"github.com/sk-go/agentflow/pkg/engine"
	"github.com/sk-go/agentflow/pkg/models"
	"github.com/sk-go/agentflow/pkg/service"
	"github.com/spf13/cobra"
)

func SetupCLI(rootCmd *cobra.Command) {
	templatesCmd := &cobra.Command{
		Use:   "templates",
		Short: "List registered workflow templates",
		Run: func(cmd *cobra.Command, args []string) {
			svc := newService(cmd)
			for _, tpl := range svc.GetAllTemplates() {
				fmt.Fprintf(os.Stdout, "- %s: %s (%d steps)\n", tpl.ID, tpl.Name, len(tpl.Steps))
			}
		},
	}

	buildCmd := &cobra.Command{
		Use:   "build [template-id]",
		Short: "Build and score a workflow from a template",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc := newService(cmd)
			wf, err := svc.BuildFromTemplate(args[0], contextFromFlags(cmd), paramsFromFlags(cmd), nil)
			if err != nil {
				log.GetLogger().Errorf("Failed to build workflow: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to build workflow: %v\n", err)
				os.Exit(1)
			}
			scoring := wf.Metadata.Confidence
			fmt.Fprintf(os.Stdout, "Built workflow %s with %d steps (confidence %.3f, escalation %t)\n",
				wf.ID, len(wf.Steps), scoring.Overall, scoring.EscalationRequired)
		},
	}

	runCmd := &cobra.Command{
		Use:   "run [template-id]",
		Short: "Build a workflow from a template and execute it",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				fmt.Fprintf(os.Stderr, "Wrong number of arguments, expected 1 got %v\n", len(args))
				os.Exit(1)
			}
			svc := newService(cmd)
			threshold, _ := cmd.Flags().GetFloat64("approve-above")
			svc.SetApprovalHandler(engine.ThresholdApprovalHandler{Threshold: threshold})
			wf, err := svc.BuildFromTemplate(args[0], contextFromFlags(cmd), paramsFromFlags(cmd), nil)
			if err != nil {
				log.GetLogger().Errorf("Failed to build workflow: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to build workflow: %v\n", err)
				os.Exit(1)
			}
			exec, err := svc.ExecuteWorkflow(context.Background(), wf.ID)
			if err != nil {
				log.GetLogger().Errorf("Execution failed: %v", err)
				fmt.Fprintf(os.Stderr, "Error: execution failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Execution %s: %s (latency %s)\n", exec.ID, exec.Status, exec.TotalLatency)
			for _, se := range exec.Steps {
				step := wf.Step(se.StepID)
				fmt.Fprintf(os.Stdout, "- %s: %s (%s)\n", step.Name, se.Status, se.Latency)
			}
		},
	}

	for _, cmd := range []*cobra.Command{templatesCmd, buildCmd, runCmd} {
		cmd.Flags().String("client", "", "Client ID for the workflow context")
		cmd.Flags().StringSlice("param", nil, "Template parameters as key=value")
	}
	runCmd.Flags().Float64("approve-above", 0.5, "Auto-approve steps whose confidence clears this threshold")
	rootCmd.AddCommand(templatesCmd, buildCmd, runCmd)
}

// newService builds the orchestrating service on a Postgres-backed cache when
// --db is set, and an in-memory one otherwise.
func newService(cmd *cobra.Command) *service.OrchestratorService {
	dbConnStr, err := cmd.Flags().GetString("db")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving db flag: %v", err)
		os.Exit(1)
	}
	var store cache.Cache
	if dbConnStr != "" {
		pg, err := internal_storage.InitCache(dbConnStr)
		if err != nil {
			log.GetLogger().Errorf("Failed to initialize store: %v", err)
			os.Exit(1)
		}
		store = pg
	} else {
		store = cache.NewMemoryCache()
	}
	return service.NewOrchestratorService(store, log.GetLogger())
}

func contextFromFlags(cmd *cobra.Command) models.WorkflowContext {
	clientID, _ := cmd.Flags().GetString("client")
	return models.WorkflowContext{
		SessionID: "cli",
		AgentID:   "cli",
		ClientID:  clientID,
	}
}

func paramsFromFlags(cmd *cobra.Command) map[string]interface{} {
	pairs, _ := cmd.Flags().GetStringSlice("param")
	params := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 2 {
			params[parts[0]] = parts[1]
		}
	}
	return params
}
