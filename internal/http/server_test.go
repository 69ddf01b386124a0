package http

import (
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/sk-go/agentflow/internal/log"
	"github.com/sk-go/agentflow/pkg/cache"
	"github.com/sk-go/agentflow/pkg/models"
	"github.com/sk-go/agentflow/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *service.OrchestratorService {
	return service.NewOrchestratorService(cache.NewMemoryCache(), log.GetLogger())
}

func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest(nethttp.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	healthHandler(rec, req)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "running")
}

func TestTemplatesHandler(t *testing.T) {
	handler := templatesHandler(newTestService())

	t.Run("ListsSeededTemplates", func(t *testing.T) {
		req := httptest.NewRequest(nethttp.MethodGet, "/templates", nil)
		rec := httptest.NewRecorder()
		handler(rec, req)

		require.Equal(t, nethttp.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var templates []models.WorkflowTemplate
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &templates))
		assert.NotEmpty(t, templates)
	})

	t.Run("RejectsNonGET", func(t *testing.T) {
		req := httptest.NewRequest(nethttp.MethodPost, "/templates", nil)
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, nethttp.StatusMethodNotAllowed, rec.Code)
	})
}

func TestExecutionsHandler(t *testing.T) {
	handler := executionsHandler(newTestService())

	t.Run("EmptyWhenNothingRuns", func(t *testing.T) {
		req := httptest.NewRequest(nethttp.MethodGet, "/executions", nil)
		rec := httptest.NewRecorder()
		handler(rec, req)

		require.Equal(t, nethttp.StatusOK, rec.Code)
		var executions []models.WorkflowExecution
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &executions))
		assert.Empty(t, executions)
	})

	t.Run("RejectsNonGET", func(t *testing.T) {
		req := httptest.NewRequest(nethttp.MethodDelete, "/executions", nil)
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, nethttp.StatusMethodNotAllowed, rec.Code)
	})
}
