package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sk-go/agentflow/pkg/builder"
	"github.com/sk-go/agentflow/pkg/cache"
	"github.com/sk-go/agentflow/pkg/confidence"
	"github.com/sk-go/agentflow/pkg/engine"
	"github.com/sk-go/agentflow/pkg/models"
)

// Logger defines the logging interface for the OrchestratorService
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Snapshot keys and TTLs for the cache collaborator.
const (
	workflowKeyPrefix  = "workflow:"
	executionKeyPrefix = "execution:"
	approvalKeyPrefix  = "approval:"

	workflowTTL  = 24 * time.Hour
	executionTTL = 24 * time.Hour
	approvalTTL  = time.Hour
)

// OrchestratorService composes the builder, the execution engine and the
// confidence scorer, and persists workflow/execution snapshots into the cache.
// It enforces at most one live execution per workflow; the engine itself does not.
type OrchestratorService struct {
	builder *builder.Builder
	engine  *engine.Engine
	scorer  *confidence.Scorer
	cache   cache.Cache
	logger  Logger

	live               map[string]string // workflow id -> live execution id
	hasApprovalHandler bool
	mu                 sync.Mutex
}

func NewOrchestratorService(store cache.Cache, logger Logger) *OrchestratorService {
	return &OrchestratorService{
		builder: builder.New(logger),
		engine:  engine.New(logger),
		scorer:  confidence.NewScorer(logger),
		cache:   store,
		logger:  logger,
		live:    make(map[string]string),
	}
}

// BuildFromTasks builds a workflow from extracted tasks, scores it and
// persists the snapshot.
func (s *OrchestratorService) BuildFromTasks(tasks []models.ExtractedTask, ctx models.WorkflowContext, configOverride *models.WorkflowConfig) (*models.Workflow, error) {
	wf, err := s.builder.BuildFromTasks(tasks, ctx, configOverride)
	if err != nil {
		return nil, err
	}
	s.scoreAndPersist(wf)
	return wf, nil
}

// BuildFromTemplate builds a workflow from a registered template, scores it
// and persists the snapshot.
func (s *OrchestratorService) BuildFromTemplate(templateID string, ctx models.WorkflowContext, params map[string]interface{}, configOverride *models.WorkflowConfig) (*models.Workflow, error) {
	wf, err := s.builder.BuildFromTemplate(templateID, ctx, params, configOverride)
	if err != nil {
		return nil, err
	}
	s.scoreAndPersist(wf)
	return wf, nil
}

func (s *OrchestratorService) scoreAndPersist(wf *models.Workflow) {
	scoring := s.scorer.ScoreWorkflow(wf)
	wf.Metadata.Confidence = scoring
	if scoring.EscalationRequired {
		s.logger.Warnf("Workflow %s requires escalation (overall %.3f < threshold %.3f)",
			wf.ID, scoring.Overall, scoring.Threshold)
	}
	s.persistWorkflow(wf)
}

// GetWorkflow loads a workflow snapshot from the cache.
func (s *OrchestratorService) GetWorkflow(workflowID string) (*models.Workflow, error) {
	data, err := s.cache.Get(workflowKeyPrefix + workflowID)
	if err != nil {
		return nil, errors.Wrapf(err, "workflow %s not found", workflowID)
	}
	var wf models.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, errors.Wrapf(err, "corrupt workflow snapshot %s", workflowID)
	}
	return &wf, nil
}

// ExecuteWorkflow loads the workflow, runs it through the engine and persists
// the updated workflow, execution and approval snapshots. A workflow flagged
// for escalation refuses to run until an approval handler is installed.
func (s *OrchestratorService) ExecuteWorkflow(ctx context.Context, workflowID string) (*models.WorkflowExecution, error) {
	wf, err := s.GetWorkflow(workflowID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	hasHandler := s.hasApprovalHandler
	s.mu.Unlock()
	if wf.Metadata.Confidence != nil && wf.Metadata.Confidence.EscalationRequired && !hasHandler {
		return nil, errors.Errorf("workflow %s requires human escalation; set an approval handler first", workflowID)
	}

	s.mu.Lock()
	if execID, running := s.live[workflowID]; running {
		s.mu.Unlock()
		return nil, errors.Errorf("workflow %s already has live execution %s", workflowID, execID)
	}
	s.live[workflowID] = "pending"
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.live, workflowID)
		s.mu.Unlock()
	}()

	exec, execErr := s.engine.Execute(ctx, wf)
	if exec != nil {
		s.persistWorkflow(wf)
		s.persistExecution(exec)
	}
	return exec, execErr
}

// CancelExecution forwards to the engine; unknown ids are a no-op there.
func (s *OrchestratorService) CancelExecution(executionID string) {
	if exec, ok := s.engine.GetExecution(executionID); ok {
		s.mu.Lock()
		delete(s.live, exec.WorkflowID)
		s.mu.Unlock()
	}
	s.engine.CancelExecution(executionID)
}

func (s *OrchestratorService) GetExecution(executionID string) (*models.WorkflowExecution, bool) {
	return s.engine.GetExecution(executionID)
}

func (s *OrchestratorService) GetActiveExecutions() []*models.WorkflowExecution {
	return s.engine.GetActiveExecutions()
}

func (s *OrchestratorService) RegisterStepExecutor(stepType models.StepType, executor engine.StepExecutor) {
	s.engine.RegisterStepExecutor(stepType, executor)
}

func (s *OrchestratorService) SetApprovalHandler(h engine.ApprovalHandler) {
	s.mu.Lock()
	s.hasApprovalHandler = h != nil
	s.mu.Unlock()
	s.engine.SetApprovalHandler(h)
}

func (s *OrchestratorService) SetRollbackHandler(h engine.RollbackHandler) {
	s.engine.SetRollbackHandler(h)
}

func (s *OrchestratorService) RegisterTemplate(tpl models.WorkflowTemplate) {
	s.builder.RegisterTemplate(tpl)
}

func (s *OrchestratorService) GetAllTemplates() []models.WorkflowTemplate {
	return s.builder.GetAllTemplates()
}

// ScoreWorkflow exposes the scorer for callers that need a fresh score.
func (s *OrchestratorService) ScoreWorkflow(wf *models.Workflow) *models.ConfidenceScoring {
	return s.scorer.ScoreWorkflow(wf)
}

func (s *OrchestratorService) persistWorkflow(wf *models.Workflow) {
	data, err := json.Marshal(wf)
	if err != nil {
		s.logger.Errorf("Failed to marshal workflow %s: %v", wf.ID, err)
		return
	}
	if err := s.cache.Set(workflowKeyPrefix+wf.ID, data, workflowTTL); err != nil {
		s.logger.Errorf("Failed to persist workflow %s: %v", wf.ID, err)
	}
}

func (s *OrchestratorService) persistExecution(exec *models.WorkflowExecution) {
	data, err := json.Marshal(exec)
	if err != nil {
		s.logger.Errorf("Failed to marshal execution %s: %v", exec.ID, err)
		return
	}
	if err := s.cache.Set(executionKeyPrefix+exec.ID, data, executionTTL); err != nil {
		s.logger.Errorf("Failed to persist execution %s: %v", exec.ID, err)
	}
	for i := range exec.Approvals {
		approval := &exec.Approvals[i]
		data, err := json.Marshal(approval)
		if err != nil {
			s.logger.Errorf("Failed to marshal approval %s: %v", approval.ID, err)
			continue
		}
		if err := s.cache.Set(approvalKeyPrefix+approval.ID, data, approvalTTL); err != nil {
			s.logger.Errorf("Failed to persist approval %s: %v", approval.ID, err)
		}
	}
}
