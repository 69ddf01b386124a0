package models

import "time"

type WorkflowStatus string

const (
	PendingWorkflowStatus   WorkflowStatus = "pending"
	RunningWorkflowStatus   WorkflowStatus = "running"
	CompletedWorkflowStatus WorkflowStatus = "completed"
	FailedWorkflowStatus    WorkflowStatus = "failed"
	CancelledWorkflowStatus WorkflowStatus = "cancelled"
)

type Priority string

const (
	LowPriority    Priority = "low"
	MediumPriority Priority = "medium"
	HighPriority   Priority = "high"
	UrgentPriority Priority = "urgent"
)

// Rank orders priorities for max-comparison (urgent > high > medium > low).
func (p Priority) Rank() int {
	switch p {
	case UrgentPriority:
		return 3
	case HighPriority:
		return 2
	case MediumPriority:
		return 1
	default:
		return 0
	}
}

type RiskLevel string

const (
	LowRisk      RiskLevel = "low"
	MediumRisk   RiskLevel = "medium"
	HighRisk     RiskLevel = "high"
	CriticalRisk RiskLevel = "critical"
)

// LatencyConfig tunes the latency-optimized execution mode.
type LatencyConfig struct {
	Enabled           bool          `json:"enabled"`
	MaxLatency        time.Duration `json:"max_latency"`
	ParallelExecution bool          `json:"parallel_execution"`
	CacheEnabled      bool          `json:"cache_enabled"`
}

// WorkflowConfig controls scheduling, approval and rollback behavior for a workflow.
type WorkflowConfig struct {
	MaxParallelSteps     int           `json:"max_parallel_steps"`
	TotalTimeout         time.Duration `json:"total_timeout"`
	EnableRollback       bool          `json:"enable_rollback"`
	AutoApproveThreshold float64       `json:"auto_approve_threshold"`
	LatencyOptimization  LatencyConfig `json:"latency_optimization"`
}

// DefaultConfig returns the engine defaults: 3 parallel steps, 5m total
// timeout, rollback enabled, 0.8 auto-approve threshold, 1.5s latency budget.
func DefaultConfig() WorkflowConfig {
	return WorkflowConfig{
		MaxParallelSteps:     3,
		TotalTimeout:         5 * time.Minute,
		EnableRollback:       true,
		AutoApproveThreshold: 0.8,
		LatencyOptimization: LatencyConfig{
			Enabled:           false,
			MaxLatency:        1500 * time.Millisecond,
			ParallelExecution: true,
			CacheEnabled:      true,
		},
	}
}

// WorkflowContext carries the session/agent/client identifiers and arbitrary
// variables a workflow executes against. Step executors read it, never write it.
type WorkflowContext struct {
	SessionID            string                 `json:"session_id"`
	AgentID              string                 `json:"agent_id"`
	ClientID             string                 `json:"client_id,omitempty"`
	CRMData              map[string]interface{} `json:"crm_data,omitempty"`
	CommunicationHistory []string               `json:"communication_history,omitempty"`
	Variables            map[string]interface{} `json:"variables,omitempty"`
}

// WorkflowMetadata records provenance and, once computed, the confidence result.
type WorkflowMetadata struct {
	Source     string             `json:"source"` // "tasks" or "template"
	TemplateID string             `json:"template_id,omitempty"`
	TaskIDs    []string           `json:"task_ids,omitempty"`
	Confidence *ConfidenceScoring `json:"confidence,omitempty"`
}

// Workflow is an immutable-after-build graph of steps. The builder creates it,
// the engine mutates status and timestamps, nothing else touches it.
type Workflow struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Steps       []WorkflowStep   `json:"steps"`
	Status      WorkflowStatus   `json:"status"`
	Priority    Priority         `json:"priority"`
	Config      WorkflowConfig   `json:"config"`
	Context     WorkflowContext  `json:"context"`
	Metadata    WorkflowMetadata `json:"metadata"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Step returns the step with the given id, or nil if no such step exists.
func (w *Workflow) Step(id string) *WorkflowStep {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i]
		}
	}
	return nil
}
