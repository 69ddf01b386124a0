package models

import "time"

type StepStatus string

const (
	PendingStepStatus   StepStatus = "pending"
	RunningStepStatus   StepStatus = "running"
	CompletedStepStatus StepStatus = "completed"
	FailedStepStatus    StepStatus = "failed"
)

type StepType string

const (
	DataFetchStep          StepType = "data_fetch"
	AIProcessingStep       StepType = "ai_processing"
	CRMUpdateStep          StepType = "crm_update"
	CommunicationStep      StepType = "communication"
	DocumentGenerationStep StepType = "document_generation"
	ValidationStep         StepType = "validation"
	NotificationStep       StepType = "notification"
	CustomStep             StepType = "custom"
)

// Action is the discriminated payload a step executor consumes.
type Action struct {
	Type       string                 `json:"type"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// StepResult is the terminal outcome of a step attempt. Executors return it;
// they never mutate the step or the execution record directly.
type StepResult struct {
	Success       bool                   `json:"success"`
	Data          interface{}            `json:"data,omitempty"`
	Confidence    float64                `json:"confidence"`
	ExecutionTime time.Duration          `json:"execution_time"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// WorkflowStep is a node in the workflow graph. Every id in Dependencies must
// name a step of the same workflow, and the dependency relation must be acyclic;
// both are checked before any step runs.
type WorkflowStep struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Type             StepType      `json:"type"`
	Status           StepStatus    `json:"status"`
	Order            int           `json:"order"`
	Dependencies     []string      `json:"dependencies,omitempty"`
	ParallelGroup    string        `json:"parallel_group,omitempty"`
	Action           Action        `json:"action"`
	RetryCount       int           `json:"retry_count"`
	MaxRetries       int           `json:"max_retries"`
	Timeout          time.Duration `json:"timeout"`
	RiskLevel        RiskLevel     `json:"risk_level"`
	RequiresApproval bool          `json:"requires_approval"`
	Result           *StepResult   `json:"result,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}
