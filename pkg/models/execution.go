package models

import "time"

// WorkflowExecution is one run of a workflow. Executions are independent;
// the orchestrating service enforces at most one live execution per workflow.
type WorkflowExecution struct {
	ID           string            `json:"id"`
	WorkflowID   string            `json:"workflow_id"`
	Status       WorkflowStatus    `json:"status"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	TotalLatency time.Duration     `json:"total_latency"`
	Steps        []StepExecution   `json:"steps"`
	Approvals    []ApprovalRequest `json:"approvals,omitempty"`
	Rollbacks    []RollbackStep    `json:"rollbacks,omitempty"`
	Error        string            `json:"error,omitempty"` // proximate step error on failure
}

// StepExecution is the per-attempt record the engine appends for every step it runs.
type StepExecution struct {
	StepID        string        `json:"step_id"`
	ExecutionID   string        `json:"execution_id"`
	Status        StepStatus    `json:"status"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	Latency       time.Duration `json:"latency"`
	ParallelGroup string        `json:"parallel_group,omitempty"`
	Result        *StepResult   `json:"result,omitempty"`
}

// ApprovalResponse is filled in exactly once when an approval request resolves.
type ApprovalResponse struct {
	Approved    bool      `json:"approved"`
	ApprovedBy  string    `json:"approved_by,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	RespondedAt time.Time `json:"responded_at"`
}

// ApprovalRequest is synthesized by the engine for steps that require approval.
type ApprovalRequest struct {
	ID          string            `json:"id"`
	WorkflowID  string            `json:"workflow_id"`
	StepID      string            `json:"step_id"`
	RiskLevel   RiskLevel         `json:"risk_level"`
	Confidence  float64           `json:"confidence"`
	RequestedAt time.Time         `json:"requested_at"`
	Timeout     time.Duration     `json:"timeout"`
	Response    *ApprovalResponse `json:"response,omitempty"`
}

// RollbackStep records one compensating action from a rollback pass,
// produced per completed step in reverse completion order.
type RollbackStep struct {
	StepID       string    `json:"step_id"`
	Action       Action    `json:"action"`
	Reason       string    `json:"reason"`
	RolledBackAt time.Time `json:"rolled_back_at"`
	Success      bool      `json:"success"`
}
