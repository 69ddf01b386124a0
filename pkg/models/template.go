package models

import "time"

// StepTemplate describes one step of a workflow template. Dependencies refer
// to other step templates by name; the builder resolves them to fresh ids on
// instantiation.
type StepTemplate struct {
	Name             string        `json:"name"`
	Type             StepType      `json:"type"`
	Action           Action        `json:"action"`
	DependsOn        []string      `json:"depends_on,omitempty"`
	RiskLevel        RiskLevel     `json:"risk_level"`
	RequiresApproval bool          `json:"requires_approval"`
	Timeout          time.Duration `json:"timeout"`
	MaxRetries       int           `json:"max_retries"`
	Order            int           `json:"order"`
}

// WorkflowTemplate is a reusable workflow definition. Action parameter values
// may contain ${param} placeholders substituted at build time.
type WorkflowTemplate struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Steps           []StepTemplate `json:"steps"`
	Config          WorkflowConfig `json:"config"`
	RequiredContext []string       `json:"required_context,omitempty"`
}
