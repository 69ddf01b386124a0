package models

// ExtractedTask is the builder's input: a task extracted upstream (e.g. from a
// conversation) that the builder expands into a micro-pipeline of steps.
type ExtractedTask struct {
	ID               string                 `json:"id"`
	Type             string                 `json:"type"`
	Description      string                 `json:"description"`
	Priority         Priority               `json:"priority"`
	Parameters       map[string]interface{} `json:"parameters,omitempty"`
	Confidence       float64                `json:"confidence"`
	RequiresApproval bool                   `json:"requires_approval"`
	ClientID         string                 `json:"client_id,omitempty"`
}
