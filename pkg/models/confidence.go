package models

// ConfidenceFactor is one named, weighted contribution to a step's confidence score.
type ConfidenceFactor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Score  float64 `json:"score"`
}

// ConfidenceScoring is the result of scoring a workflow: per-step scores, the
// factors behind them, the applicable threshold and the escalation decision.
type ConfidenceScoring struct {
	Overall            float64                       `json:"overall"`
	StepScores         map[string]float64            `json:"step_scores"`
	Factors            map[string][]ConfidenceFactor `json:"factors"`
	Threshold          float64                       `json:"threshold"`
	EscalationRequired bool                          `json:"escalation_required"`
}
