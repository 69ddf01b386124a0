package confidence

import (
	"strings"

	"github.com/sk-go/agentflow/pkg/models"
)

// Logger defines the logging interface for the Scorer
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Factor weights; they sum to 1.0.
const (
	dataQualityWeight       = 0.25
	stepComplexityWeight    = 0.20
	historicalSuccessWeight = 0.20
	contextRelevanceWeight  = 0.15
	riskLevelWeight         = 0.10
	timeConstraintsWeight   = 0.10
)

// historicalSuccess is a static lookup of per-type success rates. It stands in
// for an empirically maintained table.
var historicalSuccess = map[models.StepType]float64{
	models.ValidationStep:         0.98,
	models.DataFetchStep:          0.95,
	models.NotificationStep:       0.93,
	models.CRMUpdateStep:          0.90,
	models.CommunicationStep:      0.88,
	models.DocumentGenerationStep: 0.87,
	models.AIProcessingStep:       0.85,
	models.CustomStep:             0.70,
}

const defaultHistoricalSuccess = 0.75

// Scorer computes per-step and overall confidence for a workflow and decides
// whether it must be escalated to a human.
type Scorer struct {
	logger Logger
}

func NewScorer(logger Logger) *Scorer {
	return &Scorer{logger: logger}
}

// ScoreWorkflow scores every step of the workflow and derives the overall
// score and escalation decision. The overall score is the weighted mean across
// all factors of all steps, not a mean of per-step scores.
func (s *Scorer) ScoreWorkflow(wf *models.Workflow) *models.ConfidenceScoring {
	scoring := &models.ConfidenceScoring{
		StepScores: make(map[string]float64),
		Factors:    make(map[string][]models.ConfidenceFactor),
		Threshold:  s.threshold(wf),
	}

	if len(wf.Steps) == 0 {
		// Nothing to run means nothing to escalate.
		scoring.Overall = 0.5
		scoring.EscalationRequired = false
		return scoring
	}

	var weightedSum, weightTotal float64
	for i := range wf.Steps {
		step := &wf.Steps[i]
		factors := s.stepFactors(step, wf)
		scoring.Factors[step.ID] = factors

		var stepSum, stepWeight float64
		for _, f := range factors {
			stepSum += f.Score * f.Weight
			stepWeight += f.Weight
			weightedSum += f.Score * f.Weight
			weightTotal += f.Weight
		}
		if stepWeight > 0 {
			scoring.StepScores[step.ID] = clamp(stepSum / stepWeight)
		} else {
			scoring.StepScores[step.ID] = 0.5
		}
	}

	if weightTotal > 0 {
		scoring.Overall = clamp(weightedSum / weightTotal)
	} else {
		scoring.Overall = 0.5
	}
	scoring.EscalationRequired = scoring.Overall < scoring.Threshold

	s.logger.Infof("Scored workflow %s: overall %.3f, threshold %.3f, escalation %t",
		wf.ID, scoring.Overall, scoring.Threshold, scoring.EscalationRequired)
	return scoring
}

func (s *Scorer) stepFactors(step *models.WorkflowStep, wf *models.Workflow) []models.ConfidenceFactor {
	return []models.ConfidenceFactor{
		{Name: "data_quality", Weight: dataQualityWeight, Score: s.dataQuality(step, wf)},
		{Name: "step_complexity", Weight: stepComplexityWeight, Score: s.stepComplexity(step)},
		{Name: "historical_success", Weight: historicalSuccessWeight, Score: s.historical(step)},
		{Name: "context_relevance", Weight: contextRelevanceWeight, Score: s.contextRelevance(step, wf)},
		{Name: "risk_level", Weight: riskLevelWeight, Score: s.riskScore(step)},
		{Name: "time_constraints", Weight: timeConstraintsWeight, Score: s.timeConstraints(step, wf)},
	}
}

func (s *Scorer) dataQuality(step *models.WorkflowStep, wf *models.Workflow) float64 {
	score := 0.5
	if wf.Context.ClientID != "" {
		score += 0.2
	}
	if len(wf.Context.CRMData) > 0 {
		score += 0.2
	}
	if len(wf.Context.CommunicationHistory) > 0 {
		score += 0.1
	}
	// Reward steps whose action parameters are actually populated.
	if len(step.Action.Parameters) > 0 {
		defined := 0
		for _, v := range step.Action.Parameters {
			if v != nil {
				defined++
			}
		}
		score += 0.3 * float64(defined) / float64(len(step.Action.Parameters))
	}
	return clamp(score)
}

func (s *Scorer) stepComplexity(step *models.WorkflowStep) float64 {
	score := 0.8
	switch step.Type {
	case models.AIProcessingStep:
		score -= 0.2
	case models.DocumentGenerationStep:
		score -= 0.15
	case models.CommunicationStep:
		score -= 0.1
	case models.CRMUpdateStep:
		score -= 0.05
	case models.ValidationStep:
		score += 0.1
	}
	if len(step.Dependencies) > 3 {
		score -= 0.1
	}
	if step.MaxRetries > 2 {
		score -= 0.05
	}
	return clamp(score)
}

func (s *Scorer) historical(step *models.WorkflowStep) float64 {
	if rate, ok := historicalSuccess[step.Type]; ok {
		return rate
	}
	return defaultHistoricalSuccess
}

func (s *Scorer) contextRelevance(step *models.WorkflowStep, wf *models.Workflow) float64 {
	score := 0.5
	switch step.Type {
	case models.CommunicationStep:
		if wf.Context.ClientID != "" {
			score += 0.2
		}
		if len(wf.Context.CommunicationHistory) > 0 {
			score += 0.2
		}
	case models.CRMUpdateStep:
		if wf.Context.ClientID != "" {
			score += 0.2
		}
		if len(wf.Context.CRMData) > 0 {
			score += 0.2
		}
	case models.DataFetchStep:
		if wf.Context.ClientID != "" {
			score += 0.3
		}
	case models.DocumentGenerationStep:
		if wf.Context.ClientID != "" {
			score += 0.2
		}
		if len(wf.Context.CRMData) > 0 {
			score += 0.1
		}
	default:
		if len(wf.Context.Variables) > 0 {
			score += 0.2
		}
	}
	return clamp(score)
}

func (s *Scorer) riskScore(step *models.WorkflowStep) float64 {
	var score float64
	switch step.RiskLevel {
	case models.LowRisk:
		score = 0.9
	case models.MediumRisk:
		score = 0.7
	case models.HighRisk:
		score = 0.5
	case models.CriticalRisk:
		score = 0.3
	default:
		score = 0.7
	}
	// Approval gating mitigates the risk already.
	if step.RequiresApproval {
		score += 0.1
	}
	return clamp(score)
}

func (s *Scorer) timeConstraints(step *models.WorkflowStep, wf *models.Workflow) float64 {
	score := 0.8
	if wf.Config.LatencyOptimization.Enabled &&
		step.Timeout > wf.Config.LatencyOptimization.MaxLatency/2 {
		score -= 0.2
	}
	if step.ParallelGroup != "" {
		score += 0.1
	}
	if wf.Config.TotalTimeout > 0 &&
		float64(step.Timeout) > 0.3*float64(wf.Config.TotalTimeout) {
		score -= 0.1
	}
	return clamp(score)
}

// threshold derives the escalation threshold from the workflow's auto-approve
// threshold, its priority and the riskiest step, clamped to [0.3, 0.95].
func (s *Scorer) threshold(wf *models.Workflow) float64 {
	threshold := wf.Config.AutoApproveThreshold
	switch wf.Priority {
	case models.UrgentPriority:
		threshold -= 0.1
	case models.HighPriority:
		threshold -= 0.05
	case models.LowPriority:
		threshold += 0.05
	}
	for i := range wf.Steps {
		if wf.Steps[i].RiskLevel == models.HighRisk || wf.Steps[i].RiskLevel == models.CriticalRisk {
			threshold += 0.1
			break
		}
	}
	if threshold < 0.3 {
		threshold = 0.3
	}
	if threshold > 0.95 {
		threshold = 0.95
	}
	return threshold
}

// typeRisk maps step types to a base risk score for AssessStepRisk.
var typeRisk = map[models.StepType]float64{
	models.DataFetchStep:          0.1,
	models.ValidationStep:         0.1,
	models.NotificationStep:       0.2,
	models.AIProcessingStep:       0.3,
	models.DocumentGenerationStep: 0.4,
	models.CRMUpdateStep:          0.5,
	models.CommunicationStep:      0.6,
	models.CustomStep:             0.5,
}

// actionRisk scores known action types that carry external side effects.
var actionRisk = map[string]float64{
	"send_email":      0.3,
	"make_call":       0.3,
	"update_record":   0.2,
	"create_record":   0.2,
	"delete_record":   0.4,
	"send_document":   0.3,
	"schedule_followup": 0.1,
}

var sensitiveParamKeys = []string{
	"password", "token", "secret", "ssn", "payment", "account_number", "credit",
}

// AssessStepRisk derives a discrete risk level for a step from its type, its
// action's side effects and the sensitivity of its parameters. Callers use it
// to classify steps before they enter a workflow.
func (s *Scorer) AssessStepRisk(step *models.WorkflowStep, ctx *models.WorkflowContext) models.RiskLevel {
	score, ok := typeRisk[step.Type]
	if !ok {
		score = 0.5
	}
	if bonus, ok := actionRisk[step.Action.Type]; ok {
		score += bonus
	}
	for key := range step.Action.Parameters {
		lower := strings.ToLower(key)
		for _, sensitive := range sensitiveParamKeys {
			if strings.Contains(lower, sensitive) {
				score += 0.2
				break
			}
		}
	}
	if ctx != nil && ctx.ClientID == "" {
		// Acting without a known client makes any side effect riskier.
		score += 0.1
	}

	switch {
	case score >= 0.8:
		return models.CriticalRisk
	case score >= 0.6:
		return models.HighRisk
	case score >= 0.3:
		return models.MediumRisk
	default:
		return models.LowRisk
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
