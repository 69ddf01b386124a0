package confidence_test

import (
	"testing"
	"time"

	"github.com/sk-go/agentflow/pkg/confidence"
	"github.com/sk-go/agentflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{}

func (testLogger) Infof(format string, args ...interface{})  {}
func (testLogger) Errorf(format string, args ...interface{}) {}

func baseWorkflow(steps ...models.WorkflowStep) *models.Workflow {
	return &models.Workflow{
		ID:       "wf-score",
		Steps:    steps,
		Priority: models.MediumPriority,
		Config:   models.DefaultConfig(),
	}
}

func TestScoreWorkflow(t *testing.T) {
	scorer := confidence.NewScorer(testLogger{})

	t.Run("ZeroStepsDegradesGracefully", func(t *testing.T) {
		scoring := scorer.ScoreWorkflow(baseWorkflow())
		assert.Equal(t, 0.5, scoring.Overall)
		assert.False(t, scoring.EscalationRequired)
		assert.InDelta(t, 0.8, scoring.Threshold, 1e-9)
		assert.Empty(t, scoring.StepScores)
	})

	t.Run("EveryStepGetsSixWeightedFactors", func(t *testing.T) {
		step := models.WorkflowStep{
			ID:        "s1",
			Type:      models.DataFetchStep,
			RiskLevel: models.LowRisk,
			Timeout:   5 * time.Second,
		}
		scoring := scorer.ScoreWorkflow(baseWorkflow(step))
		factors := scoring.Factors["s1"]
		require.Len(t, factors, 6)
		var weightSum float64
		for _, f := range factors {
			weightSum += f.Weight
			assert.GreaterOrEqual(t, f.Score, 0.0, f.Name)
			assert.LessOrEqual(t, f.Score, 1.0, f.Name)
		}
		assert.InDelta(t, 1.0, weightSum, 1e-9)
		score := scoring.StepScores["s1"]
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	})

	t.Run("RicherContextScoresHigher", func(t *testing.T) {
		step := models.WorkflowStep{ID: "s1", Type: models.CRMUpdateStep, RiskLevel: models.MediumRisk, Timeout: 5 * time.Second}

		bare := baseWorkflow(step)
		rich := baseWorkflow(step)
		rich.Context = models.WorkflowContext{
			ClientID:             "client-1",
			CRMData:              map[string]interface{}{"stage": "renewal"},
			CommunicationHistory: []string{"intro call"},
		}
		assert.Greater(t, scorer.ScoreWorkflow(rich).Overall, scorer.ScoreWorkflow(bare).Overall)
	})

	t.Run("AIProcessingScoresBelowValidation", func(t *testing.T) {
		ai := models.WorkflowStep{ID: "ai", Type: models.AIProcessingStep, RiskLevel: models.MediumRisk, Timeout: 5 * time.Second}
		validation := models.WorkflowStep{ID: "val", Type: models.ValidationStep, RiskLevel: models.LowRisk, Timeout: 5 * time.Second}
		scoring := scorer.ScoreWorkflow(baseWorkflow(ai, validation))
		assert.Less(t, scoring.StepScores["ai"], scoring.StepScores["val"])
	})

	t.Run("ThresholdLoweredForUrgentRaisedForRisk", func(t *testing.T) {
		low := models.WorkflowStep{ID: "s1", Type: models.DataFetchStep, RiskLevel: models.LowRisk, Timeout: time.Second}
		high := models.WorkflowStep{ID: "s2", Type: models.CommunicationStep, RiskLevel: models.HighRisk, Timeout: time.Second}

		urgent := baseWorkflow(low)
		urgent.Priority = models.UrgentPriority
		assert.InDelta(t, 0.7, scorer.ScoreWorkflow(urgent).Threshold, 1e-9)

		lowPriority := baseWorkflow(low)
		lowPriority.Priority = models.LowPriority
		assert.InDelta(t, 0.85, scorer.ScoreWorkflow(lowPriority).Threshold, 1e-9)

		risky := baseWorkflow(low, high)
		assert.InDelta(t, 0.9, scorer.ScoreWorkflow(risky).Threshold, 1e-9)
	})

	t.Run("ThresholdIsClamped", func(t *testing.T) {
		step := models.WorkflowStep{ID: "s1", Type: models.DataFetchStep, RiskLevel: models.CriticalRisk, Timeout: time.Second}
		wf := baseWorkflow(step)
		wf.Config.AutoApproveThreshold = 0.95
		assert.InDelta(t, 0.95, scorer.ScoreWorkflow(wf).Threshold, 1e-9)

		wf.Config.AutoApproveThreshold = 0.1
		wf.Priority = models.UrgentPriority
		wf.Steps[0].RiskLevel = models.LowRisk
		assert.InDelta(t, 0.3, scorer.ScoreWorkflow(wf).Threshold, 1e-9)
	})

	t.Run("EscalationFollowsThreshold", func(t *testing.T) {
		step := models.WorkflowStep{ID: "s1", Type: models.CustomStep, RiskLevel: models.CriticalRisk, Timeout: time.Second}
		wf := baseWorkflow(step)
		scoring := scorer.ScoreWorkflow(wf)
		assert.Equal(t, scoring.Overall < scoring.Threshold, scoring.EscalationRequired)
		assert.True(t, scoring.EscalationRequired)
	})
}

func TestAssessStepRisk(t *testing.T) {
	scorer := confidence.NewScorer(testLogger{})
	ctx := &models.WorkflowContext{ClientID: "client-1"}

	t.Run("PlainDataFetchIsLowRisk", func(t *testing.T) {
		step := &models.WorkflowStep{Type: models.DataFetchStep, Action: models.Action{Type: "fetch"}}
		assert.Equal(t, models.LowRisk, scorer.AssessStepRisk(step, ctx))
	})

	t.Run("OutboundEmailIsCriticalRisk", func(t *testing.T) {
		step := &models.WorkflowStep{
			Type:   models.CommunicationStep,
			Action: models.Action{Type: "send_email"},
		}
		assert.Equal(t, models.CriticalRisk, scorer.AssessStepRisk(step, ctx))
	})

	t.Run("SensitiveParametersRaiseTheLevel", func(t *testing.T) {
		plain := &models.WorkflowStep{
			Type:   models.CRMUpdateStep,
			Action: models.Action{Type: "update_record"},
		}
		sensitive := &models.WorkflowStep{
			Type: models.CRMUpdateStep,
			Action: models.Action{
				Type: "update_record",
				Parameters: map[string]interface{}{
					"payment_link": "https://pay.example.com",
				},
			},
		}
		assert.Equal(t, models.HighRisk, scorer.AssessStepRisk(plain, ctx))
		assert.Equal(t, models.CriticalRisk, scorer.AssessStepRisk(sensitive, ctx))
	})

	t.Run("MissingClientAddsRisk", func(t *testing.T) {
		step := &models.WorkflowStep{Type: models.CRMUpdateStep, Action: models.Action{Type: "noop"}}
		assert.Equal(t, models.MediumRisk, scorer.AssessStepRisk(step, ctx))
		assert.Equal(t, models.HighRisk, scorer.AssessStepRisk(step, &models.WorkflowContext{}))
	})
}
