package builder_test

import (
	"testing"
	"time"

	"github.com/sk-go/agentflow/pkg/builder"
	"github.com/sk-go/agentflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{}

func (testLogger) Infof(format string, args ...interface{})  {}
func (testLogger) Errorf(format string, args ...interface{}) {}

func emailTask() models.ExtractedTask {
	return models.ExtractedTask{
		ID:       "task-1",
		Type:     "email",
		Priority: models.MediumPriority,
		Parameters: map[string]interface{}{
			"recipient": "client@example.com",
		},
		Confidence: 0.9,
		ClientID:   "client-1",
	}
}

func TestBuildFromTasks(t *testing.T) {
	ctx := models.WorkflowContext{SessionID: "s1", AgentID: "a1", ClientID: "client-1"}

	t.Run("EmailTaskYieldsThreeStepPipeline", func(t *testing.T) {
		b := builder.New(testLogger{})
		wf, err := b.BuildFromTasks([]models.ExtractedTask{emailTask()}, ctx, nil)
		require.NoError(t, err)

		// Three pipeline steps plus the terminal validation fan-in forced by
		// the high-risk send step.
		require.Len(t, wf.Steps, 4)
		assert.Equal(t, "Prepare Email Data", wf.Steps[0].Name)
		assert.Equal(t, "Compose Email", wf.Steps[1].Name)
		assert.Equal(t, "Send Email", wf.Steps[2].Name)
		assert.Equal(t, "Validate Results", wf.Steps[3].Name)

		assert.Empty(t, wf.Steps[0].Dependencies)
		assert.Equal(t, []string{wf.Steps[0].ID}, wf.Steps[1].Dependencies)
		assert.Equal(t, []string{wf.Steps[1].ID}, wf.Steps[2].Dependencies)

		assert.False(t, wf.Steps[0].RequiresApproval)
		assert.True(t, wf.Steps[1].RequiresApproval)
		assert.True(t, wf.Steps[2].RequiresApproval)

		assert.Equal(t, models.LowRisk, wf.Steps[0].RiskLevel)
		assert.Equal(t, models.MediumRisk, wf.Steps[1].RiskLevel)
		assert.Equal(t, models.HighRisk, wf.Steps[2].RiskLevel)

		// Validation fans in from every prior step.
		assert.ElementsMatch(t,
			[]string{wf.Steps[0].ID, wf.Steps[1].ID, wf.Steps[2].ID},
			wf.Steps[3].Dependencies)

		assert.Equal(t, "tasks", wf.Metadata.Source)
		assert.Equal(t, []string{"task-1"}, wf.Metadata.TaskIDs)
	})

	t.Run("UnrecognizedTypeFallsBackToCustomStep", func(t *testing.T) {
		b := builder.New(testLogger{})
		task := models.ExtractedTask{ID: "t1", Type: "interpretive_dance", Priority: models.LowPriority}
		wf, err := b.BuildFromTasks([]models.ExtractedTask{task}, ctx, nil)
		require.NoError(t, err)
		require.Len(t, wf.Steps, 1)
		assert.Equal(t, models.CustomStep, wf.Steps[0].Type)
		assert.True(t, wf.Steps[0].RequiresApproval)
		assert.Equal(t, "interpretive_dance", wf.Steps[0].Action.Type)
	})

	t.Run("NotificationTaskHasNoValidationStep", func(t *testing.T) {
		b := builder.New(testLogger{})
		task := models.ExtractedTask{ID: "t1", Type: "notification", Priority: models.LowPriority}
		wf, err := b.BuildFromTasks([]models.ExtractedTask{task}, ctx, nil)
		require.NoError(t, err)
		require.Len(t, wf.Steps, 1)
		assert.Equal(t, models.NotificationStep, wf.Steps[0].Type)
	})

	t.Run("PriorityIsTheMaximumOfTaskPriorities", func(t *testing.T) {
		b := builder.New(testLogger{})
		tasks := []models.ExtractedTask{
			{ID: "t1", Type: "notification", Priority: models.LowPriority},
			{ID: "t2", Type: "crm_update", Priority: models.UrgentPriority},
			{ID: "t3", Type: "email", Priority: models.HighPriority},
		}
		wf, err := b.BuildFromTasks(tasks, ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, models.UrgentPriority, wf.Priority)
	})

	t.Run("EmptyTaskListIsRejected", func(t *testing.T) {
		b := builder.New(testLogger{})
		_, err := b.BuildFromTasks(nil, ctx, nil)
		assert.Error(t, err)
	})

	t.Run("LatencyOptimizationPairsIndependentLowRiskSteps", func(t *testing.T) {
		b := builder.New(testLogger{})
		cfg := models.DefaultConfig()
		cfg.LatencyOptimization.Enabled = true
		tasks := []models.ExtractedTask{
			{ID: "t1", Type: "notification", Priority: models.LowPriority},
			{ID: "t2", Type: "notification", Priority: models.LowPriority},
		}
		// Two notification groups collapse into one; use distinct types instead.
		tasks[1].Type = "crm_update"
		wf, err := b.BuildFromTasks(tasks, ctx, &cfg)
		require.NoError(t, err)

		// "Send Notification" and "Fetch CRM Record" are both low risk with no
		// dependencies, so they share the first synthetic group.
		var labels []string
		for _, step := range wf.Steps {
			if step.ParallelGroup != "" {
				labels = append(labels, step.ParallelGroup)
			}
		}
		require.Len(t, labels, 2)
		assert.Equal(t, labels[0], labels[1])
	})

	t.Run("LatencyOptimizationClampsLowRiskTimeouts", func(t *testing.T) {
		b := builder.New(testLogger{})
		cfg := models.DefaultConfig()
		cfg.LatencyOptimization.Enabled = true
		wf, err := b.BuildFromTasks([]models.ExtractedTask{emailTask()}, ctx, &cfg)
		require.NoError(t, err)
		for _, step := range wf.Steps {
			if step.RiskLevel == models.LowRisk {
				assert.LessOrEqual(t, step.Timeout, 3*time.Second, "step %s", step.Name)
			}
		}
	})
}

func TestBuildFromTemplate(t *testing.T) {
	ctx := models.WorkflowContext{SessionID: "s1", AgentID: "a1", ClientID: "client-1"}

	t.Run("UnknownTemplateFailsAndLeavesRegistryUntouched", func(t *testing.T) {
		b := builder.New(testLogger{})
		before := len(b.GetAllTemplates())
		_, err := b.BuildFromTemplate("nonexistent", ctx, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "template not found")
		assert.Len(t, b.GetAllTemplates(), before)
	})

	t.Run("InstantiatesSeededEmailTemplate", func(t *testing.T) {
		b := builder.New(testLogger{})
		params := map[string]interface{}{
			"client_id": "client-1",
			"recipient": "client@example.com",
			"subject":   "Renewal",
		}
		wf, err := b.BuildFromTemplate("email-communication", ctx, params, nil)
		require.NoError(t, err)
		require.Len(t, wf.Steps, 3)
		assert.Equal(t, "template", wf.Metadata.Source)
		assert.Equal(t, "email-communication", wf.Metadata.TemplateID)

		// Name-based dependencies resolved to the fresh ids.
		assert.Equal(t, []string{wf.Steps[0].ID}, wf.Steps[1].Dependencies)
		assert.Equal(t, []string{wf.Steps[1].ID}, wf.Steps[2].Dependencies)

		// Substituted and pass-through parameters.
		assert.Equal(t, "client-1", wf.Steps[0].Action.Parameters["client_id"])
		assert.Equal(t, "Renewal", wf.Steps[1].Action.Parameters["subject"])
		assert.Equal(t, "${tone}", wf.Steps[1].Action.Parameters["tone"])
	})

	t.Run("FreshIDsPerInstantiation", func(t *testing.T) {
		b := builder.New(testLogger{})
		first, err := b.BuildFromTemplate("crm-update", ctx, nil, nil)
		require.NoError(t, err)
		second, err := b.BuildFromTemplate("crm-update", ctx, nil, nil)
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
		assert.NotEqual(t, first.Steps[0].ID, second.Steps[0].ID)
	})

	t.Run("MissingRequiredContextKeyIsRejected", func(t *testing.T) {
		b := builder.New(testLogger{})
		_, err := b.BuildFromTemplate("email-communication", models.WorkflowContext{SessionID: "s1"}, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "missing required context key")
	})

	t.Run("RegisterTemplateOverwrites", func(t *testing.T) {
		b := builder.New(testLogger{})
		tpl := models.WorkflowTemplate{
			ID:   "email-communication",
			Name: "Replacement",
			Steps: []models.StepTemplate{
				{Name: "Only Step", Type: models.NotificationStep, Action: models.Action{Type: "noop"}},
			},
			Config: models.DefaultConfig(),
		}
		b.RegisterTemplate(tpl)
		got, ok := b.GetTemplate("email-communication")
		require.True(t, ok)
		assert.Equal(t, "Replacement", got.Name)

		wf, err := b.BuildFromTemplate("email-communication", ctx, nil, nil)
		require.NoError(t, err)
		assert.Len(t, wf.Steps, 1)
	})

	t.Run("SeededTemplatesArePresent", func(t *testing.T) {
		b := builder.New(testLogger{})
		ids := make(map[string]bool)
		for _, tpl := range b.GetAllTemplates() {
			ids[tpl.ID] = true
		}
		assert.True(t, ids["email-communication"])
		assert.True(t, ids["crm-update"])
	})
}
