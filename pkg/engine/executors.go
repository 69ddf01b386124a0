package engine

import (
	"context"
	"time"

	"github.com/sk-go/agentflow/pkg/models"
)

// StepExecutor runs one step against the workflow context. Implementations
// must not mutate the step or the execution; they report through the returned
// StepResult and fail by returning an error, which the engine's retry logic
// handles. The context carries the per-attempt timeout and must be honored.
type StepExecutor interface {
	Execute(ctx context.Context, step *models.WorkflowStep, wfCtx *models.WorkflowContext, execution *models.WorkflowExecution) (*models.StepResult, error)
}

// StepExecutorFunc adapts a plain function to the StepExecutor interface.
type StepExecutorFunc func(ctx context.Context, step *models.WorkflowStep, wfCtx *models.WorkflowContext, execution *models.WorkflowExecution) (*models.StepResult, error)

func (f StepExecutorFunc) Execute(ctx context.Context, step *models.WorkflowStep, wfCtx *models.WorkflowContext, execution *models.WorkflowExecution) (*models.StepResult, error) {
	return f(ctx, step, wfCtx, execution)
}

// stubExecutor is the built-in executor registered for every step type. It
// produces a canned result so workflows are runnable before callers register
// real integrations via RegisterStepExecutor.
type stubExecutor struct {
	confidence float64
}

func (e stubExecutor) Execute(ctx context.Context, step *models.WorkflowStep, wfCtx *models.WorkflowContext, execution *models.WorkflowExecution) (*models.StepResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	return &models.StepResult{
		Success:       true,
		Data:          map[string]interface{}{"action": step.Action.Type, "simulated": true},
		Confidence:    e.confidence,
		ExecutionTime: time.Since(start),
		Metadata:      map[string]interface{}{"executor": "stub", "step_type": string(step.Type)},
	}, nil
}

// defaultExecutors returns the stub registry keyed by step type.
func defaultExecutors() map[models.StepType]StepExecutor {
	return map[models.StepType]StepExecutor{
		models.DataFetchStep:          stubExecutor{confidence: 0.95},
		models.AIProcessingStep:       stubExecutor{confidence: 0.85},
		models.CRMUpdateStep:          stubExecutor{confidence: 0.90},
		models.CommunicationStep:      stubExecutor{confidence: 0.88},
		models.DocumentGenerationStep: stubExecutor{confidence: 0.87},
		models.ValidationStep:         stubExecutor{confidence: 0.98},
		models.NotificationStep:       stubExecutor{confidence: 0.93},
		models.CustomStep:             stubExecutor{confidence: 0.70},
	}
}
