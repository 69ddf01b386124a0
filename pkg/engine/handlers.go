package engine

import (
	"context"

	"github.com/sk-go/agentflow/pkg/models"
)

// ApprovalHandler resolves an approval request. It may answer synchronously
// (auto-approval for low-risk, high-confidence steps) or block until an
// external round-trip resolves; either way it returns exactly one decision.
type ApprovalHandler interface {
	RequestApproval(ctx context.Context, request *models.ApprovalRequest) (bool, error)
}

// RollbackHandler performs the compensating action for a previously completed
// step. Errors are recorded by the engine, never escalated.
type RollbackHandler interface {
	RollbackStep(ctx context.Context, step *models.WorkflowStep, wfCtx *models.WorkflowContext) error
}

// ApprovalHandlerFunc adapts a function to the ApprovalHandler interface.
type ApprovalHandlerFunc func(ctx context.Context, request *models.ApprovalRequest) (bool, error)

func (f ApprovalHandlerFunc) RequestApproval(ctx context.Context, request *models.ApprovalRequest) (bool, error) {
	return f(ctx, request)
}

// RollbackHandlerFunc adapts a function to the RollbackHandler interface.
type RollbackHandlerFunc func(ctx context.Context, step *models.WorkflowStep, wfCtx *models.WorkflowContext) error

func (f RollbackHandlerFunc) RollbackStep(ctx context.Context, step *models.WorkflowStep, wfCtx *models.WorkflowContext) error {
	return f(ctx, step, wfCtx)
}

// ThresholdApprovalHandler approves requests whose confidence clears the
// threshold and whose risk is below critical. Everything else is denied, which
// surfaces as a step failure for a human to pick up.
type ThresholdApprovalHandler struct {
	Threshold float64
}

func (h ThresholdApprovalHandler) RequestApproval(ctx context.Context, request *models.ApprovalRequest) (bool, error) {
	if request.RiskLevel == models.CriticalRisk {
		return false, nil
	}
	return request.Confidence >= h.Threshold, nil
}
