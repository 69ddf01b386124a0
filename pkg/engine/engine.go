package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sk-go/agentflow/pkg/models"
)

const (
	// default step timeout applied when a step declares none
	DefaultStepTimeout = 60 * time.Second

	// pause between retry attempts
	retryBackoff = 100 * time.Millisecond

	// approval requests expire after this window
	approvalTimeout = time.Hour

	// fraction of the latency budget that triggers a soft warning
	latencyWarnFraction = 0.8
)

// Logger defines the logging interface for the Engine
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Engine validates a workflow graph, computes its execution order and runs it
// under the workflow's timeout, concurrency, approval and rollback policy.
// The executor registry and live-execution table are shared mutable state and
// are guarded by the engine mutex.
type Engine struct {
	executors  map[models.StepType]StepExecutor
	approval   ApprovalHandler
	rollback   RollbackHandler
	executions map[string]*models.WorkflowExecution
	logger     Logger
	mu         sync.RWMutex
}

func New(logger Logger) *Engine {
	return &Engine{
		executors:  defaultExecutors(),
		executions: make(map[string]*models.WorkflowExecution),
		logger:     logger,
	}
}

// RegisterStepExecutor installs an executor for a step type, replacing any
// previous one. New step types can be supported this way without engine changes.
func (e *Engine) RegisterStepExecutor(stepType models.StepType, executor StepExecutor) {
	e.mu.Lock()
	e.executors[stepType] = executor
	e.mu.Unlock()
	e.logger.Infof("Registered step executor for type '%s'", stepType)
}

// SetApprovalHandler installs the approval strategy. Without one, approvals
// are auto-granted with a log line.
func (e *Engine) SetApprovalHandler(h ApprovalHandler) {
	e.mu.Lock()
	e.approval = h
	e.mu.Unlock()
}

// SetRollbackHandler installs the rollback strategy. Without one, rollback
// passes are skipped with a log line.
func (e *Engine) SetRollbackHandler(h RollbackHandler) {
	e.mu.Lock()
	e.rollback = h
	e.mu.Unlock()
}

// GetExecution returns an execution by id, live or finished.
func (e *Engine) GetExecution(executionID string) (*models.WorkflowExecution, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	exec, ok := e.executions[executionID]
	return exec, ok
}

// GetActiveExecutions returns the executions currently running.
func (e *Engine) GetActiveExecutions() []*models.WorkflowExecution {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var active []*models.WorkflowExecution
	for _, exec := range e.executions {
		if exec.Status == models.RunningWorkflowStatus {
			active = append(active, exec)
		}
	}
	return active
}

// CancelExecution marks a live execution cancelled and removes it from the
// table. Unknown ids are a no-op. In-flight step calls are not interrupted;
// the scheduler stops before the next step.
func (e *Engine) CancelExecution(executionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.executions[executionID]
	if !ok {
		return
	}
	exec.Status = models.CancelledWorkflowStatus
	delete(e.executions, executionID)
	e.logger.Infof("Cancelled execution %s", executionID)
}

// run bundles the mutable state of one workflow run. Its mutex guards the
// execution record during parallel batches.
type run struct {
	wf   *models.Workflow
	exec *models.WorkflowExecution
	mu   sync.Mutex
}

// Execute validates the workflow and runs it to completion, failure or
// cancellation. Graph validation errors abort before any step runs and no
// execution record is created. Step failures are recorded on the returned
// execution and also returned as the error.
func (e *Engine) Execute(ctx context.Context, wf *models.Workflow) (*models.WorkflowExecution, error) {
	if err := e.validate(wf); err != nil {
		return nil, err
	}

	exec := &models.WorkflowExecution{
		ID:         uuid.New().String(),
		WorkflowID: wf.ID,
		Status:     models.RunningWorkflowStatus,
		StartedAt:  time.Now(),
	}
	e.mu.Lock()
	e.executions[exec.ID] = exec
	e.mu.Unlock()

	now := time.Now()
	wf.Status = models.RunningWorkflowStatus
	wf.StartedAt = &now

	totalTimeout := wf.Config.TotalTimeout
	if totalTimeout <= 0 {
		totalTimeout = models.DefaultConfig().TotalTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	r := &run{wf: wf, exec: exec}
	var runErr error
	if wf.Config.LatencyOptimization.Enabled {
		runErr = e.runGrouped(runCtx, r)
	} else {
		runErr = e.runSequential(runCtx, r)
	}

	finished := time.Now()
	e.mu.Lock()
	if exec.Status == models.CancelledWorkflowStatus {
		wf.Status = models.CancelledWorkflowStatus
		e.mu.Unlock()
		e.logger.Infof("Execution %s cancelled after %d step(s)", exec.ID, len(exec.Steps))
		return exec, nil
	}
	if runErr != nil {
		exec.Status = models.FailedWorkflowStatus
		exec.Error = runErr.Error()
		wf.Status = models.FailedWorkflowStatus
	} else {
		exec.Status = models.CompletedWorkflowStatus
		wf.Status = models.CompletedWorkflowStatus
	}
	exec.CompletedAt = &finished
	exec.TotalLatency = finished.Sub(exec.StartedAt)
	wf.CompletedAt = &finished
	e.mu.Unlock()

	if runErr != nil {
		if wf.Config.EnableRollback {
			e.rollbackCompleted(ctx, r, runErr)
		}
		return exec, runErr
	}
	e.logger.Infof("Execution %s completed in %s", exec.ID, exec.TotalLatency)
	return exec, nil
}

// validate rejects dangling dependency references and cycles before any step runs.
func (e *Engine) validate(wf *models.Workflow) error {
	ids := make(map[string]int, len(wf.Steps))
	for i := range wf.Steps {
		ids[wf.Steps[i].ID] = i
	}
	for i := range wf.Steps {
		for _, dep := range wf.Steps[i].Dependencies {
			if _, ok := ids[dep]; !ok {
				return errors.Errorf("step '%s' references unknown dependency '%s'", wf.Steps[i].Name, dep)
			}
		}
	}

	// DFS with a visiting set; revisiting a step still on the stack is a cycle.
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(wf.Steps))
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return errors.Errorf("circular dependency detected involving step '%s'", id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, dep := range wf.Steps[ids[id]].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	for i := range wf.Steps {
		if err := visit(wf.Steps[i].ID); err != nil {
			return err
		}
	}
	return nil
}

// topologicalOrder computes a DFS-based order, stable with respect to the
// declared step order: when several steps are unblocked, the earlier-declared
// one is visited first. Validation has already ruled out cycles.
func (e *Engine) topologicalOrder(wf *models.Workflow) []*models.WorkflowStep {
	index := make(map[string]int, len(wf.Steps))
	for i := range wf.Steps {
		index[wf.Steps[i].ID] = i
	}
	visited := make(map[string]bool, len(wf.Steps))
	order := make([]*models.WorkflowStep, 0, len(wf.Steps))
	var visit func(i int)
	visit = func(i int) {
		step := &wf.Steps[i]
		if visited[step.ID] {
			return
		}
		visited[step.ID] = true
		for _, dep := range step.Dependencies {
			visit(index[dep])
		}
		order = append(order, step)
	}
	for i := range wf.Steps {
		visit(i)
	}
	return order
}

func (e *Engine) runSequential(ctx context.Context, r *run) error {
	for _, step := range e.topologicalOrder(r.wf) {
		if e.isCancelled(r.exec) {
			return nil
		}
		if err := e.runStep(ctx, r, step, ""); err != nil {
			return err
		}
	}
	return nil
}

// partitionGroups splits steps into execution groups for the latency-optimized
// mode. Steps are scanned in ascending declared order; a step whose
// dependencies are not yet satisfied becomes a singleton group, otherwise it
// seeds a group joined by unprocessed label-mates whose dependencies are
// already satisfied. Groups run in sequence, so a dependent step never runs
// before the group holding its dependency.
func (e *Engine) partitionGroups(wf *models.Workflow) [][]*models.WorkflowStep {
	sorted := make([]*models.WorkflowStep, len(wf.Steps))
	for i := range wf.Steps {
		sorted[i] = &wf.Steps[i]
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})

	processed := make(map[string]bool, len(sorted))
	satisfied := func(step *models.WorkflowStep) bool {
		for _, dep := range step.Dependencies {
			if !processed[dep] {
				return false
			}
		}
		return true
	}

	var groups [][]*models.WorkflowStep
	for len(processed) < len(sorted) {
		for _, step := range sorted {
			if processed[step.ID] {
				continue
			}
			if !satisfied(step) {
				processed[step.ID] = true
				groups = append(groups, []*models.WorkflowStep{step})
				break
			}
			group := []*models.WorkflowStep{step}
			processed[step.ID] = true
			if step.ParallelGroup != "" {
				for _, other := range sorted {
					if processed[other.ID] || other.ParallelGroup != step.ParallelGroup {
						continue
					}
					if satisfied(other) {
						group = append(group, other)
						processed[other.ID] = true
					}
				}
			}
			groups = append(groups, group)
			break
		}
	}
	return groups
}

func (e *Engine) runGrouped(ctx context.Context, r *run) error {
	maxParallel := r.wf.Config.MaxParallelSteps
	if maxParallel <= 0 {
		maxParallel = models.DefaultConfig().MaxParallelSteps
	}
	maxLatency := r.wf.Config.LatencyOptimization.MaxLatency
	if maxLatency <= 0 {
		maxLatency = models.DefaultConfig().LatencyOptimization.MaxLatency
	}

	start := time.Now()
	for _, group := range e.partitionGroups(r.wf) {
		if e.isCancelled(r.exec) {
			return nil
		}
		if len(group) == 1 {
			if err := e.runStep(ctx, r, group[0], group[0].ParallelGroup); err != nil {
				return err
			}
		} else if err := e.runGroup(ctx, r, group, maxParallel); err != nil {
			return err
		}

		if elapsed := time.Since(start); float64(elapsed) > latencyWarnFraction*float64(maxLatency) {
			e.logger.Warnf("Execution %s elapsed %s exceeds %.0f%% of latency budget %s",
				r.exec.ID, elapsed, latencyWarnFraction*100, maxLatency)
		}
	}
	return nil
}

// runGroup runs the members of one group concurrently in batches capped at
// maxParallel. The first failure wins; the remaining members of the batch are
// waited for, not interrupted.
func (e *Engine) runGroup(ctx context.Context, r *run, group []*models.WorkflowStep, maxParallel int) error {
	for offset := 0; offset < len(group); offset += maxParallel {
		end := offset + maxParallel
		if end > len(group) {
			end = len(group)
		}
		batch := group[offset:end]

		var wg sync.WaitGroup
		errCh := make(chan error, len(batch))
		for _, step := range batch {
			wg.Add(1)
			go func(step *models.WorkflowStep) {
				defer wg.Done()
				if err := e.runStep(ctx, r, step, step.ParallelGroup); err != nil {
					errCh <- err
				}
			}(step)
		}
		wg.Wait()
		close(errCh)
		if err := <-errCh; err != nil {
			return err
		}
	}
	return nil
}

// runStep executes one step: approval gate, executor dispatch, per-attempt
// timeout, retries. The step and execution record are updated here; executors
// only ever see read-only views.
func (e *Engine) runStep(ctx context.Context, r *run, step *models.WorkflowStep, groupLabel string) error {
	stepExec := models.StepExecution{
		StepID:        step.ID,
		ExecutionID:   r.exec.ID,
		Status:        models.RunningStepStatus,
		StartedAt:     time.Now(),
		ParallelGroup: groupLabel,
	}
	step.Status = models.RunningStepStatus

	if step.RequiresApproval {
		approved, err := e.requestApproval(ctx, r, step)
		if err != nil || !approved {
			if err == nil {
				err = errors.Errorf("approval denied for step '%s'", step.Name)
			}
			e.finishStep(r, step, &stepExec, nil, err)
			return err
		}
	}

	e.mu.RLock()
	executor, ok := e.executors[step.Type]
	e.mu.RUnlock()
	if !ok {
		err := errors.Errorf("no executor registered for step type '%s'", step.Type)
		e.finishStep(r, step, &stepExec, nil, err)
		return err
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}

	var result *models.StepResult
	var stepErr error
	for attempt := 0; attempt <= step.MaxRetries; attempt++ {
		result, stepErr = e.attempt(ctx, executor, step, &r.wf.Context, r.exec, timeout)
		if stepErr == nil {
			break
		}
		if attempt < step.MaxRetries {
			step.RetryCount++
			e.logger.Infof("Retrying step '%s' (attempt %d/%d): %v", step.Name, attempt+1, step.MaxRetries, stepErr)
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				stepErr = ctx.Err()
				attempt = step.MaxRetries
			}
		}
	}

	e.finishStep(r, step, &stepExec, result, stepErr)
	if stepErr != nil {
		return errors.Wrapf(stepErr, "step '%s' failed after %d attempt(s)", step.Name, step.RetryCount+1)
	}
	return nil
}

// attempt races one executor call against the per-attempt timeout. The timeout
// context is threaded into the executor so well-behaved executors stop early.
func (e *Engine) attempt(ctx context.Context, executor StepExecutor, step *models.WorkflowStep, wfCtx *models.WorkflowContext, exec *models.WorkflowExecution, timeout time.Duration) (*models.StepResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *models.StepResult
		err    error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		result, err := executor.Execute(attemptCtx, step, wfCtx, exec)
		resultCh <- outcome{result, err}
	}()

	select {
	case out := <-resultCh:
		if out.err != nil {
			return nil, out.err
		}
		if out.result != nil && !out.result.Success {
			return nil, errors.Errorf("executor reported failure for step '%s'", step.Name)
		}
		return out.result, nil
	case <-attemptCtx.Done():
		return nil, errors.Wrapf(attemptCtx.Err(), "step '%s' timed out after %s", step.Name, timeout)
	}
}

func (e *Engine) requestApproval(ctx context.Context, r *run, step *models.WorkflowStep) (bool, error) {
	request := models.ApprovalRequest{
		ID:          uuid.New().String(),
		WorkflowID:  r.wf.ID,
		StepID:      step.ID,
		RiskLevel:   step.RiskLevel,
		Confidence:  stepConfidence(r.wf, step),
		RequestedAt: time.Now(),
		Timeout:     approvalTimeout,
	}

	e.mu.RLock()
	handler := e.approval
	e.mu.RUnlock()

	approved := true
	var err error
	response := models.ApprovalResponse{ApprovedBy: "system"}
	if handler == nil {
		e.logger.Infof("No approval handler set; auto-approving step '%s'", step.Name)
		response.Reason = "auto-approved: no approval handler configured"
	} else {
		approved, err = handler.RequestApproval(ctx, &request)
		response.Approved = approved
		if err != nil {
			response.Reason = err.Error()
		}
	}
	response.Approved = approved && err == nil
	response.RespondedAt = time.Now()
	request.Response = &response

	r.mu.Lock()
	r.exec.Approvals = append(r.exec.Approvals, request)
	r.mu.Unlock()
	return response.Approved, err
}

// finishStep records the terminal state of a step attempt sequence on both the
// step and the execution.
func (e *Engine) finishStep(r *run, step *models.WorkflowStep, stepExec *models.StepExecution, result *models.StepResult, stepErr error) {
	now := time.Now()
	stepExec.CompletedAt = &now
	stepExec.Latency = now.Sub(stepExec.StartedAt)
	stepExec.Result = result
	if stepErr != nil {
		stepExec.Status = models.FailedStepStatus
		step.Status = models.FailedStepStatus
		e.logger.Errorf("Step '%s' failed: %v", step.Name, stepErr)
	} else {
		stepExec.Status = models.CompletedStepStatus
		step.Status = models.CompletedStepStatus
		step.Result = result
		step.CompletedAt = &now
	}

	r.mu.Lock()
	r.exec.Steps = append(r.exec.Steps, *stepExec)
	r.mu.Unlock()
}

// rollbackCompleted drives the best-effort rollback pass: every completed step
// execution, in reverse completion order. Communication steps are logged but
// never undone; handler failures are recorded and the pass continues.
func (e *Engine) rollbackCompleted(ctx context.Context, r *run, cause error) {
	e.mu.RLock()
	handler := e.rollback
	e.mu.RUnlock()

	var completed []models.StepExecution
	r.mu.Lock()
	for _, se := range r.exec.Steps {
		if se.Status == models.CompletedStepStatus {
			completed = append(completed, se)
		}
	}
	r.mu.Unlock()

	reason := "workflow failed: " + cause.Error()
	for i := len(completed) - 1; i >= 0; i-- {
		step := r.wf.Step(completed[i].StepID)
		if step == nil {
			continue
		}
		record := models.RollbackStep{
			StepID:       step.ID,
			Action:       step.Action,
			Reason:       reason,
			RolledBackAt: time.Now(),
		}
		switch {
		case step.Type == models.CommunicationStep:
			// Sent messages cannot be unsent.
			e.logger.Warnf("Step '%s' is a communication step; side effect cannot be reversed", step.Name)
			record.Success = false
		case handler == nil:
			e.logger.Infof("No rollback handler set; skipping rollback of step '%s'", step.Name)
			continue
		default:
			if err := handler.RollbackStep(ctx, step, &r.wf.Context); err != nil {
				e.logger.Errorf("Rollback of step '%s' failed: %v", step.Name, err)
				record.Success = false
			} else {
				record.Success = true
			}
		}
		r.mu.Lock()
		r.exec.Rollbacks = append(r.exec.Rollbacks, record)
		r.mu.Unlock()
	}
}

func (e *Engine) isCancelled(exec *models.WorkflowExecution) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return exec.Status == models.CancelledWorkflowStatus
}

// stepConfidence reads the step's score from the workflow's confidence
// metadata when present.
func stepConfidence(wf *models.Workflow, step *models.WorkflowStep) float64 {
	if wf.Metadata.Confidence != nil {
		if score, ok := wf.Metadata.Confidence.StepScores[step.ID]; ok {
			return score
		}
	}
	return 0.5
}
