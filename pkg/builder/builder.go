package builder

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sk-go/agentflow/pkg/models"
)

// Logger defines the logging interface for the Builder
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// lowRiskTimeoutCeiling caps low-risk step timeouts during the latency pass.
const lowRiskTimeoutCeiling = 3 * time.Second

// Builder compiles extracted tasks or registered templates into workflows.
type Builder struct {
	templates map[string]models.WorkflowTemplate
	logger    Logger
	mu        sync.RWMutex
}

func New(logger Logger) *Builder {
	b := &Builder{
		templates: make(map[string]models.WorkflowTemplate),
		logger:    logger,
	}
	for _, tpl := range seedTemplates() {
		b.templates[tpl.ID] = tpl
	}
	return b
}

// RegisterTemplate adds or overwrites a template in the registry.
func (b *Builder) RegisterTemplate(tpl models.WorkflowTemplate) {
	b.mu.Lock()
	b.templates[tpl.ID] = tpl
	b.mu.Unlock()
	b.logger.Infof("Registered workflow template '%s'", tpl.ID)
}

// GetTemplate returns a registered template by id.
func (b *Builder) GetTemplate(id string) (models.WorkflowTemplate, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tpl, ok := b.templates[id]
	return tpl, ok
}

// GetAllTemplates returns every registered template.
func (b *Builder) GetAllTemplates() []models.WorkflowTemplate {
	b.mu.RLock()
	defer b.mu.RUnlock()
	templates := make([]models.WorkflowTemplate, 0, len(b.templates))
	for _, tpl := range b.templates {
		templates = append(templates, tpl)
	}
	return templates
}

// BuildFromTasks groups tasks by type, expands each group into its
// micro-pipeline and wires the resulting steps into a workflow.
func (b *Builder) BuildFromTasks(tasks []models.ExtractedTask, ctx models.WorkflowContext, configOverride *models.WorkflowConfig) (*models.Workflow, error) {
	if len(tasks) == 0 {
		return nil, errors.New("no tasks provided")
	}

	config := models.DefaultConfig()
	if configOverride != nil {
		config = *configOverride
	}

	// Group by declared type, preserving first-seen order.
	var typeOrder []string
	groups := make(map[string][]models.ExtractedTask)
	for _, task := range tasks {
		if _, ok := groups[task.Type]; !ok {
			typeOrder = append(typeOrder, task.Type)
		}
		groups[task.Type] = append(groups[task.Type], task)
	}

	var steps []models.WorkflowStep
	order := 0
	for _, taskType := range typeOrder {
		pipeline := b.expandGroup(taskType, groups[taskType], &order)
		steps = append(steps, pipeline...)
	}

	// High-risk output gets a terminal validation fan-in.
	if hasHighRisk(steps) {
		all := make([]string, len(steps))
		for i := range steps {
			all[i] = steps[i].ID
		}
		steps = append(steps, models.WorkflowStep{
			ID:           uuid.New().String(),
			Name:         "Validate Results",
			Type:         models.ValidationStep,
			Status:       models.PendingStepStatus,
			Order:        order,
			Dependencies: all,
			Action:       models.Action{Type: "validate_outputs"},
			MaxRetries:   1,
			Timeout:      10 * time.Second,
			RiskLevel:    models.LowRisk,
		})
		order++
	}

	if config.LatencyOptimization.Enabled {
		b.applyLatencyOptimization(steps)
	}

	taskIDs := make([]string, len(tasks))
	for i, task := range tasks {
		taskIDs[i] = task.ID
	}

	wf := &models.Workflow{
		ID:          uuid.New().String(),
		Name:        fmt.Sprintf("Workflow: %s", strings.Join(typeOrder, ", ")),
		Description: fmt.Sprintf("Built from %d extracted task(s)", len(tasks)),
		Steps:       steps,
		Status:      models.PendingWorkflowStatus,
		Priority:    maxPriority(tasks),
		Config:      config,
		Context:     ctx,
		Metadata: models.WorkflowMetadata{
			Source:  "tasks",
			TaskIDs: taskIDs,
		},
		CreatedAt: time.Now(),
	}
	b.logger.Infof("Built workflow %s with %d steps from %d tasks", wf.ID, len(steps), len(tasks))
	return wf, nil
}

// expandGroup turns one task-type group into its fixed micro-pipeline.
// Unrecognized types fall back to a single custom step requiring approval.
func (b *Builder) expandGroup(taskType string, tasks []models.ExtractedTask, order *int) []models.WorkflowStep {
	params := mergeParameters(tasks)

	newStep := func(name string, stepType models.StepType, actionType string, risk models.RiskLevel, approval bool, timeout time.Duration) models.WorkflowStep {
		step := models.WorkflowStep{
			ID:               uuid.New().String(),
			Name:             name,
			Type:             stepType,
			Status:           models.PendingStepStatus,
			Order:            *order,
			Action:           models.Action{Type: actionType, Parameters: params},
			MaxRetries:       2,
			Timeout:          timeout,
			RiskLevel:        risk,
			RequiresApproval: approval,
		}
		*order++
		return step
	}

	chain := func(steps ...models.WorkflowStep) []models.WorkflowStep {
		for i := 1; i < len(steps); i++ {
			steps[i].Dependencies = []string{steps[i-1].ID}
		}
		return steps
	}

	switch taskType {
	case "email":
		return chain(
			newStep("Prepare Email Data", models.DataFetchStep, "fetch_client_data", models.LowRisk, false, 5*time.Second),
			newStep("Compose Email", models.AIProcessingStep, "compose_email", models.MediumRisk, true, 30*time.Second),
			newStep("Send Email", models.CommunicationStep, "send_email", models.HighRisk, true, 10*time.Second),
		)
	case "crm_update":
		return chain(
			newStep("Fetch CRM Record", models.DataFetchStep, "fetch_crm_record", models.LowRisk, false, 5*time.Second),
			newStep("Apply CRM Update", models.CRMUpdateStep, "update_record", models.MediumRisk, true, 15*time.Second),
		)
	case "document":
		return chain(
			newStep("Gather Document Data", models.DataFetchStep, "fetch_document_data", models.LowRisk, false, 5*time.Second),
			newStep("Generate Document", models.DocumentGenerationStep, "generate_document", models.MediumRisk, true, 45*time.Second),
		)
	case "notification":
		return []models.WorkflowStep{
			newStep("Send Notification", models.NotificationStep, "send_notification", models.LowRisk, false, 5*time.Second),
		}
	default:
		name := fmt.Sprintf("Custom: %s", taskType)
		return []models.WorkflowStep{
			newStep(name, models.CustomStep, taskType, models.MediumRisk, true, 30*time.Second),
		}
	}
}

// applyLatencyOptimization assigns parallel-group labels to independent
// low-risk steps, two at a time in discovery order, and clamps every low-risk
// step's timeout. Dependency edges are never changed here.
func (b *Builder) applyLatencyOptimization(steps []models.WorkflowStep) {
	var candidates []int
	for i := range steps {
		if steps[i].RiskLevel == models.LowRisk && !steps[i].RequiresApproval && len(steps[i].Dependencies) == 0 {
			candidates = append(candidates, i)
		}
	}
	group := 0
	for i := 0; i+1 < len(candidates); i += 2 {
		group++
		label := fmt.Sprintf("pg-%d", group)
		steps[candidates[i]].ParallelGroup = label
		steps[candidates[i+1]].ParallelGroup = label
	}
	for i := range steps {
		if steps[i].RiskLevel == models.LowRisk && steps[i].Timeout > lowRiskTimeoutCeiling {
			steps[i].Timeout = lowRiskTimeoutCeiling
		}
	}
	if group > 0 {
		b.logger.Infof("Latency optimization assigned %d parallel group(s)", group)
	}
}

// BuildFromTemplate instantiates a registered template: fresh step ids,
// name-based dependencies resolved to ids, ${param} placeholders substituted
// from the supplied parameter map. Unresolved placeholders pass through as
// literal strings.
func (b *Builder) BuildFromTemplate(templateID string, ctx models.WorkflowContext, params map[string]interface{}, configOverride *models.WorkflowConfig) (*models.Workflow, error) {
	b.mu.RLock()
	tpl, ok := b.templates[templateID]
	b.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("template not found: %s", templateID)
	}

	for _, key := range tpl.RequiredContext {
		if !contextHasKey(ctx, key) {
			return nil, errors.Errorf("missing required context key: %s", key)
		}
	}

	config := tpl.Config
	if configOverride != nil {
		config = *configOverride
	}

	nameToID := make(map[string]string, len(tpl.Steps))
	for _, st := range tpl.Steps {
		nameToID[st.Name] = uuid.New().String()
	}

	steps := make([]models.WorkflowStep, 0, len(tpl.Steps))
	for _, st := range tpl.Steps {
		deps := make([]string, 0, len(st.DependsOn))
		for _, depName := range st.DependsOn {
			depID, ok := nameToID[depName]
			if !ok {
				return nil, errors.Errorf("template %s: step '%s' depends on unknown step '%s'", templateID, st.Name, depName)
			}
			deps = append(deps, depID)
		}
		steps = append(steps, models.WorkflowStep{
			ID:               nameToID[st.Name],
			Name:             st.Name,
			Type:             st.Type,
			Status:           models.PendingStepStatus,
			Order:            st.Order,
			Dependencies:     deps,
			Action:           substituteAction(st.Action, params),
			MaxRetries:       st.MaxRetries,
			Timeout:          st.Timeout,
			RiskLevel:        st.RiskLevel,
			RequiresApproval: st.RequiresApproval,
		})
	}

	if config.LatencyOptimization.Enabled {
		b.applyLatencyOptimization(steps)
	}

	wf := &models.Workflow{
		ID:          uuid.New().String(),
		Name:        tpl.Name,
		Description: tpl.Description,
		Steps:       steps,
		Status:      models.PendingWorkflowStatus,
		Priority:    models.MediumPriority,
		Config:      config,
		Context:     ctx,
		Metadata: models.WorkflowMetadata{
			Source:     "template",
			TemplateID: templateID,
		},
		CreatedAt: time.Now(),
	}
	b.logger.Infof("Built workflow %s from template '%s'", wf.ID, templateID)
	return wf, nil
}

// substituteAction replaces ${name} placeholders in string parameter values.
func substituteAction(action models.Action, params map[string]interface{}) models.Action {
	if len(action.Parameters) == 0 {
		return action
	}
	substituted := make(map[string]interface{}, len(action.Parameters))
	for key, value := range action.Parameters {
		if str, ok := value.(string); ok {
			substituted[key] = substitutePlaceholders(str, params)
		} else {
			substituted[key] = value
		}
	}
	return models.Action{Type: action.Type, Parameters: substituted}
}

func substitutePlaceholders(value string, params map[string]interface{}) string {
	for name, param := range params {
		value = strings.ReplaceAll(value, "${"+name+"}", fmt.Sprintf("%v", param))
	}
	return value
}

func contextHasKey(ctx models.WorkflowContext, key string) bool {
	switch key {
	case "client_id":
		return ctx.ClientID != ""
	case "session_id":
		return ctx.SessionID != ""
	case "agent_id":
		return ctx.AgentID != ""
	case "crm_data":
		return len(ctx.CRMData) > 0
	default:
		_, ok := ctx.Variables[key]
		return ok
	}
}

func mergeParameters(tasks []models.ExtractedTask) map[string]interface{} {
	merged := make(map[string]interface{})
	for _, task := range tasks {
		for k, v := range task.Parameters {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

func maxPriority(tasks []models.ExtractedTask) models.Priority {
	max := models.LowPriority
	for _, task := range tasks {
		if task.Priority.Rank() > max.Rank() {
			max = task.Priority
		}
	}
	return max
}

func hasHighRisk(steps []models.WorkflowStep) bool {
	for i := range steps {
		if steps[i].RiskLevel == models.HighRisk || steps[i].RiskLevel == models.CriticalRisk {
			return true
		}
	}
	return false
}
