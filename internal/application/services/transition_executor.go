package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tradedesk/backoffice/internal/domain"
	"github.com/tradedesk/backoffice/internal/domain/models"
	"github.com/tradedesk/backoffice/internal/domain/ports"
	"github.com/tradedesk/backoffice/pkg/errors"
	"github.com/tradedesk/backoffice/pkg/fieldschema"
	"github.com/tradedesk/backoffice/pkg/formula"
	"github.com/tradedesk/backoffice/pkg/utils"
)

// Engagement action names reported to clients
const (
	ActionAdvance = "advance"
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionCancel  = "cancel"
)

// ApprovalDecision is the explicit decision supplied with an advance request
// on an approval-gated step
type ApprovalDecision struct {
	Approved bool    `json:"approved"`
	Comment  *string `json:"comment,omitempty"`
}

// AdvanceRequest carries the client payload for one transition attempt
type AdvanceRequest struct {
	Values   map[string]interface{} `json:"values"`
	Decision *ApprovalDecision      `json:"decision,omitempty"`
}

// AdvanceResult is the successful outcome of an advance: the updated
// engagement and the actions now available on its new current step
type AdvanceResult struct {
	Engagement       *models.Engagement `json:"engagement"`
	AvailableActions []string           `json:"available_actions"`
}

// TransitionExecutor is the state-machine executor driving engagements
// through their template's steps one forward transition at a time. The
// transition table is derived from the bound template's step ordering at
// each call, never cached. Persistence is conditioned on the engagement
// version observed at load; the executor never retries a lost race itself
// so side effects like trigger notifications cannot double-fire.
type TransitionExecutor struct {
	templates    ports.TemplateStore
	engagements  ports.EngagementStore
	roles        ports.RoleChecker
	documents    ports.DocumentRegistry
	triggers     ports.TriggerSink
	stateMachine *domain.EngagementStateMachine
}

// NewTransitionExecutor creates a TransitionExecutor with its collaborator
// ports
func NewTransitionExecutor(
	templates ports.TemplateStore,
	engagements ports.EngagementStore,
	roles ports.RoleChecker,
	documents ports.DocumentRegistry,
	triggers ports.TriggerSink,
) *TransitionExecutor {
	return &TransitionExecutor{
		templates:    templates,
		engagements:  engagements,
		roles:        roles,
		documents:    documents,
		triggers:     triggers,
		stateMachine: domain.NewEngagementStateMachine(),
	}
}

// Advance validates the payload against the engagement's current step,
// evaluates computed fields, checks documents and the approval gate, then
// advances the engagement to the next step (or completes it). The audit
// record is appended atomically with the engagement update.
func (te *TransitionExecutor) Advance(ctx context.Context, engagementID string, actingUser *models.UserSession, request AdvanceRequest) (*AdvanceResult, error) {
	engagement, template, step, err := te.load(ctx, engagementID)
	if err != nil {
		return nil, err
	}

	if !te.stateMachine.CanTransition(engagement.Status, domain.TransitionAdvance) {
		return nil, errors.NewInvalidStateError("Engagement", engagement.ID, string(engagement.Status))
	}

	if !actingUser.HoldsAnyRole(step.ExecutorRoles) {
		return nil, errors.NewPermissionError("execute step '"+step.Code+"' of", "Engagement")
	}

	collected, err := te.validatePayload(step, engagement, request.Values)
	if err != nil {
		return nil, err
	}

	if err := te.evaluateComputedFields(template, step, engagement, collected); err != nil {
		return nil, err
	}

	if err := te.checkDocuments(ctx, engagement.ID, step); err != nil {
		return nil, err
	}

	documentIDs, err := te.documents.DocumentIDs(ctx, engagement.ID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list attached documents", err)
	}

	if step.RequiresApproval {
		if done, err := te.applyApprovalGate(ctx, engagement, step, actingUser, request, collected, documentIDs); done || err != nil {
			return nil, err
		}
	}

	return te.commitAdvance(ctx, engagement, template, step, actingUser, request, collected, documentIDs)
}

// Cancel terminates an in-progress engagement. The cancellation itself is
// recorded as an audit entry; no further advance is legal afterwards.
func (te *TransitionExecutor) Cancel(ctx context.Context, engagementID string, actingUser *models.UserSession, reason string) (*models.Engagement, error) {
	engagement, _, step, err := te.load(ctx, engagementID)
	if err != nil {
		return nil, err
	}

	newStatus, err := te.stateMachine.Transition(engagement.Status, domain.TransitionCancel)
	if err != nil {
		return nil, errors.NewInvalidStateError("Engagement", engagement.ID, string(engagement.Status))
	}

	expected := engagement.Version
	engagement.Status = newStatus
	engagement.CurrentStep = nil
	engagement.Version++
	engagement.LastModified = time.Now().UTC()

	completion := &models.StepCompletion{
		ID:           utils.GenerateID(),
		EngagementID: engagement.ID,
		StepID:       stepIDOrNil(step),
		StepCode:     stepCodeOrEmpty(step),
		Outcome:      models.OutcomeCancelled,
		ActingUserID: actingUser.ID,
		Comment:      &reason,
		OccurredDate: engagement.LastModified,
	}

	if err := te.engagements.UpdateWithCompletion(ctx, engagement, expected, completion); err != nil {
		return nil, err
	}
	log.Printf("🚫 Engagement cancelled: %s (%s)", engagement.Reference, reason)
	return engagement, nil
}

// AvailableActions lists what a client may do next on the engagement's
// current step. Terminal engagements have none.
func (te *TransitionExecutor) AvailableActions(engagement *models.Engagement, template *models.Template) []string {
	actions := []string{}
	if engagement.CurrentStep == nil {
		return actions
	}
	valid := make(map[domain.EngagementTransition]bool)
	for _, transition := range te.stateMachine.ValidTransitions(engagement.Status) {
		valid[transition] = true
	}
	if valid[domain.TransitionAdvance] {
		actions = append(actions, ActionAdvance)
		if step := template.StepByID(*engagement.CurrentStep); step != nil && step.RequiresApproval {
			actions = append(actions, ActionApprove, ActionReject)
		}
	}
	if valid[domain.TransitionCancel] {
		actions = append(actions, ActionCancel)
	}
	return actions
}

// load resolves the engagement and its template and current step by id at
// call time, never from a cache, so concurrent template edits cannot race
// invisibly with in-flight transitions.
func (te *TransitionExecutor) load(ctx context.Context, engagementID string) (*models.Engagement, *models.Template, *models.Step, error) {
	engagement, err := te.engagements.GetByID(ctx, engagementID)
	if err != nil {
		return nil, nil, nil, err
	}
	if engagement == nil {
		return nil, nil, nil, errors.NewNotFoundError("Engagement", engagementID)
	}

	template, err := te.templates.GetByID(ctx, engagement.TemplateID)
	if err != nil {
		return nil, nil, nil, err
	}
	if template == nil {
		return nil, nil, nil, errors.NewNotFoundError("Template", engagement.TemplateID)
	}

	var step *models.Step
	if engagement.CurrentStep != nil {
		step = template.StepByID(*engagement.CurrentStep)
		if step == nil && !engagement.IsTerminal() {
			return nil, nil, nil, errors.NewNotFoundError("Step", *engagement.CurrentStep)
		}
	}
	return engagement, template, step, nil
}

// validatePayload checks every non-computed field of the step, collecting
// all failures so the caller can show every error at once
func (te *TransitionExecutor) validatePayload(step *models.Step, engagement *models.Engagement, payload map[string]interface{}) (map[string]fieldschema.Value, error) {
	collected := make(map[string]fieldschema.Value)
	var failures []errors.FieldFailure

	for _, cfg := range step.Fields {
		if cfg.ReadOnly() {
			continue
		}
		value, failure := fieldschema.Validate(cfg, payload[cfg.Name])
		if failure != nil {
			failures = append(failures, errors.FieldFailure{
				Field:      failure.Field,
				Constraint: failure.Constraint,
				Message:    failure.Message,
			})
			continue
		}
		if value.Kind != "" {
			collected[cfg.Name] = value
		}
	}

	if len(failures) > 0 {
		return nil, errors.NewValidationFailedError(failures)
	}
	return collected, nil
}

// evaluateComputedFields evaluates the step's computed fields in dependency
// order over the engagement's accumulated values merged with the newly
// collected payload. A cycle or unknown dependency is a configuration error
// (InvalidTemplate), never a user-facing validation failure.
func (te *TransitionExecutor) evaluateComputedFields(template *models.Template, step *models.Step, engagement *models.Engagement, collected map[string]fieldschema.Value) error {
	prior := make(map[string]bool)
	for _, cfg := range template.FieldsBefore(step.StepOrder) {
		prior[cfg.Name] = true
	}
	sameStep := make(map[string]bool)
	for _, cfg := range step.Fields {
		sameStep[cfg.Name] = true
	}
	ordered, err := fieldschema.ComputedOrder(step.Fields, func(name string) bool {
		return sameStep[name] || prior[name]
	})
	if err != nil {
		return errors.NewInvalidTemplateError(template.ID, []string{err.Error()})
	}

	inputs := make(map[string]float64)
	for name, value := range engagement.Values {
		if value.Kind == fieldschema.KindNumber || value.Kind == fieldschema.KindComputed {
			inputs[name] = value.Number
		}
	}
	for name, value := range collected {
		if value.Kind == fieldschema.KindNumber {
			inputs[name] = value.Number
		}
	}

	var failures []errors.FieldFailure
	for _, cfg := range ordered {
		result, err := formula.Evaluate(cfg.Formula, inputs)
		if err != nil {
			switch err.(type) {
			case *formula.ForbiddenConstructError, *formula.UnsupportedOperatorError, *formula.SyntaxError:
				// Malformed configuration, not a payload problem
				return errors.NewInvalidTemplateError(template.ID, []string{fmt.Sprintf("computed field '%s': %v", cfg.Name, err)})
			default:
				failures = append(failures, errors.FieldFailure{
					Field:      cfg.Name,
					Constraint: "formula",
					Message:    err.Error(),
				})
				continue
			}
		}
		inputs[cfg.Name] = result
		collected[cfg.Name] = fieldschema.NumberValue(fieldschema.KindComputed, result)
	}

	if len(failures) > 0 {
		return errors.NewValidationFailedError(failures)
	}
	return nil
}

// checkDocuments verifies every required document tag has at least one
// attached reference, reporting all missing tags together
func (te *TransitionExecutor) checkDocuments(ctx context.Context, engagementID string, step *models.Step) error {
	var missing []string
	for _, tag := range step.RequiredDocuments {
		ok, err := te.documents.HasDocumentOfType(ctx, engagementID, tag)
		if err != nil {
			return errors.NewInternalError("document check failed", err)
		}
		if !ok {
			missing = append(missing, tag)
		}
	}
	if len(missing) > 0 {
		return errors.NewDocumentsMissingError(missing)
	}
	return nil
}

// applyApprovalGate enforces the step's approval requirement. A rejection
// is recorded in history and surfaces as ApprovalRejected with the
// engagement unchanged on the same step; resubmission stays possible.
// Returns done=true when the gate terminated the attempt.
func (te *TransitionExecutor) applyApprovalGate(
	ctx context.Context,
	engagement *models.Engagement,
	step *models.Step,
	actingUser *models.UserSession,
	request AdvanceRequest,
	collected map[string]fieldschema.Value,
	documentIDs []string,
) (bool, error) {
	if request.Decision == nil {
		return true, errors.NewApprovalRequiredError(step.Code)
	}

	holdsApproverRole := false
	for _, role := range step.ApproverRoles {
		if te.roles.HasRole(ctx, actingUser, role) {
			holdsApproverRole = true
			break
		}
	}
	if !holdsApproverRole {
		return true, errors.NewPermissionError("approve step '"+step.Code+"' of", "Engagement")
	}

	if request.Decision.Approved {
		return false, nil
	}

	decision := models.DecisionRejected
	rejection := &models.StepCompletion{
		ID:               utils.GenerateID(),
		EngagementID:     engagement.ID,
		StepID:           &step.ID,
		StepCode:         step.Code,
		Outcome:          models.OutcomeRejected,
		Values:           collected,
		DocumentIDs:      documentIDs,
		ActingUserID:     actingUser.ID,
		ApprovalDecision: &decision,
		ApproverID:       &actingUser.ID,
		Comment:          request.Decision.Comment,
		OccurredDate:     time.Now().UTC(),
	}
	// The engagement itself is untouched: same step, same version, still
	// IN_PROGRESS. Only the audit entry is written.
	if err := te.engagements.UpdateWithCompletion(ctx, engagement, engagement.Version, rejection); err != nil {
		return true, err
	}
	log.Printf("⛔ Step '%s' rejected on engagement %s by %s", step.Code, engagement.Reference, actingUser.ID)
	return true, errors.NewApprovalRejectedError(step.Code, actingUser.ID)
}

// commitAdvance merges the collected values, moves the engagement forward,
// persists engagement and audit record atomically, and hands the step's
// trigger action to the sink
func (te *TransitionExecutor) commitAdvance(
	ctx context.Context,
	engagement *models.Engagement,
	template *models.Template,
	step *models.Step,
	actingUser *models.UserSession,
	request AdvanceRequest,
	collected map[string]fieldschema.Value,
	documentIDs []string,
) (*AdvanceResult, error) {
	if engagement.Values == nil {
		engagement.Values = make(map[string]fieldschema.Value)
	}
	// A name collision between steps is a configuration error, never a
	// silent overwrite
	var collisions []string
	for name := range collected {
		if _, exists := engagement.Values[name]; exists {
			collisions = append(collisions, fmt.Sprintf("field '%s' was already collected on an earlier step", name))
		}
	}
	if len(collisions) > 0 {
		return nil, errors.NewInvalidTemplateError(template.ID, collisions)
	}
	for name, value := range collected {
		engagement.Values[name] = value
	}

	expected := engagement.Version
	now := time.Now().UTC()
	next := template.NextStep(step)
	if next != nil {
		newStatus, err := te.stateMachine.Transition(engagement.Status, domain.TransitionAdvance)
		if err != nil {
			return nil, errors.NewInvalidStateError("Engagement", engagement.ID, string(engagement.Status))
		}
		engagement.Status = newStatus
		engagement.CurrentStep = &next.ID
	} else {
		newStatus, err := te.stateMachine.Transition(engagement.Status, domain.TransitionComplete)
		if err != nil {
			return nil, errors.NewInvalidStateError("Engagement", engagement.ID, string(engagement.Status))
		}
		engagement.Status = newStatus
		engagement.CurrentStep = nil
	}
	engagement.Version++
	engagement.LastModified = now

	completion := &models.StepCompletion{
		ID:           utils.GenerateID(),
		EngagementID: engagement.ID,
		StepID:       &step.ID,
		StepCode:     step.Code,
		Outcome:      models.OutcomeCompleted,
		Values:       collected,
		DocumentIDs:  documentIDs,
		ActingUserID: actingUser.ID,
		OccurredDate: now,
	}
	if step.RequiresApproval && request.Decision != nil {
		decision := models.DecisionApproved
		completion.ApprovalDecision = &decision
		completion.ApproverID = &actingUser.ID
		completion.Comment = request.Decision.Comment
	}

	if err := te.engagements.UpdateWithCompletion(ctx, engagement, expected, completion); err != nil {
		return nil, err
	}

	if step.TriggerAction != nil && *step.TriggerAction != "" {
		// Fire-and-notify: a sink failure never rolls back the transition
		if err := te.triggers.Notify(ctx, *step.TriggerAction, engagement.ID); err != nil {
			log.Printf("⚠️ Trigger action '%s' notification failed for %s: %v", *step.TriggerAction, engagement.ID, err)
		}
	}

	if engagement.Status == models.EngagementStatusCompleted {
		log.Printf("✅ Engagement completed: %s", engagement.Reference)
	} else {
		log.Printf("▶️ Engagement %s advanced to step '%s'", engagement.Reference, next.Code)
	}

	return &AdvanceResult{
		Engagement:       engagement,
		AvailableActions: te.AvailableActions(engagement, template),
	}, nil
}

func stepIDOrNil(step *models.Step) *string {
	if step == nil {
		return nil
	}
	return &step.ID
}

func stepCodeOrEmpty(step *models.Step) string {
	if step == nil {
		return ""
	}
	return step.Code
}
