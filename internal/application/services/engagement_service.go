package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tradedesk/backoffice/internal/domain/models"
	"github.com/tradedesk/backoffice/internal/domain/ports"
	"github.com/tradedesk/backoffice/pkg/errors"
	"github.com/tradedesk/backoffice/pkg/fieldschema"
	"github.com/tradedesk/backoffice/pkg/formula"
	"github.com/tradedesk/backoffice/pkg/utils"
)

// EngagementService creates engagements and serves their status view.
// Transitions are the TransitionExecutor's job; nothing here mutates an
// engagement past creation.
type EngagementService struct {
	templates   ports.TemplateStore
	engagements ports.EngagementStore
	relations   ports.RelationResolver
	executor    *TransitionExecutor
}

// NewEngagementService creates a new EngagementService
func NewEngagementService(
	templates ports.TemplateStore,
	engagements ports.EngagementStore,
	relations ports.RelationResolver,
	executor *TransitionExecutor,
) *EngagementService {
	return &EngagementService{
		templates:   templates,
		engagements: engagements,
		relations:   relations,
		executor:    executor,
	}
}

// StatusView is the presentation of an engagement's current position
type StatusView struct {
	Engagement       *models.Engagement     `json:"engagement"`
	CurrentStep      *models.Step           `json:"current_step,omitempty"`
	AvailableActions []string               `json:"available_actions"`
	RelationLabels   map[string]string      `json:"relation_labels,omitempty"`
	Values           map[string]interface{} `json:"values"`
}

// CreateEngagement initiates a new instrument against an active template.
// The initiating form's fields are validated (all failures collected) and
// its computed fields evaluated; the engagement starts at the template's
// first step.
func (s *EngagementService) CreateEngagement(ctx context.Context, templateID string, initialPayload map[string]interface{}, actingUser *models.UserSession) (*models.Engagement, error) {
	template, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, errors.NewNotFoundError("Template", templateID)
	}
	if !template.Active {
		return nil, errors.NewInvalidStateError("Template", template.Code, "inactive")
	}
	first := template.FirstStep()
	if first == nil {
		return nil, errors.NewInvalidTemplateError(template.ID, []string{"template has no steps"})
	}

	values, err := s.validateInitialForm(template, initialPayload)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	engagement := &models.Engagement{
		ID:           utils.GenerateID(),
		Reference:    newReference(template.Code, now),
		TemplateID:   template.ID,
		CurrentStep:  &first.ID,
		Status:       models.EngagementStatusInProgress,
		Values:       values,
		Version:      1,
		CreatedDate:  now,
		LastModified: now,
	}
	if actingUser != nil {
		engagement.CreatedByID = &actingUser.ID
	}

	if err := s.engagements.Insert(ctx, engagement); err != nil {
		return nil, err
	}
	log.Printf("✅ Engagement created: %s on template %s at step '%s'", engagement.Reference, template.Code, first.Code)
	return engagement, nil
}

// GetStatus resolves the engagement's current step and available actions.
// Relation labels are resolved best-effort for display; a resolver failure
// never fails the status call.
func (s *EngagementService) GetStatus(ctx context.Context, engagementID string) (*StatusView, error) {
	engagement, err := s.engagements.GetByID(ctx, engagementID)
	if err != nil {
		return nil, err
	}
	if engagement == nil {
		return nil, errors.NewNotFoundError("Engagement", engagementID)
	}
	template, err := s.templates.GetByID(ctx, engagement.TemplateID)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, errors.NewNotFoundError("Template", engagement.TemplateID)
	}

	view := &StatusView{
		Engagement:       engagement,
		AvailableActions: s.executor.AvailableActions(engagement, template),
		Values:           make(map[string]interface{}, len(engagement.Values)),
	}
	for name, value := range engagement.Values {
		view.Values[name] = value.Raw()
	}
	if engagement.CurrentStep != nil {
		view.CurrentStep = template.StepByID(*engagement.CurrentStep)
	}
	view.RelationLabels = s.resolveRelationLabels(ctx, template, engagement)
	return view, nil
}

func (s *EngagementService) resolveRelationLabels(ctx context.Context, template *models.Template, engagement *models.Engagement) map[string]string {
	if s.relations == nil {
		return nil
	}
	labels := make(map[string]string)
	configs := template.FieldsBefore(int(^uint(0) >> 1)) // every step
	for _, cfg := range configs {
		if cfg.Kind != fieldschema.KindRelation {
			continue
		}
		value, ok := engagement.Values[cfg.Name]
		if !ok || value.Text == "" {
			continue
		}
		label, err := s.relations.Resolve(ctx, cfg.RelationTarget, value.Text)
		if err != nil {
			continue
		}
		labels[cfg.Name] = label
	}
	if len(labels) == 0 {
		return nil
	}
	return labels
}

// validateInitialForm mirrors the executor's payload handling for the
// template-level initiating form
func (s *EngagementService) validateInitialForm(template *models.Template, payload map[string]interface{}) (map[string]fieldschema.Value, error) {
	values := make(map[string]fieldschema.Value)
	var failures []errors.FieldFailure

	for _, cfg := range template.InitialFields {
		if cfg.ReadOnly() {
			continue
		}
		value, failure := fieldschema.Validate(cfg, payload[cfg.Name])
		if failure != nil {
			failures = append(failures, errors.FieldFailure{Field: failure.Field, Constraint: failure.Constraint, Message: failure.Message})
			continue
		}
		if value.Kind != "" {
			values[cfg.Name] = value
		}
	}
	if len(failures) > 0 {
		return nil, errors.NewValidationFailedError(failures)
	}

	names := make(map[string]bool, len(template.InitialFields))
	for _, cfg := range template.InitialFields {
		names[cfg.Name] = true
	}
	ordered, err := fieldschema.ComputedOrder(template.InitialFields, func(name string) bool { return names[name] })
	if err != nil {
		return nil, errors.NewInvalidTemplateError(template.ID, []string{err.Error()})
	}
	inputs := make(map[string]float64)
	for name, value := range values {
		if value.Kind == fieldschema.KindNumber {
			inputs[name] = value.Number
		}
	}
	for _, cfg := range ordered {
		result, err := formula.Evaluate(cfg.Formula, inputs)
		if err != nil {
			failures = append(failures, errors.FieldFailure{Field: cfg.Name, Constraint: "formula", Message: err.Error()})
			continue
		}
		inputs[cfg.Name] = result
		values[cfg.Name] = fieldschema.NumberValue(fieldschema.KindComputed, result)
	}
	if len(failures) > 0 {
		return nil, errors.NewValidationFailedError(failures)
	}
	return values, nil
}

// newReference builds a human-readable engagement reference like
// LC-2026-4F2A9C
func newReference(templateCode string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(utils.GenerateID(), "-", ""))
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	return fmt.Sprintf("%s-%d-%s", templateCode, now.Year(), suffix)
}
