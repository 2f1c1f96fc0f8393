package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/tradedesk/backoffice/internal/domain/models"
	"github.com/tradedesk/backoffice/internal/domain/ports"
	"github.com/tradedesk/backoffice/pkg/errors"
	"github.com/tradedesk/backoffice/pkg/fieldschema"
	"github.com/tradedesk/backoffice/pkg/formula"
	"github.com/tradedesk/backoffice/pkg/utils"
)

// TemplateService owns template and step definitions. Every mutation
// re-validates the whole template's structural invariants against a
// consistent snapshot before committing; a violation aborts the operation
// with no partial writes.
type TemplateService struct {
	store ports.TemplateStore
}

// NewTemplateService creates a new TemplateService
func NewTemplateService(store ports.TemplateStore) *TemplateService {
	return &TemplateService{store: store}
}

// CreateTemplate validates and persists a new template definition. Steps
// may be supplied inline; ids and the initial version are assigned here.
func (s *TemplateService) CreateTemplate(ctx context.Context, template *models.Template) error {
	if template.Code == "" {
		return errors.NewValidationError("code", "template code is required")
	}
	if template.Label == "" {
		return errors.NewValidationError("label", "template label is required")
	}
	if existing, err := s.store.GetByCode(ctx, template.Code); err != nil {
		return err
	} else if existing != nil {
		return errors.NewConflictError("Template", "code", template.Code)
	}

	template.ID = utils.GenerateID()
	template.Active = true
	template.Version = 1
	now := time.Now().UTC()
	template.CreatedDate = now
	template.LastModified = now
	normalizeSteps(template)

	if err := s.validateTemplate(template); err != nil {
		return err
	}
	if err := s.store.Insert(ctx, template); err != nil {
		return err
	}
	log.Printf("✅ Template created: %s (%s) with %d step(s)", template.Code, template.ID, len(template.Steps))
	return nil
}

// AddStep appends a step to the template at the next order index. The order
// assignment is atomic with respect to concurrent additions: the update is
// conditioned on the template version observed at load, so two racing calls
// cannot claim the same index. The loser gets ConcurrentModification and
// may retry against fresh state.
func (s *TemplateService) AddStep(ctx context.Context, templateID string, step models.Step) (*models.Template, error) {
	template, err := s.requireTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	step.ID = utils.GenerateID()
	step.TemplateID = template.ID
	nextOrder := 0
	for _, existing := range template.Steps {
		if existing.StepOrder >= nextOrder {
			nextOrder = existing.StepOrder + 1
		}
	}
	step.StepOrder = nextOrder
	template.Steps = append(template.Steps, step)

	if err := s.commit(ctx, template); err != nil {
		return nil, err
	}
	log.Printf("✅ Step '%s' added to template %s at order %d", step.Code, template.Code, step.StepOrder)
	return template, nil
}

// TemplateUpdate carries the editable header attributes of a template
type TemplateUpdate struct {
	Code         string  `json:"code"`
	Label        string  `json:"label"`
	Description  *string `json:"description"`
	DisplayOrder int     `json:"display_order"`
}

// UpdateTemplate edits the template header. The code is immutable once any
// engagement references the template; label, description and display order
// stay editable.
func (s *TemplateService) UpdateTemplate(ctx context.Context, templateID string, update TemplateUpdate) (*models.Template, error) {
	template, err := s.requireTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if update.Code == "" {
		return nil, errors.NewValidationError("code", "template code is required")
	}
	if update.Label == "" {
		return nil, errors.NewValidationError("label", "template label is required")
	}

	if update.Code != template.Code {
		referenced, err := s.store.HasEngagements(ctx, template.ID)
		if err != nil {
			return nil, err
		}
		if referenced {
			return nil, errors.NewInvalidStateError("Template", template.ID, "referenced by engagements")
		}
		if existing, err := s.store.GetByCode(ctx, update.Code); err != nil {
			return nil, err
		} else if existing != nil {
			return nil, errors.NewConflictError("Template", "code", update.Code)
		}
	}

	template.Code = update.Code
	template.Label = update.Label
	template.Description = update.Description
	template.DisplayOrder = update.DisplayOrder

	if err := s.commit(ctx, template); err != nil {
		return nil, err
	}
	log.Printf("✅ Template updated: %s (%s)", template.Code, template.ID)
	return template, nil
}

// UpdateStep replaces the definition of one step, keeping its id and order
func (s *TemplateService) UpdateStep(ctx context.Context, templateID, stepID string, updated models.Step) (*models.Template, error) {
	template, err := s.requireTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	existing := template.StepByID(stepID)
	if existing == nil {
		return nil, errors.NewNotFoundError("Step", stepID)
	}
	updated.ID = existing.ID
	updated.TemplateID = template.ID
	updated.StepOrder = existing.StepOrder
	*existing = updated

	if err := s.commit(ctx, template); err != nil {
		return nil, err
	}
	return template, nil
}

// ReorderSteps rearranges the template's steps to match the given id
// sequence. Every existing step must appear exactly once.
func (s *TemplateService) ReorderSteps(ctx context.Context, templateID string, orderedStepIDs []string) (*models.Template, error) {
	template, err := s.requireTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if len(orderedStepIDs) != len(template.Steps) {
		return nil, errors.NewValidationError("steps", fmt.Sprintf("expected %d step ids, got %d", len(template.Steps), len(orderedStepIDs)))
	}

	seen := make(map[string]bool, len(orderedStepIDs))
	for position, stepID := range orderedStepIDs {
		if seen[stepID] {
			return nil, errors.NewValidationError("steps", fmt.Sprintf("step id '%s' listed twice", stepID))
		}
		seen[stepID] = true
		step := template.StepByID(stepID)
		if step == nil {
			return nil, errors.NewNotFoundError("Step", stepID)
		}
		step.StepOrder = position
	}
	sort.SliceStable(template.Steps, func(i, j int) bool {
		return template.Steps[i].StepOrder < template.Steps[j].StepOrder
	})

	if err := s.commit(ctx, template); err != nil {
		return nil, err
	}
	return template, nil
}

// DeactivateTemplate soft-deactivates the template. Referenced templates
// are never physically deleted; new engagements simply can no longer be
// created against it.
func (s *TemplateService) DeactivateTemplate(ctx context.Context, templateID string) error {
	template, err := s.requireTemplate(ctx, templateID)
	if err != nil {
		return err
	}
	if !template.Active {
		return nil
	}
	template.Active = false
	if err := s.commit(ctx, template); err != nil {
		return err
	}
	log.Printf("🚫 Template deactivated: %s", template.Code)
	return nil
}

// GetTemplate loads one template with its steps
func (s *TemplateService) GetTemplate(ctx context.Context, templateID string) (*models.Template, error) {
	return s.requireTemplate(ctx, templateID)
}

// GetTemplateByCode loads one template by its unique code
func (s *TemplateService) GetTemplateByCode(ctx context.Context, code string) (*models.Template, error) {
	template, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, errors.NewNotFoundError("Template", code)
	}
	return template, nil
}

// ListTemplates returns every template ordered by display order
func (s *TemplateService) ListTemplates(ctx context.Context) ([]*models.Template, error) {
	templates, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(templates, func(i, j int) bool {
		return templates[i].DisplayOrder < templates[j].DisplayOrder
	})
	return templates, nil
}

func (s *TemplateService) requireTemplate(ctx context.Context, templateID string) (*models.Template, error) {
	template, err := s.store.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, errors.NewNotFoundError("Template", templateID)
	}
	return template, nil
}

// commit re-validates the whole template and persists it under the version
// observed at load
func (s *TemplateService) commit(ctx context.Context, template *models.Template) error {
	if err := s.validateTemplate(template); err != nil {
		return err
	}
	expected := template.Version
	template.Version++
	template.LastModified = time.Now().UTC()
	if err := s.store.Update(ctx, template, expected); err != nil {
		template.Version = expected
		return err
	}
	return nil
}

func normalizeSteps(template *models.Template) {
	sort.SliceStable(template.Steps, func(i, j int) bool {
		return template.Steps[i].StepOrder < template.Steps[j].StepOrder
	})
	for i := range template.Steps {
		step := &template.Steps[i]
		if step.ID == "" {
			step.ID = utils.GenerateID()
		}
		step.TemplateID = template.ID
		step.StepOrder = i
	}
}

// validateTemplate checks every structural invariant of the template:
// contiguous unique step ordering, unique step codes, the approver-role
// requirement on approval steps, field name uniqueness, and computed-field
// formula integrity (parseable, declared dependencies consistent with the
// formula text, resolvable on the same or a prior step, acyclic).
func (s *TemplateService) validateTemplate(template *models.Template) error {
	var problems []string

	orders := make(map[int]string, len(template.Steps))
	codes := make(map[string]bool, len(template.Steps))
	for i := range template.Steps {
		step := &template.Steps[i]
		if step.Code == "" {
			problems = append(problems, fmt.Sprintf("step at order %d has no code", step.StepOrder))
		}
		if other, dup := orders[step.StepOrder]; dup {
			problems = append(problems, fmt.Sprintf("steps '%s' and '%s' share order %d", other, step.Code, step.StepOrder))
		}
		orders[step.StepOrder] = step.Code
		if codes[step.Code] {
			problems = append(problems, fmt.Sprintf("duplicate step code '%s'", step.Code))
		}
		codes[step.Code] = true
		if step.RequiresApproval && len(step.ApproverRoles) == 0 {
			problems = append(problems, fmt.Sprintf("step '%s' requires approval but has no approver roles", step.Code))
		}
	}
	for expected := 0; expected < len(template.Steps); expected++ {
		if _, ok := orders[expected]; !ok {
			problems = append(problems, fmt.Sprintf("step order is not contiguous: missing order %d", expected))
			break
		}
	}

	problems = append(problems, validateFieldConfigs("template", template.InitialFields, nil)...)
	for i := range template.Steps {
		step := &template.Steps[i]
		prior := template.FieldsBefore(step.StepOrder)
		problems = append(problems, validateFieldConfigs(fmt.Sprintf("step '%s'", step.Code), step.Fields, prior)...)
	}

	if len(problems) > 0 {
		return errors.NewInvalidTemplateError(template.ID, problems)
	}
	return nil
}

func validateFieldConfigs(scope string, fields []fieldschema.Config, prior []fieldschema.Config) []string {
	var problems []string

	priorNames := make(map[string]bool, len(prior))
	for _, f := range prior {
		priorNames[f.Name] = true
	}

	names := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			problems = append(problems, fmt.Sprintf("%s has a field with no name", scope))
			continue
		}
		if names[f.Name] {
			problems = append(problems, fmt.Sprintf("%s declares field '%s' twice", scope, f.Name))
		}
		names[f.Name] = true
		// Values accumulate across steps without overwrites, so a name
		// re-declared later would collide at execution time. Reject it at
		// authoring time instead.
		if priorNames[f.Name] {
			problems = append(problems, fmt.Sprintf("%s field '%s' is already declared on an earlier step", scope, f.Name))
		}
		if !fieldschema.IsKnownKind(f.Kind) {
			problems = append(problems, fmt.Sprintf("%s field '%s' has unknown kind '%s'", scope, f.Name, f.Kind))
		}
		if f.Kind == fieldschema.KindSelect && len(f.Options) == 0 {
			problems = append(problems, fmt.Sprintf("%s select field '%s' has no options", scope, f.Name))
		}
		if f.Kind == fieldschema.KindRelation && f.RelationTarget == "" {
			problems = append(problems, fmt.Sprintf("%s relation field '%s' has no target", scope, f.Name))
		}
		if f.Kind == fieldschema.KindComputed {
			problems = append(problems, validateComputedField(scope, f)...)
		}
	}

	available := func(name string) bool {
		if names[name] {
			return true
		}
		return priorNames[name]
	}
	if _, err := fieldschema.ComputedOrder(fields, available); err != nil {
		problems = append(problems, fmt.Sprintf("%s: %v", scope, err))
	}
	return problems
}

func validateComputedField(scope string, f fieldschema.Config) []string {
	var problems []string
	if f.Formula == "" {
		return append(problems, fmt.Sprintf("%s computed field '%s' has no formula", scope, f.Name))
	}
	parsed, err := formula.Parse(f.Formula)
	if err != nil {
		msg := fmt.Sprintf("%s computed field '%s': %v", scope, f.Name, err)
		if forbidden, ok := err.(*formula.ForbiddenConstructError); ok && strings.HasSuffix(forbidden.Construct, "(") {
			msg += fmt.Sprintf(" (available functions: %s)", strings.Join(formula.FunctionNames(), ", "))
		}
		return append(problems, msg)
	}
	declared := make(map[string]bool, len(f.DependsOn))
	for _, dep := range f.DependsOn {
		declared[dep] = true
	}
	for _, ident := range parsed.Identifiers() {
		if !declared[ident] {
			problems = append(problems, fmt.Sprintf("%s computed field '%s' uses '%s' in formula '%s' without declaring it as a dependency", scope, f.Name, ident, parsed.Expression()))
		}
	}
	return problems
}
