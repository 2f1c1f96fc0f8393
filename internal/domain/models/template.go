package models

import (
	"time"

	"github.com/tradedesk/backoffice/pkg/fieldschema"
)

// Template is an administrator-defined lifecycle blueprint for one
// instrument type (Letter of Credit, advance, documentary remittance, ...).
// Steps are ordered by StepOrder, contiguous from zero with no duplicates.
// The code is immutable once any engagement references the template, and a
// referenced template is never physically deleted, only deactivated.
type Template struct {
	ID            string               `json:"id"`
	Code          string               `json:"code"`
	Label         string               `json:"label"`
	Description   *string              `json:"description,omitempty"`
	Active        bool                 `json:"active"`
	DisplayOrder  int                  `json:"display_order"`
	InitialFields []fieldschema.Config `json:"initial_fields,omitempty"`
	Steps         []Step               `json:"steps"`
	Version       int64                `json:"version"`
	CreatedDate   time.Time            `json:"created_date"`
	LastModified  time.Time            `json:"last_modified"`
}

// Step is one ordered stage of a template's lifecycle
type Step struct {
	ID                string               `json:"id"`
	TemplateID        string               `json:"template_id"`
	StepOrder         int                  `json:"step_order"`
	Code              string               `json:"code"`
	Label             string               `json:"label"`
	Fields            []fieldschema.Config `json:"fields,omitempty"`
	RequiredDocuments []string             `json:"required_documents,omitempty"`
	RequiresApproval  bool                 `json:"requires_approval"`
	ApproverRoles     []string             `json:"approver_roles,omitempty"`
	ExecutorRoles     []string             `json:"executor_roles,omitempty"`
	TriggerAction     *string              `json:"trigger_action,omitempty"`
}

// FirstStep returns the step with the lowest order, or nil for an empty
// template
func (t *Template) FirstStep() *Step {
	var first *Step
	for i := range t.Steps {
		if first == nil || t.Steps[i].StepOrder < first.StepOrder {
			first = &t.Steps[i]
		}
	}
	return first
}

// StepByID returns the step with the given id, or nil
func (t *Template) StepByID(stepID string) *Step {
	for i := range t.Steps {
		if t.Steps[i].ID == stepID {
			return &t.Steps[i]
		}
	}
	return nil
}

// NextStep returns the step ordered immediately after the given one, or nil
// when it is the last. Forward one-step progression is the only legal
// transition; there is no backward or skip transition.
func (t *Template) NextStep(current *Step) *Step {
	var next *Step
	for i := range t.Steps {
		candidate := &t.Steps[i]
		if candidate.StepOrder <= current.StepOrder {
			continue
		}
		if next == nil || candidate.StepOrder < next.StepOrder {
			next = candidate
		}
	}
	return next
}

// FieldsBefore collects the field configs of every step strictly before the
// given order, plus the template's initiating form. This is the resolution
// scope for "already collected on a prior step" dependency checks.
func (t *Template) FieldsBefore(stepOrder int) []fieldschema.Config {
	fields := make([]fieldschema.Config, 0, len(t.InitialFields))
	fields = append(fields, t.InitialFields...)
	for i := range t.Steps {
		if t.Steps[i].StepOrder < stepOrder {
			fields = append(fields, t.Steps[i].Fields...)
		}
	}
	return fields
}
