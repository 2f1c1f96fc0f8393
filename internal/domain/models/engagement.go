package models

import (
	"time"

	"github.com/tradedesk/backoffice/pkg/fieldschema"
)

// EngagementStatus is the overall lifecycle status of an engagement
type EngagementStatus string

const (
	EngagementStatusInProgress EngagementStatus = "IN_PROGRESS"
	EngagementStatusCompleted  EngagementStatus = "COMPLETED"
	EngagementStatusCancelled  EngagementStatus = "CANCELLED"
)

// Engagement is one concrete financial instrument in flight against a
// template. Values accumulate append-only across steps: later steps may read
// earlier values but never overwrite them. CurrentStepID is nil once the
// engagement reaches a terminal status. Version is the optimistic-lock
// counter; every successful transition increments it, and a persist
// conditioned on a stale version fails with ConcurrentModification.
type Engagement struct {
	ID           string                       `json:"id"`
	Reference    string                       `json:"reference"`
	TemplateID   string                       `json:"template_id"`
	CurrentStep  *string                      `json:"current_step_id,omitempty"`
	Status       EngagementStatus             `json:"status"`
	Values       map[string]fieldschema.Value `json:"values"`
	Version      int64                        `json:"version"`
	CreatedByID  *string                      `json:"created_by_id,omitempty"`
	CreatedDate  time.Time                    `json:"created_date"`
	LastModified time.Time                    `json:"last_modified"`
}

// IsTerminal reports whether the engagement reached a final status
func (e *Engagement) IsTerminal() bool {
	return e.Status == EngagementStatusCompleted || e.Status == EngagementStatusCancelled
}
