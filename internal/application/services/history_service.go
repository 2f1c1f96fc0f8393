package services

import (
	"context"
	"iter"

	"github.com/tradedesk/backoffice/internal/domain/models"
	"github.com/tradedesk/backoffice/internal/domain/ports"
	"github.com/tradedesk/backoffice/pkg/errors"
)

// HistoryService is the read path of the audit trail. Completions are
// written only as part of transition persistence; this service never
// mutates anything.
type HistoryService struct {
	history     ports.HistoryStore
	engagements ports.EngagementStore
	templates   ports.TemplateStore
}

// NewHistoryService creates a new HistoryService
func NewHistoryService(history ports.HistoryStore, engagements ports.EngagementStore, templates ports.TemplateStore) *HistoryService {
	return &HistoryService{history: history, engagements: engagements, templates: templates}
}

// AuditTrail is the full reconstruction of what happened to an engagement
type AuditTrail struct {
	Engagement  *models.Engagement       `json:"engagement"`
	Completions []*models.StepCompletion `json:"completions"`
	StepLabels  map[string]string        `json:"step_labels,omitempty"`
}

// ListCompletions returns the engagement's completions ordered by
// occurrence time as a lazy, restartable sequence: each range re-reads from
// the store, and iteration may be abandoned at any point.
func (s *HistoryService) ListCompletions(ctx context.Context, engagementID string) iter.Seq2[*models.StepCompletion, error] {
	return func(yield func(*models.StepCompletion, error) bool) {
		completions, err := s.history.ListByEngagement(ctx, engagementID)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, completion := range completions {
			if !yield(completion, nil) {
				return
			}
		}
	}
}

// Get reconstructs the full audit trail for display, resolving step ids to
// labels through the engagement's template
func (s *HistoryService) Get(ctx context.Context, engagementID string) (*AuditTrail, error) {
	engagement, err := s.engagements.GetByID(ctx, engagementID)
	if err != nil {
		return nil, err
	}
	if engagement == nil {
		return nil, errors.NewNotFoundError("Engagement", engagementID)
	}

	completions, err := s.history.ListByEngagement(ctx, engagementID)
	if err != nil {
		return nil, err
	}

	trail := &AuditTrail{Engagement: engagement, Completions: completions}
	if template, err := s.templates.GetByID(ctx, engagement.TemplateID); err == nil && template != nil {
		labels := make(map[string]string, len(template.Steps))
		for i := range template.Steps {
			labels[template.Steps[i].ID] = template.Steps[i].Label
		}
		trail.StepLabels = labels
	}
	return trail, nil
}
