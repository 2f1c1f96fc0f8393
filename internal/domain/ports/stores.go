package ports

import (
	"context"
	"time"

	"github.com/tradedesk/backoffice/internal/domain/models"
)

// TemplateStore owns template and step definitions. Update replaces the
// whole definition under an optimistic version check so each mutation
// commits against a consistent snapshot; a stale expectedVersion yields
// ConcurrentModification. Lookups return nil with no error when the row
// is absent; callers decide whether that is NotFound.
type TemplateStore interface {
	Insert(ctx context.Context, template *models.Template) error
	Update(ctx context.Context, template *models.Template, expectedVersion int64) error
	GetByID(ctx context.Context, id string) (*models.Template, error)
	GetByCode(ctx context.Context, code string) (*models.Template, error)
	List(ctx context.Context) ([]*models.Template, error)

	// HasEngagements reports whether any engagement references the template
	HasEngagements(ctx context.Context, templateID string) (bool, error)
}

// EngagementStore owns the mutable lifecycle record. UpdateWithCompletion
// persists the engagement mutation and appends the completion atomically in
// one transaction, conditioned on the version being unchanged since load;
// a mismatch yields ConcurrentModification and writes nothing.
type EngagementStore interface {
	Insert(ctx context.Context, engagement *models.Engagement) error
	GetByID(ctx context.Context, id string) (*models.Engagement, error)
	UpdateWithCompletion(ctx context.Context, engagement *models.Engagement, expectedVersion int64, completion *models.StepCompletion) error

	// ListStaleInProgress returns in-progress engagements not modified
	// since the cutoff, for the reminder sweep
	ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]*models.Engagement, error)
}

// HistoryStore is the read path of the append-only audit trail. Writes
// happen exclusively inside EngagementStore.UpdateWithCompletion so a
// completion can never exist without its transition (and vice versa); no
// update or delete exists anywhere.
type HistoryStore interface {
	ListByEngagement(ctx context.Context, engagementID string) ([]*models.StepCompletion, error)
}

// UserStore resolves credentials at login. User administration is outside
// this core.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.UserSession, string, error)
}
