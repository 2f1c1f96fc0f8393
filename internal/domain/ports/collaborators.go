package ports

import (
	"context"

	"github.com/tradedesk/backoffice/internal/domain/models"
)

// RoleChecker answers whether the acting user holds a role. Role storage and
// assignment live outside this core; only the check is consumed here.
type RoleChecker interface {
	HasRole(ctx context.Context, user *models.UserSession, roleID string) bool
}

// DocumentRegistry answers document-requirement checks and lists the
// references attached to an engagement. Storage and retrieval of the files
// themselves are a separate system's concern.
type DocumentRegistry interface {
	// HasDocumentOfType reports whether at least one document with the
	// given type tag is attached to the engagement
	HasDocumentOfType(ctx context.Context, engagementID, documentTypeTag string) (bool, error)

	// DocumentIDs lists the ids of every document attached to the
	// engagement, for the audit record
	DocumentIDs(ctx context.Context, engagementID string) ([]string, error)
}

// RelationResolver resolves a relation field's id to a display label. Used
// only for presentation, never for transition correctness.
type RelationResolver interface {
	Resolve(ctx context.Context, relationTarget, id string) (string, error)
}

// TriggerSink receives trigger-action signals emitted on successful step
// completion. Fire-and-notify: the executor neither blocks on nor rolls
// back for the outcome.
type TriggerSink interface {
	Notify(ctx context.Context, actionTag, engagementID string) error
}
