package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tradedesk/backoffice/pkg/errors"
)

// relationTarget maps a relation field's target name to the table and
// label column used to resolve a display label. The map is a closed
// allow-list; target names never reach SQL text from user input.
type relationTarget struct {
	table       string
	labelColumn string
}

var relationTargets = map[string]relationTarget{
	"client":       {table: "td_client", labelColumn: "name"},
	"bank":         {table: "td_bank", labelColumn: "name"},
	"counterparty": {table: "td_counterparty", labelColumn: "name"},
	"user":         {table: "wf_user", labelColumn: "name"},
}

// RelationResolver resolves relation field values to display labels against
// the registry tables
type RelationResolver struct {
	db *sql.DB
}

// NewRelationResolver creates a new RelationResolver
func NewRelationResolver(db *sql.DB) *RelationResolver {
	return &RelationResolver{db: db}
}

// KnownTarget reports whether the target name is in the allow-list
func KnownTarget(target string) bool {
	_, ok := relationTargets[target]
	return ok
}

// Resolve returns the display label of the referenced entity. An unknown
// target or a missing row yields NotFound.
func (r *RelationResolver) Resolve(ctx context.Context, target, id string) (string, error) {
	if !KnownTarget(target) {
		return "", errors.NewNotFoundError("relation target", target)
	}
	t := relationTargets[target]

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", t.labelColumn, t.table)
	var label string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&label)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", errors.NewNotFoundError(target, id)
		}
		return "", err
	}
	return label, nil
}
