package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tradedesk/backoffice/internal/domain/models"
	"github.com/tradedesk/backoffice/pkg/errors"
)

// EngagementRepository persists engagement lifecycle records. Every
// transition goes through UpdateWithCompletion so the mutable record and
// its audit entry move together or not at all.
type EngagementRepository struct {
	db *sql.DB
	tm *TransactionManager
}

// NewEngagementRepository creates a new EngagementRepository
func NewEngagementRepository(db *sql.DB, tm *TransactionManager) *EngagementRepository {
	return &EngagementRepository{db: db, tm: tm}
}

// Insert stores a newly initiated engagement
func (r *EngagementRepository) Insert(ctx context.Context, engagement *models.Engagement) error {
	values, err := marshalJSONColumn(engagement.Values)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO wf_engagement (id, reference, template_id, current_step_id, status, field_values, version, created_by_id, created_date, last_modified_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
	`
	_, err = r.db.ExecContext(ctx, query,
		engagement.ID, engagement.Reference, engagement.TemplateID,
		nullableString(engagement.CurrentStep), string(engagement.Status),
		values, engagement.Version, nullableString(engagement.CreatedByID))
	if err != nil {
		return fmt.Errorf("failed to insert engagement: %w", err)
	}
	return nil
}

// GetByID retrieves one engagement
func (r *EngagementRepository) GetByID(ctx context.Context, id string) (*models.Engagement, error) {
	query := `
		SELECT id, reference, template_id, current_step_id, status, field_values, version, created_by_id, created_date, last_modified_date
		FROM wf_engagement
		WHERE id = ?
	`

	var e models.Engagement
	var currentStep, createdBy sql.NullString
	var values []byte

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.Reference, &e.TemplateID, &currentStep, &e.Status,
		&values, &e.Version, &createdBy, &e.CreatedDate, &e.LastModified)
	if err != nil {
		if err == sql.ErrNoRows {
			// Absence is not an error at this layer; services decide
			return nil, nil
		}
		return nil, err
	}

	e.CurrentStep = stringPtr(currentStep)
	e.CreatedByID = stringPtr(createdBy)
	if e.Values, err = unmarshalValues(values); err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateWithCompletion persists the engagement mutation and appends the
// audit record in one transaction. The UPDATE is conditioned on the version
// the caller loaded; when another transition committed in between, zero rows
// match, nothing is written, and ConcurrentModification is returned. Under
// concurrent transitions exactly one caller wins. Deadlocks between the
// UPDATE and the completion INSERT are retried; a version conflict is not a
// deadlock and surfaces immediately.
func (r *EngagementRepository) UpdateWithCompletion(ctx context.Context, engagement *models.Engagement, expectedVersion int64, completion *models.StepCompletion) error {
	return r.tm.WithRetry(func(tx *sql.Tx) error {
		values, err := marshalJSONColumn(engagement.Values)
		if err != nil {
			return err
		}

		query := `
			UPDATE wf_engagement
			SET current_step_id = ?, status = ?, field_values = ?, version = ?, last_modified_date = NOW()
			WHERE id = ? AND version = ?
		`
		result, err := tx.ExecContext(ctx, query,
			nullableString(engagement.CurrentStep), string(engagement.Status),
			values, engagement.Version,
			engagement.ID, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to update engagement: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			var exists bool
			check := `SELECT EXISTS(SELECT 1 FROM wf_engagement WHERE id = ?)`
			if err := tx.QueryRowContext(ctx, check, engagement.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return errors.NewNotFoundError("engagement", engagement.ID)
			}
			return errors.NewConcurrentModificationError("engagement", engagement.ID)
		}

		if completion != nil {
			return appendCompletion(ctx, tx, completion)
		}
		return nil
	}, 3)
}

// ListStaleInProgress returns in-progress engagements whose last
// modification predates the cutoff, for the reminder sweep
func (r *EngagementRepository) ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]*models.Engagement, error) {
	query := `
		SELECT id, reference, template_id, current_step_id, status, field_values, version, created_by_id, created_date, last_modified_date
		FROM wf_engagement
		WHERE status = ? AND last_modified_date < ?
		ORDER BY last_modified_date ASC
	`
	rows, err := r.db.QueryContext(ctx, query, string(models.EngagementStatusInProgress), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale engagements: %w", err)
	}
	defer rows.Close()

	engagements := make([]*models.Engagement, 0)
	for rows.Next() {
		var e models.Engagement
		var currentStep, createdBy sql.NullString
		var values []byte

		err := rows.Scan(&e.ID, &e.Reference, &e.TemplateID, &currentStep, &e.Status,
			&values, &e.Version, &createdBy, &e.CreatedDate, &e.LastModified)
		if err != nil {
			return nil, err
		}

		e.CurrentStep = stringPtr(currentStep)
		e.CreatedByID = stringPtr(createdBy)
		if e.Values, err = unmarshalValues(values); err != nil {
			return nil, err
		}
		engagements = append(engagements, &e)
	}
	return engagements, rows.Err()
}
