package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tradedesk/backoffice/pkg/utils"
)

// TriggerEvent is a persisted trigger-action notification awaiting delivery
type TriggerEvent struct {
	ID               string
	ActionTag        string
	EngagementID     string
	Status           string
	RetryCount       int
	ErrorMessage     string
	CreatedDate      time.Time
	ProcessedDate    sql.NullTime
	LastModifiedDate time.Time
}

// TriggerOutboxRepository handles database operations for the trigger
// outbox pattern
type TriggerOutboxRepository struct {
	db *sql.DB
}

// NewTriggerOutboxRepository creates a new TriggerOutboxRepository
func NewTriggerOutboxRepository(db *sql.DB) *TriggerOutboxRepository {
	return &TriggerOutboxRepository{db: db}
}

// Enqueue inserts a new trigger event into the outbox
func (r *TriggerOutboxRepository) Enqueue(ctx context.Context, exec Executor, actionTag, engagementID string) (string, error) {
	id := utils.GenerateID()

	query := `
		INSERT INTO wf_trigger_outbox (id, action_tag, engagement_id, status, retry_count, created_date, last_modified_date)
		VALUES (?, ?, ?, 'pending', 0, NOW(), NOW())
	`
	if _, err := exec.ExecContext(ctx, query, id, actionTag, engagementID); err != nil {
		return "", fmt.Errorf("failed to enqueue trigger event: %w", err)
	}
	return id, nil
}

// GetPendingEvents retrieves pending trigger events ordered by creation time
func (r *TriggerOutboxRepository) GetPendingEvents(ctx context.Context, limit int) ([]TriggerEvent, error) {
	query := `
		SELECT id, action_tag, engagement_id, retry_count
		FROM wf_trigger_outbox
		WHERE status = 'pending'
		ORDER BY created_date ASC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending trigger events: %w", err)
	}
	defer rows.Close()

	var events []TriggerEvent
	for rows.Next() {
		var e TriggerEvent
		if err := rows.Scan(&e.ID, &e.ActionTag, &e.EngagementID, &e.RetryCount); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ClaimEvent attempts to lock a specific event for processing
func (r *TriggerOutboxRepository) ClaimEvent(ctx context.Context, exec Executor, id string) (string, error) {
	query := `
		SELECT id FROM wf_trigger_outbox
		WHERE id = ? AND status = 'pending'
		FOR UPDATE SKIP LOCKED
	`
	var claimedID string
	err := exec.QueryRowContext(ctx, query, id).Scan(&claimedID)
	if err == sql.ErrNoRows {
		return "", nil // Already claimed
	}
	if err != nil {
		return "", err
	}
	return claimedID, nil
}

// UpdateStatus updates the status and related fields of an event
func (r *TriggerOutboxRepository) UpdateStatus(ctx context.Context, exec Executor, id string, status string, errMessage string) error {
	var query string
	var args []interface{}

	switch status {
	case "processed":
		query = `
			UPDATE wf_trigger_outbox
			SET status = ?, processed_date = NOW(), last_modified_date = NOW()
			WHERE id = ?
		`
		args = []interface{}{status, id}
	case "failed":
		query = `
			UPDATE wf_trigger_outbox
			SET status = ?, error_message = ?, last_modified_date = NOW()
			WHERE id = ?
		`
		args = []interface{}{status, errMessage, id}
	default:
		return fmt.Errorf("unsupported status update: %s", status)
	}

	_, err := exec.ExecContext(ctx, query, args...)
	return err
}

// IncrementRetry increments the retry count and updates the error message
func (r *TriggerOutboxRepository) IncrementRetry(ctx context.Context, exec Executor, id string, newCount int, errMessage string) error {
	query := `
		UPDATE wf_trigger_outbox
		SET retry_count = ?, error_message = ?, last_modified_date = NOW()
		WHERE id = ?
	`
	_, err := exec.ExecContext(ctx, query, newCount, errMessage, id)
	return err
}

// CleanupProcessed deletes old processed events
func (r *TriggerOutboxRepository) CleanupProcessed(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM wf_trigger_outbox
		WHERE status = 'processed' AND processed_date < ?
	`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
