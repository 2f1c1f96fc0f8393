package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tradedesk/backoffice/internal/domain/models"
)

// CompletionRepository reads the append-only audit trail. Inserts happen
// only through appendCompletion, called inside the engagement update
// transaction; there is no update or delete path.
type CompletionRepository struct {
	db *sql.DB
}

// NewCompletionRepository creates a new CompletionRepository
func NewCompletionRepository(db *sql.DB) *CompletionRepository {
	return &CompletionRepository{db: db}
}

// ListByEngagement returns the completions of one engagement in the order
// they occurred
func (r *CompletionRepository) ListByEngagement(ctx context.Context, engagementID string) ([]*models.StepCompletion, error) {
	query := `
		SELECT id, engagement_id, step_id, step_code, outcome, field_values, document_ids, acting_user_id, approval_decision, approver_id, comment, occurred_date
		FROM wf_step_completion
		WHERE engagement_id = ?
		ORDER BY occurred_date ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, engagementID)
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	completions := make([]*models.StepCompletion, 0)
	for rows.Next() {
		var c models.StepCompletion
		var stepID, decision, approverID, comment sql.NullString
		var values, documentIDs []byte

		err := rows.Scan(&c.ID, &c.EngagementID, &stepID, &c.StepCode, &c.Outcome,
			&values, &documentIDs, &c.ActingUserID, &decision, &approverID, &comment, &c.OccurredDate)
		if err != nil {
			return nil, err
		}

		c.StepID = stringPtr(stepID)
		c.ApprovalDecision = stringPtr(decision)
		c.ApproverID = stringPtr(approverID)
		c.Comment = stringPtr(comment)
		if c.Values, err = unmarshalValues(values); err != nil {
			return nil, err
		}
		if c.DocumentIDs, err = unmarshalStringList(documentIDs); err != nil {
			return nil, err
		}

		completions = append(completions, &c)
	}
	return completions, rows.Err()
}

// appendCompletion inserts one audit record using the caller's executor so
// it commits or rolls back with the engagement mutation it describes
func appendCompletion(ctx context.Context, exec Executor, c *models.StepCompletion) error {
	values, err := marshalJSONColumn(c.Values)
	if err != nil {
		return err
	}
	documentIDs, err := marshalJSONColumn(c.DocumentIDs)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO wf_step_completion (id, engagement_id, step_id, step_code, outcome, field_values, document_ids, acting_user_id, approval_decision, approver_id, comment, occurred_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = exec.ExecContext(ctx, query,
		c.ID, c.EngagementID, nullableString(c.StepID), c.StepCode, string(c.Outcome),
		values, documentIDs, c.ActingUserID,
		nullableString(c.ApprovalDecision), nullableString(c.ApproverID), nullableString(c.Comment),
		c.OccurredDate)
	if err != nil {
		return fmt.Errorf("failed to append completion: %w", err)
	}
	return nil
}
