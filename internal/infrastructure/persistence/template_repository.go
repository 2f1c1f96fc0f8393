package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tradedesk/backoffice/internal/domain/models"
	"github.com/tradedesk/backoffice/pkg/errors"
)

// TemplateRepository persists lifecycle templates and their steps.
// A template and its steps are always written together inside one
// transaction so every read observes a consistent definition.
type TemplateRepository struct {
	db *sql.DB
	tm *TransactionManager
}

// NewTemplateRepository creates a new TemplateRepository
func NewTemplateRepository(db *sql.DB, tm *TransactionManager) *TemplateRepository {
	return &TemplateRepository{db: db, tm: tm}
}

// Insert stores a new template definition with its steps
func (r *TemplateRepository) Insert(ctx context.Context, template *models.Template) error {
	return r.tm.WithTransaction(func(tx *sql.Tx) error {
		initialFields, err := marshalJSONColumn(template.InitialFields)
		if err != nil {
			return err
		}

		query := `
			INSERT INTO wf_template (id, code, label, description, is_active, display_order, initial_fields, version, created_date, last_modified_date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
		`
		_, err = tx.ExecContext(ctx, query,
			template.ID, template.Code, template.Label, nullableString(template.Description),
			template.Active, template.DisplayOrder, initialFields, template.Version)
		if err != nil {
			return fmt.Errorf("failed to insert template: %w", err)
		}

		return r.insertSteps(ctx, tx, template)
	})
}

// Update replaces the whole definition under an optimistic version check.
// A stale expectedVersion means another administrator committed first; the
// transaction writes nothing and ConcurrentModification is returned.
func (r *TemplateRepository) Update(ctx context.Context, template *models.Template, expectedVersion int64) error {
	return r.tm.WithTransaction(func(tx *sql.Tx) error {
		initialFields, err := marshalJSONColumn(template.InitialFields)
		if err != nil {
			return err
		}

		query := `
			UPDATE wf_template
			SET code = ?, label = ?, description = ?, is_active = ?, display_order = ?, initial_fields = ?, version = ?, last_modified_date = NOW()
			WHERE id = ? AND version = ?
		`
		result, err := tx.ExecContext(ctx, query,
			template.Code, template.Label, nullableString(template.Description),
			template.Active, template.DisplayOrder, initialFields, template.Version,
			template.ID, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to update template: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			var exists bool
			check := `SELECT EXISTS(SELECT 1 FROM wf_template WHERE id = ?)`
			if err := tx.QueryRowContext(ctx, check, template.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return errors.NewNotFoundError("template", template.ID)
			}
			return errors.NewConcurrentModificationError("template", template.ID)
		}

		// Steps are replaced wholesale; the version check above guards the
		// delete/reinsert against racing writers.
		if _, err := tx.ExecContext(ctx, `DELETE FROM wf_step WHERE template_id = ?`, template.ID); err != nil {
			return fmt.Errorf("failed to clear steps: %w", err)
		}
		return r.insertSteps(ctx, tx, template)
	})
}

func (r *TemplateRepository) insertSteps(ctx context.Context, tx *sql.Tx, template *models.Template) error {
	query := `
		INSERT INTO wf_step (id, template_id, step_order, code, label, fields, required_documents, requires_approval, approver_roles, executor_roles, trigger_action)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i := range template.Steps {
		step := &template.Steps[i]

		fields, err := marshalJSONColumn(step.Fields)
		if err != nil {
			return err
		}
		requiredDocs, err := marshalJSONColumn(step.RequiredDocuments)
		if err != nil {
			return err
		}
		approverRoles, err := marshalJSONColumn(step.ApproverRoles)
		if err != nil {
			return err
		}
		executorRoles, err := marshalJSONColumn(step.ExecutorRoles)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, query,
			step.ID, template.ID, step.StepOrder, step.Code, step.Label,
			fields, requiredDocs, step.RequiresApproval, approverRoles, executorRoles,
			nullableString(step.TriggerAction))
		if err != nil {
			return fmt.Errorf("failed to insert step %s: %w", step.Code, err)
		}
	}
	return nil
}

// GetByID retrieves a template with its steps
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.Template, error) {
	return r.getByColumn(ctx, "id", id)
}

// GetByCode retrieves a template by its unique business code
func (r *TemplateRepository) GetByCode(ctx context.Context, code string) (*models.Template, error) {
	return r.getByColumn(ctx, "code", code)
}

func (r *TemplateRepository) getByColumn(ctx context.Context, column, value string) (*models.Template, error) {
	query := fmt.Sprintf(`
		SELECT id, code, label, description, is_active, display_order, initial_fields, version, created_date, last_modified_date
		FROM wf_template
		WHERE %s = ?
	`, column)

	template, err := r.scanTemplate(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if err == sql.ErrNoRows {
			// Absence is not an error at this layer; services decide
			return nil, nil
		}
		return nil, err
	}

	steps, err := r.loadSteps(ctx, template.ID)
	if err != nil {
		return nil, err
	}
	template.Steps = steps
	return template, nil
}

// List retrieves all templates with their steps
func (r *TemplateRepository) List(ctx context.Context) ([]*models.Template, error) {
	query := `
		SELECT id, code, label, description, is_active, display_order, initial_fields, version, created_date, last_modified_date
		FROM wf_template
		ORDER BY display_order ASC, code ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	templates := make([]*models.Template, 0)
	for rows.Next() {
		template, err := r.scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, template)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, template := range templates {
		steps, err := r.loadSteps(ctx, template.ID)
		if err != nil {
			return nil, err
		}
		template.Steps = steps
	}
	return templates, nil
}

// HasEngagements reports whether any engagement references the template
func (r *TemplateRepository) HasEngagements(ctx context.Context, templateID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM wf_engagement WHERE template_id = ?)`
	if err := r.db.QueryRowContext(ctx, query, templateID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *TemplateRepository) scanTemplate(row rowScanner) (*models.Template, error) {
	var t models.Template
	var description sql.NullString
	var initialFields []byte

	err := row.Scan(&t.ID, &t.Code, &t.Label, &description, &t.Active, &t.DisplayOrder,
		&initialFields, &t.Version, &t.CreatedDate, &t.LastModified)
	if err != nil {
		return nil, err
	}

	t.Description = stringPtr(description)
	t.InitialFields, err = unmarshalFieldConfigs(initialFields)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TemplateRepository) loadSteps(ctx context.Context, templateID string) ([]models.Step, error) {
	query := `
		SELECT id, template_id, step_order, code, label, fields, required_documents, requires_approval, approver_roles, executor_roles, trigger_action
		FROM wf_step
		WHERE template_id = ?
		ORDER BY step_order ASC
	`
	rows, err := r.db.QueryContext(ctx, query, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	steps := make([]models.Step, 0)
	for rows.Next() {
		var s models.Step
		var fields, requiredDocs, approverRoles, executorRoles []byte
		var triggerAction sql.NullString

		err := rows.Scan(&s.ID, &s.TemplateID, &s.StepOrder, &s.Code, &s.Label,
			&fields, &requiredDocs, &s.RequiresApproval, &approverRoles, &executorRoles, &triggerAction)
		if err != nil {
			return nil, err
		}

		if s.Fields, err = unmarshalFieldConfigs(fields); err != nil {
			return nil, err
		}
		if s.RequiredDocuments, err = unmarshalStringList(requiredDocs); err != nil {
			return nil, err
		}
		if s.ApproverRoles, err = unmarshalStringList(approverRoles); err != nil {
			return nil, err
		}
		if s.ExecutorRoles, err = unmarshalStringList(executorRoles); err != nil {
			return nil, err
		}
		s.TriggerAction = stringPtr(triggerAction)

		steps = append(steps, s)
	}
	return steps, rows.Err()
}
