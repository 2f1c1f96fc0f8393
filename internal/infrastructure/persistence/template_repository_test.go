package persistence

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradedesk/backoffice/internal/domain/models"
	"github.com/tradedesk/backoffice/pkg/errors"
	"github.com/tradedesk/backoffice/pkg/fieldschema"
)

func newTemplateRepo(t *testing.T) (*TemplateRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	repo := NewTemplateRepository(db, NewTransactionManagerWithDB(db))
	return repo, mock, func() { db.Close() }
}

func sampleTemplate() *models.Template {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Template{
		ID:    "tpl-1",
		Code:  "LC",
		Label: "Letter of Credit",
		InitialFields: []fieldschema.Config{
			{Name: "client", Label: "Client", Kind: fieldschema.KindRelation, Required: true, RelationTarget: "client"},
		},
		Active:  true,
		Version: 1,
		Steps: []models.Step{
			{
				ID:         "step-1",
				TemplateID: "tpl-1",
				StepOrder:  0,
				Code:       "data_entry",
				Label:      "Data Entry",
				Fields: []fieldschema.Config{
					{Name: "principal", Label: "Principal", Kind: fieldschema.KindNumber, Required: true},
					{Name: "commission", Label: "Commission", Kind: fieldschema.KindComputed, Formula: "principal * 0.01", DependsOn: []string{"principal"}},
				},
			},
			{
				ID:                "step-2",
				TemplateID:        "tpl-1",
				StepOrder:         1,
				Code:              "document_check",
				Label:             "Document Check",
				RequiredDocuments: []string{"invoice", "bill_of_lading"},
			},
		},
		CreatedDate:  now,
		LastModified: now,
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// The definition written through Insert must come back identical from
// GetByID: same step ordering, same field configs, same document tags.
// Steps are reloaded with an explicit ORDER BY so row storage order never
// leaks into lifecycle order.
func TestTemplateRoundTripPreservesStepsAndFields(t *testing.T) {
	repo, mock, cleanup := newTemplateRepo(t)
	defer cleanup()

	template := sampleTemplate()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wf_template")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wf_step")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wf_step")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Insert(context.Background(), template))

	templateRows := sqlmock.NewRows([]string{
		"id", "code", "label", "description", "is_active", "display_order",
		"initial_fields", "version", "created_date", "last_modified_date",
	}).AddRow(template.ID, template.Code, template.Label, nil, true, 0,
		mustJSON(t, template.InitialFields), template.Version,
		template.CreatedDate, template.LastModified)
	mock.ExpectQuery(regexp.QuoteMeta("FROM wf_template")).
		WithArgs(template.ID).
		WillReturnRows(templateRows)

	stepRows := sqlmock.NewRows([]string{
		"id", "template_id", "step_order", "code", "label", "fields",
		"required_documents", "requires_approval", "approver_roles",
		"executor_roles", "trigger_action",
	})
	for i := range template.Steps {
		step := &template.Steps[i]
		stepRows.AddRow(step.ID, step.TemplateID, step.StepOrder, step.Code, step.Label,
			mustJSON(t, step.Fields), mustJSON(t, step.RequiredDocuments),
			step.RequiresApproval, mustJSON(t, step.ApproverRoles),
			mustJSON(t, step.ExecutorRoles), nil)
	}
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY step_order ASC")).
		WithArgs(template.ID).
		WillReturnRows(stepRows)

	reloaded, err := repo.GetByID(context.Background(), template.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded)

	assert.Equal(t, template.Code, reloaded.Code)
	assert.Equal(t, template.InitialFields, reloaded.InitialFields)
	require.Len(t, reloaded.Steps, 2)
	for i := range template.Steps {
		assert.Equal(t, template.Steps[i].Code, reloaded.Steps[i].Code)
		assert.Equal(t, template.Steps[i].StepOrder, reloaded.Steps[i].StepOrder)
		assert.Equal(t, template.Steps[i].Fields, reloaded.Steps[i].Fields)
		assert.Equal(t, template.Steps[i].RequiredDocuments, reloaded.Steps[i].RequiredDocuments)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateUpdateVersionMismatchRollsBack(t *testing.T) {
	repo, mock, cleanup := newTemplateRepo(t)
	defer cleanup()

	template := sampleTemplate()
	template.Version = 3

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE wf_template")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM wf_template WHERE id = ?)")).
		WithArgs(template.ID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.Update(context.Background(), template, 2)
	require.Error(t, err)
	assert.True(t, errors.IsConcurrentModification(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateGetByIDAbsentRowIsNil(t *testing.T) {
	repo, mock, cleanup := newTemplateRepo(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM wf_template")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	template, err := repo.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, template)
}
