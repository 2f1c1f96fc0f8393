package persistence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradedesk/backoffice/pkg/errors"
)

func newDocumentRepo(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	return NewDocumentRepository(db), mock, func() { db.Close() }
}

func TestDocumentGetByID(t *testing.T) {
	repo, mock, cleanup := newDocumentRepo(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{
		"id", "engagement_id", "type_tag", "file_name", "storage_ref", "uploaded_by_id", "uploaded_date",
	}).AddRow("doc-1", "eng-1", "invoice", "invoice.pdf", "s3://bucket/doc-1", "user-1", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM wf_document")).
		WithArgs("doc-1").
		WillReturnRows(rows)

	doc, err := repo.GetByID(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "eng-1", doc.EngagementID)
	assert.Equal(t, "invoice", doc.TypeTag)
}

func TestDocumentGetByIDMissing(t *testing.T) {
	repo, mock, cleanup := newDocumentRepo(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM wf_document")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
