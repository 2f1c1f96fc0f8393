package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tradedesk/backoffice/pkg/errors"
	"github.com/tradedesk/backoffice/pkg/utils"
)

// Document is one file attached to an engagement, classified by a type tag
// (invoice, bill_of_lading, ...). Storage of the file bytes lives outside
// this core; the registry keeps the classification and a storage reference.
type Document struct {
	ID           string    `json:"id"`
	EngagementID string    `json:"engagement_id"`
	TypeTag      string    `json:"type_tag"`
	FileName     string    `json:"file_name"`
	StorageRef   string    `json:"storage_ref"`
	UploadedByID *string   `json:"uploaded_by_id,omitempty"`
	UploadedDate time.Time `json:"uploaded_date"`
}

// DocumentRepository is the document registry backing the per-step
// required-document checks
type DocumentRepository struct {
	db *sql.DB
}

// NewDocumentRepository creates a new DocumentRepository
func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Attach registers a document against an engagement
func (r *DocumentRepository) Attach(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = utils.GenerateID()
	}
	if doc.UploadedDate.IsZero() {
		doc.UploadedDate = time.Now()
	}

	query := `
		INSERT INTO wf_document (id, engagement_id, type_tag, file_name, storage_ref, uploaded_by_id, uploaded_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.EngagementID, doc.TypeTag, doc.FileName, doc.StorageRef,
		nullableString(doc.UploadedByID), doc.UploadedDate)
	if err != nil {
		return fmt.Errorf("failed to attach document: %w", err)
	}
	return nil
}

// HasDocumentOfType reports whether at least one document with the given
// type tag is attached to the engagement
func (r *DocumentRepository) HasDocumentOfType(ctx context.Context, engagementID, tag string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM wf_document WHERE engagement_id = ? AND type_tag = ?)`
	if err := r.db.QueryRowContext(ctx, query, engagementID, tag).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// DocumentIDs returns the ids of all documents attached to the engagement,
// oldest first
func (r *DocumentRepository) DocumentIDs(ctx context.Context, engagementID string) ([]string, error) {
	query := `SELECT id FROM wf_document WHERE engagement_id = ? ORDER BY uploaded_date ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, engagementID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListByEngagement returns all documents attached to the engagement
func (r *DocumentRepository) ListByEngagement(ctx context.Context, engagementID string) ([]*Document, error) {
	query := `
		SELECT id, engagement_id, type_tag, file_name, storage_ref, uploaded_by_id, uploaded_date
		FROM wf_document
		WHERE engagement_id = ?
		ORDER BY uploaded_date ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, engagementID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*Document, 0)
	for rows.Next() {
		var d Document
		var uploadedBy sql.NullString
		err := rows.Scan(&d.ID, &d.EngagementID, &d.TypeTag, &d.FileName, &d.StorageRef, &uploadedBy, &d.UploadedDate)
		if err != nil {
			return nil, err
		}
		d.UploadedByID = stringPtr(uploadedBy)
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

// GetByID retrieves one document
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*Document, error) {
	query := `
		SELECT id, engagement_id, type_tag, file_name, storage_ref, uploaded_by_id, uploaded_date
		FROM wf_document
		WHERE id = ?
	`
	var d Document
	var uploadedBy sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.EngagementID, &d.TypeTag, &d.FileName, &d.StorageRef, &uploadedBy, &d.UploadedDate)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("document", id)
		}
		return nil, err
	}
	d.UploadedByID = stringPtr(uploadedBy)
	return &d, nil
}
