package services

import (
	"context"
	"log"
	"strings"

	"github.com/tradedesk/backoffice/internal/domain/models"
	"github.com/tradedesk/backoffice/internal/domain/ports"
	"github.com/tradedesk/backoffice/internal/infrastructure/persistence"
	"github.com/tradedesk/backoffice/pkg/errors"
)

// DocumentService attaches classified documents to engagements. Attachment
// is independent of step execution: documents can arrive any time before
// the step that requires them, and the transition check reads the registry
// at execution time.
type DocumentService struct {
	documents   *persistence.DocumentRepository
	engagements ports.EngagementStore
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(documents *persistence.DocumentRepository, engagements ports.EngagementStore) *DocumentService {
	return &DocumentService{documents: documents, engagements: engagements}
}

// AttachRequest describes one document attachment
type AttachRequest struct {
	TypeTag    string `json:"type_tag"`
	FileName   string `json:"file_name"`
	StorageRef string `json:"storage_ref"`
}

// Attach registers a document against an in-progress engagement
func (s *DocumentService) Attach(ctx context.Context, engagementID string, req AttachRequest, user *models.UserSession) (*persistence.Document, error) {
	tag := strings.TrimSpace(req.TypeTag)
	if tag == "" {
		return nil, errors.NewValidationError("type_tag", "Document type tag is required")
	}
	if strings.TrimSpace(req.FileName) == "" {
		return nil, errors.NewValidationError("file_name", "File name is required")
	}

	engagement, err := s.engagements.GetByID(ctx, engagementID)
	if err != nil {
		return nil, err
	}
	if engagement == nil {
		return nil, errors.NewNotFoundError("Engagement", engagementID)
	}
	if engagement.IsTerminal() {
		return nil, errors.NewInvalidStateError("engagement", engagement.ID, string(engagement.Status))
	}

	doc := &persistence.Document{
		EngagementID: engagement.ID,
		TypeTag:      tag,
		FileName:     req.FileName,
		StorageRef:   req.StorageRef,
	}
	if user != nil {
		doc.UploadedByID = &user.ID
	}

	if err := s.documents.Attach(ctx, doc); err != nil {
		return nil, err
	}
	log.Printf("✅ Attached document %s (%s) to engagement %s", doc.ID, doc.TypeTag, engagement.ID)
	return doc, nil
}

// Get returns one attached document's metadata. The document must belong
// to the named engagement; a mismatch is reported as absence, not as a
// permission problem, so ids cannot be probed across engagements.
func (s *DocumentService) Get(ctx context.Context, engagementID, documentID string) (*persistence.Document, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.EngagementID != engagementID {
		return nil, errors.NewNotFoundError("Document", documentID)
	}
	return doc, nil
}

// List returns all documents attached to an engagement
func (s *DocumentService) List(ctx context.Context, engagementID string) ([]*persistence.Document, error) {
	engagement, err := s.engagements.GetByID(ctx, engagementID)
	if err != nil {
		return nil, err
	}
	if engagement == nil {
		return nil, errors.NewNotFoundError("Engagement", engagementID)
	}
	return s.documents.ListByEngagement(ctx, engagementID)
}
