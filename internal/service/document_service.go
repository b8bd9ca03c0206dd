package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/portal-estudiante-api/internal/dto"
	"github.com/noah-isme/portal-estudiante-api/internal/models"
	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
	"github.com/noah-isme/portal-estudiante-api/pkg/storage"
)

type documentStore interface {
	Create(ctx context.Context, doc *models.Document, intents []models.NotificationIntent) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error)
	ListByUser(ctx context.Context, userID string) ([]models.Document, error)
	Delete(ctx context.Context, id string) error
}

type profileReader interface {
	GetByUserID(ctx context.Context, userID string) (*models.Profile, error)
}

// DocumentService stores student documents and serves them back.
type DocumentService struct {
	repo       documentStore
	profiles   profileReader
	stores     *ObjectStores
	dispatcher *NotificationDispatcher
	relay      drainer
	audit      auditLogger
	metrics    *MetricsService
	logger     *zap.Logger
	policy     UploadPolicy
}

// NewDocumentService wires the document store with its collaborators.
func NewDocumentService(repo documentStore, profiles profileReader, stores *ObjectStores, dispatcher *NotificationDispatcher, relay drainer, audit auditLogger, metrics *MetricsService, logger *zap.Logger, policy UploadPolicy) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dispatcher == nil {
		dispatcher = NewNotificationDispatcher(nil, logger)
	}
	return &DocumentService{
		repo:       repo,
		profiles:   profiles,
		stores:     stores,
		dispatcher: dispatcher,
		relay:      relay,
		audit:      audit,
		metrics:    metrics,
		logger:     logger,
		policy:     policy.withDefaults(),
	}
}

// Upload stores the file externally and records a pending document for the actor.
// Nothing is written when the type is unknown or the file is rejected.
func (s *DocumentService) Upload(ctx context.Context, docType models.DocumentType, upload dto.FileUpload, actor *models.JWTClaims) (*models.Document, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := models.Authorize(actor.Role, models.CapUploadOwnDocuments); err != nil {
		return nil, err
	}
	docType = models.DocumentType(strings.ToLower(strings.TrimSpace(string(docType))))
	if !docType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown document type %q", docType))
	}
	mimeType, err := s.policy.inspect(upload)
	if err != nil {
		return nil, err
	}

	obj, err := s.stores.upload(ctx, upload, objectName(string(docType), actor.UserID, upload.Filename, mimeType), mimeType)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(upload.Filename)
	if name == "" {
		name = obj.Name
	}
	doc := &models.Document{
		UserID:     actor.UserID,
		Type:       docType,
		Name:       name,
		Storage:    s.stores.Primary().Provider(),
		MimeType:   mimeType,
		SizeBytes:  obj.SizeBytes,
		Status:     models.StatusPending,
		UploadedAt: time.Now().UTC(),
	}
	if doc.Storage == storage.ProviderDrive {
		doc.DriveFileID = &obj.ID
		doc.WebViewLink = optionalString(obj.WebViewLink)
	} else {
		doc.Path = &obj.ID
	}

	intents := s.dispatcher.DocumentUploaded(ctx, doc, s.studentName(ctx, actor.UserID))
	if err := s.repo.Create(ctx, doc, intents); err != nil {
		if delErr := s.stores.Primary().Delete(ctx, obj.ID); delErr != nil {
			s.logger.Warn("failed to remove orphaned upload", zap.String("object_id", obj.ID), zap.Error(delErr))
		}
		return nil, appErrors.Internal(err, "failed to create document")
	}
	drainOutbox(ctx, s.relay, s.logger)

	emitAudit(ctx, s.audit, s.logger, "document-service", &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionDocumentUpload,
		Resource:   "document",
		ResourceID: &doc.ID,
		NewValues:  auditValues(map[string]interface{}{"type": doc.Type, "storage": doc.Storage, "size": doc.SizeBytes}),
	})
	s.metrics.RecordUpload("document", doc.Storage)
	return doc, nil
}

// Delete removes a document owned by the actor, or any document for roles allowed to.
// The external object is removed best-effort after the row is gone.
func (s *DocumentService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "document not found")
	}
	if doc.UserID != actor.UserID {
		if err := models.Authorize(actor.Role, models.CapDeleteAnyDocument); err != nil {
			return err
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return appErrors.Internal(err, "failed to delete document")
	}
	s.removeObject(ctx, doc)

	emitAudit(ctx, s.audit, s.logger, "document-service", &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionDocumentDelete,
		Resource:   "document",
		ResourceID: &doc.ID,
		OldValues:  auditValues(map[string]interface{}{"type": doc.Type, "status": doc.Status, "owner": doc.UserID}),
	})
	return nil
}

// Get returns one document visible to the actor.
func (s *DocumentService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Document, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "document not found")
	}
	if err := s.ensureVisible(actor, doc.UserID); err != nil {
		return nil, err
	}
	return doc, nil
}

// ListForUser returns every document of userID, newest first.
func (s *DocumentService) ListForUser(ctx context.Context, userID string, actor *models.JWTClaims) ([]models.Document, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.ensureVisible(actor, userID); err != nil {
		return nil, err
	}
	docs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list documents")
	}
	return docs, nil
}

// List returns documents across students for reviewers.
func (s *DocumentService) List(ctx context.Context, query dto.DocumentQuery, actor *models.JWTClaims) ([]models.Document, *models.Pagination, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	if err := models.Authorize(actor.Role, models.CapViewAllDocuments); err != nil {
		return nil, nil, err
	}
	filter := models.DocumentFilter{
		UserID:   strings.TrimSpace(query.UserID),
		Type:     models.DocumentType(strings.TrimSpace(query.Type)),
		Status:   models.ReviewStatus(strings.TrimSpace(query.Status)),
		Storage:  strings.TrimSpace(query.Storage),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid document type filter")
	}
	switch filter.Status {
	case "", models.StatusPending, models.StatusApproved, models.StatusRejected:
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	docs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list documents")
	}
	return docs, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Checklist reports the latest upload state of every document type for userID.
func (s *DocumentService) Checklist(ctx context.Context, userID string, actor *models.JWTClaims) ([]models.ChecklistItem, error) {
	docs, err := s.ListForUser(ctx, userID, actor)
	if err != nil {
		return nil, err
	}
	latest := make(map[models.DocumentType]models.Document, len(docs))
	for _, doc := range docs {
		if _, seen := latest[doc.Type]; !seen {
			latest[doc.Type] = doc
		}
	}
	types := models.DocumentTypes()
	items := make([]models.ChecklistItem, 0, len(types))
	for _, info := range types {
		item := models.ChecklistItem{DocumentTypeInfo: info}
		if doc, ok := latest[info.Type]; ok {
			status := doc.Status
			id := doc.ID
			item.Status = &status
			item.DocumentID = &id
		}
		items = append(items, item)
	}
	return items, nil
}

// Open streams the document binary from whichever backend holds it.
func (s *DocumentService) Open(ctx context.Context, id string, actor *models.JWTClaims) (*dto.FileDownload, error) {
	doc, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	store, err := s.stores.For(doc.Storage)
	if err != nil {
		return nil, err
	}
	reader, err := store.Get(ctx, doc.ObjectID())
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document file not found")
		}
		return nil, appErrors.Storage(err, "failed to fetch document file")
	}
	return &dto.FileDownload{
		Content:   reader,
		Filename:  doc.Name,
		MimeType:  doc.MimeType,
		SizeBytes: doc.SizeBytes,
	}, nil
}

func (s *DocumentService) ensureVisible(actor *models.JWTClaims, ownerID string) error {
	if actor.UserID == ownerID {
		return nil
	}
	return models.Authorize(actor.Role, models.CapViewAllDocuments)
}

func (s *DocumentService) removeObject(ctx context.Context, doc *models.Document) {
	objectID := doc.ObjectID()
	if objectID == "" {
		return
	}
	store, err := s.stores.For(doc.Storage)
	if err != nil {
		s.logger.Warn("no backend for deleted document", zap.String("document_id", doc.ID), zap.String("storage", doc.Storage))
		return
	}
	if err := store.Delete(ctx, objectID); err != nil {
		s.logger.Warn("failed to delete document object", zap.String("document_id", doc.ID), zap.String("object_id", objectID), zap.Error(err))
	}
}

func (s *DocumentService) studentName(ctx context.Context, userID string) string {
	if s.profiles == nil {
		return ""
	}
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to load profile for notification", zap.String("user_id", userID), zap.Error(err))
		}
		return ""
	}
	return profile.FullName
}
