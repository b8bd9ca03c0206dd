package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/portal-estudiante-api/internal/dto"
	"github.com/noah-isme/portal-estudiante-api/internal/models"
	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
)

type documentReviewStore interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
	Review(ctx context.Context, id string, status models.ReviewStatus, reason *string, reviewerID string, at time.Time, intents []models.NotificationIntent) error
}

type installmentReviewStore interface {
	GetInstallment(ctx context.Context, id string) (*models.Installment, error)
	ReviewInstallment(ctx context.Context, id string, status models.ReviewStatus, reason *string, reviewerID string, at time.Time, intents []models.NotificationIntent) error
}

// ReviewService applies reviewer decisions to documents and installment supports.
type ReviewService struct {
	documents    documentReviewStore
	installments installmentReviewStore
	dispatcher   *NotificationDispatcher
	relay        drainer
	audit        auditLogger
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewReviewService constructs the review workflow.
func NewReviewService(documents documentReviewStore, installments installmentReviewStore, dispatcher *NotificationDispatcher, relay drainer, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if dispatcher == nil {
		dispatcher = NewNotificationDispatcher(nil, logger)
	}
	svc := &ReviewService{
		documents:    documents,
		installments: installments,
		dispatcher:   dispatcher,
		relay:        relay,
		audit:        audit,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
	svc.validator.RegisterValidation("decision", func(fl validator.FieldLevel) bool {
		return models.ReviewStatus(fl.Field().String()).IsDecision()
	})
	return svc
}

// ReviewDocument approves or rejects a pending document.
func (s *ReviewService) ReviewDocument(ctx context.Context, id string, req dto.ReviewDocumentRequest, actor *models.JWTClaims) (*models.Document, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := models.Authorize(actor.Role, models.CapReviewDocuments); err != nil {
		return nil, err
	}
	reason, err := s.validateDecision(req.Status, req.RejectionReason, req)
	if err != nil {
		return nil, err
	}

	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "document not found")
	}
	if doc.Status != models.StatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("document already %s", doc.Status))
	}
	previous := doc.Status

	at := s.now()
	intents := s.dispatcher.DocumentReviewed(doc, req.Status, strings.TrimSpace(req.RejectionReason))
	if err := s.documents.Review(ctx, id, req.Status, reason, actor.UserID, at, intents); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Internal(err, "failed to review document")
	}
	drainOutbox(ctx, s.relay, s.logger)

	doc.Status = req.Status
	doc.RejectionReason = reason
	doc.ReviewedBy = &actor.UserID
	doc.ReviewedAt = &at

	emitAudit(ctx, s.audit, s.logger, "review-service", &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionDocumentReview,
		Resource:   "document",
		ResourceID: &doc.ID,
		OldValues:  auditValues(map[string]interface{}{"status": previous}),
		NewValues:  auditValues(map[string]interface{}{"status": doc.Status, "rejection_reason": reason}),
	})
	s.metrics.RecordReview("document", doc.Status)
	return doc, nil
}

// ReviewInstallment moves an installment support to en_revision, aprobado or rechazado.
// en_revision is only reachable from pendiente; decisions from pendiente or en_revision.
func (s *ReviewService) ReviewInstallment(ctx context.Context, id string, req dto.ReviewInstallmentRequest, actor *models.JWTClaims) (*models.Installment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := models.Authorize(actor.Role, models.CapReviewPayments); err != nil {
		return nil, err
	}
	reason, err := s.validateDecision(req.Status, req.RejectionReason, req)
	if err != nil {
		return nil, err
	}

	inst, err := s.installments.GetInstallment(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "installment not found")
	}
	if inst.Support == nil || *inst.Support == "" {
		return nil, appErrors.Clone(appErrors.ErrConflict, "installment has no support to review")
	}
	current := inst.CurrentStatus()
	switch {
	case req.Status == models.StatusInReview && current != models.StatusPending:
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("installment support already %s", current))
	case req.Status.IsDecision() && current.IsDecision():
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("installment support already %s", current))
	}

	at := s.now()
	intents := s.dispatcher.SupportReviewed(inst, req.Status, strings.TrimSpace(req.RejectionReason))
	if err := s.installments.ReviewInstallment(ctx, id, req.Status, reason, actor.UserID, at, intents); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "installment not found")
		}
		return nil, appErrors.Internal(err, "failed to review installment")
	}
	drainOutbox(ctx, s.relay, s.logger)

	status := req.Status
	inst.Status = &status
	inst.RejectionReason = reason
	inst.ReviewedBy = &actor.UserID
	inst.ReviewedAt = &at

	emitAudit(ctx, s.audit, s.logger, "review-service", &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionSupportReview,
		Resource:   "installment",
		ResourceID: &inst.ID,
		OldValues:  auditValues(map[string]interface{}{"status": current}),
		NewValues:  auditValues(map[string]interface{}{"status": status, "rejection_reason": reason}),
	})
	s.metrics.RecordReview("installment", status)
	return inst, nil
}

// validateDecision checks the payload and returns the reason to persist: set only on rejection.
func (s *ReviewService) validateDecision(status models.ReviewStatus, rawReason string, payload interface{}) (*string, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	if status != models.StatusRejected {
		return nil, nil
	}
	reason := optionalString(rawReason)
	if reason == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
	}
	return reason, nil
}
