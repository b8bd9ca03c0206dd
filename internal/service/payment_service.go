package service

import (
	"context"
	"database/sql"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/portal-estudiante-api/internal/dto"
	"github.com/noah-isme/portal-estudiante-api/internal/models"
	"github.com/noah-isme/portal-estudiante-api/internal/repository"
	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
	"github.com/noah-isme/portal-estudiante-api/pkg/storage"
)

type paymentStore interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	CreateInstallment(ctx context.Context, inst *models.Installment) error
	GetInstallment(ctx context.Context, id string) (*models.Installment, error)
	ListInstallments(ctx context.Context, filter models.PaymentFilter) ([]models.Installment, int, error)
	AttachSupport(ctx context.Context, params repository.AttachSupportParams, intents []models.NotificationIntent) error
}

// PaymentService records payments and installments and stores installment supports.
type PaymentService struct {
	repo       paymentStore
	stores     *ObjectStores
	dispatcher *NotificationDispatcher
	relay      drainer
	audit      auditLogger
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	policy     UploadPolicy
}

// NewPaymentService constructs the payment store use cases.
func NewPaymentService(repo paymentStore, stores *ObjectStores, dispatcher *NotificationDispatcher, relay drainer, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, policy UploadPolicy) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if dispatcher == nil {
		dispatcher = NewNotificationDispatcher(nil, logger)
	}
	return &PaymentService{
		repo:       repo,
		stores:     stores,
		dispatcher: dispatcher,
		relay:      relay,
		audit:      audit,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		policy:     policy.withDefaults(),
	}
}

// RecordPayment stores an immutable payment event.
func (s *PaymentService) RecordPayment(ctx context.Context, req dto.CreatePaymentRequest, actor *models.JWTClaims) (*models.Payment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := models.Authorize(actor.Role, models.CapManagePayments); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	payment := &models.Payment{
		UserID:          strings.TrimSpace(req.UserID),
		PaymentDate:     req.PaymentDate.UTC(),
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		Amount:          req.Amount,
		GiftReceived:    req.GiftReceived,
		DocumentsStatus: strings.TrimSpace(req.DocumentsStatus),
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, appErrors.Internal(err, "failed to record payment")
	}
	return payment, nil
}

// ListPayments returns payments of userID, or of everyone when userID is empty.
func (s *PaymentService) ListPayments(ctx context.Context, userID string, query dto.PaymentQuery, actor *models.JWTClaims) ([]models.Payment, *models.Pagination, error) {
	filter, err := s.scopedFilter(userID, query, actor)
	if err != nil {
		return nil, nil, err
	}
	items, total, err := s.repo.ListPayments(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list payments")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// CreateInstallment schedules an installment with a pending status.
func (s *PaymentService) CreateInstallment(ctx context.Context, req dto.CreateInstallmentRequest, actor *models.JWTClaims) (*models.Installment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := models.Authorize(actor.Role, models.CapManagePayments); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid installment payload")
	}
	pending := models.StatusPending
	inst := &models.Installment{
		UserID:            strings.TrimSpace(req.UserID),
		InstallmentNumber: req.InstallmentNumber,
		Amount:            req.Amount,
		Status:            &pending,
		DueDate:           req.DueDate,
	}
	if err := s.repo.CreateInstallment(ctx, inst); err != nil {
		return nil, appErrors.Internal(err, "failed to create installment")
	}
	return inst, nil
}

// ListInstallments returns installments of userID, or of everyone when userID is empty.
func (s *PaymentService) ListInstallments(ctx context.Context, userID string, query dto.PaymentQuery, actor *models.JWTClaims) ([]models.Installment, *models.Pagination, error) {
	filter, err := s.scopedFilter(userID, query, actor)
	if err != nil {
		return nil, nil, err
	}
	items, total, err := s.repo.ListInstallments(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list installments")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// UploadSupport attaches a proof of payment to an installment. The status is not changed;
// a reviewer moves it explicitly.
func (s *PaymentService) UploadSupport(ctx context.Context, installmentID string, upload dto.FileUpload, observations string, actor *models.JWTClaims) (*models.Installment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	inst, err := s.repo.GetInstallment(ctx, installmentID)
	if err != nil {
		return nil, notFoundOr(err, "installment not found")
	}
	if inst.UserID != actor.UserID {
		if err := models.Authorize(actor.Role, models.CapManagePayments); err != nil {
			return nil, err
		}
	}
	mimeType, err := s.policy.inspect(upload)
	if err != nil {
		return nil, err
	}

	obj, err := s.stores.upload(ctx, upload, objectName("soporte", inst.UserID, upload.Filename, mimeType), mimeType)
	if err != nil {
		return nil, err
	}
	provider := s.stores.Primary().Provider()
	now := time.Now().UTC()
	params := repository.AttachSupportParams{
		InstallmentID: inst.ID,
		Reference:     obj.ID,
		Storage:       provider,
		MimeType:      mimeType,
		Observations:  optionalString(observations),
		UploadedAt:    now,
	}
	intents := s.dispatcher.SupportUploaded(ctx, inst)
	if err := s.repo.AttachSupport(ctx, params, intents); err != nil {
		if delErr := s.stores.Primary().Delete(ctx, obj.ID); delErr != nil {
			s.logger.Warn("failed to remove orphaned support", zap.String("object_id", obj.ID), zap.Error(delErr))
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "installment not found")
		}
		return nil, appErrors.Internal(err, "failed to attach support")
	}
	drainOutbox(ctx, s.relay, s.logger)

	previous := inst.Support
	inst.Support = &obj.ID
	inst.SupportStorage = &provider
	inst.SupportMimeType = &mimeType
	inst.Observations = params.Observations
	inst.SupportUploadedAt = &now

	emitAudit(ctx, s.audit, s.logger, "payment-service", &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionSupportUpload,
		Resource:   "installment",
		ResourceID: &inst.ID,
		OldValues:  auditValues(map[string]interface{}{"support": previous}),
		NewValues:  auditValues(map[string]interface{}{"support": obj.ID, "storage": provider}),
	})
	s.metrics.RecordUpload("support", provider)
	return inst, nil
}

// OpenSupport streams the installment support file.
func (s *PaymentService) OpenSupport(ctx context.Context, installmentID string, actor *models.JWTClaims) (*dto.FileDownload, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	inst, err := s.repo.GetInstallment(ctx, installmentID)
	if err != nil {
		return nil, notFoundOr(err, "installment not found")
	}
	if inst.UserID != actor.UserID {
		if err := models.Authorize(actor.Role, models.CapReviewPayments); err != nil {
			return nil, err
		}
	}
	if inst.Support == nil || *inst.Support == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "installment has no support")
	}
	provider := storage.ProviderLocal
	if inst.SupportStorage != nil && *inst.SupportStorage != "" {
		provider = *inst.SupportStorage
	}
	store, err := s.stores.For(provider)
	if err != nil {
		return nil, err
	}
	reader, err := store.Get(ctx, *inst.Support)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "support file not found")
		}
		return nil, appErrors.Storage(err, "failed to fetch support file")
	}
	download := &dto.FileDownload{Content: reader, Filename: path.Base(*inst.Support)}
	if inst.SupportMimeType != nil {
		download.MimeType = *inst.SupportMimeType
	}
	return download, nil
}

// scopedFilter lets students read their own rows and payment staff read anyone's.
func (s *PaymentService) scopedFilter(userID string, query dto.PaymentQuery, actor *models.JWTClaims) (models.PaymentFilter, error) {
	if err := requireActor(actor); err != nil {
		return models.PaymentFilter{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID != actor.UserID {
		if err := models.Authorize(actor.Role, models.CapManagePayments); err != nil {
			return models.PaymentFilter{}, err
		}
	}
	filter := models.PaymentFilter{
		UserID:   userID,
		Status:   models.ReviewStatus(strings.TrimSpace(query.Status)),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	switch filter.Status {
	case "", models.StatusPending, models.StatusInReview, models.StatusApproved, models.StatusRejected:
	default:
		return models.PaymentFilter{}, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	var err error
	if filter.From, err = parseDateParam(query.From); err != nil {
		return models.PaymentFilter{}, err
	}
	if filter.To, err = parseDateParam(query.To); err != nil {
		return models.PaymentFilter{}, err
	}
	return filter, nil
}

func parseDateParam(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			utc := ts.UTC()
			return &utc, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "dates must be YYYY-MM-DD or RFC3339")
}
