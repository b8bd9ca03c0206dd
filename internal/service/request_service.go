package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/portal-estudiante-api/internal/dto"
	"github.com/noah-isme/portal-estudiante-api/internal/models"
	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
)

type requestStore interface {
	Create(ctx context.Context, req *models.Request, intents []models.NotificationIntent) error
	GetByID(ctx context.Context, id string) (*models.Request, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error)
	Respond(ctx context.Context, id, response, responderID string, at time.Time, intents []models.NotificationIntent) error
}

// RequestService handles student help requests and staff responses.
type RequestService struct {
	repo       requestStore
	dispatcher *NotificationDispatcher
	relay      drainer
	audit      auditLogger
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewRequestService constructs the request workflow.
func NewRequestService(repo requestStore, dispatcher *NotificationDispatcher, relay drainer, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if dispatcher == nil {
		dispatcher = NewNotificationDispatcher(nil, logger)
	}
	return &RequestService{repo: repo, dispatcher: dispatcher, relay: relay, audit: audit, validator: validate, logger: logger}
}

// Submit opens a new request for the acting student.
func (s *RequestService) Submit(ctx context.Context, req dto.CreateRequestRequest, actor *models.JWTClaims) (*models.Request, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := models.Authorize(actor.Role, models.CapSubmitRequests); err != nil {
		return nil, err
	}
	req.Subject = strings.TrimSpace(req.Subject)
	req.Message = strings.TrimSpace(req.Message)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	item := &models.Request{
		UserID:  actor.UserID,
		Subject: req.Subject,
		Message: req.Message,
		Status:  models.RequestPending,
	}
	if err := s.repo.Create(ctx, item, s.dispatcher.RequestSubmitted(ctx, item)); err != nil {
		return nil, appErrors.Internal(err, "failed to create request")
	}
	drainOutbox(ctx, s.relay, s.logger)
	return item, nil
}

// List returns requests; students only ever see their own.
func (s *RequestService) List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]models.Request, *models.Pagination, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	filter := models.RequestFilter{
		UserID:   strings.TrimSpace(query.UserID),
		Status:   models.RequestStatus(strings.TrimSpace(query.Status)),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if filter.UserID != actor.UserID {
		if err := models.Authorize(actor.Role, models.CapRespondRequests); err != nil {
			return nil, nil, err
		}
	}
	switch filter.Status {
	case "", models.RequestPending, models.RequestResponded:
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list requests")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns one request visible to the actor.
func (s *RequestService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Request, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "request not found")
	}
	if item.UserID != actor.UserID {
		if err := models.Authorize(actor.Role, models.CapRespondRequests); err != nil {
			return nil, err
		}
	}
	return item, nil
}

// Respond answers a pending request once.
func (s *RequestService) Respond(ctx context.Context, id string, req dto.RespondRequestRequest, actor *models.JWTClaims) (*models.Request, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := models.Authorize(actor.Role, models.CapRespondRequests); err != nil {
		return nil, err
	}
	req.Response = strings.TrimSpace(req.Response)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "response is required")
	}
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "request not found")
	}
	if item.Status != models.RequestPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "request already responded")
	}

	at := time.Now().UTC()
	if err := s.repo.Respond(ctx, id, req.Response, actor.UserID, at, s.dispatcher.RequestResponded(item)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Internal(err, "failed to respond request")
	}
	drainOutbox(ctx, s.relay, s.logger)

	item.Status = models.RequestResponded
	item.Response = &req.Response
	item.RespondedBy = &actor.UserID
	item.RespondedAt = &at

	emitAudit(ctx, s.audit, s.logger, "request-service", &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionRequestRespond,
		Resource:   "request",
		ResourceID: &item.ID,
		NewValues:  auditValues(map[string]interface{}{"status": item.Status}),
	})
	return item, nil
}
