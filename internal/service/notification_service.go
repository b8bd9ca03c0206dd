package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/portal-estudiante-api/internal/dto"
	"github.com/noah-isme/portal-estudiante-api/internal/models"
	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
)

type notificationStore interface {
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	CountOutbox(ctx context.Context) (map[models.OutboxStatus]int, error)
}

// NotificationService serves a user's notifications and the outbox maintenance hook.
type NotificationService struct {
	repo   notificationStore
	relay  drainer
	cache  *CacheService
	logger *zap.Logger
}

// NewNotificationService constructs the service.
func NewNotificationService(repo notificationStore, relay drainer, cache *CacheService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, relay: relay, cache: cache, logger: logger}
}

// List returns the actor's notifications newest first.
func (s *NotificationService) List(ctx context.Context, query dto.NotificationQuery, actor *models.JWTClaims) ([]models.Notification, *models.Pagination, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	filter := models.NotificationFilter{UserID: actor.UserID, UnreadOnly: query.Unread, Page: query.Page, PageSize: query.PageSize}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list notifications")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// UnreadCount returns the unread counter, served from cache when enabled.
func (s *NotificationService) UnreadCount(ctx context.Context, actor *models.JWTClaims) (int, error) {
	if err := requireActor(actor); err != nil {
		return 0, err
	}
	key := UnreadCountKey(actor.UserID)
	var cached int
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}
	count, err := s.repo.CountUnread(ctx, actor.UserID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to count notifications")
	}
	_ = s.cache.Set(ctx, key, count, 0)
	return count, nil
}

// MarkRead flags one of the actor's notifications.
func (s *NotificationService) MarkRead(ctx context.Context, id string, actor *models.JWTClaims) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := s.repo.MarkRead(ctx, id, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Internal(err, "failed to mark notification read")
	}
	_ = s.cache.Forget(ctx, UnreadCountKey(actor.UserID))
	return nil
}

// MarkAllRead flags every unread notification of the actor.
func (s *NotificationService) MarkAllRead(ctx context.Context, actor *models.JWTClaims) (int64, error) {
	if err := requireActor(actor); err != nil {
		return 0, err
	}
	changed, err := s.repo.MarkAllRead(ctx, actor.UserID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to mark notifications read")
	}
	_ = s.cache.Forget(ctx, UnreadCountKey(actor.UserID))
	return changed, nil
}

// Replay drains pending and failed outbox entries now.
func (s *NotificationService) Replay(ctx context.Context, actor *models.JWTClaims) (*dto.OutboxStatusResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := models.Authorize(actor.Role, models.CapMaintenance); err != nil {
		return nil, err
	}
	return s.ReplayOutbox(ctx)
}

// ReplayOutbox drains without an actor; used by the scheduler and the CLI.
func (s *NotificationService) ReplayOutbox(ctx context.Context) (*dto.OutboxStatusResponse, error) {
	if s.relay == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "outbox relay unavailable")
	}
	result, err := s.relay.Drain(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to drain outbox")
	}
	counts, err := s.repo.CountOutbox(ctx)
	if err != nil {
		s.logger.Warn("failed to count outbox", zap.Error(err))
	}
	return &dto.OutboxStatusResponse{Result: result, Counts: counts}, nil
}
