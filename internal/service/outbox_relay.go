package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/portal-estudiante-api/internal/models"
)

type outboxStore interface {
	ListUndelivered(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEntry, error)
	Deliver(ctx context.Context, entry models.OutboxEntry) (*models.Notification, error)
	MarkFailed(ctx context.Context, id, reason string) error
}

// OutboxRelayConfig bounds one drain pass. Failed entries that reached MaxAttempts
// stay in the table as failed but are no longer picked up.
type OutboxRelayConfig struct {
	BatchSize   int
	Workers     int
	MaxAttempts int
}

// OutboxRelay moves committed notification intents into the notifications table.
type OutboxRelay struct {
	store   outboxStore
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	cfg     OutboxRelayConfig
	mu      sync.Mutex
}

// NewOutboxRelay constructs the relay with sane defaults.
func NewOutboxRelay(store outboxStore, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg OutboxRelayConfig) *OutboxRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &OutboxRelay{store: store, cache: cache, metrics: metrics, logger: logger.With(zap.String("component", "outbox_relay")), cfg: cfg}
}

// Drain delivers up to one batch of entries in parallel, new intents before retries.
// A failed delivery marks only its own entry; the others still commit.
func (r *OutboxRelay) Drain(ctx context.Context) (models.DrainResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.store.ListUndelivered(ctx, r.cfg.BatchSize, r.cfg.MaxAttempts)
	if err != nil {
		return models.DrainResult{}, err
	}
	if len(entries) == 0 {
		return models.DrainResult{}, nil
	}

	var delivered, failed int64
	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			notification, err := r.store.Deliver(ctx, entry)
			if err == nil {
				atomic.AddInt64(&delivered, 1)
				if r.cache != nil {
					_ = r.cache.Forget(ctx, UnreadCountKey(notification.UserID))
				}
				return nil
			}
			if errors.Is(err, sql.ErrNoRows) {
				// another drain already delivered it
				return nil
			}
			atomic.AddInt64(&failed, 1)
			r.logger.Warn("notification delivery failed", zap.String("outbox_id", entry.ID), zap.String("user_id", entry.UserID), zap.Error(err))
			if markErr := r.store.MarkFailed(ctx, entry.ID, err.Error()); markErr != nil {
				r.logger.Warn("failed to mark outbox entry failed", zap.String("outbox_id", entry.ID), zap.Error(markErr))
			}
			return nil
		})
	}
	_ = g.Wait()

	result := models.DrainResult{
		Attempted: len(entries),
		Delivered: int(delivered),
		Failed:    int(failed),
	}
	r.metrics.RecordDrain(result, result.Attempted-result.Delivered)
	r.logger.Debug("outbox drained", zap.Int("attempted", result.Attempted), zap.Int("delivered", result.Delivered), zap.Int("failed", result.Failed))
	return result, nil
}
