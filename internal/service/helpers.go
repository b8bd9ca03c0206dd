package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/portal-estudiante-api/internal/models"
	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// drainer delivers pending notification intents after a workflow commits.
type drainer interface {
	Drain(ctx context.Context) (models.DrainResult, error)
}

// emitAudit writes an audit row; failures are logged only.
func emitAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, source string, log *models.AuditLog) {
	if audit == nil || log == nil {
		return
	}
	if log.IPAddress == "" {
		log.IPAddress = "system"
	}
	if log.UserAgent == "" {
		log.UserAgent = source
	}
	if err := audit.CreateAuditLog(ctx, log); err != nil {
		logger.Warn("failed to persist audit log", zap.String("source", source), zap.String("action", log.Action), zap.Error(err))
	}
}

// drainOutbox flushes intents committed by the caller. Errors never reach the caller.
func drainOutbox(ctx context.Context, relay drainer, logger *zap.Logger) {
	if relay == nil {
		return
	}
	result, err := relay.Drain(ctx)
	if err != nil {
		logger.Warn("notification drain failed", zap.Error(err))
		return
	}
	if result.Failed > 0 {
		logger.Warn("notification deliveries failed", zap.Int("failed", result.Failed), zap.Int("delivered", result.Delivered))
	}
}

func auditValues(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func requireActor(actor *models.JWTClaims) error {
	if actor == nil || actor.UserID == "" {
		return appErrors.ErrUnauthorized
	}
	return nil
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, msg)
	}
	return appErrors.Internal(err, fmt.Sprintf("failed to load %s", strings.TrimSuffix(msg, " not found")))
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	v := strings.TrimSpace(value)
	return &v
}

func sanitize(raw string) string {
	raw = strings.ToLower(raw)
	var b strings.Builder
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func randomSuffix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
