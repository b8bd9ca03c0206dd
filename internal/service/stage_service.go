package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/portal-estudiante-api/internal/dto"
	"github.com/noah-isme/portal-estudiante-api/internal/models"
	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
)

type stageStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.Profile, error)
	UpdateStage(ctx context.Context, userID string, stage models.EnrollmentStage, at time.Time, intents []models.NotificationIntent) error
}

// StageService tracks a student's coarse enrollment progression.
// Any stage of the enumeration may be set, including an earlier one.
type StageService struct {
	repo       stageStore
	dispatcher *NotificationDispatcher
	relay      drainer
	audit      auditLogger
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewStageService constructs the stage tracker.
func NewStageService(repo stageStore, dispatcher *NotificationDispatcher, relay drainer, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *StageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if dispatcher == nil {
		dispatcher = NewNotificationDispatcher(nil, logger)
	}
	svc := &StageService{repo: repo, dispatcher: dispatcher, relay: relay, audit: audit, validator: validate, logger: logger}
	svc.validator.RegisterValidation("stage", func(fl validator.FieldLevel) bool {
		return models.EnrollmentStage(fl.Field().String()).Valid()
	})
	return svc
}

// Stages returns the ordered enumeration with labels.
func (s *StageService) Stages() []models.StageInfo {
	return models.Stages()
}

// AdvanceStage persists the new stage and notifies the student with its label.
func (s *StageService) AdvanceStage(ctx context.Context, userID string, req dto.AdvanceStageRequest, actor *models.JWTClaims) (*models.Profile, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := models.Authorize(actor.Role, models.CapAdvanceStage); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "stage must be one of the enrollment stages")
	}
	profile, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "profile not found")
	}
	previous := profile.EnrollmentStage

	at := time.Now().UTC()
	if err := s.repo.UpdateStage(ctx, userID, req.Stage, at, s.dispatcher.StageAdvanced(userID, req.Stage)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Internal(err, "failed to update stage")
	}
	drainOutbox(ctx, s.relay, s.logger)

	profile.EnrollmentStage = req.Stage
	profile.StageUpdatedAt = &at
	profile.UpdatedAt = at
	if stageOrder(req.Stage) < stageOrder(previous) {
		s.logger.Info("enrollment stage moved backwards", zap.String("user_id", userID), zap.String("from", string(previous)), zap.String("to", string(req.Stage)))
	}

	emitAudit(ctx, s.audit, s.logger, "stage-service", &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionStageAdvance,
		Resource:   "profile",
		ResourceID: &userID,
		OldValues:  auditValues(map[string]interface{}{"stage": previous}),
		NewValues:  auditValues(map[string]interface{}{"stage": req.Stage}),
	})
	return profile, nil
}

func stageOrder(stage models.EnrollmentStage) int {
	for _, info := range models.Stages() {
		if info.Stage == stage {
			return info.Order
		}
	}
	return 0
}
