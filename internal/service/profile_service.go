package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/portal-estudiante-api/internal/dto"
	"github.com/noah-isme/portal-estudiante-api/internal/models"
	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
)

type profileStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.Profile, error)
	List(ctx context.Context, filter models.ProfileFilter) ([]models.Profile, int, error)
	UpdateContact(ctx context.Context, profile *models.Profile) error
}

// ProfileService exposes student profiles.
type ProfileService struct {
	repo      profileStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProfileService constructs the service.
func NewProfileService(repo profileStore, validate *validator.Validate, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ProfileService{repo: repo, validator: validate, logger: logger}
}

// Get returns the profile of userID when visible to the actor.
func (s *ProfileService) Get(ctx context.Context, userID string, actor *models.JWTClaims) (*models.Profile, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if userID != actor.UserID {
		if err := models.Authorize(actor.Role, models.CapViewProfiles); err != nil {
			return nil, err
		}
	}
	profile, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "profile not found")
	}
	return profile, nil
}

// List returns profiles for staff, optionally narrowed to one stage.
func (s *ProfileService) List(ctx context.Context, query dto.ProfileQuery, actor *models.JWTClaims) ([]models.Profile, *models.Pagination, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	if err := models.Authorize(actor.Role, models.CapViewProfiles); err != nil {
		return nil, nil, err
	}
	filter := models.ProfileFilter{Search: strings.TrimSpace(query.Search), Page: query.Page, PageSize: query.PageSize}
	if raw := strings.TrimSpace(query.Stage); raw != "" {
		stage := models.EnrollmentStage(raw)
		if !stage.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid stage filter")
		}
		filter.Stage = &stage
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list profiles")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// UpdateContact lets a user edit their own contact fields. Nil fields are left as they are.
func (s *ProfileService) UpdateContact(ctx context.Context, req dto.UpdateProfileRequest, actor *models.JWTClaims) (*models.Profile, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	profile, err := s.repo.GetByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, notFoundOr(err, "profile not found")
	}
	apply := func(dst **string, src *string) {
		if src != nil {
			*dst = optionalString(*src)
		}
	}
	apply(&profile.Email, req.Email)
	apply(&profile.Phone, req.Phone)
	apply(&profile.Address, req.Address)
	apply(&profile.City, req.City)
	apply(&profile.Program, req.Program)
	if err := s.repo.UpdateContact(ctx, profile); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Internal(err, "failed to update profile")
	}
	return profile, nil
}
