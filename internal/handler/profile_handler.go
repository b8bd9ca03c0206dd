package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/portal-estudiante-api/internal/dto"
	"github.com/noah-isme/portal-estudiante-api/internal/models"
	"github.com/noah-isme/portal-estudiante-api/pkg/response"
)

type profileService interface {
	Get(ctx context.Context, userID string, actor *models.JWTClaims) (*models.Profile, error)
	List(ctx context.Context, query dto.ProfileQuery, actor *models.JWTClaims) ([]models.Profile, *models.Pagination, error)
	UpdateContact(ctx context.Context, req dto.UpdateProfileRequest, actor *models.JWTClaims) (*models.Profile, error)
}

type stageService interface {
	Stages() []models.StageInfo
	AdvanceStage(ctx context.Context, userID string, req dto.AdvanceStageRequest, actor *models.JWTClaims) (*models.Profile, error)
}

// ProfileHandler exposes student profiles and the enrollment stage tracker.
type ProfileHandler struct {
	profiles profileService
	stages   stageService
}

// NewProfileHandler constructs the handler.
func NewProfileHandler(profiles profileService, stages stageService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, stages: stages}
}

// Me godoc
// @Summary Get my profile
// @Tags Profiles
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /profiles/me [get]
func (h *ProfileHandler) Me(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	profile, err := h.profiles.Get(c.Request.Context(), claims.UserID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// UpdateMe godoc
// @Summary Update my contact details
// @Tags Profiles
// @Accept json
// @Produce json
// @Param payload body dto.UpdateProfileRequest true "Contact fields"
// @Success 200 {object} response.Envelope
// @Router /profiles/me [put]
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.UpdateProfileRequest
	if !bindJSON(c, &req, "invalid profile payload") {
		return
	}
	profile, err := h.profiles.UpdateContact(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// List godoc
// @Summary List student profiles
// @Tags Profiles
// @Produce json
// @Param stage query string false "Enrollment stage"
// @Param q query string false "Name or document search"
// @Success 200 {object} response.Envelope
// @Router /profiles [get]
func (h *ProfileHandler) List(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var query dto.ProfileQuery
	if !bindQuery(c, &query) {
		return
	}
	items, page, err := h.profiles.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, page)
}

// Get godoc
// @Summary Get a student's profile
// @Tags Profiles
// @Produce json
// @Param userId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /profiles/{userId} [get]
func (h *ProfileHandler) Get(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	profile, err := h.profiles.Get(c.Request.Context(), c.Param("userId"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Stages godoc
// @Summary Ordered enrollment stages
// @Tags Profiles
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /profiles/stages [get]
func (h *ProfileHandler) Stages(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.stages.Stages(), nil)
}

// AdvanceStage godoc
// @Summary Set a student's enrollment stage
// @Tags Profiles
// @Accept json
// @Produce json
// @Param userId path string true "Student ID"
// @Param payload body dto.AdvanceStageRequest true "Stage"
// @Success 200 {object} response.Envelope
// @Router /profiles/{userId}/stage [patch]
func (h *ProfileHandler) AdvanceStage(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.AdvanceStageRequest
	if !bindJSON(c, &req, "invalid stage payload") {
		return
	}
	profile, err := h.stages.AdvanceStage(c.Request.Context(), c.Param("userId"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}
