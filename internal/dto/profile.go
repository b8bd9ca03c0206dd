package dto

import "github.com/noah-isme/portal-estudiante-api/internal/models"

// UpdateProfileRequest edits the contact fields a student controls.
type UpdateProfileRequest struct {
	Email   *string `json:"email" validate:"omitempty,email"`
	Phone   *string `json:"phone" validate:"omitempty,max=32"`
	Address *string `json:"address" validate:"omitempty,max=255"`
	City    *string `json:"city" validate:"omitempty,max=128"`
	Program *string `json:"program" validate:"omitempty,max=128"`
}

// AdvanceStageRequest sets a student's enrollment stage.
type AdvanceStageRequest struct {
	Stage models.EnrollmentStage `json:"stage" validate:"required,stage"`
}

// ProfileQuery captures reviewer list filters.
type ProfileQuery struct {
	Stage    string `form:"stage"`
	Search   string `form:"q"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}
