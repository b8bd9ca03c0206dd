package dto

import (
	"time"

	"github.com/noah-isme/portal-estudiante-api/internal/models"
)

// CreatePaymentRequest records a payment event for a student.
type CreatePaymentRequest struct {
	UserID          string    `json:"user_id" validate:"required"`
	PaymentDate     time.Time `json:"payment_date" validate:"required"`
	PaymentMethod   string    `json:"payment_method" validate:"required"`
	Amount          float64   `json:"amount" validate:"gt=0"`
	GiftReceived    bool      `json:"gift_received"`
	DocumentsStatus string    `json:"documents_status"`
}

// CreateInstallmentRequest schedules one installment for a student.
type CreateInstallmentRequest struct {
	UserID            string     `json:"user_id" validate:"required"`
	InstallmentNumber int        `json:"installment_number" validate:"required,gt=0"`
	Amount            float64    `json:"amount" validate:"gt=0"`
	DueDate           *time.Time `json:"due_date"`
}

// ReviewInstallmentRequest moves an installment support through review.
type ReviewInstallmentRequest struct {
	Status          models.ReviewStatus `json:"status" validate:"required,oneof=en_revision aprobado rechazado"`
	RejectionReason string              `json:"rejection_reason"`
}

// PaymentQuery captures list filters for payments and installments.
type PaymentQuery struct {
	Status   string `form:"status"`
	From     string `form:"from"`
	To       string `form:"to"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// ExportRequest asks for an asynchronous payments report.
type ExportRequest struct {
	Format models.ExportFormat `json:"format" validate:"required,oneof=csv pdf xlsx"`
	UserID string              `json:"user_id"`
	Status models.ReviewStatus `json:"status" validate:"omitempty,oneof=pendiente en_revision aprobado rechazado"`
	From   *time.Time          `json:"from"`
	To     *time.Time          `json:"to"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ExportStatusResponse exposes job progress metadata.
type ExportStatusResponse struct {
	ID          string              `json:"id"`
	Status      models.ExportStatus `json:"status"`
	Progress    int                 `json:"progress"`
	DownloadURL *string             `json:"download_url,omitempty"`
	Error       *string             `json:"error,omitempty"`
}
