package dto

import (
	"io"

	"github.com/noah-isme/portal-estudiante-api/internal/models"
)

// DocumentQuery captures GET /documents filters.
type DocumentQuery struct {
	Status   string `form:"status"`
	Type     string `form:"type"`
	UserID   string `form:"userId"`
	Storage  string `form:"storage"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// ReviewDocumentRequest is the reviewer decision payload.
type ReviewDocumentRequest struct {
	Status          models.ReviewStatus `json:"status" validate:"required,decision"`
	RejectionReason string              `json:"rejection_reason"`
}

// FileUpload carries an uploaded multipart file to the services.
type FileUpload struct {
	Filename string
	Size     int64
	Content  io.ReadSeeker
}

// FileDownload is a stream plus the headers needed to serve it.
type FileDownload struct {
	Content   io.ReadCloser
	Filename  string
	MimeType  string
	SizeBytes int64
}
