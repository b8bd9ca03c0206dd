package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/portal-estudiante-api/internal/dto"
	"github.com/noah-isme/portal-estudiante-api/internal/models"
	"github.com/noah-isme/portal-estudiante-api/internal/service"
	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
	"github.com/noah-isme/portal-estudiante-api/pkg/export"
	"github.com/noah-isme/portal-estudiante-api/pkg/response"
)

type paymentService interface {
	RecordPayment(ctx context.Context, req dto.CreatePaymentRequest, actor *models.JWTClaims) (*models.Payment, error)
	ListPayments(ctx context.Context, userID string, query dto.PaymentQuery, actor *models.JWTClaims) ([]models.Payment, *models.Pagination, error)
	CreateInstallment(ctx context.Context, req dto.CreateInstallmentRequest, actor *models.JWTClaims) (*models.Installment, error)
	ListInstallments(ctx context.Context, userID string, query dto.PaymentQuery, actor *models.JWTClaims) ([]models.Installment, *models.Pagination, error)
	UploadSupport(ctx context.Context, installmentID string, upload dto.FileUpload, observations string, actor *models.JWTClaims) (*models.Installment, error)
	OpenSupport(ctx context.Context, installmentID string, actor *models.JWTClaims) (*dto.FileDownload, error)
}

type installmentReviewer interface {
	ReviewInstallment(ctx context.Context, id string, req dto.ReviewInstallmentRequest, actor *models.JWTClaims) (*models.Installment, error)
}

type exportJobs interface {
	CreateJob(ctx context.Context, req dto.ExportRequest, actor *models.JWTClaims) (*dto.ExportJobResponse, error)
	GetStatus(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ExportStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// PaymentHandler exposes payments, installments, their supports and report exports.
type PaymentHandler struct {
	payments paymentService
	reviews  installmentReviewer
	exports  exportJobs
}

// NewPaymentHandler constructs the handler.
func NewPaymentHandler(payments paymentService, reviews installmentReviewer, exports exportJobs) *PaymentHandler {
	return &PaymentHandler{payments: payments, reviews: reviews, exports: exports}
}

// Record godoc
// @Summary Record a payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body dto.CreatePaymentRequest true "Payment"
// @Success 201 {object} response.Envelope
// @Router /payments [post]
func (h *PaymentHandler) Record(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.CreatePaymentRequest
	if !bindJSON(c, &req, "invalid payment payload") {
		return
	}
	payment, err := h.payments.RecordPayment(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}

// Mine godoc
// @Summary List my payments
// @Tags Payments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /payments/me [get]
func (h *PaymentHandler) Mine(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	h.listPayments(c, claims.UserID, claims)
}

// List godoc
// @Summary List all payments
// @Tags Payments
// @Produce json
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	h.listPayments(c, "", claims)
}

// ForUser godoc
// @Summary List a student's payments
// @Tags Payments
// @Produce json
// @Param userId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /payments/user/{userId} [get]
func (h *PaymentHandler) ForUser(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	h.listPayments(c, c.Param("userId"), claims)
}

func (h *PaymentHandler) listPayments(c *gin.Context, userID string, claims *models.JWTClaims) {
	var query dto.PaymentQuery
	if !bindQuery(c, &query) {
		return
	}
	items, page, err := h.payments.ListPayments(c.Request.Context(), userID, query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, page)
}

// CreateInstallment godoc
// @Summary Schedule an installment
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body dto.CreateInstallmentRequest true "Installment"
// @Success 201 {object} response.Envelope
// @Router /payments/installments [post]
func (h *PaymentHandler) CreateInstallment(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.CreateInstallmentRequest
	if !bindJSON(c, &req, "invalid installment payload") {
		return
	}
	inst, err := h.payments.CreateInstallment(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, inst)
}

// MyInstallments godoc
// @Summary List my installments
// @Tags Payments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /payments/installments/me [get]
func (h *PaymentHandler) MyInstallments(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	h.listInstallments(c, claims.UserID, claims)
}

// InstallmentsForUser godoc
// @Summary List a student's installments
// @Tags Payments
// @Produce json
// @Param userId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /payments/installments/user/{userId} [get]
func (h *PaymentHandler) InstallmentsForUser(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	h.listInstallments(c, c.Param("userId"), claims)
}

func (h *PaymentHandler) listInstallments(c *gin.Context, userID string, claims *models.JWTClaims) {
	var query dto.PaymentQuery
	if !bindQuery(c, &query) {
		return
	}
	items, page, err := h.payments.ListInstallments(c.Request.Context(), userID, query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, page)
}

// UploadSupport godoc
// @Summary Upload an installment support
// @Tags Payments
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Installment ID"
// @Param file formData file true "Support file"
// @Param observations formData string false "Observations"
// @Success 200 {object} response.Envelope
// @Router /payments/installments/{id}/support [post]
func (h *PaymentHandler) UploadSupport(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	upload, closer, err := formUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closer.Close() //nolint:errcheck

	inst, err := h.payments.UploadSupport(c.Request.Context(), c.Param("id"), upload, c.PostForm("observations"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, inst, nil)
}

// Support godoc
// @Summary Stream an installment support
// @Tags Payments
// @Produce octet-stream
// @Param id path string true "Installment ID"
// @Success 200 {file} binary
// @Router /payments/installments/{id}/support [get]
func (h *PaymentHandler) Support(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	download, err := h.payments.OpenSupport(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	streamFile(c, download)
}

// ReviewInstallment godoc
// @Summary Review an installment support
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Installment ID"
// @Param payload body dto.ReviewInstallmentRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /payments/installments/{id}/review [patch]
func (h *PaymentHandler) ReviewInstallment(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.ReviewInstallmentRequest
	if !bindJSON(c, &req, "invalid review payload") {
		return
	}
	inst, err := h.reviews.ReviewInstallment(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, inst, nil)
}

// CreateExport godoc
// @Summary Queue a payments report
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body dto.ExportRequest true "Export request"
// @Success 202 {object} response.Envelope
// @Router /payments/exports [post]
func (h *PaymentHandler) CreateExport(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.ExportRequest
	if !bindJSON(c, &req, "invalid export payload") {
		return
	}
	job, err := h.exports.CreateJob(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// ExportStatus godoc
// @Summary Export job status
// @Tags Payments
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /payments/exports/{id} [get]
func (h *PaymentHandler) ExportStatus(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	status, err := h.exports.GetStatus(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// DownloadExport godoc
// @Summary Download a finished export
// @Description The signed token authorises the download; no bearer token is needed.
// @Tags Payments
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /payments/exports/download [get]
func (h *PaymentHandler) DownloadExport(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}
	download, err := h.exports.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	contentType := "application/octet-stream"
	if renderer, err := export.RendererFor(string(download.Format)); err == nil {
		contentType = renderer.ContentType()
	}
	var size int64 = -1
	if info, err := download.File.Stat(); err == nil {
		size = info.Size()
	}
	c.DataFromReader(http.StatusOK, size, contentType, download.File, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", download.Filename),
		"Cache-Control":       "no-store",
	})
}
