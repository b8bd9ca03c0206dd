package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/portal-estudiante-api/internal/dto"
	"github.com/noah-isme/portal-estudiante-api/internal/models"
	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
	"github.com/noah-isme/portal-estudiante-api/pkg/response"
)

type documentService interface {
	Upload(ctx context.Context, docType models.DocumentType, upload dto.FileUpload, actor *models.JWTClaims) (*models.Document, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Document, error)
	ListForUser(ctx context.Context, userID string, actor *models.JWTClaims) ([]models.Document, error)
	List(ctx context.Context, query dto.DocumentQuery, actor *models.JWTClaims) ([]models.Document, *models.Pagination, error)
	Checklist(ctx context.Context, userID string, actor *models.JWTClaims) ([]models.ChecklistItem, error)
	Open(ctx context.Context, id string, actor *models.JWTClaims) (*dto.FileDownload, error)
}

type documentReviewer interface {
	ReviewDocument(ctx context.Context, id string, req dto.ReviewDocumentRequest, actor *models.JWTClaims) (*models.Document, error)
}

// DocumentHandler exposes the student document store and its review endpoint.
type DocumentHandler struct {
	documents documentService
	reviews   documentReviewer
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(documents documentService, reviews documentReviewer) *DocumentHandler {
	return &DocumentHandler{documents: documents, reviews: reviews}
}

// Upload godoc
// @Summary Upload a required document
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param type formData string true "Document type"
// @Param file formData file true "Document file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	docType := models.DocumentType(strings.TrimSpace(c.PostForm("type")))
	upload, closer, err := formUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closer.Close() //nolint:errcheck

	doc, err := h.documents.Upload(c.Request.Context(), docType, upload, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// Mine godoc
// @Summary List my documents
// @Tags Documents
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /documents/me [get]
func (h *DocumentHandler) Mine(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	docs, err := h.documents.ListForUser(c.Request.Context(), claims.UserID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// Checklist godoc
// @Summary Required document checklist
// @Tags Documents
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /documents/me/checklist [get]
func (h *DocumentHandler) Checklist(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.documents.Checklist(c.Request.Context(), claims.UserID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// List godoc
// @Summary List all documents
// @Tags Documents
// @Produce json
// @Param status query string false "Review status"
// @Param type query string false "Document type"
// @Param userId query string false "Owner"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var query dto.DocumentQuery
	if !bindQuery(c, &query) {
		return
	}
	docs, page, err := h.documents.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, page)
}

// ForUser godoc
// @Summary List a student's documents
// @Tags Documents
// @Produce json
// @Param userId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /documents/user/{userId} [get]
func (h *DocumentHandler) ForUser(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	docs, err := h.documents.ListForUser(c.Request.Context(), c.Param("userId"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// Get godoc
// @Summary Get document metadata
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// File godoc
// @Summary Stream the document file
// @Tags Documents
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Success 200 {file} binary
// @Router /documents/{id}/file [get]
func (h *DocumentHandler) File(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	download, err := h.documents.Open(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	streamFile(c, download)
}

// Review godoc
// @Summary Approve or reject a document
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.ReviewDocumentRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /documents/{id}/review [patch]
func (h *DocumentHandler) Review(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.ReviewDocumentRequest
	if !bindJSON(c, &req, "invalid review payload") {
		return
	}
	doc, err := h.reviews.ReviewDocument(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Delete godoc
// @Summary Delete a document
// @Tags Documents
// @Param id path string true "Document ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Router /documents/{id} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	if c.Param("id") == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "id required"))
		return
	}
	if err := h.documents.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
