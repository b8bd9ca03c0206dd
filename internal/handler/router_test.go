package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/portal-estudiante-api/internal/dto"
	"github.com/noah-isme/portal-estudiante-api/internal/models"
	"github.com/noah-isme/portal-estudiante-api/internal/service"
	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
)

type tokenStub map[string]*models.JWTClaims

func (t tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token == "expired" {
		return nil, appErrors.Clone(appErrors.ErrTokenExpired, "access token expired")
	}
	if claims, ok := t[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

var testTokens = tokenStub{
	"student": {UserID: "s1", Role: models.RoleStudent},
	"admin":   {UserID: "admin-1", Role: models.RoleAdmin},
	"finance": {UserID: "fin-1", Role: models.RoleFinance},
}

type documentStub struct {
	uploadedType models.DocumentType
	uploaded     []byte
	deleted      string
}

func (d *documentStub) Upload(ctx context.Context, docType models.DocumentType, upload dto.FileUpload, actor *models.JWTClaims) (*models.Document, error) {
	d.uploadedType = docType
	data, err := io.ReadAll(upload.Content)
	if err != nil {
		return nil, err
	}
	d.uploaded = data
	return &models.Document{ID: "doc-1", UserID: actor.UserID, Type: docType, Name: upload.Filename, Status: models.StatusPending}, nil
}

func (d *documentStub) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	d.deleted = id
	return nil
}

func (d *documentStub) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Document, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
}

func (d *documentStub) ListForUser(ctx context.Context, userID string, actor *models.JWTClaims) ([]models.Document, error) {
	return []models.Document{{ID: "doc-1", UserID: userID}}, nil
}

func (d *documentStub) List(ctx context.Context, query dto.DocumentQuery, actor *models.JWTClaims) ([]models.Document, *models.Pagination, error) {
	return []models.Document{{ID: "doc-1", Status: models.ReviewStatus(query.Status)}}, models.NewPagination(1, 20, 1), nil
}

func (d *documentStub) Checklist(ctx context.Context, userID string, actor *models.JWTClaims) ([]models.ChecklistItem, error) {
	return nil, nil
}

func (d *documentStub) Open(ctx context.Context, id string, actor *models.JWTClaims) (*dto.FileDownload, error) {
	return &dto.FileDownload{Content: io.NopCloser(strings.NewReader("%PDF-1.4")), Filename: "cedula.pdf", MimeType: "application/pdf", SizeBytes: 8}, nil
}

type reviewStub struct {
	lastDocument dto.ReviewDocumentRequest
}

func (r *reviewStub) ReviewDocument(ctx context.Context, id string, req dto.ReviewDocumentRequest, actor *models.JWTClaims) (*models.Document, error) {
	r.lastDocument = req
	reviewer := actor.UserID
	return &models.Document{ID: id, Status: req.Status, ReviewedBy: &reviewer}, nil
}

func (r *reviewStub) ReviewInstallment(ctx context.Context, id string, req dto.ReviewInstallmentRequest, actor *models.JWTClaims) (*models.Installment, error) {
	return &models.Installment{ID: id, Status: &req.Status}, nil
}

type exportStub struct {
	file *os.File
}

func (e *exportStub) CreateJob(ctx context.Context, req dto.ExportRequest, actor *models.JWTClaims) (*dto.ExportJobResponse, error) {
	return &dto.ExportJobResponse{ID: "job-1", Status: models.ExportStatusQueued}, nil
}

func (e *exportStub) GetStatus(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ExportStatusResponse, error) {
	return &dto.ExportStatusResponse{ID: id, Status: models.ExportStatusQueued}, nil
}

func (e *exportStub) ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	return &service.ExportDownload{File: e.file, Filename: "pagos.csv", Format: models.ExportFormatCSV, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type notificationStub struct{}

func (notificationStub) List(ctx context.Context, query dto.NotificationQuery, actor *models.JWTClaims) ([]models.Notification, *models.Pagination, error) {
	return nil, models.NewPagination(1, 20, 0), nil
}

func (notificationStub) UnreadCount(ctx context.Context, actor *models.JWTClaims) (int, error) {
	return 7, nil
}

func (notificationStub) MarkRead(ctx context.Context, id string, actor *models.JWTClaims) error {
	return nil
}

func (notificationStub) MarkAllRead(ctx context.Context, actor *models.JWTClaims) (int64, error) {
	return 2, nil
}

func (notificationStub) Replay(ctx context.Context, actor *models.JWTClaims) (*dto.OutboxStatusResponse, error) {
	return &dto.OutboxStatusResponse{Result: models.DrainResult{Attempted: 1, Delivered: 1}}, nil
}

type auditSink struct {
	actions []string
}

func (a *auditSink) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

type testAPI struct {
	router    *gin.Engine
	documents *documentStub
	reviews   *reviewStub
	audit     *auditSink
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "pagos.csv")
	require.NoError(t, os.WriteFile(path, []byte("Estudiante,Monto\nAna,100\n"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })

	api := &testAPI{documents: &documentStub{}, reviews: &reviewStub{}, audit: &auditSink{}}
	routes := Routes{
		Auth:           NewAuthHandler(nil),
		Documents:      NewDocumentHandler(api.documents, api.reviews),
		Payments:       NewPaymentHandler(nil, api.reviews, &exportStub{file: file}),
		Requests:       NewRequestHandler(nil),
		Profiles:       NewProfileHandler(nil, nil),
		Notifications:  NewNotificationHandler(notificationStub{}),
		Tokens:         testTokens,
		Audit:          api.audit,
		Logger:         zap.NewNop(),
		MaxUploadBytes: 4 << 10,
	}
	api.router = gin.New()
	routes.Register(api.router.Group("/api"))
	return api
}

func (a *testAPI) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func envelopeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	return env.Error.Code
}

func TestRoutesRequireBearerToken(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/api/documents/me", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(http.MethodGet, "/api/documents/me", "expired", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_EXPIRED", envelopeError(t, rec))

	rec = api.do(http.MethodGet, "/api/documents/me", "student", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDocumentUploadMultipart(t *testing.T) {
	api := newTestAPI(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("type", "cedula"))
	part, err := writer.CreateFormFile("file", "cedula.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 test"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	rec := api.do(http.MethodPost, "/api/documents", "student", &body, writer.FormDataContentType())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, models.DocCedula, api.documents.uploadedType)
	assert.Equal(t, []byte("%PDF-1.4 test"), api.documents.uploaded)
	assert.Contains(t, rec.Body.String(), `"id":"doc-1"`)

	rec = api.do(http.MethodPost, "/api/documents", "admin", strings.NewReader(""), "multipart/form-data; boundary=x")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPost, "/api/documents", "student", strings.NewReader("type=cedula"), "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentUploadRejectsOversizedBody(t *testing.T) {
	api := newTestAPI(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("type", "cedula"))
	part, err := writer.CreateFormFile("file", "cedula.pdf")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("a"), 128<<10))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	payload := body.Bytes()

	rec := api.do(http.MethodPost, "/api/documents", "student", bytes.NewReader(payload), writer.FormDataContentType())
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, appErrors.ErrPayloadTooLarge.Code, envelopeError(t, rec))

	// no Content-Length, so the limit is hit while the form is parsed
	rec = api.do(http.MethodPost, "/api/documents", "student", io.MultiReader(bytes.NewReader(payload)), writer.FormDataContentType())
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, appErrors.ErrPayloadTooLarge.Code, envelopeError(t, rec))
	assert.Nil(t, api.documents.uploaded)
}

func TestDocumentReviewAndListRoutes(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPatch, "/api/documents/doc-1/review", "student", strings.NewReader(`{"status":"aprobado"}`), "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPatch, "/api/documents/doc-1/review", "admin", strings.NewReader(`{"status":"rechazado","rejection_reason":"ilegible"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ilegible", api.reviews.lastDocument.RejectionReason)

	rec = api.do(http.MethodPatch, "/api/documents/doc-1/review", "admin", strings.NewReader(`{"status":`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodGet, "/api/documents?status=pendiente&page=1", "admin", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pagination"`)

	rec = api.do(http.MethodGet, "/api/documents/missing", "admin", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodGet, "/api/documents/doc-1/file", "admin", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.4", rec.Body.String())

	rec = api.do(http.MethodDelete, "/api/documents/doc-1", "student", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "doc-1", api.documents.deleted)
}

func TestExportDownloadUsesSignedToken(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/api/payments/exports/download?token=good", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "pagos.csv")
	assert.Contains(t, rec.Body.String(), "Ana,100")

	rec = api.do(http.MethodGet, "/api/payments/exports/download?token=bad", "", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodGet, "/api/payments/exports/download", "", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/api/payments/exports", "student", strings.NewReader(`{"format":"csv"}`), "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPost, "/api/payments/exports", "finance", strings.NewReader(`{"format":"csv"}`), "application/json")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = api.do(http.MethodGet, "/api/payments/exports/job-1", "finance", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"job-1"`)
}

func TestNotificationRoutes(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/api/notifications/unread-count", "student", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"unread":7}}`, rec.Body.String())

	rec = api.do(http.MethodPatch, "/api/notifications/n-1/read", "student", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(http.MethodPost, "/api/notifications/outbox/replay", "finance", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, api.audit.actions)

	rec = api.do(http.MethodPost, "/api/notifications/outbox/replay", "admin", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{models.AuditActionOutboxReplay}, api.audit.actions)
}
