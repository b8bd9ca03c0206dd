package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/portal-estudiante-api/internal/dto"
	"github.com/noah-isme/portal-estudiante-api/internal/models"
	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
	"github.com/noah-isme/portal-estudiante-api/pkg/storage"
)

var fixedReviewTime = time.Date(2024, 5, 2, 15, 0, 0, 0, time.UTC)

func (h *portalHarness) reviewService() *ReviewService {
	svc := NewReviewService(h.documents, h.payments, h.dispatcher, h.relay, h.audit, nil, nil, zap.NewNop())
	svc.now = func() time.Time { return fixedReviewTime }
	return svc
}

func seedPendingDocument(h *portalHarness, id string, docType models.DocumentType) {
	path := "cedula/s1/" + id + ".pdf"
	h.documents.put(models.Document{
		ID:         id,
		UserID:     "s1",
		Type:       docType,
		Name:       id + ".pdf",
		Storage:    storage.ProviderLocal,
		Path:       &path,
		MimeType:   "application/pdf",
		Status:     models.StatusPending,
		UploadedAt: fixedReviewTime.Add(-time.Hour),
	})
}

var reviewer = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

func TestReviewDocumentApproveNotifiesOwnerOnce(t *testing.T) {
	h := newPortalHarness(t, storage.ProviderLocal)
	seedPendingDocument(h, "doc-1", models.DocCedula)

	doc, err := h.reviewService().ReviewDocument(context.Background(), "doc-1", dto.ReviewDocumentRequest{Status: models.StatusApproved}, reviewer)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, doc.Status)
	require.NotNil(t, doc.ReviewedBy)
	assert.Equal(t, "admin-1", *doc.ReviewedBy)
	assert.Equal(t, fixedReviewTime, *doc.ReviewedAt)
	assert.Nil(t, doc.RejectionReason)

	stored := h.documents.docs["doc-1"]
	assert.Equal(t, models.StatusApproved, stored.Status)
	assert.Equal(t, "admin-1", *stored.ReviewedBy)

	notes := h.outbox.notificationsFor("s1")
	require.Len(t, notes, 1)
	assert.Equal(t, "Documento Aprobado", notes[0].Title)
	assert.Equal(t, "Tu documento Cédula ha sido aprobado.", notes[0].Body)
	assert.Equal(t, models.NotificationDocument, notes[0].Type)
	assert.Equal(t, []string{models.AuditActionDocumentReview}, h.audit.actions())
}

func TestReviewDocumentRejectRequiresReason(t *testing.T) {
	h := newPortalHarness(t, storage.ProviderLocal)
	seedPendingDocument(h, "doc-1", models.DocICFES)
	svc := h.reviewService()

	_, err := svc.ReviewDocument(context.Background(), "doc-1", dto.ReviewDocumentRequest{Status: models.StatusRejected, RejectionReason: "   "}, reviewer)
	require.Error(t, err)
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrValidation))
	assert.Equal(t, models.StatusPending, h.documents.docs["doc-1"].Status)
	assert.Empty(t, h.outbox.entries)

	doc, err := svc.ReviewDocument(context.Background(), "doc-1", dto.ReviewDocumentRequest{Status: models.StatusRejected, RejectionReason: "documento ilegible"}, reviewer)
	require.NoError(t, err)
	require.NotNil(t, doc.RejectionReason)
	assert.Equal(t, "documento ilegible", *h.documents.docs["doc-1"].RejectionReason)

	notes := h.outbox.notificationsFor("s1")
	require.Len(t, notes, 1)
	assert.Equal(t, "Documento Rechazado", notes[0].Title)
	assert.Contains(t, notes[0].Body, "Motivo: documento ilegible")
}

func TestReviewDocumentGuards(t *testing.T) {
	h := newPortalHarness(t, storage.ProviderLocal)
	seedPendingDocument(h, "doc-1", models.DocCedula)
	svc := h.reviewService()

	_, err := svc.ReviewDocument(context.Background(), "doc-1", dto.ReviewDocumentRequest{Status: models.StatusApproved}, student("s1"))
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrForbidden))

	_, err = svc.ReviewDocument(context.Background(), "doc-1", dto.ReviewDocumentRequest{Status: models.StatusPending}, reviewer)
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrValidation))

	_, err = svc.ReviewDocument(context.Background(), "missing", dto.ReviewDocumentRequest{Status: models.StatusApproved}, reviewer)
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrNotFound))

	_, err = svc.ReviewDocument(context.Background(), "doc-1", dto.ReviewDocumentRequest{Status: models.StatusApproved}, reviewer)
	require.NoError(t, err)
	_, err = svc.ReviewDocument(context.Background(), "doc-1", dto.ReviewDocumentRequest{Status: models.StatusRejected, RejectionReason: "x"}, reviewer)
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrConflict))
}

// staleDocuments returns the pending snapshot to every reader, as two reviewers
// loading the same row before either writes would see.
type staleDocuments struct {
	*memoryDocuments
	snapshot models.Document
}

func (s *staleDocuments) GetByID(ctx context.Context, id string) (*models.Document, error) {
	doc := s.snapshot
	return &doc, nil
}

func TestReviewDocumentRacingReviewersLastWriteWins(t *testing.T) {
	h := newPortalHarness(t, storage.ProviderLocal)
	seedPendingDocument(h, "doc-1", models.DocCedula)
	stale := &staleDocuments{memoryDocuments: h.documents, snapshot: *h.documents.docs["doc-1"]}
	svc := NewReviewService(stale, h.payments, h.dispatcher, h.relay, nil, nil, nil, zap.NewNop())

	_, err := svc.ReviewDocument(context.Background(), "doc-1", dto.ReviewDocumentRequest{Status: models.StatusApproved}, reviewer)
	require.NoError(t, err)
	_, err = svc.ReviewDocument(context.Background(), "doc-1", dto.ReviewDocumentRequest{Status: models.StatusRejected, RejectionReason: "foto borrosa"}, &models.JWTClaims{UserID: "inst-1", Role: models.RoleInstitution})
	require.NoError(t, err)

	final := h.documents.docs["doc-1"]
	assert.Equal(t, models.StatusRejected, final.Status)
	assert.Equal(t, "inst-1", *final.ReviewedBy)
	assert.ElementsMatch(t, []string{"Documento Aprobado", "Documento Rechazado"}, titles(h.outbox.notificationsFor("s1")))
}

func TestReviewDocumentDeliveryFailureKeepsDecision(t *testing.T) {
	h := newPortalHarness(t, storage.ProviderLocal)
	seedPendingDocument(h, "doc-1", models.DocCedula)
	h.outbox.failFor["s1"] = errors.New("notifications table locked")

	doc, err := h.reviewService().ReviewDocument(context.Background(), "doc-1", dto.ReviewDocumentRequest{Status: models.StatusApproved}, reviewer)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, doc.Status)
	assert.Equal(t, models.StatusApproved, h.documents.docs["doc-1"].Status)
	assert.Equal(t, 1, h.outbox.statusCount(models.OutboxFailed))
	assert.Empty(t, h.outbox.notificationsFor("s1"))
}

func seedInstallment(h *portalHarness, id string, number int, withSupport bool) {
	inst := models.Installment{ID: id, UserID: "s1", InstallmentNumber: number, Amount: 300000}
	if withSupport {
		ref := "soporte/s1/recibo.pdf"
		inst.Support = &ref
	}
	h.payments.put(inst)
}

var financeReviewer = &models.JWTClaims{UserID: "fin-1", Role: models.RoleFinance}

func TestReviewInstallmentFlow(t *testing.T) {
	h := newPortalHarness(t, storage.ProviderLocal)
	seedInstallment(h, "inst-3", 3, true)
	svc := h.reviewService()

	inst, err := svc.ReviewInstallment(context.Background(), "inst-3", dto.ReviewInstallmentRequest{Status: models.StatusInReview}, financeReviewer)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInReview, inst.CurrentStatus())

	_, err = svc.ReviewInstallment(context.Background(), "inst-3", dto.ReviewInstallmentRequest{Status: models.StatusInReview}, financeReviewer)
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrConflict))

	inst, err = svc.ReviewInstallment(context.Background(), "inst-3", dto.ReviewInstallmentRequest{Status: models.StatusApproved}, financeReviewer)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, inst.CurrentStatus())
	assert.Equal(t, "fin-1", *h.payments.installments["inst-3"].ReviewedBy)

	_, err = svc.ReviewInstallment(context.Background(), "inst-3", dto.ReviewInstallmentRequest{Status: models.StatusRejected, RejectionReason: "x"}, financeReviewer)
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrConflict))

	assert.Equal(t, []string{"Soporte en Revisión", "Soporte Aprobado"}, titles(h.outbox.notificationsFor("s1")))
}

func TestReviewInstallmentRequiresSupportAndRole(t *testing.T) {
	h := newPortalHarness(t, storage.ProviderLocal)
	seedInstallment(h, "inst-1", 1, false)
	svc := h.reviewService()

	_, err := svc.ReviewInstallment(context.Background(), "inst-1", dto.ReviewInstallmentRequest{Status: models.StatusApproved}, financeReviewer)
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrConflict))

	_, err = svc.ReviewInstallment(context.Background(), "inst-1", dto.ReviewInstallmentRequest{Status: models.StatusApproved}, &models.JWTClaims{UserID: "inst-9", Role: models.RoleInstitution})
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrForbidden))

	_, err = svc.ReviewInstallment(context.Background(), "inst-1", dto.ReviewInstallmentRequest{Status: "pagado"}, financeReviewer)
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrValidation))
}

func TestReviewInstallmentReplacedSupportAfterRejection(t *testing.T) {
	h := newPortalHarness(t, storage.ProviderLocal)
	seedInstallment(h, "inst-2", 2, true)
	svc := h.reviewService()
	svc.now = func() time.Time { return time.Now().UTC().Add(-time.Hour) }
	ctx := context.Background()

	_, err := svc.ReviewInstallment(ctx, "inst-2", dto.ReviewInstallmentRequest{Status: models.StatusRejected, RejectionReason: "ilegible"}, financeReviewer)
	require.NoError(t, err)

	resubmitted, err := h.paymentService().UploadSupport(ctx, "inst-2", fileUpload("recibo-nuevo.pdf", pdfBytes), "", student("s1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, *h.payments.installments["inst-2"].Status)
	assert.Equal(t, models.StatusPending, resubmitted.CurrentStatus())

	svc.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	inst, err := svc.ReviewInstallment(ctx, "inst-2", dto.ReviewInstallmentRequest{Status: models.StatusInReview}, financeReviewer)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInReview, inst.CurrentStatus())

	inst, err = svc.ReviewInstallment(ctx, "inst-2", dto.ReviewInstallmentRequest{Status: models.StatusApproved}, financeReviewer)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, inst.CurrentStatus())
	assert.Equal(t, models.StatusApproved, h.payments.installments["inst-2"].CurrentStatus())

	_, err = svc.ReviewInstallment(ctx, "inst-2", dto.ReviewInstallmentRequest{Status: models.StatusRejected, RejectionReason: "x"}, financeReviewer)
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrConflict))
}
