package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/portal-estudiante-api/internal/models"
)

func recipients(intents []models.NotificationIntent) []string {
	out := make([]string, 0, len(intents))
	for _, intent := range intents {
		out = append(out, intent.UserID)
	}
	return out
}

func TestDispatcherDocumentUploadedFansOutToReviewers(t *testing.T) {
	d := NewNotificationDispatcher(testStaff, zap.NewNop())
	doc := &models.Document{UserID: "s1", Type: models.DocCedula}

	intents := d.DocumentUploaded(context.Background(), doc, "Ana Gómez")
	require.Len(t, intents, 3)
	assert.Equal(t, "s1", intents[0].UserID)
	assert.Equal(t, "Documento Recibido", intents[0].Title)
	assert.ElementsMatch(t, []string{"s1", "admin-1", "inst-1"}, recipients(intents))
	assert.Equal(t, "Ana Gómez subió el documento Cédula.", intents[1].Body)

	anonymous := d.DocumentUploaded(context.Background(), doc, "  ")
	assert.Contains(t, anonymous[1].Body, "Un estudiante")
}

func TestDispatcherStaffLookupFailureKeepsOwnerNotice(t *testing.T) {
	d := NewNotificationDispatcher(failingDirectory{}, zap.NewNop())

	intents := d.RequestSubmitted(context.Background(), &models.Request{UserID: "s1", Subject: "Certificado"})
	require.Len(t, intents, 1)
	assert.Equal(t, "Solicitud Enviada", intents[0].Title)

	assert.Empty(t, d.SupportUploaded(context.Background(), &models.Installment{UserID: "s1", InstallmentNumber: 2}))
}

func TestDispatcherReviewTemplates(t *testing.T) {
	d := NewNotificationDispatcher(nil, nil)
	inst := &models.Installment{UserID: "s1", InstallmentNumber: 4}

	rejected := d.SupportReviewed(inst, models.StatusRejected, "valor incompleto")
	require.Len(t, rejected, 1)
	assert.Equal(t, "Soporte Rechazado", rejected[0].Title)
	assert.Equal(t, "El soporte de tu cuota #4 ha sido rechazado. Motivo: valor incompleto", rejected[0].Body)
	assert.Equal(t, models.NotificationPayment, rejected[0].Type)

	assert.Nil(t, d.SupportReviewed(inst, models.StatusPending, ""))
	assert.Nil(t, d.DocumentReviewed(&models.Document{UserID: "s1", Type: models.DocCedula}, models.StatusInReview, ""))

	responded := d.RequestResponded(&models.Request{UserID: "s1", Subject: "Horario"})
	assert.Equal(t, "Tu solicitud \"Horario\" ha sido respondida.", responded[0].Body)

	stage := d.StageAdvanced("s1", models.StageEnrolled)
	assert.Equal(t, linkStudentProfile, stage[0].Link)
}
