package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/portal-estudiante-api/internal/models"
)

// Deep links into the frontend.
const (
	linkStudentDocuments = "/estudiante/documentos"
	linkStudentRequests  = "/estudiante/solicitudes"
	linkStudentProfile   = "/estudiante/perfil"
	linkStudentPayments  = "/estudiante/pagos"
	linkAdminDocuments   = "/admin/documentos"
	linkAdminRequests    = "/admin/solicitudes"
	linkAdminPayments    = "/admin/pagos"
)

type reviewerLister interface {
	ListIDsByRoles(ctx context.Context, roles []models.UserRole) ([]string, error)
}

// NotificationDispatcher turns domain events into notification intents.
// It never persists anything itself; callers store the intents in their transaction.
type NotificationDispatcher struct {
	users  reviewerLister
	logger *zap.Logger
}

// NewNotificationDispatcher builds a dispatcher resolving staff recipients through users.
func NewNotificationDispatcher(users reviewerLister, logger *zap.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationDispatcher{users: users, logger: logger}
}

// DocumentUploaded notifies the owner and every document reviewer.
func (d *NotificationDispatcher) DocumentUploaded(ctx context.Context, doc *models.Document, studentName string) []models.NotificationIntent {
	intents := []models.NotificationIntent{{
		UserID: doc.UserID,
		Title:  "Documento Recibido",
		Body:   fmt.Sprintf("Recibimos tu documento %s. Será revisado pronto.", doc.Type.Label()),
		Type:   models.NotificationDocument,
		Link:   linkStudentDocuments,
	}}
	who := strings.TrimSpace(studentName)
	if who == "" {
		who = "Un estudiante"
	}
	return append(intents, d.staff(ctx, models.CapReviewDocuments, models.NotificationIntent{
		Title: "Nuevo Documento",
		Body:  fmt.Sprintf("%s subió el documento %s.", who, doc.Type.Label()),
		Type:  models.NotificationDocument,
		Link:  linkAdminDocuments,
	})...)
}

// DocumentReviewed notifies the owner of an approval or rejection.
func (d *NotificationDispatcher) DocumentReviewed(doc *models.Document, status models.ReviewStatus, reason string) []models.NotificationIntent {
	intent := models.NotificationIntent{
		UserID: doc.UserID,
		Type:   models.NotificationDocument,
		Link:   linkStudentDocuments,
	}
	switch status {
	case models.StatusApproved:
		intent.Title = "Documento Aprobado"
		intent.Body = fmt.Sprintf("Tu documento %s ha sido aprobado.", doc.Type.Label())
	case models.StatusRejected:
		intent.Title = "Documento Rechazado"
		intent.Body = fmt.Sprintf("Tu documento %s ha sido rechazado. Motivo: %s", doc.Type.Label(), reason)
	default:
		return nil
	}
	return []models.NotificationIntent{intent}
}

// RequestSubmitted confirms receipt to the student and alerts responders.
func (d *NotificationDispatcher) RequestSubmitted(ctx context.Context, req *models.Request) []models.NotificationIntent {
	intents := []models.NotificationIntent{{
		UserID: req.UserID,
		Title:  "Solicitud Enviada",
		Body:   fmt.Sprintf("Tu solicitud \"%s\" fue enviada correctamente.", req.Subject),
		Type:   models.NotificationRequest,
		Link:   linkStudentRequests,
	}}
	return append(intents, d.staff(ctx, models.CapRespondRequests, models.NotificationIntent{
		Title: "Nueva Solicitud",
		Body:  fmt.Sprintf("Nueva solicitud: %s", req.Subject),
		Type:  models.NotificationRequest,
		Link:  linkAdminRequests,
	})...)
}

// RequestResponded tells the student their request has an answer.
func (d *NotificationDispatcher) RequestResponded(req *models.Request) []models.NotificationIntent {
	return []models.NotificationIntent{{
		UserID: req.UserID,
		Title:  "Solicitud Respondida",
		Body:   fmt.Sprintf("Tu solicitud \"%s\" ha sido respondida.", req.Subject),
		Type:   models.NotificationRequest,
		Link:   linkStudentRequests,
	}}
}

// StageAdvanced announces the new enrollment stage by its label.
func (d *NotificationDispatcher) StageAdvanced(userID string, stage models.EnrollmentStage) []models.NotificationIntent {
	return []models.NotificationIntent{{
		UserID: userID,
		Title:  "Actualización de Etapa",
		Body:   fmt.Sprintf("Tu proceso avanzó a la etapa: %s", stage.Label()),
		Type:   models.NotificationStage,
		Link:   linkStudentProfile,
	}}
}

// SupportUploaded alerts payment reviewers about a new installment support.
func (d *NotificationDispatcher) SupportUploaded(ctx context.Context, inst *models.Installment) []models.NotificationIntent {
	return d.staff(ctx, models.CapReviewPayments, models.NotificationIntent{
		Title: "Nuevo Soporte de Pago",
		Body:  fmt.Sprintf("Se cargó el soporte de la cuota #%d.", inst.InstallmentNumber),
		Type:  models.NotificationPayment,
		Link:  linkAdminPayments,
	})
}

// SupportReviewed tells the student how their installment support was judged.
func (d *NotificationDispatcher) SupportReviewed(inst *models.Installment, status models.ReviewStatus, reason string) []models.NotificationIntent {
	intent := models.NotificationIntent{
		UserID: inst.UserID,
		Type:   models.NotificationPayment,
		Link:   linkStudentPayments,
	}
	switch status {
	case models.StatusInReview:
		intent.Title = "Soporte en Revisión"
		intent.Body = fmt.Sprintf("El soporte de tu cuota #%d está en revisión.", inst.InstallmentNumber)
	case models.StatusApproved:
		intent.Title = "Soporte Aprobado"
		intent.Body = fmt.Sprintf("El soporte de tu cuota #%d ha sido aprobado.", inst.InstallmentNumber)
	case models.StatusRejected:
		intent.Title = "Soporte Rechazado"
		intent.Body = fmt.Sprintf("El soporte de tu cuota #%d ha sido rechazado. Motivo: %s", inst.InstallmentNumber, reason)
	default:
		return nil
	}
	return []models.NotificationIntent{intent}
}

// staff copies template once per active user holding capability.
// A lookup failure drops the staff notices rather than the workflow.
func (d *NotificationDispatcher) staff(ctx context.Context, capability models.Capability, template models.NotificationIntent) []models.NotificationIntent {
	if d.users == nil {
		return nil
	}
	ids, err := d.users.ListIDsByRoles(ctx, models.RolesWith(capability))
	if err != nil {
		d.logger.Warn("failed to resolve notification recipients", zap.String("capability", string(capability)), zap.Error(err))
		return nil
	}
	intents := make([]models.NotificationIntent, 0, len(ids))
	for _, id := range ids {
		intent := template
		intent.UserID = id
		intents = append(intents, intent)
	}
	return intents
}
