package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/portal-estudiante-api/internal/dto"
	"github.com/noah-isme/portal-estudiante-api/internal/models"
	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
	"github.com/noah-isme/portal-estudiante-api/pkg/storage"
)

type memoryRequests struct {
	mu     sync.Mutex
	items  map[string]*models.Request
	outbox *memoryOutbox
}

func (m *memoryRequests) Create(ctx context.Context, req *models.Request, intents []models.NotificationIntent) error {
	m.mu.Lock()
	req.ID = uuid.NewString()
	req.CreatedAt = time.Now().UTC()
	copyReq := *req
	m.items[req.ID] = &copyReq
	m.mu.Unlock()
	m.outbox.add(intents)
	return nil
}

func (m *memoryRequests) GetByID(ctx context.Context, id string) (*models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copyReq := *item
	return &copyReq, nil
}

func (m *memoryRequests) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Request
	for _, item := range m.items {
		if filter.UserID != "" && item.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		out = append(out, *item)
	}
	return out, len(out), nil
}

func (m *memoryRequests) Respond(ctx context.Context, id, response, responderID string, at time.Time, intents []models.NotificationIntent) error {
	m.mu.Lock()
	item, ok := m.items[id]
	if !ok {
		m.mu.Unlock()
		return sql.ErrNoRows
	}
	item.Status = models.RequestResponded
	item.Response = &response
	item.RespondedBy = &responderID
	item.RespondedAt = &at
	m.mu.Unlock()
	m.outbox.add(intents)
	return nil
}

func newRequestServiceForTest(t *testing.T) (*RequestService, *memoryRequests, *portalHarness) {
	t.Helper()
	h := newPortalHarness(t, storage.ProviderLocal)
	repo := &memoryRequests{items: map[string]*models.Request{}, outbox: h.outbox}
	return NewRequestService(repo, h.dispatcher, h.relay, h.audit, nil, zap.NewNop()), repo, h
}

func TestRequestSubmitAndRespond(t *testing.T) {
	svc, repo, h := newRequestServiceForTest(t)
	ctx := context.Background()

	req, err := svc.Submit(ctx, dto.CreateRequestRequest{Subject: " Certificado ", Message: "Necesito un certificado de estudio"}, student("s1"))
	require.NoError(t, err)
	assert.Equal(t, "Certificado", req.Subject)
	assert.Equal(t, models.RequestPending, req.Status)
	assert.Equal(t, []string{"Solicitud Enviada"}, titles(h.outbox.notificationsFor("s1")))
	assert.Equal(t, []string{"Nueva Solicitud"}, titles(h.outbox.notificationsFor("fin-1")))
	assert.Equal(t, []string{"Nueva Solicitud"}, titles(h.outbox.notificationsFor("admin-1")))

	_, err = svc.Respond(ctx, req.ID, dto.RespondRequestRequest{Response: "  "}, financeReviewer)
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrValidation))

	responded, err := svc.Respond(ctx, req.ID, dto.RespondRequestRequest{Response: "Listo, revisa tu correo"}, financeReviewer)
	require.NoError(t, err)
	assert.Equal(t, models.RequestResponded, responded.Status)
	assert.Equal(t, "fin-1", *repo.items[req.ID].RespondedBy)
	assert.Equal(t, []string{"Solicitud Enviada", "Solicitud Respondida"}, titles(h.outbox.notificationsFor("s1")))

	_, err = svc.Respond(ctx, req.ID, dto.RespondRequestRequest{Response: "otra vez"}, financeReviewer)
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrConflict))
	assert.Equal(t, []string{models.AuditActionRequestRespond}, h.audit.actions())
}

func TestRequestVisibility(t *testing.T) {
	svc, _, _ := newRequestServiceForTest(t)
	ctx := context.Background()
	req, err := svc.Submit(ctx, dto.CreateRequestRequest{Subject: "Pago", Message: "Duda sobre la cuota"}, student("s1"))
	require.NoError(t, err)

	_, err = svc.Submit(ctx, dto.CreateRequestRequest{Subject: "x", Message: "y"}, financeReviewer)
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrForbidden))

	_, err = svc.Get(ctx, req.ID, student("s2"))
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrForbidden))

	mine, _, err := svc.List(ctx, dto.RequestQuery{UserID: "s1"}, student("s1"))
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, _, err = svc.List(ctx, dto.RequestQuery{}, student("s1"))
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrForbidden))

	all, _, err := svc.List(ctx, dto.RequestQuery{Status: "pendiente"}, reviewer)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, _, err = svc.List(ctx, dto.RequestQuery{Status: "cerrada"}, reviewer)
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrValidation))
}
