package service

import (
	"context"
	"database/sql"
	"sync"
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

type memoryProfiles struct {
	mu       sync.Mutex
	profiles map[string]*models.Profile
	outbox   *memoryOutbox
}

func newMemoryProfiles(outbox *memoryOutbox, profiles ...models.Profile) *memoryProfiles {
	m := &memoryProfiles{profiles: map[string]*models.Profile{}, outbox: outbox}
	for i := range profiles {
		p := profiles[i]
		m.profiles[p.UserID] = &p
	}
	return m
}

func (m *memoryProfiles) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copyProfile := *p
	return &copyProfile, nil
}

func (m *memoryProfiles) List(ctx context.Context, filter models.ProfileFilter) ([]models.Profile, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Profile
	for _, p := range m.profiles {
		if filter.Stage != nil && p.EnrollmentStage != *filter.Stage {
			continue
		}
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *memoryProfiles) UpdateContact(ctx context.Context, profile *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[profile.UserID]; !ok {
		return sql.ErrNoRows
	}
	copyProfile := *profile
	m.profiles[profile.UserID] = &copyProfile
	return nil
}

func (m *memoryProfiles) UpdateStage(ctx context.Context, userID string, stage models.EnrollmentStage, at time.Time, intents []models.NotificationIntent) error {
	m.mu.Lock()
	p, ok := m.profiles[userID]
	if !ok {
		m.mu.Unlock()
		return sql.ErrNoRows
	}
	p.EnrollmentStage = stage
	p.StageUpdatedAt = &at
	m.mu.Unlock()
	m.outbox.add(intents)
	return nil
}

func TestAdvanceStageNotifiesWithLabel(t *testing.T) {
	h := newPortalHarness(t, storage.ProviderLocal)
	repo := newMemoryProfiles(h.outbox, models.Profile{UserID: "s1", FullName: "Ana", EnrollmentStage: models.StageSubscribed})
	svc := NewStageService(repo, h.dispatcher, h.relay, h.audit, nil, zap.NewNop())

	profile, err := svc.AdvanceStage(context.Background(), "s1", dto.AdvanceStageRequest{Stage: models.StageEnrolled}, &models.JWTClaims{UserID: "ally-1", Role: models.RoleAlly})
	require.NoError(t, err)
	assert.Equal(t, models.StageEnrolled, profile.EnrollmentStage)
	assert.Equal(t, models.StageEnrolled, repo.profiles["s1"].EnrollmentStage)

	notes := h.outbox.notificationsFor("s1")
	require.Len(t, notes, 1)
	assert.Equal(t, "Actualización de Etapa", notes[0].Title)
	assert.Equal(t, "Tu proceso avanzó a la etapa: Matriculado", notes[0].Body)
	assert.Equal(t, models.NotificationStage, notes[0].Type)
	assert.Equal(t, []string{models.AuditActionStageAdvance}, h.audit.actions())
}

func TestAdvanceStageAllowsBackwardsAndRejectsUnknown(t *testing.T) {
	h := newPortalHarness(t, storage.ProviderLocal)
	repo := newMemoryProfiles(h.outbox, models.Profile{UserID: "s1", EnrollmentStage: models.StageActiveStudent})
	svc := NewStageService(repo, h.dispatcher, h.relay, nil, nil, zap.NewNop())

	profile, err := svc.AdvanceStage(context.Background(), "s1", dto.AdvanceStageRequest{Stage: models.StageDocumentsComplete}, reviewer)
	require.NoError(t, err)
	assert.Equal(t, models.StageDocumentsComplete, profile.EnrollmentStage)

	_, err = svc.AdvanceStage(context.Background(), "s1", dto.AdvanceStageRequest{Stage: "graduado"}, reviewer)
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrValidation))

	_, err = svc.AdvanceStage(context.Background(), "s1", dto.AdvanceStageRequest{Stage: models.StageEnrolled}, financeReviewer)
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrForbidden))

	_, err = svc.AdvanceStage(context.Background(), "nobody", dto.AdvanceStageRequest{Stage: models.StageEnrolled}, reviewer)
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrNotFound))

	stages := svc.Stages()
	require.Len(t, stages, 9)
	assert.Equal(t, models.StageSubscribed, stages[0].Stage)
	assert.Equal(t, "Proceso finalizado", stages[8].Label)
}

func TestProfileServiceAccessAndContactUpdate(t *testing.T) {
	repo := newMemoryProfiles(newMemoryOutbox(), models.Profile{UserID: "s1", FullName: "Ana", EnrollmentStage: models.StageSubscribed})
	svc := NewProfileService(repo, nil, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Get(ctx, "s1", student("s2"))
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrForbidden))

	got, err := svc.Get(ctx, "s1", &models.JWTClaims{UserID: "inst-1", Role: models.RoleInstitution})
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.FullName)

	email := "ana@example.com"
	city := "Medellín"
	updated, err := svc.UpdateContact(ctx, dto.UpdateProfileRequest{Email: &email, City: &city}, student("s1"))
	require.NoError(t, err)
	assert.Equal(t, email, *updated.Email)
	assert.Nil(t, updated.Phone)
	assert.Equal(t, city, *repo.profiles["s1"].City)

	bad := "not-an-email"
	_, err = svc.UpdateContact(ctx, dto.UpdateProfileRequest{Email: &bad}, student("s1"))
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrValidation))

	_, _, err = svc.List(ctx, dto.ProfileQuery{Stage: "suscrito"}, student("s1"))
	assert.True(t, appErrors.FromError(err).Is(appErrors.ErrForbidden))

	items, _, err := svc.List(ctx, dto.ProfileQuery{Stage: "suscrito"}, reviewer)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
