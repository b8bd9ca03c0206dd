package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-estudiante-api/internal/models"
)

func TestProfileRepositoryGetByUserID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProfileRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+profileColumns+" FROM profiles WHERE user_id = $1")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "full_name", "document_type", "document_number", "email", "phone", "address", "city", "program", "enrollment_stage", "stage_updated_at", "created_at", "updated_at"}).
			AddRow("s1", "Ana Pérez", "CC", "123", "ana@example.com", nil, nil, "Cali", nil, "matriculado", now, now, now))

	profile, err := repo.GetByUserID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StageEnrolled, profile.EnrollmentStage)
	require.NotNil(t, profile.Email)
	assert.Equal(t, "ana@example.com", *profile.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepositoryUpdateStageAllowsRegression(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProfileRepository(db)

	at := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE profiles SET enrollment_stage = $2, stage_updated_at = $3, updated_at = $3 WHERE user_id = $1")).
		WithArgs("s1", models.StageSubscribed, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notification_outbox")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.UpdateStage(context.Background(), "s1", models.StageSubscribed, at, []models.NotificationIntent{{UserID: "s1", Type: models.NotificationStage}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepositoryUpdateContactMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProfileRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE profiles SET full_name")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateContact(context.Background(), &models.Profile{UserID: "ghost"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepositoryListByStage(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProfileRepository(db)

	stage := models.StageSubscribed
	mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE enrollment_stage = $1 AND (LOWER(full_name) LIKE $2 OR document_number LIKE $2) ORDER BY full_name ASC LIMIT 50 OFFSET 0")).
		WithArgs(stage, "%ana%").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM profiles WHERE")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, total, err := repo.List(context.Background(), models.ProfileFilter{Stage: &stage, Search: "Ana"})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
