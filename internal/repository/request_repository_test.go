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

func TestRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO requests")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notification_outbox")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	req := &models.Request{UserID: "s1", Subject: "Certificado", Message: "Necesito un certificado"}
	require.NoError(t, repo.Create(context.Background(), req, []models.NotificationIntent{{UserID: "s1"}}))
	assert.Equal(t, models.RequestPending, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryRespond(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	at := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status = $2, response = $3, responded_by = $4, responded_at = $5 WHERE id = $1")).
		WithArgs("r1", models.RequestResponded, "Listo", "fin-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Respond(context.Background(), "r1", "Listo", "fin-1", at, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM requests WHERE id = $1")).WithArgs("nope").WillReturnError(sql.ErrNoRows)
	_, err := repo.GetByID(context.Background(), "nope")
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestRequestRepositoryListByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+requestColumns+" FROM requests WHERE status = $1 ORDER BY created_at DESC LIMIT 20 OFFSET 20")).
		WithArgs(models.RequestPending).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "subject", "message", "status", "response", "responded_by", "responded_at", "created_at"}).
			AddRow("r1", "s1", "Paz y salvo", "texto", "pendiente", nil, nil, nil, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM requests WHERE status = $1")).
		WithArgs(models.RequestPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))

	items, total, err := repo.List(context.Background(), models.RequestFilter{Status: models.RequestPending, Page: 2, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 21, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
