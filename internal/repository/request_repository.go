package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/portal-estudiante-api/internal/models"
)

const requestColumns = `id, user_id, subject, message, status, response, responded_by, responded_at, created_at`

// RequestRepository persists student requests.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a request with its notification intents.
func (r *RequestRepository) Create(ctx context.Context, req *models.Request, intents []models.NotificationIntent) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Status == "" {
		req.Status = models.RequestPending
	}
	return withTx(ctx, r.db, "request create", intents, func(tx *sqlx.Tx) error {
		const query = `INSERT INTO requests (id, user_id, subject, message, status, created_at)
VALUES (:id, :user_id, :subject, :message, :status, :created_at)`
		if _, err := tx.NamedExecContext(ctx, query, req); err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		return nil
	})
}

// GetByID returns a request by id.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`
	var req models.Request
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get request: %w", err)
	}
	return &req, nil
}

// List returns requests newest first with the total count.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	where := strings.Builder{}
	where.WriteString(" FROM requests")
	args := make([]interface{}, 0, 2)
	conditions := make([]string, 0, 2)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conditions) > 0 {
		where.WriteString(" WHERE ")
		where.WriteString(strings.Join(conditions, " AND "))
	}

	limit, offset := clampPage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s%s ORDER BY created_at DESC LIMIT %d OFFSET %d", requestColumns, where.String(), limit, offset)
	var items []models.Request
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+where.String(), args...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}
	return items, total, nil
}

// Respond stores the reviewer answer and marks the request responded.
func (r *RequestRepository) Respond(ctx context.Context, id, response, responderID string, at time.Time, intents []models.NotificationIntent) error {
	return withTx(ctx, r.db, "request respond", intents, func(tx *sqlx.Tx) error {
		const query = `UPDATE requests SET status = $2, response = $3, responded_by = $4, responded_at = $5 WHERE id = $1`
		res, err := tx.ExecContext(ctx, query, id, models.RequestResponded, response, responderID, at)
		if err != nil {
			return fmt.Errorf("respond request: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check request respond rows: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}
