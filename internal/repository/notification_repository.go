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

const notificationColumns = `id, user_id, title, body, type, link, read, created_at`

const outboxColumns = `id, user_id, title, body, type, link, status, attempts, last_error, notification_id, created_at, delivered_at`

// NotificationRepository persists notifications and their outbox.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// List returns a user's notifications newest first with the total count.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	where := strings.Builder{}
	where.WriteString(" FROM notifications WHERE user_id = $1")
	args := []interface{}{filter.UserID}
	if filter.UnreadOnly {
		where.WriteString(" AND read = FALSE")
	}

	limit, offset := clampPage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s%s ORDER BY created_at DESC LIMIT %d OFFSET %d", notificationColumns, where.String(), limit, offset)
	var items []models.Notification
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+where.String(), args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return items, total, nil
}

// CountUnread returns the number of unread notifications for the user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flags one notification for its owner. Returns sql.ErrNoRows when absent.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	const query = `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check notification read rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkAllRead flags every unread notification of the user and returns how many changed.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	const query = `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return res.RowsAffected()
}

// EnqueueOutbox stores intents outside any workflow transaction.
func (r *NotificationRepository) EnqueueOutbox(ctx context.Context, intents []models.NotificationIntent) error {
	if len(intents) == 0 {
		return nil
	}
	return withTx(ctx, r.db, "notification outbox", intents, func(*sqlx.Tx) error { return nil })
}

// ListUndelivered returns pending entries, then failed entries still under maxAttempts,
// each group oldest first.
func (r *NotificationRepository) ListUndelivered(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM notification_outbox
WHERE status = 'pending' OR (status = 'failed' AND attempts < $2)
ORDER BY status = 'failed', created_at ASC LIMIT $1`, outboxColumns)
	var entries []models.OutboxEntry
	if err := r.db.SelectContext(ctx, &entries, query, limit, maxAttempts); err != nil {
		return nil, fmt.Errorf("list undelivered outbox: %w", err)
	}
	return entries, nil
}

// Deliver inserts the notification for entry and marks the entry delivered atomically.
// The update is guarded on status so concurrent drains deliver an entry once.
func (r *NotificationRepository) Deliver(ctx context.Context, entry models.OutboxEntry) (notification *models.Notification, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin outbox delivery: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	n := entry.Notification()
	n.ID = uuid.NewString()
	n.CreatedAt = now

	const markQuery = `UPDATE notification_outbox SET status = 'delivered', attempts = attempts + 1, last_error = NULL, notification_id = $2, delivered_at = $3
WHERE id = $1 AND status <> 'delivered'`
	res, err := tx.ExecContext(ctx, markQuery, entry.ID, n.ID, now)
	if err != nil {
		return nil, fmt.Errorf("mark outbox delivered: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check outbox delivered rows: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return nil, err
	}

	const insertQuery = `INSERT INTO notifications (id, user_id, title, body, type, link, read, created_at)
VALUES (:id, :user_id, :title, :body, :type, :link, :read, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, n); err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit outbox delivery: %w", err)
	}
	return &n, nil
}

// MarkFailed records a failed delivery attempt.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id, reason string) error {
	const query = `UPDATE notification_outbox SET status = 'failed', attempts = attempts + 1, last_error = $2 WHERE id = $1 AND status <> 'delivered'`
	if _, err := r.db.ExecContext(ctx, query, id, reason); err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

// CountOutbox groups outbox entries by status.
func (r *NotificationRepository) CountOutbox(ctx context.Context) (map[models.OutboxStatus]int, error) {
	rows := []struct {
		Status models.OutboxStatus `db:"status"`
		Count  int                 `db:"count"`
	}{}
	const query = `SELECT status, COUNT(*) AS count FROM notification_outbox GROUP BY status`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count outbox: %w", err)
	}
	out := make(map[models.OutboxStatus]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
