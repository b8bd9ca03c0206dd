package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/portal-estudiante-api/internal/models"
)

const insertOutboxQuery = `INSERT INTO notification_outbox (id, user_id, title, body, type, link, status, attempts, created_at)
VALUES (:id, :user_id, :title, :body, :type, :link, :status, :attempts, :created_at)`

// insertOutboxTx records notification intents in the caller's transaction.
func insertOutboxTx(ctx context.Context, tx *sqlx.Tx, intents []models.NotificationIntent) error {
	now := time.Now().UTC()
	for _, intent := range intents {
		entry := models.OutboxEntry{
			ID:        uuid.NewString(),
			UserID:    intent.UserID,
			Title:     intent.Title,
			Body:      intent.Body,
			Type:      intent.Type,
			Link:      intent.Link,
			Status:    models.OutboxPending,
			CreatedAt: now,
		}
		if _, err := tx.NamedExecContext(ctx, insertOutboxQuery, entry); err != nil {
			return fmt.Errorf("insert notification outbox: %w", err)
		}
	}
	return nil
}

// withTx runs fn in a transaction followed by the outbox insert for intents.
func withTx(ctx context.Context, db *sqlx.DB, name string, intents []models.NotificationIntent, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s transaction: %w", name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = insertOutboxTx(ctx, tx, intents); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}

func clampPage(page, size int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	return size, (page - 1) * size
}
