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

const documentColumns = `id, user_id, type, name, storage, path, drive_file_id, web_view_link, mime_type, size_bytes, status, rejection_reason, reviewed_by, reviewed_at, uploaded_at`

// DocumentRepository handles document metadata persistence.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create stores metadata for an uploaded document with its notification intents.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document, intents []models.NotificationIntent) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	return withTx(ctx, r.db, "document upload", intents, func(tx *sqlx.Tx) error {
		const query = `INSERT INTO documents
	(id, user_id, type, name, storage, path, drive_file_id, web_view_link, mime_type, size_bytes, status, uploaded_at)
	VALUES (:id, :user_id, :type, :name, :storage, :path, :drive_file_id, :web_view_link, :mime_type, :size_bytes, :status, :uploaded_at)`
		if _, err := tx.NamedExecContext(ctx, query, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		return nil
	})
}

// GetByID retrieves one document row.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// List returns documents applying filters, newest first, with the total count.
func (r *DocumentRepository) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error) {
	where := strings.Builder{}
	where.WriteString(" FROM documents")
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 4)

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Storage != "" {
		args = append(args, filter.Storage)
		conditions = append(conditions, fmt.Sprintf("storage = $%d", len(args)))
	}
	if len(conditions) > 0 {
		where.WriteString(" WHERE ")
		where.WriteString(strings.Join(conditions, " AND "))
	}

	limit, offset := clampPage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s%s ORDER BY uploaded_at DESC LIMIT %d OFFSET %d", documentColumns, where.String(), limit, offset)
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+where.String(), args...); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}
	return docs, total, nil
}

// ListByUser returns every document of a user newest first.
func (r *DocumentRepository) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE user_id = $1 ORDER BY uploaded_at DESC`
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, userID); err != nil {
		return nil, fmt.Errorf("list user documents: %w", err)
	}
	return docs, nil
}

// Review writes a reviewer decision. The update carries no status guard, so when two
// reviewers race the last committed write wins.
func (r *DocumentRepository) Review(ctx context.Context, id string, status models.ReviewStatus, reason *string, reviewerID string, at time.Time, intents []models.NotificationIntent) error {
	return withTx(ctx, r.db, "document review", intents, func(tx *sqlx.Tx) error {
		const query = `UPDATE documents SET status = $2, rejection_reason = $3, reviewed_by = $4, reviewed_at = $5 WHERE id = $1`
		res, err := tx.ExecContext(ctx, query, id, status, reason, reviewerID, at)
		if err != nil {
			return fmt.Errorf("review document: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check document review rows: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// Delete removes the metadata row.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM documents WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check document delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListLocal returns up to limit documents still stored on local disk, oldest first.
func (r *DocumentRepository) ListLocal(ctx context.Context, limit int) ([]models.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE storage = 'local' AND path IS NOT NULL ORDER BY uploaded_at ASC LIMIT $1`
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, limit); err != nil {
		return nil, fmt.Errorf("list local documents: %w", err)
	}
	return docs, nil
}

// MoveToDrive points the row at its Drive copy and clears the local path.
func (r *DocumentRepository) MoveToDrive(ctx context.Context, id, driveFileID string, webViewLink *string) error {
	const query = `UPDATE documents SET storage = 'drive', drive_file_id = $2, web_view_link = $3, path = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, driveFileID, webViewLink); err != nil {
		return fmt.Errorf("move document to drive: %w", err)
	}
	return nil
}
