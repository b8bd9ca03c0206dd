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

const paymentColumns = `id, user_id, payment_date, payment_method, amount, gift_received, documents_status, created_at`

const installmentColumns = `id, user_id, installment_number, amount, support, support_storage, support_mime_type, observations, status, rejection_reason, reviewed_by, reviewed_at, due_date, support_uploaded_at, created_at`

// PaymentRepository persists payments and installments.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreatePayment records a payment event.
func (r *PaymentRepository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO payments (id, user_id, payment_date, payment_method, amount, gift_received, documents_status, created_at)
VALUES (:id, :user_id, :payment_date, :payment_method, :amount, :gift_received, :documents_status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// ListPayments returns payments newest first with the total count.
func (r *PaymentRepository) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	where, args := paymentWhere(filter, "", "payment_date", false)
	limit, offset := clampPage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s FROM payments%s ORDER BY payment_date DESC LIMIT %d OFFSET %d", paymentColumns, where, limit, offset)
	var items []models.Payment
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM payments"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return items, total, nil
}

// CreateInstallment inserts a scheduled installment.
func (r *PaymentRepository) CreateInstallment(ctx context.Context, inst *models.Installment) error {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO installments (id, user_id, installment_number, amount, status, due_date, created_at)
VALUES (:id, :user_id, :installment_number, :amount, :status, :due_date, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, inst); err != nil {
		return fmt.Errorf("create installment: %w", err)
	}
	return nil
}

// GetInstallment returns one installment by id.
func (r *PaymentRepository) GetInstallment(ctx context.Context, id string) (*models.Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM installments WHERE id = $1`
	var inst models.Installment
	if err := r.db.GetContext(ctx, &inst, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get installment: %w", err)
	}
	return &inst, nil
}

// ListInstallments returns installments ordered by user and number with the total count.
func (r *PaymentRepository) ListInstallments(ctx context.Context, filter models.PaymentFilter) ([]models.Installment, int, error) {
	where, args := paymentWhere(filter, "", "due_date", true)
	limit, offset := clampPage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s FROM installments%s ORDER BY user_id ASC, installment_number ASC LIMIT %d OFFSET %d", installmentColumns, where, limit, offset)
	var items []models.Installment
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list installments: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM installments"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count installments: %w", err)
	}
	return items, total, nil
}

// AttachSupportParams carries the uploaded support reference.
type AttachSupportParams struct {
	InstallmentID string
	Reference     string
	Storage       string
	MimeType      string
	Observations  *string
	UploadedAt    time.Time
}

// AttachSupport stores the support reference. The installment status is left untouched.
func (r *PaymentRepository) AttachSupport(ctx context.Context, params AttachSupportParams, intents []models.NotificationIntent) error {
	return withTx(ctx, r.db, "installment support", intents, func(tx *sqlx.Tx) error {
		const query = `UPDATE installments SET support = $2, support_storage = $3, support_mime_type = $4, observations = $5, support_uploaded_at = $6 WHERE id = $1`
		res, err := tx.ExecContext(ctx, query, params.InstallmentID, params.Reference, params.Storage, params.MimeType, params.Observations, params.UploadedAt)
		if err != nil {
			return fmt.Errorf("attach installment support: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check support rows: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// ReviewInstallment writes a reviewer decision without a status guard (last write wins).
func (r *PaymentRepository) ReviewInstallment(ctx context.Context, id string, status models.ReviewStatus, reason *string, reviewerID string, at time.Time, intents []models.NotificationIntent) error {
	return withTx(ctx, r.db, "installment review", intents, func(tx *sqlx.Tx) error {
		const query = `UPDATE installments SET status = $2, rejection_reason = $3, reviewed_by = $4, reviewed_at = $5 WHERE id = $1`
		res, err := tx.ExecContext(ctx, query, id, status, reason, reviewerID, at)
		if err != nil {
			return fmt.Errorf("review installment: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check installment review rows: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// InstallmentReportRow joins an installment with its owner's profile for exports.
type InstallmentReportRow struct {
	models.Installment
	FullName       string `db:"full_name"`
	DocumentNumber string `db:"document_number"`
}

// ListForReport returns every installment matching the filter joined with profile names.
func (r *PaymentRepository) ListForReport(ctx context.Context, filter models.PaymentFilter) ([]InstallmentReportRow, error) {
	where, args := paymentWhere(filter, "i.", "due_date", true)
	cols := make([]string, 0, 16)
	for _, col := range strings.Split(installmentColumns, ", ") {
		cols = append(cols, "i."+col)
	}
	query := fmt.Sprintf(`SELECT %s, COALESCE(p.full_name, '') AS full_name, COALESCE(p.document_number, '') AS document_number
FROM installments i LEFT JOIN profiles p ON p.user_id = i.user_id%s ORDER BY full_name ASC, i.installment_number ASC`, strings.Join(cols, ", "), where)
	var rows []InstallmentReportRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list installments for report: %w", err)
	}
	return rows, nil
}

// paymentWhere builds the WHERE clause shared by payment and installment listings.
func paymentWhere(filter models.PaymentFilter, alias, dateColumn string, withStatus bool) (string, []interface{}) {
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 4)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("%suser_id = $%d", alias, len(args)))
	}
	if withStatus && filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("CASE WHEN %[1]ssupport_uploaded_at > %[1]sreviewed_at THEN 'pendiente' ELSE COALESCE(%[1]sstatus, 'pendiente') END = $%[2]d", alias, len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("%s%s >= $%d", alias, dateColumn, len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("%s%s <= $%d", alias, dateColumn, len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
