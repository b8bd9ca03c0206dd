package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/portal-estudiante-api/internal/models"
)

const profileColumns = `user_id, full_name, document_type, document_number, email, phone, address, city, program, enrollment_stage, stage_updated_at, created_at, updated_at`

const insertProfileQuery = `INSERT INTO profiles (user_id, full_name, document_type, document_number, email, phone, address, city, program, enrollment_stage, stage_updated_at, created_at, updated_at)
VALUES (:user_id, :full_name, :document_type, :document_number, :email, :phone, :address, :city, :program, :enrollment_stage, :stage_updated_at, :created_at, :updated_at)`

// ProfileRepository persists student profiles and enrollment stages.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs the repository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByUserID returns the profile owned by the user.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	var profile models.Profile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &profile, nil
}

// List returns profiles filtered by stage and name/document search.
func (r *ProfileRepository) List(ctx context.Context, filter models.ProfileFilter) ([]models.Profile, int, error) {
	where := strings.Builder{}
	where.WriteString(" FROM profiles")
	args := make([]interface{}, 0, 2)
	conditions := make([]string, 0, 2)
	if filter.Stage != nil {
		args = append(args, *filter.Stage)
		conditions = append(conditions, fmt.Sprintf("enrollment_stage = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR document_number LIKE $%d)", len(args), len(args)))
	}
	if len(conditions) > 0 {
		where.WriteString(" WHERE ")
		where.WriteString(strings.Join(conditions, " AND "))
	}

	limit, offset := clampPage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s%s ORDER BY full_name ASC LIMIT %d OFFSET %d", profileColumns, where.String(), limit, offset)
	var profiles []models.Profile
	if err := r.db.SelectContext(ctx, &profiles, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list profiles: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+where.String(), args...); err != nil {
		return nil, 0, fmt.Errorf("count profiles: %w", err)
	}
	return profiles, total, nil
}

// UpdateContact overwrites the editable personal fields.
func (r *ProfileRepository) UpdateContact(ctx context.Context, profile *models.Profile) error {
	profile.UpdatedAt = time.Now().UTC()
	const query = `UPDATE profiles SET full_name = :full_name, email = :email, phone = :phone, address = :address, city = :city, program = :program, updated_at = :updated_at
WHERE user_id = :user_id`
	res, err := r.db.NamedExecContext(ctx, query, profile)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check profile update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStage persists a new enrollment stage together with its notification intents.
func (r *ProfileRepository) UpdateStage(ctx context.Context, userID string, stage models.EnrollmentStage, at time.Time, intents []models.NotificationIntent) error {
	return withTx(ctx, r.db, "stage update", intents, func(tx *sqlx.Tx) error {
		const query = `UPDATE profiles SET enrollment_stage = $2, stage_updated_at = $3, updated_at = $3 WHERE user_id = $1`
		res, err := tx.ExecContext(ctx, query, userID, stage, at)
		if err != nil {
			return fmt.Errorf("update enrollment stage: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check stage update rows: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}
