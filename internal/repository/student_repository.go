package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// StudentRepository maintains the student remaining-hours aggregate.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a new repository instance.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// DeductRemainingHours lowers remaining_hours by hours, clamped at zero, and returns the
// amount actually removed. A missing student deducts nothing.
func (r *StudentRepository) DeductRemainingHours(ctx context.Context, exec sqlx.ExtContext, studentID string, hours float64) (float64, error) {
	const query = `
WITH prev AS (SELECT id, remaining_hours FROM students WHERE id = $1 FOR UPDATE)
UPDATE students s SET remaining_hours = GREATEST(prev.remaining_hours - $2, 0), updated_at = $3
FROM prev WHERE s.id = prev.id
RETURNING prev.remaining_hours - s.remaining_hours`
	var deducted float64
	if err := sqlx.GetContext(ctx, r.exec(exec), &deducted, query, studentID, hours, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("deduct remaining hours: %w", err)
	}
	return deducted, nil
}

// RestoreRemainingHours returns hours to remaining_hours.
func (r *StudentRepository) RestoreRemainingHours(ctx context.Context, exec sqlx.ExtContext, studentID string, hours float64) error {
	const query = `UPDATE students SET remaining_hours = remaining_hours + $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, studentID, hours, time.Now().UTC()); err != nil {
		return fmt.Errorf("restore remaining hours: %w", err)
	}
	return nil
}
