package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

// EnrollmentRepository manages enrollment hour balances.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListActiveByClassSection returns active enrollments with student names.
func (r *EnrollmentRepository) ListActiveByClassSection(ctx context.Context, exec sqlx.ExtContext, classSectionID string) ([]models.EnrollmentDetail, error) {
	const query = `
SELECT e.id, e.student_id, e.class_section_id, e.campus_id, e.purchased_hours, e.used_hours, e.status, e.created_at, e.updated_at, st.name AS student_name
FROM enrollments e
JOIN students st ON st.id = e.student_id
WHERE e.class_section_id = $1 AND e.status = 'active'
ORDER BY st.name ASC`
	var enrollments []models.EnrollmentDetail
	if err := sqlx.SelectContext(ctx, r.exec(exec), &enrollments, query, classSectionID); err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return enrollments, nil
}

// CountActive counts active enrollments of a class section.
func (r *EnrollmentRepository) CountActive(ctx context.Context, exec sqlx.ExtContext, classSectionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE class_section_id = $1 AND status = 'active'`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, classSectionID); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

// AddUsedHours increases used_hours by hours.
func (r *EnrollmentRepository) AddUsedHours(ctx context.Context, exec sqlx.ExtContext, id string, hours float64) error {
	const query = `UPDATE enrollments SET used_hours = used_hours + $2, updated_at = $3 WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, id, hours, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add used hours: %w", err)
	}
	return expectAffected(res, "add used hours")
}

// SubtractUsedHours decreases used_hours by hours, never below zero.
func (r *EnrollmentRepository) SubtractUsedHours(ctx context.Context, exec sqlx.ExtContext, id string, hours float64) error {
	const query = `UPDATE enrollments SET used_hours = GREATEST(used_hours - $2, 0), updated_at = $3 WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, id, hours, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("subtract used hours: %w", err)
	}
	return expectAffected(res, "subtract used hours")
}
