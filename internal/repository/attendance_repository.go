package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

// AttendanceRepository reads per-session attendance outcomes.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository builds repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

func (r *AttendanceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListBySession returns attendance rows recorded for a session.
func (r *AttendanceRepository) ListBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]models.StudentAttendance, error) {
	const query = `SELECT id, enrollment_id, session_id, status, deduct_hours, created_at, updated_at FROM student_attendances WHERE session_id = $1`
	var rows []models.StudentAttendance
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session attendance: %w", err)
	}
	return rows, nil
}
