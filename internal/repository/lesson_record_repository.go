package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

// LessonRecordRepository persists ledger entries.
type LessonRecordRepository struct {
	db *sqlx.DB
}

// NewLessonRecordRepository builds repository.
func NewLessonRecordRepository(db *sqlx.DB) *LessonRecordRepository {
	return &LessonRecordRepository{db: db}
}

func (r *LessonRecordRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Insert writes the record unless one already exists for (enrollment, session, type).
// It reports whether a row was written.
func (r *LessonRecordRepository) Insert(ctx context.Context, exec sqlx.ExtContext, record *models.LessonRecord) (bool, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO lesson_records (id, enrollment_id, session_id, student_id, class_section_id, hours, remaining_deducted, type, lesson_date, created_by, created_at)
VALUES (:id, :enrollment_id, :session_id, :student_id, :class_section_id, :hours, :remaining_deducted, :type, :lesson_date, :created_by, :created_at)
ON CONFLICT (enrollment_id, session_id, type) DO NOTHING`
	res, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, record)
	if err != nil {
		return false, fmt.Errorf("insert lesson record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert lesson record: %w", err)
	}
	return affected > 0, nil
}

// ListBySession returns the session's records of the given type.
func (r *LessonRecordRepository) ListBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string, recordType models.LessonRecordType) ([]models.LessonRecord, error) {
	const query = `SELECT id, enrollment_id, session_id, student_id, class_section_id, hours, remaining_deducted, type, lesson_date, created_by, created_at
FROM lesson_records WHERE session_id = $1 AND type = $2 ORDER BY created_at ASC`
	var records []models.LessonRecord
	if err := sqlx.SelectContext(ctx, r.exec(exec), &records, query, sessionID, recordType); err != nil {
		return nil, fmt.Errorf("list lesson records: %w", err)
	}
	return records, nil
}

// SetRemainingDeducted stores how much of the student's balance record id consumed.
func (r *LessonRecordRepository) SetRemainingDeducted(ctx context.Context, exec sqlx.ExtContext, id string, hours float64) error {
	const query = `UPDATE lesson_records SET remaining_deducted = $2 WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, id, hours)
	if err != nil {
		return fmt.Errorf("set remaining deducted: %w", err)
	}
	return expectAffected(res, "set remaining deducted")
}

// DeleteByIDs removes the given records.
func (r *LessonRecordRepository) DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM lesson_records WHERE id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("build delete lesson records: %w", err)
	}
	res, err := r.exec(exec).ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete lesson records: %w", err)
	}
	return res.RowsAffected()
}
