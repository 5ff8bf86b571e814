package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

const sessionColumns = `s.id, s.class_section_id, s.campus_id, s.teacher_id, s.classroom_id, s.date, s.start_time, s.end_time, s.lesson_hours, s.status, s.batch_no, s.title, s.notes, s.created_by, s.updated_by, s.created_at, s.updated_at`

const sessionDetailColumns = sessionColumns + `, COALESCE(s.teacher_id, cs.teacher_id) AS effective_teacher_id, COALESCE(s.classroom_id, cs.classroom_id) AS effective_classroom_id, t.name AS teacher_name, cr.name AS classroom_name, cs.name AS class_section_name`

const sessionDetailFrom = `FROM sessions s
JOIN class_sections cs ON cs.id = s.class_section_id
LEFT JOIN teachers t ON t.id = COALESCE(s.teacher_id, cs.teacher_id)
LEFT JOIN classrooms cr ON cr.id = COALESCE(s.classroom_id, cs.classroom_id)`

// SessionRepository persists sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository builds repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// scopeConditions appends the campus and teacher restrictions of scope to conditions.
func scopeConditions(scope models.Scope, conditions []string, args []interface{}) ([]string, []interface{}) {
	if scope.CampusID != nil {
		args = append(args, *scope.CampusID)
		conditions = append(conditions, fmt.Sprintf("s.campus_id = $%d", len(args)))
	}
	if scope.IsTeacher {
		args = append(args, scope.TeacherID)
		conditions = append(conditions, fmt.Sprintf("COALESCE(s.teacher_id, cs.teacher_id) = $%d", len(args)))
	}
	return conditions, args
}

// FindByID returns a session with its effective resources.
func (r *SessionRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE s.id = $1", sessionDetailColumns, sessionDetailFrom)
	var session models.SessionDetail
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, query, id); err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// LockByID reads a session row and holds a row lock until the surrounding transaction ends.
func (r *SessionRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE s.id = $1 FOR UPDATE OF s", sessionDetailColumns, sessionDetailFrom)
	var session models.SessionDetail
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, query, id); err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	return &session, nil
}

// ListForConflict returns non-cancelled sessions on date whose effective teacher or classroom
// matches. The caller applies the overlap predicate.
func (r *SessionRepository) ListForConflict(ctx context.Context, exec sqlx.ExtContext, date time.Time, teacherID, classroomID *string, excludeID string) ([]models.SessionDetail, error) {
	if teacherID == nil && classroomID == nil {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s %s
WHERE s.date = $1 AND s.status <> 'cancelled'
AND (COALESCE(s.teacher_id, cs.teacher_id) = $2 OR COALESCE(s.classroom_id, cs.classroom_id) = $3)
AND ($4 = '' OR s.id::text <> $4)
ORDER BY s.start_time ASC`, sessionDetailColumns, sessionDetailFrom)
	var sessions []models.SessionDetail
	if err := sqlx.SelectContext(ctx, r.exec(exec), &sessions, query, models.DateOnly(date), teacherID, classroomID, excludeID); err != nil {
		return nil, fmt.Errorf("list conflicting sessions: %w", err)
	}
	return sessions, nil
}

// Create inserts a session.
func (r *SessionRepository) Create(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	if session.Status == "" {
		session.Status = models.SessionStatusScheduled
	}

	const query = `
INSERT INTO sessions (id, class_section_id, campus_id, teacher_id, classroom_id, date, start_time, end_time, lesson_hours, status, batch_no, title, notes, created_by, updated_by, created_at, updated_at)
VALUES (:id, :class_section_id, :campus_id, :teacher_id, :classroom_id, :date, :start_time, :end_time, :lesson_hours, :status, :batch_no, :title, :notes, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Update persists editable fields. Status is written through UpdateStatus only.
func (r *SessionRepository) Update(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `
UPDATE sessions SET teacher_id = :teacher_id, classroom_id = :classroom_id, date = :date, start_time = :start_time,
end_time = :end_time, lesson_hours = :lesson_hours, title = :title, notes = :notes, updated_by = :updated_by, updated_at = :updated_at
WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, session)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return expectAffected(res, "update session")
}

// UpdateStatus writes the status column.
func (r *SessionRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SessionStatus, actor string) error {
	const query = `UPDATE sessions SET status = $2, updated_by = $3, updated_at = $4 WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, id, status, actor, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return expectAffected(res, "update session status")
}

// ListByIDs returns the sessions among ids visible to scope, optionally locking them.
func (r *SessionRepository) ListByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string, scope models.Scope, forUpdate bool) ([]models.SessionDetail, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	conditions := []string{"s.id = ANY($1::uuid[])"}
	args := []interface{}{pq.Array(ids)}
	conditions, args = scopeConditions(scope, conditions, args)

	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY s.date ASC, s.start_time ASC", sessionDetailColumns, sessionDetailFrom, strings.Join(conditions, " AND "))
	if forUpdate {
		query += " FOR UPDATE OF s"
	}
	var sessions []models.SessionDetail
	if err := sqlx.SelectContext(ctx, r.exec(exec), &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions by ids: %w", err)
	}
	return sessions, nil
}

// DeleteByIDs removes non-completed sessions among ids visible to scope.
func (r *SessionRepository) DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string, scope models.Scope) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	conditions := []string{"cs.id = s.class_section_id", "s.id = ANY($1::uuid[])", "s.status <> 'completed'"}
	args := []interface{}{pq.Array(ids)}
	conditions, args = scopeConditions(scope, conditions, args)

	query := "DELETE FROM sessions s USING class_sections cs WHERE " + strings.Join(conditions, " AND ")
	res, err := r.exec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete sessions by ids: %w", err)
	}
	return res.RowsAffected()
}

// DeleteByBatchNo removes non-completed sessions of a batch visible to scope.
func (r *SessionRepository) DeleteByBatchNo(ctx context.Context, exec sqlx.ExtContext, batchNo string, scope models.Scope) (int64, error) {
	conditions := []string{"cs.id = s.class_section_id", "s.batch_no = $1", "s.status <> 'completed'"}
	args := []interface{}{batchNo}
	conditions, args = scopeConditions(scope, conditions, args)

	query := "DELETE FROM sessions s USING class_sections cs WHERE " + strings.Join(conditions, " AND ")
	res, err := r.exec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete sessions by batch: %w", err)
	}
	return res.RowsAffected()
}

// Delete removes one session regardless of status; callers guard completed sessions.
func (r *SessionRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	res, err := r.exec(exec).ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return expectAffected(res, "delete session")
}

// ListDueForSweep returns scheduled sessions dated strictly before cutoff in
// (date, start_time, id) order. A non-nil after resumes the scan past that row.
func (r *SessionRepository) ListDueForSweep(ctx context.Context, cutoff time.Time, after *models.DueSession, limit int) ([]models.DueSession, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `SELECT id, date, start_time FROM sessions WHERE status = 'scheduled' AND date < $1`
	args := []interface{}{models.DateOnly(cutoff)}
	if after != nil {
		query += ` AND (date, start_time, id) > ($2, $3, $4)`
		args = append(args, models.DateOnly(after.Date), after.StartTime, after.ID)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY date ASC, start_time ASC, id ASC LIMIT $%d`, len(args))

	var due []models.DueSession
	if err := r.db.SelectContext(ctx, &due, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions due for sweep: %w", err)
	}
	return due, nil
}

// List returns sessions matching filter inside scope with the total count.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter, scope models.Scope) ([]models.SessionDetail, int, error) {
	var conditions []string
	var args []interface{}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}
	if filter.ClassSectionID != "" {
		add("s.class_section_id = $%d", filter.ClassSectionID)
	}
	if filter.TeacherID != "" {
		add("COALESCE(s.teacher_id, cs.teacher_id) = $%d", filter.TeacherID)
	}
	if filter.ClassroomID != "" {
		add("COALESCE(s.classroom_id, cs.classroom_id) = $%d", filter.ClassroomID)
	}
	if filter.BatchNo != "" {
		add("s.batch_no = $%d", filter.BatchNo)
	}
	if filter.Status != "" {
		add("s.status = $%d", filter.Status)
	}
	if filter.DateFrom != nil {
		add("s.date >= $%d", models.DateOnly(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		add("s.date <= $%d", models.DateOnly(*filter.DateTo))
	}
	conditions, args = scopeConditions(scope, conditions, args)

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s%s ORDER BY s.date %s, s.start_time %s LIMIT %d OFFSET %d",
		sessionDetailColumns, sessionDetailFrom, where, sortOrder, sortOrder, pageSize, offset)
	var sessions []models.SessionDetail
	if err := r.db.SelectContext(ctx, &sessions, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM sessions s JOIN class_sections cs ON cs.id = s.class_section_id%s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// SumScheduledHours totals lesson_hours of scheduled sessions in a class section.
func (r *SessionRepository) SumScheduledHours(ctx context.Context, exec sqlx.ExtContext, classSectionID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(lesson_hours), 0) FROM sessions WHERE class_section_id = $1 AND status = 'scheduled'`
	var total float64
	if err := sqlx.GetContext(ctx, r.exec(exec), &total, query, classSectionID); err != nil {
		return 0, fmt.Errorf("sum scheduled hours: %w", err)
	}
	return total, nil
}

// AcquireLocks takes transaction-scoped advisory locks for keys in the given order.
// Callers sort keys so concurrent transactions lock in the same sequence.
func (r *SessionRepository) AcquireLocks(ctx context.Context, exec sqlx.ExtContext, keys []string) error {
	for _, key := range keys {
		if _, err := r.exec(exec).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("acquire advisory lock %s: %w", key, err)
		}
	}
	return nil
}
