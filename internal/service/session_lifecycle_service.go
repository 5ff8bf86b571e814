package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
)

type lifecycleSessionStore interface {
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionDetail, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SessionStatus, actor string) error
}

type ledgerEnrollmentStore interface {
	ListActiveByClassSection(ctx context.Context, exec sqlx.ExtContext, classSectionID string) ([]models.EnrollmentDetail, error)
	AddUsedHours(ctx context.Context, exec sqlx.ExtContext, id string, hours float64) error
	SubtractUsedHours(ctx context.Context, exec sqlx.ExtContext, id string, hours float64) error
}

type ledgerStudentStore interface {
	DeductRemainingHours(ctx context.Context, exec sqlx.ExtContext, studentID string, hours float64) (float64, error)
	RestoreRemainingHours(ctx context.Context, exec sqlx.ExtContext, studentID string, hours float64) error
}

type lessonRecordStore interface {
	Insert(ctx context.Context, exec sqlx.ExtContext, record *models.LessonRecord) (bool, error)
	SetRemainingDeducted(ctx context.Context, exec sqlx.ExtContext, id string, hours float64) error
	ListBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string, recordType models.LessonRecordType) ([]models.LessonRecord, error)
	DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) (int64, error)
}

type attendanceReader interface {
	ListBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]models.StudentAttendance, error)
}

var allowedTransitions = map[models.SessionStatus]map[models.SessionStatus]bool{
	models.SessionStatusScheduled: {models.SessionStatusCompleted: true, models.SessionStatusCancelled: true},
	models.SessionStatusCompleted: {models.SessionStatusScheduled: true, models.SessionStatusCancelled: true},
	models.SessionStatusCancelled: {models.SessionStatusScheduled: true},
}

// SessionLifecycleService moves sessions between statuses and keeps the lesson-hour
// ledger consistent with them.
type SessionLifecycleService struct {
	sessions    lifecycleSessionStore
	enrollments ledgerEnrollmentStore
	students    ledgerStudentStore
	records     lessonRecordStore
	attendance  attendanceReader
	conflicts   sessionConflictChecker
	tx          txProvider
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewSessionLifecycleService wires the lifecycle service. conflicts may be nil, in which
// case reinstated sessions are not re-checked.
func NewSessionLifecycleService(
	sessions lifecycleSessionStore,
	enrollments ledgerEnrollmentStore,
	students ledgerStudentStore,
	records lessonRecordStore,
	attendance attendanceReader,
	conflicts sessionConflictChecker,
	tx txProvider,
	metrics *MetricsService,
	logger *zap.Logger,
) *SessionLifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionLifecycleService{
		sessions:    sessions,
		enrollments: enrollments,
		students:    students,
		records:     records,
		attendance:  attendance,
		conflicts:   conflicts,
		tx:          tx,
		metrics:     metrics,
		logger:      logger,
	}
}

// TransitionStatus moves a session to next and applies or reverses its ledger entries.
func (s *SessionLifecycleService) TransitionStatus(ctx context.Context, scope models.Scope, sessionID string, next models.SessionStatus) (*models.SessionDetail, error) {
	if !next.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be scheduled, completed or cancelled")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var row *models.SessionDetail
	row, err = s.sessions.LockByID(ctx, tx, sessionID)
	if err != nil {
		err = lookupError(err, "session not found", "failed to load session")
		return nil, err
	}
	if !scope.AllowsCampus(row.CampusID) {
		err = appErrors.Clone(appErrors.ErrForbidden, "session is outside your campus")
		return nil, err
	}
	if !scope.AllowsTeacher(row.EffectiveTeacherID) {
		err = appErrors.Clone(appErrors.ErrForbidden, "session belongs to another teacher")
		return nil, err
	}

	if err = s.transitionLocked(ctx, tx, row, next, scope.Actor()); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = internalError(err, "failed to commit transaction")
		return nil, err
	}
	return row, nil
}

// CompleteDue completes a past-due session on behalf of the sweep. It reports false when
// the session is no longer scheduled.
func (s *SessionLifecycleService) CompleteDue(ctx context.Context, sessionID string) (bool, error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return false, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var row *models.SessionDetail
	row, err = s.sessions.LockByID(ctx, tx, sessionID)
	if err != nil {
		err = lookupError(err, "session not found", "failed to load session")
		return false, err
	}
	if row.Status != models.SessionStatusScheduled {
		err = tx.Commit()
		if err != nil {
			err = internalError(err, "failed to commit transaction")
		}
		return false, err
	}
	if err = s.transitionLocked(ctx, tx, row, models.SessionStatusCompleted, models.SystemActor); err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		err = internalError(err, "failed to commit transaction")
		return false, err
	}
	return true, nil
}

// transitionLocked runs inside the caller's transaction with the session row already locked.
// row.Status is updated in place on success.
func (s *SessionLifecycleService) transitionLocked(ctx context.Context, tx sqlx.ExtContext, row *models.SessionDetail, next models.SessionStatus, actor string) error {
	current := row.Status
	if current == next {
		return nil
	}
	if !allowedTransitions[current][next] {
		return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot move session from %s to %s", current, next))
	}

	if current == models.SessionStatusCancelled && next == models.SessionStatusScheduled && s.conflicts != nil {
		candidate := models.ConflictCandidate{
			ClassSectionID:   row.ClassSectionID,
			TeacherID:        row.EffectiveTeacherID,
			ClassroomID:      row.EffectiveClassroomID,
			Date:             row.Date,
			StartTime:        row.StartTime,
			EndTime:          row.EndTime,
			ExcludeSessionID: row.ID,
			SkipRosterCheck:  true,
		}
		report, err := s.conflicts.Check(ctx, tx, candidate)
		if err != nil {
			return err
		}
		if report.HasConflict {
			return appErrors.WithDetails(appErrors.ErrConflict, "session cannot be reinstated", report.Conflicts)
		}
	}

	if err := s.sessions.UpdateStatus(ctx, tx, row.ID, next, actor); err != nil {
		return lookupError(err, "session not found", "failed to update session status")
	}

	applied, reversed := 0, 0
	var err error
	switch {
	case next == models.SessionStatusCompleted:
		applied, err = s.applyLedger(ctx, tx, row, actor)
	case current == models.SessionStatusCompleted:
		reversed, err = s.reverseLedger(ctx, tx, row)
	}
	if err != nil {
		return err
	}

	row.Status = next
	row.UpdatedBy = &actor
	s.metrics.RecordTransition(string(current), string(next))
	s.metrics.RecordLedger(applied, reversed)
	s.logger.Info("session status changed",
		zap.String("session_id", row.ID),
		zap.String("from", string(current)),
		zap.String("to", string(next)),
		zap.Int("records_applied", applied),
		zap.Int("records_reversed", reversed),
		zap.String("actor", actor),
	)
	return nil
}

// applyLedger writes one schedule record per eligible active enrollment. Balances move
// only for records actually inserted, so replays are harmless.
func (s *SessionLifecycleService) applyLedger(ctx context.Context, tx sqlx.ExtContext, row *models.SessionDetail, actor string) (int, error) {
	enrollments, err := s.enrollments.ListActiveByClassSection(ctx, tx, row.ClassSectionID)
	if err != nil {
		return 0, internalError(err, "failed to load enrollments")
	}
	attendances, err := s.attendance.ListBySession(ctx, tx, row.ID)
	if err != nil {
		return 0, internalError(err, "failed to load attendance")
	}
	excluded := make(map[string]bool, len(attendances))
	for _, a := range attendances {
		if a.ExcludesLedger() {
			excluded[a.EnrollmentID] = true
		}
	}

	applied := 0
	for _, enrollment := range enrollments {
		if excluded[enrollment.ID] {
			continue
		}
		record := &models.LessonRecord{
			EnrollmentID:   enrollment.ID,
			SessionID:      row.ID,
			StudentID:      enrollment.StudentID,
			ClassSectionID: row.ClassSectionID,
			Hours:          row.LessonHours,
			Type:           models.LessonRecordTypeSchedule,
			LessonDate:     row.Date,
			CreatedBy:      actor,
		}
		inserted, err := s.records.Insert(ctx, tx, record)
		if err != nil {
			return 0, internalError(err, "failed to write lesson record")
		}
		if !inserted {
			continue
		}
		if err := s.enrollments.AddUsedHours(ctx, tx, enrollment.ID, row.LessonHours); err != nil {
			return 0, internalError(err, "failed to update enrollment hours")
		}
		deducted, err := s.students.DeductRemainingHours(ctx, tx, enrollment.StudentID, row.LessonHours)
		if err != nil {
			return 0, internalError(err, "failed to update student hours")
		}
		if deducted != record.RemainingDeducted {
			if err := s.records.SetRemainingDeducted(ctx, tx, record.ID, deducted); err != nil {
				return 0, internalError(err, "failed to write lesson record")
			}
		}
		applied++
	}
	return applied, nil
}

// reverseLedger undoes every schedule record of the session.
func (s *SessionLifecycleService) reverseLedger(ctx context.Context, tx sqlx.ExtContext, row *models.SessionDetail) (int, error) {
	records, err := s.records.ListBySession(ctx, tx, row.ID, models.LessonRecordTypeSchedule)
	if err != nil {
		return 0, internalError(err, "failed to load lesson records")
	}
	if len(records) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		if err := s.enrollments.SubtractUsedHours(ctx, tx, record.EnrollmentID, record.Hours); err != nil {
			return 0, internalError(err, "failed to update enrollment hours")
		}
		if record.RemainingDeducted > 0 {
			if err := s.students.RestoreRemainingHours(ctx, tx, record.StudentID, record.RemainingDeducted); err != nil {
				return 0, internalError(err, "failed to update student hours")
			}
		}
		ids = append(ids, record.ID)
	}
	if _, err := s.records.DeleteByIDs(ctx, tx, ids); err != nil {
		return 0, internalError(err, "failed to delete lesson records")
	}
	return len(records), nil
}
