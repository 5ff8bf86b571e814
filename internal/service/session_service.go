package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
)

type sessionStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionDetail, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionDetail, error)
	Create(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error
	Update(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	List(ctx context.Context, filter models.SessionFilter, scope models.Scope) ([]models.SessionDetail, int, error)
	AcquireLocks(ctx context.Context, exec sqlx.ExtContext, keys []string) error
}

type sessionTransitioner interface {
	transitionLocked(ctx context.Context, tx sqlx.ExtContext, row *models.SessionDetail, next models.SessionStatus, actor string) error
}

// SessionService is the single-session create, read, edit and delete path.
type SessionService struct {
	sessions  sessionStore
	sections  classSectionReader
	conflicts sessionConflictChecker
	lifecycle sessionTransitioner
	tx        txProvider
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService constructs SessionService.
func NewSessionService(
	sessions sessionStore,
	sections classSectionReader,
	conflicts sessionConflictChecker,
	lifecycle *SessionLifecycleService,
	tx txProvider,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *SessionService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions:  sessions,
		sections:  sections,
		conflicts: conflicts,
		lifecycle: lifecycle,
		tx:        tx,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

func effectiveSession(session models.Session, section *models.ClassSection) models.Session {
	if session.TeacherID == nil {
		session.TeacherID = section.TeacherID
	}
	if session.ClassroomID == nil {
		session.ClassroomID = section.ClassroomID
	}
	return session
}

// Create validates, conflict-checks and stores a single session.
func (s *SessionService) Create(ctx context.Context, scope models.Scope, req dto.CreateSessionRequest) (*models.SessionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, ValidationError(err)
	}
	session, err := req.ToSession()
	if err != nil {
		return nil, ValidationError(err)
	}
	if session.EndTime <= session.StartTime {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	section, err := s.sections.FindByID(ctx, nil, session.ClassSectionID)
	if err != nil {
		return nil, lookupError(err, "class section not found", "failed to load class section")
	}
	if !scope.AllowsCampus(section.CampusID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class section is outside your campus")
	}
	effective := effectiveSession(session, section)
	if !scope.AllowsTeacher(effective.TeacherID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "teachers can only schedule their own sessions")
	}
	actor := scope.Actor()
	session.CampusID = section.CampusID
	session.CreatedBy = &actor
	session.UpdatedBy = &actor

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.sessions.AcquireLocks(ctx, tx, lockKeys([]models.Session{effective})); err != nil {
		err = internalError(err, "failed to lock resources")
		return nil, err
	}
	var report *models.ConflictReport
	report, err = s.conflicts.Check(ctx, tx, models.ConflictCandidate{
		ClassSectionID:  section.ID,
		TeacherID:       effective.TeacherID,
		ClassroomID:     effective.ClassroomID,
		Date:            session.Date,
		StartTime:       session.StartTime,
		EndTime:         session.EndTime,
		SkipRosterCheck: req.IgnoreRoster,
		SectionName:     section.Name,
	})
	if err != nil {
		return nil, err
	}
	if report.HasConflict {
		err = appErrors.WithDetails(appErrors.ErrConflict, "session conflicts with existing bookings", report.Conflicts)
		return nil, err
	}
	if err = s.sessions.Create(ctx, tx, &session); err != nil {
		err = internalError(err, "failed to create session")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = internalError(err, "failed to commit transaction")
		return nil, err
	}

	s.metrics.RecordSessionsCreated(1)
	s.logger.Info("session created", zap.String("session_id", session.ID), zap.String("actor", actor))
	return s.Get(ctx, scope, session.ID)
}

// Get returns a session visible to scope. Sessions outside the scope read as missing.
func (s *SessionService) Get(ctx context.Context, scope models.Scope, id string) (*models.SessionDetail, error) {
	session, err := s.sessions.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "session not found", "failed to load session")
	}
	if !scope.AllowsCampus(session.CampusID) || !scope.AllowsTeacher(session.EffectiveTeacherID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	return session, nil
}

// List returns sessions matching the query inside scope.
func (s *SessionService) List(ctx context.Context, scope models.Scope, query dto.SessionListQuery) ([]models.SessionDetail, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, ValidationError(err)
	}
	filter, err := query.ToFilter()
	if err != nil {
		return nil, nil, ValidationError(err)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	sessions, total, err := s.sessions.List(ctx, filter, scope)
	if err != nil {
		return nil, nil, internalError(err, "failed to list sessions")
	}
	if sessions == nil {
		sessions = []models.SessionDetail{}
	}
	return sessions, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Update edits a session's fields and, when requested, its status in the same transaction.
func (s *SessionService) Update(ctx context.Context, scope models.Scope, id string, req dto.UpdateSessionRequest) (*models.SessionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, ValidationError(err)
	}
	patch, err := req.ToPatch()
	if err != nil {
		return nil, ValidationError(err)
	}
	if patch.Empty() && req.Status == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to update")
	}
	if patch.TeacherID != nil && !scope.AllowsTeacher(patch.TeacherID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "teachers cannot reassign sessions")
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
	row, err = s.sessions.LockByID(ctx, tx, id)
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
	actor := scope.Actor()

	if !patch.Empty() {
		if err = s.applyPatch(ctx, tx, row, patch, actor); err != nil {
			return nil, err
		}
	}
	if req.Status != nil {
		if err = s.lifecycle.transitionLocked(ctx, tx, row, models.SessionStatus(*req.Status), actor); err != nil {
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		err = internalError(err, "failed to commit transaction")
		return nil, err
	}
	return s.Get(ctx, scope, id)
}

func (s *SessionService) applyPatch(ctx context.Context, tx sqlx.ExtContext, row *models.SessionDetail, patch models.SessionPatch, actor string) error {
	if row.Status == models.SessionStatusCompleted && patch.LessonHours != nil && *patch.LessonHours != row.LessonHours {
		return appErrors.Clone(appErrors.ErrInvalidState, "lesson_hours of a completed session cannot change")
	}
	updated := row.Session
	patch.Apply(&updated)
	if updated.EndTime <= updated.StartTime {
		return appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	updated.UpdatedBy = &actor

	if patch.TouchesResources() && updated.Status != models.SessionStatusCancelled {
		section, err := s.sections.FindByID(ctx, tx, row.ClassSectionID)
		if err != nil {
			return lookupError(err, "class section not found", "failed to load class section")
		}
		effective := effectiveSession(updated, section)
		if err := s.sessions.AcquireLocks(ctx, tx, lockKeys([]models.Session{effective})); err != nil {
			return internalError(err, "failed to lock resources")
		}
		report, err := s.conflicts.Check(ctx, tx, models.ConflictCandidate{
			ClassSectionID:   row.ClassSectionID,
			TeacherID:        effective.TeacherID,
			ClassroomID:      effective.ClassroomID,
			Date:             effective.Date,
			StartTime:        effective.StartTime,
			EndTime:          effective.EndTime,
			ExcludeSessionID: row.ID,
			SectionName:      section.Name,
		})
		if err != nil {
			return err
		}
		if report.HasConflict {
			return appErrors.WithDetails(appErrors.ErrConflict, "session conflicts with existing bookings", report.Conflicts)
		}
		row.EffectiveTeacherID = effective.TeacherID
		row.EffectiveClassroomID = effective.ClassroomID
	}

	if err := s.sessions.Update(ctx, tx, &updated); err != nil {
		return lookupError(err, "session not found", "failed to update session")
	}
	row.Session = updated
	return nil
}

// Delete removes a session. Completed sessions are ledger facts and cannot be deleted.
func (s *SessionService) Delete(ctx context.Context, scope models.Scope, id string) error {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var row *models.SessionDetail
	row, err = s.sessions.LockByID(ctx, tx, id)
	if err != nil {
		err = lookupError(err, "session not found", "failed to load session")
		return err
	}
	if !scope.AllowsCampus(row.CampusID) {
		err = appErrors.Clone(appErrors.ErrForbidden, "session is outside your campus")
		return err
	}
	if !scope.AllowsTeacher(row.EffectiveTeacherID) {
		err = appErrors.Clone(appErrors.ErrForbidden, "session belongs to another teacher")
		return err
	}
	if row.Status == models.SessionStatusCompleted {
		err = appErrors.Clone(appErrors.ErrInvalidState, "completed sessions cannot be deleted")
		return err
	}
	if err = s.sessions.Delete(ctx, tx, id); err != nil {
		err = lookupError(err, "session not found", "failed to delete session")
		return err
	}
	if err = tx.Commit(); err != nil {
		err = internalError(err, "failed to commit transaction")
		return err
	}
	s.logger.Info("session deleted", zap.String("session_id", id), zap.String("actor", scope.Actor()), zap.String("status", string(row.Status)))
	return nil
}
