package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
)

const defaultMaxBatchInstances = 500

type batchSessionStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error
	Update(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error
	ListByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string, scope models.Scope, forUpdate bool) ([]models.SessionDetail, error)
	DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string, scope models.Scope) (int64, error)
	DeleteByBatchNo(ctx context.Context, exec sqlx.ExtContext, batchNo string, scope models.Scope) (int64, error)
	AcquireLocks(ctx context.Context, exec sqlx.ExtContext, keys []string) error
}

type sessionConflictChecker interface {
	Check(ctx context.Context, exec sqlx.ExtContext, candidate models.ConflictCandidate, inFlight ...models.Session) (*models.ConflictReport, error)
}

// BatchScheduleConfig tunes the batch scheduler.
type BatchScheduleConfig struct {
	MaxInstances int
}

// BatchScheduleService previews, commits and edits recurring session series.
type BatchScheduleService struct {
	sections     classSectionReader
	sessions     batchSessionStore
	conflicts    sessionConflictChecker
	roster       rosterCounter
	tx           txProvider
	logger       *zap.Logger
	metrics      *MetricsService
	maxInstances int
	newBatchNo   func() (string, error)
}

// NewBatchScheduleService wires the batch scheduler.
func NewBatchScheduleService(
	sections classSectionReader,
	sessions batchSessionStore,
	conflicts sessionConflictChecker,
	roster rosterCounter,
	tx txProvider,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg BatchScheduleConfig,
) *BatchScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxInstances <= 0 {
		cfg.MaxInstances = defaultMaxBatchInstances
	}
	return &BatchScheduleService{
		sections:     sections,
		sessions:     sessions,
		conflicts:    conflicts,
		roster:       roster,
		tx:           tx,
		logger:       logger,
		metrics:      metrics,
		maxInstances: cfg.MaxInstances,
		newBatchNo:   generateBatchNo,
	}
}

// generateBatchNo returns "BATCH-" followed by 96 random bits in upper-case hex.
func generateBatchNo() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "BATCH-" + strings.ToUpper(hex.EncodeToString(buf)), nil
}

type batchPlan struct {
	section     *models.ClassSection
	teacherID   *string
	classroomID *string
	instances   []models.Interval
}

func (p batchPlan) candidate(instance models.Interval) models.ConflictCandidate {
	return models.ConflictCandidate{
		ClassSectionID:  p.section.ID,
		TeacherID:       p.teacherID,
		ClassroomID:     p.classroomID,
		Date:            instance.Date,
		StartTime:       instance.Start,
		EndTime:         instance.End,
		SkipRosterCheck: true,
		SectionName:     p.section.Name,
	}
}

func (s *BatchScheduleService) plan(ctx context.Context, scope models.Scope, spec models.BatchSpec) (*batchPlan, error) {
	if strings.TrimSpace(spec.ClassSectionID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_section_id is required")
	}
	if spec.LessonHours <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "lesson_hours must be greater than 0")
	}
	if spec.MaxCount != nil && *spec.MaxCount < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "max_count must not be negative")
	}

	section, err := s.sections.FindByID(ctx, nil, spec.ClassSectionID)
	if err != nil {
		return nil, lookupError(err, "class section not found", "failed to load class section")
	}
	if !scope.AllowsCampus(section.CampusID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class section is outside your campus")
	}

	plan := &batchPlan{section: section, teacherID: spec.TeacherID, classroomID: spec.ClassroomID}
	if plan.teacherID == nil {
		plan.teacherID = section.TeacherID
	}
	if plan.classroomID == nil {
		plan.classroomID = section.ClassroomID
	}
	if !scope.AllowsTeacher(plan.teacherID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "teachers can only schedule their own sessions")
	}

	instances, err := ExpandPattern(spec.DateRanges, spec.TimeSlots)
	if err != nil {
		return nil, err
	}
	if len(instances) > s.maxInstances {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("pattern expands to %d sessions, limit is %d", len(instances), s.maxInstances))
	}
	plan.instances = instances
	return plan, nil
}

func (s *BatchScheduleService) rosterWarning(ctx context.Context, exec sqlx.ExtContext, section *models.ClassSection) (string, error) {
	active, err := s.roster.CountActive(ctx, exec, section.ID)
	if err != nil {
		return "", internalError(err, "failed to count active enrollments")
	}
	if active > 0 {
		return "", nil
	}
	return rosterConflict(models.ConflictCandidate{ClassSectionID: section.ID, SectionName: section.Name}).Message, nil
}

// PreviewBatch expands spec and reports the conflicts a commit would meet, without writing.
func (s *BatchScheduleService) PreviewBatch(ctx context.Context, scope models.Scope, spec models.BatchSpec) (*models.BatchPreview, error) {
	plan, err := s.plan(ctx, scope, spec)
	if err != nil {
		return nil, err
	}

	preview := &models.BatchPreview{
		TotalCount: len(plan.instances),
		Conflicts:  []models.BatchConflict{},
		Instances:  plan.instances,
	}
	if preview.RosterWarning, err = s.rosterWarning(ctx, nil, plan.section); err != nil {
		return nil, err
	}

	var accepted []models.Session
	for _, instance := range plan.instances {
		report, err := s.conflicts.Check(ctx, nil, plan.candidate(instance), accepted...)
		if err != nil {
			return nil, err
		}
		if report.HasConflict {
			preview.ConflictCount++
			preview.Conflicts = append(preview.Conflicts, models.BatchConflict{Interval: instance, Conflicts: report.Conflicts})
			continue
		}
		accepted = append(accepted, plan.session(uuid.NewString(), instance, spec, "", scope.Actor()))
	}
	return preview, nil
}

func (p batchPlan) session(id string, instance models.Interval, spec models.BatchSpec, batchNo, actor string) models.Session {
	session := models.Session{
		ID:             id,
		ClassSectionID: p.section.ID,
		CampusID:       p.section.CampusID,
		TeacherID:      p.teacherID,
		ClassroomID:    p.classroomID,
		Date:           instance.Date,
		StartTime:      instance.Start,
		EndTime:        instance.End,
		LessonHours:    spec.LessonHours,
		Status:         models.SessionStatusScheduled,
		Title:          spec.Title,
		Notes:          spec.Notes,
		CreatedBy:      &actor,
		UpdatedBy:      &actor,
	}
	if batchNo != "" {
		session.BatchNo = &batchNo
	}
	return session
}

// lockKeys returns the sorted, deduplicated advisory lock keys for the given bookings.
func lockKeys(sessions []models.Session) []string {
	set := make(map[string]struct{})
	for _, session := range sessions {
		date := session.Date.Format(models.DateLayout)
		if session.TeacherID != nil {
			set[fmt.Sprintf("teacher:%s:%s", *session.TeacherID, date)] = struct{}{}
		}
		if session.ClassroomID != nil {
			set[fmt.Sprintf("classroom:%s:%s", *session.ClassroomID, date)] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// CommitBatch creates the series in one transaction, skipping or aborting on conflicts.
func (s *BatchScheduleService) CommitBatch(ctx context.Context, scope models.Scope, spec models.BatchSpec, mode models.BatchMode) (*models.BatchCommitResult, error) {
	if mode == "" {
		mode = models.BatchModeSkipConflicts
	}
	if !mode.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "mode must be skip_conflicts or abort_on_conflict")
	}
	plan, err := s.plan(ctx, scope, spec)
	if err != nil {
		return nil, err
	}
	batchNo, err := s.newBatchNo()
	if err != nil {
		return nil, internalError(err, "failed to generate batch number")
	}

	actor := scope.Actor()
	candidates := make([]models.Session, len(plan.instances))
	for i, instance := range plan.instances {
		candidates[i] = plan.session(uuid.NewString(), instance, spec, batchNo, actor)
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

	if err = s.sessions.AcquireLocks(ctx, tx, lockKeys(candidates)); err != nil {
		err = internalError(err, "failed to lock resources")
		return nil, err
	}

	result := &models.BatchCommitResult{BatchNo: batchNo, Sessions: []models.Session{}}
	if result.RosterWarning, err = s.rosterWarning(ctx, tx, plan.section); err != nil {
		return nil, err
	}

	var accepted []models.Session
	skippedByLimit := 0
	for i, candidate := range candidates {
		if spec.MaxCount != nil && len(accepted) >= *spec.MaxCount {
			skippedByLimit = len(candidates) - i
			break
		}
		var report *models.ConflictReport
		report, err = s.conflicts.Check(ctx, tx, plan.candidate(plan.instances[i]), accepted...)
		if err != nil {
			return nil, err
		}
		if report.HasConflict {
			result.Conflicts = append(result.Conflicts, models.BatchConflict{Interval: plan.instances[i], Conflicts: report.Conflicts})
			continue
		}
		accepted = append(accepted, candidate)
	}

	if mode == models.BatchModeAbortOnConflict && len(result.Conflicts) > 0 {
		err = appErrors.WithDetails(appErrors.ErrConflict, fmt.Sprintf("%d of %d sessions conflict", len(result.Conflicts), len(candidates)), result.Conflicts)
		s.logger.Info("batch aborted on conflict",
			zap.String("class_section_id", plan.section.ID),
			zap.Int("conflicts", len(result.Conflicts)),
		)
		return nil, err
	}

	for i := range accepted {
		if err = s.sessions.Create(ctx, tx, &accepted[i]); err != nil {
			err = internalError(err, "failed to create session")
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		err = internalError(err, "failed to commit batch")
		return nil, err
	}

	result.Sessions = accepted
	result.CreatedCount = len(accepted)
	result.SkippedCount = len(result.Conflicts) + skippedByLimit

	s.metrics.RecordSessionsCreated(result.CreatedCount)
	s.metrics.RecordSessionsSkipped("conflict", len(result.Conflicts))
	s.metrics.RecordSessionsSkipped("max_count", skippedByLimit)
	s.logger.Info("batch committed",
		zap.String("batch_no", batchNo),
		zap.String("class_section_id", plan.section.ID),
		zap.Int("created", result.CreatedCount),
		zap.Int("skipped", result.SkippedCount),
	)
	return result, nil
}

// UpdateByIDs applies patch to every non-completed session among ids inside scope.
// When the patch moves a session in time or changes its resources every target is
// re-checked and any conflict aborts the whole update.
func (s *BatchScheduleService) UpdateByIDs(ctx context.Context, scope models.Scope, ids []string, patch models.SessionPatch) (int, error) {
	if len(ids) == 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "ids must not be empty")
	}
	if patch.Empty() {
		return 0, appErrors.Clone(appErrors.ErrValidation, "patch must change at least one field")
	}
	if patch.LessonHours != nil && *patch.LessonHours <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "lesson_hours must be greater than 0")
	}
	if patch.TeacherID != nil && !scope.AllowsTeacher(patch.TeacherID) {
		return 0, appErrors.Clone(appErrors.ErrForbidden, "teachers cannot reassign sessions")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return 0, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var rows []models.SessionDetail
	rows, err = s.sessions.ListByIDs(ctx, tx, ids, scope, true)
	if err != nil {
		err = internalError(err, "failed to load sessions")
		return 0, err
	}

	sections := make(map[string]*models.ClassSection)
	var targets, effective []models.Session
	for _, row := range rows {
		if row.Status == models.SessionStatusCompleted {
			continue
		}
		updated := row.Session
		patch.Apply(&updated)
		if updated.EndTime <= updated.StartTime {
			err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("session %s: end_time must be after start_time", row.ID))
			return 0, err
		}
		actor := scope.Actor()
		updated.UpdatedBy = &actor
		targets = append(targets, updated)

		section, ok := sections[row.ClassSectionID]
		if !ok {
			section, err = s.sections.FindByID(ctx, tx, row.ClassSectionID)
			if err != nil {
				err = lookupError(err, "class section not found", "failed to load class section")
				return 0, err
			}
			sections[row.ClassSectionID] = section
		}
		eff := updated
		if eff.TeacherID == nil {
			eff.TeacherID = section.TeacherID
		}
		if eff.ClassroomID == nil {
			eff.ClassroomID = section.ClassroomID
		}
		effective = append(effective, eff)
	}
	if len(targets) == 0 {
		err = tx.Commit()
		if err != nil {
			err = internalError(err, "failed to commit transaction")
			return 0, err
		}
		return 0, nil
	}

	if patch.TouchesResources() {
		if err = s.sessions.AcquireLocks(ctx, tx, lockKeys(effective)); err != nil {
			err = internalError(err, "failed to lock resources")
			return 0, err
		}
		var collisions []models.BatchConflict
		for i, target := range effective {
			candidate := models.ConflictCandidate{
				ClassSectionID:   target.ClassSectionID,
				TeacherID:        target.TeacherID,
				ClassroomID:      target.ClassroomID,
				Date:             target.Date,
				StartTime:        target.StartTime,
				EndTime:          target.EndTime,
				ExcludeSessionID: target.ID,
				SkipRosterCheck:  true,
			}
			var report *models.ConflictReport
			report, err = s.conflicts.Check(ctx, tx, candidate, effective...)
			if err != nil {
				return 0, err
			}
			if report.HasConflict {
				collisions = append(collisions, models.BatchConflict{Interval: effective[i].Interval(), Conflicts: report.Conflicts})
			}
		}
		if len(collisions) > 0 {
			err = appErrors.WithDetails(appErrors.ErrConflict, fmt.Sprintf("%d of %d sessions conflict", len(collisions), len(targets)), collisions)
			return 0, err
		}
	}

	for i := range targets {
		if err = s.sessions.Update(ctx, tx, &targets[i]); err != nil {
			err = lookupError(err, "session not found", "failed to update session")
			return 0, err
		}
	}
	if err = tx.Commit(); err != nil {
		err = internalError(err, "failed to commit transaction")
		return 0, err
	}
	s.logger.Info("sessions updated", zap.Int("count", len(targets)), zap.String("actor", scope.Actor()))
	return len(targets), nil
}

// DeleteByIDs removes non-completed sessions among ids inside scope.
func (s *BatchScheduleService) DeleteByIDs(ctx context.Context, scope models.Scope, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "ids must not be empty")
	}
	deleted, err := s.sessions.DeleteByIDs(ctx, nil, ids, scope)
	if err != nil {
		return 0, internalError(err, "failed to delete sessions")
	}
	s.logger.Info("sessions deleted", zap.Int64("count", deleted), zap.String("actor", scope.Actor()))
	return int(deleted), nil
}

// DeleteByBatchNo removes the non-completed sessions of a batch inside scope.
func (s *BatchScheduleService) DeleteByBatchNo(ctx context.Context, scope models.Scope, batchNo string) (int, error) {
	batchNo = strings.TrimSpace(batchNo)
	if batchNo == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "batch_no is required")
	}
	deleted, err := s.sessions.DeleteByBatchNo(ctx, nil, batchNo, scope)
	if err != nil {
		return 0, internalError(err, "failed to delete batch")
	}
	s.logger.Info("batch deleted", zap.String("batch_no", batchNo), zap.Int64("count", deleted))
	return int(deleted), nil
}
