package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
)

type conflictSessionReader interface {
	ListForConflict(ctx context.Context, exec sqlx.ExtContext, date time.Time, teacherID, classroomID *string, excludeID string) ([]models.SessionDetail, error)
}

type rosterCounter interface {
	CountActive(ctx context.Context, exec sqlx.ExtContext, classSectionID string) (int, error)
}

type classSectionReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSection, error)
}

// ConflictService detects teacher and classroom double-booking and empty rosters.
type ConflictService struct {
	sessions conflictSessionReader
	roster   rosterCounter
	sections classSectionReader
	logger   *zap.Logger
}

// NewConflictService wires the conflict checker.
func NewConflictService(sessions conflictSessionReader, roster rosterCounter, sections classSectionReader, logger *zap.Logger) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{sessions: sessions, roster: roster, sections: sections, logger: logger}
}

// CheckConflicts is the stand-alone pre-flight check. Missing teacher or classroom
// fall back to the class section defaults.
func (s *ConflictService) CheckConflicts(ctx context.Context, scope models.Scope, candidate models.ConflictCandidate) (*models.ConflictReport, error) {
	section, err := s.sections.FindByID(ctx, nil, candidate.ClassSectionID)
	if err != nil {
		return nil, lookupError(err, "class section not found", "failed to load class section")
	}
	if !scope.AllowsCampus(section.CampusID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class section is outside your campus")
	}
	candidate = withSectionDefaults(candidate, section)
	return s.Check(ctx, nil, candidate)
}

// Check runs every conflict check for candidate through exec and reports them all.
// inFlight lists sessions accepted earlier in the same unit of work.
func (s *ConflictService) Check(ctx context.Context, exec sqlx.ExtContext, candidate models.ConflictCandidate, inFlight ...models.Session) (*models.ConflictReport, error) {
	if candidate.EndTime <= candidate.StartTime {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	report := &models.ConflictReport{Conflicts: []models.Conflict{}}

	existing, err := s.sessions.ListForConflict(ctx, exec, candidate.Date, candidate.TeacherID, candidate.ClassroomID, candidate.ExcludeSessionID)
	if err != nil {
		return nil, internalError(err, "failed to load sessions for conflict check")
	}
	existing = mergeInFlight(existing, inFlight, candidate.ExcludeSessionID)
	for _, conflict := range detectConflicts(candidate, existing) {
		report.Add(conflict)
	}

	if !candidate.SkipRosterCheck {
		active, err := s.roster.CountActive(ctx, exec, candidate.ClassSectionID)
		if err != nil {
			return nil, internalError(err, "failed to count active enrollments")
		}
		if active == 0 {
			report.Add(rosterConflict(candidate))
		}
	}

	if report.HasConflict {
		s.logger.Debug("conflicts detected",
			zap.String("class_section_id", candidate.ClassSectionID),
			zap.String("date", candidate.Date.Format(models.DateLayout)),
			zap.Int("count", len(report.Conflicts)),
		)
	}
	return report, nil
}

// detectConflicts filters rows with the shared overlap predicate.
func detectConflicts(candidate models.ConflictCandidate, rows []models.SessionDetail) []models.Conflict {
	window := candidate.Interval()
	var conflicts []models.Conflict
	for _, row := range rows {
		if row.Status == models.SessionStatusCancelled || row.ID == candidate.ExcludeSessionID {
			continue
		}
		if !models.Overlaps(window, row.Interval()) {
			continue
		}
		if sameResource(candidate.TeacherID, row.EffectiveTeacherID) {
			name := displayName(row.TeacherName, row.EffectiveTeacherID)
			conflicts = append(conflicts, models.Conflict{
				Type:         models.ConflictTypeTeacher,
				SessionID:    row.ID,
				ResourceName: name,
				Message:      fmt.Sprintf("teacher %s is already booked %s-%s on %s", name, row.StartTime, row.EndTime, row.Date.Format(models.DateLayout)),
				Date:         row.Date,
				StartTime:    row.StartTime,
				EndTime:      row.EndTime,
			})
		}
		if sameResource(candidate.ClassroomID, row.EffectiveClassroomID) {
			name := displayName(row.ClassroomName, row.EffectiveClassroomID)
			conflicts = append(conflicts, models.Conflict{
				Type:         models.ConflictTypeClassroom,
				SessionID:    row.ID,
				ResourceName: name,
				Message:      fmt.Sprintf("classroom %s is already booked %s-%s on %s", name, row.StartTime, row.EndTime, row.Date.Format(models.DateLayout)),
				Date:         row.Date,
				StartTime:    row.StartTime,
				EndTime:      row.EndTime,
			})
		}
	}
	return conflicts
}

// mergeInFlight overlays sessions written earlier in the same unit of work on the
// stored rows. An in-flight version replaces the stored row with the same id.
func mergeInFlight(rows []models.SessionDetail, inFlight []models.Session, excludeID string) []models.SessionDetail {
	if len(inFlight) == 0 {
		return rows
	}
	pending := make(map[string]models.Session, len(inFlight))
	for _, session := range inFlight {
		pending[session.ID] = session
	}
	merged := make([]models.SessionDetail, 0, len(rows)+len(inFlight))
	for _, row := range rows {
		if _, ok := pending[row.ID]; ok {
			continue
		}
		merged = append(merged, row)
	}
	for _, session := range inFlight {
		if session.ID == excludeID || session.Status == models.SessionStatusCancelled {
			continue
		}
		merged = append(merged, models.SessionDetail{
			Session:              session,
			EffectiveTeacherID:   session.TeacherID,
			EffectiveClassroomID: session.ClassroomID,
		})
	}
	return merged
}

func rosterConflict(candidate models.ConflictCandidate) models.Conflict {
	name := candidate.SectionName
	if name == "" {
		name = candidate.ClassSectionID
	}
	return models.Conflict{
		Type:         models.ConflictTypeNoRoster,
		SessionID:    "",
		ResourceName: name,
		Message:      fmt.Sprintf("class section %s has no active enrollments", name),
		Date:         candidate.Date,
		StartTime:    candidate.StartTime,
		EndTime:      candidate.EndTime,
	}
}

func withSectionDefaults(candidate models.ConflictCandidate, section *models.ClassSection) models.ConflictCandidate {
	if candidate.TeacherID == nil {
		candidate.TeacherID = section.TeacherID
	}
	if candidate.ClassroomID == nil {
		candidate.ClassroomID = section.ClassroomID
	}
	candidate.SectionName = section.Name
	return candidate
}

func displayName(name, id *string) string {
	if name != nil && *name != "" {
		return *name
	}
	return derefString(id)
}
