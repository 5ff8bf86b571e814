package service

import (
	"context"
	"math"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
)

type scheduledHoursReader interface {
	SumScheduledHours(ctx context.Context, exec sqlx.ExtContext, classSectionID string) (float64, error)
}

type activeEnrollmentReader interface {
	ListActiveByClassSection(ctx context.Context, exec sqlx.ExtContext, classSectionID string) ([]models.EnrollmentDetail, error)
}

// HoursSummaryService reports purchased, used, scheduled and available hours of a class section.
type HoursSummaryService struct {
	sections    classSectionReader
	sessions    scheduledHoursReader
	enrollments activeEnrollmentReader
	logger      *zap.Logger
}

// NewHoursSummaryService constructs HoursSummaryService.
func NewHoursSummaryService(sections classSectionReader, sessions scheduledHoursReader, enrollments activeEnrollmentReader, logger *zap.Logger) *HoursSummaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HoursSummaryService{sections: sections, sessions: sessions, enrollments: enrollments, logger: logger}
}

// Summary computes the capacity rollup from the current rows.
func (s *HoursSummaryService) Summary(ctx context.Context, scope models.Scope, classSectionID string) (*models.HoursSummary, error) {
	section, err := s.sections.FindByID(ctx, nil, classSectionID)
	if err != nil {
		return nil, lookupError(err, "class section not found", "failed to load class section")
	}
	if !scope.AllowsCampus(section.CampusID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class section not found")
	}

	scheduled, err := s.sessions.SumScheduledHours(ctx, nil, section.ID)
	if err != nil {
		return nil, internalError(err, "failed to sum scheduled hours")
	}
	enrollments, err := s.enrollments.ListActiveByClassSection(ctx, nil, section.ID)
	if err != nil {
		return nil, internalError(err, "failed to load enrollments")
	}

	summary := &models.HoursSummary{
		ClassSectionID:      section.ID,
		ClassScheduledHours: roundHours(scheduled),
		Students:            make([]models.StudentHoursSummary, 0, len(enrollments)),
	}
	for i, enrollment := range enrollments {
		available := roundHours(enrollment.PurchasedHours - enrollment.UsedHours - scheduled)
		summary.Students = append(summary.Students, models.StudentHoursSummary{
			EnrollmentID:   enrollment.ID,
			StudentID:      enrollment.StudentID,
			StudentName:    enrollment.StudentName,
			PurchasedHours: enrollment.PurchasedHours,
			UsedHours:      enrollment.UsedHours,
			ScheduledHours: summary.ClassScheduledHours,
			AvailableHours: available,
		})
		if i == 0 || available < summary.MinAvailableHours {
			summary.MinAvailableHours = available
		}
	}
	return summary, nil
}

// MaxSessions returns how many more sessions of lessonHours every active student can afford.
func MaxSessions(summary *models.HoursSummary, lessonHours float64) int {
	if summary == nil || lessonHours <= 0 || summary.MinAvailableHours <= 0 {
		return 0
	}
	// Nudge past float noise so 2.0/0.5 yields 4, not 3.
	return int(math.Floor(summary.MinAvailableHours/lessonHours + 1e-9))
}
