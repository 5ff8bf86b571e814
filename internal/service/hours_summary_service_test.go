package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
)

func TestHoursSummaryScenario(t *testing.T) {
	store := seededStore()
	store.addEnrollment("enr-1", "stu-1", sectionA, 10, 0)
	f := newServiceFixture(t, store)
	ctx := context.Background()
	scope := models.Unrestricted("staff-1")

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	result, err := f.batch.CommitBatch(ctx, scope, models.BatchSpec{
		ClassSectionID: sectionA,
		DateRanges:     []models.DateRange{{Start: mustDay(t, "2024-03-04"), End: mustDay(t, "2024-03-15")}},
		TimeSlots:      []models.TimeSlot{{Weekdays: []int{0, 2}, Start: tod("16:00"), End: tod("18:00")}},
		LessonHours:    2,
	}, models.BatchModeSkipConflicts)
	require.NoError(t, err)
	assert.Equal(t, 4, result.CreatedCount)
	assert.Equal(t, 0, result.SkippedCount)

	summary, err := f.summary.Summary(ctx, scope, sectionA)
	require.NoError(t, err)
	assert.Equal(t, 8.0, summary.ClassScheduledHours)
	assert.Equal(t, 2.0, summary.MinAvailableHours)
	assert.Equal(t, 1, MaxSessions(summary, 2))

	expectCommits(f, len(result.Sessions))
	for _, session := range result.Sessions {
		_, err := f.lifecycle.TransitionStatus(ctx, scope, session.ID, models.SessionStatusCompleted)
		require.NoError(t, err)
	}

	summary, err = f.summary.Summary(ctx, scope, sectionA)
	require.NoError(t, err)
	require.Len(t, summary.Students, 1)
	student := summary.Students[0]
	assert.Equal(t, 8.0, student.UsedHours)
	assert.Equal(t, 0.0, student.ScheduledHours)
	assert.Equal(t, 2.0, student.AvailableHours)
	assert.Equal(t, 10.0, student.PurchasedHours)
	assert.Equal(t, 2.0, summary.MinAvailableHours)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHoursSummaryEmptyRoster(t *testing.T) {
	store := seededStore()
	store.addSession(models.Session{ClassSectionID: sectionA, Date: mustDay(t, "2024-03-04"), StartTime: tod("09:00"), EndTime: tod("10:00"), LessonHours: 1.25})
	f := newServiceFixture(t, store)

	summary, err := f.summary.Summary(context.Background(), models.Unrestricted("admin"), sectionA)
	require.NoError(t, err)
	assert.Empty(t, summary.Students)
	assert.Equal(t, 0.0, summary.MinAvailableHours)
	assert.Equal(t, 1.25, summary.ClassScheduledHours)
	assert.Equal(t, 0, MaxSessions(summary, 1))

	other := campusB
	_, err = f.summary.Summary(context.Background(), models.Scope{UserID: "u", CampusID: &other}, sectionA)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestMaxSessions(t *testing.T) {
	assert.Equal(t, 4, MaxSessions(&models.HoursSummary{MinAvailableHours: 2}, 0.5))
	assert.Equal(t, 3, MaxSessions(&models.HoursSummary{MinAvailableHours: 0.9}, 0.3))
	assert.Equal(t, 0, MaxSessions(&models.HoursSummary{MinAvailableHours: -3}, 1))
	assert.Equal(t, 0, MaxSessions(&models.HoursSummary{MinAvailableHours: 5}, 0))
	assert.Equal(t, 0, MaxSessions(nil, 1))
}
