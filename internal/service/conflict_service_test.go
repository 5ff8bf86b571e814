package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
)

func tod(raw string) models.TimeOfDay { return models.MustTimeOfDay(raw) }

func TestConflictServiceTeacherOverlap(t *testing.T) {
	store := seededStore()
	store.addEnrollment("enr-1", "stu-1", sectionA, 10, 0)
	existing := store.addSession(models.Session{
		ClassSectionID: sectionA, TeacherID: strPtr(teacher1), ClassroomID: strPtr("room-9"),
		Date: mustDay(t, "2024-03-04"), StartTime: tod("09:00"), EndTime: tod("10:30"), LessonHours: 1.5,
	})
	f := newServiceFixture(t, store)

	candidate := models.ConflictCandidate{
		ClassSectionID: sectionA, TeacherID: strPtr(teacher1), ClassroomID: strPtr("room-2"),
		Date: mustDay(t, "2024-03-04"), StartTime: tod("10:00"), EndTime: tod("11:00"),
	}
	report, err := f.conflicts.CheckConflicts(context.Background(), models.Unrestricted("admin"), candidate)
	require.NoError(t, err)
	require.True(t, report.HasConflict)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, models.ConflictTypeTeacher, report.Conflicts[0].Type)
	assert.Equal(t, existing.ID, report.Conflicts[0].SessionID)
	assert.Equal(t, teacher1, report.Conflicts[0].ResourceName)

	candidate.StartTime, candidate.EndTime = tod("10:30"), tod("11:30")
	report, err = f.conflicts.CheckConflicts(context.Background(), models.Unrestricted("admin"), candidate)
	require.NoError(t, err)
	assert.False(t, report.HasConflict)
	assert.Empty(t, report.Conflicts)
}

func TestConflictServiceReportsEveryConflict(t *testing.T) {
	store := seededStore()
	store.addSession(models.Session{
		ClassSectionID: sectionA, Date: mustDay(t, "2024-03-04"),
		StartTime: tod("09:00"), EndTime: tod("10:00"), LessonHours: 1,
	})
	f := newServiceFixture(t, store)

	report, err := f.conflicts.CheckConflicts(context.Background(), models.Unrestricted("admin"), models.ConflictCandidate{
		ClassSectionID: sectionA, Date: mustDay(t, "2024-03-04"), StartTime: tod("09:30"), EndTime: tod("10:30"),
	})
	require.NoError(t, err)
	require.Len(t, report.Conflicts, 3)
	assert.Equal(t, models.ConflictTypeTeacher, report.Conflicts[0].Type)
	assert.Equal(t, models.ConflictTypeClassroom, report.Conflicts[1].Type)
	assert.Equal(t, models.ConflictTypeNoRoster, report.Conflicts[2].Type)
	assert.Equal(t, "", report.Conflicts[2].SessionID)
	assert.Contains(t, report.Conflicts[2].Message, "Algebra A")
}

func TestConflictServiceIgnoresCancelledAndExcluded(t *testing.T) {
	store := seededStore()
	store.addEnrollment("enr-1", "stu-1", sectionA, 10, 0)
	store.addSession(models.Session{
		ClassSectionID: sectionA, Date: mustDay(t, "2024-03-04"), StartTime: tod("09:00"), EndTime: tod("10:00"),
		Status: models.SessionStatusCancelled,
	})
	self := store.addSession(models.Session{
		ClassSectionID: sectionA, Date: mustDay(t, "2024-03-04"), StartTime: tod("09:00"), EndTime: tod("10:00"),
	})
	f := newServiceFixture(t, store)

	report, err := f.conflicts.Check(context.Background(), nil, models.ConflictCandidate{
		ClassSectionID: sectionA, TeacherID: strPtr(teacher1), ClassroomID: strPtr(classroom),
		Date: mustDay(t, "2024-03-04"), StartTime: tod("09:15"), EndTime: tod("09:45"),
		ExcludeSessionID: self.ID,
	})
	require.NoError(t, err)
	assert.False(t, report.HasConflict)
}

func TestConflictServiceInFlightSupersedesStoredRow(t *testing.T) {
	store := seededStore()
	moved := store.addSession(models.Session{
		ClassSectionID: sectionA, TeacherID: strPtr(teacher1), Date: mustDay(t, "2024-03-04"),
		StartTime: tod("09:00"), EndTime: tod("10:00"),
	})
	f := newServiceFixture(t, store)

	pending := moved
	pending.StartTime, pending.EndTime = tod("13:00"), tod("14:00")
	report, err := f.conflicts.Check(context.Background(), nil, models.ConflictCandidate{
		ClassSectionID: sectionA, TeacherID: strPtr(teacher1), Date: mustDay(t, "2024-03-04"),
		StartTime: tod("09:00"), EndTime: tod("10:00"), SkipRosterCheck: true,
	}, pending)
	require.NoError(t, err)
	assert.False(t, report.HasConflict)

	report, err = f.conflicts.Check(context.Background(), nil, models.ConflictCandidate{
		ClassSectionID: sectionA, TeacherID: strPtr(teacher1), Date: mustDay(t, "2024-03-04"),
		StartTime: tod("13:30"), EndTime: tod("14:30"), SkipRosterCheck: true,
	}, pending)
	require.NoError(t, err)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, moved.ID, report.Conflicts[0].SessionID)
}

func TestConflictServiceValidatesWindow(t *testing.T) {
	f := newServiceFixture(t, seededStore())
	_, err := f.conflicts.Check(context.Background(), nil, models.ConflictCandidate{
		ClassSectionID: sectionA, Date: mustDay(t, "2024-03-04"), StartTime: tod("10:00"), EndTime: tod("10:00"),
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestConflictServiceRejectsForeignCampus(t *testing.T) {
	f := newServiceFixture(t, seededStore())
	other := campusB
	_, err := f.conflicts.CheckConflicts(context.Background(), models.Scope{UserID: "u-1", CampusID: &other}, models.ConflictCandidate{
		ClassSectionID: sectionA, Date: mustDay(t, "2024-03-04"), StartTime: tod("09:00"), EndTime: tod("10:00"),
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = f.conflicts.CheckConflicts(context.Background(), models.Unrestricted("admin"), models.ConflictCandidate{
		ClassSectionID: "missing", Date: mustDay(t, "2024-03-04"), StartTime: tod("09:00"), EndTime: tod("10:00"),
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
