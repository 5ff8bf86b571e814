package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
)

func lifecycleStore(t *testing.T) (*memStore, models.Session) {
	store := seededStore()
	store.addEnrollment("enr-1", "stu-1", sectionA, 10, 0)
	store.addEnrollment("enr-2", "stu-2", sectionA, 10, 0)
	session := store.addSession(models.Session{
		ClassSectionID: sectionA, Date: mustDay(t, "2024-03-04"),
		StartTime: tod("09:00"), EndTime: tod("11:00"), LessonHours: 2,
	})
	return store, session
}

func expectCommits(f *serviceFixture, n int) {
	for i := 0; i < n; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectCommit()
	}
}

func TestLifecycleLedgerIsIdempotentUnderReversal(t *testing.T) {
	store, session := lifecycleStore(t)
	f := newServiceFixture(t, store)
	expectCommits(f, 3)
	ctx := context.Background()
	scope := models.Unrestricted("staff-1")

	for _, next := range []models.SessionStatus{models.SessionStatusCompleted, models.SessionStatusScheduled, models.SessionStatusCompleted} {
		row, err := f.lifecycle.TransitionStatus(ctx, scope, session.ID, next)
		require.NoError(t, err)
		assert.Equal(t, next, row.Status)
	}

	assert.Equal(t, 2.0, store.enrollment("enr-1").UsedHours)
	assert.Equal(t, 2.0, store.enrollment("enr-2").UsedHours)
	assert.Equal(t, 8.0, store.remaining["stu-1"])
	assert.Len(t, store.records, 2)
	for _, record := range store.records {
		assert.Equal(t, models.LessonRecordTypeSchedule, record.Type)
		assert.Equal(t, 2.0, record.Hours)
		assert.Equal(t, "staff-1", record.CreatedBy)
	}
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLifecycleReversalRestoresBalances(t *testing.T) {
	store, session := lifecycleStore(t)
	f := newServiceFixture(t, store)
	expectCommits(f, 2)
	ctx := context.Background()

	_, err := f.lifecycle.TransitionStatus(ctx, models.Unrestricted("staff-1"), session.ID, models.SessionStatusCompleted)
	require.NoError(t, err)
	_, err = f.lifecycle.TransitionStatus(ctx, models.Unrestricted("staff-1"), session.ID, models.SessionStatusCancelled)
	require.NoError(t, err)

	assert.Empty(t, store.records)
	assert.Equal(t, 0.0, store.enrollment("enr-1").UsedHours)
	assert.Equal(t, 10.0, store.remaining["stu-2"])
	assert.Equal(t, models.SessionStatusCancelled, store.sessions[session.ID].Status)
}

func TestLifecycleReopenRestoresOnlyDeductedBalance(t *testing.T) {
	store, session := lifecycleStore(t)
	store.remaining["stu-1"] = 1
	f := newServiceFixture(t, store)
	expectCommits(f, 4)
	ctx := context.Background()
	scope := models.Unrestricted("staff-1")

	_, err := f.lifecycle.TransitionStatus(ctx, scope, session.ID, models.SessionStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, 0.0, store.remaining["stu-1"])
	for _, record := range store.records {
		if record.StudentID == "stu-1" {
			assert.Equal(t, 2.0, record.Hours)
			assert.Equal(t, 1.0, record.RemainingDeducted)
		}
	}

	_, err = f.lifecycle.TransitionStatus(ctx, scope, session.ID, models.SessionStatusScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1.0, store.remaining["stu-1"])
	assert.Equal(t, 10.0, store.remaining["stu-2"])
	assert.Equal(t, 0.0, store.enrollment("enr-1").UsedHours)

	for _, next := range []models.SessionStatus{models.SessionStatusCompleted, models.SessionStatusScheduled} {
		_, err = f.lifecycle.TransitionStatus(ctx, scope, session.ID, next)
		require.NoError(t, err)
	}
	assert.Equal(t, 1.0, store.remaining["stu-1"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLifecycleSkipsExcusedAttendance(t *testing.T) {
	store, session := lifecycleStore(t)
	store.addEnrollment("enr-3", "stu-3", sectionA, 10, 0)
	store.attendance = []models.StudentAttendance{
		{EnrollmentID: "enr-1", SessionID: session.ID, Status: models.AttendanceStatusLeave},
		{EnrollmentID: "enr-2", SessionID: session.ID, Status: models.AttendanceStatusAbsent, DeductHours: false},
		{EnrollmentID: "enr-3", SessionID: session.ID, Status: models.AttendanceStatusAbsent, DeductHours: true},
	}
	f := newServiceFixture(t, store)
	expectCommits(f, 1)

	_, err := f.lifecycle.TransitionStatus(context.Background(), models.Unrestricted("staff-1"), session.ID, models.SessionStatusCompleted)
	require.NoError(t, err)
	require.Len(t, store.records, 1)
	assert.Equal(t, "enr-3", store.records[0].EnrollmentID)
	assert.Equal(t, 0.0, store.enrollment("enr-1").UsedHours)
	assert.Equal(t, 2.0, store.enrollment("enr-3").UsedHours)
}

func TestLifecycleExistingRecordIsNotChargedTwice(t *testing.T) {
	store, session := lifecycleStore(t)
	store.records = []models.LessonRecord{{ID: "rec-1", EnrollmentID: "enr-1", SessionID: session.ID, StudentID: "stu-1", Hours: 2, Type: models.LessonRecordTypeSchedule}}
	f := newServiceFixture(t, store)
	expectCommits(f, 1)

	_, err := f.lifecycle.TransitionStatus(context.Background(), models.Unrestricted("staff-1"), session.ID, models.SessionStatusCompleted)
	require.NoError(t, err)
	assert.Len(t, store.records, 2)
	assert.Equal(t, 0.0, store.enrollment("enr-1").UsedHours)
	assert.Equal(t, 2.0, store.enrollment("enr-2").UsedHours)
}

func TestLifecycleRejectsCancelledToCompleted(t *testing.T) {
	store, session := lifecycleStore(t)
	session.Status = models.SessionStatusCancelled
	store.sessions[session.ID] = session
	f := newServiceFixture(t, store)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.lifecycle.TransitionStatus(context.Background(), models.Unrestricted("staff-1"), session.ID, models.SessionStatusCompleted)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.Empty(t, store.records)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLifecycleSameStatusIsNoop(t *testing.T) {
	store, session := lifecycleStore(t)
	f := newServiceFixture(t, store)
	expectCommits(f, 1)

	row, err := f.lifecycle.TransitionStatus(context.Background(), models.Unrestricted("staff-1"), session.ID, models.SessionStatusScheduled)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusScheduled, row.Status)
	assert.Nil(t, store.sessions[session.ID].UpdatedBy)
}

func TestLifecycleLedgerFailureRollsBack(t *testing.T) {
	store, session := lifecycleStore(t)
	store.failRecord = true
	f := newServiceFixture(t, store)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.lifecycle.TransitionStatus(context.Background(), models.Unrestricted("staff-1"), session.ID, models.SessionStatusCompleted)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLifecycleScopeChecks(t *testing.T) {
	store, session := lifecycleStore(t)
	f := newServiceFixture(t, store)
	other := campusB
	for i := 0; i < 3; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()
	}
	ctx := context.Background()

	_, err := f.lifecycle.TransitionStatus(ctx, models.Scope{UserID: "u-1", CampusID: &other}, session.ID, models.SessionStatusCompleted)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = f.lifecycle.TransitionStatus(ctx, models.Scope{UserID: "u-2", IsTeacher: true, TeacherID: teacher2}, session.ID, models.SessionStatusCompleted)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = f.lifecycle.TransitionStatus(ctx, models.Unrestricted("admin"), "missing", models.SessionStatusCompleted)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = f.lifecycle.TransitionStatus(ctx, models.Unrestricted("admin"), session.ID, models.SessionStatus("done"))
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLifecycleReinstateChecksConflicts(t *testing.T) {
	store, session := lifecycleStore(t)
	session.Status = models.SessionStatusCancelled
	store.sessions[session.ID] = session
	store.addSession(models.Session{ClassSectionID: sectionA, Date: session.Date, StartTime: tod("10:00"), EndTime: tod("12:00"), LessonHours: 2})
	f := newServiceFixture(t, store)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.lifecycle.TransitionStatus(context.Background(), models.Unrestricted("admin"), session.ID, models.SessionStatusScheduled)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Equal(t, models.SessionStatusCancelled, store.sessions[session.ID].Status)
}

func TestLifecycleCompleteDueSkipsSettledSessions(t *testing.T) {
	store, session := lifecycleStore(t)
	f := newServiceFixture(t, store)
	expectCommits(f, 2)

	completed, err := f.lifecycle.CompleteDue(context.Background(), session.ID)
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, models.SystemActor, *store.sessions[session.ID].UpdatedBy)
	assert.Equal(t, models.SystemActor, store.records[0].CreatedBy)

	completed, err = f.lifecycle.CompleteDue(context.Background(), session.ID)
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Len(t, store.records, 2)
}
