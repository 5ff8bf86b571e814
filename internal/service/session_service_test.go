package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
)

const sectionUUID = "5f0c6a5e-8f0c-4b53-9df1-0d6b7c1c2a11"

func sessionServiceStore(t *testing.T) *memStore {
	store := newMemStore()
	store.addSection(models.ClassSection{
		ID: sectionUUID, CampusID: campusA, Name: "Physics B", TeacherID: strPtr(teacher1),
		ClassroomID: strPtr(classroom), Status: models.ClassSectionStatusOngoing,
	})
	return store
}

func createRequest() dto.CreateSessionRequest {
	return dto.CreateSessionRequest{
		ClassSectionID: sectionUUID,
		Date:           "2024-03-04",
		StartTime:      "09:00",
		EndTime:        "10:30",
		LessonHours:    1.5,
	}
}

func TestSessionServiceCreate(t *testing.T) {
	store := sessionServiceStore(t)
	store.addEnrollment("enr-1", "stu-1", sectionUUID, 10, 0)
	f := newServiceFixture(t, store)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	created, err := f.sessions.Create(context.Background(), models.Unrestricted("staff-1"), createRequest())
	require.NoError(t, err)
	assert.Equal(t, campusA, created.CampusID)
	assert.Nil(t, created.TeacherID)
	assert.Equal(t, teacher1, *created.EffectiveTeacherID)
	assert.Equal(t, "staff-1", *created.CreatedBy)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSessionServiceCreateRejectsEmptyRosterUnlessIgnored(t *testing.T) {
	store := sessionServiceStore(t)
	f := newServiceFixture(t, store)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.sessions.Create(context.Background(), models.Unrestricted("staff-1"), createRequest())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	conflicts, ok := appErr.Details.([]models.Conflict)
	require.True(t, ok)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictTypeNoRoster, conflicts[0].Type)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	req := createRequest()
	req.IgnoreRoster = true
	_, err = f.sessions.Create(context.Background(), models.Unrestricted("staff-1"), req)
	require.NoError(t, err)
}

func TestSessionServiceCreateValidation(t *testing.T) {
	f := newServiceFixture(t, sessionServiceStore(t))
	req := createRequest()
	req.ClassSectionID = "not-a-uuid"
	_, err := f.sessions.Create(context.Background(), models.Unrestricted("staff-1"), req)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, err.Error(), "class_section_id")

	req = createRequest()
	req.EndTime = "08:00"
	_, err = f.sessions.Create(context.Background(), models.Unrestricted("staff-1"), req)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	req = createRequest()
	req.StartTime = "25:00"
	_, err = f.sessions.Create(context.Background(), models.Unrestricted("staff-1"), req)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, err.Error(), "start_time")
}

func TestSessionServiceDeleteCompletedIsInvalidState(t *testing.T) {
	store := sessionServiceStore(t)
	completed := store.addSession(models.Session{ClassSectionID: sectionUUID, Date: mustDay(t, "2024-03-01"), StartTime: tod("09:00"), EndTime: tod("10:00"), Status: models.SessionStatusCompleted})
	open := store.addSession(models.Session{ClassSectionID: sectionUUID, Date: mustDay(t, "2024-03-04"), StartTime: tod("09:00"), EndTime: tod("10:00")})
	f := newServiceFixture(t, store)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	err := f.sessions.Delete(context.Background(), models.Unrestricted("admin"), completed.ID)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.Contains(t, store.sessions, completed.ID)

	require.NoError(t, f.sessions.Delete(context.Background(), models.Unrestricted("admin"), open.ID))
	assert.NotContains(t, store.sessions, open.ID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSessionServiceUpdateRoutesStatusThroughLedger(t *testing.T) {
	store := sessionServiceStore(t)
	store.addEnrollment("enr-1", "stu-1", sectionUUID, 10, 0)
	session := store.addSession(models.Session{ClassSectionID: sectionUUID, Date: mustDay(t, "2024-03-04"), StartTime: tod("09:00"), EndTime: tod("10:00"), LessonHours: 1})
	f := newServiceFixture(t, store)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	hours := 1.5
	status := string(models.SessionStatusCompleted)
	updated, err := f.sessions.Update(context.Background(), models.Unrestricted("staff-1"), session.ID, dto.UpdateSessionRequest{
		SessionPatchRequest: dto.SessionPatchRequest{LessonHours: &hours},
		Status:              &status,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, updated.Status)
	assert.Equal(t, 1.5, updated.LessonHours)
	require.Len(t, store.records, 1)
	assert.Equal(t, 1.5, store.records[0].Hours)
	assert.Equal(t, 1.5, store.enrollment("enr-1").UsedHours)
}

func TestSessionServiceUpdateGuards(t *testing.T) {
	store := sessionServiceStore(t)
	store.addEnrollment("enr-1", "stu-1", sectionUUID, 10, 0)
	completed := store.addSession(models.Session{ClassSectionID: sectionUUID, Date: mustDay(t, "2024-03-01"), StartTime: tod("09:00"), EndTime: tod("10:00"), LessonHours: 1, Status: models.SessionStatusCompleted})
	open := store.addSession(models.Session{ClassSectionID: sectionUUID, Date: mustDay(t, "2024-03-04"), StartTime: tod("09:00"), EndTime: tod("10:00"), LessonHours: 1})
	store.addSession(models.Session{ClassSectionID: sectionUUID, Date: mustDay(t, "2024-03-04"), StartTime: tod("11:00"), EndTime: tod("12:00"), LessonHours: 1})
	f := newServiceFixture(t, store)
	ctx := context.Background()

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	hours := 3.0
	_, err := f.sessions.Update(ctx, models.Unrestricted("admin"), completed.ID, dto.UpdateSessionRequest{SessionPatchRequest: dto.SessionPatchRequest{LessonHours: &hours}})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	start := "11:30"
	end := "12:30"
	_, err = f.sessions.Update(ctx, models.Unrestricted("admin"), open.ID, dto.UpdateSessionRequest{SessionPatchRequest: dto.SessionPatchRequest{StartTime: &start, EndTime: &end}})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Equal(t, tod("09:00"), store.sessions[open.ID].StartTime)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	title := "Mock exam"
	updated, err := f.sessions.Update(ctx, models.Unrestricted("admin"), completed.ID, dto.UpdateSessionRequest{SessionPatchRequest: dto.SessionPatchRequest{Title: &title}})
	require.NoError(t, err)
	assert.Equal(t, "Mock exam", *updated.Title)

	_, err = f.sessions.Update(ctx, models.Unrestricted("admin"), open.ID, dto.UpdateSessionRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSessionServiceGetHidesOutOfScope(t *testing.T) {
	store := sessionServiceStore(t)
	session := store.addSession(models.Session{ClassSectionID: sectionUUID, Date: mustDay(t, "2024-03-04"), StartTime: tod("09:00"), EndTime: tod("10:00")})
	f := newServiceFixture(t, store)

	other := campusB
	_, err := f.sessions.Get(context.Background(), models.Scope{UserID: "u-1", CampusID: &other}, session.ID)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	got, err := f.sessions.Get(context.Background(), models.Scope{UserID: "u-2", IsTeacher: true, TeacherID: teacher1}, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)

	items, pagination, err := f.sessions.List(context.Background(), models.Unrestricted("admin"), dto.SessionListQuery{Status: "scheduled"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}
