package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func strPtr(v string) *string { return &v }

// memStore is an in-memory stand-in for the Postgres tables the services touch.
type memStore struct {
	sections    map[string]*models.ClassSection
	sessions    map[string]models.Session
	enrollments []*models.EnrollmentDetail
	remaining   map[string]float64
	records     []models.LessonRecord
	attendance  []models.StudentAttendance
	locks       [][]string
	creates     int
	failCreate  int
	failRecord  bool
}

func newMemStore() *memStore {
	return &memStore{
		sections:  map[string]*models.ClassSection{},
		sessions:  map[string]models.Session{},
		remaining: map[string]float64{},
	}
}

func (m *memStore) addSection(section models.ClassSection) {
	m.sections[section.ID] = &section
}

func (m *memStore) addEnrollment(id, studentID, sectionID string, purchased, used float64) {
	m.enrollments = append(m.enrollments, &models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			ID: id, StudentID: studentID, ClassSectionID: sectionID,
			CampusID: m.sections[sectionID].CampusID, PurchasedHours: purchased, UsedHours: used,
			Status: models.EnrollmentStatusActive,
		},
		StudentName: "Student " + studentID,
	})
	m.remaining[studentID] = purchased - used
}

func (m *memStore) addSession(session models.Session) models.Session {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusScheduled
	}
	if session.CampusID == "" {
		session.CampusID = m.sections[session.ClassSectionID].CampusID
	}
	m.sessions[session.ID] = session
	return session
}

func (m *memStore) enrollment(id string) *models.EnrollmentDetail {
	for _, e := range m.enrollments {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (m *memStore) detail(session models.Session) models.SessionDetail {
	detail := models.SessionDetail{Session: session, EffectiveTeacherID: session.TeacherID, EffectiveClassroomID: session.ClassroomID}
	if section, ok := m.sections[session.ClassSectionID]; ok {
		if detail.EffectiveTeacherID == nil {
			detail.EffectiveTeacherID = section.TeacherID
		}
		if detail.EffectiveClassroomID == nil {
			detail.EffectiveClassroomID = section.ClassroomID
		}
		name := section.Name
		detail.ClassSectionName = &name
	}
	return detail
}

func (m *memStore) visible(detail models.SessionDetail, scope models.Scope) bool {
	return scope.AllowsCampus(detail.CampusID) && scope.AllowsTeacher(detail.EffectiveTeacherID)
}

func (m *memStore) sortedSessions() []models.Session {
	out := make([]models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type sessionRepoStub struct{ *memStore }

func (s sessionRepoStub) FindByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.SessionDetail, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("find session: %w", sql.ErrNoRows)
	}
	detail := s.detail(session)
	return &detail, nil
}

func (s sessionRepoStub) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionDetail, error) {
	return s.FindByID(ctx, exec, id)
}

func (s sessionRepoStub) ListForConflict(_ context.Context, _ sqlx.ExtContext, date time.Time, teacherID, classroomID *string, excludeID string) ([]models.SessionDetail, error) {
	if teacherID == nil && classroomID == nil {
		return nil, nil
	}
	var out []models.SessionDetail
	for _, session := range s.sortedSessions() {
		if session.Status == models.SessionStatusCancelled || session.ID == excludeID || !models.SameDate(session.Date, date) {
			continue
		}
		detail := s.detail(session)
		if sameResource(teacherID, detail.EffectiveTeacherID) || sameResource(classroomID, detail.EffectiveClassroomID) {
			out = append(out, detail)
		}
	}
	return out, nil
}

func (s sessionRepoStub) Create(_ context.Context, _ sqlx.ExtContext, session *models.Session) error {
	s.creates++
	if s.failCreate > 0 && s.creates == s.failCreate {
		return errors.New("insert failed")
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s sessionRepoStub) Update(_ context.Context, _ sqlx.ExtContext, session *models.Session) error {
	if _, ok := s.sessions[session.ID]; !ok {
		return fmt.Errorf("update session: %w", sql.ErrNoRows)
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s sessionRepoStub) UpdateStatus(_ context.Context, _ sqlx.ExtContext, id string, status models.SessionStatus, actor string) error {
	session, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("update session status: %w", sql.ErrNoRows)
	}
	session.Status = status
	session.UpdatedBy = &actor
	s.sessions[id] = session
	return nil
}

func (s sessionRepoStub) ListByIDs(_ context.Context, _ sqlx.ExtContext, ids []string, scope models.Scope, _ bool) ([]models.SessionDetail, error) {
	var out []models.SessionDetail
	for _, id := range ids {
		session, ok := s.sessions[id]
		if !ok {
			continue
		}
		detail := s.detail(session)
		if s.visible(detail, scope) {
			out = append(out, detail)
		}
	}
	return out, nil
}

func (s sessionRepoStub) DeleteByIDs(_ context.Context, _ sqlx.ExtContext, ids []string, scope models.Scope) (int64, error) {
	var deleted int64
	for _, id := range ids {
		session, ok := s.sessions[id]
		if !ok || session.Status == models.SessionStatusCompleted || !s.visible(s.detail(session), scope) {
			continue
		}
		delete(s.sessions, id)
		deleted++
	}
	return deleted, nil
}

func (s sessionRepoStub) DeleteByBatchNo(ctx context.Context, exec sqlx.ExtContext, batchNo string, scope models.Scope) (int64, error) {
	var ids []string
	for id, session := range s.sessions {
		if session.BatchNo != nil && *session.BatchNo == batchNo {
			ids = append(ids, id)
		}
	}
	return s.DeleteByIDs(ctx, exec, ids, scope)
}

func (s sessionRepoStub) Delete(_ context.Context, _ sqlx.ExtContext, id string) error {
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("delete session: %w", sql.ErrNoRows)
	}
	delete(s.sessions, id)
	return nil
}

func (s sessionRepoStub) ListDueForSweep(_ context.Context, cutoff time.Time, after *models.DueSession, limit int) ([]models.DueSession, error) {
	var due []models.DueSession
	for _, session := range s.sortedSessions() {
		if session.Status != models.SessionStatusScheduled || !session.Date.Before(models.DateOnly(cutoff)) {
			continue
		}
		row := models.DueSession{ID: session.ID, Date: session.Date, StartTime: session.StartTime}
		if after != nil && !row.After(*after) {
			continue
		}
		due = append(due, row)
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (s sessionRepoStub) List(_ context.Context, filter models.SessionFilter, scope models.Scope) ([]models.SessionDetail, int, error) {
	var out []models.SessionDetail
	for _, session := range s.sortedSessions() {
		detail := s.detail(session)
		if !s.visible(detail, scope) {
			continue
		}
		if filter.ClassSectionID != "" && session.ClassSectionID != filter.ClassSectionID {
			continue
		}
		if filter.Status != "" && session.Status != filter.Status {
			continue
		}
		out = append(out, detail)
	}
	return out, len(out), nil
}

func (s sessionRepoStub) SumScheduledHours(_ context.Context, _ sqlx.ExtContext, classSectionID string) (float64, error) {
	total := 0.0
	for _, session := range s.sessions {
		if session.ClassSectionID == classSectionID && session.Status == models.SessionStatusScheduled {
			total += session.LessonHours
		}
	}
	return total, nil
}

func (s sessionRepoStub) AcquireLocks(_ context.Context, _ sqlx.ExtContext, keys []string) error {
	s.locks = append(s.locks, keys)
	return nil
}

type sectionRepoStub struct{ *memStore }

func (s sectionRepoStub) FindByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.ClassSection, error) {
	section, ok := s.sections[id]
	if !ok {
		return nil, fmt.Errorf("find class section: %w", sql.ErrNoRows)
	}
	clone := *section
	return &clone, nil
}

type enrollmentRepoStub struct{ *memStore }

func (s enrollmentRepoStub) ListActiveByClassSection(_ context.Context, _ sqlx.ExtContext, classSectionID string) ([]models.EnrollmentDetail, error) {
	var out []models.EnrollmentDetail
	for _, e := range s.enrollments {
		if e.ClassSectionID == classSectionID && e.Status == models.EnrollmentStatusActive {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s enrollmentRepoStub) CountActive(ctx context.Context, exec sqlx.ExtContext, classSectionID string) (int, error) {
	active, err := s.ListActiveByClassSection(ctx, exec, classSectionID)
	return len(active), err
}

func (s enrollmentRepoStub) AddUsedHours(_ context.Context, _ sqlx.ExtContext, id string, hours float64) error {
	e := s.enrollment(id)
	if e == nil {
		return fmt.Errorf("add used hours: %w", sql.ErrNoRows)
	}
	e.UsedHours = roundHours(e.UsedHours + hours)
	return nil
}

func (s enrollmentRepoStub) SubtractUsedHours(_ context.Context, _ sqlx.ExtContext, id string, hours float64) error {
	e := s.enrollment(id)
	if e == nil {
		return fmt.Errorf("subtract used hours: %w", sql.ErrNoRows)
	}
	e.UsedHours = roundHours(e.UsedHours - hours)
	if e.UsedHours < 0 {
		e.UsedHours = 0
	}
	return nil
}

type studentRepoStub struct{ *memStore }

func (s studentRepoStub) DeductRemainingHours(_ context.Context, _ sqlx.ExtContext, studentID string, hours float64) (float64, error) {
	before := s.remaining[studentID]
	left := before - hours
	if left < 0 {
		left = 0
	}
	s.remaining[studentID] = roundHours(left)
	return roundHours(before - s.remaining[studentID]), nil
}

func (s studentRepoStub) RestoreRemainingHours(_ context.Context, _ sqlx.ExtContext, studentID string, hours float64) error {
	s.remaining[studentID] = roundHours(s.remaining[studentID] + hours)
	return nil
}

type recordRepoStub struct{ *memStore }

func (s recordRepoStub) Insert(_ context.Context, _ sqlx.ExtContext, record *models.LessonRecord) (bool, error) {
	if s.failRecord {
		return false, errors.New("insert lesson record failed")
	}
	for _, existing := range s.records {
		if existing.EnrollmentID == record.EnrollmentID && existing.SessionID == record.SessionID && existing.Type == record.Type {
			return false, nil
		}
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	s.records = append(s.records, *record)
	return true, nil
}

func (s recordRepoStub) SetRemainingDeducted(_ context.Context, _ sqlx.ExtContext, id string, hours float64) error {
	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].RemainingDeducted = hours
			return nil
		}
	}
	return fmt.Errorf("set remaining deducted: %w", sql.ErrNoRows)
}

func (s recordRepoStub) ListBySession(_ context.Context, _ sqlx.ExtContext, sessionID string, recordType models.LessonRecordType) ([]models.LessonRecord, error) {
	var out []models.LessonRecord
	for _, r := range s.records {
		if r.SessionID == sessionID && r.Type == recordType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s recordRepoStub) DeleteByIDs(_ context.Context, _ sqlx.ExtContext, ids []string) (int64, error) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.records[:0]
	var deleted int64
	for _, r := range s.records {
		if drop[r.ID] {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.memStore.records = kept
	return deleted, nil
}

type attendanceRepoStub struct{ *memStore }

func (s attendanceRepoStub) ListBySession(_ context.Context, _ sqlx.ExtContext, sessionID string) ([]models.StudentAttendance, error) {
	var out []models.StudentAttendance
	for _, a := range s.attendance {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}

// serviceFixture wires every core service over one memStore.
type serviceFixture struct {
	store     *memStore
	mock      sqlmock.Sqlmock
	conflicts *ConflictService
	batch     *BatchScheduleService
	lifecycle *SessionLifecycleService
	sessions  *SessionService
	summary   *HoursSummaryService
}

func newServiceFixture(t *testing.T, store *memStore) *serviceFixture {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	sessions := sessionRepoStub{store}
	sections := sectionRepoStub{store}
	enrollments := enrollmentRepoStub{store}
	conflicts := NewConflictService(sessions, enrollments, sections, nil)
	lifecycle := NewSessionLifecycleService(sessions, enrollments, studentRepoStub{store}, recordRepoStub{store}, attendanceRepoStub{store}, conflicts, tx, nil, nil)
	return &serviceFixture{
		store:     store,
		mock:      mock,
		conflicts: conflicts,
		batch:     NewBatchScheduleService(sections, sessions, conflicts, enrollments, tx, nil, nil, BatchScheduleConfig{}),
		lifecycle: lifecycle,
		sessions:  NewSessionService(sessions, sections, conflicts, lifecycle, tx, nil, nil, nil),
		summary:   NewHoursSummaryService(sections, sessions, enrollments, nil),
	}
}

const (
	campusA   = "campus-a"
	campusB   = "campus-b"
	sectionA  = "section-a"
	teacher1  = "teacher-1"
	teacher2  = "teacher-2"
	classroom = "room-1"
)

func seededStore() *memStore {
	store := newMemStore()
	store.addSection(models.ClassSection{
		ID: sectionA, CampusID: campusA, Name: "Algebra A", TeacherID: strPtr(teacher1),
		ClassroomID: strPtr(classroom), Status: models.ClassSectionStatusOngoing, Capacity: 20,
	})
	return store
}
