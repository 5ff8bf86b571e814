package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestClassSectionRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassSectionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "campus_id", "course_id", "name", "teacher_id", "classroom_id", "status", "capacity", "created_at", "updated_at"}).
		AddRow("cs-1", "campus-1", "course-1", "Math A", "teacher-1", nil, "ongoing", 20, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM class_sections WHERE id = $1")).WithArgs("cs-1").WillReturnRows(rows)

	section, err := repo.FindByID(context.Background(), nil, "cs-1")
	require.NoError(t, err)
	assert.Equal(t, models.ClassSectionStatusOngoing, section.Status)
	require.NotNil(t, section.TeacherID)
	assert.Nil(t, section.ClassroomID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListBySession(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "enrollment_id", "session_id", "status", "deduct_hours", "created_at", "updated_at"}).
		AddRow("att-1", "enr-1", "s-1", "absent", false, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM student_attendances WHERE session_id = $1")).WithArgs("s-1").WillReturnRows(rows)

	items, err := repo.ListBySession(context.Background(), nil, "s-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].ExcludesLedger())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryRemainingHours(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	deduct := regexp.QuoteMeta("SET remaining_hours = GREATEST(prev.remaining_hours - $2, 0)")
	mock.ExpectQuery(deduct).
		WithArgs("stu-1", 2.0, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"deducted"}).AddRow("1.00"))
	mock.ExpectQuery(deduct).
		WithArgs("missing", 2.0, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"deducted"}))
	mock.ExpectExec(regexp.QuoteMeta("SET remaining_hours = remaining_hours + $2")).
		WithArgs("stu-1", 1.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	deducted, err := repo.DeductRemainingHours(context.Background(), nil, "stu-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, deducted)
	deducted, err = repo.DeductRemainingHours(context.Background(), nil, "missing", 2)
	require.NoError(t, err)
	assert.Zero(t, deducted)
	require.NoError(t, repo.RestoreRemainingHours(context.Background(), nil, "stu-1", 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScopeRepositoryFindByUserID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScopeRepository(db)

	rows := sqlmock.NewRows([]string{"user_id", "campus_id", "teacher_id"}).AddRow("user-1", "campus-1", "teacher-1")
	mock.ExpectQuery(regexp.QuoteMeta("FROM users u LEFT JOIN teachers t ON t.user_id = u.id WHERE u.id = $1")).
		WithArgs("user-1").
		WillReturnRows(rows)

	stored, err := repo.FindByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	scope := stored.Scope()
	assert.True(t, scope.IsTeacher)
	assert.Equal(t, "teacher-1", scope.TeacherID)
	assert.True(t, scope.AllowsCampus("campus-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
