package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryListActiveByClassSection(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "class_section_id", "campus_id", "purchased_hours", "used_hours", "status", "created_at", "updated_at", "student_name"}).
		AddRow("enr-1", "stu-1", "cs-1", "campus-1", "10.00", "2.00", "active", now, now, "Budi").
		AddRow("enr-2", "stu-2", "cs-1", "campus-1", "20.00", "0.00", "active", now, now, "Citra")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.class_section_id = $1 AND e.status = 'active'")).
		WithArgs("cs-1").
		WillReturnRows(rows)

	enrollments, err := repo.ListActiveByClassSection(context.Background(), nil, "cs-1")
	require.NoError(t, err)
	require.Len(t, enrollments, 2)
	assert.Equal(t, 10.0, enrollments[0].PurchasedHours)
	assert.Equal(t, "Budi", enrollments[0].StudentName)
	assert.Equal(t, models.EnrollmentStatusActive, enrollments[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountActive(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE class_section_id = $1 AND status = 'active'")).
		WithArgs("cs-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	count, err := repo.CountActive(context.Background(), nil, "cs-1")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAddUsedHours(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET used_hours = used_hours + $2")).
		WithArgs("enr-1", 1.5, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AddUsedHours(context.Background(), nil, "enr-1", 1.5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySubtractUsedHoursClamps(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET used_hours = GREATEST(used_hours - $2, 0)")).
		WithArgs("enr-missing", 2.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SubtractUsedHours(context.Background(), nil, "enr-missing", 2)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}
