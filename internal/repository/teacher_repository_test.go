package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/appointment-booking-api/internal/models"
)

func TestTeacherRepositoryListWithSearch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "full_name", "department", "subject", "active", "invited_at", "updated_at"}).
		AddRow("t1", "ada@example.com", "Ada", "Science", "Physics", true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM teachers WHERE active = TRUE AND (LOWER(full_name) LIKE $1 OR LOWER(email) LIKE $1) AND department = $2 ORDER BY full_name ASC LIMIT 20 OFFSET 0")).
		WithArgs("%ada%", "Science").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM teachers WHERE active = TRUE")).
		WithArgs("%ada%", "Science").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	teachers, total, err := repo.List(context.Background(), models.TeacherFilter{Search: "Ada", Department: "Science"})
	require.NoError(t, err)
	require.Len(t, teachers, 1)
	assert.Equal(t, "Physics", teachers[0].Subject)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectExec("INSERT INTO teachers").
		WithArgs("t1", "ada@example.com", "Ada", "Science", "Physics", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	teacher := &models.Teacher{ID: "t1", Email: "ada@example.com", FullName: "Ada", Department: "Science", Subject: "Physics"}
	require.NoError(t, repo.Upsert(context.Background(), nil, teacher))
	assert.False(t, teacher.InvitedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryLockByIDInTx(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM teachers WHERE id = $1 FOR UPDATE")).
		WithArgs("teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "department", "subject", "active", "invited_at", "updated_at"}).
			AddRow("teacher-1", "t@example.com", "Teacher", "Science", "Physics", true, now, now))
	mock.ExpectRollback()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	teacher, err := repo.LockByID(context.Background(), tx, "teacher-1")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	assert.Equal(t, "Physics", teacher.Subject)
	assert.NoError(t, mock.ExpectationsWereMet())
}
