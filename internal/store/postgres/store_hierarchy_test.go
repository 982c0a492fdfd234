package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/tascade-run/tascade/internal/domain/project"
)

func TestCreateProjectInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)
	now := time.Now().UTC()
	p := project.Project{ID: "proj-1", Name: "Tascade", Status: project.StatusActive, CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec("INSERT INTO project").
		WithArgs(p.ID, p.Name, p.Status, p.CreatedAt, p.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	got, err := s.CreateProject(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, p, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProjectScansRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "name", "status", "created_at", "updated_at"}).
		AddRow("proj-1", "Tascade", "active", now, now)
	mock.ExpectQuery("SELECT id, name, status, created_at, updated_at FROM project WHERE id = \\$1").
		WithArgs("proj-1").
		WillReturnRows(rows)

	got, err := s.GetProject(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Equal(t, project.StatusActive, got.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProjectStatusNoRowsReturnsErrNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)
	mock.ExpectExec("UPDATE project SET status").
		WithArgs("missing", project.StatusPaused).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = s.UpdateProjectStatus(context.Background(), "missing", project.StatusPaused)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithLockCommitsOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO project").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	now := time.Now().UTC()
	err = s.WithLock(context.Background(), func(ctx context.Context) error {
		_, err := s.CreateProject(ctx, project.Project{ID: "p", Name: "n", Status: project.StatusActive, CreatedAt: now, UpdatedAt: now})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithLockRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO project").WillReturnError(assertErr{"boom"})
	mock.ExpectRollback()

	now := time.Now().UTC()
	err = s.WithLock(context.Background(), func(ctx context.Context) error {
		_, err := s.CreateProject(ctx, project.Project{ID: "p", Name: "n", Status: project.StatusActive, CreatedAt: now, UpdatedAt: now})
		return err
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
