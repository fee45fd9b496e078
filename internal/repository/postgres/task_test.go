package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AniketSaini0/task-manager/internal/domain"
	apperrors "github.com/AniketSaini0/task-manager/pkg/errors"
	"github.com/AniketSaini0/task-manager/pkg/pagination"
)

func newTaskTestFixture(t *testing.T) (*TaskRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := NewTaskRepository(mock)
	return repo, mock
}

func sampleTask() *domain.Task {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Task{
		ID:          "t-1",
		UserID:      "u-1",
		Title:       "write report",
		Description: "quarterly numbers",
		Completed:   false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func taskColumns() []string {
	return []string{
		"id", "user_id", "title", "description", "completed",
		"created_at", "updated_at",
	}
}

func taskRow(task *domain.Task) *pgxmock.Rows {
	return pgxmock.NewRows(taskColumns()).AddRow(
		task.ID, task.UserID, task.Title, task.Description, task.Completed,
		task.CreatedAt, task.UpdatedAt,
	)
}

func TestTaskRepository_Create_Success(t *testing.T) {
	repo, mock := newTaskTestFixture(t)
	defer mock.Close()

	task := sampleTask()

	mock.ExpectExec("INSERT INTO tasks").
		WithArgs(
			task.ID, task.UserID, task.Title, task.Description, task.Completed,
			task.CreatedAt, task.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), task)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_GetByID_Success(t *testing.T) {
	repo, mock := newTaskTestFixture(t)
	defer mock.Close()

	task := sampleTask()

	mock.ExpectQuery("SELECT .+ FROM tasks WHERE id =").
		WithArgs(task.ID).
		WillReturnRows(taskRow(task))

	got, err := repo.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, task.UserID, got.UserID)
	assert.Equal(t, task.Title, got.Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newTaskTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM tasks WHERE id =").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByID(context.Background(), "missing")
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "expected ErrNotFound, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_ListByUserID(t *testing.T) {
	repo, mock := newTaskTestFixture(t)
	defer mock.Close()

	task := sampleTask()
	params := pagination.Params{Page: 1, PerPage: 20, Offset: 0}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tasks WHERE user_id =`).
		WithArgs(task.UserID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	mock.ExpectQuery("SELECT .+ FROM tasks WHERE user_id = .+ ORDER BY created_at DESC").
		WithArgs(task.UserID, params.PerPage, params.Offset).
		WillReturnRows(taskRow(task))

	tasks, total, err := repo.ListByUserID(context.Background(), task.UserID, params)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.ID, tasks[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_ListByUserID_Empty(t *testing.T) {
	repo, mock := newTaskTestFixture(t)
	defer mock.Close()

	params := pagination.Params{Page: 1, PerPage: 20, Offset: 0}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tasks WHERE user_id =`).
		WithArgs("u-empty").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	mock.ExpectQuery("SELECT .+ FROM tasks WHERE user_id = .+ ORDER BY created_at DESC").
		WithArgs("u-empty", params.PerPage, params.Offset).
		WillReturnRows(pgxmock.NewRows(taskColumns()))

	tasks, total, err := repo.ListByUserID(context.Background(), "u-empty", params)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_Update_Success(t *testing.T) {
	repo, mock := newTaskTestFixture(t)
	defer mock.Close()

	task := sampleTask()

	mock.ExpectExec("UPDATE tasks SET").
		WithArgs(task.Title, task.Description, task.Completed, pgxmock.AnyArg(), task.ID, task.UserID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.Update(context.Background(), task)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_Update_WrongOwner(t *testing.T) {
	repo, mock := newTaskTestFixture(t)
	defer mock.Close()

	task := sampleTask()
	task.UserID = "someone-else"

	mock.ExpectExec("UPDATE tasks SET").
		WithArgs(task.Title, task.Description, task.Completed, pgxmock.AnyArg(), task.ID, task.UserID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), task)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "expected ErrNotFound, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_Delete_Success(t *testing.T) {
	repo, mock := newTaskTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM tasks WHERE id = .+ AND user_id =").
		WithArgs("t-1", "u-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := repo.Delete(context.Background(), "t-1", "u-1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_Delete_NotFound(t *testing.T) {
	repo, mock := newTaskTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM tasks WHERE id = .+ AND user_id =").
		WithArgs("t-1", "u-2").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := repo.Delete(context.Background(), "t-1", "u-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "expected ErrNotFound, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
