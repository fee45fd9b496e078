package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/AniketSaini0/task-manager/internal/domain"
	"github.com/AniketSaini0/task-manager/pkg/database"
	apperrors "github.com/AniketSaini0/task-manager/pkg/errors"
	"github.com/AniketSaini0/task-manager/pkg/pagination"
)

// TaskRepository implements repository.TaskRepository using PostgreSQL.
type TaskRepository struct {
	db database.DBTX
}

// NewTaskRepository creates a new PostgreSQL-backed task repository.
func NewTaskRepository(db database.DBTX) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a new task into the database.
func (r *TaskRepository) Create(ctx context.Context, t *domain.Task) error {
	query := `
		INSERT INTO tasks (id, user_id, title, description, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		t.ID,
		t.UserID,
		t.Title,
		t.Description,
		t.Completed,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	return nil
}

// GetByID retrieves a task by its ID.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	query := `
		SELECT id, user_id, title, description, completed, created_at, updated_at
		FROM tasks
		WHERE id = $1`

	var t domain.Task
	err := r.db.QueryRow(ctx, query, id).Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.Description,
		&t.Completed,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	return &t, nil
}

// ListByUserID returns a page of the user's tasks, newest first, plus the
// total count.
func (r *TaskRepository) ListByUserID(ctx context.Context, userID string, params pagination.Params) ([]domain.Task, int, error) {
	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	query := `
		SELECT id, user_id, title, description, completed, created_at, updated_at
		FROM tasks
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, userID, params.PerPage, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.Title,
			&t.Description,
			&t.Completed,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate task rows: %w", err)
	}

	if tasks == nil {
		tasks = []domain.Task{}
	}

	return tasks, total, nil
}

// Update modifies an existing task. The WHERE clause carries the owner id, so
// updating another user's task reports not found rather than leaking its
// existence.
func (r *TaskRepository) Update(ctx context.Context, t *domain.Task) error {
	t.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE tasks
		SET title = $1, description = $2, completed = $3, updated_at = $4
		WHERE id = $5 AND user_id = $6`

	ct, err := r.db.Exec(ctx, query,
		t.Title,
		t.Description,
		t.Completed,
		t.UpdatedAt,
		t.ID,
		t.UserID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("task", t.ID)
	}

	return nil
}

// Delete removes a task owned by the given user.
func (r *TaskRepository) Delete(ctx context.Context, id, userID string) error {
	query := `DELETE FROM tasks WHERE id = $1 AND user_id = $2`

	ct, err := r.db.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("task", id)
	}

	return nil
}
