package repository

import (
	"context"
	"time"

	"github.com/AniketSaini0/task-manager/internal/domain"
	"github.com/AniketSaini0/task-manager/pkg/pagination"
)

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user into the store.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// ReplaceRefreshTokenHash unconditionally sets the stored refresh token
	// hash for the user. A nil hash clears the session.
	ReplaceRefreshTokenHash(ctx context.Context, userID string, hash *string) error

	// RotateRefreshTokenHash swaps oldHash for newHash only if oldHash is
	// still the stored value. Returns false when the stored value no longer
	// matches, which means the presented token was already rotated or the
	// session was cleared.
	RotateRefreshTokenHash(ctx context.Context, userID, oldHash, newHash string) (bool, error)
}

// TaskRepository defines the interface for task persistence operations.
type TaskRepository interface {
	// Create inserts a new task into the store.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Task, error)

	// ListByUserID returns a page of the user's tasks plus the total count.
	ListByUserID(ctx context.Context, userID string, params pagination.Params) ([]domain.Task, int, error)

	// Update modifies an existing task in the store.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes a task owned by the given user.
	Delete(ctx context.Context, id, userID string) error
}

// TaskCache defines the interface for the task list cache.
type TaskCache interface {
	// GetList returns the cached first page of the user's tasks, or a cache
	// miss (nil slice, false).
	GetList(ctx context.Context, userID string, params pagination.Params) ([]domain.Task, int, bool, error)

	// SetList caches a page of the user's tasks with the given TTL.
	SetList(ctx context.Context, userID string, params pagination.Params, tasks []domain.Task, total int, ttl time.Duration) error

	// Invalidate drops all cached task pages for the user.
	Invalidate(ctx context.Context, userID string) error
}
