package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/AniketSaini0/task-manager/internal/domain"
	"github.com/AniketSaini0/task-manager/pkg/database"
	apperrors "github.com/AniketSaini0/task-manager/pkg/errors"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, refresh_token_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		u.ID,
		u.Username,
		u.Email,
		u.PasswordHash,
		u.RefreshTokenHash,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, username, email, password_hash, refresh_token_hash, created_at, updated_at
		FROM users
		WHERE id = $1`

	return r.scanUser(ctx, query, id)
}

// GetByEmail retrieves a user by their email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT id, username, email, password_hash, refresh_token_hash, created_at, updated_at
		FROM users
		WHERE email = $1`

	return r.scanUser(ctx, query, email)
}

// ReplaceRefreshTokenHash unconditionally sets the stored refresh token hash.
// Login uses it to start a fresh session and logout to clear one.
func (r *UserRepository) ReplaceRefreshTokenHash(ctx context.Context, userID string, hash *string) error {
	query := `
		UPDATE users
		SET refresh_token_hash = $1, updated_at = $2
		WHERE id = $3`

	ct, err := r.db.Exec(ctx, query, hash, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("replace refresh token hash: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", userID)
	}

	return nil
}

// RotateRefreshTokenHash swaps oldHash for newHash atomically. The WHERE
// clause carries the old value, so two concurrent refreshes with the same
// token cannot both win: the second one matches zero rows.
func (r *UserRepository) RotateRefreshTokenHash(ctx context.Context, userID, oldHash, newHash string) (bool, error) {
	query := `
		UPDATE users
		SET refresh_token_hash = $1, updated_at = $2
		WHERE id = $3 AND refresh_token_hash = $4`

	ct, err := r.db.Exec(ctx, query, newHash, time.Now().UTC(), userID, oldHash)
	if err != nil {
		return false, fmt.Errorf("rotate refresh token hash: %w", err)
	}

	return ct.RowsAffected() == 1, nil
}

// scanUser is a helper that executes a query expected to return a single user row.
func (r *UserRepository) scanUser(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var u domain.User

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.RefreshTokenHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &u, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
