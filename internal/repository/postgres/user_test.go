package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AniketSaini0/task-manager/internal/domain"
	apperrors "github.com/AniketSaini0/task-manager/pkg/errors"
)

func newUserTestFixture(t *testing.T) (*UserRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := NewUserRepository(mock)
	return repo, mock
}

func strPtr(s string) *string {
	return &s
}

func sampleUser() *domain.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.User{
		ID:               "u-1234",
		Username:         "alice",
		Email:            "alice@example.com",
		PasswordHash:     "hash-abc",
		RefreshTokenHash: strPtr("rt-hash"),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func userColumns() []string {
	return []string{
		"id", "username", "email", "password_hash", "refresh_token_hash",
		"created_at", "updated_at",
	}
}

func userRow(u *domain.User) *pgxmock.Rows {
	return pgxmock.NewRows(userColumns()).AddRow(
		u.ID, u.Username, u.Email, u.PasswordHash, u.RefreshTokenHash,
		u.CreatedAt, u.UpdatedAt,
	)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestUserRepository_Create_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(
			u.ID, u.Username, u.Email, u.PasswordHash, u.RefreshTokenHash,
			u.CreatedAt, u.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), u)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create_DuplicateEmail(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(
			u.ID, u.Username, u.Email, u.PasswordHash, u.RefreshTokenHash,
			u.CreatedAt, u.UpdatedAt,
		).
		WillReturnError(fmt.Errorf("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"))

	err := repo.Create(context.Background(), u)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists), "expected ErrAlreadyExists, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// GetByID / GetByEmail
// ---------------------------------------------------------------------------

func TestUserRepository_GetByID_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectQuery("SELECT .+ FROM users WHERE id =").
		WithArgs(u.ID).
		WillReturnRows(userRow(u))

	got, err := repo.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.Username, got.Username)
	assert.Equal(t, u.Email, got.Email)
	require.NotNil(t, got.RefreshTokenHash)
	assert.Equal(t, "rt-hash", *got.RefreshTokenHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM users WHERE id =").
		WithArgs("missing-id").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByID(context.Background(), "missing-id")
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "expected ErrNotFound, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByEmail_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectQuery("SELECT .+ FROM users WHERE email =").
		WithArgs(u.Email).
		WillReturnRows(userRow(u))

	got, err := repo.GetByEmail(context.Background(), u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByEmail_NullRefreshTokenHash(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()
	u.RefreshTokenHash = nil

	mock.ExpectQuery("SELECT .+ FROM users WHERE email =").
		WithArgs(u.Email).
		WillReturnRows(userRow(u))

	got, err := repo.GetByEmail(context.Background(), u.Email)
	require.NoError(t, err)
	assert.Nil(t, got.RefreshTokenHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// ReplaceRefreshTokenHash
// ---------------------------------------------------------------------------

func TestUserRepository_ReplaceRefreshTokenHash_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	hash := "new-hash"
	mock.ExpectExec("UPDATE users SET refresh_token_hash =").
		WithArgs(&hash, pgxmock.AnyArg(), "u-1234").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.ReplaceRefreshTokenHash(context.Background(), "u-1234", &hash)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_ReplaceRefreshTokenHash_Clear(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE users SET refresh_token_hash =").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "u-1234").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.ReplaceRefreshTokenHash(context.Background(), "u-1234", nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_ReplaceRefreshTokenHash_UnknownUser(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE users SET refresh_token_hash =").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "missing-id").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.ReplaceRefreshTokenHash(context.Background(), "missing-id", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "expected ErrNotFound, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// RotateRefreshTokenHash
// ---------------------------------------------------------------------------

func TestUserRepository_RotateRefreshTokenHash_Wins(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE users SET refresh_token_hash = .+ WHERE id = .+ AND refresh_token_hash =").
		WithArgs("new-hash", pgxmock.AnyArg(), "u-1234", "old-hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	rotated, err := repo.RotateRefreshTokenHash(context.Background(), "u-1234", "old-hash", "new-hash")
	require.NoError(t, err)
	assert.True(t, rotated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_RotateRefreshTokenHash_LosesRace(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	// The stored hash no longer matches, so the conditional update affects
	// zero rows.
	mock.ExpectExec("UPDATE users SET refresh_token_hash = .+ WHERE id = .+ AND refresh_token_hash =").
		WithArgs("new-hash", pgxmock.AnyArg(), "u-1234", "stale-hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	rotated, err := repo.RotateRefreshTokenHash(context.Background(), "u-1234", "stale-hash", "new-hash")
	require.NoError(t, err)
	assert.False(t, rotated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
