package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/AniketSaini0/task-manager/internal/auth"
	"github.com/AniketSaini0/task-manager/internal/domain"
	"github.com/AniketSaini0/task-manager/internal/event"
	"github.com/AniketSaini0/task-manager/internal/repository"
	apperrors "github.com/AniketSaini0/task-manager/pkg/errors"
	"github.com/AniketSaini0/task-manager/pkg/middleware"
)

// bcryptCost is the cost factor for bcrypt password hashing.
const bcryptCost = 12

// minPasswordLength is the minimum password length required.
const minPasswordLength = 8

// msgStaleRefreshToken is returned whenever a presented refresh token no
// longer matches the stored one. It covers both replayed and concurrently
// rotated tokens without distinguishing the two.
const msgStaleRefreshToken = "refresh token is expired or used"

// AuthService implements registration, login, token refresh, and logout.
type AuthService struct {
	userRepo repository.UserRepository
	tokens   *auth.TokenManager
	producer *event.Producer
	logger   *slog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(
	userRepo repository.UserRepository,
	tokens *auth.TokenManager,
	producer *event.Producer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
		producer: producer,
		logger:   logger,
	}
}

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Email    string
	Password string
}

// Register creates a new user account with a hashed password. It does not
// start a session; the caller logs in afterwards.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	if input.Username == "" {
		return nil, apperrors.InvalidInput("username is required")
	}
	if input.Email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	// Publish registration event (non-blocking on failure).
	if err := s.producer.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, nil
}

// Login authenticates a user with email and password and starts a session.
// The stored refresh token hash is overwritten, so a login on one device
// invalidates the session on any other.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.User, *domain.TokenPair, error) {
	if input.Email == "" {
		return nil, nil, apperrors.InvalidInput("email is required")
	}
	if input.Password == "" {
		return nil, nil, apperrors.InvalidInput("password is required")
	}

	// Unknown email and wrong password produce the same error, so a caller
	// cannot probe which emails are registered.
	user, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, nil, apperrors.Unauthorized("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, nil, apperrors.Unauthorized("invalid email or password")
	}

	pair, err := s.generateTokenPair(user)
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	tokenHash := hashToken(pair.RefreshToken)
	if err := s.userRepo.ReplaceRefreshTokenHash(ctx, user.ID, &tokenHash); err != nil {
		return nil, nil, fmt.Errorf("store refresh token: %w", err)
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, pair, nil
}

// Refresh validates a refresh token and rotates it for a new token pair. The
// rotation is an atomic compare-and-swap on the stored hash: when two
// requests race with the same token, exactly one wins and the other gets a
// stale-token error.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.User, *domain.TokenPair, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, nil, apperrors.Unauthorized("invalid or expired refresh token")
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, apperrors.Unauthorized(msgStaleRefreshToken)
	}

	oldHash := hashToken(refreshToken)
	if user.RefreshTokenHash == nil || *user.RefreshTokenHash != oldHash {
		return nil, nil, apperrors.Unauthorized(msgStaleRefreshToken)
	}

	pair, err := s.generateTokenPair(user)
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	newHash := hashToken(pair.RefreshToken)
	rotated, err := s.userRepo.RotateRefreshTokenHash(ctx, user.ID, oldHash, newHash)
	if err != nil {
		return nil, nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !rotated {
		// Lost the race to a concurrent refresh or logout.
		return nil, nil, apperrors.Unauthorized(msgStaleRefreshToken)
	}

	s.logger.InfoContext(ctx, "tokens refreshed",
		slog.String("user_id", user.ID),
	)

	return user, pair, nil
}

// Logout clears the user's stored refresh token hash, ending the session.
// Logging out an already logged-out user succeeds.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.userRepo.ReplaceRefreshTokenHash(ctx, userID, nil); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}

	s.logger.InfoContext(ctx, "user logged out",
		slog.String("user_id", userID),
	)

	return nil
}

// GetUser retrieves a user by id.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// ResolveAccessToken is the validator behind the auth middleware. It checks
// the token signature and expiry, then confirms the embedded user still
// exists. A token that fails verification is forbidden; a token for a
// deleted user is unauthorized.
func (s *AuthService) ResolveAccessToken(ctx context.Context, token string) (*middleware.Identity, error) {
	claims, err := s.tokens.ValidateAccessToken(token)
	if err != nil {
		return nil, apperrors.Forbidden("invalid or expired token")
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperrors.Unauthorized("user not found")
	}

	return &middleware.Identity{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	}, nil
}

// generateTokenPair signs a fresh access/refresh token pair for the user.
func (s *AuthService) generateTokenPair(user *domain.User) (*domain.TokenPair, error) {
	accessToken, err := s.tokens.GenerateAccessToken(user.ID, user.Username, user.Email)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	refreshToken, err := s.tokens.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// hashToken returns the SHA256 hex digest of the given token string.
func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// validatePassword checks that the password meets minimum complexity requirements.
func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	var hasUpper, hasLower, hasDigit bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit {
		return apperrors.InvalidInput("password must contain at least one uppercase letter, one lowercase letter, and one digit")
	}

	return nil
}
