package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AniketSaini0/task-manager/internal/auth"
	"github.com/AniketSaini0/task-manager/internal/domain"
	"github.com/AniketSaini0/task-manager/internal/event"
	"github.com/AniketSaini0/task-manager/internal/service"
	apperrors "github.com/AniketSaini0/task-manager/pkg/errors"
	"github.com/AniketSaini0/task-manager/pkg/health"
	"github.com/AniketSaini0/task-manager/pkg/httputil"
	pkgkafka "github.com/AniketSaini0/task-manager/pkg/kafka"
	"github.com/AniketSaini0/task-manager/pkg/pagination"
)

// ============================================================================
// In-memory fakes
//
// The session flow is stateful (login stores a hash, refresh swaps it), so
// the tests use small in-memory repositories instead of expectation mocks.
// ============================================================================

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*domain.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return apperrors.AlreadyExists("user", "email", user.Email)
		}
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeUserRepo) ReplaceRefreshTokenHash(_ context.Context, userID string, hash *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return apperrors.NotFound("user", userID)
	}
	u.RefreshTokenHash = hash
	return nil
}

func (f *fakeUserRepo) RotateRefreshTokenHash(_ context.Context, userID, oldHash, newHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return false, nil
	}
	if u.RefreshTokenHash == nil || *u.RefreshTokenHash != oldHash {
		return false, nil
	}
	u.RefreshTokenHash = &newHash
	return true, nil
}

type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[string]*domain.Task)}
}

func (f *fakeTaskRepo) Create(_ context.Context, task *domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *task
	f.tasks[task.ID] = &cp
	return nil
}

func (f *fakeTaskRepo) GetByID(_ context.Context, id string) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *task
	return &cp, nil
}

func (f *fakeTaskRepo) ListByUserID(_ context.Context, userID string, params pagination.Params) ([]domain.Task, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []domain.Task
	for _, task := range f.tasks {
		if task.UserID == userID {
			all = append(all, *task)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	if params.Offset >= total {
		return []domain.Task{}, total, nil
	}
	end := params.Offset + params.PerPage
	if end > total {
		end = total
	}
	return all[params.Offset:end], total, nil
}

func (f *fakeTaskRepo) Update(_ context.Context, task *domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.tasks[task.ID]
	if !ok || existing.UserID != task.UserID {
		return apperrors.NotFound("task", task.ID)
	}
	cp := *task
	f.tasks[task.ID] = &cp
	return nil
}

func (f *fakeTaskRepo) Delete(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.tasks[id]
	if !ok || existing.UserID != userID {
		return apperrors.NotFound("task", id)
	}
	delete(f.tasks, id)
	return nil
}

// ============================================================================
// Test Helpers
// ============================================================================

func handlerTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func handlerTestEventProducer() *event.Producer {
	logger := handlerTestLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:19092"})
	kafkaCfg.Async = true
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	return event.NewProducer(kafkaProducer, logger)
}

type testEnv struct {
	router   http.Handler
	userRepo *fakeUserRepo
	taskRepo *fakeTaskRepo
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := handlerTestLogger()
	producer := handlerTestEventProducer()
	tokenManager := auth.NewTokenManager(
		"access-secret-for-testing",
		"refresh-secret-for-testing",
		15*time.Minute,
		7*24*time.Hour,
	)

	userRepo := newFakeUserRepo()
	taskRepo := newFakeTaskRepo()

	authService := service.NewAuthService(userRepo, tokenManager, producer, logger)
	taskService := service.NewTaskService(taskRepo, nil, producer, logger)

	authHandler := NewAuthHandler(authService, 15*time.Minute, 7*24*time.Hour, false, logger)

	router := NewRouter(RouterConfig{
		AuthService:   authService,
		TaskService:   taskService,
		AuthHandler:   authHandler,
		HealthHandler: health.NewHandler(),
		Logger:        logger,
		CORS:          CORSConfig{Environment: "development"},
	})

	return &testEnv{router: router, userRepo: userRepo, taskRepo: taskRepo}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutate != nil {
		mutate(req)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "SecurePass123",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// login registers (if needed) and logs in, returning the session cookies.
func (e *testEnv) login(t *testing.T) (accessCookie, refreshCookie *http.Cookie) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "SecurePass123",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case accessTokenCookie:
			accessCookie = c
		case refreshTokenCookie:
			refreshCookie = c
		}
	}
	require.NotNil(t, accessCookie)
	require.NotNil(t, refreshCookie)
	return accessCookie, refreshCookie
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// ============================================================================
// Register / Login
// ============================================================================

func TestRegister_CreatedWithoutSession(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "SecurePass123",
	}, nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Data)

	user := resp.Data.(map[string]any)
	assert.Equal(t, "alice", user["username"])
	assert.NotContains(t, user, "password_hash")

	// Registration is not a login: no cookies.
	assert.Empty(t, rec.Result().Cookies())
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := setupTestEnv(t)
	env.register(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "alice2",
		"email":    "alice@example.com",
		"password": "SecurePass123",
	}, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegister_InvalidBody(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "alice",
		"email":    "not-an-email",
		"password": "SecurePass123",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestLogin_SetsHTTPOnlySessionCookies(t *testing.T) {
	env := setupTestEnv(t)
	env.register(t)

	rec := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "SecurePass123",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	names := map[string]*http.Cookie{}
	for _, c := range cookies {
		names[c.Name] = c
	}

	require.Contains(t, names, accessTokenCookie)
	require.Contains(t, names, refreshTokenCookie)
	for _, c := range []*http.Cookie{names[accessTokenCookie], names[refreshTokenCookie]} {
		assert.True(t, c.HttpOnly)
		assert.Equal(t, "/", c.Path)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		assert.NotEmpty(t, c.Value)
	}

	// The access cookie expires before the refresh cookie.
	assert.Less(t, names[accessTokenCookie].MaxAge, names[refreshTokenCookie].MaxAge)
}

func TestLogin_WrongPasswordIsGeneric(t *testing.T) {
	env := setupTestEnv(t)
	env.register(t)

	wrongPass := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "WrongPass999",
	}, nil)
	unknownEmail := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "SecurePass123",
	}, nil)

	assert.Equal(t, http.StatusUnauthorized, wrongPass.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)

	respA := decodeResponse(t, wrongPass)
	respB := decodeResponse(t, unknownEmail)
	require.NotNil(t, respA.Error)
	require.NotNil(t, respB.Error)
	assert.Equal(t, respA.Error.Message, respB.Error.Message)
}

// ============================================================================
// Refresh
// ============================================================================

func TestRefresh_MissingCookie(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/refresh-token", nil, nil)

	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
}

func TestRefresh_RotatesAndRejectsReplay(t *testing.T) {
	env := setupTestEnv(t)
	env.register(t)
	_, refreshCookie := env.login(t)

	// First refresh succeeds and issues new cookies.
	rec := env.do(t, http.MethodPost, "/api/auth/refresh-token", nil, func(r *http.Request) {
		r.AddCookie(refreshCookie)
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var newRefresh *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshTokenCookie {
			newRefresh = c
		}
	}
	require.NotNil(t, newRefresh)
	assert.NotEqual(t, refreshCookie.Value, newRefresh.Value)

	// Replaying the old refresh token fails: it was rotated away.
	replay := env.do(t, http.MethodPost, "/api/auth/refresh-token", nil, func(r *http.Request) {
		r.AddCookie(refreshCookie)
	})
	assert.Equal(t, http.StatusUnauthorized, replay.Code)
	resp := decodeResponse(t, replay)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "refresh token is expired or used")

	// The rotated token still works.
	again := env.do(t, http.MethodPost, "/api/auth/refresh-token", nil, func(r *http.Request) {
		r.AddCookie(newRefresh)
	})
	assert.Equal(t, http.StatusOK, again.Code)
}

func TestRefresh_GarbageToken(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/refresh-token", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: refreshTokenCookie, Value: "garbage"})
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ============================================================================
// Logout
// ============================================================================

func TestLogout_EndsSession(t *testing.T) {
	env := setupTestEnv(t)
	env.register(t)
	accessCookie, refreshCookie := env.login(t)

	rec := env.do(t, http.MethodPost, "/api/auth/logout", nil, func(r *http.Request) {
		r.AddCookie(accessCookie)
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Both cookies are expired.
	expired := 0
	for _, c := range rec.Result().Cookies() {
		if c.Name == accessTokenCookie || c.Name == refreshTokenCookie {
			assert.Less(t, c.MaxAge, 0)
			expired++
		}
	}
	assert.Equal(t, 2, expired)

	// The stored session is gone, so the refresh token no longer works.
	refresh := env.do(t, http.MethodPost, "/api/auth/refresh-token", nil, func(r *http.Request) {
		r.AddCookie(refreshCookie)
	})
	assert.Equal(t, http.StatusUnauthorized, refresh.Code)
}

func TestLogout_RequiresAuth(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/logout", nil, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ============================================================================
// Current User
// ============================================================================

func TestCurrentUser_AnonymousGetsNull(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/auth/current-user", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestCurrentUser_InvalidTokenGetsNull(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/auth/current-user", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer garbage")
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Data)
}

func TestCurrentUser_Authenticated(t *testing.T) {
	env := setupTestEnv(t)
	env.register(t)
	accessCookie, _ := env.login(t)

	rec := env.do(t, http.MethodGet, "/api/auth/current-user", nil, func(r *http.Request) {
		r.AddCookie(accessCookie)
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Data)
	user := resp.Data.(map[string]any)
	assert.Equal(t, "alice@example.com", user["email"])
}
