package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/AniketSaini0/task-manager/internal/service"
	apperrors "github.com/AniketSaini0/task-manager/pkg/errors"
	"github.com/AniketSaini0/task-manager/pkg/httputil"
	"github.com/AniketSaini0/task-manager/pkg/middleware"
	"github.com/AniketSaini0/task-manager/pkg/validator"
)

// Cookie names for the browser session.
const (
	accessTokenCookie  = middleware.AccessTokenCookie
	refreshTokenCookie = "refreshToken"
)

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service       *service.AuthService
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	secureCookies bool
	logger        *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler. secureCookies should be
// true outside development so session cookies are HTTPS-only.
func NewAuthHandler(svc *service.AuthService, accessExpiry, refreshExpiry time.Duration, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:       svc,
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for user registration.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=1,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest is the JSON request body for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// --- Response types ---

// AuthResponse wraps user data with tokens.
type AuthResponse struct {
	User   any `json:"user"`
	Tokens any `json:"tokens"`
}

// --- Handlers ---

// Register handles POST /api/auth/register. A new account starts without a
// session; the client logs in next.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: user})
}

// Login handles POST /api/auth/login. On success the token pair is returned
// in the body and also set as httpOnly cookies.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	user, tokens, err := h.service.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.setSessionCookies(w, tokens.AccessToken, tokens.RefreshToken)

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: AuthResponse{User: user, Tokens: tokens},
	})
}

// RefreshToken handles POST /api/auth/refresh-token. The refresh token comes
// from the refreshToken cookie; a missing cookie is 406 rather than 401 so
// clients can tell "no session at all" from "session rejected".
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(refreshTokenCookie)
	if err != nil || c.Value == "" {
		httputil.WriteError(w, r, apperrors.NotAcceptable("refresh token cookie is missing"), h.logger)
		return
	}

	user, tokens, err := h.service.Refresh(r.Context(), c.Value)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.setSessionCookies(w, tokens.AccessToken, tokens.RefreshToken)

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: AuthResponse{User: user, Tokens: tokens},
	})
}

// Logout handles POST /api/auth/logout. Requires authentication; clears the
// stored session and expires both cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		httputil.WriteError(w, r, apperrors.Unauthorized("no token provided"), h.logger)
		return
	}

	if err := h.service.Logout(r.Context(), identity.UserID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.clearSessionCookies(w)

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"message": "logged out"},
	})
}

// CurrentUser handles GET /api/auth/current-user. It never fails: an
// anonymous or invalid session yields a null user rather than an error, so
// the frontend can probe session state without handling 401s.
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: nil})
		return
	}

	user, err := h.service.GetUser(r.Context(), identity.UserID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: nil})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: user})
}

// --- Cookie helpers ---

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(h.accessExpiry.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(h.refreshExpiry.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
