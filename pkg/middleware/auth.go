package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/AniketSaini0/task-manager/pkg/errors"
	"github.com/AniketSaini0/task-manager/pkg/logger"
)

type contextKeyType string

const identityKey contextKeyType = "identity"

// AccessTokenCookie is the cookie consulted when no Authorization header is
// present. Header takes precedence over cookie.
const AccessTokenCookie = "accessToken"

// Identity is the authenticated caller attached to the request context.
// It carries only what downstream handlers need; the password hash and the
// stored refresh token are never attached.
type Identity struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// TokenValidator resolves a bearer token to an authenticated identity.
// The service injects its own validation logic (signature and expiry check
// plus a store lookup for the embedded user id).
type TokenValidator func(ctx context.Context, token string) (*Identity, error)

// Auth is the request gate for protected routes. It locates an access token
// (Authorization header first, accessToken cookie fallback), validates it,
// and injects the resolved identity into the request context. It fails closed:
// absent, malformed, expired, or unresolvable tokens reject the request before
// any handler runs. The gate has no side effects beyond context attachment.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no token provided")
				return
			}

			identity, err := validate(r.Context(), token)
			if err != nil {
				var appErr *apperrors.AppError
				if errors.As(err, &appErr) {
					writeAuthError(w, appErr.Status, appErr.Code, appErr.Message)
					return
				}
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
		})
	}
}

// OptionalAuth is the non-rejecting variant used by the current-session probe.
// It attaches an identity when a valid token is present and otherwise lets the
// request through anonymously. It never writes an error.
func OptionalAuth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := ExtractToken(r); token != "" {
				if identity, err := validate(r.Context(), token); err == nil {
					r = r.WithContext(withIdentity(r.Context(), identity))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExtractToken locates a bearer token on the request. The Authorization
// header takes precedence; the accessToken cookie is the fallback. Returns
// empty when neither carries a token.
func ExtractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}

	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}

	return ""
}

// IdentityFromContext extracts the authenticated identity from the request
// context. Returns nil when the request is anonymous.
func IdentityFromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey).(*Identity); ok {
		return id
	}
	return nil
}

func withIdentity(ctx context.Context, id *Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey, id)
	return logger.WithUserID(ctx, id.UserID)
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    code,
		"message": message,
	})
}
