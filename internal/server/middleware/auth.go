package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/reelvault/reelvault/internal/model"
	"github.com/reelvault/reelvault/internal/service"
)

type contextKeyAuth string

const (
	// SessionKey is the context key for the authenticated admin session.
	SessionKey contextKeyAuth = "admin_session"

	// SessionCookie carries the session token for browser clients.
	SessionCookie = "token"
)

// SessionValidator resolves a session token. *service.AuthService
// satisfies it.
type SessionValidator interface {
	ValidateJWT(ctx context.Context, token string) (*service.Session, error)
}

// Authenticate returns an HTTP middleware that validates an admin session.
// The token is read from the Authorization header as a Bearer token, or
// from the "token" cookie set at login.
//
// On success, the Session is attached to the request context. On failure,
// a 401 JSON error response is returned.
func Authenticate(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			session, err := sessions.ValidateJWT(r.Context(), token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid or expired session")
				return
			}

			AddLogAttrs(r.Context(), "user_id", session.UserID)
			ctx := context.WithValue(r.Context(), SessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// RequireAdmin returns an HTTP middleware that enforces admin-level access.
// It must be used after Authenticate in the middleware chain.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !GetSession(r.Context()).IsAdmin() {
				writeAuthError(w, http.StatusForbidden, "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetSession extracts the admin session from the context.
// Returns nil if no session is present (i.e., unauthenticated request).
func GetSession(ctx context.Context) *service.Session {
	if s, ok := ctx.Value(SessionKey).(*service.Session); ok {
		return s
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.Response{Success: false, Message: message})
}
