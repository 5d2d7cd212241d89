package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/reelvault/reelvault/internal/model"
	"github.com/reelvault/reelvault/internal/service"
)

type contextKeyAPIKey struct{}

// KeyVerifier resolves a raw API key. *service.KeyService satisfies it.
type KeyVerifier interface {
	Verify(ctx context.Context, raw string) (*model.APIKey, error)
}

// UsageSink accepts one usage increment per verified request.
// *service.UsageRecorder satisfies it.
type UsageSink interface {
	Record(id string)
}

// RequireAPIKey gates the public API. The raw key is read from header:
//
//   - absent: 401 "API key missing"
//   - no active match: 403 "Invalid API key"
//   - request canceled or timed out during verification: 408
//   - store failure: 500 "Internal server error"
//
// On a match the key is attached to the request context, the handler runs,
// and one usage increment is recorded after it returns, whatever status
// the handler wrote. The secret itself is never logged.
func RequireAPIKey(verifier KeyVerifier, usage UsageSink, header string, logger *slog.Logger) func(http.Handler) http.Handler {
	if header == "" {
		header = "X-API-Key"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := verifier.Verify(r.Context(), r.Header.Get(header))
			switch {
			case err == nil:
			case errors.Is(err, service.ErrMissingCredential):
				AddLogAttrs(r.Context(), "auth", "missing")
				writeAuthError(w, http.StatusUnauthorized, "API key missing")
				return
			case errors.Is(err, service.ErrInvalidCredential):
				AddLogAttrs(r.Context(), "auth", "no_match")
				writeAuthError(w, http.StatusForbidden, "Invalid API key")
				return
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				// Usually the client went away; nothing is wrong with the store.
				AddLogAttrs(r.Context(), "auth", "canceled")
				logger.Debug("api key verification abandoned",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				writeAuthError(w, http.StatusRequestTimeout, "Request canceled")
				return
			default:
				AddLogAttrs(r.Context(), "auth", "store_error")
				logger.Error("api key verification failed",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				writeAuthError(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			AddLogAttrs(r.Context(), "auth", "ok", "key_id", key.ID)
			ctx := context.WithValue(r.Context(), contextKeyAPIKey{}, key)
			next.ServeHTTP(w, r.WithContext(ctx))

			if usage != nil {
				usage.Record(key.ID)
			}
		})
	}
}

// GetAPIKey returns the verified key for the request, or nil.
func GetAPIKey(ctx context.Context) *model.APIKey {
	if k, ok := ctx.Value(contextKeyAPIKey{}).(*model.APIKey); ok {
		return k
	}
	return nil
}
