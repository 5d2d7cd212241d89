package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

type logAttrsKey struct{}

type logAttrs struct {
	mu    sync.Mutex
	attrs []any
}

// AddLogAttrs appends key/value pairs to the request line written by Logger,
// such as the API key that authorized the call. Outside Logger it does
// nothing.
func AddLogAttrs(ctx context.Context, args ...any) {
	la, ok := ctx.Value(logAttrsKey{}).(*logAttrs)
	if !ok {
		return
	}
	la.mu.Lock()
	la.attrs = append(la.attrs, args...)
	la.mu.Unlock()
}

// probePaths are polled by orchestrators and scrapers; successful hits are
// logged at debug so they do not drown catalog traffic.
var probePaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// Logger writes one structured line per request once the handler returns.
// Server errors log at ERROR and client errors at WARN.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			extra := &logAttrs{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), logAttrsKey{}, extra)))

			var level slog.Level
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			case probePaths[r.URL.Path]:
				level = slog.LevelDebug
			default:
				level = slog.LevelInfo
			}
			if !logger.Enabled(r.Context(), level) {
				return
			}

			args := make([]any, 0, 20)
			args = append(args,
				"method", r.Method,
				"path", r.URL.Path,
			)
			// The pattern groups /api/movies/{id} hits in log queries.
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if pattern := rc.RoutePattern(); pattern != "" {
					args = append(args, "route", pattern)
				}
			}
			args = append(args,
				"status", rec.status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"bytes", rec.bytes,
				"request_id", GetRequestID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
			extra.mu.Lock()
			args = append(args, extra.attrs...)
			extra.mu.Unlock()

			logger.Log(r.Context(), level, "request", args...)
		})
	}
}

// statusRecorder remembers the status and body size a handler produced.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
