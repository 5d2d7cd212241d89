package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// tooManyRequests answers over-limit calls in the API's JSON envelope.
func tooManyRequests(w http.ResponseWriter, r *http.Request) {
	writeAuthError(w, http.StatusTooManyRequests, "Too many requests")
}

// RateLimitByIP allows perMinute requests per client address over a sliding
// window. It guards the login and registration endpoints.
func RateLimitByIP(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(tooManyRequests),
	)
}

// RateLimitByHeader allows perMinute requests per distinct header value,
// typically the API key. Buckets are keyed by a digest so raw secrets are not
// held by the limiter. Requests without the header share a per-IP bucket.
func RateLimitByHeader(headerName string, perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			v := r.Header.Get(headerName)
			if v == "" {
				return httprate.KeyByIP(r)
			}
			sum := sha256.Sum256([]byte(v))
			return "key:" + hex.EncodeToString(sum[:8]), nil
		}),
		httprate.WithLimitHandler(tooManyRequests),
	)
}
