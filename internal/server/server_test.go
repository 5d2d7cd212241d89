package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/reelvault/reelvault/internal/cache"
	"github.com/reelvault/reelvault/internal/config"
	"github.com/reelvault/reelvault/internal/metrics"
	"github.com/reelvault/reelvault/internal/model"
	"github.com/reelvault/reelvault/internal/service"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const (
	testJWTSecret = "test-secret-for-jwt-integration-tests"
	testPassword  = "supersecretpassword"
)

// testEnv holds all the shared state for integration tests.
type testEnv struct {
	server  *Server
	store   *config.Store
	authSvc *service.AuthService
	keySvc  *service.KeyService
	usage   *service.UsageRecorder
	metrics *metrics.Metrics
}

// newTestEnv creates a fresh test environment with an in-memory store and a
// fully wired Server. The usage recorder is started and drained on cleanup.
func newTestEnv(t *testing.T, opts ...func(*Config, *Deps)) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New("reelvault")

	authSvc := service.NewAuthService(store, testJWTSecret, time.Hour)
	authSvc.SetHashCost(bcrypt.MinCost)
	keySvc := service.NewKeyService(store,
		service.WithHashCost(bcrypt.MinCost),
		service.WithKeyCache(cache.NewMemory(time.Minute)),
		service.WithMetrics(m),
		service.WithLogger(logger),
	)
	usage := service.NewUsageRecorder(store, service.UsageOptions{
		Workers:   2,
		QueueSize: 16,
		Logger:    logger,
		Metrics:   m,
	})
	usage.Start(context.Background())

	cfg := DefaultConfig()
	cfg.Version = "test"
	deps := Deps{
		Store:   store,
		Auth:    authSvc,
		Keys:    keySvc,
		Usage:   usage,
		Metrics: m,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	t.Cleanup(func() {
		usage.Close()
		store.Close()
	})

	return &testEnv{
		server:  New(cfg, deps, logger),
		store:   store,
		authSvc: authSvc,
		keySvc:  keySvc,
		usage:   usage,
		metrics: m,
	}
}

// seedUser creates an account with the given role.
func (e *testEnv) seedUser(t *testing.T, email, role string) *model.User {
	t.Helper()
	user, err := e.authSvc.CreateUser(context.Background(), email, testPassword, role)
	if err != nil {
		t.Fatalf("seedUser: %v", err)
	}
	return user
}

// tokenFor issues a session token for the user.
func (e *testEnv) tokenFor(t *testing.T, user *model.User) string {
	t.Helper()
	token, err := e.authSvc.IssueJWT(context.Background(), user, time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	return token
}

// adminToken seeds an admin and returns a session token for it.
func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	return e.tokenFor(t, e.seedUser(t, "admin@example.com", model.RoleAdmin))
}

// issueKey creates an active API key directly through the service.
func (e *testEnv) issueKey(t *testing.T, label string) *service.IssuedKey {
	t.Helper()
	issued, err := e.keySvc.Issue(context.Background(), label)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return issued
}

func (e *testEnv) seedMovie(t *testing.T, id, title string) {
	t.Helper()
	m := &model.Movie{
		MovieID:     id,
		Title:       title,
		Genres:      []string{"Drama"},
		ReleaseDate: "2020-01-01",
		PosterURL:   "https://img.example.com/" + id + ".jpg",
	}
	if err := e.store.UpsertMovie(context.Background(), m); err != nil {
		t.Fatalf("seedMovie: %v", err)
	}
}

// do executes an HTTP request against the test server and returns the recorder.
// headers is an optional map of header key-value pairs.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

// doAuth executes an authenticated HTTP request using a session JWT.
func (e *testEnv) doAuth(t *testing.T, method, path string, body io.Reader, token string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// doAPIKey executes an HTTP request authenticated with an API key.
func (e *testEnv) doAPIKey(t *testing.T, method, path string, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, nil, map[string]string{
		"X-API-Key": apiKey,
	})
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("jsonBody: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func assertContentType(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	got := rr.Header().Get("Content-Type")
	if got != want {
		t.Errorf("Content-Type = %q, want %q", got, want)
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

func assertMessage(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	var resp model.Response
	decodeJSON(t, rr, &resp)
	if resp.Success {
		t.Error("expected success=false")
	}
	if resp.Message != want {
		t.Errorf("message = %q, want %q", resp.Message, want)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

// ---------------------------------------------------------------------------
// Health check tests
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/healthz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	assertContentType(t, rr, "application/json")

	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	assertContentType(t, rr, "application/json")

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}
	if resp.Checks["store"] != "ok" {
		t.Errorf("store check = %q, want ok", resp.Checks["store"])
	}
	if _, ok := resp.Checks["cache"]; ok {
		t.Error("cache check reported without a cache configured")
	}
}

func TestReadyzDegradedCache(t *testing.T) {
	env := newTestEnv(t, func(_ *Config, d *Deps) { d.Cache = failingPinger{} })

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusServiceUnavailable)

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if !strings.HasPrefix(resp.Checks["cache"], "error:") {
		t.Errorf("cache check = %q, want error", resp.Checks["cache"])
	}
}

func TestReadyzStoreClosed(t *testing.T) {
	env := newTestEnv(t)
	env.store.Close()

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusServiceUnavailable)
}

// ---------------------------------------------------------------------------
// Public gateway tests
// ---------------------------------------------------------------------------

func TestPublicAPIRequiresKey(t *testing.T) {
	env := newTestEnv(t)
	env.seedMovie(t, "m1", "Arrival")

	rr := env.do(t, "GET", "/api/movies", nil, nil)
	assertStatus(t, rr, http.StatusUnauthorized)
	assertMessage(t, rr, "API key missing")

	rr = env.doAPIKey(t, "GET", "/api/movies", "mv_"+strings.Repeat("0", 48))
	assertStatus(t, rr, http.StatusForbidden)
	assertMessage(t, rr, "Invalid API key")

	rr = env.doAPIKey(t, "GET", "/api/movies", "not-a-key")
	assertStatus(t, rr, http.StatusForbidden)
	assertMessage(t, rr, "Invalid API key")
}

func TestPublicAPIWithValidKey(t *testing.T) {
	env := newTestEnv(t)
	env.seedMovie(t, "m1", "Arrival")
	env.seedMovie(t, "m2", "Heat")
	issued := env.issueKey(t, "Website")

	rr := env.doAPIKey(t, "GET", "/api/movies?limit=1", issued.Secret)
	assertStatus(t, rr, http.StatusOK)

	var resp model.Response
	decodeJSON(t, rr, &resp)
	if !resp.Success {
		t.Error("expected success=true")
	}
	if resp.Pagination == nil || resp.Pagination.Total != 2 || resp.Pagination.TotalPages != 2 {
		t.Errorf("unexpected pagination: %+v", resp.Pagination)
	}

	rr = env.doAPIKey(t, "GET", "/api/movies/m1", issued.Secret)
	assertStatus(t, rr, http.StatusOK)

	rr = env.doAPIKey(t, "GET", "/api/movies/nope", issued.Secret)
	assertStatus(t, rr, http.StatusNotFound)

	// Every verified request counts, including the 404.
	env.usage.Close()
	key, err := env.store.GetAPIKey(context.Background(), issued.Key.ID)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if key.UsageCount != 3 {
		t.Errorf("usage_count = %d, want 3", key.UsageCount)
	}
	if key.LastUsedAt == nil {
		t.Error("expected last_used_at to be set")
	}
}

func TestPublicAPIRejectsDeactivatedKey(t *testing.T) {
	env := newTestEnv(t)
	issued := env.issueKey(t, "Mobile")

	assertStatus(t, env.doAPIKey(t, "GET", "/api/movies", issued.Secret), http.StatusOK)

	if _, err := env.keySvc.Toggle(context.Background(), issued.Key.ID); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	rr := env.doAPIKey(t, "GET", "/api/movies", issued.Secret)
	assertStatus(t, rr, http.StatusForbidden)

	if _, err := env.keySvc.Toggle(context.Background(), issued.Key.ID); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	assertStatus(t, env.doAPIKey(t, "GET", "/api/movies", issued.Secret), http.StatusOK)
}

func TestPublicAPIStoreUnavailable(t *testing.T) {
	env := newTestEnv(t)
	issued := env.issueKey(t, "Website")
	env.store.Close()

	rr := env.doAPIKey(t, "GET", "/api/movies", issued.Secret)
	assertStatus(t, rr, http.StatusInternalServerError)
	assertMessage(t, rr, "Internal server error")
}

func TestOpenAPISpecNeedsNoKey(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/openapi.json", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var spec map[string]interface{}
	decodeJSON(t, rr, &spec)
	info, _ := spec["info"].(map[string]interface{})
	if info["version"] != "test" {
		t.Errorf("info.version = %v, want test", info["version"])
	}
}

func TestPublicCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "OPTIONS", "/api/movies", nil, map[string]string{
		"Origin":                         "https://app.example.com",
		"Access-Control-Request-Method":  "GET",
		"Access-Control-Request-Headers": "X-API-Key",
	})
	if rr.Code != http.StatusOK && rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if got := rr.Header().Get("Access-Control-Max-Age"); got != "86400" {
		t.Errorf("Access-Control-Max-Age = %q, want 86400", got)
	}
}

func TestPublicRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *Config, _ *Deps) { c.PublicRateLimit = 2 })
	issued := env.issueKey(t, "Website")

	for i := 0; i < 2; i++ {
		assertStatus(t, env.doAPIKey(t, "GET", "/api/movies", issued.Secret), http.StatusOK)
	}
	rr := env.doAPIKey(t, "GET", "/api/movies", issued.Secret)
	assertStatus(t, rr, http.StatusTooManyRequests)
}

// ---------------------------------------------------------------------------
// Admin API tests
// ---------------------------------------------------------------------------

func TestAdminRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)

	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/system/api-key"},
		{"POST", "/api/v1/system/api-key"},
		{"PATCH", "/api/v1/system/api-key/abc"},
		{"POST", "/api/v1/system/api-key/abc/toggle"},
		{"DELETE", "/api/v1/system/api-key/abc"},
		{"POST", "/api/v1/system/movie"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rr := env.do(t, rt.method, rt.path, nil, nil)
			assertStatus(t, rr, http.StatusUnauthorized)

			rr = env.doAuth(t, rt.method, rt.path, nil, "garbage")
			assertStatus(t, rr, http.StatusUnauthorized)
		})
	}
}

func TestAdminRoutesRejectNonAdmin(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "viewer@example.com", model.RoleUser)
	token := env.tokenFor(t, user)

	rr := env.doAuth(t, "GET", "/api/v1/system/api-key", nil, token)
	assertStatus(t, rr, http.StatusForbidden)
	assertMessage(t, rr, "Admin access required")
}

func TestAdminSessionCookie(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)

	rr := env.do(t, "GET", "/api/v1/system/api-key", nil, map[string]string{
		"Cookie": "token=" + token,
	})
	assertStatus(t, rr, http.StatusOK)
}

// TestKeyLifecycleEndToEnd walks the admin flow: register, login, issue a
// key, call the public API with it, deactivate it, and delete it.
func TestKeyLifecycleEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.seedMovie(t, "m1", "Arrival")

	rr := env.do(t, "POST", "/api/v1/system/register", jsonBody(t, map[string]string{
		"email": "owner@example.com", "password": testPassword,
	}), nil)
	assertStatus(t, rr, http.StatusCreated)

	rr = env.do(t, "POST", "/api/v1/system/admin/session", jsonBody(t, map[string]string{
		"email": "owner@example.com", "password": testPassword,
	}), nil)
	assertStatus(t, rr, http.StatusOK)
	var login struct {
		Data struct {
			Token string `json:"session_token"`
			User  struct {
				Role string `json:"role"`
			} `json:"user"`
		} `json:"data"`
	}
	decodeJSON(t, rr, &login)
	if login.Data.User.Role != model.RoleAdmin {
		t.Fatalf("first user role = %q, want admin", login.Data.User.Role)
	}
	token := login.Data.Token

	rr = env.doAuth(t, "POST", "/api/v1/system/api-key", jsonBody(t, map[string]string{"label": "Website"}), token)
	assertStatus(t, rr, http.StatusCreated)
	var created struct {
		Data struct {
			ID        string `json:"id"`
			Key       string `json:"key"`
			MaskedKey string `json:"masked_key"`
		} `json:"data"`
	}
	decodeJSON(t, rr, &created)
	if len(created.Data.Key) != service.SecretLength {
		t.Fatalf("unexpected key %q", created.Data.Key)
	}

	assertStatus(t, env.doAPIKey(t, "GET", "/api/movies", created.Data.Key), http.StatusOK)

	rr = env.doAuth(t, "GET", "/api/v1/system/api-key", nil, token)
	assertStatus(t, rr, http.StatusOK)
	if strings.Contains(rr.Body.String(), created.Data.Key) {
		t.Error("listing exposes the raw key")
	}

	rr = env.doAuth(t, "POST", "/api/v1/system/api-key/"+created.Data.ID+"/toggle", nil, token)
	assertStatus(t, rr, http.StatusOK)
	assertStatus(t, env.doAPIKey(t, "GET", "/api/movies", created.Data.Key), http.StatusForbidden)

	rr = env.doAuth(t, "DELETE", "/api/v1/system/api-key/"+created.Data.ID, nil, token)
	assertStatus(t, rr, http.StatusOK)
	assertStatus(t, env.doAPIKey(t, "GET", "/api/movies", created.Data.Key), http.StatusForbidden)

	rr = env.doAuth(t, "DELETE", "/api/v1/system/api-key/"+created.Data.ID, nil, token)
	assertStatus(t, rr, http.StatusNotFound)
}

func TestLoginRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *Config, _ *Deps) { c.LoginRateLimit = 3 })

	body := func() io.Reader {
		return jsonBody(t, map[string]string{"email": "nobody@example.com", "password": "wrongpassword"})
	}
	for i := 0; i < 3; i++ {
		assertStatus(t, env.do(t, "POST", "/api/v1/system/admin/session", body(), nil), http.StatusUnauthorized)
	}
	assertStatus(t, env.do(t, "POST", "/api/v1/system/admin/session", body(), nil), http.StatusTooManyRequests)
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	issued := env.issueKey(t, "Website")

	env.do(t, "GET", "/api/movies", nil, nil)
	env.doAPIKey(t, "GET", "/api/movies", issued.Secret)
	env.usage.Close()

	rr := env.do(t, "GET", "/metrics", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	body := rr.Body.String()
	for _, want := range []string{
		`reelvault_apikey_verifications_total{result="missing"} 1`,
		`reelvault_apikey_verifications_total{result="valid"} 1`,
		`reelvault_apikey_issued_total 1`,
		`reelvault_usage_records_total{status="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
