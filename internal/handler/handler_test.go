package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/reelvault/reelvault/internal/cache"
	"github.com/reelvault/reelvault/internal/config"
	"github.com/reelvault/reelvault/internal/model"
	"github.com/reelvault/reelvault/internal/service"
)

const (
	testJWTSecret = "test-secret-for-handler-tests"
	testPassword  = "supersecretpassword"
)

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store   *config.Store
	authSvc *service.AuthService
	keySvc  *service.KeyService
	handler *SystemHandler
	movies  *MovieHandler
	router  chi.Router
}

// newTestEnv creates a fresh test environment with an in-memory store,
// the handlers, and a Chi router with routes mounted (no auth middleware).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	authSvc := service.NewAuthService(store, testJWTSecret, time.Hour)
	authSvc.SetHashCost(bcrypt.MinCost)
	keySvc := service.NewKeyService(store,
		service.WithHashCost(bcrypt.MinCost),
		service.WithKeyCache(cache.NewMemory(time.Minute)),
	)
	sysHandler := NewSystemHandler(store, authSvc, keySvc)
	movieHandler := NewMovieHandler(store)

	// Mount routes without auth middleware for direct handler testing.
	r := chi.NewRouter()
	r.Route("/api/v1/system", func(r chi.Router) {
		r.Post("/admin/session", sysHandler.Login)
		r.Delete("/admin/session", sysHandler.Logout)
		r.Post("/register", sysHandler.Register)

		r.Get("/api-key", sysHandler.ListAPIKeys)
		r.Post("/api-key", sysHandler.CreateAPIKey)
		r.Patch("/api-key/{keyId}", sysHandler.RenameAPIKey)
		r.Post("/api-key/{keyId}/toggle", sysHandler.ToggleAPIKey)
		r.Delete("/api-key/{keyId}", sysHandler.DeleteAPIKey)

		r.Post("/movie", sysHandler.UpsertMovie)
	})
	r.Get("/api/movies", movieHandler.ListMovies)
	r.Get("/api/movies/{id}", movieHandler.GetMovie)
	r.Get("/api/openapi.json", NewOpenAPIHandler("test", "").ServeSpec)

	return &testEnv{
		store:   store,
		authSvc: authSvc,
		keySvc:  keySvc,
		handler: sysHandler,
		movies:  movieHandler,
		router:  r,
	}
}

// seedAdmin creates a default admin account and returns it.
func (e *testEnv) seedAdmin(t *testing.T) *model.User {
	t.Helper()
	user, err := e.authSvc.CreateUser(context.Background(), "admin@example.com", testPassword, model.RoleAdmin)
	if err != nil {
		t.Fatalf("seedAdmin: %v", err)
	}
	return user
}

// seedMovie upserts a movie and returns it.
func (e *testEnv) seedMovie(t *testing.T, id, title, released string, genres ...string) *model.Movie {
	t.Helper()
	m := &model.Movie{
		MovieID:          id,
		Title:            title,
		OriginalTitle:    title,
		Overview:         "Overview of " + title,
		Genres:           genres,
		OriginalLanguage: "en",
		DisplayLanguage:  "English",
		ReleaseDate:      released,
		PosterURL:        "https://img.example.com/" + id + ".jpg",
	}
	if err := e.store.UpsertMovie(context.Background(), m); err != nil {
		t.Fatalf("seedMovie: %v", err)
	}
	return m
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// envelope decodes the standard response with data left raw.
type envelope struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	decodeJSON(t, rr, &env)
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v; data = %s", err, env.Data)
		}
	}
	return env
}
