package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reelvault/reelvault/internal/config"
	"github.com/reelvault/reelvault/internal/model"
	"github.com/reelvault/reelvault/internal/server/middleware"
	"github.com/reelvault/reelvault/internal/service"
)

// SystemHandler serves the admin API: sessions, registration, API key
// management, and movie seeding.
type SystemHandler struct {
	store   *config.Store
	authSvc *service.AuthService
	keySvc  *service.KeyService
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(store *config.Store, authSvc *service.AuthService, keySvc *service.KeyService) *SystemHandler {
	return &SystemHandler{
		store:   store,
		authSvc: authSvc,
		keySvc:  keySvc,
	}
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

// credentialsRequest is the payload for Login and Register.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse is the data payload for a successful login.
type loginResponse struct {
	Token     string      `json:"session_token"`
	TokenType string      `json:"token_type"`
	ExpiresIn int         `json:"expires_in"`
	User      userSummary `json:"user"`
}

type userSummary struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Login authenticates a user and returns a JWT session token. The token is
// also set as an HttpOnly "token" cookie for browser clients.
// POST /api/v1/system/admin/session
func (h *SystemHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, token, err := h.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidLogin) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "Authentication error")
		return
	}

	ttl := h.authSvc.TTL()
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	writeData(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "bearer",
		ExpiresIn: int(ttl.Seconds()),
		User:      userSummary{Email: user.Email, Role: user.Role},
	}, "Logged in successfully")
}

// Logout clears the session cookie. JWTs are stateless, so bearer clients
// simply discard their token.
// DELETE /api/v1/system/admin/session
func (h *SystemHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, model.Response{Success: true, Message: "Logged out successfully"})
}

// Register creates an account. The first account ever registered becomes
// an admin; later ones are plain users with no access to this API.
// POST /api/v1/system/register
func (h *SystemHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	user, err := h.authSvc.Register(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrUserExists):
		writeError(w, http.StatusConflict, "User already exists")
		return
	case errors.Is(err, service.ErrInvalidEmail), errors.Is(err, service.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, capitalize(err.Error()))
		return
	default:
		writeError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}

	writeData(w, http.StatusCreated, userSummary{Email: user.Email, Role: user.Role},
		fmt.Sprintf("User registered successfully as %s. Please login.", user.Role))
}

// ---------------------------------------------------------------------------
// API key management
// ---------------------------------------------------------------------------

// apiKeyView is the admin-facing form of a key. It carries the masked key
// and never the hash or the secret.
type apiKeyView struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	MaskedKey  string     `json:"masked_key"`
	IsActive   bool       `json:"is_active"`
	UsageCount int64      `json:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func toAPIKeyView(key *model.APIKey) apiKeyView {
	return apiKeyView{
		ID:         key.ID,
		Label:      key.Label,
		MaskedKey:  key.MaskedKey(),
		IsActive:   key.IsActive,
		UsageCount: key.UsageCount,
		LastUsedAt: key.LastUsedAt,
		CreatedAt:  key.CreatedAt,
		UpdatedAt:  key.UpdatedAt,
	}
}

// ListAPIKeys returns all API keys, newest first, in masked form.
// GET /api/v1/system/api-key
func (h *SystemHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keySvc.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list API keys")
		return
	}

	views := make([]apiKeyView, len(keys))
	for i := range keys {
		views[i] = toAPIKeyView(&keys[i])
	}
	writeData(w, http.StatusOK, views)
}

// labelRequest is the payload for CreateAPIKey and RenameAPIKey.
type labelRequest struct {
	Label string `json:"label"`
}

// createAPIKeyResponse includes the raw key, shown this once only.
type createAPIKeyResponse struct {
	apiKeyView
	Key string `json:"key"`
}

// CreateAPIKey issues a new key. The raw secret is in the response and
// nowhere else.
// POST /api/v1/system/api-key
func (h *SystemHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	issued, err := h.keySvc.Issue(r.Context(), req.Label)
	if err != nil {
		if errors.Is(err, service.ErrLabelRequired) {
			writeError(w, http.StatusBadRequest, "Label is required")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create API key")
		return
	}

	writeData(w, http.StatusCreated, createAPIKeyResponse{
		apiKeyView: toAPIKeyView(issued.Key),
		Key:        issued.Secret,
	}, "API key created. Copy it now, it will not be shown again.")
}

// RenameAPIKey changes a key's label.
// PATCH /api/v1/system/api-key/{keyId}
func (h *SystemHandler) RenameAPIKey(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	key, err := h.keySvc.Rename(r.Context(), chi.URLParam(r, "keyId"), req.Label)
	if err != nil {
		h.writeKeyError(w, err, "Failed to rename API key")
		return
	}
	writeData(w, http.StatusOK, toAPIKeyView(key), "API key renamed")
}

// ToggleAPIKey flips a key between active and inactive.
// POST /api/v1/system/api-key/{keyId}/toggle
func (h *SystemHandler) ToggleAPIKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.keySvc.Toggle(r.Context(), chi.URLParam(r, "keyId"))
	if err != nil {
		h.writeKeyError(w, err, "Failed to update API key")
		return
	}

	state := "deactivated"
	if key.IsActive {
		state = "activated"
	}
	writeData(w, http.StatusOK, toAPIKeyView(key), "API key "+state)
}

// DeleteAPIKey permanently removes a key.
// DELETE /api/v1/system/api-key/{keyId}
func (h *SystemHandler) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	if err := h.keySvc.Delete(r.Context(), chi.URLParam(r, "keyId")); err != nil {
		h.writeKeyError(w, err, "Failed to delete API key")
		return
	}
	writeJSON(w, http.StatusOK, model.Response{Success: true, Message: "API key deleted"})
}

func (h *SystemHandler) writeKeyError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, config.ErrNotFound):
		writeError(w, http.StatusNotFound, "API key not found")
	case errors.Is(err, service.ErrLabelRequired):
		writeError(w, http.StatusBadRequest, "Label is required")
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// ---------------------------------------------------------------------------
// Movie seeding
// ---------------------------------------------------------------------------

// UpsertMovie creates or replaces a catalog entry keyed by movie_id. The
// view counter of an existing entry is preserved.
// POST /api/v1/system/movie
func (h *SystemHandler) UpsertMovie(w http.ResponseWriter, r *http.Request) {
	var movie model.Movie
	if err := readJSON(r, &movie); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := validateMovie(&movie); err != nil {
		writeError(w, http.StatusBadRequest, capitalize(err.Error()))
		return
	}

	if err := h.store.UpsertMovie(r.Context(), &movie); err != nil {
		status, msg := classifyDBError(err, "Failed to save movie")
		writeError(w, status, msg)
		return
	}
	writeData(w, http.StatusOK, movie, "Movie saved")
}

// validateMovie checks the fields a catalog entry cannot do without.
func validateMovie(m *model.Movie) error {
	m.MovieID = strings.TrimSpace(m.MovieID)
	m.Title = strings.TrimSpace(m.Title)
	var missing []string
	if m.MovieID == "" {
		missing = append(missing, "movie_id")
	}
	if m.Title == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(m.PosterURL) == "" {
		missing = append(missing, "poster_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
