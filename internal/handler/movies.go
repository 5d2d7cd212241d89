package handler

import (
	"errors"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reelvault/reelvault/internal/config"
	"github.com/reelvault/reelvault/internal/model"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// MovieHandler serves the key-gated public catalog.
type MovieHandler struct {
	store *config.Store
}

// NewMovieHandler creates a new MovieHandler.
func NewMovieHandler(store *config.Store) *MovieHandler {
	return &MovieHandler{store: store}
}

// ListMovies returns one page of movies, newest release first.
// GET /api/movies?page=&limit=&search=&genre=&language=
func (h *MovieHandler) ListMovies(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(queryInt(r, "limit", defaultPageSize), 1, maxPageSize)
	// Bounded so (page-1)*limit cannot overflow into a negative offset.
	page := clampInt(queryInt(r, "page", 1), 1, math.MaxInt/limit)

	filter := model.MovieFilter{
		Search:   queryString(r, "search"),
		Genre:    queryString(r, "genre"),
		Language: queryString(r, "language"),
		Limit:    limit,
		Offset:   (page - 1) * limit,
	}

	movies, total, err := h.store.ListMovies(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, model.Response{
		Success:    true,
		Data:       movies,
		Pagination: model.NewPagination(total, page, limit),
	})
}

// GetMovie returns a single movie by its movie_id and counts the view.
// GET /api/movies/{id}
func (h *MovieHandler) GetMovie(w http.ResponseWriter, r *http.Request) {
	movie, err := h.store.ViewMovie(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Movie not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeData(w, http.StatusOK, movie)
}
