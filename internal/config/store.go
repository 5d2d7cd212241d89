package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/reelvault/reelvault/internal/model"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Options selects and tunes the database behind a Store.
type Options struct {
	Driver  string // sqlite (default), postgres, mysql
	DSN     string // ignored for sqlite when DataDir is set
	DataDir string // sqlite only; empty means in-memory
	Pool    model.PoolConfig
}

// Store persists API keys, user accounts, and the movie catalog. It owns a
// single pooled connection that callers share through dependency injection.
type Store struct {
	db     *sqlx.DB
	driver string
}

// NewStore creates a SQLite-backed store. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	return Open(Options{Driver: DriverSQLite, DataDir: dataDir})
}

// Open connects to the configured database and applies migrations.
func Open(opts Options) (*Store, error) {
	if opts.Driver == "" {
		opts.Driver = DriverSQLite
	}

	var (
		sqlDriver string
		dsn       = opts.DSN
	)
	switch opts.Driver {
	case DriverSQLite:
		sqlDriver = "sqlite"
		if opts.DataDir == "" && dsn == "" {
			dsn = ":memory:?_journal_mode=WAL"
		} else if opts.DataDir != "" {
			if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			dsn = filepath.Join(opts.DataDir, "reelvault.db") + "?_journal_mode=WAL&_busy_timeout=5000"
		}
	case DriverPostgres:
		sqlDriver = "pgx"
	case DriverMySQL:
		sqlDriver = "mysql"
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", opts.Driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("store driver %s requires a dsn", opts.Driver)
	}

	db, err := sqlx.Connect(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", opts.Driver, err)
	}

	if opts.Driver == DriverSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
	} else {
		pool := opts.Pool
		if pool.MaxOpenConns == 0 {
			pool = model.DefaultPoolConfig()
		}
		db.SetMaxOpenConns(pool.MaxOpenConns)
		db.SetMaxIdleConns(pool.MaxIdleConns)
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	s := &Store{db: db, driver: opts.Driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the configured store driver name.
func (s *Store) Driver() string {
	return s.driver
}

// q rewrites ? placeholders into the driver's bind style.
func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}

// ---------------------------------------------------------------------------
// API Key management
// ---------------------------------------------------------------------------

// CreateAPIKey inserts a new API key record. ID and KeyHash must already be
// set. CreatedAt and UpdatedAt are populated before insert.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	now := time.Now().UTC()
	key.CreatedAt = now
	key.UpdatedAt = now

	const q = `INSERT INTO api_keys
		(id, key_hash, key_prefix, key_suffix, label, is_active, usage_count, last_used_at, created_at, updated_at)
		VALUES
		(:id, :key_hash, :key_prefix, :key_suffix, :label, :is_active, :usage_count, :last_used_at, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetAPIKey returns an API key by ID.
func (s *Store) GetAPIKey(ctx context.Context, id string) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.GetContext(ctx, &key, s.q("SELECT * FROM api_keys WHERE id = ?"), id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &key, nil
}

// ListAPIKeys returns all API keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	keys := []model.APIKey{}
	if err := s.db.SelectContext(ctx, &keys, "SELECT * FROM api_keys ORDER BY created_at DESC, id DESC"); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// ListActiveAPIKeys returns every key that is currently allowed to
// authenticate.
func (s *Store) ListActiveAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	if err := s.db.SelectContext(ctx, &keys, s.q("SELECT * FROM api_keys WHERE is_active = ? ORDER BY created_at"), true); err != nil {
		return nil, fmt.Errorf("list active api keys: %w", err)
	}
	return keys, nil
}

// ToggleAPIKey flips is_active in a single statement and returns the
// updated record.
func (s *Store) ToggleAPIKey(ctx context.Context, id string) (*model.APIKey, error) {
	result, err := s.db.ExecContext(ctx,
		s.q("UPDATE api_keys SET is_active = NOT is_active, updated_at = ? WHERE id = ?"),
		time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("toggle api key: %w", err)
	}
	if err := requireAffected(result, "toggle api key"); err != nil {
		return nil, err
	}
	return s.GetAPIKey(ctx, id)
}

// RenameAPIKey replaces the label of an API key.
func (s *Store) RenameAPIKey(ctx context.Context, id, label string) error {
	result, err := s.db.ExecContext(ctx,
		s.q("UPDATE api_keys SET label = ?, updated_at = ? WHERE id = ?"),
		label, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("rename api key: %w", err)
	}
	err = requireAffected(result, "rename api key")
	if errors.Is(err, ErrNotFound) {
		// MySQL counts changed rows, not matched ones, unless the DSN sets
		// clientFoundRows; an unchanged row must not read as missing.
		if _, getErr := s.GetAPIKey(ctx, id); getErr == nil {
			return nil
		}
	}
	return err
}

// DeleteAPIKey permanently removes an API key.
func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.q("DELETE FROM api_keys WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return requireAffected(result, "delete api key")
}

// IncrementAPIKeyUsage adds one to usage_count and stamps last_used_at. The
// increment happens inside the UPDATE so concurrent callers never lose counts.
func (s *Store) IncrementAPIKeyUsage(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		s.q("UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?"),
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("increment api key usage: %w", err)
	}
	return requireAffected(result, "increment api key usage")
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// CreateUser inserts a new account. ID and PasswordHash must already be set.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	const q = `INSERT INTO users (id, email, password_hash, role, created_at, updated_at)
		VALUES (:id, :email, :password_hash, :role, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, user); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user %s: %w: %w", user.Email, ErrConflict, err)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail returns an account by its (lower-cased) email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.GetContext(ctx, &user, s.q("SELECT * FROM users WHERE email = ?"), email); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &user, nil
}

// ListUsers returns all accounts ordered by email.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	if err := s.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY email"); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// CountUsers returns the number of registered accounts. Registration uses it
// to promote the very first account to admin.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users"); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// ---------------------------------------------------------------------------
// Movies
// ---------------------------------------------------------------------------

// movieRow maps 1:1 to the movies table. Slice fields are stored as JSON.
type movieRow struct {
	MovieID           string    `db:"movie_id"`
	Title             string    `db:"title"`
	OriginalTitle     string    `db:"original_title"`
	Overview          string    `db:"overview"`
	Tagline           string    `db:"tagline"`
	Country           string    `db:"country"`
	GenresJSON        string    `db:"genres_json"`
	OriginalLanguage  string    `db:"original_language"`
	DisplayLanguage   string    `db:"display_language"`
	Popularity        float64   `db:"popularity"`
	Rating            float64   `db:"rating"`
	Runtime           int       `db:"runtime"`
	ReleaseDate       string    `db:"release_date"`
	Revenue           int64     `db:"revenue"`
	IMDbID            string    `db:"imdb_id"`
	PosterURL         string    `db:"poster_url"`
	BackdropURL       string    `db:"backdrop_url"`
	Status            string    `db:"status"`
	Views             int64     `db:"views"`
	DownloadLinksJSON string    `db:"download_links_json"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func movieRowFromModel(m *model.Movie) (movieRow, error) {
	genres, err := json.Marshal(nonNil(m.Genres))
	if err != nil {
		return movieRow{}, fmt.Errorf("marshal genres: %w", err)
	}
	links, err := json.Marshal(nonNil(m.DownloadLinks))
	if err != nil {
		return movieRow{}, fmt.Errorf("marshal download links: %w", err)
	}
	return movieRow{
		MovieID:           m.MovieID,
		Title:             m.Title,
		OriginalTitle:     m.OriginalTitle,
		Overview:          m.Overview,
		Tagline:           m.Tagline,
		Country:           m.Country,
		GenresJSON:        string(genres),
		OriginalLanguage:  m.OriginalLanguage,
		DisplayLanguage:   m.DisplayLanguage,
		Popularity:        m.Popularity,
		Rating:            m.Rating,
		Runtime:           m.Runtime,
		ReleaseDate:       m.ReleaseDate,
		Revenue:           m.Revenue,
		IMDbID:            m.IMDbID,
		PosterURL:         m.PosterURL,
		BackdropURL:       m.BackdropURL,
		Status:            m.Status,
		Views:             m.Views,
		DownloadLinksJSON: string(links),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}, nil
}

func (r movieRow) toModel() (model.Movie, error) {
	m := model.Movie{
		MovieID:          r.MovieID,
		Title:            r.Title,
		OriginalTitle:    r.OriginalTitle,
		Overview:         r.Overview,
		Tagline:          r.Tagline,
		Country:          r.Country,
		OriginalLanguage: r.OriginalLanguage,
		DisplayLanguage:  r.DisplayLanguage,
		Popularity:       r.Popularity,
		Rating:           r.Rating,
		Runtime:          r.Runtime,
		ReleaseDate:      r.ReleaseDate,
		Revenue:          r.Revenue,
		IMDbID:           r.IMDbID,
		PosterURL:        r.PosterURL,
		BackdropURL:      r.BackdropURL,
		Status:           r.Status,
		Views:            r.Views,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(r.GenresJSON), &m.Genres); err != nil {
		return model.Movie{}, fmt.Errorf("unmarshal genres: %w", err)
	}
	if err := json.Unmarshal([]byte(r.DownloadLinksJSON), &m.DownloadLinks); err != nil {
		return model.Movie{}, fmt.Errorf("unmarshal download links: %w", err)
	}
	m.Genres = nonNil(m.Genres)
	m.DownloadLinks = nonNil(m.DownloadLinks)
	return m, nil
}

// UpsertMovie inserts a movie or replaces the stored fields of the record
// with the same movie_id. The view counter of an existing record is kept.
func (s *Store) UpsertMovie(ctx context.Context, m *model.Movie) error {
	if m.DisplayLanguage == "" {
		m.DisplayLanguage = "Unknown"
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var existing movieRow
	err = tx.GetContext(ctx, &existing, tx.Rebind("SELECT * FROM movies WHERE movie_id = ?"), m.MovieID)
	switch {
	case err == sql.ErrNoRows:
		now := time.Now().UTC()
		m.CreatedAt, m.UpdatedAt, m.Views = now, now, 0
		row, err := movieRowFromModel(m)
		if err != nil {
			return err
		}
		const insertQ = `INSERT INTO movies
			(movie_id, title, original_title, overview, tagline, country, genres_json,
			 original_language, display_language, popularity, rating, runtime, release_date,
			 revenue, imdb_id, poster_url, backdrop_url, status, views, download_links_json,
			 created_at, updated_at)
			VALUES
			(:movie_id, :title, :original_title, :overview, :tagline, :country, :genres_json,
			 :original_language, :display_language, :popularity, :rating, :runtime, :release_date,
			 :revenue, :imdb_id, :poster_url, :backdrop_url, :status, :views, :download_links_json,
			 :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insertQ, row); err != nil {
			return fmt.Errorf("insert movie: %w", err)
		}
	case err != nil:
		return fmt.Errorf("get movie: %w", err)
	default:
		m.CreatedAt, m.UpdatedAt, m.Views = existing.CreatedAt, time.Now().UTC(), existing.Views
		row, err := movieRowFromModel(m)
		if err != nil {
			return err
		}
		const updateQ = `UPDATE movies SET
			title = :title, original_title = :original_title, overview = :overview,
			tagline = :tagline, country = :country, genres_json = :genres_json,
			original_language = :original_language, display_language = :display_language,
			popularity = :popularity, rating = :rating, runtime = :runtime,
			release_date = :release_date, revenue = :revenue, imdb_id = :imdb_id,
			poster_url = :poster_url, backdrop_url = :backdrop_url, status = :status,
			download_links_json = :download_links_json, updated_at = :updated_at
			WHERE movie_id = :movie_id`
		if _, err := tx.NamedExecContext(ctx, updateQ, row); err != nil {
			return fmt.Errorf("update movie: %w", err)
		}
	}

	return tx.Commit()
}

// ViewMovie increments the view counter of a movie and returns the updated
// record.
func (s *Store) ViewMovie(ctx context.Context, movieID string) (*model.Movie, error) {
	result, err := s.db.ExecContext(ctx, s.q("UPDATE movies SET views = views + 1 WHERE movie_id = ?"), movieID)
	if err != nil {
		return nil, fmt.Errorf("increment movie views: %w", err)
	}
	if err := requireAffected(result, "increment movie views"); err != nil {
		return nil, err
	}

	var row movieRow
	if err := s.db.GetContext(ctx, &row, s.q("SELECT * FROM movies WHERE movie_id = ?"), movieID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get movie: %w", err)
	}
	m, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMovies returns one page of movies matching f, newest release first,
// together with the total number of matches.
func (s *Store) ListMovies(ctx context.Context, f model.MovieFilter) ([]model.Movie, int64, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(f.Search)) + "%"
		where = append(where, `(LOWER(title) LIKE ? ESCAPE '!' OR LOWER(original_title) LIKE ? ESCAPE '!' OR LOWER(overview) LIKE ? ESCAPE '!')`)
		args = append(args, pattern, pattern, pattern)
	}
	if f.Genre != "" {
		encoded, _ := json.Marshal(f.Genre)
		where = append(where, `genres_json LIKE ? ESCAPE '!'`)
		args = append(args, "%"+escapeLike(string(encoded))+"%")
	}
	if f.Language != "" {
		where = append(where, `(display_language = ? OR original_language = ?)`)
		args = append(args, f.Language, f.Language)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, s.q("SELECT COUNT(*) FROM movies"+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("count movies: %w", err)
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if total == 0 || int64(f.Offset) >= total {
		return []model.Movie{}, total, nil
	}

	pageArgs := append(append([]interface{}{}, args...), f.Limit, f.Offset)
	var rows []movieRow
	if err := s.db.SelectContext(ctx, &rows,
		s.q("SELECT * FROM movies"+clause+" ORDER BY release_date DESC, movie_id LIMIT ? OFFSET ?"),
		pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("list movies: %w", err)
	}

	movies := make([]model.Movie, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, 0, err
		}
		movies = append(movies, m)
	}
	return movies, total, nil
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

func requireAffected(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// escapeLike escapes LIKE wildcards using '!' as the escape character, which
// all supported dialects accept without string-literal quirks.
func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
