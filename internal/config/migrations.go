package config

import (
	"fmt"
	"strings"
)

// columnTypes holds the per-dialect spelling of the column types the schema
// uses. Everything else in the DDL is portable.
type columnTypes struct {
	id        string // primary / unique text identifiers
	text      string // unbounded text
	boolean   string
	timestamp string
}

var dialectTypes = map[string]columnTypes{
	DriverSQLite:   {id: "TEXT", text: "TEXT", boolean: "INTEGER", timestamp: "DATETIME"},
	DriverPostgres: {id: "TEXT", text: "TEXT", boolean: "BOOLEAN", timestamp: "TIMESTAMPTZ"},
	DriverMySQL:    {id: "VARCHAR(191)", text: "TEXT", boolean: "BOOLEAN", timestamp: "DATETIME(6)"},
}

func (s *Store) migrate() error {
	t, ok := dialectTypes[s.driver]
	if !ok {
		return fmt.Errorf("no migrations for driver %s", s.driver)
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS api_keys (
			id ` + t.id + ` PRIMARY KEY,
			key_hash ` + t.text + ` NOT NULL,
			key_prefix ` + t.id + ` NOT NULL,
			key_suffix ` + t.id + ` NOT NULL,
			label ` + t.id + ` NOT NULL,
			is_active ` + t.boolean + ` NOT NULL,
			usage_count BIGINT NOT NULL DEFAULT 0,
			last_used_at ` + t.timestamp + ` NULL,
			created_at ` + t.timestamp + ` NOT NULL,
			updated_at ` + t.timestamp + ` NOT NULL
		)`,

		`CREATE INDEX idx_api_keys_active ON api_keys(is_active)`,

		`CREATE TABLE IF NOT EXISTS users (
			id ` + t.id + ` PRIMARY KEY,
			email ` + t.id + ` UNIQUE NOT NULL,
			password_hash ` + t.text + ` NOT NULL,
			role ` + t.id + ` NOT NULL,
			created_at ` + t.timestamp + ` NOT NULL,
			updated_at ` + t.timestamp + ` NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS movies (
			movie_id ` + t.id + ` PRIMARY KEY,
			title ` + t.id + ` NOT NULL,
			original_title ` + t.id + ` NOT NULL,
			overview ` + t.text + ` NOT NULL,
			tagline ` + t.text + ` NOT NULL,
			country ` + t.id + ` NOT NULL,
			genres_json ` + t.text + ` NOT NULL,
			original_language ` + t.id + ` NOT NULL,
			display_language ` + t.id + ` NOT NULL,
			popularity DOUBLE PRECISION NOT NULL DEFAULT 0,
			rating DOUBLE PRECISION NOT NULL DEFAULT 0,
			runtime INTEGER NOT NULL DEFAULT 0,
			release_date ` + t.id + ` NOT NULL,
			revenue BIGINT NOT NULL DEFAULT 0,
			imdb_id ` + t.id + ` NOT NULL,
			poster_url ` + t.text + ` NOT NULL,
			backdrop_url ` + t.text + ` NOT NULL,
			status ` + t.id + ` NOT NULL,
			views BIGINT NOT NULL DEFAULT 0,
			download_links_json ` + t.text + ` NOT NULL,
			created_at ` + t.timestamp + ` NOT NULL,
			updated_at ` + t.timestamp + ` NOT NULL
		)`,

		`CREATE INDEX idx_movies_release_date ON movies(release_date)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Re-running CREATE INDEX against an existing
			// schema is a no-op for idempotent migrations.
			if isAlreadyExists(err) {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "duplicate key name")
}
