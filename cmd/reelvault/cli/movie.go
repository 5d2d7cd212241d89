package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/reelvault/reelvault/internal/config"
	"github.com/reelvault/reelvault/internal/model"
)

func newMovieCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "movie",
		Short: "Manage the movie catalog",
	}

	cmd.AddCommand(newMovieImportCmd())

	return cmd
}

// ---------- movie import ----------

func newMovieImportCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import movies from a YAML file",
		Long: `Upsert every movie in a YAML file into the catalog, keyed by movie_id.
Existing entries are replaced; their view counters are kept.

The file holds a list of movies, either at the top level or under "movies:".`,
		Example: `  reelvault movie import seed/movies.yaml
  reelvault movie import movies.yaml --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMovieImport(args[0], dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the file without writing to the store")

	return cmd
}

func runMovieImport(path string, dryRun bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	movies, err := parseMovies(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if dryRun {
		fmt.Printf("%s: %d movies OK\n", path, len(movies))
		return nil
	}

	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	n, err := importMovies(context.Background(), store, movies)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d movies from %s\n", n, path)
	return nil
}

// movieFile accepts both a bare list and a "movies:" document.
type movieFile struct {
	Movies []model.Movie `yaml:"movies"`
}

// parseMovies decodes and validates a movie list.
func parseMovies(r io.Reader) ([]model.Movie, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var movies []model.Movie
	if err := yaml.Unmarshal(data, &movies); err != nil {
		var doc movieFile
		if err2 := yaml.Unmarshal(data, &doc); err2 != nil {
			return nil, err
		}
		movies = doc.Movies
	}
	if len(movies) == 0 {
		return nil, fmt.Errorf("no movies found")
	}

	seen := make(map[string]int, len(movies))
	for i := range movies {
		m := &movies[i]
		m.MovieID = strings.TrimSpace(m.MovieID)
		m.Title = strings.TrimSpace(m.Title)
		if m.MovieID == "" || m.Title == "" || strings.TrimSpace(m.PosterURL) == "" {
			return nil, fmt.Errorf("movie #%d: movie_id, title and poster_url are required", i+1)
		}
		if prev, ok := seen[m.MovieID]; ok {
			return nil, fmt.Errorf("movie #%d: duplicate movie_id %q (first seen at #%d)", i+1, m.MovieID, prev)
		}
		seen[m.MovieID] = i + 1
	}
	return movies, nil
}

// importMovies upserts each movie and reports how many were written.
func importMovies(ctx context.Context, store *config.Store, movies []model.Movie) (int, error) {
	for i := range movies {
		if err := store.UpsertMovie(ctx, &movies[i]); err != nil {
			return i, fmt.Errorf("upsert %s: %w", movies[i].MovieID, err)
		}
	}
	return len(movies), nil
}
