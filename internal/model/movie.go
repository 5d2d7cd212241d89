package model

import "time"

// Movie is a catalog entry served by the public API.
type Movie struct {
	MovieID          string    `json:"movie_id" yaml:"movie_id"`
	Title            string    `json:"title" yaml:"title"`
	OriginalTitle    string    `json:"original_title,omitempty" yaml:"original_title"`
	Overview         string    `json:"overview,omitempty" yaml:"overview"`
	Tagline          string    `json:"tagline,omitempty" yaml:"tagline"`
	Country          string    `json:"country,omitempty" yaml:"country"`
	Genres           []string  `json:"genres" yaml:"genres"`
	OriginalLanguage string    `json:"original_language,omitempty" yaml:"original_language"`
	DisplayLanguage  string    `json:"display_language" yaml:"display_language"`
	Popularity       float64   `json:"popularity" yaml:"popularity"`
	Rating           float64   `json:"rating" yaml:"rating"`
	Runtime          int       `json:"runtime,omitempty" yaml:"runtime"`
	ReleaseDate      string    `json:"release_date,omitempty" yaml:"release_date"`
	Revenue          int64     `json:"revenue" yaml:"revenue"`
	IMDbID           string    `json:"imdb_id,omitempty" yaml:"imdb_id"`
	PosterURL        string    `json:"poster_url" yaml:"poster_url"`
	BackdropURL      string    `json:"backdrop_url,omitempty" yaml:"backdrop_url"`
	Status           string    `json:"status,omitempty" yaml:"status"`
	Views            int64     `json:"views" yaml:"-"`
	DownloadLinks    []string  `json:"download_links" yaml:"download_links"`
	CreatedAt        time.Time `json:"created_at" yaml:"-"`
	UpdatedAt        time.Time `json:"updated_at" yaml:"-"`
}

// MovieFilter narrows a catalog listing. Empty fields are ignored.
type MovieFilter struct {
	Search   string
	Genre    string
	Language string
	Limit    int
	Offset   int
}
