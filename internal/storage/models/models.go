package models

import (
	"strings"
	"time"
)

// NoGenres is the MovieLens placeholder for a movie without genres.
const NoGenres = "(no genres listed)"

type Movie struct {
	MovieID int
	Title   string
	Year    *int
	Genres  string
}

// GenreList splits the pipe-joined genre column.
func (m Movie) GenreList() []string {
	if m.Genres == "" || m.Genres == NoGenres {
		return nil
	}
	parts := strings.Split(m.Genres, "|")
	genres := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && p != NoGenres {
			genres = append(genres, p)
		}
	}
	return genres
}

// DisplayGenres joins genres for people rather than storage.
func (m Movie) DisplayGenres() string {
	return strings.Join(m.GenreList(), ", ")
}

type Rating struct {
	UserID    int
	MovieID   int
	Rating    float64
	Timestamp int64
}

type Tag struct {
	UserID    int
	MovieID   int
	Tag       string
	Timestamp int64
}

type QueryRecord struct {
	ID          string
	UserID      string
	QueryText   string
	QueryHash   string
	FilterJSON  string
	ParserKind  string
	ResultCount int
	Explanation string
	LatencyMS   int
	CreatedAt   time.Time
}
