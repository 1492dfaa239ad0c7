// Package catalog holds the in-memory, read-only view of the movie catalog
// that the recommendation engine works against.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/movie-rec/backend/internal/storage/models"
	"github.com/movie-rec/backend/pkg/logger"
	"github.com/movie-rec/backend/pkg/utils"
)

const (
	MinRating = 0.5
	MaxRating = 5.0
)

var ErrInvalidRow = errors.New("invalid catalog row")

// Source is the full-table read contract of the catalog store.
type Source interface {
	FetchMovies(ctx context.Context) ([]models.Movie, error)
	FetchRatings(ctx context.Context) ([]models.Rating, error)
	FetchTags(ctx context.Context) ([]models.Tag, error)
}

// Snapshot is an immutable copy of the three relations. Fingerprint changes
// whenever the ratings relation changes and keys the statistics cache.
type Snapshot struct {
	Movies      []models.Movie
	Ratings     []models.Rating
	TagsByMovie map[int][]string
	Fingerprint string
	LoadedAt    time.Time
}

// Load reads every relation from src and validates each row. A single bad row
// fails the whole load so the engine never runs on a partial catalog.
func Load(ctx context.Context, src Source) (*Snapshot, error) {
	movies, err := src.FetchMovies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load movies: %w", err)
	}
	ratings, err := src.FetchRatings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings: %w", err)
	}
	tags, err := src.FetchTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tags: %w", err)
	}

	snap, err := NewSnapshot(movies, ratings, tags)
	if err != nil {
		return nil, err
	}

	logger.Info("Catalog snapshot loaded",
		zap.Int("movies", len(snap.Movies)),
		zap.Int("ratings", len(snap.Ratings)),
		zap.Int("tagged_movies", len(snap.TagsByMovie)),
		zap.String("fingerprint", snap.Fingerprint),
	)
	return snap, nil
}

// NewSnapshot validates rows and builds a snapshot. Ratings are fingerprinted
// in the order given; Source implementations return them sorted by
// (userId, movieId).
func NewSnapshot(movies []models.Movie, ratings []models.Rating, tags []models.Tag) (*Snapshot, error) {
	seen := make(map[int]struct{}, len(movies))
	for i, m := range movies {
		if err := validateMovie(m); err != nil {
			return nil, fmt.Errorf("movie row %d: %w", i, err)
		}
		if _, dup := seen[m.MovieID]; dup {
			return nil, fmt.Errorf("movie row %d: duplicate movieId %d: %w", i, m.MovieID, ErrInvalidRow)
		}
		seen[m.MovieID] = struct{}{}
	}

	fp := utils.NewFingerprint()
	for i, r := range ratings {
		if err := validateRating(r); err != nil {
			return nil, fmt.Errorf("rating row %d: %w", i, err)
		}
		fp.Add(
			strconv.Itoa(r.UserID),
			strconv.Itoa(r.MovieID),
			strconv.FormatFloat(r.Rating, 'f', -1, 64),
			strconv.FormatInt(r.Timestamp, 10),
		)
	}

	tagsByMovie := make(map[int][]string)
	for i, t := range tags {
		text := strings.TrimSpace(t.Tag)
		if t.MovieID <= 0 || text == "" {
			return nil, fmt.Errorf("tag row %d: movieId=%d tag=%q: %w", i, t.MovieID, t.Tag, ErrInvalidRow)
		}
		tagsByMovie[t.MovieID] = append(tagsByMovie[t.MovieID], text)
	}

	return &Snapshot{
		Movies:      movies,
		Ratings:     ratings,
		TagsByMovie: tagsByMovie,
		Fingerprint: fp.Sum(),
		LoadedAt:    time.Now(),
	}, nil
}

func validateMovie(m models.Movie) error {
	if m.MovieID <= 0 {
		return fmt.Errorf("movieId %d: %w", m.MovieID, ErrInvalidRow)
	}
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("movieId %d has empty title: %w", m.MovieID, ErrInvalidRow)
	}
	return nil
}

func validateRating(r models.Rating) error {
	if r.UserID <= 0 || r.MovieID <= 0 {
		return fmt.Errorf("userId=%d movieId=%d: %w", r.UserID, r.MovieID, ErrInvalidRow)
	}
	if r.Rating < MinRating || r.Rating > MaxRating {
		return fmt.Errorf("rating %g outside [%g, %g]: %w", r.Rating, MinRating, MaxRating, ErrInvalidRow)
	}
	return nil
}
