// Package ingestion loads a MovieLens export into the catalog store.
package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/movie-rec/backend/internal/catalog"
	"github.com/movie-rec/backend/internal/storage/models"
	"github.com/movie-rec/backend/pkg/logger"
)

const (
	MoviesFile  = "movies.csv"
	RatingsFile = "ratings.csv"
	TagsFile    = "tags.csv"
)

var (
	ErrMissingColumn = errors.New("missing csv column")
	ErrBadRecord     = errors.New("malformed csv record")

	yearPattern = regexp.MustCompile(`\((\d{4})\)\s*$`)
)

// Store receives the parsed relations. Writes must be idempotent: loading the
// same files twice leaves the store unchanged.
type Store interface {
	UpsertCatalog(ctx context.Context, movies []models.Movie, ratings []models.Rating, tags []models.Tag) error
}

type Result struct {
	Movies  int
	Ratings int
	Tags    int
	Took    time.Duration
}

type Loader struct {
	store Store
}

func NewLoader(store Store) *Loader {
	return &Loader{store: store}
}

// Load reads movies.csv, ratings.csv and the optional tags.csv from dir and
// upserts them in one pass.
func (l *Loader) Load(ctx context.Context, dir string) (*Result, error) {
	start := time.Now()
	logger.Info("Loading MovieLens export", zap.String("dir", dir))

	var movies []models.Movie
	if err := readFile(filepath.Join(dir, MoviesFile), func(r io.Reader) (err error) {
		movies, err = ReadMovies(r)
		return err
	}); err != nil {
		return nil, err
	}

	var ratings []models.Rating
	if err := readFile(filepath.Join(dir, RatingsFile), func(r io.Reader) (err error) {
		ratings, err = ReadRatings(r)
		return err
	}); err != nil {
		return nil, err
	}

	var tags []models.Tag
	err := readFile(filepath.Join(dir, TagsFile), func(r io.Reader) (err error) {
		tags, err = ReadTags(r)
		return err
	})
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("No tags file, continuing without tags", zap.String("dir", dir))
	} else if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Rows are checked against the snapshot rules before anything is written,
	// so the store never holds a catalog that cannot be loaded.
	if _, err := catalog.NewSnapshot(movies, ratings, tags); err != nil {
		return nil, fmt.Errorf("rejected MovieLens export: %w", err)
	}

	if err := l.store.UpsertCatalog(ctx, movies, ratings, tags); err != nil {
		return nil, fmt.Errorf("failed to store catalog: %w", err)
	}

	res := &Result{
		Movies:  len(movies),
		Ratings: len(ratings),
		Tags:    len(tags),
		Took:    time.Since(start),
	}

	logger.Info("MovieLens export loaded",
		zap.Int("movies", res.Movies),
		zap.Int("ratings", res.Ratings),
		zap.Int("tags", res.Tags),
		zap.Duration("took", res.Took),
	)
	return res, nil
}

func readFile(path string, read func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	if err := read(f); err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ExtractYear returns the release year from a trailing "(YYYY)" in the title.
func ExtractYear(title string) *int {
	m := yearPattern.FindStringSubmatch(title)
	if m == nil {
		return nil
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &year
}

func ReadMovies(r io.Reader) ([]models.Movie, error) {
	var movies []models.Movie
	err := eachRecord(r, []string{"movieId", "title", "genres"}, func(line int, get func(string) string) error {
		id, err := strconv.Atoi(get("movieId"))
		if err != nil {
			return fmt.Errorf("%w: line %d: movieId %q", ErrBadRecord, line, get("movieId"))
		}
		title := strings.TrimSpace(get("title"))
		movies = append(movies, models.Movie{
			MovieID: id,
			Title:   title,
			Year:    ExtractYear(title),
			Genres:  get("genres"),
		})
		return nil
	})
	return movies, err
}

func ReadRatings(r io.Reader) ([]models.Rating, error) {
	var ratings []models.Rating
	err := eachRecord(r, []string{"userId", "movieId", "rating", "timestamp"}, func(line int, get func(string) string) error {
		userID, err1 := strconv.Atoi(get("userId"))
		movieID, err2 := strconv.Atoi(get("movieId"))
		value, err3 := strconv.ParseFloat(get("rating"), 64)
		ts, err4 := strconv.ParseInt(get("timestamp"), 10, 64)
		if err := errors.Join(err1, err2, err3, err4); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrBadRecord, line, err)
		}
		ratings = append(ratings, models.Rating{UserID: userID, MovieID: movieID, Rating: value, Timestamp: ts})
		return nil
	})
	return ratings, err
}

func ReadTags(r io.Reader) ([]models.Tag, error) {
	var tags []models.Tag
	err := eachRecord(r, []string{"userId", "movieId", "tag", "timestamp"}, func(line int, get func(string) string) error {
		userID, err1 := strconv.Atoi(get("userId"))
		movieID, err2 := strconv.Atoi(get("movieId"))
		ts, err3 := strconv.ParseInt(get("timestamp"), 10, 64)
		if err := errors.Join(err1, err2, err3); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrBadRecord, line, err)
		}
		tag := strings.TrimSpace(get("tag"))
		if tag == "" {
			return nil
		}
		tags = append(tags, models.Tag{UserID: userID, MovieID: movieID, Tag: tag, Timestamp: ts})
		return nil
	})
	return tags, err
}

// eachRecord walks a headed CSV. Columns are located by name so exports with
// extra or reordered columns still load. An empty input yields no records.
func eachRecord(r io.Reader, required []string, fn func(line int, get func(string) string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrBadRecord, line, err)
		}

		get := func(name string) string {
			i := index[name]
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		if err := fn(line, get); err != nil {
			return err
		}
	}
}
