package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/movie-rec/backend/internal/storage/models"
	"github.com/movie-rec/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS movies (
		movieId INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		year INTEGER,
		genres TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_movies_year ON movies(year);

	CREATE TABLE IF NOT EXISTS ratings (
		userId INTEGER NOT NULL,
		movieId INTEGER NOT NULL,
		rating REAL NOT NULL,
		timestamp INTEGER NOT NULL,
		PRIMARY KEY (userId, movieId)
	);
	CREATE INDEX IF NOT EXISTS idx_ratings_movie ON ratings(movieId);

	CREATE TABLE IF NOT EXISTS tags (
		userId INTEGER NOT NULL,
		movieId INTEGER NOT NULL,
		tag TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		PRIMARY KEY (userId, movieId, tag)
	);
	CREATE INDEX IF NOT EXISTS idx_tags_movie ON tags(movieId);

	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		query_text TEXT NOT NULL,
		query_hash TEXT NOT NULL,
		filter_json TEXT,
		parser_kind TEXT,
		result_count INTEGER,
		explanation TEXT,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_user ON query_history(user_id);
	CREATE INDEX IF NOT EXISTS idx_query_created ON query_history(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// UpsertCatalog writes all three relations inside one transaction with
// INSERT OR REPLACE semantics. Either every row lands or none does.
func (c *Client) UpsertCatalog(ctx context.Context, movies []models.Movie, ratings []models.Rating, tags []models.Tag) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin catalog transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertMovies(ctx, tx, movies); err != nil {
		return err
	}
	if err := upsertRatings(ctx, tx, ratings); err != nil {
		return err
	}
	if err := upsertTags(ctx, tx, tags); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog transaction: %w", err)
	}

	logger.Info("Catalog upserted",
		zap.Int("movies", len(movies)),
		zap.Int("ratings", len(ratings)),
		zap.Int("tags", len(tags)),
	)
	return nil
}

func upsertMovies(ctx context.Context, tx *sql.Tx, movies []models.Movie) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO movies (movieId, title, year, genres) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare movie upsert: %w", err)
	}
	defer stmt.Close()

	for _, m := range movies {
		var year sql.NullInt64
		if m.Year != nil {
			year = sql.NullInt64{Int64: int64(*m.Year), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, m.MovieID, m.Title, year, m.Genres); err != nil {
			return fmt.Errorf("failed to upsert movie %d: %w", m.MovieID, err)
		}
	}
	return nil
}

func upsertRatings(ctx context.Context, tx *sql.Tx, ratings []models.Rating) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO ratings (userId, movieId, rating, timestamp) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare rating upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range ratings {
		if _, err := stmt.ExecContext(ctx, r.UserID, r.MovieID, r.Rating, r.Timestamp); err != nil {
			return fmt.Errorf("failed to upsert rating (%d, %d): %w", r.UserID, r.MovieID, err)
		}
	}
	return nil
}

func upsertTags(ctx context.Context, tx *sql.Tx, tags []models.Tag) error {
	if len(tags) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO tags (userId, movieId, tag, timestamp) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare tag upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tags {
		if _, err := stmt.ExecContext(ctx, t.UserID, t.MovieID, t.Tag, t.Timestamp); err != nil {
			return fmt.Errorf("failed to upsert tag (%d, %d): %w", t.UserID, t.MovieID, err)
		}
	}
	return nil
}

func (c *Client) CountMovies(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count movies: %w", err)
	}
	return n, nil
}

func (c *Client) FetchMovies(ctx context.Context) ([]models.Movie, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT movieId, title, year, genres FROM movies ORDER BY movieId`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch movies: %w", err)
	}
	defer rows.Close()

	var movies []models.Movie
	for rows.Next() {
		var m models.Movie
		var year sql.NullInt64
		var genres sql.NullString

		if err := rows.Scan(&m.MovieID, &m.Title, &year, &genres); err != nil {
			return nil, fmt.Errorf("failed to scan movie: %w", err)
		}
		if year.Valid {
			y := int(year.Int64)
			m.Year = &y
		}
		m.Genres = genres.String
		movies = append(movies, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate movies: %w", err)
	}
	return movies, nil
}

func (c *Client) FetchRatings(ctx context.Context) ([]models.Rating, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT userId, movieId, rating, timestamp FROM ratings ORDER BY userId, movieId`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ratings: %w", err)
	}
	defer rows.Close()

	var ratings []models.Rating
	for rows.Next() {
		var r models.Rating
		if err := rows.Scan(&r.UserID, &r.MovieID, &r.Rating, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings = append(ratings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ratings: %w", err)
	}
	return ratings, nil
}

func (c *Client) FetchTags(ctx context.Context) ([]models.Tag, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT userId, movieId, tag, timestamp FROM tags ORDER BY movieId, userId, tag`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tags: %w", err)
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.UserID, &t.MovieID, &t.Tag, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tags: %w", err)
	}
	return tags, nil
}

func (c *Client) InsertQueryRecord(ctx context.Context, record *models.QueryRecord) error {
	query := `
		INSERT INTO query_history (id, user_id, query_text, query_hash, filter_json, parser_kind,
			result_count, explanation, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		record.ID,
		record.UserID,
		record.QueryText,
		record.QueryHash,
		record.FilterJSON,
		record.ParserKind,
		record.ResultCount,
		record.Explanation,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}

	logger.Debug("Query recorded",
		zap.String("query_id", record.ID),
		zap.String("parser", record.ParserKind),
		zap.Int("results", record.ResultCount),
	)

	return nil
}

func (c *Client) GetQueryHistory(ctx context.Context, userID string, limit int) ([]models.QueryRecord, error) {
	query := `
		SELECT id, user_id, query_text, query_hash, filter_json, parser_kind, result_count,
			explanation, latency_ms, created_at
		FROM query_history
		WHERE user_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get query history: %w", err)
	}
	defer rows.Close()

	records := []models.QueryRecord{}
	for rows.Next() {
		var r models.QueryRecord
		var createdAt int64

		err := rows.Scan(&r.ID, &r.UserID, &r.QueryText, &r.QueryHash, &r.FilterJSON, &r.ParserKind,
			&r.ResultCount, &r.Explanation, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate query history: %w", err)
	}
	return records, nil
}
