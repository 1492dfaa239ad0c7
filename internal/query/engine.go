// Package query runs a free-text movie request end to end: parse, rank,
// explain, record.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/movie-rec/backend/internal/metrics"
	"github.com/movie-rec/backend/internal/recommend"
	"github.com/movie-rec/backend/internal/storage/models"
	"github.com/movie-rec/backend/pkg/logger"
	"github.com/movie-rec/backend/pkg/utils"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 200
)

var ErrEmptyQuery = errors.New("query text is empty")

type Recommender interface {
	Recommend(ctx context.Context, text string, f recommend.StructuredFilter) ([]recommend.Recommendation, error)
}

type HistoryStore interface {
	InsertQueryRecord(ctx context.Context, record *models.QueryRecord) error
	GetQueryHistory(ctx context.Context, userID string, limit int) ([]models.QueryRecord, error)
}

type Engine struct {
	recs      Recommender
	parser    Parser
	explainer Explainer
	history   HistoryStore
}

type QueryRequest struct {
	Query  string
	UserID string
	// Filter, when set, replaces parsing of Query.
	Filter *recommend.StructuredFilter
}

type QueryResponse struct {
	ID          string                     `json:"id"`
	Query       string                     `json:"query"`
	Filter      recommend.StructuredFilter `json:"filter"`
	Parser      string                     `json:"parser"`
	Explanation string                     `json:"explanation"`
	Results     []recommend.Recommendation `json:"results"`
	LatencyMS   int                        `json:"latency_ms"`
}

// NewEngine wires the pipeline. history may be nil to skip recording.
func NewEngine(recs Recommender, parser Parser, explainer Explainer, history HistoryStore) *Engine {
	return &Engine{
		recs:      recs,
		parser:    parser,
		explainer: explainer,
		history:   history,
	}
}

func (e *Engine) ProcessQuery(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	startTime := time.Now()
	text := strings.TrimSpace(req.Query)
	if text == "" {
		metrics.QueryTotal.WithLabelValues("invalid").Inc()
		return nil, ErrEmptyQuery
	}

	queryID := uuid.New().String()
	logger.Info("Processing query",
		zap.String("query_id", queryID),
		zap.String("query", text),
	)

	parsed, err := e.resolveFilter(ctx, text, req.Filter)
	if err != nil {
		status := "error"
		if errors.Is(err, ErrInvalidFilter) {
			status = "invalid"
		}
		metrics.QueryTotal.WithLabelValues(status).Inc()
		return nil, err
	}

	logger.Debug("Filter resolved",
		zap.String("query_id", queryID),
		zap.String("parser", parsed.Parser),
		zap.Strings("genres", parsed.Filter.Genres),
	)

	results, err := e.recs.Recommend(ctx, text, parsed.Filter)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to recommend: %w", err)
	}

	explanation := e.explainer.Explain(ctx, text, results)
	latency := int(time.Since(startTime).Milliseconds())

	e.record(ctx, &models.QueryRecord{
		ID:          queryID,
		UserID:      req.UserID,
		QueryText:   text,
		QueryHash:   utils.HashString(strings.ToLower(text)),
		ParserKind:  parsed.Parser,
		ResultCount: len(results),
		Explanation: explanation,
		LatencyMS:   latency,
		CreatedAt:   time.Now(),
	}, parsed.Filter)

	metrics.QueryDuration.WithLabelValues(parsed.Parser).Observe(time.Since(startTime).Seconds())
	metrics.QueryTotal.WithLabelValues("success").Inc()
	metrics.ResultsCount.Observe(float64(len(results)))

	logger.Info("Query processed successfully",
		zap.String("query_id", queryID),
		zap.Int("results", len(results)),
		zap.Int("latency_ms", latency),
	)

	return &QueryResponse{
		ID:          queryID,
		Query:       text,
		Filter:      parsed.Filter,
		Parser:      parsed.Parser,
		Explanation: explanation,
		Results:     results,
		LatencyMS:   latency,
	}, nil
}

func (e *Engine) resolveFilter(ctx context.Context, text string, provided *recommend.StructuredFilter) (ParseResult, error) {
	if provided != nil {
		if err := ValidateFilter(*provided); err != nil {
			return ParseResult{}, err
		}
		return ParseResult{Filter: provided.Normalize(), Parser: ParserProvided}, nil
	}

	res, err := e.parser.Parse(ctx, text)
	if err != nil {
		return ParseResult{}, fmt.Errorf("failed to parse query: %w", err)
	}
	return res, nil
}

// record stores the request in history. Failures are logged only; a lost
// history row never costs the caller their results.
func (e *Engine) record(ctx context.Context, rec *models.QueryRecord, f recommend.StructuredFilter) {
	if e.history == nil {
		return
	}

	if data, err := json.Marshal(f); err == nil {
		rec.FilterJSON = string(data)
	}

	if err := e.history.InsertQueryRecord(ctx, rec); err != nil {
		logger.Warn("Failed to record query", zap.String("query_id", rec.ID), zap.Error(err))
	}
}

// History returns a user's most recent requests, newest first.
func (e *Engine) History(ctx context.Context, userID string, limit int) ([]models.QueryRecord, error) {
	if e.history == nil {
		return []models.QueryRecord{}, nil
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return e.history.GetQueryHistory(ctx, userID, limit)
}
