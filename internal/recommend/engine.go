package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/movie-rec/backend/internal/catalog"
	"github.com/movie-rec/backend/pkg/logger"
)

var ErrCatalogNotLoaded = errors.New("catalog not loaded")

// StatsProvider returns the statistics for key, running compute at most once
// per key when they are not already available.
type StatsProvider interface {
	GetOrCompute(ctx context.Context, key string, compute func() map[int]MovieStats) map[int]MovieStats
}

// Engine runs filter, stats, rank and reason over the current catalog
// snapshot. It is safe for concurrent use; SetSnapshot swaps the catalog
// atomically.
type Engine struct {
	params   RankParams
	stats    StatsProvider
	snapshot atomic.Pointer[catalog.Snapshot]
}

// NewEngine creates an engine. A nil provider aggregates on every call.
func NewEngine(params RankParams, stats StatsProvider) *Engine {
	return &Engine{
		params: params.withDefaults(),
		stats:  stats,
	}
}

func (e *Engine) Params() RankParams {
	return e.params
}

// SetSnapshot publishes snap and returns the snapshot it replaced.
func (e *Engine) SetSnapshot(snap *catalog.Snapshot) *catalog.Snapshot {
	return e.snapshot.Swap(snap)
}

func (e *Engine) Snapshot() *catalog.Snapshot {
	return e.snapshot.Load()
}

// StatsKey is the cache key of the current snapshot's aggregation.
func (e *Engine) StatsKey() (string, error) {
	snap := e.snapshot.Load()
	if snap == nil {
		return "", ErrCatalogNotLoaded
	}
	return StatsCacheKey(snap.Fingerprint), nil
}

func (e *Engine) Stats(ctx context.Context) (map[int]MovieStats, error) {
	snap := e.snapshot.Load()
	if snap == nil {
		return nil, ErrCatalogNotLoaded
	}
	return e.statsFor(ctx, snap), nil
}

func (e *Engine) statsFor(ctx context.Context, snap *catalog.Snapshot) map[int]MovieStats {
	compute := func() map[int]MovieStats { return Aggregate(snap.Ratings) }
	if e.stats == nil {
		return compute()
	}
	return e.stats.GetOrCompute(ctx, StatsCacheKey(snap.Fingerprint), compute)
}

// Recommend returns up to ReturnK reasoned recommendations for f. No matches
// is an empty slice, not an error.
func (e *Engine) Recommend(ctx context.Context, text string, f StructuredFilter) ([]Recommendation, error) {
	snap := e.snapshot.Load()
	if snap == nil {
		return nil, fmt.Errorf("failed to recommend: %w", ErrCatalogNotLoaded)
	}

	f = f.Normalize()
	if f.MaxRuntime != nil {
		logger.Debug("Runtime constraint ignored, catalog has no runtime data", zap.Int("max_runtime", *f.MaxRuntime))
	}

	candidates := Evaluate(snap.Movies, snap.TagsByMovie, f)
	if len(candidates) == 0 {
		logger.Debug("No candidates matched filter", zap.String("query", text))
		return []Recommendation{}, nil
	}

	stats := e.statsFor(ctx, snap)
	ranked := Rank(candidates, stats, e.params)

	results := make([]Recommendation, 0, len(ranked))
	for _, r := range ranked {
		results = append(results, Recommendation{
			MovieID:        r.Movie.MovieID,
			Title:          r.Movie.Title,
			Year:           r.Movie.Year,
			Genres:         r.Movie.DisplayGenres(),
			RatingCount:    r.Stats.RatingCount,
			RatingMean:     r.Stats.RatingMean,
			RatingMeanText: fmt.Sprintf("%.2f", r.Stats.RatingMean),
			Score:          r.Score,
			Reason:         Explain(r.Movie, snap.TagsByMovie[r.Movie.MovieID], f, r.Stats),
		})
	}

	logger.Debug("Recommendations ranked",
		zap.String("query", text),
		zap.Int("candidates", len(candidates)),
		zap.Int("returned", len(results)),
	)

	return results, nil
}
