package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/movie-rec/backend/internal/metrics"
	"github.com/movie-rec/backend/pkg/logger"
)

// Target receives published snapshots.
type Target interface {
	SetSnapshot(snap *Snapshot) *Snapshot
	StatsKey() (string, error)
}

// Invalidator drops cached aggregates for every key but keep.
type Invalidator interface {
	Invalidate(ctx context.Context, keep string)
}

type ReloadResult struct {
	Movies      int           `json:"movies"`
	Ratings     int           `json:"ratings"`
	Tags        int           `json:"tags"`
	Fingerprint string        `json:"fingerprint"`
	Changed     bool          `json:"changed"`
	Took        time.Duration `json:"took"`
}

// Reloader rebuilds the live snapshot. Reloads are serialized; a failed
// reload leaves the previous snapshot in place.
type Reloader struct {
	src    Source
	target Target
	cache  Invalidator
	ingest func(ctx context.Context) error

	mu sync.Mutex
}

// NewReloader creates a reloader. ingest runs before each load when set, and
// cache may be nil.
func NewReloader(src Source, target Target, cache Invalidator, ingest func(ctx context.Context) error) *Reloader {
	return &Reloader{src: src, target: target, cache: cache, ingest: ingest}
}

func (r *Reloader) Reload(ctx context.Context) (*ReloadResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()

	if r.ingest != nil {
		if err := r.ingest(ctx); err != nil {
			metrics.CatalogReloads.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("failed to ingest catalog: %w", err)
		}
	}

	snap, err := Load(ctx, r.src)
	if err != nil {
		metrics.CatalogReloads.WithLabelValues("failed").Inc()
		return nil, err
	}

	prev := r.target.SetSnapshot(snap)
	changed := prev == nil || prev.Fingerprint != snap.Fingerprint

	if r.cache != nil && changed {
		key, err := r.target.StatsKey()
		if err == nil {
			r.cache.Invalidate(ctx, key)
		}
	}

	metrics.CatalogReloads.WithLabelValues("success").Inc()
	metrics.CatalogMovies.Set(float64(len(snap.Movies)))
	metrics.CatalogRatings.Set(float64(len(snap.Ratings)))

	tags := 0
	for _, t := range snap.TagsByMovie {
		tags += len(t)
	}

	res := &ReloadResult{
		Movies:      len(snap.Movies),
		Ratings:     len(snap.Ratings),
		Tags:        tags,
		Fingerprint: snap.Fingerprint,
		Changed:     changed,
		Took:        time.Since(start),
	}

	logger.Info("Catalog snapshot published",
		zap.Int("movies", res.Movies),
		zap.Int("ratings", res.Ratings),
		zap.Bool("changed", res.Changed),
		zap.Duration("took", res.Took),
	)
	return res, nil
}
