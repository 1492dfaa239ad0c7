// Package cache keeps rating statistics between requests. Results live in an
// in-process arena keyed by the aggregation key and are written through to an
// optional persistent Store so a restart over the same ratings skips the
// aggregation.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/movie-rec/backend/internal/metrics"
	"github.com/movie-rec/backend/internal/recommend"
	"github.com/movie-rec/backend/pkg/logger"
)

// Store persists encoded aggregates. A miss is (nil, false, nil).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte) error
	// Prune removes every entry except keep.
	Prune(ctx context.Context, keep string) error
	Close() error
}

type payload struct {
	Key   string                 `json:"key"`
	Stats []recommend.MovieStats `json:"stats"`
}

// StatsCache serializes cold misses per key with singleflight; warm reads take
// only a read lock. Returned maps are shared and must not be modified.
//
// Keys dropped by Invalidate are retired: a computation for a retired key
// still answers its caller but is neither published nor persisted.
type StatsCache struct {
	store Store
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]map[int]recommend.MovieStats
	seen    map[string]struct{}
	retired map[string]struct{}

	// storeMu orders persisted writes against Invalidate's prune.
	storeMu sync.RWMutex
}

// NewStatsCache creates a cache. store may be nil for a memory-only cache.
func NewStatsCache(store Store) *StatsCache {
	return &StatsCache{
		store:   store,
		entries: make(map[string]map[int]recommend.MovieStats),
		seen:    make(map[string]struct{}),
		retired: make(map[string]struct{}),
	}
}

// GetOrCompute returns the statistics for key. On a cold key exactly one
// caller loads them from the store or runs compute; concurrent callers join
// that work. Store failures are logged and never surface.
func (c *StatsCache) GetOrCompute(ctx context.Context, key string, compute func() map[int]recommend.MovieStats) map[int]recommend.MovieStats {
	if stats, ok := c.lookup(key); ok {
		metrics.CacheHits.WithLabelValues("memory").Inc()
		return stats
	}

	c.track(key)

	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		if stats, ok := c.lookup(key); ok {
			metrics.CacheHits.WithLabelValues("memory").Inc()
			return stats, nil
		}

		// The shared work outlives any single caller's cancellation.
		storeCtx := context.WithoutCancel(ctx)

		if stats, ok := c.load(storeCtx, key); ok {
			metrics.CacheHits.WithLabelValues("store").Inc()
			c.publish(key, stats)
			return stats, nil
		}

		metrics.CacheMisses.Inc()
		start := time.Now()
		stats := compute()
		metrics.AggregationDuration.Observe(time.Since(start).Seconds())

		logger.Info("Rating statistics aggregated",
			zap.String("key", key),
			zap.Int("movies", len(stats)),
			zap.Duration("took", time.Since(start)),
		)

		if c.publish(key, stats) {
			c.persist(storeCtx, key, stats)
		}
		return stats, nil
	})

	return v.(map[int]recommend.MovieStats)
}

// Contains reports whether key is published in memory.
func (c *StatsCache) Contains(key string) bool {
	_, ok := c.lookup(key)
	return ok
}

// Invalidate drops every key but keep from memory and the store, and retires
// every other key requested so far.
func (c *StatsCache) Invalidate(ctx context.Context, keep string) {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	c.mu.Lock()
	dropped := 0
	for k := range c.entries {
		if k != keep {
			delete(c.entries, k)
			dropped++
		}
	}
	for k := range c.seen {
		if k != keep {
			c.retired[k] = struct{}{}
			delete(c.seen, k)
		}
	}
	delete(c.retired, keep)
	c.seen[keep] = struct{}{}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Prune(ctx, keep); err != nil {
			metrics.CacheErrors.WithLabelValues("prune").Inc()
			logger.Warn("Failed to prune stats store", zap.Error(err))
		}
	}

	logger.Info("Stats cache invalidated", zap.String("keep", keep), zap.Int("dropped", dropped))
}

func (c *StatsCache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

func (c *StatsCache) lookup(key string) (map[int]recommend.MovieStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats, ok := c.entries[key]
	return stats, ok
}

func (c *StatsCache) track(key string) {
	c.mu.Lock()
	if _, ok := c.retired[key]; !ok {
		c.seen[key] = struct{}{}
	}
	c.mu.Unlock()
}

func (c *StatsCache) isRetired(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.retired[key]
	return ok
}

// publish stores stats in memory unless key is retired, and reports whether
// it did.
func (c *StatsCache) publish(key string, stats map[int]recommend.MovieStats) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.retired[key]; ok {
		logger.Debug("Skipping publish of retired stats key", zap.String("key", key))
		return false
	}
	c.entries[key] = stats
	return true
}

func (c *StatsCache) load(ctx context.Context, key string) (map[int]recommend.MovieStats, bool) {
	if c.store == nil {
		return nil, false
	}

	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("get").Inc()
		logger.Warn("Stats store read failed, aggregating directly", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	stats, err := decode(key, data)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("decode").Inc()
		logger.Warn("Discarding unreadable stats entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	logger.Debug("Stats loaded from store", zap.String("key", key), zap.Int("movies", len(stats)))
	return stats, true
}

func (c *StatsCache) persist(ctx context.Context, key string, stats map[int]recommend.MovieStats) {
	if c.store == nil {
		return
	}

	c.storeMu.RLock()
	defer c.storeMu.RUnlock()
	if c.isRetired(key) {
		return
	}

	data, err := encode(key, stats)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("encode").Inc()
		logger.Warn("Failed to encode stats", zap.String("key", key), zap.Error(err))
		return
	}

	if err := c.store.Set(ctx, key, data); err != nil {
		metrics.CacheErrors.WithLabelValues("set").Inc()
		logger.Warn("Stats store write failed", zap.String("key", key), zap.Error(err))
	}
}

func encode(key string, stats map[int]recommend.MovieStats) ([]byte, error) {
	return json.Marshal(payload{Key: key, Stats: recommend.SortedStats(stats)})
}

func decode(key string, data []byte) (map[int]recommend.MovieStats, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	if p.Key != key {
		return nil, fmt.Errorf("stats entry key %q does not match %q", p.Key, key)
	}

	stats := make(map[int]recommend.MovieStats, len(p.Stats))
	for _, s := range p.Stats {
		stats[s.MovieID] = s
	}
	return stats, nil
}
