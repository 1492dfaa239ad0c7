package cache

import (
	"go.uber.org/zap"

	badgerstore "github.com/movie-rec/backend/internal/cache/badger"
	redisstore "github.com/movie-rec/backend/internal/cache/redis"
	"github.com/movie-rec/backend/internal/metrics"
	"github.com/movie-rec/backend/pkg/config"
	"github.com/movie-rec/backend/pkg/logger"
)

// Opener connects a persistent store.
type Opener func() (Store, error)

// BackendOpener returns the opener for the configured backend, or nil for the
// memory-only backend.
func BackendOpener(cfg *config.Config) Opener {
	switch cfg.Cache.Backend {
	case config.CacheBackendBadger:
		return func() (Store, error) {
			s, err := badgerstore.Open(cfg.Cache.Dir)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	case config.CacheBackendRedis:
		return func() (Store, error) {
			c, err := redisstore.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	default:
		return nil
	}
}

// OpenStatsCache builds the cache over the store open returns. A store that
// cannot be opened is logged and counted, and the cache runs memory-only.
func OpenStatsCache(backend string, open Opener) *StatsCache {
	if open == nil {
		logger.Info("Statistics cache is memory-only")
		return NewStatsCache(nil)
	}

	store, err := open()
	if err != nil {
		metrics.CacheErrors.WithLabelValues("open").Inc()
		logger.Warn("Stats store unavailable, continuing memory-only",
			zap.String("backend", backend),
			zap.Error(err),
		)
		return NewStatsCache(nil)
	}
	return NewStatsCache(store)
}

// Persistent reports whether the cache writes through to a store.
func (c *StatsCache) Persistent() bool {
	return c.store != nil
}
