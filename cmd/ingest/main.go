package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/movie-rec/backend/internal/cache"
	"github.com/movie-rec/backend/internal/catalog"
	"github.com/movie-rec/backend/internal/ingestion"
	"github.com/movie-rec/backend/internal/recommend"
	"github.com/movie-rec/backend/internal/storage/sqlite"
	"github.com/movie-rec/backend/pkg/config"
	appLogger "github.com/movie-rec/backend/pkg/logger"
)

func main() {
	dir := flag.String("dir", "", "MovieLens export directory (defaults to catalog.movielensDir)")
	dbPath := flag.String("db", "", "SQLite database path (defaults to sqlite.path)")
	warm := flag.Bool("warm", true, "precompute rating statistics into the configured cache store")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dir != "" {
		cfg.Catalog.MovieLensDir = *dir
	}
	if *dbPath != "" {
		cfg.SQLite.Path = *dbPath
	}

	if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *warm); err != nil {
		appLogger.Error("Ingestion failed", zap.Error(err))
		appLogger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, warm bool) error {
	db, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.InitSchema(); err != nil {
		return err
	}

	if _, err := ingestion.NewLoader(db).Load(ctx, cfg.Catalog.MovieLensDir); err != nil {
		return err
	}

	snap, err := catalog.Load(ctx, db)
	if err != nil {
		return err
	}

	if !warm || cfg.Cache.Backend == config.CacheBackendNone {
		return nil
	}

	// The catalog is committed by now; a store that cannot be opened only
	// costs the warm-up.
	statsCache := cache.OpenStatsCache(cfg.Cache.Backend, cache.BackendOpener(cfg))
	defer statsCache.Close()
	if !statsCache.Persistent() {
		return nil
	}

	key := recommend.StatsCacheKey(snap.Fingerprint)
	stats := statsCache.GetOrCompute(ctx, key, func() map[int]recommend.MovieStats {
		return recommend.Aggregate(snap.Ratings)
	})
	statsCache.Invalidate(ctx, key)

	appLogger.Info("Rating statistics warmed",
		zap.String("backend", cfg.Cache.Backend),
		zap.Int("movies_with_ratings", len(stats)),
	)
	return nil
}
