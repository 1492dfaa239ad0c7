package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/movie-rec/backend/internal/api"
	"github.com/movie-rec/backend/internal/cache"
	"github.com/movie-rec/backend/internal/catalog"
	"github.com/movie-rec/backend/internal/ingestion"
	"github.com/movie-rec/backend/internal/llm"
	"github.com/movie-rec/backend/internal/metrics"
	"github.com/movie-rec/backend/internal/middleware/ratelimit"
	"github.com/movie-rec/backend/internal/query"
	"github.com/movie-rec/backend/internal/recommend"
	"github.com/movie-rec/backend/internal/storage/sqlite"
	"github.com/movie-rec/backend/pkg/config"
	appLogger "github.com/movie-rec/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting movie recommendation API server")
	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	ctx := context.Background()
	loader := ingestion.NewLoader(sqliteClient)

	if cfg.Catalog.LoadOnStart {
		count, err := sqliteClient.CountMovies(ctx)
		if err != nil {
			appLogger.Fatal("Failed to count movies", zap.Error(err))
		}
		if count == 0 {
			if _, err := loader.Load(ctx, cfg.Catalog.MovieLensDir); err != nil {
				appLogger.Fatal("Failed to ingest MovieLens export", zap.Error(err))
			}
		}
	}

	statsCache := cache.OpenStatsCache(cfg.Cache.Backend, cache.BackendOpener(cfg))
	defer statsCache.Close()

	recs := recommend.NewEngine(recommend.RankParams{
		MinRatingCount: cfg.Recs.MinRatingCount,
		TopK:           cfg.Recs.TopK,
		ReturnK:        cfg.Recs.ReturnK,
		CountWeight:    cfg.Recs.CountWeight,
	}, statsCache)

	var ingest func(ctx context.Context) error
	if cfg.Catalog.MovieLensDir != "" {
		ingest = func(ctx context.Context) error {
			_, err := loader.Load(ctx, cfg.Catalog.MovieLensDir)
			return err
		}
	}
	reloader := catalog.NewReloader(sqliteClient, recs, statsCache, ingest)

	// The startup load reads what is already in SQLite; re-ingestion runs on
	// demand through the reload endpoint.
	if _, err := catalog.NewReloader(sqliteClient, recs, statsCache, nil).Reload(ctx); err != nil {
		appLogger.Fatal("Failed to load catalog snapshot", zap.Error(err))
	}
	if _, err := recs.Stats(ctx); err != nil {
		appLogger.Warn("Failed to warm statistics cache", zap.Error(err))
	}

	parser, explainer := newLanguageLayer(cfg.LLM)
	queryEngine := query.NewEngine(recs, parser, explainer, sqliteClient)

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.MaxRequestsPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	app := api.NewApp(cfg.Server, api.Dependencies{
		Queries:    queryEngine,
		Reloader:   reloader,
		Catalog:    recs,
		Limiter:    limiter,
		RequestLog: cfg.Server.IsDevelopment,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

// newLanguageLayer picks model-backed parsing and explanation when an LLM is
// configured and the heuristic/template pair otherwise.
func newLanguageLayer(cfg config.LLMConfig) (query.Parser, query.Explainer) {
	if !cfg.Enabled {
		return query.NewParser(nil), query.NewExplainer(nil)
	}
	client := llm.NewClient(cfg)
	return query.NewParser(client), query.NewExplainer(client)
}
