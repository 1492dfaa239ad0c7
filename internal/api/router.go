// Package api assembles the HTTP surface: middleware chain, REST routes and
// the streaming websocket endpoint.
package api

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/movie-rec/backend/internal/api/handlers"
	"github.com/movie-rec/backend/internal/catalog"
	"github.com/movie-rec/backend/internal/metrics"
	"github.com/movie-rec/backend/internal/middleware/ratelimit"
	"github.com/movie-rec/backend/internal/middleware/security"
	"github.com/movie-rec/backend/internal/middleware/validation"
	"github.com/movie-rec/backend/pkg/config"
	"github.com/movie-rec/backend/pkg/logger"
)

const RecommendPath = "/api/v1/recommend"

// SnapshotSource reports the live catalog; nil means not ready.
type SnapshotSource interface {
	Snapshot() *catalog.Snapshot
}

type Dependencies struct {
	Queries  handlers.QueryService
	Reloader handlers.CatalogReloader
	Catalog  SnapshotSource
	Limiter  *ratelimit.RateLimiter
	// RequestLog toggles the per-request access log.
	RequestLog bool
}

func NewApp(cfg config.ServerConfig, deps Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		BodyLimit:    cfg.BodyLimit,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	app.Use(recover.New())
	if deps.RequestLog {
		app.Use(fiberlogger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins(cfg.AllowedOrigins),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		IsDevelopment:  cfg.IsDevelopment,
	}))

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		snap := deps.Catalog.Snapshot()
		if snap == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "loading",
			})
		}
		return c.JSON(fiber.Map{
			"status":      "ready",
			"movies":      len(snap.Movies),
			"ratings":     len(snap.Ratings),
			"fingerprint": snap.Fingerprint,
			"loaded_at":   snap.LoadedAt,
		})
	})

	if deps.Limiter != nil {
		api.Use(deps.Limiter.Middleware())
	}
	api.Use(validation.Middleware(validation.Config{
		MaxQueryLength: cfg.MaxQueryLength,
		QueryPaths:     []string{RecommendPath},
		Logger:         logger.GetLogger(),
	}))

	queryHandler := handlers.NewQueryHandler(deps.Queries)
	api.Post("/recommend", queryHandler.HandleRecommend)
	api.Get("/query/history", queryHandler.GetQueryHistory)

	if deps.Reloader != nil {
		api.Post("/catalog/reload", handlers.NewCatalogHandler(deps.Reloader).Reload)
	}

	wsHandler := handlers.NewWebSocketHandler(deps.Queries, time.Duration(cfg.WriteTimeout)*time.Second)
	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws", websocket.New(wsHandler.HandleConnection))

	return app
}

func allowOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ", ")
}
