package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/movie-rec/backend/internal/catalog"
	"github.com/movie-rec/backend/pkg/logger"
)

type CatalogReloader interface {
	Reload(ctx context.Context) (*catalog.ReloadResult, error)
}

type CatalogHandler struct {
	reloader CatalogReloader
}

func NewCatalogHandler(reloader CatalogReloader) *CatalogHandler {
	return &CatalogHandler{
		reloader: reloader,
	}
}

// Reload re-ingests the MovieLens files and publishes a fresh snapshot.
func (h *CatalogHandler) Reload(c *fiber.Ctx) error {
	res, err := h.reloader.Reload(c.UserContext())
	if err != nil {
		logger.Error("Failed to reload catalog", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to reload catalog",
		})
	}

	return c.JSON(fiber.Map{
		"message":     "Catalog reloaded",
		"movies":      res.Movies,
		"ratings":     res.Ratings,
		"tags":        res.Tags,
		"fingerprint": res.Fingerprint,
		"changed":     res.Changed,
		"took_ms":     res.Took.Milliseconds(),
	})
}
