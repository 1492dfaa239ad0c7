package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/movie-rec/backend/internal/query"
	"github.com/movie-rec/backend/internal/recommend"
	"github.com/movie-rec/backend/internal/storage/models"
	"github.com/movie-rec/backend/pkg/logger"
)

// QueryService is the part of query.Engine the HTTP layer drives.
type QueryService interface {
	ProcessQuery(ctx context.Context, req query.QueryRequest) (*query.QueryResponse, error)
	History(ctx context.Context, userID string, limit int) ([]models.QueryRecord, error)
}

type QueryHandler struct {
	queryEngine QueryService
}

func NewQueryHandler(queryEngine QueryService) *QueryHandler {
	return &QueryHandler{
		queryEngine: queryEngine,
	}
}

type recommendRequest struct {
	Query  string                      `json:"query"`
	UserID string                      `json:"user_id"`
	Filter *recommend.StructuredFilter `json:"filter"`
}

type historyEntry struct {
	ID          string    `json:"id"`
	Query       string    `json:"query"`
	Filter      string    `json:"filter"`
	Parser      string    `json:"parser"`
	ResultCount int       `json:"result_count"`
	Explanation string    `json:"explanation"`
	LatencyMS   int       `json:"latency_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *QueryHandler) HandleRecommend(c *fiber.Ctx) error {
	var req recommendRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	response, err := h.queryEngine.ProcessQuery(c.UserContext(), query.QueryRequest{
		Query:  req.Query,
		UserID: req.UserID,
		Filter: req.Filter,
	})
	if err != nil {
		status, msg := queryErrorStatus(err)
		if status >= fiber.StatusInternalServerError {
			logger.Error("Failed to process query", zap.Error(err))
		}
		return c.Status(status).JSON(fiber.Map{
			"error": msg,
		})
	}

	return c.JSON(response)
}

func (h *QueryHandler) GetQueryHistory(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	limit := c.QueryInt("limit", query.DefaultHistoryLimit)
	if limit < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be a positive integer",
		})
	}

	records, err := h.queryEngine.History(c.UserContext(), userID, limit)
	if err != nil {
		logger.Error("Failed to load query history", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load query history",
		})
	}

	history := make([]historyEntry, 0, len(records))
	for _, r := range records {
		history = append(history, historyEntry{
			ID:          r.ID,
			Query:       r.QueryText,
			Filter:      r.FilterJSON,
			Parser:      r.ParserKind,
			ResultCount: r.ResultCount,
			Explanation: r.Explanation,
			LatencyMS:   r.LatencyMS,
			CreatedAt:   r.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"user_id": userID,
		"history": history,
	})
}

// queryErrorStatus maps pipeline errors to an HTTP status and a client-safe
// message.
func queryErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, query.ErrEmptyQuery):
		return fiber.StatusBadRequest, "Query is required"
	case errors.Is(err, query.ErrInvalidFilter):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, recommend.ErrCatalogNotLoaded):
		return fiber.StatusServiceUnavailable, "Catalog is not loaded"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "Query timed out"
	default:
		return fiber.StatusInternalServerError, "Failed to process query"
	}
}
