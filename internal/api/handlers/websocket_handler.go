package handlers

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/movie-rec/backend/internal/query"
	"github.com/movie-rec/backend/internal/recommend"
	"github.com/movie-rec/backend/pkg/logger"
)

const defaultSocketQueryTimeout = 30 * time.Second

type socketRequest struct {
	Type    string                      `json:"type"`
	Content string                      `json:"content"`
	UserID  string                      `json:"user_id"`
	Filter  *recommend.StructuredFilter `json:"filter"`
}

type socketMessage struct {
	Type    string                    `json:"type"`
	Content string                    `json:"content,omitempty"`
	Error   string                    `json:"error,omitempty"`
	Result  *recommend.Recommendation `json:"result,omitempty"`
	Rank    int                       `json:"rank,omitempty"`

	ID          string                      `json:"id,omitempty"`
	Explanation string                      `json:"explanation,omitempty"`
	Parser      string                      `json:"parser,omitempty"`
	Filter      *recommend.StructuredFilter `json:"filter,omitempty"`
	Count       *int                        `json:"count,omitempty"`
	LatencyMS   *int                        `json:"latency_ms,omitempty"`
}

type WebSocketHandler struct {
	queryEngine QueryService
	timeout     time.Duration
}

func NewWebSocketHandler(queryEngine QueryService, timeout time.Duration) *WebSocketHandler {
	if timeout <= 0 {
		timeout = defaultSocketQueryTimeout
	}
	return &WebSocketHandler{
		queryEngine: queryEngine,
		timeout:     timeout,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	send := func(msg socketMessage) error { return c.WriteJSON(msg) }

	for {
		var req socketRequest
		if err := c.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("Failed to read WebSocket message", zap.Error(err))
			}
			return
		}

		if req.Type != "query" {
			continue
		}

		logger.Info("Processing WebSocket query", zap.String("query", req.Content))

		if err := h.streamResponse(send, req); err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			return
		}
	}
}

// streamResponse answers one request: a status message, one result message
// per recommendation in rank order, then a completion summary. Pipeline
// failures become an error message; only write failures are returned.
func (h *WebSocketHandler) streamResponse(send func(socketMessage) error, req socketRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := send(socketMessage{Type: "status", Content: "Processing query..."}); err != nil {
		return err
	}

	response, err := h.queryEngine.ProcessQuery(ctx, query.QueryRequest{
		Query:  req.Content,
		UserID: req.UserID,
		Filter: req.Filter,
	})
	if err != nil {
		_, msg := queryErrorStatus(err)
		return send(socketMessage{Type: "error", Error: msg})
	}

	for i := range response.Results {
		if err := send(socketMessage{Type: "result", Rank: i + 1, Result: &response.Results[i]}); err != nil {
			return err
		}
	}

	count := len(response.Results)
	return send(socketMessage{
		Type:        "complete",
		ID:          response.ID,
		Explanation: response.Explanation,
		Parser:      response.Parser,
		Filter:      &response.Filter,
		Count:       &count,
		LatencyMS:   &response.LatencyMS,
	})
}
