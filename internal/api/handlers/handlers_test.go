package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movie-rec/backend/internal/catalog"
	"github.com/movie-rec/backend/internal/query"
	"github.com/movie-rec/backend/internal/recommend"
	"github.com/movie-rec/backend/internal/storage/models"
)

type stubService struct {
	req      query.QueryRequest
	resp     *query.QueryResponse
	err      error
	records  []models.QueryRecord
	histErr  error
	histUser string
	limit    int
}

func (s *stubService) ProcessQuery(ctx context.Context, req query.QueryRequest) (*query.QueryResponse, error) {
	s.req = req
	return s.resp, s.err
}

func (s *stubService) History(ctx context.Context, userID string, limit int) ([]models.QueryRecord, error) {
	s.histUser, s.limit = userID, limit
	return s.records, s.histErr
}

var sampleResponse = &query.QueryResponse{
	ID:          "q-1",
	Query:       "90s comedy",
	Filter:      recommend.StructuredFilter{Genres: []string{"comedy"}},
	Parser:      query.ParserHeuristic,
	Explanation: query.DefaultExplanation,
	Results: []recommend.Recommendation{
		{MovieID: 1, Title: "Clerks (1994)", Genres: "Comedy", RatingCount: 25, RatingMean: 4.5, RatingMeanText: "4.50"},
		{MovieID: 2, Title: "Friday (1995)", Genres: "Comedy", RatingCount: 22, RatingMean: 4.1, RatingMeanText: "4.10"},
	},
	LatencyMS: 3,
}

func newTestApp(svc QueryService, reloader CatalogReloader) *fiber.App {
	app := fiber.New(fiber.Config{
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})
	qh := NewQueryHandler(svc)
	app.Post("/api/v1/recommend", qh.HandleRecommend)
	app.Get("/api/v1/query/history", qh.GetQueryHistory)
	if reloader != nil {
		app.Post("/api/v1/catalog/reload", NewCatalogHandler(reloader).Reload)
	}
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return resp.StatusCode, out
}

func TestHandleRecommend_Success(t *testing.T) {
	svc := &stubService{resp: sampleResponse}
	app := newTestApp(svc, nil)

	status, body := doJSON(t, app, "POST", "/api/v1/recommend",
		`{"query":"90s comedy","user_id":"u1","filter":{"genres":["Comedy"],"min_year":1990}}`)

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "q-1", body["id"])
	assert.Equal(t, query.ParserHeuristic, body["parser"])
	results, ok := body["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, "Clerks (1994)", first["title"])
	assert.Equal(t, "4.50", first["rating_mean_text"])

	assert.Equal(t, "90s comedy", svc.req.Query)
	assert.Equal(t, "u1", svc.req.UserID)
	require.NotNil(t, svc.req.Filter)
	assert.Equal(t, []string{"Comedy"}, svc.req.Filter.Genres)
	assert.Equal(t, 1990, *svc.req.Filter.MinYear)
}

func TestHandleRecommend_ErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{query.ErrEmptyQuery, fiber.StatusBadRequest},
		{fmt.Errorf("%w: min_year", query.ErrInvalidFilter), fiber.StatusBadRequest},
		{fmt.Errorf("failed to recommend: %w", recommend.ErrCatalogNotLoaded), fiber.StatusServiceUnavailable},
		{context.DeadlineExceeded, fiber.StatusGatewayTimeout},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			app := newTestApp(&stubService{err: tc.err}, nil)
			status, body := doJSON(t, app, "POST", "/api/v1/recommend", `{"query":"x"}`)
			assert.Equal(t, tc.status, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandleRecommend_MalformedBody(t *testing.T) {
	app := newTestApp(&stubService{resp: sampleResponse}, nil)
	status, body := doJSON(t, app, "POST", "/api/v1/recommend", `{"query":`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Invalid request body", body["error"])
}

func TestGetQueryHistory(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &stubService{records: []models.QueryRecord{
		{ID: "q-1", UserID: "u1", QueryText: "90s comedy", FilterJSON: `{"genres":["comedy"]}`, ParserKind: "heuristic", ResultCount: 2, CreatedAt: created},
	}}
	app := newTestApp(svc, nil)

	status, body := doJSON(t, app, "GET", "/api/v1/query/history?user_id=u1&limit=5", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "u1", svc.histUser)
	assert.Equal(t, 5, svc.limit)

	history := body["history"].([]any)
	require.Len(t, history, 1)
	entry := history[0].(map[string]any)
	assert.Equal(t, "90s comedy", entry["query"])
	assert.Equal(t, float64(2), entry["result_count"])
}

func TestGetQueryHistory_Validation(t *testing.T) {
	app := newTestApp(&stubService{}, nil)

	status, _ := doJSON(t, app, "GET", "/api/v1/query/history", "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = doJSON(t, app, "GET", "/api/v1/query/history?user_id=u1&limit=-3", "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	svc := &stubService{}
	status, body := doJSON(t, newTestApp(svc, nil), "GET", "/api/v1/query/history?user_id=u1", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, query.DefaultHistoryLimit, svc.limit)
	assert.Empty(t, body["history"])

	svc = &stubService{histErr: errors.New("db closed")}
	status, _ = doJSON(t, newTestApp(svc, nil), "GET", "/api/v1/query/history?user_id=u1", "")
	assert.Equal(t, fiber.StatusInternalServerError, status)
}

type stubReloader struct {
	res *catalog.ReloadResult
	err error
}

func (s stubReloader) Reload(ctx context.Context) (*catalog.ReloadResult, error) {
	return s.res, s.err
}

func TestCatalogReload(t *testing.T) {
	app := newTestApp(&stubService{}, stubReloader{res: &catalog.ReloadResult{
		Movies: 3, Ratings: 75, Fingerprint: "abc", Changed: true, Took: 12 * time.Millisecond,
	}})
	status, body := doJSON(t, app, "POST", "/api/v1/catalog/reload", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(3), body["movies"])
	assert.Equal(t, true, body["changed"])
	assert.Equal(t, float64(12), body["took_ms"])

	app = newTestApp(&stubService{}, stubReloader{err: errors.New("ratings.csv: missing column rating")})
	status, _ = doJSON(t, app, "POST", "/api/v1/catalog/reload", "")
	assert.Equal(t, fiber.StatusInternalServerError, status)
}

func TestStreamResponse_SendsResultsThenComplete(t *testing.T) {
	svc := &stubService{resp: sampleResponse}
	h := NewWebSocketHandler(svc, time.Second)

	var sent []socketMessage
	err := h.streamResponse(func(m socketMessage) error {
		sent = append(sent, m)
		return nil
	}, socketRequest{Type: "query", Content: "90s comedy", UserID: "u1"})
	require.NoError(t, err)

	require.Len(t, sent, 4)
	assert.Equal(t, "status", sent[0].Type)
	assert.Equal(t, "result", sent[1].Type)
	assert.Equal(t, 1, sent[1].Rank)
	assert.Equal(t, "Clerks (1994)", sent[1].Result.Title)
	assert.Equal(t, 2, sent[2].Rank)

	done := sent[3]
	assert.Equal(t, "complete", done.Type)
	assert.Equal(t, "q-1", done.ID)
	assert.Equal(t, query.DefaultExplanation, done.Explanation)
	assert.Equal(t, 2, *done.Count)
	assert.Equal(t, "u1", svc.req.UserID)
}

func TestStreamResponse_PipelineErrorBecomesMessage(t *testing.T) {
	h := NewWebSocketHandler(&stubService{err: query.ErrEmptyQuery}, 0)

	var sent []socketMessage
	err := h.streamResponse(func(m socketMessage) error {
		sent = append(sent, m)
		return nil
	}, socketRequest{Type: "query"})
	require.NoError(t, err)

	require.Len(t, sent, 2)
	assert.Equal(t, "error", sent[1].Type)
	assert.Equal(t, "Query is required", sent[1].Error)
}

func TestStreamResponse_WriteFailureStops(t *testing.T) {
	h := NewWebSocketHandler(&stubService{resp: sampleResponse}, time.Second)

	writes := 0
	err := h.streamResponse(func(m socketMessage) error {
		writes++
		if m.Type == "result" {
			return errors.New("broken pipe")
		}
		return nil
	}, socketRequest{Type: "query", Content: "x"})
	assert.Error(t, err)
	assert.Equal(t, 2, writes)
}

func TestSocketMessage_CompleteEncodesZeroCount(t *testing.T) {
	zero := 0
	data, err := json.Marshal(socketMessage{Type: "complete", Count: &zero, LatencyMS: &zero})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"count":0`)
	assert.Contains(t, string(data), `"latency_ms":0`)
}
