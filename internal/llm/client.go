package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/movie-rec/backend/internal/metrics"
	"github.com/movie-rec/backend/pkg/circuitbreaker"
	"github.com/movie-rec/backend/pkg/config"
	"github.com/movie-rec/backend/pkg/logger"
	"github.com/movie-rec/backend/pkg/retry"
)

var ErrEmptyCompletion = errors.New("completion returned no choices")

type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// NewClient talks to any OpenAI-compatible chat endpoint. BaseURL selects a
// self-hosted server; otherwise the public API is used.
func NewClient(cfg config.LLMConfig) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      2,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		Logger:           logger.GetLogger(),
		OnStateChange: func(name, from, to string) {
			metrics.BreakerTransitions.WithLabelValues(name, to).Inc()
		},
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	logger.Info("LLM client initialized",
		zap.String("model", cfg.Model),
		zap.String("base_url", clientConfig.BaseURL),
	)

	return &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)
			if err != nil {
				err = fmt.Errorf("failed to create completion: %w", err)
				if !retryable(err) {
					return retry.Permanent(err)
				}
				return err
			}

			if len(resp.Choices) == 0 {
				return retry.Permanent(ErrEmptyCompletion)
			}

			metrics.LLMTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// retryable treats rate limiting, server errors and transport failures as
// transient. Other client errors will not improve on a second try.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusRetryable(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusRetryable(reqErr.HTTPStatusCode)
	}
	return !errors.Is(err, context.Canceled)
}

func statusRetryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError || code == 0
}

func (c *Client) ExtractFilter(ctx context.Context, query string) (string, error) {
	systemPrompt := `You convert movie requests into a strict, compact JSON object with keys:
genres (array of lowercase MovieLens genres), min_year, max_year, max_runtime (minutes),
include_keywords (array), exclude_keywords (array).
Only output JSON. If a field is unknown, use null or an empty array.`

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf("Query: %s", query),
		Temperature:  0.2,
		MaxTokens:    256,
	})
	if err != nil {
		return "", fmt.Errorf("failed to extract filter: %w", err)
	}

	return resp.Content, nil
}

func (c *Client) ExplainRecommendations(ctx context.Context, query string, titles, reasons []string) (string, error) {
	systemPrompt := "You write concise, helpful explanations for movie recommendations."

	userPrompt := fmt.Sprintf(`Write a short, friendly explanation (2-3 sentences) for the following movie recommendations.
User query: %s
Movies: %s
Reasons (per movie, terse phrases):
- %s`, query, strings.Join(titles, ", "), strings.Join(reasons, "\n- "))

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.4,
		MaxTokens:    300,
	})
	if err != nil {
		return "", fmt.Errorf("failed to explain recommendations: %w", err)
	}

	explanation := strings.TrimSpace(resp.Content)
	logger.Info("Explanation generated", zap.Int("length", len(explanation)))

	return explanation, nil
}
