package query

import (
	"context"

	"go.uber.org/zap"

	"github.com/movie-rec/backend/internal/metrics"
	"github.com/movie-rec/backend/internal/recommend"
	"github.com/movie-rec/backend/pkg/logger"
)

const (
	NoMatchesExplanation = "No movies matched your request."
	DefaultExplanation   = "Recommendations based on your request and similarity of genres, tags, and popularity."
)

// Explainer writes the one-paragraph summary shown above the results.
type Explainer interface {
	Explain(ctx context.Context, query string, recs []recommend.Recommendation) string
}

// RecommendationWriter is the language model side of ModelExplainer.
type RecommendationWriter interface {
	ExplainRecommendations(ctx context.Context, query string, titles, reasons []string) (string, error)
}

type TemplateExplainer struct{}

func (TemplateExplainer) Explain(ctx context.Context, query string, recs []recommend.Recommendation) string {
	if len(recs) == 0 {
		return NoMatchesExplanation
	}
	return DefaultExplanation
}

// ModelExplainer asks a language model for prose and falls back to the
// template text on any failure.
type ModelExplainer struct {
	llm RecommendationWriter
}

func NewModelExplainer(llm RecommendationWriter) *ModelExplainer {
	return &ModelExplainer{llm: llm}
}

func (e *ModelExplainer) Explain(ctx context.Context, query string, recs []recommend.Recommendation) string {
	if len(recs) == 0 {
		return NoMatchesExplanation
	}

	titles := make([]string, len(recs))
	reasons := make([]string, len(recs))
	for i, r := range recs {
		titles[i] = r.Title
		reasons[i] = r.Reason
	}

	text, err := e.llm.ExplainRecommendations(ctx, query, titles, reasons)
	if err != nil || text == "" {
		metrics.ParserFallbacks.WithLabelValues("explain").Inc()
		logger.Warn("Model explanation failed, using template", zap.Error(err))
		return DefaultExplanation
	}
	return text
}

func NewExplainer(llm RecommendationWriter) Explainer {
	if llm == nil {
		return TemplateExplainer{}
	}
	return NewModelExplainer(llm)
}
