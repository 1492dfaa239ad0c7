package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/movie-rec/backend/internal/recommend"
)

type stubWriter struct {
	text    string
	err     error
	titles  []string
	reasons []string
}

func (s *stubWriter) ExplainRecommendations(ctx context.Context, query string, titles, reasons []string) (string, error) {
	s.titles, s.reasons = titles, reasons
	return s.text, s.err
}

var twoRecs = []recommend.Recommendation{
	{MovieID: 102, Title: "Bravo (1998)", Reason: "genre: comedy; 25 ratings, mean 4.50"},
	{MovieID: 101, Title: "Alpha (1994)", Reason: "genre: comedy; 40 ratings, mean 4.00"},
}

func TestTemplateExplainer(t *testing.T) {
	var e TemplateExplainer
	assert.Equal(t, NoMatchesExplanation, e.Explain(context.Background(), "q", nil))
	assert.Equal(t, DefaultExplanation, e.Explain(context.Background(), "q", twoRecs))
}

func TestModelExplainer_PassesTitlesAndReasons(t *testing.T) {
	w := &stubWriter{text: "Two beloved 90s comedies."}

	got := NewModelExplainer(w).Explain(context.Background(), "90s comedy", twoRecs)
	assert.Equal(t, "Two beloved 90s comedies.", got)
	assert.Equal(t, []string{"Bravo (1998)", "Alpha (1994)"}, w.titles)
	assert.Equal(t, "genre: comedy; 40 ratings, mean 4.00", w.reasons[1])
}

func TestModelExplainer_Fallbacks(t *testing.T) {
	e := NewModelExplainer(&stubWriter{err: errors.New("timeout")})
	assert.Equal(t, DefaultExplanation, e.Explain(context.Background(), "q", twoRecs))

	e = NewModelExplainer(&stubWriter{})
	assert.Equal(t, DefaultExplanation, e.Explain(context.Background(), "q", twoRecs))

	w := &stubWriter{text: "unused"}
	assert.Equal(t, NoMatchesExplanation, NewModelExplainer(w).Explain(context.Background(), "q", nil))
	assert.Nil(t, w.titles, "no model call for an empty result")
}

func TestNewExplainer_Selection(t *testing.T) {
	_, ok := NewExplainer(nil).(TemplateExplainer)
	assert.True(t, ok)

	_, ok = NewExplainer(&stubWriter{}).(*ModelExplainer)
	assert.True(t, ok)
}
