package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExplain_ListsMatchedDimensions(t *testing.T) {
	m := movie(102, "Bravo (1998)", intPtr(1998), "Comedy|Romance")
	f := StructuredFilter{
		Genres:          []string{"romance", "comedy", "war"},
		MinYear:         intPtr(1990),
		MaxYear:         intPtr(2000),
		IncludeKeywords: []string{"wedding", "zombie"},
	}
	st := MovieStats{MovieID: 102, RatingCount: 25, RatingMean: 4.5}

	got := Explain(m, []string{"Wedding party"}, f, st)
	assert.Equal(t, "genre: romance, comedy; year 1998 within 1990-2000; tags: wedding; 25 ratings, mean 4.50", got)
}

func TestExplain_EmptyFilterOnlyEvidence(t *testing.T) {
	m := movie(1, "A", intPtr(2001), "Drama")
	st := MovieStats{MovieID: 1, RatingCount: 1234, RatingMean: 3.876}

	assert.Equal(t, "1234 ratings, mean 3.88", Explain(m, nil, StructuredFilter{}, st))
}

func TestExplain_OpenYearRanges(t *testing.T) {
	m := movie(1, "A", intPtr(2005), "Drama")
	st := MovieStats{MovieID: 1, RatingCount: 20, RatingMean: 4}

	assert.Contains(t, Explain(m, nil, StructuredFilter{MinYear: intPtr(2000)}, st), "year 2005 within from 2000")
	assert.Contains(t, Explain(m, nil, StructuredFilter{MaxYear: intPtr(2010)}, st), "year 2005 within up to 2010")
	assert.Contains(t, Explain(m, nil, StructuredFilter{MinYear: intPtr(2005), MaxYear: intPtr(2005)}, st), "year 2005 within 2005;")
}

func TestExplain_Stable(t *testing.T) {
	m := movie(1, "A", intPtr(1995), "Comedy|Drama")
	f := StructuredFilter{Genres: []string{"drama", "comedy"}, MinYear: intPtr(1990)}
	st := MovieStats{MovieID: 1, RatingCount: 20, RatingMean: 4.25}

	first := Explain(m, []string{"x"}, f, st)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Explain(m, []string{"x"}, f, st))
	}
}
