package recommend

import (
	"sort"
	"strings"

	"github.com/movie-rec/backend/internal/storage/models"
)

// MovieStats is the per-movie rating aggregate. The mean is undefined when
// RatingCount is zero.
type MovieStats struct {
	MovieID     int     `json:"movie_id"`
	RatingCount int     `json:"rating_count"`
	RatingMean  float64 `json:"rating_mean"`
}

func (s MovieStats) Mean() (float64, bool) {
	if s.RatingCount <= 0 {
		return 0, false
	}
	return s.RatingMean, true
}

// StructuredFilter is the machine-readable form of a free-text request.
// Nil bounds mean "unset". MaxRuntime is carried for the caller's benefit but
// the catalog has no runtime attribute, so it never constrains results.
type StructuredFilter struct {
	Genres          []string `json:"genres" validate:"max=20,dive,max=40"`
	MinYear         *int     `json:"min_year" validate:"omitempty,gte=1870,lte=2100"`
	MaxYear         *int     `json:"max_year" validate:"omitempty,gte=1870,lte=2100"`
	MaxRuntime      *int     `json:"max_runtime" validate:"omitempty,gt=0,lte=1000"`
	IncludeKeywords []string `json:"include_keywords" validate:"max=20,dive,max=100"`
	ExcludeKeywords []string `json:"exclude_keywords" validate:"max=20,dive,max=100"`
}

// Normalize lower-cases and de-duplicates the set fields, drops blanks, and
// swaps inverted year bounds.
func (f StructuredFilter) Normalize() StructuredFilter {
	out := StructuredFilter{
		Genres:          normalizeSet(f.Genres),
		IncludeKeywords: normalizeSet(f.IncludeKeywords),
		ExcludeKeywords: normalizeSet(f.ExcludeKeywords),
		MinYear:         copyInt(f.MinYear),
		MaxYear:         copyInt(f.MaxYear),
		MaxRuntime:      copyInt(f.MaxRuntime),
	}
	if out.MinYear != nil && out.MaxYear != nil && *out.MinYear > *out.MaxYear {
		out.MinYear, out.MaxYear = out.MaxYear, out.MinYear
	}
	return out
}

// IsEmpty reports whether the filter constrains nothing.
func (f StructuredFilter) IsEmpty() bool {
	return len(f.Genres) == 0 && f.MinYear == nil && f.MaxYear == nil &&
		len(f.IncludeKeywords) == 0 && len(f.ExcludeKeywords) == 0
}

func (f StructuredFilter) HasYearBounds() bool {
	return f.MinYear != nil || f.MaxYear != nil
}

func normalizeSet(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Ranked is a scored candidate that survived the evidence threshold.
type Ranked struct {
	Movie models.Movie
	Stats MovieStats
	Score float64
}

// Recommendation is the presentation-ready result record.
type Recommendation struct {
	MovieID        int     `json:"movie_id"`
	Title          string  `json:"title"`
	Year           *int    `json:"year,omitempty"`
	Genres         string  `json:"genres"`
	RatingCount    int     `json:"rating_count"`
	RatingMean     float64 `json:"rating_mean"`
	RatingMeanText string  `json:"rating_mean_text"`
	Score          float64 `json:"score"`
	Reason         string  `json:"reason"`
}

// SortedStats flattens a stats map into movieId order.
func SortedStats(stats map[int]MovieStats) []MovieStats {
	out := make([]MovieStats, 0, len(stats))
	for _, s := range stats {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MovieID < out[j].MovieID })
	return out
}
