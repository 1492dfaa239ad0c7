package recommend

import (
	"strings"

	"github.com/movie-rec/backend/internal/storage/models"
)

// Evaluate returns the movies that satisfy f, in input order. Checks run
// genre, year, exclude, include. f is expected to be normalized.
func Evaluate(movies []models.Movie, tagsByMovie map[int][]string, f StructuredFilter) []models.Movie {
	out := make([]models.Movie, 0, len(movies))
	for _, m := range movies {
		if !matchesGenres(m, f.Genres) {
			continue
		}
		if !matchesYear(m.Year, f.MinYear, f.MaxYear) {
			continue
		}
		tags := tagsByMovie[m.MovieID]
		if len(f.ExcludeKeywords) > 0 && len(matchKeywords(tags, f.ExcludeKeywords)) > 0 {
			continue
		}
		if len(f.IncludeKeywords) > 0 && len(matchKeywords(tags, f.IncludeKeywords)) == 0 {
			continue
		}
		out = append(out, m)
	}
	return out
}

func matchesGenres(m models.Movie, want []string) bool {
	if len(want) == 0 {
		return true
	}
	return len(matchGenres(m, want)) > 0
}

// matchGenres returns the wanted genres the movie carries, in filter order.
// Comparison is case-insensitive on whole genre names.
func matchGenres(m models.Movie, want []string) []string {
	have := m.GenreList()
	if len(have) == 0 || len(want) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(have))
	for _, g := range have {
		set[strings.ToLower(g)] = struct{}{}
	}

	var matched []string
	for _, g := range want {
		if _, ok := set[strings.ToLower(g)]; ok {
			matched = append(matched, g)
		}
	}
	return matched
}

// matchesYear: without bounds every movie passes; with any bound set a movie
// with no derivable year fails.
func matchesYear(year, minYear, maxYear *int) bool {
	if minYear == nil && maxYear == nil {
		return true
	}
	if year == nil {
		return false
	}
	if minYear != nil && *year < *minYear {
		return false
	}
	if maxYear != nil && *year > *maxYear {
		return false
	}
	return true
}

// matchKeywords returns the keywords found as case-insensitive substrings of
// any tag, in keyword order.
func matchKeywords(tags, keywords []string) []string {
	if len(tags) == 0 {
		return nil
	}
	lowered := make([]string, len(tags))
	for i, t := range tags {
		lowered[i] = strings.ToLower(t)
	}

	var matched []string
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		for _, t := range lowered {
			if strings.Contains(t, kw) {
				matched = append(matched, kw)
				break
			}
		}
	}
	return matched
}
