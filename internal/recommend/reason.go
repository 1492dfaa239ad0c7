package recommend

import (
	"fmt"
	"strings"

	"github.com/movie-rec/backend/internal/storage/models"
)

// Explain builds the per-movie justification from the filter terms that
// matched and the rating evidence. Output depends only on its arguments.
func Explain(m models.Movie, tags []string, f StructuredFilter, st MovieStats) string {
	var parts []string

	if genres := matchGenres(m, f.Genres); len(genres) > 0 {
		parts = append(parts, "genre: "+strings.Join(genres, ", "))
	}

	if f.HasYearBounds() && m.Year != nil {
		parts = append(parts, fmt.Sprintf("year %d within %s", *m.Year, describeYearRange(f.MinYear, f.MaxYear)))
	}

	if kws := matchKeywords(tags, f.IncludeKeywords); len(kws) > 0 {
		parts = append(parts, "tags: "+strings.Join(kws, ", "))
	}

	mean, _ := st.Mean()
	parts = append(parts, fmt.Sprintf("%d ratings, mean %.2f", st.RatingCount, mean))

	return strings.Join(parts, "; ")
}

func describeYearRange(minYear, maxYear *int) string {
	switch {
	case minYear != nil && maxYear != nil:
		if *minYear == *maxYear {
			return fmt.Sprintf("%d", *minYear)
		}
		return fmt.Sprintf("%d-%d", *minYear, *maxYear)
	case minYear != nil:
		return fmt.Sprintf("from %d", *minYear)
	default:
		return fmt.Sprintf("up to %d", *maxYear)
	}
}
