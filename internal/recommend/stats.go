package recommend

import "github.com/movie-rec/backend/internal/storage/models"

const statsCacheKeyPrefix = "movie-stats:v1:"

// StatsCacheKey derives the cache key for an aggregation over a ratings
// snapshot. Aggregation takes no filter-dependent parameters, so the ratings
// fingerprint is the whole key.
func StatsCacheKey(fingerprint string) string {
	return statsCacheKeyPrefix + fingerprint
}

// Aggregate computes rating count and mean per movie. Movies without ratings
// are absent from the result.
func Aggregate(ratings []models.Rating) map[int]MovieStats {
	sums := make(map[int]float64)
	counts := make(map[int]int)

	for _, r := range ratings {
		sums[r.MovieID] += r.Rating
		counts[r.MovieID]++
	}

	stats := make(map[int]MovieStats, len(counts))
	for id, n := range counts {
		stats[id] = MovieStats{
			MovieID:     id,
			RatingCount: n,
			RatingMean:  sums[id] / float64(n),
		}
	}
	return stats
}
