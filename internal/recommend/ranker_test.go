package recommend

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movie-rec/backend/internal/storage/models"
)

func TestScore_Formula(t *testing.T) {
	st := MovieStats{MovieID: 1, RatingCount: 40, RatingMean: 4.0}
	assert.InDelta(t, 4.0+0.25*math.Log(41), Score(st, 0.25), 1e-12)
	assert.Equal(t, 4.0, Score(st, 0))
}

func TestScore_Monotonic(t *testing.T) {
	base := MovieStats{RatingCount: 50, RatingMean: 3.5}
	moreCount := MovieStats{RatingCount: 51, RatingMean: 3.5}
	higherMean := MovieStats{RatingCount: 50, RatingMean: 3.6}

	assert.Greater(t, Score(moreCount, 0.25), Score(base, 0.25))
	assert.Greater(t, Score(higherMean, 0.25), Score(base, 0.25))
}

func TestRank_ComedyExample(t *testing.T) {
	snap := comedySnapshot(t)
	f := StructuredFilter{
		Genres:          []string{"comedy"},
		MinYear:         intPtr(1990),
		MaxYear:         intPtr(2000),
		ExcludeKeywords: []string{"horror"},
	}
	candidates := Evaluate(snap.Movies, snap.TagsByMovie, f)

	ranked := Rank(candidates, Aggregate(snap.Ratings), RankParams{MinRatingCount: 20, TopK: 30, ReturnK: 5, CountWeight: 0.25})

	// 102: 4.5 + 0.25*ln(26) ~ 5.31; 101: 4.0 + 0.25*ln(41) ~ 4.93.
	assert.Equal(t, []int{102, 101}, rankedIDs(ranked))
}

func TestRank_EmptyFilterOrdering(t *testing.T) {
	snap := comedySnapshot(t)
	candidates := Evaluate(snap.Movies, snap.TagsByMovie, StructuredFilter{})

	ranked := Rank(candidates, Aggregate(snap.Ratings), RankParams{MinRatingCount: 20, TopK: 30, ReturnK: 10, CountWeight: 0.25})

	// 108 and 109 tie on score and count; movieId breaks the tie.
	assert.Equal(t, []int{102, 110, 101, 106, 108, 109, 103, 107}, rankedIDs(ranked))

	top5 := Rank(candidates, Aggregate(snap.Ratings), RankParams{MinRatingCount: 20, TopK: 30, ReturnK: 5, CountWeight: 0.25})
	assert.Equal(t, []int{102, 110, 101, 106, 108}, rankedIDs(top5))
}

func TestRank_TieBreakOnCountThenID(t *testing.T) {
	candidates := []models.Movie{movie(3, "C", nil, ""), movie(1, "A", nil, ""), movie(2, "B", nil, "")}
	stats := map[int]MovieStats{
		1: {MovieID: 1, RatingCount: 30, RatingMean: 4.0},
		2: {MovieID: 2, RatingCount: 50, RatingMean: 4.0},
		3: {MovieID: 3, RatingCount: 30, RatingMean: 4.0},
	}

	ranked := Rank(candidates, stats, RankParams{MinRatingCount: 1, TopK: 10, ReturnK: 10, CountWeight: 0})
	assert.Equal(t, []int{2, 1, 3}, rankedIDs(ranked))
}

func TestRank_ThresholdInvariant(t *testing.T) {
	snap := comedySnapshot(t)
	stats := Aggregate(snap.Ratings)

	for _, minCount := range []int{1, 20, 41, 60, 101} {
		ranked := Rank(snap.Movies, stats, RankParams{MinRatingCount: minCount, TopK: 30, ReturnK: 10})
		for _, r := range ranked {
			assert.GreaterOrEqual(t, r.Stats.RatingCount, minCount)
		}
	}

	assert.Empty(t, Rank(snap.Movies, stats, RankParams{MinRatingCount: 101, TopK: 30, ReturnK: 10}))
}

func TestRank_SizeInvariants(t *testing.T) {
	snap := comedySnapshot(t)
	stats := Aggregate(snap.Ratings)
	p := RankParams{MinRatingCount: 1, TopK: 4, ReturnK: 3}.withDefaults()

	window := rankWindow(snap.Movies, stats, p)
	assert.Len(t, window, 4)

	ranked := Rank(snap.Movies, stats, p)
	require.Len(t, ranked, 3)
	assert.Equal(t, rankedIDs(window[:3]), rankedIDs(ranked))
}

func TestRank_FewerSurvivorsThanReturnK(t *testing.T) {
	candidates := []models.Movie{movie(1, "A", nil, "")}
	stats := map[int]MovieStats{1: {MovieID: 1, RatingCount: 25, RatingMean: 3.0}}

	ranked := Rank(candidates, stats, DefaultRankParams())
	assert.Len(t, ranked, 1)

	assert.Empty(t, Rank(nil, stats, DefaultRankParams()))
}

func TestRank_RejectsCandidatesWithoutStats(t *testing.T) {
	candidates := []models.Movie{movie(1, "A", nil, ""), movie(2, "B", nil, "")}
	stats := map[int]MovieStats{
		2: {MovieID: 2, RatingCount: 0},
	}

	// A zero threshold is raised to one, so count-0 stats are never scored.
	ranked := Rank(candidates, stats, RankParams{MinRatingCount: 0, TopK: 10, ReturnK: 10})
	assert.Empty(t, ranked)
}

func TestRank_Deterministic(t *testing.T) {
	snap := comedySnapshot(t)
	stats := Aggregate(snap.Ratings)
	p := RankParams{MinRatingCount: 1, TopK: 30, ReturnK: 10, CountWeight: 0.25}

	first := Rank(snap.Movies, stats, p)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Rank(snap.Movies, stats, p))
	}
}

func TestRankParams_WithDefaultsClampsReturnK(t *testing.T) {
	p := RankParams{MinRatingCount: 5, TopK: 3, ReturnK: 10}.withDefaults()
	assert.Equal(t, 3, p.ReturnK)

	d := RankParams{}.withDefaults()
	assert.Equal(t, 1, d.MinRatingCount)
	assert.Equal(t, DefaultTopK, d.TopK)
	assert.Equal(t, DefaultReturnK, d.ReturnK)
}
