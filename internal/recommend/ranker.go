package recommend

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/movie-rec/backend/internal/storage/models"
	"github.com/movie-rec/backend/pkg/logger"
)

const (
	DefaultMinRatingCount = 20
	DefaultTopK           = 30
	DefaultReturnK        = 10
	DefaultCountWeight    = 0.25
)

type RankParams struct {
	MinRatingCount int
	TopK           int
	ReturnK        int
	// CountWeight scales the popularity term of the score.
	CountWeight float64
}

func DefaultRankParams() RankParams {
	return RankParams{
		MinRatingCount: DefaultMinRatingCount,
		TopK:           DefaultTopK,
		ReturnK:        DefaultReturnK,
		CountWeight:    DefaultCountWeight,
	}
}

func (p RankParams) withDefaults() RankParams {
	if p.MinRatingCount < 1 {
		p.MinRatingCount = 1
	}
	if p.TopK <= 0 {
		p.TopK = DefaultTopK
	}
	if p.ReturnK <= 0 {
		p.ReturnK = DefaultReturnK
	}
	if p.ReturnK > p.TopK {
		p.ReturnK = p.TopK
	}
	if p.CountWeight < 0 {
		p.CountWeight = 0
	}
	return p
}

// Score combines quality and popularity:
//
//	score = ratingMean + w * ln(1 + ratingCount)
//
// Both terms increase monotonically and the count term grows logarithmically.
func Score(st MovieStats, countWeight float64) float64 {
	return st.RatingMean + countWeight*math.Log1p(float64(st.RatingCount))
}

// Rank drops candidates below the evidence threshold, scores and orders the
// rest, and returns at most ReturnK of them.
func Rank(candidates []models.Movie, stats map[int]MovieStats, p RankParams) []Ranked {
	p = p.withDefaults()
	ranked := rankWindow(candidates, stats, p)
	if len(ranked) > p.ReturnK {
		ranked = ranked[:p.ReturnK]
	}
	return ranked
}

// rankWindow is the internal stage: ordered survivors truncated to TopK.
func rankWindow(candidates []models.Movie, stats map[int]MovieStats, p RankParams) []Ranked {
	ranked := make([]Ranked, 0, len(candidates))
	for _, m := range candidates {
		st, ok := stats[m.MovieID]
		if !ok || st.RatingCount < p.MinRatingCount {
			continue
		}
		if _, defined := st.Mean(); !defined {
			logger.Warn("Rejecting candidate without a defined rating mean",
				zap.Int("movie_id", m.MovieID),
				zap.Int("rating_count", st.RatingCount),
			)
			continue
		}
		ranked = append(ranked, Ranked{
			Movie: m,
			Stats: st,
			Score: Score(st, p.CountWeight),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Stats.RatingCount != b.Stats.RatingCount {
			return a.Stats.RatingCount > b.Stats.RatingCount
		}
		return a.Movie.MovieID < b.Movie.MovieID
	})

	if len(ranked) > p.TopK {
		ranked = ranked[:p.TopK]
	}
	return ranked
}
