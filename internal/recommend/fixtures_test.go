package recommend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/movie-rec/backend/internal/catalog"
	"github.com/movie-rec/backend/internal/storage/models"
)

func intPtr(v int) *int { return &v }

func movie(id int, title string, year *int, genres string) models.Movie {
	return models.Movie{MovieID: id, Title: title, Year: year, Genres: genres}
}

// ratingsFor returns n ratings of value for movieID from users 1..n.
func ratingsFor(movieID, n int, value float64) []models.Rating {
	out := make([]models.Rating, 0, n)
	for u := 1; u <= n; u++ {
		out = append(out, models.Rating{UserID: u, MovieID: movieID, Rating: value, Timestamp: int64(u)})
	}
	return out
}

// comedyCatalog is ten comedies: five released 1990-2000, three tagged
// "horror" (one in range), two in range below the 20-rating threshold, and
// one without a year. Exactly 101 and 102 satisfy the comedy/1990-2000/no
// horror request.
func comedyCatalog() ([]models.Movie, []models.Rating, []models.Tag) {
	movies := []models.Movie{
		movie(101, "Alpha (1994)", intPtr(1994), "Comedy"),
		movie(102, "Bravo (1998)", intPtr(1998), "Comedy|Romance"),
		movie(103, "Charlie (1996)", intPtr(1996), "Comedy"),
		movie(104, "Delta (1992)", intPtr(1992), "Comedy"),
		movie(105, "Echo (2000)", intPtr(2000), "Comedy"),
		movie(106, "Foxtrot (1985)", intPtr(1985), "Comedy"),
		movie(107, "Golf (2010)", intPtr(2010), "Comedy|Horror"),
		movie(108, "Hotel (1989)", intPtr(1989), "Comedy"),
		movie(109, "India (2001)", intPtr(2001), "Comedy"),
		movie(110, "Juliet", nil, "Comedy"),
	}

	var ratings []models.Rating
	ratings = append(ratings, ratingsFor(101, 40, 4.0)...)
	ratings = append(ratings, ratingsFor(102, 25, 4.5)...)
	ratings = append(ratings, ratingsFor(103, 50, 3.0)...)
	ratings = append(ratings, ratingsFor(104, 5, 5.0)...)
	ratings = append(ratings, ratingsFor(105, 19, 5.0)...)
	ratings = append(ratings, ratingsFor(106, 100, 3.5)...)
	ratings = append(ratings, ratingsFor(107, 100, 2.0)...)
	ratings = append(ratings, ratingsFor(108, 60, 3.0)...)
	ratings = append(ratings, ratingsFor(109, 60, 3.0)...)
	ratings = append(ratings, ratingsFor(110, 60, 4.0)...)

	tags := []models.Tag{
		{UserID: 1, MovieID: 103, Tag: "Horror comedy", Timestamp: 1},
		{UserID: 1, MovieID: 106, Tag: "HORROR", Timestamp: 1},
		{UserID: 2, MovieID: 107, Tag: "gory horror", Timestamp: 1},
		{UserID: 3, MovieID: 101, Tag: "road trip", Timestamp: 1},
		{UserID: 4, MovieID: 102, Tag: "wedding", Timestamp: 1},
		{UserID: 5, MovieID: 102, Tag: "heartwarming", Timestamp: 1},
	}
	return movies, ratings, tags
}

func comedySnapshot(t *testing.T) *catalog.Snapshot {
	t.Helper()
	movies, ratings, tags := comedyCatalog()
	snap, err := catalog.NewSnapshot(movies, ratings, tags)
	require.NoError(t, err)
	return snap
}

func ids(movies []models.Movie) []int {
	out := make([]int, len(movies))
	for i, m := range movies {
		out[i] = m.MovieID
	}
	return out
}

func rankedIDs(ranked []Ranked) []int {
	out := make([]int, len(ranked))
	for i, r := range ranked {
		out[i] = r.Movie.MovieID
	}
	return out
}

func recIDs(recs []Recommendation) []int {
	out := make([]int, len(recs))
	for i, r := range recs {
		out[i] = r.MovieID
	}
	return out
}
