package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movie-rec/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "movies.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema())
	return client
}

func intPtr(v int) *int { return &v }

func fixtureCatalog() ([]models.Movie, []models.Rating, []models.Tag) {
	movies := []models.Movie{
		{MovieID: 1, Title: "Toy Story (1995)", Year: intPtr(1995), Genres: "Adventure|Animation|Children|Comedy|Fantasy"},
		{MovieID: 2, Title: "Untitled Project", Genres: "(no genres listed)"},
	}
	ratings := []models.Rating{
		{UserID: 2, MovieID: 1, Rating: 3.5, Timestamp: 200},
		{UserID: 1, MovieID: 1, Rating: 4.0, Timestamp: 100},
		{UserID: 1, MovieID: 2, Rating: 2.5, Timestamp: 150},
	}
	tags := []models.Tag{
		{UserID: 1, MovieID: 1, Tag: "pixar", Timestamp: 100},
	}
	return movies, ratings, tags
}

func TestUpsertCatalog_IsIdempotent(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	movies, ratings, tags := fixtureCatalog()

	require.NoError(t, client.UpsertCatalog(ctx, movies, ratings, tags))

	firstMovies, err := client.FetchMovies(ctx)
	require.NoError(t, err)
	firstRatings, err := client.FetchRatings(ctx)
	require.NoError(t, err)
	firstTags, err := client.FetchTags(ctx)
	require.NoError(t, err)

	require.NoError(t, client.UpsertCatalog(ctx, movies, ratings, tags))

	secondMovies, err := client.FetchMovies(ctx)
	require.NoError(t, err)
	secondRatings, err := client.FetchRatings(ctx)
	require.NoError(t, err)
	secondTags, err := client.FetchTags(ctx)
	require.NoError(t, err)

	assert.Equal(t, firstMovies, secondMovies)
	assert.Equal(t, firstRatings, secondRatings)
	assert.Equal(t, firstTags, secondTags)
	assert.Len(t, secondRatings, 3)
}

func TestUpsertCatalog_ReplacesSameKey(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	movies, ratings, tags := fixtureCatalog()
	require.NoError(t, client.UpsertCatalog(ctx, movies, ratings, tags))

	updated := []models.Rating{{UserID: 1, MovieID: 1, Rating: 5.0, Timestamp: 300}}
	require.NoError(t, client.UpsertCatalog(ctx, nil, updated, nil))

	got, err := client.FetchRatings(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, models.Rating{UserID: 1, MovieID: 1, Rating: 5.0, Timestamp: 300}, got[0])
}

func TestFetch_OrdersAndNullableYear(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	movies, ratings, tags := fixtureCatalog()
	require.NoError(t, client.UpsertCatalog(ctx, movies, ratings, tags))

	gotMovies, err := client.FetchMovies(ctx)
	require.NoError(t, err)
	require.Len(t, gotMovies, 2)
	require.NotNil(t, gotMovies[0].Year)
	assert.Equal(t, 1995, *gotMovies[0].Year)
	assert.Nil(t, gotMovies[1].Year)

	gotRatings, err := client.FetchRatings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, gotRatings[0].UserID)
	assert.Equal(t, 1, gotRatings[0].MovieID)
	assert.Equal(t, 1, gotRatings[1].UserID)
	assert.Equal(t, 2, gotRatings[1].MovieID)
	assert.Equal(t, 2, gotRatings[2].UserID)

	n, err := client.CountMovies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestQueryHistory_RoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	older := &models.QueryRecord{
		ID: "q1", UserID: "u1", QueryText: "comedy", QueryHash: "h1", FilterJSON: "{}",
		ParserKind: "heuristic", ResultCount: 3, CreatedAt: time.Unix(1000, 0),
	}
	newer := &models.QueryRecord{
		ID: "q2", UserID: "u1", QueryText: "drama", QueryHash: "h2", FilterJSON: "{}",
		ParserKind: "heuristic", ResultCount: 0, CreatedAt: time.Unix(2000, 0),
	}
	other := &models.QueryRecord{ID: "q3", UserID: "u2", QueryText: "war", QueryHash: "h3", CreatedAt: time.Unix(3000, 0)}

	for _, r := range []*models.QueryRecord{older, newer, other} {
		require.NoError(t, client.InsertQueryRecord(ctx, r))
	}

	history, err := client.GetQueryHistory(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "q2", history[0].ID)
	assert.Equal(t, "q1", history[1].ID)
	assert.Equal(t, 3, history[1].ResultCount)

	limited, err := client.GetQueryHistory(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
