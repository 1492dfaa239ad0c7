package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movie-rec/backend/internal/storage/models"
)

type fakeTarget struct {
	snap atomic.Pointer[Snapshot]
}

func (f *fakeTarget) SetSnapshot(s *Snapshot) *Snapshot { return f.snap.Swap(s) }

func (f *fakeTarget) StatsKey() (string, error) {
	s := f.snap.Load()
	if s == nil {
		return "", errors.New("no snapshot")
	}
	return "key:" + s.Fingerprint, nil
}

type recordingInvalidator struct {
	kept []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, keep string) {
	r.kept = append(r.kept, keep)
}

func reloadSource() *fakeSource {
	return &fakeSource{
		movies:  []models.Movie{{MovieID: 1, Title: "A (1990)", Genres: "Drama"}},
		ratings: []models.Rating{{UserID: 1, MovieID: 1, Rating: 4, Timestamp: 1}},
		tags:    []models.Tag{{UserID: 1, MovieID: 1, Tag: "slow", Timestamp: 1}},
	}
}

func TestReloader_PublishesAndInvalidatesOnChange(t *testing.T) {
	src := reloadSource()
	target := &fakeTarget{}
	inv := &recordingInvalidator{}
	r := NewReloader(src, target, inv, nil)

	res, err := r.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 1, res.Movies)
	assert.Equal(t, 1, res.Tags)
	require.Len(t, inv.kept, 1)
	assert.Equal(t, "key:"+res.Fingerprint, inv.kept[0])

	// Same ratings: no invalidation.
	res, err = r.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Len(t, inv.kept, 1)

	src.ratings = append(src.ratings, models.Rating{UserID: 2, MovieID: 1, Rating: 2, Timestamp: 1})
	res, err = r.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Len(t, inv.kept, 2)
}

func TestReloader_FailureKeepsPreviousSnapshot(t *testing.T) {
	src := reloadSource()
	target := &fakeTarget{}
	r := NewReloader(src, target, nil, nil)

	_, err := r.Reload(context.Background())
	require.NoError(t, err)
	live := target.snap.Load()

	src.ratings = append(src.ratings, models.Rating{UserID: 3, MovieID: 1, Rating: 9, Timestamp: 1})
	_, err = r.Reload(context.Background())
	require.Error(t, err)
	assert.Same(t, live, target.snap.Load())
}

func TestReloader_IngestRunsFirst(t *testing.T) {
	target := &fakeTarget{}
	ingested := 0
	r := NewReloader(reloadSource(), target, nil, func(ctx context.Context) error {
		ingested++
		return nil
	})

	_, err := r.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ingested)

	failing := NewReloader(reloadSource(), target, nil, func(ctx context.Context) error {
		return errors.New("missing ratings.csv")
	})
	_, err = failing.Reload(context.Background())
	assert.Error(t, err)
}
