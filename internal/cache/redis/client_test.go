package redis

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a live server when MOVIEREC_TEST_REDIS_ADDR is set, e.g.
// "localhost:6379". DB 15 is flushed of stats keys by the test.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("MOVIEREC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MOVIEREC_TEST_REDIS_ADDR not set")
	}

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	c, err := NewClient(host, port, "", 15)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Prune(context.Background(), "")
		_ = c.Close()
	})
	return c
}

func TestClient_RoundTripAndPrune(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, found, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "old", []byte("1")))
	require.NoError(t, c.Set(ctx, "new", []byte("2")))
	require.NoError(t, c.Prune(ctx, "new"))

	_, found, err = c.Get(ctx, "old")
	require.NoError(t, err)
	assert.False(t, found)

	data, found, err := c.Get(ctx, "new")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("2"), data)
}
