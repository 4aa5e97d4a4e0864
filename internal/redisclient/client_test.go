package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/assert"
)

func newTestClient(t *testing.T) *Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromRedisClient(rdb)
}

func TestDuplicateCandidateRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, found, err := c.GetDuplicateCandidate(ctx, 1, "+14155551234")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.CacheDuplicateCandidate(ctx, 1, "+14155551234", 42, time.Minute))

	leadID, found, err := c.GetDuplicateCandidate(ctx, 1, "+14155551234")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(42), leadID)
}

func TestPolicyCacheRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	raw := []byte(`{"strategy":"priority"}`)
	require.NoError(t, c.CachePolicy(ctx, "routing", 9, raw, time.Minute))

	got, found, err := c.GetPolicy(ctx, "routing", 9)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, raw, got)
}

func TestIdempotencyKeyCheck(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	seen, err := c.CheckIdempotencyKey(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, c.SetIdempotencyKey(ctx, "abc", 1, time.Minute))

	seen, err = c.CheckIdempotencyKey(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, seen)
}
