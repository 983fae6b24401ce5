package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmatch/engine/internal/cache"
	"github.com/campusmatch/engine/internal/config"
)

func newCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := &config.Config{}
	cfg.Redis.Addr = mr.Addr()
	c := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestSwipeCount_IncrOnlyWhenCached(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t)

	// miss stays a miss
	require.NoError(t, c.IncrSwipeCount(ctx, 7, "2024-05-01"))
	_, ok, err := c.GetSwipeCount(ctx, 7, "2024-05-01")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetSwipeCount(ctx, 7, "2024-05-01", 3))
	require.NoError(t, c.IncrSwipeCount(ctx, 7, "2024-05-01"))

	n, ok, err := c.GetSwipeCount(ctx, 7, "2024-05-01")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(4), n)
}

func TestLikeCount_TTLRefresh(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)

	require.NoError(t, c.SetLikeCount(ctx, 1, 12))
	mr.FastForward(30 * time.Minute)

	n, ok, err := c.GetLikeCount(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(12), n)
	assert.Equal(t, time.Hour, mr.TTL(c.KeyForLikeCount(1)))

	require.NoError(t, c.InvalidateLikeCount(ctx, 1))
	_, ok, _ = c.GetLikeCount(ctx, 1)
	assert.False(t, ok)
}

func TestMarkOnce(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t)

	first, err := c.MarkOnce(ctx, "k", time.Minute)
	require.NoError(t, err)
	second, err := c.MarkOnce(ctx, "k", time.Minute)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}

func TestGetCount_CorruptValueIsMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)
	require.NoError(t, mr.Set("likes:count:9", "abc"))

	_, ok, err := c.GetLikeCount(ctx, 9)
	require.NoError(t, err)
	assert.False(t, ok)
}
