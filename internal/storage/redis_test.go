package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolioOptimizer/internal/optimizer"
)

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb, err := OpenRedis(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer rdb.Close()
	c := NewRedisCache(rdb, time.Minute)

	_, ok, err := c.GetPrices(ctx, "prices:MSFT")
	require.NoError(t, err)
	assert.False(t, ok)

	points := []optimizer.PricePoint{{Time: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), Close: 420.5}}
	require.NoError(t, c.PutPrices(ctx, "prices:MSFT", points, 0))

	got, ok, err := c.GetPrices(ctx, "prices:MSFT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, points, got)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.GetPrices(ctx, "prices:MSFT")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_ShorterTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb, err := OpenRedis(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer rdb.Close()
	c := NewRedisCache(rdb, time.Hour)

	points := []optimizer.PricePoint{{Time: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), Close: 420.5}}
	require.NoError(t, c.PutPrices(ctx, "prices:live", points, 10*time.Minute))
	assert.Equal(t, 10*time.Minute, mr.TTL("prices:live"))

	mr.FastForward(11 * time.Minute)
	_, ok, err := c.GetPrices(ctx, "prices:live")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("prices:X", "{not json"))
	rdb, err := OpenRedis(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer rdb.Close()

	_, ok, err := NewRedisCache(rdb, time.Minute).GetPrices(ctx, "prices:X")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("prices:X"))
}

func TestOpenRedis_BadURL(t *testing.T) {
	_, err := OpenRedis(context.Background(), "::nope")
	assert.Error(t, err)
}
