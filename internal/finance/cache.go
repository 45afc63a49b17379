package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"portfolioOptimizer/internal/metrics"
	"portfolioOptimizer/internal/optimizer"
)

// LiveSeriesTTL bounds how long a series whose window reaches into the
// current day is reused. Its last close may still be moving.
const LiveSeriesTTL = 15 * time.Minute

// CachedProvider is a read-through cache in front of a Provider. Caches are
// consulted in order; a hit in a later cache back-fills the earlier ones.
// Concurrent fetches of the same key share one upstream call.
type CachedProvider struct {
	upstream Provider
	caches   []PriceCache
	group    singleflight.Group
	log      zerolog.Logger
	now      func() time.Time
}

func NewCachedProvider(upstream Provider, log zerolog.Logger, caches ...PriceCache) *CachedProvider {
	return &CachedProvider{
		upstream: upstream,
		caches:   caches,
		log:      log.With().Str("component", "price_cache").Logger(),
		now:      time.Now,
	}
}

// CacheKey identifies a daily series by ticker and calendar window.
func CacheKey(ticker string, start, end time.Time) string {
	return fmt.Sprintf("prices:%s:%s:%s", ticker, start.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02"))
}

func (c *CachedProvider) Fetch(ctx context.Context, ticker string, start, end time.Time) ([]optimizer.PricePoint, error) {
	key := CacheKey(ticker, start, end)
	ttl := c.ttlFor(end)

	for i, cache := range c.caches {
		points, ok, err := cache.GetPrices(ctx, key)
		if err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("cache: read failed, bypassing")
			continue
		}
		if ok && len(points) > 0 {
			metrics.PriceFetches.WithLabelValues("cache").Inc()
			c.fill(ctx, key, points, ttl, c.caches[:i])
			return points, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		points, err := c.upstream.Fetch(ctx, ticker, start, end)
		if err != nil {
			return nil, err
		}
		c.fill(ctx, key, points, ttl, c.caches)
		return points, nil
	})
	if err != nil {
		metrics.PriceFetches.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.PriceFetches.WithLabelValues("upstream").Inc()
	points := v.([]optimizer.PricePoint)
	out := make([]optimizer.PricePoint, len(points))
	copy(out, points)
	return out, nil
}

// ttlFor returns LiveSeriesTTL for windows that include today's session
// and 0, the cache default, for settled history.
func (c *CachedProvider) ttlFor(end time.Time) time.Duration {
	today := c.now().UTC().Truncate(24 * time.Hour)
	if end.After(today) {
		return LiveSeriesTTL
	}
	return 0
}

func (c *CachedProvider) fill(ctx context.Context, key string, points []optimizer.PricePoint, ttl time.Duration, caches []PriceCache) {
	for _, cache := range caches {
		if err := cache.PutPrices(ctx, key, points, ttl); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("cache: write failed")
		}
	}
}
