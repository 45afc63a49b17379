package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"portfolioOptimizer/internal/optimizer"
)

// RedisCache is a shared hot cache for price series. Entries expire after
// ttl.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// OpenRedis parses a redis:// URL and pings the server.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) GetPrices(ctx context.Context, key string) ([]optimizer.PricePoint, bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var points []optimizer.PricePoint
	if err := json.Unmarshal(data, &points); err != nil {
		// corrupt entry: drop it and report a miss
		c.rdb.Del(ctx, key)
		return nil, false, nil
	}
	return points, true, nil
}

func (c *RedisCache) PutPrices(ctx context.Context, key string, points []optimizer.PricePoint, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	data, err := json.Marshal(points)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}
