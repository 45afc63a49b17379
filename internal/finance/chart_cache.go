package finance

import (
	"sync"
	"time"
)

const (
	chartCacheTTL = 10 * time.Minute
	chartCacheMax = 256
)

type chartCacheEntry struct {
	createdAt time.Time
	image     []byte
}

// chartStore is an in-process TTL cache of rendered charts keyed by
// kind and run id.
type chartStore struct {
	mu      sync.Mutex
	entries map[string]chartCacheEntry
	now     func() time.Time
}

var renderedCharts = &chartStore{entries: map[string]chartCacheEntry{}, now: time.Now}

func chartKey(kind, key string) string { return kind + "-" + key }

func (c *chartStore) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.createdAt.Add(chartCacheTTL)) {
		delete(c.entries, key)
		return nil, false
	}
	img := make([]byte, len(entry.image))
	copy(img, entry.image)
	return img, true
}

func (c *chartStore) set(key string, img []byte) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if now.After(e.createdAt.Add(chartCacheTTL)) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.createdAt.Before(oldest) {
			oldestKey, oldest = k, e.createdAt
		}
	}
	if len(c.entries) >= chartCacheMax && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
	c.entries[key] = chartCacheEntry{createdAt: now, image: img}
}
