package finance

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChartStore(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &chartStore{entries: map[string]chartCacheEntry{}, now: func() time.Time { return now }}

	c.set(chartKey("surface", "run1"), []byte{1, 2})
	img, ok := c.get("surface-run1")
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2}, img)

	img[0] = 9
	again, _ := c.get("surface-run1")
	assert.Equal(t, byte(1), again[0], "callers get a copy")

	now = now.Add(chartCacheTTL + time.Second)
	_, ok = c.get("surface-run1")
	assert.False(t, ok)
	assert.Empty(t, c.entries)
}

func TestChartStore_EvictsOldest(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &chartStore{entries: map[string]chartCacheEntry{}, now: func() time.Time { return now }}
	for i := 0; i < chartCacheMax; i++ {
		c.set(fmt.Sprintf("k%d", i), []byte{byte(i)})
		now = now.Add(time.Millisecond)
	}
	c.set("newest", []byte{0})
	assert.Len(t, c.entries, chartCacheMax)
	_, ok := c.get("k0")
	assert.False(t, ok)
	_, ok = c.get("newest")
	assert.True(t, ok)
}
