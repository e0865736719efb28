package speedlimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/trip.report/internal/config"
	"github.com/banshee-data/trip.report/internal/timeutil"
)

// Cache memoises resolver results on a coordinate grid so that nearby
// queries collapse onto one entry and the external road-data source is not
// hammered once per cadence tick. Entries expire after a fixed TTL and the
// cache is capped: when full it evicts in insertion order (oldest insert
// first; reads do not refresh recency).
type Cache struct {
	resolver *Resolver
	clock    timeutil.Clock

	ttl        time.Duration
	maxEntries int
	precision  int

	mu      sync.Mutex
	entries map[string]cacheEntry
	order   []string // keys in insertion order
}

type cacheEntry struct {
	info     Info
	inserted time.Time
}

// NewCache wraps a resolver with a bounded, time-expiring grid cache.
// A nil tuning uses defaults; a nil clock uses the real clock.
func NewCache(resolver *Resolver, tuning *config.Tuning, clock timeutil.Clock) *Cache {
	if tuning == nil {
		tuning = config.EmptyTuning()
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Cache{
		resolver:   resolver,
		clock:      clock,
		ttl:        tuning.GetCacheTTL(),
		maxEntries: tuning.GetCacheMaxEntries(),
		precision:  tuning.GetGridPrecision(),
		entries:    make(map[string]cacheEntry),
	}
}

// GridKey quantizes a coordinate to the cache grid. Three decimal places is
// roughly a 100 m cell at mid latitudes.
func (c *Cache) GridKey(lat, lng float64) string {
	return fmt.Sprintf("%.*f,%.*f", c.precision, lat, c.precision, lng)
}

// Resolve returns the cached limit for the coordinate's grid cell, resolving
// and inserting on miss or expiry. Like Resolver.Resolve it never fails.
func (c *Cache) Resolve(ctx context.Context, lat, lng float64) Info {
	key := c.GridKey(lat, lng)
	now := c.clock.Now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && now.Sub(e.inserted) < c.ttl {
		c.mu.Unlock()
		return e.info
	}
	c.mu.Unlock()

	// Resolve outside the lock: the external query can take seconds and a
	// concurrent lookup for a different cell must not wait on it.
	info := c.resolver.Resolve(ctx, lat, lng)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.removeFromOrder(key)
	}
	c.entries[key] = cacheEntry{info: info, inserted: c.clock.Now()}
	c.order = append(c.order, key)

	for len(c.entries) > c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	return info
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
