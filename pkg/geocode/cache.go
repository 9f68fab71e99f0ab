package geocode

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"aegis_router/pkg/geo"
	"aegis_router/pkg/metrics"
)

type cacheEntry struct {
	coord   geo.Coordinate
	err     error // only ErrNotFound is cached
	expires time.Time
}

// DefaultCacheSize bounds a Cached created with a non-positive size.
const DefaultCacheSize = 10000

// Cached remembers answers of another geocoder for a TTL. Unknown names are
// cached too; outages are not. Concurrent lookups of the same name share one
// upstream call. Expired entries are swept at most once per TTL, and at most
// size names are held.
type Cached struct {
	next  Geocoder
	ttl   time.Duration
	size  int
	clock func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	swept   time.Time
	group   singleflight.Group
}

// NewCached wraps next with a TTL cache holding up to size names.
func NewCached(next Geocoder, ttl time.Duration, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cached{next: next, ttl: ttl, size: size, clock: time.Now, entries: make(map[string]cacheEntry)}
}

func (c *Cached) Resolve(ctx context.Context, name string) (geo.Coordinate, error) {
	key := normalize(name)
	if e, ok := c.lookup(key); ok {
		metrics.GeocodeLookups.WithLabelValues("cache", "hit").Inc()
		return e.coord, e.err
	}
	metrics.GeocodeLookups.WithLabelValues("cache", "miss").Inc()

	v, err, _ := c.group.Do(key, func() (any, error) {
		// The upstream call outlives any single caller's cancellation.
		coord, err := c.next.Resolve(context.WithoutCancel(ctx), name)
		if err == nil || errors.Is(err, ErrNotFound) {
			c.store(key, cacheEntry{coord: coord, err: err, expires: c.clock().Add(c.ttl)})
		}
		return coord, err
	})
	if err != nil {
		return geo.Coordinate{}, err
	}
	return v.(geo.Coordinate), nil
}

func (c *Cached) lookup(key string) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return cacheEntry{}, false
	}
	if c.clock().After(e.expires) {
		delete(c.entries, key)
		return cacheEntry{}, false
	}
	return e, true
}

func (c *Cached) store(key string, e cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if now.Sub(c.swept) > c.ttl {
		for k, old := range c.entries {
			if now.After(old.expires) {
				delete(c.entries, k)
			}
		}
		c.swept = now
	}
	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.size {
		c.evictOldest()
	}
	c.entries[key] = e
}

// evictOldest drops the entry closest to expiry.
func (c *Cached) evictOldest() {
	var victim string
	var first time.Time
	for k, e := range c.entries {
		if first.IsZero() || e.expires.Before(first) {
			victim, first = k, e.expires
		}
	}
	delete(c.entries, victim)
}

// Len returns the number of cached names. Some may have expired but not yet
// been swept.
func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
