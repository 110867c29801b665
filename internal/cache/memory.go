package cache

import (
	"context"
	"sync"
	"time"

	"github.com/neexbeast/tripplanner/internal/directions"
)

type memoryEntry struct {
	route     directions.Route
	expiresAt time.Time
}

// MemoryCache is an in-process route cache used when Redis is not configured.
// Expired entries are evicted lazily on read and by Sweep.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache constructs a MemoryCache. A non-positive ttl uses DefaultTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return NewMemoryCacheWithClock(ttl, time.Now)
}

// NewMemoryCacheWithClock constructs a MemoryCache with an injectable clock (used in tests).
func NewMemoryCacheWithClock(ttl time.Duration, now func() time.Time) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{entries: make(map[string]memoryEntry), ttl: ttl, now: now}
}

// Get returns nil, nil on a miss or an expired entry.
func (c *MemoryCache) Get(_ context.Context, key string) (*directions.Route, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, nil
	}
	r := e.route
	return &r, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, r directions.Route) error {
	c.mu.Lock()
	c.entries[key] = memoryEntry{route: r, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// Delete removes key. Missing keys are not an error.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Sweep removes every expired entry and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
