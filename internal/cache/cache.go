package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/tripplanner/internal/directions"
)

// DefaultTTL is how long routing results stay cached when no TTL is configured.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "route:"

// RouteCache stores routing collaborator results in Redis.
type RouteCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRouteCache constructs a RouteCache. A non-positive ttl uses DefaultTTL.
func NewRouteCache(client *redis.Client, ttl time.Duration) *RouteCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RouteCache{client: client, ttl: ttl}
}

// Get retrieves a cached route.
// Returns nil, nil on a cache miss (not an error). A value that fails to
// decode is evicted.
func (c *RouteCache) Get(ctx context.Context, key string) (*directions.Route, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get for %s: %w", key, err)
	}

	var r directions.Route
	if err := json.Unmarshal([]byte(val), &r); err != nil {
		err = fmt.Errorf("unmarshaling cached route %s: %w", key, err)
		if delErr := c.Delete(ctx, key); delErr != nil {
			return nil, errors.Join(err, delErr)
		}
		return nil, err
	}

	return &r, nil
}

// Set stores a route with the configured TTL.
func (c *RouteCache) Set(ctx context.Context, key string, r directions.Route) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling route %s: %w", key, err)
	}

	if err := c.client.Set(ctx, keyPrefix+key, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set for %s: %w", key, err)
	}

	return nil
}

// Delete removes the cached entry for key.
func (c *RouteCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("cache delete for %s: %w", key, err)
	}
	return nil
}
