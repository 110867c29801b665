package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// commandTimeout bounds reads and writes so a slow Redis degrades travel
// lookups to the routing API instead of stalling them.
const commandTimeout = 500 * time.Millisecond

// Connect parses redisURL, creates a client, and verifies connectivity with a ping.
// Read and write timeouts not set in the URL default to commandTimeout.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = commandTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = commandTimeout
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis %s: %w", opts.Addr, err)
	}

	return client, nil
}
