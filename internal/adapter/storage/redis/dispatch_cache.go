package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DispatchCache implements ports.DispatchCache using Redis. Keys arrive
// fully qualified from the settlement layer (`dispatch:<request-id>`).
type DispatchCache struct {
	client *goredis.Client
}

// NewDispatchCache creates a new Redis-backed dispatch cache.
func NewDispatchCache(client *goredis.Client) *DispatchCache {
	return &DispatchCache{client: client}
}

// Get retrieves a cached dispatch outcome.
// Returns nil, nil if the key does not exist.
func (c *DispatchCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis dispatch get: %w", err)
	}
	return val, nil
}

// Set stores a dispatch outcome with TTL.
func (c *DispatchCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.client.Set(ctx, key, value, ttl).Err()
	if err != nil {
		return fmt.Errorf("redis dispatch set: %w", err)
	}
	return nil
}
