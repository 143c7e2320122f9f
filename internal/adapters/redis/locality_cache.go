// Package redis provides Redis-backed adapters for the BFF.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/universalbff/user-api/internal/ports"
)

// DefaultLocalityTTL bounds staleness of cached is-local-client decisions.
// Targets are static configuration, so an hour is generous.
const DefaultLocalityTTL = time.Hour

// LocalityCache caches per-client-id locality decisions so the facade does
// not hit the database on every authentication attempt. The cache is shared
// across replicas.
type LocalityCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ ports.Cache = (*LocalityCache)(nil)

// NewLocalityCache creates a LocalityCache with the default key prefix.
func NewLocalityCache(client redis.UniversalClient) *LocalityCache {
	return &LocalityCache{
		client: client,
		prefix: "client-locality:",
		ttl:    DefaultLocalityTTL,
	}
}

// Get returns the cached value for key, or nil when absent.
func (c *LocalityCache) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}

	result, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return []byte(result), nil
}

// Set stores the value for key with the cache TTL.
func (c *LocalityCache) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	return c.client.Set(ctx, c.prefix+key, value, c.ttl).Err()
}
