// Package cache stores rendered views in Redis and invalidates them by logical path.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "view:"

// ViewCache caches JSON-encoded views keyed by path and variant. Invalidating a path bumps
// its version, which orphans every variant cached under the old version.
type ViewCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewViewCache creates a cache whose entries live for ttl.
func NewViewCache(client *redis.Client, ttl time.Duration) *ViewCache {
	return &ViewCache{client: client, ttl: ttl}
}

// Load reads the cached view into dst. The returned version must be passed to Store when
// refilling after a miss, so a refill that races an invalidation lands on a dead version.
func (c *ViewCache) Load(ctx context.Context, path, variant string, dst any) (int64, bool, error) {
	version, err := c.version(ctx, path)
	if err != nil {
		return 0, false, err
	}
	raw, err := c.client.Get(ctx, entryKey(path, version, variant)).Bytes()
	if errors.Is(err, redis.Nil) {
		return version, false, nil
	}
	if err != nil {
		return version, false, fmt.Errorf("cache get %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return version, false, fmt.Errorf("cache decode %s: %w", path, err)
	}
	return version, true, nil
}

// Store writes value under the given version.
func (c *ViewCache) Store(ctx context.Context, path string, version int64, variant string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", path, err)
	}
	if err := c.client.Set(ctx, entryKey(path, version, variant), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", path, err)
	}
	return nil
}

// Invalidate marks every cached rendering of path as stale.
func (c *ViewCache) Invalidate(ctx context.Context, path string) error {
	if err := c.client.Incr(ctx, versionKey(path)).Err(); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", path, err)
	}
	return nil
}

func (c *ViewCache) version(ctx context.Context, path string) (int64, error) {
	version, err := c.client.Get(ctx, versionKey(path)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache version %s: %w", path, err)
	}
	return version, nil
}

func versionKey(path string) string {
	return keyPrefix + "version:" + path
}

func entryKey(path string, version int64, variant string) string {
	return fmt.Sprintf("%s%s:%d:%s", keyPrefix, path, version, variant)
}
