// Package cache defines the cache port (interface).
package cache

import (
	"context"
	"time"
)

// Cache is an in-process byte cache with per-entry TTL. Misses are not
// errors; ok reports whether the key was present.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
