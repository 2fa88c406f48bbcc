// Package cache provides the optional resource-response cache backing the
// proxy endpoints. It stores the user's own activity/sleep payloads keyed
// by a token-derived hash; OAuth credentials themselves are never cached —
// the browser cookie stays the only credential store.
package cache

import (
	"context"
	"time"
)

// Cache defines the primitive operations for a key-value cache of raw
// response bodies.
type Cache interface {
	// Get retrieves a single value from cache.
	// Returns ErrCacheMiss if the key does not exist or has expired.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a single value in cache with TTL
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete removes a key from cache
	Delete(ctx context.Context, key string) error

	// Close closes the cache connection
	Close() error

	// Health checks if the cache is healthy
	Health(ctx context.Context) error
}
