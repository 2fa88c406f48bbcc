package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/rueidisaside"
)

// Compile-time interface check.
var _ Cache = (*RueidisAsideCache)(nil)

// RueidisAsideCache implements Cache using rueidisaside for the cache-aside
// pattern. Uses rueidis' automatic client-side caching with RESP3 protocol
// for cache invalidation. Suitable for multi-instance deployments.
type RueidisAsideCache struct {
	client    rueidisaside.CacheAsideClient
	keyPrefix string
	clientTTL time.Duration
}

// NewRueidisAsideCache creates a new Redis cache with client-side caching.
// clientTTL is the local cache TTL; Redis invalidates the local copy when
// keys change.
func NewRueidisAsideCache(
	addr, password string,
	db int,
	keyPrefix string,
	clientTTL time.Duration,
) (*RueidisAsideCache, error) {
	client, err := rueidisaside.NewClient(rueidisaside.ClientOption{
		ClientOption: rueidis.ClientOption{
			InitAddress: []string{addr},
			Password:    password,
			SelectDB:    db,
			// Client-side caching enabled
			DisableCache:      false,
			CacheSizeEachConn: 64 * 1024 * 1024, // 64MB per connection
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rueidisaside client: %w", err)
	}

	return &RueidisAsideCache{
		client:    client,
		keyPrefix: keyPrefix,
		clientTTL: clientTTL,
	}, nil
}

// Get retrieves a value from Redis with client-side caching.
func (r *RueidisAsideCache) Get(ctx context.Context, key string) (string, error) {
	fullKey := r.keyPrefix + key

	val, err := r.client.Get(
		ctx,
		r.clientTTL,
		fullKey,
		func(ctx context.Context, key string) (string, error) {
			// Signal a miss instead of fetching; callers populate via Set.
			return "", ErrCacheMiss
		},
	)
	if err != nil {
		if err == ErrCacheMiss {
			return "", ErrCacheMiss
		}
		return "", fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	if val == "" {
		return "", ErrCacheMiss
	}

	return val, nil
}

// Set stores a value in Redis with TTL.
func (r *RueidisAsideCache) Set(
	ctx context.Context,
	key, value string,
	ttl time.Duration,
) error {
	fullKey := r.keyPrefix + key

	cmd := r.client.Client().B().Set().
		Key(fullKey).
		Value(value).
		Ex(ttl).
		Build()

	if err := r.client.Client().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	return nil
}

// Delete removes a key from Redis.
func (r *RueidisAsideCache) Delete(ctx context.Context, key string) error {
	fullKey := r.keyPrefix + key

	cmd := r.client.Client().B().Del().Key(fullKey).Build()
	if err := r.client.Client().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	return nil
}

// Close closes the Redis connection.
func (r *RueidisAsideCache) Close() error {
	r.client.Close()
	return nil
}

// Health checks if Redis is reachable.
func (r *RueidisAsideCache) Health(ctx context.Context) error {
	cmd := r.client.Client().B().Ping().Build()
	if err := r.client.Client().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}
