package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheUnavailable wraps Redis failures of the existence cache.
var ErrCacheUnavailable = errors.New("existence cache redis unavailable")

// ExistenceCache remembers which onboarding records are known to exist.
type ExistenceCache struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewExistenceCache returns a cache writing keys {prefix}:rec:{kind}:{userID}.
func NewExistenceCache(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *ExistenceCache {
	if prefix == "" {
		prefix = "og"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ExistenceCache{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *ExistenceCache) key(kind, userID string) string {
	return c.prefix + ":rec:" + kind + ":" + userID
}

// Has reports whether a positive result is cached. A miss is (false, nil).
func (c *ExistenceCache) Has(ctx context.Context, kind, userID string) (bool, error) {
	if c == nil {
		return false, nil
	}
	n, err := c.redis.Exists(ctx, c.key(kind, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return n == 1, nil
}

// Mark records that kind exists for userID.
func (c *ExistenceCache) Mark(ctx context.Context, kind, userID string) error {
	if c == nil {
		return nil
	}
	if err := c.redis.Set(ctx, c.key(kind, userID), "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// TTL is the lifetime of a cached positive.
func (c *ExistenceCache) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}
