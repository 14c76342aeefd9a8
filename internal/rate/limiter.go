package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the create limiter tuning.
type Config struct {
	Enabled    bool
	Prefix     string
	MaxCreates int
	Window     time.Duration
}

// Limiter enforces the per-user create budget. A nil or disabled Limiter
// allows everything.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "og"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Limiter) key(userID string) string {
	return l.config.Prefix + ":rc:" + userID
}

// AllowCreate counts one create attempt for userID and returns ErrRateLimited
// when the window budget is exhausted.
func (l *Limiter) AllowCreate(ctx context.Context, userID string) error {
	if l == nil || !l.config.Enabled {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.key(userID), l.config.Window)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxCreates) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: TTL only on the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
