package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every Redis failure of the revocation store.
var ErrRedisUnavailable = errors.New("redis unavailable")

const minRevocationTTL = time.Second

// RevocationStore remembers signed-out sessions until their tokens would have
// expired anyway. Two kinds of entries exist:
//
//	{prefix}:rs:{sessionID}  a single revoked session
//	{prefix}:ru:{userID}     unix time; tokens issued at or before it are revoked
type RevocationStore struct {
	redis  redis.UniversalClient
	prefix string
	maxTTL time.Duration
}

// NewRevocationStore returns a store keyed under prefix. maxTTL bounds the
// user-wide watermark; it should be at least the access-token lifetime.
func NewRevocationStore(client redis.UniversalClient, prefix string, maxTTL time.Duration) *RevocationStore {
	if prefix == "" {
		prefix = "og"
	}
	if maxTTL <= 0 {
		maxTTL = time.Hour
	}
	return &RevocationStore{
		redis:  client,
		prefix: prefix,
		maxTTL: maxTTL,
	}
}

func (s *RevocationStore) sessionKey(sessionID string) string {
	return s.prefix + ":rs:" + sessionID
}

func (s *RevocationStore) userKey(userID string) string {
	return s.prefix + ":ru:" + userID
}

// Revoke marks sessionID as signed out until expiresAt. A zero expiresAt
// keeps the entry for maxTTL.
func (s *RevocationStore) Revoke(ctx context.Context, sessionID string, expiresAt time.Time) error {
	if sessionID == "" {
		return errors.New("session id required")
	}
	ttl := s.maxTTL
	if !expiresAt.IsZero() {
		ttl = time.Until(expiresAt)
	}
	if ttl < minRevocationTTL {
		ttl = minRevocationTTL
	}
	if err := s.redis.Set(ctx, s.sessionKey(sessionID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeAllForUser revokes every token of userID issued at or before at.
// Tokens issued later are unaffected, so signing in again works.
func (s *RevocationStore) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	if userID == "" {
		return errors.New("user id required")
	}
	if err := s.redis.Set(ctx, s.userKey(userID), strconv.FormatInt(at.Unix(), 10), s.maxTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether sess was signed out. Both entries are read in one
// round-trip.
func (s *RevocationStore) IsRevoked(ctx context.Context, sess *Session) (bool, error) {
	if sess == nil {
		return false, nil
	}

	keys := []string{s.userKey(sess.UserID)}
	if sess.SessionID != "" {
		keys = append(keys, s.sessionKey(sess.SessionID))
	}

	vals, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if len(vals) > 1 && vals[1] != nil {
		return true, nil
	}
	if raw, ok := vals[0].(string); ok {
		watermark, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			// A corrupt watermark must not lock the user out.
			return false, nil
		}
		if sess.IssuedAt.IsZero() || sess.IssuedAt.Unix() <= watermark {
			return true, nil
		}
	}
	return false, nil
}

// Ping checks Redis reachability and returns the round-trip latency.
func (s *RevocationStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
