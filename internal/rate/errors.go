package rate

import "errors"

var (
	// ErrRateLimited is returned once a user exceeds the create budget of the window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
