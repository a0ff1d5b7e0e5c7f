package ratelimit

import (
	"context"
	"time"
)

// Result contains the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed in the window.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// ResetAt is the time when the current window ends and the counter
	// starts over.
	ResetAt time.Time
}

// RetryAfter returns how long to wait before the next request is allowed.
// Returns 0 if the current request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Limiter checks and consumes rate limit slots.
type Limiter interface {
	// Allow consumes one slot for the given key and reports whether the
	// request is within the limit.
	Allow(ctx context.Context, key string) (*Result, error)

	// Reset clears the counter for the given key.
	Reset(ctx context.Context, key string) error
}

// Store is the counter backend for the fixed window algorithm.
type Store interface {
	// IncrWindow atomically increments the counter for the key, starting
	// a fresh window when none is active, and returns the new count and
	// the time the window ends.
	IncrWindow(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)

	// Delete removes the counter for the key.
	Delete(ctx context.Context, key string) error
}
