package ratelimit

import (
	"context"
	"time"
)

// FixedWindow counts requests per key in fixed time windows. The first
// request of a window starts it; when the window elapses the next request
// starts a new one with the counter back at 1.
type FixedWindow struct {
	store  Store
	limit  int
	window time.Duration
}

// NewFixedWindow creates a fixed window limiter allowing limit requests
// per window.
func NewFixedWindow(store Store, limit int, window time.Duration) (*FixedWindow, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	return &FixedWindow{store: store, limit: limit, window: window}, nil
}

// Allow implements Limiter.
func (fw *FixedWindow) Allow(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	count, resetAt, err := fw.store.IncrWindow(ctx, key, fw.window)
	if err != nil {
		return nil, err
	}

	remaining := fw.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   count <= int64(fw.limit),
		Limit:     fw.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Reset implements Limiter.
func (fw *FixedWindow) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	return fw.store.Delete(ctx, key)
}
