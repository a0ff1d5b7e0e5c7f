package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists usage counters keyed by (user, period start).
type Store interface {
	// Get retrieves the record for the given period.
	// Returns ErrNotFound when the user has not consumed anything yet.
	Get(ctx context.Context, userID uuid.UUID, periodStart time.Time) (*Record, error)

	// Increment atomically adds delta to the counter for the given period,
	// creating the record when missing, and returns the new total. Must
	// not lose updates under concurrent calls for the same user.
	Increment(ctx context.Context, userID uuid.UUID, periodStart, periodEnd time.Time, delta int64) (int64, error)
}
