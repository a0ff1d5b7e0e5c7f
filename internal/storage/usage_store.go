package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mfromawe/hyperhash/pkg/pg"
	"github.com/mfromawe/hyperhash/pkg/usage"
)

// UsageStore persists per-period usage counters in PostgreSQL. The
// increment is a single upsert so concurrent calls for the same user
// serialize on the row and no update is lost.
type UsageStore struct {
	pool *pgxpool.Pool
}

// NewUsageStore creates a usage store on the given pool.
func NewUsageStore(pool *pgxpool.Pool) *UsageStore {
	return &UsageStore{pool: pool}
}

// Get implements usage.Store.
func (s *UsageStore) Get(ctx context.Context, userID uuid.UUID, periodStart time.Time) (*usage.Record, error) {
	var rec usage.Record
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, period_start, period_end, used, last_used_at
		FROM usage_records
		WHERE user_id = $1 AND period_start = $2`,
		userID, periodStart).Scan(
		&rec.UserID, &rec.PeriodStart, &rec.PeriodEnd, &rec.Used, &rec.LastUsedAt)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, usage.ErrNotFound
		}
		return nil, fmt.Errorf("storage: get usage record: %w", err)
	}
	return &rec, nil
}

// Increment implements usage.Store.
func (s *UsageStore) Increment(ctx context.Context, userID uuid.UUID, periodStart, periodEnd time.Time, delta int64) (int64, error) {
	if delta <= 0 {
		return 0, usage.ErrInvalidDelta
	}

	var total int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO usage_records (user_id, period_start, period_end, used, last_used_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, period_start) DO UPDATE SET
			used = usage_records.used + EXCLUDED.used,
			last_used_at = now()
		RETURNING used`,
		userID, periodStart, periodEnd, delta).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("storage: increment usage: %w", err)
	}
	return total, nil
}
