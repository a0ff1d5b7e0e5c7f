package usage_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfromawe/hyperhash/pkg/billing"
	"github.com/mfromawe/hyperhash/pkg/plan"
	"github.com/mfromawe/hyperhash/pkg/subscription"
	"github.com/mfromawe/hyperhash/pkg/usage"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, subs subscription.Store) (*usage.Service, *usage.MemoryStore) {
	t.Helper()
	plans, err := plan.NewRegistry(context.Background(), plan.DefaultSource())
	require.NoError(t, err)
	store := usage.NewMemoryStore()
	svc := usage.NewService(store, subs, plans, slog.New(slog.DiscardHandler),
		usage.WithClock(func() time.Time { return testNow }))
	return svc, store
}

func TestService_GetUsage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("no subscription meters free plan on calendar month", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t, subscription.NewMemoryStore())

		got, err := svc.GetUsage(ctx, uuid.New())
		require.NoError(t, err)
		assert.Zero(t, got.Used)
		assert.Equal(t, int64(10), got.Quota)
		assert.False(t, got.LimitReached)
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got.PeriodStart)
		assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), got.PeriodEnd)
	})

	t.Run("active subscription uses its plan and period", func(t *testing.T) {
		t.Parallel()
		subs := subscription.NewMemoryStore()
		userID := uuid.New()
		require.NoError(t, subs.Save(ctx, &subscription.Subscription{
			UserID:      userID,
			PlanID:      "pro",
			Status:      subscription.StatusActive,
			Provider:    billing.ProviderStripe,
			PeriodStart: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
		}))
		svc, _ := newService(t, subs)

		got, err := svc.GetUsage(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), got.Quota)
		assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), got.PeriodStart)
		assert.Equal(t, time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC), got.PeriodEnd)
	})

	t.Run("stale subscription period falls back to calendar month", func(t *testing.T) {
		t.Parallel()
		subs := subscription.NewMemoryStore()
		userID := uuid.New()
		require.NoError(t, subs.Save(ctx, &subscription.Subscription{
			UserID:      userID,
			PlanID:      "pro",
			Status:      subscription.StatusActive,
			PeriodStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		}))
		svc, _ := newService(t, subs)

		got, err := svc.GetUsage(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got.PeriodStart)
	})

	t.Run("canceled subscription past period end reverts to free quota", func(t *testing.T) {
		t.Parallel()
		subs := subscription.NewMemoryStore()
		userID := uuid.New()
		require.NoError(t, subs.Save(ctx, &subscription.Subscription{
			UserID:      userID,
			PlanID:      "pro",
			Status:      subscription.StatusCanceled,
			PeriodStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		}))
		svc, _ := newService(t, subs)

		got, err := svc.GetUsage(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(10), got.Quota)
	})

	t.Run("limit reached at quota", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t, subscription.NewMemoryStore())
		userID := uuid.New()

		require.NoError(t, svc.Track(ctx, userID, 10))

		got, err := svc.GetUsage(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(10), got.Used)
		assert.True(t, got.LimitReached)
		assert.Zero(t, got.Remaining())
	})

	t.Run("unlimited plan never reaches limit", func(t *testing.T) {
		t.Parallel()
		subs := subscription.NewMemoryStore()
		userID := uuid.New()
		require.NoError(t, subs.Save(ctx, &subscription.Subscription{
			UserID: userID,
			PlanID: "unlimited",
			Status: subscription.StatusActive,
		}))
		svc, _ := newService(t, subs)

		require.NoError(t, svc.Track(ctx, userID, 100000))

		got, err := svc.GetUsage(ctx, userID)
		require.NoError(t, err)
		assert.False(t, got.LimitReached)
		assert.Equal(t, int64(-1), got.Remaining())
	})
}

func TestService_Track(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("rejects non-positive delta", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t, subscription.NewMemoryStore())
		assert.ErrorIs(t, svc.Track(ctx, uuid.New(), 0), usage.ErrInvalidDelta)
		assert.ErrorIs(t, svc.Track(ctx, uuid.New(), -1), usage.ErrInvalidDelta)
	})

	t.Run("concurrent increments lose no updates", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t, subscription.NewMemoryStore())
		userID := uuid.New()

		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, svc.Track(ctx, userID, 1))
			}()
		}
		wg.Wait()

		got, err := svc.GetUsage(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(50), got.Used)
	})
}

func TestMemoryStore_Increment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := usage.NewMemoryStore()
	userID := uuid.New()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	_, err := store.Get(ctx, userID, start)
	assert.ErrorIs(t, err, usage.ErrNotFound)

	total, err := store.Increment(ctx, userID, start, end, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	total, err = store.Increment(ctx, userID, start, end, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	rec, err := store.Get(ctx, userID, start)
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.Used)
	assert.Equal(t, end, rec.PeriodEnd)
	assert.False(t, rec.LastUsedAt.IsZero())

	// A different period starts a fresh counter.
	nextStart := end
	total, err = store.Increment(ctx, userID, nextStart, nextStart.AddDate(0, 1, 0), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
