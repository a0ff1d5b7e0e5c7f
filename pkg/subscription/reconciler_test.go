package subscription_test

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
)

type captureNotifier struct {
	mu    sync.Mutex
	users []uuid.UUID
	done  chan struct{}
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{done: make(chan struct{}, 16)}
}

func (n *captureNotifier) NotifyPaymentFailed(_ context.Context, userID uuid.UUID) error {
	n.mu.Lock()
	n.users = append(n.users, userID)
	n.mu.Unlock()
	n.done <- struct{}{}
	return nil
}

func (n *captureNotifier) wait(t *testing.T) {
	t.Helper()
	select {
	case <-n.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was not called")
	}
}

func newReconciler(t *testing.T, store subscription.Store, opts ...subscription.ReconcilerOption) *subscription.Reconciler {
	t.Helper()
	plans, err := plan.NewRegistry(context.Background(), plan.DefaultSource())
	require.NoError(t, err)
	return subscription.NewReconciler(store, plans, slog.New(slog.DiscardHandler), opts...)
}

func activatedEvent(userID uuid.UUID) billing.Event {
	return billing.Event{
		Provider:               billing.ProviderStripe,
		ExternalEventID:        "evt_1",
		UserID:                 userID,
		Kind:                   billing.EventActivated,
		ExternalPlanRef:        "price_pro_monthly",
		ProviderCustomerID:     "cus_1",
		ProviderSubscriptionID: "sub_1",
		OccurredAt:             time.Now().UTC(),
		PeriodStart:            time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:              time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestReconciler_Apply(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("activation upserts resolved plan", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		rec := newReconciler(t, store)
		userID := uuid.New()

		require.NoError(t, rec.Apply(ctx, activatedEvent(userID)))

		sub, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "pro", sub.PlanID)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.Equal(t, "cus_1", sub.ProviderCustomerID)
		assert.Equal(t, "sub_1", sub.ProviderSubscriptionID)
		assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), sub.PeriodEnd)
	})

	t.Run("applying the same event twice converges", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		rec := newReconciler(t, store)
		userID := uuid.New()
		ev := activatedEvent(userID)

		require.NoError(t, rec.Apply(ctx, ev))
		first, err := store.Get(ctx, userID)
		require.NoError(t, err)

		require.NoError(t, rec.Apply(ctx, ev))
		second, err := store.Get(ctx, userID)
		require.NoError(t, err)

		// UpdatedAt moves, everything else is identical; still one row.
		second.UpdatedAt = first.UpdatedAt
		assert.Equal(t, first, second)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("unmapped plan rejected without mutation", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		rec := newReconciler(t, store)
		userID := uuid.New()

		ev := activatedEvent(userID)
		ev.ExternalPlanRef = "price_from_another_product"

		err := rec.Apply(ctx, ev)
		assert.ErrorIs(t, err, subscription.ErrPlanUnmapped)

		_, err = store.Get(ctx, userID)
		assert.ErrorIs(t, err, subscription.ErrNotFound)
	})

	t.Run("activation without plan ref uses pending checkout plan", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		rec := newReconciler(t, store)
		userID := uuid.New()

		// Redirect checkout records the chosen plan before the callback.
		require.NoError(t, store.Save(ctx, &subscription.Subscription{
			UserID:          userID,
			PlanID:          plan.FreePlanID,
			Status:          subscription.StatusIncomplete,
			Provider:        billing.ProviderPayTR,
			ProviderPriceID: "pro_monthly",
		}))

		require.NoError(t, rec.Apply(ctx, billing.Event{
			Provider: billing.ProviderPayTR,
			UserID:   userID,
			Kind:     billing.EventActivated,
		}))

		sub, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "pro", sub.PlanID)
		assert.Equal(t, subscription.StatusActive, sub.Status)
	})

	t.Run("update refreshes plan and period", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		rec := newReconciler(t, store)
		userID := uuid.New()

		require.NoError(t, rec.Apply(ctx, activatedEvent(userID)))

		update := activatedEvent(userID)
		update.Kind = billing.EventUpdated
		update.ExternalPlanRef = "price_unlimited_monthly"
		update.PeriodEnd = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, rec.Apply(ctx, update))

		sub, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "unlimited", sub.PlanID)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), sub.PeriodEnd)
	})

	t.Run("update before activation still upserts", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		rec := newReconciler(t, store)
		userID := uuid.New()

		ev := activatedEvent(userID)
		ev.Kind = billing.EventUpdated
		require.NoError(t, rec.Apply(ctx, ev))

		sub, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "pro", sub.PlanID)
		assert.Equal(t, subscription.StatusActive, sub.Status)
	})

	t.Run("cancellation keeps plan until period end", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		rec := newReconciler(t, store)
		userID := uuid.New()

		require.NoError(t, rec.Apply(ctx, activatedEvent(userID)))

		cancel := activatedEvent(userID)
		cancel.Kind = billing.EventCanceled
		require.NoError(t, rec.Apply(ctx, cancel))

		sub, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusCanceled, sub.Status)
		assert.True(t, sub.CancelAtPeriodEnd)
		assert.Equal(t, "pro", sub.PlanID)

		inPeriod := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
		afterPeriod := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, "pro", sub.EffectivePlanID(inPeriod))
		assert.Empty(t, sub.EffectivePlanID(afterPeriod))
	})

	t.Run("cancellation without subscription is a no-op", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		rec := newReconciler(t, store)

		ev := activatedEvent(uuid.New())
		ev.Kind = billing.EventCanceled
		require.NoError(t, rec.Apply(ctx, ev))
		assert.Equal(t, 0, store.Len())
	})

	t.Run("payment failure flags past_due and notifies", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		notifier := newCaptureNotifier()
		rec := newReconciler(t, store, subscription.WithNotifier(notifier))
		userID := uuid.New()

		require.NoError(t, rec.Apply(ctx, activatedEvent(userID)))

		failed := activatedEvent(userID)
		failed.Kind = billing.EventPaymentFailed
		require.NoError(t, rec.Apply(ctx, failed))
		notifier.wait(t)

		sub, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusPastDue, sub.Status)
		assert.Equal(t, "pro", sub.PlanID, "payment failure never changes the plan")
		assert.Equal(t, []uuid.UUID{userID}, notifier.users)
	})

	t.Run("payment success clears past_due", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		rec := newReconciler(t, store)
		userID := uuid.New()

		require.NoError(t, rec.Apply(ctx, activatedEvent(userID)))

		failed := activatedEvent(userID)
		failed.Kind = billing.EventPaymentFailed
		require.NoError(t, rec.Apply(ctx, failed))

		succeeded := activatedEvent(userID)
		succeeded.Kind = billing.EventPaymentSucceeded
		require.NoError(t, rec.Apply(ctx, succeeded))

		sub, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
	})

	t.Run("unknown event kind ignored without mutation", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		rec := newReconciler(t, store)
		userID := uuid.New()

		require.NoError(t, rec.Apply(ctx, activatedEvent(userID)))
		before, err := store.Get(ctx, userID)
		require.NoError(t, err)

		ev := activatedEvent(userID)
		ev.Kind = billing.EventKind("checkout.started")
		require.NoError(t, rec.Apply(ctx, ev))

		after, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("nil user rejected", func(t *testing.T) {
		t.Parallel()
		rec := newReconciler(t, subscription.NewMemoryStore())
		err := rec.Apply(ctx, billing.Event{Kind: billing.EventActivated})
		assert.ErrorIs(t, err, subscription.ErrInvalidEvent)
	})
}

func TestReconciler_ConcurrentSameUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := subscription.NewMemoryStore()
	rec := newReconciler(t, store)
	userID := uuid.New()

	// Hammer the same user with replays of the same activation from many
	// goroutines: serialization must leave exactly one converged row.
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rec.Apply(ctx, activatedEvent(userID)))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.Len())
	sub, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "pro", sub.PlanID)
	assert.Equal(t, subscription.StatusActive, sub.Status)
}

func TestReconciler_ConcurrentDifferentUsers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := subscription.NewMemoryStore()
	rec := newReconciler(t, store)

	var wg sync.WaitGroup
	users := make([]uuid.UUID, 16)
	for i := range users {
		users[i] = uuid.New()
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			assert.NoError(t, rec.Apply(ctx, activatedEvent(id)))
		}(users[i])
	}
	wg.Wait()

	assert.Equal(t, len(users), store.Len())
	for _, id := range users {
		sub, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
	}
}

func TestReconciler_Update(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("creates a fresh row when none exists", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		rec := newReconciler(t, store)
		userID := uuid.New()

		err := rec.Update(ctx, userID, func(sub *subscription.Subscription) error {
			assert.Equal(t, userID, sub.UserID)
			assert.Empty(t, sub.Status)
			sub.PlanID = plan.FreePlanID
			sub.Status = subscription.StatusIncomplete
			sub.ProviderPriceID = "pro_monthly"
			return nil
		})
		require.NoError(t, err)

		sub, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusIncomplete, sub.Status)
		assert.Equal(t, "pro_monthly", sub.ProviderPriceID)
		assert.False(t, sub.UpdatedAt.IsZero())
	})

	t.Run("mutates in place without losing fields", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		rec := newReconciler(t, store)
		userID := uuid.New()
		require.NoError(t, rec.Apply(ctx, activatedEvent(userID)))

		err := rec.Update(ctx, userID, func(sub *subscription.Subscription) error {
			sub.ProviderPriceID = "unlimited_monthly"
			return nil
		})
		require.NoError(t, err)

		sub, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "pro", sub.PlanID)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.Equal(t, "cus_1", sub.ProviderCustomerID)
		assert.Equal(t, "unlimited_monthly", sub.ProviderPriceID)
	})

	t.Run("propagates the mutation error without saving", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		rec := newReconciler(t, store)
		userID := uuid.New()

		boom := assert.AnError
		err := rec.Update(ctx, userID, func(*subscription.Subscription) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, store.Len())
	})

	t.Run("rejects the nil user id", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		rec := newReconciler(t, store)

		err := rec.Update(ctx, uuid.Nil, func(*subscription.Subscription) error { return nil })
		assert.ErrorIs(t, err, subscription.ErrInvalidUser)
	})

	t.Run("serializes with concurrent event application", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		rec := newReconciler(t, store)
		userID := uuid.New()

		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, rec.Apply(ctx, activatedEvent(userID)))
			}()
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, rec.Update(ctx, userID, func(sub *subscription.Subscription) error {
					sub.ProviderPriceID = "pro_monthly"
					return nil
				}))
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, store.Len())
		sub, err := store.Get(ctx, userID)
		require.NoError(t, err)
		// Whatever interleaving won, the event's identifiers survive.
		assert.Equal(t, "pro", sub.PlanID)
		assert.Equal(t, "cus_1", sub.ProviderCustomerID)
		assert.Equal(t, "sub_1", sub.ProviderSubscriptionID)
	})
}
