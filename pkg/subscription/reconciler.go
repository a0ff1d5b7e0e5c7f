package subscription

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mfromawe/hyperhash/pkg/billing"
	"github.com/mfromawe/hyperhash/pkg/plan"
)

// lockStripes is the number of per-user mutex stripes. Collisions only cost
// unnecessary serialization between unrelated users, never correctness.
const lockStripes = 64

// Notifier delivers user-facing notifications triggered by reconciliation.
// Failures are captured and logged, never propagated: notification delivery
// must not block webhook acknowledgment.
type Notifier interface {
	NotifyPaymentFailed(ctx context.Context, userID uuid.UUID) error
}

// ReconcilerOption configures optional reconciler collaborators.
type ReconcilerOption func(*Reconciler)

// WithNotifier registers a dunning notifier.
func WithNotifier(n Notifier) ReconcilerOption {
	return func(r *Reconciler) { r.notifier = n }
}

// Reconciler folds canonical billing events into the subscription record.
// It is the single writer for subscription state: webhook handlers go
// through Apply, locally initiated plan changes through Update, and both
// serialize on the same per-user mutex.
type Reconciler struct {
	store    Store
	plans    *plan.Registry
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time

	locks [lockStripes]sync.Mutex
}

// NewReconciler creates the reconciliation engine.
func NewReconciler(store Store, plans *plan.Registry, log *slog.Logger, opts ...ReconcilerOption) *Reconciler {
	if store == nil {
		panic("subscription: Store is required")
	}
	if plans == nil {
		panic("subscription: plan.Registry is required")
	}
	if log == nil {
		log = slog.Default()
	}

	r := &Reconciler{
		store: store,
		plans: plans,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply executes one state transition. Events for the same user are
// serialized on a keyed mutex so concurrent deliveries cannot interleave;
// the resulting status reflects the last applied event. Every transition is
// an upsert keyed by the user reference, which makes replays converge.
func (r *Reconciler) Apply(ctx context.Context, ev billing.Event) error {
	if ev.UserID == uuid.Nil {
		return ErrInvalidEvent
	}

	lock := r.userLock(ev.UserID)
	lock.Lock()
	defer lock.Unlock()

	current, err := r.store.Get(ctx, ev.UserID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	switch ev.Kind {
	case billing.EventActivated:
		return r.applyActivated(ctx, current, ev)
	case billing.EventUpdated:
		return r.applyUpdated(ctx, current, ev)
	case billing.EventCanceled:
		return r.applyCanceled(ctx, current, ev)
	case billing.EventPaymentFailed:
		return r.applyPaymentFailed(ctx, current, ev)
	case billing.EventPaymentSucceeded:
		return r.applyPaymentSucceeded(ctx, current, ev)
	default:
		r.log.WarnContext(ctx, "ignoring unknown subscription event kind",
			slog.String("provider", string(ev.Provider)),
			slog.String("event_kind", string(ev.Kind)))
		return nil
	}
}

// Update applies a locally initiated change to a user's subscription
// under the same per-user serialization as webhook events, so a checkout
// cannot interleave with a concurrent delivery and lose fields. fn
// receives the current record, or a blank one when none exists, and the
// mutated result is saved.
func (r *Reconciler) Update(ctx context.Context, userID uuid.UUID, fn func(*Subscription) error) error {
	if userID == uuid.Nil {
		return ErrInvalidUser
	}

	lock := r.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := r.now().UTC()
	sub, err := r.store.Get(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		sub = &Subscription{UserID: userID, CreatedAt: now}
	case err != nil:
		return err
	}

	if err := fn(sub); err != nil {
		return err
	}
	sub.UserID = userID
	sub.UpdatedAt = now

	return r.store.Save(ctx, sub)
}

func (r *Reconciler) applyActivated(ctx context.Context, current *Subscription, ev billing.Event) error {
	// Redirect-based providers cannot echo the plan back in the callback;
	// the pending plan reference was recorded at checkout time.
	planRef := ev.ExternalPlanRef
	if planRef == "" && current != nil {
		planRef = current.ProviderPriceID
	}

	planID, err := r.plans.Resolve(string(ev.Provider), planRef)
	if err != nil {
		r.log.ErrorContext(ctx, "rejecting activation with unmapped plan",
			slog.String("provider", string(ev.Provider)),
			slog.String("external_plan_ref", planRef))
		return errors.Join(ErrPlanUnmapped, err)
	}

	now := r.now().UTC()
	sub := r.merge(current, ev)
	sub.PlanID = planID
	sub.Status = StatusActive
	sub.CancelAtPeriodEnd = false
	sub.ProviderPriceID = planRef
	sub.UpdatedAt = now

	return r.store.Save(ctx, sub)
}

func (r *Reconciler) applyUpdated(ctx context.Context, current *Subscription, ev billing.Event) error {
	// An update arriving before activation still upserts; the table only
	// ever narrows state forward and arrival order wins.
	if current == nil {
		return r.applyActivated(ctx, current, ev)
	}

	if ev.ExternalPlanRef != "" {
		planID, err := r.plans.Resolve(string(ev.Provider), ev.ExternalPlanRef)
		if err != nil {
			r.log.ErrorContext(ctx, "rejecting update with unmapped plan",
				slog.String("provider", string(ev.Provider)),
				slog.String("external_plan_ref", ev.ExternalPlanRef))
			return errors.Join(ErrPlanUnmapped, err)
		}
		current.PlanID = planID
		current.ProviderPriceID = ev.ExternalPlanRef
	}

	sub := r.merge(current, ev)
	if sub.Status == StatusIncomplete {
		sub.Status = StatusActive
	}
	sub.UpdatedAt = r.now().UTC()

	return r.store.Save(ctx, sub)
}

func (r *Reconciler) applyCanceled(ctx context.Context, current *Subscription, ev billing.Event) error {
	if current == nil {
		r.log.WarnContext(ctx, "cancellation for user without subscription",
			slog.String("provider", string(ev.Provider)),
			slog.String("user_id", ev.UserID.String()))
		return nil
	}

	// The plan reverts to free at period end, not immediately: the record
	// keeps its PlanID and EffectivePlanID honors the remaining period.
	sub := r.merge(current, ev)
	sub.Status = StatusCanceled
	sub.CancelAtPeriodEnd = true
	sub.UpdatedAt = r.now().UTC()

	return r.store.Save(ctx, sub)
}

func (r *Reconciler) applyPaymentFailed(ctx context.Context, current *Subscription, ev billing.Event) error {
	now := r.now().UTC()

	var sub *Subscription
	if current == nil {
		// No plan change on payment failure: a fresh row stays on free.
		sub = &Subscription{
			UserID:    ev.UserID,
			PlanID:    r.plans.Free().ID,
			CreatedAt: now,
		}
		sub = r.mergeInto(sub, ev)
	} else {
		sub = r.merge(current, ev)
	}
	sub.Status = StatusPastDue
	sub.UpdatedAt = now

	if err := r.store.Save(ctx, sub); err != nil {
		return err
	}

	r.notifyPaymentFailed(ctx, ev.UserID)
	return nil
}

func (r *Reconciler) applyPaymentSucceeded(ctx context.Context, current *Subscription, ev billing.Event) error {
	if current == nil {
		r.log.WarnContext(ctx, "payment success for user without subscription",
			slog.String("provider", string(ev.Provider)),
			slog.String("user_id", ev.UserID.String()))
		return nil
	}

	sub := r.merge(current, ev)
	if sub.Status == StatusPastDue || sub.Status == StatusIncomplete {
		sub.Status = StatusActive
	}
	sub.UpdatedAt = r.now().UTC()

	return r.store.Save(ctx, sub)
}

// merge copies the current record (or starts a fresh one) and overlays the
// provider identifiers and period bounds the event carries. Empty event
// fields never erase stored values.
func (r *Reconciler) merge(current *Subscription, ev billing.Event) *Subscription {
	sub := &Subscription{UserID: ev.UserID, CreatedAt: r.now().UTC()}
	if current != nil {
		copied := *current
		sub = &copied
	}
	return r.mergeInto(sub, ev)
}

func (r *Reconciler) mergeInto(sub *Subscription, ev billing.Event) *Subscription {
	sub.Provider = ev.Provider
	if ev.ProviderCustomerID != "" {
		sub.ProviderCustomerID = ev.ProviderCustomerID
	}
	if ev.ProviderSubscriptionID != "" {
		sub.ProviderSubscriptionID = ev.ProviderSubscriptionID
	}
	if !ev.PeriodStart.IsZero() {
		sub.PeriodStart = ev.PeriodStart
	}
	if !ev.PeriodEnd.IsZero() {
		sub.PeriodEnd = ev.PeriodEnd
	}
	return sub
}

// notifyPaymentFailed dispatches a dunning notification as a bounded
// best-effort task. Failures are logged, never returned: acknowledgment to
// the provider must not depend on email delivery.
func (r *Reconciler) notifyPaymentFailed(ctx context.Context, userID uuid.UUID) {
	if r.notifier == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()

		if err := r.notifier.NotifyPaymentFailed(ctx, userID); err != nil {
			r.log.ErrorContext(ctx, "payment failed notification not delivered",
				slog.String("user_id", userID.String()),
				slog.Any("error", err))
		}
	}()
}

func (r *Reconciler) userLock(userID uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	h.Write(userID[:])
	return &r.locks[h.Sum32()%lockStripes]
}
