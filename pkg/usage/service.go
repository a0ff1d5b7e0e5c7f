package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mfromawe/hyperhash/pkg/plan"
	"github.com/mfromawe/hyperhash/pkg/subscription"
)

// Service computes usage against plan quotas. It resolves the billing
// period and the effective plan from the user's subscription; users
// without a subscription row meter against the free plan on UTC calendar
// months.
type Service struct {
	store Store
	subs  subscription.Store
	plans *plan.Registry
	log   *slog.Logger
	now   func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a usage service.
func NewService(store Store, subs subscription.Store, plans *plan.Registry, log *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store: store,
		subs:  subs,
		plans: plans,
		log:   log.With("component", "usage"),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetUsage returns the consumption snapshot for the user's active period.
// A user who has not consumed anything yet reports zero, never an error.
func (s *Service) GetUsage(ctx context.Context, userID uuid.UUID) (Usage, error) {
	now := s.now().UTC()
	p, start, end := s.resolve(ctx, userID, now)

	var used int64
	rec, err := s.store.Get(ctx, userID, start)
	switch {
	case err == nil:
		used = rec.Used
	case errors.Is(err, ErrNotFound):
		// First action of the period has not happened yet.
	default:
		return Usage{}, fmt.Errorf("usage: get record: %w", err)
	}

	return Usage{
		Used:         used,
		Quota:        p.MonthlyQuota,
		PeriodStart:  start,
		PeriodEnd:    end,
		LimitReached: !p.IsUnlimited() && used >= p.MonthlyQuota,
	}, nil
}

// Track atomically adds delta metered actions to the user's counter for
// the active period. Callers invoke it only after the action succeeded.
func (s *Service) Track(ctx context.Context, userID uuid.UUID, delta int64) error {
	if delta <= 0 {
		return ErrInvalidDelta
	}

	now := s.now().UTC()
	_, start, end := s.resolve(ctx, userID, now)

	total, err := s.store.Increment(ctx, userID, start, end, delta)
	if err != nil {
		return fmt.Errorf("usage: increment: %w", err)
	}

	s.log.DebugContext(ctx, "usage tracked",
		slog.String("user_id", userID.String()),
		slog.Int64("used", total))
	return nil
}

// resolve returns the user's effective plan and active period bounds.
// Subscription period bounds win when they cover the current instant;
// otherwise the period is the UTC calendar month.
func (s *Service) resolve(ctx context.Context, userID uuid.UUID, now time.Time) (plan.Plan, time.Time, time.Time) {
	start, end := calendarMonth(now)

	sub, err := s.subs.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, subscription.ErrNotFound) {
			s.log.WarnContext(ctx, "subscription lookup failed, metering against free plan",
				slog.String("user_id", userID.String()),
				slog.Any("error", err))
		}
		return s.plans.GetOrFree(plan.FreePlanID), start, end
	}

	if !sub.PeriodStart.IsZero() && !sub.PeriodEnd.IsZero() &&
		!now.Before(sub.PeriodStart) && now.Before(sub.PeriodEnd) {
		start, end = sub.PeriodStart, sub.PeriodEnd
	}

	return s.plans.GetOrFree(sub.EffectivePlanID(now)), start, end
}

func calendarMonth(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
