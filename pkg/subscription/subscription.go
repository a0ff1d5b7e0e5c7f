package subscription

import (
	"time"

	"github.com/google/uuid"

	"github.com/mfromawe/hyperhash/pkg/billing"
)

// Status represents the lifecycle state of a subscription.
type Status string

const (
	StatusActive     Status = "active"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
	StatusIncomplete Status = "incomplete"
)

// Subscription is the canonical record of what plan a user is on. One row
// per user; rows are never deleted, only transitioned to canceled.
type Subscription struct {
	UserID uuid.UUID // primary key - one subscription per user
	PlanID string
	Status Status

	Provider               billing.Provider
	ProviderCustomerID     string
	ProviderSubscriptionID string
	ProviderPriceID        string

	PeriodStart time.Time
	PeriodEnd   time.Time

	// CancelAtPeriodEnd marks a canceled subscription that keeps its paid
	// plan until the current period runs out.
	CancelAtPeriodEnd bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the subscription currently grants its paid plan.
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// EffectivePlanID returns the plan the user is entitled to at the given
// time. A canceled subscription keeps its plan until the period end, then
// reverts to nothing (the caller falls back to the free plan).
func (s *Subscription) EffectivePlanID(now time.Time) string {
	switch s.Status {
	case StatusActive, StatusPastDue:
		return s.PlanID
	case StatusCanceled:
		if !s.PeriodEnd.IsZero() && now.Before(s.PeriodEnd) {
			return s.PlanID
		}
		return ""
	default:
		return ""
	}
}
