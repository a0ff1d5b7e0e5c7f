package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Provider identifies a payment provider.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderPayPal Provider = "paypal"
	ProviderPayTR  Provider = "paytr"
)

// EventKind is the normalized subscription event type. Each adapter maps its
// provider's vocabulary onto these kinds.
type EventKind string

const (
	EventActivated        EventKind = "activated"
	EventUpdated          EventKind = "updated"
	EventCanceled         EventKind = "canceled"
	EventPaymentFailed    EventKind = "payment_failed"
	EventPaymentSucceeded EventKind = "payment_succeeded"
)

// Event is the canonical subscription event consumed by the reconciliation
// engine. It is transient: events drive state transitions and are never
// persisted themselves.
type Event struct {
	Provider        Provider
	ExternalEventID string
	UserID          uuid.UUID // resolved by the adapter before emitting
	Kind            EventKind

	// ExternalPlanRef is the provider's price/plan identifier, resolved to an
	// internal plan through the plan registry. May be empty for payment
	// events that do not carry plan information.
	ExternalPlanRef string

	ProviderCustomerID     string
	ProviderSubscriptionID string

	OccurredAt  time.Time
	PeriodStart time.Time
	PeriodEnd   time.Time

	// Amount in the smallest currency unit, when the provider reports one.
	Amount int64
}

// Adapter verifies and translates one provider's inbound webhooks.
type Adapter interface {
	Provider() Provider

	// Parse verifies payload authenticity and translates it into canonical
	// events. Verification failures return ErrVerificationFailed; payloads
	// that verify but carry nothing meaningful return an empty slice.
	Parse(ctx context.Context, payload []byte, headers http.Header) ([]Event, error)
}

// Directory resolves inbound provider identifiers to internal user IDs.
// Implementations back onto the user/subscription stores.
type Directory interface {
	ByProviderCustomerID(ctx context.Context, provider Provider, customerID string) (uuid.UUID, error)
	ByProviderSubscriptionID(ctx context.Context, provider Provider, subscriptionID string) (uuid.UUID, error)
	ByEmail(ctx context.Context, email string) (uuid.UUID, error)
}
