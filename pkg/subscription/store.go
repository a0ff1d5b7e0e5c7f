package subscription

import (
	"context"

	"github.com/google/uuid"

	"github.com/mfromawe/hyperhash/pkg/billing"
)

// Store defines the interface for subscription persistence. UserID is the
// primary key; Save is an atomic upsert.
type Store interface {
	// Get retrieves a subscription by user ID.
	// Returns ErrNotFound if no subscription exists.
	Get(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// GetByProviderSubscriptionID retrieves a subscription by the external
	// subscription identifier a provider reported at activation time.
	GetByProviderSubscriptionID(ctx context.Context, provider billing.Provider, subscriptionID string) (*Subscription, error)

	// Save creates or updates a subscription keyed on UserID.
	Save(ctx context.Context, sub *Subscription) error
}
