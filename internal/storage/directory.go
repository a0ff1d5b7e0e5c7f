package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mfromawe/hyperhash/pkg/billing"
	"github.com/mfromawe/hyperhash/pkg/pg"
)

// Directory resolves provider identifiers from inbound webhooks to
// internal user IDs. It implements billing.Directory.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory creates a directory on the given pool.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// ByProviderCustomerID implements billing.Directory.
func (d *Directory) ByProviderCustomerID(ctx context.Context, provider billing.Provider, customerID string) (uuid.UUID, error) {
	return d.lookup(ctx, `
		SELECT user_id FROM subscriptions
		WHERE provider = $1 AND provider_customer_id = $2`, provider, customerID)
}

// ByProviderSubscriptionID implements billing.Directory.
func (d *Directory) ByProviderSubscriptionID(ctx context.Context, provider billing.Provider, subscriptionID string) (uuid.UUID, error) {
	return d.lookup(ctx, `
		SELECT user_id FROM subscriptions
		WHERE provider = $1 AND provider_subscription_id = $2`, provider, subscriptionID)
}

// ByEmail implements billing.Directory. Matching is case-insensitive.
func (d *Directory) ByEmail(ctx context.Context, email string) (uuid.UUID, error) {
	return d.lookup(ctx, `
		SELECT id FROM users WHERE lower(email) = lower($1)`, email)
}

func (d *Directory) lookup(ctx context.Context, query string, args ...any) (uuid.UUID, error) {
	var id uuid.UUID
	err := d.pool.QueryRow(ctx, query, args...).Scan(&id)
	if err != nil {
		if pg.IsNotFound(err) {
			return uuid.Nil, billing.ErrUserNotFound
		}
		return uuid.Nil, fmt.Errorf("storage: directory lookup: %w", err)
	}
	return id, nil
}
