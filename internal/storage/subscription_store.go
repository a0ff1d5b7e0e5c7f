package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mfromawe/hyperhash/pkg/billing"
	"github.com/mfromawe/hyperhash/pkg/pg"
	"github.com/mfromawe/hyperhash/pkg/subscription"
)

// SubscriptionStore persists subscriptions in PostgreSQL. One row per
// user, written with an atomic upsert keyed on user_id.
type SubscriptionStore struct {
	pool *pgxpool.Pool
}

// NewSubscriptionStore creates a subscription store on the given pool.
func NewSubscriptionStore(pool *pgxpool.Pool) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

const subscriptionColumns = `
	user_id, plan_id, status, provider, provider_customer_id,
	provider_subscription_id, provider_price_id, period_start, period_end,
	cancel_at_period_end, created_at, updated_at`

// Get implements subscription.Store.
func (s *SubscriptionStore) Get(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	return s.getOne(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions WHERE user_id = $1`, userID)
}

// GetByProviderSubscriptionID implements subscription.Store.
func (s *SubscriptionStore) GetByProviderSubscriptionID(ctx context.Context, provider billing.Provider, subscriptionID string) (*subscription.Subscription, error) {
	return s.getOne(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE provider = $1 AND provider_subscription_id = $2`, provider, subscriptionID)
}

// Save implements subscription.Store with an upsert on user_id, so a
// replayed webhook can never create a second row for the same user.
func (s *SubscriptionStore) Save(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (
			user_id, plan_id, status, provider, provider_customer_id,
			provider_subscription_id, provider_price_id, period_start,
			period_end, cancel_at_period_end
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			status = EXCLUDED.status,
			provider = EXCLUDED.provider,
			provider_customer_id = EXCLUDED.provider_customer_id,
			provider_subscription_id = EXCLUDED.provider_subscription_id,
			provider_price_id = EXCLUDED.provider_price_id,
			period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			updated_at = now()`,
		sub.UserID, sub.PlanID, sub.Status, sub.Provider, sub.ProviderCustomerID,
		sub.ProviderSubscriptionID, sub.ProviderPriceID, sub.PeriodStart,
		sub.PeriodEnd, sub.CancelAtPeriodEnd)
	if err != nil {
		return fmt.Errorf("storage: save subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) getOne(ctx context.Context, query string, args ...any) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&sub.UserID, &sub.PlanID, &sub.Status, &sub.Provider,
		&sub.ProviderCustomerID, &sub.ProviderSubscriptionID, &sub.ProviderPriceID,
		&sub.PeriodStart, &sub.PeriodEnd, &sub.CancelAtPeriodEnd,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, subscription.ErrNotFound
		}
		return nil, fmt.Errorf("storage: get subscription: %w", err)
	}
	return &sub, nil
}
