package billing_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/mfromawe/hyperhash/pkg/billing"
)

// fakeDirectory backs adapter tests with static lookup tables.
type fakeDirectory struct {
	byCustomer map[string]uuid.UUID
	bySub      map[string]uuid.UUID
	byEmail    map[string]uuid.UUID
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		byCustomer: make(map[string]uuid.UUID),
		bySub:      make(map[string]uuid.UUID),
		byEmail:    make(map[string]uuid.UUID),
	}
}

func (d *fakeDirectory) ByProviderCustomerID(_ context.Context, _ billing.Provider, customerID string) (uuid.UUID, error) {
	if id, ok := d.byCustomer[customerID]; ok {
		return id, nil
	}
	return uuid.Nil, billing.ErrUserNotFound
}

func (d *fakeDirectory) ByProviderSubscriptionID(_ context.Context, _ billing.Provider, subscriptionID string) (uuid.UUID, error) {
	if id, ok := d.bySub[subscriptionID]; ok {
		return id, nil
	}
	return uuid.Nil, billing.ErrUserNotFound
}

func (d *fakeDirectory) ByEmail(_ context.Context, email string) (uuid.UUID, error) {
	if id, ok := d.byEmail[email]; ok {
		return id, nil
	}
	return uuid.Nil, billing.ErrUserNotFound
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.DiscardHandler)
}
