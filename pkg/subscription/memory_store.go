package subscription

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mfromawe/hyperhash/pkg/billing"
)

// MemoryStore implements Store with an in-process map. Used in tests and
// for running the server without a database.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]Subscription
}

// NewMemoryStore creates an empty in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[uuid.UUID]Subscription)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

// GetByProviderSubscriptionID implements Store.
func (s *MemoryStore) GetByProviderSubscriptionID(_ context.Context, provider billing.Provider, subscriptionID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subs {
		if sub.Provider == provider && sub.ProviderSubscriptionID == subscriptionID {
			out := sub
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// Save implements Store. The stored value is a copy so callers cannot
// mutate it behind the store's back.
func (s *MemoryStore) Save(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs[sub.UserID] = *sub
	return nil
}

// Len returns the number of stored subscriptions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
