package usage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type periodKey struct {
	userID      uuid.UUID
	periodStart int64
}

// MemoryStore implements Store with an in-process map. Used in tests and
// for running the server without a database.
type MemoryStore struct {
	mu      sync.Mutex
	records map[periodKey]Record
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory usage store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[periodKey]Record),
		now:     time.Now,
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, userID uuid.UUID, periodStart time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[periodKey{userID, periodStart.Unix()}]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, userID uuid.UUID, periodStart, periodEnd time.Time, delta int64) (int64, error) {
	if delta <= 0 {
		return 0, ErrInvalidDelta
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := periodKey{userID, periodStart.Unix()}
	rec, ok := s.records[key]
	if !ok {
		rec = Record{UserID: userID, PeriodStart: periodStart, PeriodEnd: periodEnd}
	}
	rec.Used += delta
	rec.LastUsedAt = s.now()
	s.records[key] = rec
	return rec.Used, nil
}
