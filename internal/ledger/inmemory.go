package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type inMemoryStore struct {
	mu       sync.RWMutex
	balances map[string]Balance
	entries  map[string][]Entry
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and development runs without Postgres.
func NewInMemory() Store {
	return &inMemoryStore{
		balances: make(map[string]Balance),
		entries:  make(map[string][]Entry),
	}
}

func (s *inMemoryStore) EnsureAccount(_ context.Context, customerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.balances[customerID]; exists {
		return false, nil
	}
	now := time.Now().UTC()
	s.balances[customerID] = Balance{
		Available: decimal.Zero,
		Pending:   decimal.Zero,
		Version:   1,
		UpdatedAt: now,
	}
	s.entries[customerID] = append(s.entries[customerID], Entry{
		ID:             ulid.Make().String(),
		CustomerID:     customerID,
		Kind:           KindInitialize,
		AvailableDelta: decimal.Zero,
		PendingDelta:   decimal.Zero,
		AvailableAfter: decimal.Zero,
		PendingAfter:   decimal.Zero,
		CreatedAt:      now,
	})
	return true, nil
}

func (s *inMemoryStore) Balance(_ context.Context, customerID string) (Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balance, exists := s.balances[customerID]
	if !exists {
		return Balance{Available: decimal.Zero, Pending: decimal.Zero}, nil
	}
	return balance, nil
}

func (s *inMemoryStore) Commit(_ context.Context, customerID string, expectedVersion int64, next Balance, entry Entry) (Balance, error) {
	if next.Pending.IsNegative() {
		return Balance{}, ErrNegativeBalance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.balances[customerID]
	if !exists {
		current = Balance{}
	}
	if current.Version != expectedVersion {
		return Balance{}, ErrVersionConflict
	}

	now := time.Now().UTC()
	stored := Balance{
		Available: next.Available,
		Pending:   next.Pending,
		Version:   expectedVersion + 1,
		UpdatedAt: now,
	}
	s.balances[customerID] = stored

	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	entry.CustomerID = customerID
	entry.AvailableAfter = stored.Available
	entry.PendingAfter = stored.Pending
	entry.CreatedAt = now
	s.entries[customerID] = append(s.entries[customerID], entry)

	return stored, nil
}

func (s *inMemoryStore) Entries(_ context.Context, customerID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.entries[customerID]
	out := make([]Entry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (s *inMemoryStore) FindEntry(_ context.Context, customerID, kind, reference string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.entries[customerID]
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Kind == kind && all[i].Reference == reference {
			return all[i], true, nil
		}
	}
	return Entry{}, false, nil
}
