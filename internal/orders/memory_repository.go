package orders

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu     sync.RWMutex
	orders map[string]Order
	seq    map[string]int
	next   int
}

// NewMemoryRepository constructs an in-memory repository for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{orders: make(map[string]Order), seq: make(map[string]int)}
}

func (r *memoryRepository) Create(_ context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o.Items = append([]Item(nil), o.Items...)
	r.orders[o.ID] = o
	r.next++
	r.seq[o.ID] = r.next
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	o.Items = append([]Item(nil), o.Items...)
	return o, nil
}

func (r *memoryRepository) Update(_ context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	current.Status = o.Status
	current.Total = o.Total
	current.TopUpFundsApplied = o.TopUpFundsApplied
	current.Settled = o.Settled
	current.UpdatedAt = o.UpdatedAt
	r.orders[o.ID] = current
	return nil
}

// LatestForCustomer uses insertion order so orders created in the same instant stay ordered.
func (r *memoryRepository) LatestForCustomer(_ context.Context, customerID string) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		latest Order
		best   int
	)
	for id, o := range r.orders {
		if o.CustomerID == customerID && r.seq[id] > best {
			latest, best = o, r.seq[id]
		}
	}
	if best == 0 {
		return Order{}, ErrNotFound
	}
	return latest, nil
}
