package customer

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	byPhone map[string]Customer
	byID    map[string]Customer
}

// NewMemoryRepository builds an in-memory customer store for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byPhone: make(map[string]Customer),
		byID:    make(map[string]Customer),
	}
}

func (r *memoryRepository) Create(_ context.Context, c Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byPhone[c.Phone]; exists {
		return ErrExists
	}
	r.byPhone[c.Phone] = c
	r.byID[c.ID] = c
	return nil
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) (Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byPhone[phone]
	if !ok {
		return Customer{}, ErrNotFound
	}
	return c, nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return Customer{}, ErrNotFound
	}
	return c, nil
}

func (r *memoryRepository) Exists(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok, nil
}
