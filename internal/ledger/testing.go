package ledger

import "github.com/shopspring/decimal"

// SeedBalance is a test helper that overwrites the balance for a customer when using the in-memory store.
func SeedBalance(s Store, customerID string, available, pending decimal.Decimal) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		current := mem.balances[customerID]
		mem.balances[customerID] = Balance{
			Available: available,
			Pending:   pending,
			Version:   current.Version + 1,
			UpdatedAt: current.UpdatedAt,
		}
	}
}
