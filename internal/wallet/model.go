package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the read-only view returned by Check.
type Snapshot struct {
	CustomerID string
	Available  decimal.Decimal
	Pending    decimal.Decimal
	Currency   string
}

// Adjustment is the result of AdjustAvailable and CreditTopUp.
type Adjustment struct {
	CustomerID   string
	OldAvailable decimal.Decimal
	NewAvailable decimal.Decimal
	Currency     string
}

// Movement is the result of Hold, Release and DeductFromPending.
type Movement struct {
	CustomerID string
	Amount     decimal.Decimal
	Available  decimal.Decimal
	Pending    decimal.Decimal
	Currency   string
}

// SettlementInput carries the order figures used to reconcile held funds.
type SettlementInput struct {
	CustomerID string
	OrderID    string
	Total      decimal.Decimal
	Estimated  decimal.Decimal
}

// Plan describes how a settlement moves money between the two balances.
type Plan struct {
	DeductPending   decimal.Decimal
	ReleasePending  decimal.Decimal
	DeductAvailable decimal.Decimal
	// Shortfall is the part of the total that available could not cover.
	Shortfall          decimal.Decimal
	ManualIntervention bool
}

// Settlement is the outcome of Settle.
type Settlement struct {
	CustomerID string
	OrderID    string
	Plan
	Available decimal.Decimal
	Pending   decimal.Decimal
	Currency  string
	// Replayed is set when the order had already been settled and no money moved.
	Replayed bool
}

// HistoryEntry is a journal record exposed to callers.
type HistoryEntry struct {
	ID             string
	Kind           string
	Reference      string
	AvailableDelta decimal.Decimal
	PendingDelta   decimal.Decimal
	AvailableAfter decimal.Decimal
	PendingAfter   decimal.Decimal
	CreatedAt      time.Time
}
