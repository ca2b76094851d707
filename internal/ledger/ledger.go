package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrVersionConflict indicates the stored balance changed between the read
	// and the commit. Callers re-read and retry.
	ErrVersionConflict = errors.New("balance version conflict")

	// ErrNegativeBalance is returned when a commit would persist a negative
	// pending balance.
	ErrNegativeBalance = errors.New("negative balance")
)

// Entry kinds recorded in the wallet journal.
const (
	KindInitialize    = "initialize"
	KindAdjust        = "adjust"
	KindHold          = "hold"
	KindRelease       = "release"
	KindDeductPending = "deduct_pending"
	KindTopUp         = "topup"
	KindSettlement    = "settlement"
)

// Balance is the stored wallet state of a single customer. A zero Version
// means no row exists yet; both amounts then read as zero.
type Balance struct {
	Available decimal.Decimal
	Pending   decimal.Decimal
	Version   int64
	UpdatedAt time.Time
}

// Exists reports whether the balance has been persisted.
func (b Balance) Exists() bool {
	return b.Version > 0
}

// Entry is an append-only journal record written together with every balance commit.
type Entry struct {
	ID             string
	CustomerID     string
	Kind           string
	Reference      string
	AvailableDelta decimal.Decimal
	PendingDelta   decimal.Decimal
	AvailableAfter decimal.Decimal
	PendingAfter   decimal.Decimal
	CreatedAt      time.Time
}

// Store defines the contract implemented by wallet balance backends (e.g. Postgres).
type Store interface {
	// EnsureAccount creates a zeroed balance when none exists. It never
	// overwrites an existing row and reports whether it created one.
	EnsureAccount(ctx context.Context, customerID string) (bool, error)
	Balance(ctx context.Context, customerID string) (Balance, error)
	// Commit stores next when the persisted version still equals
	// expectedVersion, appending entry to the journal in the same step.
	Commit(ctx context.Context, customerID string, expectedVersion int64, next Balance, entry Entry) (Balance, error)
	Entries(ctx context.Context, customerID string, limit int) ([]Entry, error)
	// FindEntry returns the newest entry of kind tagged with reference.
	FindEntry(ctx context.Context, customerID, kind, reference string) (Entry, bool, error)
}
