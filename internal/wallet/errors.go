package wallet

import "errors"

var (
	// ErrNotFound is returned when the customer owning the wallet does not exist.
	ErrNotFound = errors.New("customer not found")
	// ErrInvalidAmount is returned for missing, malformed or non-positive amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientFunds is returned when available balance cannot cover a hold.
	ErrInsufficientFunds = errors.New("insufficient available balance")
	// ErrInsufficientHeldFunds is returned when pending balance cannot cover a release or deduction.
	ErrInsufficientHeldFunds = errors.New("insufficient pending balance")

	errAlreadyApplied = errors.New("already applied")
)
