package orders

import "errors"

var (
	ErrNotFound         = errors.New("order not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrInvalidStatus    = errors.New("invalid order status")
	ErrNoItems          = errors.New("order has no item with a positive quantity")
)
