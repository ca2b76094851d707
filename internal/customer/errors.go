package customer

import "errors"

var (
	ErrNotFound     = errors.New("customer not found")
	ErrExists       = errors.New("customer already exists")
	ErrInvalidInput = errors.New("phone, name, and (address or location coordinates) are required")
)
