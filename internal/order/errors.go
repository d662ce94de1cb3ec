package order

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput          = errors.New("order: invalid input")
	ErrEmptyOrder            = errors.New("order: no line items")
	ErrInvalidDiscount       = errors.New("order: discount must not be negative")
	ErrOrderNotFound         = errors.New("order: not found")
	ErrNoChanges             = errors.New("order: no status fields to update")
	ErrIdempotencyInProgress = errors.New("order: request with this idempotency key is still in progress")
	ErrIdempotencyMismatch   = errors.New("order: idempotency key reused with a different request")
)

// LineError identifies the request line that made order creation fail.
type LineError struct {
	Index       int // position in the request, starting at 0
	ProductID   string
	VariantID   string
	ProductName string // empty when the product did not resolve
	Err         error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (product %s, variant %s): %v", e.Index, e.ProductID, e.VariantID, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}
