package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrProductNotFound   = fmt.Errorf("product %w", ErrNotFound)
	ErrOrderNotFound     = fmt.Errorf("order %w", ErrNotFound)
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrMalformedCallback = errors.New("malformed callback")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrAmountMismatch    = errors.New("amount mismatch")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrUpstream          = errors.New("upstream failure")
	ErrOptimisticLock    = errors.New("optimistic lock conflict")
)

type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s. Available: %d", e.ProductName, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
