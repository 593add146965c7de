package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the cart and product paths.
var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateReview = errors.New("product already reviewed")
)

// ValidationError reports a malformed field on a product or variant write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InsufficientStockError rejects a cart mutation whose post-mutation quantity
// exceeds the resolved availability.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}
