package sales

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable failure category.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindProductNotFound   Kind = "product_not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindInvalidTotals     Kind = "invalid_totals"
	KindConflict          Kind = "transaction_conflict"
	KindTimeout           Kind = "transaction_timeout"
	KindDuplicate         Kind = "duplicate_request"
	KindStore             Kind = "server_error"
)

var (
	// ErrSaleNotFound indicates a missing sale.
	ErrSaleNotFound = errors.New("sales: sale not found")
	// ErrInvalidStatus indicates a forbidden status transition.
	ErrInvalidStatus = errors.New("sales: invalid status transition")
	// ErrEmptyCart indicates a sale without lines.
	ErrEmptyCart = errors.New("sales: cart is empty")
	// ErrDiscountExceedsSubtotal indicates a discount larger than the subtotal.
	ErrDiscountExceedsSubtotal = errors.New("sales: discount exceeds subtotal")
	// ErrTotalsMismatch indicates declared totals disagree with the recomputed ones.
	ErrTotalsMismatch = errors.New("sales: totals mismatch")
)

// Error is the typed failure returned by CompleteSale.
type Error struct {
	Kind      Kind
	ProductID int64
	Err       error
}

func (e *Error) Error() string {
	if e.ProductID != 0 {
		return fmt.Sprintf("%s (product %d): %v", e.Kind, e.ProductID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether resubmitting the same cart may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindConflict || e.Kind == KindTimeout
}

// KindOf returns the failure kind carried by err, or KindStore.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindStore
}

func invalid(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

func invalidErr(err error) *Error {
	return &Error{Kind: KindValidation, Err: err}
}
