/*
errors.go - Centralized error types for the inventory engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The HTTP layer maps these to status codes; nothing below it swallows
  or retries them.

ERROR CATEGORIES:
  1. Validation errors - rejected before any mutation (ErrInvalidInput)
  2. Allocation errors - sale exceeds open stock (ErrInsufficientStock)
  3. Lookup errors     - missing item/lot/header (ErrItemNotFound, ...)
  4. Consistency errors - internal faults that abort the enclosing
     transaction (ErrInvariantViolation)

USAGE:
  if errors.Is(err, inventory.ErrInsufficientStock) {
      var short *inventory.InsufficientStockError
      errors.As(err, &short)
      // short.Shortfall tells the caller how much was missing
  }

SEE ALSO:
  - engine.go: Produces allocation and validation errors
  - api/handlers.go: Maps errors to HTTP statuses
*/
package inventory

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for non-positive quantities, negative
	// costs, or malformed/missing dates. Always rejected before mutation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidPeriod is returned when a report window has end before start.
	ErrInvalidPeriod = fmt.Errorf("%w: end date before start date", ErrInvalidInput)

	// ErrInsufficientStock is returned when a sale requests more than the
	// total open quantity. The allocation is all-or-nothing: no partial
	// depletion persists.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrItemNotFound is returned when a referenced item doesn't exist.
	ErrItemNotFound = errors.New("item not found")

	// ErrLotNotFound is returned when a referenced lot doesn't exist.
	ErrLotNotFound = errors.New("lot not found")

	// ErrHeaderNotFound is returned when a referenced document header
	// doesn't exist (or has been deleted).
	ErrHeaderNotFound = errors.New("header not found")

	// ErrDuplicateCode is returned when creating an item or header with a
	// code that already exists.
	ErrDuplicateCode = errors.New("duplicate code")

	// ErrInvariantViolation signals an internal consistency fault, e.g. a
	// depletion that would drive a lot's remaining quantity negative. Not
	// user-recoverable; the enclosing transaction must abort.
	ErrInvariantViolation = errors.New("invariant violation")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError provides details about an allocation shortfall.
type InsufficientStockError struct {
	ItemCode  ItemCode
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d (short %d)",
		e.ItemCode, e.Requested, e.Available, e.Shortfall())
}

func (e *InsufficientStockError) Shortfall() int64 { return e.Requested - e.Available }

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// DepletionError provides details about a depletion that would go negative.
type DepletionError struct {
	LotID     LotID
	Remaining int64
	Requested int64
}

func (e *DepletionError) Error() string {
	return fmt.Sprintf("depletion would go negative: lot %s has %d remaining, requested %d",
		e.LotID, e.Remaining, e.Requested)
}

func (e *DepletionError) Unwrap() error { return ErrInvariantViolation }

// CacheMismatchError reports cached item aggregates diverging from the
// lot-derived truth.
type CacheMismatchError struct {
	ItemCode      ItemCode
	CachedStock   int64
	ActualStock   int64
	CachedBalance decimal.Decimal
	ActualBalance decimal.Decimal
}

func (e *CacheMismatchError) Error() string {
	return fmt.Sprintf("cache mismatch for %s: stock %d (lots say %d), balance %s (lots say %s)",
		e.ItemCode, e.CachedStock, e.ActualStock, e.CachedBalance, e.ActualBalance)
}

func (e *CacheMismatchError) Unwrap() error { return ErrInvariantViolation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrDuplicateCode)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrLotNotFound) ||
		errors.Is(err, ErrHeaderNotFound)
}
