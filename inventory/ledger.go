/*
ledger.go - Lot ledger: creation, FIFO ordering, depletion

PURPOSE:
  The LotLedger owns the set of purchase lots per item and their remaining
  quantities. It is the only component that creates lots and the only one
  that depletes them.

CRITICAL INVARIANTS:
  1. 0 <= lot.Remaining <= lot.Quantity, always
  2. Lots are never deleted, even at zero remaining (audit trail)
  3. OpenLots ordering (Acquired, Seq) is the FIFO contract; Seq breaks
     ties between same-day lots

WHY KEEP EMPTY LOTS?
  - Allocations reference lots; dropping a lot would orphan sale history
  - Replay reconstructs historical compositions from original quantities
  - "Why did this sale cost X?" is answerable years later

SEE ALSO:
  - engine.go: Drives depletion through validated FIFO draw plans
  - store.go: Persistence contract the ledger runs on
*/
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LOT LEDGER
// =============================================================================

type LotLedger struct {
	Store Store
}

func NewLotLedger(store Store) *LotLedger {
	return &LotLedger{Store: store}
}

// AddLot creates a new lot with Remaining = quantity and the item's next
// insertion sequence. Fails with ErrInvalidInput if quantity <= 0 or
// unitCost < 0.
func (l *LotLedger) AddLot(ctx context.Context, code ItemCode, quantity int64, unitCost decimal.Decimal, acquired Date, headerCode string) (*Lot, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: lot quantity must be positive, got %d", ErrInvalidInput, quantity)
	}
	if unitCost.IsNegative() {
		return nil, fmt.Errorf("%w: unit cost must not be negative, got %s", ErrInvalidInput, unitCost)
	}
	if acquired.IsZero() {
		return nil, fmt.Errorf("%w: acquisition date is required", ErrInvalidInput)
	}

	seq, err := l.Store.NextSeq(ctx, code)
	if err != nil {
		return nil, err
	}

	lot := Lot{
		ID:         NewLotID(),
		ItemCode:   code,
		HeaderCode: headerCode,
		Acquired:   acquired,
		UnitCost:   unitCost,
		Quantity:   quantity,
		Remaining:  quantity,
		Seq:        seq,
		CreatedAt:  time.Now().UTC(),
	}

	if err := l.Store.AddLot(ctx, lot); err != nil {
		return nil, err
	}
	return &lot, nil
}

// OpenLots returns the item's lots with remaining stock, oldest first.
func (l *LotLedger) OpenLots(ctx context.Context, code ItemCode) ([]Lot, error) {
	return l.Store.OpenLots(ctx, code)
}

// Deplete decrements a lot's remaining quantity. Fails with
// ErrInvariantViolation if the decrement would go negative; that should
// never happen when called through the allocation engine, which validates
// its draw plan against a snapshot first.
func (l *LotLedger) Deplete(ctx context.Context, lot Lot, quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: depletion quantity must be positive, got %d", ErrInvalidInput, quantity)
	}
	if quantity > lot.Remaining {
		return &DepletionError{LotID: lot.ID, Remaining: lot.Remaining, Requested: quantity}
	}
	return l.Store.DepleteLot(ctx, lot.ID, quantity)
}
