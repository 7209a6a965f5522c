/*
engine.go - FIFO allocation engine

PURPOSE:
  Executes the two write operations of the system:
  - RecordPurchase: create a lot, append a purchase event, bump item caches
  - AllocateSale: deplete open lots FIFO, append a sale event with its
    allocations, drop item caches

ALLOCATION ALGORITHM:
  Consume open lots in (acquired date, seq) order. For each lot draw
  min(lot.Remaining, stillNeeded), accumulate cost as drawn * lot.UnitCost,
  continue until the request is filled or lots are exhausted.

ALL-OR-NOTHING:
  The full draw plan is computed against a snapshot of open lots BEFORE
  any mutation. If total open quantity is short, the call fails with
  ErrInsufficientStock and nothing is touched. Only a complete plan is
  applied, inside a single store transaction.

CONCURRENCY:
  Each write runs in an exclusive per-item critical section (keyed mutex)
  around the read-plan-commit sequence, so two concurrent sales cannot
  interleave their reads of open lots with each other's depletions.
  Operations on different items proceed in parallel. Replay is read-only
  and takes no item lock.

SEE ALSO:
  - ledger.go: Lot creation and depletion primitives
  - replay.go: Rebuilding historical state from the event log
*/
package inventory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store TxStore

	mu    sync.Mutex
	locks map[ItemCode]*sync.Mutex
}

func NewEngine(store TxStore) *Engine {
	return &Engine{
		Store: store,
		locks: make(map[ItemCode]*sync.Mutex),
	}
}

// lockItem acquires the exclusive critical section for one item and
// returns the unlock function.
func (e *Engine) lockItem(code ItemCode) func() {
	e.mu.Lock()
	lock, ok := e.locks[code]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[code] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// =============================================================================
// INPUTS / RESULTS
// =============================================================================

// PurchaseInput describes one purchase line.
type PurchaseInput struct {
	ItemCode    ItemCode
	Date        Date
	Quantity    int64
	UnitCost    decimal.Decimal
	HeaderCode  string
	Description string
}

// SaleInput describes one sale line.
type SaleInput struct {
	ItemCode    ItemCode
	Date        Date
	Quantity    int64
	HeaderCode  string
	Description string
}

// SaleResult reports which lots funded a sale and at what cost.
type SaleResult struct {
	Event       Event
	Allocations []Allocation
	TotalCost   decimal.Decimal
}

// =============================================================================
// RECORD PURCHASE
// =============================================================================

// RecordPurchase creates a lot, appends a purchase event, and updates the
// item's cached stock (+quantity) and balance (+quantity*unitCost), all
// within one transaction.
func (e *Engine) RecordPurchase(ctx context.Context, in PurchaseInput) (*Lot, error) {
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: purchase quantity must be positive, got %d", ErrInvalidInput, in.Quantity)
	}
	if in.UnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: unit cost must not be negative, got %s", ErrInvalidInput, in.UnitCost)
	}
	if in.Date.IsZero() {
		return nil, fmt.Errorf("%w: purchase date is required", ErrInvalidInput)
	}

	unlock := e.lockItem(in.ItemCode)
	defer unlock()

	var lot *Lot
	err := e.Store.WithTx(ctx, func(s Store) error {
		item, err := s.GetItem(ctx, in.ItemCode)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("%w: %s", ErrItemNotFound, in.ItemCode)
		}

		ledger := NewLotLedger(s)
		lot, err = ledger.AddLot(ctx, in.ItemCode, in.Quantity, in.UnitCost, in.Date, in.HeaderCode)
		if err != nil {
			return err
		}

		ev := Event{
			ID:          NewEventID(),
			ItemCode:    in.ItemCode,
			Kind:        EventPurchase,
			Date:        in.Date,
			Seq:         lot.Seq,
			Quantity:    in.Quantity,
			UnitCost:    in.UnitCost,
			LotID:       lot.ID,
			HeaderCode:  in.HeaderCode,
			Description: in.Description,
			CreatedAt:   time.Now().UTC(),
		}
		if err := s.AppendEvent(ctx, ev); err != nil {
			return err
		}

		item.Stock += in.Quantity
		item.Balance = item.Balance.Add(in.UnitCost.Mul(decimal.NewFromInt(in.Quantity)))
		return s.UpdateItem(ctx, *item)
	})
	if err != nil {
		return nil, err
	}
	return lot, nil
}

// =============================================================================
// ALLOCATE SALE
// =============================================================================

// AllocateSale depletes open lots FIFO to satisfy a sale. On success it
// returns the allocations (one per lot touched) and the total cost, and
// has appended a sale event and updated the item caches. On
// ErrInsufficientStock nothing has been mutated.
func (e *Engine) AllocateSale(ctx context.Context, in SaleInput) (*SaleResult, error) {
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: sale quantity must be positive, got %d", ErrInvalidInput, in.Quantity)
	}
	if in.Date.IsZero() {
		return nil, fmt.Errorf("%w: sale date is required", ErrInvalidInput)
	}

	unlock := e.lockItem(in.ItemCode)
	defer unlock()

	var result *SaleResult
	err := e.Store.WithTx(ctx, func(s Store) error {
		item, err := s.GetItem(ctx, in.ItemCode)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("%w: %s", ErrItemNotFound, in.ItemCode)
		}

		ledger := NewLotLedger(s)
		lots, err := ledger.OpenLots(ctx, in.ItemCode)
		if err != nil {
			return err
		}

		// Stage the full plan against the snapshot before touching anything.
		plan, err := planDraw(in.ItemCode, lots, in.Quantity)
		if err != nil {
			return err
		}

		seq, err := s.NextSeq(ctx, in.ItemCode)
		if err != nil {
			return err
		}
		eventID := NewEventID()

		totalCost := decimal.Zero
		allocations := make([]Allocation, 0, len(plan))
		for _, d := range plan {
			if err := ledger.Deplete(ctx, d.lot, d.quantity); err != nil {
				return err
			}
			alloc := Allocation{
				ID:       NewAllocationID(),
				EventID:  eventID,
				LotID:    d.lot.ID,
				Quantity: d.quantity,
				UnitCost: d.lot.UnitCost,
			}
			allocations = append(allocations, alloc)
			totalCost = totalCost.Add(alloc.Cost())
		}

		ev := Event{
			ID:          eventID,
			ItemCode:    in.ItemCode,
			Kind:        EventSale,
			Date:        in.Date,
			Seq:         seq,
			Quantity:    in.Quantity,
			Allocations: allocations,
			HeaderCode:  in.HeaderCode,
			Description: in.Description,
			CreatedAt:   time.Now().UTC(),
		}
		if err := s.AppendEvent(ctx, ev); err != nil {
			return err
		}

		item.Stock -= in.Quantity
		item.Balance = item.Balance.Sub(totalCost)
		if err := s.UpdateItem(ctx, *item); err != nil {
			return err
		}

		result = &SaleResult{Event: ev, Allocations: allocations, TotalCost: totalCost}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// =============================================================================
// DRAW PLANNING - Pure FIFO computation, no side effects
// =============================================================================

type draw struct {
	lot      Lot
	quantity int64
}

// planDraw computes the FIFO draw plan for a requested quantity against a
// snapshot of open lots. Returns InsufficientStockError if the lots cannot
// cover the request.
func planDraw(code ItemCode, lots []Lot, requested int64) ([]draw, error) {
	var plan []draw
	needed := requested
	for _, lot := range lots {
		if needed == 0 {
			break
		}
		take := lot.Remaining
		if take > needed {
			take = needed
		}
		if take <= 0 {
			continue
		}
		plan = append(plan, draw{lot: lot, quantity: take})
		needed -= take
	}
	if needed > 0 {
		return nil, &InsufficientStockError{
			ItemCode:  code,
			Requested: requested,
			Available: requested - needed,
		}
	}
	return plan, nil
}
