/*
Package inventory provides the core FIFO stock tracking engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking
  discrete inventory with First-In-First-Out cost matching. Each purchase
  creates a priced lot; each sale consumes the oldest open lots first and
  records exactly which lot(s) funded it and at what unit cost.

KEY CONCEPTS IN THIS FILE (types.go):
  - Item: A tracked product with cached on-hand quantity and balance
  - Lot: A batch of stock acquired at one unit cost on one date
  - Allocation: An immutable link from one sale to one lot
  - Event: An append-only purchase/sale record ordered by (date, seq)

DESIGN PRINCIPLES:
  1. Immutability: Events and allocations are never modified once written
  2. Precision: Uses decimal.Decimal to avoid floating-point money errors
  3. Type Safety: Strong typing for IDs prevents mixing lot/event/item IDs
  4. Auditability: Lots are kept even at zero remaining quantity

CACHED AGGREGATES:
  Item carries denormalized Stock and Balance fields. They are updated
  inside the same atomic unit as every purchase/sale and must satisfy:

    item.Stock   == sum(open lot remaining)
    item.Balance == sum(open lot remaining * unit cost)

  CheckInvariants verifies this; tests call it after every operation.

SEE ALSO:
  - ledger.go: Lot creation, ordering, and depletion
  - engine.go: FIFO allocation for sales, purchase recording
  - replay.go: Chronological event replay for reports
*/
package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemCode string
type LotID string
type EventID string
type AllocationID string

func NewLotID() LotID               { return LotID(uuid.NewString()) }
func NewEventID() EventID           { return EventID(uuid.NewString()) }
func NewAllocationID() AllocationID { return AllocationID(uuid.NewString()) }

// =============================================================================
// ITEM - Tracked product with cached aggregates
// =============================================================================

type Item struct {
	Code        ItemCode
	Name        string
	Unit        string
	Description string

	// Cached aggregates, maintained transactionally by the engine.
	Stock   int64
	Balance decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// LOT - Batch of stock acquired at one unit cost on one date
// =============================================================================

// Lot belongs to exactly one Item. UnitCost is fixed at creation.
// Remaining is mutated only by depletion through the allocation engine;
// lots are never deleted, even at zero, so the audit trail survives.
type Lot struct {
	ID         LotID
	ItemCode   ItemCode
	HeaderCode string
	Acquired   Date
	UnitCost   decimal.Decimal
	Quantity   int64 // original quantity, immutable
	Remaining  int64 // 0 <= Remaining <= Quantity
	Seq        int64 // per-item insertion sequence, tie-break for same-day lots
	CreatedAt  time.Time
}

// Value returns the monetary value of the remaining quantity.
func (l Lot) Value() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(l.Remaining))
}

// Open reports whether the lot still has stock to draw from.
func (l Lot) Open() bool { return l.Remaining > 0 }

// =============================================================================
// ALLOCATION - Immutable link from one sale to one lot
// =============================================================================

// Allocation records the quantity a sale drew from a specific lot and the
// cost at draw time. A single sale may produce several allocations, one per
// lot touched. The sum of a lot's allocation quantities never exceeds the
// lot's original quantity.
type Allocation struct {
	ID       AllocationID
	EventID  EventID
	LotID    LotID
	Quantity int64
	UnitCost decimal.Decimal
}

// Cost returns Quantity * UnitCost.
func (a Allocation) Cost() decimal.Decimal {
	return a.UnitCost.Mul(decimal.NewFromInt(a.Quantity))
}

// =============================================================================
// EVENT - Append-only purchase/sale record
// =============================================================================

type EventKind string

const (
	EventPurchase EventKind = "purchase"
	EventSale     EventKind = "sale"
)

// Event is an append-only stock movement. Events are ordered by
// (Date, Seq); Seq is monotonic per item so same-day events replay
// deterministically.
type Event struct {
	ID       EventID
	ItemCode ItemCode
	Kind     EventKind
	Date     Date
	Seq      int64
	Quantity int64

	// Purchase events only.
	UnitCost decimal.Decimal
	LotID    LotID

	// Sale events only: the ordered draws that funded this sale.
	Allocations []Allocation

	HeaderCode  string
	Description string
	CreatedAt   time.Time
}

// TotalCost returns the monetary value of the movement: quantity*unitCost
// for a purchase, the sum of allocation costs for a sale.
func (e Event) TotalCost() decimal.Decimal {
	if e.Kind == EventPurchase {
		return e.UnitCost.Mul(decimal.NewFromInt(e.Quantity))
	}
	total := decimal.Zero
	for _, a := range e.Allocations {
		total = total.Add(a.Cost())
	}
	return total
}

// =============================================================================
// INVARIANT CHECK
// =============================================================================

// CheckInvariants verifies the cached aggregates on an item against its
// open lots. Returns an InvariantViolationError on mismatch.
func CheckInvariants(item Item, openLots []Lot) error {
	var qty int64
	value := decimal.Zero
	for _, l := range openLots {
		qty += l.Remaining
		value = value.Add(l.Value())
	}
	if item.Stock != qty || !item.Balance.Equal(value) {
		return &CacheMismatchError{
			ItemCode:      item.Code,
			CachedStock:   item.Stock,
			ActualStock:   qty,
			CachedBalance: item.Balance,
			ActualBalance: value,
		}
	}
	return nil
}
