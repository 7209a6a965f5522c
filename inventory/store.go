/*
store.go - Persistence interface for items, lots, and the event log

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:   Item/lot persistence plus the append-only event log
  TxStore: Transactional operations (atomic read-modify-write)

APPEND-ONLY CONTRACT:
  The event log is append-only: AppendEvent is the only event write and
  there is no update or delete. Lots are created once; the only permitted
  mutation is DepleteLot, which can never drive Remaining negative.

ORDERING:
  Implementations must preserve the (date, seq) ordering key. Seq is a
  per-item monotonic counter handed out by NextSeq; it is the tie-break
  that makes same-day replay deterministic.

ATOMICITY:
  AllocateSale performs read-plan-commit against one item's lot set. The
  engine wraps that sequence in WithTx so either every draw from a sale
  commits or none does.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - inventory/store/memory.go: In-memory for testing

SEE ALSO:
  - engine.go: Uses WithTx for purchase/sale atomicity
  - replay.go: Read-only consumer of the event log
*/
package inventory

import "context"

// =============================================================================
// STORE - Persistence for items, lots, events
// =============================================================================

type Store interface {
	// Items
	SaveItem(ctx context.Context, item Item) error   // insert; ErrDuplicateCode if code exists
	UpdateItem(ctx context.Context, item Item) error // update attributes and cached aggregates
	GetItem(ctx context.Context, code ItemCode) (*Item, error)
	ListItems(ctx context.Context) ([]Item, error)
	DeleteItem(ctx context.Context, code ItemCode) error // soft delete

	// Lots
	AddLot(ctx context.Context, lot Lot) error

	// OpenLots returns lots with Remaining > 0, ascending by
	// (Acquired, Seq). This ordering is the FIFO contract and must be
	// stable even when two lots share a date.
	OpenLots(ctx context.Context, code ItemCode) ([]Lot, error)

	GetLot(ctx context.Context, id LotID) (*Lot, error)

	// DepleteLot decrements a lot's remaining quantity. Implementations
	// must fail with ErrInvariantViolation if the result would be negative.
	DepleteLot(ctx context.Context, id LotID, qty int64) error

	// Events (append-only)
	AppendEvent(ctx context.Context, ev Event) error

	// EventsBefore returns events with date strictly before cutoff,
	// ordered by (date, seq). Used to rebuild opening composition.
	EventsBefore(ctx context.Context, code ItemCode, cutoff Date) ([]Event, error)

	// EventsInRange returns events with date in [from, to], ordered by
	// (date, seq).
	EventsInRange(ctx context.Context, code ItemCode, from, to Date) ([]Event, error)

	// NextSeq returns the next per-item insertion sequence number.
	// Monotonic per item; shared by lots and events.
	NextSeq(ctx context.Context, code ItemCode) (int64, error)
}

// =============================================================================
// TRANSACTIONAL STORE - Atomic read-modify-write for one item's lot set
// =============================================================================

// TxStore wraps Store with transaction support.
// Use this when you need atomic operations (e.g., allocating a sale).
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
