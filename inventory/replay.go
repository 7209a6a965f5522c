/*
replay.go - Chronological event replay for stock ledger reports

PURPOSE:
  Rebuilds, for an arbitrary date window, the stock composition (open-lot
  snapshots with quantity, unit cost and extended value) immediately after
  every event, plus running balances. The event log is the source of
  truth; present-day lot state is never consulted.

OPENING COMPOSITION:
  The state as of the window start is computed by replaying ALL events
  strictly before the start from an empty composition. Reading a lot's
  present-day remaining quantity would smear later sales into the past;
  point-in-time replay is the only correct reconstruction.

LOT-IDENTITY MATCHING:
  A sale's allocations are each bound to a specific lot. Replay reduces
  exactly that lot's tracked quantity. Matching by unit price would
  silently deplete the wrong lot whenever two lots share a price.

ORDERING:
  Events replay strictly by (date, seq). Seq is monotonic per item, so
  same-day purchases and sales resolve deterministically.

SEE ALSO:
  - summary.go: Reduces a ledger to window totals
  - store.go: EventsBefore / EventsInRange contracts
*/
package inventory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER ROWS
// =============================================================================

// StockEntry is one open-lot snapshot inside a composition.
type StockEntry struct {
	LotID    LotID
	Quantity int64
	UnitCost decimal.Decimal
}

// Total returns Quantity * UnitCost.
func (s StockEntry) Total() decimal.Decimal {
	return s.UnitCost.Mul(decimal.NewFromInt(s.Quantity))
}

// Leg is the in or out side of a ledger row.
type Leg struct {
	Quantity int64
	UnitCost decimal.Decimal
	Total    decimal.Decimal
}

// LedgerRow is the reconstructed state immediately after one event.
// Kind tags the variant: a purchase row has a zero Out leg, a sale row a
// zero In leg.
type LedgerRow struct {
	Kind        EventKind
	Date        Date
	HeaderCode  string
	Description string

	In  Leg
	Out Leg

	// Post-event composition, zero-quantity entries dropped.
	Stock []StockEntry

	// Running totals for the window.
	BalanceQty    int64
	BalanceValue  decimal.Decimal
	TotalInQty    int64
	TotalInValue  decimal.Decimal
	TotalOutQty   int64
	TotalOutValue decimal.Decimal
}

// StockLedger is the full reconstruction for one item and window.
type StockLedger struct {
	ItemCode ItemCode
	From     Date
	To       Date

	// Composition as of the start of the window.
	Opening      []StockEntry
	OpeningQty   int64
	OpeningValue decimal.Decimal

	Rows []LedgerRow
}

// =============================================================================
// REPLAYER
// =============================================================================

type Replayer struct {
	Store TxStore
}

func NewReplayer(store TxStore) *Replayer {
	return &Replayer{Store: store}
}

// BuildLedger reconstructs the stock ledger for events dated in [from, to].
// Read-only. Both event queries run under one store transaction, so a
// concurrent (possibly backdated) write cannot land between the opening
// replay and the window read.
func (r *Replayer) BuildLedger(ctx context.Context, code ItemCode, from, to Date) (*StockLedger, error) {
	if from.IsZero() || to.IsZero() {
		return nil, fmt.Errorf("%w: start and end dates are required", ErrInvalidInput)
	}
	if to.Before(from) {
		return nil, ErrInvalidPeriod
	}

	var ledger *StockLedger
	err := r.Store.WithTx(ctx, func(s Store) error {
		item, err := s.GetItem(ctx, code)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("%w: %s", ErrItemNotFound, code)
		}

		// Opening composition: point-in-time replay of everything before
		// the window, starting empty.
		comp := newComposition()
		prior, err := s.EventsBefore(ctx, code, from)
		if err != nil {
			return err
		}
		for _, ev := range prior {
			if err := comp.apply(ev); err != nil {
				return err
			}
		}

		ledger = &StockLedger{
			ItemCode: code,
			From:     from,
			To:       to,
			Opening:  comp.visible(),
		}
		ledger.OpeningQty, ledger.OpeningValue = comp.totals()

		events, err := s.EventsInRange(ctx, code, from, to)
		if err != nil {
			return err
		}

		var (
			totalInQty, totalOutQty     int64
			totalInValue, totalOutValue = decimal.Zero, decimal.Zero
		)
		for _, ev := range events {
			if err := comp.apply(ev); err != nil {
				return err
			}

			row := LedgerRow{
				Kind:        ev.Kind,
				Date:        ev.Date,
				HeaderCode:  ev.HeaderCode,
				Description: ev.Description,
				Stock:       comp.visible(),
			}

			switch ev.Kind {
			case EventPurchase:
				row.In = Leg{Quantity: ev.Quantity, UnitCost: ev.UnitCost, Total: ev.TotalCost()}
				totalInQty += row.In.Quantity
				totalInValue = totalInValue.Add(row.In.Total)
			case EventSale:
				row.Out = saleLeg(ev)
				totalOutQty += row.Out.Quantity
				totalOutValue = totalOutValue.Add(row.Out.Total)
			}

			row.BalanceQty, row.BalanceValue = comp.totals()
			row.TotalInQty, row.TotalInValue = totalInQty, totalInValue
			row.TotalOutQty, row.TotalOutValue = totalOutQty, totalOutValue
			ledger.Rows = append(ledger.Rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

// saleLeg aggregates a sale's allocations into one out leg. The unit cost
// is the quantity-weighted average, which collapses to the lot cost when a
// single lot funded the sale.
func saleLeg(ev Event) Leg {
	var qty int64
	total := decimal.Zero
	for _, a := range ev.Allocations {
		qty += a.Quantity
		total = total.Add(a.Cost())
	}
	leg := Leg{Quantity: qty, Total: total}
	if qty > 0 {
		leg.UnitCost = total.Div(decimal.NewFromInt(qty))
	}
	return leg
}

// =============================================================================
// WORKING COMPOSITION
// =============================================================================

// composition tracks open-lot quantities during replay, keyed by lot
// identity. Entries stay in acquisition order; zero-quantity entries are
// retained internally (a same-priced lot must never absorb their draws)
// but excluded from visible snapshots.
type composition struct {
	entries []*StockEntry
	byLot   map[LotID]*StockEntry
}

func newComposition() *composition {
	return &composition{byLot: make(map[LotID]*StockEntry)}
}

func (c *composition) apply(ev Event) error {
	switch ev.Kind {
	case EventPurchase:
		entry := &StockEntry{LotID: ev.LotID, Quantity: ev.Quantity, UnitCost: ev.UnitCost}
		c.entries = append(c.entries, entry)
		c.byLot[ev.LotID] = entry
		return nil
	case EventSale:
		for _, a := range ev.Allocations {
			entry, ok := c.byLot[a.LotID]
			if !ok {
				return fmt.Errorf("%w: allocation references unknown lot %s", ErrLotNotFound, a.LotID)
			}
			if a.Quantity > entry.Quantity {
				return &DepletionError{LotID: a.LotID, Remaining: entry.Quantity, Requested: a.Quantity}
			}
			entry.Quantity -= a.Quantity
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown event kind %q", ErrInvariantViolation, ev.Kind)
	}
}

// visible returns a copy of the composition with zero-quantity entries
// dropped.
func (c *composition) visible() []StockEntry {
	out := make([]StockEntry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.Quantity > 0 {
			out = append(out, *e)
		}
	}
	return out
}

func (c *composition) totals() (int64, decimal.Decimal) {
	var qty int64
	value := decimal.Zero
	for _, e := range c.entries {
		if e.Quantity > 0 {
			qty += e.Quantity
			value = value.Add(e.Total())
		}
	}
	return qty, value
}
