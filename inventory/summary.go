package inventory

import "github.com/shopspring/decimal"

// =============================================================================
// VALUATION SUMMARY - Window totals reduced from a stock ledger
// =============================================================================

// Summary aggregates a report window: total in/out movement and the
// closing stock position.
type Summary struct {
	InQty        int64
	InValue      decimal.Decimal
	OutQty       int64
	OutValue     decimal.Decimal
	ClosingQty   int64
	ClosingValue decimal.Decimal
}

// Summarize reduces a stock ledger to its window totals. Pure: the rows
// already carry running totals, so the last row decides everything. A
// window with zero events closes at the opening composition.
func Summarize(ledger *StockLedger) Summary {
	s := Summary{
		InValue:      decimal.Zero,
		OutValue:     decimal.Zero,
		ClosingQty:   ledger.OpeningQty,
		ClosingValue: ledger.OpeningValue,
	}
	if len(ledger.Rows) == 0 {
		return s
	}

	last := ledger.Rows[len(ledger.Rows)-1]
	s.InQty = last.TotalInQty
	s.InValue = last.TotalInValue
	s.OutQty = last.TotalOutQty
	s.OutValue = last.TotalOutValue
	s.ClosingQty = last.BalanceQty
	s.ClosingValue = last.BalanceValue
	return s
}
