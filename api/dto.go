/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Item:
    ItemDTO, CreateItemRequest, UpdateItemRequest

  Documents:
    HeaderDTO, CreateHeaderRequest
    PurchaseLineDTO, CreatePurchaseLineRequest
    SaleLineDTO, AllocationDTO, CreateSaleLineRequest

  Report:
    ReportDTO, LedgerRowDTO, LegDTO, StockEntryDTO, SummaryDTO

MONEY SERIALIZATION:
  Decimal values are serialized as strings ("12.50"), never floats.
  Clients parse them with their own decimal library.

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - inventory/replay.go: StockLedger, the source of ReportDTO
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/store/sqlite"
)

// =============================================================================
// ITEM TYPES
// =============================================================================

// ItemDTO represents an item in API responses.
type ItemDTO struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	Description string `json:"description,omitempty"`
	Stock       int64  `json:"stock"`
	Balance     string `json:"balance"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// CreateItemRequest is the request to create an item.
type CreateItemRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
}

// UpdateItemRequest is the request to update an item's attributes.
// Stock and balance are engine-maintained and not client-writable.
type UpdateItemRequest struct {
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
}

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// HeaderDTO represents a purchase or sale document header.
type HeaderDTO struct {
	Code        string `json:"code"`
	Date        string `json:"date"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// CreateHeaderRequest is the request to create a document header.
type CreateHeaderRequest struct {
	Code        string `json:"code"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

// CreatePurchaseLineRequest is the request to record a purchase line
// under a header. The line takes the header's date.
type CreatePurchaseLineRequest struct {
	ItemCode    string `json:"item_code"`
	Quantity    int64  `json:"quantity"`
	UnitCost    string `json:"unit_cost"`
	Description string `json:"description"`
}

// PurchaseLineDTO represents a recorded purchase line (a lot).
type PurchaseLineDTO struct {
	LotID      string `json:"lot_id"`
	ItemCode   string `json:"item_code"`
	HeaderCode string `json:"header_code,omitempty"`
	Date       string `json:"date"`
	Quantity   int64  `json:"quantity"`
	Remaining  int64  `json:"remaining"`
	UnitCost   string `json:"unit_cost"`
	Total      string `json:"total"`
}

// CreateSaleLineRequest is the request to record a sale line under a
// header. The line takes the header's date; cost comes from FIFO matching.
type CreateSaleLineRequest struct {
	ItemCode    string `json:"item_code"`
	Quantity    int64  `json:"quantity"`
	Description string `json:"description"`
}

// SaleLineDTO represents a recorded sale line with its lot allocations.
type SaleLineDTO struct {
	EventID     string          `json:"event_id"`
	ItemCode    string          `json:"item_code"`
	HeaderCode  string          `json:"header_code,omitempty"`
	Date        string          `json:"date"`
	Quantity    int64           `json:"quantity"`
	TotalCost   string          `json:"total_cost"`
	Allocations []AllocationDTO `json:"allocations"`
}

// AllocationDTO represents one lot's contribution to a sale.
type AllocationDTO struct {
	LotID    string `json:"lot_id"`
	Quantity int64  `json:"quantity"`
	UnitCost string `json:"unit_cost"`
	Cost     string `json:"cost"`
}

// =============================================================================
// REPORT TYPES
// =============================================================================

// ReportDTO is the stock ledger report for one item and date window.
type ReportDTO struct {
	ItemCode  string         `json:"item_code"`
	ItemName  string         `json:"item_name"`
	Unit      string         `json:"unit"`
	StartDate string         `json:"start_date"`
	EndDate   string         `json:"end_date"`
	Opening   OpeningDTO     `json:"opening"`
	Rows      []LedgerRowDTO `json:"rows"`
	Summary   SummaryDTO     `json:"summary"`
}

// OpeningDTO is the stock composition as of the window start.
type OpeningDTO struct {
	Stock []StockEntryDTO `json:"stock"`
	Qty   int64           `json:"qty"`
	Value string          `json:"value"`
}

// LedgerRowDTO is one reconstructed movement row.
type LedgerRowDTO struct {
	Kind        string          `json:"kind"`
	Date        string          `json:"date"`
	HeaderCode  string          `json:"header_code,omitempty"`
	Description string          `json:"description,omitempty"`
	In          *LegDTO         `json:"in,omitempty"`
	Out         *LegDTO         `json:"out,omitempty"`
	Stock       []StockEntryDTO `json:"stock"`
	BalanceQty  int64           `json:"balance_qty"`
	BalanceVal  string          `json:"balance_value"`
}

// LegDTO is the in or out side of a ledger row.
type LegDTO struct {
	Quantity int64  `json:"quantity"`
	UnitCost string `json:"unit_cost"`
	Total    string `json:"total"`
}

// StockEntryDTO is one open-lot snapshot inside a composition.
type StockEntryDTO struct {
	Quantity int64  `json:"quantity"`
	UnitCost string `json:"unit_cost"`
	Total    string `json:"total"`
}

// SummaryDTO is the window totals.
type SummaryDTO struct {
	InQty        int64  `json:"in_qty"`
	InValue      string `json:"in_value"`
	OutQty       int64  `json:"out_qty"`
	OutValue     string `json:"out_value"`
	ClosingQty   int64  `json:"closing_qty"`
	ClosingValue string `json:"closing_value"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toItemDTO(item inventory.Item) ItemDTO {
	return ItemDTO{
		Code:        string(item.Code),
		Name:        item.Name,
		Unit:        item.Unit,
		Description: item.Description,
		Stock:       item.Stock,
		Balance:     item.Balance.String(),
		CreatedAt:   item.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   item.UpdatedAt.Format(time.RFC3339),
	}
}

func toHeaderDTO(h sqlite.HeaderRecord) HeaderDTO {
	return HeaderDTO{
		Code:        h.Code,
		Date:        h.Date.String(),
		Description: h.Description,
		CreatedAt:   h.CreatedAt.Format(time.RFC3339),
	}
}

func toPurchaseLineDTO(lot inventory.Lot) PurchaseLineDTO {
	return PurchaseLineDTO{
		LotID:      string(lot.ID),
		ItemCode:   string(lot.ItemCode),
		HeaderCode: lot.HeaderCode,
		Date:       lot.Acquired.String(),
		Quantity:   lot.Quantity,
		Remaining:  lot.Remaining,
		UnitCost:   lot.UnitCost.String(),
		Total:      lot.UnitCost.Mul(decimal.NewFromInt(lot.Quantity)).String(),
	}
}

func toSaleLineDTO(ev inventory.Event) SaleLineDTO {
	dto := SaleLineDTO{
		EventID:     string(ev.ID),
		ItemCode:    string(ev.ItemCode),
		HeaderCode:  ev.HeaderCode,
		Date:        ev.Date.String(),
		Quantity:    ev.Quantity,
		TotalCost:   ev.TotalCost().String(),
		Allocations: make([]AllocationDTO, len(ev.Allocations)),
	}
	for i, a := range ev.Allocations {
		dto.Allocations[i] = AllocationDTO{
			LotID:    string(a.LotID),
			Quantity: a.Quantity,
			UnitCost: a.UnitCost.String(),
			Cost:     a.Cost().String(),
		}
	}
	return dto
}

func toStockEntryDTOs(entries []inventory.StockEntry) []StockEntryDTO {
	dtos := make([]StockEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = StockEntryDTO{
			Quantity: e.Quantity,
			UnitCost: e.UnitCost.String(),
			Total:    e.Total().String(),
		}
	}
	return dtos
}

func toReportDTO(item inventory.Item, ledger *inventory.StockLedger, summary inventory.Summary) ReportDTO {
	report := ReportDTO{
		ItemCode:  string(ledger.ItemCode),
		ItemName:  item.Name,
		Unit:      item.Unit,
		StartDate: ledger.From.String(),
		EndDate:   ledger.To.String(),
		Opening: OpeningDTO{
			Stock: toStockEntryDTOs(ledger.Opening),
			Qty:   ledger.OpeningQty,
			Value: ledger.OpeningValue.String(),
		},
		Rows: make([]LedgerRowDTO, len(ledger.Rows)),
		Summary: SummaryDTO{
			InQty:        summary.InQty,
			InValue:      summary.InValue.String(),
			OutQty:       summary.OutQty,
			OutValue:     summary.OutValue.String(),
			ClosingQty:   summary.ClosingQty,
			ClosingValue: summary.ClosingValue.String(),
		},
	}

	for i, row := range ledger.Rows {
		dto := LedgerRowDTO{
			Kind:        string(row.Kind),
			Date:        row.Date.String(),
			HeaderCode:  row.HeaderCode,
			Description: row.Description,
			Stock:       toStockEntryDTOs(row.Stock),
			BalanceQty:  row.BalanceQty,
			BalanceVal:  row.BalanceValue.String(),
		}
		switch row.Kind {
		case inventory.EventPurchase:
			dto.In = &LegDTO{Quantity: row.In.Quantity, UnitCost: row.In.UnitCost.String(), Total: row.In.Total.String()}
		case inventory.EventSale:
			dto.Out = &LegDTO{Quantity: row.Out.Quantity, UnitCost: row.Out.UnitCost.String(), Total: row.Out.Total.String()}
		}
		report.Rows[i] = dto
	}
	return report
}
