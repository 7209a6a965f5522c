/*
handlers.go - HTTP API handlers for the stock engine

PURPOSE:
  Exposes the FIFO inventory engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Items:
    GET    /api/items                  List all items
    POST   /api/items                  Create item
    GET    /api/items/{code}           Get item details
    PUT    /api/items/{code}           Update item attributes
    DELETE /api/items/{code}           Soft-delete item
    GET    /api/items/{code}/report    Stock ledger report for a date window

  Purchases:
    GET    /api/purchases                  List purchase headers
    POST   /api/purchases                  Create purchase header
    GET    /api/purchases/{code}           Get header
    DELETE /api/purchases/{code}           Soft-delete header
    GET    /api/purchases/{code}/details   List purchase lines
    POST   /api/purchases/{code}/details   Record a purchase line

  Sales:
    Same shape under /api/sales; a sale line triggers FIFO allocation.

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (engine, replayer, store)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, insufficient stock
  - 404: Resource not found
  - 409: Duplicate code
  - 500: Internal errors, invariant violations

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Engine   *inventory.Engine
	Replayer *inventory.Replayer
}

// NewHandler creates a new handler over the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:    store,
		Engine:   inventory.NewEngine(store),
		Replayer: inventory.NewReplayer(store),
	}
}

// =============================================================================
// ITEM HANDLERS
// =============================================================================

// ListItems returns all items.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListItems(r.Context())
	if err != nil {
		writeError(w, "Failed to list items", err)
		return
	}

	dtos := make([]ItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toItemDTO(item)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateItem creates a new item with zero stock.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Invalid request body", err)
		return
	}
	if req.Code == "" || req.Name == "" || req.Unit == "" {
		writeBadRequest(w, "code, name and unit are required", nil)
		return
	}

	item := inventory.Item{
		Code:        inventory.ItemCode(req.Code),
		Name:        req.Name,
		Unit:        req.Unit,
		Description: req.Description,
		Balance:     decimal.Zero,
	}
	if err := h.Store.SaveItem(r.Context(), item); err != nil {
		writeError(w, "Failed to create item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(item))
}

// GetItem returns a single item.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	code := inventory.ItemCode(chi.URLParam(r, "code"))

	item, err := h.Store.GetItem(r.Context(), code)
	if err != nil {
		writeError(w, "Failed to get item", err)
		return
	}
	if item == nil {
		writeNotFound(w, "Item not found")
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(*item))
}

// UpdateItem updates an item's attributes. Cached stock and balance are
// engine-maintained and not touched here.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	code := inventory.ItemCode(chi.URLParam(r, "code"))

	var req UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Invalid request body", err)
		return
	}

	item, err := h.Store.GetItem(r.Context(), code)
	if err != nil {
		writeError(w, "Failed to get item", err)
		return
	}
	if item == nil {
		writeNotFound(w, "Item not found")
		return
	}

	if req.Name != "" {
		item.Name = req.Name
	}
	if req.Unit != "" {
		item.Unit = req.Unit
	}
	item.Description = req.Description

	if err := h.Store.UpdateItem(r.Context(), *item); err != nil {
		writeError(w, "Failed to update item", err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(*item))
}

// DeleteItem soft-deletes an item. Its lots and events survive for replay.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	code := inventory.ItemCode(chi.URLParam(r, "code"))

	if err := h.Store.DeleteItem(r.Context(), code); err != nil {
		writeError(w, "Failed to delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REPORT HANDLER
// =============================================================================

// GetReport rebuilds the stock ledger for an item over a date window and
// returns it with the valuation summary.
// GET /api/items/{code}/report?start_date=2024-01-01&end_date=2024-01-31
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	code := inventory.ItemCode(chi.URLParam(r, "code"))

	from, err := inventory.ParseDate(r.URL.Query().Get("start_date"))
	if err != nil {
		writeBadRequest(w, "Invalid start_date (use YYYY-MM-DD)", err)
		return
	}
	to, err := inventory.ParseDate(r.URL.Query().Get("end_date"))
	if err != nil {
		writeBadRequest(w, "Invalid end_date (use YYYY-MM-DD)", err)
		return
	}

	item, err := h.Store.GetItem(r.Context(), code)
	if err != nil {
		writeError(w, "Failed to get item", err)
		return
	}
	if item == nil {
		writeNotFound(w, "Item not found")
		return
	}

	ledger, err := h.Replayer.BuildLedger(r.Context(), code, from, to)
	if err != nil {
		writeError(w, "Failed to build report", err)
		return
	}
	summary := inventory.Summarize(ledger)

	writeJSON(w, http.StatusOK, toReportDTO(*item, ledger, summary))
}

// =============================================================================
// DOCUMENT HEADER HANDLERS
// =============================================================================

// ListHeaders returns all live headers of one kind.
func (h *Handler) ListHeaders(kind sqlite.HeaderKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		headers, err := h.Store.ListHeaders(r.Context(), kind)
		if err != nil {
			writeError(w, "Failed to list headers", err)
			return
		}

		dtos := make([]HeaderDTO, len(headers))
		for i, hdr := range headers {
			dtos[i] = toHeaderDTO(hdr)
		}
		writeJSON(w, http.StatusOK, dtos)
	}
}

// CreateHeader creates a document header of one kind.
func (h *Handler) CreateHeader(kind sqlite.HeaderKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateHeaderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "Invalid request body", err)
			return
		}
		if req.Code == "" {
			writeBadRequest(w, "code is required", nil)
			return
		}
		date, err := inventory.ParseDate(req.Date)
		if err != nil {
			writeBadRequest(w, "Invalid date (use YYYY-MM-DD)", err)
			return
		}

		hdr := sqlite.HeaderRecord{
			Code:        req.Code,
			Kind:        kind,
			Date:        date,
			Description: req.Description,
		}
		if err := h.Store.SaveHeader(r.Context(), hdr); err != nil {
			writeError(w, "Failed to create header", err)
			return
		}
		writeJSON(w, http.StatusCreated, toHeaderDTO(hdr))
	}
}

// GetHeader returns a single header of one kind.
func (h *Handler) GetHeader(kind sqlite.HeaderKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		hdr, err := h.Store.GetHeader(r.Context(), kind, code)
		if err != nil {
			writeError(w, "Failed to get header", err)
			return
		}
		if hdr == nil {
			writeNotFound(w, "Header not found")
			return
		}
		writeJSON(w, http.StatusOK, toHeaderDTO(*hdr))
	}
}

// DeleteHeader soft-deletes a header. Recorded stock movements are part of
// the audit trail and stay in the event log.
func (h *Handler) DeleteHeader(kind sqlite.HeaderKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		if err := h.Store.DeleteHeader(r.Context(), kind, code); err != nil {
			writeError(w, "Failed to delete header", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// =============================================================================
// PURCHASE LINE HANDLERS
// =============================================================================

// ListPurchaseLines returns the lots created under a purchase header.
func (h *Handler) ListPurchaseLines(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	hdr, err := h.requireHeader(w, r, sqlite.HeaderPurchase, code)
	if hdr == nil || err != nil {
		return
	}

	lots, err := h.Store.LotsByHeader(r.Context(), code)
	if err != nil {
		writeError(w, "Failed to list purchase lines", err)
		return
	}

	dtos := make([]PurchaseLineDTO, len(lots))
	for i, lot := range lots {
		dtos[i] = toPurchaseLineDTO(lot)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePurchaseLine records a purchase of an item under a header. The
// line takes the header's date.
func (h *Handler) CreatePurchaseLine(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	hdr, err := h.requireHeader(w, r, sqlite.HeaderPurchase, code)
	if hdr == nil || err != nil {
		return
	}

	var req CreatePurchaseLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Invalid request body", err)
		return
	}
	unitCost, err := decimal.NewFromString(req.UnitCost)
	if err != nil {
		writeBadRequest(w, "Invalid unit_cost", err)
		return
	}

	lot, err := h.Engine.RecordPurchase(r.Context(), inventory.PurchaseInput{
		ItemCode:    inventory.ItemCode(req.ItemCode),
		Date:        hdr.Date,
		Quantity:    req.Quantity,
		UnitCost:    unitCost,
		HeaderCode:  code,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, "Failed to record purchase", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPurchaseLineDTO(*lot))
}

// =============================================================================
// SALE LINE HANDLERS
// =============================================================================

// ListSaleLines returns the sale events recorded under a sale header.
func (h *Handler) ListSaleLines(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	hdr, err := h.requireHeader(w, r, sqlite.HeaderSale, code)
	if hdr == nil || err != nil {
		return
	}

	events, err := h.Store.EventsByHeader(r.Context(), code)
	if err != nil {
		writeError(w, "Failed to list sale lines", err)
		return
	}

	dtos := make([]SaleLineDTO, 0, len(events))
	for _, ev := range events {
		dtos = append(dtos, toSaleLineDTO(ev))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSaleLine records a sale of an item under a header, allocating
// cost from the oldest open lots first. The line takes the header's date.
func (h *Handler) CreateSaleLine(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	hdr, err := h.requireHeader(w, r, sqlite.HeaderSale, code)
	if hdr == nil || err != nil {
		return
	}

	var req CreateSaleLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Invalid request body", err)
		return
	}

	result, err := h.Engine.AllocateSale(r.Context(), inventory.SaleInput{
		ItemCode:    inventory.ItemCode(req.ItemCode),
		Date:        hdr.Date,
		Quantity:    req.Quantity,
		HeaderCode:  code,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, "Failed to record sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSaleLineDTO(result.Event))
}

// requireHeader loads a live header of the given kind, writing the error
// response itself when the header is missing or the lookup fails.
func (h *Handler) requireHeader(w http.ResponseWriter, r *http.Request, kind sqlite.HeaderKind, code string) (*sqlite.HeaderRecord, error) {
	hdr, err := h.Store.GetHeader(r.Context(), kind, code)
	if err != nil {
		writeError(w, "Failed to get header", err)
		return nil, err
	}
	if hdr == nil {
		writeNotFound(w, "Header not found")
		return nil, nil
	}
	return hdr, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps a domain error to its HTTP status.
func writeError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeBadRequest(w http.ResponseWriter, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{Error: message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, inventory.ErrDuplicateCode):
		return http.StatusConflict
	case inventory.IsNotFound(err):
		return http.StatusNotFound
	case inventory.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
