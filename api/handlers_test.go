package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/api"
	"github.com/warp/stock-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(store)))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp, decoded
}

func doJSONList(t *testing.T, url string) (*http.Response, []map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded []map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func createTestItem(t *testing.T, srv *httptest.Server, code string) {
	t.Helper()
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/items", map[string]any{
		"code": code, "name": "Test " + code, "unit": "pcs",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func createTestHeader(t *testing.T, srv *httptest.Server, kind, code, date string) {
	t.Helper()
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/"+kind, map[string]any{
		"code": code, "date": date,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func recordPurchase(t *testing.T, srv *httptest.Server, header, item string, qty int64, cost string) {
	t.Helper()
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/purchases/"+header+"/details", map[string]any{
		"item_code": item, "quantity": qty, "unit_cost": cost,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

// =============================================================================
// ITEM ENDPOINT TESTS
// =============================================================================

func TestAPI_Items_CRUD(t *testing.T) {
	srv := newTestServer(t)

	// Create
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/items", map[string]any{
		"code": "widget", "name": "Widget", "unit": "pcs", "description": "round thing",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "widget", body["code"])
	assert.Equal(t, "0", body["balance"])

	// Duplicate -> 409
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/items", map[string]any{
		"code": "widget", "name": "Widget", "unit": "pcs",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Get
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/items/widget", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Widget", body["name"])

	// Update
	resp, body = doJSON(t, http.MethodPut, srv.URL+"/api/items/widget", map[string]any{
		"name": "Widget Mk2", "unit": "pcs", "description": "rounder",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Widget Mk2", body["name"])

	// Delete, then 404
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/items/widget", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/items/widget", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_Items_MissingFields_BadRequest(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/items", map[string]any{"code": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// PURCHASE / SALE FLOW TESTS
// =============================================================================

func TestAPI_PurchaseSaleFlow_FIFOCosts(t *testing.T) {
	// GIVEN: 10 @ $5 and 5 @ $6 purchased under two headers
	// WHEN: Selling 12 under a sale header
	// THEN: The sale line reports two allocations totalling $62, and the
	//       item closes at stock 3 / balance $18

	srv := newTestServer(t)
	createTestItem(t, srv, "widget")
	createTestHeader(t, srv, "purchases", "PO-1", "2024-01-01")
	createTestHeader(t, srv, "purchases", "PO-2", "2024-01-02")
	createTestHeader(t, srv, "sales", "SO-1", "2024-01-03")

	recordPurchase(t, srv, "PO-1", "widget", 10, "5")
	recordPurchase(t, srv, "PO-2", "widget", 5, "6")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/sales/SO-1/details", map[string]any{
		"item_code": "widget", "quantity": 12,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "62", body["total_cost"])

	allocs, ok := body["allocations"].([]any)
	require.True(t, ok)
	require.Len(t, allocs, 2)
	first := allocs[0].(map[string]any)
	second := allocs[1].(map[string]any)
	assert.Equal(t, float64(10), first["quantity"])
	assert.Equal(t, "5", first["unit_cost"])
	assert.Equal(t, float64(2), second["quantity"])
	assert.Equal(t, "6", second["unit_cost"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/items/widget", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["stock"])
	assert.Equal(t, "18", body["balance"])
}

func TestAPI_Sale_InsufficientStock_BadRequest(t *testing.T) {
	srv := newTestServer(t)
	createTestItem(t, srv, "widget")
	createTestHeader(t, srv, "purchases", "PO-1", "2024-01-01")
	createTestHeader(t, srv, "sales", "SO-1", "2024-01-02")
	recordPurchase(t, srv, "PO-1", "widget", 5, "5")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/sales/SO-1/details", map[string]any{
		"item_code": "widget", "quantity": 8,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["details"], "insufficient stock")

	// Nothing depleted by the rejected sale.
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/items/widget", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(5), body["stock"])
}

func TestAPI_PurchaseLine_UnknownHeader_NotFound(t *testing.T) {
	srv := newTestServer(t)
	createTestItem(t, srv, "widget")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/purchases/NOPE/details", map[string]any{
		"item_code": "widget", "quantity": 1, "unit_cost": "1",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_PurchaseLines_ListedUnderHeader(t *testing.T) {
	srv := newTestServer(t)
	createTestItem(t, srv, "widget")
	createTestHeader(t, srv, "purchases", "PO-1", "2024-01-01")
	recordPurchase(t, srv, "PO-1", "widget", 10, "5")
	recordPurchase(t, srv, "PO-1", "widget", 4, "6")

	resp, lines := doJSONList(t, srv.URL+"/api/purchases/PO-1/details")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, lines, 2)
	assert.Equal(t, "5", lines[0]["unit_cost"])
	assert.Equal(t, "50", lines[0]["total"])
	assert.Equal(t, "6", lines[1]["unit_cost"])
}

func TestAPI_Header_SoftDelete_HidesDetails(t *testing.T) {
	srv := newTestServer(t)
	createTestItem(t, srv, "widget")
	createTestHeader(t, srv, "purchases", "PO-1", "2024-01-01")
	recordPurchase(t, srv, "PO-1", "widget", 10, "5")

	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/api/purchases/PO-1", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Header and its detail listing are gone...
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/purchases/PO-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = doJSONList(t, srv.URL+"/api/purchases/PO-1/details")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// ...but the recorded stock is untouched.
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/items/widget", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(10), body["stock"])
}

// =============================================================================
// REPORT ENDPOINT TESTS
// =============================================================================

func TestAPI_Report_FullWindow(t *testing.T) {
	srv := newTestServer(t)
	createTestItem(t, srv, "widget")
	createTestHeader(t, srv, "purchases", "PO-1", "2024-01-01")
	createTestHeader(t, srv, "purchases", "PO-2", "2024-01-02")
	createTestHeader(t, srv, "sales", "SO-1", "2024-01-03")
	recordPurchase(t, srv, "PO-1", "widget", 10, "5")
	recordPurchase(t, srv, "PO-2", "widget", 5, "6")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/sales/SO-1/details", map[string]any{
		"item_code": "widget", "quantity": 12,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	url := fmt.Sprintf("%s/api/items/widget/report?start_date=%s&end_date=%s",
		srv.URL, "2024-01-01", "2024-01-31")
	resp, body := doJSON(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rows, ok := body["rows"].([]any)
	require.True(t, ok)
	assert.Len(t, rows, 3)

	summary, ok := body["summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(15), summary["in_qty"])
	assert.Equal(t, "80", summary["in_value"])
	assert.Equal(t, float64(12), summary["out_qty"])
	assert.Equal(t, "62", summary["out_value"])
	assert.Equal(t, float64(3), summary["closing_qty"])
	assert.Equal(t, "18", summary["closing_value"])
}

func TestAPI_Report_OpeningFromPriorEvents(t *testing.T) {
	srv := newTestServer(t)
	createTestItem(t, srv, "widget")
	createTestHeader(t, srv, "purchases", "PO-1", "2024-01-10")
	createTestHeader(t, srv, "sales", "SO-1", "2024-02-10")
	recordPurchase(t, srv, "PO-1", "widget", 10, "5")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/sales/SO-1/details", map[string]any{
		"item_code": "widget", "quantity": 4,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	url := srv.URL + "/api/items/widget/report?start_date=2024-03-01&end_date=2024-03-31"
	resp, body := doJSON(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	opening, ok := body["opening"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(6), opening["qty"])
	assert.Equal(t, "30", opening["value"])
}

func TestAPI_Report_BadWindow_Rejected(t *testing.T) {
	srv := newTestServer(t)
	createTestItem(t, srv, "widget")

	// Missing dates
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/items/widget/report", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// End before start
	url := srv.URL + "/api/items/widget/report?start_date=2024-02-01&end_date=2024-01-01"
	resp, _ = doJSON(t, http.MethodGet, url, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown item
	url = srv.URL + "/api/items/ghost/report?start_date=2024-01-01&end_date=2024-01-31"
	resp, _ = doJSON(t, http.MethodGet, url, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
