/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the persistence collaborator (inventory.Store / inventory.TxStore)
  plus document-header storage using SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The event log is append-only:
  - No UPDATE statements on the events or allocations tables
  - No DELETE statements on the events, allocations, or lots tables
  - The only lot mutation is the remaining-quantity decrement, guarded so
    it can never go negative

KEY TABLES:
  items:       Products with cached stock/balance aggregates
  headers:     Purchase/sale documents (soft-deleted, never dropped)
  lots:        Purchase batches with remaining quantity for FIFO
  events:      Immutable log of stock movements, ordered by (date, seq)
  allocations: Which lot(s) funded each sale, and at what cost
  item_seqs:   Per-item monotonic insertion sequence

ORDERING:
  The (date, seq) key drives both FIFO lot consumption and deterministic
  replay. idx_lots_item_fifo and idx_events_item_date keep those hot paths
  indexed.

SOFT DELETE:
  Headers and items are soft-deleted: a flag is set and every read query
  filters on it. The event log is untouched - lifecycle state is a
  presentation concern, not an engine one.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, with WAL mode for better reader
  concurrency. WithTx holds the write lock for the whole read-plan-commit
  sequence, giving the engine its atomic unit.

USAGE:
  store, err := sqlite.New("./data/stock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := inventory.NewEngine(store)

SEE ALSO:
  - inventory/store.go: Interface definitions
  - inventory/engine.go: Uses WithTx for purchase/sale atomicity
  - inventory/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/inventory"
)

// Store implements inventory.TxStore plus document-header storage.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: every ":memory:" connection is a separate database,
	// and the store's mutex serializes access anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Items (cached aggregates maintained by the engine)
	CREATE TABLE IF NOT EXISTS items (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		unit TEXT NOT NULL,
		description TEXT,
		stock INTEGER NOT NULL DEFAULT 0,
		balance TEXT NOT NULL DEFAULT '0',
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Document headers (purchase/sale), soft-deleted only
	CREATE TABLE IF NOT EXISTS headers (
		code TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		date TEXT NOT NULL,
		description TEXT,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_headers_kind
		ON headers(kind, date);

	-- Lots (purchase batches); remaining can never go negative
	CREATE TABLE IF NOT EXISTS lots (
		id TEXT PRIMARY KEY,
		item_code TEXT NOT NULL,
		header_code TEXT,
		acquired TEXT NOT NULL,
		unit_cost TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		remaining INTEGER NOT NULL CHECK (remaining >= 0),
		seq INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	-- FIFO ordering (hot path for allocation)
	CREATE INDEX IF NOT EXISTS idx_lots_item_fifo
		ON lots(item_code, acquired, seq);
	CREATE INDEX IF NOT EXISTS idx_lots_header
		ON lots(header_code) WHERE header_code IS NOT NULL;

	-- Events (append-only stock movement log)
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		item_code TEXT NOT NULL,
		kind TEXT NOT NULL,
		date TEXT NOT NULL,
		seq INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		unit_cost TEXT,
		lot_id TEXT,
		header_code TEXT,
		description TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(item_code, seq)
	);

	-- Replay ordering (hot path for reports)
	CREATE INDEX IF NOT EXISTS idx_events_item_date
		ON events(item_code, date, seq);
	CREATE INDEX IF NOT EXISTS idx_events_header
		ON events(header_code) WHERE header_code IS NOT NULL;

	-- Allocations (which lots funded each sale)
	CREATE TABLE IF NOT EXISTS allocations (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		lot_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_cost TEXT NOT NULL,
		UNIQUE(event_id, lot_id)
	);

	CREATE INDEX IF NOT EXISTS idx_allocations_event
		ON allocations(event_id);
	CREATE INDEX IF NOT EXISTS idx_allocations_lot
		ON allocations(lot_id);

	-- Per-item monotonic insertion sequence
	CREATE TABLE IF NOT EXISTS item_seqs (
		item_code TEXT PRIMARY KEY,
		seq INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx abstracts *sql.DB and *sql.Tx so the same queries serve both the
// direct path and WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// ITEM STORE (inventory.Store interface)
// =============================================================================

// SaveItem inserts a new item. A soft-deleted item with the same code is
// revived; a live one yields ErrDuplicateCode.
func (s *Store) SaveItem(ctx context.Context, item inventory.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveItem(ctx, s.db, item)
}

func (s *Store) saveItem(ctx context.Context, db dbtx, item inventory.Item) error {
	var deleted int
	err := db.QueryRowContext(ctx, "SELECT is_deleted FROM items WHERE code = ?", item.Code).Scan(&deleted)
	switch {
	case err == sql.ErrNoRows:
		// New item
	case err != nil:
		return fmt.Errorf("failed to check item: %w", err)
	case deleted == 0:
		return fmt.Errorf("%w: item %s", inventory.ErrDuplicateCode, item.Code)
	default:
		// Revive under the new attributes. The code's lots and events
		// survive soft delete, so the cached aggregates must be rebuilt
		// from the surviving open lots, not taken from the caller.
		lots, err := s.openLots(ctx, db, item.Code)
		if err != nil {
			return err
		}
		item.Stock = 0
		item.Balance = decimal.Zero
		for _, l := range lots {
			item.Stock += l.Remaining
			item.Balance = item.Balance.Add(l.Value())
		}
		if _, err := db.ExecContext(ctx, "DELETE FROM items WHERE code = ?", item.Code); err != nil {
			return fmt.Errorf("failed to replace item: %w", err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = db.ExecContext(ctx, `
		INSERT INTO items (code, name, unit, description, stock, balance, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		item.Code, item.Name, item.Unit, item.Description,
		item.Stock, item.Balance.String(), now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: item %s", inventory.ErrDuplicateCode, item.Code)
		}
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

// UpdateItem updates an item's attributes and cached aggregates.
func (s *Store) UpdateItem(ctx context.Context, item inventory.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateItem(ctx, s.db, item)
}

func (s *Store) updateItem(ctx context.Context, db dbtx, item inventory.Item) error {
	res, err := db.ExecContext(ctx, `
		UPDATE items SET name = ?, unit = ?, description = ?, stock = ?, balance = ?, updated_at = ?
		WHERE code = ? AND is_deleted = 0`,
		item.Name, item.Unit, item.Description, item.Stock, item.Balance.String(),
		time.Now().UTC().Format(time.RFC3339), item.Code,
	)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", inventory.ErrItemNotFound, item.Code)
	}
	return nil
}

// GetItem retrieves an item by code. Returns (nil, nil) when missing or
// soft-deleted.
func (s *Store) GetItem(ctx context.Context, code inventory.ItemCode) (*inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getItem(ctx, s.db, code)
}

func (s *Store) getItem(ctx context.Context, db dbtx, code inventory.ItemCode) (*inventory.Item, error) {
	row := db.QueryRowContext(ctx, `
		SELECT code, name, unit, description, stock, balance, created_at, updated_at
		FROM items WHERE code = ? AND is_deleted = 0`, code)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListItems returns all live items ordered by code.
func (s *Store) ListItems(ctx context.Context) ([]inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listItems(ctx, s.db)
}

func (s *Store) listItems(ctx context.Context, db dbtx) ([]inventory.Item, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT code, name, unit, description, stock, balance, created_at, updated_at
		FROM items WHERE is_deleted = 0 ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []inventory.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// DeleteItem soft-deletes an item.
func (s *Store) DeleteItem(ctx context.Context, code inventory.ItemCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteItem(ctx, s.db, code)
}

func (s *Store) deleteItem(ctx context.Context, db dbtx, code inventory.ItemCode) error {
	res, err := db.ExecContext(ctx,
		"UPDATE items SET is_deleted = 1 WHERE code = ? AND is_deleted = 0", code)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", inventory.ErrItemNotFound, code)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (*inventory.Item, error) {
	var (
		item                 inventory.Item
		description          sql.NullString
		balance              string
		createdAt, updatedAt string
	)
	err := r.Scan(&item.Code, &item.Name, &item.Unit, &description,
		&item.Stock, &balance, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	item.Description = description.String
	item.Balance = mustDecimal(balance)
	item.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	item.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &item, nil
}

// =============================================================================
// LOT STORE
// =============================================================================

// AddLot inserts a new lot.
func (s *Store) AddLot(ctx context.Context, lot inventory.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLot(ctx, s.db, lot)
}

func (s *Store) addLot(ctx context.Context, db dbtx, lot inventory.Lot) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO lots (id, item_code, header_code, acquired, unit_cost, quantity, remaining, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lot.ID, lot.ItemCode, nullString(lot.HeaderCode), lot.Acquired.String(),
		lot.UnitCost.String(), lot.Quantity, lot.Remaining, lot.Seq,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to add lot: %w", err)
	}
	return nil
}

// OpenLots returns lots with remaining stock, ascending by (acquired, seq).
func (s *Store) OpenLots(ctx context.Context, code inventory.ItemCode) ([]inventory.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openLots(ctx, s.db, code)
}

func (s *Store) openLots(ctx context.Context, db dbtx, code inventory.ItemCode) ([]inventory.Lot, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, item_code, header_code, acquired, unit_cost, quantity, remaining, seq, created_at
		FROM lots
		WHERE item_code = ? AND remaining > 0
		ORDER BY acquired ASC, seq ASC`, code)
	if err != nil {
		return nil, fmt.Errorf("failed to query open lots: %w", err)
	}
	defer rows.Close()

	return collectLots(rows)
}

// GetLot retrieves a lot by ID.
func (s *Store) GetLot(ctx context.Context, id inventory.LotID) (*inventory.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLot(ctx, s.db, id)
}

func (s *Store) getLot(ctx context.Context, db dbtx, id inventory.LotID) (*inventory.Lot, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, item_code, header_code, acquired, unit_cost, quantity, remaining, seq, created_at
		FROM lots WHERE id = ?`, id)

	lot, err := scanLot(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", inventory.ErrLotNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return lot, nil
}

// DepleteLot decrements a lot's remaining quantity. The WHERE guard (and
// the CHECK constraint behind it) make a negative result impossible.
func (s *Store) DepleteLot(ctx context.Context, id inventory.LotID, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depleteLot(ctx, s.db, id, qty)
}

func (s *Store) depleteLot(ctx context.Context, db dbtx, id inventory.LotID, qty int64) error {
	res, err := db.ExecContext(ctx,
		"UPDATE lots SET remaining = remaining - ? WHERE id = ? AND remaining >= ?",
		qty, id, qty)
	if err != nil {
		return fmt.Errorf("failed to deplete lot: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var remaining int64
		err := db.QueryRowContext(ctx, "SELECT remaining FROM lots WHERE id = ?", id).Scan(&remaining)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", inventory.ErrLotNotFound, id)
		}
		if err != nil {
			return err
		}
		return &inventory.DepletionError{LotID: id, Remaining: remaining, Requested: qty}
	}
	return nil
}

// LotsByHeader returns the lots created under a purchase header, in
// insertion order.
func (s *Store) LotsByHeader(ctx context.Context, headerCode string) ([]inventory.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_code, header_code, acquired, unit_cost, quantity, remaining, seq, created_at
		FROM lots WHERE header_code = ? ORDER BY seq ASC`, headerCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots by header: %w", err)
	}
	defer rows.Close()

	return collectLots(rows)
}

func collectLots(rows *sql.Rows) ([]inventory.Lot, error) {
	var lots []inventory.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, *lot)
	}
	return lots, rows.Err()
}

func scanLot(r rowScanner) (*inventory.Lot, error) {
	var (
		lot        inventory.Lot
		headerCode sql.NullString
		acquired   string
		unitCost   string
		createdAt  string
	)
	err := r.Scan(&lot.ID, &lot.ItemCode, &headerCode, &acquired, &unitCost,
		&lot.Quantity, &lot.Remaining, &lot.Seq, &createdAt)
	if err != nil {
		return nil, err
	}
	lot.HeaderCode = headerCode.String
	lot.Acquired, _ = inventory.ParseDate(acquired)
	lot.UnitCost = mustDecimal(unitCost)
	lot.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &lot, nil
}

// =============================================================================
// EVENT STORE (append-only)
// =============================================================================

// AppendEvent persists an event and, for sales, its allocations. The
// direct path wraps both inserts in a transaction; inside WithTx the
// enclosing transaction already covers them.
func (s *Store) AppendEvent(ctx context.Context, ev inventory.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.appendEvent(ctx, sqlTx, ev); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) appendEvent(ctx context.Context, db dbtx, ev inventory.Event) error {
	var unitCost, lotID any
	if ev.Kind == inventory.EventPurchase {
		unitCost = ev.UnitCost.String()
		lotID = string(ev.LotID)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO events (id, item_code, kind, date, seq, quantity, unit_cost, lot_id, header_code, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ItemCode, ev.Kind, ev.Date.String(), ev.Seq, ev.Quantity,
		unitCost, lotID, nullString(ev.HeaderCode), nullString(ev.Description),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	for _, a := range ev.Allocations {
		_, err := db.ExecContext(ctx, `
			INSERT INTO allocations (id, event_id, lot_id, quantity, unit_cost)
			VALUES (?, ?, ?, ?, ?)`,
			a.ID, a.EventID, a.LotID, a.Quantity, a.UnitCost.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to append allocation: %w", err)
		}
	}
	return nil
}

// EventsBefore returns events dated strictly before cutoff, by (date, seq).
func (s *Store) EventsBefore(ctx context.Context, code inventory.ItemCode, cutoff inventory.Date) ([]inventory.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eventsBefore(ctx, s.db, code, cutoff)
}

func (s *Store) eventsBefore(ctx context.Context, db dbtx, code inventory.ItemCode, cutoff inventory.Date) ([]inventory.Event, error) {
	return s.queryEvents(ctx, db, `
		SELECT id, item_code, kind, date, seq, quantity, unit_cost, lot_id, header_code, description, created_at
		FROM events
		WHERE item_code = ? AND date < ?
		ORDER BY date ASC, seq ASC`, code, cutoff.String())
}

// EventsInRange returns events dated in [from, to], by (date, seq).
func (s *Store) EventsInRange(ctx context.Context, code inventory.ItemCode, from, to inventory.Date) ([]inventory.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eventsInRange(ctx, s.db, code, from, to)
}

func (s *Store) eventsInRange(ctx context.Context, db dbtx, code inventory.ItemCode, from, to inventory.Date) ([]inventory.Event, error) {
	return s.queryEvents(ctx, db, `
		SELECT id, item_code, kind, date, seq, quantity, unit_cost, lot_id, header_code, description, created_at
		FROM events
		WHERE item_code = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, seq ASC`, code, from.String(), to.String())
}

// EventsByHeader returns the events recorded under a document header, in
// insertion order.
func (s *Store) EventsByHeader(ctx context.Context, headerCode string) ([]inventory.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEvents(ctx, s.db, `
		SELECT id, item_code, kind, date, seq, quantity, unit_cost, lot_id, header_code, description, created_at
		FROM events
		WHERE header_code = ?
		ORDER BY seq ASC`, headerCode)
}

func (s *Store) queryEvents(ctx context.Context, db dbtx, query string, args ...any) ([]inventory.Event, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []inventory.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Attach allocations to sale events.
	for i := range events {
		if events[i].Kind != inventory.EventSale {
			continue
		}
		allocs, err := s.loadAllocations(ctx, db, events[i].ID)
		if err != nil {
			return nil, err
		}
		events[i].Allocations = allocs
	}
	return events, nil
}

func (s *Store) loadAllocations(ctx context.Context, db dbtx, eventID inventory.EventID) ([]inventory.Allocation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, event_id, lot_id, quantity, unit_cost
		FROM allocations WHERE event_id = ? ORDER BY rowid ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var allocs []inventory.Allocation
	for rows.Next() {
		var (
			a        inventory.Allocation
			unitCost string
		)
		if err := rows.Scan(&a.ID, &a.EventID, &a.LotID, &a.Quantity, &unitCost); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		a.UnitCost = mustDecimal(unitCost)
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

func scanEvent(rows *sql.Rows) (*inventory.Event, error) {
	var (
		ev          inventory.Event
		date        string
		unitCost    sql.NullString
		lotID       sql.NullString
		headerCode  sql.NullString
		description sql.NullString
		createdAt   string
	)
	err := rows.Scan(&ev.ID, &ev.ItemCode, &ev.Kind, &date, &ev.Seq, &ev.Quantity,
		&unitCost, &lotID, &headerCode, &description, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	ev.Date, _ = inventory.ParseDate(date)
	if unitCost.Valid {
		ev.UnitCost = mustDecimal(unitCost.String)
	}
	ev.LotID = inventory.LotID(lotID.String)
	ev.HeaderCode = headerCode.String
	ev.Description = description.String
	ev.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &ev, nil
}

// NextSeq returns the next per-item insertion sequence number.
func (s *Store) NextSeq(ctx context.Context, code inventory.ItemCode) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSeq(ctx, s.db, code)
}

func (s *Store) nextSeq(ctx context.Context, db dbtx, code inventory.ItemCode) (int64, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO item_seqs (item_code, seq) VALUES (?, 1)
		ON CONFLICT(item_code) DO UPDATE SET seq = seq + 1`, code)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence: %w", err)
	}

	var seq int64
	err = db.QueryRowContext(ctx, "SELECT seq FROM item_seqs WHERE item_code = ?", code).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence: %w", err)
	}
	return seq, nil
}

// =============================================================================
// TRANSACTIONAL STORE (inventory.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction, holding the
// write lock for the whole read-plan-commit sequence.
func (s *Store) WithTx(ctx context.Context, fn func(store inventory.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes Store calls through an open transaction. The parent's
// mutex is already held by WithTx, so no further locking here.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) SaveItem(ctx context.Context, item inventory.Item) error {
	return ts.parent.saveItem(ctx, ts.tx, item)
}

func (ts *txStore) UpdateItem(ctx context.Context, item inventory.Item) error {
	return ts.parent.updateItem(ctx, ts.tx, item)
}

func (ts *txStore) GetItem(ctx context.Context, code inventory.ItemCode) (*inventory.Item, error) {
	return ts.parent.getItem(ctx, ts.tx, code)
}

func (ts *txStore) ListItems(ctx context.Context) ([]inventory.Item, error) {
	return ts.parent.listItems(ctx, ts.tx)
}

func (ts *txStore) DeleteItem(ctx context.Context, code inventory.ItemCode) error {
	return ts.parent.deleteItem(ctx, ts.tx, code)
}

func (ts *txStore) AddLot(ctx context.Context, lot inventory.Lot) error {
	return ts.parent.addLot(ctx, ts.tx, lot)
}

func (ts *txStore) OpenLots(ctx context.Context, code inventory.ItemCode) ([]inventory.Lot, error) {
	return ts.parent.openLots(ctx, ts.tx, code)
}

func (ts *txStore) GetLot(ctx context.Context, id inventory.LotID) (*inventory.Lot, error) {
	return ts.parent.getLot(ctx, ts.tx, id)
}

func (ts *txStore) DepleteLot(ctx context.Context, id inventory.LotID, qty int64) error {
	return ts.parent.depleteLot(ctx, ts.tx, id, qty)
}

func (ts *txStore) AppendEvent(ctx context.Context, ev inventory.Event) error {
	return ts.parent.appendEvent(ctx, ts.tx, ev)
}

func (ts *txStore) EventsBefore(ctx context.Context, code inventory.ItemCode, cutoff inventory.Date) ([]inventory.Event, error) {
	return ts.parent.eventsBefore(ctx, ts.tx, code, cutoff)
}

func (ts *txStore) EventsInRange(ctx context.Context, code inventory.ItemCode, from, to inventory.Date) ([]inventory.Event, error) {
	return ts.parent.eventsInRange(ctx, ts.tx, code, from, to)
}

func (ts *txStore) NextSeq(ctx context.Context, code inventory.ItemCode) (int64, error) {
	return ts.parent.nextSeq(ctx, ts.tx, code)
}

// =============================================================================
// HEADER STORE
// =============================================================================

// HeaderKind distinguishes purchase documents from sale documents.
type HeaderKind string

const (
	HeaderPurchase HeaderKind = "purchase"
	HeaderSale     HeaderKind = "sale"
)

// HeaderRecord is a stored purchase/sale document header. Detail lines
// created under a header take the header's date.
type HeaderRecord struct {
	Code        string
	Kind        HeaderKind
	Date        inventory.Date
	Description string
	CreatedAt   time.Time
}

// SaveHeader inserts a new header. ErrDuplicateCode if the code exists.
func (s *Store) SaveHeader(ctx context.Context, h HeaderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO headers (code, kind, date, description, is_deleted, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		h.Code, h.Kind, h.Date.String(), h.Description,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: header %s", inventory.ErrDuplicateCode, h.Code)
		}
		return fmt.Errorf("failed to save header: %w", err)
	}
	return nil
}

// GetHeader retrieves a live header by code and kind. Returns (nil, nil)
// when missing or soft-deleted.
func (s *Store) GetHeader(ctx context.Context, kind HeaderKind, code string) (*HeaderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		h           HeaderRecord
		date        string
		description sql.NullString
		createdAt   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT code, kind, date, description, created_at
		FROM headers WHERE code = ? AND kind = ? AND is_deleted = 0`, code, kind,
	).Scan(&h.Code, &h.Kind, &date, &description, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	h.Date, _ = inventory.ParseDate(date)
	h.Description = description.String
	h.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &h, nil
}

// ListHeaders returns all live headers of a kind, newest first.
func (s *Store) ListHeaders(ctx context.Context, kind HeaderKind) ([]HeaderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT code, kind, date, description, created_at
		FROM headers WHERE kind = ? AND is_deleted = 0
		ORDER BY date DESC, code`, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list headers: %w", err)
	}
	defer rows.Close()

	var headers []HeaderRecord
	for rows.Next() {
		var (
			h           HeaderRecord
			date        string
			description sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&h.Code, &h.Kind, &date, &description, &createdAt); err != nil {
			return nil, err
		}
		h.Date, _ = inventory.ParseDate(date)
		h.Description = description.String
		h.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		headers = append(headers, h)
	}
	return headers, rows.Err()
}

// DeleteHeader soft-deletes a header. The event log and lots are left
// untouched; reads filter on the flag.
func (s *Store) DeleteHeader(ctx context.Context, kind HeaderKind, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE headers SET is_deleted = 1 WHERE code = ? AND kind = ? AND is_deleted = 0", code, kind)
	if err != nil {
		return fmt.Errorf("failed to delete header: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", inventory.ErrHeaderNotFound, code)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
