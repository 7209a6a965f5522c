// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/inventory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	items   map[inventory.ItemCode]*inventory.Item
	deleted map[inventory.ItemCode]bool
	lots    map[inventory.LotID]*inventory.Lot
	byItem  map[inventory.ItemCode][]inventory.LotID // acquisition order
	events  map[inventory.ItemCode][]inventory.Event // (date, seq) order
	seqs    map[inventory.ItemCode]int64
}

func NewMemory() *Memory {
	return &Memory{
		items:   make(map[inventory.ItemCode]*inventory.Item),
		deleted: make(map[inventory.ItemCode]bool),
		lots:    make(map[inventory.LotID]*inventory.Lot),
		byItem:  make(map[inventory.ItemCode][]inventory.LotID),
		events:  make(map[inventory.ItemCode][]inventory.Event),
		seqs:    make(map[inventory.ItemCode]int64),
	}
}

// =============================================================================
// ITEMS
// =============================================================================

func (m *Memory) SaveItem(_ context.Context, item inventory.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.items[item.Code]
	if exists && !m.deleted[item.Code] {
		return fmt.Errorf("%w: %s", inventory.ErrDuplicateCode, item.Code)
	}
	stored := item
	if exists && m.deleted[item.Code] {
		// Revive: the code's lots survive soft delete, so the cached
		// aggregates are rebuilt from the surviving open lots.
		stored.Stock = 0
		stored.Balance = decimal.Zero
		for _, id := range m.byItem[item.Code] {
			lot := m.lots[id]
			if lot.Remaining > 0 {
				stored.Stock += lot.Remaining
				stored.Balance = stored.Balance.Add(lot.Value())
			}
		}
	}
	m.items[item.Code] = &stored
	delete(m.deleted, item.Code)
	return nil
}

func (m *Memory) UpdateItem(_ context.Context, item inventory.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[item.Code]; !exists || m.deleted[item.Code] {
		return fmt.Errorf("%w: %s", inventory.ErrItemNotFound, item.Code)
	}
	stored := item
	m.items[item.Code] = &stored
	return nil
}

func (m *Memory) GetItem(_ context.Context, code inventory.ItemCode) (*inventory.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[code]
	if !ok || m.deleted[code] {
		return nil, nil
	}
	result := *item
	return &result, nil
}

func (m *Memory) ListItems(_ context.Context) ([]inventory.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []inventory.Item
	for code, item := range m.items {
		if !m.deleted[code] {
			result = append(result, *item)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (m *Memory) DeleteItem(_ context.Context, code inventory.ItemCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[code]; !ok || m.deleted[code] {
		return fmt.Errorf("%w: %s", inventory.ErrItemNotFound, code)
	}
	m.deleted[code] = true
	return nil
}

// =============================================================================
// LOTS
// =============================================================================

func (m *Memory) AddLot(_ context.Context, lot inventory.Lot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := lot
	m.lots[lot.ID] = &stored

	// Insert in (acquired, seq) order. Lots normally arrive in sequence
	// order already; backdated purchases are the exception.
	ids := m.byItem[lot.ItemCode]
	i := sort.Search(len(ids), func(i int) bool {
		other := m.lots[ids[i]]
		if !other.Acquired.Equal(lot.Acquired) {
			return other.Acquired.After(lot.Acquired)
		}
		return other.Seq > lot.Seq
	})
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = lot.ID
	m.byItem[lot.ItemCode] = ids
	return nil
}

func (m *Memory) OpenLots(_ context.Context, code inventory.ItemCode) ([]inventory.Lot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []inventory.Lot
	for _, id := range m.byItem[code] {
		lot := m.lots[id]
		if lot.Remaining > 0 {
			result = append(result, *lot)
		}
	}
	return result, nil
}

func (m *Memory) GetLot(_ context.Context, id inventory.LotID) (*inventory.Lot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lot, ok := m.lots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", inventory.ErrLotNotFound, id)
	}
	result := *lot
	return &result, nil
}

func (m *Memory) DepleteLot(_ context.Context, id inventory.LotID, qty int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lot, ok := m.lots[id]
	if !ok {
		return fmt.Errorf("%w: %s", inventory.ErrLotNotFound, id)
	}
	if qty > lot.Remaining {
		return &inventory.DepletionError{LotID: id, Remaining: lot.Remaining, Requested: qty}
	}
	lot.Remaining -= qty
	return nil
}

// =============================================================================
// EVENTS
// =============================================================================

func (m *Memory) AppendEvent(_ context.Context, ev inventory.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	evs := m.events[ev.ItemCode]
	i := sort.Search(len(evs), func(i int) bool {
		if !evs[i].Date.Equal(ev.Date) {
			return evs[i].Date.After(ev.Date)
		}
		return evs[i].Seq > ev.Seq
	})
	evs = append(evs, inventory.Event{})
	copy(evs[i+1:], evs[i:])
	evs[i] = ev
	m.events[ev.ItemCode] = evs
	return nil
}

func (m *Memory) EventsBefore(_ context.Context, code inventory.ItemCode, cutoff inventory.Date) ([]inventory.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []inventory.Event
	for _, ev := range m.events[code] {
		if ev.Date.Before(cutoff) {
			result = append(result, ev)
		}
	}
	return result, nil
}

func (m *Memory) EventsInRange(_ context.Context, code inventory.ItemCode, from, to inventory.Date) ([]inventory.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []inventory.Event
	for _, ev := range m.events[code] {
		if from.BeforeOrEqual(ev.Date) && ev.Date.BeforeOrEqual(to) {
			result = append(result, ev)
		}
	}
	return result, nil
}

func (m *Memory) NextSeq(_ context.Context, code inventory.ItemCode) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seqs[code]++
	return m.seqs[code], nil
}

// itemOfLot resolves which item a lot belongs to.
func (m *Memory) itemOfLot(id inventory.LotID) (inventory.ItemCode, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lot, ok := m.lots[id]
	if !ok {
		return "", false
	}
	return lot.ItemCode, true
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction. Rollback is scoped to the
// items the transaction touched: a failing transaction on one item must
// not erase commits that landed on other items while it was open.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	tx := &txMemory{Memory: tm.Memory, saved: make(map[inventory.ItemCode]itemState)}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// itemState is the captured before-image of one item's state.
type itemState struct {
	item    *inventory.Item
	present bool
	deleted bool
	lots    map[inventory.LotID]inventory.Lot
	order   []inventory.LotID
	events  []inventory.Event
	seq     int64
}

// txMemory records a before-image of every item a transaction mutates,
// so rollback restores only those items.
type txMemory struct {
	*Memory
	saved map[inventory.ItemCode]itemState
}

// save captures the item's state the first time the transaction touches it.
func (tx *txMemory) save(code inventory.ItemCode) {
	if _, ok := tx.saved[code]; ok {
		return
	}
	m := tx.Memory
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := itemState{
		lots:    make(map[inventory.LotID]inventory.Lot, len(m.byItem[code])),
		order:   append([]inventory.LotID{}, m.byItem[code]...),
		events:  append([]inventory.Event{}, m.events[code]...),
		seq:     m.seqs[code],
		deleted: m.deleted[code],
	}
	if item, ok := m.items[code]; ok {
		v := *item
		st.item = &v
		st.present = true
	}
	for _, id := range m.byItem[code] {
		st.lots[id] = *m.lots[id]
	}
	tx.saved[code] = st
}

func (tx *txMemory) rollback() {
	m := tx.Memory
	m.mu.Lock()
	defer m.mu.Unlock()

	for code, st := range tx.saved {
		// Drop lots the transaction created, then restore the before-images.
		for _, id := range m.byItem[code] {
			if _, ok := st.lots[id]; !ok {
				delete(m.lots, id)
			}
		}
		for id, lot := range st.lots {
			v := lot
			m.lots[id] = &v
		}
		m.byItem[code] = st.order
		m.events[code] = st.events
		m.seqs[code] = st.seq
		if st.present {
			v := *st.item
			m.items[code] = &v
		} else {
			delete(m.items, code)
		}
		if st.deleted {
			m.deleted[code] = true
		} else {
			delete(m.deleted, code)
		}
	}
}

// Mutating methods capture the item's before-image first; reads pass
// through the embedded Memory unchanged.

func (tx *txMemory) SaveItem(ctx context.Context, item inventory.Item) error {
	tx.save(item.Code)
	return tx.Memory.SaveItem(ctx, item)
}

func (tx *txMemory) UpdateItem(ctx context.Context, item inventory.Item) error {
	tx.save(item.Code)
	return tx.Memory.UpdateItem(ctx, item)
}

func (tx *txMemory) DeleteItem(ctx context.Context, code inventory.ItemCode) error {
	tx.save(code)
	return tx.Memory.DeleteItem(ctx, code)
}

func (tx *txMemory) AddLot(ctx context.Context, lot inventory.Lot) error {
	tx.save(lot.ItemCode)
	return tx.Memory.AddLot(ctx, lot)
}

func (tx *txMemory) DepleteLot(ctx context.Context, id inventory.LotID, qty int64) error {
	if code, ok := tx.Memory.itemOfLot(id); ok {
		tx.save(code)
	}
	return tx.Memory.DepleteLot(ctx, id, qty)
}

func (tx *txMemory) AppendEvent(ctx context.Context, ev inventory.Event) error {
	tx.save(ev.ItemCode)
	return tx.Memory.AppendEvent(ctx, ev)
}

func (tx *txMemory) NextSeq(ctx context.Context, code inventory.ItemCode) (int64, error) {
	tx.save(code)
	return tx.Memory.NextSeq(ctx, code)
}
