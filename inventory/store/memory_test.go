package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/inventory/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func saveItem(t *testing.T, s inventory.Store, code string) {
	t.Helper()
	err := s.SaveItem(context.Background(), inventory.Item{
		Code:    inventory.ItemCode(code),
		Name:    "Test " + code,
		Unit:    "pcs",
		Balance: decimal.Zero,
	})
	require.NoError(t, err)
}

func addLot(t *testing.T, s inventory.Store, code string, qty int64) inventory.Lot {
	t.Helper()
	ctx := context.Background()
	seq, err := s.NextSeq(ctx, inventory.ItemCode(code))
	require.NoError(t, err)

	lot := inventory.Lot{
		ID:        inventory.NewLotID(),
		ItemCode:  inventory.ItemCode(code),
		Acquired:  inventory.NewDate(2024, 1, 1),
		UnitCost:  decimal.RequireFromString("2"),
		Quantity:  qty,
		Remaining: qty,
		Seq:       seq,
	}
	require.NoError(t, s.AddLot(ctx, lot))
	return lot
}

// =============================================================================
// TRANSACTION ROLLBACK TESTS
// =============================================================================

func TestTxMemory_Rollback_UndoesEverythingTheTxTouched(t *testing.T) {
	// GIVEN: A transaction that creates a lot, depletes another, bumps the
	//        sequence and updates the item
	// WHEN: The transaction fails
	// THEN: All of it is undone - lot gone, depletion reverted, sequence
	//       and item caches back to their before-images

	tm := store.NewTxMemory()
	ctx := context.Background()
	saveItem(t, tm, "alpha")
	existing := addLot(t, tm, "alpha", 5)

	boom := errors.New("boom")
	var created inventory.LotID
	err := tm.WithTx(ctx, func(s inventory.Store) error {
		lot := addLot(t, s, "alpha", 3)
		created = lot.ID
		if err := s.DepleteLot(ctx, existing.ID, 2); err != nil {
			return err
		}
		item, err := s.GetItem(ctx, "alpha")
		if err != nil {
			return err
		}
		item.Stock = 99
		if err := s.UpdateItem(ctx, *item); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = tm.GetLot(ctx, created)
	assert.ErrorIs(t, err, inventory.ErrLotNotFound)

	got, err := tm.GetLot(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Remaining)

	item, err := tm.GetItem(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(0), item.Stock)

	// The sequence burned inside the failed transaction is reusable.
	seq, err := tm.NextSeq(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, existing.Seq+1, seq)
}

func TestTxMemory_Rollback_ScopedToTouchedItems(t *testing.T) {
	// GIVEN: A transaction mutating item alpha, with a commit landing on
	//        item beta while it is open
	// WHEN: The alpha transaction fails and rolls back
	// THEN: Beta's commit survives - rollback restores only what the
	//       transaction touched

	tm := store.NewTxMemory()
	ctx := context.Background()
	saveItem(t, tm, "alpha")
	saveItem(t, tm, "beta")

	boom := errors.New("boom")
	err := tm.WithTx(ctx, func(s inventory.Store) error {
		item, err := s.GetItem(ctx, "alpha")
		if err != nil {
			return err
		}
		item.Stock = 5
		if err := s.UpdateItem(ctx, *item); err != nil {
			return err
		}

		// A writer on a different item commits while this tx is open.
		addLot(t, tm, "beta", 7)
		beta, err := tm.GetItem(ctx, "beta")
		if err != nil {
			return err
		}
		beta.Stock = 7
		beta.Balance = decimal.RequireFromString("14")
		if err := tm.UpdateItem(ctx, *beta); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Alpha rolled back.
	alpha, err := tm.GetItem(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(0), alpha.Stock)

	// Beta's concurrent commit is untouched.
	beta, err := tm.GetItem(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, int64(7), beta.Stock)
	assert.True(t, beta.Balance.Equal(decimal.RequireFromString("14")))

	open, err := tm.OpenLots(ctx, "beta")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, int64(7), open[0].Remaining)
}

func TestTxMemory_Commit_KeepsMutations(t *testing.T) {
	tm := store.NewTxMemory()
	ctx := context.Background()
	saveItem(t, tm, "alpha")

	err := tm.WithTx(ctx, func(s inventory.Store) error {
		item, err := s.GetItem(ctx, "alpha")
		if err != nil {
			return err
		}
		item.Stock = 3
		return s.UpdateItem(ctx, *item)
	})
	require.NoError(t, err)

	item, err := tm.GetItem(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(3), item.Stock)
}

// =============================================================================
// ITEM REVIVAL TESTS
// =============================================================================

func TestMemory_ReviveDeletedItem_RebuildsCaches(t *testing.T) {
	// Re-creating a soft-deleted code picks the surviving open lots back
	// up into the cached aggregates.
	mem := store.NewMemory()
	ctx := context.Background()
	saveItem(t, mem, "widget")
	addLot(t, mem, "widget", 6)

	require.NoError(t, mem.DeleteItem(ctx, "widget"))
	saveItem(t, mem, "widget")

	item, err := mem.GetItem(ctx, "widget")
	require.NoError(t, err)
	assert.Equal(t, int64(6), item.Stock)
	assert.True(t, item.Balance.Equal(decimal.RequireFromString("12")))
}
