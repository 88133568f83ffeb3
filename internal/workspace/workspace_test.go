package workspace

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookkeeping/internal/core"
	"bookkeeping/internal/sheets/memory"
)

// countingStore counts list calls and can fail writes.
type countingStore struct {
	*memory.Store
	lists    atomic.Int64
	writeErr error
}

func (s *countingStore) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	s.lists.Add(1)
	return s.Store.ListTransactions(ctx)
}

func (s *countingStore) AddTransaction(ctx context.Context, d core.TransactionData) (core.Transaction, error) {
	if s.writeErr != nil {
		return core.Transaction{}, s.writeErr
	}
	return s.Store.AddTransaction(ctx, d)
}

func seeded() *countingStore {
	return &countingStore{Store: memory.New(
		core.Transaction{ID: "a", TransactionData: core.TransactionData{Date: "2024-01-01", Type: core.Income, Amount: core.Money{Cents: 1000}, Category: "Salary"}},
		core.Transaction{ID: "b", TransactionData: core.TransactionData{Date: "2024-01-02", Type: core.Expense, Amount: core.Money{Cents: 300}, Category: "Food"}},
	)}
}

func newManager(store *countingStore) *Manager {
	return NewManager(store, Options{SessionTTL: time.Hour, SnapshotTTL: time.Minute})
}

func TestManager_GetCreatesOnceAndKeepsSession(t *testing.T) {
	m := newManager(seeded())

	ws, created := m.Get("s1")
	require.True(t, created)
	again, created := m.Get("s1")
	assert.False(t, created)
	assert.Same(t, ws, again)

	fresh, created := m.Get("")
	assert.True(t, created)
	assert.NotEmpty(t, fresh.ID)
	assert.Equal(t, 2, m.Sessions())
}

func TestManager_SnapshotIsSharedUntilInvalidated(t *testing.T) {
	store := seeded()
	m := newManager(store)
	ctx := context.Background()
	ws, _ := m.Get("s")

	txs, err := m.Transactions(ctx, ws)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	_, err = m.Transactions(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, store.lists.Load())

	_, err = m.AddTransaction(ctx, core.TransactionData{Date: "2024-02-01", Type: core.Expense, Amount: core.Money{Cents: 50}, Category: "Fees"})
	require.NoError(t, err)

	txs, err = m.Transactions(ctx, ws)
	require.NoError(t, err)
	assert.Len(t, txs, 3)
	assert.EqualValues(t, 2, store.lists.Load())
}

func TestManager_RefreshResetsStaleSelection(t *testing.T) {
	m := newManager(seeded())
	ctx := context.Background()
	ws, _ := m.Get("s")
	other, _ := m.Get("t")

	_, err := m.Transactions(ctx, ws)
	require.NoError(t, err)
	_, err = m.Transactions(ctx, other)
	require.NoError(t, err)
	ws.Selection.ToggleOne("a")
	other.Selection.ToggleOne("b")

	_, err = m.Transactions(ctx, ws)
	require.NoError(t, err)
	assert.True(t, ws.Selection.Selected("a"), "no refresh happened yet")

	// Deleting from one session replaces the set for every session.
	ws.Selection.OpenConfirm()
	require.NoError(t, ws.Selection.ConfirmDelete(ctx))

	txs, err := m.Transactions(ctx, other)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Zero(t, other.Selection.Len())
}

func TestManager_ExternalDeleteDropsSelectedRow(t *testing.T) {
	store := seeded()
	m := NewManager(store, Options{})
	ctx := context.Background()
	ws, _ := m.Get("s")

	_, err := m.Transactions(ctx, ws)
	require.NoError(t, err)
	ws.Selection.ToggleOne("a")
	ws.Selection.ToggleOne("b")
	ws.Selection.OpenConfirm()

	// Another writer removes b without going through the manager.
	require.NoError(t, store.Store.DeleteTransactions(ctx, []string{"b"}))

	txs, err := m.Transactions(ctx, ws)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.False(t, ws.Selection.Selected("b"))
	assert.Equal(t, []string{"a"}, ws.Selection.IDs())
	assert.False(t, ws.Selection.Confirming(), "prompt counted a row that is gone")
}

func TestManager_ImportCommitRefreshes(t *testing.T) {
	m := newManager(seeded())
	ctx := context.Background()
	ws, _ := m.Get("s")

	ws.Drafts.Load([]core.Draft{
		{Key: "k1", TransactionData: core.TransactionData{Date: "2024-03-01", Type: core.Expense, Amount: core.Money{Cents: 10}, Category: "X"}},
		{Key: "k2", TransactionData: core.TransactionData{Date: "2024-03-02", Type: core.Income, Amount: core.Money{Cents: 20}, Category: "Y"}},
	})
	require.NoError(t, ws.Importer.Commit(ctx, ws.Drafts))
	assert.True(t, ws.Drafts.Empty())

	txs, err := m.Transactions(ctx, ws)
	require.NoError(t, err)
	assert.Len(t, txs, 4)
}

func TestManager_AddTransactionValidatesAndKeepsSnapshotOnFailure(t *testing.T) {
	store := seeded()
	m := newManager(store)
	ctx := context.Background()

	_, err := m.AddTransaction(ctx, core.TransactionData{Date: "", Type: core.Expense, Category: "X"})
	assert.ErrorIs(t, err, core.ErrEmptyDate)

	_, err = m.Transactions(ctx, nil)
	require.NoError(t, err)

	store.writeErr = errors.New("quota exceeded")
	_, err = m.AddTransaction(ctx, core.TransactionData{Date: "2024-01-01", Type: core.Expense, Amount: core.Money{Cents: 1}, Category: "X"})
	require.Error(t, err)

	_, err = m.Transactions(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, store.lists.Load(), "failed write must not invalidate the snapshot")
}

func TestManager_UpdateTransaction(t *testing.T) {
	m := newManager(seeded())
	ctx := context.Background()
	category := "Groceries"

	assert.ErrorIs(t, m.UpdateTransaction(ctx, "b", core.TransactionPatch{}), core.ErrEmptyPatch)
	assert.ErrorIs(t, m.UpdateTransaction(ctx, "zzz", core.TransactionPatch{Category: &category}), ErrNotFound)
	require.NoError(t, m.UpdateTransaction(ctx, "b", core.TransactionPatch{Category: &category}))

	txs, err := m.Transactions(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", txs[1].Category)
}

func TestWorkspace_NoticesAreOneShot(t *testing.T) {
	m := newManager(seeded())
	ws, _ := m.Get("s")

	ws.Notify(LevelError, "No valid transactions found in CSV.")
	ws.SetFileName("jan.csv")

	notices := ws.TakeNotices()
	require.Len(t, notices, 1)
	assert.Equal(t, LevelError, notices[0].Level)
	assert.Empty(t, ws.TakeNotices())
	assert.Equal(t, "jan.csv", ws.FileName())
}
