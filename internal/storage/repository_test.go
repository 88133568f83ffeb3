package storage

import (
	"context"
	"path/filepath"
	"testing"

	"bookkeeping/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func syncAll(t *testing.T, repo *SQLiteRepository) {
	t.Helper()
	pending, err := repo.GetPendingSync(context.Background(), 100)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if err := repo.MarkSynced(context.Background(), pending); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
}

func sample(date, category string, cents int64, typ core.TransactionType) core.TransactionData {
	return core.TransactionData{Date: date, Type: typ, Amount: core.Money{Cents: cents}, Category: category}
}

func TestInsertAndList(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	inserted, err := repo.InsertTransactions(ctx, []core.TransactionData{
		sample("2024-01-01", "Salary", 100000, core.Income),
		sample("2024-01-02", "Food", 1250, core.Expense),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(inserted) != 2 || inserted[0].ID == "" || inserted[0].ID == inserted[1].ID {
		t.Fatalf("expected two distinct ids, got %+v", inserted)
	}

	all, err := repo.ListTransactions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(all))
	}
	if all[0].Category != "Salary" || all[0].Type != core.Income || all[1].Amount.Cents != 1250 {
		t.Fatalf("unexpected rows %+v", all)
	}

	pending, err := repo.GetPendingSync(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 || pending[0].Op != OpInsert {
		t.Fatalf("expected two pending inserts, got %+v", pending)
	}
}

func TestAddTransactionReturnsID(t *testing.T) {
	repo := newTestRepo(t)
	tx, err := repo.AddTransaction(context.Background(), sample("2024-03-01", "Rent", 50000, core.Expense))
	if err != nil || tx.ID == "" {
		t.Fatalf("unexpected add: %+v %v", tx, err)
	}
	got, err := repo.GetTransactionsByIDs(context.Background(), []string{tx.ID, "missing"})
	if err != nil || len(got) != 1 || got[0].Category != "Rent" {
		t.Fatalf("unexpected lookup: %+v %v", got, err)
	}
}

func TestDeleteIsSoftUntilSynced(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	inserted, _ := repo.InsertTransactions(ctx, []core.TransactionData{
		sample("2024-01-01", "A", 100, core.Expense),
		sample("2024-01-02", "B", 200, core.Expense),
	})
	syncAll(t, repo)

	if err := repo.DeleteTransactions(ctx, []string{inserted[0].ID, "unknown"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	all, _ := repo.ListTransactions(ctx)
	if len(all) != 1 || all[0].ID != inserted[1].ID {
		t.Fatalf("deleted row still listed: %+v", all)
	}

	pending, _ := repo.GetPendingSync(ctx, 10)
	if len(pending) != 1 || pending[0].Op != OpDelete || pending[0].Transaction.ID != inserted[0].ID {
		t.Fatalf("expected one pending delete, got %+v", pending)
	}

	syncAll(t, repo)
	if pending, _ := repo.GetPendingSync(ctx, 10); len(pending) != 0 {
		t.Fatalf("expected nothing pending, got %+v", pending)
	}
}

func TestGetPendingByIDs(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	inserted, _ := repo.InsertTransactions(ctx, []core.TransactionData{
		sample("2024-01-01", "A", 100, core.Expense),
		sample("2024-01-02", "B", 200, core.Expense),
	})
	syncAll(t, repo)
	_, _ = repo.InsertTransactions(ctx, []core.TransactionData{sample("2024-01-03", "C", 300, core.Expense)})
	_ = repo.DeleteTransactions(ctx, []string{inserted[1].ID})

	got, err := repo.GetPendingByIDs(ctx, []string{inserted[0].ID, inserted[1].ID, "missing"})
	if err != nil {
		t.Fatalf("pending by id: %v", err)
	}
	if len(got) != 1 || got[0].Op != OpDelete {
		t.Fatalf("unexpected pending rows %+v", got)
	}
}

func TestUpdateTransaction(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	tx, _ := repo.AddTransaction(ctx, sample("2024-01-01", "A", 100, core.Expense))

	desc := "lunch"
	ok, err := repo.UpdateTransaction(ctx, tx.ID, core.TransactionPatch{Description: &desc})
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	pending, _ := repo.GetPendingSync(ctx, 10)
	if len(pending) != 1 || pending[0].Op != OpInsert {
		t.Fatalf("unsynced insert must stay an insert, got %+v", pending)
	}

	syncAll(t, repo)
	cat := "B"
	if ok, _ := repo.UpdateTransaction(ctx, tx.ID, core.TransactionPatch{Category: &cat}); !ok {
		t.Fatal("expected row to be found")
	}
	pending, _ = repo.GetPendingSync(ctx, 10)
	if len(pending) != 1 || pending[0].Op != OpUpdate || pending[0].Transaction.Category != "B" ||
		pending[0].Transaction.Description != "lunch" {
		t.Fatalf("expected pending update, got %+v", pending)
	}

	ok, err = repo.UpdateTransaction(ctx, "missing", core.TransactionPatch{Category: &cat})
	if err != nil || ok {
		t.Fatalf("expected not found, got ok=%v err=%v", ok, err)
	}
}

func TestMarkSyncedSkipsNewerVersion(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	tx, _ := repo.AddTransaction(ctx, sample("2024-01-01", "A", 100, core.Expense))
	stale, _ := repo.GetPendingSync(ctx, 10)

	cat := "B"
	_, _ = repo.UpdateTransaction(ctx, tx.ID, core.TransactionPatch{Category: &cat})
	if err := repo.MarkSynced(ctx, stale); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	pending, _ := repo.GetPendingSync(ctx, 10)
	if len(pending) != 1 || pending[0].Transaction.Category != "B" {
		t.Fatalf("newer change must stay pending, got %+v", pending)
	}
}

func TestMarkSyncErrorRemovesFromPending(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	tx, _ := repo.AddTransaction(ctx, sample("2024-01-01", "A", 100, core.Expense))
	if err := repo.MarkSyncError(ctx, []string{tx.ID}); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	if pending, _ := repo.GetPendingSync(ctx, 10); len(pending) != 0 {
		t.Fatalf("errored rows are not pending, got %+v", pending)
	}
}

func TestEmptyBatchesAreNoops(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if got, err := repo.InsertTransactions(ctx, nil); err != nil || got != nil {
		t.Fatalf("unexpected: %v %v", got, err)
	}
	if err := repo.DeleteTransactions(ctx, nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.MarkSynced(ctx, nil); err != nil {
		t.Fatalf("synced: %v", err)
	}
}
