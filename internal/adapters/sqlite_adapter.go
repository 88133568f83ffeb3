package adapters

import (
	"context"

	"bookkeeping/internal/core"
	"bookkeeping/internal/services"
	"bookkeeping/internal/sheets"
)

var _ sheets.Store = (*SQLiteAdapter)(nil)

// Lister reads the live transaction set.
type Lister interface {
	ListTransactions(ctx context.Context) ([]core.Transaction, error)
}

// SQLiteAdapter exposes the SQLite repository and TransactionService as a
// sheets.Store: reads go straight to the database, writes go through the
// service so the spreadsheet mirror is notified.
type SQLiteAdapter struct {
	storage Lister
	service *services.TransactionService
}

func NewSQLiteAdapter(storage Lister, service *services.TransactionService) *SQLiteAdapter {
	return &SQLiteAdapter{storage: storage, service: service}
}

// ListTransactions implements sheets.TransactionLister
func (a *SQLiteAdapter) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	return a.storage.ListTransactions(ctx)
}

// AddTransaction implements sheets.TransactionWriter
func (a *SQLiteAdapter) AddTransaction(ctx context.Context, d core.TransactionData) (core.Transaction, error) {
	txs, err := a.service.CreateTransactions(ctx, []core.TransactionData{d})
	if err != nil {
		return core.Transaction{}, err
	}
	return txs[0], nil
}

// AddTransactions implements sheets.BatchInserter
func (a *SQLiteAdapter) AddTransactions(ctx context.Context, batch []core.TransactionData) error {
	_, err := a.service.CreateTransactions(ctx, batch)
	return err
}

// DeleteTransactions implements sheets.BatchDeleter
func (a *SQLiteAdapter) DeleteTransactions(ctx context.Context, ids []string) error {
	return a.service.DeleteTransactions(ctx, ids)
}

// UpdateTransaction implements sheets.TransactionUpdater
func (a *SQLiteAdapter) UpdateTransaction(ctx context.Context, id string, p core.TransactionPatch) (bool, error) {
	return a.service.UpdateTransaction(ctx, id, p)
}
