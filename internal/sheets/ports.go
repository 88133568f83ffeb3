package sheets

import (
	"context"

	"bookkeeping/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionLister returns every stored transaction in store order.
	TransactionLister interface {
		ListTransactions(ctx context.Context) ([]core.Transaction, error)
	}

	// TransactionWriter inserts one row; the store assigns the id.
	TransactionWriter interface {
		AddTransaction(ctx context.Context, d core.TransactionData) (core.Transaction, error)
	}

	// BatchInserter inserts many rows in a single call. Callers treat any
	// error as a failure of the whole batch.
	BatchInserter interface {
		AddTransactions(ctx context.Context, batch []core.TransactionData) error
	}

	// BatchDeleter removes rows by id in a single call.
	BatchDeleter interface {
		DeleteTransactions(ctx context.Context, ids []string) error
	}

	// TransactionUpdater applies a partial update. It reports false when the
	// id is unknown.
	TransactionUpdater interface {
		UpdateTransaction(ctx context.Context, id string, p core.TransactionPatch) (bool, error)
	}

	// Store is the full transaction store surface.
	Store interface {
		TransactionLister
		TransactionWriter
		BatchInserter
		BatchDeleter
		TransactionUpdater
	}
)
