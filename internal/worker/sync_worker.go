package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bookkeeping/internal/amqp"
	"bookkeeping/internal/core"
	"bookkeeping/internal/storage"
)

// LocalStore is the SQLite side of the sync.
type LocalStore interface {
	GetPendingSync(ctx context.Context, limit int) ([]storage.PendingSync, error)
	GetPendingByIDs(ctx context.Context, ids []string) ([]storage.PendingSync, error)
	MarkSynced(ctx context.Context, rows []storage.PendingSync) error
	MarkSyncError(ctx context.Context, ids []string) error
}

// Mirror is the spreadsheet side of the sync. Rows keep the ids assigned
// locally.
type Mirror interface {
	AppendTransactions(ctx context.Context, txs []core.Transaction) error
	DeleteTransactions(ctx context.Context, ids []string) error
	UpdateTransaction(ctx context.Context, id string, p core.TransactionPatch) (bool, error)
}

// SyncWorker mirrors local transaction changes to Google Sheets.
type SyncWorker struct {
	storage   LocalStore
	mirror    Mirror
	batchSize int
}

func NewSyncWorker(storage LocalStore, mirror Mirror, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &SyncWorker{storage: storage, mirror: mirror, batchSize: batchSize}
}

// HandleSyncMessage mirrors the rows named by msg that are still pending.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.SyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message", "reason", msg.Reason, "count", len(msg.IDs))

	rows, err := w.storage.GetPendingByIDs(ctx, msg.IDs)
	if err != nil {
		return fmt.Errorf("get pending rows: %w", err)
	}
	if len(rows) == 0 {
		slog.InfoContext(ctx, "Sync message has nothing pending", "reason", msg.Reason)
		return nil
	}
	return w.apply(ctx, rows)
}

// ProcessPending mirrors one batch of pending rows and reports how many were
// handled. This is the backup path for lost AMQP messages.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	rows, err := w.storage.GetPendingSync(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending rows: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	slog.InfoContext(ctx, "Processing pending rows", "count", len(rows))
	if err := w.apply(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// StartupSync drains the backlog left while the worker was down. It stops at
// the first failing batch so the periodic sync can retry later.
func (w *SyncWorker) StartupSync(ctx context.Context) error {
	total := 0
	for {
		n, err := w.ProcessPending(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "Startup sync stopped", "synced", total, "error", err)
			return fmt.Errorf("startup sync: %w", err)
		}
		total += n
		if n < w.batchSize {
			break
		}
	}
	if total == 0 {
		slog.InfoContext(ctx, "No pending rows found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup sync completed", "synced", total)
	return nil
}

// apply mirrors rows grouped by operation. Each group is acknowledged as soon
// as it reaches the sheet, so a later failure only retries what is left.
func (w *SyncWorker) apply(ctx context.Context, rows []storage.PendingSync) error {
	var inserts, updates, deletes []storage.PendingSync
	for _, r := range rows {
		switch r.Op {
		case storage.OpInsert:
			inserts = append(inserts, r)
		case storage.OpUpdate:
			updates = append(updates, r)
		case storage.OpDelete:
			deletes = append(deletes, r)
		}
	}

	var errs []error
	if len(inserts) > 0 {
		if err := w.mirror.AppendTransactions(ctx, transactions(inserts)); err != nil {
			errs = append(errs, fmt.Errorf("append to sheets: %w", err))
		} else {
			w.ack(ctx, inserts)
		}
	}

	if len(updates) > 0 {
		var done []storage.PendingSync
		var missing []string
		for _, r := range updates {
			found, err := w.mirror.UpdateTransaction(ctx, r.Transaction.ID, fullPatch(r.Transaction.TransactionData))
			if err != nil {
				errs = append(errs, fmt.Errorf("update %s in sheets: %w", r.Transaction.ID, err))
				continue
			}
			if !found {
				missing = append(missing, r.Transaction.ID)
				continue
			}
			done = append(done, r)
		}
		w.ack(ctx, done)
		if len(missing) > 0 {
			slog.WarnContext(ctx, "Updated rows are missing from the sheet", "count", len(missing))
			if err := w.storage.MarkSyncError(ctx, missing); err != nil {
				slog.ErrorContext(ctx, "Failed to mark sync error", "error", err)
			}
		}
	}

	if len(deletes) > 0 {
		if err := w.mirror.DeleteTransactions(ctx, ids(deletes)); err != nil {
			errs = append(errs, fmt.Errorf("delete from sheets: %w", err))
		} else {
			w.ack(ctx, deletes)
		}
	}

	return errors.Join(errs...)
}

// ack marks rows synced. A failure here only causes a repeat of work the
// sheet already has, so it is logged rather than returned.
func (w *SyncWorker) ack(ctx context.Context, rows []storage.PendingSync) {
	if len(rows) == 0 {
		return
	}
	if err := w.storage.MarkSynced(ctx, rows); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "count", len(rows), "error", err)
		return
	}
	slog.InfoContext(ctx, "Synced rows to sheets", "op", rows[0].Op, "count", len(rows))
}

func transactions(rows []storage.PendingSync) []core.Transaction {
	out := make([]core.Transaction, len(rows))
	for i, r := range rows {
		out[i] = r.Transaction
	}
	return out
}

func ids(rows []storage.PendingSync) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Transaction.ID
	}
	return out
}

// fullPatch rewrites every field of the mirrored row.
func fullPatch(d core.TransactionData) core.TransactionPatch {
	typ := d.Type
	amount := d.Amount
	return core.TransactionPatch{
		Date:        &d.Date,
		Type:        &typ,
		Amount:      &amount,
		Category:    &d.Category,
		Description: &d.Description,
	}
}
