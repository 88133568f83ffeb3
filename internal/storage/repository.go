package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"bookkeeping/internal/core"
	ports "bookkeeping/internal/sheets"

	_ "modernc.org/sqlite"
)

// Sync operations recorded on each row until the spreadsheet mirror
// acknowledges them.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

var _ ports.Store = (*SQLiteRepository)(nil)

// SQLiteRepository is the local transaction store. Deleted rows are kept as
// tombstones until their removal has been mirrored.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const selectColumns = `id, date, type, amount_cents, category, description`

// ListTransactions implements sheets.TransactionLister
func (r *SQLiteRepository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM transactions WHERE deleted_at IS NULL ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// GetTransactionsByIDs returns the live rows among ids, in insertion order.
func (r *SQLiteRepository) GetTransactionsByIDs(ctx context.Context, ids []string) ([]core.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + selectColumns + ` FROM transactions WHERE deleted_at IS NULL AND id IN (` +
		placeholders(len(ids)) + `) ORDER BY rowid`
	rows, err := r.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("get transactions by id: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// AddTransaction implements sheets.TransactionWriter
func (r *SQLiteRepository) AddTransaction(ctx context.Context, d core.TransactionData) (core.Transaction, error) {
	txs, err := r.InsertTransactions(ctx, []core.TransactionData{d})
	if err != nil {
		return core.Transaction{}, err
	}
	return txs[0], nil
}

// AddTransactions implements sheets.BatchInserter
func (r *SQLiteRepository) AddTransactions(ctx context.Context, batch []core.TransactionData) error {
	_, err := r.InsertTransactions(ctx, batch)
	return err
}

// InsertTransactions stores the batch in one database transaction and
// returns the rows with their new ids.
func (r *SQLiteRepository) InsertTransactions(ctx context.Context, batch []core.TransactionData) ([]core.Transaction, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	out := make([]core.Transaction, len(batch))
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO transactions (id, date, type, amount_cents, category, description) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, d := range batch {
			t := core.Transaction{ID: uuid.NewString(), TransactionData: d}
			if _, err := stmt.ExecContext(ctx, t.ID, t.Date, string(t.Type), t.Amount.Cents, t.Category, t.Description); err != nil {
				return err
			}
			out[i] = t
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert %d transactions: %w", len(batch), err)
	}
	slog.InfoContext(ctx, "Transactions saved to SQLite", "count", len(out))
	return out, nil
}

// DeleteTransactions implements sheets.BatchDeleter. Rows become tombstones
// pending the mirror; unknown ids are ignored.
func (r *SQLiteRepository) DeleteTransactions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var affected int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE transactions
			    SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP,
			        sync_status = 'pending', sync_op = 'delete', version = version + 1
			  WHERE deleted_at IS NULL AND id IN (`+placeholders(len(ids))+`)`,
			stringArgs(ids)...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete transactions: %w", err)
	}
	slog.InfoContext(ctx, "Transactions deleted from SQLite", "requested", len(ids), "deleted", affected)
	return nil
}

// UpdateTransaction implements sheets.TransactionUpdater
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, id string, p core.TransactionPatch) (bool, error) {
	found := false
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+selectColumns+` FROM transactions WHERE deleted_at IS NULL AND id = ?`, id)
		current, err := scanTransaction(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		d := p.Apply(current.TransactionData)
		// An insert that was never mirrored stays an insert.
		_, err = tx.ExecContext(ctx,
			`UPDATE transactions
			    SET date = ?, type = ?, amount_cents = ?, category = ?, description = ?,
			        updated_at = CURRENT_TIMESTAMP, version = version + 1,
			        sync_op = CASE WHEN sync_status != 'synced' AND sync_op = 'insert' THEN 'insert' ELSE 'update' END,
			        sync_status = 'pending'
			  WHERE id = ?`,
			d.Date, string(d.Type), d.Amount.Cents, d.Category, d.Description, id)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("update transaction %s: %w", id, err)
	}
	return found, nil
}

// PendingSync is a row whose last change has not reached the spreadsheet.
type PendingSync struct {
	Transaction core.Transaction
	Op          string
	Version     int64
}

// GetPendingSync returns up to limit rows awaiting the mirror, oldest first.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]PendingSync, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+`, sync_op, version FROM transactions
		  WHERE sync_status = 'pending' ORDER BY updated_at, rowid LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync: %w", err)
	}
	defer rows.Close()
	return scanPending(rows)
}

// GetPendingByIDs returns the pending rows among ids, including tombstones.
func (r *SQLiteRepository) GetPendingByIDs(ctx context.Context, ids []string) ([]PendingSync, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+`, sync_op, version FROM transactions
		  WHERE sync_status = 'pending' AND id IN (`+placeholders(len(ids))+`) ORDER BY rowid`,
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("get pending by id: %w", err)
	}
	defer rows.Close()
	return scanPending(rows)
}

func scanPending(rows *sql.Rows) ([]PendingSync, error) {
	var out []PendingSync
	for rows.Next() {
		var p PendingSync
		var typ string
		if err := rows.Scan(&p.Transaction.ID, &p.Transaction.Date, &typ, &p.Transaction.Amount.Cents,
			&p.Transaction.Category, &p.Transaction.Description, &p.Op, &p.Version); err != nil {
			return nil, fmt.Errorf("scan pending sync: %w", err)
		}
		p.Transaction.Type = core.TransactionType(typ)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkSynced records that the mirror applied rows. A row changed again since
// it was read keeps its pending status. Tombstones are purged.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, rows []PendingSync) error {
	if len(rows) == 0 {
		return nil
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range rows {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM transactions WHERE id = ? AND version = ? AND deleted_at IS NOT NULL`,
				p.Transaction.ID, p.Version); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE transactions SET sync_status = 'synced' WHERE id = ? AND version = ?`,
				p.Transaction.ID, p.Version); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	slog.InfoContext(ctx, "Transactions marked as synced", "count", len(rows))
	return nil
}

// MarkSyncError flags ids so they are not retried until reset.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = 'error' WHERE id IN (`+placeholders(len(ids))+`)`, stringArgs(ids)...)
	if err != nil {
		return fmt.Errorf("mark sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transactions marked with sync error", "count", len(ids))
	return nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var t core.Transaction
	var typ string
	err := s.Scan(&t.ID, &t.Date, &typ, &t.Amount.Cents, &t.Category, &t.Description)
	t.Type = core.TransactionType(typ)
	return t, err
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
