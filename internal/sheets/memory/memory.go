package memory

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"bookkeeping/internal/core"
	"bookkeeping/internal/csvimport"
	ports "bookkeeping/internal/sheets"
)

// SeedFile is the CSV read by NewFromFiles.
const SeedFile = "transactions.csv"

var _ ports.Store = (*Store)(nil)

// Store keeps transactions in process memory.
type Store struct {
	mu    sync.Mutex
	items []core.Transaction
}

func New(seed ...core.Transaction) *Store {
	return &Store{items: append([]core.Transaction(nil), seed...)}
}

// NewFromFiles seeds the store from base/transactions.csv when present.
// A missing or empty file gives an empty store.
func NewFromFiles(base string) *Store {
	path := filepath.Join(base, SeedFile)
	f, err := os.Open(path)
	if err != nil {
		return New()
	}
	defer f.Close()

	drafts, err := csvimport.NewParser().Parse(f)
	if err != nil {
		if !errors.Is(err, csvimport.ErrNoTransactions) {
			slog.Warn("Ignoring unreadable seed file", "path", path, "error", err)
		}
		return New()
	}
	seed := make([]core.Transaction, len(drafts))
	for i, d := range drafts {
		seed[i] = core.Transaction{ID: uuid.NewString(), TransactionData: d.Data()}
	}
	slog.Info("Seeded memory store", "path", path, "count", len(seed))
	return New(seed...)
}

// ListTransactions returns a copy of the stored rows in insertion order.
func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.items...), nil
}

func (s *Store) AddTransaction(_ context.Context, d core.TransactionData) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := core.Transaction{ID: uuid.NewString(), TransactionData: d}
	s.items = append(s.items, tx)
	return tx, nil
}

func (s *Store) AddTransactions(_ context.Context, batch []core.TransactionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range batch {
		s.items = append(s.items, core.Transaction{ID: uuid.NewString(), TransactionData: d})
	}
	return nil
}

// DeleteTransactions removes every row whose id is listed. Unknown ids are ignored.
func (s *Store) DeleteTransactions(_ context.Context, ids []string) error {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	for _, tx := range s.items {
		if _, ok := drop[tx.ID]; !ok {
			kept = append(kept, tx)
		}
	}
	s.items = kept
	return nil
}

func (s *Store) UpdateTransaction(_ context.Context, id string, p core.TransactionPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].TransactionData = p.Apply(s.items[i].TransactionData)
			return true, nil
		}
	}
	return false, nil
}
