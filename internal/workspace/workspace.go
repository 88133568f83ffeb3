// Package workspace owns the per-session state of the dashboard: the draft
// buffer of a pending import, the row selection and the one-shot notices
// shown on the next render. The Manager shares one cached snapshot of the
// stored transactions between every session.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"bookkeeping/internal/cache"
	"bookkeeping/internal/core"
	"bookkeeping/internal/drafts"
	"bookkeeping/internal/importer"
	"bookkeeping/internal/selection"
	"bookkeeping/internal/sheets"
)

const snapshotKey = "transactions"

// ErrNotFound is returned by UpdateTransaction for an unknown id.
var ErrNotFound = errors.New("transaction not found")

// Level classifies a notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is a message for the user, shown once.
type Notice struct {
	Level Level
	Text  string
}

// Workspace is the state of one browser session.
type Workspace struct {
	ID        string
	Drafts    *drafts.Buffer
	Importer  *importer.Pipeline
	Selection *selection.Selection

	seen atomic.Uint64 // snapshot generation last rendered

	mu       sync.Mutex
	notices  []Notice
	fileName string
}

// Notify queues a notice for the next render.
func (w *Workspace) Notify(level Level, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notices = append(w.notices, Notice{Level: level, Text: text})
}

// TakeNotices returns and clears the queued notices.
func (w *Workspace) TakeNotices() []Notice {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.notices
	w.notices = nil
	return out
}

// SetFileName records the name of the file the drafts came from.
func (w *Workspace) SetFileName(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fileName = name
}

func (w *Workspace) FileName() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fileName
}

// Options configures a Manager.
type Options struct {
	// SessionTTL is how long an idle session is kept.
	SessionTTL time.Duration
	// MaxSessions bounds the number of live sessions. Zero means 1000.
	MaxSessions int
	// SnapshotTTL is how long a loaded transaction list is reused. Zero
	// reloads on every read.
	SnapshotTTL time.Duration
	// StoreTimeout bounds every store call. Zero means no bound.
	StoreTimeout time.Duration
}

// Manager creates and finds workspaces and serves the shared snapshot.
type Manager struct {
	store    sheets.Store
	sessions *cache.LRUCache[*Workspace]
	snapshot *cache.Loader[[]core.Transaction]
	timeout  time.Duration
	gen      atomic.Uint64
}

func NewManager(store sheets.Store, opts Options) *Manager {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 1000
	}
	return &Manager{
		store:    store,
		sessions: cache.NewSlidingLRUCache[*Workspace](opts.MaxSessions, opts.SessionTTL),
		snapshot: cache.NewLoader[[]core.Transaction](1, opts.SnapshotTTL),
		timeout:  opts.StoreTimeout,
	}
}

// Cleaners returns the caches that need periodic expiry.
func (m *Manager) Cleaners() []cache.Cleaner {
	return []cache.Cleaner{m.sessions, m.snapshot}
}

// NewSessionID returns an unguessable session id.
func NewSessionID() string {
	return uuid.NewString()
}

// Get returns the workspace for id, creating it if needed. created reports
// whether a new workspace was made. An empty id always creates a fresh
// workspace under a new id.
func (m *Manager) Get(id string) (ws *Workspace, created bool) {
	if id == "" {
		id = NewSessionID()
	}
	ws, existed := m.sessions.GetOrCreate(id, func() *Workspace { return m.newWorkspace(id) })
	return ws, !existed
}

func (m *Manager) newWorkspace(id string) *Workspace {
	ws := &Workspace{ID: id, Drafts: drafts.NewBuffer()}
	ws.seen.Store(m.gen.Load())
	refresh := importer.RefreshFunc(m.Invalidate)
	ws.Importer = importer.New(m.store, refresh, importer.WithTimeout(m.timeout))
	ws.Selection = selection.New(m.store, refresh, m.timeout)
	return ws
}

// Sessions returns the number of live workspaces.
func (m *Manager) Sessions() int {
	return m.sessions.Size()
}

// Transactions returns the stored transactions, from the snapshot cache
// when it is fresh. Workspaces that rendered an older snapshot get their
// selection reset. Ids missing from the returned set are dropped from the
// selection too, which covers rows removed by another writer.
func (m *Manager) Transactions(ctx context.Context, ws *Workspace) ([]core.Transaction, error) {
	txs, err := m.snapshot.GetOrLoad(ctx, snapshotKey, m.load)
	if err != nil {
		return nil, err
	}
	if ws != nil {
		gen := m.gen.Load()
		if ws.seen.Swap(gen) != gen {
			ws.Selection.Reset()
		} else if ws.Selection.Len() > 0 {
			if n := ws.Selection.Retain(ids(txs)); n > 0 {
				slog.DebugContext(ctx, "Dropped selected rows missing from the store", "session", ws.ID, "count", n)
			}
		}
	}
	return txs, nil
}

func ids(txs []core.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}

func (m *Manager) load(ctx context.Context) ([]core.Transaction, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	start := time.Now()
	txs, err := m.store.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	slog.DebugContext(ctx, "Transaction snapshot loaded", "count", len(txs), "duration", time.Since(start))
	return txs, nil
}

// Invalidate drops the snapshot after a write. It implements the refresh
// signal of the import pipeline and the selection.
func (m *Manager) Invalidate(context.Context) {
	m.gen.Add(1)
	m.snapshot.Invalidate(snapshotKey)
}

// AddTransaction validates and stores one transaction.
func (m *Manager) AddTransaction(ctx context.Context, d core.TransactionData) (core.Transaction, error) {
	if err := d.Validate(); err != nil {
		return core.Transaction{}, err
	}
	callCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	tx, err := m.store.AddTransaction(callCtx, d)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("add transaction: %w", err)
	}
	m.Invalidate(ctx)
	return tx, nil
}

// UpdateTransaction applies p to the transaction with id.
func (m *Manager) UpdateTransaction(ctx context.Context, id string, p core.TransactionPatch) error {
	if p.Empty() {
		return core.ErrEmptyPatch
	}
	callCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	found, err := m.store.UpdateTransaction(callCtx, id, p)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", id, err)
	}
	if !found {
		return ErrNotFound
	}
	m.Invalidate(ctx)
	return nil
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout > 0 {
		return context.WithTimeout(ctx, m.timeout)
	}
	return ctx, func() {}
}
