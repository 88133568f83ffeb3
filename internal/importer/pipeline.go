// Package importer commits reviewed drafts to the transaction store.
package importer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"bookkeeping/internal/core"
	"bookkeeping/internal/drafts"
	"bookkeeping/internal/sheets"
)

// FailureMessage is shown when the store rejects a batch.
const FailureMessage = "Failed to import transactions. Please try again."

// ErrInProgress is returned when a commit is attempted while another is running.
var ErrInProgress = errors.New("import already in progress")

// Error is a store failure carrying the message for the user.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Refresher is told when the stored transaction set changed.
type Refresher interface {
	Invalidate(ctx context.Context)
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context)

func (f RefreshFunc) Invalidate(ctx context.Context) { f(ctx) }

// Pipeline sends the contents of a draft buffer to the store as one batch.
type Pipeline struct {
	store    sheets.BatchInserter
	refresh  Refresher
	timeout  time.Duration
	inFlight atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTimeout bounds each store call. Zero leaves calls unbounded.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// New creates a Pipeline. refresh may be nil.
func New(store sheets.BatchInserter, refresh Refresher, opts ...Option) *Pipeline {
	p := &Pipeline{store: store, refresh: refresh}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Busy reports whether a commit is running.
func (p *Pipeline) Busy() bool {
	return p.inFlight.Load()
}

// Commit inserts the buffered drafts without their keys. On success the
// refresher is signalled and the submitted drafts leave the buffer; drafts
// loaded while the call was running are kept. On failure the buffer is
// left as it was so the same batch can be retried.
func (p *Pipeline) Commit(ctx context.Context, buf *drafts.Buffer) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		return ErrInProgress
	}
	defer p.inFlight.Store(false)

	pending := buf.Drafts()
	if len(pending) == 0 {
		return nil
	}

	batch := make([]core.TransactionData, len(pending))
	keys := make([]string, len(pending))
	for i, d := range pending {
		batch[i] = d.Data()
		keys[i] = d.Key
	}

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := p.store.AddTransactions(callCtx, batch); err != nil {
		slog.ErrorContext(ctx, "Batch import failed", "count", len(batch), "error", err)
		return &Error{Message: FailureMessage, Err: err}
	}
	slog.InfoContext(ctx, "Batch import committed", "count", len(batch), "duration", time.Since(start))

	if p.refresh != nil {
		p.refresh.Invalidate(ctx)
	}
	buf.RemoveKeys(keys)
	return nil
}
