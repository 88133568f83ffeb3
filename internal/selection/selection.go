// Package selection tracks which stored transactions the user picked and
// deletes them in one batch after confirmation.
package selection

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"bookkeeping/internal/importer"
	"bookkeeping/internal/sheets"
)

// FailureMessage is shown when the store rejects a delete.
const FailureMessage = "Failed to delete transactions. Please try again."

// ErrInProgress is returned when a delete is requested while one is running.
var ErrInProgress = errors.New("delete already in progress")

// Error is a store failure carrying the message for the user.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Selection is a set of persisted transaction ids plus the state of the
// delete confirmation prompt. It is safe for concurrent use.
type Selection struct {
	store   sheets.BatchDeleter
	refresh importer.Refresher
	timeout time.Duration

	mu         sync.Mutex
	ids        map[string]struct{}
	confirming bool
	deleting   bool
}

// New creates an empty Selection. refresh may be nil.
func New(store sheets.BatchDeleter, refresh importer.Refresher, timeout time.Duration) *Selection {
	return &Selection{
		store:   store,
		refresh: refresh,
		timeout: timeout,
		ids:     make(map[string]struct{}),
	}
}

// ToggleAll clears the selection when every visible id is already selected,
// otherwise it selects exactly the visible ids.
func (s *Selection) ToggleAll(visible []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(visible) > 0 && s.allSelectedLocked(visible) {
		s.ids = make(map[string]struct{})
		return
	}
	s.ids = make(map[string]struct{}, len(visible))
	for _, id := range visible {
		s.ids[id] = struct{}{}
	}
}

// AllSelected reports whether every visible id is selected.
func (s *Selection) AllSelected(visible []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(visible) > 0 && s.allSelectedLocked(visible)
}

func (s *Selection) allSelectedLocked(visible []string) bool {
	for _, id := range visible {
		if _, ok := s.ids[id]; !ok {
			return false
		}
	}
	return true
}

// ToggleOne flips membership of a single id.
func (s *Selection) ToggleOne(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return
	}
	s.ids[id] = struct{}{}
}

func (s *Selection) Selected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// IDs returns the selected ids in sorted order.
func (s *Selection) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

func (s *Selection) OpenConfirm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirming = true
}

func (s *Selection) CancelConfirm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirming = false
}

func (s *Selection) Confirming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirming
}

// Deleting reports whether a delete call is in flight.
func (s *Selection) Deleting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleting
}

// ConfirmDelete removes every selected id with one store call. On success
// the selection is cleared, the prompt closed and the refresher signalled.
// On failure both are left untouched for a retry.
func (s *Selection) ConfirmDelete(ctx context.Context) error {
	s.mu.Lock()
	if s.deleting {
		s.mu.Unlock()
		return ErrInProgress
	}
	ids := s.sortedLocked()
	if len(ids) == 0 {
		s.confirming = false
		s.mu.Unlock()
		return nil
	}
	s.deleting = true
	s.mu.Unlock()

	err := s.delete(ctx, ids)

	s.mu.Lock()
	s.deleting = false
	if err != nil {
		s.mu.Unlock()
		slog.ErrorContext(ctx, "Batch delete failed", "count", len(ids), "error", err)
		return &Error{Message: FailureMessage, Err: err}
	}
	s.ids = make(map[string]struct{})
	s.confirming = false
	s.mu.Unlock()

	slog.InfoContext(ctx, "Batch delete committed", "count", len(ids))
	if s.refresh != nil {
		s.refresh.Invalidate(ctx)
	}
	return nil
}

func (s *Selection) delete(ctx context.Context, ids []string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.store.DeleteTransactions(ctx, ids)
}

// Retain keeps only the selected ids found in present and returns how many
// were dropped. Dropping any id closes the prompt, since the count the user
// was asked to confirm no longer holds.
func (s *Selection) Retain(present []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]struct{}, len(present))
	for _, id := range present {
		keep[id] = struct{}{}
	}
	dropped := 0
	for id := range s.ids {
		if _, ok := keep[id]; !ok {
			delete(s.ids, id)
			dropped++
		}
	}
	if dropped > 0 {
		s.confirming = false
	}
	return dropped
}

// Reset drops the selection and closes the prompt. Called whenever the
// transaction set is replaced so stale ids never linger.
func (s *Selection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[string]struct{})
	s.confirming = false
}

func (s *Selection) sortedLocked() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
