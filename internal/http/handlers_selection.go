package http

import (
	"errors"
	"net/http"

	"bookkeeping/internal/analytics"
	"bookkeeping/internal/core"
	"bookkeeping/internal/selection"
	"bookkeeping/internal/workspace"
)

const selectionChangedMessage = "Some selected transactions are no longer shown. Please review the selection and confirm again."

// handleToggleAll selects every transaction of the shown year, or clears
// the selection when all of them are already selected.
func (s *Server) handleToggleAll(w http.ResponseWriter, r *http.Request) {
	ws := s.session(w, r)
	_ = r.ParseForm()

	ids, ok := s.shownIDs(w, r, ws)
	if !ok {
		return
	}
	ws.Selection.Retain(ids)
	ws.Selection.ToggleAll(ids)
	s.done(w, r, selectionChanged(ws))
}

// shownIDs returns the ids of the year the form was posted from. On a load
// failure it writes the error response and reports false.
func (s *Server) shownIDs(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) ([]string, bool) {
	txs, err := s.workspaces.Transactions(r.Context(), ws)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Loading transactions failed", "error", err)
		s.fail(w, r, ws, http.StatusServiceUnavailable, loadFailureMessage)
		return nil, false
	}
	params := ParseDashboardParams(r.Form, analytics.Years(txs), s.now())
	return visibleIDs(txs, params.Year), true
}

func visibleIDs(txs []core.Transaction, year int) []string {
	shown := analytics.FilterByYear(txs, year)
	ids := make([]string, len(shown))
	for i, tx := range shown {
		ids[i] = tx.ID
	}
	return ids
}

// handleToggleOne flips a single row.
func (s *Server) handleToggleOne(w http.ResponseWriter, r *http.Request) {
	ws := s.session(w, r)
	_ = r.ParseForm()
	ws.Selection.ToggleOne(r.PathValue("id"))
	s.done(w, r, selectionChanged(ws))
}

// handleConfirmOpen shows the delete prompt for a non-empty selection.
func (s *Server) handleConfirmOpen(w http.ResponseWriter, r *http.Request) {
	ws := s.session(w, r)
	_ = r.ParseForm()
	ids, ok := s.shownIDs(w, r, ws)
	if !ok {
		return
	}
	ws.Selection.Retain(ids)
	if ws.Selection.Len() == 0 {
		s.fail(w, r, ws, http.StatusBadRequest, "Select at least one transaction to delete.")
		return
	}
	ws.Selection.OpenConfirm()
	s.done(w, r, selectionChanged(ws))
}

func (s *Server) handleConfirmCancel(w http.ResponseWriter, r *http.Request) {
	ws := s.session(w, r)
	_ = r.ParseForm()
	ws.Selection.CancelConfirm()
	s.done(w, r, selectionChanged(ws))
}

// handleConfirmDelete removes the selected transactions in one batch.
func (s *Server) handleConfirmDelete(w http.ResponseWriter, r *http.Request) {
	ws := s.session(w, r)
	_ = r.ParseForm()

	shown, ok := s.shownIDs(w, r, ws)
	if !ok {
		return
	}
	if ws.Selection.Retain(shown) > 0 {
		s.fail(w, r, ws, http.StatusConflict, selectionChangedMessage)
		return
	}

	ids := ws.Selection.IDs()
	err := ws.Selection.ConfirmDelete(r.Context())

	var delErr *selection.Error
	switch {
	case errors.Is(err, selection.ErrInProgress):
		s.fail(w, r, ws, http.StatusConflict, "A delete is in progress. Please wait.")
		return
	case errors.As(err, &delErr):
		s.fail(w, r, ws, http.StatusBadGateway, delErr.Message)
		return
	case err != nil:
		s.fail(w, r, ws, http.StatusInternalServerError, selection.FailureMessage)
		return
	}

	b := NewHTMXResponse()
	if len(ids) > 0 {
		s.events.LogTransactionsDeleted(r.Context(), ids)
		ws.Notify(workspace.LevelInfo, "Deleted "+plural(len(ids), "transaction")+".")
		b.TriggerTransactionsChanged(len(ids))
	}
	s.done(w, r, b)
}

func selectionChanged(ws *workspace.Workspace) *HTMXResponseBuilder {
	return NewHTMXResponse().Trigger(EventSelectionChanged, map[string]any{
		"count":      ws.Selection.Len(),
		"confirming": ws.Selection.Confirming(),
	})
}
