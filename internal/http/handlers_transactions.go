package http

import (
	"errors"
	"net/http"

	"bookkeeping/internal/core"
	applog "bookkeeping/internal/log"
	"bookkeeping/internal/workspace"
)

const patchBodyLimit = 64 << 10

// handleAddTransaction stores one transaction from the add form.
func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	ws := s.session(w, r)
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, ws, http.StatusBadRequest, "Invalid form data.")
		return
	}

	d, err := ParseTransactionForm(r.Form)
	if err != nil {
		var fe *FieldError
		if errors.As(err, &fe) {
			s.fail(w, r, ws, http.StatusUnprocessableEntity, fieldMessage(fe))
			return
		}
		s.fail(w, r, ws, http.StatusBadRequest, "Invalid form data.")
		return
	}

	tx, err := s.workspaces.AddTransaction(r.Context(), d)
	if err != nil {
		s.events.LogError(r.Context(), "Failed to add transaction", err, applog.OpCreate, nil)
		s.fail(w, r, ws, http.StatusBadGateway, "Failed to add transaction. Please try again.")
		return
	}
	s.logger.InfoContext(r.Context(), "Transaction added",
		"id", tx.ID, "type", tx.Type, "cents", tx.Amount.Cents, "category", tx.Category)

	ws.Notify(workspace.LevelInfo, "Transaction added.")
	s.done(w, r, NewHTMXResponse().TriggerTransactionsChanged(1))
}

// handlePatchTransaction applies a partial JSON update to one transaction.
func (s *Server) handlePatchTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	patch, err := DecodePatch(r.Body, patchBodyLimit)
	if err != nil {
		var fe *FieldError
		switch {
		case errors.As(err, &fe):
			ErrorResponse(r, http.StatusUnprocessableEntity, fieldMessage(fe)).Write(w, r)
		case errors.Is(err, core.ErrEmptyPatch):
			ErrorResponse(r, http.StatusBadRequest, "No fields to update.").Write(w, r)
		default:
			ErrorResponse(r, http.StatusBadRequest, "Invalid JSON body.").Write(w, r)
		}
		return
	}

	err = s.workspaces.UpdateTransaction(r.Context(), id, patch)
	switch {
	case errors.Is(err, workspace.ErrNotFound):
		ErrorResponse(r, http.StatusNotFound, "Transaction not found.").Write(w, r)
		return
	case err != nil:
		s.events.LogError(r.Context(), "Failed to update transaction", err, applog.OpUpdate, nil)
		ErrorResponse(r, http.StatusBadGateway, "Failed to update transaction. Please try again.").Write(w, r)
		return
	}

	s.logger.InfoContext(r.Context(), "Transaction updated", "id", id)
	NewHTMXResponse().
		TriggerTransactionsChanged(1).
		JSON(map[string]any{"id": id, "updated": true}).
		Write(w, r)
}

func fieldMessage(fe *FieldError) string {
	switch fe.Field {
	case "date":
		return "Please enter a valid date."
	case "type":
		return "Type must be income or expense."
	case "amount":
		return "Amount must be a number of zero or more."
	case "category":
		return "Category is required."
	}
	return "Invalid form data."
}
