package http

import (
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"

	"bookkeeping/internal/csvimport"
	"bookkeeping/internal/drafts"
	"bookkeeping/internal/importer"
	"bookkeeping/internal/workspace"
)

const importBusyMessage = "An import is in progress. Please wait."

// handleImportUpload parses the uploaded file into the session's draft
// buffer. A failed parse leaves the buffer as it was.
func (s *Server) handleImportUpload(w http.ResponseWriter, r *http.Request) {
	ws := s.session(w, r)
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, r, ws, http.StatusRequestEntityTooLarge, "File is too large.")
			return
		}
		s.fail(w, r, ws, http.StatusBadRequest, "Please choose a CSV file to upload.")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	if ws.Importer.Busy() {
		s.fail(w, r, ws, http.StatusConflict, importBusyMessage)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, ws, http.StatusBadRequest, "Please choose a CSV file to upload.")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	parsed, err := s.parser.ParseFile(name, file)
	if err != nil {
		s.logger.WarnContext(r.Context(), "Import file rejected", "file", name, "error", err)
		s.fail(w, r, ws, http.StatusUnprocessableEntity, csvimport.UserMessage(err))
		return
	}

	ws.Drafts.Load(parsed)
	ws.SetFileName(name)
	s.events.LogDraftsParsed(r.Context(), name, ws.Drafts.Len(), ws.Drafts.NetImpact().Cents)

	s.done(w, r, NewHTMXResponse().Trigger(EventDraftsChanged, map[string]int{"count": len(parsed)}))
}

// handleDraftEdit replaces one field of a draft. The body carries field and
// value, either form-encoded or as JSON.
func (s *Server) handleDraftEdit(w http.ResponseWriter, r *http.Request) {
	ws := s.session(w, r)
	body := NewRequestBodyParser(r, 64<<10)
	if err := body.Err(); err != nil {
		s.fail(w, r, ws, http.StatusBadRequest, "Invalid request.")
		return
	}
	r.Form = bodyForm(body)
	if ws.Importer.Busy() {
		s.fail(w, r, ws, http.StatusConflict, importBusyMessage)
		return
	}

	field := body.Get("field")
	err := ws.Drafts.Edit(r.PathValue("key"), field, body.Get("value"))
	switch {
	case errors.Is(err, drafts.ErrInvalidValue):
		s.fail(w, r, ws, http.StatusUnprocessableEntity, "Amount must be a number.")
		return
	case errors.Is(err, drafts.ErrUnknownField):
		s.fail(w, r, ws, http.StatusBadRequest, "Unknown field "+strconv.Quote(field)+".")
		return
	}
	s.done(w, r, NewHTMXResponse().Trigger(EventDraftsChanged, map[string]int{"count": ws.Drafts.Len()}))
}

// bodyForm keeps the year and sort values of an edit body for the redirect.
func bodyForm(p *RequestBodyParser) url.Values {
	form := url.Values{}
	for _, k := range []string{"year", "sort"} {
		if v := p.Get(k); v != "" {
			form[k] = []string{v}
		}
	}
	return form
}

// handleDraftRemove drops one draft from the buffer.
func (s *Server) handleDraftRemove(w http.ResponseWriter, r *http.Request) {
	ws := s.session(w, r)
	_ = r.ParseForm()
	if ws.Importer.Busy() {
		s.fail(w, r, ws, http.StatusConflict, importBusyMessage)
		return
	}
	ws.Drafts.Remove(r.PathValue("key"))
	s.done(w, r, NewHTMXResponse().Trigger(EventDraftsChanged, map[string]int{"count": ws.Drafts.Len()}))
}

// handleImportCommit sends the whole buffer to the store as one batch.
func (s *Server) handleImportCommit(w http.ResponseWriter, r *http.Request) {
	ws := s.session(w, r)
	_ = r.ParseForm()

	count := ws.Drafts.Len()
	net := ws.Drafts.NetImpact()
	err := ws.Importer.Commit(r.Context(), ws.Drafts)

	var importErr *importer.Error
	switch {
	case errors.Is(err, importer.ErrInProgress):
		s.fail(w, r, ws, http.StatusConflict, importBusyMessage)
		return
	case errors.As(err, &importErr):
		s.fail(w, r, ws, http.StatusBadGateway, importErr.Message)
		return
	case err != nil:
		s.fail(w, r, ws, http.StatusInternalServerError, importer.FailureMessage)
		return
	}

	b := NewHTMXResponse()
	if count > 0 {
		s.events.LogTransactionsImported(r.Context(), count, net.Cents)
		if ws.Drafts.Empty() {
			ws.SetFileName("")
		}
		ws.Notify(workspace.LevelInfo, "Imported "+plural(count, "transaction")+".")
		b.TriggerTransactionsChanged(count)
	}
	s.done(w, r, b)
}

// handleImportCancel discards the buffered drafts.
func (s *Server) handleImportCancel(w http.ResponseWriter, r *http.Request) {
	ws := s.session(w, r)
	_ = r.ParseForm()
	if ws.Importer.Busy() {
		s.fail(w, r, ws, http.StatusConflict, importBusyMessage)
		return
	}
	ws.Drafts.Clear()
	ws.SetFileName("")
	s.done(w, r, NewHTMXResponse().Trigger(EventDraftsChanged, map[string]int{"count": 0}))
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
