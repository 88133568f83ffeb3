// Package http serves the bookkeeping dashboard.
//
// This file implements a builder for HTMX-aware responses: plain form posts
// get a 303 redirect back to the dashboard while HTMX requests get
// HX-Redirect plus HX-Trigger events.

package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// Events sent in HX-Trigger.
const (
	EventTransactionsChanged = "transactions:changed"
	EventDraftsChanged       = "drafts:changed"
	EventSelectionChanged    = "selection:changed"
)

// HTMXResponseBuilder provides a fluent API for building responses.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	body       []byte
	headers    map[string]string
	redirect   string
}

// NewHTMXResponse creates a new response builder with default 200 status.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named event with optional data to HX-Trigger.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerTransactionsChanged tells listeners the stored set was replaced.
func (b *HTMXResponseBuilder) TriggerTransactionsChanged(count int) *HTMXResponseBuilder {
	return b.Trigger(EventTransactionsChanged, map[string]int{"count": count})
}

// NotificationType represents the type of notification to display.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

// TriggerNotification adds a show-notification event.
func (b *HTMXResponseBuilder) TriggerNotification(notifType NotificationType, message string) *HTMXResponseBuilder {
	return b.Trigger("show-notification", map[string]string{
		"type":    string(notifType),
		"message": message,
	})
}

// Redirect sends the client to location once the response is written.
func (b *HTMXResponseBuilder) Redirect(location string) *HTMXResponseBuilder {
	b.redirect = location
	return b
}

func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets a JSON body. Encoding failures turn the response into a 500.
func (b *HTMXResponseBuilder) JSON(v any) *HTMXResponseBuilder {
	body, err := json.Marshal(v)
	if err != nil {
		return b.Status(http.StatusInternalServerError).BodyString("encoding failed")
	}
	b.headers["Content-Type"] = "application/json"
	b.body = body
	return b
}

func (b *HTMXResponseBuilder) BodyString(content string) *HTMXResponseBuilder {
	b.body = []byte(content)
	return b
}

// BodyHTML sets an HTML body.
func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = []byte(html)
	return b
}

// Write sends the response. With a redirect set, HTMX requests get
// HX-Redirect and a 200; other requests get a 303 See Other.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter, r *http.Request) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if len(b.triggers) > 0 {
		if triggerJSON, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}
	if b.redirect != "" {
		if isHTMX(r) {
			w.Header().Set("HX-Redirect", b.redirect)
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, b.redirect, http.StatusSeeOther)
		return
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

func isHTMX(r *http.Request) bool {
	return r != nil && r.Header.Get("HX-Request") == "true"
}

// wantsJSON reports whether the client asked for JSON.
func wantsJSON(r *http.Request) bool {
	return r.Header.Get("Accept") == "application/json" || r.Header.Get("Content-Type") == "application/json"
}

// ErrorResponse creates an error response: JSON for API callers, an HTML
// fragment otherwise. The message is escaped.
func ErrorResponse(r *http.Request, statusCode int, message string) *HTMXResponseBuilder {
	b := NewHTMXResponse().Status(statusCode)
	if r != nil && wantsJSON(r) {
		return b.JSON(map[string]string{"error": message})
	}
	return b.BodyHTML(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`)
}
