// Package http serves the bookkeeping dashboard.
//
// This file holds helpers for reading query parameters, forms and JSON
// bodies into domain values.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bookkeeping/internal/analytics"
	"bookkeeping/internal/core"
)

// Sort directions accepted in the sort query parameter.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// DashboardParams are the view options of the dashboard page.
type DashboardParams struct {
	Year int
	Sort string
}

// Ascending reports whether rows are shown oldest first.
func (p DashboardParams) Ascending() bool {
	return p.Sort == SortAsc
}

// Query encodes the params for links back to the dashboard.
func (p DashboardParams) Query() string {
	v := url.Values{}
	v.Set("year", strconv.Itoa(p.Year))
	if p.Sort == SortAsc {
		v.Set("sort", SortAsc)
	}
	return v.Encode()
}

// ParseDashboardParams reads year and sort. A missing or unparseable year
// falls back to analytics.DefaultYear over the years present.
func ParseDashboardParams(values url.Values, years []int, now time.Time) DashboardParams {
	p := DashboardParams{Year: analytics.DefaultYear(years, now), Sort: SortDesc}
	if v := strings.TrimSpace(values.Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil && y > 0 {
			p.Year = y
		}
	}
	if strings.EqualFold(strings.TrimSpace(values.Get("sort")), SortAsc) {
		p.Sort = SortAsc
	}
	return p
}

// dashboardURL returns the dashboard location for the year and sort carried
// by the submitted form, so redirects keep the view.
func dashboardURL(form url.Values) string {
	v := url.Values{}
	if y := strings.TrimSpace(form.Get("year")); y != "" {
		if _, err := strconv.Atoi(y); err == nil {
			v.Set("year", y)
		}
	}
	if strings.EqualFold(form.Get("sort"), SortAsc) {
		v.Set("sort", SortAsc)
	}
	if len(v) == 0 {
		return "/"
	}
	return "/?" + v.Encode()
}

// FieldError names the form field that failed validation.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Err.Error() }

func (e *FieldError) Unwrap() error { return e.Err }

// ParseTransactionForm reads the single-transaction form. Date, type,
// amount and category are required; the amount must be a plain decimal.
func ParseTransactionForm(form url.Values) (core.TransactionData, error) {
	d := core.TransactionData{
		Date:        sanitizeInput(form.Get("date")),
		Category:    sanitizeInput(form.Get("category")),
		Description: sanitizeInput(form.Get("description")),
	}
	t, err := core.ParseTransactionType(form.Get("type"))
	if err != nil {
		return d, &FieldError{Field: "type", Err: err}
	}
	d.Type = t
	cents, err := core.ParseDecimalToCents(form.Get("amount"))
	if err != nil {
		return d, &FieldError{Field: "amount", Err: err}
	}
	d.Amount = core.Money{Cents: cents}
	if err := d.Validate(); err != nil {
		return d, &FieldError{Field: fieldFor(err), Err: err}
	}
	return d, nil
}

func fieldFor(err error) string {
	switch {
	case errors.Is(err, core.ErrEmptyDate), errors.Is(err, core.ErrInvalidDate):
		return "date"
	case errors.Is(err, core.ErrInvalidType):
		return "type"
	case errors.Is(err, core.ErrInvalidAmount):
		return "amount"
	case errors.Is(err, core.ErrEmptyCategory):
		return "category"
	}
	return "form"
}

// PatchRequest is the JSON body of PATCH /api/transactions/{id}. Absent
// fields are left unchanged.
type PatchRequest struct {
	Date        *string      `json:"date"`
	Type        *string      `json:"type"`
	Amount      *json.Number `json:"amount"`
	Category    *string      `json:"category"`
	Description *string      `json:"description"`
}

// DecodePatch reads at most limit bytes of JSON into a TransactionPatch.
func DecodePatch(body io.Reader, limit int64) (core.TransactionPatch, error) {
	var req PatchRequest
	dec := json.NewDecoder(io.LimitReader(body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return core.TransactionPatch{}, fmt.Errorf("decode patch: %w", err)
	}
	return req.ToPatch()
}

// ToPatch validates the request fields.
func (req PatchRequest) ToPatch() (core.TransactionPatch, error) {
	var p core.TransactionPatch
	if req.Date != nil {
		date := sanitizeInput(*req.Date)
		if _, ok := core.ParseDate(date); date != "" && !ok {
			return p, &FieldError{Field: "date", Err: core.ErrInvalidDate}
		}
		p.Date = &date
	}
	if req.Type != nil {
		t, err := core.ParseTransactionType(*req.Type)
		if err != nil {
			return p, &FieldError{Field: "type", Err: err}
		}
		p.Type = &t
	}
	if req.Amount != nil {
		cents, err := core.ParseDecimalToCents(req.Amount.String())
		if err != nil {
			return p, &FieldError{Field: "amount", Err: err}
		}
		p.Amount = &core.Money{Cents: cents}
	}
	if req.Category != nil {
		c := sanitizeInput(*req.Category)
		p.Category = &c
	}
	if req.Description != nil {
		d := sanitizeInput(*req.Description)
		p.Description = &d
	}
	if p.Empty() {
		return p, core.ErrEmptyPatch
	}
	return p, nil
}

// RequestBodyParser reads a body sent either as JSON (htmx json-enc) or as
// a url-encoded form.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	err      error
}

// NewRequestBodyParser reads and parses the body of r, up to limit bytes.
func NewRequestBodyParser(r *http.Request, limit int64) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, limit))
	if p.err != nil {
		return p
	}
	trimmed := strings.TrimSpace(string(p.body))
	if strings.HasPrefix(trimmed, "{") {
		p.err = json.Unmarshal(p.body, &p.jsonData)
		return p
	}
	p.formData, p.err = url.ParseQuery(trimmed)
	return p
}

// Err returns the read or parse error, if any.
func (p *RequestBodyParser) Err() error {
	return p.err
}

// Get returns a sanitized value from the parsed body.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		return sanitizeInput(stringValue(p.jsonData[key]))
	}
	return sanitizeInput(p.formData.Get(key))
}

// IsJSON reports whether the body was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput trims whitespace and removes control characters other than
// tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
