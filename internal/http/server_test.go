package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"bookkeeping/internal/core"
	"bookkeeping/internal/sheets/memory"
)

var errStoreDown = errors.New("store down")

// flakyStore fails list or write calls on demand.
type flakyStore struct {
	*memory.Store
	failList  bool
	failWrite bool
}

func (f *flakyStore) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	if f.failList {
		return nil, errStoreDown
	}
	return f.Store.ListTransactions(ctx)
}

func (f *flakyStore) AddTransaction(ctx context.Context, d core.TransactionData) (core.Transaction, error) {
	if f.failWrite {
		return core.Transaction{}, errStoreDown
	}
	return f.Store.AddTransaction(ctx, d)
}

func (f *flakyStore) DeleteTransactions(ctx context.Context, ids []string) error {
	if f.failWrite {
		return errStoreDown
	}
	return f.Store.DeleteTransactions(ctx, ids)
}

func seedTransactions() []core.Transaction {
	return []core.Transaction{
		{ID: "t1", TransactionData: core.TransactionData{Date: "2024-01-10", Type: core.Income, Amount: core.Money{Cents: 300000}, Category: "Salary"}},
		{ID: "t2", TransactionData: core.TransactionData{Date: "2024-02-01", Type: core.Expense, Amount: core.Money{Cents: 120000}, Category: "Rent"}},
		{ID: "t3", TransactionData: core.TransactionData{Date: "2023-12-24", Type: core.Expense, Amount: core.Money{Cents: 4550}, Category: "Gifts"}},
	}
}

func fixedNow() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

func newTestServer(t *testing.T, store *flakyStore, opts Options) *Server {
	t.Helper()
	if opts.Now == nil {
		opts.Now = fixedNow
	}
	srv := NewServer(":0", store, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

// client replays the session cookie between requests.
type client struct {
	t      *testing.T
	srv    *Server
	cookie *http.Cookie
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rr := httptest.NewRecorder()
	c.srv.Handler.ServeHTTP(rr, req)
	for _, ck := range rr.Result().Cookies() {
		if ck.Name == SessionCookie {
			c.cookie = ck
		}
	}
	return rr
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) postForm(path string, form url.Values, htmx bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	return c.do(req)
}

func (c *client) dashboard(year string) dashboardJSON {
	c.t.Helper()
	rr := c.get("/api/dashboard?year=" + year)
	if rr.Code != http.StatusOK {
		c.t.Fatalf("api status=%d body=%s", rr.Code, rr.Body.String())
	}
	var d dashboardJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &d); err != nil {
		c.t.Fatalf("decode dashboard: %v", err)
	}
	return d
}

func TestDashboardAndProbes(t *testing.T) {
	srv := newTestServer(t, &flakyStore{Store: memory.New(seedTransactions()...)}, Options{})
	c := &client{t: t, srv: srv}

	rr := c.get("/")
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	if c.cookie == nil {
		t.Fatal("session cookie not set")
	}
	if !c.cookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
	body := rr.Body.String()
	for _, want := range []string{"Bookkeeping", "Salary", "Rent", "$3,000.00", "$1,800.00"} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if strings.Contains(body, "Gifts") {
		t.Error("rows of other years should not be listed")
	}
	if !strings.Contains(body, "sort=asc") {
		t.Error("date header should link to the ascending order")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("request id header not echoed")
	}

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := c.get(path)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestDashboardStoreFailure(t *testing.T) {
	srv := newTestServer(t, &flakyStore{Store: memory.New(), failList: true}, Options{})
	c := &client{t: t, srv: srv}

	rr := c.get("/")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), loadFailureMessage) {
		t.Error("load failure banner missing")
	}

	rr = c.get("/api/dashboard")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("api status=%d, want 503", rr.Code)
	}
}

func TestReadyReportsStoreFailure(t *testing.T) {
	srv := newTestServer(t, &flakyStore{Store: memory.New()}, Options{
		Ping: func(context.Context) error { return errStoreDown },
	})
	c := &client{t: t, srv: srv}

	rr := c.get("/readyz")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d, want 503", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "store down") {
		t.Errorf("readyz body = %s", rr.Body.String())
	}
}

func TestDashboardJSON(t *testing.T) {
	srv := newTestServer(t, &flakyStore{Store: memory.New(seedTransactions()...)}, Options{})
	c := &client{t: t, srv: srv}

	d := c.dashboard("2024")
	if d.Year != 2024 {
		t.Errorf("year=%d", d.Year)
	}
	if len(d.Years) != 2 || d.Years[0] != 2024 {
		t.Errorf("years=%v", d.Years)
	}
	if d.AllTime.NetCents != 300000-120000-4550 {
		t.Errorf("all time net=%d", d.AllTime.NetCents)
	}
	if d.YearTotals.NetCents != 180000 || d.YearTotals.Count != 2 {
		t.Errorf("year totals=%+v", d.YearTotals)
	}
	if len(d.Transactions) != 2 || d.Transactions[0].ID != "t2" {
		t.Errorf("transactions should be newest first: %+v", d.Transactions)
	}
	if len(d.Categories) != 1 || d.Categories[0].Category != "Rent" {
		t.Errorf("categories=%+v", d.Categories)
	}
}

func TestAddTransaction(t *testing.T) {
	store := &flakyStore{Store: memory.New()}
	srv := newTestServer(t, store, Options{})
	c := &client{t: t, srv: srv}

	valid := url.Values{
		"date": {"2024-03-05"}, "type": {"Expense"}, "amount": {"19.90"},
		"category": {"Food"}, "year": {"2024"},
	}

	bad := url.Values{"date": {"2024-03-05"}, "type": {"Expense"}, "amount": {"abc"}, "category": {"Food"}}
	rr := c.postForm("/transactions", bad, true)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("htmx invalid status=%d, want 422", rr.Code)
	}

	rr = c.postForm("/transactions", bad, false)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("form invalid status=%d, want 303", rr.Code)
	}
	page := c.get(rr.Header().Get("Location"))
	if !strings.Contains(page.Body.String(), "Amount must be") {
		t.Error("validation notice not shown after redirect")
	}

	rr = c.postForm("/transactions", valid, false)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("add status=%d, want 303", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/?year=2024" {
		t.Errorf("Location=%q", loc)
	}
	d := c.dashboard("2024")
	if d.YearTotals.Count != 1 || d.YearTotals.ExpensesCents != 1990 {
		t.Errorf("year totals after add=%+v", d.YearTotals)
	}

	store.failWrite = true
	rr = c.postForm("/transactions", valid, true)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("failed write status=%d, want 502", rr.Code)
	}
}

func uploadRequest(t *testing.T, name, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte(content))
	_ = mw.WriteField("year", "2024")
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("HX-Request", "true")
	return req
}

func TestImportFlow(t *testing.T) {
	srv := newTestServer(t, &flakyStore{Store: memory.New()}, Options{})
	c := &client{t: t, srv: srv}
	c.get("/")

	rr := c.do(uploadRequest(t, "bank.csv", "date,type\n2024-01-01,Expense\n"))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty upload status=%d, want 422", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "No valid transactions") {
		t.Errorf("empty upload body=%s", rr.Body.String())
	}

	csv := "Date,Type,Amount,Category,Description\n" +
		"2024-04-01,Income,1000,Salary,April\n" +
		"2024-04-02,Expense,250.50,Rent,\n"
	rr = c.do(uploadRequest(t, "bank.csv", csv))
	if rr.Code != http.StatusOK || rr.Header().Get("HX-Redirect") == "" {
		t.Fatalf("upload status=%d redirect=%q", rr.Code, rr.Header().Get("HX-Redirect"))
	}

	ws, _ := srv.Workspaces().Get(c.cookie.Value)
	if ws.Drafts.Len() != 2 {
		t.Fatalf("drafts=%d, want 2", ws.Drafts.Len())
	}
	if got := ws.Drafts.NetImpact().Cents; got != 74950 {
		t.Errorf("net impact=%d, want 74950", got)
	}
	page := c.get("/?year=2024").Body.String()
	if !strings.Contains(page, "bank.csv") || !strings.Contains(page, "$749.50") {
		t.Error("import review not rendered")
	}

	key := ws.Drafts.Drafts()[1].Key
	rr = c.postForm("/import/drafts/"+key, url.Values{"field": {"amount"}, "value": {"ten"}}, true)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad edit status=%d, want 422", rr.Code)
	}
	rr = c.postForm("/import/drafts/"+key, url.Values{"field": {"amount"}, "value": {"200"}}, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("edit status=%d", rr.Code)
	}
	if got := ws.Drafts.NetImpact().Cents; got != 80000 {
		t.Errorf("net impact after edit=%d, want 80000", got)
	}

	rr = c.postForm("/import/commit", url.Values{"year": {"2024"}}, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("commit status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), EventTransactionsChanged) {
		t.Errorf("HX-Trigger=%q", rr.Header().Get("HX-Trigger"))
	}
	if !ws.Drafts.Empty() {
		t.Error("buffer should be cleared after commit")
	}
	d := c.dashboard("2024")
	if d.YearTotals.Count != 2 || d.YearTotals.NetCents != 80000 {
		t.Errorf("year totals after import=%+v", d.YearTotals)
	}
}

func TestImportCancelAndRemove(t *testing.T) {
	srv := newTestServer(t, &flakyStore{Store: memory.New()}, Options{})
	c := &client{t: t, srv: srv}
	c.get("/")

	csv := "date,type,amount,category\n2024-01-01,Expense,1,A\n2024-01-02,Expense,2,B\n"
	c.do(uploadRequest(t, "a.csv", csv))
	ws, _ := srv.Workspaces().Get(c.cookie.Value)

	c.postForm("/import/drafts/"+ws.Drafts.Drafts()[0].Key+"/delete", url.Values{}, true)
	if ws.Drafts.Len() != 1 {
		t.Fatalf("drafts after remove=%d", ws.Drafts.Len())
	}
	c.postForm("/import/cancel", url.Values{}, true)
	if !ws.Drafts.Empty() || ws.FileName() != "" {
		t.Error("cancel should clear the buffer")
	}
	if d := c.dashboard("2024"); d.YearTotals.Count != 0 {
		t.Error("cancel must not write to the store")
	}
}

func TestSelectionDelete(t *testing.T) {
	store := &flakyStore{Store: memory.New(seedTransactions()...)}
	srv := newTestServer(t, store, Options{})
	c := &client{t: t, srv: srv}
	c.get("/?year=2024")
	ws, _ := srv.Workspaces().Get(c.cookie.Value)

	rr := c.postForm("/selection/confirm", url.Values{}, true)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("confirm on empty selection status=%d, want 400", rr.Code)
	}

	c.postForm("/selection/toggle-all", url.Values{"year": {"2024"}}, true)
	if ws.Selection.Len() != 2 {
		t.Fatalf("selected=%d, want 2", ws.Selection.Len())
	}
	c.postForm("/selection/t1/toggle", url.Values{}, true)
	if ws.Selection.Selected("t1") || !ws.Selection.Selected("t2") {
		t.Fatalf("ids=%v", ws.Selection.IDs())
	}

	c.postForm("/selection/confirm", url.Values{}, true)
	if !ws.Selection.Confirming() {
		t.Fatal("prompt should be open")
	}
	if !strings.Contains(c.get("/?year=2024").Body.String(), "Delete 1 selected") {
		t.Error("confirm prompt not rendered")
	}

	store.failWrite = true
	rr = c.postForm("/selection/delete", url.Values{}, true)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("failed delete status=%d, want 502", rr.Code)
	}
	if ws.Selection.Len() != 1 {
		t.Error("selection should survive a failed delete")
	}

	store.failWrite = false
	rr = c.postForm("/selection/delete", url.Values{"year": {"2024"}}, false)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("delete status=%d, want 303", rr.Code)
	}
	d := c.dashboard("2024")
	if len(d.Transactions) != 1 || d.Transactions[0].ID != "t1" {
		t.Errorf("transactions after delete=%+v", d.Transactions)
	}
	if ws.Selection.Len() != 0 || ws.Selection.Confirming() {
		t.Error("selection should be cleared after delete")
	}
}

func TestSelectionLimitedToShownYear(t *testing.T) {
	store := &flakyStore{Store: memory.New(seedTransactions()...)}
	srv := newTestServer(t, store, Options{})
	c := &client{t: t, srv: srv}
	c.get("/?year=2023")
	ws, _ := srv.Workspaces().Get(c.cookie.Value)

	c.postForm("/selection/t3/toggle", url.Values{"year": {"2023"}}, true)
	c.postForm("/selection/confirm", url.Values{"year": {"2023"}}, true)
	if !ws.Selection.Selected("t3") || !ws.Selection.Confirming() {
		t.Fatalf("ids=%v confirming=%v", ws.Selection.IDs(), ws.Selection.Confirming())
	}

	// A delete posted from another year must not remove the hidden row.
	rr := c.postForm("/selection/delete", url.Values{"year": {"2024"}}, true)
	if rr.Code != http.StatusConflict {
		t.Fatalf("delete from other year status=%d, want 409", rr.Code)
	}
	if len(c.dashboard("2023").Transactions) != 1 {
		t.Error("hidden row was deleted")
	}
	if ws.Selection.Len() != 0 || ws.Selection.Confirming() {
		t.Errorf("selection should be pruned, ids=%v", ws.Selection.IDs())
	}

	c.postForm("/selection/t3/toggle", url.Values{"year": {"2023"}}, true)
	if rr := c.get("/?year=2024"); rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	if ws.Selection.Len() != 0 {
		t.Errorf("switching year should drop hidden rows, ids=%v", ws.Selection.IDs())
	}
}

func TestPatchTransaction(t *testing.T) {
	srv := newTestServer(t, &flakyStore{Store: memory.New(seedTransactions()...)}, Options{})
	c := &client{t: t, srv: srv}

	patch := func(id, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPatch, "/api/transactions/"+id, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return c.do(req)
	}

	rr := patch("t2", `{"amount": "lots"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric amount status=%d, want 400", rr.Code)
	}
	rr = patch("t2", `{"amount": 999.99, "description": "new lease"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("patch status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"updated":true`) {
		t.Errorf("patch body=%s", rr.Body.String())
	}
	d := c.dashboard("2024")
	if d.YearTotals.ExpensesCents != 99999 {
		t.Errorf("expenses after patch=%d", d.YearTotals.ExpensesCents)
	}

	if rr := patch("missing", `{"category": "X"}`); rr.Code != http.StatusNotFound {
		t.Errorf("unknown id status=%d, want 404", rr.Code)
	}
	if rr := patch("t2", `{}`); rr.Code != http.StatusBadRequest {
		t.Errorf("empty patch status=%d, want 400", rr.Code)
	}
	if rr := patch("t2", `{"type": "Gift"}`); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad type status=%d, want 422", rr.Code)
	}
}

func TestSuspiciousRequestBlocked(t *testing.T) {
	srv := newTestServer(t, &flakyStore{Store: memory.New()}, Options{})
	c := &client{t: t, srv: srv}

	if rr := c.get("/.env"); rr.Code != http.StatusNotFound {
		t.Errorf("probe status=%d, want 404", rr.Code)
	}
}
