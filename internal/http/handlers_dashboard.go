package http

import (
	"net/http"

	"bookkeeping/internal/analytics"
	"bookkeeping/internal/core"
	"bookkeeping/internal/workspace"
)

const loadFailureMessage = "Failed to load transactions. Please try again."

// handleDashboard renders the dashboard page for the requested year.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ws := s.session(w, r)
	status := http.StatusOK

	txs, err := s.workspaces.Transactions(r.Context(), ws)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Loading transactions failed", "error", err)
		status = http.StatusServiceUnavailable
		txs = nil
	}

	params := ParseDashboardParams(r.URL.Query(), analytics.Years(txs), s.now())
	if err == nil {
		// Rows of other years are never part of the selection.
		ws.Selection.Retain(visibleIDs(txs, params.Year))
	}
	data := s.buildPage(ws, txs, params)
	if err != nil {
		data.LoadError = loadFailureMessage
	}
	s.render(w, r, status, "dashboard.html", data)
}

func (s *Server) buildPage(ws *workspace.Workspace, txs []core.Transaction, params DashboardParams) pageData {
	d := analytics.Build(txs, params.Year)
	if params.Ascending() {
		d.Transactions = analytics.SortByDate(d.Transactions, true)
	}
	other := SortAsc
	if params.Ascending() {
		other = SortDesc
	}
	visible := d.IDs()
	return pageData{
		Params:    params,
		SortURL:   "/?" + DashboardParams{Year: params.Year, Sort: other}.Query(),
		Today:     s.now().Format("2006-01-02"),
		Notices:   ws.TakeNotices(),
		AllTime:   newKPIView(d.AllTime),
		YearKPIs:  newKPIView(d.YearTotals),
		Years:     yearOptions(d.Years, d.Year),
		Chart:     newBalanceChart(d.Balance),
		Ranking:   newRankRows(d.Ranking),
		Rows:      newRowViews(d.Transactions, ws.Selection.Selected),
		Selection: selectionView{
			Count:       ws.Selection.Len(),
			AllSelected: ws.Selection.AllSelected(visible),
			Confirming:  ws.Selection.Confirming(),
			Deleting:    ws.Selection.Deleting(),
		},
		Import: newImportView(ws),
	}
}

type totalsJSON struct {
	IncomeCents   int64 `json:"income_cents"`
	ExpensesCents int64 `json:"expenses_cents"`
	NetCents      int64 `json:"net_cents"`
	Count         int   `json:"count"`
}

type pointJSON struct {
	Date         string `json:"date"`
	BalanceCents int64  `json:"balance_cents"`
}

type categoryJSON struct {
	Category    string         `json:"category"`
	AmountCents int64          `json:"amount_cents"`
	Percent     float64        `json:"percent"`
	Collapsed   []categoryJSON `json:"collapsed,omitempty"`
}

type transactionJSON struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Type        string `json:"type"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

type dashboardJSON struct {
	Year         int               `json:"year"`
	Years        []int             `json:"years"`
	AllTime      totalsJSON        `json:"all_time"`
	YearTotals   totalsJSON        `json:"year_totals"`
	Balance      []pointJSON       `json:"balance"`
	Categories   []categoryJSON    `json:"categories"`
	Transactions []transactionJSON `json:"transactions"`
}

func newTotalsJSON(t core.Totals) totalsJSON {
	return totalsJSON{IncomeCents: t.Income.Cents, ExpensesCents: t.Expenses.Cents, NetCents: t.Net.Cents, Count: t.Count}
}

func newDashboardJSON(d analytics.Dashboard) dashboardJSON {
	out := dashboardJSON{
		Year:         d.Year,
		Years:        append([]int{}, d.Years...),
		AllTime:      newTotalsJSON(d.AllTime),
		YearTotals:   newTotalsJSON(d.YearTotals),
		Balance:      make([]pointJSON, 0, len(d.Balance)),
		Categories:   make([]categoryJSON, 0, len(d.Ranking.Entries)),
		Transactions: make([]transactionJSON, 0, len(d.Transactions)),
	}
	for _, p := range d.Balance {
		out.Balance = append(out.Balance, pointJSON{Date: p.Date, BalanceCents: p.Value.Cents})
	}
	for _, e := range d.Ranking.Entries {
		c := categoryJSON{Category: e.Category, AmountCents: e.Amount.Cents, Percent: round2(e.Percent)}
		for _, folded := range e.Collapsed {
			c.Collapsed = append(c.Collapsed, categoryJSON{Category: folded.Name, AmountCents: folded.Amount.Cents})
		}
		out.Categories = append(out.Categories, c)
	}
	for _, tx := range d.Transactions {
		out.Transactions = append(out.Transactions, transactionJSON{
			ID:          tx.ID,
			Date:        tx.Date,
			Type:        string(tx.Type),
			AmountCents: tx.Amount.Cents,
			Category:    tx.Category,
			Description: tx.Description,
		})
	}
	return out
}

// handleDashboardJSON returns the dashboard figures for ?year= as JSON.
func (s *Server) handleDashboardJSON(w http.ResponseWriter, r *http.Request) {
	txs, err := s.workspaces.Transactions(r.Context(), nil)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Loading transactions failed", "error", err)
		NewHTMXResponse().Status(http.StatusServiceUnavailable).JSON(map[string]string{"error": loadFailureMessage}).Write(w, r)
		return
	}
	params := ParseDashboardParams(r.URL.Query(), analytics.Years(txs), s.now())
	d := analytics.Build(txs, params.Year)
	if params.Ascending() {
		d.Transactions = analytics.SortByDate(d.Transactions, true)
	}
	NewHTMXResponse().JSON(newDashboardJSON(d)).Write(w, r)
}
