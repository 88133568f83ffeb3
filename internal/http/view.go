package http

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"bookkeeping/internal/analytics"
	"bookkeeping/internal/core"
	"bookkeeping/internal/workspace"
)

// Chart canvas in SVG user units.
const (
	chartWidth   = 600
	chartHeight  = 200
	chartPadding = 10
)

type kpiView struct {
	Income   string
	Expenses string
	Net      string
	Negative bool
	Count    int
}

type yearOption struct {
	Year     int
	Selected bool
}

type chartPoint struct {
	X, Y  float64
	Date  string
	Value string
}

type balanceChart struct {
	Width, Height int
	Points        []chartPoint
	Polyline      string
	ZeroY         float64
	Min, Max      string
	Last          string
}

type rankRow struct {
	Category  string
	Amount    string
	Percent   string
	Width     int
	Collapsed []string
}

type rowView struct {
	ID          string
	Date        string
	Type        string
	Income      bool
	Category    string
	Description string
	Amount      string
	Selected    bool
}

type draftView struct {
	Key         string
	Date        string
	Type        string
	Income      bool
	Amount      string
	Category    string
	Description string
}

type importView struct {
	FileName  string
	Drafts    []draftView
	NetImpact string
	Negative  bool
	Busy      bool
}

type selectionView struct {
	Count       int
	AllSelected bool
	Confirming  bool
	Deleting    bool
}

// pageData is the dashboard template model.
type pageData struct {
	Params    DashboardParams
	SortURL   string // same view with the date order flipped
	Today     string
	LoadError string
	Notices   []workspace.Notice

	AllTime   kpiView
	YearKPIs  kpiView
	Years     []yearOption
	Chart     balanceChart
	Ranking   []rankRow
	Rows      []rowView
	Selection selectionView
	Import    importView
}

func newKPIView(t core.Totals) kpiView {
	return kpiView{
		Income:   formatMoney(t.Income),
		Expenses: formatMoney(t.Expenses),
		Net:      formatMoney(t.Net),
		Negative: t.Net.Cents < 0,
		Count:    t.Count,
	}
}

// yearOptions lists the years present plus the selected one if it has no rows.
func yearOptions(years []int, selected int) []yearOption {
	out := make([]yearOption, 0, len(years)+1)
	found := false
	for _, y := range years {
		out = append(out, yearOption{Year: y, Selected: y == selected})
		found = found || y == selected
	}
	if !found {
		out = append([]yearOption{{Year: selected, Selected: true}}, out...)
	}
	return out
}

// newBalanceChart maps the running balance to SVG coordinates. The value
// axis always includes zero.
func newBalanceChart(points []analytics.BalancePoint) balanceChart {
	c := balanceChart{Width: chartWidth, Height: chartHeight}
	if len(points) == 0 {
		c.ZeroY = chartHeight / 2
		return c
	}
	lo, hi := int64(0), int64(0)
	for _, p := range points {
		lo = min(lo, p.Value.Cents)
		hi = max(hi, p.Value.Cents)
	}
	span := float64(hi - lo)
	if span == 0 {
		span = 1
	}
	inner := float64(chartHeight - 2*chartPadding)
	scaleY := func(v int64) float64 {
		return round2(chartPadding + inner - float64(v-lo)/span*inner)
	}
	innerW := float64(chartWidth - 2*chartPadding)
	coords := make([]string, len(points))
	for i, p := range points {
		x := float64(chartWidth) / 2
		if len(points) > 1 {
			x = chartPadding + float64(i)/float64(len(points)-1)*innerW
		}
		pt := chartPoint{X: round2(x), Y: scaleY(p.Value.Cents), Date: p.Date, Value: formatMoney(p.Value)}
		c.Points = append(c.Points, pt)
		coords[i] = strconv.FormatFloat(pt.X, 'f', -1, 64) + "," + strconv.FormatFloat(pt.Y, 'f', -1, 64)
	}
	c.Polyline = strings.Join(coords, " ")
	c.ZeroY = scaleY(0)
	c.Min = formatMoney(core.Money{Cents: lo})
	c.Max = formatMoney(core.Money{Cents: hi})
	c.Last = formatMoney(points[len(points)-1].Value)
	return c
}

func newRankRows(r analytics.Ranking) []rankRow {
	var top float64
	for _, e := range r.Entries {
		top = math.Max(top, e.Percent)
	}
	rows := make([]rankRow, len(r.Entries))
	for i, e := range r.Entries {
		width := 0
		if top > 0 {
			width = int(math.Round(e.Percent / top * 100))
		}
		row := rankRow{
			Category: e.Category,
			Amount:   formatMoney(e.Amount),
			Percent:  fmt.Sprintf("%.1f%%", e.Percent),
			Width:    width,
		}
		for _, c := range e.Collapsed {
			row.Collapsed = append(row.Collapsed, c.Name+" "+formatMoney(c.Amount))
		}
		rows[i] = row
	}
	return rows
}

func newRowViews(txs []core.Transaction, selected func(string) bool) []rowView {
	rows := make([]rowView, len(txs))
	for i, tx := range txs {
		rows[i] = rowView{
			ID:          tx.ID,
			Date:        tx.Date,
			Type:        string(tx.Type),
			Income:      tx.Type == core.Income,
			Category:    tx.Category,
			Description: tx.Description,
			Amount:      formatMoney(tx.Amount),
			Selected:    selected(tx.ID),
		}
	}
	return rows
}

func newImportView(ws *workspace.Workspace) importView {
	drafts := ws.Drafts.Drafts()
	net := ws.Drafts.NetImpact()
	v := importView{
		FileName:  ws.FileName(),
		NetImpact: formatMoney(net),
		Negative:  net.Cents < 0,
		Busy:      ws.Importer.Busy(),
	}
	for _, d := range drafts {
		v.Drafts = append(v.Drafts, draftView{
			Key:         d.Key,
			Date:        d.Date,
			Type:        string(d.Type),
			Income:      d.Type == core.Income,
			Amount:      d.Amount.String(),
			Category:    d.Category,
			Description: d.Description,
		})
	}
	return v
}

// formatMoney renders cents as "$1,234.56" or "-$1,234.56".
func formatMoney(m core.Money) string {
	s := m.String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := "$" + b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
