// Package analytics derives the dashboard figures from a transaction set.
//
// Every function is pure: it reads its arguments, never mutates them and
// keeps no state between calls.
package analytics

import (
	"sort"
	"time"

	"bookkeeping/internal/core"
)

// DefaultRankingLimit is the number of named categories before the rest
// collapse into OtherLabel.
const DefaultRankingLimit = 10

// OtherLabel names the bucket holding the collapsed categories.
const OtherLabel = "Other"

// BalancePoint is the cumulative net value at the end of a date.
type BalancePoint struct {
	Date  string
	Value core.Money
}

// CategoryShare is one entry of the expense ranking. Percent is relative to
// the sum of the displayed entries. Collapsed is set only on the Other entry.
type CategoryShare struct {
	Category  string
	Amount    core.Money
	Percent   float64
	Collapsed []core.CategoryAmount
}

// Ranking is the ordered expense breakdown.
type Ranking struct {
	Entries []CategoryShare
	Total   core.Money
}

// Other returns the collapsed bucket, if the ranking has one.
func (r Ranking) Other() (CategoryShare, bool) {
	if n := len(r.Entries); n > 0 && r.Entries[n-1].Collapsed != nil {
		return r.Entries[n-1], true
	}
	return CategoryShare{}, false
}

// Summarize computes income, expense and net totals.
func Summarize(txs []core.Transaction) core.Totals {
	var t core.Totals
	for _, tx := range txs {
		if tx.Type == core.Income {
			t.Income = t.Income.Add(tx.Amount)
		} else {
			t.Expenses = t.Expenses.Add(tx.Amount)
		}
	}
	t.Net = core.Money{Cents: t.Income.Cents - t.Expenses.Cents}
	t.Count = len(txs)
	return t
}

// Years lists the distinct calendar years present, newest first. Dates
// that do not parse are ignored.
func Years(txs []core.Transaction) []int {
	seen := make(map[int]struct{})
	var years []int
	for _, tx := range txs {
		y, ok := core.Year(tx.Date)
		if !ok {
			continue
		}
		if _, dup := seen[y]; dup {
			continue
		}
		seen[y] = struct{}{}
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}

// DefaultYear picks the current year when present, else the newest year,
// else the current year.
func DefaultYear(years []int, now time.Time) int {
	current := now.Year()
	for _, y := range years {
		if y == current {
			return current
		}
	}
	if len(years) > 0 {
		return years[0]
	}
	return current
}

// FilterByYear keeps transactions whose date parses to year. Unparseable
// dates never match.
func FilterByYear(txs []core.Transaction, year int) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if y, ok := core.Year(tx.Date); ok && y == year {
			out = append(out, tx)
		}
	}
	return out
}

// RunningBalance groups transactions by their exact date string, orders
// the dates chronologically and accumulates the signed daily net. It
// yields one point per distinct date.
func RunningBalance(txs []core.Transaction) []BalancePoint {
	daily := make(map[string]int64)
	var dates []string
	for _, tx := range txs {
		if _, ok := daily[tx.Date]; !ok {
			dates = append(dates, tx.Date)
		}
		daily[tx.Date] += tx.Signed().Cents
	}

	keys := make([]dateKey, len(dates))
	for i, d := range dates {
		keys[i] = newDateKey(d)
	}
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].before(keys[j]) })

	points := make([]BalancePoint, 0, len(keys))
	var running int64
	for _, k := range keys {
		running += daily[k.raw]
		points = append(points, BalancePoint{Date: k.raw, Value: core.Money{Cents: running}})
	}
	return points
}

// RankCategories sums expenses per category and orders them by amount,
// largest first; equal amounts keep first-seen order. With more than limit
// categories the tail is folded into a single Other entry that keeps the
// folded list.
func RankCategories(txs []core.Transaction, limit int) Ranking {
	var totals []core.CategoryAmount
	index := make(map[string]int)
	for _, tx := range txs {
		if tx.Type != core.Expense {
			continue
		}
		i, ok := index[tx.Category]
		if !ok {
			i = len(totals)
			index[tx.Category] = i
			totals = append(totals, core.CategoryAmount{Name: tx.Category})
		}
		totals[i].Amount = totals[i].Amount.Add(tx.Amount)
	}
	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].Amount.Cents > totals[j].Amount.Cents
	})

	var entries []CategoryShare
	if limit > 0 && len(totals) > limit {
		rest := append([]core.CategoryAmount(nil), totals[limit:]...)
		var sum core.Money
		for _, c := range rest {
			sum = sum.Add(c.Amount)
		}
		for _, c := range totals[:limit] {
			entries = append(entries, CategoryShare{Category: c.Name, Amount: c.Amount})
		}
		entries = append(entries, CategoryShare{Category: OtherLabel, Amount: sum, Collapsed: rest})
	} else {
		for _, c := range totals {
			entries = append(entries, CategoryShare{Category: c.Name, Amount: c.Amount})
		}
	}

	var displayed core.Money
	for _, e := range entries {
		displayed = displayed.Add(e.Amount)
	}
	if displayed.Cents != 0 {
		for i := range entries {
			entries[i].Percent = float64(entries[i].Amount.Cents) * 100 / float64(displayed.Cents)
		}
	}
	return Ranking{Entries: entries, Total: displayed}
}

// SortByDate returns a copy ordered by parsed date. Rows whose date does
// not parse always come last; ties keep their input order.
func SortByDate(txs []core.Transaction, ascending bool) []core.Transaction {
	type keyed struct {
		key dateKey
		tx  core.Transaction
	}
	rows := make([]keyed, len(txs))
	for i, tx := range txs {
		rows[i] = keyed{key: newDateKey(tx.Date), tx: tx}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].key, rows[j].key
		if a.ok != b.ok {
			return a.ok
		}
		if !a.ok || a.t.Equal(b.t) {
			return false
		}
		if ascending {
			return a.t.Before(b.t)
		}
		return a.t.After(b.t)
	})
	out := make([]core.Transaction, len(rows))
	for i, r := range rows {
		out[i] = r.tx
	}
	return out
}

// dateKey orders raw date strings: parseable dates chronologically, then
// unparseable ones, with the raw string as tie breaker.
type dateKey struct {
	raw string
	t   time.Time
	ok  bool
}

func newDateKey(raw string) dateKey {
	t, ok := core.ParseDate(raw)
	return dateKey{raw: raw, t: t, ok: ok}
}

func (a dateKey) before(b dateKey) bool {
	if a.ok != b.ok {
		return a.ok
	}
	if a.ok && !a.t.Equal(b.t) {
		return a.t.Before(b.t)
	}
	return a.raw < b.raw
}
