package analytics

import (
	"bookkeeping/internal/core"
)

// Dashboard is the view model of the dashboard page. AllTime covers every
// transaction; the remaining figures cover the selected year only.
type Dashboard struct {
	AllTime      core.Totals
	Year         int
	Years        []int
	YearTotals   core.Totals
	Balance      []BalancePoint
	Ranking      Ranking
	Transactions []core.Transaction // newest first
}

// Build derives the dashboard for year from the full transaction set.
func Build(txs []core.Transaction, year int) Dashboard {
	filtered := FilterByYear(txs, year)
	return Dashboard{
		AllTime:      Summarize(txs),
		Year:         year,
		Years:        Years(txs),
		YearTotals:   Summarize(filtered),
		Balance:      RunningBalance(filtered),
		Ranking:      RankCategories(filtered, DefaultRankingLimit),
		Transactions: SortByDate(filtered, false),
	}
}

// IDs returns the ids of the dashboard rows, in display order.
func (d Dashboard) IDs() []string {
	ids := make([]string, len(d.Transactions))
	for i, tx := range d.Transactions {
		ids[i] = tx.ID
	}
	return ids
}
