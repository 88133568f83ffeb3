package google

import (
	"fmt"
	"strings"

	"bookkeeping/internal/core"
)

// headerIndex maps lower-cased header names to column positions.
func headerIndex(header []interface{}) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(cellString(h))
		if name == "" {
			continue
		}
		if _, seen := idx[name]; !seen {
			idx[name] = i
		}
	}
	return idx
}

func missingColumns(columns map[string]int) []string {
	var missing []string
	for _, h := range Header {
		if _, ok := columns[h]; !ok {
			missing = append(missing, h)
		}
	}
	return missing
}

// decodeRow converts a sheet row into a transaction. Rows without an id
// are not transactions and report false.
func decodeRow(row []interface{}, columns map[string]int) (core.Transaction, bool) {
	get := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return cellString(row[i])
	}
	id := get("id")
	if id == "" {
		return core.Transaction{}, false
	}
	return core.Transaction{
		ID: id,
		TransactionData: core.TransactionData{
			Date:        get("date"),
			Type:        core.NormalizeType(get("type")),
			Amount:      parseCellAmount(get("amount")),
			Category:    get("category"),
			Description: get("description"),
		},
	}, true
}

// encodeRow lays a transaction out following the sheet's own column order.
// Columns the sheet does not have are dropped.
func encodeRow(tx core.Transaction, columns map[string]int) []interface{} {
	return mergeRow(nil, tx, columns)
}

// mergeRow writes the transaction fields over raw, keeping any extra
// columns the sheet carries.
func mergeRow(raw []interface{}, tx core.Transaction, columns map[string]int) []interface{} {
	width := len(raw)
	for _, i := range columns {
		if i+1 > width {
			width = i + 1
		}
	}
	row := make([]interface{}, width)
	for i := range row {
		if i < len(raw) {
			row[i] = raw[i]
		} else {
			row[i] = ""
		}
	}
	set := func(name string, v interface{}) {
		if i, ok := columns[name]; ok {
			row[i] = v
		}
	}
	set("id", tx.ID)
	set("date", tx.Date)
	set("type", string(tx.Type))
	set("amount", tx.Amount.String())
	set("category", tx.Category)
	set("description", tx.Description)
	return row
}

func cellString(v interface{}) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// parseCellAmount reads a formatted amount cell ("$1,234.50"). Cells that
// do not hold a number read as zero.
func parseCellAmount(s string) core.Money {
	s = strings.NewReplacer("$", "", ",", "").Replace(s)
	m, err := core.ParseAmount(s)
	if err != nil {
		return core.Money{}
	}
	return m
}
