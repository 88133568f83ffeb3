package google

import (
	"testing"

	"bookkeeping/internal/core"
)

func TestDecodeRow(t *testing.T) {
	columns := headerIndex([]interface{}{"Date", " ID ", "amount", "Type", "category", "notes", "description"})

	cases := []struct {
		name string
		row  []interface{}
		want core.Transaction
		ok   bool
	}{
		{
			name: "full row",
			row:  []interface{}{"2024-01-02", "abc", "$1,234.50", "Income", "Salary", "x", "Pay"},
			want: core.Transaction{ID: "abc", TransactionData: core.TransactionData{
				Date: "2024-01-02", Type: core.Income, Amount: core.Money{Cents: 123450}, Category: "Salary", Description: "Pay",
			}},
			ok: true,
		},
		{
			name: "short row and numeric cell",
			row:  []interface{}{"2024-01-03", "def", 12.5},
			want: core.Transaction{ID: "def", TransactionData: core.TransactionData{
				Date: "2024-01-03", Type: core.Expense, Amount: core.Money{Cents: 1250},
			}},
			ok: true,
		},
		{
			name: "unreadable amount reads as zero",
			row:  []interface{}{"2024-01-04", "ghi", "n/a", "Expense", "Food"},
			want: core.Transaction{ID: "ghi", TransactionData: core.TransactionData{
				Date: "2024-01-04", Type: core.Expense, Category: "Food",
			}},
			ok: true,
		},
		{name: "no id", row: []interface{}{"2024-01-05", "", "5"}, ok: false},
		{name: "empty", row: nil, ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := decodeRow(tc.row, columns)
			if ok != tc.ok {
				t.Fatalf("ok: expected %v, got %v", tc.ok, ok)
			}
			if ok && got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestMergeRowKeepsExtraColumns(t *testing.T) {
	columns := headerIndex([]interface{}{"id", "date", "notes", "type", "amount", "category", "description"})
	raw := []interface{}{"abc", "2024-01-01", "keep me", "Expense", "5"}
	tx := core.Transaction{ID: "abc", TransactionData: core.TransactionData{
		Date: "2024-02-02", Type: core.Income, Amount: core.Money{Cents: 995}, Category: "Gift", Description: "d",
	}}

	got := mergeRow(raw, tx, columns)

	want := []interface{}{"abc", "2024-02-02", "keep me", "Income", "9.95", "Gift", "d"}
	if len(got) != len(want) {
		t.Fatalf("expected %d cells, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("cell %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestMissingColumns(t *testing.T) {
	got := missingColumns(headerIndex([]interface{}{"id", "date", "amount"}))
	want := []string{"type", "category", "description"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestQuoteSheet(t *testing.T) {
	if got := quoteSheet("Bob's ledger"); got != "'Bob''s ledger'" {
		t.Fatalf("unexpected %q", got)
	}
}
