// Package csvimport turns uploaded CSV and XLSX files into transaction drafts.
//
// Rows are matched to fields by header name. The row policy is tolerant: a
// row whose amount is not a finite number is dropped without an error, an
// unknown type becomes Expense and a blank category becomes "Uncategorized".
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"bookkeeping/internal/core"
)

// Column names recognised in the header row.
const (
	ColDate        = "date"
	ColType        = "type"
	ColAmount      = "amount"
	ColCategory    = "category"
	ColDescription = "description"
)

var (
	// ErrNoTransactions is returned when every row was dropped.
	ErrNoTransactions = errors.New("no valid transactions found")
	// ErrUnreadable marks a failure of the file itself rather than of a row.
	ErrUnreadable = errors.New("unreadable file")
)

// ParseError wraps a stream or format failure. It matches ErrUnreadable.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse file: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrUnreadable }

// UserMessage converts a parse error into the text shown next to the upload control.
func UserMessage(err error) string {
	var pe *ParseError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoTransactions):
		return "No valid transactions found in CSV."
	case errors.As(err, &pe):
		return "Error parsing CSV: " + pe.Err.Error()
	default:
		return "Error parsing CSV: " + err.Error()
	}
}

// Parser converts tabular files to drafts. The zero value is ready to use.
type Parser struct {
	// NewKey generates draft keys. Defaults to random UUIDs.
	NewKey func() string
	// Logger receives debug lines for dropped rows. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewParser returns a Parser with default key generation and logging.
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads CSV content whose first record is a header.
func (p *Parser) Parse(r io.Reader) ([]core.Draft, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return p.interpretRows(records)
}

// ParseFile dispatches on the file extension: .xlsx goes to ParseXLSX and
// everything else is read as CSV.
func (p *Parser) ParseFile(name string, r io.Reader) ([]core.Draft, error) {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return p.ParseXLSX(r)
	}
	return p.Parse(r)
}

// interpretRows applies the row policy to records whose first entry is the header.
func (p *Parser) interpretRows(records [][]string) ([]core.Draft, error) {
	if len(records) == 0 {
		return nil, ErrNoTransactions
	}
	index := headerIndex(records[0])
	log := p.logger()

	drafts := make([]core.Draft, 0, len(records)-1)
	for i, row := range records[1:] {
		if isBlank(row) {
			continue
		}
		raw := field(row, index, ColAmount)
		amount, err := core.ParseAmount(raw)
		if err != nil {
			log.Debug("Skipping row with invalid amount", "row", i+2, "amount", raw)
			continue
		}
		category := field(row, index, ColCategory)
		if category == "" {
			category = core.UncategorizedLabel
		}
		drafts = append(drafts, core.Draft{
			Key: p.newKey(),
			TransactionData: core.TransactionData{
				Date:        field(row, index, ColDate),
				Type:        core.NormalizeType(field(row, index, ColType)),
				Amount:      amount,
				Category:    category,
				Description: field(row, index, ColDescription),
			},
		})
	}

	if len(drafts) == 0 {
		return nil, ErrNoTransactions
	}
	log.Debug("Parsed import file", "rows", len(records)-1, "drafts", len(drafts))
	return drafts, nil
}

func (p *Parser) newKey() string {
	if p.NewKey != nil {
		return p.NewKey()
	}
	return uuid.NewString()
}

func (p *Parser) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// headerIndex maps normalised column names to positions. The first
// occurrence of a duplicated name wins.
func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}
	return index
}

// field returns the cell for a column, or "" when the column or cell is missing.
func field(row []string, index map[string]int, name string) string {
	i, ok := index[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}

// Describe renders a short summary used by the CLI dry run.
func Describe(drafts []core.Draft) string {
	var net core.Money
	for _, d := range drafts {
		net = net.Add(d.Signed())
	}
	return fmt.Sprintf("%d drafts, net impact %s", len(drafts), net)
}
