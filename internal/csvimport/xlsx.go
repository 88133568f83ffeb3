package csvimport

import (
	"errors"
	"io"

	"github.com/xuri/excelize/v2"

	"bookkeeping/internal/core"
)

// ParseXLSX reads the first worksheet of a workbook and applies the same
// row policy as Parse. Cells are read as formatted text.
func (p *Parser) ParseXLSX(r io.Reader) ([]core.Draft, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Err: errors.New("workbook has no sheets")}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return p.interpretRows(rows)
}
