package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"bookkeeping/internal/core"
	ports "bookkeeping/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Header is the column layout written to an empty sheet. Existing sheets
// may order the columns differently; rows are always matched by name.
var Header = []string{"id", "date", "type", "amount", "category", "description"}

// Options configure a Client.
type Options struct {
	SpreadsheetID string
	// SheetName selects the tab holding transactions. Empty means the first tab.
	SheetName string
	// CredentialsJSON or CredentialsFile hold a service account key.
	CredentialsJSON []byte
	CredentialsFile string
	// ClientOptions are appended to the options used to build the service.
	ClientOptions []goption.ClientOption
}

// Client stores transactions as header-keyed rows of one sheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	mu      sync.Mutex
	sheet   *sheetRef // resolved lazily
	columns map[string]int
}

type sheetRef struct {
	id    int64
	title string
}

// Ensure interface conformance
var (
	_ ports.Store = (*Client)(nil)
)

// New creates a Sheets client. Credentials come from Options; when neither
// JSON nor file is given, ClientOptions must supply authentication.
func New(ctx context.Context, opts Options) (*Client, error) {
	id := strings.TrimSpace(opts.SpreadsheetID)
	if id == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: id,
		sheetName:     strings.TrimSpace(opts.SheetName),
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	credentialsJSON := opts.CredentialsJSON
	if len(credentialsJSON) == 0 && opts.CredentialsFile != "" {
		slog.InfoContext(ctx, "Reading credentials from file", "path", opts.CredentialsFile)
		b, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	}

	var clientOpts []goption.ClientOption
	switch {
	case len(credentialsJSON) > 0:
		clientOpts = append(clientOpts,
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	case len(opts.ClientOptions) == 0:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
	clientOpts = append(clientOpts, opts.ClientOptions...)

	service, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "credentials_size", len(credentialsJSON))
	return service, nil
}

// ListTransactions reads every data row. Rows without an id are skipped.
func (c *Client) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	t, err := c.readTable(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, r.tx)
	}
	return out, nil
}

// AddTransaction appends one row with a fresh id.
func (c *Client) AddTransaction(ctx context.Context, d core.TransactionData) (core.Transaction, error) {
	tx := core.Transaction{ID: uuid.NewString(), TransactionData: d}
	if err := c.AppendTransactions(ctx, []core.Transaction{tx}); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

// AddTransactions appends the batch in a single request, one fresh id per row.
func (c *Client) AddTransactions(ctx context.Context, batch []core.TransactionData) error {
	txs := make([]core.Transaction, len(batch))
	for i, d := range batch {
		txs[i] = core.Transaction{ID: uuid.NewString(), TransactionData: d}
	}
	return c.AppendTransactions(ctx, txs)
}

// AppendTransactions appends rows keeping the ids they already carry. Used
// when mirroring rows whose ids were assigned by another store.
func (c *Client) AppendTransactions(ctx context.Context, txs []core.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	sheet, err := c.resolveSheet(ctx)
	if err != nil {
		return err
	}
	columns, err := c.ensureHeader(ctx, sheet)
	if err != nil {
		return err
	}

	values := make([][]interface{}, len(txs))
	for i, tx := range txs {
		values[i] = encodeRow(tx, columns)
	}
	rng := quoteSheet(sheet.title) + "!A1"
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append %d rows to %s: %w", len(txs), sheet.title, err)
	}
	slog.InfoContext(ctx, "Appended rows", "sheet", sheet.title, "count", len(txs))
	return nil
}

// DeleteTransactions removes the rows of the given ids with one batch
// update. Unknown ids are ignored.
func (c *Client) DeleteTransactions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	t, err := c.readTable(ctx)
	if err != nil {
		return err
	}
	rows := rowsFor(t, ids)
	if len(rows) == 0 {
		slog.WarnContext(ctx, "No rows matched delete request", "requested", len(ids))
		return nil
	}

	reqs := make([]*gsheet.Request, 0, len(rows))
	for _, row := range rows {
		reqs = append(reqs, &gsheet.Request{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    t.sheet.id,
					Dimension:  "ROWS",
					StartIndex: int64(row),
					EndIndex:   int64(row + 1),
				},
			},
		})
	}
	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("delete %d rows from %s: %w", len(rows), t.sheet.title, err)
	}
	slog.InfoContext(ctx, "Deleted rows", "sheet", t.sheet.title, "count", len(rows), "requested", len(ids))
	return nil
}

// UpdateTransaction rewrites the row holding id with the patch applied.
func (c *Client) UpdateTransaction(ctx context.Context, id string, p core.TransactionPatch) (bool, error) {
	t, err := c.readTable(ctx)
	if err != nil {
		return false, err
	}
	for _, r := range t.rows {
		if r.tx.ID != id {
			continue
		}
		updated := core.Transaction{ID: id, TransactionData: p.Apply(r.tx.TransactionData)}
		rng := fmt.Sprintf("%s!A%d", quoteSheet(t.sheet.title), r.index+1)
		vr := &gsheet.ValueRange{Values: [][]interface{}{mergeRow(r.raw, updated, t.columns)}}
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
			ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return false, fmt.Errorf("update row %d in %s: %w", r.index+1, t.sheet.title, err)
		}
		return true, nil
	}
	return false, nil
}

// resolveSheet finds the configured tab, or the first one, once per client.
func (c *Client) resolveSheet(ctx context.Context) (sheetRef, error) {
	c.mu.Lock()
	if c.sheet != nil {
		ref := *c.sheet
		c.mu.Unlock()
		return ref, nil
	}
	c.mu.Unlock()

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties(sheetId,title)").Context(ctx).Do()
	if err != nil {
		return sheetRef{}, fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}
	ref, err := pickSheet(ss.Sheets, c.sheetName)
	if err != nil {
		return sheetRef{}, err
	}

	c.mu.Lock()
	c.sheet = &ref
	c.mu.Unlock()
	return ref, nil
}

func pickSheet(sheets []*gsheet.Sheet, name string) (sheetRef, error) {
	for _, s := range sheets {
		if s == nil || s.Properties == nil {
			continue
		}
		if name == "" || s.Properties.Title == name {
			return sheetRef{id: s.Properties.SheetId, title: s.Properties.Title}, nil
		}
	}
	if name == "" {
		return sheetRef{}, errors.New("spreadsheet has no sheets")
	}
	return sheetRef{}, fmt.Errorf("sheet %q not found", name)
}

// ensureHeader returns the column index, writing Header when the sheet is empty.
func (c *Client) ensureHeader(ctx context.Context, sheet sheetRef) (map[string]int, error) {
	c.mu.Lock()
	if c.columns != nil {
		cols := c.columns
		c.mu.Unlock()
		return cols, nil
	}
	c.mu.Unlock()

	rng := quoteSheet(sheet.title) + "!1:1"
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read header %s: %w", rng, err)
	}

	var columns map[string]int
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		header := make([]interface{}, len(Header))
		for i, h := range Header {
			header[i] = h
		}
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, quoteSheet(sheet.title)+"!A1",
			&gsheet.ValueRange{Values: [][]interface{}{header}}).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("write header to %s: %w", sheet.title, err)
		}
		slog.InfoContext(ctx, "Wrote header to empty sheet", "sheet", sheet.title)
		columns = headerIndex(header)
	} else {
		columns = headerIndex(resp.Values[0])
	}

	if missing := missingColumns(columns); len(missing) > 0 {
		slog.WarnContext(ctx, "Sheet header lacks columns", "sheet", sheet.title, "missing", missing)
	}

	c.mu.Lock()
	c.columns = columns
	c.mu.Unlock()
	return columns, nil
}

// table is one full read of the sheet.
type table struct {
	sheet   sheetRef
	columns map[string]int
	rows    []tableRow
}

type tableRow struct {
	index int // zero-based sheet row
	raw   []interface{}
	tx    core.Transaction
}

func (c *Client) readTable(ctx context.Context) (table, error) {
	sheet, err := c.resolveSheet(ctx)
	if err != nil {
		return table{}, err
	}
	rng := quoteSheet(sheet.title)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return table{}, fmt.Errorf("read %s: %w", rng, err)
	}
	t := table{sheet: sheet}
	if len(resp.Values) == 0 {
		return t, nil
	}
	t.columns = headerIndex(resp.Values[0])

	c.mu.Lock()
	c.columns = t.columns
	c.mu.Unlock()

	for i := 1; i < len(resp.Values); i++ {
		tx, ok := decodeRow(resp.Values[i], t.columns)
		if !ok {
			continue
		}
		t.rows = append(t.rows, tableRow{index: i, raw: resp.Values[i], tx: tx})
	}
	return t, nil
}

// rowsFor returns the sheet rows holding ids, highest first so that each
// delete leaves the remaining indexes valid.
func rowsFor(t table, ids []string) []int {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var rows []int
	for i := len(t.rows) - 1; i >= 0; i-- {
		if _, ok := want[t.rows[i].tx.ID]; ok {
			rows = append(rows, t.rows[i].index)
		}
	}
	return rows
}

// quoteSheet returns a sheet title usable in A1 notation.
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
