package store

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/rezonia/nfe-conferencia/internal/model"
)

const (
	sheetsReadRange   = "A:N"
	sheetsAppendRange = "A1"

	// Cells are stored as sent: access keys and invoice numbers stay digit strings.
	valueInputOption = "RAW"
)

// Sheets stores each polo in its own worksheet of one spreadsheet.
// The first line of every worksheet holds the column headers.
type Sheets struct {
	srv           *sheets.Service
	spreadsheetID string
}

// NewSheetsFromFile authenticates with a service account file, or with
// application default credentials when credentialsFile is empty.
func NewSheetsFromFile(ctx context.Context, spreadsheetID, credentialsFile string) (*Sheets, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	return NewSheets(ctx, spreadsheetID, opts...)
}

// NewSheets creates a Sheets store with explicit client options
func NewSheets(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*Sheets, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("store: sheets: spreadsheet id is required")
	}
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("store: sheets client: %w", err)
	}
	return &Sheets{srv: srv, spreadsheetID: spreadsheetID}, nil
}

// Append writes rows at the end of the polo worksheet, creating it with a header line when missing
func (s *Sheets) Append(ctx context.Context, polo string, rows []model.Row) error {
	if polo == "" {
		return ErrNoPolo
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.ensureSheet(ctx, polo); err != nil {
		return err
	}

	values := make([][]interface{}, 0, len(rows))
	for _, r := range rows {
		values = append(values, toCells(r.Values()))
	}

	_, err := s.srv.Spreadsheets.Values.
		Append(s.spreadsheetID, sheetRange(polo, sheetsAppendRange), &sheets.ValueRange{Values: values}).
		ValueInputOption(valueInputOption).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("store: sheets append %s: %w", polo, err)
	}
	return nil
}

// LoadAll reads every data line of the polo worksheet
func (s *Sheets) LoadAll(ctx context.Context, polo string) ([]model.Row, error) {
	if polo == "" {
		return nil, ErrNoPolo
	}
	exists, err := s.hasSheet(ctx, polo)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []model.Row{}, nil
	}

	resp, err := s.srv.Spreadsheets.Values.Get(s.spreadsheetID, sheetRange(polo, sheetsReadRange)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("store: sheets read %s: %w", polo, err)
	}

	rows := make([]model.Row, 0, len(resp.Values))
	for i, line := range resp.Values {
		if i == 0 {
			continue // header
		}
		row, err := model.RowFromValues(fromCells(line))
		if err != nil {
			return nil, fmt.Errorf("store: sheets %s line %d: %w", polo, i+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Close is a no-op; the HTTP transport is owned by the service
func (s *Sheets) Close() error { return nil }

func (s *Sheets) hasSheet(ctx context.Context, title string) (bool, error) {
	ss, err := s.srv.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("store: sheets metadata: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return true, nil
		}
	}
	return false, nil
}

func (s *Sheets) ensureSheet(ctx context.Context, title string) error {
	exists, err := s.hasSheet(ctx, title)
	if err != nil || exists {
		return err
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := s.srv.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("store: sheets add worksheet %s: %w", title, err)
	}

	header := &sheets.ValueRange{Values: [][]interface{}{toCells(model.Columns())}}
	_, err = s.srv.Spreadsheets.Values.Update(s.spreadsheetID, sheetRange(title, sheetsAppendRange), header).
		ValueInputOption(valueInputOption).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("store: sheets header %s: %w", title, err)
	}
	return nil
}

// sheetRange builds an A1 range on a worksheet. The title is quoted and
// apostrophes inside it are doubled.
func sheetRange(title, cells string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'!" + cells
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func fromCells(cells []interface{}) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		if c == nil {
			continue
		}
		out[i] = fmt.Sprint(c)
	}
	return out
}
