package store

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// GoogleSheetsStore talks to a live spreadsheet through the Sheets values API
type GoogleSheetsStore struct {
	svc           *gsheets.Service
	spreadsheetID string
}

// NewGoogleSheetsStore creates a store for spreadsheetID. credentialsFile may be empty to use
// application default credentials.
func NewGoogleSheetsStore(ctx context.Context, spreadsheetID, credentialsFile string) (*GoogleSheetsStore, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, option.WithScopes(gsheets.SpreadsheetsScope))

	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &GoogleSheetsStore{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// ReadRows implements Store
func (g *GoogleSheetsStore) ReadRows(ctx context.Context, sheet, rng string) ([][]string, error) {
	if _, err := ParseA1(rng); err != nil {
		return nil, err
	}
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, qualify(sheet, rng)).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, &BackendError{Backend: "gsheets", Op: "read", Sheet: sheet, Cause: err}
	}

	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		out[i] = cells
	}
	return out, nil
}

// WriteRows implements Store
func (g *GoogleSheetsStore) WriteRows(ctx context.Context, sheet, rng string, rows [][]string) error {
	if _, err := ParseA1(rng); err != nil {
		return err
	}
	_, err := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, qualify(sheet, rng), toValueRange(rows)).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return &BackendError{Backend: "gsheets", Op: "write", Sheet: sheet, Cause: err}
	}
	return nil
}

// AppendRows implements Store
func (g *GoogleSheetsStore) AppendRows(ctx context.Context, sheet string, rows [][]string) error {
	_, err := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, qualify(sheet, "A1"), toValueRange(rows)).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return &BackendError{Backend: "gsheets", Op: "append", Sheet: sheet, Cause: err}
	}
	return nil
}

// Close implements Closer
func (g *GoogleSheetsStore) Close() error {
	return nil
}

func qualify(sheet, rng string) string {
	if rng == "" {
		return "'" + sheet + "'"
	}
	return "'" + sheet + "'!" + rng
}

func toValueRange(rows [][]string) *gsheets.ValueRange {
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, c := range row {
			cells[j] = c
		}
		values[i] = cells
	}
	return &gsheets.ValueRange{Values: values}
}
