// Package store defines the row-oriented sheet contract the pipeline persists through,
// plus its backends: in-memory, PostgreSQL, SQLite and Google Sheets.
//
// Rows are untyped string slices. Ranges use A1 notation relative to a named sheet
// ("A2:O", "A7:O7", "1:1"). Reads trim trailing empty cells and trailing empty rows the
// way the Sheets values API does, so row i of a read starting at row N is sheet row N+i.
package store

import "context"

// Store is the persistence contract every pipeline component depends on
type Store interface {
	// ReadRows returns the cells inside rng of sheet
	ReadRows(ctx context.Context, sheet, rng string) ([][]string, error)
	// WriteRows overwrites cells starting at the top-left corner of rng
	WriteRows(ctx context.Context, sheet, rng string, rows [][]string) error
	// AppendRows adds rows after the last non-empty row of sheet
	AppendRows(ctx context.Context, sheet string, rows [][]string) error
}

// Closer is implemented by backends holding connections
type Closer interface {
	Close() error
}
