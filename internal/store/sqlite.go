package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the single-host backend: one local file, rows stored as JSON arrays
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sheet_rows (
			sheet      TEXT    NOT NULL,
			row_num    INTEGER NOT NULL,
			cells      TEXT    NOT NULL DEFAULT '[]',
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (sheet, row_num)
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ReadRows implements Store
func (s *SQLiteStore) ReadRows(ctx context.Context, sheet, rng string) ([][]string, error) {
	r, err := ParseA1(rng)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT row_num, cells FROM sheet_rows
		 WHERE sheet = ? AND row_num >= ? AND (? = 0 OR row_num <= ?)
		 ORDER BY row_num`,
		sheet, r.StartRow, r.EndRow, r.EndRow,
	)
	if err != nil {
		return nil, &BackendError{Backend: "sqlite", Op: "read", Sheet: sheet, Cause: err}
	}
	defer rows.Close()

	var local [][]string
	for rows.Next() {
		var rowNum int
		var raw string
		if err := rows.Scan(&rowNum, &raw); err != nil {
			return nil, &BackendError{Backend: "sqlite", Op: "scan", Sheet: sheet, Cause: err}
		}
		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil, &BackendError{Backend: "sqlite", Op: "decode", Sheet: sheet, Cause: err}
		}
		offset := rowNum - r.StartRow
		for len(local) <= offset {
			local = append(local, []string{})
		}
		local[offset] = cells
	}
	if err := rows.Err(); err != nil {
		return nil, &BackendError{Backend: "sqlite", Op: "read", Sheet: sheet, Cause: err}
	}

	return window(local, Range{StartCol: r.StartCol, StartRow: 1, EndCol: r.EndCol}), nil
}

// WriteRows implements Store
func (s *SQLiteStore) WriteRows(ctx context.Context, sheet, rng string, rows [][]string) error {
	r, err := ParseA1(rng)
	if err != nil {
		return err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		for i, cells := range rows {
			rowNum := r.StartRow + i
			var raw string
			var existing []string
			err := tx.QueryRowContext(ctx,
				`SELECT cells FROM sheet_rows WHERE sheet = ? AND row_num = ?`, sheet, rowNum,
			).Scan(&raw)
			switch {
			case errors.Is(err, sql.ErrNoRows):
			case err != nil:
				return err
			default:
				if err := json.Unmarshal([]byte(raw), &existing); err != nil {
					return err
				}
			}
			if err := sqliteUpsert(ctx, tx, sheet, rowNum, overlayRow(existing, r.StartCol, cells)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &BackendError{Backend: "sqlite", Op: "write", Sheet: sheet, Cause: err}
	}
	return nil
}

// AppendRows implements Store
func (s *SQLiteStore) AppendRows(ctx context.Context, sheet string, rows [][]string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var last int
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(row_num), 0) FROM sheet_rows WHERE sheet = ? AND cells != '[]'`, sheet,
		).Scan(&last)
		if err != nil {
			return err
		}
		for i, cells := range rows {
			if err := sqliteUpsert(ctx, tx, sheet, last+i+1, trimCells(cells)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &BackendError{Backend: "sqlite", Op: "append", Sheet: sheet, Cause: err}
	}
	return nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func sqliteUpsert(ctx context.Context, tx *sql.Tx, sheet string, rowNum int, cells []string) error {
	raw, err := json.Marshal(cells)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sheet_rows (sheet, row_num, cells, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (sheet, row_num) DO UPDATE SET cells = excluded.cells, updated_at = CURRENT_TIMESTAMP`,
		sheet, rowNum, string(raw),
	)
	return err
}
