package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sheet_rows (
	sheet      TEXT        NOT NULL,
	row_num    INTEGER     NOT NULL,
	cells      TEXT[]      NOT NULL DEFAULT '{}',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (sheet, row_num)
)`

// PostgresStore keeps each sheet row as a text array keyed by (sheet, row_num)
type PostgresStore struct {
	pool *pgxpool.Pool
}

// ConnectPostgres establishes a pool and creates the sheet_rows table if needed
func ConnectPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create sheet_rows: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool
func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

// ReadRows implements Store
func (p *PostgresStore) ReadRows(ctx context.Context, sheet, rng string) ([][]string, error) {
	r, err := ParseA1(rng)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx,
		`SELECT row_num, cells FROM sheet_rows
		 WHERE sheet = $1 AND row_num >= $2 AND ($3 = 0 OR row_num <= $3)
		 ORDER BY row_num`,
		sheet, r.StartRow, r.EndRow,
	)
	if err != nil {
		return nil, &BackendError{Backend: "postgres", Op: "read", Sheet: sheet, Cause: err}
	}
	defer rows.Close()

	var local [][]string
	for rows.Next() {
		var rowNum int
		var cells []string
		if err := rows.Scan(&rowNum, &cells); err != nil {
			return nil, &BackendError{Backend: "postgres", Op: "scan", Sheet: sheet, Cause: err}
		}
		offset := rowNum - r.StartRow
		for len(local) <= offset {
			local = append(local, []string{})
		}
		local[offset] = cells
	}
	if err := rows.Err(); err != nil {
		return nil, &BackendError{Backend: "postgres", Op: "read", Sheet: sheet, Cause: err}
	}

	return window(local, Range{StartCol: r.StartCol, StartRow: 1, EndCol: r.EndCol}), nil
}

// WriteRows implements Store
func (p *PostgresStore) WriteRows(ctx context.Context, sheet, rng string, rows [][]string) error {
	r, err := ParseA1(rng)
	if err != nil {
		return err
	}

	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for i, cells := range rows {
			rowNum := r.StartRow + i
			var existing []string
			err := tx.QueryRow(ctx,
				`SELECT cells FROM sheet_rows WHERE sheet = $1 AND row_num = $2 FOR UPDATE`,
				sheet, rowNum,
			).Scan(&existing)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			if err := upsertRow(ctx, tx, sheet, rowNum, overlayRow(existing, r.StartCol, cells)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &BackendError{Backend: "postgres", Op: "write", Sheet: sheet, Cause: err}
	}
	return nil
}

// AppendRows implements Store. Appends to one sheet are serialized with an advisory lock.
func (p *PostgresStore) AppendRows(ctx context.Context, sheet string, rows [][]string) error {
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, sheet); err != nil {
			return err
		}
		var last int
		err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(row_num), 0) FROM sheet_rows WHERE sheet = $1 AND cardinality(cells) > 0`,
			sheet,
		).Scan(&last)
		if err != nil {
			return err
		}
		for i, cells := range rows {
			if err := upsertRow(ctx, tx, sheet, last+i+1, trimCells(cells)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &BackendError{Backend: "postgres", Op: "append", Sheet: sheet, Cause: err}
	}
	return nil
}

func upsertRow(ctx context.Context, tx pgx.Tx, sheet string, rowNum int, cells []string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO sheet_rows (sheet, row_num, cells)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (sheet, row_num) DO UPDATE SET cells = $3, updated_at = NOW()`,
		sheet, rowNum, cells,
	)
	return err
}
