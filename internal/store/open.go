package store

import (
	"context"
	"fmt"
)

// Backend names accepted by Open
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendGSheets  = "gsheets"
)

// Options selects and configures a backend
type Options struct {
	Backend         string
	DatabaseURL     string
	SQLitePath      string
	SpreadsheetID   string
	CredentialsFile string
}

// Open builds the backend named by opts.Backend
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendPostgres:
		return ConnectPostgres(ctx, opts.DatabaseURL)
	case BackendSQLite:
		return OpenSQLite(opts.SQLitePath)
	case BackendGSheets:
		return NewGoogleSheetsStore(ctx, opts.SpreadsheetID, opts.CredentialsFile)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

// Close releases s if it holds resources
func Close(s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}
