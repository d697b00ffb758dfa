package store

import (
	"context"
	"fmt"
	"strings"
)

// Header maps column names to their 0-based index in a sheet
type Header struct {
	names []string
	index map[string]int
}

// ParseHeader builds a Header from a sheet's first row. Names are matched case-insensitively.
func ParseHeader(row []string) Header {
	h := Header{names: make([]string, len(row)), index: make(map[string]int, len(row))}
	for i, name := range row {
		key := strings.ToLower(strings.TrimSpace(name))
		h.names[i] = key
		if key == "" {
			continue
		}
		if _, dup := h.index[key]; !dup {
			h.index[key] = i
		}
	}
	return h
}

// Has reports whether the column exists
func (h Header) Has(col string) bool {
	_, ok := h.index[strings.ToLower(col)]
	return ok
}

// Get returns the trimmed cell for col, or "" when the column or cell is absent
func (h Header) Get(row []string, col string) string {
	i, ok := h.index[strings.ToLower(col)]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Names returns the header columns in sheet order
func (h Header) Names() []string {
	return append([]string(nil), h.names...)
}

// Width is the number of header columns
func (h Header) Width() int {
	return len(h.names)
}

// WithPrefix returns the column names starting with prefix
func (h Header) WithPrefix(prefix string) []string {
	var out []string
	for _, name := range h.names {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			out = append(out, name)
		}
	}
	return out
}

// Encode lays values out in header order; unknown keys are dropped
func (h Header) Encode(values map[string]string) []string {
	row := make([]string, len(h.names))
	for i, name := range h.names {
		row[i] = values[name]
	}
	return row
}

// Missing returns the columns from required that the header lacks
func (h Header) Missing(required []string) []string {
	var out []string
	for _, col := range required {
		if !h.Has(col) {
			out = append(out, col)
		}
	}
	return out
}

// EnsureHeader reads row 1 of sheet and writes columns there when the sheet is empty.
// Columns missing from an existing header are appended to it.
func EnsureHeader(ctx context.Context, s Store, sheet string, columns []string) (Header, error) {
	rows, err := s.ReadRows(ctx, sheet, "1:1")
	if err != nil {
		return Header{}, fmt.Errorf("failed to read header of %s: %w", sheet, err)
	}

	var current []string
	if len(rows) > 0 {
		current = rows[0]
	}
	h := ParseHeader(current)
	missing := h.Missing(columns)
	if len(missing) == 0 {
		return h, nil
	}

	updated := append(append([]string(nil), current...), missing...)
	if err := s.WriteRows(ctx, sheet, "A1", [][]string{updated}); err != nil {
		return Header{}, fmt.Errorf("failed to write header of %s: %w", sheet, err)
	}
	return ParseHeader(updated), nil
}
