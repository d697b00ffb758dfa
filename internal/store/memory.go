package store

import (
	"context"
	"sync"
)

// MemoryStore keeps sheets in process memory. Used by tests and dry runs.
type MemoryStore struct {
	mu     sync.RWMutex
	sheets map[string][][]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sheets: make(map[string][][]string)}
}

// ReadRows implements Store
func (m *MemoryStore) ReadRows(_ context.Context, sheet, rng string) ([][]string, error) {
	r, err := ParseA1(rng)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyGrid(window(m.sheets[sheet], r)), nil
}

// WriteRows implements Store
func (m *MemoryStore) WriteRows(_ context.Context, sheet, rng string, rows [][]string) error {
	r, err := ParseA1(rng)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	grid := m.sheets[sheet]
	for i, cells := range rows {
		rowNum := r.StartRow + i
		for len(grid) < rowNum {
			grid = append(grid, []string{})
		}
		grid[rowNum-1] = overlayRow(append([]string(nil), grid[rowNum-1]...), r.StartCol, cells)
	}
	m.sheets[sheet] = grid
	return nil
}

// AppendRows implements Store
func (m *MemoryStore) AppendRows(_ context.Context, sheet string, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	grid := m.sheets[sheet][:lastNonEmpty(m.sheets[sheet])]
	for _, cells := range rows {
		grid = append(grid, trimCells(append([]string(nil), cells...)))
	}
	m.sheets[sheet] = grid
	return nil
}

// Seed replaces a sheet's contents wholesale
func (m *MemoryStore) Seed(sheet string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[sheet] = copyGrid(rows)
}

func copyGrid(grid [][]string) [][]string {
	out := make([][]string, len(grid))
	for i, row := range grid {
		out[i] = append([]string{}, row...)
	}
	return out
}
