package store

import (
	"strconv"
	"strings"
)

// Range is a parsed A1 range. Columns are 0-based, rows are 1-based.
// EndCol == -1 and EndRow == 0 mean the range is open in that direction.
type Range struct {
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// ParseA1 parses A1 notation such as "A2:O", "B3", "A5:O5", "1:1" or "" (whole sheet)
func ParseA1(s string) (Range, error) {
	s = strings.TrimSpace(s)
	r := Range{StartCol: 0, StartRow: 1, EndCol: -1, EndRow: 0}
	if s == "" {
		return r, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) > 2 {
		return Range{}, &RangeError{Range: s, Message: "too many ':' separators"}
	}

	sc, sr, err := parseCell(parts[0])
	if err != nil {
		return Range{}, &RangeError{Range: s, Message: err.Error()}
	}
	if sc >= 0 {
		r.StartCol = sc
	}
	if sr > 0 {
		r.StartRow = sr
	}

	if len(parts) == 1 {
		if sc >= 0 {
			r.EndCol = sc
		}
		if sr > 0 {
			r.EndRow = sr
		}
		return r, nil
	}

	ec, er, err := parseCell(parts[1])
	if err != nil {
		return Range{}, &RangeError{Range: s, Message: err.Error()}
	}
	if ec >= 0 {
		r.EndCol = ec
	}
	if er > 0 {
		r.EndRow = er
	}
	if r.EndCol >= 0 && r.EndCol < r.StartCol {
		return Range{}, &RangeError{Range: s, Message: "end column before start column"}
	}
	if r.EndRow > 0 && r.EndRow < r.StartRow {
		return Range{}, &RangeError{Range: s, Message: "end row before start row"}
	}
	return r, nil
}

// parseCell splits "AB12" into column index 27 and row 12. Absent parts return -1 and 0.
func parseCell(ref string) (col, row int, err error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if ref == "" {
		return -1, 0, &RangeError{Range: ref, Message: "empty cell reference"}
	}
	i := 0
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		i++
	}
	letters, digits := ref[:i], ref[i:]

	col = -1
	if letters != "" {
		col = 0
		for _, c := range letters {
			col = col*26 + int(c-'A'+1)
		}
		col--
	}
	if digits != "" {
		row, err = strconv.Atoi(digits)
		if err != nil || row < 1 {
			return -1, 0, &RangeError{Range: ref, Message: "bad row number"}
		}
	}
	return col, row, nil
}

// ColumnName converts a 0-based column index into its letter form (0 -> A, 26 -> AA)
func ColumnName(idx int) string {
	if idx < 0 {
		return ""
	}
	var b []byte
	for idx >= 0 {
		b = append([]byte{byte('A' + idx%26)}, b...)
		idx = idx/26 - 1
	}
	return string(b)
}

// RowRange returns the A1 range covering one full row of width columns
func RowRange(row, width int) string {
	return "A" + strconv.Itoa(row) + ":" + ColumnName(width-1) + strconv.Itoa(row)
}

// window extracts r from grid, where grid[0] is sheet row 1
func window(grid [][]string, r Range) [][]string {
	var out [][]string
	last := len(grid)
	if r.EndRow > 0 && r.EndRow < last {
		last = r.EndRow
	}
	for rowNum := r.StartRow; rowNum <= last; rowNum++ {
		src := grid[rowNum-1]
		var cells []string
		if r.StartCol < len(src) {
			end := len(src)
			if r.EndCol >= 0 && r.EndCol+1 < end {
				end = r.EndCol + 1
			}
			cells = append(cells, src[r.StartCol:end]...)
		}
		out = append(out, trimCells(cells))
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out
}

// overlayRow writes cells into dst starting at col, growing dst as needed
func overlayRow(dst []string, col int, cells []string) []string {
	need := col + len(cells)
	if len(dst) < need {
		grown := make([]string, need)
		copy(grown, dst)
		dst = grown
	}
	copy(dst[col:], cells)
	return trimCells(dst)
}

func trimCells(cells []string) []string {
	n := len(cells)
	for n > 0 && cells[n-1] == "" {
		n--
	}
	if n == 0 {
		return []string{}
	}
	return cells[:n]
}

func lastNonEmpty(grid [][]string) int {
	n := len(grid)
	for n > 0 && len(trimCells(grid[n-1])) == 0 {
		n--
	}
	return n
}
