package analysis

import (
	"encoding/json"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Frame is a small typed result table. Cells hold string, int, float64 or nil.
type Frame struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewFrame returns an empty frame with the given columns.
func NewFrame(columns ...string) *Frame {
	return &Frame{Columns: columns, Rows: [][]any{}}
}

// Append adds a row. Missing trailing cells are nil.
func (f *Frame) Append(values ...any) {
	row := make([]any, len(f.Columns))
	copy(row, values)
	f.Rows = append(f.Rows, row)
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Rows) }

// ColumnIndex returns the position of a column or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Value returns the cell at row i in the named column, or nil.
func (f *Frame) Value(i int, column string) any {
	j := f.ColumnIndex(column)
	if j < 0 || i < 0 || i >= len(f.Rows) {
		return nil
	}
	return f.Rows[i][j]
}

// Float returns a numeric cell as float64.
func (f *Frame) Float(i int, column string) float64 {
	switch v := f.Value(i, column).(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// Int returns a numeric cell as int.
func (f *Frame) Int(i int, column string) int {
	switch v := f.Value(i, column).(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// String returns a cell formatted for display.
func (f *Frame) String(i int, column string) string {
	return formatCell(f.Value(i, column))
}

// Head returns a frame holding at most the first n rows.
func (f *Frame) Head(n int) *Frame {
	if n < 0 {
		n = 0
	}
	if n > len(f.Rows) {
		n = len(f.Rows)
	}
	out := NewFrame(append([]string(nil), f.Columns...)...)
	for _, r := range f.Rows[:n] {
		out.Rows = append(out.Rows, append([]any(nil), r...))
	}
	return out
}

// SortBy returns a copy ordered by column. Rows with a null key go last in
// both directions, in their original order. Among the others descending
// order is a stable sort and ascending order is its exact reverse, so the
// first n rows of each direction never overlap when n is at most half the
// non-null rows.
func (f *Frame) SortBy(column string, ascending bool) *Frame {
	out := f.Head(len(f.Rows))
	j := out.ColumnIndex(column)
	if j < 0 {
		return out
	}
	var keyed, nulls [][]any
	for _, r := range out.Rows {
		if r[j] == nil {
			nulls = append(nulls, r)
		} else {
			keyed = append(keyed, r)
		}
	}
	sort.SliceStable(keyed, func(a, b int) bool {
		return compareCells(keyed[a][j], keyed[b][j]) > 0
	})
	if ascending {
		slices.Reverse(keyed)
	}
	out.Rows = append(keyed, nulls...)
	return out
}

// withColumn returns a copy with a computed column appended.
func (f *Frame) withColumn(name string, value func(row []any) any) *Frame {
	out := NewFrame(append(append([]string(nil), f.Columns...), name)...)
	for _, r := range f.Rows {
		row := append(append([]any(nil), r...), value(r))
		out.Rows = append(out.Rows, row)
	}
	return out
}

// Records returns one map per row, keyed by column name.
func (f *Frame) Records() []map[string]any {
	out := make([]map[string]any, 0, len(f.Rows))
	for _, r := range f.Rows {
		m := make(map[string]any, len(f.Columns))
		for j, c := range f.Columns {
			m[c] = r[j]
		}
		out = append(out, m)
	}
	return out
}

// JSON renders the frame as an indented array of records.
func (f *Frame) JSON() ([]byte, error) {
	return json.MarshalIndent(f.Records(), "", "  ")
}

// Markdown renders the frame as a pipe table.
func (f *Frame) Markdown() string {
	var b strings.Builder
	b.WriteString("| ")
	b.WriteString(strings.Join(escapeCells(f.Columns), " | "))
	b.WriteString(" |\n|")
	for range f.Columns {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, r := range f.Rows {
		cells := make([]string, len(r))
		for j, v := range r {
			cells[j] = safeVal(formatCell(v))
		}
		b.WriteString("| ")
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString(" |\n")
	}
	return b.String()
}

func escapeCells(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = safeVal(s)
	}
	return out
}

func safeVal(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) > 120 {
		s = string([]rune(s)[:117]) + "..."
	}
	return s
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "N/A"
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return formatFloat(x)
	}
	return ""
}

// formatFloat keeps at least one decimal place: 50 -> "50.0", 66.67 -> "66.67".
func formatFloat(x float64) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return "N/A"
	}
	s := strconv.FormatFloat(x, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func compareCells(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	af, aNum := toNumber(a)
	bf, bNum := toNumber(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(formatCell(a), formatCell(b))
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// round2 rounds half away from zero to two decimals.
func round2(x float64) float64 { return math.Round(x*100) / 100 }

// percent returns part/total*100 rounded to two decimals, or 0 when total is 0.
func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}
