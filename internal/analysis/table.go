package analysis

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Table is an in-memory dataset loaded from a CSV file. Every cell is a
// string; rows keep file order. Tables are never mutated after load.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string

	index map[string]int
}

// NewTable builds a table over the given header and rows. Short rows are padded.
func NewTable(name string, columns []string, rows [][]string) *Table {
	t := &Table{Name: name, Columns: columns, Rows: rows}
	t.index = make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := t.index[c]; !dup {
			t.index[c] = i
		}
	}
	for i, r := range rows {
		if len(r) < len(columns) {
			tmp := make([]string, len(columns))
			copy(tmp, r)
			rows[i] = tmp
		}
	}
	return t
}

// ColumnIndex returns the position of a column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	return t.where(func([]string) bool { return true })
}

// Head returns a copy holding the first n rows.
func (t *Table) Head(n int) *Table {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	if n < 0 {
		n = 0
	}
	out := make([][]string, n)
	for i := 0; i < n; i++ {
		out[i] = append([]string(nil), t.Rows[i]...)
	}
	return NewTable(t.Name, append([]string(nil), t.Columns...), out)
}

// where copies the rows matching keep into a new table.
func (t *Table) where(keep func(row []string) bool) *Table {
	var out [][]string
	for _, r := range t.Rows {
		if keep(r) {
			out = append(out, append([]string(nil), r...))
		}
	}
	return NewTable(t.Name, append([]string(nil), t.Columns...), out)
}

// Frame converts the table into a result frame.
func (t *Table) Frame() *Frame {
	f := NewFrame(t.Columns...)
	for _, r := range t.Rows {
		row := make([]any, len(t.Columns))
		for i := range t.Columns {
			row[i] = r[i]
		}
		f.Rows = append(f.Rows, row)
	}
	return f
}

// Markdown renders the table as a pipe table.
func (t *Table) Markdown() string { return t.Frame().Markdown() }

var errNoDelimiter = errors.New("could not determine delimiter")

// naTokens are read as missing values and stored as "".
var naTokens = map[string]struct{}{
	"#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {}, "-NaN": {}, "-nan": {},
	"1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {}, "NA": {}, "NULL": {}, "NaN": {},
	"None": {}, "n/a": {}, "nan": {}, "null": {},
}

// LoadCSV reads a CSV file into a string-typed table. The delimiter is sniffed
// from the first records; when sniffing or parsing fails the file is read once
// more with ';'. Any failure yields no table at all.
func LoadCSV(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	if !utf8.Valid(data) {
		return nil, errors.New("read csv: file is not valid UTF-8")
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	delim, err := sniffDelimiter(data)
	if err == nil {
		var t *Table
		if t, err = parseCSV(name, data, delim); err == nil {
			return t, nil
		}
	}
	t, ferr := parseCSV(name, data, ';')
	if ferr != nil {
		return nil, fmt.Errorf("parse csv: %w (after %v)", ferr, err)
	}
	return t, nil
}

func parseCSV(name string, data []byte, delim rune) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no columns to parse")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := normalizeHeader(header)
	ncol := len(cols)

	var rows [][]string
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		if len(rec) > ncol {
			return nil, fmt.Errorf("row %d: expected %d fields, saw %d", len(rows)+1, ncol, len(rec))
		}
		row := make([]string, ncol)
		for j, v := range rec {
			if _, na := naTokens[v]; na {
				continue
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return NewTable(name, cols, rows), nil
}

// normalizeHeader strips BOMs and whitespace and disambiguates repeated names
// as NAME, NAME.1, NAME.2.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.ReplaceAll(h, "\ufeff", ""))
		if n, dup := seen[h]; dup {
			seen[h] = n + 1
			h = h + "." + strconv.Itoa(n)
		} else {
			seen[h] = 1
		}
		out[i] = h
	}
	return out
}

var delimiterCandidates = []rune{',', ';', '\t', '|'}

// sniffDelimiter picks the candidate that occurs the same, non-zero number of
// times (outside quotes) in each of the first records. A quote only opens a
// quoted field at the start of a field, so a stray " inside free text is
// plain data. Without such a
// candidate, one present in every sampled record is accepted so short rows
// still parse. Ties go to the more frequent candidate, then to candidate order.
func sniffDelimiter(data []byte) (rune, error) {
	const sampleRecords = 10
	counts := make([]map[rune]int, 0, sampleRecords)
	cur := map[rune]int{}
	inQuotes := false
	empty := true
	fieldStart := true
	for _, ch := range string(data) {
		switch {
		case ch == '"' && (inQuotes || fieldStart):
			inQuotes = !inQuotes
			empty = false
			fieldStart = false
		case ch == '\n' && !inQuotes:
			if !empty {
				counts = append(counts, cur)
			}
			cur = map[rune]int{}
			empty = true
			fieldStart = true
		case ch == '\r' && !inQuotes:
		default:
			empty = false
			if !inQuotes {
				cur[ch]++
				fieldStart = slices.Contains(delimiterCandidates, ch)
			}
		}
		if len(counts) == sampleRecords {
			break
		}
	}
	if !empty && len(counts) < sampleRecords {
		counts = append(counts, cur)
	}
	if len(counts) == 0 {
		return 0, errNoDelimiter
	}
	best := pickDelimiter(counts, true)
	if best == 0 {
		best = pickDelimiter(counts, false)
	}
	if best == 0 {
		return 0, errNoDelimiter
	}
	return best, nil
}

func pickDelimiter(counts []map[rune]int, exact bool) rune {
	best, bestN := rune(0), 0
	for _, c := range delimiterCandidates {
		n := counts[0][c]
		if n == 0 {
			continue
		}
		ok := true
		for _, rec := range counts[1:] {
			if (exact && rec[c] != n) || rec[c] == 0 || rec[c] > n {
				ok = false
				break
			}
		}
		if ok && n > bestN {
			best, bestN = c, n
		}
	}
	return best
}
