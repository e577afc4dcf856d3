package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/KaramelBytes/avalia-cli/internal/schema"
)

// CategoryCount is one value of a categorical column and its frequency.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// TableStats summarizes a loaded table.
type TableStats struct {
	Table                string          `json:"table"`
	Rows                 int             `json:"num_rows"`
	Columns              int             `json:"num_columns"`
	ColumnNames          []string        `json:"columns"`
	MemoryBytes          uint64          `json:"memory_bytes"`
	MemoryMB             float64         `json:"memory_usage_mb"`
	ResponseDistribution []CategoryCount `json:"resposta_distribution,omitempty"`
}

// Preview returns a copy of the first n rows. n <= 0 selects five rows.
func (a *Analyzer) Preview(tableName string, n int) (*Table, error) {
	t, err := a.table(tableName)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = defaultPreviewLen
	}
	return t.Head(n), nil
}

// Stats reports size, columns and, when present, the RESPOSTA distribution.
func (a *Analyzer) Stats(tableName string) (*TableStats, error) {
	t, err := a.table(tableName)
	if err != nil {
		return nil, err
	}
	st := &TableStats{
		Table:       tableName,
		Rows:        t.Len(),
		Columns:     len(t.Columns),
		ColumnNames: append([]string(nil), t.Columns...),
		MemoryBytes: estimateBytes(t),
	}
	st.MemoryMB = round2(float64(st.MemoryBytes) / (1024 * 1024))
	if idx, ok := t.ColumnIndex(schema.ResponseColumn); ok {
		st.ResponseDistribution = distribution(t, idx)
	}
	return st, nil
}

// estimateBytes approximates the resident size of a table: string headers
// and contents for every cell plus one slice header per row.
func estimateBytes(t *Table) uint64 {
	const stringHeader, sliceHeader = 16, 24
	var n uint64
	for _, c := range t.Columns {
		n += stringHeader + uint64(len(c))
	}
	for _, row := range t.Rows {
		n += sliceHeader
		for _, v := range row {
			n += stringHeader + uint64(len(v))
		}
	}
	return n
}

// distribution counts non-missing values of a column, most frequent first,
// ties by value.
func distribution(t *Table, idx int) []CategoryCount {
	counts := map[string]int{}
	for _, row := range t.Rows {
		if v := row[idx]; v != "" {
			counts[v]++
		}
	}
	out := make([]CategoryCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, CategoryCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Value < out[j].Value
		}
		return out[i].Count > out[j].Count
	})
	return out
}

// Markdown renders the stats in sectioned plain text.
func (s *TableStats) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[TABELA] %s\n", s.Table)
	fmt.Fprintf(&b, "Linhas: %s\n", humanize.Comma(int64(s.Rows)))
	fmt.Fprintf(&b, "Colunas (%d): %s\n", s.Columns, strings.Join(s.ColumnNames, ", "))
	fmt.Fprintf(&b, "Memória: %.2f MB (%s)\n", s.MemoryMB, humanize.IBytes(s.MemoryBytes))
	if len(s.ResponseDistribution) > 0 {
		b.WriteString("\n[DISTRIBUIÇÃO RESPOSTA]\n")
		for _, c := range s.ResponseDistribution {
			pct := 0.0
			if s.Rows > 0 {
				pct = round2(float64(c.Count) / float64(s.Rows) * 100)
			}
			fmt.Fprintf(&b, "- %s: %s (%.2f%%)\n", c.Value, humanize.Comma(int64(c.Count)), pct)
		}
	}
	return b.String()
}
