package analysis

import (
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/KaramelBytes/avalia-cli/internal/schema"
)

// Ranking metrics accepted by TopN.
const (
	MetricSatisfaction = "satisfacao"
	MetricCount        = "contagem"
	MetricKnowledgeGap = "gap_desconhecimento"
)

// Metrics lists the ranking metrics in display order.
var Metrics = []string{MetricSatisfaction, MetricCount, MetricKnowledgeGap}

// CalculateSatisfaction computes Concordo / (Concordo + Discordo) * 100.
// Without groupBy the result is one row with the agree, disagree and valid
// totals. With groupBy there is one row per group, enriched with the
// dimension's display column when a relationship applies, ordered by
// satisfaction descending.
func (a *Analyzer) CalculateSatisfaction(tableName, groupBy string, filters Filters) (*Frame, error) {
	t, err := a.scope(tableName, filters, schema.ResponseColumn, groupBy)
	if err != nil {
		return nil, err
	}
	groups, err := tallyBy(t, groupBy)
	if err != nil {
		return nil, err
	}
	f := satisfactionFrame(groups, groupBy)
	if groupBy == "" {
		return f, nil
	}
	return a.enrich(f, tableName, groupBy).SortBy(ColSatisfaction, false), nil
}

// CountResponses counts rows, optionally restricted to one response value.
// Without groupBy the result is a single contagem_total row; with groupBy it
// is one contagem row per group, ordered by count descending.
func (a *Analyzer) CountResponses(tableName, groupBy, responseType string, filters Filters) (*Frame, error) {
	if responseType != "" && !schema.IsValidResponse(responseType) {
		return nil, &ValidationError{
			Field:   "response_type",
			Value:   responseType,
			Allowed: schema.ValidValues[schema.ResponseColumn],
		}
	}
	t, err := a.scope(tableName, filters, groupBy)
	if err != nil {
		return nil, err
	}
	if responseType != "" {
		idx, ok := t.ColumnIndex(schema.ResponseColumn)
		if !ok {
			return nil, columnNotFound(tableName, schema.ResponseColumn, t.Columns)
		}
		t = t.where(func(row []string) bool { return row[idx] == responseType })
	}
	f := countFrame(t, groupBy)
	if groupBy == "" {
		return f, nil
	}
	return a.enrich(f, tableName, groupBy).SortBy(ColCount, false), nil
}

// KnowledgeGap computes the share of Desconheço answers over all answers.
func (a *Analyzer) KnowledgeGap(tableName, groupBy string, filters Filters) (*Frame, error) {
	t, err := a.scope(tableName, filters, schema.ResponseColumn, groupBy)
	if err != nil {
		return nil, err
	}
	groups, err := tallyBy(t, groupBy)
	if err != nil {
		return nil, err
	}
	var f *Frame
	if groupBy == "" {
		f = NewFrame(ColCountTotal, ColUnknownCount, ColKnowledgeGap)
	} else {
		f = NewFrame(groupBy, ColCountTotal, ColUnknownCount, ColKnowledgeGap)
	}
	for _, g := range groups {
		row := []any{g.total, g.unknown, percent(g.unknown, g.total)}
		if groupBy != "" {
			row = append([]any{g.key}, row...)
		}
		f.Append(row...)
	}
	if groupBy == "" {
		return f, nil
	}
	return a.enrich(f, tableName, groupBy).SortBy(ColKnowledgeGap, false), nil
}

// TopN ranks groups by metric and keeps the first n. Ascending order is the
// exact reverse of descending order.
func (a *Analyzer) TopN(tableName, metric string, n int, groupBy string, ascending bool, filters Filters) (*Frame, error) {
	if !slices.Contains(Metrics, metric) {
		return nil, &ValidationError{Field: "metric", Value: metric, Allowed: Metrics}
	}
	if n < 1 {
		return nil, &ValidationError{Field: "n", Value: strconv.Itoa(n), Reason: "must be at least 1"}
	}
	var (
		f   *Frame
		err error
		key string
	)
	switch metric {
	case MetricSatisfaction:
		f, err = a.CalculateSatisfaction(tableName, groupBy, filters)
		key = ColSatisfaction
	case MetricCount:
		f, err = a.CountResponses(tableName, groupBy, "", filters)
		key = ColCount
		if groupBy == "" {
			key = ColCountTotal
		}
	case MetricKnowledgeGap:
		f, err = a.KnowledgeGap(tableName, groupBy, filters)
		key = ColKnowledgeGap
	}
	if err != nil {
		return nil, err
	}
	return f.SortBy(key, ascending).Head(n), nil
}

// enrich adds the display column of every dimension whose foreign key is the
// grouping column. Unmatched keys get nil; columns already present are left alone.
func (a *Analyzer) enrich(f *Frame, source, groupBy string) *Frame {
	entry, ok := a.registry.Lookup(source)
	if !ok {
		return f
	}
	gi := f.ColumnIndex(groupBy)
	if gi < 0 {
		return f
	}
	for _, rel := range entry.Relationships {
		if rel.ForeignKey != groupBy {
			continue
		}
		dimEntry, ok := a.registry.Lookup(rel.Table)
		if !ok || dimEntry.DisplayColumn == "" || f.ColumnIndex(dimEntry.DisplayColumn) >= 0 {
			continue
		}
		dim, ok := a.tables[rel.Table]
		if !ok {
			continue
		}
		pk, okPK := dim.ColumnIndex(rel.PrimaryKey)
		disp, okDisp := dim.ColumnIndex(dimEntry.DisplayColumn)
		if !okPK || !okDisp {
			a.logger.Debug("dimension lacks key or display column",
				zap.String("dimension", rel.Table),
				zap.String("primary_key", rel.PrimaryKey),
				zap.String("display_column", dimEntry.DisplayColumn))
			continue
		}
		labels := make(map[string]string, dim.Len())
		for _, row := range dim.Rows {
			if _, seen := labels[row[pk]]; !seen {
				labels[row[pk]] = row[disp]
			}
		}
		f = f.withColumn(dimEntry.DisplayColumn, func(row []any) any {
			key, _ := row[gi].(string)
			if v, ok := labels[key]; ok {
				return v
			}
			return nil
		})
	}
	return f
}

func satisfactionFrame(groups []*tally, groupBy string) *Frame {
	if groupBy == "" {
		g := groups[0]
		f := NewFrame(ColSatisfaction, ColAgreeTotal, ColDisagreeTotal, ColValidTotal)
		f.Append(percent(g.agree, g.valid()), g.agree, g.disagree, g.valid())
		return f
	}
	f := NewFrame(groupBy, ColSatisfaction, ColValidTotal)
	for _, g := range groups {
		f.Append(g.key, percent(g.agree, g.valid()), g.valid())
	}
	return f
}

// countFrame counts rows per group value, ordered by key. Missing values
// count under "".
func countFrame(t *Table, groupBy string) *Frame {
	if groupBy == "" {
		f := NewFrame(ColCountTotal)
		f.Append(t.Len())
		return f
	}
	gi, _ := t.ColumnIndex(groupBy)
	counts := map[string]int{}
	var keys []string
	for _, row := range t.Rows {
		k := row[gi]
		if _, seen := counts[k]; !seen {
			keys = append(keys, k)
		}
		counts[k]++
	}
	slices.Sort(keys)
	f := NewFrame(groupBy, ColCount)
	for _, k := range keys {
		f.Append(k, counts[k])
	}
	return f
}
