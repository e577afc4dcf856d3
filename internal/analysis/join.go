package analysis

import "slices"

// Analysis kinds accepted by JoinAndAnalyze.
const (
	AnalysisSatisfaction = "satisfacao"
	AnalysisCount        = "contagem"
)

// JoinWithDimension inner-joins a fact table with a dimension along their
// declared relationship. dimColumns restricts the dimension side (its primary
// key is always kept); an empty list keeps every dimension column. Fact row
// order is preserved and a key matching several dimension rows yields one
// output row per match. Keys compare as plain strings, so an empty foreign
// key matches an empty primary key. Column names present on both sides get
// _x and _y suffixes.
func (a *Analyzer) JoinWithDimension(factName, dimName string, dimColumns []string) (*Table, error) {
	fact, err := a.table(factName)
	if err != nil {
		return nil, err
	}
	dim, err := a.table(dimName)
	if err != nil {
		return nil, err
	}
	rel, ok := a.registry.Relationship(factName, dimName)
	if !ok {
		return nil, &ValidationError{
			Field:   "dimension",
			Value:   dimName,
			Reason:  "no relationship declared from " + factName,
			Allowed: a.relatedTables(factName),
		}
	}
	fk, ok := fact.ColumnIndex(rel.ForeignKey)
	if !ok {
		return nil, columnNotFound(factName, rel.ForeignKey, fact.Columns)
	}
	pk, ok := dim.ColumnIndex(rel.PrimaryKey)
	if !ok {
		return nil, columnNotFound(dimName, rel.PrimaryKey, dim.Columns)
	}

	keep := []int{pk}
	if len(dimColumns) == 0 {
		for i := range dim.Columns {
			if i != pk {
				keep = append(keep, i)
			}
		}
	} else {
		for _, c := range dimColumns {
			i, ok := dim.ColumnIndex(c)
			if !ok {
				return nil, columnNotFound(dimName, c, dim.Columns)
			}
			if !slices.Contains(keep, i) {
				keep = append(keep, i)
			}
		}
	}
	// A shared key name collapses into the fact's column.
	if rel.ForeignKey == rel.PrimaryKey {
		keep = keep[1:]
	}

	cols := make([]string, 0, len(fact.Columns)+len(keep))
	for _, c := range fact.Columns {
		if slices.ContainsFunc(keep, func(i int) bool { return dim.Columns[i] == c }) {
			c += "_x"
		}
		cols = append(cols, c)
	}
	for _, i := range keep {
		c := dim.Columns[i]
		if fact.HasColumn(c) {
			c += "_y"
		}
		cols = append(cols, c)
	}

	matches := make(map[string][]int, dim.Len())
	for r, row := range dim.Rows {
		matches[row[pk]] = append(matches[row[pk]], r)
	}
	var rows [][]string
	for _, frow := range fact.Rows {
		for _, r := range matches[frow[fk]] {
			out := make([]string, 0, len(cols))
			out = append(out, frow...)
			for _, i := range keep {
				out = append(out, dim.Rows[r][i])
			}
			rows = append(rows, out)
		}
	}
	return NewTable(factName+"+"+dimName, cols, rows), nil
}

// JoinAndAnalyze joins fact with dim and computes satisfaction or counts over
// the combined rows, optionally grouped by any column of the join.
func (a *Analyzer) JoinAndAnalyze(factName, dimName, analysis, groupBy string) (*Frame, error) {
	allowed := []string{AnalysisSatisfaction, AnalysisCount}
	if !slices.Contains(allowed, analysis) {
		return nil, &ValidationError{Field: "analysis_type", Value: analysis, Allowed: allowed}
	}
	joined, err := a.JoinWithDimension(factName, dimName, nil)
	if err != nil {
		return nil, err
	}
	if groupBy != "" && !joined.HasColumn(groupBy) {
		return nil, columnNotFound(joined.Name, groupBy, joined.Columns)
	}

	if analysis == AnalysisCount {
		f := countFrame(joined, groupBy)
		if groupBy == "" {
			return f, nil
		}
		return f.SortBy(ColCount, false), nil
	}
	groups, err := tallyBy(joined, groupBy)
	if err != nil {
		return nil, err
	}
	f := satisfactionFrame(groups, groupBy)
	if groupBy == "" {
		return f, nil
	}
	return f.SortBy(ColSatisfaction, false), nil
}

func (a *Analyzer) relatedTables(fact string) []string {
	entry, ok := a.registry.Lookup(fact)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(entry.Relationships))
	for _, rel := range entry.Relationships {
		out = append(out, rel.Table)
	}
	return out
}
