package analysis

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/avalia-cli/internal/schema"
)

// Result column names shared by the analytical operations.
const (
	ColSatisfaction   = "satisfacao_%"
	ColValidTotal     = "total_respostas_validas"
	ColAgreeTotal     = "total_concordo"
	ColDisagreeTotal  = "total_discordo"
	ColCount          = "contagem"
	ColCountTotal     = "contagem_total"
	ColUnknownCount   = "contagem_desconheco"
	ColKnowledgeGap   = "gap_desconhecimento_%"
	defaultPreviewLen = 5
)

// Filters restricts rows by exact string equality on each named column.
type Filters map[string]string

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithRegistry replaces the built-in schema registry.
func WithRegistry(r *schema.Registry) Option {
	return func(a *Analyzer) { a.registry = r }
}

// WithLogger sets the logger used for load diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithConcurrency bounds how many tables are parsed at once.
func WithConcurrency(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.workers = n
		}
	}
}

// Analyzer owns the loaded survey tables and answers analytical questions over them.
// It is read-only after New returns and safe for concurrent use.
type Analyzer struct {
	dir      string
	registry *schema.Registry
	logger   *zap.Logger
	workers  int

	tables   map[string]*Table
	loadErrs []*LoadError
}

// New loads every registry table found as <dir>/<TABLE>.csv. Missing files are
// skipped; files that fail to parse are skipped and reported by LoadErrors.
// The only error returned is context cancellation.
func New(ctx context.Context, dir string, opts ...Option) (*Analyzer, error) {
	a := &Analyzer{
		dir:     dir,
		logger:  zap.NewNop(),
		workers: runtime.GOMAXPROCS(0),
		tables:  map[string]*Table{},
	}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = schema.Default()
	}
	if err := a.load(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Analyzer) load(ctx context.Context) error {
	names := a.registry.Names()
	loaded := make([]*Table, len(names))
	failed := make([]*LoadError, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, name := range names {
		path := filepath.Join(a.dir, name+".csv")
		if _, err := os.Stat(path); err != nil {
			a.logger.Debug("table file not present", zap.String("table", name), zap.String("path", path))
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			t, err := LoadCSV(path)
			if err != nil {
				failed[i] = &LoadError{Table: name, Path: path, Err: err}
				return nil
			}
			t.Name = name
			loaded[i] = t
			a.logger.Info("table loaded",
				zap.String("table", name),
				zap.Int("rows", t.Len()),
				zap.Int("columns", len(t.Columns)),
				zap.Duration("elapsed", time.Since(start)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, t := range loaded {
		if t != nil {
			a.tables[t.Name] = t
		}
		if failed[i] != nil {
			a.logger.Warn("table skipped", zap.String("table", failed[i].Table), zap.Error(failed[i].Err))
			a.loadErrs = append(a.loadErrs, failed[i])
		}
	}
	return nil
}

// Dir returns the data directory the analyzer was loaded from.
func (a *Analyzer) Dir() string { return a.dir }

// Registry returns the schema registry in use.
func (a *Analyzer) Registry() *schema.Registry { return a.registry }

// LoadErrors lists the table files that were present but unparsable.
func (a *Analyzer) LoadErrors() []*LoadError {
	return append([]*LoadError(nil), a.loadErrs...)
}

// AvailableTables lists the loaded tables in registry order.
func (a *Analyzer) AvailableTables() []string {
	var out []string
	for _, name := range a.registry.Names() {
		if _, ok := a.tables[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// IsLoaded reports whether name was loaded.
func (a *Analyzer) IsLoaded(name string) bool {
	_, ok := a.tables[name]
	return ok
}

func (a *Analyzer) table(name string) (*Table, error) {
	t, ok := a.tables[name]
	if !ok {
		return nil, tableNotFound(name, a.AvailableTables())
	}
	return t, nil
}

// scope resolves a table, validates filter and required columns, and returns
// the filtered rows as a new table.
func (a *Analyzer) scope(name string, filters Filters, required ...string) (*Table, error) {
	t, err := a.table(name)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range append(keys, required...) {
		if k == "" {
			continue
		}
		if !t.HasColumn(k) {
			return nil, columnNotFound(name, k, t.Columns)
		}
	}
	if len(filters) == 0 {
		return t, nil
	}
	idx := make([]int, len(keys))
	for i, k := range keys {
		idx[i], _ = t.ColumnIndex(k)
	}
	return t.where(func(row []string) bool {
		for i, k := range keys {
			if row[idx[i]] != filters[k] {
				return false
			}
		}
		return true
	}), nil
}

// tally is the response breakdown of one group.
type tally struct {
	key                              string
	total, agree, disagree, unknown int
}

func (g *tally) valid() int { return g.agree + g.disagree }

// tallyBy counts responses per distinct value of groupBy, ordered by key.
// A missing group value is the group "". With an empty groupBy the whole
// table forms exactly one group, even when it has no rows.
func tallyBy(t *Table, groupBy string) ([]*tally, error) {
	respIdx, ok := t.ColumnIndex(schema.ResponseColumn)
	if !ok {
		return nil, columnNotFound(t.Name, schema.ResponseColumn, t.Columns)
	}
	groupIdx := -1
	if groupBy != "" {
		if groupIdx, ok = t.ColumnIndex(groupBy); !ok {
			return nil, columnNotFound(t.Name, groupBy, t.Columns)
		}
	}
	byKey := map[string]*tally{}
	var order []*tally
	if groupIdx < 0 {
		byKey[""] = &tally{}
		order = append(order, byKey[""])
	}
	for _, row := range t.Rows {
		key := ""
		if groupIdx >= 0 {
			key = row[groupIdx]
		}
		g, ok := byKey[key]
		if !ok {
			g = &tally{key: key}
			byKey[key] = g
			order = append(order, g)
		}
		g.total++
		switch row[respIdx] {
		case schema.ResponseAgree:
			g.agree++
		case schema.ResponseDisagree:
			g.disagree++
		case schema.ResponseUnknown:
			g.unknown++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].key < order[j].key })
	return order, nil
}
