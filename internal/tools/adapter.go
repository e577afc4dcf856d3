package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/avalia-cli/internal/analysis"
)

// MaxRows caps how many rows a tool result shows.
const MaxRows = 20

// Source hands out the analyzer to run against. It may change between calls
// when data is reloaded.
type Source interface {
	Analyzer() *analysis.Analyzer
}

type staticSource struct{ a *analysis.Analyzer }

func (s staticSource) Analyzer() *analysis.Analyzer { return s.a }

// Static wraps a fixed analyzer as a Source.
func Static(a *analysis.Analyzer) Source { return staticSource{a} }

type sessionKey struct{}

// WithSession tags ctx with a conversation id that recorders can read back.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionFromContext returns the id set by WithSession, or "".
func SessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// Invocation describes one completed tool run.
type Invocation struct {
	Session  string
	Tool     string
	Call     Call
	Success  bool
	Duration time.Duration
	Err      error
}

// Recorder observes tool runs.
type Recorder interface {
	RecordInvocation(ctx context.Context, inv Invocation)
}

// Adapter runs calls against the analyzer and renders the outcome as text.
// It never panics and never returns an error: failures become strings
// starting with "Erro".
type Adapter struct {
	src      Source
	logger   *zap.Logger
	recorder Recorder
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(l *zap.Logger) AdapterOption {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithRecorder installs a recorder notified after every run.
func WithRecorder(r Recorder) AdapterOption {
	return func(a *Adapter) { a.recorder = r }
}

// NewAdapter returns an adapter over src.
func NewAdapter(src Source, opts ...AdapterOption) *Adapter {
	a := &Adapter{src: src, logger: zap.NewNop()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// RunRaw decodes raw arguments and runs the named tool.
func (a *Adapter) RunRaw(ctx context.Context, name string, args map[string]any) string {
	call, err := Decode(name, args)
	if err != nil {
		var unknown *UnknownToolError
		if errors.As(err, &unknown) {
			return fmt.Sprintf("Erro: ferramenta desconhecida '%s'", name)
		}
		return fmt.Sprintf("Erro ao %s: %v", action(name), err)
	}
	return a.Run(ctx, call)
}

// Run executes call and formats its result.
func (a *Adapter) Run(ctx context.Context, call Call) (out string) {
	if call == nil {
		return "Erro: chamada vazia"
	}
	start := time.Now()
	var runErr error
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("panic: %v", r)
			out = fmt.Sprintf("Erro ao %s: %v", action(call.Tool()), runErr)
			a.logger.Error("tool panicked", zap.String("tool", call.Tool()), zap.Any("panic", r), zap.Stack("stack"))
		}
		a.finish(ctx, call, start, runErr)
	}()

	out, runErr = a.run(ctx, call)
	if runErr != nil {
		out = fmt.Sprintf("Erro ao %s: %v", action(call.Tool()), runErr)
	}
	return out
}

func (a *Adapter) finish(ctx context.Context, call Call, start time.Time, err error) {
	elapsed := time.Since(start)
	fields := []zap.Field{zap.String("tool", call.Tool()), zap.Duration("elapsed", elapsed)}
	if err != nil {
		a.logger.Info("tool failed", append(fields, zap.Error(err))...)
	} else {
		a.logger.Debug("tool completed", fields...)
	}
	if a.recorder != nil {
		a.recorder.RecordInvocation(ctx, Invocation{
			Session:  SessionFromContext(ctx),
			Tool:     call.Tool(),
			Call:     call,
			Success:  err == nil,
			Duration: elapsed,
			Err:      err,
		})
	}
}

func (a *Adapter) run(ctx context.Context, call Call) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	an := a.src.Analyzer()
	if an == nil {
		return "", errNoData
	}
	switch c := call.(type) {
	case SchemaCall:
		if c.Table == "" {
			return an.Registry().Summary(), nil
		}
		return an.Registry().TableInfo(c.Table), nil
	case StatsCall:
		st, err := an.Stats(c.Table)
		if err != nil {
			return "", err
		}
		return st.Markdown(), nil
	}
	f, err := compute(an, call)
	if err != nil {
		return "", err
	}
	if c, ok := call.(TopBottomCall); ok {
		label := "Top"
		if c.Bottom {
			label = "Bottom"
		}
		return render(fmt.Sprintf("%s %d por %s", label, c.N, c.Metric), f), nil
	}
	return results(f), nil
}

func filters(column, value string) analysis.Filters {
	if column == "" || value == "" {
		return nil
	}
	return analysis.Filters{column: value}
}

func results(f *analysis.Frame) string { return render("Resultados", f) }

// render prints a titled table, cut to MaxRows with the true count noted.
func render(title string, f *analysis.Frame) string {
	if f.Len() > MaxRows {
		return fmt.Sprintf("%s (top %d de %d):\n%s", title, MaxRows, f.Len(), f.Head(MaxRows).Markdown())
	}
	return fmt.Sprintf("%s:\n%s", title, f.Markdown())
}

func action(tool string) string {
	switch tool {
	case NameSatisfaction:
		return "calcular satisfação"
	case NameCount:
		return "contar respostas"
	case NameTopBottom:
		return "obter ranking"
	case NameSchema:
		return "obter schema"
	case NameJoinAnalyze:
		return "fazer join e análise"
	case NamePreview:
		return "visualizar tabela"
	case NameStats:
		return "obter estatísticas"
	case NameQuery:
		return "executar consulta"
	}
	return "executar " + tool
}

// Compute runs a tabular call and returns the untruncated frame, for callers
// that render results themselves. Schema and stats calls are not tabular.
func (a *Adapter) Compute(call Call) (*analysis.Frame, error) {
	an := a.src.Analyzer()
	if an == nil {
		return nil, errNoData
	}
	return compute(an, call)
}

var errNoData = errors.New("no data loaded")

func compute(an *analysis.Analyzer, call Call) (*analysis.Frame, error) {
	switch c := call.(type) {
	case SatisfactionCall:
		return an.CalculateSatisfaction(c.Table, c.GroupBy, filters(c.FilterColumn, c.FilterValue))
	case CountCall:
		return an.CountResponses(c.Table, c.GroupBy, c.ResponseType, filters(c.FilterColumn, c.FilterValue))
	case TopBottomCall:
		return an.TopN(c.Table, c.Metric, c.N, c.GroupBy, c.Bottom, nil)
	case JoinAnalyzeCall:
		return an.JoinAndAnalyze(c.FactTable, c.DimTable, c.AnalysisType, c.GroupBy)
	case PreviewCall:
		t, err := an.Preview(c.Table, c.N)
		if err != nil {
			return nil, err
		}
		return t.Frame(), nil
	case QueryCall:
		t, err := an.CustomQuery(c.Table, c.Expression)
		if err != nil {
			return nil, err
		}
		return t.Frame(), nil
	}
	return nil, fmt.Errorf("%s does not produce a table", call.Tool())
}
