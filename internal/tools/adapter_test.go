package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/avalia-cli/internal/analysis"
)

func newAnalyzer(t *testing.T, courses int) *analysis.Analyzer {
	t.Helper()
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("ID_QUESTIONARIO,ID_PERGUNTA,RESPOSTA,COD_CURSO,ANO,SEMESTRE\n")
	id := 0
	for c := 0; c < courses; c++ {
		for _, r := range []string{"Concordo", "Concordo", "Discordo", "Desconheço"} {
			id++
			fmt.Fprintf(&b, "%d,P1,%s,C%02d,2023,1\n", id, r, c)
		}
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "FATO_AVCURSOS.csv"), []byte(b.String()), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "DIM_CURSOS.csv"),
		[]byte("COD_CURSO,CURSO,SETOR_CURSO,GRAU\nC00,Administração,SCSA,Bacharelado\n"), 0o644))
	a, err := analysis.New(context.Background(), dir)
	require.NoError(t, err)
	return a
}

type memRecorder struct {
	mu   sync.Mutex
	runs []Invocation
}

func (m *memRecorder) RecordInvocation(_ context.Context, inv Invocation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, inv)
}

func TestAdapter_SatisfactionResult(t *testing.T) {
	ad := NewAdapter(Static(newAnalyzer(t, 2)))
	out := ad.Run(context.Background(), SatisfactionCall{Table: "FATO_AVCURSOS"})
	assert.True(t, strings.HasPrefix(out, "Resultados:\n"), out)
	assert.Contains(t, out, "66.67")

	out = ad.Run(context.Background(), SatisfactionCall{Table: "FATO_AVCURSOS", GroupBy: "COD_CURSO"})
	assert.Contains(t, out, "Administração")
	assert.Contains(t, out, "N/A")
}

func TestAdapter_TruncatesLongResults(t *testing.T) {
	ad := NewAdapter(Static(newAnalyzer(t, 25)))
	out := ad.Run(context.Background(), CountCall{Table: "FATO_AVCURSOS", GroupBy: "COD_CURSO"})
	require.True(t, strings.HasPrefix(out, "Resultados (top 20 de 25):\n"), out)
	// header, separator and 20 data rows
	assert.Equal(t, 22, strings.Count(out, "\n")-1)
}

func TestAdapter_TopBottom(t *testing.T) {
	ad := NewAdapter(Static(newAnalyzer(t, 3)))
	out := ad.Run(context.Background(), TopBottomCall{Table: "FATO_AVCURSOS", Metric: "satisfacao", N: 2, GroupBy: "COD_CURSO", Bottom: true})
	assert.True(t, strings.HasPrefix(out, "Bottom 2 por satisfacao:\n"), out)

	out = ad.Run(context.Background(), TopBottomCall{Table: "FATO_AVCURSOS", Metric: "media", N: 2, GroupBy: "COD_CURSO"})
	assert.True(t, strings.HasPrefix(out, "Erro ao obter ranking: "), out)
	assert.Contains(t, out, "satisfacao, contagem, gap_desconhecimento")
}

func TestAdapter_ErrorsBecomeStrings(t *testing.T) {
	ad := NewAdapter(Static(newAnalyzer(t, 1)))
	ctx := context.Background()

	out := ad.Run(ctx, SatisfactionCall{Table: "FATO_NOPE"})
	assert.True(t, strings.HasPrefix(out, "Erro ao calcular satisfação: "), out)
	assert.Contains(t, out, "FATO_AVCURSOS")

	out = ad.Run(ctx, CountCall{Table: "FATO_AVCURSOS", ResponseType: "Talvez"})
	assert.True(t, strings.HasPrefix(out, "Erro ao contar respostas: "), out)

	out = ad.Run(ctx, JoinAnalyzeCall{FactTable: "FATO_AVCURSOS", DimTable: "DIM_CURSOS", AnalysisType: "media"})
	assert.True(t, strings.HasPrefix(out, "Erro ao fazer join e análise: "), out)

	out = ad.Run(ctx, QueryCall{Table: "FATO_AVCURSOS", Expression: "__import__('os')"})
	assert.True(t, strings.HasPrefix(out, "Erro ao executar consulta: "), out)

	out = ad.RunRaw(ctx, "drop_tables", nil)
	assert.Equal(t, "Erro: ferramenta desconhecida 'drop_tables'", out)

	out = ad.RunRaw(ctx, NameTopBottom, map[string]any{"table_name": "FATO_AVCURSOS"})
	assert.True(t, strings.HasPrefix(out, "Erro ao obter ranking: "), out)
}

type panicSource struct{}

func (panicSource) Analyzer() *analysis.Analyzer { panic("boom") }

func TestAdapter_RecoversFromPanics(t *testing.T) {
	rec := &memRecorder{}
	ad := NewAdapter(panicSource{}, WithRecorder(rec))
	var out string
	require.NotPanics(t, func() {
		out = ad.Run(context.Background(), StatsCall{Table: "FATO_AVCURSOS"})
	})
	assert.True(t, strings.HasPrefix(out, "Erro ao obter estatísticas: "), out)
	require.Len(t, rec.runs, 1)
	assert.False(t, rec.runs[0].Success)
}

func TestAdapter_SchemaAndRecorder(t *testing.T) {
	rec := &memRecorder{}
	ad := NewAdapter(Static(newAnalyzer(t, 1)), WithRecorder(rec))
	ctx := context.Background()

	all := ad.Run(ctx, SchemaCall{})
	assert.Contains(t, all, "FATO_AVCURSOS")
	assert.Contains(t, all, "Métricas Comuns")

	one := ad.Run(ctx, SchemaCall{Table: "DIM_CURSOS"})
	assert.Contains(t, one, "COD_CURSO")

	missing := ad.Run(ctx, SchemaCall{Table: "DIM_NOPE"})
	assert.Contains(t, missing, "não encontrada")

	require.Len(t, rec.runs, 3)
	assert.Equal(t, NameSchema, rec.runs[0].Tool)
	assert.True(t, rec.runs[0].Success)
}

func TestAdapter_Compute(t *testing.T) {
	ad := NewAdapter(Static(newAnalyzer(t, 25)))
	f, err := ad.Compute(CountCall{Table: "FATO_AVCURSOS", GroupBy: "COD_CURSO"})
	require.NoError(t, err)
	assert.Equal(t, 25, f.Len())

	_, err = ad.Compute(SchemaCall{})
	assert.Error(t, err)
}

func TestAdapter_RecorderSeesSession(t *testing.T) {
	rec := &memRecorder{}
	ad := NewAdapter(Static(newAnalyzer(t, 2)), WithRecorder(rec))
	ctx := WithSession(context.Background(), "sess-1")

	ad.Run(ctx, CountCall{Table: "FATO_AVCURSOS"})
	ad.Run(context.Background(), CountCall{Table: "FATO_AVCURSOS"})

	require.Len(t, rec.runs, 2)
	assert.Equal(t, "sess-1", rec.runs[0].Session)
	assert.Empty(t, rec.runs[1].Session)
}
