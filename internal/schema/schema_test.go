package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	assert.Equal(t, []string{
		"FATO_AVCURSOS", "FATO_AVDISCIPLINAS", "FATO_AVINSTITUCIONAL",
		"DIM_PERGUNTAS", "DIM_CURSOS", "DIM_DISCIPLINAS",
		"DIM_TIPO_PERGUNTA_SINAES", "DIM_UNIDADES",
	}, r.Names())

	rel, ok := r.Relationship("FATO_AVDISCIPLINAS", "DIM_CURSOS")
	require.True(t, ok)
	assert.Equal(t, "COD_CURSO", rel.ForeignKey)
	assert.Equal(t, "COD_CURSO", rel.PrimaryKey)

	_, ok = r.Relationship("FATO_AVINSTITUCIONAL", "DIM_CURSOS")
	assert.False(t, ok)

	dim, ok := r.Lookup("DIM_UNIDADES")
	require.True(t, ok)
	assert.Equal(t, KindDimension, dim.Kind)
	assert.Equal(t, "UNIDADE GESTORA", dim.DisplayColumn)
}

func TestNewRejectsDanglingRelationship(t *testing.T) {
	_, err := New(Table{
		Name:          "FATO_X",
		Relationships: []Relationship{{Table: "DIM_Y", ForeignKey: "A", PrimaryKey: "A"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DIM_Y")
}

func TestNewInfersKindFromName(t *testing.T) {
	r, err := New(Table{Name: "FATO_X"}, Table{Name: "DIM_Y"})
	require.NoError(t, err)
	x, _ := r.Lookup("FATO_X")
	y, _ := r.Lookup("DIM_Y")
	assert.Equal(t, KindFact, x.Kind)
	assert.Equal(t, KindDimension, y.Kind)
}

func TestTableInfo(t *testing.T) {
	r := Default()
	info := r.TableInfo("FATO_AVCURSOS")
	assert.Contains(t, info, "**FATO_AVCURSOS**")
	assert.Contains(t, info, "Aproximadamente 2,000,000 linhas")
	assert.Contains(t, info, "DIM_CURSOS via COD_CURSO → COD_CURSO")

	missing := r.TableInfo("NOPE")
	assert.True(t, strings.HasPrefix(missing, "Tabela 'NOPE' não encontrada"))
	assert.Contains(t, missing, "DIM_UNIDADES")
}

func TestSummaryGroupsByKind(t *testing.T) {
	s := Default().Summary()
	facts := strings.Index(s, "Tabelas Fato")
	dims := strings.Index(s, "Tabelas Dimensão")
	require.True(t, facts >= 0 && dims > facts)
	assert.Contains(t, s[facts:dims], "FATO_AVINSTITUCIONAL")
	assert.NotContains(t, s[facts:dims], "DIM_CURSOS")
	assert.Contains(t, s, "gap_desconhecimento")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "schema.yaml")
	content := `tables:
  - name: FATO_X
    description: respostas
    columns:
      - {name: ID_PERGUNTA, meaning: pergunta}
      - {name: RESPOSTA, meaning: resposta}
    relationships:
      - {table: DIM_P, foreign_key: ID_PERGUNTA, primary_key: ID}
  - name: DIM_P
    columns:
      - {name: ID, meaning: chave}
      - {name: TEXTO, meaning: texto}
    primary_key: ID
    display_column: TEXTO
`
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	r, err := LoadFile(p)
	require.NoError(t, err)
	rel, ok := r.Relationship("FATO_X", "DIM_P")
	require.True(t, ok)
	assert.Equal(t, "ID", rel.PrimaryKey)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("tables:\n  - name: DIM_P\n    columns: [{name: ID}]\n    display_column: NOPE\n"), 0o644))
	_, err = LoadFile(bad)
	require.Error(t, err)
}

func TestIsValidResponse(t *testing.T) {
	assert.True(t, IsValidResponse("Desconheço"))
	assert.False(t, IsValidResponse("concordo"))
}
