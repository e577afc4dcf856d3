package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name string
		tool string
		args map[string]any
		want Call
	}{
		{
			name: "satisfaction",
			tool: NameSatisfaction,
			args: map[string]any{"table_name": "FATO_AVCURSOS", "group_by": "COD_CURSO", "filter_column": "ANO", "filter_value": 2023.0},
			want: SatisfactionCall{Table: "FATO_AVCURSOS", GroupBy: "COD_CURSO", FilterColumn: "ANO", FilterValue: "2023"},
		},
		{
			name: "top with float n",
			tool: NameTopBottom,
			args: map[string]any{"table_name": "T", "metric": "satisfacao", "n": 10.0, "group_by": "G", "get_bottom": true},
			want: TopBottomCall{Table: "T", Metric: "satisfacao", N: 10, GroupBy: "G", Bottom: true},
		},
		{
			name: "top with string n",
			tool: NameTopBottom,
			args: map[string]any{"table_name": "T", "metric": "contagem", "n": "5", "group_by": "G", "get_bottom": "false"},
			want: TopBottomCall{Table: "T", Metric: "contagem", N: 5, GroupBy: "G"},
		},
		{
			name: "top with json number",
			tool: NameTopBottom,
			args: map[string]any{"table_name": "T", "metric": "contagem", "n": json.Number("3"), "group_by": "G"},
			want: TopBottomCall{Table: "T", Metric: "contagem", N: 3, GroupBy: "G"},
		},
		{
			name: "schema without table",
			tool: NameSchema,
			args: nil,
			want: SchemaCall{},
		},
		{
			name: "join",
			tool: NameJoinAnalyze,
			args: map[string]any{"fact_table": "F", "dim_table": "D", "analysis_type": "contagem"},
			want: JoinAnalyzeCall{FactTable: "F", DimTable: "D", AnalysisType: "contagem"},
		},
		{
			name: "query",
			tool: NameQuery,
			args: map[string]any{"table_name": "F", "query": "ANO == '2023'"},
			want: QueryCall{Table: "F", Expression: "ANO == '2023'"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(tc.tool, tc.args)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.tool, got.Tool())
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode("nope", nil)
	var unknown *UnknownToolError
	assert.ErrorAs(t, err, &unknown)

	var argErr *ArgumentError
	_, err = Decode(NameSatisfaction, map[string]any{})
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "table_name", argErr.Arg)

	_, err = Decode(NameTopBottom, map[string]any{"table_name": "T", "metric": "m", "n": 2.5, "group_by": "G"})
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "n", argErr.Arg)

	_, err = Decode(NameCount, map[string]any{"table_name": []any{"x"}})
	assert.ErrorAs(t, err, &argErr)
}

func TestDefinitionsCoverAgentTools(t *testing.T) {
	defs := Definitions()
	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
		for _, req := range d.Schema.Required {
			assert.Containsf(t, d.Schema.Properties, req, "%s requires undeclared %s", d.Name, req)
		}
		for key, p := range d.Schema.Properties {
			assert.Containsf(t, []string{"string", "integer", "boolean"}, p.Type, "%s.%s", d.Name, key)
		}
		_, err := Decode(d.Name, nil)
		if len(d.Schema.Required) == 0 {
			assert.NoError(t, err)
		} else {
			assert.Error(t, err)
		}
	}
	assert.Equal(t, []string{NameSatisfaction, NameCount, NameTopBottom, NameSchema, NameJoinAnalyze}, names)
}
