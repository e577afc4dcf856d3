package tools

// Property describes a single tool parameter.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Enum        []any  `json:"enum,omitempty"`
}

// Schema defines the parameters a tool accepts.
type Schema struct {
	Required   []string            `json:"required"`
	Properties map[string]Property `json:"properties"`
}

// Definition is the agent-facing description of a tool.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      Schema `json:"parameters"`
}

var (
	tableProp = Property{
		Type:        "string",
		Description: "Nome da tabela (FATO_AVCURSOS, FATO_AVDISCIPLINAS, FATO_AVINSTITUCIONAL)",
	}
	groupByProp = Property{
		Type:        "string",
		Description: "Coluna para agrupar (ex: COD_CURSO, SIGLA_LOTACAO, ID_PERGUNTA)",
	}
	filterColumnProp = Property{Type: "string", Description: "Coluna para filtrar (opcional)"}
	filterValueProp  = Property{Type: "string", Description: "Valor do filtro (opcional)"}
)

// Definitions returns the five tools offered to the chat agent.
func Definitions() []Definition {
	return []Definition{
		{
			Name: NameSatisfaction,
			Description: "Calcula satisfação (% de 'Concordo' sobre respostas válidas). " +
				"Use para média/percentual de satisfação, aprovação por grupo e comparações.",
			Schema: Schema{
				Required: []string{"table_name"},
				Properties: map[string]Property{
					"table_name":    tableProp,
					"group_by":      groupByProp,
					"filter_column": filterColumnProp,
					"filter_value":  filterValueProp,
				},
			},
		},
		{
			Name: NameCount,
			Description: "Conta respostas com filtros opcionais. " +
				"Use para quantidade de respostas, contagem por tipo e volume por grupo.",
			Schema: Schema{
				Required: []string{"table_name"},
				Properties: map[string]Property{
					"table_name": tableProp,
					"group_by":   groupByProp,
					"response_type": {
						Type:        "string",
						Description: "Tipo de resposta (opcional)",
						Enum:        []any{"Concordo", "Discordo", "Desconheço"},
					},
					"filter_column": filterColumnProp,
					"filter_value":  filterValueProp,
				},
			},
		},
		{
			Name: NameTopBottom,
			Description: "Retorna top/bottom N por métrica. " +
				"Use para melhores/piores cursos, setores ou unidades e rankings.",
			Schema: Schema{
				Required: []string{"table_name", "metric", "n", "group_by"},
				Properties: map[string]Property{
					"table_name": tableProp,
					"metric": {
						Type:        "string",
						Description: "Métrica do ranking",
						Enum:        []any{"satisfacao", "contagem", "gap_desconhecimento"},
					},
					"n":        {Type: "integer", Description: "Número de resultados (ex: 10 para top 10)"},
					"group_by": groupByProp,
					"get_bottom": {
						Type:        "boolean",
						Description: "true para os piores (bottom N), false para os melhores (top N)",
					},
				},
			},
		},
		{
			Name: NameSchema,
			Description: "Retorna informações sobre o schema das tabelas: colunas, significado e relacionamentos. " +
				"Sem table_name retorna o resumo de todas as tabelas.",
			Schema: Schema{
				Required: []string{},
				Properties: map[string]Property{
					"table_name": {Type: "string", Description: "Nome da tabela (opcional)"},
				},
			},
		},
		{
			Name: NameJoinAnalyze,
			Description: "Faz join entre tabela fato e dimensão e analisa. " +
				"Use para satisfação por nome de curso, respostas por texto da pergunta, eixo SINAES etc.",
			Schema: Schema{
				Required: []string{"fact_table", "dim_table", "analysis_type"},
				Properties: map[string]Property{
					"fact_table": {Type: "string", Description: "Tabela fato (FATO_*)"},
					"dim_table":  {Type: "string", Description: "Tabela dimensão (DIM_*)"},
					"analysis_type": {
						Type:        "string",
						Description: "Tipo de análise",
						Enum:        []any{"satisfacao", "contagem"},
					},
					"group_by": {
						Type:        "string",
						Description: "Coluna para agrupar, geralmente da dimensão (ex: CURSO, PERGUNTA)",
					},
				},
			},
		},
	}
}
