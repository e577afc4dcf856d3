package schema

import "fmt"

// ValidValues enumerates the legal values of constrained columns.
var ValidValues = map[string][]string{
	ResponseColumn: {ResponseAgree, ResponseDisagree, ResponseUnknown},
	"SEMESTRE":     {"1", "2"},
	"GRAU":         {"Bacharelado", "Licenciatura", "Tecnólogo"},
}

// IsValidResponse reports whether v is one of the enumerated RESPOSTA values.
func IsValidResponse(v string) bool {
	for _, r := range ValidValues[ResponseColumn] {
		if r == v {
			return true
		}
	}
	return false
}

// Metric documents a derived indicator.
type Metric struct {
	Name        string
	Description string
	Formula     string
}

// CommonMetrics are the indicators the dashboards and the assistant talk about.
var CommonMetrics = []Metric{
	{
		Name:        "satisfacao",
		Description: "Percentual de 'Concordo' sobre total de respostas válidas (Concordo + Discordo)",
		Formula:     "(count(Concordo) / (count(Concordo) + count(Discordo))) * 100",
	},
	{
		Name:        "discordancia",
		Description: "Percentual de 'Discordo' sobre total de respostas válidas",
		Formula:     "(count(Discordo) / (count(Concordo) + count(Discordo))) * 100",
	},
	{
		Name:        "gap_desconhecimento",
		Description: "Percentual de 'Desconheço' sobre total de respostas",
		Formula:     "(count(Desconheço) / count(*)) * 100",
	},
	{
		Name:        "net_score",
		Description: "Diferença entre Concordo e Discordo normalizada",
		Formula:     "((count(Concordo) - count(Discordo)) / (count(Concordo) + count(Discordo))) * 100",
	},
}

var answerColumns = []Column{
	{Name: "ID_QUESTIONARIO", Meaning: "Identificador único do questionário respondido"},
	{Name: "ID_PERGUNTA", Meaning: "Código da pergunta (FK para DIM_PERGUNTAS)"},
	{Name: ResponseColumn, Meaning: "Resposta: 'Concordo', 'Discordo' ou 'Desconheço'"},
}

func withAnswerColumns(extra ...Column) []Column {
	out := make([]Column, 0, len(answerColumns)+len(extra))
	out = append(out, answerColumns...)
	return append(out, extra...)
}

var (
	yearColumn     = Column{Name: "ANO", Meaning: "Ano da avaliação"}
	semesterColumn = Column{Name: "SEMESTRE", Meaning: "Semestre da avaliação (1 ou 2)"}
)

// DefaultTables is the built-in UFPR evaluation schema.
func DefaultTables() []Table {
	return []Table{
		{
			Name:        "FATO_AVCURSOS",
			Kind:        KindFact,
			Description: "Respostas da avaliação de cursos (dados factuais de cada resposta)",
			Columns: withAnswerColumns(
				Column{Name: "COD_CURSO", Meaning: "Código do curso avaliado (FK para DIM_CURSOS)"},
				yearColumn, semesterColumn,
			),
			Relationships: []Relationship{
				{Table: "DIM_PERGUNTAS", ForeignKey: "ID_PERGUNTA", PrimaryKey: "ID_PERGUNTA"},
				{Table: "DIM_CURSOS", ForeignKey: "COD_CURSO", PrimaryKey: "COD_CURSO"},
			},
			PrimaryKey:     "ID_QUESTIONARIO",
			RowCountApprox: 2000000,
		},
		{
			Name:        "FATO_AVDISCIPLINAS",
			Kind:        KindFact,
			Description: "Respostas da avaliação de disciplinas (maior volume de dados)",
			Columns: withAnswerColumns(
				Column{Name: "COD_DISCIPLINA", Meaning: "Código da disciplina avaliada (FK para DIM_DISCIPLINAS)"},
				Column{Name: "COD_CURSO", Meaning: "Código do curso (FK para DIM_CURSOS)"},
				yearColumn, semesterColumn,
			),
			Relationships: []Relationship{
				{Table: "DIM_PERGUNTAS", ForeignKey: "ID_PERGUNTA", PrimaryKey: "ID_PERGUNTA"},
				{Table: "DIM_DISCIPLINAS", ForeignKey: "COD_DISCIPLINA", PrimaryKey: "COD_DISCIPLINA"},
				{Table: "DIM_CURSOS", ForeignKey: "COD_CURSO", PrimaryKey: "COD_CURSO"},
			},
			PrimaryKey:     "ID_QUESTIONARIO",
			RowCountApprox: 20000000,
		},
		{
			Name:        "FATO_AVINSTITUCIONAL",
			Kind:        KindFact,
			Description: "Respostas da avaliação institucional (servidores/professores)",
			Columns: withAnswerColumns(
				Column{Name: "SIGLA_LOTACAO", Meaning: "Sigla da unidade de lotação do respondente"},
				yearColumn, semesterColumn,
			),
			Relationships: []Relationship{
				{Table: "DIM_PERGUNTAS", ForeignKey: "ID_PERGUNTA", PrimaryKey: "ID_PERGUNTA"},
			},
			PrimaryKey:     "ID_QUESTIONARIO",
			RowCountApprox: 2400000,
		},
		{
			Name:        "DIM_PERGUNTAS",
			Kind:        KindDimension,
			Description: "Dimensão de perguntas - contém o texto e classificação de cada pergunta",
			Columns: []Column{
				{Name: "ID_PERGUNTA", Meaning: "Identificador único da pergunta (PK)"},
				{Name: "PERGUNTA", Meaning: "Texto completo da pergunta"},
				{Name: "EIXO_SINAES", Meaning: "Classificação no eixo SINAES (1-5)"},
				{Name: "DIM_SINAES", Meaning: "Dimensão SINAES detalhada"},
				{Name: "Tipo_Pergunta", Meaning: "Tipo/categoria da pergunta"},
			},
			PrimaryKey:     "ID_PERGUNTA",
			DisplayColumn:  "PERGUNTA",
			RowCountApprox: 200,
		},
		{
			Name:        "DIM_CURSOS",
			Kind:        KindDimension,
			Description: "Dimensão de cursos - informações dos cursos da UFPR",
			Columns: []Column{
				{Name: "COD_CURSO", Meaning: "Código único do curso (PK)"},
				{Name: "CURSO", Meaning: "Nome completo do curso"},
				{Name: "SETOR_CURSO", Meaning: "Setor/Centro ao qual o curso pertence"},
				{Name: "GRAU", Meaning: "Grau: Bacharelado, Licenciatura, Tecnólogo"},
			},
			PrimaryKey:     "COD_CURSO",
			DisplayColumn:  "CURSO",
			RowCountApprox: 300,
		},
		{
			Name:        "DIM_DISCIPLINAS",
			Kind:        KindDimension,
			Description: "Dimensão de disciplinas - catálogo de disciplinas",
			Columns: []Column{
				{Name: "COD_DISCIPLINA", Meaning: "Código único da disciplina (PK)"},
				{Name: "NOME_DISCIPLINA", Meaning: "Nome completo da disciplina"},
				{Name: "COD_CURSO", Meaning: "Código do curso (FK para DIM_CURSOS)"},
				{Name: "CARGA_HORARIA", Meaning: "Carga horária da disciplina"},
			},
			Relationships: []Relationship{
				{Table: "DIM_CURSOS", ForeignKey: "COD_CURSO", PrimaryKey: "COD_CURSO"},
			},
			PrimaryKey:     "COD_DISCIPLINA",
			DisplayColumn:  "NOME_DISCIPLINA",
			RowCountApprox: 5000,
		},
		{
			Name:        "DIM_TIPO_PERGUNTA_SINAES",
			Kind:        KindDimension,
			Description: "Dimensão de tipos de perguntas SINAES - taxonomia completa",
			Columns: []Column{
				{Name: "Tipo_Perg", Meaning: "Tipo da pergunta (identificador único)"},
				{Name: "Descricao", Meaning: "Descrição do tipo de pergunta"},
			},
			PrimaryKey:     "Tipo_Perg",
			DisplayColumn:  "Descricao",
			RowCountApprox: 50,
		},
		{
			Name:        "DIM_UNIDADES",
			Kind:        KindDimension,
			Description: "Dimensão de unidades - setores e centros da UFPR",
			Columns: []Column{
				{Name: "SIGLA_LOTACAO", Meaning: "Sigla da unidade (PK)"},
				{Name: "UNIDADE GESTORA", Meaning: "Nome completo da unidade"},
				{Name: "LOTACAO", Meaning: "Lotação detalhada"},
			},
			PrimaryKey:     "SIGLA_LOTACAO",
			DisplayColumn:  "UNIDADE GESTORA",
			RowCountApprox: 100,
		},
	}
}

// Default returns the built-in registry.
func Default() *Registry {
	r, err := New(DefaultTables()...)
	if err != nil {
		panic(fmt.Sprintf("built-in schema is invalid: %v", err))
	}
	return r
}
