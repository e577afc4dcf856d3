// Package schema describes the UFPR evaluation tables: their columns, keys,
// relationships and the human-readable column used when enriching results.
package schema

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Kind separates fact tables (one row per answer) from dimension tables.
type Kind string

const (
	KindFact      Kind = "fact"
	KindDimension Kind = "dimension"
)

// Column names and values shared by every fact table.
const (
	ResponseColumn = "RESPOSTA"

	ResponseAgree    = "Concordo"
	ResponseDisagree = "Discordo"
	ResponseUnknown  = "Desconheço"
)

// Column documents one column of a table.
type Column struct {
	Name    string `json:"name" yaml:"name"`
	Meaning string `json:"meaning" yaml:"meaning"`
}

// Relationship links a foreign key in the owning table to the primary key of Table.
type Relationship struct {
	Table      string `json:"table" yaml:"table"`
	ForeignKey string `json:"foreign_key" yaml:"foreign_key"`
	PrimaryKey string `json:"primary_key" yaml:"primary_key"`
}

// Table is a single registry entry.
type Table struct {
	Name           string         `json:"name" yaml:"name"`
	Kind           Kind           `json:"kind" yaml:"kind"`
	Description    string         `json:"description" yaml:"description"`
	Columns        []Column       `json:"columns" yaml:"columns"`
	Relationships  []Relationship `json:"relationships,omitempty" yaml:"relationships,omitempty"`
	PrimaryKey     string         `json:"primary_key" yaml:"primary_key"`
	DisplayColumn  string         `json:"display_column,omitempty" yaml:"display_column,omitempty"`
	RowCountApprox int            `json:"row_count_approx" yaml:"row_count_approx"`
}

// HasColumn reports whether the column is documented for the table.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Registry is an ordered, read-only set of table entries.
type Registry struct {
	tables []*Table
	byName map[string]*Table
}

// New builds a registry, rejecting duplicates and relationships or display
// columns that point nowhere.
func New(tables ...Table) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Table, len(tables))}
	for i := range tables {
		t := tables[i]
		if strings.TrimSpace(t.Name) == "" {
			return nil, errors.New("schema: table name cannot be empty")
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate table %s", t.Name)
		}
		if t.Kind == "" {
			t.Kind = KindDimension
			if strings.HasPrefix(t.Name, "FATO_") {
				t.Kind = KindFact
			}
		}
		r.tables = append(r.tables, &t)
		r.byName[t.Name] = &t
	}
	for _, t := range r.tables {
		for _, rel := range t.Relationships {
			if _, ok := r.byName[rel.Table]; !ok {
				return nil, fmt.Errorf("schema: %s relates to undeclared table %s", t.Name, rel.Table)
			}
			if rel.ForeignKey == "" || rel.PrimaryKey == "" {
				return nil, fmt.Errorf("schema: %s -> %s needs both foreign and primary key", t.Name, rel.Table)
			}
		}
		if t.DisplayColumn != "" && len(t.Columns) > 0 && !t.HasColumn(t.DisplayColumn) {
			return nil, fmt.Errorf("schema: display column %s is not a column of %s", t.DisplayColumn, t.Name)
		}
	}
	return r, nil
}

// LoadFile reads a YAML registry of the form `tables: [...]`.
func LoadFile(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	var doc struct {
		Tables []Table `json:"tables" yaml:"tables"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse schema file: %w", err)
	}
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("schema file %s declares no tables", path)
	}
	return New(doc.Tables...)
}

// Lookup returns the entry for name.
func (r *Registry) Lookup(name string) (*Table, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Names lists table names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.tables))
	for i, t := range r.tables {
		out[i] = t.Name
	}
	return out
}

// Tables returns the entries in declaration order.
func (r *Registry) Tables() []*Table {
	out := make([]*Table, len(r.tables))
	copy(out, r.tables)
	return out
}

// Relationship resolves the declared link from one table to another.
func (r *Registry) Relationship(from, to string) (Relationship, bool) {
	t, ok := r.byName[from]
	if !ok {
		return Relationship{}, false
	}
	for _, rel := range t.Relationships {
		if rel.Table == to {
			return rel, true
		}
	}
	return Relationship{}, false
}

// TableInfo renders the schema of one table for the agent.
func (r *Registry) TableInfo(name string) string {
	t, ok := r.byName[name]
	if !ok {
		return fmt.Sprintf("Tabela '%s' não encontrada. Tabelas disponíveis: %s", name, strings.Join(r.Names(), ", "))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", t.Name)
	fmt.Fprintf(&b, "Descrição: %s\n", t.Description)
	fmt.Fprintf(&b, "Aproximadamente %s linhas\n\n", humanize.Comma(int64(t.RowCountApprox)))
	b.WriteString("**Colunas:**\n")
	for _, c := range t.Columns {
		fmt.Fprintf(&b, "  - %s: %s\n", c.Name, c.Meaning)
	}
	if len(t.Relationships) > 0 {
		b.WriteString("\n**Relacionamentos:**\n")
		for _, rel := range t.Relationships {
			fmt.Fprintf(&b, "  - %s via %s → %s\n", rel.Table, rel.ForeignKey, rel.PrimaryKey)
		}
	}
	return b.String()
}

// Summary lists every table grouped by kind, followed by the common metrics.
func (r *Registry) Summary() string {
	var b strings.Builder
	b.WriteString("**Tabelas Disponíveis no Sistema de Avaliação UFPR:**\n\n")
	section := func(title string, kind Kind) {
		fmt.Fprintf(&b, "**%s:**\n", title)
		for _, t := range r.tables {
			if t.Kind != kind {
				continue
			}
			fmt.Fprintf(&b, "  - %s: %s (~%s linhas)\n", t.Name, t.Description, humanize.Comma(int64(t.RowCountApprox)))
		}
	}
	section("Tabelas Fato (Respostas)", KindFact)
	b.WriteString("\n")
	section("Tabelas Dimensão (Metadados)", KindDimension)
	b.WriteString("\n**Métricas Comuns:**\n")
	for _, m := range CommonMetrics {
		fmt.Fprintf(&b, "  - %s: %s\n", m.Name, m.Description)
	}
	return b.String()
}
