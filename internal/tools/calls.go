// Package tools exposes the analyzer as a fixed set of named operations with
// primitive arguments and string results, for LLM agents, the CLI and the
// HTTP API alike.
package tools

// Tool names.
const (
	NameSatisfaction = "calculate_satisfaction"
	NameCount        = "count_responses"
	NameTopBottom    = "get_top_bottom"
	NameSchema       = "get_table_schema"
	NameJoinAnalyze  = "join_and_analyze"
	NamePreview      = "preview_table"
	NameStats        = "table_stats"
	NameQuery        = "custom_query"
)

// Call is one of the concrete *Call types below.
type Call interface {
	Tool() string
	call()
}

// SatisfactionCall computes satisfaction, optionally grouped and filtered by one column.
type SatisfactionCall struct {
	Table        string `json:"table_name"`
	GroupBy      string `json:"group_by,omitempty"`
	FilterColumn string `json:"filter_column,omitempty"`
	FilterValue  string `json:"filter_value,omitempty"`
}

// CountCall counts responses, optionally of one response type.
type CountCall struct {
	Table        string `json:"table_name"`
	GroupBy      string `json:"group_by,omitempty"`
	ResponseType string `json:"response_type,omitempty"`
	FilterColumn string `json:"filter_column,omitempty"`
	FilterValue  string `json:"filter_value,omitempty"`
}

// TopBottomCall ranks groups by a metric.
type TopBottomCall struct {
	Table   string `json:"table_name"`
	Metric  string `json:"metric"`
	N       int    `json:"n"`
	GroupBy string `json:"group_by"`
	Bottom  bool   `json:"get_bottom,omitempty"`
}

// SchemaCall describes one table, or all of them when Table is empty.
type SchemaCall struct {
	Table string `json:"table_name,omitempty"`
}

// JoinAnalyzeCall joins a fact table with a dimension and aggregates.
type JoinAnalyzeCall struct {
	FactTable    string `json:"fact_table"`
	DimTable     string `json:"dim_table"`
	AnalysisType string `json:"analysis_type"`
	GroupBy      string `json:"group_by,omitempty"`
}

// PreviewCall returns the first rows of a table.
type PreviewCall struct {
	Table string `json:"table_name"`
	N     int    `json:"n,omitempty"`
}

// StatsCall summarizes a table.
type StatsCall struct {
	Table string `json:"table_name"`
}

// QueryCall filters a table with a row expression.
type QueryCall struct {
	Table      string `json:"table_name"`
	Expression string `json:"query"`
}

func (SatisfactionCall) Tool() string { return NameSatisfaction }
func (CountCall) Tool() string        { return NameCount }
func (TopBottomCall) Tool() string    { return NameTopBottom }
func (SchemaCall) Tool() string       { return NameSchema }
func (JoinAnalyzeCall) Tool() string  { return NameJoinAnalyze }
func (PreviewCall) Tool() string      { return NamePreview }
func (StatsCall) Tool() string        { return NameStats }
func (QueryCall) Tool() string        { return NameQuery }

func (SatisfactionCall) call() {}
func (CountCall) call()        {}
func (TopBottomCall) call()    {}
func (SchemaCall) call()       {}
func (JoinAnalyzeCall) call()  {}
func (PreviewCall) call()      {}
func (StatsCall) call()        {}
func (QueryCall) call()        {}
