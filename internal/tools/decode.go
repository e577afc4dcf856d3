package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// UnknownToolError reports a tool name outside the fixed set.
type UnknownToolError struct{ Name string }

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// ArgumentError reports a missing or malformed argument.
type ArgumentError struct {
	Tool, Arg, Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: argument %s %s", e.Tool, e.Arg, e.Reason)
}

// Decode turns raw agent arguments into a typed call. Numbers may arrive as
// JSON numbers or numeric strings; booleans as bools or "true"/"false".
func Decode(name string, args map[string]any) (Call, error) {
	d := decoder{tool: name, args: args}
	var c Call
	switch name {
	case NameSatisfaction:
		c = SatisfactionCall{
			Table:        d.required("table_name"),
			GroupBy:      d.str("group_by"),
			FilterColumn: d.str("filter_column"),
			FilterValue:  d.str("filter_value"),
		}
	case NameCount:
		c = CountCall{
			Table:        d.required("table_name"),
			GroupBy:      d.str("group_by"),
			ResponseType: d.str("response_type"),
			FilterColumn: d.str("filter_column"),
			FilterValue:  d.str("filter_value"),
		}
	case NameTopBottom:
		c = TopBottomCall{
			Table:   d.required("table_name"),
			Metric:  d.required("metric"),
			N:       d.integer("n", true),
			GroupBy: d.required("group_by"),
			Bottom:  d.boolean("get_bottom"),
		}
	case NameSchema:
		c = SchemaCall{Table: d.str("table_name")}
	case NameJoinAnalyze:
		c = JoinAnalyzeCall{
			FactTable:    d.required("fact_table"),
			DimTable:     d.required("dim_table"),
			AnalysisType: d.required("analysis_type"),
			GroupBy:      d.str("group_by"),
		}
	case NamePreview:
		c = PreviewCall{Table: d.required("table_name"), N: d.integer("n", false)}
	case NameStats:
		c = StatsCall{Table: d.required("table_name")}
	case NameQuery:
		c = QueryCall{Table: d.required("table_name"), Expression: d.required("query")}
	default:
		return nil, &UnknownToolError{Name: name}
	}
	if d.err != nil {
		return nil, d.err
	}
	return c, nil
}

// decoder records the first argument error and keeps returning zero values after it.
type decoder struct {
	tool string
	args map[string]any
	err  error
}

func (d *decoder) fail(arg, reason string) {
	if d.err == nil {
		d.err = &ArgumentError{Tool: d.tool, Arg: arg, Reason: reason}
	}
}

func (d *decoder) str(key string) string {
	switch v := d.args[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		d.fail(key, fmt.Sprintf("must be a string, got %T", v))
		return ""
	}
}

func (d *decoder) required(key string) string {
	s := d.str(key)
	if s == "" {
		d.fail(key, "is required")
	}
	return s
}

func (d *decoder) integer(key string, required bool) int {
	raw, ok := d.args[key]
	if !ok || raw == nil {
		if required {
			d.fail(key, "is required")
		}
		return 0
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			d.fail(key, "must be a whole number")
			return 0
		}
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			d.fail(key, "must be a whole number")
		}
		return int(n)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			d.fail(key, "must be a whole number")
		}
		return n
	}
	d.fail(key, fmt.Sprintf("must be a number, got %T", raw))
	return 0
}

func (d *decoder) boolean(key string) bool {
	switch v := d.args[key].(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			d.fail(key, "must be true or false")
		}
		return b
	}
	d.fail(key, "must be true or false")
	return false
}
