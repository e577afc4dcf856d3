package analysis

import (
	"fmt"
	"strings"
)

// LookupError reports an unknown table or column.
type LookupError struct {
	Kind      string // "table" or "column"
	Name      string
	Table     string // owning table for column lookups
	Available []string
}

func (e *LookupError) Error() string {
	var b strings.Builder
	if e.Kind == "column" && e.Table != "" {
		fmt.Fprintf(&b, "column %s does not exist in %s", e.Name, e.Table)
	} else {
		fmt.Fprintf(&b, "%s %s not found", e.Kind, e.Name)
	}
	if len(e.Available) > 0 {
		fmt.Fprintf(&b, " (available: %s)", strings.Join(e.Available, ", "))
	}
	return b.String()
}

// ValidationError reports an argument outside its allowed set.
type ValidationError struct {
	Field   string
	Value   string
	Allowed []string
	Reason  string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s %q", e.Field, e.Value)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if len(e.Allowed) > 0 {
		msg += fmt.Sprintf(" (use one of: %s)", strings.Join(e.Allowed, ", "))
	}
	return msg
}

// EvaluationError wraps a failure while evaluating a custom query.
type EvaluationError struct {
	Query string
	Err   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("query %q failed: %v", e.Query, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// LoadError records a table file that could not be parsed.
type LoadError struct {
	Table string
	Path  string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s from %s: %v", e.Table, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func tableNotFound(name string, available []string) error {
	return &LookupError{Kind: "table", Name: name, Available: available}
}

func columnNotFound(table, column string, available []string) error {
	return &LookupError{Kind: "column", Name: column, Table: table, Available: available}
}
