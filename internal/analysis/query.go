package analysis

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// deniedPatterns reject expressions before parsing. They are a coarse screen,
// not a sandbox: the evaluator below never executes code, it only compares
// column values with string literals.
var deniedPatterns = []struct {
	token string
	re    *regexp.Regexp
}{
	{"import", regexp.MustCompile(`(?i)import`)},
	{"__", regexp.MustCompile(`__`)},
	{"exec", regexp.MustCompile(`(?i)\bexec\b`)},
	{"eval", regexp.MustCompile(`(?i)\beval\b`)},
	{"open", regexp.MustCompile(`(?i)\bopen\b`)},
	{"file", regexp.MustCompile(`(?i)\bfile\b`)},
	{"os", regexp.MustCompile(`(?i)\bos\b`)},
	{"sys", regexp.MustCompile(`(?i)\bsys\b`)},
}

// CustomQuery filters a table with a boolean row expression such as
//
//	RESPOSTA == 'Concordo' and (ANO == '2023' or ANO == '2024')
//	SEMESTRE in ['1', '2'] & not CURSO == 'X'
//
// Operands are column names (bare or in backticks) and quoted string
// literals; comparisons are ==, !=, <, <=, >, >=, in and not in. Boolean
// connectives are and/&, or/| and not/~. Ordering comparisons are lexical.
func (a *Analyzer) CustomQuery(tableName, expr string) (*Table, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, &ValidationError{Field: "query", Value: expr, Reason: "expression is empty"}
	}
	for _, d := range deniedPatterns {
		if d.re.MatchString(expr) {
			return nil, &ValidationError{Field: "query", Value: expr, Reason: fmt.Sprintf("forbidden token %q", d.token)}
		}
	}
	t, err := a.table(tableName)
	if err != nil {
		return nil, err
	}
	pred, err := compileQuery(expr, t)
	if err != nil {
		return nil, &EvaluationError{Query: expr, Err: err}
	}
	return t.where(pred), nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

var errUnterminated = errors.New("unterminated literal")

func tokenize(expr string) ([]token, error) {
	var toks []token
	rs := []rune(expr)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'' || r == '"':
			var b strings.Builder
			j := i + 1
			for ; j < len(rs) && rs[j] != r; j++ {
				if rs[j] == '\\' && j+1 < len(rs) {
					j++
				}
				b.WriteRune(rs[j])
			}
			if j >= len(rs) {
				return nil, fmt.Errorf("%w at position %d", errUnterminated, i)
			}
			toks = append(toks, token{tokString, b.String(), i})
			i = j + 1
		case r == '`':
			j := i + 1
			for j < len(rs) && rs[j] != '`' {
				j++
			}
			if j >= len(rs) {
				return nil, fmt.Errorf("%w at position %d", errUnterminated, i)
			}
			toks = append(toks, token{tokIdent, string(rs[i+1 : j]), i})
			i = j + 1
		case unicode.IsDigit(r) || (r == '-' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			j := i + 1
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, string(rs[i:j]), i})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i + 1
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_') {
				j++
			}
			toks = append(toks, token{tokIdent, string(rs[i:j]), i})
			i = j
		default:
			if i+1 < len(rs) {
				two := string(rs[i : i+2])
				if two == "==" || two == "!=" || two == "<=" || two == ">=" {
					toks = append(toks, token{tokOp, two, i})
					i += 2
					continue
				}
			}
			if strings.ContainsRune("<>&|~()[],", r) {
				toks = append(toks, token{tokOp, string(r), i})
				i++
				continue
			}
			return nil, fmt.Errorf("unexpected character %q at position %d", r, i)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(rs)}), nil
}

type predicate func(row []string) bool

type queryParser struct {
	toks  []token
	pos   int
	table *Table
}

func compileQuery(expr string, t *Table) (predicate, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &queryParser{toks: toks, table: t}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", tok.text, tok.pos)
	}
	return pred, nil
}

func (p *queryParser) peek() token { return p.toks[p.pos] }

func (p *queryParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *queryParser) isKeyword(tok token, kw string) bool {
	return tok.kind == tokIdent && strings.EqualFold(tok.text, kw)
}

func (p *queryParser) parseOr() (predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for tok := p.peek(); p.isKeyword(tok, "or") || (tok.kind == tokOp && tok.text == "|"); tok = p.peek() {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(row []string) bool { return l(row) || right(row) }
	}
	return left, nil
}

func (p *queryParser) parseAnd() (predicate, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for tok := p.peek(); p.isKeyword(tok, "and") || (tok.kind == tokOp && tok.text == "&"); tok = p.peek() {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(row []string) bool { return l(row) && right(row) }
	}
	return left, nil
}

func (p *queryParser) parseNot() (predicate, error) {
	if tok := p.peek(); p.isKeyword(tok, "not") || (tok.kind == tokOp && tok.text == "~") {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return func(row []string) bool { return !inner(row) }, nil
	}
	return p.parseComparison()
}

// operand yields a cell value or a literal for a row.
type operand func(row []string) string

func (p *queryParser) parseOperand() (operand, error) {
	tok := p.next()
	switch tok.kind {
	case tokString:
		v := tok.text
		return func([]string) string { return v }, nil
	case tokIdent:
		i, ok := p.table.ColumnIndex(tok.text)
		if !ok {
			return nil, columnNotFound(p.table.Name, tok.text, p.table.Columns)
		}
		return func(row []string) string { return row[i] }, nil
	case tokNumber:
		return nil, fmt.Errorf("unquoted literal %s at position %d: values are text, write '%s'", tok.text, tok.pos, tok.text)
	case tokEOF:
		return nil, errors.New("unexpected end of expression")
	}
	return nil, fmt.Errorf("unexpected %q at position %d", tok.text, tok.pos)
}

func (p *queryParser) parseList() ([]string, error) {
	open := p.next()
	if open.kind != tokOp || (open.text != "[" && open.text != "(") {
		return nil, fmt.Errorf("expected a list after 'in' at position %d", open.pos)
	}
	closer := "]"
	if open.text == "(" {
		closer = ")"
	}
	var items []string
	for {
		tok := p.next()
		if tok.kind == tokOp && tok.text == closer && len(items) == 0 {
			return items, nil
		}
		if tok.kind != tokString {
			if tok.kind == tokNumber {
				return nil, fmt.Errorf("unquoted literal %s at position %d: values are text, write '%s'", tok.text, tok.pos, tok.text)
			}
			return nil, fmt.Errorf("list items must be quoted strings (position %d)", tok.pos)
		}
		items = append(items, tok.text)
		sep := p.next()
		if sep.kind == tokOp && sep.text == closer {
			return items, nil
		}
		if sep.kind != tokOp || sep.text != "," {
			return nil, fmt.Errorf("expected ',' or %q at position %d", closer, sep.pos)
		}
	}
}

func (p *queryParser) parseComparison() (predicate, error) {
	if tok := p.peek(); tok.kind == tokOp && tok.text == "(" {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if tok := p.next(); tok.kind != tokOp || tok.text != ")" {
			return nil, fmt.Errorf("expected ')' at position %d", tok.pos)
		}
		return inner, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	op := p.next()
	negate := false
	if p.isKeyword(op, "not") {
		if !p.isKeyword(p.peek(), "in") {
			return nil, fmt.Errorf("expected 'in' after 'not' at position %d", p.peek().pos)
		}
		op = p.next()
		negate = true
	}
	if p.isKeyword(op, "in") {
		items, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return func(row []string) bool { return slices.Contains(items, left(row)) != negate }, nil
	}
	if op.kind != tokOp {
		if op.kind == tokEOF {
			return nil, errors.New("expression must be a comparison")
		}
		return nil, fmt.Errorf("expected comparison operator at position %d, got %q", op.pos, op.text)
	}
	var cmp func(a, b string) bool
	switch op.text {
	case "==":
		cmp = func(a, b string) bool { return a == b }
	case "!=":
		cmp = func(a, b string) bool { return a != b }
	case "<":
		cmp = func(a, b string) bool { return a < b }
	case "<=":
		cmp = func(a, b string) bool { return a <= b }
	case ">":
		cmp = func(a, b string) bool { return a > b }
	case ">=":
		cmp = func(a, b string) bool { return a >= b }
	default:
		return nil, fmt.Errorf("expected comparison operator at position %d, got %q", op.pos, op.text)
	}
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return func(row []string) bool { return cmp(left(row), right(row)) }, nil
}
