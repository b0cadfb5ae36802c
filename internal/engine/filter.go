package engine

import (
	"regexp"
	"strconv"
	"strings"

	"pkghub/pkg/problems"
	"pkghub/pkg/xregistry"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEqual        Op = "="
	OpNotEqual     Op = "!="
	OpNotEqualAlt  Op = "<>"
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
)

// Ordered reports whether the operator compares magnitudes. Wildcards do not
// apply to ordered operators.
func (o Op) Ordered() bool {
	switch o {
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return true
	}
	return false
}

// Negated reports whether the operator inverts an equality match.
func (o Op) Negated() bool {
	return o == OpNotEqual || o == OpNotEqualAlt
}

// Expr is a single "attribute OP literal" comparison.
type Expr struct {
	Attr    string
	Op      Op
	Literal string

	// pattern is the compiled wildcard matcher, set when Literal contains
	// "*" and the operator is an equality form.
	pattern *regexp.Regexp
}

// Clause is the AND of its expressions (one filter parameter value).
type Clause []Expr

// Filter is the OR of its clauses (repeated filter parameters).
type Filter []Clause

// operator table ordered longest-first so "<=" wins over "<".
var operators = []Op{OpNotEqual, OpNotEqualAlt, OpLessEqual, OpGreaterEqual, OpEqual, OpLess, OpGreater}

var attrPathPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.]*$`)

// ParseFilters parses the repeated filter query values into a Filter tree.
// Expressions inside one value are joined by "&" and combine with AND;
// separate values combine with OR.
func ParseFilters(values []string) (Filter, error) {
	filter := make(Filter, 0, len(values))
	for _, value := range values {
		clause, err := parseClause(value)
		if err != nil {
			return nil, err
		}
		filter = append(filter, clause)
	}
	return filter, nil
}

func parseClause(value string) (Clause, error) {
	var clause Clause
	offset := 0
	for _, raw := range strings.Split(value, "&") {
		expr, err := parseExpr(raw, offset)
		if err != nil {
			return nil, err
		}
		clause = append(clause, expr)
		offset += len(raw) + 1
	}
	return clause, nil
}

func parseExpr(raw string, offset int) (Expr, error) {
	opIdx := -1
	var op Op
	for i := 0; i < len(raw); i++ {
		for _, cand := range operators {
			if strings.HasPrefix(raw[i:], string(cand)) {
				opIdx = i
				op = cand
				break
			}
		}
		if opIdx >= 0 {
			break
		}
	}
	if opIdx < 0 {
		return Expr{}, problems.BadRequest("unparseable filter expression at offset %d", offset)
	}

	attr := raw[:opIdx]
	literal := raw[opIdx+len(op):]
	if !attrPathPattern.MatchString(attr) {
		return Expr{}, problems.BadRequest("unparseable filter expression at offset %d", offset)
	}

	expr := Expr{Attr: attr, Op: op, Literal: literal}
	if strings.Contains(literal, "*") && literal != "null" {
		if op.Ordered() {
			return Expr{}, problems.BadRequest("wildcard literal %q not allowed with ordered operator %s", literal, op)
		}
		expr.pattern = wildcardPattern(literal)
	}
	return expr, nil
}

// wildcardPattern compiles a "*"-wildcard literal into a case-insensitive
// anchored regexp with all other metacharacters escaped.
func wildcardPattern(literal string) *regexp.Regexp {
	parts := strings.Split(literal, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?i)^` + strings.Join(parts, ".*") + `$`)
}

// Matches evaluates the expression against one entity.
func (x Expr) Matches(e xregistry.Entity) bool {
	value, present := e.Attr(x.Attr)
	if value == nil {
		present = false
	}

	if x.Literal == "null" && x.pattern == nil {
		switch {
		case x.Op == OpEqual:
			return !present
		case x.Op.Negated():
			return present
		default:
			return false
		}
	}

	if !present {
		// An absent attribute differs from every literal.
		return x.Op.Negated()
	}

	str := stringify(value)

	if x.pattern != nil {
		matched := x.pattern.MatchString(str)
		if x.Op.Negated() {
			return !matched
		}
		return matched
	}

	if x.Op.Ordered() {
		cmp := compareValues(str, x.Literal)
		switch x.Op {
		case OpLess:
			return cmp < 0
		case OpLessEqual:
			return cmp <= 0
		case OpGreater:
			return cmp > 0
		default:
			return cmp >= 0
		}
	}

	equal := strings.EqualFold(str, x.Literal)
	if x.Op.Negated() {
		return !equal
	}
	return equal
}

// Matches evaluates the clause (AND of expressions).
func (c Clause) Matches(e xregistry.Entity) bool {
	for _, expr := range c {
		if !expr.Matches(e) {
			return false
		}
	}
	return true
}

// Matches evaluates the filter (OR of clauses). An empty filter matches
// everything.
func (f Filter) Matches(e xregistry.Entity) bool {
	if len(f) == 0 {
		return true
	}
	for _, clause := range f {
		if clause.Matches(e) {
			return true
		}
	}
	return false
}

// NameConstraints returns, per OR clause, the name equality expressions
// usable against a name index. A clause with none cannot be served from a
// large index and contributes no candidates.
func (f Filter) NameConstraints() [][]Expr {
	out := make([][]Expr, len(f))
	for i, clause := range f {
		for _, expr := range clause {
			if expr.Attr == "name" && expr.Op == OpEqual && expr.Literal != "null" {
				out[i] = append(out[i], expr)
			}
		}
	}
	return out
}

// HasNameConstraint reports whether at least one OR clause carries a name
// equality constraint.
func (f Filter) HasNameConstraint() bool {
	for _, exprs := range f.NameConstraints() {
		if len(exprs) > 0 {
			return true
		}
	}
	return false
}

// compareValues compares two scalar strings: numerically when both parse as
// numbers, case-insensitively otherwise.
func compareValues(a, b string) int {
	na, errA := strconv.ParseFloat(a, 64)
	nb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.Compare(la, lb)
}

// stringify renders an attribute value the way filters and sorts see it.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
