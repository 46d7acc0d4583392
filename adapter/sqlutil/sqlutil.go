// Package sqlutil holds the AST→SQL translation shared by the three SQL
// dialects godm speaks (embedded SQLite, networked MySQL-family "A",
// networked Postgres-family "B"). Each dialect differs only in
// placeholder style, quoting, regex/ILIKE availability, and JSON
// predicates; Dialect captures exactly that delta so the traversal of
// query.ConditionGroup is written once, mirroring how forbearing/gst's
// database.go builds one WHERE-clause string regardless of backend and
// leaves only the driver selection to config.
package sqlutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/forbearing/godm/metadata"
	"github.com/forbearing/godm/odmerr"
	"github.com/forbearing/godm/query"
	"github.com/forbearing/godm/value"
)

// Dialect captures the SQL-text differences between backends (spec.md
// §4.7/§4.8).
type Dialect struct {
	Name string

	// Placeholder renders the i'th (1-based) bound parameter.
	Placeholder func(i int) string

	// Quote quotes an identifier (table/column name).
	Quote func(ident string) string

	// RegexOp is the backend operator for Regex (e.g. "REGEXP", "~"); empty
	// means unsupported.
	RegexOp   string
	RegexOpCI string // case-insensitive variant, e.g. postgres "~*"; empty if none

	// ILike, when non-empty, is used for case-insensitive LIKE-family
	// patterns (Contains/StartsWith/EndsWith); otherwise both sides are
	// lowered with LOWER(...).
	ILike string

	// JSONPath renders a JSON-extract expression for column.path (e.g.
	// MySQL `JSON_EXTRACT(col, '$.path')`, Postgres `col->>'path'`).
	JSONPath func(col, path string) string

	// JSONArrayContainsAny renders a predicate testing whether the
	// JSON-array-as-text column `col` contains value bound at placeholder
	// ph (used for In() over array-typed fields, spec.md §4.8).
	JSONArrayContainsAny func(col, ph string) string

	// CIEqualityViaCollation, when true, means case-insensitive equality is
	// already handled by a per-column collation set at CREATE time (spec.md
	// §4.8's dialect A), so the translator must not additionally wrap both
	// sides in LOWER(...).
	CIEqualityViaCollation bool
}

// Translator walks a query.ConditionGroup and query.Options into SQL text
// plus positional bind arguments, using dialect's rendering rules.
type Translator struct {
	D Dialect

	// ArrayFields names the fields stored as a JSON-encoded text column
	// (spec.md §4.8); In() against one of them lowers to a containment
	// test via D.JSONArrayContainsAny instead of a plain SQL IN list.
	ArrayFields map[string]bool

	argN int
}

// NewTranslator returns a fresh Translator for one query (argN resets per
// query since Postgres-style placeholders are numbered from 1).
func NewTranslator(d Dialect) *Translator { return &Translator{D: d} }

func (t *Translator) nextPlaceholder() string {
	t.argN++
	return t.D.Placeholder(t.argN)
}

// Where renders g as a parenthesized boolean SQL expression plus its bound
// arguments in traversal order (spec.md §4.7: "lowers to parenthesized
// boolean expression with AND/OR... values bound in traversal order").
func (t *Translator) Where(g *query.ConditionGroup) (string, []any, error) {
	if g == nil {
		return "1=1", nil, nil
	}
	if g.IsLeaf() {
		return t.condition(*g.Leaf)
	}

	op := " AND "
	if g.Logic == query.Or {
		op = " OR "
	}
	if len(g.Children) == 0 {
		return "1=1", nil, nil
	}

	var parts []string
	var args []any
	for _, child := range g.Children {
		frag, a, err := t.Where(&child)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, frag)
		args = append(args, a...)
	}
	return "(" + strings.Join(parts, op) + ")", args, nil
}

func (t *Translator) condition(c query.Condition) (string, []any, error) {
	col := t.D.Quote(metadata.ColumnName(c.Field))
	if dotted := strings.SplitN(c.Field, ".", 2); len(dotted) == 2 {
		col = t.D.Quote(metadata.ColumnName(dotted[0]))
	}

	switch c.Op {
	case query.Eq:
		return t.equality(col, c, false)
	case query.Ne:
		return t.equality(col, c, true)
	case query.Gt:
		return t.comparison(col, ">", c.Value)
	case query.Gte:
		return t.comparison(col, ">=", c.Value)
	case query.Lt:
		return t.comparison(col, "<", c.Value)
	case query.Lte:
		return t.comparison(col, "<=", c.Value)
	case query.In:
		if t.ArrayFields[c.Field] {
			return t.inArrayColumn(col, c, false)
		}
		return t.inList(col, c, false)
	case query.NotIn:
		if t.ArrayFields[c.Field] {
			return t.inArrayColumn(col, c, true)
		}
		return t.inList(col, c, true)
	case query.Contains:
		return t.pattern(col, c, "%", "%")
	case query.StartsWith:
		return t.pattern(col, c, "", "%")
	case query.EndsWith:
		return t.pattern(col, c, "%", "")
	case query.Regex:
		return t.regex(col, c)
	case query.IsNull:
		return col + " IS NULL", nil, nil
	case query.IsNotNull:
		return col + " IS NOT NULL", nil, nil
	case query.JsonContains:
		return t.jsonContains(c)
	case query.Exists:
		// Fixed-schema SQL tables always have the declared column; the
		// closest analog to "field is present" is non-null.
		return col + " IS NOT NULL", nil, nil
	default:
		return "", nil, odmerr.NewUnsupportedOperator(c.Op.String(), t.D.Name)
	}
}

func (t *Translator) equality(col string, c query.Condition, negate bool) (string, []any, error) {
	op := "="
	if negate {
		op = "<>"
	}
	ph := t.nextPlaceholder()
	if !c.CaseInsensitive || t.D.CIEqualityViaCollation {
		return fmt.Sprintf("%s %s %s", col, op, ph), []any{toBound(c.Value)}, nil
	}
	return fmt.Sprintf("LOWER(%s) %s LOWER(%s)", col, op, ph), []any{toBound(c.Value)}, nil
}

func (t *Translator) comparison(col, op string, v value.Value) (string, []any, error) {
	ph := t.nextPlaceholder()
	return fmt.Sprintf("%s %s %s", col, op, ph), []any{toBound(v)}, nil
}

func (t *Translator) inList(col string, c query.Condition, negate bool) (string, []any, error) {
	arr, ok := c.Value.AsArray()
	if !ok {
		return "", nil, odmerr.NewQueryError("sqlutil: In/NotIn requires an array value", nil)
	}
	if len(arr) == 0 {
		if negate {
			return "1=1", nil, nil // nothing excludes anything
		}
		return "1=0", nil, nil // spec.md §4.7: empty IN list evaluates to FALSE
	}
	phs := make([]string, len(arr))
	args := make([]any, len(arr))
	for i, v := range arr {
		phs[i] = t.nextPlaceholder()
		args[i] = toBound(v)
	}
	op := "IN"
	if negate {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(phs, ",")), args, nil
}

func (t *Translator) pattern(col string, c query.Condition, prefix, suffix string) (string, []any, error) {
	s, _ := c.Value.AsString()
	escaped := escapeLike(s)
	ph := t.nextPlaceholder()
	literal := prefix + escaped + suffix

	if c.CaseInsensitive && t.D.ILike != "" {
		return fmt.Sprintf("%s %s %s ESCAPE '\\'", col, t.D.ILike, ph), []any{literal}, nil
	}
	if c.CaseInsensitive {
		return fmt.Sprintf("LOWER(%s) LIKE LOWER(%s) ESCAPE '\\'", col, ph), []any{literal}, nil
	}
	return fmt.Sprintf("%s LIKE %s ESCAPE '\\'", col, ph), []any{literal}, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}

func (t *Translator) regex(col string, c query.Condition) (string, []any, error) {
	op := t.D.RegexOp
	if c.CaseInsensitive && t.D.RegexOpCI != "" {
		op = t.D.RegexOpCI
	}
	if op == "" {
		return "", nil, odmerr.NewUnsupportedOperator("Regex", t.D.Name)
	}
	s, _ := c.Value.AsString()
	ph := t.nextPlaceholder()
	return fmt.Sprintf("%s %s %s", col, op, ph), []any{s}, nil
}

func (t *Translator) jsonContains(c query.Condition) (string, []any, error) {
	if t.D.JSONPath == nil {
		return "", nil, odmerr.NewUnsupportedOperator("JsonContains", t.D.Name)
	}
	parts := strings.SplitN(c.Field, ".", 2)
	if len(parts) != 2 {
		return "", nil, odmerr.NewQueryError("sqlutil: JsonContains field must be \"column.path\"", nil)
	}
	col := t.D.Quote(metadata.ColumnName(parts[0]))
	expr := t.D.JSONPath(col, parts[1])
	ph := t.nextPlaceholder()
	return fmt.Sprintf("%s = %s", expr, ph), []any{toBound(c.Value)}, nil
}

// InArrayColumn renders a containment test for a single value against an
// array field stored in a JSON-text column (spec.md §4.8's array-field
// dialect delta), for dialects that opted into JSONArrayContainsAny.
func (t *Translator) InArrayColumn(field string, v value.Value) (string, []any, error) {
	if t.D.JSONArrayContainsAny == nil {
		return "", nil, odmerr.NewUnsupportedOperator("In(array field)", t.D.Name)
	}
	ph := t.nextPlaceholder()
	return t.D.JSONArrayContainsAny(t.D.Quote(metadata.ColumnName(field)), ph), []any{toBound(v)}, nil
}

// inArrayColumn renders In([v...])/NotIn([v...]) against an array-typed
// field as an OR (for In) of per-value containment tests, negated with NOT
// for NotIn (spec.md §4.8: "In on an array field is a containment test").
func (t *Translator) inArrayColumn(col string, c query.Condition, negate bool) (string, []any, error) {
	if t.D.JSONArrayContainsAny == nil {
		return "", nil, odmerr.NewUnsupportedOperator("In(array field)", t.D.Name)
	}
	arr, ok := c.Value.AsArray()
	if !ok {
		return "", nil, odmerr.NewQueryError("sqlutil: In/NotIn requires an array value", nil)
	}
	if len(arr) == 0 {
		if negate {
			return "1=1", nil, nil
		}
		return "1=0", nil, nil
	}

	var parts []string
	var args []any
	for _, v := range arr {
		ph := t.nextPlaceholder()
		parts = append(parts, t.D.JSONArrayContainsAny(col, ph))
		args = append(args, toBound(v))
	}
	frag := "(" + strings.Join(parts, " OR ") + ")"
	if negate {
		frag = "NOT " + frag
	}
	return frag, args, nil
}

// RenderSet renders an UPDATE SET clause from ops, continuing this
// Translator's placeholder sequence so a caller can render SET then WHERE
// with the same Translator and get correctly numbered `$n` placeholders on
// dialects that need it.
func (t *Translator) RenderSet(ops []query.UpdateOperation) (string, []any, error) {
	var parts []string
	var args []any
	for _, op := range ops {
		col := t.D.Quote(metadata.ColumnName(op.Field))
		switch op.Kind {
		case query.UpdateSet:
			ph := t.nextPlaceholder()
			parts = append(parts, fmt.Sprintf("%s = %s", col, ph))
			args = append(args, toBound(op.Value))
		case query.UpdateIncrement:
			ph := t.nextPlaceholder()
			parts = append(parts, fmt.Sprintf("%s = %s + %s", col, col, ph))
			args = append(args, op.Delta)
		case query.UpdatePercentIncrease:
			ph := t.nextPlaceholder()
			parts = append(parts, fmt.Sprintf("%s = %s * (1 + %s / 100.0)", col, col, ph))
			args = append(args, op.Percent)
		case query.UpdateUnset:
			parts = append(parts, col+" = NULL")
		default:
			return "", nil, odmerr.NewQueryError("sqlutil: unsupported update kind", nil)
		}
	}
	return strings.Join(parts, ", "), args, nil
}

// OrderBy renders an ORDER BY clause, empty if sort is empty.
func (t *Translator) OrderBy(sort []query.SortField) string {
	if len(sort) == 0 {
		return ""
	}
	parts := make([]string, len(sort))
	for i, s := range sort {
		dir := "ASC"
		if s.Dir == query.Desc {
			dir = "DESC"
		}
		parts[i] = fmt.Sprintf("%s %s", t.D.Quote(metadata.ColumnName(s.Field)), dir)
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

// LimitOffset renders a LIMIT/OFFSET clause from Pagination.
func (t *Translator) LimitOffset(p *query.Pagination) string {
	if p == nil {
		return ""
	}
	if p.Limit <= 0 {
		return fmt.Sprintf("OFFSET %d", p.Skip)
	}
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit, p.Skip)
}

// toBound converts a value.Value to the native Go type used for SQL
// parameter binding: datetimes bind as ISO-8601 text (with offset suffix
// for DateTimeWithOffset, spec.md §4.7), arrays/objects/json as encoded
// JSON text, everything else as its natural Go scalar.
func toBound(v value.Value) any {
	switch v.Kind {
	case value.KindNull:
		return nil
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindInt64:
		i, _ := v.AsInt64()
		return i
	case value.KindFloat64:
		f, _ := v.AsFloat64()
		return f
	case value.KindString:
		s, _ := v.AsString()
		return s
	case value.KindBytes:
		b, _ := v.AsBytes()
		return b
	case value.KindUuid:
		u, _ := v.AsUuid()
		return u.String()
	case value.KindDateTimeUtc:
		tm, _ := v.AsTime()
		return tm.UTC().Format(time.RFC3339Nano)
	case value.KindDateTimeWithOffset:
		tm, _ := v.AsTime()
		return tm.Format(time.RFC3339Nano)
	default:
		data, err := value.MarshalCompact(v)
		if err != nil {
			return nil
		}
		return string(data)
	}
}

// ToBound exports toBound for adapters building INSERT/UPDATE statements.
func ToBound(v value.Value) any { return toBound(v) }
