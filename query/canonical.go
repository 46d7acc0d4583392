package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/forbearing/godm/value"
)

// Canonicalize renders a ConditionGroup + Options into a stable string
// form: condition fields are sorted lexically within each AND/OR group,
// numeric literals are normalized to a fixed representation, and the
// projection/sort/pagination are appended. This is the input the cache
// package hashes into a fingerprint (spec.md §4.5.1); it deliberately does
// not hash the alias/collection/kind/version_tag — callers prepend those.
func Canonicalize(g *ConditionGroup, opts *Options) string {
	var b strings.Builder
	writeGroup(&b, g)
	b.WriteString("|opts:")
	writeOptions(&b, opts)
	return b.String()
}

func writeGroup(b *strings.Builder, g *ConditionGroup) {
	if g == nil {
		b.WriteString("-")
		return
	}
	if g.IsLeaf() {
		writeCondition(b, *g.Leaf)
		return
	}
	children := make([]string, len(g.Children))
	for i := range g.Children {
		var cb strings.Builder
		writeGroup(&cb, &g.Children[i])
		children[i] = cb.String()
	}
	sort.Strings(children)
	logic := "AND"
	if g.Logic == Or {
		logic = "OR"
	}
	b.WriteString(logic)
	b.WriteString("(")
	b.WriteString(strings.Join(children, ","))
	b.WriteString(")")
}

func writeCondition(b *strings.Builder, c Condition) {
	fmt.Fprintf(b, "%s%s%s", c.Field, c.Op, canonicalValue(c.Value))
	if c.CaseInsensitive {
		b.WriteString("/i")
	}
}

func canonicalValue(v value.Value) string {
	switch v.Kind {
	case value.KindInt64:
		i, _ := v.AsInt64()
		return fmt.Sprintf("i:%d", i)
	case value.KindFloat64:
		f, _ := v.AsFloat64()
		// normalize numeric literals: always render floats with a fixed
		// precision (%.10g). Int64 and Float64 keep distinct prefixes, so
		// Int64(1) ("i:1") and Float64(1.0) ("f:1") render differently.
		return fmt.Sprintf("f:%.10g", f)
	case value.KindArray:
		arr, _ := v.AsArray()
		parts := make([]string, len(arr))
		for i, e := range arr {
			parts[i] = canonicalValue(e)
		}
		sort.Strings(parts)
		return "[" + strings.Join(parts, ",") + "]"
	default:
		data, err := value.MarshalPyO3(v)
		if err != nil {
			return "err"
		}
		return string(data)
	}
}

func writeOptions(b *strings.Builder, opts *Options) {
	if opts == nil {
		b.WriteString("-")
		return
	}
	for _, s := range opts.Sort {
		dir := "asc"
		if s.Dir == Desc {
			dir = "desc"
		}
		fmt.Fprintf(b, "s:%s:%s;", s.Field, dir)
	}
	if opts.Pagination != nil {
		fmt.Fprintf(b, "p:%d:%d;", opts.Pagination.Skip, opts.Pagination.Limit)
	}
	fields := append([]string(nil), opts.Fields...)
	sort.Strings(fields)
	fmt.Fprintf(b, "fields:%s", strings.Join(fields, ","))
}
