// Package query defines the backend-neutral query/update AST: conditions,
// groups, sort, pagination, and update operations. It carries no backend
// hints; every adapter translates the same AST into its own native query
// form, and operators not implementable by a given backend are rejected
// with odmerr.UnsupportedOperator rather than silently approximated.
package query

import "github.com/forbearing/godm/value"

// Op enumerates the supported condition operators (spec.md §6, complete set).
type Op int

const (
	Eq Op = iota
	Ne
	Gt
	Gte
	Lt
	Lte
	In
	NotIn
	Contains
	StartsWith
	EndsWith
	Regex
	IsNull
	IsNotNull
	JsonContains
	Exists
)

func (o Op) String() string {
	switch o {
	case Eq:
		return "Eq"
	case Ne:
		return "Ne"
	case Gt:
		return "Gt"
	case Gte:
		return "Gte"
	case Lt:
		return "Lt"
	case Lte:
		return "Lte"
	case In:
		return "In"
	case NotIn:
		return "NotIn"
	case Contains:
		return "Contains"
	case StartsWith:
		return "StartsWith"
	case EndsWith:
		return "EndsWith"
	case Regex:
		return "Regex"
	case IsNull:
		return "IsNull"
	case IsNotNull:
		return "IsNotNull"
	case JsonContains:
		return "JsonContains"
	case Exists:
		return "Exists"
	default:
		return "Unknown"
	}
}

// Condition is one leaf predicate: field OP value.
type Condition struct {
	Field           string
	Op              Op
	Value           value.Value
	CaseInsensitive bool
}

// LogicOp is the boolean combinator for a ConditionGroup.
type LogicOp int

const (
	And LogicOp = iota
	Or
)

// ConditionGroup is either a single leaf Condition or a nested group of
// children combined with And/Or. Nesting is unbounded.
type ConditionGroup struct {
	Leaf     *Condition
	Logic    LogicOp
	Children []ConditionGroup
}

// Single builds a leaf ConditionGroup.
func Single(c Condition) ConditionGroup {
	return ConditionGroup{Leaf: &c}
}

// Group builds a combinator ConditionGroup.
func Group(op LogicOp, children ...ConditionGroup) ConditionGroup {
	return ConditionGroup{Logic: op, Children: children}
}

// IsLeaf reports whether g is a single condition rather than a group.
func (g ConditionGroup) IsLeaf() bool { return g.Leaf != nil }

// SortDirection is the sort order for one SortField.
type SortDirection int

const (
	Asc SortDirection = iota
	Desc
)

// SortField is one entry in an ordered ORDER BY / sort spec.
type SortField struct {
	Field string
	Dir   SortDirection
}

// Pagination is a skip/limit window over the result set.
type Pagination struct {
	Skip  int
	Limit int
}

// Options carries sort, pagination, and projection for a find/count.
type Options struct {
	Sort       []SortField
	Pagination *Pagination
	Fields     []string // projection; empty means all fields
}

// UpdateKind enumerates the supported update operation variants.
type UpdateKind int

const (
	UpdateSet UpdateKind = iota
	UpdateIncrement
	UpdatePercentIncrease
	UpdateUnset
)

// UpdateOperation is one field mutation. Increment and PercentIncrease are
// atomic at the backend level (translate to SQL `col = col + ?` / `col =
// col * (1 + ?/100)` or Mongo `$inc`/`$mul`, never read-modify-write in
// application code).
type UpdateOperation struct {
	Kind    UpdateKind
	Field   string
	Value   value.Value // Set
	Delta   float64     // Increment
	Percent float64     // PercentIncrease
}

func Set(field string, v value.Value) UpdateOperation {
	return UpdateOperation{Kind: UpdateSet, Field: field, Value: v}
}

func Increment(field string, delta float64) UpdateOperation {
	return UpdateOperation{Kind: UpdateIncrement, Field: field, Delta: delta}
}

func PercentIncrease(field string, percent float64) UpdateOperation {
	return UpdateOperation{Kind: UpdatePercentIncrease, Field: field, Percent: percent}
}

func Unset(field string) UpdateOperation {
	return UpdateOperation{Kind: UpdateUnset, Field: field}
}
