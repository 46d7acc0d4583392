// Package metadata holds the declared schema for every collection/table
// godm knows about: field types, constraints, indexes, and the database
// alias a collection is routed to. It is consulted by the serializer and
// every adapter for type coercion, CREATE column ordering, and index
// creation.
package metadata

import "github.com/forbearing/godm/value"

// FieldKind enumerates the supported field type families.
type FieldKind int

const (
	FieldString FieldKind = iota
	FieldInteger
	FieldFloat
	FieldBoolean
	FieldDateTime
	FieldUuid
	FieldJSON
	FieldArray
	FieldReference
)

// FieldType describes the declared type of a single field, including the
// per-kind constraints spec.md §3 enumerates. Only the members relevant to
// Kind are meaningful.
type FieldType struct {
	Kind FieldKind

	// String
	MaxLen *int
	MinLen *int
	Regex  string

	// Integer / Float
	Min *float64
	Max *float64

	// DateTime: "+HH:MM" / "-HH:MM"; "+00:00" means UTC.
	TZOffset string

	// Array
	Item    *FieldType
	ArrMax  *int
	ArrMin  *int

	// Reference
	Collection string
}

// FieldDefinition is one declared field of a model.
type FieldDefinition struct {
	Type     FieldType
	Required bool
	Unique   bool
	Indexed  bool
	Default  *value.Value
}

// IndexDefinition describes a (possibly compound) index. Fields is an
// ordered sequence; compound indexes treat it as an ordered prefix.
type IndexDefinition struct {
	Fields []string
	Unique bool
	Name   string
}

// FieldEntry preserves field declaration order, which CREATE TABLE column
// ordering depends on.
type FieldEntry struct {
	Name string
	Def  FieldDefinition
}

// ModelMeta is the declared schema for one collection/table.
type ModelMeta struct {
	Collection  string
	Alias       string
	Fields      []FieldEntry
	Indexes     []IndexDefinition
	Description string
}

// Field looks up a field declaration by name, preserving the caller's
// expectation that unknown fields simply aren't found.
func (m ModelMeta) Field(name string) (FieldDefinition, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f.Def, true
		}
	}
	return FieldDefinition{}, false
}

// FieldNames returns field names in declaration order.
func (m ModelMeta) FieldNames() []string {
	out := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		out[i] = f.Name
	}
	return out
}

// Equal reports whether two ModelMeta values are identical in every
// respect relevant to idempotent re-registration.
func (m ModelMeta) Equal(o ModelMeta) bool {
	if m.Collection != o.Collection || m.Alias != o.Alias || m.Description != o.Description {
		return false
	}
	if len(m.Fields) != len(o.Fields) || len(m.Indexes) != len(o.Indexes) {
		return false
	}
	for i := range m.Fields {
		if m.Fields[i].Name != o.Fields[i].Name {
			return false
		}
		if !fieldDefEqual(m.Fields[i].Def, o.Fields[i].Def) {
			return false
		}
	}
	for i := range m.Indexes {
		if !indexEqual(m.Indexes[i], o.Indexes[i]) {
			return false
		}
	}
	return true
}

func fieldDefEqual(a, b FieldDefinition) bool {
	if a.Required != b.Required || a.Unique != b.Unique || a.Indexed != b.Indexed {
		return false
	}
	if !fieldTypeEqual(a.Type, b.Type) {
		return false
	}
	if (a.Default == nil) != (b.Default == nil) {
		return false
	}
	if a.Default != nil && !value.Equal(*a.Default, *b.Default) {
		return false
	}
	return true
}

func fieldTypeEqual(a, b FieldType) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case FieldString:
		return intPtrEqual(a.MaxLen, b.MaxLen) && intPtrEqual(a.MinLen, b.MinLen) && a.Regex == b.Regex
	case FieldInteger, FieldFloat:
		return floatPtrEqual(a.Min, b.Min) && floatPtrEqual(a.Max, b.Max)
	case FieldDateTime:
		return a.TZOffset == b.TZOffset
	case FieldArray:
		if (a.Item == nil) != (b.Item == nil) {
			return false
		}
		if a.Item != nil && !fieldTypeEqual(*a.Item, *b.Item) {
			return false
		}
		return intPtrEqual(a.ArrMax, b.ArrMax) && intPtrEqual(a.ArrMin, b.ArrMin)
	case FieldReference:
		return a.Collection == b.Collection
	default:
		return true
	}
}

func indexEqual(a, b IndexDefinition) bool {
	if a.Unique != b.Unique || a.Name != b.Name || len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i] != b.Fields[i] {
			return false
		}
	}
	return true
}

func intPtrEqual(a, b *int) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func floatPtrEqual(a, b *float64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}
