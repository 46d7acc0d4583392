package sqlutil

import (
	"fmt"
	"strings"

	"github.com/forbearing/godm/metadata"
)

// DDL captures the dialect-specific column/constraint rendering needed for
// schema reconciliation (spec.md §4.7/§4.8): the primary-key clause for
// each id strategy, and a scalar→column-type mapping for declared fields.
type DDL struct {
	Dialect

	// PrimaryKeyClause renders the full "id" column definition for the
	// given id strategy name (config.IDStrategyName as a string, to avoid
	// an import cycle with config).
	PrimaryKeyClause func(idStrategy string) string

	// ColumnType maps a declared field type to its native column type.
	ColumnType func(ft metadata.FieldType) string

	// CreateIndexSQL renders a CREATE INDEX statement.
	CreateIndexSQL func(indexName, table string, fields []string, unique bool) string

	// DropIndexSQL renders a DROP INDEX statement (used when reconciling a
	// drifted index definition on the server dialects, spec.md §4.8).
	DropIndexSQL func(indexName, table string) string
}

// CreateTableSQL renders a CREATE TABLE statement with columns in meta's
// declaration order, primary key first (spec.md §4.7: "CREATE with columns
// in insertion order; the primary-key column is named id").
func (d DDL) CreateTableSQL(table string, meta metadata.ModelMeta, idStrategy string) string {
	var cols []string
	cols = append(cols, fmt.Sprintf("%s %s", d.Quote("id"), d.PrimaryKeyClause(idStrategy)))
	for _, f := range meta.Fields {
		if f.Name == "id" {
			continue
		}
		colType := d.ColumnType(f.Def.Type)
		col := fmt.Sprintf("%s %s", d.Quote(metadata.ColumnName(f.Name)), colType)
		if f.Def.Required {
			col += " NOT NULL"
		}
		if f.Def.Unique {
			col += " UNIQUE"
		}
		cols = append(cols, col)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.Quote(table), strings.Join(cols, ", "))
}

// ArrayFields returns the set of meta's fields declared as FieldArray, for
// populating Translator.ArrayFields so In()/NotIn() against them lowers to
// a JSON containment test rather than a plain SQL IN list.
func ArrayFields(meta metadata.ModelMeta) map[string]bool {
	out := make(map[string]bool)
	for _, f := range meta.Fields {
		if f.Def.Type.Kind == metadata.FieldArray {
			out[f.Name] = true
		}
	}
	return out
}

// ColumnFamily classifies a rendered column type into the coarse family
// spec.md §4.7 wants schema verification to compare at ("type-family
// level, not exact"): integer/float/boolean/text/other.
func ColumnFamily(sqlType string) string {
	t := strings.ToUpper(sqlType)
	switch {
	case strings.Contains(t, "INT"):
		return "integer"
	case strings.Contains(t, "FLOAT") || strings.Contains(t, "DOUBLE") || strings.Contains(t, "DECIMAL") || strings.Contains(t, "NUMERIC") || strings.Contains(t, "REAL"):
		return "float"
	case strings.Contains(t, "BOOL"):
		return "boolean"
	case strings.Contains(t, "CHAR") || strings.Contains(t, "TEXT") || strings.Contains(t, "CLOB"):
		return "text"
	default:
		return "other"
	}
}
