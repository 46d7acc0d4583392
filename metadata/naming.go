package metadata

import "github.com/stoewer/go-strcase"

// ColumnName normalizes a declared field name into the snake_case form
// used as the actual SQL column name, mirroring the naming convention
// forbearing/gst applies to struct field names throughout its database
// layer. The SQL adapters (adapter/filesql, adapter/netsql/*) and the
// shared AST translator (adapter/sqlutil) quote every column/index
// identifier through this function; document-store records have no fixed
// columns and keep field names as-is.
func ColumnName(field string) string {
	return strcase.SnakeCase(field)
}

// FieldNameForColumn reverses ColumnName against meta's declared fields, so
// a driver-reported column name maps back to the field name record maps
// are keyed by throughout this package. Columns with no declared field
// (only "id", whose name is already its own snake_case form) pass through
// unchanged.
func FieldNameForColumn(meta ModelMeta, column string) string {
	for _, f := range meta.Fields {
		if ColumnName(f.Name) == column {
			return f.Name
		}
	}
	return column
}
