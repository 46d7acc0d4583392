// Package filesql implements godm's embedded file-based SQL adapter
// (spec.md §4.7) over gorm.io/driver/sqlite, mirroring forbearing/gst's
// use of *gorm.DB as the connection handle while issuing hand-built SQL
// for the dynamic, schema-registry-driven records this system deals in
// rather than gorm's struct-mapped model API.
package filesql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/forbearing/godm/adapter/sqlutil"
	"github.com/forbearing/godm/config"
	"github.com/forbearing/godm/metadata"
	"github.com/forbearing/godm/odmerr"
	"github.com/forbearing/godm/query"
	"github.com/forbearing/godm/value"
	"gorm.io/gorm"
)

var dialect = sqlutil.Dialect{
	Name:        "file_sql",
	Placeholder: func(int) string { return "?" },
	Quote:       func(ident string) string { return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"` },
	RegexOp:     "", // SQLite has no builtin REGEXP without an extension
	ILike:       "",
	JSONPath: func(col, path string) string {
		return fmt.Sprintf("json_extract(%s, '$.%s')", col, strings.ReplaceAll(path, ".", "."))
	},
	JSONArrayContainsAny: func(col, ph string) string {
		return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) WHERE json_each.value = %s)", col, ph)
	},
}

var ddl = sqlutil.DDL{
	Dialect: dialect,
	PrimaryKeyClause: func(idStrategy string) string {
		if idStrategy == string(config.IDAutoIncrement) {
			return "INTEGER PRIMARY KEY AUTOINCREMENT"
		}
		return "TEXT PRIMARY KEY"
	},
	ColumnType: func(ft metadata.FieldType) string {
		switch ft.Kind {
		case metadata.FieldInteger:
			return "INTEGER"
		case metadata.FieldFloat:
			return "REAL"
		case metadata.FieldBoolean:
			return "INTEGER"
		case metadata.FieldDateTime, metadata.FieldUuid, metadata.FieldString:
			return "TEXT"
		case metadata.FieldJSON, metadata.FieldArray, metadata.FieldReference:
			return "TEXT"
		default:
			return "TEXT"
		}
	},
	CreateIndexSQL: func(indexName, table string, fields []string, unique bool) string {
		u := ""
		if unique {
			u = "UNIQUE "
		}
		quoted := make([]string, len(fields))
		for i, f := range fields {
			quoted[i] = dialect.Quote(metadata.ColumnName(f))
		}
		return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)", u, dialect.Quote(indexName), dialect.Quote(table), strings.Join(quoted, ", "))
	},
	DropIndexSQL: func(indexName, table string) string {
		return fmt.Sprintf("DROP INDEX IF EXISTS %s", dialect.Quote(indexName))
	},
}

// Adapter implements adapter.Adapter over an embedded SQLite database.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func gormOf(conn any) (*gorm.DB, error) {
	db, ok := conn.(*gorm.DB)
	if !ok {
		return nil, odmerr.NewConnectionError("filesql: expected *gorm.DB connection", nil)
	}
	return db, nil
}

func (a *Adapter) EnsureSchema(ctx context.Context, conn any, meta metadata.ModelMeta, idStrategy config.IDStrategyName) error {
	db, err := gormOf(conn)
	if err != nil {
		return err
	}
	gdb := db.WithContext(ctx)

	var count int64
	if err := gdb.Raw(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, meta.Collection).Scan(&count).Error; err != nil {
		return odmerr.NewConnectionError("filesql: checking table existence", err)
	}

	if count == 0 {
		if err := gdb.Exec(ddl.CreateTableSQL(meta.Collection, meta, string(idStrategy))).Error; err != nil {
			return odmerr.NewQueryError("filesql: creating table "+meta.Collection, err)
		}
	} else {
		if err := verifyColumns(gdb, meta); err != nil {
			return err
		}
	}

	for _, idx := range meta.Indexes {
		name := idx.Name
		if name == "" {
			name = "idx_" + meta.Collection + "_" + strings.Join(idx.Fields, "_")
		}
		if err := gdb.Exec(ddl.CreateIndexSQL(name, meta.Collection, idx.Fields, idx.Unique)).Error; err != nil {
			return odmerr.NewQueryError("filesql: creating index "+name, err)
		}
	}
	return nil
}

func verifyColumns(gdb *gorm.DB, meta metadata.ModelMeta) error {
	rows, err := gdb.Raw(fmt.Sprintf("PRAGMA table_info(%s)", dialect.Quote(meta.Collection))).Rows()
	if err != nil {
		return odmerr.NewConnectionError("filesql: reading table_info", err)
	}
	defer rows.Close()

	actual := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return odmerr.NewConnectionError("filesql: scanning table_info", err)
		}
		actual[name] = ctype
	}

	for _, f := range meta.Fields {
		if f.Name == "id" {
			continue
		}
		actualType, ok := actual[metadata.ColumnName(f.Name)]
		if !ok {
			return odmerr.NewSchemaMismatch(meta.Collection, "missing declared column "+f.Name)
		}
		want := sqlutil.ColumnFamily(ddl.ColumnType(f.Def.Type))
		got := sqlutil.ColumnFamily(actualType)
		if want != got {
			return odmerr.NewSchemaMismatch(meta.Collection, fmt.Sprintf("column %s declared as %s, actual column family is %s", f.Name, want, got))
		}
	}
	return nil
}

func (a *Adapter) DropTable(ctx context.Context, conn any, table string) error {
	db, err := gormOf(conn)
	if err != nil {
		return err
	}
	if err := db.WithContext(ctx).Exec("DROP TABLE IF EXISTS " + dialect.Quote(table)).Error; err != nil {
		return odmerr.NewQueryError("filesql: dropping table "+table, err)
	}
	return nil
}

func (a *Adapter) TableExists(ctx context.Context, conn any, table string) (bool, error) {
	db, err := gormOf(conn)
	if err != nil {
		return false, err
	}
	var count int64
	if err := db.WithContext(ctx).Raw(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count).Error; err != nil {
		return false, odmerr.NewConnectionError("filesql: checking table existence", err)
	}
	return count > 0, nil
}

func (a *Adapter) Insert(ctx context.Context, conn any, meta metadata.ModelMeta, record map[string]value.Value) (value.Value, error) {
	db, err := gormOf(conn)
	if err != nil {
		return value.Value{}, err
	}

	var cols []string
	var phs []string
	var args []any
	for _, f := range meta.Fields {
		v, ok := record[f.Name]
		if !ok {
			continue
		}
		cols = append(cols, dialect.Quote(metadata.ColumnName(f.Name)))
		phs = append(phs, "?")
		args = append(args, sqlutil.ToBound(v))
	}

	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", dialect.Quote(meta.Collection), strings.Join(cols, ", "), strings.Join(phs, ", "))
	res := db.WithContext(ctx).Exec(sqlStr, args...)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return value.Value{}, odmerr.NewUniqueViolation(meta.Collection)
		}
		return value.Value{}, odmerr.NewQueryError("filesql: inserting into "+meta.Collection, res.Error)
	}

	if id, ok := record["id"]; ok {
		return id, nil
	}
	var lastID int64
	if err := db.WithContext(ctx).Raw("SELECT last_insert_rowid()").Scan(&lastID).Error; err != nil {
		return value.Value{}, odmerr.NewQueryError("filesql: reading last_insert_rowid", err)
	}
	return value.Int64(lastID), nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

func newTranslator(meta metadata.ModelMeta) *sqlutil.Translator {
	tr := sqlutil.NewTranslator(dialect)
	tr.ArrayFields = sqlutil.ArrayFields(meta)
	return tr
}

func (a *Adapter) Find(ctx context.Context, conn any, meta metadata.ModelMeta, cond *query.ConditionGroup, opts *query.Options) ([]map[string]value.Value, error) {
	db, err := gormOf(conn)
	if err != nil {
		return nil, err
	}

	tr := newTranslator(meta)
	where, args, err := tr.Where(cond)
	if err != nil {
		return nil, err
	}

	selectCols := "*"
	if opts != nil && len(opts.Fields) > 0 {
		quoted := make([]string, len(opts.Fields))
		for i, f := range opts.Fields {
			quoted[i] = dialect.Quote(metadata.ColumnName(f))
		}
		selectCols = strings.Join(quoted, ", ")
	}

	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s", selectCols, dialect.Quote(meta.Collection), where)
	if opts != nil {
		if ob := tr.OrderBy(opts.Sort); ob != "" {
			sqlStr += " " + ob
		}
		if lo := tr.LimitOffset(opts.Pagination); lo != "" {
			sqlStr += " " + lo
		}
	}

	rows, err := db.WithContext(ctx).Raw(sqlStr, args...).Rows()
	if err != nil {
		return nil, odmerr.NewQueryError("filesql: querying "+meta.Collection, err)
	}
	defer rows.Close()
	return scanRows(rows, meta)
}

func scanRows(rows *sql.Rows, meta metadata.ModelMeta) ([]map[string]value.Value, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, odmerr.NewQueryError("filesql: reading result columns", err)
	}

	fieldNames := make([]string, len(cols))
	for i, c := range cols {
		fieldNames[i] = metadata.FieldNameForColumn(meta, c)
	}

	var out []map[string]value.Value
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, odmerr.NewQueryError("filesql: scanning row", err)
		}
		record := make(map[string]value.Value, len(cols))
		for i, name := range fieldNames {
			ft := metadata.FieldType{Kind: metadata.FieldString}
			if name == "id" {
				ft = metadata.FieldType{Kind: metadata.FieldString}
			} else if fd, ok := meta.Field(name); ok {
				ft = fd.Type
			}
			v, err := sqlutil.FromColumn(raw[i], ft)
			if err != nil {
				return nil, odmerr.NewSerializationError("filesql: coercing column "+name, err)
			}
			record[name] = v
		}
		out = append(out, record)
	}
	return out, nil
}

func (a *Adapter) FindByID(ctx context.Context, conn any, meta metadata.ModelMeta, id string) (map[string]value.Value, bool, error) {
	cond := query.Single(query.Condition{Field: "id", Op: query.Eq, Value: value.String(id)})
	recs, err := a.Find(ctx, conn, meta, &cond, &query.Options{Pagination: &query.Pagination{Limit: 1}})
	if err != nil {
		return nil, false, err
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	return recs[0], true, nil
}

func (a *Adapter) Update(ctx context.Context, conn any, meta metadata.ModelMeta, cond *query.ConditionGroup, ops []query.UpdateOperation) (int64, error) {
	db, err := gormOf(conn)
	if err != nil {
		return 0, err
	}

	tr := newTranslator(meta)
	setClause, setArgs, err := tr.RenderSet(ops)
	if err != nil {
		return 0, err
	}
	if setClause == "" {
		return 0, nil
	}

	// WHERE is rendered with the same Translator so placeholder numbering
	// continues after the SET clause's, which matters for dialectb's `$n`.
	where, whereArgs, err := tr.Where(cond)
	if err != nil {
		return 0, err
	}

	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s", dialect.Quote(meta.Collection), setClause, where)
	res := db.WithContext(ctx).Exec(sqlStr, append(setArgs, whereArgs...)...)
	if res.Error != nil {
		return 0, odmerr.NewQueryError("filesql: updating "+meta.Collection, res.Error)
	}
	return res.RowsAffected, nil
}

func (a *Adapter) UpdateByID(ctx context.Context, conn any, meta metadata.ModelMeta, id string, ops []query.UpdateOperation) (bool, error) {
	cond := query.Single(query.Condition{Field: "id", Op: query.Eq, Value: value.String(id)})
	n, err := a.Update(ctx, conn, meta, &cond, ops)
	return n > 0, err
}

func (a *Adapter) Delete(ctx context.Context, conn any, meta metadata.ModelMeta, cond *query.ConditionGroup) (int64, error) {
	db, err := gormOf(conn)
	if err != nil {
		return 0, err
	}
	tr := newTranslator(meta)
	where, args, err := tr.Where(cond)
	if err != nil {
		return 0, err
	}
	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s", dialect.Quote(meta.Collection), where)
	res := db.WithContext(ctx).Exec(sqlStr, args...)
	if res.Error != nil {
		return 0, odmerr.NewQueryError("filesql: deleting from "+meta.Collection, res.Error)
	}
	return res.RowsAffected, nil
}

func (a *Adapter) DeleteByID(ctx context.Context, conn any, meta metadata.ModelMeta, id string) (bool, error) {
	cond := query.Single(query.Condition{Field: "id", Op: query.Eq, Value: value.String(id)})
	n, err := a.Delete(ctx, conn, meta, &cond)
	return n > 0, err
}

func (a *Adapter) Count(ctx context.Context, conn any, meta metadata.ModelMeta, cond *query.ConditionGroup) (int64, error) {
	db, err := gormOf(conn)
	if err != nil {
		return 0, err
	}
	tr := newTranslator(meta)
	where, args, err := tr.Where(cond)
	if err != nil {
		return 0, err
	}
	var n int64
	sqlStr := fmt.Sprintf("SELECT count(*) FROM %s WHERE %s", dialect.Quote(meta.Collection), where)
	if err := db.WithContext(ctx).Raw(sqlStr, args...).Scan(&n).Error; err != nil {
		return 0, odmerr.NewQueryError("filesql: counting "+meta.Collection, err)
	}
	return n, nil
}

func (a *Adapter) ServerVersion(ctx context.Context, conn any) (string, error) {
	db, err := gormOf(conn)
	if err != nil {
		return "", err
	}
	var v string
	if err := db.WithContext(ctx).Raw("SELECT sqlite_version()").Scan(&v).Error; err != nil {
		return "", odmerr.NewConnectionError("filesql: reading server version", err)
	}
	return v, nil
}
