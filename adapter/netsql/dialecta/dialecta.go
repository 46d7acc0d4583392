// Package dialecta implements godm's networked SQL adapter for the
// MySQL-family dialect (spec.md §4.8, dialect A): `?` placeholders, a
// dialect autoincrement keyword on the primary key, `REGEXP` for regex
// matching, and per-column collation for case-insensitive equality. It
// shares its AST translation and DDL rendering with adapter/filesql and
// adapter/netsql/dialectb through adapter/sqlutil.
package dialecta

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

// ciCollation is applied to the text-id, Uuid and String columns (DateTime
// columns are plain VARCHAR(64) without it) so Eq/Ne comparisons on them
// are case-insensitive at the database level (spec.md §4.8: "A sets
// per-column collation at CREATE"), without the translator having to wrap
// both sides in LOWER(...).
const ciCollation = "utf8mb4_0900_ai_ci"

var dialect = sqlutil.Dialect{
	Name:                   "net_sql_a",
	Placeholder:            func(int) string { return "?" },
	Quote:                  func(ident string) string { return "`" + strings.ReplaceAll(ident, "`", "``") + "`" },
	RegexOp:                "REGEXP",
	RegexOpCI:              "REGEXP", // the ci collation already makes REGEXP case-insensitive
	ILike:                  "",
	CIEqualityViaCollation: true,
	JSONPath: func(col, path string) string {
		return fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(%s, '$.%s'))", col, path)
	},
	JSONArrayContainsAny: func(col, ph string) string {
		return fmt.Sprintf("JSON_CONTAINS(%s, JSON_ARRAY(%s))", col, ph)
	},
}

var ddl = sqlutil.DDL{
	Dialect: dialect,
	PrimaryKeyClause: func(idStrategy string) string {
		if idStrategy == string(config.IDAutoIncrement) {
			return "BIGINT PRIMARY KEY AUTO_INCREMENT"
		}
		return fmt.Sprintf("VARCHAR(191) COLLATE %s PRIMARY KEY", ciCollation)
	},
	ColumnType: func(ft metadata.FieldType) string {
		switch ft.Kind {
		case metadata.FieldInteger:
			return "BIGINT"
		case metadata.FieldFloat:
			return "DOUBLE"
		case metadata.FieldBoolean:
			return "TINYINT(1)"
		case metadata.FieldDateTime:
			return "VARCHAR(64)"
		case metadata.FieldUuid:
			return fmt.Sprintf("VARCHAR(36) COLLATE %s", ciCollation)
		case metadata.FieldString:
			return fmt.Sprintf("VARCHAR(1024) COLLATE %s", ciCollation)
		case metadata.FieldJSON, metadata.FieldArray, metadata.FieldReference:
			return "JSON"
		default:
			return fmt.Sprintf("VARCHAR(1024) COLLATE %s", ciCollation)
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
		return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", u, dialect.Quote(indexName), dialect.Quote(table), strings.Join(quoted, ", "))
	},
	DropIndexSQL: func(indexName, table string) string {
		return fmt.Sprintf("DROP INDEX %s ON %s", dialect.Quote(indexName), dialect.Quote(table))
	},
}

// Adapter implements adapter.Adapter over a MySQL-family server.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func gormOf(conn any) (*gorm.DB, error) {
	db, ok := conn.(*gorm.DB)
	if !ok {
		return nil, odmerr.NewConnectionError("dialecta: expected *gorm.DB connection", nil)
	}
	return db, nil
}

func newTranslator(meta metadata.ModelMeta) *sqlutil.Translator {
	tr := sqlutil.NewTranslator(dialect)
	tr.ArrayFields = sqlutil.ArrayFields(meta)
	return tr
}

func (a *Adapter) EnsureSchema(ctx context.Context, conn any, meta metadata.ModelMeta, idStrategy config.IDStrategyName) error {
	db, err := gormOf(conn)
	if err != nil {
		return err
	}
	gdb := db.WithContext(ctx)

	var count int64
	if err := gdb.Raw(`SELECT count(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`, meta.Collection).Scan(&count).Error; err != nil {
		return odmerr.NewConnectionError("dialecta: checking table existence", err)
	}

	if count == 0 {
		if err := gdb.Exec(ddl.CreateTableSQL(meta.Collection, meta, string(idStrategy))).Error; err != nil {
			return odmerr.NewQueryError("dialecta: creating table "+meta.Collection, err)
		}
	} else if err := verifyColumns(gdb, meta); err != nil {
		return err
	}

	return reconcileIndexes(gdb, meta)
}

func verifyColumns(gdb *gorm.DB, meta metadata.ModelMeta) error {
	rows, err := gdb.Raw(`SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ?`, meta.Collection).Rows()
	if err != nil {
		return odmerr.NewConnectionError("dialecta: reading column metadata", err)
	}
	defer rows.Close()

	actual := make(map[string]string)
	for rows.Next() {
		var name, dtype string
		if err := rows.Scan(&name, &dtype); err != nil {
			return odmerr.NewConnectionError("dialecta: scanning column metadata", err)
		}
		actual[name] = dtype
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

// reconcileIndexes creates every declared index in meta.Indexes that is
// missing from the table. An index already present under its declared name
// is left as it is: its columns and uniqueness are not compared with the
// declaration, so a drifted definition is neither dropped nor recreated.
func reconcileIndexes(gdb *gorm.DB, meta metadata.ModelMeta) error {
	rows, err := gdb.Raw(`SELECT DISTINCT index_name FROM information_schema.statistics WHERE table_schema = DATABASE() AND table_name = ? AND index_name != 'PRIMARY'`, meta.Collection).Rows()
	if err != nil {
		return odmerr.NewConnectionError("dialecta: reading existing indexes", err)
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			existing[name] = true
		}
	}
	rows.Close()

	for _, idx := range meta.Indexes {
		name := idx.Name
		if name == "" {
			name = "idx_" + meta.Collection + "_" + strings.Join(idx.Fields, "_")
		}
		if existing[name] {
			delete(existing, name)
			continue // index present under its declared name; assumed current
		}
		if err := gdb.Exec(ddl.CreateIndexSQL(name, meta.Collection, idx.Fields, idx.Unique)).Error; err != nil {
			return odmerr.NewQueryError("dialecta: creating index "+name, err)
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
		return odmerr.NewQueryError("dialecta: dropping table "+table, err)
	}
	return nil
}

func (a *Adapter) TableExists(ctx context.Context, conn any, table string) (bool, error) {
	db, err := gormOf(conn)
	if err != nil {
		return false, err
	}
	var count int64
	if err := db.WithContext(ctx).Raw(`SELECT count(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`, table).Scan(&count).Error; err != nil {
		return false, odmerr.NewConnectionError("dialecta: checking table existence", err)
	}
	return count > 0, nil
}

func (a *Adapter) Insert(ctx context.Context, conn any, meta metadata.ModelMeta, record map[string]value.Value) (value.Value, error) {
	db, err := gormOf(conn)
	if err != nil {
		return value.Value{}, err
	}

	var cols, phs []string
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
		return value.Value{}, odmerr.NewQueryError("dialecta: inserting into "+meta.Collection, res.Error)
	}

	if id, ok := record["id"]; ok {
		return id, nil
	}
	var lastID int64
	if err := db.WithContext(ctx).Raw("SELECT LAST_INSERT_ID()").Scan(&lastID).Error; err != nil {
		return value.Value{}, odmerr.NewQueryError("dialecta: reading LAST_INSERT_ID", err)
	}
	return value.Int64(lastID), nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "duplicate entry") || strings.Contains(strings.ToLower(err.Error()), "1062")
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
		return nil, odmerr.NewQueryError("dialecta: querying "+meta.Collection, err)
	}
	defer rows.Close()
	return scanRows(rows, meta)
}

func scanRows(rows *sql.Rows, meta metadata.ModelMeta) ([]map[string]value.Value, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, odmerr.NewQueryError("dialecta: reading result columns", err)
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
			return nil, odmerr.NewQueryError("dialecta: scanning row", err)
		}
		record := make(map[string]value.Value, len(cols))
		for i, name := range fieldNames {
			ft := metadata.FieldType{Kind: metadata.FieldString}
			if fd, ok := meta.Field(name); ok {
				ft = fd.Type
			}
			v, err := sqlutil.FromColumn(raw[i], ft)
			if err != nil {
				return nil, odmerr.NewSerializationError("dialecta: coercing column "+name, err)
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

	where, whereArgs, err := tr.Where(cond)
	if err != nil {
		return 0, err
	}

	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s", dialect.Quote(meta.Collection), setClause, where)
	res := db.WithContext(ctx).Exec(sqlStr, append(setArgs, whereArgs...)...)
	if res.Error != nil {
		return 0, odmerr.NewQueryError("dialecta: updating "+meta.Collection, res.Error)
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
		return 0, odmerr.NewQueryError("dialecta: deleting from "+meta.Collection, res.Error)
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
		return 0, odmerr.NewQueryError("dialecta: counting "+meta.Collection, err)
	}
	return n, nil
}

func (a *Adapter) ServerVersion(ctx context.Context, conn any) (string, error) {
	db, err := gormOf(conn)
	if err != nil {
		return "", err
	}
	var v string
	if err := db.WithContext(ctx).Raw("SELECT VERSION()").Scan(&v).Error; err != nil {
		return "", odmerr.NewConnectionError("dialecta: reading server version", err)
	}
	return v, nil
}
