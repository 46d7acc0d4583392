// Package dialectb implements godm's networked SQL adapter for the
// Postgres-family dialect (spec.md §4.8, dialect B): `$n` placeholders, a
// sequence-backed autoincrement primary key, `~`/`~*` for regex matching,
// and `ILIKE` for case-insensitive pattern matches (`LOWER(...)` for
// equality). It shares AST translation and DDL rendering with
// adapter/filesql and adapter/netsql/dialecta through adapter/sqlutil.
package dialectb

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
	Name:        "net_sql_b",
	Placeholder: func(i int) string { return fmt.Sprintf("$%d", i) },
	Quote:       func(ident string) string { return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"` },
	RegexOp:     "~",
	RegexOpCI:   "~*",
	ILike:       "ILIKE",
	JSONPath: func(col, path string) string {
		return fmt.Sprintf("%s::jsonb ->> '%s'", col, path)
	},
	JSONArrayContainsAny: func(col, ph string) string {
		return fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_array_elements_text(%s::jsonb) elem WHERE elem = %s)", col, ph)
	},
}

var ddl = sqlutil.DDL{
	Dialect: dialect,
	PrimaryKeyClause: func(idStrategy string) string {
		if idStrategy == string(config.IDAutoIncrement) {
			return "BIGSERIAL PRIMARY KEY"
		}
		return "TEXT PRIMARY KEY"
	},
	ColumnType: func(ft metadata.FieldType) string {
		switch ft.Kind {
		case metadata.FieldInteger:
			return "BIGINT"
		case metadata.FieldFloat:
			return "DOUBLE PRECISION"
		case metadata.FieldBoolean:
			return "BOOLEAN"
		case metadata.FieldDateTime, metadata.FieldUuid, metadata.FieldString:
			return "TEXT"
		case metadata.FieldJSON, metadata.FieldArray, metadata.FieldReference:
			return "JSONB"
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
		return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", u, dialect.Quote(indexName), dialect.Quote(table), strings.Join(quoted, ", "))
	},
	DropIndexSQL: func(indexName, table string) string {
		return fmt.Sprintf("DROP INDEX IF EXISTS %s", dialect.Quote(indexName))
	},
}

// Adapter implements adapter.Adapter over a Postgres-family server.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func gormOf(conn any) (*gorm.DB, error) {
	db, ok := conn.(*gorm.DB)
	if !ok {
		return nil, odmerr.NewConnectionError("dialectb: expected *gorm.DB connection", nil)
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
	if err := gdb.Raw(`SELECT count(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1`, meta.Collection).Scan(&count).Error; err != nil {
		return odmerr.NewConnectionError("dialectb: checking table existence", err)
	}

	if count == 0 {
		if err := gdb.Exec(ddl.CreateTableSQL(meta.Collection, meta, string(idStrategy))).Error; err != nil {
			return odmerr.NewQueryError("dialectb: creating table "+meta.Collection, err)
		}
	} else if err := verifyColumns(gdb, meta); err != nil {
		return err
	}

	return reconcileIndexes(gdb, meta)
}

func verifyColumns(gdb *gorm.DB, meta metadata.ModelMeta) error {
	rows, err := gdb.Raw(`SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1`, meta.Collection).Rows()
	if err != nil {
		return odmerr.NewConnectionError("dialectb: reading column metadata", err)
	}
	defer rows.Close()

	actual := make(map[string]string)
	for rows.Next() {
		var name, dtype string
		if err := rows.Scan(&name, &dtype); err != nil {
			return odmerr.NewConnectionError("dialectb: scanning column metadata", err)
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

// reconcileIndexes treats meta.Indexes as authoritative, per spec.md §4.8:
// any index whose declared definition drifted from what's on the server is
// dropped and recreated rather than left alone.
func reconcileIndexes(gdb *gorm.DB, meta metadata.ModelMeta) error {
	rows, err := gdb.Raw(`SELECT indexname, indexdef FROM pg_indexes WHERE schemaname = current_schema() AND tablename = $1`, meta.Collection).Rows()
	if err != nil {
		return odmerr.NewConnectionError("dialectb: reading existing indexes", err)
	}
	existingDef := make(map[string]string)
	for rows.Next() {
		var name, def string
		if err := rows.Scan(&name, &def); err == nil {
			existingDef[name] = def
		}
	}
	rows.Close()

	for _, idx := range meta.Indexes {
		name := idx.Name
		if name == "" {
			name = "idx_" + meta.Collection + "_" + strings.Join(idx.Fields, "_")
		}
		wantDDL := ddl.CreateIndexSQL(name, meta.Collection, idx.Fields, idx.Unique)
		if def, ok := existingDef[name]; ok {
			if indexMatches(def, idx) {
				continue
			}
			if err := gdb.Exec(ddl.DropIndexSQL(name, meta.Collection)).Error; err != nil {
				return odmerr.NewQueryError("dialectb: dropping drifted index "+name, err)
			}
		}
		if err := gdb.Exec(wantDDL).Error; err != nil {
			return odmerr.NewQueryError("dialectb: creating index "+name, err)
		}
	}
	return nil
}

// indexMatches is a conservative drift check: it only compares the
// declared field list against the index definition's column list, not
// every storage-level detail.
func indexMatches(existingDef string, idx metadata.IndexDefinition) bool {
	start := strings.Index(existingDef, "(")
	end := strings.LastIndex(existingDef, ")")
	if start < 0 || end <= start {
		return false
	}
	cols := strings.Split(existingDef[start+1:end], ",")
	if len(cols) != len(idx.Fields) {
		return false
	}
	for i, c := range cols {
		if strings.TrimSpace(strings.Trim(c, `"`)) != metadata.ColumnName(idx.Fields[i]) {
			return false
		}
	}
	return true
}

func (a *Adapter) DropTable(ctx context.Context, conn any, table string) error {
	db, err := gormOf(conn)
	if err != nil {
		return err
	}
	if err := db.WithContext(ctx).Exec("DROP TABLE IF EXISTS " + dialect.Quote(table)).Error; err != nil {
		return odmerr.NewQueryError("dialectb: dropping table "+table, err)
	}
	return nil
}

func (a *Adapter) TableExists(ctx context.Context, conn any, table string) (bool, error) {
	db, err := gormOf(conn)
	if err != nil {
		return false, err
	}
	var count int64
	if err := db.WithContext(ctx).Raw(`SELECT count(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1`, table).Scan(&count).Error; err != nil {
		return false, odmerr.NewConnectionError("dialectb: checking table existence", err)
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
	i := 0
	for _, f := range meta.Fields {
		v, ok := record[f.Name]
		if !ok {
			continue
		}
		i++
		cols = append(cols, dialect.Quote(metadata.ColumnName(f.Name)))
		phs = append(phs, dialect.Placeholder(i))
		args = append(args, sqlutil.ToBound(v))
	}

	hasID := false
	if _, ok := record["id"]; ok {
		hasID = true
	}

	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", dialect.Quote(meta.Collection), strings.Join(cols, ", "), strings.Join(phs, ", "))
	if !hasID {
		sqlStr += " RETURNING " + dialect.Quote("id")
	}

	if hasID {
		if err := db.WithContext(ctx).Exec(sqlStr, args...).Error; err != nil {
			if isUniqueViolation(err) {
				return value.Value{}, odmerr.NewUniqueViolation(meta.Collection)
			}
			return value.Value{}, odmerr.NewQueryError("dialectb: inserting into "+meta.Collection, err)
		}
		return record["id"], nil
	}

	var newID int64
	if err := db.WithContext(ctx).Raw(sqlStr, args...).Scan(&newID).Error; err != nil {
		if isUniqueViolation(err) {
			return value.Value{}, odmerr.NewUniqueViolation(meta.Collection)
		}
		return value.Value{}, odmerr.NewQueryError("dialectb: inserting into "+meta.Collection, err)
	}
	return value.Int64(newID), nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "23505") || strings.Contains(strings.ToLower(err.Error()), "duplicate key value")
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
		return nil, odmerr.NewQueryError("dialectb: querying "+meta.Collection, err)
	}
	defer rows.Close()
	return scanRows(rows, meta)
}

func scanRows(rows *sql.Rows, meta metadata.ModelMeta) ([]map[string]value.Value, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, odmerr.NewQueryError("dialectb: reading result columns", err)
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
			return nil, odmerr.NewQueryError("dialectb: scanning row", err)
		}
		record := make(map[string]value.Value, len(cols))
		for i, name := range fieldNames {
			ft := metadata.FieldType{Kind: metadata.FieldString}
			if fd, ok := meta.Field(name); ok {
				ft = fd.Type
			}
			v, err := sqlutil.FromColumn(raw[i], ft)
			if err != nil {
				return nil, odmerr.NewSerializationError("dialectb: coercing column "+name, err)
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
		return 0, odmerr.NewQueryError("dialectb: updating "+meta.Collection, res.Error)
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
		return 0, odmerr.NewQueryError("dialectb: deleting from "+meta.Collection, res.Error)
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
		return 0, odmerr.NewQueryError("dialectb: counting "+meta.Collection, err)
	}
	return n, nil
}

func (a *Adapter) ServerVersion(ctx context.Context, conn any) (string, error) {
	db, err := gormOf(conn)
	if err != nil {
		return "", err
	}
	var v string
	if err := db.WithContext(ctx).Raw("SHOW server_version").Scan(&v).Error; err != nil {
		return "", odmerr.NewConnectionError("dialectb: reading server version", err)
	}
	return v, nil
}
