package dialectb

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/forbearing/godm/config"
	"github.com/forbearing/godm/metadata"
	"github.com/forbearing/godm/query"
	"github.com/forbearing/godm/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db, PreferSimpleProtocol: true}), &gorm.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return gdb, mock
}

func eventMeta() metadata.ModelMeta {
	return metadata.ModelMeta{
		Collection: "events",
		Alias:      "postgres_main",
		Fields: []metadata.FieldEntry{
			{Name: "id", Def: metadata.FieldDefinition{Type: metadata.FieldType{Kind: metadata.FieldInteger}}},
			{Name: "name", Def: metadata.FieldDefinition{Type: metadata.FieldType{Kind: metadata.FieldString}, Required: true}},
		},
	}
}

func TestEnsureSchemaCreatesTableWithSequenceKey(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM information_schema.tables`).
		WithArgs("events").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`CREATE TABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT indexname, indexdef FROM pg_indexes`).
		WithArgs("events").
		WillReturnRows(sqlmock.NewRows([]string{"indexname", "indexdef"}))

	a := New()
	err := a.EnsureSchema(context.Background(), gdb, eventMeta(), config.IDAutoIncrement)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertUsesReturningForGeneratedID(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectQuery(`INSERT INTO "events" \("name"\) VALUES \(\$1\) RETURNING "id"`).
		WithArgs("launch").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

	a := New()
	id, err := a.Insert(context.Background(), gdb, eventMeta(), map[string]value.Value{"name": value.String("launch")})
	require.NoError(t, err)
	got, _ := id.AsInt64()
	assert.Equal(t, int64(9), got)
}

func TestCaseInsensitivePatternUsesILike(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT \* FROM "events" WHERE "name" ILIKE \$1 ESCAPE '\\'`).
		WithArgs("%launch%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	cond := query.Single(query.Condition{Field: "name", Op: query.Contains, Value: value.String("launch"), CaseInsensitive: true})
	a := New()
	_, err := a.Find(context.Background(), gdb, eventMeta(), &cond, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseInsensitiveEqualityLowersBothSides(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT \* FROM "events" WHERE LOWER\("name"\) = LOWER\(\$1\)`).
		WithArgs("launch").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	cond := query.Single(query.Condition{Field: "name", Op: query.Eq, Value: value.String("launch"), CaseInsensitive: true})
	a := New()
	_, err := a.Find(context.Background(), gdb, eventMeta(), &cond, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegexCaseInsensitiveUsesTildeStarOperator(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT \* FROM "events" WHERE "name" ~\* \$1`).
		WithArgs("^launch").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	cond := query.Single(query.Condition{Field: "name", Op: query.Regex, Value: value.String("^launch"), CaseInsensitive: true})
	a := New()
	_, err := a.Find(context.Background(), gdb, eventMeta(), &cond, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
