package filesql

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/forbearing/godm/config"
	"github.com/forbearing/godm/metadata"
	"github.com/forbearing/godm/odmerr"
	"github.com/forbearing/godm/query"
	"github.com/forbearing/godm/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectQuery("select sqlite_version()").WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("3.45.0"))

	gdb, err := gorm.Open(sqlite.New(sqlite.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return gdb, mock
}

func userMeta() metadata.ModelMeta {
	return metadata.ModelMeta{
		Collection: "users",
		Alias:      "default",
		Fields: []metadata.FieldEntry{
			{Name: "id", Def: metadata.FieldDefinition{Type: metadata.FieldType{Kind: metadata.FieldUuid}}},
			{Name: "name", Def: metadata.FieldDefinition{Type: metadata.FieldType{Kind: metadata.FieldString}, Required: true}},
			{Name: "age", Def: metadata.FieldDefinition{Type: metadata.FieldType{Kind: metadata.FieldInteger}}},
		},
	}
}

func TestEnsureSchemaCreatesTableWhenAbsent(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM sqlite_master`).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`CREATE TABLE`).WillReturnResult(sqlmock.NewResult(0, 0))

	a := New()
	err := a.EnsureSchema(context.Background(), gdb, userMeta(), config.IDUUID)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertReturnsGeneratedRowID(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectExec(`INSERT INTO "users"`).WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery(`SELECT last_insert_rowid\(\)`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	a := New()
	record := map[string]value.Value{
		"name": value.String("ada"),
		"age":  value.Int64(30),
	}
	id, err := a.Insert(context.Background(), gdb, userMeta(), record)
	require.NoError(t, err)
	got, _ := id.AsInt64()
	assert.Equal(t, int64(7), got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMapsUniqueConstraintViolation(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectExec(`INSERT INTO "users"`).WillReturnError(errors.New("UNIQUE constraint failed: users.name"))

	a := New()
	_, err := a.Insert(context.Background(), gdb, userMeta(), map[string]value.Value{"name": value.String("ada")})
	require.Error(t, err)
	var uv *odmerr.UniqueViolation
	assert.ErrorAs(t, err, &uv)
}

func TestFindTranslatesConditionsAndScansRows(t *testing.T) {
	gdb, mock := newMockDB(t)
	rows := sqlmock.NewRows([]string{"id", "name", "age"}).
		AddRow("u1", "ada", int64(30)).
		AddRow("u2", "grace", int64(40))
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE "age" >= \?`).WithArgs(int64(18)).WillReturnRows(rows)

	cond := query.Single(query.Condition{Field: "age", Op: query.Gte, Value: value.Int64(18)})
	a := New()
	recs, err := a.Find(context.Background(), gdb, userMeta(), &cond, nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	name, _ := recs[0]["name"].AsString()
	assert.Equal(t, "ada", name)
}

func TestFindByIDReturnsNotFoundWhenNoRowMatches(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE "id" = \?`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}))

	a := New()
	_, found, err := a.FindByID(context.Background(), gdb, userMeta(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUpdateAppliesIncrementAtomically(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectExec(`UPDATE "users" SET "age" = "age" \+ \? WHERE "id" = \?`).
		WithArgs(float64(1), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	cond := query.Single(query.Condition{Field: "id", Op: query.Eq, Value: value.String("u1")})
	a := New()
	n, err := a.Update(context.Background(), gdb, userMeta(), &cond, []query.UpdateOperation{query.Increment("age", 1)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeleteByIDReportsWhetherARowWasRemoved(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectExec(`DELETE FROM "users" WHERE "id" = \?`).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))

	a := New()
	ok, err := a.DeleteByID(context.Background(), gdb, userMeta(), "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCountRendersWhereClauseAndScansScalar(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "users" WHERE "name" LIKE \? ESCAPE '\\'`).
		WithArgs("ada%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	cond := query.Single(query.Condition{Field: "name", Op: query.StartsWith, Value: value.String("ada")})
	a := New()
	n, err := a.Count(context.Background(), gdb, userMeta(), &cond)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRegexIsUnsupportedOnEmbeddedSQLite(t *testing.T) {
	gdb, _ := newMockDB(t)
	cond := query.Single(query.Condition{Field: "name", Op: query.Regex, Value: value.String("^a")})
	a := New()
	_, err := a.Find(context.Background(), gdb, userMeta(), &cond, nil)
	require.Error(t, err)
}
