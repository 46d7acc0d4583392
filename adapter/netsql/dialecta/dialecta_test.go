package dialecta

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
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: db, SkipInitializeWithVersion: true}), &gorm.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return gdb, mock
}

func orderMeta() metadata.ModelMeta {
	return metadata.ModelMeta{
		Collection: "orders",
		Alias:      "mysql_main",
		Fields: []metadata.FieldEntry{
			{Name: "id", Def: metadata.FieldDefinition{Type: metadata.FieldType{Kind: metadata.FieldInteger}}},
			{Name: "sku", Def: metadata.FieldDefinition{Type: metadata.FieldType{Kind: metadata.FieldString}, Required: true}},
			{Name: "qty", Def: metadata.FieldDefinition{Type: metadata.FieldType{Kind: metadata.FieldInteger}}},
		},
	}
}

func TestEnsureSchemaCreatesTableWithAutoIncrementKey(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM information_schema.tables`).
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`CREATE TABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT DISTINCT index_name FROM information_schema.statistics`).
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"index_name"}))

	a := New()
	err := a.EnsureSchema(context.Background(), gdb, orderMeta(), config.IDAutoIncrement)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertReturnsLastInsertID(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO `orders`").WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery(`SELECT LAST_INSERT_ID\(\)`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	a := New()
	id, err := a.Insert(context.Background(), gdb, orderMeta(), map[string]value.Value{"sku": value.String("SKU-1"), "qty": value.Int64(3)})
	require.NoError(t, err)
	got, _ := id.AsInt64()
	assert.Equal(t, int64(42), got)
}

func TestEqualityDoesNotWrapInLowerBecauseOfColumnCollation(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectQuery("SELECT \\* FROM `orders` WHERE `sku` = \\?").
		WithArgs("sku-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "sku", "qty"}))

	cond := query.Single(query.Condition{Field: "sku", Op: query.Eq, Value: value.String("sku-1"), CaseInsensitive: true})
	a := New()
	_, err := a.Find(context.Background(), gdb, orderMeta(), &cond, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegexUsesRegexpOperator(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectQuery("SELECT \\* FROM `orders` WHERE `sku` REGEXP \\?").
		WithArgs("^SKU").
		WillReturnRows(sqlmock.NewRows([]string{"id", "sku", "qty"}))

	cond := query.Single(query.Condition{Field: "sku", Op: query.Regex, Value: value.String("^SKU")})
	a := New()
	_, err := a.Find(context.Background(), gdb, orderMeta(), &cond, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteByIDRemovesOneRow(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectExec("DELETE FROM `orders` WHERE `id` = \\?").WithArgs("o1").WillReturnResult(sqlmock.NewResult(0, 1))

	a := New()
	ok, err := a.DeleteByID(context.Background(), gdb, orderMeta(), "o1")
	require.NoError(t, err)
	assert.True(t, ok)
}
