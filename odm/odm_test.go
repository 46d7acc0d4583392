package odm

import (
	"context"
	"testing"

	"github.com/forbearing/godm/config"
	"github.com/forbearing/godm/metadata"
	"github.com/forbearing/godm/query"
	"github.com/forbearing/godm/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These exercise the facade end-to-end against the embedded file-based
// SQL backend, following forbearing/gst's database_test.go convention of
// driving real (in-memory) sqlite handles rather than mocking the driver
// at the facade layer.

func userMeta() metadata.ModelMeta {
	return metadata.ModelMeta{
		Collection: "users",
		Fields: []metadata.FieldEntry{
			{Name: "id", Def: metadata.FieldDefinition{Type: metadata.FieldType{Kind: metadata.FieldString}}},
			{Name: "name", Def: metadata.FieldDefinition{Type: metadata.FieldType{Kind: metadata.FieldString}, Required: true}},
			{Name: "age", Def: metadata.FieldDefinition{Type: metadata.FieldType{Kind: metadata.FieldInteger}}},
		},
	}
}

func newTestODM(t *testing.T) *ODM {
	t.Helper()
	o := New()
	require.NoError(t, o.AddDatabase(config.DatabaseConfig{
		Alias:      "default",
		Kind:       config.FileSQL,
		Connection: "file:" + t.Name() + "?mode=memory&cache=shared",
		IDStrategy: config.IDUUID,
	}))
	require.NoError(t, o.RegisterModel(userMeta()))
	t.Cleanup(func() { _ = o.Shutdown(context.Background()) })
	return o
}

func TestCreateThenFindByIDRoundTrips(t *testing.T) {
	o := newTestODM(t)
	ctx := context.Background()

	id, err := o.Create(ctx, "", "users", map[string]value.Value{
		"name": value.String("ada"),
		"age":  value.Int64(30),
	})
	require.NoError(t, err)
	idStr, ok := id.AsString()
	require.True(t, ok)
	assert.NotEmpty(t, idStr)

	rec, found, err := o.FindByID(ctx, "", "users", idStr)
	require.NoError(t, err)
	require.True(t, found)
	name, _ := rec["name"].AsString()
	assert.Equal(t, "ada", name)
}

func TestCreateMissingRequiredFieldFails(t *testing.T) {
	o := newTestODM(t)
	_, err := o.Create(context.Background(), "", "users", map[string]value.Value{
		"age": value.Int64(1),
	})
	assert.Error(t, err)
}

func TestUpdateIncrementsAtomically(t *testing.T) {
	o := newTestODM(t)
	ctx := context.Background()

	id, err := o.Create(ctx, "", "users", map[string]value.Value{"name": value.String("bob"), "age": value.Int64(10)})
	require.NoError(t, err)
	idStr, _ := id.AsString()

	found, err := o.UpdateByID(ctx, "", "users", idStr, []query.UpdateOperation{query.Increment("age", 5)})
	require.NoError(t, err)
	assert.True(t, found)

	rec, _, err := o.FindByID(ctx, "", "users", idStr)
	require.NoError(t, err)
	age, _ := rec["age"].AsInt64()
	assert.Equal(t, int64(15), age)
}

func TestDeleteByIDRemovesRecord(t *testing.T) {
	o := newTestODM(t)
	ctx := context.Background()

	id, err := o.Create(ctx, "", "users", map[string]value.Value{"name": value.String("cid")})
	require.NoError(t, err)
	idStr, _ := id.AsString()

	found, err := o.DeleteByID(ctx, "", "users", idStr)
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = o.FindByID(ctx, "", "users", idStr)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCountAndExists(t *testing.T) {
	o := newTestODM(t)
	ctx := context.Background()

	for _, name := range []string{"x", "y", "z"} {
		_, err := o.Create(ctx, "", "users", map[string]value.Value{"name": value.String(name)})
		require.NoError(t, err)
	}

	n, err := o.Count(ctx, "", "users", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	cond := query.Single(query.Condition{Field: "name", Op: query.Eq, Value: value.String("y")})
	exists, err := o.Exists(ctx, "", "users", &cond)
	require.NoError(t, err)
	assert.True(t, exists)

	missing := query.Single(query.Condition{Field: "name", Op: query.Eq, Value: value.String("nope")})
	exists, err = o.Exists(ctx, "", "users", &missing)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUnregisteredCollectionFails(t *testing.T) {
	o := newTestODM(t)
	_, err := o.Create(context.Background(), "", "ghosts", map[string]value.Value{})
	assert.Error(t, err)
}

func TestSetDefaultAliasRejectsUnknownAlias(t *testing.T) {
	o := newTestODM(t)
	err := o.SetDefaultAlias("nope")
	assert.Error(t, err)
}

func TestGetCacheStatsFalseWhenNoCacheConfigured(t *testing.T) {
	o := newTestODM(t)
	stats, ok := o.GetCacheStats("default")
	assert.False(t, ok)
	assert.Zero(t, stats)
}

func TestCreateTableForModelIsIdempotent(t *testing.T) {
	o := newTestODM(t)
	ctx := context.Background()
	require.NoError(t, o.CreateTableForModel(ctx, "users"))
	require.NoError(t, o.CreateTableForModel(ctx, "users"))

	exists, err := o.TableExists(ctx, "", "users")
	require.NoError(t, err)
	assert.True(t, exists)
}
