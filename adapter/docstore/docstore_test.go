package docstore

import (
	"testing"

	"github.com/forbearing/godm/metadata"
	"github.com/forbearing/godm/query"
	"github.com/forbearing/godm/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// mongo-driver has no sqlmock equivalent for exercising a live connection,
// so these tests drive the pure AST/document translation functions
// directly rather than a *mongo.Database round-trip.

func TestTranslateFilterRewritesIDAndCombinesWithAnd(t *testing.T) {
	cond := query.Group(query.And,
		query.Single(query.Condition{Field: "id", Op: query.Eq, Value: value.String("u1")}),
		query.Single(query.Condition{Field: "age", Op: query.Gte, Value: value.Int64(18)}),
	)
	filter, err := translateFilter(&cond)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$and": []bson.M{
		{reservedID: "u1"},
		{"age": bson.M{"$gte": int64(18)}},
	}}, filter)
}

func TestTranslateFilterOrGroup(t *testing.T) {
	cond := query.Group(query.Or,
		query.Single(query.Condition{Field: "status", Op: query.Eq, Value: value.String("a")}),
		query.Single(query.Condition{Field: "status", Op: query.Eq, Value: value.String("b")}),
	)
	filter, err := translateFilter(&cond)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$or": []bson.M{
		{"status": "a"},
		{"status": "b"},
	}}, filter)
}

func TestTranslateFilterInAndNotIn(t *testing.T) {
	in := query.Single(query.Condition{Field: "tag", Op: query.In, Value: value.Array([]value.Value{value.String("x"), value.String("y")})})
	filter, err := translateFilter(&in)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"tag": bson.M{"$in": bson.A{"x", "y"}}}, filter)

	notIn := query.Single(query.Condition{Field: "tag", Op: query.NotIn, Value: value.Array([]value.Value{value.String("x")})})
	filter, err = translateFilter(&notIn)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"tag": bson.M{"$nin": bson.A{"x"}}}, filter)
}

func TestTranslateFilterStartsWithAnchorsRegexAndEscapesMeta(t *testing.T) {
	cond := query.Single(query.Condition{Field: "name", Op: query.StartsWith, Value: value.String("a.b"), CaseInsensitive: true})
	filter, err := translateFilter(&cond)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"name": bson.M{"$regex": `^a\.b`, "$options": "i"}}, filter)
}

func TestTranslateFilterEndsWith(t *testing.T) {
	cond := query.Single(query.Condition{Field: "name", Op: query.EndsWith, Value: value.String("tail")})
	filter, err := translateFilter(&cond)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"name": bson.M{"$regex": `tail$`}}, filter)
}

func TestTranslateFilterIsNullAndIsNotNull(t *testing.T) {
	isNull := query.Single(query.Condition{Field: "deletedAt", Op: query.IsNull})
	filter, err := translateFilter(&isNull)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"deletedAt": nil}, filter)

	isNotNull := query.Single(query.Condition{Field: "deletedAt", Op: query.IsNotNull})
	filter, err = translateFilter(&isNotNull)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"deletedAt": bson.M{"$ne": nil}}, filter)
}

func TestTranslateFilterJsonContainsUsesDottedPath(t *testing.T) {
	cond := query.Single(query.Condition{Field: "meta.region", Op: query.JsonContains, Value: value.String("us-east")})
	filter, err := translateFilter(&cond)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"meta.region": "us-east"}, filter)
}

func TestTranslateUpdateBuildsSetIncMulUnset(t *testing.T) {
	ops := []query.UpdateOperation{
		query.Set("name", value.String("renamed")),
		query.Increment("views", 1),
		query.PercentIncrease("price", 10),
		query.Unset("draft"),
	}
	update, err := translateUpdate(ops)
	require.NoError(t, err)
	assert.Equal(t, bson.M{
		"$set":   bson.M{"name": "renamed"},
		"$inc":   bson.M{"views": float64(1)},
		"$mul":   bson.M{"price": 1.1},
		"$unset": bson.M{"draft": ""},
	}, update)
}

func TestTranslateUpdateSetRewritesIDField(t *testing.T) {
	ops := []query.UpdateOperation{query.Set("id", value.String("new-id"))}
	update, err := translateUpdate(ops)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$set": bson.M{reservedID: "new-id"}}, update)
}

func TestTranslateUpdateEmptyOpsReturnsNil(t *testing.T) {
	update, err := translateUpdate(nil)
	require.NoError(t, err)
	assert.Nil(t, update)
}

func TestFromDocumentRenamesReservedIDAndCoercesDeclaredFields(t *testing.T) {
	meta := metadata.ModelMeta{
		Collection: "users",
		Fields: []metadata.FieldEntry{
			{Name: "id", Def: metadata.FieldDefinition{Type: metadata.FieldType{Kind: metadata.FieldString}}},
			{Name: "age", Def: metadata.FieldDefinition{Type: metadata.FieldType{Kind: metadata.FieldInteger}}},
		},
	}
	doc := bson.M{reservedID: "u1", "age": int32(30)}
	rec := fromDocument(doc, meta)

	id, ok := rec["id"].AsString()
	require.True(t, ok)
	assert.Equal(t, "u1", id)

	age, ok := rec["age"].AsInt64()
	require.True(t, ok)
	assert.Equal(t, int64(30), age)
}

func TestFromDocumentRenamesReservedIDInsideNestedDocument(t *testing.T) {
	doc := bson.M{reservedID: "u1", "profile": bson.M{reservedID: "p1", "bio": "hi"}}
	rec := fromDocument(doc, metadata.ModelMeta{})

	profile, ok := rec["profile"].AsObject()
	require.True(t, ok)
	innerID, ok := profile["id"].AsString()
	require.True(t, ok)
	assert.Equal(t, "p1", innerID)
}

func TestToBSONConvertsArraysAndObjects(t *testing.T) {
	v := value.Array([]value.Value{value.Int64(1), value.String("a")})
	native := toBSON(v)
	assert.Equal(t, bson.A{int64(1), "a"}, native)

	o := value.Object(map[string]value.Value{"k": value.Bool(true)})
	nativeObj := toBSON(o)
	assert.Equal(t, bson.M{"k": true}, nativeObj)
}
