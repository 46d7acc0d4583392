package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMeta() ModelMeta {
	return ModelMeta{
		Collection: "users",
		Fields: []FieldEntry{
			{Name: "id", Def: FieldDefinition{Type: FieldType{Kind: FieldUuid}, Required: true}},
			{Name: "name", Def: FieldDefinition{Type: FieldType{Kind: FieldString}, Required: true}},
		},
		Indexes: []IndexDefinition{{Fields: []string{"name"}, Unique: false}},
	}
}

func TestRegisterIdempotent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(sampleMeta()))
	require.NoError(t, r.Register(sampleMeta()))

	got, ok := r.Get("users")
	require.True(t, ok)
	assert.Equal(t, "users", got.Collection)
}

func TestRegisterConflict(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(sampleMeta()))

	other := sampleMeta()
	other.Fields[1].Def.Required = false
	err := r.Register(other)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflictingRegistration)
}

func TestGetMissing(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nope")
	assert.False(t, ok)
}
