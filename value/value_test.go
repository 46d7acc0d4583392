package value

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPyO3RoundTrip(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	id := uuid.New()

	cases := []Value{
		Null(),
		Bool(true),
		Int64(42),
		Float64(3.5),
		String("ada"),
		Bytes([]byte("hello")),
		Uuid(id),
		DateTimeUtc(now),
		DateTimeWithOffset(now, "+02:00"),
		Array([]Value{Int64(1), Null(), String("x")}),
		Object(map[string]Value{"a": Int64(1), "b": Null()}),
		JSON(map[string]any{"x": float64(1)}),
	}

	for _, c := range cases {
		data, err := MarshalPyO3(c)
		require.NoError(t, err)
		back, err := UnmarshalPyO3(data)
		require.NoError(t, err)
		assert.True(t, Equal(c, back), "round trip mismatch for kind %v: %s", c.Kind, data)
	}
}

func TestPyO3PreservesNullOptionalType(t *testing.T) {
	data, err := MarshalPyO3(Null())
	require.NoError(t, err)
	assert.JSONEq(t, `{"Null":null}`, string(data))
}

func TestInferFromLexical(t *testing.T) {
	v := InferFromLexical(float64(10))
	i, ok := v.AsInt64()
	require.True(t, ok)
	assert.Equal(t, int64(10), i)

	v = InferFromLexical("not-a-uuid")
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "not-a-uuid", s)
}

func TestEqualDifferentKinds(t *testing.T) {
	assert.False(t, Equal(Int64(1), String("1")))
}
