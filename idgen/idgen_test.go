package idgen

import (
	"context"
	"testing"
	"time"

	"github.com/forbearing/godm/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDGeneratorDistinct(t *testing.T) {
	g := UUIDGenerator{}
	a, err := g.Generate(context.Background(), value.Null())
	require.NoError(t, err)
	b, err := g.Generate(context.Background(), value.Null())
	require.NoError(t, err)
	as, _ := a.AsString()
	bs, _ := b.AsString()
	assert.NotEqual(t, as, bs)
}

func TestCallerSuppliedRequiresID(t *testing.T) {
	g := CallerSuppliedGenerator{}
	_, err := g.Generate(context.Background(), value.Null())
	require.ErrorIs(t, err, ErrIDRequired)

	v, err := g.Generate(context.Background(), value.String("abc"))
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "abc", s)
}

func TestSnowflakeMonotonicAndDistinct(t *testing.T) {
	g, err := NewSnowflakeGenerator(1, 1)
	require.NoError(t, err)

	const n = 10000
	seen := make(map[int64]struct{}, n)
	var prev int64 = -1
	for i := 0; i < n; i++ {
		v, err := g.Generate(context.Background(), value.Null())
		require.NoError(t, err)
		id, _ := v.AsInt64()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate snowflake id: %d", id)
		}
		seen[id] = struct{}{}
		assert.GreaterOrEqual(t, id, prev)
		prev = id
	}
}

func TestSnowflakeRejectsOutOfRangeIDs(t *testing.T) {
	_, err := NewSnowflakeGenerator(32, 0)
	require.Error(t, err)
	_, err = NewSnowflakeGenerator(0, 32)
	require.Error(t, err)
}

func TestSnowflakeAbsorbsSmallClockRegression(t *testing.T) {
	g, err := NewSnowflakeGenerator(1, 1)
	require.NoError(t, err)

	base := time.Now()
	calls := 0
	g.nowFunc = func() time.Time {
		calls++
		if calls == 1 {
			return base
		}
		return base.Add(-2 * time.Millisecond)
	}

	first, err := g.Generate(context.Background(), value.Null())
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), value.Null())
	require.NoError(t, err)

	id1, _ := first.AsInt64()
	id2, _ := second.AsInt64()
	assert.Greater(t, id2, id1)
}

func TestSnowflakeFatalOnLargeClockRegression(t *testing.T) {
	g, err := NewSnowflakeGenerator(1, 1)
	require.NoError(t, err)

	base := time.Now()
	calls := 0
	g.nowFunc = func() time.Time {
		calls++
		if calls == 1 {
			return base
		}
		return base.Add(-100 * time.Millisecond)
	}

	_, err = g.Generate(context.Background(), value.Null())
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), value.Null())
	require.Error(t, err)
}

func TestObjectIDIs24HexAndDistinct(t *testing.T) {
	g := &ObjectIDGenerator{}
	a, err := g.Generate(context.Background(), value.Null())
	require.NoError(t, err)
	b, err := g.Generate(context.Background(), value.Null())
	require.NoError(t, err)
	as, _ := a.AsString()
	bs, _ := b.AsString()
	assert.Len(t, as, 24)
	assert.NotEqual(t, as, bs)
}
