package query

import (
	"testing"

	"github.com/forbearing/godm/value"
	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeSortsFieldsWithinGroup(t *testing.T) {
	g1 := Group(And,
		Single(Condition{Field: "b", Op: Eq, Value: value.Int64(1)}),
		Single(Condition{Field: "a", Op: Eq, Value: value.Int64(2)}),
	)
	g2 := Group(And,
		Single(Condition{Field: "a", Op: Eq, Value: value.Int64(2)}),
		Single(Condition{Field: "b", Op: Eq, Value: value.Int64(1)}),
	)
	assert.Equal(t, Canonicalize(&g1, nil), Canonicalize(&g2, nil))
}

func TestCanonicalizeDiffersOnOp(t *testing.T) {
	g1 := Single(Condition{Field: "a", Op: Eq, Value: value.Int64(1)})
	g2 := Single(Condition{Field: "a", Op: Ne, Value: value.Int64(1)})
	assert.NotEqual(t, Canonicalize(&g1, nil), Canonicalize(&g2, nil))
}

func TestCanonicalizeIncludesProjectionAndPagination(t *testing.T) {
	g := Single(Condition{Field: "a", Op: Eq, Value: value.Int64(1)})
	o1 := &Options{Fields: []string{"x", "y"}}
	o2 := &Options{Fields: []string{"y", "x"}}
	assert.Equal(t, Canonicalize(&g, o1), Canonicalize(&g, o2))

	o3 := &Options{Pagination: &Pagination{Skip: 0, Limit: 10}}
	o4 := &Options{Pagination: &Pagination{Skip: 0, Limit: 20}}
	assert.NotEqual(t, Canonicalize(&g, o3), Canonicalize(&g, o4))
}
