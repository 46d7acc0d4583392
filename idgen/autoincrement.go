package idgen

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/forbearing/godm/value"
)

// Counter is implemented by a backend that can hand out a monotonically
// increasing numeric id via an atomic find-and-modify, which is how
// spec.md §4.2 requires the document-store adapter to synthesize
// AutoIncrement ids (there is no native autoincrement column to lean on).
type Counter interface {
	Next(ctx context.Context, collection string) (int64, error)
}

// AutoIncrementGenerator implements the AutoIncrement strategy. For SQL
// backends it returns value.Null() so the adapter knows to rely on the
// backend's own autoincrement/serial column and read the generated key back
// after INSERT; for a document-store alias a Counter must be supplied, and
// Generate consults the reserved counter collection instead.
type AutoIncrementGenerator struct {
	Collection string
	Counter    Counter // nil for SQL backends
}

func (g *AutoIncrementGenerator) Generate(ctx context.Context, supplied value.Value) (value.Value, error) {
	if !supplied.IsNull() {
		return supplied, nil
	}
	if g.Counter == nil {
		// SQL backend: defer to the native autoincrement/serial column.
		return value.Null(), nil
	}
	next, err := g.Counter.Next(ctx, g.Collection)
	if err != nil {
		return value.Value{}, errors.Wrap(err, "idgen: autoincrement counter")
	}
	return value.Int64(next), nil
}
