package idgen

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/forbearing/godm/value"
)

// ErrIDRequired is returned by CallerSuppliedGenerator when no id was
// provided.
var ErrIDRequired = errors.New("idgen: id is required for CallerSupplied strategy")

// CallerSuppliedGenerator implements the CallerSupplied strategy: the
// caller must provide the id; its absence fails.
type CallerSuppliedGenerator struct{}

func (CallerSuppliedGenerator) Generate(_ context.Context, supplied value.Value) (value.Value, error) {
	if supplied.IsNull() {
		return value.Value{}, ErrIDRequired
	}
	return supplied, nil
}
