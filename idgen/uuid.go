package idgen

import (
	"context"

	"github.com/forbearing/godm/value"
	"github.com/google/uuid"
)

// UUIDGenerator implements the Uuid strategy: a random 128-bit id rendered
// in its canonical textual form.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate(_ context.Context, supplied value.Value) (value.Value, error) {
	if !supplied.IsNull() {
		return supplied, nil
	}
	return value.String(uuid.New().String()), nil
}
