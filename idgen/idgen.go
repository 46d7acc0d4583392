// Package idgen implements the five id-generation strategies spec.md §4.2
// names: AutoIncrement, Uuid, Snowflake, ObjectId, and CallerSupplied. A
// Generator is invoked on create before dispatch; the generated id is
// returned to the caller after backend confirmation.
package idgen

import (
	"context"

	"github.com/forbearing/godm/value"
)

// Generator produces a primary-key Value for one create operation.
// supplied is the caller-provided id value (value.Null() if none was
// given); backends that synthesize their own key (AutoIncrement on a
// document store, for instance) still go through Generator so the ODM
// facade has one uniform seam, even though some strategies return a
// sentinel asking the adapter to generate the value itself (see
// AutoIncrementGenerator in autoincrement.go).
type Generator interface {
	Generate(ctx context.Context, supplied value.Value) (value.Value, error)
}

// Strategy names the configured id strategy for an alias, matching
// spec.md's enumeration.
type Strategy int

const (
	StrategyAutoIncrement Strategy = iota
	StrategyUUID
	StrategySnowflake
	StrategyObjectID
	StrategyCallerSupplied
)
