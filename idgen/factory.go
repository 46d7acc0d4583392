package idgen

import "github.com/forbearing/godm/odmerr"

// SnowflakeConfig configures the Snowflake strategy per alias.
type SnowflakeConfig struct {
	MachineID    int64
	DatacenterID int64
}

// New constructs the Generator for a configured strategy. collection and
// counter are only consulted for StrategyAutoIncrement against a
// document-store alias (counter may be nil for SQL aliases).
func New(strategy Strategy, snowflake SnowflakeConfig, collection string, counter Counter) (Generator, error) {
	switch strategy {
	case StrategyAutoIncrement:
		return &AutoIncrementGenerator{Collection: collection, Counter: counter}, nil
	case StrategyUUID:
		return UUIDGenerator{}, nil
	case StrategySnowflake:
		return NewSnowflakeGenerator(snowflake.DatacenterID, snowflake.MachineID)
	case StrategyObjectID:
		return &ObjectIDGenerator{}, nil
	case StrategyCallerSupplied:
		return CallerSuppliedGenerator{}, nil
	default:
		return nil, odmerr.NewConfigError("idgen: unknown strategy")
	}
}
