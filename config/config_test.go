package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseConfigValidateAppliesDefaults(t *testing.T) {
	c := &DatabaseConfig{Alias: "primary", Connection: "file::memory:"}
	require.NoError(t, c.Validate())
	assert.Equal(t, 1, c.Pool.Min)
	assert.Equal(t, 10, c.Pool.Max)
	assert.Equal(t, IDStrategyName("uuid"), c.IDStrategy)
}

func TestDatabaseConfigValidateRejectsEmptyAlias(t *testing.T) {
	c := &DatabaseConfig{Connection: "x"}
	require.Error(t, c.Validate())
}

func TestDatabaseConfigValidateSnowflakeRange(t *testing.T) {
	c := &DatabaseConfig{
		Alias: "a", Connection: "x", IDStrategy: IDSnowflake,
		Snowflake: SnowflakeConfig{MachineID: 99, DatacenterID: 1},
	}
	require.Error(t, c.Validate())
}
