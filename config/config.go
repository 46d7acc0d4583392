// Package config defines godm's configuration types (DatabaseConfig,
// PoolConfig, CacheConfig, spec.md §3) and an optional file-backed loader
// built the way forbearing/gst's config package is: viper for layered
// sources, go-viper/encoding/ini for the ini format, and creasty/defaults
// for struct default tags.
package config

import (
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	ini "github.com/go-viper/encoding/ini"
	"github.com/spf13/viper"
)

// BackendKind enumerates the four supported storage families.
type BackendKind int

const (
	FileSQL BackendKind = iota
	NetSQLA
	NetSQLB
	DocStore
)

func (k BackendKind) String() string {
	switch k {
	case FileSQL:
		return "file_sql"
	case NetSQLA:
		return "net_sql_a"
	case NetSQLB:
		return "net_sql_b"
	case DocStore:
		return "doc_store"
	default:
		return "unknown"
	}
}

// IDStrategyName mirrors idgen.Strategy without importing idgen, so config
// has no dependency on id-generation internals.
type IDStrategyName string

const (
	IDAutoIncrement   IDStrategyName = "auto_increment"
	IDUUID            IDStrategyName = "uuid"
	IDSnowflake       IDStrategyName = "snowflake"
	IDObjectID        IDStrategyName = "object_id"
	IDCallerSupplied  IDStrategyName = "caller_supplied"
)

// SnowflakeConfig configures the Snowflake id strategy for an alias.
type SnowflakeConfig struct {
	MachineID    int64 `mapstructure:"machine_id" ini:"machine_id"`
	DatacenterID int64 `mapstructure:"datacenter_id" ini:"datacenter_id"`
}

// PoolConfig configures a connection pool (spec.md §3).
type PoolConfig struct {
	Min               int           `mapstructure:"min" ini:"min" default:"1"`
	Max               int           `mapstructure:"max" ini:"max" default:"10"`
	AcquireTimeout    time.Duration `mapstructure:"acquire_timeout" ini:"acquire_timeout" default:"5s"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" ini:"idle_timeout" default:"5m"`
	MaxLifetime       time.Duration `mapstructure:"max_lifetime" ini:"max_lifetime" default:"30m"`
	MaxRetries        int           `mapstructure:"max_retries" ini:"max_retries" default:"3"`
	RetryInterval     time.Duration `mapstructure:"retry_interval" ini:"retry_interval" default:"100ms"`
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval" ini:"keepalive_interval" default:"30s"`
	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout" ini:"health_check_timeout" default:"2s"`
}

// TTLConfig configures cache expiry (spec.md §3, CacheConfig.ttl).
type TTLConfig struct {
	Default       time.Duration `mapstructure:"default" ini:"default" default:"5m"`
	Max           time.Duration `mapstructure:"max" ini:"max" default:"1h"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" ini:"sweep_interval" default:"30s"`
}

// CompressionConfig configures L2 compression.
type CompressionConfig struct {
	Enabled  bool   `mapstructure:"enabled" ini:"enabled" default:"true"`
	Algo     string `mapstructure:"algo" ini:"algo" default:"zstd"`
	MinBytes int    `mapstructure:"min_bytes" ini:"min_bytes" default:"1024"`
}

// L1Config configures the in-memory LRU tier.
type L1Config struct {
	MaxEntries int  `mapstructure:"max_entries" ini:"max_entries" default:"10000"`
	MaxBytes   int64 `mapstructure:"max_bytes" ini:"max_bytes" default:"67108864"`
	Stats      bool `mapstructure:"stats" ini:"stats" default:"true"`
}

// L2Config configures the on-disk tier. A nil *L2Config on CacheConfig
// means L2 is disabled entirely (no filesystem writes), per spec.md's Open
// Question resolution recorded in SPEC_FULL.md §9.
type L2Config struct {
	Dir               string `mapstructure:"dir" ini:"dir"`
	MaxBytes          int64  `mapstructure:"max_bytes" ini:"max_bytes" default:"536870912"`
	CompressionLevel  int    `mapstructure:"compression_level" ini:"compression_level" default:"3"`
	WAL               bool   `mapstructure:"wal" ini:"wal" default:"false"`
	ClearOnStartup    bool   `mapstructure:"clear_on_startup" ini:"clear_on_startup" default:"false"`
}

// CacheConfig configures the two-tier cache for one alias (spec.md §3).
type CacheConfig struct {
	Enabled     bool               `mapstructure:"enabled" ini:"enabled" default:"false"`
	Policy      string             `mapstructure:"policy" ini:"policy" default:"lru"`
	L1          L1Config           `mapstructure:"l1" ini:"l1"`
	L2          *L2Config          `mapstructure:"l2" ini:"l2"`
	TTL         TTLConfig          `mapstructure:"ttl" ini:"ttl"`
	Compression CompressionConfig  `mapstructure:"compression" ini:"compression"`
	VersionTag  string             `mapstructure:"version_tag" ini:"version_tag"`
}

// DatabaseConfig describes one configured backend alias (spec.md §3).
type DatabaseConfig struct {
	Alias      string          `mapstructure:"alias" ini:"alias"`
	Kind       BackendKind     `mapstructure:"-" ini:"-"`
	Connection string          `mapstructure:"connection" ini:"connection"`
	Pool       PoolConfig      `mapstructure:"pool" ini:"pool"`
	IDStrategy IDStrategyName  `mapstructure:"id_strategy" ini:"id_strategy" default:"uuid"`
	Snowflake  SnowflakeConfig `mapstructure:"snowflake" ini:"snowflake"`
	Cache      *CacheConfig    `mapstructure:"cache" ini:"cache"`
}

// Validate applies defaults and sanity-checks a DatabaseConfig, mirroring
// forbearing/gst's use of creasty/defaults ahead of any use of a config
// struct.
func (c *DatabaseConfig) Validate() error {
	if err := defaults.Set(c); err != nil {
		return errors.Wrap(err, "config: applying defaults")
	}
	if c.Alias == "" {
		return errors.New("config: alias must not be empty")
	}
	if c.Connection == "" {
		return errors.New("config: connection must not be empty")
	}
	if c.IDStrategy == IDSnowflake {
		if c.Snowflake.MachineID < 0 || c.Snowflake.MachineID > 31 {
			return errors.New("config: snowflake machine_id out of range [0,31]")
		}
		if c.Snowflake.DatacenterID < 0 || c.Snowflake.DatacenterID > 31 {
			return errors.New("config: snowflake datacenter_id out of range [0,31]")
		}
	}
	return nil
}

// App is the process-wide configuration root, loaded via Load. It mirrors
// forbearing/gst's config.App package-level singleton, scoped down to
// what godm needs: the set of configured database aliases plus the
// default alias.
type App struct {
	Databases     []DatabaseConfig `mapstructure:"databases" ini:"databases"`
	DefaultAlias  string           `mapstructure:"default_alias" ini:"default_alias"`
}

var (
	mu      sync.RWMutex
	current = &App{}
)

// Current returns the currently loaded App configuration.
func Current() *App {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Load reads configuration from path (ini or yaml, inferred from the file
// extension) using viper, registering the go-viper ini codec for the ".ini"
// case, and applies creasty/defaults to every DatabaseConfig after decode.
func Load(path string) (*App, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "config: reading %s", path)
	}

	registry := viper.NewCodecRegistry()
	if err := registry.RegisterCodec("ini", ini.Codec{}); err != nil {
		return nil, errors.Wrap(err, "config: registering ini codec")
	}
	v := viper.NewWithOptions(viper.WithCodecRegistry(registry))
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "config: parsing config file")
	}

	app := &App{}
	if err := v.Unmarshal(app); err != nil {
		return nil, errors.Wrap(err, "config: decoding config")
	}
	for i := range app.Databases {
		if err := app.Databases[i].Validate(); err != nil {
			return nil, err
		}
	}

	mu.Lock()
	current = app
	mu.Unlock()
	return app, nil
}
