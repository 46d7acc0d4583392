// Package odm is godm's public facade: alias-routed dispatch across the
// four backend families (embedded SQL, two networked SQL dialects, and a
// document store), schema reconciliation on first touch, id generation,
// pre-dispatch validation, and two-tier cache integration on the read
// paths. It mirrors forbearing/gst's database package's role as the one
// entry point every caller goes through, generalized from per-model
// generic chaining to the alias+collection dynamic surface this system's
// records (map[string]value.Value, not static structs) need.
package odm

import (
	"context"
	"sync"
	"time"

	"github.com/forbearing/godm/cache"
	"github.com/forbearing/godm/config"
	"github.com/forbearing/godm/idgen"
	"github.com/forbearing/godm/metadata"
	"github.com/forbearing/godm/odmerr"
	"github.com/forbearing/godm/pool"
)

// ODM is the concrete facade. Construct with New, wire aliases with
// AddDatabase, declare models with RegisterModel, then dispatch through
// the Create/Find/... operations.
type ODM struct {
	mu           sync.RWMutex
	pools        *pool.Registry
	metaReg      *metadata.Registry
	caches       map[string]*cache.Cache
	configs      map[string]config.DatabaseConfig
	defaultAlias string

	// ensured memoizes which (alias, collection) pairs have already had
	// EnsureSchema run, mirroring forbearing/gst's migratedModelMap
	// sync.Map dedup-by-key idempotence pattern in database.go, keyed by
	// alias+collection instead of db-handle-identifier+model-type.
	ensured sync.Map

	// idGens memoizes one idgen.Generator per (alias, collection), keyed
	// the same way as ensured. A Snowflake generator carries sequence/
	// lastMilli state that must survive across Create calls, not be
	// rebuilt from zero on every call; an AutoIncrement generator over
	// docstore similarly needs to keep addressing the same reserved
	// counter collection.
	idGens sync.Map
}

// New constructs an ODM with its own private metadata registry (tests
// build independent instances rather than sharing metadata.DefaultRegistry).
func New() *ODM {
	return &ODM{
		pools:   pool.NewRegistry(),
		metaReg: metadata.NewRegistry(),
		caches:  make(map[string]*cache.Cache),
		configs: make(map[string]config.DatabaseConfig),
	}
}

func strategyFromConfig(name config.IDStrategyName) idgen.Strategy {
	switch name {
	case config.IDAutoIncrement:
		return idgen.StrategyAutoIncrement
	case config.IDSnowflake:
		return idgen.StrategySnowflake
	case config.IDObjectID:
		return idgen.StrategyObjectID
	case config.IDCallerSupplied:
		return idgen.StrategyCallerSupplied
	default:
		return idgen.StrategyUUID
	}
}

// AddDatabase registers and connects a new backend alias, building its
// pool and, if configured, its two-tier cache. The first alias added
// becomes the default unless SetDefaultAlias overrides it.
func (o *ODM) AddDatabase(cfg config.DatabaseConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := o.pools.Add(cfg, poolFactory(cfg.Kind)); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.configs[cfg.Alias] = cfg
	if cfg.Cache != nil && cfg.Cache.Enabled {
		c, err := cache.New(*cfg.Cache)
		if err != nil {
			return err
		}
		o.caches[cfg.Alias] = c
	}
	if o.defaultAlias == "" {
		o.defaultAlias = cfg.Alias
	}
	return nil
}

// SetDefaultAlias changes which alias a caller gets by passing "".
func (o *ODM) SetDefaultAlias(alias string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.configs[alias]; !ok {
		return odmerr.NewConfigError("odm: alias " + alias + " is not registered")
	}
	o.defaultAlias = alias
	return nil
}

// RegisterModel adds meta to the metadata registry. Re-registration with
// identical metadata is a no-op; a conflicting re-registration surfaces
// metadata.ErrConflictingRegistration.
func (o *ODM) RegisterModel(meta metadata.ModelMeta) error {
	return o.metaReg.Register(meta)
}

func (o *ODM) resolveAlias(explicit, metaAlias string) (string, error) {
	alias := explicit
	if alias == "" {
		alias = metaAlias
	}
	if alias == "" {
		o.mu.RLock()
		alias = o.defaultAlias
		o.mu.RUnlock()
	}
	if alias == "" {
		return "", odmerr.NewConfigError("odm: no alias given and no default alias configured")
	}
	return alias, nil
}

func (o *ODM) configByAlias(alias string) (config.DatabaseConfig, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	cfg, ok := o.configs[alias]
	return cfg, ok
}

func (o *ODM) cacheFor(alias string) (*cache.Cache, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.caches[alias]
	return c, ok
}

func (o *ODM) withConn(ctx context.Context, alias string, fn func(conn any) error) error {
	p, ok := o.pools.Get(alias)
	if !ok {
		return odmerr.NewConfigError("odm: alias " + alias + " is not registered")
	}
	conn, err := p.Acquire(ctx, isRetryableConnError)
	if err != nil {
		return err
	}
	defer p.Release(conn)
	return fn(conn.Native)
}

// ensureSchema reconciles the backend table/collection for meta on first
// touch, memoized per (alias, collection).
func (o *ODM) ensureSchema(ctx context.Context, alias string, cfg config.DatabaseConfig, meta metadata.ModelMeta) error {
	key := alias + ":" + meta.Collection
	if _, done := o.ensured.Load(key); done {
		return nil
	}
	ad, err := adapterForKind(cfg.Kind)
	if err != nil {
		return err
	}
	if err := o.withConn(ctx, alias, func(conn any) error {
		return ad.EnsureSchema(ctx, conn, meta, cfg.IDStrategy)
	}); err != nil {
		return err
	}
	o.ensured.Store(key, struct{}{})
	return nil
}

// generatorFor returns the memoized id generator for (alias, table),
// building it on first use. Reusing the same instance across Create calls
// matters most for Snowflake, whose sequence/lastMilli state must survive
// between calls to keep successive ids distinct within the same
// millisecond, and for docstore AutoIncrement, whose Counter always
// targets this one collection.
func (o *ODM) generatorFor(ctx context.Context, alias string, cfg config.DatabaseConfig, table string) (idgen.Generator, error) {
	key := alias + ":" + table
	if g, ok := o.idGens.Load(key); ok {
		return g.(idgen.Generator), nil
	}

	var (
		gen idgen.Generator
		err error
	)
	if cfg.Kind == config.DocStore && cfg.IDStrategy == config.IDAutoIncrement {
		err = o.withConn(ctx, alias, func(conn any) error {
			var innerErr error
			gen, innerErr = idGeneratorFor(cfg, table, conn)
			return innerErr
		})
	} else {
		gen, err = idGeneratorFor(cfg, table, nil)
	}
	if err != nil {
		return nil, err
	}

	actual, _ := o.idGens.LoadOrStore(key, gen)
	return actual.(idgen.Generator), nil
}

// CreateTableForModel explicitly triggers schema reconciliation for a
// registered collection ahead of its first write.
func (o *ODM) CreateTableForModel(ctx context.Context, collection string) error {
	meta, ok := o.metaReg.Get(collection)
	if !ok {
		return odmerr.NewConfigError("odm: collection " + collection + " is not registered")
	}
	alias, err := o.resolveAlias("", meta.Alias)
	if err != nil {
		return err
	}
	cfg, ok := o.configByAlias(alias)
	if !ok {
		return odmerr.NewConfigError("odm: alias " + alias + " is not registered")
	}
	return o.ensureSchema(ctx, alias, cfg, meta)
}

func (o *ODM) DropTable(ctx context.Context, alias, table string) error {
	resolved, err := o.resolveAlias(alias, "")
	if err != nil {
		return err
	}
	cfg, ok := o.configByAlias(resolved)
	if !ok {
		return odmerr.NewConfigError("odm: alias " + resolved + " is not registered")
	}
	ad, err := adapterForKind(cfg.Kind)
	if err != nil {
		return err
	}
	if err := o.withConn(ctx, resolved, func(conn any) error {
		return ad.DropTable(ctx, conn, table)
	}); err != nil {
		return err
	}
	o.ensured.Delete(resolved + ":" + table)
	o.invalidate(resolved, table)
	return nil
}

func (o *ODM) TableExists(ctx context.Context, alias, table string) (bool, error) {
	resolved, err := o.resolveAlias(alias, "")
	if err != nil {
		return false, err
	}
	cfg, ok := o.configByAlias(resolved)
	if !ok {
		return false, odmerr.NewConfigError("odm: alias " + resolved + " is not registered")
	}
	ad, err := adapterForKind(cfg.Kind)
	if err != nil {
		return false, err
	}
	var exists bool
	err = o.withConn(ctx, resolved, func(conn any) error {
		var innerErr error
		exists, innerErr = ad.TableExists(ctx, conn, table)
		return innerErr
	})
	return exists, err
}

func (o *ODM) GetServerVersion(ctx context.Context, alias string) (string, error) {
	resolved, err := o.resolveAlias(alias, "")
	if err != nil {
		return "", err
	}
	cfg, ok := o.configByAlias(resolved)
	if !ok {
		return "", odmerr.NewConfigError("odm: alias " + resolved + " is not registered")
	}
	ad, err := adapterForKind(cfg.Kind)
	if err != nil {
		return "", err
	}
	var version string
	err = o.withConn(ctx, resolved, func(conn any) error {
		var innerErr error
		version, innerErr = ad.ServerVersion(ctx, conn)
		return innerErr
	})
	return version, err
}

// HealthCheck pings every registered alias in parallel.
func (o *ODM) HealthCheck(ctx context.Context) map[string]bool {
	return o.pools.HealthCheck(ctx)
}

// Shutdown tears down every pool and stops every cache's L2 writer actor.
func (o *ODM) Shutdown(ctx context.Context) error {
	o.mu.RLock()
	caches := make([]*cache.Cache, 0, len(o.caches))
	for _, c := range o.caches {
		caches = append(caches, c)
	}
	o.mu.RUnlock()

	for _, c := range caches {
		c.Close()
	}
	return o.pools.Shutdown(ctx, 30*time.Second)
}

// GetCacheStats reports hit/miss/entry counters for alias's cache.
// Returns (cache.Stats{}, false) when alias has no cache configured or
// stats collection is disabled for its L1 tier.
func (o *ODM) GetCacheStats(alias string) (cache.Stats, bool) {
	c, ok := o.cacheFor(alias)
	if !ok {
		return cache.Stats{}, false
	}
	return c.GetStats()
}

func (o *ODM) invalidate(alias, collection string) {
	if c, ok := o.cacheFor(alias); ok {
		c.Invalidate(alias, collection)
	}
}
