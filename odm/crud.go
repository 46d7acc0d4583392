package odm

import (
	"context"

	"github.com/forbearing/godm/adapter/docstore"
	"github.com/forbearing/godm/cache"
	"github.com/forbearing/godm/config"
	"github.com/forbearing/godm/idgen"
	"github.com/forbearing/godm/metadata"
	"github.com/forbearing/godm/odmerr"
	"github.com/forbearing/godm/query"
	"github.com/forbearing/godm/value"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// versionTag reports the configured cache version tag for cfg, or "" when
// the alias has no cache configuration (fingerprints then carry no tag,
// harmlessly, since an alias with no cache never looks one up).
func versionTag(cfg config.DatabaseConfig) string {
	if cfg.Cache == nil {
		return ""
	}
	return cfg.Cache.VersionTag
}

func (o *ODM) lookup(alias, table string) (metadata.ModelMeta, string, config.DatabaseConfig, error) {
	meta, ok := o.metaReg.Get(table)
	if !ok {
		return metadata.ModelMeta{}, "", config.DatabaseConfig{}, odmerr.NewConfigError("odm: collection " + table + " is not registered")
	}
	resolved, err := o.resolveAlias(alias, meta.Alias)
	if err != nil {
		return metadata.ModelMeta{}, "", config.DatabaseConfig{}, err
	}
	cfg, ok := o.configByAlias(resolved)
	if !ok {
		return metadata.ModelMeta{}, "", config.DatabaseConfig{}, odmerr.NewConfigError("odm: alias " + resolved + " is not registered")
	}
	return meta, resolved, cfg, nil
}

// idGeneratorFor builds the id generator for one (alias, table). Called at
// most once per pair by ODM.generatorFor, which memoizes the result so a
// Snowflake generator's sequence/lastMilli state persists across Create
// calls instead of resetting to zero on each one. Only the document-store's
// AutoIncrement strategy needs a live Counter (a findAndModify against the
// reserved counter collection); every other strategy/backend combination is
// computed without touching conn, and a SQL backend's AutoIncrement
// strategy returns value.Null(), deferring to the native autoincrement/
// serial column read back after INSERT.
func idGeneratorFor(cfg config.DatabaseConfig, table string, conn any) (idgen.Generator, error) {
	var counter idgen.Counter
	if cfg.Kind == config.DocStore && cfg.IDStrategy == config.IDAutoIncrement {
		db, ok := conn.(*mongo.Database)
		if !ok {
			return nil, odmerr.NewConnectionError("odm: expected *mongo.Database connection for alias "+cfg.Alias, nil)
		}
		counter = &docstore.Counter{DB: db}
	}
	return idgen.New(strategyFromConfig(cfg.IDStrategy), idgen.SnowflakeConfig(cfg.Snowflake), table, counter)
}

// Create validates record against the collection's declared schema,
// reconciles its schema on first touch, assigns an id per the alias's
// configured strategy when the caller didn't supply one, dispatches the
// insert, and invalidates the (alias, table) cache group.
func (o *ODM) Create(ctx context.Context, alias, table string, record map[string]value.Value) (value.Value, error) {
	meta, resolved, cfg, err := o.lookup(alias, table)
	if err != nil {
		return value.Null(), err
	}
	if err := validateRecord(meta, record); err != nil {
		return value.Null(), err
	}
	if err := o.ensureSchema(ctx, resolved, cfg, meta); err != nil {
		return value.Null(), err
	}

	ad, err := adapterForKind(cfg.Kind)
	if err != nil {
		return value.Null(), err
	}

	gen, err := o.generatorFor(ctx, resolved, cfg, table)
	if err != nil {
		return value.Null(), err
	}
	supplied := record["id"]
	generated, err := gen.Generate(ctx, supplied)
	if err != nil {
		return value.Null(), err
	}
	if !generated.IsNull() {
		record["id"] = generated
	}

	var id value.Value
	err = trace(ctx, resolved, table, "Create", func() error {
		return o.withConn(ctx, resolved, func(conn any) error {
			insertedID, err := ad.Insert(ctx, conn, meta, record)
			if err != nil {
				return err
			}
			id = insertedID
			return nil
		})
	})
	if err != nil {
		return value.Null(), err
	}
	o.invalidate(resolved, table)
	return id, nil
}

// Find dispatches a filtered read, serving from cache when the alias has
// one configured and the read-through load misses.
func (o *ODM) Find(ctx context.Context, alias, table string, cond *query.ConditionGroup, opts *query.Options) ([]map[string]value.Value, error) {
	meta, resolved, cfg, err := o.lookup(alias, table)
	if err != nil {
		return nil, err
	}
	ad, err := adapterForKind(cfg.Kind)
	if err != nil {
		return nil, err
	}

	load := func() ([]byte, error) {
		var recs []map[string]value.Value
		err := trace(ctx, resolved, table, "Find", func() error {
			return o.withConn(ctx, resolved, func(conn any) error {
				var innerErr error
				recs, innerErr = ad.Find(ctx, conn, meta, cond, opts)
				return innerErr
			})
		})
		if err != nil {
			return nil, err
		}
		return encodeRecords(recs)
	}

	c, hasCache := o.cacheFor(resolved)
	if !hasCache {
		data, err := load()
		if err != nil {
			return nil, err
		}
		return decodeRecords(data)
	}

	key := cache.Key{Alias: resolved, Collection: table, Kind: cache.KindFind, Canonical: canonicalQuery(cond, opts), VersionTag: versionTag(cfg)}
	data, err, _ := c.GetOrLoad(key, 0, load)
	if err != nil {
		return nil, err
	}
	return decodeRecords(data)
}

// FindByID dispatches a single-record lookup by primary key.
func (o *ODM) FindByID(ctx context.Context, alias, table, id string) (map[string]value.Value, bool, error) {
	meta, resolved, cfg, err := o.lookup(alias, table)
	if err != nil {
		return nil, false, err
	}
	ad, err := adapterForKind(cfg.Kind)
	if err != nil {
		return nil, false, err
	}

	load := func() ([]byte, error) {
		var (
			rec   map[string]value.Value
			found bool
		)
		err := trace(ctx, resolved, table, "FindByID", func() error {
			return o.withConn(ctx, resolved, func(conn any) error {
				var innerErr error
				rec, found, innerErr = ad.FindByID(ctx, conn, meta, id)
				return innerErr
			})
		})
		if err != nil {
			return nil, err
		}
		if !found {
			return encodeRecords(nil)
		}
		return encodeRecords([]map[string]value.Value{rec})
	}

	decode := func(data []byte) (map[string]value.Value, bool, error) {
		recs, err := decodeRecords(data)
		if err != nil {
			return nil, false, err
		}
		if len(recs) == 0 {
			return nil, false, nil
		}
		return recs[0], true, nil
	}

	c, hasCache := o.cacheFor(resolved)
	if !hasCache {
		data, err := load()
		if err != nil {
			return nil, false, err
		}
		return decode(data)
	}

	key := cache.Key{Alias: resolved, Collection: table, Kind: cache.KindFindByID, Canonical: id, VersionTag: versionTag(cfg)}
	data, err, _ := c.GetOrLoad(key, 0, load)
	if err != nil {
		return nil, false, err
	}
	return decode(data)
}

// Update applies ops to every record matching cond and invalidates the
// (alias, table) cache group. Atomic Increment/PercentIncrease ops are
// translated to backend-native atomic mutations by the adapter, never
// read-modify-write here.
func (o *ODM) Update(ctx context.Context, alias, table string, cond *query.ConditionGroup, ops []query.UpdateOperation) (int64, error) {
	meta, resolved, cfg, err := o.lookup(alias, table)
	if err != nil {
		return 0, err
	}
	if err := validateUpdateOps(meta, ops); err != nil {
		return 0, err
	}
	ad, err := adapterForKind(cfg.Kind)
	if err != nil {
		return 0, err
	}

	var n int64
	err = trace(ctx, resolved, table, "Update", func() error {
		return o.withConn(ctx, resolved, func(conn any) error {
			var innerErr error
			n, innerErr = ad.Update(ctx, conn, meta, cond, ops)
			return innerErr
		})
	})
	if err != nil {
		return 0, err
	}
	o.invalidate(resolved, table)
	return n, nil
}

// UpdateByID applies ops to the single record identified by id.
func (o *ODM) UpdateByID(ctx context.Context, alias, table, id string, ops []query.UpdateOperation) (bool, error) {
	meta, resolved, cfg, err := o.lookup(alias, table)
	if err != nil {
		return false, err
	}
	if err := validateUpdateOps(meta, ops); err != nil {
		return false, err
	}
	ad, err := adapterForKind(cfg.Kind)
	if err != nil {
		return false, err
	}

	var found bool
	err = trace(ctx, resolved, table, "UpdateByID", func() error {
		return o.withConn(ctx, resolved, func(conn any) error {
			var innerErr error
			found, innerErr = ad.UpdateByID(ctx, conn, meta, id, ops)
			return innerErr
		})
	})
	if err != nil {
		return false, err
	}
	o.invalidate(resolved, table)
	return found, nil
}

// Delete removes every record matching cond and invalidates the
// (alias, table) cache group.
func (o *ODM) Delete(ctx context.Context, alias, table string, cond *query.ConditionGroup) (int64, error) {
	meta, resolved, cfg, err := o.lookup(alias, table)
	if err != nil {
		return 0, err
	}
	ad, err := adapterForKind(cfg.Kind)
	if err != nil {
		return 0, err
	}

	var n int64
	err = trace(ctx, resolved, table, "Delete", func() error {
		return o.withConn(ctx, resolved, func(conn any) error {
			var innerErr error
			n, innerErr = ad.Delete(ctx, conn, meta, cond)
			return innerErr
		})
	})
	if err != nil {
		return 0, err
	}
	o.invalidate(resolved, table)
	return n, nil
}

// DeleteByID removes the single record identified by id.
func (o *ODM) DeleteByID(ctx context.Context, alias, table, id string) (bool, error) {
	meta, resolved, cfg, err := o.lookup(alias, table)
	if err != nil {
		return false, err
	}
	ad, err := adapterForKind(cfg.Kind)
	if err != nil {
		return false, err
	}

	var found bool
	err = trace(ctx, resolved, table, "DeleteByID", func() error {
		return o.withConn(ctx, resolved, func(conn any) error {
			var innerErr error
			found, innerErr = ad.DeleteByID(ctx, conn, meta, id)
			return innerErr
		})
	})
	if err != nil {
		return false, err
	}
	o.invalidate(resolved, table)
	return found, nil
}

// Count dispatches a filtered count, serving from cache when configured.
func (o *ODM) Count(ctx context.Context, alias, table string, cond *query.ConditionGroup) (int64, error) {
	meta, resolved, cfg, err := o.lookup(alias, table)
	if err != nil {
		return 0, err
	}
	ad, err := adapterForKind(cfg.Kind)
	if err != nil {
		return 0, err
	}

	load := func() ([]byte, error) {
		var n int64
		err := trace(ctx, resolved, table, "Count", func() error {
			return o.withConn(ctx, resolved, func(conn any) error {
				var innerErr error
				n, innerErr = ad.Count(ctx, conn, meta, cond)
				return innerErr
			})
		})
		if err != nil {
			return nil, err
		}
		return encodeCount(n), nil
	}

	c, hasCache := o.cacheFor(resolved)
	if !hasCache {
		data, err := load()
		if err != nil {
			return 0, err
		}
		return decodeCount(data)
	}

	key := cache.Key{Alias: resolved, Collection: table, Kind: cache.KindCount, Canonical: canonicalQuery(cond, nil), VersionTag: versionTag(cfg)}
	data, err, _ := c.GetOrLoad(key, 0, load)
	if err != nil {
		return 0, err
	}
	return decodeCount(data)
}

// Exists reports whether any record matches cond, built atop Count so it
// benefits from the same cache entry a prior Count call already populated.
func (o *ODM) Exists(ctx context.Context, alias, table string, cond *query.ConditionGroup) (bool, error) {
	n, err := o.Count(ctx, alias, table, cond)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
