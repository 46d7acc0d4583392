package odm

import (
	"context"
	"net/url"
	"strings"

	"github.com/forbearing/godm/adapter"
	"github.com/forbearing/godm/adapter/docstore"
	"github.com/forbearing/godm/adapter/filesql"
	"github.com/forbearing/godm/adapter/netsql/dialecta"
	"github.com/forbearing/godm/adapter/netsql/dialectb"
	"github.com/forbearing/godm/config"
	"github.com/forbearing/godm/odmerr"
	"github.com/forbearing/godm/pool"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// adapterForKind returns the stateless Adapter implementation for a
// backend kind; every alias of the same kind shares one Adapter value.
func adapterForKind(kind config.BackendKind) (adapter.Adapter, error) {
	switch kind {
	case config.FileSQL:
		return filesql.New(), nil
	case config.NetSQLA:
		return dialecta.New(), nil
	case config.NetSQLB:
		return dialectb.New(), nil
	case config.DocStore:
		return docstore.New(), nil
	default:
		return nil, odmerr.NewConfigError("odm: unknown backend kind")
	}
}

// poolFactory builds the pool.Factory that dials cfg.Connection for kind,
// mirroring forbearing/gst's one-*gorm.DB-handle-per-process convention but
// scoped per alias, since each alias is an independent backend here.
func poolFactory(kind config.BackendKind) pool.Factory {
	switch kind {
	case config.FileSQL:
		return gormFactory(func(dsn string) gorm.Dialector { return sqlite.Open(dsn) })
	case config.NetSQLA:
		return gormFactory(func(dsn string) gorm.Dialector { return mysql.Open(dsn) })
	case config.NetSQLB:
		return gormFactory(func(dsn string) gorm.Dialector { return postgres.Open(dsn) })
	case config.DocStore:
		return mongoFactory()
	default:
		return func(ctx context.Context, cfg config.DatabaseConfig) (any, func() error, func(context.Context) error, error) {
			return nil, nil, nil, odmerr.NewConfigError("odm: unknown backend kind for alias " + cfg.Alias)
		}
	}
}

func gormFactory(open func(dsn string) gorm.Dialector) pool.Factory {
	return func(ctx context.Context, cfg config.DatabaseConfig) (any, func() error, func(context.Context) error, error) {
		gdb, err := gorm.Open(open(cfg.Connection), &gorm.Config{})
		if err != nil {
			return nil, nil, nil, odmerr.NewConnectionError("odm: opening connection for alias "+cfg.Alias, err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, nil, nil, odmerr.NewConnectionError("odm: obtaining *sql.DB for alias "+cfg.Alias, err)
		}
		sqlDB.SetMaxOpenConns(cfg.Pool.Max)
		sqlDB.SetConnMaxLifetime(cfg.Pool.MaxLifetime)
		sqlDB.SetConnMaxIdleTime(cfg.Pool.IdleTimeout)

		closeFn := sqlDB.Close
		pingFn := func(pctx context.Context) error { return sqlDB.PingContext(pctx) }
		return gdb, closeFn, pingFn, nil
	}
}

// mongoDatabaseName extracts the default database name from a Mongo
// connection URI's path component, falling back to "godm" when absent.
func mongoDatabaseName(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "godm"
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return "godm"
	}
	return name
}

func mongoFactory() pool.Factory {
	return func(ctx context.Context, cfg config.DatabaseConfig) (any, func() error, func(context.Context) error, error) {
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.Connection))
		if err != nil {
			return nil, nil, nil, odmerr.NewConnectionError("odm: connecting mongo client for alias "+cfg.Alias, err)
		}
		db := client.Database(mongoDatabaseName(cfg.Connection))
		closeFn := func() error { return client.Disconnect(context.Background()) }
		pingFn := func(pctx context.Context) error { return client.Ping(pctx, nil) }
		return db, closeFn, pingFn, nil
	}
}

func isRetryableConnError(err error) bool {
	return err != nil
}
