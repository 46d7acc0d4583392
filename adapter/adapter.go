// Package adapter defines the common contract every backend family
// (file-based SQL, the two networked SQL dialects, and the document
// store) implements, consumed by the odm facade. Subpackages filesql,
// netsql/dialecta, netsql/dialectb, and docstore each provide an Adapter.
package adapter

import (
	"context"

	"github.com/forbearing/godm/config"
	"github.com/forbearing/godm/metadata"
	"github.com/forbearing/godm/query"
	"github.com/forbearing/godm/value"
)

// Adapter is the backend-facing half of one ODM operation: given a borrowed
// native connection (from pool.Conn.Native) and a backend-neutral request,
// it performs the operation and returns backend-neutral results. Schema
// reconciliation happens lazily, on first touch of a collection, per
// spec.md §4.7–§4.9.
type Adapter interface {
	// EnsureSchema reconciles (or creates) the collection/table for meta,
	// per the backend's reconciliation rules. idStrategy picks the
	// primary-key column's native representation (integer autoincrement
	// vs. text for uuid/snowflake/object-id).
	EnsureSchema(ctx context.Context, conn any, meta metadata.ModelMeta, idStrategy config.IDStrategyName) error

	// DropTable removes a collection/table entirely.
	DropTable(ctx context.Context, conn any, table string) error

	// TableExists reports whether a collection/table has been created.
	TableExists(ctx context.Context, conn any, table string) (bool, error)

	// Insert writes one record (with its generated/supplied id already
	// present in record under meta's id field) and returns the id value
	// actually stored, after backend confirmation.
	Insert(ctx context.Context, conn any, meta metadata.ModelMeta, record map[string]value.Value) (value.Value, error)

	// Find returns every record matching cond, shaped per opts.
	Find(ctx context.Context, conn any, meta metadata.ModelMeta, cond *query.ConditionGroup, opts *query.Options) ([]map[string]value.Value, error)

	// FindByID returns the record with the given id, if any.
	FindByID(ctx context.Context, conn any, meta metadata.ModelMeta, id string) (map[string]value.Value, bool, error)

	// Update applies ops to every record matching cond, returning the
	// count of matched records.
	Update(ctx context.Context, conn any, meta metadata.ModelMeta, cond *query.ConditionGroup, ops []query.UpdateOperation) (int64, error)

	// UpdateByID applies ops to the record with the given id, reporting
	// whether a record was found.
	UpdateByID(ctx context.Context, conn any, meta metadata.ModelMeta, id string, ops []query.UpdateOperation) (bool, error)

	// Delete removes every record matching cond, returning the count removed.
	Delete(ctx context.Context, conn any, meta metadata.ModelMeta, cond *query.ConditionGroup) (int64, error)

	// DeleteByID removes the record with the given id, reporting whether
	// one was found.
	DeleteByID(ctx context.Context, conn any, meta metadata.ModelMeta, id string) (bool, error)

	// Count returns the number of records matching cond.
	Count(ctx context.Context, conn any, meta metadata.ModelMeta, cond *query.ConditionGroup) (int64, error)

	// ServerVersion reports the backend's version string, for diagnostics.
	ServerVersion(ctx context.Context, conn any) (string, error)
}
