// Package odmerr defines godm's closed error taxonomy (spec.md §7). Every
// exported type wraps github.com/cockroachdb/errors so stack traces and
// errors.Is/errors.As composition survive across adapter/cache/pool
// boundaries, mirroring the Err* sentinel style forbearing/gst's database
// package uses but carrying the structured payload (field/table/op) the
// taxonomy in spec.md requires.
package odmerr

import "github.com/cockroachdb/errors"

// ValidationError reports a schema constraint violation caught before
// dispatch to a backend.
type ValidationError struct {
	Field   string
	Message string
	cause   error
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message, cause: errors.Newf("validation failed on field %q: %s", field, message)}
}

func (e *ValidationError) Error() string { return e.cause.Error() }
func (e *ValidationError) Unwrap() error { return e.cause }

// UniqueViolation reports a backend-detected unique-constraint failure.
type UniqueViolation struct {
	Field string
	cause error
}

func NewUniqueViolation(field string) *UniqueViolation {
	return &UniqueViolation{Field: field, cause: errors.Newf("unique constraint violated on field %q", field)}
}

func (e *UniqueViolation) Error() string { return e.cause.Error() }
func (e *UniqueViolation) Unwrap() error { return e.cause }

// QueryError reports a backend query-construction or execution failure
// that is not otherwise classified.
type QueryError struct {
	Message string
	cause   error
}

func NewQueryError(message string, wrapped error) *QueryError {
	return &QueryError{Message: message, cause: errors.Wrap(wrapped, message)}
}

func (e *QueryError) Error() string { return e.cause.Error() }
func (e *QueryError) Unwrap() error { return e.cause }

// ConnectionError reports a failure acquiring or using a backend connection.
type ConnectionError struct {
	Message string
	cause   error
}

func NewConnectionError(message string, wrapped error) *ConnectionError {
	return &ConnectionError{Message: message, cause: errors.Wrap(wrapped, message)}
}

func (e *ConnectionError) Error() string { return e.cause.Error() }
func (e *ConnectionError) Unwrap() error { return e.cause }

// PoolTimeout is returned when acquiring a connection exceeds the
// configured acquire_timeout.
var PoolTimeout = errors.New("pool: acquire timed out")

// UnsupportedOperator is returned when an adapter cannot implement a given
// AST operator rather than silently approximating it.
type UnsupportedOperator struct {
	Op      string
	Backend string
	cause   error
}

func NewUnsupportedOperator(op, backend string) *UnsupportedOperator {
	return &UnsupportedOperator{Op: op, Backend: backend, cause: errors.Newf("operator %q is not supported by backend %q", op, backend)}
}

func (e *UnsupportedOperator) Error() string { return e.cause.Error() }
func (e *UnsupportedOperator) Unwrap() error { return e.cause }

// SchemaMismatch reports a declared-vs-actual schema divergence found
// during reconciliation.
type SchemaMismatch struct {
	Table  string
	Detail string
	cause  error
}

func NewSchemaMismatch(table, detail string) *SchemaMismatch {
	return &SchemaMismatch{Table: table, Detail: detail, cause: errors.Newf("schema mismatch on table %q: %s", table, detail)}
}

func (e *SchemaMismatch) Error() string { return e.cause.Error() }
func (e *SchemaMismatch) Unwrap() error { return e.cause }

// SerializationError reports a value that cannot be represented in the
// requested encoding (e.g. a non-finite float bound to an integer column).
type SerializationError struct {
	Message string
	cause   error
}

func NewSerializationError(message string, wrapped error) *SerializationError {
	return &SerializationError{Message: message, cause: errors.Wrap(wrapped, message)}
}

func (e *SerializationError) Error() string { return e.cause.Error() }
func (e *SerializationError) Unwrap() error { return e.cause }

// ConfigError reports invalid or conflicting configuration.
type ConfigError struct {
	Message string
	cause   error
}

func NewConfigError(message string) *ConfigError {
	return &ConfigError{Message: message, cause: errors.New(message)}
}

func (e *ConfigError) Error() string { return e.cause.Error() }
func (e *ConfigError) Unwrap() error { return e.cause }

// CacheError reports an L1/L2 cache-tier failure. Per spec.md §7, an L2
// failure degrades to L1-only and is logged rather than propagated; CacheError
// is reserved for failures the caller must see (e.g. an L1 failure, which is
// promoted to Fatal by the cache package).
type CacheError struct {
	Message string
	cause   error
}

func NewCacheError(message string, wrapped error) *CacheError {
	return &CacheError{Message: message, cause: errors.Wrap(wrapped, message)}
}

func (e *CacheError) Error() string { return e.cause.Error() }
func (e *CacheError) Unwrap() error { return e.cause }

// Fatal reports an unrecoverable internal failure (e.g. snowflake clock
// regression beyond tolerance, or an L1 cache failure).
type Fatal struct {
	Message string
	cause   error
}

func NewFatal(message string, wrapped error) *Fatal {
	if wrapped != nil {
		return &Fatal{Message: message, cause: errors.Wrap(wrapped, message)}
	}
	return &Fatal{Message: message, cause: errors.New(message)}
}

func (e *Fatal) Error() string { return e.cause.Error() }
func (e *Fatal) Unwrap() error { return e.cause }
