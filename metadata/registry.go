package metadata

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrConflictingRegistration is returned by Register when a collection is
// re-registered with metadata that differs from what's already registered.
var ErrConflictingRegistration = errors.New("metadata: conflicting model registration")

// Registry is a process-wide mapping from collection name to ModelMeta.
// It is read-mostly: registrations are rare (typically at process start)
// and are protected by a simple RWMutex rather than a copy-on-write map,
// since contention between registrations never happens in practice and a
// sync.Map would lose the atomic "insert-if-absent-else-compare" semantics
// Register needs.
type Registry struct {
	mu   sync.RWMutex
	data map[string]ModelMeta
}

// NewRegistry creates an empty, independently-owned registry. Most callers
// should use DefaultRegistry; NewRegistry exists for tests that need
// isolation from process-global state.
func NewRegistry() *Registry {
	return &Registry{data: make(map[string]ModelMeta)}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// DefaultRegistry returns the lazily-constructed process-wide registry.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() { defaultReg = NewRegistry() })
	return defaultReg
}

// Register adds meta under meta.Collection. Re-registration with identical
// metadata is a no-op; a conflicting re-registration returns
// ErrConflictingRegistration.
func (r *Registry) Register(meta ModelMeta) error {
	if meta.Collection == "" {
		return errors.New("metadata: Collection must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.data[meta.Collection]
	if !ok {
		r.data[meta.Collection] = meta
		return nil
	}
	if existing.Equal(meta) {
		return nil
	}
	return errors.Wrapf(ErrConflictingRegistration, "collection %q", meta.Collection)
}

// Get returns the registered ModelMeta for collection, if any.
func (r *Registry) Get(collection string) (ModelMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.data[collection]
	return m, ok
}

// MustGet is a convenience for callers that have already validated the
// collection is registered (e.g. inside the odm facade after a lookup).
func (r *Registry) MustGet(collection string) ModelMeta {
	m, ok := r.Get(collection)
	if !ok {
		panic("metadata: collection " + collection + " not registered")
	}
	return m
}

// Collections returns every registered collection name.
func (r *Registry) Collections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.data))
	for k := range r.data {
		out = append(out, k)
	}
	return out
}
