package pool

import (
	"context"
	"sync"
	"time"

	"github.com/forbearing/godm/config"
	"github.com/forbearing/godm/odmerr"
)

// Registry owns one Pool per alias and enforces alias immutability after
// creation (spec.md §4.6: "re-adding the same alias with a different
// config fails").
type Registry struct {
	mu    sync.RWMutex
	pools map[string]*Pool
	cfgs  map[string]config.DatabaseConfig
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		pools: make(map[string]*Pool),
		cfgs:  make(map[string]config.DatabaseConfig),
	}
}

// Add creates and registers a pool for cfg.Alias. Re-adding an existing
// alias with an identical config is a no-op; re-adding with a different
// config is rejected to prevent accidental redirection of live queries.
func (r *Registry) Add(cfg config.DatabaseConfig, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.cfgs[cfg.Alias]; ok {
		if existing == cfg {
			return nil
		}
		return odmerr.NewConfigError("pool: alias " + cfg.Alias + " is already registered with a different configuration")
	}

	p, err := New(cfg.Alias, cfg, factory)
	if err != nil {
		return err
	}
	r.pools[cfg.Alias] = p
	r.cfgs[cfg.Alias] = cfg
	return nil
}

// Get returns the pool for alias, or false if no such alias is registered.
func (r *Registry) Get(alias string) (*Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[alias]
	return p, ok
}

// Aliases returns every registered alias.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.pools))
	for a := range r.pools {
		out = append(out, a)
	}
	return out
}

// HealthCheck pings every alias in parallel within each pool's configured
// health_check_timeout (spec.md §4.6), returning one boolean per alias.
func (r *Registry) HealthCheck(ctx context.Context) map[string]bool {
	r.mu.RLock()
	pools := make(map[string]*Pool, len(r.pools))
	for a, p := range r.pools {
		pools[a] = p
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	var mu sync.Mutex
	out := make(map[string]bool, len(pools))
	for alias, p := range pools {
		wg.Add(1)
		go func(alias string, p *Pool) {
			defer wg.Done()
			ok := p.HealthCheck(ctx)
			mu.Lock()
			out[alias] = ok
			mu.Unlock()
		}(alias, p)
	}
	wg.Wait()
	return out
}

// Shutdown tears down every pool, waiting up to grace per pool for
// outstanding borrows to return.
func (r *Registry) Shutdown(ctx context.Context, grace time.Duration) error {
	r.mu.Lock()
	pools := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	r.pools = make(map[string]*Pool)
	r.cfgs = make(map[string]config.DatabaseConfig)
	r.mu.Unlock()

	var firstErr error
	for _, p := range pools {
		if err := p.Shutdown(ctx, grace); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
