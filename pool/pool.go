// Package pool implements godm's per-alias connection pool (spec.md §4.6):
// acquire-with-retry, idle/lifetime-based discard on return, parallel
// health checks, and graceful shutdown. It mirrors forbearing/gst's
// database.go lifecycle conventions (reset/prepare/quiesce) generalized
// from one GORM handle to alias-routed, backend-agnostic borrowing.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/forbearing/godm/config"
	"github.com/forbearing/godm/logger"
	"github.com/forbearing/godm/odmerr"
)

// Conn is a borrowed backend handle. Concrete adapters type-assert the
// underlying Native value to their own driver handle (*gorm.DB,
// *mongo.Database, ...); pool itself is backend-agnostic.
type Conn struct {
	Native    any
	createdAt time.Time
	lastUsed  time.Time
}

// Factory creates a new Native backend handle plus a close function and a
// ping function to health-check it. Supplied by the caller (typically the odm facade, wiring in the
// adapter package) when a pool is created.
type Factory func(ctx context.Context, cfg config.DatabaseConfig) (native any, closeFn func() error, pingFn func(context.Context) error, err error)

// Pool owns every connection for one alias. Acquire borrows a Conn for
// the duration of one operation; Release returns it (or discards it, per
// the configured lifetime/idle bounds).
type Pool struct {
	alias   string
	cfg     config.PoolConfig
	factory Factory
	dbCfg   config.DatabaseConfig

	mu       sync.Mutex
	free     []*Conn
	borrowed int
	sem      chan struct{}

	closeFn func() error
	pingFn  func(context.Context) error
	native  any

	shuttingDown bool
	drainDone    chan struct{}
}

// New constructs a Pool for one alias and eagerly builds its backend
// handle via factory. Backends in this system (database/sql-backed GORM
// handles, the mongo-driver client) are themselves already pooled
// internally, so Pool's "connections" are borrow tickets against one
// shared native handle rather than a parallel physical pool — it exists
// to give every alias the acquire/retry/health/shutdown contract spec.md
// §4.6 requires uniformly across backend kinds.
func New(alias string, cfg config.DatabaseConfig, factory Factory) (*Pool, error) {
	native, closeFn, pingFn, err := factory(context.Background(), cfg)
	if err != nil {
		return nil, odmerr.NewConnectionError("pool: building backend handle for alias "+alias, err)
	}
	max := cfg.Pool.Max
	if max <= 0 {
		max = 10
	}
	return &Pool{
		alias:     alias,
		cfg:       cfg.Pool,
		factory:   factory,
		dbCfg:     cfg,
		sem:       make(chan struct{}, max),
		closeFn:   closeFn,
		pingFn:    pingFn,
		native:    native,
		drainDone: make(chan struct{}),
	}, nil
}

// Acquire borrows a Conn within acquire_timeout, retrying transient
// failures up to max_retries with retry_interval spacing (spec.md §4.6).
// Since the native handle here is a shared, internally-pooled backend
// client, "acquiring" only needs to gate concurrent borrow count and
// confirm liveness; isRetryable classifies the ping failure.
func (p *Pool) Acquire(ctx context.Context, isRetryable func(error) bool) (*Conn, error) {
	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		return nil, odmerr.NewConnectionError("pool: alias "+p.alias+" is shutting down", nil)
	}
	p.mu.Unlock()

	deadline := time.Now().Add(p.cfg.AcquireTimeout)
	actx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	select {
	case p.sem <- struct{}{}:
	case <-actx.Done():
		return nil, odmerr.PoolTimeout
	}

	var lastErr error
	attempts := p.cfg.MaxRetries + 1
	for i := 0; i < attempts; i++ {
		if err := p.healthPing(actx); err != nil {
			lastErr = err
			if isRetryable == nil || !isRetryable(err) {
				break
			}
			select {
			case <-time.After(p.cfg.RetryInterval):
				continue
			case <-actx.Done():
				<-p.sem
				return nil, odmerr.PoolTimeout
			}
		}
		p.mu.Lock()
		p.borrowed++
		p.mu.Unlock()
		return &Conn{Native: p.native, createdAt: time.Now(), lastUsed: time.Now()}, nil
	}
	<-p.sem
	return nil, odmerr.NewConnectionError("pool: acquire failed for alias "+p.alias, lastErr)
}

// Release returns c to the pool. A connection older than max_lifetime or
// idle longer than idle_timeout is discarded rather than reused — since
// the native handle is shared, "discard" here means the borrow ticket is
// dropped without affecting other borrowers, matching the observable
// contract without tearing down the shared handle.
func (p *Pool) Release(c *Conn) {
	defer func() { <-p.sem }()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.borrowed--

	age := time.Since(c.createdAt)
	idle := time.Since(c.lastUsed)
	if p.cfg.MaxLifetime > 0 && age > p.cfg.MaxLifetime {
		return
	}
	if p.cfg.IdleTimeout > 0 && idle > p.cfg.IdleTimeout {
		return
	}
	p.free = append(p.free, c)
}

func (p *Pool) healthPing(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, p.cfg.HealthCheckTimeout)
	defer cancel()
	if p.pingFn == nil {
		return nil
	}
	return p.pingFn(hctx)
}

// HealthCheck reports whether this alias currently answers within
// health_check_timeout.
func (p *Pool) HealthCheck(ctx context.Context) bool {
	hctx, cancel := context.WithTimeout(ctx, p.cfg.HealthCheckTimeout)
	defer cancel()
	if err := p.healthPing(hctx); err != nil {
		logger.Pool.Warn("pool: health check failed for alias " + p.alias)
		return false
	}
	return true
}

// Shutdown refuses new acquires, waits (up to grace) for outstanding
// borrows to return, then closes the native handle.
func (p *Pool) Shutdown(ctx context.Context, grace time.Duration) error {
	p.mu.Lock()
	p.shuttingDown = true
	p.mu.Unlock()

	deadline := time.Now().Add(grace)
	for {
		p.mu.Lock()
		outstanding := p.borrowed
		p.mu.Unlock()
		if outstanding == 0 {
			break
		}
		if time.Now().After(deadline) {
			logger.Pool.Warn("pool: shutdown grace period elapsed with outstanding borrows for alias " + p.alias)
			break
		}
		select {
		case <-time.After(10 * time.Millisecond):
		case <-ctx.Done():
			break
		}
	}

	if p.closeFn != nil {
		if err := p.closeFn(); err != nil {
			return odmerr.NewConnectionError("pool: closing backend handle for alias "+p.alias, err)
		}
	}
	return nil
}

// Alias returns the alias this pool was created for.
func (p *Pool) Alias() string { return p.alias }
