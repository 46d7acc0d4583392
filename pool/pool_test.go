package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forbearing/godm/config"
	"github.com/forbearing/godm/odmerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCfg(alias string) config.DatabaseConfig {
	return config.DatabaseConfig{
		Alias:      alias,
		Connection: "mock://" + alias,
		Pool: config.PoolConfig{
			Min:                1,
			Max:                2,
			AcquireTimeout:     100 * time.Millisecond,
			IdleTimeout:        time.Hour,
			MaxLifetime:        time.Hour,
			MaxRetries:         2,
			RetryInterval:      5 * time.Millisecond,
			HealthCheckTimeout: 50 * time.Millisecond,
		},
	}
}

func okFactory(ctx context.Context, cfg config.DatabaseConfig) (any, func() error, func(context.Context) error, error) {
	return "native-handle", func() error { return nil }, func(context.Context) error { return nil }, nil
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p, err := New("primary", testCfg("primary"), okFactory)
	require.NoError(t, err)

	c, err := p.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "native-handle", c.Native)
	p.Release(c)
}

func TestAcquireTimesOutWhenPoolExhausted(t *testing.T) {
	cfg := testCfg("primary")
	cfg.Pool.Max = 1
	cfg.Pool.AcquireTimeout = 30 * time.Millisecond
	p, err := New("primary", cfg, okFactory)
	require.NoError(t, err)

	c1, err := p.Acquire(context.Background(), nil)
	require.NoError(t, err)

	_, err = p.Acquire(context.Background(), nil)
	assert.ErrorIs(t, err, odmerr.PoolTimeout)

	p.Release(c1)
}

func TestAcquireRetriesTransientFailures(t *testing.T) {
	var attempts int64
	factory := func(ctx context.Context, cfg config.DatabaseConfig) (any, func() error, func(context.Context) error, error) {
		return "h", func() error { return nil }, func(context.Context) error {
			n := atomic.AddInt64(&attempts, 1)
			if n < 3 {
				return assertErr
			}
			return nil
		}, nil
	}
	p, err := New("primary", testCfg("primary"), factory)
	require.NoError(t, err)

	c, err := p.Acquire(context.Background(), func(error) bool { return true })
	require.NoError(t, err)
	assert.Equal(t, int64(3), atomic.LoadInt64(&attempts))
	p.Release(c)
}

func TestHealthCheckReportsFalseOnPingFailure(t *testing.T) {
	factory := func(ctx context.Context, cfg config.DatabaseConfig) (any, func() error, func(context.Context) error, error) {
		return "h", func() error { return nil }, func(context.Context) error { return assertErr }, nil
	}
	p, err := New("primary", testCfg("primary"), factory)
	require.NoError(t, err)
	assert.False(t, p.HealthCheck(context.Background()))
}

func TestRegistryRejectsConflictingReAdd(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(testCfg("primary"), okFactory))

	cfg2 := testCfg("primary")
	cfg2.Connection = "mock://different"
	err := r.Add(cfg2, okFactory)
	assert.Error(t, err)
}

func TestRegistryAddIsIdempotentForIdenticalConfig(t *testing.T) {
	r := NewRegistry()
	cfg := testCfg("primary")
	require.NoError(t, r.Add(cfg, okFactory))
	require.NoError(t, r.Add(cfg, okFactory))
}

func TestRegistryHealthCheckRunsInParallel(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(testCfg("a"), okFactory))
	require.NoError(t, r.Add(testCfg("b"), okFactory))

	results := r.HealthCheck(context.Background())
	assert.True(t, results["a"])
	assert.True(t, results["b"])
}

func TestRegistryShutdownClosesEveryPool(t *testing.T) {
	var closed int64
	factory := func(ctx context.Context, cfg config.DatabaseConfig) (any, func() error, func(context.Context) error, error) {
		return "h", func() error { atomic.AddInt64(&closed, 1); return nil }, func(context.Context) error { return nil }, nil
	}
	r := NewRegistry()
	require.NoError(t, r.Add(testCfg("a"), factory))
	require.NoError(t, r.Add(testCfg("b"), factory))

	require.NoError(t, r.Shutdown(context.Background(), time.Second))
	assert.Equal(t, int64(2), atomic.LoadInt64(&closed))
}

var assertErr = errTransient{}

type errTransient struct{}

func (errTransient) Error() string { return "transient failure" }
