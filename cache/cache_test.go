package cache

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forbearing/godm/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func l1OnlyConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled: true,
		L1:      config.L1Config{MaxEntries: 100, MaxBytes: 1 << 20, Stats: true},
		TTL:     config.TTLConfig{Default: time.Minute, Max: time.Hour},
	}
}

func TestGetMissThenPutThenHit(t *testing.T) {
	c, err := New(l1OnlyConfig())
	require.NoError(t, err)
	defer c.Close()

	key := Key{Alias: "primary", Collection: "users", Kind: KindFind, Canonical: `{"age":{"$gt":18}}`}

	_, ok := c.Get(key)
	assert.False(t, ok)

	require.NoError(t, c.Put(key, []byte(`[{"id":1}]`), 0))

	data, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, `[{"id":1}]`, string(data))

	stats, ok := c.GetStats()
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestInvalidateDropsOnlyMatchingGroup(t *testing.T) {
	c, err := New(l1OnlyConfig())
	require.NoError(t, err)
	defer c.Close()

	userKey := Key{Alias: "primary", Collection: "users", Kind: KindFind, Canonical: "A"}
	orderKey := Key{Alias: "primary", Collection: "orders", Kind: KindFind, Canonical: "B"}

	require.NoError(t, c.Put(userKey, []byte("users-result"), 0))
	require.NoError(t, c.Put(orderKey, []byte("orders-result"), 0))

	c.Invalidate("primary", "users")

	_, ok := c.Get(userKey)
	assert.False(t, ok, "users entry should be invalidated")

	data, ok := c.Get(orderKey)
	assert.True(t, ok, "orders entry should survive an unrelated invalidation")
	assert.Equal(t, "orders-result", string(data))
}

func TestGetOrLoadCoalescesConcurrentMisses(t *testing.T) {
	c, err := New(l1OnlyConfig())
	require.NoError(t, err)
	defer c.Close()

	key := Key{Alias: "primary", Collection: "users", Kind: KindFind, Canonical: "same"}

	var loads int64
	loader := func() ([]byte, error) {
		atomic.AddInt64(&loads, 1)
		time.Sleep(20 * time.Millisecond)
		return []byte("loaded"), nil
	}

	results := make(chan []byte, 8)
	for i := 0; i < 8; i++ {
		go func() {
			data, err, _ := c.GetOrLoad(key, 0, loader)
			require.NoError(t, err)
			results <- data
		}()
	}
	for i := 0; i < 8; i++ {
		assert.Equal(t, "loaded", string(<-results))
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&loads), "concurrent misses for the same fingerprint should coalesce into one load")
}

func TestGetExpiresAfterTTL(t *testing.T) {
	cfg := l1OnlyConfig()
	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	key := Key{Alias: "primary", Collection: "users", Kind: KindFind, Canonical: "ttl"}
	require.NoError(t, c.Put(key, []byte("short-lived"), 10*time.Millisecond))

	_, ok := c.Get(key)
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.Get(key)
	assert.False(t, ok, "entry should have expired")
}

func TestStatsDisabledWhenNotConfigured(t *testing.T) {
	cfg := l1OnlyConfig()
	cfg.L1.Stats = false
	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.GetStats()
	assert.False(t, ok)
}

func TestL1AndL2PromotionOnL2Hit(t *testing.T) {
	dir := t.TempDir()
	cfg := l1OnlyConfig()
	cfg.L2 = &config.L2Config{Dir: dir, MaxBytes: 1 << 20, CompressionLevel: 3}
	cfg.VersionTag = "v1"
	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	key := Key{Alias: "primary", Collection: "users", Kind: KindFind, Canonical: "l2-promo"}
	require.NoError(t, c.Put(key, []byte("from-l2"), 0))

	// Evict from L1 directly to force the read path through L2.
	c.l1.delete(key.Fingerprint())

	data, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "from-l2", string(data))

	// The L2 hit should have re-populated L1.
	_, l1ok := c.l1.get(key.Fingerprint())
	assert.True(t, l1ok, "an L2 hit should promote the entry back into L1")
}

func TestL2SurvivesRestartUnlessVersionTagChanges(t *testing.T) {
	dir := t.TempDir()
	cfg := l1OnlyConfig()
	cfg.L2 = &config.L2Config{Dir: dir, MaxBytes: 1 << 20, CompressionLevel: 3}
	cfg.VersionTag = "v1"

	c1, err := New(cfg)
	require.NoError(t, err)
	key := Key{Alias: "primary", Collection: "users", Kind: KindFind, Canonical: "persisted"}
	require.NoError(t, c1.Put(key, []byte("persisted-value"), 0))
	c1.Close()

	c2, err := New(cfg)
	require.NoError(t, err)
	defer c2.Close()
	data, ok := c2.l2.get(key.Fingerprint())
	require.True(t, ok)
	assert.Equal(t, "persisted-value", string(data.data))

	cfg.VersionTag = "v2"
	c3, err := New(cfg)
	require.NoError(t, err)
	defer c3.Close()
	_, ok = c3.l2.get(key.Fingerprint())
	assert.False(t, ok, "a version_tag change should clear L2 on startup")

	_ = os.Remove(dir + "/wal.log")
}
