// Package cache implements godm's two-tier query cache: a bounded L1
// in-memory LRU and an optional compressed L2 on-disk tier, with TTL
// expiry, per-fingerprint single-flight coalescing, and group invalidation
// keyed by (alias, collection) (spec.md §4.5).
package cache

import (
	"sync"
	"time"

	"github.com/forbearing/godm/config"
	"github.com/forbearing/godm/logger"
	"github.com/forbearing/godm/odmerr"
	"golang.org/x/sync/singleflight"
)

// Stats tracks hit/miss counters when enabled (spec.md §4.5.6).
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
	Bytes   int64
}

// HitRate returns hits/(hits+misses), or 0 when no lookups have occurred.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is the two-tier cache for one alias.
type Cache struct {
	cfg config.CacheConfig

	l1 *l1Tier
	l2 *l2Tier

	sf singleflight.Group

	mu      sync.Mutex
	groups  map[GroupKey]map[string]struct{} // (alias,collection) -> fingerprints
	statsOn bool
	hits    int64
	misses  int64
}

// New builds a Cache from cfg. A nil cfg.L2 means no on-disk tier is ever
// touched, per spec.md's Open Question resolution (L2 durability only when
// cache.l2 is configured).
func New(cfg config.CacheConfig) (*Cache, error) {
	l1, err := newL1Tier(cfg.L1.MaxEntries, cfg.L1.MaxBytes)
	if err != nil {
		return nil, odmerr.NewFatal("cache: constructing L1 tier", err)
	}
	l2, err := newL2Tier(cfg.L2, cfg.VersionTag)
	if err != nil {
		return nil, odmerr.NewCacheError("cache: constructing L2 tier", err)
	}
	return &Cache{
		cfg:     cfg,
		l1:      l1,
		l2:      l2,
		groups:  make(map[GroupKey]map[string]struct{}),
		statsOn: cfg.L1.Stats,
	}, nil
}

// Close shuts down the L2 writer actor, if any.
func (c *Cache) Close() {
	if c.l2 != nil {
		c.l2.close()
	}
}

// Get implements the read path of spec.md §4.5.3:
// get(fp) = L1.get(fp) ?? (L2.get(fp).also(v => L1.put(fp, v))).
func (c *Cache) Get(key Key) ([]byte, bool) {
	fp := key.Fingerprint()
	canon := key.canonicalString()

	if e, ok := c.l1.get(fp); ok && !c.isCollision(e, canon) {
		c.recordHit()
		return e.data, true
	}

	if c.l2 != nil {
		if e, ok := c.l2.get(fp); ok && !c.isCollision(e, canon) {
			c.l1.put(fp, e)
			c.recordHit()
			return e.data, true
		}
	}

	c.recordMiss()
	return nil, false
}

// isCollision reports (and logs) a fingerprint collision: an entry stored
// under the same hash but a different canonical form. Per spec.md §4.5.1
// such an entry must be rejected rather than served, so Get treats it as a
// miss instead of returning another key's data.
func (c *Cache) isCollision(e entry, canon string) bool {
	if e.canonical != "" && e.canonical != canon {
		logger.Cache.Warn("cache: fingerprint collision detected, treating as miss")
		return true
	}
	return false
}

// Put writes data under key's fingerprint into both tiers (L2 only if
// configured), honoring ttl (zero means the configured default, clamped to
// the configured max).
func (c *Cache) Put(key Key, data []byte, ttl time.Duration) error {
	fp := key.Fingerprint()
	canon := key.canonicalString()

	if ttl <= 0 {
		ttl = c.cfg.TTL.Default
	}
	if c.cfg.TTL.Max > 0 && ttl > c.cfg.TTL.Max {
		ttl = c.cfg.TTL.Max
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	e := entry{data: data, canonical: canon, expiresAt: expiresAt, bytes: len(data)}
	c.l1.put(fp, e)

	if c.l2 != nil {
		compress := c.cfg.Compression.Enabled && len(data) >= c.cfg.Compression.MinBytes
		if err := c.l2.put(fp, e, compress); err != nil {
			// L2 failures degrade gracefully to L1-only (spec.md §7).
			logger.Cache.Warn("cache: L2 write failed, degrading to L1-only")
		}
	}

	c.trackGroup(key.Alias, key.Collection, fp)
	return nil
}

// GetOrLoad implements the single-flight read-through path of spec.md
// §4.5.4: concurrent misses for the same fingerprint coalesce into one
// load call; the barrier is released after both tiers are populated.
func (c *Cache) GetOrLoad(key Key, ttl time.Duration, load func() ([]byte, error)) ([]byte, error, bool) {
	if data, ok := c.Get(key); ok {
		return data, nil, true
	}

	fp := key.Fingerprint()
	v, err, shared := c.sf.Do(fp, func() (any, error) {
		data, err := load()
		if err != nil {
			return nil, err
		}
		if putErr := c.Put(key, data, ttl); putErr != nil {
			return nil, putErr
		}
		return data, nil
	})
	if err != nil {
		return nil, err, false
	}
	return v.([]byte), nil, shared
}

func (c *Cache) trackGroup(alias, collection, fp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gk := GroupKey{Alias: alias, Collection: collection}
	set, ok := c.groups[gk]
	if !ok {
		set = make(map[string]struct{})
		c.groups[gk] = set
	}
	set[fp] = struct{}{}
}

// Invalidate drops every cache entry whose fingerprint was produced for
// (alias, collection), per spec.md §4.5.5. It's called synchronously
// before a write's response reaches the caller, so a subsequent read by
// the same task never sees a stale hit from its own prior write
// (spec.md §5's "happens-before" ordering guarantee).
func (c *Cache) Invalidate(alias, collection string) {
	c.mu.Lock()
	gk := GroupKey{Alias: alias, Collection: collection}
	fps := c.groups[gk]
	delete(c.groups, gk)
	c.mu.Unlock()

	for fp := range fps {
		c.l1.delete(fp)
		if c.l2 != nil {
			c.l2.delete(fp)
		}
	}
}

func (c *Cache) recordHit() {
	if !c.statsOn {
		return
	}
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *Cache) recordMiss() {
	if !c.statsOn {
		return
	}
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// GetStats returns a snapshot of hit/miss counters, or ok=false when stats
// collection is disabled for this cache (spec.md's Open Question
// resolution: a cache-less alias gets ok=false rather than an error).
func (c *Cache) GetStats() (Stats, bool) {
	if !c.statsOn {
		return Stats{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: c.l1.len()}, true
}
