package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// entry is what L1 actually stores: the cached payload plus enough
// bookkeeping to enforce TTL and byte-weight bounds.
type entry struct {
	data      []byte
	canonical string
	expiresAt time.Time
	bytes     int
}

// l1Tier is a bounded in-memory LRU: eviction picks the least-recently-used
// entry until both the entry-count and total-byte-weight bounds are
// satisfied (spec.md §4.5.2). Built on hashicorp/golang-lru/v2, which
// already gives recency-on-access and a RemoveOldest primitive; the byte
// bound is enforced on top since golang-lru only bounds by entry count.
type l1Tier struct {
	mu         sync.Mutex
	lru        *lru.Cache[string, entry]
	maxBytes   int64
	totalBytes int64
}

func newL1Tier(maxEntries int, maxBytes int64) (*l1Tier, error) {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	t := &l1Tier{maxBytes: maxBytes}
	c, err := lru.NewWithEvict(maxEntries, func(_ string, v entry) {
		t.totalBytes -= int64(v.bytes)
	})
	if err != nil {
		return nil, err
	}
	t.lru = c
	return t, nil
}

func (t *l1Tier) get(fp string) (entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.lru.Get(fp)
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		t.lru.Remove(fp)
		return entry{}, false
	}
	return e, true
}

func (t *l1Tier) put(fp string, e entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.lru.Peek(fp); ok {
		t.totalBytes -= int64(old.bytes)
	}
	t.lru.Add(fp, e)
	t.totalBytes += int64(e.bytes)

	for t.maxBytes > 0 && t.totalBytes > t.maxBytes && t.lru.Len() > 0 {
		if _, _, ok := t.lru.RemoveOldest(); !ok {
			break
		}
	}
}

func (t *l1Tier) delete(fp string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lru.Remove(fp)
}

func (t *l1Tier) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Len()
}

func (t *l1Tier) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lru.Purge()
	t.totalBytes = 0
}
