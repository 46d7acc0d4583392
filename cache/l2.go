package cache

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/forbearing/godm/config"
	"github.com/klauspost/compress/zstd"
)

// manifestEntry is one row of the L2 manifest file (spec.md §6: "Persisted
// cache layout"): fingerprint, created_at, expires_at, bytes, compressed.
type manifestEntry struct {
	Fingerprint string    `json:"fingerprint"`
	Canonical   string    `json:"canonical"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Bytes       int       `json:"bytes"`
	Compressed  bool      `json:"compressed"`
}

type manifest struct {
	VersionTag string                   `json:"version_tag"`
	Entries    map[string]manifestEntry `json:"entries"`
}

// l2Tier is the file-backed store keyed by fingerprint. A single writer
// goroutine serializes every mutation (the "actor" spec.md §5 calls for);
// reads may run concurrently since they only touch already-written files.
type l2Tier struct {
	dir              string
	maxBytes         int64
	compressionLevel zstd.EncoderLevel
	wal              bool

	mu       sync.Mutex
	man      manifest
	totalSz  int64
	requests chan func()
	done     chan struct{}

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newL2Tier(cfg *config.L2Config, versionTag string) (*l2Tier, error) {
	if cfg == nil {
		return nil, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "cache: creating L2 directory")
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevel(cfg.CompressionLevel)))
	if err != nil {
		return nil, errors.Wrap(err, "cache: creating zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "cache: creating zstd decoder")
	}

	t := &l2Tier{
		dir:              cfg.Dir,
		maxBytes:         cfg.MaxBytes,
		compressionLevel: zstd.EncoderLevel(cfg.CompressionLevel),
		wal:              cfg.WAL,
		requests:         make(chan func(), 64),
		done:             make(chan struct{}),
		encoder:          enc,
		decoder:          dec,
	}

	if cfg.ClearOnStartup {
		if err := t.clearOnDisk(); err != nil {
			return nil, err
		}
	}
	if err := t.loadManifest(versionTag); err != nil {
		return nil, err
	}

	go t.run()
	return t, nil
}

func (t *l2Tier) manifestPath() string { return filepath.Join(t.dir, "manifest.json") }
func (t *l2Tier) blobPath(fp string) string { return filepath.Join(t.dir, fp+".blob") }

func (t *l2Tier) loadManifest(versionTag string) error {
	data, err := os.ReadFile(t.manifestPath())
	if errors.Is(err, os.ErrNotExist) {
		t.man = manifest{VersionTag: versionTag, Entries: map[string]manifestEntry{}}
		return t.writeManifestLocked()
	}
	if err != nil {
		return errors.Wrap(err, "cache: reading L2 manifest")
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return errors.Wrap(err, "cache: parsing L2 manifest")
	}
	// A version marker mismatch triggers a full clear on startup (spec.md §6).
	if m.VersionTag != versionTag {
		if err := t.clearOnDisk(); err != nil {
			return err
		}
		t.man = manifest{VersionTag: versionTag, Entries: map[string]manifestEntry{}}
		return t.writeManifestLocked()
	}
	t.man = m
	for _, e := range m.Entries {
		t.totalSz += int64(e.Bytes)
	}
	return nil
}

func (t *l2Tier) clearOnDisk() error {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return errors.Wrap(err, "cache: listing L2 directory")
	}
	for _, e := range entries {
		if err := os.Remove(filepath.Join(t.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "cache: clearing L2 directory")
		}
	}
	t.totalSz = 0
	return nil
}

func (t *l2Tier) writeManifestLocked() error {
	data, err := json.Marshal(t.man)
	if err != nil {
		return errors.Wrap(err, "cache: encoding L2 manifest")
	}
	tmp := t.manifestPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "cache: writing L2 manifest")
	}
	return os.Rename(tmp, t.manifestPath())
}

// run is the single L2 writer actor: every mutation is funneled through
// this goroutine so concurrent callers never interleave manifest writes.
func (t *l2Tier) run() {
	for {
		select {
		case fn := <-t.requests:
			fn()
		case <-t.done:
			return
		}
	}
}

func (t *l2Tier) close() {
	close(t.done)
}

func (t *l2Tier) get(fp string) (entry, bool) {
	t.mu.Lock()
	me, ok := t.man.Entries[fp]
	t.mu.Unlock()
	if !ok {
		return entry{}, false
	}
	if !me.ExpiresAt.IsZero() && time.Now().After(me.ExpiresAt) {
		t.delete(fp)
		return entry{}, false
	}

	raw, err := os.ReadFile(t.blobPath(fp))
	if err != nil {
		return entry{}, false
	}
	if me.Compressed {
		raw, err = t.decoder.DecodeAll(raw, nil)
		if err != nil {
			return entry{}, false
		}
	}
	return entry{data: raw, canonical: me.Canonical, expiresAt: me.ExpiresAt, bytes: me.Bytes}, true
}

// put writes synchronously but routes the manifest mutation through the
// single-writer actor so concurrent puts never race on the manifest file.
func (t *l2Tier) put(fp string, e entry, compress bool) error {
	payload := e.data
	if compress {
		payload = t.encoder.EncodeAll(e.data, nil)
	}
	if err := os.WriteFile(t.blobPath(fp), payload, 0o644); err != nil {
		return errors.Wrap(err, "cache: writing L2 blob")
	}
	if t.wal {
		if err := t.appendWAL(fp, "put"); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	t.requests <- func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if old, ok := t.man.Entries[fp]; ok {
			t.totalSz -= int64(old.Bytes)
		}
		t.man.Entries[fp] = manifestEntry{
			Fingerprint: fp,
			Canonical:   e.canonical,
			CreatedAt:   time.Now(),
			ExpiresAt:   e.expiresAt,
			Bytes:       len(payload),
			Compressed:  compress,
		}
		t.totalSz += int64(len(payload))
		t.evictIfOverweightLocked()
		errCh <- t.writeManifestLocked()
	}
	return <-errCh
}

func (t *l2Tier) evictIfOverweightLocked() {
	if t.maxBytes <= 0 {
		return
	}
	for t.totalSz > t.maxBytes && len(t.man.Entries) > 0 {
		var oldestFP string
		var oldest time.Time
		first := true
		for fp, e := range t.man.Entries {
			if first || e.CreatedAt.Before(oldest) {
				oldestFP, oldest, first = fp, e.CreatedAt, false
			}
		}
		t.totalSz -= int64(t.man.Entries[oldestFP].Bytes)
		delete(t.man.Entries, oldestFP)
		_ = os.Remove(t.blobPath(oldestFP))
	}
}

func (t *l2Tier) delete(fp string) {
	errCh := make(chan struct{}, 1)
	t.requests <- func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if old, ok := t.man.Entries[fp]; ok {
			t.totalSz -= int64(old.Bytes)
			delete(t.man.Entries, fp)
			_ = os.Remove(t.blobPath(fp))
			_ = t.writeManifestLocked()
		}
		errCh <- struct{}{}
	}
	<-errCh
}

func (t *l2Tier) clear() {
	done := make(chan struct{}, 1)
	t.requests <- func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for fp := range t.man.Entries {
			_ = os.Remove(t.blobPath(fp))
		}
		t.man.Entries = map[string]manifestEntry{}
		t.totalSz = 0
		_ = t.writeManifestLocked()
		done <- struct{}{}
	}
	<-done
}

func (t *l2Tier) appendWAL(fp, op string) error {
	f, err := os.OpenFile(filepath.Join(t.dir, "wal.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "cache: opening L2 WAL")
	}
	defer f.Close()
	_, err = io.WriteString(f, time.Now().Format(time.RFC3339Nano)+" "+op+" "+fp+"\n")
	return err
}
