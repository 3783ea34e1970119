// Package cache implements the content-addressed decision cache: Tier 3's
// memory of past LLM judgments, keyed by the hash of the prompt and its
// context, durably snapshotted to disk, and expired lazily by TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pranaya-mathur/sovereign-gateway/contracts"
)

// DefaultTTL is the cache entry lifetime used when none is configured: 7
// days, matching the reference decision cache's 168-hour default.
const DefaultTTL = 7 * 24 * time.Hour

// Entry is one cached Tier-3 judgment.
type Entry struct {
	Decision   contracts.Action `json:"decision"`
	Confidence float64          `json:"confidence"`
	Reasoning  string           `json:"reasoning"`
	StoredAt   time.Time        `json:"stored_at"`
}

func (e Entry) expired(ttl time.Duration) bool {
	return time.Since(e.StoredAt) >= ttl
}

// snapshot is the schema-versioned shape persisted to disk.
type snapshot struct {
	SchemaVersion string           `json:"schema_version"`
	Entries       map[string]Entry `json:"entries"`
}

const schemaVersion = "1.0.0"

// Stats summarizes cache activity.
type Stats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Cache is a TTL-based, disk-backed decision cache safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	path    string
	ttl     time.Duration
	entries map[string]Entry

	group         singleflight.Group
	hits, misses  atomic.Int64
}

// Load opens (or creates) a cache backed by the JSON snapshot at path. A
// missing file is not an error: the cache starts empty, matching the
// reference loader's "missing cache directory" tolerance.
func Load(path string, ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		path:    path,
		ttl:     ttl,
		entries: make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("reading cache snapshot %s: %w", path, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// A corrupt snapshot is treated the same as a missing one: the
		// cache rebuilds empty rather than failing startup.
		return c, nil
	}
	if snap.Entries != nil {
		c.entries = snap.Entries
	}
	return c, nil
}

// Key computes the content-addressed cache key for a prompt and context:
// SHA-256 of "prompt\x00canonical_json(context)". Marshaling a Go map with
// string keys already produces lexicographically sorted keys, which is what
// makes this canonical.
func Key(prompt string, reqContext map[string]string) string {
	ctxJSON, _ := json.Marshal(reqContext)
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write(ctxJSON)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached entry for (prompt, context) if present and not
// expired. An expired entry is evicted before Get reports a miss.
func (c *Cache) Get(prompt string, reqContext map[string]string) (Entry, bool) {
	key := Key(prompt, reqContext)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return Entry{}, false
	}
	if e.expired(c.ttl) {
		delete(c.entries, key)
		c.persistLocked()
		c.misses.Add(1)
		return Entry{}, false
	}
	c.hits.Add(1)
	return e, true
}

// Set stores (overwriting any prior value) the entry for (prompt, context)
// and persists the snapshot. Write errors are silently dropped: this is a
// best-effort cache, not a store of record.
func (c *Cache) Set(prompt string, reqContext map[string]string, e Entry) {
	key := Key(prompt, reqContext)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = e
	c.persistLocked()
}

// GetOrCompute coalesces concurrent identical-key lookups through
// singleflight so that N simultaneous requests for the same uncached
// (prompt, context) pair result in exactly one compute call, the Go
// equivalent of the reference agent's implicit single-threaded assumption.
// compute returns the entry to return to the caller and whether it should
// be persisted to the cache (a provider failure should not poison future
// lookups, so the caller passes shouldCache=false for those).
func (c *Cache) GetOrCompute(_ context.Context, prompt string, reqContext map[string]string, compute func() (Entry, bool, error)) (Entry, bool, error) {
	if e, ok := c.Get(prompt, reqContext); ok {
		return e, true, nil
	}

	key := Key(prompt, reqContext)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		e, shouldCache, cerr := compute()
		if cerr != nil {
			return e, cerr
		}
		if shouldCache {
			c.Set(prompt, reqContext, e)
		}
		return e, nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	return v.(Entry), false, nil
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if e.expired(c.ttl) {
			delete(c.entries, k)
			removed++
		}
	}
	if removed > 0 {
		c.persistLocked()
	}
	return removed
}

// Stats reports current cache size and hit/miss counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	size := len(c.entries)
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{Size: size, Hits: hits, Misses: misses, HitRate: hitRate}
}

// persistLocked writes the current entry set to disk using an atomic
// temp-file-then-rename, matching the durable-write discipline used
// elsewhere for JSON snapshots in this project. Called with c.mu held.
func (c *Cache) persistLocked() {
	if c.path == "" {
		return
	}

	snap := snapshot{SchemaVersion: schemaVersion, Entries: c.entries}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}

	tmp, err := os.CreateTemp(dir, ".cache-*.tmp")
	if err != nil {
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return
	}
}
