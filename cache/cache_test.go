package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pranaya-mathur/sovereign-gateway/contracts"
)

func TestSetThenGet(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "cache.json"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	e := Entry{Decision: contracts.ActionAllow, Confidence: 0.9, Reasoning: "fine", StoredAt: time.Now()}
	c.Set("prompt", map[string]string{"user": "a"}, e)

	got, ok := c.Get("prompt", map[string]string{"user": "a"})
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got.Decision != contracts.ActionAllow || got.Reasoning != "fine" {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestGetMissOnDifferentContext(t *testing.T) {
	c, _ := Load(filepath.Join(t.TempDir(), "cache.json"), time.Hour)
	c.Set("prompt", map[string]string{"user": "a"}, Entry{Decision: contracts.ActionAllow})

	if _, ok := c.Get("prompt", map[string]string{"user": "b"}); ok {
		t.Fatal("expected a miss for a different context")
	}
}

func TestGetExpiredEntryEvicted(t *testing.T) {
	c, _ := Load(filepath.Join(t.TempDir(), "cache.json"), time.Millisecond)
	c.Set("prompt", nil, Entry{Decision: contracts.ActionBlock, StoredAt: time.Now()})
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("prompt", nil); ok {
		t.Fatal("expected expired entry to be evicted")
	}
	if n := c.Sweep(); n != 0 {
		t.Fatalf("expected sweep to find nothing left after lazy eviction, got %d", n)
	}
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	c, _ := Load(filepath.Join(t.TempDir(), "cache.json"), time.Millisecond)
	c.Set("a", nil, Entry{StoredAt: time.Now()})
	c.Set("b", nil, Entry{StoredAt: time.Now()})
	time.Sleep(5 * time.Millisecond)

	if n := c.Sweep(); n != 2 {
		t.Fatalf("expected 2 expired entries swept, got %d", n)
	}
	if stats := c.Stats(); stats.Size != 0 {
		t.Fatalf("expected empty cache after sweep, got size %d", stats.Size)
	}
}

func TestLoadPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	c1, err := Load(path, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	c1.Set("prompt", nil, Entry{Decision: contracts.ActionBlock, Confidence: 0.9, StoredAt: time.Now()})

	c2, err := Load(path, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := c2.Get("prompt", nil)
	if !ok {
		t.Fatal("expected the reloaded cache to contain the persisted entry")
	}
	if got.Decision != contracts.ActionBlock {
		t.Fatalf("unexpected reloaded decision: %s", got.Decision)
	}
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"), time.Hour)
	if err != nil {
		t.Fatalf("missing cache file should not be an error: %v", err)
	}
	if stats := c.Stats(); stats.Size != 0 {
		t.Fatalf("expected empty cache, got size %d", stats.Size)
	}
}

func TestStatsTracksHitsAndMisses(t *testing.T) {
	c, _ := Load(filepath.Join(t.TempDir(), "cache.json"), time.Hour)
	c.Set("prompt", nil, Entry{Decision: contracts.ActionAllow, StoredAt: time.Now()})

	c.Get("prompt", nil)
	c.Get("prompt", nil)
	c.Get("missing", nil)

	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestGetOrComputeCoalescesComputeOnMiss(t *testing.T) {
	c, _ := Load(filepath.Join(t.TempDir(), "cache.json"), time.Hour)
	calls := 0
	compute := func() (Entry, bool, error) {
		calls++
		return Entry{Decision: contracts.ActionAllow, StoredAt: time.Now()}, true, nil
	}

	e1, hit1, err := c.GetOrCompute(context.Background(), "prompt", nil, compute)
	if err != nil || hit1 {
		t.Fatalf("expected a fresh compute on first call: hit=%v err=%v", hit1, err)
	}
	e2, hit2, err := c.GetOrCompute(context.Background(), "prompt", nil, compute)
	if err != nil || !hit2 {
		t.Fatalf("expected a cache hit on second call: hit=%v err=%v", hit2, err)
	}
	if calls != 1 {
		t.Fatalf("expected compute to run exactly once, ran %d times", calls)
	}
	if e1.Decision != e2.Decision {
		t.Fatalf("expected identical decisions across calls: %+v vs %+v", e1, e2)
	}
}
