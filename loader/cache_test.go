package loader

import (
	"context"
	"sync"
	"testing"
	"time"
)

// Deterministic LRU eviction: single shard, small capacity.
// Accessing "a" promotes it; loading "c" evicts the LRU entry ("b").
func TestEviction_LRU(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	evicted := map[string]EvictReason{}

	l := New[string](Options[string]{
		Capacity: 2,
		Shards:   1, // force a single shard so LRU is global
		Load: func(_ context.Context, name string) (string, error) {
			return "v:" + name, nil
		},
		OnEvict: func(name string, v string, reason EvictReason) {
			mu.Lock()
			evicted[name] = reason
			mu.Unlock()
		},
	})
	t.Cleanup(func() { _ = l.Close() })

	done := make(chan BatchStats, 1)
	load := func(name string) {
		t.Helper()
		if err := l.LoadNames([]string{name}, func(s BatchStats) { done <- s }); err != nil {
			t.Fatal(err)
		}
		waitDone(t, done)
	}

	load("a") // LRU = a
	load("b") // MRU = b
	if _, ok := l.GetCached("a"); !ok { // promote a -> MRU
		t.Fatal("expect hit for a")
	}
	load("c") // overflow -> evict LRU (b)

	if _, ok := l.GetCached("b"); ok {
		t.Fatal("b must be evicted")
	}
	if _, ok := l.GetCached("a"); !ok {
		t.Fatal("a must survive (promoted)")
	}
	if _, ok := l.GetCached("c"); !ok {
		t.Fatal("c must be present")
	}
	mu.Lock()
	defer mu.Unlock()
	if reason, ok := evicted["b"]; !ok || reason != EvictCapacity {
		t.Fatalf("OnEvict for b: want EvictCapacity, got %v (seen=%v)", reason, ok)
	}
}

// Invalidate removes loaded entries only; a pending entry keeps its waiters
// and resolves normally.
func TestInvalidate(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	l := New[string](Options[string]{
		Load: func(ctx context.Context, name string) (string, error) {
			if name == "slow" {
				select {
				case <-release:
				case <-ctx.Done():
					return "", ctx.Err()
				}
			}
			return "v:" + name, nil
		},
	})
	t.Cleanup(func() { _ = l.Close() })

	if l.Invalidate("missing") {
		t.Fatal("Invalidate of an unknown name must be false")
	}

	done := make(chan BatchStats, 1)
	if err := l.LoadNames([]string{"fast"}, func(s BatchStats) { done <- s }); err != nil {
		t.Fatal(err)
	}
	waitDone(t, done)
	if !l.Invalidate("fast") {
		t.Fatal("Invalidate of a loaded entry must be true")
	}
	if _, ok := l.GetCached("fast"); ok {
		t.Fatal("fast must be gone after Invalidate")
	}

	// Pending entry: Invalidate refuses, the in-flight load still lands.
	if err := l.LoadNames([]string{"slow"}, func(s BatchStats) { done <- s }); err != nil {
		t.Fatal(err)
	}
	if l.Invalidate("slow") {
		t.Fatal("Invalidate of a pending entry must be false")
	}
	close(release)
	waitDone(t, done)
	if v, ok := l.GetCached("slow"); !ok || v != "v:slow" {
		t.Fatalf("pending entry must resolve after refused Invalidate, got %q ok=%v", v, ok)
	}
}

// Transient evictions surface through OnEvict with their own reason.
func TestOnEvict_Transient(t *testing.T) {
	t.Parallel()

	reasons := make(chan EvictReason, 1)
	l := New[string](Options[string]{
		Load: func(_ context.Context, name string) (string, error) { return "v", nil },
		OnEvict: func(name string, v string, reason EvictReason) {
			reasons <- reason
		},
	})
	t.Cleanup(func() { _ = l.Close() })

	done := make(chan BatchStats, 1)
	err := l.LoadMany([]Request[string]{{Name: "once", Transient: true}},
		func(s BatchStats) { done <- s })
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, done)

	select {
	case r := <-reasons:
		if r != EvictTransient {
			t.Fatalf("want EvictTransient, got %v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("OnEvict not called for transient entry")
	}
}

// Shard-level contract: one entry per name, waiters attach while pending,
// and the first creator fixes the transient flag.
func TestShard_RequestOutcomes(t *testing.T) {
	t.Parallel()

	s := newShard[string](0, Options[string]{Metrics: NoopMetrics{}})
	noop := waiter[string]{deliver: func(string, error) {}}

	out, e, _ := s.request("a", noop, false)
	if out != reqStarted || e == nil {
		t.Fatalf("first request: want reqStarted, got %v", out)
	}
	out2, e2, _ := s.request("a", noop, true) // transient flag ignored: not the creator
	if out2 != reqJoined || e2 != e {
		t.Fatalf("second request: want reqJoined on same entry, got %v", out2)
	}
	if e.transient {
		t.Fatal("joiner must not flip the transient flag")
	}

	ws, ok := s.complete(e, "v", nil)
	if !ok || len(ws) != 2 {
		t.Fatalf("complete: want 2 waiters, got %d ok=%v", len(ws), ok)
	}
	out3, _, v := s.request("a", noop, false)
	if out3 != reqHit || v != "v" {
		t.Fatalf("after completion: want reqHit with v, got %v %q", out3, v)
	}
}

// A completion for an entry that was cleared (or replaced by a newer load of
// the same name) is reported as stale and carries no waiters.
func TestShard_OrphanedCompletion(t *testing.T) {
	t.Parallel()

	s := newShard[string](0, Options[string]{Metrics: NoopMetrics{}})
	noop := waiter[string]{deliver: func(string, error) {}}

	_, e1, _ := s.request("a", noop, false)
	s.clear()

	if ws, ok := s.complete(e1, "v1", nil); ok || ws != nil {
		t.Fatal("completion after clear must be orphaned")
	}

	// Same name again: a distinct entry; the old completion must not touch it.
	out, e2, _ := s.request("a", noop, false)
	if out != reqStarted || e2 == e1 {
		t.Fatal("post-clear request must start a fresh entry")
	}
	if _, ok := s.complete(e1, "v1", nil); ok {
		t.Fatal("stale entry completion must be rejected by identity, not name")
	}
	if ws, ok := s.complete(e2, "v2", nil); !ok || len(ws) != 1 {
		t.Fatalf("current entry completion must succeed, got ok=%v waiters=%d", ok, len(ws))
	}
	if v, ok := s.get("a"); !ok || v != "v2" {
		t.Fatalf("cache must hold the new value, got %q ok=%v", v, ok)
	}
}
