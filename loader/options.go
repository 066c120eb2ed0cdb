package loader

import (
	"context"

	"github.com/charmbracelet/log"
)

// EvictReason explains why a cached entry was removed.
type EvictReason int

const (
	// EvictTransient — the request that created the entry asked for a
	// single-use load; the entry is dropped right after delivery.
	EvictTransient EvictReason = iota
	// EvictCapacity — removed to satisfy the entry count limit.
	EvictCapacity
	// EvictExplicit — removed by Invalidate (e.g. the backing file changed).
	EvictExplicit
)

// Metrics exposes loader-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	LoadFinished(ok bool)
	BatchStarted(items int)
	BatchFinished(items, failed int)
	Size(entries int)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures the loader behavior. Zero values are safe;
// sane defaults are applied in New():
//   - nil Metrics   => NoopMetrics
//   - nil Logger    => logging disabled
//   - Shards <= 0   => auto (rounded up to power of two)
//   - Workers <= 0  => auto (2*GOMAXPROCS)
//   - Capacity <= 0 => unbounded (no eviction besides transient/explicit)
type Options[V any] struct {
	// Load fetches the raw object for a resource name. Required.
	// It runs on a worker goroutine; honor ctx for cancellation on Close.
	Load func(ctx context.Context, name string) (V, error)

	// Materialize derives the delivered object for requests that set
	// Request.Materialize (e.g. instantiate a prototype into a scene).
	// The raw object stays cached; materialization happens per delivery.
	// Requests that ask for it while Materialize is nil fail with
	// ErrNoMaterializer.
	Materialize func(obj V, placement any) (V, error)

	// Capacity limits the number of resident loaded entries (0 = unbounded).
	// Pending entries are never evicted: evicting an in-flight name would
	// break request coalescing.
	Capacity int

	// Shards defines the number of partitions of the name->entry map.
	// If 0, an automatic value is chosen (≈ 2*GOMAXPROCS) and rounded to
	// the next power of two.
	Shards int

	// Workers bounds how many Load calls run concurrently (0 = auto).
	Workers int

	// QueueDepth is the load queue buffer size (0 = auto, 4*Workers).
	QueueDepth int

	// Observability
	// OnEvict is called on eviction under the shard lock; keep callbacks lightweight.
	OnEvict func(name string, v V, reason EvictReason)
	Metrics Metrics
	// Logger receives batch lifecycle and load failure records. Nil disables it.
	Logger *log.Logger

	// Clock allows overriding the time source (tests). Nil => time.Now().
	Clock Clock
}
