package loader

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Request describes one item of a batch.
type Request[V any] struct {
	// Name identifies the resource. Duplicate names inside one batch are
	// allowed: the underlying load happens once, every duplicate is
	// delivered and counted toward progress individually.
	Name string

	// Transient requests drop the cache entry as soon as every waiting
	// consumer has been delivered (single-use assets). When several
	// requests race for the same name, the one that creates the entry
	// decides whether it is transient.
	Transient bool

	// Materialize asks for the materialized form (Options.Materialize)
	// instead of the raw loaded object. Honored per request at delivery
	// time; the cache always stores the raw object.
	Materialize bool

	// Placement is passed through to Options.Materialize. May be nil.
	Placement any

	// OnDone is invoked exactly once with the item's terminal result.
	// It runs on a loader goroutine; keep it non-blocking. May be nil.
	OnDone func(Result[V])
}

// Result is the terminal outcome of one requested item.
type Result[V any] struct {
	Name  string
	Value V
	Err   error
}

// BatchStats summarizes a finished batch.
type BatchStats struct {
	ID        uuid.UUID
	Requested int
	Failed    int
	Elapsed   time.Duration
}

// Stats is a point-in-time snapshot of loader counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Loads     uint64
	LoadFails uint64
	Evictions uint64
	Batches   uint64
	Resident  int
}

// Loader is an asynchronous, de-duplicating asset loader with an in-memory
// cache. All methods are safe for concurrent use by multiple goroutines.
//
// At most one batch is in flight at a time; individual Load calls may run
// concurrently with a batch and coalesce onto the same in-flight entries.
type Loader[V any] interface {
	// LoadMany starts an asynchronous batch. It returns immediately;
	// onDone fires exactly once, strictly after every item's OnDone,
	// even when some items fail. Returns ErrBatchActive if a batch is
	// already running (nothing is started) and ErrClosed after Close.
	LoadMany(specs []Request[V], onDone func(BatchStats)) error

	// LoadNames is LoadMany with default per-item settings
	// (cacheable, raw delivery, no per-item callback).
	LoadNames(names []string, onDone func(BatchStats)) error

	// Load fetches a single resource synchronously, joining any in-flight
	// load for the same name. The result is cached like a non-transient
	// batch item.
	Load(ctx context.Context, name string) (V, error)

	// GetCached returns the raw cached object for name, if its load has
	// completed. It never triggers a load; a pending entry is a miss.
	GetCached(name string) (V, bool)

	// Invalidate drops the cached entry for name, if loaded. Pending
	// entries are left alone (in-flight consumers must still be served).
	Invalidate(name string) bool

	// IsLoading reports whether a batch is currently active.
	IsLoading() bool

	// Progress returns completedRequests/totalRequests of the current (or
	// last finished) batch, counting duplicate names on both sides.
	// 0 if no batch has started since construction or Cleanup.
	Progress() float64

	// Elapsed returns the running time of the active batch, or the final
	// duration of the last finished one. Zero after Cleanup.
	Elapsed() time.Duration

	// Subscribe registers fn to run after every finished batch, after the
	// batch's own onDone callback. The returned cancel removes it.
	Subscribe(fn func(BatchStats)) (cancel func())

	// Stats returns a snapshot of the loader counters.
	Stats() Stats

	// Len returns the number of resident loaded entries.
	Len() int

	// Cleanup drops every cache entry and resets batch state, progress and
	// the elapsed clock. Safe mid-batch: results of still-running loads
	// are discarded when they complete.
	Cleanup()

	// Close stops the worker pool and cancels outstanding loads.
	Close() error
}
