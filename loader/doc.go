// Package loader provides an asynchronous, de-duplicating asset loader with
// an in-memory cache, batch progress aggregation, per-item and per-batch
// completion callbacks, optional capacity-based LRU eviction, lightweight
// metrics hooks, and a finished-batch subscription hub.
//
// Design
//
//   - De-duplication: the cache keeps at most one entry per resource name.
//     A request for a name whose load is in flight attaches as an extra
//     consumer of that load; a request for a cached name is delivered from
//     the cache. Either way the load primitive runs at most once per name
//     while the entry exists.
//
//   - Batches: LoadMany registers every item and returns immediately. One
//     batch runs at a time; a second call returns ErrBatchActive and does
//     nothing. Duplicate names inside a batch share one load but each get
//     their own delivery and progress increment, so Progress() is
//     completed requests / total requests and reads exactly 1.0 when the
//     batch callback fires. A batch finishes when every item reached a
//     terminal state — failed items do not keep it open.
//
//   - Concurrency: the cache is split into shards, each protected by a
//     mutex. Loads execute on a bounded worker pool; all cache and batch
//     mutations happen under locks, while consumer callbacks always run
//     outside them. Hot counters are padded to cache lines.
//
//   - Delivery: every consumer callback is invoked exactly once, with
//     either a value or an error, and never reentrantly during request
//     submission — cache hits are delivered asynchronously too.
//
//   - Materialization: requests may ask for a derived object built by
//     Options.Materialize (for example, an instance placed into a scene).
//     The cache always stores the raw object; materialization happens per
//     delivery, so consumers of one load can disagree about it.
//
//   - Lifecycle: Cleanup drops every entry and resets batch state at any
//     time, including mid-batch; loads still in flight complete as safe
//     no-ops. Close stops the worker pool and cancels outstanding loads.
//
//   - Metrics: Options.Metrics receives hit/miss/evict/load/batch signals.
//     By default NoopMetrics is used; plug the Prometheus adapter from
//     metrics/prom to export them.
//
// Basic usage
//
//	l := loader.New[[]byte](loader.Options[[]byte]{
//	    Load: func(ctx context.Context, name string) ([]byte, error) {
//	        return os.ReadFile(filepath.Join("assets", name))
//	    },
//	})
//	defer l.Close()
//
//	done := make(chan loader.BatchStats, 1)
//	_ = l.LoadNames([]string{"mesh/rock.obj", "tex/rock.png"}, func(s loader.BatchStats) {
//	    done <- s
//	})
//	<-done
//	if raw, ok := l.GetCached("tex/rock.png"); ok {
//	    _ = raw // use value
//	}
//
// Per-item control
//
//	_ = l.LoadMany([]loader.Request[[]byte]{
//	    {Name: "tex/ui.png"},
//	    {Name: "cutscene/intro.bin", Transient: true}, // played once, not kept
//	    {Name: "prefab/tree", Materialize: true, Placement: spawnPoint,
//	        OnDone: func(r loader.Result[[]byte]) { /* placed instance or error */ }},
//	}, nil)
//
// Synchronous loads coalesce with batches
//
//	v, err := l.Load(ctx, "tex/rock.png") // joins an in-flight load, if any
//
// Thread-safety
//
// All methods on Loader are safe for concurrent use. Callbacks run on
// loader goroutines: keep them short and non-blocking, and do not call
// back into the loader from OnDone while holding your own locks.
package loader
