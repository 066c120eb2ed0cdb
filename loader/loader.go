package loader

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/IvanBrykalov/assetcache/internal/util"
)

var (
	// ErrBatchActive is returned by LoadMany/LoadNames while another batch
	// is running. Nothing is started; callers that want fire-and-forget
	// semantics may ignore it, but it is a distinguishable result on
	// purpose — a silently dropped batch is hard to debug.
	ErrBatchActive = errors.New("loader: batch already active")

	// ErrNoMaterializer is delivered to requests that set Materialize when
	// no Options.Materialize function was configured.
	ErrNoMaterializer = errors.New("loader: no Materialize function configured")

	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("loader: closed")
)

// loadTask carries a freshly created pending entry to the worker pool.
type loadTask[V any] struct {
	e  *entry[V]
	sh *shard[V]
}

type loaderImpl[V any] struct {
	shards []*shard[V]
	opt    Options[V]
	logger *log.Logger

	batch batchState
	hub   hub

	jobs   chan loadTask[V]
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	loads     util.PaddedAtomicUint64
	loadFails util.PaddedAtomicUint64
	batches   util.PaddedAtomicUint64
}

// New constructs a loader with the provided Options and starts its worker
// pool. Options.Load is required; everything else has nil-safe defaults.
func New[V any](opt Options[V]) Loader[V] {
	if opt.Load == nil {
		panic("Options.Load must be provided")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}

	sh := opt.Shards
	if sh <= 0 {
		sh = util.ReasonableShardCount()
	} else {
		sh = int(util.NextPow2(uint64(sh)))
	}

	workers := opt.Workers
	if workers <= 0 {
		workers = 2 * runtime.GOMAXPROCS(0)
	}
	depth := opt.QueueDepth
	if depth <= 0 {
		depth = 4 * workers
	}

	cs := make([]*shard[V], sh)
	perShardCap := 0
	if opt.Capacity > 0 {
		perShardCap = (opt.Capacity + sh - 1) / sh // split capacity evenly (ceil)
	}
	for i := range cs {
		cs[i] = newShard[V](perShardCap, opt)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &loaderImpl[V]{
		shards: cs,
		opt:    opt,
		logger: opt.Logger,
		jobs:   make(chan loadTask[V], depth),
		ctx:    ctx,
		cancel: cancel,
	}
	l.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go l.worker()
	}
	// return pointer-to-impl as the interface (avoids unexported-return lint)
	return l
}

// ---- Loader[V] implementation ----

// LoadMany starts an asynchronous batch; see Loader for the contract.
func (l *loaderImpl[V]) LoadMany(specs []Request[V], onDone func(BatchStats)) error {
	if l.closed.Load() {
		return ErrClosed
	}
	gen, id, emptyStats, err := l.batch.tryStart(len(specs), onDone, l.now())
	if err != nil {
		return err
	}
	l.batches.Add(1)
	l.opt.Metrics.BatchStarted(len(specs))
	if l.logger != nil {
		l.logger.Info("batch started", "batch", id, "items", len(specs))
	}
	if emptyStats != nil {
		// Zero items: complete right away, but never reentrantly.
		stats := *emptyStats
		go l.fireDone(onDone, stats)
		return nil
	}
	for i := range specs {
		l.requestItem(gen, specs[i])
	}
	return nil
}

// LoadNames is LoadMany with default per-item settings.
func (l *loaderImpl[V]) LoadNames(names []string, onDone func(BatchStats)) error {
	specs := make([]Request[V], len(names))
	for i, n := range names {
		specs[i] = Request[V]{Name: n}
	}
	return l.LoadMany(specs, onDone)
}

// requestItem runs the per-item path: cache hit, join an in-flight load, or
// create the entry and schedule the load. Each duplicate of a name gets its
// own delivery and its own progress increment; the load itself runs once.
func (l *loaderImpl[V]) requestItem(gen uint64, spec Request[V]) {
	name := spec.Name
	onDone := spec.OnDone
	w := waiter[V]{
		materialize: spec.Materialize,
		placement:   spec.Placement,
		deliver: func(v V, err error) {
			if onDone != nil {
				onDone(Result[V]{Name: name, Value: v, Err: err})
			}
			if done, cb, stats := l.batch.itemDone(gen, err != nil, l.now()); done {
				l.fireDone(cb, stats)
			}
		},
	}

	sh := l.shardFor(name)
	switch out, e, v := sh.request(name, w, spec.Transient); out {
	case reqHit:
		// Deliver asynchronously so submission never reenters caller code
		// and hits cannot overtake the submission loop.
		go l.deliver(w, name, v, nil)
	case reqStarted:
		l.dispatch(loadTask[V]{e: e, sh: sh})
	case reqJoined:
		// The in-flight load fans out to this waiter on completion.
	}
}

// Load fetches a single resource synchronously, coalescing with any
// in-flight load for the same name (batch or not).
func (l *loaderImpl[V]) Load(ctx context.Context, name string) (V, error) {
	var zero V
	if l.closed.Load() {
		return zero, ErrClosed
	}
	ch := make(chan Result[V], 1) // buffered: delivery must not block on an abandoned waiter
	w := waiter[V]{deliver: func(v V, err error) {
		ch <- Result[V]{Name: name, Value: v, Err: err}
	}}

	sh := l.shardFor(name)
	out, e, v := sh.request(name, w, false)
	switch out {
	case reqHit:
		return v, nil
	case reqStarted:
		l.dispatch(loadTask[V]{e: e, sh: sh})
	}

	select {
	case r := <-ch:
		return r.Value, r.Err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-l.ctx.Done():
		return zero, ErrClosed
	}
}

// GetCached returns the raw cached object; it never triggers a load.
func (l *loaderImpl[V]) GetCached(name string) (V, bool) {
	return l.shardFor(name).get(name)
}

// Invalidate drops the loaded entry for name, if present.
func (l *loaderImpl[V]) Invalidate(name string) bool {
	removed := l.shardFor(name).remove(name)
	if removed && l.logger != nil {
		l.logger.Debug("entry invalidated", "name", name)
	}
	return removed
}

func (l *loaderImpl[V]) IsLoading() bool { return l.batch.isActive() }

func (l *loaderImpl[V]) Progress() float64 { return l.batch.progress() }

func (l *loaderImpl[V]) Elapsed() time.Duration { return l.batch.elapsed(l.now()) }

// Subscribe registers fn for finished-batch notifications.
func (l *loaderImpl[V]) Subscribe(fn func(BatchStats)) func() {
	return l.hub.subscribe(fn)
}

// Stats returns a snapshot of the loader counters.
func (l *loaderImpl[V]) Stats() Stats {
	var st Stats
	for _, s := range l.shards {
		st.Hits += s.hits.Load()
		st.Misses += s.misses.Load()
		st.Evictions += s.evicts.Load()
		st.Resident += s.resident()
	}
	st.Loads = l.loads.Load()
	st.LoadFails = l.loadFails.Load()
	st.Batches = l.batches.Load()
	return st
}

// Len returns the total number of resident loaded entries across all shards.
func (l *loaderImpl[V]) Len() int {
	total := 0
	for _, s := range l.shards {
		total += s.resident()
	}
	return total
}

// Cleanup drops every entry and resets batch state. Loads still in flight
// become orphans: complete() no longer finds their entries, so their
// results are discarded and no callback fires for them.
func (l *loaderImpl[V]) Cleanup() {
	l.batch.reset()
	for _, s := range l.shards {
		s.clear()
	}
	if l.logger != nil {
		l.logger.Info("cache cleared")
	}
}

// Close stops the worker pool and cancels outstanding Load calls.
// Idempotent; always returns nil.
func (l *loaderImpl[V]) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.cancel()
	l.wg.Wait()
	return nil
}

// ---- workers ----

// dispatch hands a pending entry to the pool without ever blocking the
// requester: LoadMany must return immediately even when the queue is full.
func (l *loaderImpl[V]) dispatch(t loadTask[V]) {
	select {
	case l.jobs <- t:
	default:
		go l.submit(t)
	}
}

func (l *loaderImpl[V]) submit(t loadTask[V]) {
	select {
	case l.jobs <- t:
	case <-l.ctx.Done():
	}
}

func (l *loaderImpl[V]) worker() {
	defer l.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case t := <-l.jobs:
			l.runLoad(t)
		}
	}
}

// runLoad executes the load primitive for one pending entry, publishes the
// outcome, and fans it out to every waiter attached before completion.
func (l *loaderImpl[V]) runLoad(t loadTask[V]) {
	name := t.e.name
	v, err := l.opt.Load(l.ctx, name)
	if err != nil {
		err = fmt.Errorf("load %q: %w", name, err)
		l.loadFails.Add(1)
		if l.logger != nil {
			l.logger.Error("load failed", "name", name, "err", err)
		}
	}
	l.loads.Add(1)
	l.opt.Metrics.LoadFinished(err == nil)

	ws, ok := t.sh.complete(t.e, v, err)
	if !ok {
		// Cleanup ran while the load was in flight; drop the result.
		if l.logger != nil {
			l.logger.Debug("orphaned load discarded", "name", name)
		}
		return
	}
	for _, w := range ws {
		l.deliver(w, name, v, err)
	}
}

// deliver materializes on demand and invokes one waiter. Runs outside all
// locks; each waiter picks raw vs materialized independently, so duplicate
// requests for one name can disagree and both are honored.
func (l *loaderImpl[V]) deliver(w waiter[V], name string, v V, err error) {
	out := v
	if err == nil && w.materialize {
		if m := l.opt.Materialize; m == nil {
			err = fmt.Errorf("deliver %q: %w", name, ErrNoMaterializer)
		} else if mv, merr := m(v, w.placement); merr != nil {
			err = fmt.Errorf("materialize %q: %w", name, merr)
		} else {
			out = mv
		}
	}
	if err != nil {
		var zero V
		out = zero
	}
	w.deliver(out, err)
}

// fireDone finishes a batch: metrics, log, the batch's own callback, then
// the subscriber fan-out. Runs strictly after every item delivery.
func (l *loaderImpl[V]) fireDone(cb func(BatchStats), stats BatchStats) {
	l.opt.Metrics.BatchFinished(stats.Requested, stats.Failed)
	if l.logger != nil {
		l.logger.Info("batch finished",
			"batch", stats.ID, "items", stats.Requested,
			"failed", stats.Failed, "elapsed", stats.Elapsed)
	}
	if cb != nil {
		cb(stats)
	}
	l.hub.publish(stats)
}

// ---- helpers ----

// shardFor picks a shard by hashing the name and masking with len-1.
// len(l.shards) is guaranteed to be a power of two.
func (l *loaderImpl[V]) shardFor(name string) *shard[V] {
	h := util.Fnv64a(name)
	return l.shards[int(h)&(len(l.shards)-1)]
}

func (l *loaderImpl[V]) now() int64 {
	if l.opt.Clock != nil {
		return l.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}
