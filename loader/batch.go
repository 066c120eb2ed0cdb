package loader

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// batchState tracks the single in-flight batch. One instance per loader.
// Guarded by its own mutex, which is never held while user callbacks run.
//
// gen is bumped every time a batch starts or the state is reset; deliveries
// carry the generation they were issued under, so a callback that survives a
// Cleanup cannot count toward a later batch.
type batchState struct {
	mu sync.Mutex

	gen       uint64
	id        uuid.UUID
	active    bool
	total     int
	completed int
	failed    int
	started   int64 // Clock UnixNano; 0 = no batch since construction/reset
	finished  int64 // set when the last item lands
	onDone    func(BatchStats)
}

// tryStart claims the batch slot. A zero-item batch is finished the moment
// it starts; emptyStats is non-nil in that case and the caller fires the
// completion path itself (asynchronously, like any other delivery).
func (b *batchState) tryStart(total int, onDone func(BatchStats), now int64) (gen uint64, id uuid.UUID, emptyStats *BatchStats, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active {
		return 0, uuid.Nil, nil, ErrBatchActive
	}
	b.gen++
	b.id = uuid.New()
	b.active = true
	b.total = total
	b.completed = 0
	b.failed = 0
	b.started = now
	b.finished = 0
	b.onDone = onDone
	if total == 0 {
		b.active = false
		b.finished = now
		b.onDone = nil
		return b.gen, b.id, &BatchStats{ID: b.id}, nil
	}
	return b.gen, b.id, nil, nil
}

// itemDone counts one delivered item for generation gen. done reports that
// this call completed the batch; cb and stats are meaningful only then.
// Stale generations (finished batches, post-Cleanup stragglers) are ignored.
func (b *batchState) itemDone(gen uint64, failed bool, now int64) (done bool, cb func(BatchStats), stats BatchStats) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen || !b.active {
		return false, nil, BatchStats{}
	}
	b.completed++
	if failed {
		b.failed++
	}
	if b.completed < b.total {
		return false, nil, BatchStats{}
	}
	b.active = false
	b.finished = now
	cb = b.onDone
	b.onDone = nil
	return true, cb, BatchStats{
		ID:        b.id,
		Requested: b.total,
		Failed:    b.failed,
		Elapsed:   time.Duration(b.finished - b.started),
	}
}

func (b *batchState) isActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// progress is completed/total of the current or last finished batch,
// duplicates counted on both sides. 0 before the first batch and after
// reset; a finished batch reads 1.0 until then.
func (b *batchState) progress() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.total == 0 {
		if b.finished > 0 { // zero-item batch: instantly complete
			return 1
		}
		return 0
	}
	return float64(b.completed) / float64(b.total)
}

// elapsed is the running time of the active batch, or the final duration of
// the last finished one. The clock stops when the batch completes.
func (b *batchState) elapsed(now int64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started == 0 {
		return 0
	}
	if b.active {
		return time.Duration(now - b.started)
	}
	return time.Duration(b.finished - b.started)
}

// reset abandons any active batch and zeroes progress and the clock.
// The generation bump detaches every outstanding delivery.
func (b *batchState) reset() {
	b.mu.Lock()
	b.gen++
	b.id = uuid.Nil
	b.active = false
	b.total, b.completed, b.failed = 0, 0, 0
	b.started, b.finished = 0, 0
	b.onDone = nil
	b.mu.Unlock()
}
