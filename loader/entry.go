package loader

// entryState tracks the lifecycle of a cache entry.
// Pending entries own an in-flight load; loaded entries are resident in the
// shard's recency list until evicted or cleared.
type entryState uint8

const (
	statePending entryState = iota
	stateLoaded
)

// waiter is one consumer parked on an entry. Its deliver callback is invoked
// exactly once, outside shard locks, with either a value or an error.
type waiter[V any] struct {
	materialize bool
	placement   any
	deliver     func(v V, err error)
}

// entry is an intrusive doubly linked list element owned by a shard.
// A name has at most one entry at any time: concurrent requests for a
// pending name attach as waiters instead of starting a second load.
type entry[V any] struct {
	name string
	val  V // valid once state == stateLoaded; always the raw (non-materialized) object

	// Intrusive list links among resident loaded entries: head is MRU,
	// tail is LRU. Pending entries are not linked.
	prev *entry[V]
	next *entry[V]

	state entryState

	// transient is fixed by the request that created the entry; the entry
	// is dropped right after its load completes and waiters are captured.
	transient bool

	// waiters appended while pending, captured and cleared atomically when
	// the load completes. Requests that arrive later start a fresh load.
	waiters []waiter[V]
}
