package loader

import (
	"sync"

	"github.com/IvanBrykalov/assetcache/internal/util"
)

// requestOutcome classifies what a shard did with an incoming request.
type requestOutcome uint8

const (
	// reqHit — entry already loaded; the value is returned to the caller,
	// delivery to the consumer still has to happen asynchronously.
	reqHit requestOutcome = iota
	// reqJoined — a load for this name is in flight; the waiter was
	// attached and will be served when it completes.
	reqJoined
	// reqStarted — a fresh pending entry was created; the caller must
	// schedule the load.
	reqStarted
)

// shard is an independent partition of the resource cache with its own lock,
// name->entry map, and an intrusive recency list of loaded entries
// (head=MRU, tail=LRU). Pending entries live only in the map.
type shard[V any] struct {
	// ---- guarded by mu ----
	mu   sync.Mutex
	m    map[string]*entry[V]
	head *entry[V] // MRU
	tail *entry[V] // LRU
	len  int       // resident loaded entries
	cap  int       // per-shard entry capacity (0 = unbounded)

	opt Options[V]

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

func newShard[V any](capacity int, opt Options[V]) *shard[V] {
	return &shard[V]{
		m:   make(map[string]*entry[V]),
		cap: capacity,
		opt: opt,
	}
}

// request is the single entry point for consumers. It coalesces concurrent
// requests for the same name: at most one entry per name exists, and only
// the reqStarted caller triggers a load. The transient flag is honored only
// when this request creates the entry.
//
// On reqHit the returned value is valid and the entry was promoted;
// the waiter was NOT attached (the caller delivers it asynchronously).
func (s *shard[V]) request(name string, w waiter[V], transient bool) (requestOutcome, *entry[V], V) {
	var zero V
	s.mu.Lock()
	if e, ok := s.m[name]; ok {
		if e.state == stateLoaded {
			s.moveToFront(e)
			s.hits.Add(1)
			s.opt.Metrics.Hit()
			v := e.val
			s.mu.Unlock()
			return reqHit, e, v
		}
		e.waiters = append(e.waiters, w)
		s.mu.Unlock()
		return reqJoined, e, zero
	}

	e := &entry[V]{name: name, transient: transient, waiters: []waiter[V]{w}}
	s.m[name] = e
	s.misses.Add(1)
	s.opt.Metrics.Miss()
	s.mu.Unlock()
	return reqStarted, e, zero
}

// complete publishes the load outcome for e and returns the consumers to
// notify (outside the lock). ok=false means the entry is no longer current —
// Cleanup removed it, or a later request replaced it — and the result must
// be discarded without notifying anyone.
func (s *shard[V]) complete(e *entry[V], v V, err error) (ws []waiter[V], ok bool) {
	s.mu.Lock()
	if cur, present := s.m[e.name]; !present || cur != e {
		s.mu.Unlock()
		return nil, false
	}
	ws = e.waiters
	e.waiters = nil

	switch {
	case err != nil:
		// Failed loads are not cached; the next request retries.
		delete(s.m, e.name)
	case e.transient:
		// Single-use entry: gone from the cache the moment its waiters
		// are captured. They are still notified by the caller.
		delete(s.m, e.name)
		s.evicts.Add(1)
		s.opt.Metrics.Evict(EvictTransient)
		if cb := s.opt.OnEvict; cb != nil {
			cb(e.name, v, EvictTransient)
		}
	default:
		e.val = v
		e.state = stateLoaded
		s.insertFront(e)
		s.enforceCapacityLocked()
	}
	s.opt.Metrics.Size(s.len)
	s.mu.Unlock()
	return ws, true
}

// get returns the raw value for a loaded entry and promotes it.
// Pending entries count as misses: the probe must not block or attach.
func (s *shard[V]) get(name string) (V, bool) {
	s.mu.Lock()
	e, ok := s.m[name]
	if !ok || e.state != stateLoaded {
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		s.mu.Unlock()
		var zero V
		return zero, false
	}
	s.moveToFront(e)
	s.hits.Add(1)
	s.opt.Metrics.Hit()
	v := e.val
	s.mu.Unlock()
	return v, true
}

// remove drops a loaded entry by name. Pending entries are kept: their
// waiters must be served by the in-flight load first.
func (s *shard[V]) remove(name string) bool {
	s.mu.Lock()
	e, ok := s.m[name]
	if !ok || e.state != stateLoaded {
		s.mu.Unlock()
		return false
	}
	s.evictLocked(e, EvictExplicit)
	s.opt.Metrics.Size(s.len)
	s.mu.Unlock()
	return true
}

// clear drops every entry, pending ones included. In-flight loads for the
// dropped entries become orphans: complete() will no longer find them.
func (s *shard[V]) clear() {
	s.mu.Lock()
	s.m = make(map[string]*entry[V])
	s.head, s.tail = nil, nil
	s.len = 0
	s.opt.Metrics.Size(0)
	s.mu.Unlock()
}

// resident returns the number of loaded entries in this shard.
func (s *shard[V]) resident() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.len
}

// -------------------- internals (mu held) --------------------

// insertFront inserts n at MRU in O(1).
func (s *shard[V]) insertFront(n *entry[V]) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
}

// moveToFront promotes n to MRU in O(1).
func (s *shard[V]) moveToFront(n *entry[V]) {
	if n == s.head {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

// removeNode unlinks n from the recency list and updates counters in O(1).
func (s *shard[V]) removeNode(n *entry[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.len--
}

// evictLocked removes a loaded node, updates counters, and calls OnEvict.
func (s *shard[V]) evictLocked(n *entry[V], reason EvictReason) {
	s.removeNode(n)
	delete(s.m, n.name)
	s.evicts.Add(1)
	s.opt.Metrics.Evict(reason)
	if cb := s.opt.OnEvict; cb != nil {
		// Called under the lock; keep callbacks lightweight.
		cb(n.name, n.val, reason)
	}
}

// enforceCapacityLocked evicts LRU loaded entries until the count limit is
// satisfied. Pending entries are invisible here, so an in-flight name can
// never be evicted out from under its waiters.
func (s *shard[V]) enforceCapacityLocked() {
	if s.cap <= 0 {
		return
	}
	for s.len > s.cap {
		tail := s.tail
		if tail == nil {
			break
		}
		s.evictLocked(tail, EvictCapacity)
	}
}
