package loader

import "sync"

// hub fans finished-batch notifications out to subscribers. Scoped to one
// loader instance: subscriptions share the loader's lifecycle instead of a
// process-global listener table with implicit init/teardown ordering.
type hub struct {
	mu   sync.Mutex
	next int
	subs map[int]func(BatchStats)
}

// subscribe registers fn and returns its cancel function. Duplicate
// registrations of the same function are distinct subscriptions.
func (h *hub) subscribe(fn func(BatchStats)) func() {
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[int]func(BatchStats))
	}
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// publish invokes every subscriber outside the lock, in unspecified order.
// Every subscriber sees the event; none can swallow it for the others.
func (h *hub) publish(stats BatchStats) {
	h.mu.Lock()
	fns := make([]func(BatchStats), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(stats)
	}
}
