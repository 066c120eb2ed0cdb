// Package prom exports loader metrics to Prometheus.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/assetcache/loader"
)

// Adapter implements loader.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	evicts  *prometheus.CounterVec
	loads   *prometheus.CounterVec
	batches prometheus.Counter
	items   prometheus.Counter
	failed  prometheus.Counter
	sizeEnt prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "loads_total",
				Help:        "Completed load primitive calls by status",
				ConstLabels: constLabels,
			},
			[]string{"status"},
		),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "batches_total",
			Help:        "Started batches",
			ConstLabels: constLabels,
		}),
		items: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "batch_items_total",
			Help:        "Requested batch items (duplicates counted)",
			ConstLabels: constLabels,
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "batch_items_failed_total",
			Help:        "Batch items that reached a terminal error",
			ConstLabels: constLabels,
		}),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident loaded entries",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.loads, a.batches, a.items, a.failed, a.sizeEnt)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r loader.EvictReason) {
	a.evicts.WithLabelValues(reason(r)).Inc()
}

// LoadFinished counts one completed load primitive call.
func (a *Adapter) LoadFinished(ok bool) {
	if ok {
		a.loads.WithLabelValues("ok").Inc()
		return
	}
	a.loads.WithLabelValues("error").Inc()
}

// BatchStarted counts a batch and its requested items.
func (a *Adapter) BatchStarted(items int) {
	a.batches.Inc()
	a.items.Add(float64(items))
}

// BatchFinished counts terminal item failures of a finished batch.
// Items were already counted by BatchStarted.
func (a *Adapter) BatchFinished(items, failed int) {
	a.failed.Add(float64(failed))
}

// Size updates the resident entry gauge.
//
// Note: the loader reports per-shard sizes; with more than one shard the
// gauge reflects the most recently updated shard. Use Stats() for exact
// totals or run a single shard when the gauge must be precise.
func (a *Adapter) Size(entries int) {
	a.sizeEnt.Set(float64(entries))
}

// reason maps EvictReason to a stable label value.
func reason(r loader.EvictReason) string {
	switch r {
	case loader.EvictCapacity:
		return "capacity"
	case loader.EvictExplicit:
		return "explicit"
	default:
		return "transient"
	}
}

// Compile-time check: ensure Adapter implements loader.Metrics.
var _ loader.Metrics = (*Adapter)(nil)
