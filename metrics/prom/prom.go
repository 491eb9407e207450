// Package prom exports cache.Metrics to Prometheus.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/imageloader/cache"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	reuseHits   prometheus.Counter
	reuseMisses prometheus.Counter
	evicts      *prometheus.CounterVec
	displayed   prometheus.Gauge
	pooled      prometheus.Gauge
	poolBytes   prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}

	a := &Adapter{
		hits:        counter("hits_total", "Memory cache hits"),
		misses:      counter("misses_total", "Memory cache misses"),
		reuseHits:   counter("reuse_hits_total", "Buffers checked out of the reuse pool"),
		reuseMisses: counter("reuse_misses_total", "Reuse requests that found no compatible buffer"),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Entries leaving the cache by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		displayed: gauge("displayed_entries", "Entries in the displayed tier"),
		pooled:    gauge("pooled_entries", "Entries in the reuse pool"),
		poolBytes: gauge("pool_bytes", "Bytes held by the reuse pool"),
	}
	reg.MustRegister(a.hits, a.misses, a.reuseHits, a.reuseMisses, a.evicts, a.displayed, a.pooled, a.poolBytes)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// ReuseHit increments the reuse hit counter.
func (a *Adapter) ReuseHit() { a.reuseHits.Inc() }

// ReuseMiss increments the reuse miss counter.
func (a *Adapter) ReuseMiss() { a.reuseMisses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Size updates the tier gauges.
func (a *Adapter) Size(displayed, pooled int, poolBytes int64) {
	a.displayed.Set(float64(displayed))
	a.pooled.Set(float64(pooled))
	a.poolBytes.Set(float64(poolBytes))
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
