package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamware/stcache/internal/cachecube"
)

// Metrics bundles the Prometheus collectors a node exposes: cache
// hit/miss/eviction counters and per-type occupancy gauges, broken
// down by cachecube.CacheType. The control-connection CacheStats a
// node reports to the index are built from nodestore.Store.Stats, not
// from these collectors; their HitCount, MissCount and EvictedCount
// fields are left zero.
type Metrics struct {
	Hits      *prometheus.CounterVec
	Misses    *prometheus.CounterVec
	Evictions *prometheus.CounterVec
	Used      *prometheus.GaugeVec
	Capacity  *prometheus.GaugeVec
}

// NewMetrics constructs a Metrics bundle and registers it with reg.
// Pass prometheus.NewRegistry() in tests to avoid colliding with the
// global default registry across parallel test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stcache",
			Subsystem: "node",
			Name:      "cache_hits_total",
			Help:      "Cache gets that found their key.",
		}, []string{"type"}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stcache",
			Subsystem: "node",
			Name:      "cache_misses_total",
			Help:      "Cache gets that did not find their key.",
		}, []string{"type"}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stcache",
			Subsystem: "node",
			Name:      "cache_evictions_total",
			Help:      "Entries removed from a cache type's store, by LRU eviction or explicit removal.",
		}, []string{"type"}),
		Used: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stcache",
			Subsystem: "node",
			Name:      "cache_bytes_used",
			Help:      "Bytes currently occupied in a cache type's store.",
		}, []string{"type"}),
		Capacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stcache",
			Subsystem: "node",
			Name:      "cache_bytes_capacity",
			Help:      "Configured byte capacity of a cache type's store.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.Hits, m.Misses, m.Evictions, m.Used, m.Capacity)
	return m
}

// ObserveHit records a successful Get for t.
func (m *Metrics) ObserveHit(t cachecube.CacheType) { m.Hits.WithLabelValues(t.String()).Inc() }

// ObserveMiss records a failed Get for t.
func (m *Metrics) ObserveMiss(t cachecube.CacheType) { m.Misses.WithLabelValues(t.String()).Inc() }

// ObserveEviction records one entry evicted from t's store.
func (m *Metrics) ObserveEviction(t cachecube.CacheType) { m.Evictions.WithLabelValues(t.String()).Inc() }

// SetOccupancy updates the used/capacity gauges for t.
func (m *Metrics) SetOccupancy(t cachecube.CacheType, used, capacity uint64) {
	m.Used.WithLabelValues(t.String()).Set(float64(used))
	m.Capacity.WithLabelValues(t.String()).Set(float64(capacity))
}
