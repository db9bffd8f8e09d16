// Package metrics exports engine counters to prometheus.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Konsultn-Engineering/ducktype/config"
)

// Cache label values.
const (
	CacheAdapter = "adapter"
	CacheBinding = "binding"
)

// Collector records engine metrics. A nil or disabled collector ignores
// every call.
type Collector struct {
	enabled  bool
	gatherer prometheus.Gatherer

	syntheses *prometheus.CounterVec
	cacheHits *prometheus.CounterVec
	misses    *prometheus.CounterVec
	trips     *prometheus.CounterVec
	bindings  prometheus.Counter
}

// NewCollector creates a collector and registers its metrics on reg. A nil
// reg gets a private registry, never the global one.
func NewCollector(cfg config.MetricsConfig, reg prometheus.Registerer) (*Collector, error) {
	if !cfg.Enabled {
		return &Collector{}, nil
	}

	c := &Collector{enabled: true}
	if reg == nil {
		registry := prometheus.NewRegistry()
		reg, c.gatherer = registry, registry
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	}

	c.syntheses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      "syntheses_total",
		Help:      "Adapters and entry points built, by cache",
	}, []string{"cache"})
	c.cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      "cache_hits_total",
		Help:      "Adapter and binding cache hits, by cache",
	}, []string{"cache"})
	c.misses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      "cache_misses_total",
		Help:      "Adapter and binding cache misses, by cache",
	}, []string{"cache"})
	c.trips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      "trips_total",
		Help:      "Callback keys disabled after a binding failure, by error kind",
	}, []string{"kind"})
	c.bindings = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      "bindings_total",
		Help:      "Callback entry points bound",
	})

	for _, m := range []prometheus.Collector{c.syntheses, c.cacheHits, c.misses, c.trips, c.bindings} {
		if err := reg.Register(m); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return c, nil
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// Gatherer returns the registry metrics can be read from, if known.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// RecordSynthesis counts one adapter or entry point build.
func (c *Collector) RecordSynthesis(cache string) {
	if !c.Enabled() {
		return
	}
	c.syntheses.WithLabelValues(cache).Inc()
}

// RecordCacheHit counts one cache hit.
func (c *Collector) RecordCacheHit(cache string) {
	if !c.Enabled() {
		return
	}
	c.cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss counts one cache miss.
func (c *Collector) RecordCacheMiss(cache string) {
	if !c.Enabled() {
		return
	}
	c.misses.WithLabelValues(cache).Inc()
}

// RecordTrip counts one tripped key.
func (c *Collector) RecordTrip(kind string) {
	if !c.Enabled() {
		return
	}
	c.trips.WithLabelValues(kind).Inc()
}

// RecordBinding counts one bound entry point.
func (c *Collector) RecordBinding() {
	if !c.Enabled() {
		return
	}
	c.bindings.Inc()
	c.syntheses.WithLabelValues(CacheBinding).Inc()
}
