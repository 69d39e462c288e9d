// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics interface consumed by stores and services.
type Recorder interface {
	RecordCacheHit(entity string)
	RecordCacheMiss(entity string)
	RecordCacheError(entity, op string)
	RecordCacheDegraded(entity, op string)
	RecordAuthOperation(op, outcome string)
	RecordProviderLatency(provider, op string, duration time.Duration)
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	cacheErrors     *prometheus.CounterVec
	cacheDegraded   *prometheus.CounterVec
	authOperations  *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialauth_cache_hits_total",
			Help: "Cache reads answered from the cache tier.",
		}, []string{"entity"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialauth_cache_misses_total",
			Help: "Cache reads that fell through to the durable tier.",
		}, []string{"entity"}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialauth_cache_errors_total",
			Help: "Cache tier failures by operation.",
		}, []string{"entity", "op"}),
		cacheDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialauth_cache_degraded_writes_total",
			Help: "Durable writes whose cache mutation failed.",
		}, []string{"entity", "op"}),
		authOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialauth_auth_operations_total",
			Help: "Auth operations by outcome.",
		}, []string{"op", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "socialauth_provider_request_seconds",
			Help:    "Latency of social provider calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "op"}),
	}

	reg.MustRegister(
		c.cacheHits,
		c.cacheMisses,
		c.cacheErrors,
		c.cacheDegraded,
		c.authOperations,
		c.providerLatency,
	)

	return c
}

func (c *Collector) RecordCacheHit(entity string) {
	c.cacheHits.WithLabelValues(entity).Inc()
}

func (c *Collector) RecordCacheMiss(entity string) {
	c.cacheMisses.WithLabelValues(entity).Inc()
}

func (c *Collector) RecordCacheError(entity, op string) {
	c.cacheErrors.WithLabelValues(entity, op).Inc()
}

func (c *Collector) RecordCacheDegraded(entity, op string) {
	c.cacheDegraded.WithLabelValues(entity, op).Inc()
}

func (c *Collector) RecordAuthOperation(op, outcome string) {
	c.authOperations.WithLabelValues(op, outcome).Inc()
}

func (c *Collector) RecordProviderLatency(provider, op string, duration time.Duration) {
	c.providerLatency.WithLabelValues(provider, op).Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards all measurements.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordCacheHit(string)                               {}
func (Nop) RecordCacheMiss(string)                              {}
func (Nop) RecordCacheError(string, string)                     {}
func (Nop) RecordCacheDegraded(string, string)                  {}
func (Nop) RecordAuthOperation(string, string)                  {}
func (Nop) RecordProviderLatency(string, string, time.Duration) {}
