// Package metrics exposes the gateway's resilience and cache counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Apurer/catalog-gateway/internal/clients/http/resilient"
)

var _ resilient.Recorder = (*Registry)(nil)

var breakerStates = []resilient.State{resilient.StateClosed, resilient.StateHalfOpen, resilient.StateOpen}

type Registry struct {
	reg             *prometheus.Registry
	UpstreamCalls   *prometheus.CounterVec
	UpstreamRetries *prometheus.CounterVec
	CircuitState    *prometheus.GaugeVec
	CacheLookups    *prometheus.CounterVec
	DuplicateWrites *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_requests_total",
		Help: "Upstream call attempts by outcome (success, failure, rejected).",
	}, []string{"upstream", "outcome"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_retries_total",
		Help: "Retries scheduled after a transient upstream failure.",
	}, []string{"upstream"})
	state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_circuit_state",
		Help: "1 for the current breaker state of each upstream, 0 otherwise.",
	}, []string{"upstream", "state"})
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_cache_lookups_total",
		Help: "Aggregation cache lookups by result (hit, miss).",
	}, []string{"key", "result"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_idempotent_duplicates_total",
		Help: "Write requests rejected as duplicates.",
	}, []string{"operation"})

	r.MustRegister(calls, retries, state, lookups, duplicates,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{
		reg:             r,
		UpstreamCalls:   calls,
		UpstreamRetries: retries,
		CircuitState:    state,
		CacheLookups:    lookups,
		DuplicateWrites: duplicates,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) ObserveRequest(upstream, outcome string) {
	r.UpstreamCalls.WithLabelValues(upstream, outcome).Inc()
}

func (r *Registry) ObserveRetry(upstream string) {
	r.UpstreamRetries.WithLabelValues(upstream).Inc()
}

func (r *Registry) ObserveState(upstream string, state resilient.State) {
	for _, s := range breakerStates {
		value := 0.0
		if s == state {
			value = 1
		}
		r.CircuitState.WithLabelValues(upstream, string(s)).Set(value)
	}
}

// ObserveCacheLookup records a hit or miss for a cache key family.
func (r *Registry) ObserveCacheLookup(key string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.CacheLookups.WithLabelValues(key, result).Inc()
}

// ObserveDuplicate records a write rejected by the idempotency store.
func (r *Registry) ObserveDuplicate(operation string) {
	r.DuplicateWrites.WithLabelValues(operation).Inc()
}
