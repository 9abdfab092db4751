package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records engine activity served through the RPC surface.
type EngineMetrics struct {
	requests     *prometheus.CounterVec
	errors       *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	liquidations prometheus.Counter
	expulsions   prometheus.Counter
	yieldClaims  prometheus.Counter
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics
)

// Metrics returns the lazily-initialised engine metrics registry.
func Metrics() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ring",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ring",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ring",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ring",
				Subsystem: "engine",
				Name:      "liquidations_total",
				Help:      "Total collateral liquidations executed.",
			}),
			expulsions: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ring",
				Subsystem: "engine",
				Name:      "expulsions_total",
				Help:      "Total participants expelled for insolvency.",
			}),
			yieldClaims: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ring",
				Subsystem: "engine",
				Name:      "yield_claims_total",
				Help:      "Total successful yield claims.",
			}),
		}
		prometheus.MustRegister(
			engineRegistry.requests,
			engineRegistry.errors,
			engineRegistry.latency,
			engineRegistry.liquidations,
			engineRegistry.expulsions,
			engineRegistry.yieldClaims,
		)
	})
	return engineRegistry
}

// ObserveRequest records one RPC request with its outcome and latency.
func (m *EngineMetrics) ObserveRequest(method, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(took.Seconds())
}

// ObserveError records one RPC error by method and stable code.
func (m *EngineMetrics) ObserveError(method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, code).Inc()
}

// RecordLiquidation increments the liquidation counter.
func (m *EngineMetrics) RecordLiquidation() {
	if m == nil {
		return
	}
	m.liquidations.Inc()
}

// RecordExpulsion increments the expulsion counter.
func (m *EngineMetrics) RecordExpulsion() {
	if m == nil {
		return
	}
	m.expulsions.Inc()
}

// RecordYieldClaim increments the yield claim counter.
func (m *EngineMetrics) RecordYieldClaim() {
	if m == nil {
		return
	}
	m.yieldClaims.Inc()
}
