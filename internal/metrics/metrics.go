package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing, so instrumentation points never need guards.
type Metrics struct {
	rpcCalls         *prometheus.CounterVec
	cacheRequests    *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	analysisTotal    *prometheus.CounterVec
	routeCycles      prometheus.Counter
}

// New registers all collectors on reg and returns the handle.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bscradar",
			Name:      "rpc_calls_total",
			Help:      "Chain RPC calls by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bscradar",
			Name:      "cache_requests_total",
			Help:      "Cache lookups by store and outcome.",
		}, []string{"store", "outcome"}),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bscradar",
			Name:      "analysis_duration_seconds",
			Help:      "AnalyzeToken wall time.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		analysisTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bscradar",
			Name:      "analysis_total",
			Help:      "Token analyses by result kind.",
		}, []string{"result"}),
		routeCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bscradar",
			Name:      "route_precache_cycles_total",
			Help:      "Completed route pre-cache refresh cycles.",
		}),
	}
	reg.MustRegister(m.rpcCalls, m.cacheRequests, m.analysisDuration, m.analysisTotal, m.routeCycles)
	return m
}

// ObserveRPCCall records one RPC attempt against an endpoint.
func (m *Metrics) ObserveRPCCall(endpoint string, ok bool) {
	if m == nil {
		return
	}
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	m.rpcCalls.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveCache records a cache hit or miss on a store.
func (m *Metrics) ObserveCache(store string, hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheRequests.WithLabelValues(store, outcome).Inc()
}

// ObserveAnalysis counts one analysis by result kind.
func (m *Metrics) ObserveAnalysis(result string) {
	if m == nil {
		return
	}
	m.analysisTotal.WithLabelValues(result).Inc()
}

// ObserveAnalysisDuration records the wall time of one full analysis pass.
func (m *Metrics) ObserveAnalysisDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.analysisDuration.Observe(d.Seconds())
}

// ObserveRouteCycle records one completed pre-cache cycle.
func (m *Metrics) ObserveRouteCycle() {
	if m == nil {
		return
	}
	m.routeCycles.Inc()
}
