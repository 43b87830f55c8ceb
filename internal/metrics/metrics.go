package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trackpipe"

// ResolverStates lists the state label values of trackpipe_resolver_state.
var ResolverStates = []string{"stopped", "starting", "ready", "error"}

// Resolution outcomes.
const (
	OutcomePlayable  = "playable"
	OutcomeExhausted = "exhausted"
	OutcomeCancelled = "cancelled"
)

// Metrics holds every collector. Construct with [New].
type Metrics struct {
	QueriesTotal       prometheus.Counter
	QueriesPending     prometheus.Gauge
	ResolutionDuration *prometheus.HistogramVec
	ResultsTotal       *prometheus.CounterVec
	ResolverTimeouts   *prometheus.CounterVec
	UnknownQueries     prometheus.Counter

	ResolverRestarts *prometheus.CounterVec
	ProtocolErrors   *prometheus.CounterVec
	ResolverState    *prometheus.GaugeVec
	CacheLookups     *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueriesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of queries submitted to the pipeline",
		}),
		QueriesPending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queries_pending",
			Help:      "Number of queries awaiting terminal resolution",
		}),
		ResolutionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_resolution_seconds",
			Help:      "Time from query submission to terminal resolution",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"outcome"}),
		ResultsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Total number of results reported",
		}, []string{"resolver"}),
		ResolverTimeouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_timeouts_total",
			Help:      "Number of queries a resolver failed to answer in time",
		}, []string{"resolver"}),
		UnknownQueries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_query_results_total",
			Help:      "Result reports for query ids that are not pending",
		}),
		ResolverRestarts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_restarts_total",
			Help:      "Restarts of external resolver processes",
		}, []string{"resolver"}),
		ProtocolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Malformed or unknown messages received from resolvers",
		}, []string{"resolver"}),
		ResolverState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resolver_state",
			Help:      "Current lifecycle state of each resolver (1 = current)",
		}, []string{"resolver", "state"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_resolver_cache_total",
			Help:      "HTTP resolver response cache lookups",
		}, []string{"resolver", "result"}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP API requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

func (m *Metrics) QuerySubmitted() {
	if m == nil {
		return
	}
	m.QueriesTotal.Inc()
	m.QueriesPending.Inc()
}

func (m *Metrics) QueryFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.QueriesPending.Dec()
	m.ResolutionDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) ResultsReported(resolver string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ResultsTotal.WithLabelValues(resolver).Add(float64(n))
}

func (m *Metrics) ResolverTimedOut(resolver string) {
	if m == nil {
		return
	}
	m.ResolverTimeouts.WithLabelValues(resolver).Inc()
}

func (m *Metrics) UnknownQuery() {
	if m == nil {
		return
	}
	m.UnknownQueries.Inc()
}

func (m *Metrics) ResolverRestarted(resolver string) {
	if m == nil {
		return
	}
	m.ResolverRestarts.WithLabelValues(resolver).Inc()
}

func (m *Metrics) ProtocolError(resolver string) {
	if m == nil {
		return
	}
	m.ProtocolErrors.WithLabelValues(resolver).Inc()
}

// SetResolverState marks state as current for resolver and clears the other states.
func (m *Metrics) SetResolverState(resolver, state string) {
	if m == nil {
		return
	}
	for _, s := range ResolverStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ResolverState.WithLabelValues(resolver, s).Set(v)
	}
}

func (m *Metrics) CacheLookup(resolver string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(resolver, result).Inc()
}

func (m *Metrics) HTTPRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
