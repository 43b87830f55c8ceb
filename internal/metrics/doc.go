// Package metrics defines the Prometheus collectors for the resolution pipeline.
//
// Collectors are created with promauto against a caller-provided [prometheus.Registerer], so tests
// can use a private registry and the server can expose the default one:
//
//	m := metrics.New(prometheus.DefaultRegisterer)
//	mux.Handle("/metrics", promhttp.Handler())
//
// Every method is safe on a nil *Metrics, which records nothing.
//
// Pipeline:
//   - trackpipe_queries_total: queries submitted
//   - trackpipe_queries_pending: queries awaiting terminal resolution
//   - trackpipe_query_resolution_seconds{outcome}: time from submission to completion
//   - trackpipe_results_total{resolver}: results reported per resolver
//   - trackpipe_resolver_timeouts_total{resolver}: per-query resolver timeouts
//   - trackpipe_unknown_query_results_total: results for query ids that are not pending
//
// Resolvers:
//   - trackpipe_resolver_restarts_total{resolver}
//   - trackpipe_protocol_errors_total{resolver}
//   - trackpipe_resolver_state{resolver,state}: 1 for the current state, 0 otherwise
//   - trackpipe_http_resolver_cache_total{resolver,result}: hit/miss of the HTTP resolver cache
//
// HTTP API:
//   - trackpipe_http_requests_total{method,path,status}
//   - trackpipe_http_request_duration_seconds{method,path}
package metrics
