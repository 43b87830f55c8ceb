// package server exposes a [pipeline.Pipeline] over HTTP.
//
// Routes:
//
//	GET  /health           liveness plus resolver and pending counts
//	GET  /resolvers        ranked resolver statuses
//	POST /resolve          submit a query and wait up to wait_ms for it to resolve
//	POST /resolve/stream   submit a query and stream result batches as server-sent events
//	GET  /queries/{id}     a pending or recently finished query and its sorted results
//	GET  /metrics          Prometheus exposition
//
// Every route runs behind the [Recovery], [Logging] and [Instrument] middleware.
package server
