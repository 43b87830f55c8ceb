// Package tasks runs long-lived operations on top of the resolution pipeline with real-time progress reporting.
//
// # Batch Resolution
//
// [BatchResolver.Resolve] resolves a list of queries concurrently:
//
//  1. Queries are submitted through a token-bucket limiter ([BatchOpts.RateLimit] per second)
//  2. A bounded pool of [BatchOpts.Workers] goroutines waits for each query to complete
//  3. Each query is given [BatchOpts.Wait] to resolve before it is cancelled
//  4. The best playable result of every query is collected into a [BatchResult]
//
// A query that fails to resolve is recorded in its [QueryMatch] and never aborts the batch.
// Cancelling the context stops submission and returns the partial result.
//
// # Progress Reporting
//
// Progress is sent as [ProgressUpdate] values carrying a phase, step counters and a message.
// Sends never block: a full channel drops the update.
//
// # Query Lists
//
// [ReadQueryList] accepts "artist - track" lines, a JSON array of queries, or a framed-protocol
// "playlist" message body.
package tasks
