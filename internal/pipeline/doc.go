// Package pipeline coordinates query resolution across ranked resolvers.
//
// # Ranking
//
// Resolvers are ordered by weight (descending), then preference (descending), then registration
// order. [Pipeline.Resolve] dispatches a query to every Ready resolver in that order without
// waiting for any of them.
//
// # Completion
//
// A query completes on its first playable result, or once every resolver it was dispatched to has
// reported, timed out or been removed. Completion marks the query resolved and closes its
// [Subscription]. Results that arrive later for the same id are counted as unknown.
//
// # Concurrency
//
// All pipeline state sits behind one mutex. Resolvers are never called while it is held, so a
// resolver may report results from inside its own Resolve call.
package pipeline
