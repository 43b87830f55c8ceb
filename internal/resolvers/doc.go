// Package resolvers provides the resolver capability and its implementations.
//
// A resolver accepts a [models.Query] and asynchronously reports zero or more [models.Result]s through
// a [Registrar]. The pipeline package implements Registrar; resolvers never import it.
//
// Implementations:
//   - [ScriptResolver] : an external process speaking the length-prefixed JSON protocol over stdin/stdout,
//     supervised with a bounded restart policy
//   - [LocalResolver] : the sqlite-backed local collection
//   - [HTTPResolver] : a JSON search endpoint, rate limited and cached
//
// A [Watcher] reloads script resolvers when their files change on disk.
package resolvers
