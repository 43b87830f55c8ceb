// Package models defines the value objects flowing through the resolution pipeline.
//
// The package contains two categories of types:
//
// 1. Shared entities: identity-bearing records deduplicated by the entity cache
//   - [Artist] : an artist with a stable numeric id
//   - [Album] : an album with a stable numeric id and a back-reference to its [Artist]
//
// 2. Resolution values: per-request objects
//   - [Query] : an abstract request for a track (artist/track/album or free text) that accumulates results
//   - [Result] : a concrete candidate answering a [Query], produced by a resolver
//
// A [Query] is safe for concurrent use. Its result list is append-only and its resolved flag is set at most once.
// Results reference artists and albums by pointer; the graph is acyclic (Result → Album → Artist).
package models
