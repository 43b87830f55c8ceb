// Package entities implements the deduplicating entity cache shared by every resolver.
//
// A [Cache] maps stable identifiers to the single live [models.Artist], [models.Album], [models.Query]
// or [models.Result] for that identity. Get-or-create calls are atomic under one mutex, so concurrent
// first access from several resolvers still yields exactly one instance per positive id.
//
// Entries are held through weak pointers: the cache never extends an entity's lifetime, the longest
// holder does. Collected entries are pruned by a runtime cleanup.
//
// Name-based lookups resolve ids through an [IDStore]. The sqlite-backed repositories.EntityRepository
// is the production store; [MemoryStore] serves tests and database-less runs.
package entities
