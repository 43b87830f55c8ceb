// Package repositories implements SQLite persistence for entity ids and the local collection.
//
// Key Implementations:
//   - [EntityRepository] : stable artist/album ids keyed by normalized name; satisfies entities.IDStore
//   - [CollectionRepository] : tracks served by the local collection resolver, with soft deletes
//
// Names are normalized with shared.NormalizeText before they are compared, so "Air" and "  AIR"
// share one id.
package repositories
