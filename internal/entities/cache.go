package entities

import (
	"runtime"
	"sync"
	"weak"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/shared"
)

// IDStore assigns stable positive ids to artist and album names.
//
// With autoCreate false an unknown name yields id 0 and no record is created.
type IDStore interface {
	ArtistID(name string, autoCreate bool) (int64, error)
	AlbumID(artistID int64, name string, autoCreate bool) (int64, error)
}

// Cache is the process-wide entity cache. Construct it once at startup and inject it.
type Cache struct {
	store  IDStore
	logger *log.Logger

	mu      sync.Mutex
	artists map[int64]weak.Pointer[models.Artist]
	albums  map[int64]weak.Pointer[models.Album]
	queries map[string]weak.Pointer[models.Query]
	results map[string]weak.Pointer[models.Result]
}

// New creates a Cache resolving names through store. A nil store falls back to a [MemoryStore].
func New(store IDStore, logger *log.Logger) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Cache{
		store:   store,
		logger:  logger,
		artists: make(map[int64]weak.Pointer[models.Artist]),
		albums:  make(map[int64]weak.Pointer[models.Album]),
		queries: make(map[string]weak.Pointer[models.Query]),
		results: make(map[string]weak.Pointer[models.Result]),
	}
}

// Artist returns the live artist for id, creating it with name if none exists.
// Ids ≤ 0 are never cached; every call returns a fresh instance.
func (c *Cache) Artist(id int64, name string) *models.Artist {
	if id <= 0 {
		return &models.Artist{ID: id, Name: name}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if a := lookup(c.artists, id); a != nil {
		return a
	}
	a := &models.Artist{ID: id, Name: name}
	insert(c, c.artists, id, a)
	return a
}

// Album returns the live album for id, creating it with name and artist if none exists.
// Ids ≤ 0 are never cached.
func (c *Cache) Album(id int64, name string, artist *models.Artist) *models.Album {
	if id <= 0 {
		return &models.Album{ID: id, Name: name, Artist: artist}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if a := lookup(c.albums, id); a != nil {
		return a
	}
	a := &models.Album{ID: id, Name: name, Artist: artist}
	insert(c, c.albums, id, a)
	return a
}

// LookupArtist returns the live artist for id without creating one.
func (c *Cache) LookupArtist(id int64) (*models.Artist, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := lookup(c.artists, id)
	return a, a != nil
}

// LookupAlbum returns the live album for id without creating one.
func (c *Cache) LookupAlbum(id int64) (*models.Album, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := lookup(c.albums, id)
	return a, a != nil
}

// ArtistByName resolves name to its shared artist.
//
// With autoCreate false an unknown name is a miss; nothing is created in the store or the cache.
func (c *Cache) ArtistByName(name string, autoCreate bool) (*models.Artist, bool) {
	if name == "" {
		return nil, false
	}
	id, err := c.store.ArtistID(name, autoCreate)
	if err != nil {
		c.logger.Warn("artist id lookup failed", "artist", name, "error", err)
		return nil, false
	}
	if id <= 0 {
		return nil, false
	}
	return c.Artist(id, name), true
}

// AlbumByName resolves the album called name by artist to its shared album.
func (c *Cache) AlbumByName(artist *models.Artist, name string, autoCreate bool) (*models.Album, bool) {
	if artist == nil || artist.ID <= 0 || name == "" {
		return nil, false
	}
	id, err := c.store.AlbumID(artist.ID, name, autoCreate)
	if err != nil {
		c.logger.Warn("album id lookup failed", "artist", artist.Name, "album", name, "error", err)
		return nil, false
	}
	if id <= 0 {
		return nil, false
	}
	return c.Album(id, name, artist), true
}

// TrackQuery registers q under its id and returns the live query for that id.
// If another live query already owns the id, that one is returned.
func (c *Cache) TrackQuery(q *models.Query) *models.Query {
	if q == nil || q.ID == "" {
		return q
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing := lookup(c.queries, q.ID); existing != nil {
		return existing
	}
	insert(c, c.queries, q.ID, q)
	return q
}

// Query returns the live query with id.
func (c *Cache) Query(id string) (*models.Query, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := lookup(c.queries, id)
	return q, q != nil
}

// TrackResult registers r under its id and returns the live result for that id.
func (c *Cache) TrackResult(r *models.Result) *models.Result {
	if r == nil || r.ID == "" {
		return r
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing := lookup(c.results, r.ID); existing != nil {
		return existing
	}
	insert(c, c.results, r.ID, r)
	return r
}

// Result returns the live result with id.
func (c *Cache) Result(id string) (*models.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := lookup(c.results, id)
	return r, r != nil
}

// Stats holds the number of live entries per kind.
type Stats struct {
	Artists int `json:"artists"`
	Albums  int `json:"albums"`
	Queries int `json:"queries"`
	Results int `json:"results"`
}

// Stats counts live entries, ignoring ones collected but not yet pruned.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Artists: live(c.artists),
		Albums:  live(c.albums),
		Queries: live(c.queries),
		Results: live(c.results),
	}
}

// lookup must be called with c.mu held.
func lookup[K comparable, V any](m map[K]weak.Pointer[V], key K) *V {
	if wp, ok := m[key]; ok {
		return wp.Value()
	}
	return nil
}

// insert must be called with c.mu held. The cleanup only deletes the entry if it still points at a
// collected value, so a newer instance stored under the same key survives.
func insert[K comparable, V any](c *Cache, m map[K]weak.Pointer[V], key K, v *V) {
	m[key] = weak.Make(v)
	runtime.AddCleanup(v, func(k K) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if wp, ok := m[k]; ok && wp.Value() == nil {
			delete(m, k)
		}
	}, key)
}

func live[K comparable, V any](m map[K]weak.Pointer[V]) int {
	n := 0
	for _, wp := range m {
		if wp.Value() != nil {
			n++
		}
	}
	return n
}
