package entities

import (
	"sync"

	"github.com/desertthunder/trackpipe/internal/shared"
)

type albumKey struct {
	artistID int64
	name     string
}

// MemoryStore is an in-process [IDStore] assigning sequential ids. Names compare case and whitespace insensitively.
type MemoryStore struct {
	mu      sync.Mutex
	next    int64
	artists map[string]int64
	albums  map[albumKey]int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artists: make(map[string]int64),
		albums:  make(map[albumKey]int64),
	}
}

func (s *MemoryStore) ArtistID(name string, autoCreate bool) (int64, error) {
	key := shared.NormalizeText(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.artists[key]; ok {
		return id, nil
	}
	if !autoCreate || key == "" {
		return 0, nil
	}
	s.next++
	s.artists[key] = s.next
	return s.next, nil
}

func (s *MemoryStore) AlbumID(artistID int64, name string, autoCreate bool) (int64, error) {
	key := albumKey{artistID: artistID, name: shared.NormalizeText(name)}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.albums[key]; ok {
		return id, nil
	}
	if !autoCreate || key.name == "" || artistID <= 0 {
		return 0, nil
	}
	s.next++
	s.albums[key] = s.next
	return s.next, nil
}
