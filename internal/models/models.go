// package models defines the data model for the track resolution pipeline
package models

import (
	"sort"
	"strings"
	"sync"

	"github.com/desertthunder/trackpipe/internal/shared"
)

// Artist is a shared artist entity. Ids ≤ 0 mark records that were never persisted.
type Artist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Album is a shared album entity owned by an [Artist].
type Album struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Artist *Artist `json:"-"`
}

// ArtistName returns the album artist's name, or "" when unset.
func (a *Album) ArtistName() string {
	if a == nil || a.Artist == nil {
		return ""
	}
	return a.Artist.Name
}

// Result is a playable candidate for a [Query].
type Result struct {
	ID           string  `json:"id"`
	QueryID      string  `json:"qid"`
	URL          string  `json:"url"`
	Artist       *Artist `json:"-"`
	Album        *Album  `json:"-"`
	Track        string  `json:"track"`
	AlbumPos     uint    `json:"albumpos,omitempty"`
	Duration     uint    `json:"duration,omitempty"` // seconds
	Bitrate      uint    `json:"bitrate,omitempty"`
	Size         uint64  `json:"size,omitempty"`
	Year         uint    `json:"year,omitempty"`
	DiscNumber   uint    `json:"discnumber,omitempty"`
	Mimetype     string  `json:"mimetype"`
	Source       string  `json:"source"`
	SourceWeight uint    `json:"-"`
	Score        float64 `json:"score"`
	Scored       bool    `json:"-"` // false until a source or the pipeline assigns Score
}

// ArtistName is nil-safe access to the result's artist name.
func (r *Result) ArtistName() string {
	if r.Artist == nil {
		return ""
	}
	return r.Artist.Name
}

// AlbumName is nil-safe access to the result's album name.
func (r *Result) AlbumName() string {
	if r.Album == nil {
		return ""
	}
	return r.Album.Name
}

// Playable reports whether the result can be streamed: it has a location and a positive score.
func (r *Result) Playable() bool {
	return r.URL != "" && r.Score > 0
}

// SetScore stores s clamped to [0,1] and marks the result as scored.
func (r *Result) SetScore(s float64) {
	r.Score = ClampScore(s)
	r.Scored = true
}

// Query is an abstract request for a track.
type Query struct {
	ID       string `json:"qid"`
	Artist   string `json:"artist,omitempty"`
	Track    string `json:"track,omitempty"`
	Album    string `json:"album,omitempty"`
	FullText string `json:"fulltext,omitempty"`

	mu       sync.RWMutex
	results  []*Result
	resolved bool
}

// NewQuery creates a query for artist/track/album with a generated id.
func NewQuery(artist, track, album string) *Query {
	return &Query{
		ID:     shared.GenerateID(),
		Artist: strings.TrimSpace(artist),
		Track:  strings.TrimSpace(track),
		Album:  strings.TrimSpace(album),
	}
}

// NewFullTextQuery creates a free-text query with a generated id.
func NewFullTextQuery(text string) *Query {
	return &Query{
		ID:       shared.GenerateID(),
		FullText: strings.TrimSpace(text),
	}
}

// IsFullText reports whether the query carries free text instead of structured fields.
func (q *Query) IsFullText() bool {
	return q.FullText != ""
}

// String renders the query for logs and display.
func (q *Query) String() string {
	if q.IsFullText() {
		return q.FullText
	}
	if q.Album != "" {
		return q.Artist + " - " + q.Track + " (" + q.Album + ")"
	}
	return q.Artist + " - " + q.Track
}

// AddResults appends results; existing results are never removed or replaced.
func (q *Query) AddResults(results ...*Result) {
	if len(results) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.results = append(q.results, results...)
}

// Results returns a copy of the results in arrival order.
func (q *Query) Results() []*Result {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*Result, len(q.results))
	copy(out, q.results)
	return out
}

// SortedResults returns the results ordered by score, then source weight, keeping arrival order for ties.
func (q *Query) SortedResults() []*Result {
	out := q.Results()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].SourceWeight > out[j].SourceWeight
	})
	return out
}

// Playable reports whether any result is playable.
func (q *Query) Playable() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, r := range q.results {
		if r.Playable() {
			return true
		}
	}
	return false
}

// Resolved reports whether resolution has finished for this query.
func (q *Query) Resolved() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.resolved
}

// MarkResolved sets the resolved flag and reports whether this call changed it.
func (q *Query) MarkResolved() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.resolved {
		return false
	}
	q.resolved = true
	return true
}
