package models

import (
	"fmt"
	"strings"
	"time"
)

// CollectionTrack is a track stored in the local collection.
type CollectionTrack struct {
	ID         string     `json:"id"`
	Artist     string     `json:"artist"`
	Album      string     `json:"album,omitempty"`
	Track      string     `json:"track"`
	URL        string     `json:"url"`
	AlbumPos   uint       `json:"albumpos,omitempty"`
	Duration   uint       `json:"duration,omitempty"`
	Bitrate    uint       `json:"bitrate,omitempty"`
	Size       uint64     `json:"size,omitempty"`
	Year       uint       `json:"year,omitempty"`
	DiscNumber uint       `json:"discnumber,omitempty"`
	Mimetype   string     `json:"mimetype,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// Validate checks the fields required to persist the track.
func (t *CollectionTrack) Validate() error {
	switch {
	case strings.TrimSpace(t.Artist) == "":
		return fmt.Errorf("artist is required")
	case strings.TrimSpace(t.Track) == "":
		return fmt.Errorf("track is required")
	case strings.TrimSpace(t.URL) == "":
		return fmt.Errorf("url is required")
	}
	return nil
}
