package resolvers

import (
	"github.com/desertthunder/trackpipe/internal/entities"
	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/protocol"
	"github.com/desertthunder/trackpipe/internal/shared"
)

// newResult converts a wire result entry into a [models.Result] attributed to source.
//
// Artist and album go through the entity cache with autoCreate; a miss leaves an ephemeral entity
// carrying the reported name. The mimetype falls back to the extension, then to the URL.
func newResult(cache *entities.Cache, qid, source string, weight uint, e protocol.ResultEntry) *models.Result {
	r := &models.Result{
		ID:           shared.GenerateID(),
		QueryID:      qid,
		URL:          e.URL,
		Track:        e.Track,
		AlbumPos:     uint(e.AlbumPos),
		Duration:     uint(e.Duration),
		Bitrate:      uint(e.Bitrate),
		Size:         uint64(e.Size),
		Year:         uint(e.Year),
		DiscNumber:   uint(e.DiscNumber),
		Mimetype:     e.Mimetype,
		Source:       source,
		SourceWeight: weight,
	}

	if artist, ok := cache.ArtistByName(e.Artist, true); ok {
		r.Artist = artist
	} else if e.Artist != "" {
		r.Artist = cache.Artist(0, e.Artist)
	}

	if e.Album != "" {
		if album, ok := cache.AlbumByName(r.Artist, e.Album, true); ok {
			r.Album = album
		} else {
			r.Album = cache.Album(0, e.Album, r.Artist)
		}
	}

	if r.Mimetype == "" {
		if e.Extension != "" {
			r.Mimetype = MimetypeForExtension(e.Extension)
		} else {
			r.Mimetype = MimetypeForURL(e.URL)
		}
	}

	if e.Score != nil {
		r.SetScore(*e.Score)
	}

	return cache.TrackResult(r)
}
