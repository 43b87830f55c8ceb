package repositories

import (
	"errors"
	"testing"

	"github.com/desertthunder/trackpipe/internal/shared"
)

func TestCollectionRepositoryErrors(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		tests := []struct {
			name   string
			artist string
			track  string
			url    string
		}{
			{"MissingArtist", "", "Sexy Boy", "file:///1.mp3"},
			{"MissingTrack", "Air", " ", "file:///1.mp3"},
			{"MissingURL", "Air", "Sexy Boy", ""},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				repo := NewCollectionRepository(setupTestDB(t))
				err := repo.Create(newCollectionTrack(tt.artist, "", tt.track, tt.url))
				if !errors.Is(err, shared.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
			})
		}

		t.Run("DuplicateURL", func(t *testing.T) {
			repo := NewCollectionRepository(setupTestDB(t))
			if err := repo.Create(newCollectionTrack("Air", "", "Sexy Boy", "file:///1.mp3")); err != nil {
				t.Fatalf("failed to create first track: %v", err)
			}
			err := repo.Create(newCollectionTrack("Air", "", "Sexy Boy (live)", "file:///1.mp3"))
			if !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected duplicate url to be rejected, got %v", err)
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			repo := NewCollectionRepository(setupTestDB(t))
			if _, err := repo.Get("nonexistent-id"); !errors.Is(err, shared.ErrTrackNotFound) {
				t.Errorf("expected ErrTrackNotFound, got %v", err)
			}
		})
	})

	t.Run("Delete", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			repo := NewCollectionRepository(setupTestDB(t))
			if err := repo.Delete("nonexistent-id"); !errors.Is(err, shared.ErrTrackNotFound) {
				t.Errorf("expected ErrTrackNotFound, got %v", err)
			}
		})

		t.Run("Twice", func(t *testing.T) {
			repo := NewCollectionRepository(setupTestDB(t))
			track := newCollectionTrack("Air", "", "Sexy Boy", "file:///1.mp3")
			_ = repo.Create(track)
			if err := repo.Delete(track.ID); err != nil {
				t.Fatalf("first delete failed: %v", err)
			}
			if err := repo.Delete(track.ID); err == nil {
				t.Error("second delete should fail")
			}
		})
	})

	t.Run("ClosedDatabase", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewEntityRepository(db)
		db.Close()
		if _, err := repo.ArtistID("Air", true); err == nil {
			t.Error("expected error from closed database")
		}
	})
}
