package repositories

import (
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestEntityRepository(t *testing.T) {
	t.Run("ArtistID", func(t *testing.T) {
		repo := NewEntityRepository(setupTestDB(t))

		id, err := repo.ArtistID("Air", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != 0 {
			t.Errorf("expected 0 for unknown artist without autoCreate, got %d", id)
		}

		id, err = repo.ArtistID("Air", true)
		if err != nil || id <= 0 {
			t.Fatalf("expected positive id, got %d (%v)", id, err)
		}

		again, err := repo.ArtistID("  air ", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again != id {
			t.Errorf("normalized name should map to id %d, got %d", id, again)
		}

		name, err := repo.ArtistName(id)
		if err != nil || name != "Air" {
			t.Errorf("expected stored display name Air, got %q (%v)", name, err)
		}
	})

	t.Run("AlbumID", func(t *testing.T) {
		repo := NewEntityRepository(setupTestDB(t))
		air, _ := repo.ArtistID("Air", true)
		daft, _ := repo.ArtistID("Daft Punk", true)

		if id, _ := repo.AlbumID(air, "Moon Safari", false); id != 0 {
			t.Errorf("expected miss, got %d", id)
		}

		a, err := repo.AlbumID(air, "Moon Safari", true)
		if err != nil || a <= 0 {
			t.Fatalf("expected album id, got %d (%v)", a, err)
		}
		b, _ := repo.AlbumID(daft, "Moon Safari", true)
		if a == b {
			t.Error("albums must be scoped by artist")
		}
		if id, _ := repo.AlbumID(0, "Moon Safari", true); id != 0 {
			t.Error("album without a persisted artist should not be created")
		}
	})

	t.Run("concurrent creation yields one id", func(t *testing.T) {
		repo := NewEntityRepository(setupTestDB(t))

		const n = 16
		ids := make([]int64, n)
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ids[i], errs[i] = repo.ArtistID("Phoenix", true)
			}()
		}
		wg.Wait()

		for i := range n {
			if errs[i] != nil {
				t.Fatalf("goroutine %d: %v", i, errs[i])
			}
			if ids[i] != ids[0] {
				t.Fatalf("goroutine %d got id %d, want %d", i, ids[i], ids[0])
			}
		}
	})

	t.Run("ArtistName not found", func(t *testing.T) {
		repo := NewEntityRepository(setupTestDB(t))
		if _, err := repo.ArtistName(404); !errors.Is(err, shared.ErrEntityNotFound) {
			t.Errorf("expected ErrEntityNotFound, got %v", err)
		}
	})
}

func newCollectionTrack(artist, album, track, url string) *models.CollectionTrack {
	return &models.CollectionTrack{Artist: artist, Album: album, Track: track, URL: url, Bitrate: 320, Mimetype: "audio/mpeg"}
}

func TestCollectionRepository(t *testing.T) {
	t.Run("Create and Get", func(t *testing.T) {
		repo := NewCollectionRepository(setupTestDB(t))
		track := newCollectionTrack("Air", "Moon Safari", "La Femme D'Argent", "file:///music/air/01.mp3")

		if err := repo.Create(track); err != nil {
			t.Fatalf("failed to create track: %v", err)
		}
		if track.ID == "" {
			t.Error("track ID should be set after creation")
		}

		got, err := repo.Get(track.ID)
		if err != nil {
			t.Fatalf("failed to get track: %v", err)
		}
		if got.Artist != "Air" || got.Album != "Moon Safari" || got.Track != "La Femme D'Argent" {
			t.Errorf("unexpected track %+v", got)
		}
		if got.Bitrate != 320 || got.Mimetype != "audio/mpeg" {
			t.Errorf("metadata not persisted: %+v", got)
		}
	})

	t.Run("Create without album", func(t *testing.T) {
		repo := NewCollectionRepository(setupTestDB(t))
		track := newCollectionTrack("Air", "", "Remember", "file:///music/air/remember.mp3")
		if err := repo.Create(track); err != nil {
			t.Fatalf("failed to create track: %v", err)
		}
		got, err := repo.GetByURL(track.URL)
		if err != nil {
			t.Fatalf("failed to get by url: %v", err)
		}
		if got.Album != "" {
			t.Errorf("expected empty album, got %q", got.Album)
		}
	})

	t.Run("Find matches normalized artist and track", func(t *testing.T) {
		repo := NewCollectionRepository(setupTestDB(t))
		_ = repo.Create(newCollectionTrack("Air", "Moon Safari", "Sexy Boy", "file:///1.mp3"))
		_ = repo.Create(newCollectionTrack("Air", "Moon Safari", "Talisman", "file:///2.mp3"))

		found, err := repo.Find("AIR", "sexy  boy")
		if err != nil {
			t.Fatalf("find failed: %v", err)
		}
		if len(found) != 1 || found[0].URL != "file:///1.mp3" {
			t.Errorf("expected one match, got %+v", found)
		}
	})

	t.Run("Search matches every word", func(t *testing.T) {
		repo := NewCollectionRepository(setupTestDB(t))
		_ = repo.Create(newCollectionTrack("Air", "Moon Safari", "Sexy Boy", "file:///1.mp3"))
		_ = repo.Create(newCollectionTrack("Daft Punk", "Discovery", "One More Time", "file:///2.mp3"))

		found, err := repo.Search("air safari", 10)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(found) != 1 || found[0].Artist != "Air" {
			t.Errorf("expected Air track, got %+v", found)
		}

		if found, _ := repo.Search("100%", 10); len(found) != 0 {
			t.Errorf("wildcards in input should be literal, got %+v", found)
		}
		if found, _ := repo.Search("   ", 10); found != nil {
			t.Error("blank search should return nothing")
		}
	})

	t.Run("List filters by artist", func(t *testing.T) {
		repo := NewCollectionRepository(setupTestDB(t))
		_ = repo.Create(newCollectionTrack("Air", "Moon Safari", "Sexy Boy", "file:///1.mp3"))
		_ = repo.Create(newCollectionTrack("Daft Punk", "Discovery", "One More Time", "file:///2.mp3"))

		all, err := repo.List(map[string]any{})
		if err != nil || len(all) != 2 {
			t.Fatalf("expected 2 tracks, got %d (%v)", len(all), err)
		}

		air, _ := repo.List(map[string]any{"artist": "air"})
		if len(air) != 1 {
			t.Errorf("expected 1 Air track, got %d", len(air))
		}

		limited, _ := repo.List(map[string]any{"limit": 1})
		if len(limited) != 1 {
			t.Errorf("expected limit to apply, got %d", len(limited))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := NewCollectionRepository(setupTestDB(t))
		track := newCollectionTrack("Air", "Moon Safari", "Sexy Boy", "file:///1.mp3")
		_ = repo.Create(track)

		if err := repo.Delete(track.ID); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if _, err := repo.Get(track.ID); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound after delete, got %v", err)
		}
		if found, _ := repo.Find("Air", "Sexy Boy"); len(found) != 0 {
			t.Error("deleted tracks should not be found")
		}
	})
}
