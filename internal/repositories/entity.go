package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/trackpipe/internal/shared"
)

// EntityRepository assigns stable ids to artist and album names.
//
// Concurrent creation of the same name is resolved by the UNIQUE constraint: the loser re-reads the winner's id.
type EntityRepository struct {
	db *sql.DB
}

// NewEntityRepository creates a new EntityRepository with the given database connection
func NewEntityRepository(db *sql.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

// ArtistID returns the id for name. With autoCreate false an unknown name returns 0.
func (r *EntityRepository) ArtistID(name string, autoCreate bool) (int64, error) {
	sortname := shared.NormalizeText(name)
	if sortname == "" {
		return 0, nil
	}

	id, err := queryID(r.db, `SELECT id FROM artists WHERE sortname = ?`, sortname)
	if err != nil || id > 0 || !autoCreate {
		return id, err
	}

	res, err := r.db.Exec(`INSERT INTO artists (name, sortname) VALUES (?, ?)`, name, sortname)
	if isUniqueViolation(err) {
		return queryID(r.db, `SELECT id FROM artists WHERE sortname = ?`, sortname)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert artist: %w", err)
	}
	return res.LastInsertId()
}

// AlbumID returns the id for the album called name by artistID. With autoCreate false an unknown album returns 0.
func (r *EntityRepository) AlbumID(artistID int64, name string, autoCreate bool) (int64, error) {
	sortname := shared.NormalizeText(name)
	if sortname == "" || artistID <= 0 {
		return 0, nil
	}

	const selectAlbum = `SELECT id FROM albums WHERE artist_id = ? AND sortname = ?`
	id, err := queryID(r.db, selectAlbum, artistID, sortname)
	if err != nil || id > 0 || !autoCreate {
		return id, err
	}

	res, err := r.db.Exec(`INSERT INTO albums (artist_id, name, sortname) VALUES (?, ?, ?)`, artistID, name, sortname)
	if isUniqueViolation(err) {
		return queryID(r.db, selectAlbum, artistID, sortname)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert album: %w", err)
	}
	return res.LastInsertId()
}

// ArtistName returns the stored display name for id.
func (r *EntityRepository) ArtistName(id int64) (string, error) {
	var name string
	err := r.db.QueryRow(`SELECT name FROM artists WHERE id = ?`, id).Scan(&name)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: artist %d", shared.ErrEntityNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get artist: %w", err)
	}
	return name, nil
}
