package repositories

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/shared"
)

const selectCollectionTrack = `
	SELECT t.id, ar.name, COALESCE(al.name, ''), t.track, t.url, t.album_pos, t.duration, t.bitrate,
		t.size, t.year, t.disc_number, t.mimetype, t.created_at, t.updated_at, t.deleted_at
	FROM collection_tracks t
	JOIN artists ar ON ar.id = t.artist_id
	LEFT JOIN albums al ON al.id = t.album_id
`

type scanner interface {
	Scan(dest ...any) error
}

// CollectionRepository persists the tracks served by the local collection resolver.
//
// Artist and album names are stored by id through an [EntityRepository], so the collection and the
// entity cache agree on identity.
type CollectionRepository struct {
	db       *sql.DB
	entities *EntityRepository
}

// NewCollectionRepository creates a new CollectionRepository with the given database connection
func NewCollectionRepository(db *sql.DB) *CollectionRepository {
	return &CollectionRepository{db: db, entities: NewEntityRepository(db)}
}

// Create inserts a new [models.CollectionTrack] with a generated ID.
func (r *CollectionRepository) Create(track *models.CollectionTrack) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	artistID, err := r.entities.ArtistID(track.Artist, true)
	if err != nil {
		return fmt.Errorf("failed to resolve artist: %w", err)
	}

	var albumID sql.NullInt64
	if strings.TrimSpace(track.Album) != "" {
		id, err := r.entities.AlbumID(artistID, track.Album, true)
		if err != nil {
			return fmt.Errorf("failed to resolve album: %w", err)
		}
		albumID = sql.NullInt64{Int64: id, Valid: id > 0}
	}

	now := time.Now()
	track.ID = shared.GenerateID()
	track.CreatedAt = now
	track.UpdatedAt = now

	query := `
		INSERT INTO collection_tracks (id, artist_id, album_id, track, sortkey, url, album_pos, duration, bitrate,
			size, year, disc_number, mimetype, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		track.ID,
		artistID,
		albumID,
		track.Track,
		shared.NormalizeTrackKey(track.Track, track.Artist),
		track.URL,
		track.AlbumPos,
		track.Duration,
		track.Bitrate,
		track.Size,
		track.Year,
		track.DiscNumber,
		track.Mimetype,
		track.CreatedAt,
		track.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: url already in collection: %s", shared.ErrInvalidInput, track.URL)
	}
	if err != nil {
		return fmt.Errorf("failed to insert collection track: %w", err)
	}

	return nil
}

// Get retrieves a track by ID, excluding soft-deleted tracks
func (r *CollectionRepository) Get(id string) (*models.CollectionTrack, error) {
	return r.scanOne(r.db.QueryRow(selectCollectionTrack+` WHERE t.id = ? AND t.deleted_at IS NULL`, id))
}

// GetByURL retrieves a track by its location
func (r *CollectionRepository) GetByURL(url string) (*models.CollectionTrack, error) {
	return r.scanOne(r.db.QueryRow(selectCollectionTrack+` WHERE t.url = ? AND t.deleted_at IS NULL`, url))
}

// Delete soft-deletes a track by ID
func (r *CollectionRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE collection_tracks SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete collection track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
	}

	return nil
}

// List retrieves all tracks matching the given criteria, excluding soft-deleted tracks.
//
// Supported criteria: "artist" (normalized match) and "limit".
func (r *CollectionRepository) List(criteria map[string]any) ([]*models.CollectionTrack, error) {
	query := selectCollectionTrack + ` WHERE t.deleted_at IS NULL`
	args := []any{}

	if artist, ok := criteria["artist"].(string); ok && artist != "" {
		query += " AND ar.sortname = ?"
		args = append(args, shared.NormalizeText(artist))
	}

	query += " ORDER BY ar.sortname, al.sortname, t.disc_number, t.album_pos, t.track"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return r.queryAll(query, args...)
}

// Find returns tracks whose normalized track and artist equal the given ones.
func (r *CollectionRepository) Find(artist, track string) ([]*models.CollectionTrack, error) {
	query := selectCollectionTrack + ` WHERE t.sortkey = ? AND t.deleted_at IS NULL ORDER BY t.bitrate DESC`
	return r.queryAll(query, shared.NormalizeTrackKey(track, artist))
}

// Search returns tracks where every word of text appears in the artist, album or track name.
func (r *CollectionRepository) Search(text string, limit int) ([]*models.CollectionTrack, error) {
	words := strings.Fields(shared.NormalizeText(text))
	if len(words) == 0 {
		return nil, nil
	}

	query := selectCollectionTrack + ` WHERE t.deleted_at IS NULL`
	args := []any{}
	for _, w := range words {
		query += ` AND (t.sortkey LIKE ? ESCAPE '\' OR COALESCE(al.sortname, '') LIKE ? ESCAPE '\')`
		pattern := "%" + escapeLike(w) + "%"
		args = append(args, pattern, pattern)
	}
	query += " ORDER BY ar.sortname, t.track"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return r.queryAll(query, args...)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *CollectionRepository) queryAll(query string, args ...any) ([]*models.CollectionTrack, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}
	defer rows.Close()

	var tracks []*models.CollectionTrack
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}

func (r *CollectionRepository) scanOne(row *sql.Row) (*models.CollectionTrack, error) {
	track, err := scanTrack(row)
	if err == sql.ErrNoRows {
		return nil, shared.ErrTrackNotFound
	}
	return track, err
}

func scanTrack(s scanner) (*models.CollectionTrack, error) {
	var (
		t         models.CollectionTrack
		deletedAt sql.NullTime
	)

	err := s.Scan(&t.ID, &t.Artist, &t.Album, &t.Track, &t.URL, &t.AlbumPos, &t.Duration, &t.Bitrate,
		&t.Size, &t.Year, &t.DiscNumber, &t.Mimetype, &t.CreatedAt, &t.UpdatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan collection track: %w", err)
	}

	if deletedAt.Valid {
		t.DeletedAt = &deletedAt.Time
	}
	return &t, nil
}
