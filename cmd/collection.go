package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/trackpipe/internal/formatter"
	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/repositories"
	"github.com/desertthunder/trackpipe/internal/resolvers"
	"github.com/desertthunder/trackpipe/internal/shared"
	"github.com/urfave/cli/v3"
)

// openCollection opens the configured database and returns its collection repository.
func (r *Runner) openCollection() (*repositories.CollectionRepository, *sql.DB, error) {
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return repositories.NewCollectionRepository(db), db, nil
}

// CollectionAdd stores a track in the local collection.
func (r *Runner) CollectionAdd(ctx context.Context, cmd *cli.Command) error {
	repo, db, err := r.openCollection()
	if err != nil {
		return err
	}
	defer db.Close()

	track := &models.CollectionTrack{
		Artist:   cmd.String("artist"),
		Album:    cmd.String("album"),
		Track:    cmd.String("track"),
		URL:      cmd.String("url"),
		Mimetype: cmd.String("mimetype"),
		Duration: uint(max(cmd.Int("duration"), 0)),
		Year:     uint(max(cmd.Int("year"), 0)),
	}
	if track.Mimetype == "" {
		track.Mimetype = resolvers.MimetypeForURL(track.URL)
	}

	if err := repo.Create(track); err != nil {
		return err
	}

	r.logger.Info("added track to collection", "id", track.ID, "artist", track.Artist, "track", track.Track)
	return r.writePlain("✓ Added %s - %s (%s)\n", track.Artist, track.Track, track.ID)
}

// CollectionList prints collection tracks.
func (r *Runner) CollectionList(ctx context.Context, cmd *cli.Command) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	repo, db, err := r.openCollection()
	if err != nil {
		return err
	}
	defer db.Close()

	tracks, err := repo.List(map[string]any{"artist": cmd.String("artist")})
	if err != nil {
		return err
	}

	data, err := formatter.Collection(tracks, format)
	if err != nil {
		return err
	}
	return r.writeOutput(data, cmd.String("output"))
}

// CollectionRemove soft-deletes a track.
func (r *Runner) CollectionRemove(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: track id is required", shared.ErrMissingArgument)
	}

	repo, db, err := r.openCollection()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repo.Delete(id); err != nil {
		return err
	}
	return r.writePlain("✓ Removed %s\n", id)
}
