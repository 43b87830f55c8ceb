// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/desertthunder/trackpipe/internal/tasks"
	"github.com/urfave/cli/v3"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format (table, csv, markdown, text, json)",
		Value:   "table",
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON (same as --format json)",
	}
}

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Write output to a file instead of stdout",
	}
}

// resolveCommand resolves a single query.
func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Resolve one track through every configured resolver",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "artist",
				Aliases: []string{"a"},
				Usage:   "Artist name",
			},
			&cli.StringFlag{
				Name:    "track",
				Aliases: []string{"t"},
				Usage:   "Track title",
			},
			&cli.StringFlag{
				Name:  "album",
				Usage: "Album title",
			},
			&cli.StringFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "Free-text query, instead of --artist/--track",
			},
			&cli.DurationFlag{
				Name:  "wait",
				Usage: "How long to wait for the query to resolve",
				Value: 10 * time.Second,
			},
			formatFlag(),
			jsonFlag(),
			outputFlag(),
		},
		Action: r.Resolve,
	}
}

// resolversCommand inspects configured resolvers.
func resolversCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "resolvers",
		Usage: "Inspect configured resolvers",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "Start every configured resolver and list them in dispatch order",
				Flags:  []cli.Flag{formatFlag(), jsonFlag()},
				Action: r.ResolversList,
			},
			{
				Name:  "config",
				Usage: "Print the configuration widget announced by an external resolver",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "set",
						Usage: "JSON object of widget values to send to the resolver",
					},
				},
				Action: r.ResolverConfig,
			},
		},
	}
}

// batchCommand resolves a list of queries.
func batchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Resolve every query in a file (artist - track lines, a JSON array, or a playlist message)",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file"},
		},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Number of queries in flight",
				Value:   tasks.DefaultWorkers,
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Maximum queries submitted per second",
				Value: tasks.DefaultRateLimit,
			},
			&cli.DurationFlag{
				Name:  "wait",
				Usage: "How long to wait for each query",
				Value: tasks.DefaultWait,
			},
			formatFlag(),
			jsonFlag(),
			outputFlag(),
		},
		Action: r.Batch,
	}
}

// collectionCommand manages the local collection.
func collectionCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "collection",
		Aliases: []string{"col"},
		Usage:   "Manage the local collection served by the collection resolver",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a track to the collection",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "artist", Usage: "Artist name", Required: true},
					&cli.StringFlag{Name: "track", Usage: "Track title", Required: true},
					&cli.StringFlag{Name: "url", Usage: "Playable URL", Required: true},
					&cli.StringFlag{Name: "album", Usage: "Album title"},
					&cli.StringFlag{Name: "mimetype", Usage: "Mimetype; guessed from the URL when empty"},
					&cli.IntFlag{Name: "duration", Usage: "Duration in seconds"},
					&cli.IntFlag{Name: "year", Usage: "Release year"},
				},
				Action: r.CollectionAdd,
			},
			{
				Name:  "list",
				Usage: "List collection tracks",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "artist", Usage: "Only tracks by this artist"},
					formatFlag(),
					jsonFlag(),
					outputFlag(),
				},
				Action: r.CollectionList,
			},
			{
				Name:  "remove",
				Usage: "Remove a track by id",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.CollectionRemove,
			},
		},
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write an example configuration file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent database migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// serveCommand runs the HTTP API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the resolution API over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address; defaults to [server] host and port",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Reload external resolvers when their files change",
				Value: true,
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive resolution monitor",
		Action:  r.TUI,
	}
}
