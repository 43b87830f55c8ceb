package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/trackpipe/internal/resolvers"
	"github.com/desertthunder/trackpipe/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP API until interrupted. External resolvers are reloaded when their files change.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	s, err := r.openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	if cmd.Bool("watch") && len(s.scripts) > 0 {
		watcher, err := resolvers.NewWatcher(r.logger)
		if err != nil {
			return fmt.Errorf("failed to watch resolvers: %w", err)
		}
		defer watcher.Close()

		for _, sr := range s.scripts {
			if err := watcher.Add(sr); err != nil {
				r.logger.Warn("not watching resolver", "path", sr.Path(), "error", err)
			}
		}
		go watcher.Run(ctx)
	}

	api := server.New(server.Options{
		Pipeline: s.pipeline,
		Cache:    s.cache,
		Gatherer: r.registry,
		Metrics:  s.metrics,
		Logger:   r.logger,
	})
	return api.ListenAndServe(ctx, addr)
}
