package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/desertthunder/trackpipe/internal/formatter"
	"github.com/desertthunder/trackpipe/internal/shared"
	"github.com/desertthunder/trackpipe/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Batch resolves every query in a file, or stdin when the file is "-".
func (r *Runner) Batch(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("%w: query file is required", shared.ErrMissingArgument)
	}
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrFileNotFound, err)
		}
		defer f.Close()
		in = f
	}

	queries, err := tasks.ReadQueryList(in)
	if err != nil {
		return err
	}
	if len(queries) == 0 {
		return fmt.Errorf("%w: %s contains no queries", shared.ErrInvalidInput, path)
	}

	s, err := r.openStack()
	if err != nil {
		return err
	}
	defer s.Close()
	s.waitReady(ctx, r.config.Pipeline.ReadyTimeout())

	r.logger.Info("starting batch", "queries", len(queries), "resolvers", len(s.pipeline.Resolvers()))

	progressCh := make(chan tasks.ProgressUpdate, 50)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for update := range progressCh {
			switch update.Phase {
			case tasks.ResolveQueries:
				r.logger.Info(update.Message, "step", update.Step, "total", update.Total)
			default:
				r.logger.Debug(update.Message, "phase", update.Phase)
			}
		}
	}()

	batch := tasks.NewBatchResolver(s.pipeline, r.logger)
	result, err := batch.Resolve(ctx, queries, progressCh, tasks.BatchOpts{
		Workers:   int(cmd.Int("workers")),
		RateLimit: cmd.Float("rate"),
		Wait:      cmd.Duration("wait"),
	})
	close(progressCh)
	<-drained

	if err != nil {
		return err
	}

	data, err := formatter.Queries(result.Queries(), format)
	if err != nil {
		return err
	}
	if err := r.writeOutput(data, cmd.String("output")); err != nil {
		return err
	}

	if format != formatter.FormatJSON {
		r.writePlainHeader("Batch Complete")
		r.writePlain("Matched: %d/%d (%.1f%%) in %s\n", result.Matched, result.Total, result.MatchPercentage, result.Elapsed.Round(time.Millisecond))
	}
	return nil
}
