package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/desertthunder/trackpipe/internal/formatter"
	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/shared"
	"github.com/urfave/cli/v3"
)

// outputFormat reads --format, with --json taking precedence.
func outputFormat(cmd *cli.Command) (formatter.Format, error) {
	if cmd.Bool("json") {
		return formatter.FormatJSON, nil
	}
	return formatter.ParseFormat(cmd.String("format"))
}

// queryFromFlags builds a query from --query or --artist/--track/--album.
func queryFromFlags(cmd *cli.Command) (*models.Query, error) {
	text := strings.TrimSpace(cmd.String("query"))
	artist := strings.TrimSpace(cmd.String("artist"))
	track := strings.TrimSpace(cmd.String("track"))

	switch {
	case text != "" && (artist != "" || track != ""):
		return nil, fmt.Errorf("%w: --query cannot be combined with --artist/--track", shared.ErrInvalidArgument)
	case text != "":
		return models.NewFullTextQuery(text), nil
	case artist == "" || track == "":
		return nil, fmt.Errorf("%w: --artist and --track, or --query, are required", shared.ErrMissingArgument)
	}
	return models.NewQuery(artist, track, cmd.String("album")), nil
}

// Resolve submits one query and prints its results once it resolves or --wait elapses.
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	q, err := queryFromFlags(cmd)
	if err != nil {
		return err
	}
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	s, err := r.openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	s.waitReady(ctx, r.config.Pipeline.ReadyTimeout())
	if len(s.pipeline.Resolvers()) == 0 {
		return fmt.Errorf("%w: no resolver is ready", shared.ErrServiceUnavailable)
	}

	r.logger.Info("resolving", "query", q.String(), "resolvers", len(s.pipeline.Resolvers()))
	sub := s.pipeline.Resolve(q)

	waitCtx, cancel := context.WithTimeout(ctx, cmd.Duration("wait"))
	defer cancel()
	if err := sub.Wait(waitCtx); err != nil {
		r.logger.Warn("query did not resolve in time", "query", q.String(), "results", len(q.Results()))
	}

	data, err := formatter.Results(sub.Query(), format)
	if err != nil {
		return err
	}
	return r.writeOutput(data, cmd.String("output"))
}

// ResolversList starts every configured resolver, waits for them to announce themselves and
// lists them in dispatch order.
func (r *Runner) ResolversList(ctx context.Context, cmd *cli.Command) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	s, err := r.openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	s.waitReady(ctx, r.config.Pipeline.ReadyTimeout())

	data, err := formatter.Resolvers(s.statuses(), format)
	if err != nil {
		return err
	}
	return r.writeOutput(data, "")
}

// ResolverConfig prints the configuration widget of the external resolver at path, and
// optionally sends new widget values to it.
func (r *Runner) ResolverConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: resolver path is required", shared.ErrMissingArgument)
	}

	cfg := *r.config
	cfg.Collection.Enabled = false
	cfg.HTTPResolvers = nil
	cfg.Resolvers = []shared.ResolverConfig{{Path: path, Enabled: true}}
	scoped := *r
	scoped.config = &cfg

	s, err := scoped.openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	s.waitReady(ctx, r.config.Pipeline.ReadyTimeout())
	sr := s.scripts[0]
	if !sr.Ready() {
		if err := sr.Error(); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s did not become ready", shared.ErrNotReady, path)
	}

	if set := cmd.String("set"); set != "" {
		if !json.Valid([]byte(set)) {
			return fmt.Errorf("%w: --set must be a JSON object", shared.ErrInvalidArgument)
		}
		if err := sr.SaveConfig(json.RawMessage(set)); err != nil {
			return err
		}
		r.logger.Info("sent widget values", "resolver", sr.Name())
	}

	widget, ok := sr.ConfWidget()
	if !ok {
		return r.writePlain("%s has no configuration widget\n", sr.Name())
	}
	data, err := widget.Data()
	if err != nil {
		return fmt.Errorf("failed to decode widget: %w", err)
	}
	return r.writeJSON(map[string]any{
		"name":   sr.Name(),
		"widget": string(data),
		"images": widget.Images,
	}, true)
}
