package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackpipe/internal/entities"
	"github.com/desertthunder/trackpipe/internal/metrics"
	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/pipeline"
	"github.com/desertthunder/trackpipe/internal/repositories"
	"github.com/desertthunder/trackpipe/internal/resolvers"
	"github.com/desertthunder/trackpipe/internal/shared"
)

// httpCacheSize and httpCacheTTL bound the per-resolver response cache of HTTP resolvers.
const (
	httpCacheSize = 512
	httpCacheTTL  = 10 * time.Minute
)

// stack is a running pipeline with every configured resolver attached.
type stack struct {
	logger   *log.Logger
	db       *sql.DB
	cache    *entities.Cache
	metrics  *metrics.Metrics
	pipeline *pipeline.Pipeline

	// all lists every resolver in configuration order, ready or not.
	all     []managedResolver
	scripts []*resolvers.ScriptResolver
}

// managedResolver is a resolver the stack starts and closes.
type managedResolver interface {
	resolvers.Resolver
	Start()
	Close() error
}

// openStack builds and starts the pipeline described by the runner's configuration.
func (r *Runner) openStack() (*stack, error) {
	cfg := r.config
	s := &stack{logger: r.logger}

	if cfg.Collection.Enabled {
		db, err := shared.OpenDatabase(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open collection database: %w", err)
		}
		s.db = db
		s.cache = entities.New(repositories.NewEntityRepository(db), r.logger)
	} else {
		s.cache = entities.New(nil, r.logger)
	}

	s.metrics = r.metrics
	s.pipeline = pipeline.New(
		pipeline.WithLogger(r.logger),
		pipeline.WithMetrics(s.metrics),
		pipeline.WithEntityCache(s.cache),
	)

	if s.db != nil {
		weight := cfg.Collection.Weight
		if weight == 0 {
			weight = resolvers.DefaultLocalWeight
		}
		s.all = append(s.all, resolvers.NewLocalResolver(
			repositories.NewCollectionRepository(s.db),
			s.pipeline,
			resolvers.LocalWeight(weight),
			resolvers.LocalEntityCache(s.cache),
			resolvers.LocalLogger(r.logger),
		))
	}

	for _, hc := range cfg.HTTPResolvers {
		if !hc.Enabled {
			continue
		}
		var headers *shared.RequestHeaders
		if hc.HeadersFile != "" {
			h, err := shared.LoadRequestHeaders(hc.HeadersFile)
			if err != nil {
				s.Close()
				return nil, err
			}
			headers = h
		}
		s.all = append(s.all, resolvers.NewHTTPResolver(hc, s.pipeline,
			resolvers.HTTPClient(r.httpClient),
			resolvers.HTTPHeaders(headers),
			resolvers.HTTPEntityCache(s.cache),
			resolvers.HTTPLogger(r.logger),
			resolvers.HTTPMetrics(s.metrics),
			resolvers.HTTPCache(httpCacheSize, httpCacheTTL),
		))
	}

	maxRestarts := cfg.Pipeline.MaxRestarts
	if maxRestarts == 0 {
		maxRestarts = resolvers.DefaultMaxRestarts
	}
	for _, rc := range cfg.Resolvers {
		if !rc.Enabled {
			continue
		}
		sr := resolvers.NewScriptResolver(rc.Path,
			resolvers.WithLauncher(r.launcher),
			resolvers.WithRegistrar(s.pipeline),
			resolvers.WithEntityCache(s.cache),
			resolvers.WithProxy(resolvers.StaticProxy(cfg.Proxy)),
			resolvers.WithLogger(r.logger),
			resolvers.WithMetrics(s.metrics),
			resolvers.WithMaxRestarts(maxRestarts),
			resolvers.WithDefaultTimeout(cfg.Pipeline.DefaultTimeout()),
			resolvers.WithPreference(rc.Preference),
			resolvers.WithPlaylistHandler(s.onPlaylist),
		)
		s.scripts = append(s.scripts, sr)
		s.all = append(s.all, sr)
	}

	for _, res := range s.all {
		res.Start()
	}
	return s, nil
}

// onPlaylist submits every track of a playlist announced by a resolver. The pipeline retains
// finished queries, so each can be polled by id afterwards.
func (s *stack) onPlaylist(r resolvers.Resolver, qid, identifier string, queries []*models.Query) {
	s.logger.Info("resolver announced a playlist", "resolver", r.Name(), "qid", qid, "identifier", identifier, "tracks", len(queries))
	for _, q := range queries {
		s.pipeline.Resolve(q)
	}
}

// waitReady blocks until no external resolver is still starting, or until timeout.
func (s *stack) waitReady(ctx context.Context, timeout time.Duration) {
	if len(s.scripts) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, sr := range s.scripts {
		events := sr.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sr.State() == resolvers.StateStarting {
				select {
				case _, ok := <-events:
					if !ok {
						return
					}
				case <-ctx.Done():
					s.logger.Warn("resolver not ready in time", "path", sr.Path(), "timeout", timeout)
					return
				}
			}
		}()
	}
	wg.Wait()
}

// Close stops every resolver and releases the database.
func (s *stack) Close() error {
	var errs []error
	for _, res := range s.all {
		errs = append(errs, res.Close())
	}
	errs = append(errs, s.pipeline.Close())
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

// allResolvers returns every configured resolver.
func (s *stack) allResolvers() []resolvers.Resolver {
	out := make([]resolvers.Resolver, len(s.all))
	for i, r := range s.all {
		out[i] = r
	}
	return out
}

// statuses describes every configured resolver, ranked ones first in pipeline order.
func (s *stack) statuses() []resolvers.Status {
	ranked := s.pipeline.Resolvers()
	seen := make(map[resolvers.Resolver]bool, len(ranked))
	out := make([]resolvers.Status, 0, len(s.all))
	for _, r := range ranked {
		seen[r] = true
		out = append(out, resolvers.StatusOf(r))
	}
	for _, r := range s.all {
		if !seen[r] {
			out = append(out, resolvers.StatusOf(r))
		}
	}
	return out
}
