// package tasks implements batch operations over the resolution pipeline.
//
// The core abstraction is BatchResolver, which resolves many queries with bounded concurrency.
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/pipeline"
	"github.com/desertthunder/trackpipe/internal/shared"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultWorkers   = 4
	MaxWorkers       = 16
	DefaultRateLimit = 10.0
	DefaultWait      = 10 * time.Second
)

// QueryResolver submits queries for resolution. [pipeline.Pipeline] implements it.
type QueryResolver interface {
	Resolve(q *models.Query) *pipeline.Subscription
	Cancel(qid string) bool
}

// BatchOpts contains configuration for batch resolution.
type BatchOpts struct {
	Workers   int           // Concurrent waiters (default: 4, max: 16)
	RateLimit float64       // Submissions per second (default: 10)
	Wait      time.Duration // How long each query may take (default: 10s)
}

// QueryMatch is the outcome of resolving a single query.
type QueryMatch struct {
	Query *models.Query  // Submitted query
	Best  *models.Result // Highest ranked playable result (nil if none)
	Err   error          // Why no playable result was found
}

// BatchResult contains the outcome of a batch resolution.
type BatchResult struct {
	Matches         []QueryMatch  // Per-query results, in submission order
	Total           int           // Number of queries
	Matched         int           // Queries with a playable result
	Unmatched       int           // Queries without one
	MatchPercentage float64       // Matched as a percentage of Total
	Elapsed         time.Duration // Wall time for the whole batch
}

// Queries returns the submitted queries in order.
func (r *BatchResult) Queries() []*models.Query {
	out := make([]*models.Query, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = m.Query
	}
	return out
}

// BatchResolver resolves lists of queries through a [QueryResolver].
type BatchResolver struct {
	resolver QueryResolver
	logger   *log.Logger
}

// NewBatchResolver creates a BatchResolver submitting to r.
func NewBatchResolver(r QueryResolver, logger *log.Logger) *BatchResolver {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &BatchResolver{resolver: r, logger: shared.WithLogger(logger, "component", "batch")}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (b *BatchResolver) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Resolve resolves queries concurrently and collects the best playable result of each.
//
// Failed queries are recorded in their [QueryMatch]. When ctx is cancelled, submission stops and the partial
// result is returned along with the context error.
func (b *BatchResolver) Resolve(ctx context.Context, queries []*models.Query, progress chan<- ProgressUpdate, opts BatchOpts) (*BatchResult, error) {
	if b.resolver == nil {
		return nil, fmt.Errorf("%w: pipeline not initialized", shared.ErrServiceUnavailable)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Workers > MaxWorkers {
		opts.Workers = MaxWorkers
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.Wait <= 0 {
		opts.Wait = DefaultWait
	}

	start := time.Now()
	total := len(queries)
	matches := make([]QueryMatch, total)
	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	var completed atomic.Int32
	for i, q := range queries {
		if err := limiter.Wait(gctx); err != nil {
			break
		}
		b.sendProgress(progress, submitQueryUpdate(i+1, total, q))

		g.Go(func() error {
			matches[i] = b.resolveOne(gctx, q, opts.Wait)
			n := int(completed.Add(1))
			b.sendProgress(progress, resolvedQueryUpdate(n, total, matches[i]))
			return nil
		})
	}
	_ = g.Wait()

	skipped := context.Cause(ctx)
	if skipped == nil {
		skipped = fmt.Errorf("%w: not submitted before the deadline", shared.ErrTimeout)
	}
	result := &BatchResult{Matches: matches, Total: total, Elapsed: time.Since(start)}
	for i := range matches {
		if matches[i].Query == nil {
			matches[i] = QueryMatch{Query: queries[i], Err: skipped}
		}
		if matches[i].Best != nil {
			result.Matched++
		} else {
			result.Unmatched++
		}
	}
	if total > 0 {
		result.MatchPercentage = float64(result.Matched) / float64(total) * 100
	}

	b.logger.Info("batch finished", "total", total, "matched", result.Matched, "elapsed", result.Elapsed)
	b.sendProgress(progress, batchCompleteUpdate(result))
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (b *BatchResolver) resolveOne(ctx context.Context, q *models.Query, wait time.Duration) QueryMatch {
	sub := b.resolver.Resolve(q)

	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	err := sub.Wait(wctx)
	if err != nil {
		b.resolver.Cancel(q.ID)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: no answer within %s", shared.ErrTimeout, wait)
		}
	}

	if r := best(q); r != nil {
		return QueryMatch{Query: q, Best: r}
	}
	if err == nil {
		err = shared.ErrTrackNotFound
	}
	return QueryMatch{Query: q, Err: err}
}

func best(q *models.Query) *models.Result {
	for _, r := range q.SortedResults() {
		if r.Playable() {
			return r
		}
	}
	return nil
}
