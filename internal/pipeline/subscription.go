package pipeline

import (
	"context"
	"sync"

	"github.com/desertthunder/trackpipe/internal/models"
)

// Update is one batch of results reported for a query.
type Update struct {
	Resolver string
	Results  []*models.Result
}

// Subscription follows a single query until it completes.
//
// Updates are queued without limit and delivered in report order, so a slow reader never loses
// one and never stalls the pipeline.
type Subscription struct {
	query *models.Query

	mu        sync.Mutex
	queue     []Update
	finished  bool
	cancelled bool
	signal    chan struct{}
	done      chan struct{}

	pumpOnce sync.Once
	updates  chan Update
	stopOnce sync.Once
	stop     chan struct{}
}

func newSubscription(q *models.Query) *Subscription {
	return &Subscription{
		query:   q,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		updates: make(chan Update),
		stop:    make(chan struct{}),
	}
}

// Query returns the query being resolved.
func (s *Subscription) Query() *models.Query { return s.query }

// Done is closed when the query completes or is cancelled.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Cancelled reports whether the query was cancelled instead of completing.
func (s *Subscription) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Updates returns a channel carrying every result batch. It is closed after the last one.
func (s *Subscription) Updates() <-chan Update {
	s.pumpOnce.Do(func() { go s.pump() })
	return s.updates
}

// Unsubscribe stops delivery on Updates, which is then closed. Undelivered batches are dropped.
// The query itself keeps resolving; use [Pipeline.Cancel] to stop it.
func (s *Subscription) Unsubscribe() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Wait blocks until the query completes or ctx is done.
func (s *Subscription) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Subscription) push(u Update) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, u)
	s.mu.Unlock()
	s.notify()
}

func (s *Subscription) finish(cancelled bool) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.cancelled = cancelled
	close(s.done)
	s.mu.Unlock()
	s.notify()
}

func (s *Subscription) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.updates)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		finished := s.finished
		s.mu.Unlock()

		for _, u := range batch {
			select {
			case s.updates <- u:
			case <-s.stop:
				return
			}
		}
		if finished && len(batch) == 0 {
			return
		}
		if !finished {
			select {
			case <-s.signal:
			case <-s.stop:
				return
			}
		}
	}
}
