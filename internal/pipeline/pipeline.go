package pipeline

import (
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackpipe/internal/entities"
	"github.com/desertthunder/trackpipe/internal/metrics"
	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/resolvers"
	"github.com/desertthunder/trackpipe/internal/shared"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Finished queries are kept this long, up to this many, so they can still be polled by id.
const (
	DefaultRetainSize = 1024
	DefaultRetainTTL  = 10 * time.Minute
)

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records dispatch and completion metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithEntityCache registers every resolved query in c so it can be looked up by id.
func WithEntityCache(c *entities.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithRetention keeps up to size finished queries for ttl so [Pipeline.Lookup] still finds
// them. A size of 0 keeps none.
func WithRetention(size int, ttl time.Duration) Option {
	return func(p *Pipeline) {
		p.retainSize = size
		p.retainTTL = ttl
	}
}

// Pipeline fans queries out to registered resolvers and collects their results.
//
// It implements [resolvers.Registrar].
type Pipeline struct {
	logger  *log.Logger
	metrics *metrics.Metrics
	cache   *entities.Cache

	retainSize int
	retainTTL  time.Duration
	finished   *expirable.LRU[string, *models.Query]

	mu      sync.Mutex
	seq     uint64
	seqs    map[resolvers.Resolver]uint64
	ranked  []*entry
	pending map[string]*pendingQuery
	closed  bool
}

type entry struct {
	resolver   resolvers.Resolver
	weight     uint
	preference uint
	seq        uint64
}

type pendingQuery struct {
	query   *models.Query
	sub     *Subscription
	waiting map[resolvers.Resolver]*time.Timer
	started time.Time
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		pending:    make(map[string]*pendingQuery),
		seqs:       make(map[resolvers.Resolver]uint64),
		retainSize: DefaultRetainSize,
		retainTTL:  DefaultRetainTTL,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.retainSize > 0 {
		p.finished = expirable.NewLRU[string, *models.Query](p.retainSize, nil, p.retainTTL)
	}
	if p.logger == nil {
		p.logger = shared.NewLogger(nil)
	}
	p.logger = shared.WithLogger(p.logger, "component", "pipeline")
	return p
}

// AddResolver registers r, or refreshes its weight and preference if it is already registered.
// A resolver keeps its first registration order, also when it is removed and added again.
func (p *Pipeline) AddResolver(r resolvers.Resolver) {
	weight, preference, name := r.Weight(), r.Preference(), r.Name()

	p.mu.Lock()
	if i := p.indexLocked(r); i >= 0 {
		p.ranked[i].weight = weight
		p.ranked[i].preference = preference
	} else {
		seq, ok := p.seqs[r]
		if !ok {
			p.seq++
			seq = p.seq
			p.seqs[r] = seq
		}
		p.ranked = append(p.ranked, &entry{resolver: r, weight: weight, preference: preference, seq: seq})
	}
	slices.SortStableFunc(p.ranked, compareEntries)
	n := len(p.ranked)
	p.mu.Unlock()

	p.logger.Info("resolver registered", "name", name, "weight", weight, "preference", preference, "resolvers", n)
}

// RemoveResolver unregisters r. Pending queries stop waiting for it.
func (p *Pipeline) RemoveResolver(r resolvers.Resolver) {
	name := r.Name()

	p.mu.Lock()
	i := p.indexLocked(r)
	if i < 0 {
		p.mu.Unlock()
		return
	}
	p.ranked = slices.Delete(p.ranked, i, i+1)

	var finished []*pendingQuery
	for qid, pq := range p.pending {
		t, ok := pq.waiting[r]
		if !ok {
			continue
		}
		t.Stop()
		delete(pq.waiting, r)
		if len(pq.waiting) == 0 {
			p.completeLocked(qid, pq)
			finished = append(finished, pq)
		}
	}
	p.mu.Unlock()

	p.logger.Info("resolver unregistered", "name", name)
	p.recordFinished(finished...)
}

// Resolvers returns the registered resolvers in rank order.
func (p *Pipeline) Resolvers() []resolvers.Resolver {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]resolvers.Resolver, len(p.ranked))
	for i, e := range p.ranked {
		out[i] = e.resolver
	}
	return out
}

// Pending returns the number of queries still being resolved.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Lookup finds a pending query, or a finished one that is still retained.
func (p *Pipeline) Lookup(qid string) (*models.Query, bool) {
	p.mu.Lock()
	pq, ok := p.pending[qid]
	p.mu.Unlock()
	if ok {
		return pq.query, true
	}
	if p.finished == nil {
		return nil, false
	}
	return p.finished.Get(qid)
}

// Resolve dispatches q to every Ready resolver in rank order and returns immediately.
//
// q gets a generated id when it has none. A query with no Ready resolver completes at once.
func (p *Pipeline) Resolve(q *models.Query) *Subscription {
	if q.ID == "" {
		q.ID = shared.GenerateID()
	}

	p.mu.Lock()
	candidates := make([]resolvers.Resolver, len(p.ranked))
	for i, e := range p.ranked {
		candidates[i] = e.resolver
	}
	closed := p.closed
	p.mu.Unlock()

	sub := newSubscription(q)
	if closed {
		sub.finish(true)
		return sub
	}

	type target struct {
		r       resolvers.Resolver
		timeout time.Duration
	}
	var targets []target
	for _, r := range candidates {
		if r.Ready() {
			targets = append(targets, target{r, r.Timeout()})
		}
	}

	p.mu.Lock()
	if existing, ok := p.pending[q.ID]; ok {
		if existing.query == q {
			p.mu.Unlock()
			return existing.sub
		}
		p.logger.Warn("query id already pending, assigning a new one", "qid", q.ID)
		q.ID = shared.GenerateID()
	}
	qid := q.ID
	pq := &pendingQuery{query: q, sub: sub, waiting: make(map[resolvers.Resolver]*time.Timer), started: time.Now()}
	for _, t := range targets {
		r := t.r
		pq.waiting[r] = time.AfterFunc(t.timeout, func() { p.timedOut(qid, r) })
	}
	if len(targets) > 0 {
		p.pending[qid] = pq
	}
	p.mu.Unlock()

	if p.cache != nil {
		p.cache.TrackQuery(q)
	}
	p.metrics.QuerySubmitted()

	if len(targets) == 0 {
		p.logger.Debug("no ready resolvers", "qid", qid, "query", q.String())
		q.MarkResolved()
		p.retain(q)
		sub.finish(false)
		p.recordFinished(pq)
		return sub
	}

	p.logger.Debug("dispatching query", "qid", qid, "query", q.String(), "resolvers", len(targets))
	for _, t := range targets {
		select {
		case <-sub.Done():
			return sub
		default:
		}
		t.r.Resolve(q)
	}
	return sub
}

// ReportResults delivers results for qid from r.
//
// Unscored results are scored against the query. An unknown qid is logged and otherwise ignored.
func (p *Pipeline) ReportResults(r resolvers.Resolver, qid string, results []*models.Result) {
	name := r.Name()

	p.mu.Lock()
	pq, ok := p.pending[qid]
	if !ok {
		p.mu.Unlock()
		p.logger.Warn("results for unknown query", "qid", qid, "resolver", name, "results", len(results))
		p.metrics.UnknownQuery()
		return
	}

	playable := false
	for _, res := range results {
		if !res.Scored {
			res.SetScore(models.Score(pq.query, res.ArtistName(), res.Track))
		}
		playable = playable || res.Playable()
	}
	pq.query.AddResults(results...)
	if len(results) > 0 {
		pq.sub.push(Update{Resolver: name, Results: results})
	}

	if t, ok := pq.waiting[r]; ok {
		t.Stop()
		delete(pq.waiting, r)
	}
	done := playable || len(pq.waiting) == 0
	if done {
		p.completeLocked(qid, pq)
	}
	p.mu.Unlock()

	p.logger.Debug("results reported", "qid", qid, "resolver", name, "results", len(results), "playable", playable)
	p.metrics.ResultsReported(name, len(results))
	if done {
		p.recordFinished(pq)
	}
}

// Cancel stops resolving qid without marking it resolved. It reports whether qid was pending.
func (p *Pipeline) Cancel(qid string) bool {
	p.mu.Lock()
	pq, ok := p.pending[qid]
	if ok {
		p.dropLocked(qid, pq)
	}
	p.mu.Unlock()

	if ok {
		pq.sub.finish(true)
		p.metrics.QueryFinished(metrics.OutcomeCancelled, time.Since(pq.started))
	}
	return ok
}

// Close cancels every pending query. Later queries complete immediately.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	pending := p.pending
	p.pending = make(map[string]*pendingQuery)
	for qid, pq := range pending {
		p.dropLocked(qid, pq)
	}
	p.mu.Unlock()

	for _, pq := range pending {
		pq.sub.finish(true)
		p.metrics.QueryFinished(metrics.OutcomeCancelled, time.Since(pq.started))
	}
	return nil
}

func (p *Pipeline) timedOut(qid string, r resolvers.Resolver) {
	p.mu.Lock()
	pq, ok := p.pending[qid]
	if !ok {
		p.mu.Unlock()
		return
	}
	if _, waiting := pq.waiting[r]; !waiting {
		p.mu.Unlock()
		return
	}
	delete(pq.waiting, r)
	done := len(pq.waiting) == 0
	if done {
		p.completeLocked(qid, pq)
	}
	p.mu.Unlock()

	name := r.Name()
	p.logger.Debug("resolver timed out", "qid", qid, "resolver", name)
	p.metrics.ResolverTimedOut(name)
	if done {
		p.recordFinished(pq)
	}
}

// completeLocked marks the query resolved, closes its subscription and forgets it.
func (p *Pipeline) completeLocked(qid string, pq *pendingQuery) {
	p.dropLocked(qid, pq)
	pq.query.MarkResolved()
	pq.sub.finish(false)
}

func (p *Pipeline) dropLocked(qid string, pq *pendingQuery) {
	for r, t := range pq.waiting {
		t.Stop()
		delete(pq.waiting, r)
	}
	if p.pending[qid] == pq {
		delete(p.pending, qid)
	}
	p.retain(pq.query)
}

func (p *Pipeline) retain(q *models.Query) {
	if p.finished != nil {
		p.finished.Add(q.ID, q)
	}
}

func (p *Pipeline) recordFinished(pqs ...*pendingQuery) {
	for _, pq := range pqs {
		outcome := metrics.OutcomeExhausted
		if pq.query.Playable() {
			outcome = metrics.OutcomePlayable
		}
		elapsed := time.Since(pq.started)
		p.logger.Debug("query finished", "qid", pq.query.ID, "outcome", outcome, "elapsed", elapsed)
		p.metrics.QueryFinished(outcome, elapsed)
	}
}

func (p *Pipeline) indexLocked(r resolvers.Resolver) int {
	return slices.IndexFunc(p.ranked, func(e *entry) bool { return e.resolver == r })
}

func compareEntries(a, b *entry) int {
	switch {
	case a.weight != b.weight:
		if a.weight > b.weight {
			return -1
		}
		return 1
	case a.preference != b.preference:
		if a.preference > b.preference {
			return -1
		}
		return 1
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	}
	return 0
}

var _ resolvers.Registrar = (*Pipeline)(nil)
