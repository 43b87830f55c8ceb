package resolvers

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackpipe/internal/entities"
	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/protocol"
	"github.com/desertthunder/trackpipe/internal/shared"
)

const (
	LocalResolverName    = "Local Collection"
	DefaultLocalWeight   = 100
	DefaultLocalTimeout  = time.Second
	localFullTextResults = 50
)

// CollectionSearcher is the part of repositories.CollectionRepository the local resolver needs.
type CollectionSearcher interface {
	Find(artist, track string) ([]*models.CollectionTrack, error)
	Search(text string, limit int) ([]*models.CollectionTrack, error)
}

// LocalOption configures a [LocalResolver].
type LocalOption func(*LocalResolver)

// LocalWeight overrides the default weight of 100.
func LocalWeight(w uint) LocalOption {
	return func(l *LocalResolver) { l.weight = w }
}

// LocalEntityCache shares an entity cache.
func LocalEntityCache(c *entities.Cache) LocalOption {
	return func(l *LocalResolver) {
		if c != nil {
			l.cache = c
		}
	}
}

// LocalLogger sets the logger.
func LocalLogger(logger *log.Logger) LocalOption {
	return func(l *LocalResolver) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// LocalResolver answers queries from the local collection. Each lookup runs on its own goroutine.
type LocalResolver struct {
	repo      CollectionSearcher
	registrar Registrar
	cache     *entities.Cache
	logger    *log.Logger
	weight    uint

	stopped atomic.Bool
	wg      sync.WaitGroup
}

// NewLocalResolver creates a LocalResolver reporting to registrar. Call Start to register it.
func NewLocalResolver(repo CollectionSearcher, registrar Registrar, opts ...LocalOption) *LocalResolver {
	l := &LocalResolver{repo: repo, registrar: registrar, weight: DefaultLocalWeight}
	if l.registrar == nil {
		l.registrar = nopRegistrar{}
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = shared.NewLogger(nil)
	}
	l.logger = shared.WithLogger(l.logger, "resolver", LocalResolverName)
	if l.cache == nil {
		l.cache = entities.New(nil, l.logger)
	}
	l.stopped.Store(true)
	return l
}

func (l *LocalResolver) Name() string           { return LocalResolverName }
func (l *LocalResolver) Weight() uint           { return l.weight }
func (l *LocalResolver) Preference() uint       { return 0 }
func (l *LocalResolver) Timeout() time.Duration { return DefaultLocalTimeout }
func (l *LocalResolver) Ready() bool            { return !l.stopped.Load() }

func (l *LocalResolver) Status() Status {
	st := StateReady
	if l.stopped.Load() {
		st = StateStopped
	}
	return Status{
		Name:    LocalResolverName,
		Kind:    "collection",
		State:   st,
		Weight:  l.weight,
		Timeout: DefaultLocalTimeout,
	}
}

// Start registers the resolver.
func (l *LocalResolver) Start() {
	if l.stopped.CompareAndSwap(true, false) {
		l.registrar.AddResolver(l)
	}
}

// Stop unregisters the resolver. Calling it again is a no-op.
func (l *LocalResolver) Stop() {
	if l.stopped.CompareAndSwap(false, true) {
		l.registrar.RemoveResolver(l)
	}
}

// Close stops the resolver and waits for in-flight lookups.
func (l *LocalResolver) Close() error {
	l.Stop()
	l.wg.Wait()
	return nil
}

func (l *LocalResolver) Resolve(q *models.Query) {
	if l.stopped.Load() {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.registrar.ReportResults(l, q.ID, l.lookup(q))
	}()
}

func (l *LocalResolver) lookup(q *models.Query) []*models.Result {
	var (
		tracks []*models.CollectionTrack
		err    error
	)
	if q.IsFullText() {
		tracks, err = l.repo.Search(q.FullText, localFullTextResults)
	} else {
		tracks, err = l.repo.Find(q.Artist, q.Track)
	}
	if err != nil {
		l.logger.Error("collection lookup failed", "query", q.String(), "error", err)
		return nil
	}

	results := make([]*models.Result, 0, len(tracks))
	for _, t := range tracks {
		r := newResult(l.cache, q.ID, LocalResolverName, l.weight, protocol.ResultEntry{
			URL:        t.URL,
			Artist:     t.Artist,
			Album:      t.Album,
			AlbumPos:   protocol.Uint(t.AlbumPos),
			Track:      t.Track,
			Duration:   protocol.Uint(t.Duration),
			Bitrate:    protocol.Uint(t.Bitrate),
			Size:       protocol.Uint(t.Size),
			Year:       protocol.Uint(t.Year),
			DiscNumber: protocol.Uint(t.DiscNumber),
			Mimetype:   t.Mimetype,
		})
		r.SetScore(models.Score(q, t.Artist, t.Track))
		results = append(results, r)
	}
	return results
}
