package resolvers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackpipe/internal/entities"
	"github.com/desertthunder/trackpipe/internal/metrics"
	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/protocol"
	"github.com/desertthunder/trackpipe/internal/shared"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	defaultHTTPRateLimit = 5.0
	defaultHTTPCacheSize = 512
	defaultHTTPCacheTTL  = 10 * time.Minute
)

// HTTPOption configures an [HTTPResolver].
type HTTPOption func(*HTTPResolver)

// HTTPClient overrides the client, e.g. with an httptest server client.
func HTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPResolver) {
		if c != nil {
			h.client = c
		}
	}
}

// HTTPEntityCache shares an entity cache.
func HTTPEntityCache(c *entities.Cache) HTTPOption {
	return func(h *HTTPResolver) {
		if c != nil {
			h.entities = c
		}
	}
}

// HTTPLogger sets the logger.
func HTTPLogger(l *log.Logger) HTTPOption {
	return func(h *HTTPResolver) {
		if l != nil {
			h.logger = l
		}
	}
}

// HTTPMetrics records cache lookups.
func HTTPMetrics(m *metrics.Metrics) HTTPOption {
	return func(h *HTTPResolver) { h.metrics = m }
}

// HTTPCache sets the response cache size and TTL. A size of 0 disables caching.
func HTTPCache(size int, ttl time.Duration) HTTPOption {
	return func(h *HTTPResolver) {
		h.cacheSize = size
		h.cacheTTL = ttl
	}
}

// HTTPHeaders sends h with every search request.
func HTTPHeaders(h *shared.RequestHeaders) HTTPOption {
	return func(r *HTTPResolver) { r.headers = h }
}

// searchResponse is the body of GET {base}/search; entries use the wire result shape.
type searchResponse struct {
	Results []protocol.ResultEntry `json:"results"`
}

// HTTPResolver resolves against a JSON search endpoint.
//
// Requests are paced by a token-bucket limiter and identical queries are answered from an
// expiring LRU cache.
type HTTPResolver struct {
	name       string
	baseURL    string
	weight     uint
	preference uint
	timeout    time.Duration

	client    *http.Client
	headers   *shared.RequestHeaders
	limiter   *rate.Limiter
	cache     *expirable.LRU[string, []protocol.ResultEntry]
	cacheSize int
	cacheTTL  time.Duration
	entities  *entities.Cache
	registrar Registrar
	logger    *log.Logger
	metrics   *metrics.Metrics

	ctx     context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool
	wg      sync.WaitGroup
}

// NewHTTPResolver creates a resolver for cfg reporting to registrar. Call Start to register it.
func NewHTTPResolver(cfg shared.HTTPResolverConfig, registrar Registrar, opts ...HTTPOption) *HTTPResolver {
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultHTTPRateLimit
	}
	h := &HTTPResolver{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		weight:     cfg.Weight,
		preference: cfg.Preference,
		timeout:    cfg.Timeout(),
		client:     http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(limit), max(1, int(limit))),
		cacheSize:  defaultHTTPCacheSize,
		cacheTTL:   defaultHTTPCacheTTL,
		registrar:  registrar,
	}
	if h.name == "" {
		h.name = h.baseURL
	}
	if h.registrar == nil {
		h.registrar = nopRegistrar{}
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = shared.NewLogger(nil)
	}
	h.logger = shared.WithLogger(h.logger, "resolver", h.name)
	if h.entities == nil {
		h.entities = entities.New(nil, h.logger)
	}
	if h.cacheSize > 0 {
		h.cache = expirable.NewLRU[string, []protocol.ResultEntry](h.cacheSize, nil, h.cacheTTL)
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.stopped.Store(true)
	return h
}

func (h *HTTPResolver) Name() string           { return h.name }
func (h *HTTPResolver) Weight() uint           { return h.weight }
func (h *HTTPResolver) Preference() uint       { return h.preference }
func (h *HTTPResolver) Timeout() time.Duration { return h.timeout }
func (h *HTTPResolver) Ready() bool            { return !h.stopped.Load() }

func (h *HTTPResolver) Status() Status {
	st := StateReady
	if h.stopped.Load() {
		st = StateStopped
	}
	return Status{
		Name:       h.name,
		Kind:       "http",
		Path:       h.baseURL,
		State:      st,
		Weight:     h.weight,
		Preference: h.preference,
		Timeout:    h.timeout,
	}
}

// Start registers the resolver.
func (h *HTTPResolver) Start() {
	if h.stopped.CompareAndSwap(true, false) {
		h.registrar.AddResolver(h)
	}
}

// Stop unregisters the resolver. Calling it again is a no-op.
func (h *HTTPResolver) Stop() {
	if h.stopped.CompareAndSwap(false, true) {
		h.registrar.RemoveResolver(h)
	}
}

// Close stops the resolver, cancels in-flight requests and waits for them.
func (h *HTTPResolver) Close() error {
	h.Stop()
	h.cancel()
	h.wg.Wait()
	return nil
}

func (h *HTTPResolver) Resolve(q *models.Query) {
	if h.stopped.Load() {
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
		defer cancel()

		entries, err := h.search(ctx, q)
		if err != nil {
			h.logger.Warn("search failed", "query", q.String(), "error", err)
			h.registrar.ReportResults(h, q.ID, nil)
			return
		}

		results := make([]*models.Result, 0, len(entries))
		for _, e := range entries {
			results = append(results, newResult(h.entities, q.ID, h.name, h.weight, e))
		}
		h.registrar.ReportResults(h, q.ID, results)
	}()
}

func (h *HTTPResolver) search(ctx context.Context, q *models.Query) ([]protocol.ResultEntry, error) {
	params := url.Values{}
	if q.IsFullText() {
		params.Set("q", q.FullText)
	} else {
		params.Set("artist", q.Artist)
		params.Set("track", q.Track)
		if q.Album != "" {
			params.Set("album", q.Album)
		}
	}
	key := strings.ToLower(params.Encode())

	if h.cache != nil {
		if entries, ok := h.cache.Get(key); ok {
			h.metrics.CacheLookup(h.name, true)
			return entries, nil
		}
		h.metrics.CacheLookup(h.name, false)
	}

	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", shared.ErrTimeout, err)
	}

	var resp searchResponse
	if err := h.doRequest(ctx, http.MethodGet, "/search?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	if h.cache != nil {
		h.cache.Add(key, resp.Results)
	}
	return resp.Results, nil
}

func (h *HTTPResolver) doRequest(ctx context.Context, method, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	h.headers.Apply(req.Header)
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Detail != "" {
			return fmt.Errorf("%w (status %d): %s", shared.ErrAPIRequest, resp.StatusCode, errResp.Detail)
		}
		return fmt.Errorf("%w: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
