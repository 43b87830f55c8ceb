package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackpipe/internal/entities"
	"github.com/desertthunder/trackpipe/internal/metrics"
	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/pipeline"
	"github.com/desertthunder/trackpipe/internal/resolvers"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultWait bounds POST /resolve when the request has no wait_ms.
	DefaultWait = 5 * time.Second
	// MaxWait caps any requested wait.
	MaxWait = 60 * time.Second

	shutdownTimeout = 5 * time.Second
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows the path patterns it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// QueryPipeline is the part of [pipeline.Pipeline] the API drives.
type QueryPipeline interface {
	Resolve(q *models.Query) *pipeline.Subscription
	Cancel(qid string) bool
	Lookup(qid string) (*models.Query, bool)
	Resolvers() []resolvers.Resolver
	Pending() int
}

// Options are the dependencies of a [Server].
type Options struct {
	Pipeline QueryPipeline
	// Cache finds live queries the pipeline no longer retains, for GET /queries/{id}.
	Cache *entities.Cache
	// Gatherer backs GET /metrics. Defaults to [prometheus.DefaultGatherer].
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
	Logger   *log.Logger
}

// Server is the trackpipe HTTP API.
type Server struct {
	pipeline QueryPipeline
	cache    *entities.Cache
	gatherer prometheus.Gatherer
	metrics  *metrics.Metrics
	logger   *log.Logger
	router   *BasicRouter
}

// New builds a [Server] and registers its routes.
func New(opts Options) *Server {
	s := &Server{
		pipeline: opts.Pipeline,
		cache:    opts.Cache,
		gatherer: opts.Gatherer,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.logger == nil {
		s.logger = log.Default()
	}

	s.router = NewBasicRouter()
	s.router.Use(Recovery(s.logger), Logging(s.logger), Instrument(s.metrics))
	s.routes(s.router)
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Routes lists the registered routes.
func (s *Server) Routes() []string {
	return s.router.Routes()
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is [Server.ListenAndServe] on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("serving API", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("error shutting down server", "error", err)
		return err
	}
	return nil
}
