package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/desertthunder/trackpipe/internal/formatter"
	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/resolvers"
	"github.com/desertthunder/trackpipe/internal/shared"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 64 << 10

// ResolveRequest is the body of POST /resolve.
type ResolveRequest struct {
	Artist   string `json:"artist"`
	Track    string `json:"track"`
	Album    string `json:"album"`
	FullText string `json:"fulltext"`
	// WaitMS is how long to wait for the query to resolve. Nil means [DefaultWait], zero
	// returns immediately.
	WaitMS *int `json:"wait_ms"`
}

// Query validates the request and builds the query it describes.
func (req ResolveRequest) Query() (*models.Query, error) {
	if text := strings.TrimSpace(req.FullText); text != "" {
		return models.NewFullTextQuery(text), nil
	}
	artist := strings.TrimSpace(req.Artist)
	track := strings.TrimSpace(req.Track)
	if artist == "" || track == "" {
		return nil, fmt.Errorf("%w: artist and track, or fulltext, are required", shared.ErrMissingArgument)
	}
	return models.NewQuery(artist, track, strings.TrimSpace(req.Album)), nil
}

// Wait returns the clamped wait duration.
func (req ResolveRequest) Wait() time.Duration {
	if req.WaitMS == nil {
		return DefaultWait
	}
	d := time.Duration(*req.WaitMS) * time.Millisecond
	switch {
	case d < 0:
		return 0
	case d > MaxWait:
		return MaxWait
	}
	return d
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Resolvers int    `json:"resolvers"`
	Ready     int    `json:"ready"`
	Pending   int    `json:"pending"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) routes(r Router) {
	r.Handle(http.MethodGet, "/health", http.HandlerFunc(s.handleHealth))
	r.Handle(http.MethodGet, "/resolvers", http.HandlerFunc(s.handleResolvers))
	r.Handle(http.MethodPost, "/resolve", http.HandlerFunc(s.handleResolve))
	r.Handle(http.MethodPost, "/resolve/stream", http.HandlerFunc(s.handleStream))
	r.Handle(http.MethodGet, "/queries/{id}", http.HandlerFunc(s.handleQuery))
	r.Handle(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rs := s.pipeline.Resolvers()
	ready := 0
	for _, res := range rs {
		if res.Ready() {
			ready++
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Resolvers: len(rs),
		Ready:     ready,
		Pending:   s.pipeline.Pending(),
	})
}

func (s *Server) handleResolvers(w http.ResponseWriter, r *http.Request) {
	rs := s.pipeline.Resolvers()
	statuses := make([]resolvers.Status, len(rs))
	for i, res := range rs {
		statuses[i] = resolvers.StatusOf(res)
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	req, q, ok := s.decodeResolve(w, r)
	if !ok {
		return
	}

	sub := s.pipeline.Resolve(q)
	if wait := req.Wait(); wait > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		if err := sub.Wait(ctx); err != nil && r.Context().Err() != nil {
			return
		}
	}

	status := http.StatusOK
	if !sub.Query().Resolved() {
		status = http.StatusAccepted
	}
	writeJSON(w, status, formatter.NewQueryView(sub.Query()))
}

// handleStream writes one "results" event per reported batch, then a "done" event carrying the
// final query. A client that disconnects cancels the query. When the wait runs out first the
// query keeps resolving and can be polled through GET /queries/{id}.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	req, q, ok := s.decodeResolve(w, r)
	if !ok {
		return
	}

	sub := s.pipeline.Resolve(q)
	defer sub.Unsubscribe()
	wait := req.Wait()
	if req.WaitMS == nil {
		wait = MaxWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	updates := sub.Updates()
	for {
		select {
		case u, open := <-updates:
			if !open {
				writeEvent(w, "done", formatter.NewQueryView(sub.Query()))
				flusher.Flush()
				return
			}
			views := make([]formatter.ResultView, len(u.Results))
			for i, res := range u.Results {
				views[i] = formatter.NewResultView(res)
			}
			writeEvent(w, "results", map[string]any{"resolver": u.Resolver, "results": views})
			flusher.Flush()
		case <-timer.C:
			writeEvent(w, "done", formatter.NewQueryView(sub.Query()))
			flusher.Flush()
			return
		case <-r.Context().Done():
			s.pipeline.Cancel(sub.Query().ID)
			return
		}
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q, ok := s.pipeline.Lookup(id)
	if !ok && s.cache != nil {
		q, ok = s.cache.Query(id)
	}
	if !ok {
		writeError(w, http.StatusNotFound, "query not found")
		return
	}
	writeJSON(w, http.StatusOK, formatter.NewQueryView(q))
}

func (s *Server) decodeResolve(w http.ResponseWriter, r *http.Request) (ResolveRequest, *models.Query, bool) {
	var req ResolveRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return req, nil, false
	}
	q, err := req.Query()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, nil, false
	}
	return req, q, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func writeEvent(w io.Writer, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(errorResponse{Detail: err.Error()})
		event = "error"
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
