// package testing contains shared testing utilities
package testing

import (
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/resolvers"
	"github.com/desertthunder/trackpipe/internal/shared"
)

// FakeResolver is a test double for [resolvers.Resolver].
//
// It answers each query with Respond, after Delay when set. A nil Respond never answers, which
// leaves the query to time out.
type FakeResolver struct {
	Registrar  resolvers.Registrar
	Respond    func(q *models.Query) []*models.Result
	Delay      time.Duration
	name       string
	weight     uint
	preference uint
	timeout    time.Duration

	mu      sync.Mutex
	ready   bool
	queries []*models.Query
	wg      sync.WaitGroup
}

// NewFakeResolver creates a stopped fake with a one second timeout.
func NewFakeResolver(name string, weight uint, reg resolvers.Registrar) *FakeResolver {
	return &FakeResolver{name: name, weight: weight, timeout: time.Second, Registrar: reg}
}

// WithPreference sets the preference and returns f.
func (f *FakeResolver) WithPreference(p uint) *FakeResolver {
	f.preference = p
	return f
}

// WithTimeout sets the timeout and returns f.
func (f *FakeResolver) WithTimeout(d time.Duration) *FakeResolver {
	f.timeout = d
	return f
}

func (f *FakeResolver) Name() string           { return f.name }
func (f *FakeResolver) Weight() uint           { return f.weight }
func (f *FakeResolver) Preference() uint       { return f.preference }
func (f *FakeResolver) Timeout() time.Duration { return f.timeout }

func (f *FakeResolver) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

// Start marks the fake ready and registers it.
func (f *FakeResolver) Start() {
	f.mu.Lock()
	f.ready = true
	f.mu.Unlock()
	if f.Registrar != nil {
		f.Registrar.AddResolver(f)
	}
}

func (f *FakeResolver) Stop() {
	f.mu.Lock()
	f.ready = false
	f.mu.Unlock()
	if f.Registrar != nil {
		f.Registrar.RemoveResolver(f)
	}
}

func (f *FakeResolver) Resolve(q *models.Query) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	respond := f.Respond
	f.mu.Unlock()
	if respond == nil || f.Registrar == nil {
		return
	}

	if f.Delay <= 0 {
		f.Registrar.ReportResults(f, q.ID, respond(q))
		return
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		time.Sleep(f.Delay)
		f.Registrar.ReportResults(f, q.ID, respond(q))
	}()
}

// Queries returns the queries dispatched to the fake, in order.
func (f *FakeResolver) Queries() []*models.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.Query(nil), f.queries...)
}

// Wait blocks until every delayed answer has been reported.
func (f *FakeResolver) Wait() {
	f.wg.Wait()
}

// NewResult builds an unscored result attributed to source.
func NewResult(source, url, artist, track string) *models.Result {
	return &models.Result{
		ID:       shared.GenerateID(),
		URL:      url,
		Artist:   &models.Artist{Name: artist},
		Track:    track,
		Mimetype: "audio/mpeg",
		Source:   source,
	}
}

// ScoredResult builds a result with a fixed score.
func ScoredResult(source, url, artist, track string, score float64) *models.Result {
	r := NewResult(source, url, artist, track)
	r.SetScore(score)
	return r
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}
