package resolvers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackpipe/internal/entities"
	"github.com/desertthunder/trackpipe/internal/metrics"
	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/protocol"
	"github.com/desertthunder/trackpipe/internal/shared"
)

const (
	DefaultMaxRestarts = 10
	DefaultKillGrace   = 2 * time.Second
	eventBuffer        = 32
)

// Option configures a [ScriptResolver].
type Option func(*ScriptResolver)

// WithLauncher overrides how the resolver program is started.
func WithLauncher(l Launcher) Option {
	return func(s *ScriptResolver) {
		if l != nil {
			s.launcher = l
		}
	}
}

// WithRegistrar sets the pipeline the resolver registers with and reports to.
func WithRegistrar(r Registrar) Option {
	return func(s *ScriptResolver) {
		if r != nil {
			s.registrar = r
		}
	}
}

// WithEntityCache shares an entity cache for artist and album identity.
func WithEntityCache(c *entities.Cache) Option {
	return func(s *ScriptResolver) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithProxy sets the source of the proxy settings sent in the config message.
func WithProxy(p ProxyProvider) Option {
	return func(s *ScriptResolver) {
		if p != nil {
			s.proxy = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *ScriptResolver) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records restarts, protocol errors and state changes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ScriptResolver) { s.metrics = m }
}

// WithMaxRestarts caps automatic restarts after unexpected exits.
func WithMaxRestarts(n int) Option {
	return func(s *ScriptResolver) {
		if n >= 0 {
			s.maxRestarts = n
		}
	}
}

// WithDefaultTimeout is used when the settings message carries no timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *ScriptResolver) {
		if d > 0 {
			s.defaultTimeout = d
		}
	}
}

// WithPreference sets the rank tie-breaker used between resolvers of equal weight.
func WithPreference(p uint) Option {
	return func(s *ScriptResolver) { s.preference = p }
}

// WithPlaylistHandler receives queries announced through playlist messages.
func WithPlaylistHandler(h PlaylistHandler) Option {
	return func(s *ScriptResolver) { s.onPlaylist = h }
}

// WithKillGrace sets how long a stopped process may take to exit before it is killed.
func WithKillGrace(d time.Duration) Option {
	return func(s *ScriptResolver) {
		if d > 0 {
			s.killGrace = d
		}
	}
}

// ScriptResolver supervises an external resolver process.
//
// Lifecycle: Stopped → Starting → Ready, and Error on unexpected exit or launch failure. An
// unexpected exit restarts the process up to the restart cap. All callbacks into the [Registrar]
// happen without the resolver's lock held.
type ScriptResolver struct {
	path           string
	launcher       Launcher
	registrar      Registrar
	cache          *entities.Cache
	proxy          ProxyProvider
	logger         *log.Logger
	metrics        *metrics.Metrics
	onPlaylist     PlaylistHandler
	maxRestarts    int
	defaultTimeout time.Duration
	preference     uint
	killGrace      time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	state    State
	name     string
	weight   uint
	timeout  time.Duration
	err      error
	restarts int
	stopped  bool
	closed   bool
	gen      int
	proc     *processHandle
	widget   *protocol.ConfWidget
	subs     []chan Event
}

// NewScriptResolver creates a resolver for the program at path. Call Start to launch it.
func NewScriptResolver(path string, opts ...Option) *ScriptResolver {
	s := &ScriptResolver{
		path:           path,
		launcher:       ExecLauncher{},
		registrar:      nopRegistrar{},
		proxy:          StaticProxy{},
		maxRestarts:    DefaultMaxRestarts,
		defaultTimeout: protocol.DefaultResolverTimeout,
		killGrace:      DefaultKillGrace,
		state:          StateStopped,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = shared.NewLogger(nil)
	}
	s.logger = shared.WithLogger(s.logger, "resolver", filepath.Base(path))
	if s.cache == nil {
		s.cache = entities.New(nil, s.logger)
	}
	s.timeout = s.defaultTimeout
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Path returns the program path.
func (s *ScriptResolver) Path() string { return s.path }

func (s *ScriptResolver) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.labelLocked()
}

func (s *ScriptResolver) Weight() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weight
}

func (s *ScriptResolver) Preference() uint {
	return s.preference
}

func (s *ScriptResolver) Timeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

// Ready reports whether the process has announced its settings and the resolver is not stopped.
func (s *ScriptResolver) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateReady && !s.stopped
}

// State returns the lifecycle state.
func (s *ScriptResolver) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Error returns the last launch or exit error, nil while healthy.
func (s *ScriptResolver) Error() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Restarts returns the number of automatic restarts since creation or the last Reload.
func (s *ScriptResolver) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// Running reports whether the resolver has been started and not stopped.
func (s *ScriptResolver) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped && !s.closed && s.state != StateStopped
}

func (s *ScriptResolver) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Name:       s.labelLocked(),
		Kind:       "script",
		Path:       s.path,
		State:      s.state,
		Weight:     s.weight,
		Preference: s.preference,
		Timeout:    s.timeout,
		Restarts:   s.restarts,
	}
	if s.stopped && st.State == StateReady {
		st.State = StateStopped
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	return st
}

// ConfWidget returns the configuration widget announced by the process, if any.
func (s *ScriptResolver) ConfWidget() (protocol.ConfWidget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.widget == nil {
		return protocol.ConfWidget{}, false
	}
	return *s.widget, true
}

// Subscribe returns a channel of lifecycle events. Sends never block; a slow subscriber misses events.
// The channel is closed by Close.
func (s *ScriptResolver) Subscribe() <-chan Event {
	ch := make(chan Event, eventBuffer)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

// Start launches the process if needed. A resolver that is already Ready re-registers at once.
func (s *ScriptResolver) Start() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.stopped = false

	if s.proc != nil && s.proc.stopping {
		old := s.proc
		s.proc = nil
		old.closeInput()
		_ = old.p.Kill()
	}

	if s.state == StateReady && s.proc != nil {
		s.mu.Unlock()
		s.registrar.AddResolver(s)
		s.emit(EventChanged)
		return
	}
	if s.proc == nil {
		s.spawnLocked()
	}
	s.mu.Unlock()
	s.emit(EventChanged)
}

// Stop unregisters the resolver and asks the process to exit. Calling it again is a no-op.
func (s *ScriptResolver) Stop() {
	s.mu.Lock()
	if s.stopped || s.closed {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	h := s.proc
	if h != nil {
		h.stopping = true
		// Counted under mu so a concurrent Close waits for the terminator.
		s.wg.Add(1)
	} else {
		s.setStateLocked(StateStopped)
	}
	s.mu.Unlock()

	s.logger.Info("stopping resolver")
	s.registrar.RemoveResolver(s)
	if h != nil {
		s.terminate(h)
	}
	s.emit(EventChanged)
}

// Close stops the resolver, kills the process and waits until it is reaped and every reader has
// drained. No callback touches the resolver after Close returns.
func (s *ScriptResolver) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return nil
	}
	wasStopped := s.stopped
	s.closed = true
	s.stopped = true
	h := s.proc
	if h != nil {
		h.stopping = true
	}
	s.mu.Unlock()

	if !wasStopped {
		s.registrar.RemoveResolver(s)
	}
	if h != nil {
		h.closeInput()
		_ = h.p.Kill()
	}
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	if s.proc == nil {
		s.setStateLocked(StateStopped)
	}
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	s.mu.Unlock()
	return nil
}

// Reload resets the restart counter and error, kills any running process and starts a fresh one.
func (s *ScriptResolver) Reload() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	old := s.proc
	s.proc = nil
	s.restarts = 0
	s.err = nil
	s.setStateLocked(StateStopped)
	s.mu.Unlock()

	s.logger.Info("reloading resolver")
	s.registrar.RemoveResolver(s)
	if old != nil {
		old.closeInput()
		_ = old.p.Kill()
	}

	s.mu.Lock()
	if !s.closed && s.proc == nil {
		s.spawnLocked()
	}
	s.mu.Unlock()
	s.emit(EventChanged)
}

// Resolve sends the query to the process. It never blocks and is a no-op unless Ready.
func (s *ScriptResolver) Resolve(q *models.Query) {
	s.mu.Lock()
	h := s.proc
	ready := s.state == StateReady && !s.stopped
	s.mu.Unlock()
	if !ready || h == nil {
		return
	}

	req := protocol.ResolveRequest{QID: q.ID, Artist: q.Artist, Track: q.Track}
	if q.IsFullText() {
		req.FullText = q.FullText
		req.Track = q.FullText
	}
	h.out.push(req)
}

// SaveConfig sends configuration values back to the process.
func (s *ScriptResolver) SaveConfig(widgets json.RawMessage) error {
	s.mu.Lock()
	h := s.proc
	s.mu.Unlock()
	if h == nil {
		return fmt.Errorf("%w: no running process", shared.ErrNotReady)
	}
	if len(widgets) == 0 {
		widgets = json.RawMessage(`{}`)
	}
	if !h.out.push(protocol.SetPref{Widgets: widgets}) {
		return fmt.Errorf("%w: process input closed", shared.ErrNotReady)
	}
	return nil
}

// spawnLocked launches a new process generation and queues the config message.
func (s *ScriptResolver) spawnLocked() {
	s.gen++
	p, err := s.launcher.Launch(s.ctx, s.path)
	if err != nil {
		if !errors.Is(err, shared.ErrFileNotFound) && !errors.Is(err, shared.ErrFailedToLoad) {
			err = fmt.Errorf("%w: %v", shared.ErrFailedToLoad, err)
		}
		s.err = err
		s.setStateLocked(StateError)
		s.logger.Error("failed to launch resolver", "path", s.path, "error", err)
		return
	}

	h := newProcessHandle(s.gen, p)
	s.proc = h
	s.err = nil
	s.setStateLocked(StateStarting)
	h.out.push(s.proxy.ProxySettings())
	s.logger.Debug("launched resolver", "generation", h.gen, "pid", p.Pid())

	s.wg.Add(2)
	go s.writeLoop(h)
	go s.supervise(h)
}

func (s *ScriptResolver) supervise(h *processHandle) {
	defer s.wg.Done()

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		err := protocol.ReadMessages(context.Background(), h.p.Stdout(),
			func(raw json.RawMessage) { s.handleMessage(h, raw) },
			func(err error) { s.protocolError(h, err) },
		)
		if err != nil {
			s.protocolError(h, err)
		}
	}()
	go func() {
		defer readers.Done()
		s.readStderr(h)
	}()
	readers.Wait()

	err := h.p.Wait()
	close(h.exited)
	s.handleExit(h, err)
}

func (s *ScriptResolver) writeLoop(h *processHandle) {
	defer s.wg.Done()
	defer h.p.Stdin().Close()

	w := protocol.NewWriter(h.p.Stdin())
	for {
		select {
		case <-h.out.ready:
		case <-h.exited:
			return
		}
		msgs, closed := h.out.take()
		for _, m := range msgs {
			if err := w.WriteMessage(m); err != nil {
				s.logger.Debug("failed to write to resolver", "generation", h.gen, "error", err)
				return
			}
		}
		if closed {
			return
		}
	}
}

func (s *ScriptResolver) readStderr(h *processHandle) {
	scanner := bufio.NewScanner(h.p.Stderr())
	scanner.Buffer(make([]byte, 0, 4096), protocol.MaxFrameSize)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			s.logger.Debug("resolver stderr", "generation", h.gen, "line", line)
		}
	}
}

func (s *ScriptResolver) handleExit(h *processHandle, waitErr error) {
	s.mu.Lock()
	if s.proc != h {
		s.mu.Unlock()
		return
	}
	s.proc = nil
	if waitErr != nil {
		s.err = fmt.Errorf("%w: process exited: %v", shared.ErrFailedToLoad, waitErr)
	} else {
		s.err = fmt.Errorf("%w: process exited", shared.ErrFailedToLoad)
	}
	stopped := s.stopped || s.closed
	if stopped {
		s.setStateLocked(StateStopped)
	} else {
		s.setStateLocked(StateError)
	}
	s.mu.Unlock()

	s.logger.Warn("resolver exited", "generation", h.gen, "error", waitErr, "stopped", stopped)
	s.registrar.RemoveResolver(s)
	s.emit(EventChanged)
	if stopped {
		s.emit(EventTerminated)
		return
	}

	s.mu.Lock()
	if s.stopped || s.closed || s.proc != nil {
		s.mu.Unlock()
		return
	}
	if s.restarts >= s.maxRestarts {
		s.err = fmt.Errorf("%w: %d restarts", shared.ErrRestartExhausted, s.restarts)
		s.mu.Unlock()
		s.logger.Error("reached max restarts, not restarting", "restarts", s.maxRestarts)
		s.emit(EventChanged)
		return
	}
	s.restarts++
	n := s.restarts
	label := s.labelLocked()
	s.spawnLocked()
	s.mu.Unlock()

	s.logger.Info("restarted resolver", "restart", n)
	s.metrics.ResolverRestarted(label)
	s.emit(EventChanged)
}

// terminate closes h's input and kills it after the grace period. The caller has already
// added one to s.wg.
func (s *ScriptResolver) terminate(h *processHandle) {
	h.closeInput()
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(s.killGrace)
		defer timer.Stop()
		select {
		case <-h.exited:
		case <-timer.C:
			s.logger.Warn("resolver did not exit, killing", "generation", h.gen)
			_ = h.p.Kill()
		case <-s.ctx.Done():
			_ = h.p.Kill()
		}
	}()
}

func (s *ScriptResolver) handleMessage(h *processHandle, raw json.RawMessage) {
	msg, err := protocol.Parse(raw)
	if err != nil {
		s.protocolError(h, err)
		return
	}

	switch m := msg.(type) {
	case protocol.Settings:
		s.handleSettings(h, m)
	case protocol.ConfWidget:
		s.handleConfWidget(h, m)
	case protocol.Results:
		s.handleResults(h, m)
	case protocol.Playlist:
		s.handlePlaylist(h, m)
	default:
		s.protocolError(h, fmt.Errorf("%w: unexpected %s message from resolver", shared.ErrProtocol, msg.MsgType()))
	}
}

func (s *ScriptResolver) handleSettings(h *processHandle, m protocol.Settings) {
	s.mu.Lock()
	if s.proc != h {
		s.mu.Unlock()
		return
	}
	if name := strings.TrimSpace(m.Name); name != "" {
		s.name = name
	}
	s.weight = uint(m.Weight)
	if m.Timeout > 0 {
		s.timeout = m.TimeoutDuration()
	} else {
		s.timeout = s.defaultTimeout
	}
	s.err = nil
	s.setStateLocked(StateReady)
	register := !s.stopped
	name, weight, timeout := s.labelLocked(), s.weight, s.timeout
	s.mu.Unlock()

	s.logger.Info("resolver ready", "name", name, "weight", weight, "timeout", timeout)
	if register {
		s.registrar.AddResolver(s)
	}
	s.emit(EventChanged)
}

func (s *ScriptResolver) handleConfWidget(h *processHandle, m protocol.ConfWidget) {
	s.mu.Lock()
	if s.proc != h {
		s.mu.Unlock()
		return
	}
	s.widget = &m
	s.mu.Unlock()

	s.logger.Debug("resolver has a configuration widget", "compressed", bool(m.Compressed))
	s.emit(EventChanged)
}

func (s *ScriptResolver) handleResults(h *processHandle, m protocol.Results) {
	s.mu.Lock()
	if s.proc != h || s.stopped {
		s.mu.Unlock()
		s.logger.Debug("discarding results from stale or stopped process", "qid", m.QID, "generation", h.gen)
		return
	}
	name, weight := s.labelLocked(), s.weight
	s.mu.Unlock()

	results := make([]*models.Result, 0, len(m.Results))
	for _, e := range m.Results {
		results = append(results, newResult(s.cache, m.QID, name, weight, e))
	}
	s.registrar.ReportResults(s, m.QID, results)
}

func (s *ScriptResolver) handlePlaylist(h *processHandle, m protocol.Playlist) {
	s.mu.Lock()
	current := s.proc == h
	s.mu.Unlock()
	if !current {
		return
	}

	queries := make([]*models.Query, 0, len(m.Playlist))
	for _, e := range m.Playlist {
		queries = append(queries, models.NewQuery(e.Artist, e.Track, ""))
	}
	s.logger.Info("resolver sent playlist", "identifier", m.Identifier, "tracks", len(queries))
	if s.onPlaylist != nil {
		s.onPlaylist(s, m.QID, m.Identifier, queries)
	}
}

func (s *ScriptResolver) protocolError(h *processHandle, err error) {
	s.mu.Lock()
	label := s.labelLocked()
	s.mu.Unlock()
	s.logger.Warn("dropping malformed message", "generation", h.gen, "error", err)
	s.metrics.ProtocolError(label)
}

func (s *ScriptResolver) emit(kind EventKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := Event{Kind: kind, Resolver: s}
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *ScriptResolver) setStateLocked(st State) {
	s.state = st
	s.metrics.SetResolverState(s.labelLocked(), st.String())
}

func (s *ScriptResolver) labelLocked() string {
	if s.name != "" {
		return s.name
	}
	return strings.TrimSuffix(filepath.Base(s.path), filepath.Ext(s.path))
}

// processHandle is one process generation.
type processHandle struct {
	gen      int
	p        Process
	out      *outbox
	exited   chan struct{}
	stopping bool // guarded by ScriptResolver.mu
}

func newProcessHandle(gen int, p Process) *processHandle {
	return &processHandle{gen: gen, p: p, out: newOutbox(), exited: make(chan struct{})}
}

// closeInput lets the writer flush and then close the process's stdin.
func (h *processHandle) closeInput() {
	h.out.close()
}

// outbox is an unbounded message queue drained by a single writer goroutine.
type outbox struct {
	mu     sync.Mutex
	queue  []protocol.Message
	closed bool
	ready  chan struct{}
}

func newOutbox() *outbox {
	return &outbox{ready: make(chan struct{}, 1)}
}

func (o *outbox) push(m protocol.Message) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.queue = append(o.queue, m)
	o.mu.Unlock()
	o.signal()
	return true
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) take() ([]protocol.Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	msgs := o.queue
	o.queue = nil
	return msgs, o.closed
}

func (o *outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}
