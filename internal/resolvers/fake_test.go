package resolvers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/protocol"
)

// fakeProcess is an in-memory Process. Frames written to stdin are decoded and recorded.
type fakeProcess struct {
	pid int

	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	mu          sync.Mutex
	received    []protocol.Message
	stdinClosed bool
	decoder     *protocol.Decoder

	exitOnStdinClose bool
	ignoreKill       bool
	kills            atomic.Int32
	exitOnce         sync.Once
	exited           chan struct{}
}

func newFakeProcess(pid int) *fakeProcess {
	p := &fakeProcess{pid: pid, exitOnStdinClose: true, exited: make(chan struct{})}
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	p.decoder = protocol.NewDecoder(func(raw json.RawMessage) {
		if m, err := protocol.Parse(raw); err == nil {
			p.received = append(p.received, m)
		}
	}, nil)
	return p
}

func (p *fakeProcess) Stdin() io.WriteCloser { return fakeStdin{p} }
func (p *fakeProcess) Stdout() io.Reader     { return p.stdoutR }
func (p *fakeProcess) Stderr() io.Reader     { return p.stderrR }
func (p *fakeProcess) Pid() int              { return p.pid }

func (p *fakeProcess) Kill() error {
	p.kills.Add(1)
	if !p.ignoreKill {
		p.exit()
	}
	return nil
}

func (p *fakeProcess) Wait() error {
	<-p.exited
	return nil
}

// exit simulates the process ending: its output streams reach EOF.
func (p *fakeProcess) exit() {
	p.exitOnce.Do(func() {
		p.stdoutW.Close()
		p.stderrW.Close()
		close(p.exited)
	})
}

// send writes a framed message to the resolver as if the process printed it.
func (p *fakeProcess) send(m protocol.Message) error {
	body, err := protocol.Marshal(m)
	if err != nil {
		return err
	}
	frame, err := protocol.Frame(body)
	if err != nil {
		return err
	}
	_, err = p.stdoutW.Write(frame)
	return err
}

func (p *fakeProcess) messages() []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Message(nil), p.received...)
}

func (p *fakeProcess) inputClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stdinClosed
}

type fakeStdin struct{ p *fakeProcess }

func (s fakeStdin) Write(b []byte) (int, error) {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if s.p.stdinClosed {
		return 0, io.ErrClosedPipe
	}
	return s.p.decoder.Write(b)
}

func (s fakeStdin) Close() error {
	s.p.mu.Lock()
	already := s.p.stdinClosed
	s.p.stdinClosed = true
	s.p.mu.Unlock()
	if !already && s.p.exitOnStdinClose {
		s.p.exit()
	}
	return nil
}

// fakeLauncher hands out fakeProcesses and runs script against each one.
type fakeLauncher struct {
	mu     sync.Mutex
	procs  []*fakeProcess
	err    error
	script func(n int, p *fakeProcess)
	setup  func(p *fakeProcess)
}

func (l *fakeLauncher) Launch(_ context.Context, _ string) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	p := newFakeProcess(len(l.procs) + 1)
	if l.setup != nil {
		l.setup(p)
	}
	l.procs = append(l.procs, p)
	if l.script != nil {
		go l.script(len(l.procs), p)
	}
	return p, nil
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}

func (l *fakeLauncher) proc(i int) *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i >= len(l.procs) {
		return nil
	}
	return l.procs[i]
}

type report struct {
	resolver Resolver
	qid      string
	results  []*models.Result
}

// recordingRegistrar records every call from a resolver.
type recordingRegistrar struct {
	mu      sync.Mutex
	adds    int
	removes int
	reports []report
	active  map[Resolver]bool
}

func newRecordingRegistrar() *recordingRegistrar {
	return &recordingRegistrar{active: make(map[Resolver]bool)}
}

func (r *recordingRegistrar) AddResolver(res Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adds++
	r.active[res] = true
}

func (r *recordingRegistrar) RemoveResolver(res Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removes++
	delete(r.active, res)
}

func (r *recordingRegistrar) ReportResults(res Resolver, qid string, results []*models.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report{resolver: res, qid: qid, results: results})
}

func (r *recordingRegistrar) isActive(res Resolver) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[res]
}

func (r *recordingRegistrar) counts() (adds, removes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adds, r.removes
}

func (r *recordingRegistrar) reported() []report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]report(nil), r.reports...)
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// waitEvent waits for an event of kind on ch.
func waitEvent(t *testing.T, ch <-chan Event, kind EventKind) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for %s", kind)
			}
			if ev.Kind == kind {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

var errLaunch = errors.New("exec format error")
