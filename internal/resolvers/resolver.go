package resolvers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/protocol"
	"github.com/desertthunder/trackpipe/internal/shared"
)

// Resolver is the capability every resolution source implements.
//
// Resolve must not block: answers arrive later through the [Registrar].
type Resolver interface {
	Name() string
	Weight() uint
	Preference() uint
	Timeout() time.Duration
	Ready() bool
	Resolve(q *models.Query)
	Stop()
}

// Registrar is the pipeline as seen by a resolver.
type Registrar interface {
	AddResolver(r Resolver)
	RemoveResolver(r Resolver)
	ReportResults(r Resolver, qid string, results []*models.Result)
}

// PlaylistHandler receives the queries announced by a "playlist" message.
type PlaylistHandler func(r Resolver, qid, identifier string, queries []*models.Query)

type nopRegistrar struct{}

func (nopRegistrar) AddResolver(Resolver)                             {}
func (nopRegistrar) RemoveResolver(Resolver)                          {}
func (nopRegistrar) ReportResults(Resolver, string, []*models.Result) {}

// State is a resolver's lifecycle state.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time description of a resolver for listings.
type Status struct {
	Name       string        `json:"name"`
	Kind       string        `json:"kind"`
	Path       string        `json:"path,omitempty"`
	State      State         `json:"state"`
	Weight     uint          `json:"weight"`
	Preference uint          `json:"preference"`
	Timeout    time.Duration `json:"-"`
	Restarts   int           `json:"restarts"`
	Error      string        `json:"error,omitempty"`
}

func (s Status) MarshalJSON() ([]byte, error) {
	type alias Status
	return json.Marshal(struct {
		alias
		TimeoutMS int64 `json:"timeout_ms"`
	}{alias(s), s.Timeout.Milliseconds()})
}

// StatusReporter is implemented by resolvers that can describe themselves.
type StatusReporter interface {
	Status() Status
}

// StatusOf describes r, falling back to the [Resolver] accessors.
func StatusOf(r Resolver) Status {
	if sr, ok := r.(StatusReporter); ok {
		return sr.Status()
	}
	st := StateStopped
	if r.Ready() {
		st = StateReady
	}
	return Status{
		Name:       r.Name(),
		Kind:       "custom",
		State:      st,
		Weight:     r.Weight(),
		Preference: r.Preference(),
		Timeout:    r.Timeout(),
	}
}

// EventKind distinguishes resolver lifecycle notifications.
type EventKind int

const (
	// EventChanged fires on any state or metadata change.
	EventChanged EventKind = iota
	// EventTerminated fires once the process of a stopped resolver has exited.
	EventTerminated
)

func (k EventKind) String() string {
	if k == EventTerminated {
		return "terminated"
	}
	return "changed"
}

// Event is a lifecycle notification.
type Event struct {
	Kind     EventKind
	Resolver Resolver
}

// ProxyProvider supplies the proxy settings sent to external processes.
type ProxyProvider interface {
	ProxySettings() protocol.Config
}

// StaticProxy serves fixed settings from configuration.
type StaticProxy shared.ProxyConfig

func (p StaticProxy) ProxySettings() protocol.Config {
	typ := p.Type
	if typ != "socks5" {
		typ = "none"
	}
	hosts := p.NoProxyHosts
	if hosts == nil {
		hosts = []string{}
	}
	return protocol.Config{
		ProxyType:    typ,
		ProxyHost:    p.Host,
		ProxyPort:    p.Port,
		ProxyUser:    p.User,
		ProxyPass:    p.Password,
		NoProxyHosts: hosts,
	}
}
