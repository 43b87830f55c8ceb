package protocol

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/trackpipe/internal/shared"
)

// Message types carried in "_msgtype".
const (
	TypeConfig     = "config"
	TypeSettings   = "settings"
	TypeConfWidget = "confwidget"
	TypeSetPref    = "setpref"
	TypeResolve    = "rq"
	TypeResults    = "results"
	TypePlaylist   = "playlist"
)

// DefaultResolverTimeout applies when a settings message omits "timeout".
const DefaultResolverTimeout = 5 * time.Second

// Message is any typed protocol message.
type Message interface {
	MsgType() string
}

// Config is sent host→process at every process start. It carries proxy settings.
type Config struct {
	ProxyType    string   `json:"proxytype"`
	ProxyHost    string   `json:"proxyhost"`
	ProxyPort    int      `json:"proxyport"`
	ProxyUser    string   `json:"proxyuser"`
	ProxyPass    string   `json:"proxypass"`
	NoProxyHosts []string `json:"noproxyhosts"`
}

// Settings is the process's self-description. Receiving it makes the resolver Ready.
type Settings struct {
	Name    string `json:"name"`
	Weight  Uint   `json:"weight"`
	Timeout Uint   `json:"timeout"` // seconds
}

// TimeoutDuration converts Timeout to a duration, using [DefaultResolverTimeout] when unset or zero.
func (s Settings) TimeoutDuration() time.Duration {
	if s.Timeout == 0 {
		return DefaultResolverTimeout
	}
	return time.Duration(s.Timeout) * time.Second
}

// ConfWidget carries an opaque configuration UI description.
type ConfWidget struct {
	Widget     string            `json:"widget"`
	Images     map[string]string `json:"images,omitempty"`
	Compressed Bool              `json:"compressed,omitempty"`
}

// Data decodes the widget payload: base64, then zlib when Compressed.
//
// Compressed payloads may carry a 4-byte big-endian length before the zlib stream; it is skipped.
func (c ConfWidget) Data() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(c.Widget)
	if err != nil {
		return nil, fmt.Errorf("%w: widget is not base64: %v", shared.ErrProtocol, err)
	}
	if !c.Compressed {
		return raw, nil
	}

	for _, offset := range []int{4, 0} {
		if len(raw) <= offset {
			continue
		}
		zr, err := zlib.NewReader(bytes.NewReader(raw[offset:]))
		if err != nil {
			continue
		}
		data, err := io.ReadAll(zr)
		zr.Close()
		if err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("%w: widget is not zlib compressed", shared.ErrProtocol)
}

// SetPref returns configuration values to the process.
type SetPref struct {
	Widgets json.RawMessage `json:"widgets"`
}

// ResolveRequest asks the process to resolve a query.
type ResolveRequest struct {
	QID      string `json:"qid"`
	Artist   string `json:"artist"`
	Track    string `json:"track"`
	FullText string `json:"fulltext,omitempty"`
}

// ResultEntry is one candidate inside a [Results] message.
type ResultEntry struct {
	URL        string   `json:"url"`
	Artist     string   `json:"artist"`
	Album      string   `json:"album,omitempty"`
	AlbumPos   Uint     `json:"albumpos,omitempty"`
	Track      string   `json:"track"`
	Duration   Uint     `json:"duration,omitempty"`
	Bitrate    Uint     `json:"bitrate,omitempty"`
	Size       Uint     `json:"size,omitempty"`
	Year       Uint     `json:"year,omitempty"`
	DiscNumber Uint     `json:"discnumber,omitempty"`
	Mimetype   string   `json:"mimetype,omitempty"`
	Extension  string   `json:"extension,omitempty"`
	Score      *float64 `json:"score,omitempty"`
}

// Results answers a [ResolveRequest].
type Results struct {
	QID     string        `json:"qid"`
	Results []ResultEntry `json:"results"`
}

// PlaylistEntry is one track of a [Playlist].
type PlaylistEntry struct {
	Artist string `json:"artist"`
	Track  string `json:"track"`
}

// Playlist delivers a list of tracks discovered by the process.
type Playlist struct {
	QID        string          `json:"qid"`
	Identifier string          `json:"identifier"`
	Playlist   []PlaylistEntry `json:"playlist"`
}

func (Config) MsgType() string         { return TypeConfig }
func (Settings) MsgType() string       { return TypeSettings }
func (ConfWidget) MsgType() string     { return TypeConfWidget }
func (SetPref) MsgType() string        { return TypeSetPref }
func (ResolveRequest) MsgType() string { return TypeResolve }
func (Results) MsgType() string        { return TypeResults }
func (Playlist) MsgType() string       { return TypePlaylist }

// Marshal encodes m as a JSON object with "_msgtype" as its first key.
func Marshal(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", m.MsgType(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("%w: %s message is not an object", shared.ErrProtocol, m.MsgType())
	}

	typ, _ := json.Marshal(m.MsgType())
	var buf bytes.Buffer
	buf.WriteString(`{"_msgtype":`)
	buf.Write(typ)
	if len(body) > 2 {
		buf.WriteByte(',')
	}
	buf.Write(body[1:])
	return buf.Bytes(), nil
}

// Parse decodes a frame into its typed message.
//
// A missing or unrecognized "_msgtype" yields [shared.ErrUnknownMessage].
func Parse(raw json.RawMessage) (Message, error) {
	var head struct {
		Type string `json:"_msgtype"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrProtocol, err)
	}

	var m Message
	switch head.Type {
	case TypeConfig:
		m = &Config{}
	case TypeSettings:
		m = &Settings{}
	case TypeConfWidget:
		m = &ConfWidget{}
	case TypeSetPref:
		m = &SetPref{}
	case TypeResolve:
		m = &ResolveRequest{}
	case TypeResults:
		m = &Results{}
	case TypePlaylist:
		m = &Playlist{}
	default:
		return nil, fmt.Errorf("%w: %q", shared.ErrUnknownMessage, head.Type)
	}

	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("%w: malformed %s message: %v", shared.ErrProtocol, head.Type, err)
	}
	return deref(m), nil
}

func deref(m Message) Message {
	switch v := m.(type) {
	case *Config:
		return *v
	case *Settings:
		return *v
	case *ConfWidget:
		return *v
	case *SetPref:
		return *v
	case *ResolveRequest:
		return *v
	case *Results:
		return *v
	case *Playlist:
		return *v
	}
	return m
}

// Uint is a lenient unsigned integer: it accepts numbers, numeric strings and null.
// Anything else, including negatives, decodes as 0.
type Uint uint64

func (u *Uint) UnmarshalJSON(b []byte) error {
	*u = 0
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		*u = Uint(n)
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		*u = Uint(f)
	}
	return nil
}

// Bool accepts JSON booleans and the strings "true"/"false".
type Bool bool

func (v *Bool) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	*v = Bool(strings.EqualFold(s, "true") || s == "1")
	return nil
}
