package protocol

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/trackpipe/internal/shared"
)

type collector struct {
	msgs []json.RawMessage
	errs []error
}

func (c *collector) decoder() *Decoder {
	return NewDecoder(
		func(m json.RawMessage) { c.msgs = append(c.msgs, append(json.RawMessage(nil), m...)) },
		func(err error) { c.errs = append(c.errs, err) },
	)
}

func mustFrame(t *testing.T, body string) []byte {
	t.Helper()
	frame, err := Frame([]byte(body))
	if err != nil {
		t.Fatalf("failed to frame: %v", err)
	}
	return frame
}

func TestEncode(t *testing.T) {
	frame, err := Encode(map[string]string{"_msgtype": "settings"})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if got := binary.BigEndian.Uint32(frame[:4]); int(got) != len(frame)-4 {
		t.Errorf("length prefix %d does not match body %d", got, len(frame)-4)
	}

	if _, err := Frame(make([]byte, MaxFrameSize+1)); !errors.Is(err, shared.ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecoder(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		want := Results{QID: "q1", Results: []ResultEntry{{URL: "http://x/1.mp3", Artist: "Air", Track: "La Femme D'Argent", Bitrate: 320}}}
		body, err := Marshal(want)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		frame, _ := Frame(body)

		var c collector
		c.decoder().Write(frame)
		if len(c.msgs) != 1 {
			t.Fatalf("expected 1 message, got %d", len(c.msgs))
		}
		got, err := Parse(c.msgs[0])
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
		}
	})

	t.Run("fragmentation at every split point", func(t *testing.T) {
		frame := mustFrame(t, `{"_msgtype":"settings","name":"Fake","weight":10,"timeout":2}`)
		for i := 1; i < len(frame); i++ {
			var c collector
			d := c.decoder()
			d.Write(frame[:i])
			if len(c.msgs) != 0 {
				t.Fatalf("split %d: message emitted early", i)
			}
			d.Write(frame[i:])
			if len(c.msgs) != 1 || len(c.errs) != 0 {
				t.Fatalf("split %d: got %d messages, %d errors", i, len(c.msgs), len(c.errs))
			}
			if d.State() != AwaitingLength {
				t.Fatalf("split %d: decoder left in %s", i, d.State())
			}
		}
	})

	t.Run("byte at a time", func(t *testing.T) {
		stream := append(mustFrame(t, `{"a":1}`), mustFrame(t, `{"b":2}`)...)
		var c collector
		d := c.decoder()
		for _, b := range stream {
			d.Write([]byte{b})
		}
		if len(c.msgs) != 2 {
			t.Errorf("expected 2 messages, got %d", len(c.msgs))
		}
	})

	t.Run("several frames in one write", func(t *testing.T) {
		var stream []byte
		for range 3 {
			stream = append(stream, mustFrame(t, `{"_msgtype":"results","qid":"q","results":[]}`)...)
		}
		var c collector
		c.decoder().Write(stream)
		if len(c.msgs) != 3 {
			t.Errorf("expected 3 messages, got %d", len(c.msgs))
		}
	})

	t.Run("malformed frames are dropped without losing sync", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"not json", `this is not json`},
			{"array", `[1,2,3]`},
			{"truncated object", `{"_msgtype":`},
			{"empty", ``},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				stream := append(mustFrame(t, tt.body), mustFrame(t, `{"ok":true}`)...)
				var c collector
				c.decoder().Write(stream)
				if len(c.errs) != 1 || !errors.Is(c.errs[0], shared.ErrProtocol) {
					t.Errorf("expected one protocol error, got %v", c.errs)
				}
				if len(c.msgs) != 1 || string(c.msgs[0]) != `{"ok":true}` {
					t.Errorf("next frame not decoded: %q", c.msgs)
				}
			})
		}
	})

	t.Run("oversized frames are skipped", func(t *testing.T) {
		var c collector
		d := c.decoder()
		d.maxSize = 8

		big := mustFrame(t, `{"payload":"0123456789"}`)
		stream := append(big, mustFrame(t, `{"n":1}`)...)
		d.Write(stream[:10])
		d.Write(stream[10:])

		if len(c.errs) != 1 || !errors.Is(c.errs[0], shared.ErrFrameTooLarge) {
			t.Errorf("expected ErrFrameTooLarge, got %v", c.errs)
		}
		if len(c.msgs) != 1 || string(c.msgs[0]) != `{"n":1}` {
			t.Errorf("expected following frame, got %q", c.msgs)
		}
	})

	t.Run("Reset drops a partial frame", func(t *testing.T) {
		var c collector
		d := c.decoder()
		d.Write(mustFrame(t, `{"a":1}`)[:6])
		if d.State() != AwaitingBody || d.Buffered() != 2 {
			t.Fatalf("unexpected state %s/%d", d.State(), d.Buffered())
		}
		d.Reset()
		d.Write(mustFrame(t, `{"b":2}`))
		if len(c.msgs) != 1 || string(c.msgs[0]) != `{"b":2}` {
			t.Errorf("unexpected messages %q", c.msgs)
		}
	})
}

func TestParse(t *testing.T) {
	t.Run("typed messages", func(t *testing.T) {
		tests := []struct {
			name string
			raw  string
			want Message
		}{
			{
				name: "settings",
				raw:  `{"_msgtype":"settings","name":"Fake","weight":"30","timeout":3}`,
				want: Settings{Name: "Fake", Weight: 30, Timeout: 3},
			},
			{
				name: "settings without weight",
				raw:  `{"_msgtype":"settings","name":"Fake"}`,
				want: Settings{Name: "Fake"},
			},
			{
				name: "rq full text",
				raw:  `{"_msgtype":"rq","qid":"q1","artist":"","track":"air","fulltext":"air"}`,
				want: ResolveRequest{QID: "q1", Track: "air", FullText: "air"},
			},
			{
				name: "playlist",
				raw:  `{"_msgtype":"playlist","qid":"q","identifier":"top","playlist":[{"artist":"Air","track":"Sexy Boy"}]}`,
				want: Playlist{QID: "q", Identifier: "top", Playlist: []PlaylistEntry{{Artist: "Air", Track: "Sexy Boy"}}},
			},
			{
				name: "confwidget with string flag",
				raw:  `{"_msgtype":"confwidget","widget":"eA==","compressed":"true"}`,
				want: ConfWidget{Widget: "eA==", Compressed: true},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := Parse(json.RawMessage(tt.raw))
				if err != nil {
					t.Fatalf("parse failed: %v", err)
				}
				if !reflect.DeepEqual(got, tt.want) {
					t.Errorf("got %#v, want %#v", got, tt.want)
				}
			})
		}
	})

	t.Run("unknown message types", func(t *testing.T) {
		for _, raw := range []string{`{"_msgtype":"bogus"}`, `{"qid":"q1"}`} {
			_, err := Parse(json.RawMessage(raw))
			if !errors.Is(err, shared.ErrUnknownMessage) || !errors.Is(err, shared.ErrProtocol) {
				t.Errorf("%s: expected ErrUnknownMessage, got %v", raw, err)
			}
		}
	})

	t.Run("malformed fields", func(t *testing.T) {
		_, err := Parse(json.RawMessage(`{"_msgtype":"results","qid":"q","results":"nope"}`))
		if !errors.Is(err, shared.ErrProtocol) {
			t.Errorf("expected protocol error, got %v", err)
		}
	})

	t.Run("settings timeout", func(t *testing.T) {
		if d := (Settings{}).TimeoutDuration(); d != DefaultResolverTimeout {
			t.Errorf("expected default timeout, got %s", d)
		}
		if d := (Settings{Timeout: 2}).TimeoutDuration(); d.Seconds() != 2 {
			t.Errorf("expected 2s, got %s", d)
		}
	})
}

func TestMarshal(t *testing.T) {
	body, err := Marshal(ResolveRequest{QID: "q1", Artist: "Air", Track: "La Femme D'Argent"})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !bytes.HasPrefix(body, []byte(`{"_msgtype":"rq",`)) {
		t.Errorf("unexpected body %s", body)
	}
	if bytes.Contains(body, []byte("fulltext")) {
		t.Error("fulltext should be omitted for structured queries")
	}

	body, _ = Marshal(SetPref{Widgets: json.RawMessage(`{}`)})
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil || decoded["_msgtype"] != "setpref" {
		t.Errorf("invalid setpref body %s: %v", body, err)
	}
}

func TestConfWidgetData(t *testing.T) {
	ui := []byte(`<ui version="4.0"/>`)

	var zbuf bytes.Buffer
	zw := zlib.NewWriter(&zbuf)
	zw.Write(ui)
	zw.Close()

	prefixed := make([]byte, 4, 4+zbuf.Len())
	binary.BigEndian.PutUint32(prefixed, uint32(len(ui)))
	prefixed = append(prefixed, zbuf.Bytes()...)

	tests := []struct {
		name   string
		widget ConfWidget
	}{
		{"plain", ConfWidget{Widget: base64.StdEncoding.EncodeToString(ui)}},
		{"zlib", ConfWidget{Widget: base64.StdEncoding.EncodeToString(zbuf.Bytes()), Compressed: true}},
		{"length prefixed zlib", ConfWidget{Widget: base64.StdEncoding.EncodeToString(prefixed), Compressed: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.widget.Data()
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if !bytes.Equal(got, ui) {
				t.Errorf("got %q", got)
			}
		})
	}

	if _, err := (ConfWidget{Widget: "%%%"}).Data(); !errors.Is(err, shared.ErrProtocol) {
		t.Errorf("expected protocol error, got %v", err)
	}
}

func TestWriterConcurrent(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.WriteMessage(ResolveRequest{QID: strings.Repeat("q", i+1), Artist: "Air", Track: "Talisman"})
		}()
	}
	wg.Wait()

	var c collector
	c.decoder().Write(buf.Bytes())
	if len(c.msgs) != 20 || len(c.errs) != 0 {
		t.Errorf("expected 20 intact frames, got %d (errors %v)", len(c.msgs), c.errs)
	}
}

func TestReadMessages(t *testing.T) {
	t.Run("reads until EOF", func(t *testing.T) {
		stream := append(mustFrame(t, `{"a":1}`), mustFrame(t, `{"b":2}`)...)
		var got int
		err := ReadMessages(context.Background(), bytes.NewReader(stream), func(json.RawMessage) { got++ }, nil)
		if err != nil || got != 2 {
			t.Errorf("expected 2 messages and nil error, got %d (%v)", got, err)
		}
	})

	t.Run("truncated stream", func(t *testing.T) {
		frame := mustFrame(t, `{"a":1}`)
		err := ReadMessages(context.Background(), bytes.NewReader(frame[:5]), func(json.RawMessage) {}, nil)
		if !errors.Is(err, shared.ErrProtocol) {
			t.Errorf("expected protocol error, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		r, w := io.Pipe()
		defer w.Close()
		if err := ReadMessages(ctx, r, func(json.RawMessage) {}, nil); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestUint(t *testing.T) {
	tests := []struct {
		raw  string
		want Uint
	}{
		{`10`, 10},
		{`"10"`, 10},
		{`320.0`, 320},
		{`-5`, 0},
		{`null`, 0},
		{`"abc"`, 0},
	}
	for _, tt := range tests {
		var u Uint
		if err := json.Unmarshal([]byte(tt.raw), &u); err != nil {
			t.Errorf("%s: unexpected error %v", tt.raw, err)
		}
		if u != tt.want {
			t.Errorf("%s: got %d, want %d", tt.raw, u, tt.want)
		}
	}
}
