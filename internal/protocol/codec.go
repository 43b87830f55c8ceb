package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/desertthunder/trackpipe/internal/shared"
)

const (
	// MaxFrameSize bounds a single message body. Longer frames are skipped.
	MaxFrameSize = 16 << 20
	headerSize   = 4
	readBufSize  = 32 << 10
)

// State is the decoder's position within the current frame.
type State int

const (
	AwaitingLength State = iota
	AwaitingBody
)

func (s State) String() string {
	switch s {
	case AwaitingLength:
		return "awaiting_length"
	case AwaitingBody:
		return "awaiting_body"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Frame prefixes body with its 4-byte big-endian length.
func Frame(body []byte) ([]byte, error) {
	if len(body) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", shared.ErrFrameTooLarge, len(body))
	}
	out := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	copy(out[headerSize:], body)
	return out, nil
}

// Encode serializes v to JSON and frames it.
func Encode(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return Frame(body)
}

// Decoder reassembles frames written to it in arbitrary chunks.
//
// It implements [io.Writer]; Write never fails, so it can sit at the end of an [io.Copy].
// Decoder is not safe for concurrent use.
type Decoder struct {
	onMessage func(json.RawMessage)
	onError   func(error)
	maxSize   int

	state   State
	header  [headerSize]byte
	hn      int
	size    int
	body    []byte
	discard bool
}

// NewDecoder creates a Decoder delivering each complete JSON object frame to onMessage.
// Protocol errors go to onError, which may be nil.
func NewDecoder(onMessage func(json.RawMessage), onError func(error)) *Decoder {
	if onError == nil {
		onError = func(error) {}
	}
	return &Decoder{onMessage: onMessage, onError: onError, maxSize: MaxFrameSize}
}

// State reports where the decoder is within the current frame.
func (d *Decoder) State() State {
	return d.state
}

// Buffered reports how many bytes of the current frame have been consumed.
func (d *Decoder) Buffered() int {
	if d.state == AwaitingLength {
		return d.hn
	}
	return len(d.body)
}

// Reset drops any partial frame.
func (d *Decoder) Reset() {
	d.state = AwaitingLength
	d.hn = 0
	d.size = 0
	d.body = nil
	d.discard = false
}

func (d *Decoder) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		switch d.state {
		case AwaitingLength:
			c := copy(d.header[d.hn:], p)
			d.hn += c
			p = p[c:]
			if d.hn < headerSize {
				continue
			}
			d.hn = 0
			d.size = int(binary.BigEndian.Uint32(d.header[:]))
			d.state = AwaitingBody
			d.discard = d.size > d.maxSize
			if d.discard {
				d.onError(fmt.Errorf("%w: %d bytes", shared.ErrFrameTooLarge, d.size))
			} else {
				d.body = make([]byte, 0, d.size)
			}
			if d.size == 0 {
				d.emit()
			}
		case AwaitingBody:
			want := d.size - len(d.body)
			if d.discard {
				c := min(want, len(p))
				d.size -= c
				p = p[c:]
				if d.size == 0 {
					d.Reset()
				}
				continue
			}
			c := min(want, len(p))
			d.body = append(d.body, p[:c]...)
			p = p[c:]
			if len(d.body) == d.size {
				d.emit()
			}
		}
	}
	return n, nil
}

func (d *Decoder) emit() {
	body := d.body
	d.Reset()
	if err := validateObject(body); err != nil {
		d.onError(err)
		return
	}
	d.onMessage(json.RawMessage(body))
}

func validateObject(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return fmt.Errorf("%w: frame of %d bytes is not a JSON object", shared.ErrProtocol, len(body))
	}
	return nil
}

// Writer serializes whole frames onto an underlying writer. It is safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteMessage frames m with its "_msgtype" and writes it in a single call.
func (w *Writer) WriteMessage(m Message) error {
	body, err := Marshal(m)
	if err != nil {
		return err
	}
	frame, err := Frame(body)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write %s message: %w", m.MsgType(), err)
	}
	return nil
}

// ReadMessages feeds r into a [Decoder] until EOF or ctx is done.
//
// Cancellation is observed between reads; closing r is what unblocks a pending read.
func ReadMessages(ctx context.Context, r io.Reader, onMessage func(json.RawMessage), onError func(error)) error {
	dec := NewDecoder(onMessage, onError)
	buf := make([]byte, readBufSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = dec.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			if dec.Buffered() > 0 || dec.State() == AwaitingBody {
				return fmt.Errorf("%w: stream ended mid-frame", shared.ErrProtocol)
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}
