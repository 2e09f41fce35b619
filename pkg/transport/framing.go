package transport

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Framing constants.
const (
	// DefaultMaxBufferSize bounds the bytes held while waiting for a
	// complete message (16 MB). Large BLOBs need a larger bound.
	DefaultMaxBufferSize = 16 << 20

	// retainBufferSize is the largest buffer kept for reuse once emptied.
	retainBufferSize = 1 << 20

	wrapperOpen  = "<indi>"
	wrapperClose = "</indi>"
)

// Framing errors.
var (
	// ErrFramingIncomplete indicates the buffer does not yet hold only
	// complete messages. It never leaves this package.
	ErrFramingIncomplete = errors.New("framing incomplete")

	// ErrFramingOverflow indicates the buffer grew past its bound without
	// completing. Reassembly for the connection stops.
	ErrFramingOverflow = errors.New("framing buffer overflow")

	// ErrReassemblerClosed is returned by Feed after overflow or Close.
	ErrReassemblerClosed = errors.New("reassembler closed")
)

// FramingState is the state of a Reassembler.
type FramingState int

const (
	// FramingEmpty means no bytes are buffered.
	FramingEmpty FramingState = iota

	// FramingAccumulating means bytes are buffered awaiting completion.
	FramingAccumulating

	// FramingFailed means the buffer overflowed. Terminal.
	FramingFailed

	// FramingClosed means Close was called. Terminal.
	FramingClosed
)

// String returns the state name.
func (s FramingState) String() string {
	switch s {
	case FramingEmpty:
		return "EMPTY"
	case FramingAccumulating:
		return "ACCUMULATING"
	case FramingFailed:
		return "FAILED"
	case FramingClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ReassemblerConfig configures a Reassembler.
type ReassemblerConfig struct {
	// MaxBufferSize is the overflow bound (default: 16 MB).
	MaxBufferSize int

	// Device, when set, drops messages for other devices.
	Device string

	// Logger receives frame, message, error and state events (optional).
	Logger log.Logger

	// ConnID tags log events.
	ConnID string

	// OnDecodeError is called for each message that fails to decode. The
	// rest of the batch is still delivered.
	OnDecodeError func(err error)
}

// Reassembler turns an unframed INDI byte stream into messages.
//
// INDI has no length prefix or delimiter. Incoming bytes are appended to a
// buffer which is parsed, inside a synthetic wrapper element, whenever it
// could end on a complete tag. A successful parse yields every buffered
// message and empties the buffer; a failed parse keeps the bytes for the
// next read.
//
// A Reassembler is owned by one goroutine and does no locking, except for
// the device filter which may be changed from any goroutine.
type Reassembler struct {
	config ReassemblerConfig
	logger log.Logger
	state  FramingState
	buf    []byte
	device atomic.Pointer[string]
}

// NewReassembler creates a Reassembler in the Empty state.
func NewReassembler(config ReassemblerConfig) *Reassembler {
	if config.MaxBufferSize <= 0 {
		config.MaxBufferSize = DefaultMaxBufferSize
	}
	r := &Reassembler{
		config: config,
		logger: log.OrNoop(config.Logger),
		state:  FramingEmpty,
	}
	r.SetDevice(config.Device)
	return r
}

// State returns the current state.
func (r *Reassembler) State() FramingState {
	return r.state
}

// Buffered returns the number of bytes awaiting completion.
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}

// SetDevice sets the device filter. An empty name disables filtering.
// It is safe to call while another goroutine is in Feed; the new filter
// applies to the next decoded batch.
func (r *Reassembler) SetDevice(device string) {
	r.device.Store(&device)
}

// Device returns the device filter.
func (r *Reassembler) Device() string {
	if d := r.device.Load(); d != nil {
		return *d
	}
	return ""
}

// Close discards buffered bytes. Later calls to Feed fail.
func (r *Reassembler) Close() {
	if r.state == FramingClosed {
		return
	}
	r.buf = nil
	r.setState(FramingClosed, "closed")
}

// Feed appends newly read bytes and returns every message completed by them.
// It returns no messages and a nil error while a message is still partial.
// ErrFramingOverflow is returned once when the buffer exceeds its bound;
// afterwards Feed returns ErrReassemblerClosed.
func (r *Reassembler) Feed(data []byte) ([]wire.Message, error) {
	switch r.state {
	case FramingFailed, FramingClosed:
		return nil, ErrReassemblerClosed
	}
	if len(data) == 0 {
		return nil, nil
	}

	r.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: r.config.ConnID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame:        log.NewFrameEvent(data),
	})

	if r.state == FramingEmpty {
		r.state = FramingAccumulating
	}
	r.buf = append(r.buf, data...)

	nodes, err := r.parse()
	if err != nil {
		if len(r.buf) > r.config.MaxBufferSize {
			size := len(r.buf)
			r.buf = nil
			r.setState(FramingFailed, "buffer overflow")
			return nil, fmt.Errorf("%w: %d bytes without a complete message (limit %d)",
				ErrFramingOverflow, size, r.config.MaxBufferSize)
		}
		return nil, nil
	}

	if cap(r.buf) > retainBufferSize {
		r.buf = nil
	} else {
		r.buf = r.buf[:0]
	}
	r.state = FramingEmpty

	return r.decode(nodes), nil
}

// parse attempts to parse the whole buffer as a sequence of messages.
func (r *Reassembler) parse() ([]wire.Node, error) {
	// A complete buffer always ends with '>'. Skipping the parse otherwise
	// keeps long BLOB transfers from being reparsed on every read.
	trimmed := bytes.TrimRight(r.buf, " \t\r\n")
	if len(trimmed) > 0 && trimmed[len(trimmed)-1] != '>' {
		return nil, ErrFramingIncomplete
	}

	text := toUTF8(r.buf)
	doc := make([]byte, 0, len(wrapperOpen)+len(text)+len(wrapperClose))
	doc = append(doc, wrapperOpen...)
	doc = append(doc, text...)
	doc = append(doc, wrapperClose...)

	nodes, err := wire.ParseNodes(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFramingIncomplete, err)
	}
	return nodes, nil
}

// decode converts parsed nodes, reporting failures and applying the
// device filter.
func (r *Reassembler) decode(nodes []wire.Node) []wire.Message {
	device := r.Device()
	var out []wire.Message
	for i := range nodes {
		m, err := wire.Decode(&nodes[i])
		if err != nil {
			r.reportDecodeError(&nodes[i], err)
			continue
		}
		if device != "" && m.Device() != device {
			continue
		}
		r.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: r.config.ConnID,
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			Device:       m.Device(),
			Message:      log.NewMessageEvent(m),
		})
		out = append(out, m)
	}
	return out
}

func (r *Reassembler) reportDecodeError(n *wire.Node, err error) {
	r.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: r.config.ConnID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryError,
		Device:       n.Attr("device"),
		Error: &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: err.Error(),
			Tag:     n.XMLName.Local,
			Context: "decode",
		},
	})
	if r.config.OnDecodeError != nil {
		r.config.OnDecodeError(err)
	}
}

func (r *Reassembler) setState(s FramingState, reason string) {
	old := r.state
	r.state = s
	r.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: r.config.ConnID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityReassembler,
			OldState: old.String(),
			NewState: s.String(),
			Reason:   reason,
		},
	})
}

// toUTF8 returns b unchanged when it is valid UTF-8. Otherwise every byte
// that does not start a valid UTF-8 sequence is decoded as Latin-1, where
// each byte is one code point, and valid sequences are kept as they are.
func toUTF8(b []byte) []byte {
	if utf8.Valid(b) {
		return b
	}
	out := make([]byte, 0, len(b)+len(b)/4)
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			out = utf8.AppendRune(out, rune(b[0]))
		} else {
			out = append(out, b[:size]...)
		}
		b = b[size:]
	}
	return out
}
