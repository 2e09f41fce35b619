package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// DefaultPort is the standard INDI server port.
const DefaultPort = 7624

// DefaultReadSize is the size of each socket read.
const DefaultReadSize = 64 * 1024

// ClientConfig configures an INDI client connection.
type ClientConfig struct {
	// ConnectTimeout is the dial timeout (default: 10s).
	ConnectTimeout time.Duration

	// ReadSize is the size of each socket read (default: 64 KB).
	ReadSize int

	// MaxBufferSize bounds reassembly (default: 16 MB).
	MaxBufferSize int

	// WriteTimeout bounds each Send (0 = no timeout).
	WriteTimeout time.Duration

	// Device, when set, drops messages for other devices.
	Device string

	// ProtocolLogger receives protocol events (optional).
	ProtocolLogger log.Logger

	// OnDecodeError receives per-message decode failures (optional).
	OnDecodeError func(err error)
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ConnectTimeout: 10 * time.Second,
		ReadSize:       DefaultReadSize,
		MaxBufferSize:  DefaultMaxBufferSize,
	}
}

func (c *ClientConfig) applyDefaults() {
	def := DefaultClientConfig()
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ReadSize <= 0 {
		c.ReadSize = def.ReadSize
	}
	if c.MaxBufferSize <= 0 {
		c.MaxBufferSize = def.MaxBufferSize
	}
}

// Address joins host and port, defaulting the port to 7624.
func Address(host string, port int) string {
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, fmt.Sprint(port))
}

// Dial connects to an INDI server.
func Dial(ctx context.Context, address string, config ClientConfig) (*ClientConn, error) {
	config.applyDefaults()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	return NewClientConn(conn, config), nil
}

// ClientConn is a polled connection to an INDI server. Reads and writes may
// happen on different goroutines; concurrent Receive calls are serialised.
type ClientConn struct {
	conn   net.Conn
	id     string
	config ClientConfig
	logger log.Logger
	reasm  *Reassembler
	buf    []byte

	closeCh   chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
	readMu    sync.Mutex
}

// NewClientConn wraps an established stream.
func NewClientConn(conn net.Conn, config ClientConfig) *ClientConn {
	config.applyDefaults()
	id := uuid.NewString()
	c := &ClientConn{
		conn:    conn,
		id:      id,
		config:  config,
		logger:  log.OrNoop(config.ProtocolLogger),
		buf:     make([]byte, config.ReadSize),
		closeCh: make(chan struct{}),
	}
	c.reasm = NewReassembler(ReassemblerConfig{
		MaxBufferSize: config.MaxBufferSize,
		Device:        config.Device,
		Logger:        config.ProtocolLogger,
		ConnID:        id,
		OnDecodeError: config.OnDecodeError,
	})
	c.logState("", "CONNECTED", "")
	return c
}

// ID returns the connection ID used in protocol logs.
func (c *ClientConn) ID() string {
	return c.id
}

// LocalAddr returns the local network address.
func (c *ClientConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDevice sets the device filter applied to received messages. It does
// not wait for a Receive blocked in Read.
func (c *ClientConn) SetDevice(device string) {
	c.reasm.SetDevice(device)
}

// Send validates, encodes and writes a message.
func (c *ClientConn) Send(m wire.Message) error {
	data, err := wire.Encode(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.Tag(), err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	if c.config.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}

	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	now := time.Now()
	c.logger.Log(log.Event{
		Timestamp:    now,
		ConnectionID: c.id,
		Direction:    log.DirectionOut,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame:        log.NewFrameEvent(data),
	})
	c.logger.Log(log.Event{
		Timestamp:    now,
		ConnectionID: c.id,
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Device:       m.Device(),
		Message:      log.NewMessageEvent(m),
	})
	return nil
}

// Receive performs one read, waiting at most timeout (0 waits forever), and
// returns the messages it completed. A timeout is not an error: it returns
// no messages. Reassembly overflow closes the connection.
func (c *ClientConn) Receive(timeout time.Duration) ([]wire.Message, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		c.reasm.Close()
		return nil, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	n, readErr := c.conn.Read(c.buf)

	var msgs []wire.Message
	if n > 0 {
		var err error
		msgs, err = c.reasm.Feed(c.buf[:n])
		if err != nil {
			c.closeWithReason(err.Error())
			return msgs, err
		}
	}

	if readErr != nil {
		if isTimeout(readErr) {
			return msgs, nil
		}
		select {
		case <-c.closeCh:
			c.reasm.Close()
			return msgs, ErrConnectionClosed
		default:
		}
		if errors.Is(readErr, io.EOF) {
			c.closeWithReason("EOF")
			return msgs, fmt.Errorf("%w: server closed the stream", ErrConnectionClosed)
		}
		return msgs, fmt.Errorf("read failed: %w", readErr)
	}
	return msgs, nil
}

// Close closes the connection. A Receive blocked in Read returns
// ErrConnectionClosed and discards any partial message.
func (c *ClientConn) Close() error {
	return c.closeWithReason("closed")
}

func (c *ClientConn) closeWithReason(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
		c.logState("CONNECTED", "CLOSED", reason)
	})
	return err
}

func (c *ClientConn) logState(old, new, reason string) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   addrString(c.conn.RemoteAddr()),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: old,
			NewState: new,
			Reason:   reason,
		},
	})
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
