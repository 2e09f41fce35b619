package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Connection states.
type ConnectionState int

const (
	// StateDisconnected indicates no connection.
	StateDisconnected ConnectionState = iota

	// StateConnecting indicates connection in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateClosing indicates close in progress.
	StateClosing
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Connection errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrConnectionClosed = errors.New("connection closed")
)

// ConnectionHandler handles connection events. Callbacks run on the
// connection's read goroutine and must not block for long.
type ConnectionHandler interface {
	// OnMessage is called for each received message.
	OnMessage(msg wire.Message)

	// OnStateChange is called when the connection state changes.
	OnStateChange(oldState, newState ConnectionState)

	// OnError is called for decode failures and the error that ends the
	// read loop.
	OnError(err error)
}

// Connection is an event-driven INDI connection: a read goroutine feeds
// every received message to a ConnectionHandler.
type Connection struct {
	config  ClientConfig
	handler ConnectionHandler

	state  atomic.Int32
	closed atomic.Bool

	mu        sync.RWMutex
	client    *ClientConn
	device    string
	closeOnce sync.Once
	doneOnce  sync.Once
	done      chan struct{}
}

// NewConnection creates a new connection (not yet connected).
func NewConnection(config ClientConfig, handler ConnectionHandler) *Connection {
	config.applyDefaults()
	c := &Connection{
		config:  config,
		handler: handler,
		device:  config.Device,
		done:    make(chan struct{}),
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// ID returns the underlying connection ID, or "" before connecting.
func (c *Connection) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return ""
	}
	return c.client.ID()
}

// Done is closed when the read loop exits.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Connect dials address and starts the read loop.
func (c *Connection) Connect(ctx context.Context, address string) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}
	c.notifyStateChange(StateDisconnected, StateConnecting)

	client, err := Dial(ctx, address, c.withDecodeErrors())
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		c.notifyStateChange(StateConnecting, StateDisconnected)
		if c.closed.Load() {
			c.markDone()
		}
		return err
	}
	c.start(client)
	return nil
}

// Attach starts the read loop on an established stream.
func (c *Connection) Attach(conn net.Conn) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}
	c.notifyStateChange(StateDisconnected, StateConnecting)
	c.start(NewClientConn(conn, c.withDecodeErrors()))
	return nil
}

func (c *Connection) withDecodeErrors() ClientConfig {
	cfg := c.config
	c.mu.RLock()
	cfg.Device = c.device
	c.mu.RUnlock()
	if c.handler != nil {
		user := cfg.OnDecodeError
		cfg.OnDecodeError = func(err error) {
			if user != nil {
				user(err)
			}
			c.handler.OnError(err)
		}
	}
	return cfg
}

func (c *Connection) start(client *ClientConn) {
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	c.state.Store(int32(StateConnected))
	c.notifyStateChange(StateConnecting, StateConnected)

	// Close raced with the dial; the read loop ends on its first Receive.
	if c.closed.Load() {
		client.Close()
	}
	go c.readLoop(client)
}

// Send validates, encodes and writes a message.
func (c *Connection) Send(m wire.Message) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil {
		return ErrNotConnected
	}
	return client.Send(m)
}

// SetDevice changes the device filter. It may be called before Connect.
func (c *Connection) SetDevice(device string) {
	c.mu.Lock()
	c.device = device
	client := c.client
	c.mu.Unlock()
	if client != nil {
		client.SetDevice(device)
	}
}

// LocalAddr returns the local network address.
func (c *Connection) LocalAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client != nil {
		return c.client.LocalAddr()
	}
	return nil
}

// RemoteAddr returns the remote network address.
func (c *Connection) RemoteAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client != nil {
		return c.client.RemoteAddr()
	}
	return nil
}

// Close closes the connection and waits for the read loop to exit.
// A Connection is not reusable after Close.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		current := c.State()
		if current == StateDisconnected {
			c.mu.RLock()
			started := c.client != nil
			c.mu.RUnlock()
			if !started {
				c.markDone()
				return
			}
		}
		if current == StateConnected {
			c.state.Store(int32(StateClosing))
			c.notifyStateChange(current, StateClosing)
		}

		c.mu.RLock()
		client := c.client
		c.mu.RUnlock()
		if client != nil {
			err = client.Close()
			<-c.done
		}
	})
	return err
}

func (c *Connection) readLoop(client *ClientConn) {
	defer c.markDone()

	for {
		msgs, err := client.Receive(0)
		for _, m := range msgs {
			if c.handler != nil {
				c.handler.OnMessage(m)
			}
		}
		if err != nil {
			closing := c.State() == StateClosing
			if !closing && c.handler != nil {
				c.handler.OnError(fmt.Errorf("read loop: %w", err))
			}
			client.Close()
			old := c.State()
			c.state.Store(int32(StateDisconnected))
			c.notifyStateChange(old, StateDisconnected)
			return
		}
	}
}

func (c *Connection) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Connection) notifyStateChange(oldState, newState ConnectionState) {
	if c.handler != nil {
		c.handler.OnStateChange(oldState, newState)
	}
}
