package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/indi-protocol/indi-go/pkg/client"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Manager errors.
var (
	ErrManagerClosed  = errors.New("connection manager closed")
	ErrNotConnected   = errors.New("not connected")
	ErrAlreadyRunning = errors.New("connection manager already running")
)

// State represents the manager state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates the manager is waiting to retry.
	StateReconnecting

	// StateClosed indicates the manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DialFunc establishes one client session.
type DialFunc func(ctx context.Context) (*client.Client, error)

// Config configures a Manager.
type Config struct {
	// Address is the INDI server address, host:port.
	Address string

	// Client configures each session dialled to Address.
	Client client.Config

	// Dial replaces dialling Address (optional).
	Dial DialFunc

	// Init runs after every successful connect, before messages are
	// delivered. The default requests all properties.
	Init func(c *client.Client) error

	// Backoff configures retry timing.
	Backoff BackoffConfig

	// ConnectTimeout bounds one connection attempt (default: 10s).
	ConnectTimeout time.Duration

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// Manager keeps an INDI session alive. When the connection drops it waits
// according to its backoff, dials again and replays Init, so the server
// redefines every property into a fresh store.
type Manager struct {
	config  Config
	backoff *Backoff
	logger  *slog.Logger

	mu      sync.RWMutex
	state   State
	client  *client.Client
	running bool
	cancel  context.CancelFunc

	onStateChange  func(oldState, newState State)
	onConnected    func(c *client.Client)
	onReconnecting func(attempt int, delay time.Duration, err error)
}

// NewManager creates a connection manager. Nothing is dialled until Run.
func NewManager(config Config) *Manager {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.Init == nil {
		config.Init = func(c *client.Client) error { return c.GetProperties("", "") }
	}
	if config.Dial == nil {
		addr, cc := config.Address, config.Client
		config.Dial = func(ctx context.Context) (*client.Client, error) {
			return client.Dial(ctx, addr, cc)
		}
	}
	return &Manager{
		config:  config,
		backoff: NewBackoffWithConfig(config.Backoff),
		logger:  config.Logger,
		state:   StateDisconnected,
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether a session is active.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Client returns the active session, or nil.
func (m *Manager) Client() *client.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// Send writes a message on the active session.
func (m *Manager) Send(msg wire.Message) error {
	c := m.Client()
	if c == nil {
		return ErrNotConnected
	}
	return c.Send(msg)
}

// BackoffAttempts returns the number of retries since the last success.
func (m *Manager) BackoffAttempts() int {
	return m.backoff.Attempts()
}

// Run connects and delivers every received message to handler until ctx
// ends or Close is called, reconnecting as needed. It returns nil on
// shutdown.
func (m *Manager) Run(ctx context.Context, handler func(wire.Message)) error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		m.setState(StateDisconnected)
	}()

	for {
		err := m.session(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}

		delay := m.backoff.Next()
		m.setState(StateReconnecting)
		m.debugLog("session ended", "error", err, "retryIn", delay)
		if fn := m.callbacks().onReconnecting; fn != nil {
			fn(m.backoff.Attempts(), delay, err)
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// session runs one connection from dial to failure.
func (m *Manager) session(ctx context.Context, handler func(wire.Message)) error {
	m.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	c, err := m.config.Dial(dialCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer c.Close()

	if err := m.config.Init(c); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	m.mu.Lock()
	m.client = c
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.client = nil
		m.mu.Unlock()
	}()

	m.backoff.Reset()
	m.setState(StateConnected)
	if fn := m.callbacks().onConnected; fn != nil {
		fn(c)
	}

	return c.Run(ctx, handler)
}

// Close stops Run and prevents further use.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = StateClosed
	cancel := m.cancel
	fn := m.onStateChange
	m.mu.Unlock()

	if fn != nil {
		fn(old, StateClosed)
	}
	if cancel != nil {
		cancel()
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	old := m.state
	if old == s || old == StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = s
	fn := m.onStateChange
	m.mu.Unlock()

	if fn != nil {
		fn(old, s)
	}
}

type callbacks struct {
	onConnected    func(c *client.Client)
	onReconnecting func(attempt int, delay time.Duration, err error)
}

func (m *Manager) callbacks() callbacks {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return callbacks{onConnected: m.onConnected, onReconnecting: m.onReconnecting}
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnConnected sets a callback run after each successful connect and Init.
func (m *Manager) OnConnected(fn func(c *client.Client)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// OnReconnecting sets a callback run before each retry delay.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration, err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}

func (m *Manager) debugLog(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}
