package connection

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/indi-protocol/indi-go/pkg/client"
	"github.com/indi-protocol/indi-go/pkg/transport"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

func TestBackoff(t *testing.T) {
	t.Run("DefaultSequence", func(t *testing.T) {
		b := NewBackoff()

		expected := []time.Duration{
			500 * time.Millisecond,
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			16 * time.Second,
			30 * time.Second,
			30 * time.Second, // stays at max
		}

		for i, exp := range expected {
			base := b.Current()
			_ = b.Next()
			if base != exp {
				t.Errorf("Attempt %d: base = %v, want %v", i, base, exp)
			}
		}
	})

	t.Run("Jitter", func(t *testing.T) {
		b := NewBackoff()

		samples := make([]time.Duration, 20)
		for i := range samples {
			samples[i] = b.Next()
			b.Reset()
		}

		upper := time.Duration(float64(InitialBackoff) * (1 + JitterFactor))
		allSame := true
		for i, s := range samples {
			if s < InitialBackoff || s > upper {
				t.Errorf("Sample %d: %v out of range [%v, %v]", i, s, InitialBackoff, upper)
			}
			if s != samples[0] {
				allSame = false
			}
		}
		if allSame {
			t.Error("All jittered samples are identical")
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoff()
		for i := 0; i < 5; i++ {
			b.Next()
		}
		if b.Current() <= InitialBackoff {
			t.Error("Backoff should have increased")
		}

		b.Reset()
		if b.Current() != InitialBackoff {
			t.Errorf("Current() = %v after reset, want %v", b.Current(), InitialBackoff)
		}
		if b.Attempts() != 0 {
			t.Errorf("Attempts() = %d after reset, want 0", b.Attempts())
		}
	})

	t.Run("CustomConfig", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial:    100 * time.Millisecond,
			Max:        500 * time.Millisecond,
			Multiplier: 2.0,
		})

		expected := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			500 * time.Millisecond,
			500 * time.Millisecond,
		}
		for i, exp := range expected {
			if got := b.Next(); got != exp {
				t.Errorf("Attempt %d: got %v, want %v", i, got, exp)
			}
		}
		if b.Attempts() != len(expected) {
			t.Errorf("Attempts() = %d, want %d", b.Attempts(), len(expected))
		}
	})

	t.Run("WaitCancelled", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: time.Hour})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := b.Wait(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Wait() error = %v, want context.Canceled", err)
		}
	})
}

// pipeServer hands out clients connected to in-memory servers. Each
// server writes greeting and then either keeps the stream open or closes
// it.
type pipeServer struct {
	mu       sync.Mutex
	servers  []net.Conn
	greeting string
	dials    atomic.Int32
	failures int32
}

func (p *pipeServer) dial(ctx context.Context) (*client.Client, error) {
	n := p.dials.Add(1)
	if n <= p.failures {
		return nil, errors.New("connection refused")
	}
	clientSide, serverSide := net.Pipe()
	p.mu.Lock()
	p.servers = append(p.servers, serverSide)
	p.mu.Unlock()

	// Drain whatever the client sends.
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := serverSide.Read(buf); err != nil {
				return
			}
		}
	}()
	if p.greeting != "" {
		go serverSide.Write([]byte(p.greeting))
	}

	cfg := client.DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	return client.New(transport.NewClientConn(clientSide, cfg.Transport), cfg), nil
}

func (p *pipeServer) dropLatest() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.servers) > 0 {
		p.servers[len(p.servers)-1].Close()
	}
}

func (p *pipeServer) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.servers {
		s.Close()
	}
}

func fastBackoff() BackoffConfig {
	return BackoffConfig{Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond, Jitter: -1}
}

func TestManagerInitialState(t *testing.T) {
	m := NewManager(Config{Address: "localhost:7624"})
	defer m.Close()

	if m.State() != StateDisconnected {
		t.Errorf("Initial state = %v, want DISCONNECTED", m.State())
	}
	if m.IsConnected() {
		t.Error("IsConnected() = true, want false")
	}
	if err := m.Send(wire.GetProperties("", "")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
}

func TestManagerDeliversMessages(t *testing.T) {
	srv := &pipeServer{greeting: `<message device="X" message="hello"/>`}
	defer srv.closeAll()

	m := NewManager(Config{Dial: srv.dial, Backoff: fastBackoff()})
	defer m.Close()

	got := make(chan wire.Message, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx, func(msg wire.Message) {
			select {
			case got <- msg:
			default:
			}
		})
	}()

	select {
	case msg := <-got:
		if msg.AttrString("message") != "hello" {
			t.Errorf("message = %q", msg.AttrString("message"))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}
	if !m.IsConnected() || m.Client() == nil {
		t.Error("manager not connected while delivering")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if m.State() != StateDisconnected {
		t.Errorf("State() = %v after Run, want DISCONNECTED", m.State())
	}
}

func TestManagerReconnects(t *testing.T) {
	srv := &pipeServer{failures: 2}
	defer srv.closeAll()

	var inits atomic.Int32
	m := NewManager(Config{
		Dial:    srv.dial,
		Backoff: fastBackoff(),
		Init: func(c *client.Client) error {
			inits.Add(1)
			return c.GetProperties("", "")
		},
	})
	defer m.Close()

	connected := make(chan struct{}, 4)
	m.OnConnected(func(*client.Client) { connected <- struct{}{} })

	var retries atomic.Int32
	m.OnReconnecting(func(attempt int, delay time.Duration, err error) {
		retries.Add(1)
		if err == nil {
			t.Error("OnReconnecting called without a cause")
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, nil)

	waitConnected := func() {
		t.Helper()
		select {
		case <-connected:
		case <-time.After(2 * time.Second):
			t.Fatal("not connected")
		}
	}

	waitConnected()
	if got := srv.dials.Load(); got != 3 {
		t.Errorf("dials = %d, want 3 (two failures, one success)", got)
	}
	if m.BackoffAttempts() != 0 {
		t.Errorf("BackoffAttempts() = %d after success, want 0", m.BackoffAttempts())
	}

	srv.dropLatest()
	waitConnected()

	if got := inits.Load(); got != 2 {
		t.Errorf("Init ran %d times, want 2", got)
	}
	if got := retries.Load(); got != 3 {
		t.Errorf("retries = %d, want 3", got)
	}
}

func TestManagerInitFailureRetries(t *testing.T) {
	srv := &pipeServer{}
	defer srv.closeAll()

	var calls atomic.Int32
	m := NewManager(Config{
		Dial:    srv.dial,
		Backoff: fastBackoff(),
		Init: func(c *client.Client) error {
			if calls.Add(1) == 1 {
				return errors.New("driver not ready")
			}
			return nil
		},
	})
	defer m.Close()

	connected := make(chan struct{}, 1)
	m.OnConnected(func(*client.Client) { connected <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, nil)

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("not connected after Init failure")
	}
	if calls.Load() != 2 {
		t.Errorf("Init calls = %d, want 2", calls.Load())
	}
}

func TestManagerClose(t *testing.T) {
	srv := &pipeServer{}
	defer srv.closeAll()

	m := NewManager(Config{Dial: srv.dial, Backoff: fastBackoff()})

	var mu sync.Mutex
	var states []State
	m.OnStateChange(func(_, s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	connected := make(chan struct{}, 1)
	m.OnConnected(func(*client.Client) { connected <- struct{}{} })

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background(), nil) }()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("not connected")
	}

	m.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	if m.State() != StateClosed {
		t.Errorf("State() = %v, want CLOSED", m.State())
	}
	if err := m.Run(context.Background(), nil); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Run() after Close error = %v, want ErrManagerClosed", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateConnecting, StateConnected, StateClosed}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %v, want %v", i, states[i], want[i])
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnecting, "CONNECTING"},
		{StateConnected, "CONNECTED"},
		{StateReconnecting, "RECONNECTING"},
		{StateClosed, "CLOSED"},
		{State(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
