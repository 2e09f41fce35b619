package transport_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/indi-protocol/indi-go/pkg/transport"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// newPipeClient returns a ClientConn over an in-memory pipe and the
// server end of the pipe.
func newPipeClient(t *testing.T, cfg transport.ClientConfig) (*transport.ClientConn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	c := transport.NewClientConn(client, cfg)
	t.Cleanup(func() {
		c.Close()
		server.Close()
	})
	return c, server
}

func writeAsync(conn net.Conn, chunks ...string) <-chan error {
	done := make(chan error, 1)
	go func() {
		for _, c := range chunks {
			if _, err := conn.Write([]byte(c)); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	return done
}

func TestClientConnReceive(t *testing.T) {
	c, server := newPipeClient(t, transport.DefaultClientConfig())

	writeAsync(server, `<setNumberVector device="X" name="Y" state="Ok"><oneNumber name="A">2.5</oneNumber></setNumberVector>`)

	msgs, err := c.Receive(2 * time.Second)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Tag() != wire.TagSetNumberVector {
		t.Errorf("tag = %s", msgs[0].Tag())
	}
}

func TestClientConnReceiveAcrossReads(t *testing.T) {
	c, server := newPipeClient(t, transport.DefaultClientConfig())

	writeAsync(server,
		`<newNumberVector device="X" name="Y">`,
		`<oneNumber name="A">1</oneNumber></newNumberVector>`)

	var got []wire.Message
	for i := 0; i < 2 && len(got) == 0; i++ {
		msgs, err := c.Receive(2 * time.Second)
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		got = append(got, msgs...)
	}
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}
}

func TestClientConnReceiveTimeout(t *testing.T) {
	c, _ := newPipeClient(t, transport.DefaultClientConfig())

	msgs, err := c.Receive(20 * time.Millisecond)
	if err != nil {
		t.Fatalf("Receive() error = %v, want nil on timeout", err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages, want 0", len(msgs))
	}
}

func TestClientConnPeerClose(t *testing.T) {
	c, server := newPipeClient(t, transport.DefaultClientConfig())
	server.Close()

	_, err := c.Receive(time.Second)
	if !errors.Is(err, transport.ErrConnectionClosed) {
		t.Fatalf("Receive() error = %v, want ErrConnectionClosed", err)
	}
	if _, err := c.Receive(time.Second); !errors.Is(err, transport.ErrConnectionClosed) {
		t.Errorf("second Receive() error = %v, want ErrConnectionClosed", err)
	}
}

func TestClientConnOverflowCloses(t *testing.T) {
	cfg := transport.DefaultClientConfig()
	cfg.MaxBufferSize = 32
	c, server := newPipeClient(t, cfg)

	writeAsync(server, `<setBLOBVector device="X" name="Y"><oneBLOB name="Y" size="9" format=".fits">`)

	_, err := c.Receive(2 * time.Second)
	if !errors.Is(err, transport.ErrFramingOverflow) {
		t.Fatalf("Receive() error = %v, want ErrFramingOverflow", err)
	}
	if err := c.Send(wire.GetProperties("", "")); !errors.Is(err, transport.ErrConnectionClosed) {
		t.Errorf("Send() after overflow error = %v, want ErrConnectionClosed", err)
	}
}

func TestClientConnSend(t *testing.T) {
	c, server := newPipeClient(t, transport.DefaultClientConfig())

	lines := make(chan string, 8)
	go func() {
		sc := bufio.NewScanner(server)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	if err := c.Send(wire.GetProperties("CCD Simulator", "")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case line := <-lines:
		want := `<getProperties version="1.7" device="CCD Simulator"></getProperties>`
		if line != want {
			t.Errorf("sent %q, want %q", line, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for data")
	}
}

func TestClientConnSendInvalid(t *testing.T) {
	c, _ := newPipeClient(t, transport.DefaultClientConfig())

	err := c.Send(wire.EnableBLOB("CCD Simulator", "", "Sometimes"))
	if !errors.Is(err, wire.ErrInvalidAttributeValue) {
		t.Errorf("Send() error = %v, want ErrInvalidAttributeValue", err)
	}
}

func TestClientConnDeviceFilter(t *testing.T) {
	cfg := transport.DefaultClientConfig()
	cfg.Device = "B"
	c, server := newPipeClient(t, cfg)

	writeAsync(server, `<message device="A" message="a"/><message device="B" message="b"/>`)

	msgs, err := c.Receive(2 * time.Second)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].Device() != "B" {
		t.Fatalf("got %v, want one message for B", msgs)
	}
}

func TestDialLoopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		received <- strings.TrimSpace(line)
		io.WriteString(conn, `<message device="X" message="hi"/>`)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := transport.Dial(ctx, ln.Addr().String(), transport.DefaultClientConfig())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	if c.ID() == "" {
		t.Error("connection ID is empty")
	}
	if err := c.Send(wire.GetProperties("", "")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := <-received; got != `<getProperties version="1.7"></getProperties>` {
		t.Errorf("server received %q", got)
	}

	msgs, err := c.Receive(2 * time.Second)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].AttrString("message") != "hi" {
		t.Errorf("got %v", msgs)
	}
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := transport.Dial(ctx, addr, transport.DefaultClientConfig()); err == nil {
		t.Fatal("Dial() to a closed port succeeded")
	}
}

func TestAddress(t *testing.T) {
	if got := transport.Address("localhost", 0); got != "localhost:7624" {
		t.Errorf("Address() = %q", got)
	}
	if got := transport.Address("::1", 7625); got != "[::1]:7625" {
		t.Errorf("Address() = %q", got)
	}
}
