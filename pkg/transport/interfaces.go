package transport

import (
	"net"
	"time"

	"github.com/indi-protocol/indi-go/pkg/wire"
)

// MessageSender sends INDI messages.
// Implemented by ClientConn and Connection.
type MessageSender interface {
	Send(m wire.Message) error
}

// ClientConnection represents a polled client-side connection.
// Implemented by ClientConn.
type ClientConnection interface {
	MessageSender

	// ID returns the connection ID used in protocol logs.
	ID() string

	// LocalAddr returns the local network address.
	LocalAddr() net.Addr

	// RemoteAddr returns the remote network address.
	RemoteAddr() net.Addr

	// Receive waits up to timeout for one read and returns the messages
	// it completed.
	Receive(timeout time.Duration) ([]wire.Message, error)

	// SetDevice sets the device filter.
	SetDevice(device string)

	// Close closes the connection.
	Close() error
}

// Compile-time interface satisfaction checks.
var (
	_ ClientConnection = (*ClientConn)(nil)
	_ MessageSender    = (*Connection)(nil)
)
