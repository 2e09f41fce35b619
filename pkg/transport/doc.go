// Package transport provides the INDI client transport.
//
// The transport layer handles:
//   - TCP connections to an INDI server (port 7624 by default)
//   - Reassembly of the undelimited XML stream into messages
//   - Device filtering of received messages
//   - Connection state management
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   wire.Message (typed values)  │
//	├────────────────────────────────┤
//	│   XML elements, no framing     │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Reassembly
//
// INDI messages are sent back to back with no length prefix or delimiter,
// and a single read may end anywhere: inside a tag, an attribute or a
// base64 BLOB payload. The Reassembler buffers bytes until everything it
// holds parses as a sequence of complete elements, then hands all of them
// over at once. The buffer is bounded; exceeding the bound fails the
// connection rather than growing without limit.
//
// Two ways of consuming messages are offered. ClientConn is polled with
// Receive, which suits scripts and probes. Connection runs its own read
// goroutine and reports to a ConnectionHandler.
package transport
