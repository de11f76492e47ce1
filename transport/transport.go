// Package transport defines the byte-stream abstraction the connection
// manager drives, and the two bindings that implement it: plain TCP and
// WebSocket. Neither binding knows anything about STOMP semantics beyond
// moving frame bytes across the wire; reconnection, handshake, and
// subscription bookkeeping live one layer up in package connection.
package transport

import (
	"context"
	"errors"
	"time"

	"stompclient/frame"
)

// ErrConnectionLost is returned by WriteFrame, WriteHeartbeat, and from the
// channel yielded by ReadFrames when the underlying transport breaks.
// Wrapped errors retain the original cause via errors.Is/errors.As.
var ErrConnectionLost = errors.New("transport: connection lost")

// Transport is the capability the connection manager requires of a byte
// stream to a broker: writing frames and heartbeats, and a channel of
// inbound frames paired with any terminal error. TCP and WebSocket
// bindings below are variants of this single capability; the connection
// manager is generic over it.
type Transport interface {
	// WriteFrame serializes and writes a single frame. Safe to call from
	// any goroutine; callers must still serialize their own calls if they
	// require frame-atomicity guarantees beyond a single write (the
	// connection manager is the sole writer in practice).
	WriteFrame(frame.Frame) error

	// WriteHeartbeat writes a single bare newline. Safe to call
	// concurrently with WriteFrame and with itself.
	WriteHeartbeat() error

	// ReadFrames returns a channel of inbound frames. When the transport
	// can no longer read (EOF, reset, parse error) the channel delivers a
	// final ReadResult with a non-nil Err and is then closed; on ctx
	// cancellation it is closed without a final error.
	ReadFrames(ctx context.Context) <-chan ReadResult

	// LastReadTime reports the time of the most recent successful read
	// (including heartbeats), used by the liveness check.
	LastReadTime() time.Time

	// Close releases the underlying connection. Idempotent.
	Close() error
}

// ReadResult is one element of the channel returned by ReadFrames: either
// a successfully parsed frame, or a terminal error (always
// ErrConnectionLost-wrapping).
type ReadResult struct {
	Frame frame.Frame
	Err   error
}

// Dialer opens a Transport to a single host:port. TCPDialer and
// WebSocketDialer implement it; the connection manager holds a single
// Dialer and uses it for every candidate server.
type Dialer interface {
	Dial(ctx context.Context, host string, port int, timeout time.Duration) (Transport, error)
}
