package connection

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"stompclient/discovery"
)

// ErrConnectionLost is returned by WriteFrameReconnecting when no
// connection is active after a successful reconnect, and is recorded as
// the reason when the receive heartbeat times out. It is used bare, not
// wrapped around a transport-layer cause.
var ErrConnectionLost = errors.New("connection: connection lost")

// ErrConnectionConfirmationTimeout is a recoverable per-attempt failure:
// CONNECT was sent but no CONNECTED arrived within connect_timeout.
var ErrConnectionConfirmationTimeout = errors.New("connection: timed out waiting for CONNECTED")

// UnsupportedProtocolVersionError is fatal and not retried: the broker
// confirmed a STOMP version other than 1.2.
type UnsupportedProtocolVersionError struct {
	Version string
}

func (e *UnsupportedProtocolVersionError) Error() string {
	return fmt.Sprintf("connection: broker advertised unsupported protocol version %q, want 1.2", e.Version)
}

// FailedAllConnectAttemptsError is fatal: every server failed on every
// retry pass. It carries the per-server failure summary spec §7 requires,
// aggregated with multierr the way the teacher aggregates heterogeneous
// per-call failures elsewhere in its middleware chain.
type FailedAllConnectAttemptsError struct {
	Attempts int
	Causes   error // multierr-combined, one entry per failed (server, pass)
}

func (e *FailedAllConnectAttemptsError) Error() string {
	return fmt.Sprintf("connection: failed to connect to any server after %d attempt(s): %v", e.Attempts, e.Causes)
}

func (e *FailedAllConnectAttemptsError) Unwrap() error { return e.Causes }

// attemptFailures accumulates one error per (server, pass) across a
// connect-attempt loop using multierr.Append, which preserves every
// cause rather than only the last one.
type attemptFailures struct {
	err error
}

func (f *attemptFailures) add(server discovery.Server, cause error) {
	f.err = multierr.Append(f.err, fmt.Errorf("%s:%d: %w", server.Host, server.Port, cause))
}

func (f *attemptFailures) errors() error { return f.err }
