package connection

import (
	"context"
	"sync/atomic"
	"time"

	"stompclient/discovery"
	"stompclient/transport"
)

// activeConnectionState is a transport plus the bookkeeping the manager
// needs to fence stale writes and stop its heartbeat tasks on loss. At
// most one instance exists at any time, per spec §3.
type activeConnectionState struct {
	transport  transport.Transport
	server     discovery.Server
	generation uint64

	effectiveSendInterval    time.Duration
	effectiveReceiveInterval time.Duration

	lastWriteTime atomic.Int64 // unix nanos; reset by every outbound frame/heartbeat

	cancel context.CancelFunc // stops this connection's heartbeat tasks
}

func newActiveConnectionState(
	tp transport.Transport,
	server discovery.Server,
	generation uint64,
	sendInterval, receiveInterval time.Duration,
	cancel context.CancelFunc,
) *activeConnectionState {
	s := &activeConnectionState{
		transport:                tp,
		server:                   server,
		generation:               generation,
		effectiveSendInterval:    sendInterval,
		effectiveReceiveInterval: receiveInterval,
		cancel:                   cancel,
	}
	s.touchWrite()
	return s
}

func (s *activeConnectionState) touchWrite() {
	s.lastWriteTime.Store(time.Now().UnixNano())
}

func (s *activeConnectionState) timeSinceLastWrite() time.Duration {
	return time.Since(time.Unix(0, s.lastWriteTime.Load()))
}
