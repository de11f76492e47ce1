// Package connection implements the STOMP connection manager: the
// connect-attempt loop over candidate servers, the CONNECT/CONNECTED
// handshake, write-with-reconnect and write-without-reconnect, the
// liveness check, and the heartbeat tasks attached to whichever
// transport is currently active.
//
// At most one activeConnectionState exists at a time; the manager is the
// sole owner of the active transport handle. Its internal mutex guards
// that connection state only and is not held while writing: concurrent
// callers of the write paths are serialized by each transport's own write
// mutex, the way the teacher's ClientTransport serializes writers with
// `sending sync.Mutex`.
package connection

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"stompclient/discovery"
	"stompclient/frame"
	"stompclient/loadbalance"
	"stompclient/transport"
)

// Config configures a Manager. Mirrors the `servers`, `heartbeat`,
// `connect_retry_attempts`, `connect_retry_interval`, `connect_timeout`
// options of spec §6.
type Config struct {
	Dialer transport.Dialer

	// HeartbeatClient is (c_x, c_y) in milliseconds: desired send interval,
	// willing-to-receive interval. Default (1000, 1000).
	HeartbeatClient [2]int

	ConnectRetryAttempts int           // >= 1
	ConnectRetryInterval time.Duration // multiplied by pass index (linear backoff)
	ConnectTimeout       time.Duration
	ToleranceFactor      float64 // is_alive tolerance multiplier; default 2

	Balancer loadbalance.Balancer // optional; nil uses plain ring order

	Logger *zap.Logger

	// OnConnected is invoked synchronously after a new CONNECTED is
	// confirmed and the new ActiveConnectionState is published, before
	// Connect returns. The subscription registry's Resubscribe method is
	// wired in here by the client facade to satisfy spec §4.5's
	// resubscribe-on-reconnect requirement.
	OnConnected func(ctx context.Context, generation uint64) error
}

func (c Config) withDefaults() Config {
	if c.HeartbeatClient == [2]int{} {
		c.HeartbeatClient = [2]int{1000, 1000}
	}
	if c.ConnectRetryAttempts <= 0 {
		c.ConnectRetryAttempts = 1
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ToleranceFactor < 2 {
		c.ToleranceFactor = 2
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Manager owns at most one active transport to a STOMP broker at a time.
type Manager struct {
	cfg  Config
	ring *loadbalance.ServerRing

	mu     sync.Mutex
	active *activeConnectionState

	generationCounter uint64
	stats             statsCounters
}

// NewManager returns a Manager that will dial from servers, trying them
// in order and rotating on failure.
func NewManager(cfg Config, servers []discovery.Server) *Manager {
	return &Manager{
		cfg:  cfg.withDefaults(),
		ring: loadbalance.NewServerRing(servers),
	}
}

// UpdateServers replaces the candidate server list, e.g. in response to a
// discovery.Discovery.Watch update.
func (m *Manager) UpdateServers(servers []discovery.Server) {
	m.ring.Reset(servers)
}

// SetOnConnected installs the post-CONNECTED hook after construction. The
// client facade uses this to wire subscription.Registry.Resubscribe in
// once both the manager and the registry it owns exist, since the
// registry's constructor needs the manager as its writer.
func (m *Manager) SetOnConnected(fn func(ctx context.Context, generation uint64) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.OnConnected = fn
}

// Stats returns a point-in-time snapshot of connection counters.
func (m *Manager) Stats() Stats { return m.stats.snapshot() }

// Connect runs the connect-attempt loop described in spec §4.3: try every
// candidate server in order; a failed server rotates to the end so a
// different server is tried first next pass; after ConnectRetryAttempts
// full passes with no success, return FailedAllConnectAttemptsError
// carrying the per-server failure summary. Between passes it sleeps
// ConnectRetryInterval * pass_index (linear backoff). A broker that
// confirms a protocol version other than 1.2 ends the loop at once with
// *UnsupportedProtocolVersionError.
func (m *Manager) Connect(ctx context.Context) error {
	var failures attemptFailures

	for pass := 1; pass <= m.cfg.ConnectRetryAttempts; pass++ {
		candidates := m.candidatesForPass()

		for _, server := range candidates {
			m.stats.connectAttempts.Add(1)

			if err := m.connectOnce(ctx, server); err != nil {
				var versionErr *UnsupportedProtocolVersionError
				if errors.As(err, &versionErr) {
					return err
				}
				m.cfg.Logger.Debug("connect attempt failed",
					zap.String("host", server.Host), zap.Int("port", server.Port),
					zap.Int("pass", pass), zap.Error(err))
				failures.add(server, err)
				m.ring.RotateHeadToEnd(server)
				continue
			}

			m.ring.RotateHeadToEnd(server)
			return nil
		}

		if pass < m.cfg.ConnectRetryAttempts {
			select {
			case <-time.After(m.cfg.ConnectRetryInterval * time.Duration(pass)):
			case <-ctx.Done():
				failures.add(discovery.Server{}, ctx.Err())
				return &FailedAllConnectAttemptsError{Attempts: pass, Causes: failures.errors()}
			}
		}
	}

	return &FailedAllConnectAttemptsError{Attempts: m.cfg.ConnectRetryAttempts, Causes: failures.errors()}
}

func (m *Manager) candidatesForPass() []discovery.Server {
	servers := m.ring.Snapshot()
	if m.cfg.Balancer == nil || len(servers) == 0 {
		return servers
	}
	// Reorder the pass starting from the balancer's current pick, then
	// fall through to the rest of the ring in its existing order.
	picked, err := m.cfg.Balancer.Pick(servers)
	if err != nil {
		return servers
	}
	ordered := make([]discovery.Server, 0, len(servers))
	ordered = append(ordered, *picked)
	for _, s := range servers {
		if s != *picked {
			ordered = append(ordered, s)
		}
	}
	return ordered
}

// connectOnce dials a single server, performs the CONNECT/CONNECTED
// handshake, and on success publishes a new activeConnectionState and
// starts its heartbeat tasks.
func (m *Manager) connectOnce(ctx context.Context, server discovery.Server) error {
	dialCtx, cancelDial := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancelDial()

	tp, err := m.cfg.Dialer.Dial(dialCtx, server.Host, server.Port, m.cfg.ConnectTimeout)
	if err != nil {
		return err
	}

	connectFrame := frame.New(frame.CommandConnect, frame.Headers{
		"accept-version": "1.2",
		"host":           server.Host,
		"login":          server.Login,
		"passcode":       server.Passcode,
		"heart-beat":     fmt.Sprintf("%d,%d", m.cfg.HeartbeatClient[0], m.cfg.HeartbeatClient[1]),
	})
	if err := tp.WriteFrame(connectFrame); err != nil {
		tp.Close()
		return err
	}

	handshakeCtx, cancelHandshake := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancelHandshake()

	connected, err := awaitConnected(handshakeCtx, tp)
	if err != nil {
		tp.Close()
		return err
	}

	serverHeartbeat, _ := connected.Headers.Get("heart-beat")
	sx, sy := parseHeartbeatHeader(serverHeartbeat)
	sendInterval := effectiveInterval(m.cfg.HeartbeatClient[0], sy)
	receiveInterval := effectiveInterval(m.cfg.HeartbeatClient[1], sx)

	connCtx, cancel := context.WithCancel(context.Background())
	generation := m.nextGeneration()
	state := newActiveConnectionState(tp, server, generation, sendInterval, receiveInterval, cancel)

	m.mu.Lock()
	m.active = state
	m.mu.Unlock()

	m.startHeartbeatTasks(connCtx, state)

	m.cfg.Logger.Info("connected",
		zap.String("host", server.Host), zap.Int("port", server.Port),
		zap.Uint64("generation", generation),
		zap.Duration("send_interval", sendInterval), zap.Duration("receive_interval", receiveInterval))

	m.mu.Lock()
	onConnected := m.cfg.OnConnected
	m.mu.Unlock()
	if onConnected != nil {
		if err := onConnected(ctx, generation); err != nil {
			m.cfg.Logger.Warn("OnConnected hook failed", zap.Error(err))
		}
	}

	return nil
}

// awaitConnected drains frames (discarding HEARTBEATs) until CONNECTED
// arrives, a protocol error frame is seen, or ctx expires.
func awaitConnected(ctx context.Context, tp transport.Transport) (frame.Frame, error) {
	results := tp.ReadFrames(ctx)
	for {
		select {
		case <-ctx.Done():
			return frame.Frame{}, ErrConnectionConfirmationTimeout
		case res, ok := <-results:
			if !ok {
				return frame.Frame{}, ErrConnectionConfirmationTimeout
			}
			if res.Err != nil {
				return frame.Frame{}, res.Err
			}
			if res.Frame.IsHeartbeat() {
				continue
			}
			if res.Frame.Command != frame.CommandConnected {
				return frame.Frame{}, fmt.Errorf("connection: expected CONNECTED, got %s", res.Frame.Command)
			}
			if version, _ := res.Frame.Headers.Get("version"); version != "1.2" {
				return frame.Frame{}, &UnsupportedProtocolVersionError{Version: version}
			}
			return res.Frame, nil
		}
	}
}

func (m *Manager) nextGeneration() uint64 {
	m.generationCounter++
	return m.generationCounter
}

// parseHeartbeatHeader parses a "cx,cy" heart-beat header value, returning
// (0, 0) for a missing or malformed header.
func parseHeartbeatHeader(v string) (x, y int) {
	parts := strings.SplitN(v, ",", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	x, errX := strconv.Atoi(strings.TrimSpace(parts[0]))
	y, errY := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errX != nil || errY != nil {
		return 0, 0
	}
	return x, y
}

// effectiveInterval implements spec §3's heartbeat negotiation: value 0
// from either side disables that direction.
func effectiveInterval(mine, theirs int) time.Duration {
	if mine == 0 || theirs == 0 {
		return 0
	}
	ms := mine
	if theirs > ms {
		ms = theirs
	}
	return time.Duration(ms) * time.Millisecond
}

// CurrentTransport returns the active transport and its generation, or
// ok=false if no connection is currently active. The listener loop
// (owned by the client facade, per spec §4.6) reads frames directly from
// this transport.
func (m *Manager) CurrentTransport() (tp transport.Transport, generation uint64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, 0, false
	}
	return m.active.transport, m.active.generation, true
}

// Generation returns the current connection generation, or 0 if no
// connection is currently active.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return 0
	}
	return m.active.generation
}

// ClearActiveConnectionState records the failure cause and destroys the
// active connection: it stops the heartbeat tasks, closes the transport,
// and leaves the manager with no active connection. The next
// WriteFrameReconnecting call re-enters the connect loop.
func (m *Manager) ClearActiveConnectionState(reason error) {
	m.mu.Lock()
	state := m.active
	m.active = nil
	m.mu.Unlock()

	if state == nil {
		return
	}
	state.cancel()
	state.transport.Close()
	m.cfg.Logger.Debug("active connection cleared", zap.Error(reason))
}

// WriteFrameReconnecting writes frame on the current active connection;
// on connection loss it clears the active state, re-enters the connect
// loop, then retries the write once against the new connection. It is
// used for frames that must not be silently dropped: SUBSCRIBE on first
// subscribe, SEND, BEGIN and COMMIT. Resubscribe and ack/nack go through
// MaybeWriteFrame.
func (m *Manager) WriteFrameReconnecting(ctx context.Context, f frame.Frame) error {
	if tp, _, ok := m.activeTransport(); ok {
		err := m.writeAndTrack(tp, f)
		if err == nil {
			return nil
		}
		m.ClearActiveConnectionState(err)
	}

	m.stats.reconnects.Add(1)
	if err := m.Connect(ctx); err != nil {
		return err
	}

	tp, _, ok := m.activeTransport()
	if !ok {
		return ErrConnectionLost
	}
	return m.writeAndTrack(tp, f)
}

// MaybeWriteFrame writes frame if a live connection exists, else silently
// drops it. Used for UNSUBSCRIBE/ACK/NACK, where resurrecting a
// connection to deliver them is not worth the cost: the broker already
// assumes the client is gone once the transport drops.
func (m *Manager) MaybeWriteFrame(f frame.Frame) error {
	tp, _, ok := m.activeTransport()
	if !ok {
		m.cfg.Logger.Debug("dropped frame: no active connection", zap.String("command", string(f.Command)))
		return nil
	}
	if err := m.writeAndTrack(tp, f); err != nil {
		m.ClearActiveConnectionState(err)
		m.cfg.Logger.Debug("dropped frame: write failed", zap.String("command", string(f.Command)), zap.Error(err))
		return nil
	}
	return nil
}

func (m *Manager) writeAndTrack(tp transport.Transport, f frame.Frame) error {
	if err := tp.WriteFrame(f); err != nil {
		return err
	}
	m.stats.framesWritten.Add(1)
	m.mu.Lock()
	if m.active != nil {
		m.active.touchWrite()
	}
	m.mu.Unlock()
	return nil
}

func (m *Manager) activeTransport() (transport.Transport, *activeConnectionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, nil, false
	}
	return m.active.transport, m.active, true
}

// RecordFrameRead and RecordHeartbeatRead let the listener loop (which owns
// the read side of the active transport) feed the same Stats snapshot the
// manager exposes for writes, since reads happen outside the manager.
func (m *Manager) RecordFrameRead()     { m.stats.framesRead.Add(1) }
func (m *Manager) RecordHeartbeatRead() { m.stats.heartbeatsRead.Add(1) }

// IsAlive returns true iff a live connection exists and the time since
// its last read does not exceed the effective receive interval times the
// tolerance factor. An effective receive interval of 0 disables the
// timeout: the connection is considered alive as long as it exists.
func (m *Manager) IsAlive() bool {
	m.mu.Lock()
	state := m.active
	m.mu.Unlock()
	if state == nil {
		return false
	}
	if state.effectiveReceiveInterval == 0 {
		return true
	}
	tolerance := time.Duration(float64(state.effectiveReceiveInterval) * m.cfg.ToleranceFactor)
	return time.Since(state.transport.LastReadTime()) <= tolerance
}
