package connection

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// startHeartbeatTasks attaches the two cooperative tasks spec §4.4 assigns
// to an active connection: a sender that pings when nothing else has been
// written recently, and a receiver that watches for read silence and
// tears the connection down so the next write-with-reconnect can repair
// it. Both tasks stop when connCtx is cancelled, which happens exactly
// once, from ClearActiveConnectionState.
func (m *Manager) startHeartbeatTasks(connCtx context.Context, state *activeConnectionState) {
	if state.effectiveSendInterval > 0 {
		go m.heartbeatSender(connCtx, state)
	}
	if state.effectiveReceiveInterval > 0 {
		go m.heartbeatReceiver(connCtx, state)
	}
}

// heartbeatSender writes a bare newline every effectiveSendInterval
// unless an outbound frame has been written more recently — any outbound
// frame counts as a heartbeat, per spec §4.4.
func (m *Manager) heartbeatSender(connCtx context.Context, state *activeConnectionState) {
	ticker := time.NewTicker(state.effectiveSendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-connCtx.Done():
			return
		case <-ticker.C:
			if state.timeSinceLastWrite() < state.effectiveSendInterval {
				continue
			}
			if err := state.transport.WriteHeartbeat(); err != nil {
				m.cfg.Logger.Debug("heartbeat write failed", zap.Error(err))
				m.ClearActiveConnectionState(err)
				return
			}
			m.stats.heartbeatsWritten.Add(1)
			state.touchWrite()
		}
	}
}

// heartbeatReceiver polls IsAlive every half receive interval and tears
// the connection down once the time since the last read exceeds the
// receive interval times the tolerance factor, so the next listener
// iteration (or write-with-reconnect call) re-establishes a connection
// instead of silently reading from a dead socket.
func (m *Manager) heartbeatReceiver(connCtx context.Context, state *activeConnectionState) {
	interval := state.effectiveReceiveInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-connCtx.Done():
			return
		case <-ticker.C:
			if !m.IsAlive() {
				m.cfg.Logger.Debug("receive heartbeat timeout", zap.Duration("interval", interval))
				m.ClearActiveConnectionState(ErrConnectionLost)
				return
			}
		}
	}
}
