package client

import (
	"context"

	"go.uber.org/zap"

	"stompclient/frame"
	"stompclient/transport"
)

// listenerLoop is the dedicated task spec §4.6 assigns to the client
// facade: acquire whatever transport the manager currently has active,
// drain frames from it until it breaks, then loop back around to
// reconnect. It exits only when ctx is cancelled (Disconnect) or a
// reconnect attempt itself fails.
func (c *Client) listenerLoop(ctx context.Context) {
	defer close(c.listenerDone)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		tp, _, ok := c.manager.CurrentTransport()
		if !ok {
			if err := c.manager.Connect(ctx); err != nil {
				c.cfg.Logger.Error("listener: giving up after failed reconnect", zap.Error(err))
				return
			}
			continue
		}

		c.drainTransport(ctx, tp)
	}
}

// drainTransport reads frames from tp until ctx is cancelled, the read
// side reports ConnectionLost, or handleFrame tears the connection down
// (a protocol error or an unsuppressed handler exception). Control always
// returns to listenerLoop, which re-evaluates CurrentTransport.
func (c *Client) drainTransport(ctx context.Context, tp transport.Transport) {
	results := tp.ReadFrames(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			if res.Err != nil {
				c.manager.ClearActiveConnectionState(res.Err)
				return
			}
			c.manager.RecordFrameRead()
			if c.handleFrame(ctx, res.Frame) {
				return
			}
		}
	}
}

// handleFrame routes one inbound frame and reports whether it tore the
// active connection down, in which case drainTransport should stop
// reading from it.
func (c *Client) handleFrame(ctx context.Context, f frame.Frame) (tornDown bool) {
	switch f.Command {
	case frame.CommandHeartbeat:
		c.manager.RecordHeartbeatRead()
		if c.cfg.OnHeartbeat != nil {
			c.cfg.OnHeartbeat()
		}
		return false

	case frame.CommandMessage:
		if err := c.registry.HandleMessage(ctx, f); err != nil {
			c.cfg.Logger.Error("unsuppressed subscription handler error, reconnecting", zap.Error(err))
			c.manager.ClearActiveConnectionState(err)
			return true
		}
		return false

	case frame.CommandError:
		if c.cfg.OnErrorFrame != nil {
			c.cfg.OnErrorFrame(f)
		}
		return false

	case frame.CommandReceipt:
		if id, ok := f.Headers.Get("receipt-id"); ok {
			c.receipts.resolve(id)
		}
		return false

	case frame.CommandConnected:
		c.cfg.Logger.Warn("protocol error: CONNECTED received mid-stream, reconnecting")
		c.manager.ClearActiveConnectionState(errUnexpectedConnected)
		return true

	default:
		c.cfg.Logger.Debug("discarding unhandled frame", zap.String("command", string(f.Command)))
		return false
	}
}
