// Package client implements the STOMP client facade: the scoped resource
// that owns the connection manager, the subscription registry, and the
// listener loop that drives both from whatever transport is currently
// active.
//
// Call flow for a send:
//
//	Send(ctx, "DLQ", body, opts)
//	  → build headers (content-length, content-type, transaction, user overrides)
//	  → Manager.WriteFrameReconnecting  → reconnects and resubscribes on loss
//
// Call flow for inbound messages:
//
//	listenerLoop reads from Manager.CurrentTransport()
//	  → MESSAGE  → Registry.HandleMessage → subscription handler → ACK/NACK
//	  → RECEIPT  → resolves a receiptWaiters entry (Disconnect)
//	  → ERROR    → OnErrorFrame callback, connection stays up
//	  → HEARTBEAT → OnHeartbeat callback, no-op otherwise
package client

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stompclient/codec"
	"stompclient/connection"
	"stompclient/discovery"
	"stompclient/frame"
	"stompclient/loadbalance"
	"stompclient/middleware"
	"stompclient/subscription"
	"stompclient/transport"
)

// Config configures a Client. See spec §6 for the option table this
// mirrors: servers, heartbeat, connect_retry_attempts,
// connect_retry_interval, connect_timeout, disconnect_confirmation_timeout,
// on_error_frame, on_heartbeat.
type Config struct {
	Servers   []discovery.Server
	Discovery discovery.Discovery // optional; if set, Watch updates override Servers

	Dialer transport.Dialer

	HeartbeatClient      [2]int
	ConnectRetryAttempts int
	ConnectRetryInterval time.Duration
	ConnectTimeout       time.Duration

	DisconnectConfirmationTimeout time.Duration
	ToleranceFactor               float64

	Balancer loadbalance.Balancer
	Logger   *zap.Logger

	// Middlewares wraps every auto-ack Subscribe handler in this chain
	// before it reaches the subscription registry — outermost first, per
	// middleware.Chain. Empty by default, which is a pass-through.
	Middlewares []middleware.Middleware

	OnErrorFrame func(f frame.Frame)
	OnHeartbeat  func()
}

func (c Config) withDefaults() Config {
	if c.DisconnectConfirmationTimeout <= 0 {
		c.DisconnectConfirmationTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Client is the scoped STOMP client facade: Connect establishes the first
// connection and starts the listener loop; Disconnect tears both down.
type Client struct {
	cfg      Config
	manager  *connection.Manager
	registry *subscription.Registry
	receipts *receiptWaiters

	listenerCancel context.CancelFunc
	listenerDone   chan struct{}
}

// New wires a Manager and a subscription Registry together, resolving
// their mutual dependency via Manager.SetOnConnected: the registry needs
// the manager as its writer, and the manager's resubscribe-on-reconnect
// hook needs the registry, so the hook is installed after both exist.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()

	c := &Client{cfg: cfg, receipts: newReceiptWaiters()}
	c.manager = connection.NewManager(connection.Config{
		Dialer:               cfg.Dialer,
		HeartbeatClient:      cfg.HeartbeatClient,
		ConnectRetryAttempts: cfg.ConnectRetryAttempts,
		ConnectRetryInterval: cfg.ConnectRetryInterval,
		ConnectTimeout:       cfg.ConnectTimeout,
		ToleranceFactor:      cfg.ToleranceFactor,
		Balancer:             cfg.Balancer,
		Logger:               cfg.Logger,
	}, cfg.Servers)

	c.registry = subscription.NewRegistry(c.manager, cfg.Logger)
	c.manager.SetOnConnected(func(ctx context.Context, generation uint64) error {
		return c.registry.Resubscribe(ctx)
	})

	return c
}

// Connect performs the first CONNECT/CONNECTED handshake and starts the
// listener loop. A failure here, after exhausting connect_retry_attempts,
// returns *connection.FailedAllConnectAttemptsError before any user code
// that depends on a live connection runs.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.manager.Connect(ctx); err != nil {
		return err
	}

	listenerCtx, cancel := context.WithCancel(context.Background())
	c.listenerCancel = cancel
	c.listenerDone = make(chan struct{})
	go c.listenerLoop(listenerCtx)

	if c.cfg.Discovery != nil {
		go c.watchDiscovery(listenerCtx)
	}

	return nil
}

// Disconnect unsubscribes everything, sends DISCONNECT with a receipt
// header and waits up to disconnect_confirmation_timeout for the matching
// RECEIPT, then stops the listener and closes the transport — always,
// even if the receipt never arrives.
func (c *Client) Disconnect(ctx context.Context) error {
	c.registry.UnsubscribeAll()
	waitCtx, cancelWait := context.WithTimeout(ctx, c.cfg.DisconnectConfirmationTimeout)
	_ = c.registry.WaitUntilEmpty(waitCtx)
	cancelWait()

	receiptID := uuid.NewString()
	waiter := c.receipts.register(receiptID)
	_ = c.manager.MaybeWriteFrame(frame.New(frame.CommandDisconnect, frame.Headers{"receipt": receiptID}))

	select {
	case <-waiter:
	case <-time.After(c.cfg.DisconnectConfirmationTimeout):
		c.receipts.forget(receiptID)
		c.cfg.Logger.Debug("disconnect receipt timed out", zap.String("receipt-id", receiptID))
	}

	if c.listenerCancel != nil {
		c.listenerCancel()
	}
	if c.listenerDone != nil {
		<-c.listenerDone
	}
	c.manager.ClearActiveConnectionState(errClientDisconnected)
	return nil
}

// SendOptions controls the optional headers attached to a SEND frame.
type SendOptions struct {
	Transaction           string
	ContentType           string
	SuppressContentLength bool
	Headers               frame.Headers
}

// Send issues a SEND frame. content-length is computed from len(body)
// unless SuppressContentLength is set; content-type and transaction are
// added only if provided. User-supplied Headers are merged last and may
// override any computed header except destination.
func (c *Client) Send(ctx context.Context, destination string, body []byte, opts SendOptions) error {
	headers := frame.Headers{"destination": destination}
	if !opts.SuppressContentLength {
		headers["content-length"] = strconv.Itoa(len(body))
	}
	if opts.ContentType != "" {
		headers["content-type"] = opts.ContentType
	}
	if opts.Transaction != "" {
		headers["transaction"] = opts.Transaction
	}
	for k, v := range opts.Headers {
		if k == "destination" {
			continue
		}
		headers[k] = v
	}
	return c.manager.WriteFrameReconnecting(ctx, frame.NewWithBody(frame.CommandSend, headers, body))
}

// Subscribe registers a destination under auto/client/client-individual
// ack. handler is wrapped in c.cfg.Middlewares (logging, timeout, rate
// limiting, retry) before it reaches the registry; with no middlewares
// configured this is a pass-through to the handler as given.
func (c *Client) Subscribe(ctx context.Context, destination string, ack subscription.AckMode, handler subscription.AutoAckHandler, opts subscription.SubscribeOptions) (*subscription.Subscription, error) {
	wrapped := middleware.Chain(c.cfg.Middlewares...)(middleware.HandlerFunc(handler))
	return c.registry.Subscribe(ctx, destination, ack, subscription.AutoAckHandler(wrapped), opts)
}

// SubscribeWithManualAck registers a client-individual subscription whose
// handler is responsible for calling Ack/Nack itself.
func (c *Client) SubscribeWithManualAck(ctx context.Context, destination string, handler subscription.ManualAckHandler, headers frame.Headers) (*subscription.Subscription, error) {
	return c.registry.SubscribeWithManualAck(ctx, destination, handler, headers)
}

// Unsubscribe removes sub and best-effort sends UNSUBSCRIBE.
func (c *Client) Unsubscribe(sub *subscription.Subscription) {
	c.registry.Unsubscribe(sub)
}

// SendEncoded marshals v with the given codec and sends it, setting
// content-type from the codec unless the caller already supplied one.
func (c *Client) SendEncoded(ctx context.Context, destination string, v any, enc codec.Codec, opts SendOptions) error {
	body, err := enc.Marshal(v)
	if err != nil {
		return err
	}
	if opts.ContentType == "" {
		opts.ContentType = enc.ContentType()
	}
	return c.Send(ctx, destination, body, opts)
}

// DecodeBody unmarshals a MESSAGE/SEND frame's body with dec into v.
func DecodeBody(f frame.Frame, dec codec.Codec, v any) error {
	return dec.Unmarshal(f.Body, v)
}

// Stats returns a point-in-time snapshot of connection counters.
func (c *Client) Stats() connection.Stats { return c.manager.Stats() }

// IsAlive reports whether the current connection has read data recently
// enough to trust it's still live; see spec §4.3.
func (c *Client) IsAlive() bool { return c.manager.IsAlive() }

func (c *Client) watchDiscovery(ctx context.Context) {
	updates, err := c.cfg.Discovery.Watch(ctx)
	if err != nil {
		c.cfg.Logger.Warn("discovery watch failed to start", zap.Error(err))
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case servers, ok := <-updates:
			if !ok {
				return
			}
			c.manager.UpdateServers(servers)
		}
	}
}
