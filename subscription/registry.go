package subscription

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"stompclient/frame"
)

// Registry is the set of live subscriptions plus the empty/non-empty
// signal the client facade waits on during shutdown — ActiveSubscriptions
// in spec §3, modeled after stompman's dataclass of the same purpose.
type Registry struct {
	mu   sync.Mutex
	subs map[string]*Subscription

	// emptySignal is closed while the registry is empty and replaced with
	// a fresh, open channel the moment a subscription is added. Waiting
	// on a channel close is the Go analogue of asyncio.Event.wait().
	emptySignal chan struct{}

	writer writer
	logger *zap.Logger
}

// NewRegistry returns an empty registry whose SUBSCRIBE/ACK/NACK/UNSUBSCRIBE
// frames are written through w.
func NewRegistry(w writer, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	signal := make(chan struct{})
	close(signal) // starts empty
	return &Registry{subs: map[string]*Subscription{}, emptySignal: signal, writer: w, logger: logger}
}

// GetByID returns the subscription with the given id, if still registered.
func (r *Registry) GetByID(id string) (*Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	return s, ok
}

// GetAll returns every live subscription. The returned slice has no
// guaranteed order beyond Go map iteration; callers needing a stable
// replay order should sort by ID or track insertion separately — in
// practice resubscribe order has no observable effect since every
// SUBSCRIBE is independent.
func (r *Registry) GetAll() []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	return out
}

// ContainsByID reports whether id is currently registered.
func (r *Registry) ContainsByID(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[id]
	return ok
}

func (r *Registry) add(s *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[s.ID] = s
	select {
	case <-r.emptySignal: // currently closed (empty); reopen it
		r.emptySignal = make(chan struct{})
	default:
	}
}

func (r *Registry) deleteByID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
	if len(r.subs) == 0 {
		select {
		case <-r.emptySignal: // already closed
		default:
			close(r.emptySignal)
		}
	}
}

// WaitUntilEmpty blocks until the registry has no live subscriptions, or
// ctx is cancelled. Used by the client facade at shutdown so the scope
// does not return until every subscription has been unsubscribed.
func (r *Registry) WaitUntilEmpty(ctx context.Context) error {
	r.mu.Lock()
	signal := r.emptySignal
	r.mu.Unlock()

	select {
	case <-signal:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubscribeOptions configures a new subscription.
type SubscribeOptions struct {
	Headers                  frame.Headers
	OnSuppressedException    func(err error, msg frame.Frame)
	SuppressedExceptionCheck func(error) bool
}

// Subscribe allocates an id, sends SUBSCRIBE via write-with-reconnect,
// records the connection generation at subscribe time, and registers the
// subscription under handler for auto/client/client-individual ack modes.
func (r *Registry) Subscribe(ctx context.Context, destination string, ack AckMode, handler AutoAckHandler, opts SubscribeOptions) (*Subscription, error) {
	sub := &Subscription{
		ID:                       newSubscriptionID(),
		Destination:              destination,
		Headers:                  opts.Headers,
		Ack:                      ack,
		autoHandler:              handler,
		onSuppressedException:    opts.OnSuppressedException,
		suppressedExceptionCheck: opts.SuppressedExceptionCheck,
		writer:                   r.writer,
		logger:                   r.logger,
	}
	if sub.onSuppressedException == nil {
		sub.onSuppressedException = func(error, frame.Frame) {}
	}
	if sub.suppressedExceptionCheck == nil {
		sub.suppressedExceptionCheck = func(error) bool { return false }
	}

	if err := r.writer.WriteFrameReconnecting(ctx, sub.subscribeFrame()); err != nil {
		return nil, err
	}
	sub.generation = r.writer.Generation()
	r.add(sub)
	return sub, nil
}

// SubscribeWithManualAck is identical to Subscribe but defaults
// ack=client-individual and hands the caller's handler an
// AckableMessageFrame per message instead of auto-acking.
func (r *Registry) SubscribeWithManualAck(ctx context.Context, destination string, handler ManualAckHandler, headers frame.Headers) (*Subscription, error) {
	sub := &Subscription{
		ID:            newSubscriptionID(),
		Destination:   destination,
		Headers:       headers,
		Ack:           AckClientIndividual,
		manualHandler: handler,
		writer:        r.writer,
		logger:        r.logger,
	}

	if err := r.writer.WriteFrameReconnecting(ctx, sub.subscribeFrame()); err != nil {
		return nil, err
	}
	sub.generation = r.writer.Generation()
	r.add(sub)
	return sub, nil
}

// Unsubscribe removes sub from the registry — setting the empty signal
// if it was the last one — then issues UNSUBSCRIBE via
// write-without-reconnect; failures are ignored, since the broker is
// entitled to assume the client is gone once the transport is down.
func (r *Registry) Unsubscribe(sub *Subscription) {
	r.deleteByID(sub.ID)
	_ = r.writer.MaybeWriteFrame(frame.New(frame.CommandUnsubscribe, frame.Headers{"id": sub.ID}))
}

// UnsubscribeAll unsubscribes every live subscription, used when the
// client scope exits.
func (r *Registry) UnsubscribeAll() {
	for _, sub := range r.GetAll() {
		r.Unsubscribe(sub)
	}
}

// Resubscribe replays SUBSCRIBE for every live subscription after a
// fresh CONNECTED, in whatever order GetAll returns. Each subscription's
// captured generation is deliberately left untouched — only messages
// delivered post-reconnect should ever be ackable, so pre-reconnect
// AckableMessageFrames must go stale.
func (r *Registry) Resubscribe(ctx context.Context) error {
	for _, sub := range r.GetAll() {
		if err := r.writer.MaybeWriteFrame(sub.subscribeFrame()); err != nil {
			return err
		}
	}
	return nil
}

// HandleMessage routes an inbound MESSAGE frame to its subscription
// (looked up via the `subscription` header) and runs the handler under
// the subscription's ack policy. A MESSAGE with no matching subscription
// is discarded and logged at DEBUG, per spec §4.6.
func (r *Registry) HandleMessage(ctx context.Context, msg frame.Frame) error {
	subID, ok := msg.Headers.Get("subscription")
	if !ok {
		r.logger.Debug("MESSAGE frame missing subscription header, discarding")
		return nil
	}
	sub, ok := r.GetByID(subID)
	if !ok {
		r.logger.Debug("MESSAGE frame for unknown subscription, discarding", zap.String("subscription", subID))
		return nil
	}

	if sub.manualHandler != nil {
		return sub.manualHandler(ctx, AckableMessageFrame{Frame: msg, subscriptionID: sub.ID, registry: r})
	}
	return r.runAutoHandler(ctx, sub, msg)
}

func (r *Registry) runAutoHandler(ctx context.Context, sub *Subscription, msg frame.Frame) error {
	err := sub.autoHandler(ctx, msg)
	if err == nil {
		if sub.shouldHandleAckNack() {
			return sub.ack(msg, r)
		}
		return nil
	}

	if sub.suppressedExceptionCheck(err) {
		if sub.shouldHandleAckNack() {
			if nackErr := sub.nack(msg, r); nackErr != nil {
				return nackErr
			}
		}
		sub.onSuppressedException(err, msg)
		return nil
	}

	return fmt.Errorf("subscription %s: unsuppressed handler error: %w", sub.ID, err)
}
