// Package subscription implements the ack-mode state machine and the
// registry of live subscriptions that must be replayed on reconnect,
// grounded directly on stompman's subscription.py.
package subscription

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stompclient/frame"
)

// AckMode is one of the three ack policies spec §3 names.
type AckMode string

const (
	AckAuto             AckMode = "auto"
	AckClient           AckMode = "client"
	AckClientIndividual AckMode = "client-individual"
)

// writer is the subset of connection.Manager a subscription needs: write
// with reconnect for SUBSCRIBE, write-without-reconnect for
// UNSUBSCRIBE/ACK/NACK, and the current generation for fencing.
type writer interface {
	WriteFrameReconnecting(ctx context.Context, f frame.Frame) error
	MaybeWriteFrame(f frame.Frame) error
	Generation() uint64
}

// AutoAckHandler processes a MESSAGE frame under auto or client(-individual)
// ack modes; the registry sends ACK/NACK on its behalf.
type AutoAckHandler func(ctx context.Context, msg frame.Frame) error

// ManualAckHandler processes a MESSAGE frame and is responsible for
// calling Ack/Nack on the AckableMessageFrame itself.
type ManualAckHandler func(ctx context.Context, msg AckableMessageFrame) error

// Subscription is one live SUBSCRIBE: identity, destination, ack policy,
// and (exactly one of) an auto-ack or manual-ack handler.
type Subscription struct {
	ID          string
	Destination string
	Headers     frame.Headers
	Ack         AckMode
	generation  uint64

	autoHandler   AutoAckHandler
	manualHandler ManualAckHandler

	onSuppressedException    func(err error, msg frame.Frame)
	suppressedExceptionCheck func(error) bool

	writer writer
	logger *zap.Logger
}

func (s *Subscription) shouldHandleAckNack() bool {
	return s.Ack == AckClient || s.Ack == AckClientIndividual
}

// subscribeFrame builds the SUBSCRIBE frame for s, used both on first
// subscribe and on resubscribe-after-reconnect.
func (s *Subscription) subscribeFrame() frame.Frame {
	headers := s.Headers.Clone()
	headers["id"] = s.ID
	headers["destination"] = s.Destination
	headers["ack"] = string(s.Ack)
	return frame.New(frame.CommandSubscribe, headers)
}

// ack sends ACK for msg if the subscription is still live, its captured
// generation matches the connection's current generation, and msg has an
// `ack` header. Otherwise it is a silent, DEBUG-logged no-op — this is
// the fencing spec §4.5 requires to prevent dangling acks after
// reconnection.
func (s *Subscription) ack(msg frame.Frame, registry *Registry) error {
	return s.ackOrNack(msg, registry, frame.CommandAck)
}

func (s *Subscription) nack(msg frame.Frame, registry *Registry) error {
	return s.ackOrNack(msg, registry, frame.CommandNack)
}

func (s *Subscription) ackOrNack(msg frame.Frame, registry *Registry, command frame.Command) error {
	if !registry.ContainsByID(s.ID) {
		s.logger.Debug("ack/nack suppressed: subscription no longer registered", zap.String("id", s.ID))
		return nil
	}
	if s.generation != s.writer.Generation() {
		s.logger.Debug("ack/nack suppressed: connection changed since message was received",
			zap.String("id", s.ID), zap.Uint64("captured_generation", s.generation), zap.Uint64("current_generation", s.writer.Generation()))
		return nil
	}
	ackID, ok := msg.Headers.Get("ack")
	if !ok {
		s.logger.Debug("ack/nack suppressed: message has no ack header", zap.String("id", s.ID))
		return nil
	}
	subscriptionID, _ := msg.Headers.Get("subscription")
	return s.writer.MaybeWriteFrame(frame.New(command, frame.Headers{
		"id": ackID, "subscription": subscriptionID,
	}))
}

// AckableMessageFrame wraps a MESSAGE frame delivered to a manual-ack
// subscription's handler with Ack/Nack methods that delegate back to the
// owning subscription, looked up by id in the registry rather than held
// by direct reference — the non-owning-index approach spec §9 prescribes
// for languages without GC-managed cyclic references.
type AckableMessageFrame struct {
	frame.Frame
	subscriptionID string
	registry       *Registry
}

// Ack acknowledges the message. A no-op if the subscription's generation
// has gone stale or the subscription was removed since the message was
// received.
func (a AckableMessageFrame) Ack(ctx context.Context) error {
	sub, ok := a.registry.GetByID(a.subscriptionID)
	if !ok {
		return nil
	}
	return sub.ack(a.Frame, a.registry)
}

// Nack negatively acknowledges the message, same staleness rules as Ack.
func (a AckableMessageFrame) Nack(ctx context.Context) error {
	sub, ok := a.registry.GetByID(a.subscriptionID)
	if !ok {
		return nil
	}
	return sub.nack(a.Frame, a.registry)
}

// newSubscriptionID returns a process-unique identifier, per spec §3.
func newSubscriptionID() string {
	return uuid.NewString()
}
