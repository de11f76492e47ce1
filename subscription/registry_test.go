package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stompclient/frame"
)

// fakeWriter is a minimal writer double recording every frame it's asked
// to write and letting tests control the reported generation.
type fakeWriter struct {
	mu         sync.Mutex
	written    []frame.Frame
	generation uint64
	writeErr   error
}

func (w *fakeWriter) WriteFrameReconnecting(ctx context.Context, f frame.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr != nil {
		return w.writeErr
	}
	w.written = append(w.written, f)
	return nil
}

func (w *fakeWriter) MaybeWriteFrame(f frame.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, f)
	return nil
}

func (w *fakeWriter) Generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation
}

func (w *fakeWriter) commands() []frame.Command {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]frame.Command, len(w.written))
	for i, f := range w.written {
		out[i] = f.Command
	}
	return out
}

func TestSubscribeSendsSubscribeFrame(t *testing.T) {
	w := &fakeWriter{generation: 1}
	r := NewRegistry(w, nil)

	sub, err := r.Subscribe(context.Background(), "DLQ", AckClient, func(context.Context, frame.Frame) error { return nil }, SubscribeOptions{})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if cmds := w.commands(); len(cmds) != 1 || cmds[0] != frame.CommandSubscribe {
		t.Fatalf("expected a single SUBSCRIBE, got %v", cmds)
	}
	if !r.ContainsByID(sub.ID) {
		t.Fatal("expected subscription to be registered")
	}
}

func TestUnsubscribeEmptiesRegistryAndSignals(t *testing.T) {
	w := &fakeWriter{generation: 1}
	r := NewRegistry(w, nil)
	sub, err := r.Subscribe(context.Background(), "DLQ", AckAuto, func(context.Context, frame.Frame) error { return nil }, SubscribeOptions{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// non-empty: WaitUntilEmpty must not return yet.
	done := make(chan error, 1)
	go func() { done <- r.WaitUntilEmpty(ctx) }()
	select {
	case <-done:
		t.Fatal("WaitUntilEmpty returned while registry still has a subscription")
	case <-time.After(20 * time.Millisecond):
	}

	r.Unsubscribe(sub)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitUntilEmpty: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitUntilEmpty did not return after last unsubscribe")
	}
}

func TestClientIndividualAckOnSuccessAndFailure(t *testing.T) {
	suppressed := errors.New("suppressed boom")

	w := &fakeWriter{generation: 1}
	r := NewRegistry(w, nil)

	var suppressedCalls int
	var lastErr error
	fail := false

	sub, err := r.Subscribe(context.Background(), "q", AckClientIndividual,
		func(ctx context.Context, msg frame.Frame) error {
			if fail {
				return suppressed
			}
			return nil
		},
		SubscribeOptions{
			OnSuppressedException:    func(err error, msg frame.Frame) { suppressedCalls++; lastErr = err },
			SuppressedExceptionCheck: func(err error) bool { return errors.Is(err, suppressed) },
		})
	if err != nil {
		t.Fatal(err)
	}

	success := frame.New(frame.CommandMessage, frame.Headers{"subscription": sub.ID, "ack": "a1", "message-id": "m1"})
	if err := r.HandleMessage(context.Background(), success); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	cmds := w.commands()
	if len(cmds) != 2 || cmds[1] != frame.CommandAck {
		t.Fatalf("expected SUBSCRIBE then ACK, got %v", cmds)
	}

	fail = true
	failureMsg := frame.New(frame.CommandMessage, frame.Headers{"subscription": sub.ID, "ack": "a2", "message-id": "m2"})
	if err := r.HandleMessage(context.Background(), failureMsg); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	cmds = w.commands()
	if len(cmds) != 3 || cmds[2] != frame.CommandNack {
		t.Fatalf("expected NACK appended, got %v", cmds)
	}
	if suppressedCalls != 1 || !errors.Is(lastErr, suppressed) {
		t.Fatalf("expected on_suppressed_exception called once with suppressed error, got calls=%d err=%v", suppressedCalls, lastErr)
	}
}

func TestUnsuppressedHandlerErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	w := &fakeWriter{generation: 1}
	r := NewRegistry(w, nil)

	sub, err := r.Subscribe(context.Background(), "q", AckAuto,
		func(context.Context, frame.Frame) error { return boom }, SubscribeOptions{})
	if err != nil {
		t.Fatal(err)
	}

	msg := frame.New(frame.CommandMessage, frame.Headers{"subscription": sub.ID})
	if err := r.HandleMessage(context.Background(), msg); !errors.Is(err, boom) {
		t.Fatalf("expected unsuppressed error to propagate, got %v", err)
	}
}

func TestStaleAckSuppressed(t *testing.T) {
	w := &fakeWriter{generation: 1}
	r := NewRegistry(w, nil)

	sub, err := r.SubscribeWithManualAck(context.Background(), "q", func(context.Context, AckableMessageFrame) error { return nil }, nil)
	if err != nil {
		t.Fatal(err)
	}

	akf := AckableMessageFrame{
		Frame:          frame.New(frame.CommandMessage, frame.Headers{"subscription": sub.ID, "ack": "a1"}),
		subscriptionID: sub.ID,
		registry:       r,
	}

	// connection changed since message was received
	w.generation = 2

	if err := akf.Ack(context.Background()); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	cmds := w.commands()
	if len(cmds) != 1 || cmds[0] != frame.CommandSubscribe {
		t.Fatalf("expected no ACK written after generation changed, got %v", cmds)
	}
}

func TestResubscribeReplaysLiveSubscriptions(t *testing.T) {
	w := &fakeWriter{generation: 1}
	r := NewRegistry(w, nil)

	if _, err := r.Subscribe(context.Background(), "a", AckAuto, func(context.Context, frame.Frame) error { return nil }, SubscribeOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Subscribe(context.Background(), "b", AckAuto, func(context.Context, frame.Frame) error { return nil }, SubscribeOptions{}); err != nil {
		t.Fatal(err)
	}

	if err := r.Resubscribe(context.Background()); err != nil {
		t.Fatalf("Resubscribe: %v", err)
	}
	cmds := w.commands()
	subscribeCount := 0
	for _, c := range cmds {
		if c == frame.CommandSubscribe {
			subscribeCount++
		}
	}
	if subscribeCount != 4 { // 2 initial + 2 resubscribe
		t.Fatalf("expected 4 SUBSCRIBE frames total, got %d (%v)", subscribeCount, cmds)
	}
}
