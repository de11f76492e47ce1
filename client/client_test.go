package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stompclient/discovery"
	"stompclient/frame"
	"stompclient/middleware"
	"stompclient/subscription"
	"stompclient/transport"
)

type fakeTransport struct {
	mu      sync.Mutex
	written []frame.Frame
	lastRead atomic.Int64
	readCh  chan transport.ReadResult
}

func newFakeTransport() *fakeTransport {
	tp := &fakeTransport{readCh: make(chan transport.ReadResult, 16)}
	tp.lastRead.Store(time.Now().UnixNano())
	return tp
}

func (t *fakeTransport) WriteFrame(f frame.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written = append(t.written, f)
	return nil
}

func (t *fakeTransport) WriteHeartbeat() error { return nil }

func (t *fakeTransport) LastReadTime() time.Time { return time.Unix(0, t.lastRead.Load()) }

func (t *fakeTransport) ReadFrames(ctx context.Context) <-chan transport.ReadResult { return t.readCh }

func (t *fakeTransport) push(f frame.Frame) {
	t.lastRead.Store(time.Now().UnixNano())
	t.readCh <- transport.ReadResult{Frame: f}
}

func (t *fakeTransport) Close() error { return nil }

func (t *fakeTransport) writtenCommands() []frame.Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	cmds := make([]frame.Command, len(t.written))
	for i, f := range t.written {
		cmds[i] = f.Command
	}
	return cmds
}

func (t *fakeTransport) find(command frame.Command) (frame.Frame, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range t.written {
		if f.Command == command {
			return f, true
		}
	}
	return frame.Frame{}, false
}

// fakeDialer always hands back the same transport and immediately
// completes the handshake by pushing CONNECTED with heartbeats disabled,
// so tests don't race the heartbeat goroutines.
type fakeDialer struct {
	tp *fakeTransport
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{tp: newFakeTransport()}
}

func (d *fakeDialer) Dial(ctx context.Context, host string, port int, timeout time.Duration) (transport.Transport, error) {
	go d.tp.push(frame.New(frame.CommandConnected, frame.Headers{"version": "1.2", "heart-beat": "0,0"}))
	return d.tp, nil
}

func testClient(dialer *fakeDialer) *Client {
	return New(Config{
		Servers:              []discovery.Server{{Host: "broker", Port: 61613}},
		Dialer:               dialer,
		ConnectRetryAttempts: 1,
		ConnectTimeout:       time.Second,
	})
}

func TestConnectStartsListenerAndHandshakes(t *testing.T) {
	dialer := newFakeDialer()
	c := testClient(dialer)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect(context.Background())

	if !c.IsAlive() {
		t.Fatal("expected client alive after connect")
	}
}

func TestSendBuildsExpectedHeaders(t *testing.T) {
	dialer := newFakeDialer()
	c := testClient(dialer)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect(context.Background())

	err := c.Send(context.Background(), "DLQ", []byte("Hi!"), SendOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	sendFrame, ok := dialer.tp.find(frame.CommandSend)
	if !ok {
		t.Fatal("expected a SEND frame")
	}
	if dest, _ := sendFrame.Headers.Get("destination"); dest != "DLQ" {
		t.Fatalf("destination = %q, want DLQ", dest)
	}
	if cl, _ := sendFrame.Headers.Get("content-length"); cl != "3" {
		t.Fatalf("content-length = %q, want 3", cl)
	}
}

func TestSendUserHeadersOverrideExceptDestination(t *testing.T) {
	dialer := newFakeDialer()
	c := testClient(dialer)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect(context.Background())

	err := c.Send(context.Background(), "DLQ", []byte("x"), SendOptions{
		Headers: frame.Headers{"destination": "OTHER", "content-length": "999"},
	})
	if err != nil {
		t.Fatal(err)
	}
	sendFrame, _ := dialer.tp.find(frame.CommandSend)
	if dest, _ := sendFrame.Headers.Get("destination"); dest != "DLQ" {
		t.Fatalf("destination header was overridden: %q", dest)
	}
	if cl, _ := sendFrame.Headers.Get("content-length"); cl != "999" {
		t.Fatalf("expected user content-length to win, got %q", cl)
	}
}

func TestSubscribeDispatchesMessageAndAcks(t *testing.T) {
	dialer := newFakeDialer()
	c := testClient(dialer)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect(context.Background())

	received := make(chan struct{}, 1)
	sub, err := c.Subscribe(context.Background(), "q", subscription.AckClient,
		func(ctx context.Context, msg frame.Frame) error {
			received <- struct{}{}
			return nil
		}, subscription.SubscribeOptions{})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	dialer.tp.push(frame.New(frame.CommandMessage, frame.Headers{
		"subscription": sub.ID, "ack": "a1", "destination": "q", "message-id": "m1",
	}))

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := dialer.tp.find(frame.CommandAck); ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected an ACK frame to be written")
}

func TestSubscribeRunsConfiguredMiddlewares(t *testing.T) {
	dialer := newFakeDialer()
	c := New(Config{
		Servers:              []discovery.Server{{Host: "broker", Port: 61613}},
		Dialer:               dialer,
		ConnectRetryAttempts: 1,
		ConnectTimeout:       time.Second,
		Middlewares: []middleware.Middleware{
			func(next middleware.HandlerFunc) middleware.HandlerFunc {
				return func(ctx context.Context, msg frame.Frame) error {
					ctx = context.WithValue(ctx, seenKey{}, true)
					return next(ctx, msg)
				}
			},
		},
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect(context.Background())

	sawMiddleware := make(chan bool, 1)
	sub, err := c.Subscribe(context.Background(), "q", subscription.AckAuto,
		func(ctx context.Context, msg frame.Frame) error {
			sawMiddleware <- ctx.Value(seenKey{}) == true
			return nil
		}, subscription.SubscribeOptions{})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	dialer.tp.push(frame.New(frame.CommandMessage, frame.Headers{
		"subscription": sub.ID, "destination": "q", "message-id": "m1",
	}))

	select {
	case ok := <-sawMiddleware:
		if !ok {
			t.Fatal("handler ran without the configured middleware wrapping it")
		}
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

type seenKey struct{}

func TestDisconnectSendsDisconnectAndResolvesOnReceipt(t *testing.T) {
	dialer := newFakeDialer()
	c := testClient(dialer)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Answer the DISCONNECT with a matching RECEIPT as soon as it's written.
	go func() {
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			if f, ok := dialer.tp.find(frame.CommandDisconnect); ok {
				id, _ := f.Headers.Get("receipt")
				dialer.tp.push(frame.New(frame.CommandReceipt, frame.Headers{"receipt-id": id}))
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	done := make(chan error, 1)
	go func() { done <- c.Disconnect(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Disconnect: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect did not return after matching RECEIPT")
	}
}

func TestWithTransactionCommitsOnSuccessAbortsOnError(t *testing.T) {
	dialer := newFakeDialer()
	c := testClient(dialer)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect(context.Background())

	if err := c.WithTransaction(context.Background(), func(txn *Transaction) error {
		return txn.Send(context.Background(), "q", []byte("a"), SendOptions{})
	}); err != nil {
		t.Fatalf("WithTransaction: %v", err)
	}
	cmds := dialer.tp.writtenCommands()
	if !containsInOrder(cmds, frame.CommandBegin, frame.CommandSend, frame.CommandCommit) {
		t.Fatalf("expected BEGIN, SEND, COMMIT in order, got %v", cmds)
	}

	boom := errors.New("boom")
	err := c.WithTransaction(context.Background(), func(txn *Transaction) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom to propagate, got %v", err)
	}
	cmds = dialer.tp.writtenCommands()
	if cmds[len(cmds)-1] != frame.CommandAbort {
		t.Fatalf("expected trailing ABORT, got %v", cmds)
	}
}

func containsInOrder(cmds []frame.Command, want ...frame.Command) bool {
	i := 0
	for _, c := range cmds {
		if i < len(want) && c == want[i] {
			i++
		}
	}
	return i == len(want)
}
