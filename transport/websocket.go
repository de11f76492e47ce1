package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"stompclient/frame"
)

// WebSocketDialer opens the WebSocket-variant transport named in spec §6:
// `ws(s)://host:port/<path>`, carrying STOMP frames as text messages. This
// is covered at the transport-interface level only, mirroring stompman's
// WebSocketConnection.connect.
type WebSocketDialer struct {
	// Path is joined onto the dial URI as ws(s)://host:port/<Path>.
	Path string
	TLS  *tls.Config
	ReadMaxChunkSize int
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context, host string, port int, timeout time.Duration) (Transport, error) {
	scheme := "ws"
	if d.TLS != nil {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   host + ":" + strconv.Itoa(port),
		Path:   "/" + strings.TrimPrefix(d.Path, "/"),
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		TLSClientConfig:  d.TLS,
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	chunkSize := d.ReadMaxChunkSize
	if chunkSize <= 0 {
		chunkSize = 8192
	}
	conn.SetReadLimit(int64(chunkSize))
	return newWebSocketTransport(conn), nil
}

// webSocketTransport carries STOMP frames as text messages over a gorilla
// websocket connection, updating last-read-time on every receive exactly
// as stompman's WebSocketConnection.read_frames does.
type webSocketTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	lastReadTime atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

func newWebSocketTransport(conn *websocket.Conn) *webSocketTransport {
	t := &webSocketTransport{conn: conn}
	t.lastReadTime.Store(time.Now().UnixNano())
	return t
}

func (t *webSocketTransport) WriteFrame(f frame.Frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteMessage(websocket.TextMessage, frame.Dump(f)); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

func (t *webSocketTransport) WriteHeartbeat() error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte{'\n'}); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

func (t *webSocketTransport) LastReadTime() time.Time {
	return time.Unix(0, t.lastReadTime.Load())
}

func (t *webSocketTransport) ReadFrames(ctx context.Context) <-chan ReadResult {
	out := make(chan ReadResult)
	go func() {
		defer close(out)
		parser := frame.NewParser()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, data, err := t.conn.ReadMessage()
			if err != nil {
				select {
				case out <- ReadResult{Err: fmt.Errorf("%w: %v", ErrConnectionLost, err)}:
				case <-ctx.Done():
				}
				return
			}
			t.lastReadTime.Store(time.Now().UnixNano())

			frames, perr := parser.Feed(data)
			for _, f := range frames {
				select {
				case out <- ReadResult{Frame: f}:
				case <-ctx.Done():
					return
				}
			}
			if perr != nil {
				select {
				case out <- ReadResult{Err: fmt.Errorf("%w: %v", ErrConnectionLost, perr)}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()
	return out
}

func (t *webSocketTransport) Close() error {
	t.closeOnce.Do(func() {
		_ = t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
