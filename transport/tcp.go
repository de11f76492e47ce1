package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"stompclient/frame"
)

// TCPDialer opens plain or TLS TCP connections. The zero value dials
// plaintext TCP; set TLS to dial with TLS (spec §6's `ssl` option).
type TCPDialer struct {
	TLS             *tls.Config
	ReadMaxChunkSize int
}

// Dial implements Dialer.
func (d TCPDialer) Dial(ctx context.Context, host string, port int, timeout time.Duration) (Transport, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	dialer := net.Dialer{Timeout: timeout}

	var conn net.Conn
	var err error
	if d.TLS != nil {
		tlsDialer := tls.Dialer{NetDialer: &dialer, Config: d.TLS}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}

	chunkSize := d.ReadMaxChunkSize
	if chunkSize <= 0 {
		chunkSize = 8192
	}
	return newTCPTransport(conn, chunkSize), nil
}

// tcpTransport is the direct-byte-stream binding named in spec §6: connect
// via a standard socket, close both directions, read in bounded chunks.
// Writes are serialized by a mutex so WriteFrame and WriteHeartbeat never
// interleave bytes from concurrent callers — the same discipline the
// teacher's ClientTransport applies to its multiplexed frames via
// `sending sync.Mutex`.
type tcpTransport struct {
	conn      net.Conn
	chunkSize int

	writeMu sync.Mutex

	lastReadTime atomic.Int64 // unix nanos

	closeOnce sync.Once
	closeErr  error
}

func newTCPTransport(conn net.Conn, chunkSize int) *tcpTransport {
	t := &tcpTransport{conn: conn, chunkSize: chunkSize}
	t.lastReadTime.Store(time.Now().UnixNano())
	return t
}

func (t *tcpTransport) WriteFrame(f frame.Frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write(frame.Dump(f)); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

func (t *tcpTransport) WriteHeartbeat() error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

func (t *tcpTransport) LastReadTime() time.Time {
	return time.Unix(0, t.lastReadTime.Load())
}

// SetReadDeadline and SetWriteDeadline surface the underlying socket's
// deadline controls. Not part of the Transport interface — spec.md never
// names them — but exposed as a supplemented feature so callers can tune
// deadlines beyond connect_timeout without reaching into the connection
// manager's internals.
func (t *tcpTransport) SetReadDeadline(d time.Time) error  { return t.conn.SetReadDeadline(d) }
func (t *tcpTransport) SetWriteDeadline(d time.Time) error { return t.conn.SetWriteDeadline(d) }

func (t *tcpTransport) ReadFrames(ctx context.Context) <-chan ReadResult {
	out := make(chan ReadResult)
	go func() {
		defer close(out)
		parser := frame.NewParser()
		buf := make([]byte, t.chunkSize)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			n, err := t.conn.Read(buf)
			if n > 0 {
				t.lastReadTime.Store(time.Now().UnixNano())
				frames, perr := parser.Feed(buf[:n])
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
			if err != nil {
				select {
				case out <- ReadResult{Err: fmt.Errorf("%w: %v", ErrConnectionLost, err)}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()
	return out
}

func (t *tcpTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
