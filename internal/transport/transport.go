package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Kind names a stream transport.
type Kind string

const (
	KindTCP  Kind = "tcp"
	KindQUIC Kind = "quic"
	KindWS   Kind = "ws"
)

// ErrClosed is returned by Accept once the listener is closed.
var ErrClosed = errors.New("listener closed")

// ParseKind validates a transport name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindTCP, KindQUIC, KindWS:
		return Kind(s), nil
	case "":
		return KindTCP, nil
	default:
		return "", fmt.Errorf("unknown transport %q (want tcp, quic or ws)", s)
	}
}

// Conn is one reliable, ordered byte stream between client and server.
// Read and Write honor the deadlines set with SetReadDeadline and
// SetWriteDeadline and report expiry as a net.Error whose Timeout method
// returns true.
type Conn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
}

// Listener accepts incoming Conns.
type Listener interface {
	// Accept waits for the next connection. It returns ErrClosed after Close
	// and ctx.Err() when ctx is cancelled.
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Close() error
}

// Dialer opens Conns to one server address.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Listen binds addr with the given transport.
func Listen(ctx context.Context, kind Kind, addr string, logger *slog.Logger) (Listener, error) {
	switch kind {
	case KindTCP, "":
		return listenTCP(addr)
	case KindQUIC:
		return listenQUIC(addr, logger)
	case KindWS:
		return listenWS(addr, logger)
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

// NewDialer returns a dialer for addr. timeout bounds connection setup.
func NewDialer(kind Kind, addr string, timeout time.Duration) (Dialer, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	switch kind {
	case KindTCP, "":
		return &tcpDialer{addr: addr, timeout: timeout}, nil
	case KindQUIC:
		return &quicDialer{addr: addr, timeout: timeout}, nil
	case KindWS:
		return &wsDialer{addr: addr, timeout: timeout}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

// queue hands connections that were accepted in the background to Accept.
// The QUIC, WebSocket and in-memory listeners are built on it.
type queue struct {
	conns     chan Conn
	done      chan struct{}
	closeOnce sync.Once
}

func newQueue() *queue {
	return &queue{
		conns: make(chan Conn, 64),
		done:  make(chan struct{}),
	}
}

func (q *queue) accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-q.conns:
		return c, nil
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// push offers c to Accept. It closes c if the listener is closed.
func (q *queue) push(c Conn) bool {
	select {
	case <-q.done:
		_ = c.Close()
		return false
	default:
	}
	select {
	case q.conns <- c:
		return true
	case <-q.done:
		_ = c.Close()
		return false
	}
}

func (q *queue) close() bool {
	closed := false
	q.closeOnce.Do(func() {
		close(q.done)
		closed = true
	})
	return closed
}

// drain closes connections that were queued but never accepted.
func (q *queue) drain() {
	for {
		select {
		case c := <-q.conns:
			_ = c.Close()
		default:
			return
		}
	}
}
