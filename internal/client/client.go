package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/sheerbytes/filehost/internal/logging"
	"github.com/sheerbytes/filehost/internal/transport"
	"github.com/sheerbytes/filehost/pkg/protocol"
)

// disconnectTimeout bounds the !DISCONNECT write when a session ends.
const disconnectTimeout = time.Second

// Options configure a Client.
type Options struct {
	// Dir receives downloaded files. It must exist.
	Dir string
	// Timeout bounds each receive; 0 waits forever.
	Timeout time.Duration
	// MaxFrameBytes caps a single received frame; 0 selects the protocol default.
	MaxFrameBytes int
	// Workers bounds parallel downloads; 0 selects DefaultWorkers.
	Workers int
	// Retries is the number of attempts after the first one.
	Retries int
	// OnRetry, if set, is called before each retry with the failures that will
	// be attempted again and the number of retries left after this one.
	OnRetry func(attempt int, left int, failed []Failure)
}

// DefaultWorkers mirrors the usual thread pool sizing: CPUs plus four, capped at 32.
func DefaultWorkers() int {
	return min(32, runtime.NumCPU()+4)
}

// Client downloads files from one server.
type Client struct {
	dialer transport.Dialer
	opts   Options
	logger *slog.Logger
}

// New returns a client that opens connections with dialer.
func New(dialer transport.Dialer, opts Options, logger *slog.Logger) *Client {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers()
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{dialer: dialer, opts: opts, logger: logger}
}

// Conn is a session with the server. It is used by one goroutine at a time.
type Conn struct {
	client *Client
	raw    transport.Conn
	msgr   *protocol.Messenger
	// stale is set after a transport failure; the stream may still hold a
	// partial or late frame.
	stale bool
}

// Connect opens a session.
func (c *Client) Connect(ctx context.Context) (*Conn, error) {
	conn := &Conn{client: c}
	if err := conn.dial(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Conn) dial(ctx context.Context) error {
	raw, err := c.client.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	c.raw = raw
	c.msgr = protocol.NewMessenger(raw, c.client.opts.Timeout, c.client.opts.MaxFrameBytes)
	c.stale = false
	return nil
}

// reset ends a session whose stream can no longer be trusted and dials a
// fresh one.
func (c *Conn) reset(ctx context.Context) error {
	_ = c.Close()
	c.client.logger.Debug("reconnecting")
	return c.dial(ctx)
}

// guard closes the underlying connection when ctx is cancelled so a blocked
// read returns. The returned func stops the guard.
func (c *Conn) guard(ctx context.Context) func() bool {
	raw := c.raw
	return context.AfterFunc(ctx, func() { _ = raw.Close() })
}

// List asks the server for its file names.
func (c *Conn) List(ctx context.Context) ([]string, error) {
	if c.stale || c.raw == nil {
		if err := c.reset(ctx); err != nil {
			return nil, err
		}
	}
	stop := c.guard(ctx)
	defer stop()

	if _, err := c.msgr.Send(protocol.ListRequest{}); err != nil {
		c.stale = true
		return nil, c.ctxErr(ctx, fmt.Errorf("send list request: %w", err))
	}
	msg, err := c.msgr.ReceiveKind(protocol.KindList)
	if err != nil {
		if isTransportError(err) {
			c.stale = true
		}
		return nil, c.ctxErr(ctx, fmt.Errorf("receive list: %w", err))
	}
	return msg.(protocol.ListResponse).Names, nil
}

// Close tells the server the session is over and closes the connection. The
// disconnect is sent after failed downloads too, including timeouts.
func (c *Conn) Close() error {
	if c.raw == nil {
		return nil
	}
	c.disconnect()
	err := c.raw.Close()
	c.raw = nil
	return err
}

// disconnect sends !DISCONNECT under a write deadline so a server that has
// stopped reading cannot hold the session open.
func (c *Conn) disconnect() {
	if err := c.raw.SetWriteDeadline(time.Now().Add(disconnectTimeout)); err != nil {
		return
	}
	if _, err := c.msgr.Send(protocol.Disconnect{}); err != nil {
		c.client.logger.Debug("disconnect not delivered", "error", err)
	}
}

func (c *Conn) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// isTransportError reports whether err leaves the stream in an unknown state.
// Remote error frames and checksum mismatches arrive as whole frames, so the
// connection stays usable after them.
func isTransportError(err error) bool {
	var re *protocol.RemoteError
	switch {
	case err == nil:
		return false
	case errors.As(err, &re):
		return false
	case errors.Is(err, protocol.ErrChecksumMismatch),
		errors.Is(err, protocol.ErrInvalidName),
		errors.Is(err, errWriteFile):
		return false
	default:
		return true
	}
}
