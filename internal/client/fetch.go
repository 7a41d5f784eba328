package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sheerbytes/filehost/pkg/protocol"
)

var errWriteFile = errors.New("write file")

// fetch downloads one file over the session's stream: request, digest frame,
// payload frame, verify, write. It returns the payload size.
func (c *Conn) fetch(ctx context.Context, name string) (int64, error) {
	if err := protocol.ValidateName(name); err != nil {
		return 0, fmt.Errorf("%q: %w", name, err)
	}
	if c.stale || c.raw == nil {
		if err := c.reset(ctx); err != nil {
			return 0, err
		}
	}
	stop := c.guard(ctx)
	defer stop()

	n, err := c.client.receiveFile(c.msgr, name)
	if err != nil {
		if isTransportError(err) {
			c.stale = true
		}
		return 0, c.ctxErr(ctx, err)
	}
	return n, nil
}

// fetchOwn downloads one file on a connection of its own and always ends the
// session before returning.
func (c *Client) fetchOwn(ctx context.Context, name string) (int64, error) {
	if err := protocol.ValidateName(name); err != nil {
		return 0, fmt.Errorf("%q: %w", name, err)
	}
	conn, err := c.Connect(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	return conn.fetch(ctx, name)
}

func (c *Client) receiveFile(m *protocol.Messenger, name string) (int64, error) {
	start := time.Now()
	if _, err := m.Send(protocol.DownloadRequest{Name: name}); err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	sum, err := m.ReceiveKind(protocol.KindChecksum)
	if err != nil {
		return 0, fmt.Errorf("receive checksum: %w", err)
	}
	msg, err := m.ReceiveKind(protocol.KindPayload)
	if err != nil {
		return 0, fmt.Errorf("receive payload: %w", err)
	}
	data := msg.(protocol.Payload).Data
	want := sum.(protocol.Checksum).Value
	if err := protocol.Verify(data, want); err != nil {
		return 0, err
	}

	path := filepath.Join(c.opts.Dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return 0, fmt.Errorf("%w %s: %w", errWriteFile, path, err)
	}
	c.logger.Info("downloaded",
		"file", name,
		"md5", want,
		"bytes", len(data),
		"duration", time.Since(start).Round(time.Millisecond))
	return int64(len(data)), nil
}
