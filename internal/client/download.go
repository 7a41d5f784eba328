package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidMode is the failure recorded for every file when the mode is
// neither Serial nor Parallel.
var ErrInvalidMode = errors.New("invalid download mode")

// Mode selects how a batch of files is fetched.
type Mode int

const (
	// Serial fetches files one after another on the caller's connection.
	Serial Mode = 0
	// Parallel fetches files concurrently, one connection per file.
	Parallel Mode = 1
)

func (m Mode) String() string {
	switch m {
	case Serial:
		return "serial"
	case Parallel:
		return "parallel"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts "serial"/"0" and "parallel"/"1".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "serial", "0":
		return Serial, nil
	case "parallel", "1":
		return Parallel, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Failure is a file that did not download and why.
type Failure struct {
	Name string
	Err  error
}

func (f Failure) String() string {
	return f.Name + ": " + f.Err.Error()
}

// Download fetches names once with the given mode and returns the files that
// failed. Serial mode uses conn, re-dialing it after a transport failure; a
// nil conn makes Download open and close its own. Parallel mode ignores conn.
func (c *Client) Download(ctx context.Context, names []string, mode Mode, conn *Conn) []Failure {
	failures, _ := c.download(ctx, names, mode, conn)
	return failures
}

func (c *Client) download(ctx context.Context, names []string, mode Mode, conn *Conn) ([]Failure, int64) {
	switch mode {
	case Serial:
		return c.downloadSerial(ctx, names, conn)
	case Parallel:
		return c.downloadParallel(ctx, names)
	default:
		failures := make([]Failure, 0, len(names))
		for _, name := range names {
			failures = append(failures, Failure{Name: name, Err: fmt.Errorf("%w: %s", ErrInvalidMode, mode)})
		}
		return failures, 0
	}
}

func (c *Client) downloadSerial(ctx context.Context, names []string, conn *Conn) ([]Failure, int64) {
	if conn == nil {
		conn = &Conn{client: c}
		defer conn.Close()
	}
	var failures []Failure
	var total int64
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			failures = append(failures, Failure{Name: name, Err: err})
			continue
		}
		n, err := conn.fetch(ctx, name)
		if err != nil {
			c.logger.Warn("download failed", "file", name, "error", err)
			failures = append(failures, Failure{Name: name, Err: err})
			continue
		}
		total += n
	}
	return failures, total
}

func (c *Client) downloadParallel(ctx context.Context, names []string) ([]Failure, int64) {
	var (
		mu       sync.Mutex
		failures []Failure
		total    atomic.Int64
		g        errgroup.Group
	)
	g.SetLimit(c.opts.Workers)
	for _, name := range names {
		g.Go(func() error {
			n, err := c.fetchOwn(ctx, name)
			if err != nil {
				c.logger.Warn("download failed", "file", name, "error", err)
				mu.Lock()
				failures = append(failures, Failure{Name: name, Err: err})
				mu.Unlock()
				return nil
			}
			total.Add(n)
			return nil
		})
	}
	_ = g.Wait()
	return failures, total.Load()
}
