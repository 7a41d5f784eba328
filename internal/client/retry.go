package client

import (
	"context"
	"errors"
	"time"

	"github.com/sheerbytes/filehost/pkg/protocol"
)

// Report summarizes a batch download including retries.
type Report struct {
	Downloaded []string
	Failed     []Failure
	Attempts   int
	Bytes      int64
	Elapsed    time.Duration
}

// DownloadWithRetry runs Download, then retries the retryable failures with
// the same mode up to Options.Retries more times. It stops early once nothing
// retryable is left.
func (c *Client) DownloadWithRetry(ctx context.Context, names []string, mode Mode, conn *Conn) Report {
	start := time.Now()
	failures, total := c.download(ctx, names, mode, conn)
	attempts := 1

	for left := c.opts.Retries; left > 0 && ctx.Err() == nil; left-- {
		retry, permanent := splitRetryable(failures)
		if len(retry) == 0 {
			break
		}
		if c.opts.OnRetry != nil {
			c.opts.OnRetry(attempts+1, left-1, retry)
		}
		c.logger.Info("retrying failed downloads", "files", len(retry), "tries_left", left)

		again, n := c.download(ctx, failureNames(retry), mode, conn)
		failures = append(permanent, again...)
		total += n
		attempts++
	}

	failed := make(map[string]bool, len(failures))
	for _, f := range failures {
		failed[f.Name] = true
	}
	downloaded := make([]string, 0, len(names))
	for _, name := range names {
		if !failed[name] {
			downloaded = append(downloaded, name)
		}
	}
	return Report{
		Downloaded: downloaded,
		Failed:     failures,
		Attempts:   attempts,
		Bytes:      total,
		Elapsed:    time.Since(start),
	}
}

// Permanent reports whether retrying err cannot succeed.
func Permanent(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidMode),
		errors.Is(err, protocol.ErrInvalidName),
		errors.Is(err, protocol.ErrFrameTooLarge):
		return true
	case protocol.IsNotFound(err),
		protocol.HasCode(err, protocol.CodeInvalidName),
		protocol.HasCode(err, protocol.CodeTooLarge):
		return true
	default:
		return false
	}
}

func splitRetryable(failures []Failure) (retry, permanent []Failure) {
	for _, f := range failures {
		if Permanent(f.Err) {
			permanent = append(permanent, f)
		} else {
			retry = append(retry, f)
		}
	}
	return retry, permanent
}

func failureNames(failures []Failure) []string {
	names := make([]string, len(failures))
	for i, f := range failures {
		names[i] = f.Name
	}
	return names
}
