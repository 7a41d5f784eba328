package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New creates a structured logger that writes colored text to stderr.
// app: application name (e.g., "filehostd")
// level: one of "debug", "info", "warn", "error" (default: "info")
func New(app string, level string) *slog.Logger {
	return withDefaults(newConsoleHandler(os.Stderr, parseLevel(level)), app)
}

// NewWithFile is New plus a plain text copy of every record appended to path.
// The returned closer closes the log file. An empty path behaves like New.
func NewWithFile(app, level, path string) (*slog.Logger, io.Closer, error) {
	lvl := parseLevel(level)
	console := newConsoleHandler(os.Stderr, lvl)
	if path == "" {
		return withDefaults(console, app), nopCloser{}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	file := slog.NewTextHandler(f, &slog.HandlerOptions{Level: lvl})
	return withDefaults(NewTee(console, file), app), f, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func withDefaults(h slog.Handler, app string) *slog.Logger {
	return slog.New(h).With(
		slog.String("app", app),
		slog.Int("pid", os.Getpid()),
	)
}

func newConsoleHandler(w io.Writer, level slog.Level) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
	})
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}

// Tee fans records out to several handlers. Each handler formats a record into
// one buffer and writes it in a single call, so concurrent sessions never split
// a line.
type Tee struct {
	handlers []slog.Handler
}

// NewTee returns a handler writing to all of hs.
func NewTee(hs ...slog.Handler) *Tee {
	return &Tee{handlers: hs}
}

func (t *Tee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *Tee) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &Tee{handlers: hs}
}

func (t *Tee) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &Tee{handlers: hs}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
