package server

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sheerbytes/filehost/internal/hostdir"
	"github.com/sheerbytes/filehost/internal/progress"
	"github.com/sheerbytes/filehost/pkg/protocol"
)

// handler runs the request loop of one client session. It is owned by a single
// goroutine and never shared.
type handler struct {
	msgr      *protocol.Messenger
	dir       *hostdir.Dir
	maxFile   int64
	logger    *slog.Logger
	meter     *progress.Meter
	connected bool
}

// newHandler bounds inbound frames to MaxRequestSize; maxFrame limits the
// frames it sends.
func newHandler(stream protocol.Stream, dir *hostdir.Dir, idle time.Duration, maxFrame int, logger *slog.Logger) *handler {
	if maxFrame <= 0 {
		maxFrame = protocol.DefaultMaxFrameSize
	}
	// One byte of the payload frame is the message tag.
	maxFile := int64(maxFrame) - 1
	return &handler{
		msgr:      protocol.NewMessenger(stream, idle, protocol.MaxRequestSize),
		dir:       dir,
		maxFile:   maxFile,
		logger:    logger,
		meter:     progress.NewMeter(),
		connected: true,
	}
}

// run serves requests until the client disconnects, goes idle, or the
// connection fails. The caller closes the connection afterwards.
func (h *handler) run() error {
	for h.connected {
		msg, err := h.msgr.Receive()
		switch {
		case err == nil:
		case errors.Is(err, protocol.ErrTimeout):
			h.logger.Info("session idle, closing")
			return nil
		case errors.Is(err, protocol.ErrPeerClosed):
			h.logger.Info("peer closed connection", "sent", progress.FormatBytes(h.meter.Snapshot().Bytes))
			return nil
		case errors.Is(err, protocol.ErrFrameTooLarge), errors.Is(err, protocol.ErrMalformedHeader):
			return fmt.Errorf("bad request frame: %w", err)
		default:
			return fmt.Errorf("receive: %w", err)
		}

		if err := h.dispatch(msg); err != nil {
			return err
		}
	}
	return nil
}

func (h *handler) dispatch(msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.ListRequest:
		return h.sendList()
	case protocol.DownloadRequest:
		return h.sendFile(m.Name)
	case protocol.Disconnect:
		h.connected = false
		stats := h.meter.Snapshot()
		h.logger.Info("client disconnected",
			"sent", progress.FormatBytes(stats.Bytes),
			"elapsed", stats.Elapsed.Round(time.Millisecond),
			"avg_rate", progress.FormatRate(stats.AverageBps()),
			"rate", progress.FormatRate(stats.RateBps))
		return nil
	case protocol.UnknownRequest:
		h.logger.Warn("unknown request", "request", m.Raw)
		return h.sendError(protocol.CodeUnknownRequest, fmt.Sprintf("unknown request %q", m.Raw))
	default:
		h.logger.Warn("unexpected message from client", "kind", msg.Kind().String())
		return h.sendError(protocol.CodeUnknownRequest, "expected a request, got "+msg.Kind().String())
	}
}

func (h *handler) sendList() error {
	names, err := h.dir.List()
	if err != nil {
		h.logger.Error("list directory failed", "error", err)
		return h.sendError(protocol.CodeInternal, "cannot list directory")
	}
	if _, err := h.msgr.Send(protocol.ListResponse{Names: names}); err != nil {
		return fmt.Errorf("send list: %w", err)
	}
	h.logger.Debug("list sent", "files", len(names))
	return nil
}

// sendFile answers a download with the digest frame followed by the payload
// frame, in that order.
func (h *handler) sendFile(name string) error {
	start := time.Now()
	entry, err := h.dir.Read(name, h.maxFile)
	if err != nil {
		code := errorCode(err)
		h.logger.Warn("download refused", "file", name, "code", code, "error", err)
		msg := err.Error()
		if code == protocol.CodeInternal {
			msg = "cannot read " + name
		}
		return h.sendError(code, msg)
	}

	if _, err := h.msgr.Send(protocol.Checksum{Value: entry.Digest}); err != nil {
		return fmt.Errorf("send checksum: %w", err)
	}
	if _, err := h.msgr.Send(protocol.Payload{Data: entry.Data}); err != nil {
		return fmt.Errorf("send payload: %w", err)
	}
	h.meter.Add(len(entry.Data))
	h.logger.Info("file sent",
		"file", name,
		"bytes", len(entry.Data),
		"duration", time.Since(start).Round(time.Microsecond),
		"rate", progress.FormatRate(h.meter.Snapshot().RateBps))
	return nil
}

func (h *handler) sendError(code, message string) error {
	if _, err := h.msgr.Send(protocol.Error{Code: code, Message: message}); err != nil {
		return fmt.Errorf("send error frame: %w", err)
	}
	return nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, protocol.ErrInvalidName):
		return protocol.CodeInvalidName
	case errors.Is(err, hostdir.ErrNotFound):
		return protocol.CodeNotFound
	case errors.Is(err, hostdir.ErrTooLarge):
		return protocol.CodeTooLarge
	default:
		return protocol.CodeInternal
	}
}
