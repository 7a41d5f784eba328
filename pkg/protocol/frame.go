package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/sheerbytes/filehost/internal/bufpool"
)

const (
	// HeaderWidth is the fixed width of the ASCII length field.
	HeaderWidth = 64
	// PacketSize is the largest single write a sender issues for one frame.
	PacketSize = 2048
	// DefaultMaxFrameSize bounds the payload length a receiver accepts.
	DefaultMaxFrameSize = 1 << 30
)

var (
	headerPool = bufpool.New(HeaderWidth)
	packetPool = bufpool.New(PacketSize)
)

// FormatHeader renders n left-justified and space padded to HeaderWidth.
func FormatHeader(n int) []byte {
	return []byte(fmt.Sprintf("%-*d", HeaderWidth, n))
}

// ParseHeader parses a full HeaderWidth header.
func ParseHeader(hdr []byte) (int, error) {
	if len(hdr) != HeaderWidth {
		return 0, fmt.Errorf("%w: %d bytes", ErrMalformedHeader, len(hdr))
	}
	s := strings.TrimSpace(string(hdr))
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedHeader, s)
	}
	return n, nil
}

// WriteFrame writes the header and payload as one logical frame, in writes of at most
// PacketSize bytes. It returns the number of bytes written.
func WriteFrame(w io.Writer, payload []byte) (int, error) {
	return writeFrame(w, payload)
}

// writeFrame sends the concatenation of parts as one frame. Bytes go through a
// pooled PacketSize buffer, so no frame-sized copy of the payload is built.
func writeFrame(w io.Writer, parts ...[]byte) (int, error) {
	size := 0
	for _, p := range parts {
		size += len(p)
	}

	packet := packetPool.Get()
	defer packetPool.Put(packet)

	fill := len(strconv.AppendInt(packet[:0], int64(size), 10))
	for ; fill < HeaderWidth; fill++ {
		packet[fill] = ' '
	}

	written := 0
	flush := func() error {
		n, err := w.Write(packet[:fill])
		written += n
		fill = 0
		if err != nil {
			return classify(err, "write frame")
		}
		return nil
	}
	for _, p := range parts {
		for len(p) > 0 {
			n := copy(packet[fill:], p)
			fill += n
			p = p[n:]
			if fill == len(packet) {
				if err := flush(); err != nil {
					return written, err
				}
			}
		}
	}
	if fill > 0 {
		if err := flush(); err != nil {
			return written, err
		}
	}
	return written, nil
}

// ReadFrame reads one frame and returns its payload. The length field is never
// interpreted before all HeaderWidth bytes have arrived.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}

	hdr := headerPool.Get()
	defer headerPool.Put(hdr)

	if _, err := io.ReadFull(r, hdr); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: mid-header", ErrPeerClosed)
		}
		return nil, classify(err, "read header")
	}
	n, err := ParseHeader(hdr)
	if err != nil {
		return nil, err
	}
	if n > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, maxSize)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: mid-payload", ErrPeerClosed)
		}
		return nil, classify(err, "read payload")
	}
	return payload, nil
}

// classify maps transport errors onto the protocol sentinels.
func classify(err error, op string) error {
	switch {
	case isTimeout(err):
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%s: %w", op, ErrPeerClosed)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
