package protocol

import (
	"bytes"
	"errors"
	"io"
	"net"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// bufferStream is an in-memory Stream with no deadline support.
type bufferStream struct {
	bytes.Buffer
	writes []int
}

func (b *bufferStream) Write(p []byte) (int, error) {
	b.writes = append(b.writes, len(p))
	return b.Buffer.Write(p)
}

func (b *bufferStream) SetReadDeadline(time.Time) error { return nil }

func TestFormatHeader(t *testing.T) {
	hdr := FormatHeader(10)
	require.Len(t, hdr, HeaderWidth)
	require.Equal(t, "10", strings.TrimRight(string(hdr), " "))
	require.Equal(t, byte(' '), hdr[HeaderWidth-1])

	n, err := ParseHeader(hdr)
	require.NoError(t, err)
	require.Equal(t, 10, n)
}

func TestParseHeader_Malformed(t *testing.T) {
	tests := []struct {
		name string
		hdr  []byte
	}{
		{"letters", []byte(strings.Repeat("x", HeaderWidth))},
		{"negative", padHeader("-5")},
		{"blank", []byte(strings.Repeat(" ", HeaderWidth))},
		{"short", []byte("12")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHeader(tt.hdr)
			require.ErrorIs(t, err, ErrMalformedHeader)
		})
	}
}

// padHeader pads an arbitrary string the way FormatHeader pads numbers.
func padHeader(s string) []byte {
	return []byte(s + strings.Repeat(" ", HeaderWidth-len(s)))
}

func TestRoundTrip(t *testing.T) {
	sizes := []int{0, 1, PacketSize - HeaderWidth - 1, PacketSize, 3*PacketSize + 17, 1 << 20}
	for _, size := range sizes {
		data := bytes.Repeat([]byte{0xab}, size)
		text := strings.Repeat("s", size)
		names := make([]string, 0, size/64+1)
		for i := 0; i <= size/64; i++ {
			names = append(names, strings.Repeat("n", i%40+1)+".txt")
		}

		msgs := []Message{
			Payload{Data: data},
			Checksum{Value: text},
			ListResponse{Names: names},
			DownloadRequest{Name: "f" + text},
		}
		for _, msg := range msgs {
			stream := &bufferStream{}
			m := NewMessenger(stream, 0, 0)

			n, err := m.Send(msg)
			require.NoError(t, err)
			require.Equal(t, stream.Len(), n)
			for _, w := range stream.writes {
				require.LessOrEqual(t, w, PacketSize)
			}

			got, err := m.Receive()
			require.NoError(t, err)
			if p, ok := msg.(Payload); ok {
				require.Equal(t, p.Data, got.(Payload).Data, "size %d", size)
				continue
			}
			require.Equal(t, msg, got, "size %d", size)
		}
	}
}

func TestSend_PayloadMatchesMarshaledFrame(t *testing.T) {
	data := bytes.Repeat([]byte{0x5a}, 5000)
	payload, err := Marshal(Payload{Data: data})
	require.NoError(t, err)
	var want bytes.Buffer
	_, err = WriteFrame(&want, payload)
	require.NoError(t, err)

	stream := &bufferStream{}
	n, err := NewMessenger(stream, 0, 0).Send(Payload{Data: data})
	require.NoError(t, err)
	require.Equal(t, HeaderWidth+1+len(data), n)
	require.Equal(t, want.Bytes(), stream.Bytes())
	require.Equal(t, []int{PacketSize, PacketSize, n - 2*PacketSize}, stream.writes)
}

// discardStream drops everything written to it.
type discardStream struct{}

func (discardStream) Read([]byte) (int, error)        { return 0, io.EOF }
func (discardStream) Write(p []byte) (int, error)     { return len(p), nil }
func (discardStream) SetReadDeadline(time.Time) error { return nil }

func TestSend_PayloadIsNotCopied(t *testing.T) {
	data := make([]byte, 8<<20)
	m := NewMessenger(discardStream{}, 0, 0)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := m.Send(Payload{Data: data})
	runtime.ReadMemStats(&after)
	require.NoError(t, err)
	require.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(1<<20))
}

func TestRoundTrip_OverPipe(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	data := bytes.Repeat([]byte("0123456789"), 5000)
	sender := NewMessenger(a, time.Second, 0)
	receiver := NewMessenger(b, time.Second, 0)

	errCh := make(chan error, 1)
	go func() {
		if _, err := sender.Send(Checksum{Value: Digest(data)}); err != nil {
			errCh <- err
			return
		}
		_, err := sender.Send(Payload{Data: data})
		errCh <- err
	}()

	sum, err := receiver.ReceiveKind(KindChecksum)
	require.NoError(t, err)
	payload, err := receiver.ReceiveKind(KindPayload)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.NoError(t, Verify(payload.(Payload).Data, sum.(Checksum).Value))
}

func TestReadFrame_PeerClosedMidHeader(t *testing.T) {
	r := bytes.NewReader([]byte("12   "))
	_, err := ReadFrame(r, 0)
	require.ErrorIs(t, err, ErrPeerClosed)
	require.False(t, errors.Is(err, ErrMalformedHeader))
}

func TestReadFrame_PeerClosedBeforeHeader(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil), 0)
	require.ErrorIs(t, err, ErrPeerClosed)
}

func TestReadFrame_PeerClosedMidPayload(t *testing.T) {
	buf := append(FormatHeader(100), []byte("short")...)
	_, err := ReadFrame(bytes.NewReader(buf), 0)
	require.ErrorIs(t, err, ErrPeerClosed)
}

func TestReadFrame_TooLarge(t *testing.T) {
	buf := append(FormatHeader(1000), make([]byte, 1000)...)
	_, err := ReadFrame(bytes.NewReader(buf), 999)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

// slowReader hands out one byte per call to exercise partial reads.
type slowReader struct{ r io.Reader }

func (s slowReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return s.r.Read(p[:1])
}

func TestReadFrame_PartialReads(t *testing.T) {
	payload, err := Marshal(ListResponse{Names: []string{"a", "b", "c"}})
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = WriteFrame(&buf, payload)
	require.NoError(t, err)

	got, err := ReadFrame(slowReader{r: &buf}, 0)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestReceive_Timeout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	m := NewMessenger(b, 50*time.Millisecond, 0)
	start := time.Now()
	_, err := m.Receive()
	require.ErrorIs(t, err, ErrTimeout)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestReceiveKind(t *testing.T) {
	stream := &bufferStream{}
	m := NewMessenger(stream, 0, 0)

	_, err := m.Send(Error{Code: CodeNotFound, Message: "missing.txt"})
	require.NoError(t, err)
	_, err = m.ReceiveKind(KindChecksum)
	require.True(t, HasCode(err, CodeNotFound), "got %v", err)

	_, err = m.Send(Payload{Data: []byte("x")})
	require.NoError(t, err)
	_, err = m.ReceiveKind(KindChecksum)
	require.ErrorIs(t, err, ErrUnexpectedMessage)
}
