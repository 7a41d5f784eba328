package protocol

import (
	"fmt"
	"io"
	"time"
)

// Stream is the byte stream a Messenger runs over.
type Stream interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
}

// Messenger sends and receives framed messages on one stream.
// It is not safe for concurrent use; one connection carries one request/response
// exchange at a time.
type Messenger struct {
	stream   Stream
	timeout  time.Duration
	maxFrame int
}

// NewMessenger wraps stream. A zero timeout disables the inactivity deadline; a
// non-positive maxFrame selects DefaultMaxFrameSize.
func NewMessenger(stream Stream, timeout time.Duration, maxFrame int) *Messenger {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}
	return &Messenger{stream: stream, timeout: timeout, maxFrame: maxFrame}
}

// Send writes msg as one frame and returns the bytes put on the wire. File
// bytes are streamed from the Payload without an intermediate copy.
func (m *Messenger) Send(msg Message) (int, error) {
	if p, ok := msg.(Payload); ok {
		return writeFrame(m.stream, []byte{byte(KindPayload)}, p.Data)
	}
	payload, err := Marshal(msg)
	if err != nil {
		return 0, err
	}
	return WriteFrame(m.stream, payload)
}

// Receive reads the next message. A read that exceeds the inactivity window
// yields an error wrapping ErrTimeout; callers must check for it before treating
// the result as a message.
func (m *Messenger) Receive() (Message, error) {
	if m.timeout > 0 {
		if err := m.stream.SetReadDeadline(time.Now().Add(m.timeout)); err != nil {
			return nil, classify(err, "set deadline")
		}
	}
	payload, err := ReadFrame(m.stream, m.maxFrame)
	if err != nil {
		return nil, err
	}
	return Unmarshal(payload)
}

// ReceiveKind reads the next message and requires it to be of kind want.
// An Error message is returned as a *RemoteError.
func (m *Messenger) ReceiveKind(want Kind) (Message, error) {
	msg, err := m.Receive()
	if err != nil {
		return nil, err
	}
	if e, ok := msg.(Error); ok && want != KindError {
		return nil, &RemoteError{Code: e.Code, Message: e.Message}
	}
	if msg.Kind() != want {
		return nil, fmt.Errorf("%w: got %s want %s", ErrUnexpectedMessage, msg.Kind(), want)
	}
	return msg, nil
}
