package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTimeout is returned when a read exceeds the inactivity window.
	ErrTimeout = errors.New("receive timed out")
	// ErrPeerClosed indicates the peer closed the connection before a frame completed.
	ErrPeerClosed = errors.New("peer closed connection")
	// ErrMalformedHeader indicates the length header is not a decimal number.
	ErrMalformedHeader = errors.New("malformed frame header")
	// ErrFrameTooLarge indicates a frame exceeds the configured maximum size.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrUnexpectedMessage indicates a message of the wrong kind for the protocol state.
	ErrUnexpectedMessage = errors.New("unexpected message")
	// ErrUnknownKind indicates a frame whose tag byte is not a known kind.
	ErrUnknownKind = errors.New("unknown message kind")
	// ErrChecksumMismatch indicates a payload whose digest differs from the announced one.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrInvalidName indicates a filename that is empty, too long, or escapes the directory.
	ErrInvalidName = errors.New("invalid filename")
)

// MaxNameLength bounds a filename in bytes.
const MaxNameLength = 255

// RemoteError is an Error message received from the peer.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return "remote error: " + e.Code
	}
	return fmt.Sprintf("remote error: %s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a remote not_found error.
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// HasCode reports whether err is a remote error with the given code.
func HasCode(err error, code string) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Code == code
}

// ValidateName ensures name refers to a file directly inside a directory.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return ErrInvalidName
	}
	if len(name) > MaxNameLength {
		return ErrInvalidName
	}
	return nil
}
