package protocol

// Kind tags every message on the wire. The tag is the first payload byte of a frame.
type Kind byte

const (
	KindRequest  Kind = 'R'
	KindList     Kind = 'N'
	KindChecksum Kind = 'C'
	KindPayload  Kind = 'P'
	KindError    Kind = 'E'
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindList:
		return "list"
	case KindChecksum:
		return "checksum"
	case KindPayload:
		return "payload"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Control vocabulary. DownloadPrefix includes the space that separates the filename.
const (
	ListCommand       = "!GET_FILE_LIST"
	DownloadPrefix    = "!DOWNLOAD "
	DisconnectCommand = "!DISCONNECT"
)

// MaxRequestSize is the largest request payload a server needs to accept: the
// tag byte and a download of a MaxNameLength name.
const MaxRequestSize = 1 + len(DownloadPrefix) + MaxNameLength

// Error codes carried by Error messages.
const (
	CodeNotFound       = "not_found"
	CodeInvalidName    = "invalid_name"
	CodeTooLarge       = "too_large"
	CodeUnknownRequest = "unknown_request"
	CodeInternal       = "internal"
)

// Message is one application message. Concrete types are listed below.
type Message interface {
	Kind() Kind
}

// ListRequest asks for the host directory listing.
type ListRequest struct{}

// DownloadRequest asks for the contents of one file.
type DownloadRequest struct {
	Name string
}

// Disconnect ends the session.
type Disconnect struct{}

// UnknownRequest is a request frame whose text matches no control command.
type UnknownRequest struct {
	Raw string
}

// ListResponse carries the filenames of the host directory.
type ListResponse struct {
	Names []string `json:"names"`
}

// Checksum carries the hex digest of the payload that follows it.
type Checksum struct {
	Value string
}

// Payload carries raw file bytes.
type Payload struct {
	Data []byte
}

// Error is a structured failure reply.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ListRequest) Kind() Kind     { return KindRequest }
func (DownloadRequest) Kind() Kind { return KindRequest }
func (Disconnect) Kind() Kind      { return KindRequest }
func (UnknownRequest) Kind() Kind  { return KindRequest }
func (ListResponse) Kind() Kind    { return KindList }
func (Checksum) Kind() Kind        { return KindChecksum }
func (Payload) Kind() Kind         { return KindPayload }
func (Error) Kind() Kind           { return KindError }

// Command returns the control string of a request message, or "" for responses.
func Command(m Message) string {
	switch v := m.(type) {
	case ListRequest:
		return ListCommand
	case DownloadRequest:
		return DownloadPrefix + v.Name
	case Disconnect:
		return DisconnectCommand
	case UnknownRequest:
		return v.Raw
	default:
		return ""
	}
}

// ParseRequest maps a control string onto its request message.
func ParseRequest(s string) Message {
	switch {
	case len(s) >= len(DownloadPrefix) && s[:len(DownloadPrefix)] == DownloadPrefix:
		return DownloadRequest{Name: s[len(DownloadPrefix):]}
	case s == ListCommand:
		return ListRequest{}
	case s == DisconnectCommand:
		return Disconnect{}
	default:
		return UnknownRequest{Raw: s}
	}
}
