package protocol

import (
	"encoding/json"
	"fmt"
)

// Marshal encodes m as a frame payload: one tag byte followed by the body.
func Marshal(m Message) ([]byte, error) {
	kind, body, err := encode(m)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1+len(body))
	out[0] = byte(kind)
	copy(out[1:], body)
	return out, nil
}

// encode returns the tag and body of m. A Payload body aliases its Data.
func encode(m Message) (Kind, []byte, error) {
	switch v := m.(type) {
	case ListRequest, DownloadRequest, Disconnect, UnknownRequest:
		return KindRequest, []byte(Command(v)), nil
	case ListResponse:
		names := v.Names
		if names == nil {
			names = []string{}
		}
		body, err := json.Marshal(names)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal list: %w", err)
		}
		return KindList, body, nil
	case Checksum:
		return KindChecksum, []byte(v.Value), nil
	case Payload:
		return KindPayload, v.Data, nil
	case Error:
		body, err := json.Marshal(v)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal error: %w", err)
		}
		return KindError, body, nil
	case nil:
		return 0, nil, fmt.Errorf("%w: nil message", ErrUnknownKind)
	default:
		return 0, nil, fmt.Errorf("%w: %T", ErrUnknownKind, m)
	}
}

// Unmarshal decodes a frame payload produced by Marshal.
func Unmarshal(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUnknownKind)
	}
	body := payload[1:]
	switch Kind(payload[0]) {
	case KindRequest:
		return ParseRequest(string(body)), nil
	case KindList:
		var names []string
		if err := json.Unmarshal(body, &names); err != nil {
			return nil, fmt.Errorf("unmarshal list: %w", err)
		}
		if names == nil {
			names = []string{}
		}
		return ListResponse{Names: names}, nil
	case KindChecksum:
		return Checksum{Value: string(body)}, nil
	case KindPayload:
		return Payload{Data: body}, nil
	case KindError:
		var e Error
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, fmt.Errorf("unmarshal error: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: tag %q", ErrUnknownKind, payload[0])
	}
}
