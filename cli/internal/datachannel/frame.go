// Package datachannel defines the msgpack frames exchanged over a peer's
// chat data channel.
package datachannel

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

type Type string

const (
	TypeChat      Type = "chat"
	TypeFileStart Type = "file-start"
	TypeFileChunk Type = "file-chunk"
	TypeFileEnd   Type = "file-end"
)

var ErrUnknownType = errors.New("unknown frame type")

// Frame is one data channel message.
type Frame struct {
	Type    Type               `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// Chat mirrors a relay chat message so either copy dedups against the other.
type Chat struct {
	ID        string `msgpack:"id"`
	SenderID  string `msgpack:"senderId"`
	Sender    string `msgpack:"sender"`
	Text      string `msgpack:"text"`
	Timestamp int64  `msgpack:"timestamp"` // unix milliseconds
}

// FileStart announces a file; chunks and the end frame reference its ID.
type FileStart struct {
	ID       string `msgpack:"id"`
	Name     string `msgpack:"name"`
	Size     uint64 `msgpack:"size"`
	MimeType string `msgpack:"mimeType"`
	SenderID string `msgpack:"senderId"`
	Sender   string `msgpack:"sender"`
}

type FileChunk struct {
	ID     string `msgpack:"id"`
	Offset uint64 `msgpack:"offset"`
	Bytes  []byte `msgpack:"bytes"`
}

type FileEnd struct {
	ID string `msgpack:"id"`
}

// NewFrame creates a frame with the given type and payload.
func NewFrame(t Type, payload any) (Frame, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: t, Payload: b}, nil
}

// Encode is NewFrame followed by marshalling the frame itself.
func Encode(t Type, payload any) ([]byte, error) {
	f, err := NewFrame(t, payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(f)
}

// Decode parses a received frame. Unknown types are an error.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	switch f.Type {
	case TypeChat, TypeFileStart, TypeFileChunk, TypeFileEnd:
		return f, nil
	}
	return Frame{}, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
}

// DecodePayload decodes the frame payload into v.
func (f Frame) DecodePayload(v any) error {
	return msgpack.Unmarshal(f.Payload, v)
}
