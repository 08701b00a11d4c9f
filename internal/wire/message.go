// Package wire defines the signaling protocol spoken between the relay and
// its clients. Every message kind is a distinct Go type with its own schema;
// frames with unknown kinds or unexpected fields are rejected.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Kind names a signaling message variant.
type Kind string

// Client to relay.
const (
	KindJoinRoom         Kind = "join-room"
	KindLeaveRoom        Kind = "leave-room"
	KindOffer            Kind = "offer"
	KindAnswer           Kind = "answer"
	KindICECandidate     Kind = "ice-candidate"
	KindChatMessage      Kind = "chat-message"
	KindMediaStateChange Kind = "media-state-change"
	KindCaption          Kind = "caption"
	KindScreenShareStart Kind = "screen-share-start"
	KindScreenShareStop  Kind = "screen-share-stop"
	KindTyping           Kind = "typing"
)

// Relay to client. Relayed offers, answers, candidates, chat, media state,
// captions and screen share notices reuse the request kinds above.
const (
	KindRoomJoined Kind = "room-joined"
	KindUserJoined Kind = "user-joined"
	KindUserLeft   Kind = "user-left"
	KindUserTyping Kind = "user-typing"
	KindError      Kind = "error"
)

// Field limits enforced by Validate.
const (
	MaxRoomIDBytes      = 64
	MaxNameRunes        = 64
	MaxChatBytes        = 4096
	MaxCaptionBytes     = 1024
	MaxDescriptionBytes = 32 * 1024
)

var (
	ErrUnknownKind    = errors.New("unknown message kind")
	ErrInvalidPayload = errors.New("invalid payload")
)

// Message is the envelope every signaling frame travels in.
type Message struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Payload is implemented by every message variant.
type Payload interface {
	Kind() Kind
	Validate() error
}

// Encode validates p and wraps it in an envelope.
func Encode(p Payload) (*Message, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, p.Kind(), err)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", p.Kind(), err)
	}
	return &Message{Type: p.Kind(), Payload: b}, nil
}

// DecodeRequest decodes a frame sent by a client to the relay.
func DecodeRequest(m *Message) (Payload, error) {
	return decode(m, requests)
}

// DecodeEvent decodes a frame sent by the relay to a client.
func DecodeEvent(m *Message) (Payload, error) {
	return decode(m, events)
}

var requests = map[Kind]func() Payload{
	KindJoinRoom:         func() Payload { return new(JoinRoom) },
	KindLeaveRoom:        func() Payload { return new(LeaveRoom) },
	KindOffer:            func() Payload { return new(Offer) },
	KindAnswer:           func() Payload { return new(Answer) },
	KindICECandidate:     func() Payload { return new(ICECandidate) },
	KindChatMessage:      func() Payload { return new(SendChat) },
	KindMediaStateChange: func() Payload { return new(UpdateMediaState) },
	KindCaption:          func() Payload { return new(SendCaption) },
	KindScreenShareStart: func() Payload { return new(StartScreenShare) },
	KindScreenShareStop:  func() Payload { return new(StopScreenShare) },
	KindTyping:           func() Payload { return new(Typing) },
}

var events = map[Kind]func() Payload{
	KindRoomJoined:       func() Payload { return new(RoomJoined) },
	KindUserJoined:       func() Payload { return new(UserJoined) },
	KindUserLeft:         func() Payload { return new(UserLeft) },
	KindOffer:            func() Payload { return new(RelayedOffer) },
	KindAnswer:           func() Payload { return new(RelayedAnswer) },
	KindICECandidate:     func() Payload { return new(RelayedCandidate) },
	KindChatMessage:      func() Payload { return new(ChatMessage) },
	KindMediaStateChange: func() Payload { return new(MediaState) },
	KindCaption:          func() Payload { return new(CaptionEvent) },
	KindScreenShareStart: func() Payload { return new(ScreenShareStarted) },
	KindScreenShareStop:  func() Payload { return new(ScreenShareStopped) },
	KindUserTyping:       func() Payload { return new(UserTyping) },
	KindError:            func() Payload { return new(ErrorEvent) },
}

func decode(m *Message, table map[Kind]func() Payload) (Payload, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: empty frame", ErrInvalidPayload)
	}
	newPayload, ok := table[m.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, m.Type)
	}

	p := newPayload()
	raw := bytes.TrimSpace(m.Payload)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, m.Type, err)
		}
		if err := dec.Decode(&struct{}{}); err != io.EOF {
			return nil, fmt.Errorf("%w: %s: unexpected trailing data", ErrInvalidPayload, m.Type)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, m.Type, err)
	}
	return p, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 1 && trimmed[0] == '{' && json.Valid(trimmed)
}
