package wire

import (
	"encoding/json"
	"errors"
	"time"
)

// Participant is the public view of a room member.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoomJoined answers a JoinRoom with the members already present.
type RoomJoined struct {
	RoomID       string        `json:"roomId"`
	Participants []Participant `json:"participants"`
	UserID       string        `json:"userId"`
}

func (RoomJoined) Kind() Kind { return KindRoomJoined }

func (m RoomJoined) Validate() error {
	if m.RoomID == "" || m.UserID == "" {
		return errors.New("missing roomId or userId")
	}
	for _, p := range m.Participants {
		if p.ID == "" {
			return errors.New("participant without id")
		}
	}
	return nil
}

// UserJoined is broadcast to existing members when someone joins.
type UserJoined struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

func (UserJoined) Kind() Kind { return KindUserJoined }

func (m UserJoined) Validate() error { return requireUser(m.UserID) }

// UserLeft is broadcast to remaining members when someone leaves.
type UserLeft struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

func (UserLeft) Kind() Kind { return KindUserLeft }

func (m UserLeft) Validate() error { return requireUser(m.UserID) }

// RelayedOffer is an Offer as delivered to its target.
type RelayedOffer struct {
	SenderID   string          `json:"senderId"`
	SenderName string          `json:"senderName"`
	SDP        json.RawMessage `json:"sdp"`
}

func (RelayedOffer) Kind() Kind { return KindOffer }

func (m RelayedOffer) Validate() error { return validateDescription(m.SenderID, m.SDP) }

// RelayedAnswer is an Answer as delivered to its target.
type RelayedAnswer struct {
	SenderID string          `json:"senderId"`
	SDP      json.RawMessage `json:"sdp"`
}

func (RelayedAnswer) Kind() Kind { return KindAnswer }

func (m RelayedAnswer) Validate() error { return validateDescription(m.SenderID, m.SDP) }

// RelayedCandidate is an ICECandidate as delivered to its target.
type RelayedCandidate struct {
	SenderID  string          `json:"senderId"`
	Candidate json.RawMessage `json:"candidate"`
}

func (RelayedCandidate) Kind() Kind { return KindICECandidate }

func (m RelayedCandidate) Validate() error {
	if m.SenderID == "" {
		return errors.New("missing senderId")
	}
	if !isObject(m.Candidate) {
		return errors.New("candidate must be an object")
	}
	return nil
}

// ChatMessage is a relay-stamped chat line.
type ChatMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func (ChatMessage) Kind() Kind { return KindChatMessage }

func (m ChatMessage) Validate() error {
	if m.ID == "" || m.SenderID == "" {
		return errors.New("missing id or senderId")
	}
	return nil
}

// MediaState is another participant's declared media flags.
type MediaState struct {
	UserID      string `json:"userId"`
	Video       bool   `json:"video"`
	Audio       bool   `json:"audio"`
	ScreenShare bool   `json:"screenShare"`
}

func (MediaState) Kind() Kind { return KindMediaStateChange }

func (m MediaState) Validate() error { return requireUser(m.UserID) }

// CaptionEvent is a caption annotated with its speaker.
type CaptionEvent struct {
	Caption
	SpeakerID   string `json:"speakerId"`
	SpeakerName string `json:"speakerName"`
}

func (CaptionEvent) Kind() Kind { return KindCaption }

func (m CaptionEvent) Validate() error {
	if m.SpeakerID == "" {
		return errors.New("missing speakerId")
	}
	return m.Caption.validate()
}

// ScreenShareStarted announces that UserID began sharing.
type ScreenShareStarted struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

func (ScreenShareStarted) Kind() Kind { return KindScreenShareStart }

func (m ScreenShareStarted) Validate() error { return requireUser(m.UserID) }

// ScreenShareStopped announces that UserID stopped sharing.
type ScreenShareStopped struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

func (ScreenShareStopped) Kind() Kind { return KindScreenShareStop }

func (m ScreenShareStopped) Validate() error { return requireUser(m.UserID) }

// UserTyping relays another participant's typing indicator.
type UserTyping struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

func (UserTyping) Kind() Kind { return KindUserTyping }

func (m UserTyping) Validate() error { return requireUser(m.UserID) }

// ErrorEvent reports a request the relay refused.
type ErrorEvent struct {
	Message string `json:"error"`
}

func (ErrorEvent) Kind() Kind { return KindError }

func (m ErrorEvent) Validate() error {
	if m.Message == "" {
		return errors.New("missing error")
	}
	return nil
}

func requireUser(id string) error {
	if id == "" {
		return errors.New("missing userId")
	}
	return nil
}
