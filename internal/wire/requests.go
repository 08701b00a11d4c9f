package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// JoinRoom asks the relay to place the sender in a room, creating it if needed.
type JoinRoom struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
}

func (JoinRoom) Kind() Kind { return KindJoinRoom }

func (m JoinRoom) Validate() error {
	if err := validateRoomID(m.RoomID); err != nil {
		return err
	}
	return validateName(m.DisplayName)
}

// LeaveRoom removes the sender from its current room.
type LeaveRoom struct{}

func (LeaveRoom) Kind() Kind      { return KindLeaveRoom }
func (LeaveRoom) Validate() error { return nil }

// Offer carries a session description to TargetID.
type Offer struct {
	TargetID string          `json:"targetId"`
	SDP      json.RawMessage `json:"sdp"`
}

func (Offer) Kind() Kind { return KindOffer }

func (m Offer) Validate() error {
	return validateDescription(m.TargetID, m.SDP)
}

// Answer carries the answering session description to TargetID.
type Answer struct {
	TargetID string          `json:"targetId"`
	SDP      json.RawMessage `json:"sdp"`
}

func (Answer) Kind() Kind { return KindAnswer }

func (m Answer) Validate() error {
	return validateDescription(m.TargetID, m.SDP)
}

// ICECandidate carries one trickled candidate to TargetID.
type ICECandidate struct {
	TargetID  string          `json:"targetId"`
	Candidate json.RawMessage `json:"candidate"`
}

func (ICECandidate) Kind() Kind { return KindICECandidate }

func (m ICECandidate) Validate() error {
	if m.TargetID == "" {
		return errors.New("missing targetId")
	}
	if !isObject(m.Candidate) {
		return errors.New("candidate must be an object")
	}
	return nil
}

// SendChat posts a chat line to the room. ID is optional; when it is a UUID
// the relay keeps it so every delivery path carries the same id.
type SendChat struct {
	RoomID string `json:"roomId"`
	ID     string `json:"id,omitempty"`
	Text   string `json:"text"`
}

func (SendChat) Kind() Kind { return KindChatMessage }

func (m SendChat) Validate() error {
	if err := validateRoomID(m.RoomID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Text) == "" {
		return errors.New("empty text")
	}
	if len(m.Text) > MaxChatBytes {
		return fmt.Errorf("text exceeds %d bytes", MaxChatBytes)
	}
	return nil
}

// UpdateMediaState announces the sender's declared media flags.
type UpdateMediaState struct {
	RoomID      string `json:"roomId"`
	Video       bool   `json:"video"`
	Audio       bool   `json:"audio"`
	ScreenShare bool   `json:"screenShare"`
}

func (UpdateMediaState) Kind() Kind { return KindMediaStateChange }

func (m UpdateMediaState) Validate() error { return validateRoomID(m.RoomID) }

// Caption is one live caption line.
type Caption struct {
	ID        string    `json:"id,omitempty"`
	Text      string    `json:"text"`
	Language  string    `json:"language,omitempty"`
	IsFinal   bool      `json:"isFinal"`
	Timestamp time.Time `json:"timestamp"`
}

func (c Caption) validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return errors.New("empty caption text")
	}
	if len(c.Text) > MaxCaptionBytes {
		return fmt.Errorf("caption exceeds %d bytes", MaxCaptionBytes)
	}
	return nil
}

// SendCaption shares a caption with the rest of the room.
type SendCaption struct {
	RoomID  string  `json:"roomId"`
	Caption Caption `json:"caption"`
}

func (SendCaption) Kind() Kind { return KindCaption }

func (m SendCaption) Validate() error {
	if err := validateRoomID(m.RoomID); err != nil {
		return err
	}
	return m.Caption.validate()
}

// StartScreenShare tells the room the sender began sharing its screen.
type StartScreenShare struct {
	RoomID string `json:"roomId"`
}

func (StartScreenShare) Kind() Kind { return KindScreenShareStart }

func (m StartScreenShare) Validate() error { return validateRoomID(m.RoomID) }

// StopScreenShare tells the room the sender stopped sharing its screen.
type StopScreenShare struct {
	RoomID string `json:"roomId"`
}

func (StopScreenShare) Kind() Kind { return KindScreenShareStop }

func (m StopScreenShare) Validate() error { return validateRoomID(m.RoomID) }

// Typing toggles the sender's typing indicator.
type Typing struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

func (Typing) Kind() Kind { return KindTyping }

func (m Typing) Validate() error { return validateRoomID(m.RoomID) }

func validateRoomID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("missing roomId")
	}
	if len(id) > MaxRoomIDBytes {
		return fmt.Errorf("roomId exceeds %d bytes", MaxRoomIDBytes)
	}
	return nil
}

func validateName(name string) error {
	if !utf8.ValidString(name) {
		return errors.New("name is not valid utf-8")
	}
	if utf8.RuneCountInString(name) > MaxNameRunes {
		return fmt.Errorf("name exceeds %d characters", MaxNameRunes)
	}
	return nil
}

func validateDescription(target string, sdp json.RawMessage) error {
	if target == "" {
		return errors.New("missing targetId")
	}
	if !isObject(sdp) {
		return errors.New("sdp must be an object")
	}
	if len(sdp) > MaxDescriptionBytes {
		return fmt.Errorf("sdp exceeds %d bytes", MaxDescriptionBytes)
	}
	return nil
}
