package wire

import (
	"encoding/json"
	"fmt"
)

// SessionDescription is the JSON form of an SDP offer or answer.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Candidate is the JSON form of a trickled ICE candidate.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Raw encodes v for use as an sdp or candidate field.
func Raw(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ParseDescription decodes a relayed sdp field and checks its type.
func ParseDescription(raw json.RawMessage, want string) (SessionDescription, error) {
	var desc SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return SessionDescription{}, fmt.Errorf("%w: sdp: %v", ErrInvalidPayload, err)
	}
	if desc.Type != want {
		return SessionDescription{}, fmt.Errorf("%w: sdp type %q, want %q", ErrInvalidPayload, desc.Type, want)
	}
	if desc.SDP == "" {
		return SessionDescription{}, fmt.Errorf("%w: empty sdp", ErrInvalidPayload)
	}
	return desc, nil
}

// ParseCandidate decodes a relayed candidate field.
func ParseCandidate(raw json.RawMessage) (Candidate, error) {
	var c Candidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return Candidate{}, fmt.Errorf("%w: candidate: %v", ErrInvalidPayload, err)
	}
	return c, nil
}
