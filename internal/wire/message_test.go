package wire

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDecodeRequest_JoinRoom(t *testing.T) {
	msg := &Message{Type: KindJoinRoom, Payload: json.RawMessage(`{"roomId":"ABC234","displayName":"ada"}`)}

	p, err := DecodeRequest(msg)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	join, ok := p.(*JoinRoom)
	if !ok {
		t.Fatalf("payload=%T, want *JoinRoom", p)
	}
	if join.RoomID != "ABC234" || join.DisplayName != "ada" {
		t.Fatalf("join=%+v", join)
	}
}

func TestDecodeRequest_RejectsUnknownKind(t *testing.T) {
	_, err := DecodeRequest(&Message{Type: "renegotiate", Payload: json.RawMessage(`{}`)})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err=%v, want ErrUnknownKind", err)
	}
}

func TestDecodeRequest_RejectsRelayOnlyKind(t *testing.T) {
	_, err := DecodeRequest(&Message{Type: KindRoomJoined, Payload: json.RawMessage(`{"roomId":"A","userId":"u"}`)})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err=%v, want ErrUnknownKind", err)
	}
}

func TestDecodeRequest_RejectsInvalidPayloads(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
	}{
		{"unknown field", Message{Type: KindJoinRoom, Payload: json.RawMessage(`{"roomId":"A","displayName":"b","admin":true}`)}},
		{"missing room", Message{Type: KindJoinRoom, Payload: json.RawMessage(`{"displayName":"b"}`)}},
		{"offer without target", Message{Type: KindOffer, Payload: json.RawMessage(`{"sdp":{"type":"offer","sdp":"v=0"}}`)}},
		{"offer with string sdp", Message{Type: KindOffer, Payload: json.RawMessage(`{"targetId":"x","sdp":"v=0"}`)}},
		{"candidate not object", Message{Type: KindICECandidate, Payload: json.RawMessage(`{"targetId":"x","candidate":[1]}`)}},
		{"blank chat", Message{Type: KindChatMessage, Payload: json.RawMessage(`{"roomId":"A","text":"   "}`)}},
		{"trailing data", Message{Type: KindLeaveRoom, Payload: json.RawMessage(`{} {}`)}},
		{"empty caption", Message{Type: KindCaption, Payload: json.RawMessage(`{"roomId":"A","caption":{"text":""}}`)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := tc.msg
			if _, err := DecodeRequest(&msg); !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("err=%v, want ErrInvalidPayload", err)
			}
		})
	}
}

func TestDecodeRequest_LeaveRoomWithoutPayload(t *testing.T) {
	p, err := DecodeRequest(&Message{Type: KindLeaveRoom})
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if _, ok := p.(*LeaveRoom); !ok {
		t.Fatalf("payload=%T, want *LeaveRoom", p)
	}
}

func TestEncode_RefusesInvalidPayload(t *testing.T) {
	if _, err := Encode(SendChat{RoomID: "A"}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("err=%v, want ErrInvalidPayload", err)
	}
}

func TestDecodeEvent_CaptionFlattensFields(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg, err := Encode(CaptionEvent{
		Caption:     Caption{ID: "c1", Text: "hello", Language: "en-US", IsFinal: true, Timestamp: ts},
		SpeakerID:   "u1",
		SpeakerName: "ada",
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var flat map[string]any
	if err := json.Unmarshal(msg.Payload, &flat); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if flat["text"] != "hello" || flat["speakerId"] != "u1" {
		t.Fatalf("payload=%s", msg.Payload)
	}

	p, err := DecodeEvent(msg)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	ev := p.(*CaptionEvent)
	if !ev.Timestamp.Equal(ts) || !ev.IsFinal || ev.SpeakerName != "ada" {
		t.Fatalf("event=%+v", ev)
	}
}

func TestParseDescription(t *testing.T) {
	raw, err := Raw(SessionDescription{Type: "answer", SDP: "v=0"})
	if err != nil {
		t.Fatalf("Raw: %v", err)
	}
	if _, err := ParseDescription(raw, "offer"); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("err=%v, want type mismatch", err)
	}
	desc, err := ParseDescription(raw, "answer")
	if err != nil {
		t.Fatalf("ParseDescription: %v", err)
	}
	if desc.SDP != "v=0" {
		t.Fatalf("sdp=%q", desc.SDP)
	}
}
