package call

import (
	"time"
)

// Status is the session's connection to the relay.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	// StatusLocalOnly means the relay is unreachable. Established peer
	// transports keep running but no new peers can be negotiated.
	StatusLocalOnly Status = "local-only"
)

// MediaState is a participant's declared media flags.
type MediaState struct {
	Video       bool
	Audio       bool
	ScreenShare bool
}

var defaultMedia = MediaState{Video: true, Audio: true}

type MessageKind string

const (
	KindChat   MessageKind = "chat"
	KindSystem MessageKind = "system"
	KindFile   MessageKind = "file"
)

// Message is one transcript entry.
type Message struct {
	ID        string
	Kind      MessageKind
	SenderID  string
	Sender    string
	Text      string
	Timestamp time.Time
}

type Caption struct {
	ID          string
	SpeakerID   string
	SpeakerName string
	Text        string
	Language    string
	Final       bool
	Timestamp   time.Time
}

type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
)

type TransferStatus string

const (
	TransferActive   TransferStatus = "transferring"
	TransferComplete TransferStatus = "complete"
	TransferFailed   TransferStatus = "failed"
)

// Transfer tracks one file moving over the data channels. For outgoing
// files Total is the file size times the number of receiving peers.
type Transfer struct {
	ID        string
	Name      string
	Size      int64
	Direction Direction
	Peer      string
	Path      string
	Done      int64
	Total     int64
	Status    TransferStatus
	Err       string
}

// Participant is a remote room member as seen by this session.
type Participant struct {
	ID       string
	Name     string
	Media    MediaState
	State    string
	Channel  bool
	Tracks   int
	JoinedAt time.Time
}

// Snapshot is a copy of the session state for rendering.
type Snapshot struct {
	Status       Status
	RoomID       string
	SelfID       string
	Name         string
	Local        MediaState
	JoinedAt     time.Time
	Participants []Participant
	Messages     []Message
	Caption      *Caption
	Captions     []Caption
	Typing       []string
	Transfers    []Transfer
}
