package peer

import (
	"github.com/BioHazard786/Huddle/cli/internal/media"
	"github.com/BioHazard786/Huddle/internal/wire"
)

// ChatChannelLabel names the data channel the offerer opens.
const ChatChannelLabel = "chat"

// RemoteTrack describes media arriving from the remote peer.
type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     media.Kind
}

// Handlers receive transport callbacks. OnCandidate may be called
// synchronously; the others are called on their own goroutines.
type Handlers struct {
	OnCandidate   func(wire.Candidate)
	OnStateChange func(TransportState)
	OnTrack       func(RemoteTrack)
	OnDataChannel func(DataChannel)
}

// Factory creates transport connections.
type Factory interface {
	NewConnection(h Handlers) (Connection, error)
}

// Connection is one peer transport.
type Connection interface {
	AddTracks(tracks []*media.Track) error
	// ReplaceVideoTrack swaps the outgoing video in place without
	// renegotiating.
	ReplaceVideoTrack(t *media.Track) error

	// CreateOffer creates an offer and applies it locally.
	CreateOffer() (wire.SessionDescription, error)
	// AcceptOffer applies a remote offer and returns the applied local answer.
	AcceptOffer(offer wire.SessionDescription) (wire.SessionDescription, error)
	AcceptAnswer(answer wire.SessionDescription) error
	AddICECandidate(c wire.Candidate) error

	CreateDataChannel(label string) (DataChannel, error)
	Close() error
}

// DataChannel is a reliable ordered message channel to the peer.
type DataChannel interface {
	Label() string
	Open() bool
	Send(data []byte) error

	OnOpen(func())
	OnMessage(func([]byte))
	OnClose(func())

	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(th uint64)
	OnBufferedAmountLow(func())

	Close() error
}
