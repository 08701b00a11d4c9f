package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/BioHazard786/Huddle/cli/internal/media"
	"github.com/BioHazard786/Huddle/internal/wire"
)

var ErrClosed = errors.New("connector closed")

// Signaler carries negotiation messages to the remote peer.
type Signaler interface {
	Send(p wire.Payload) error
}

// Config describes the connector to build.
type Config struct {
	PeerID    string
	PeerName  string
	AsOfferer bool

	Factory  Factory
	Signaler Signaler
	Tracks   []*media.Track

	// OnDataChannel is called once per data channel, whichever side opened it.
	OnDataChannel func(peerID string, dc DataChannel)
	OnRemoteTrack func(peerID string, t RemoteTrack)

	// OnTransportLost is called once when the transport reports
	// disconnected or failed. The owner removes the connector and calls
	// Close.
	OnTransportLost func(c *Connector)
}

// Connector negotiates and owns the transport to one remote participant.
type Connector struct {
	cfg Config
	log zerolog.Logger

	mu            sync.Mutex
	state         State
	transport     TransportState
	conn          Connection
	remoteApplied bool
	pending       []wire.Candidate
	dataChannel   DataChannel
	remoteTracks  []RemoteTrack
	lostReported  bool
}

// NewConnector creates the transport and, for the offering side, opens the
// chat channel and sends the offer.
func NewConnector(cfg Config) (*Connector, error) {
	if cfg.Factory == nil || cfg.Signaler == nil {
		return nil, errors.New("connector needs a transport factory and a signaler")
	}

	c := &Connector{
		cfg: cfg,
		log: log.With().Str("peer_id", cfg.PeerID).Logger(),
	}

	conn, err := cfg.Factory.NewConnection(Handlers{
		OnCandidate:   c.sendCandidate,
		OnStateChange: c.handleTransportState,
		OnTrack:       c.handleTrack,
		OnDataChannel: c.attachDataChannel,
	})
	if err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	c.conn = conn

	if err := conn.AddTracks(cfg.Tracks); err != nil {
		conn.Close()
		return nil, fmt.Errorf("add tracks: %w", err)
	}

	if !cfg.AsOfferer {
		return c, nil
	}

	dc, err := conn.CreateDataChannel(ChatChannelLabel)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	c.attachDataChannel(dc)

	offer, err := conn.CreateOffer()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	raw, err := wire.Raw(offer)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c.mu.Lock()
	c.apply(EventLocalOffer)
	c.mu.Unlock()

	if err := cfg.Signaler.Send(wire.Offer{TargetID: cfg.PeerID, SDP: raw}); err != nil {
		c.log.Warn().Err(err).Msg("Failed to send offer")
	}
	return c, nil
}

func (c *Connector) PeerID() string   { return c.cfg.PeerID }
func (c *Connector) PeerName() string { return c.cfg.PeerName }
func (c *Connector) AsOfferer() bool  { return c.cfg.AsOfferer }

func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connector) TransportState() TransportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport
}

// DataChannel returns the chat channel, or nil before one exists.
func (c *Connector) DataChannel() DataChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dataChannel
}

func (c *Connector) RemoteTracks() []RemoteTrack {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]RemoteTrack(nil), c.remoteTracks...)
}

// HandleOffer answers a remote offer. It is only legal in the new state;
// anything else is logged and ignored.
func (c *Connector) HandleOffer(raw json.RawMessage) {
	desc, err := wire.ParseDescription(raw, "offer")
	if err != nil {
		c.log.Warn().Err(err).Msg("Ignoring malformed offer")
		return
	}

	c.mu.Lock()
	if _, ok := Next(c.state, EventRemoteOffer); !ok {
		c.log.Warn().Str("state", c.state.String()).Msg("Ignoring offer in unexpected state")
		c.mu.Unlock()
		return
	}
	answer, err := c.conn.AcceptOffer(desc)
	if err != nil {
		c.mu.Unlock()
		c.log.Warn().Err(err).Msg("Failed to accept offer")
		return
	}
	c.apply(EventRemoteOffer)
	c.remoteApplied = true
	c.flushPendingLocked()
	c.apply(EventLocalAnswer)
	c.mu.Unlock()

	raw, err = wire.Raw(answer)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to encode answer")
		return
	}
	if err := c.cfg.Signaler.Send(wire.Answer{TargetID: c.cfg.PeerID, SDP: raw}); err != nil {
		c.log.Warn().Err(err).Msg("Failed to send answer")
	}
}

// HandleAnswer applies the remote answer. It is only legal after this side
// sent an offer.
func (c *Connector) HandleAnswer(raw json.RawMessage) {
	desc, err := wire.ParseDescription(raw, "answer")
	if err != nil {
		c.log.Warn().Err(err).Msg("Ignoring malformed answer")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := Next(c.state, EventRemoteAnswer); !ok {
		c.log.Warn().Str("state", c.state.String()).Msg("Ignoring answer in unexpected state")
		return
	}
	if err := c.conn.AcceptAnswer(desc); err != nil {
		c.log.Warn().Err(err).Msg("Failed to accept answer")
		return
	}
	c.apply(EventRemoteAnswer)
	c.remoteApplied = true
	c.flushPendingLocked()
}

// HandleCandidate applies a remote candidate, queueing it until the remote
// description is in place.
func (c *Connector) HandleCandidate(raw json.RawMessage) {
	cand, err := wire.ParseCandidate(raw)
	if err != nil {
		c.log.Warn().Err(err).Msg("Ignoring malformed candidate")
		return
	}
	c.AddCandidate(cand)
}

// AddCandidate is HandleCandidate for an already parsed candidate.
func (c *Connector) AddCandidate(cand wire.Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}
	if !c.remoteApplied {
		c.pending = append(c.pending, cand)
		return
	}
	if err := c.conn.AddICECandidate(cand); err != nil {
		c.log.Debug().Err(err).Msg("Failed to add candidate")
	}
}

func (c *Connector) flushPendingLocked() {
	pending := c.pending
	c.pending = nil
	for _, cand := range pending {
		if err := c.conn.AddICECandidate(cand); err != nil {
			c.log.Debug().Err(err).Msg("Failed to add queued candidate")
		}
	}
}

// ReplaceVideoTrack swaps the outgoing video on the existing transport.
func (c *Connector) ReplaceVideoTrack(t *media.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return ErrClosed
	}
	return c.conn.ReplaceVideoTrack(t)
}

// Close releases the transport, the data channel and the remote media. It
// is safe to call more than once.
func (c *Connector) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.apply(EventClose)
	conn, dc := c.conn, c.dataChannel
	c.dataChannel = nil
	c.remoteTracks = nil
	c.pending = nil
	c.mu.Unlock()

	if dc != nil {
		dc.Close()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			c.log.Debug().Err(err).Msg("Error closing connection")
		}
	}
}

// apply runs one transition. Callers hold mu.
func (c *Connector) apply(e Event) {
	next, ok := Next(c.state, e)
	if !ok {
		c.log.Debug().Str("state", c.state.String()).Str("event", e.String()).Msg("Ignoring illegal transition")
		return
	}
	if next != c.state {
		c.log.Debug().Str("from", c.state.String()).Str("to", next.String()).Msg("Peer state changed")
	}
	c.state = next
}

func (c *Connector) sendCandidate(cand wire.Candidate) {
	raw, err := wire.Raw(cand)
	if err != nil {
		return
	}
	if err := c.cfg.Signaler.Send(wire.ICECandidate{TargetID: c.cfg.PeerID, Candidate: raw}); err != nil {
		c.log.Debug().Err(err).Msg("Failed to send candidate")
	}
}

func (c *Connector) handleTransportState(s TransportState) {
	c.mu.Lock()
	c.transport = s
	var event Event
	switch s {
	case TransportConnected:
		c.apply(EventTransportConnected)
		c.mu.Unlock()
		return
	case TransportDisconnected:
		event = EventTransportDisconnected
	case TransportFailed:
		event = EventTransportFailed
	default:
		c.mu.Unlock()
		return
	}

	if c.state == StateClosed || c.lostReported {
		c.mu.Unlock()
		return
	}
	c.apply(event)
	c.lostReported = true
	c.mu.Unlock()

	c.log.Info().Str("state", s.String()).Msg("Peer transport lost")
	if c.cfg.OnTransportLost != nil {
		c.cfg.OnTransportLost(c)
	} else {
		c.Close()
	}
}

func (c *Connector) handleTrack(t RemoteTrack) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.remoteTracks = append(c.remoteTracks, t)
	c.mu.Unlock()

	if c.cfg.OnRemoteTrack != nil {
		c.cfg.OnRemoteTrack(c.cfg.PeerID, t)
	}
}

func (c *Connector) attachDataChannel(dc DataChannel) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		dc.Close()
		return
	}
	c.dataChannel = dc
	c.mu.Unlock()

	if c.cfg.OnDataChannel != nil {
		c.cfg.OnDataChannel(c.cfg.PeerID, dc)
	}
}
