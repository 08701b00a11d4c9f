// Package call keeps one user's call session: the roster of remote
// participants, a peer connector per participant, declared media state,
// chat, captions, typing indicators and file transfers.
package call

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/BioHazard786/Huddle/cli/internal/media"
	"github.com/BioHazard786/Huddle/cli/internal/peer"
	"github.com/BioHazard786/Huddle/internal/roomcode"
	"github.com/BioHazard786/Huddle/internal/wire"
)

const (
	DefaultTypingIdle   = 2 * time.Second
	DefaultTypingExpiry = 3 * time.Second
	maxCaptions         = 50
)

// Relay is the signaling connection.
type Relay interface {
	Connect(ctx context.Context) error
	Send(p wire.Payload) error
	Events() <-chan wire.Payload
	Close()
}

// Rooms pre-creates rooms on the relay.
type Rooms interface {
	Create(ctx context.Context) (string, error)
}

type Options struct {
	Name        string
	Constraints media.Constraints
	OutputDir   string

	Relay    Relay
	Rooms    Rooms
	Capturer media.Capturer
	Factory  peer.Factory

	TypingIdle   time.Duration
	TypingExpiry time.Duration
}

type participant struct {
	id       string
	name     string
	joinedAt time.Time
	conn     *peer.Connector
	channel  peer.DataChannel
	tracks   []peer.RemoteTrack
}

type typingEntry struct {
	name  string
	timer *time.Timer
}

// Manager owns the call session. Relay events are applied by a single
// goroutine; user operations and transport callbacks share mu.
type Manager struct {
	opts    Options
	updates chan struct{}

	mu       sync.Mutex
	status   Status
	relayUp  bool
	closing  bool
	roomID   string
	selfID   string
	joinedAt time.Time

	stream *media.Stream
	screen *media.Stream
	local  MediaState

	peers   map[string]*participant
	order   []string
	media   map[string]MediaState
	pending map[string][]wire.Candidate

	messages []Message
	seen     map[string]struct{}

	caption  *Caption
	captions []Caption

	typing      bool
	typingTimer *time.Timer
	typingPeers map[string]*typingEntry

	transfers []*Transfer
	sending   bool
	incoming  map[fileKey]*incomingFile
}

func New(opts Options) *Manager {
	if opts.TypingIdle <= 0 {
		opts.TypingIdle = DefaultTypingIdle
	}
	if opts.TypingExpiry <= 0 {
		opts.TypingExpiry = DefaultTypingExpiry
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	m := &Manager{
		opts:    opts,
		updates: make(chan struct{}, 1),
		status:  StatusDisconnected,
	}
	m.resetLocked()
	return m
}

func (m *Manager) resetLocked() {
	m.roomID = ""
	m.selfID = ""
	m.joinedAt = time.Time{}
	m.stream = nil
	m.screen = nil
	m.local = MediaState{}
	m.peers = make(map[string]*participant)
	m.order = nil
	m.media = make(map[string]MediaState)
	m.pending = make(map[string][]wire.Candidate)
	m.messages = nil
	m.seen = make(map[string]struct{})
	m.caption = nil
	m.captions = nil
	m.typing = false
	m.typingTimer = nil
	m.typingPeers = make(map[string]*typingEntry)
	m.transfers = nil
	m.sending = false
	m.incoming = make(map[fileKey]*incomingFile)
}

// Updates signals that the snapshot changed. Notifications coalesce.
func (m *Manager) Updates() <-chan struct{} {
	return m.updates
}

func (m *Manager) notify() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}

// CreateRoom pre-creates a room on the relay, or generates a code locally
// when the relay cannot be reached, and joins it.
func (m *Manager) CreateRoom(ctx context.Context) (string, error) {
	var id string
	if m.opts.Rooms != nil {
		created, err := m.opts.Rooms.Create(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to pre-create room, generating a code locally")
		} else {
			id = created
		}
	}
	if id == "" {
		id = roomcode.Generate()
	}
	if err := m.JoinRoom(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// NormalizeRoomID trims and upper-cases id. Any non-empty id the relay
// accepts is joinable, including codes generated elsewhere; ids outside
// the generated alphabet are only logged.
func NormalizeRoomID(id string) (string, error) {
	code := roomcode.Normalize(id)
	if code == "" || len(code) > wire.MaxRoomIDBytes {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoomCode, id)
	}
	if !roomcode.Valid(code) {
		log.Warn().Str("room", code).Msg("Room code is not in the usual format")
	}
	return code, nil
}

// JoinRoom acquires local media and joins the room. Media failure aborts
// the join. An unreachable relay leaves the session in local-only mode.
func (m *Manager) JoinRoom(ctx context.Context, id string) error {
	code, err := NormalizeRoomID(id)
	if err != nil {
		return opError("join", err)
	}

	m.mu.Lock()
	if m.roomID != "" || m.status == StatusConnecting {
		m.mu.Unlock()
		return opError("join", ErrAlreadyInRoom)
	}
	m.status = StatusConnecting
	m.mu.Unlock()
	m.notify()

	stream, err := m.acquireMedia(ctx)
	if err != nil {
		m.mu.Lock()
		m.status = StatusDisconnected
		m.mu.Unlock()
		m.notify()
		return opError("join", err)
	}

	m.mu.Lock()
	m.roomID = code
	m.joinedAt = time.Now()
	m.stream = stream
	m.local = MediaState{Video: stream.VideoTrack() != nil, Audio: stream.AudioTrack() != nil}
	relayUp := m.relayUp
	m.mu.Unlock()

	if !relayUp {
		if err := m.opts.Relay.Connect(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to connect to relay")
			m.goLocal("Failed to connect to server. Using local mode.")
			return nil
		}
		m.mu.Lock()
		m.relayUp = true
		m.mu.Unlock()
		go m.run(m.opts.Relay.Events())
	}

	if err := m.opts.Relay.Send(wire.JoinRoom{RoomID: code, DisplayName: m.opts.Name}); err != nil {
		log.Warn().Err(err).Msg("Failed to send join request")
		m.goLocal("Failed to connect to server. Using local mode.")
		return nil
	}
	m.notify()
	return nil
}

func (m *Manager) acquireMedia(ctx context.Context) (*media.Stream, error) {
	c := m.opts.Constraints
	if !c.Audio && !c.Video {
		return &media.Stream{}, nil
	}
	if m.opts.Capturer == nil {
		return nil, ErrMediaUnavailable
	}
	stream, err := m.opts.Capturer.Open(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMediaUnavailable, err)
	}
	return stream, nil
}

func (m *Manager) goLocal(text string) {
	m.mu.Lock()
	m.status = StatusLocalOnly
	m.systemLocked(text)
	m.mu.Unlock()
	m.notify()
}

// run applies relay events until the relay connection ends.
func (m *Manager) run(events <-chan wire.Payload) {
	if events == nil {
		return
	}
	for ev := range events {
		m.handle(ev)
	}
	m.relayLost()
}

func (m *Manager) relayLost() {
	m.mu.Lock()
	m.relayUp = false
	if m.closing {
		m.mu.Unlock()
		return
	}
	if m.roomID != "" {
		m.status = StatusLocalOnly
		m.systemLocked("Lost connection to server. Existing calls stay up.")
	} else {
		m.status = StatusDisconnected
	}
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) handle(ev wire.Payload) {
	switch e := ev.(type) {
	case *wire.RoomJoined:
		m.handleRoomJoined(e)
	case *wire.UserJoined:
		m.handleUserJoined(e)
	case *wire.UserLeft:
		m.handleUserLeft(e)
	case *wire.RelayedOffer:
		m.handleOffer(e)
	case *wire.RelayedAnswer:
		if c := m.connector(e.SenderID); c != nil {
			c.HandleAnswer(e.SDP)
		} else {
			log.Debug().Str("peer_id", e.SenderID).Msg("Answer from unknown peer")
		}
	case *wire.RelayedCandidate:
		m.handleCandidate(e)
	case *wire.ChatMessage:
		m.receiveChat(Message{
			ID:        e.ID,
			Kind:      KindChat,
			SenderID:  e.SenderID,
			Sender:    e.Sender,
			Text:      e.Text,
			Timestamp: e.Timestamp,
		})
	case *wire.MediaState:
		m.mu.Lock()
		if e.UserID != m.selfID {
			m.media[e.UserID] = MediaState{Video: e.Video, Audio: e.Audio, ScreenShare: e.ScreenShare}
		}
		m.mu.Unlock()
	case *wire.CaptionEvent:
		m.receiveCaption(e)
	case *wire.ScreenShareStarted:
		m.remoteScreenShare(e.UserID, e.UserName, true)
	case *wire.ScreenShareStopped:
		m.remoteScreenShare(e.UserID, e.UserName, false)
	case *wire.UserTyping:
		m.remoteTyping(e.UserID, e.UserName, e.IsTyping)
	case *wire.ErrorEvent:
		m.mu.Lock()
		m.systemLocked("Server: " + e.Message)
		m.mu.Unlock()
	default:
		log.Debug().Str("type", string(ev.Kind())).Msg("Ignoring relay event")
		return
	}
	m.notify()
}

func (m *Manager) handleRoomJoined(e *wire.RoomJoined) {
	m.mu.Lock()
	if m.roomID == "" || roomcode.Normalize(e.RoomID) != m.roomID {
		m.mu.Unlock()
		log.Debug().Str("room_id", e.RoomID).Msg("Ignoring room-joined for another room")
		return
	}
	m.selfID = e.UserID
	m.status = StatusConnected
	m.mu.Unlock()

	log.Info().Str("room_id", e.RoomID).Int("participants", len(e.Participants)).Msg("Joined room")

	// The newcomer offers to everyone already present.
	for _, p := range e.Participants {
		if p.ID == e.UserID {
			continue
		}
		m.upsert(p.ID, p.Name, true)
	}
}

func (m *Manager) handleUserJoined(e *wire.UserJoined) {
	m.mu.Lock()
	if e.UserID == m.selfID || m.roomID == "" {
		m.mu.Unlock()
		return
	}
	_, known := m.peers[e.UserID]
	if !known {
		m.systemLocked(displayName(e.UserName) + " joined")
	}
	m.mu.Unlock()

	// Existing members wait for the newcomer's offer.
	m.upsert(e.UserID, e.UserName, false)
}

func (m *Manager) handleUserLeft(e *wire.UserLeft) {
	m.mu.Lock()
	p := m.removePeerLocked(e.UserID)
	if p != nil {
		m.systemLocked(displayName(p.name) + " left")
	}
	m.mu.Unlock()

	if p != nil && p.conn != nil {
		p.conn.Close()
	}
}

func (m *Manager) handleOffer(e *wire.RelayedOffer) {
	c := m.connector(e.SenderID)
	if c == nil {
		// An offer can overtake the user-joined notice.
		c = m.upsert(e.SenderID, e.SenderName, false)
	}
	if c == nil {
		log.Debug().Str("peer_id", e.SenderID).Msg("Dropping offer with no connector")
		return
	}
	c.HandleOffer(e.SDP)
}

func (m *Manager) handleCandidate(e *wire.RelayedCandidate) {
	cand, err := wire.ParseCandidate(e.Candidate)
	if err != nil {
		log.Debug().Err(err).Str("peer_id", e.SenderID).Msg("Ignoring malformed candidate")
		return
	}

	m.mu.Lock()
	p, ok := m.peers[e.SenderID]
	if !ok || p.conn == nil {
		if m.roomID != "" {
			m.pending[e.SenderID] = append(m.pending[e.SenderID], cand)
		}
		m.mu.Unlock()
		return
	}
	c := p.conn
	m.mu.Unlock()
	c.AddCandidate(cand)
}

func (m *Manager) connector(id string) *peer.Connector {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[id]; ok {
		return p.conn
	}
	return nil
}

// upsert adds a participant and builds its connector. A participant that
// is already present only has its name refreshed.
func (m *Manager) upsert(id, name string, asOfferer bool) *peer.Connector {
	m.mu.Lock()
	if m.roomID == "" || id == "" || id == m.selfID {
		m.mu.Unlock()
		return nil
	}
	if p, ok := m.peers[id]; ok {
		if name != "" {
			p.name = name
		}
		c := p.conn
		m.mu.Unlock()
		return c
	}
	p := &participant{id: id, name: name, joinedAt: time.Now()}
	m.peers[id] = p
	m.order = append(m.order, id)
	tracks := m.outgoingTracksLocked()
	pending := m.pending[id]
	delete(m.pending, id)
	m.mu.Unlock()

	c, err := peer.NewConnector(peer.Config{
		PeerID:          id,
		PeerName:        name,
		AsOfferer:       asOfferer,
		Factory:         m.opts.Factory,
		Signaler:        m.opts.Relay,
		Tracks:          tracks,
		OnDataChannel:   m.attachChannel,
		OnRemoteTrack:   m.addRemoteTrack,
		OnTransportLost: m.dropPeer,
	})
	if err != nil {
		log.Warn().Err(&Error{Op: "connect", Peer: id, Err: err}).Msg("Failed to create peer connector")
		return nil
	}

	m.mu.Lock()
	if m.peers[id] != p {
		m.mu.Unlock()
		c.Close()
		return nil
	}
	p.conn = c
	m.mu.Unlock()

	for _, cand := range pending {
		c.AddCandidate(cand)
	}
	m.notify()
	return c
}

func (m *Manager) outgoingTracksLocked() []*media.Track {
	var tracks []*media.Track
	if t := m.stream.AudioTrack(); t != nil {
		tracks = append(tracks, t)
	}
	if m.screen != nil {
		if t := m.screen.VideoTrack(); t != nil {
			tracks = append(tracks, t)
		}
	} else if t := m.stream.VideoTrack(); t != nil {
		tracks = append(tracks, t)
	}
	return tracks
}

func (m *Manager) attachChannel(peerID string, dc peer.DataChannel) {
	dc.OnMessage(func(data []byte) { m.handleFrame(peerID, data) })
	dc.OnOpen(m.notify)
	dc.OnClose(m.notify)

	m.mu.Lock()
	if p, ok := m.peers[peerID]; ok {
		p.channel = dc
	}
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) addRemoteTrack(peerID string, t peer.RemoteTrack) {
	m.mu.Lock()
	if p, ok := m.peers[peerID]; ok {
		p.tracks = append(p.tracks, t)
	}
	m.mu.Unlock()
	m.notify()
}

// dropPeer is the teardown path for a lost transport. Only that peer is
// affected.
func (m *Manager) dropPeer(c *peer.Connector) {
	m.mu.Lock()
	var name string
	if p, ok := m.peers[c.PeerID()]; ok && p.conn == c {
		m.removePeerLocked(p.id)
		name = p.name
		m.systemLocked("Lost connection to " + displayName(name))
	}
	m.mu.Unlock()

	c.Close()
	m.notify()
}

func (m *Manager) removePeerLocked(id string) *participant {
	p, ok := m.peers[id]
	delete(m.pending, id)
	delete(m.media, id)
	if t, ok := m.typingPeers[id]; ok {
		t.timer.Stop()
		delete(m.typingPeers, id)
	}
	m.abortIncomingLocked(id)
	if !ok {
		return nil
	}
	delete(m.peers, id)
	for i, pid := range m.order {
		if pid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return p
}

// LeaveRoom notifies the relay, closes every peer connector, stops local
// media and clears all per-room state.
func (m *Manager) LeaveRoom() {
	m.mu.Lock()
	if m.roomID == "" {
		m.mu.Unlock()
		return
	}
	roomID := m.roomID
	relayUp := m.relayUp
	var conns []*peer.Connector
	for _, p := range m.peers {
		if p.conn != nil {
			conns = append(conns, p.conn)
		}
	}
	stream, screen := m.stream, m.screen
	if m.typingTimer != nil {
		m.typingTimer.Stop()
	}
	for _, t := range m.typingPeers {
		t.timer.Stop()
	}
	for key := range m.incoming {
		m.abortIncomingLocked(key.peer)
	}
	m.resetLocked()
	if relayUp {
		m.status = StatusConnected
	} else {
		m.status = StatusDisconnected
	}
	m.mu.Unlock()

	if relayUp {
		if err := m.opts.Relay.Send(wire.LeaveRoom{}); err != nil {
			log.Debug().Err(err).Msg("Failed to send leave")
		}
	}
	for _, c := range conns {
		c.Close()
	}
	stream.Stop()
	screen.Stop()

	log.Info().Str("room_id", roomID).Msg("Left room")
	m.notify()
}

// Close leaves the room and closes the relay connection.
func (m *Manager) Close() {
	m.LeaveRoom()
	m.mu.Lock()
	m.closing = true
	m.status = StatusDisconnected
	m.mu.Unlock()
	m.opts.Relay.Close()
	m.notify()
}

// Snapshot copies the session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Status:   m.status,
		RoomID:   m.roomID,
		SelfID:   m.selfID,
		Name:     m.opts.Name,
		Local:    m.local,
		JoinedAt: m.joinedAt,
		Messages: append([]Message(nil), m.messages...),
		Captions: append([]Caption(nil), m.captions...),
	}
	for _, id := range m.order {
		p := m.peers[id]
		mediaState, ok := m.media[id]
		if !ok {
			mediaState = defaultMedia
		}
		view := Participant{
			ID:       p.id,
			Name:     p.name,
			Media:    mediaState,
			State:    "connecting",
			Channel:  p.channel != nil && p.channel.Open(),
			Tracks:   len(p.tracks),
			JoinedAt: p.joinedAt,
		}
		if p.conn != nil {
			view.State = p.conn.State().String()
		}
		s.Participants = append(s.Participants, view)
	}
	if m.caption != nil {
		c := *m.caption
		s.Caption = &c
	}
	for _, t := range m.typingPeers {
		s.Typing = append(s.Typing, displayName(t.name))
	}
	sort.Strings(s.Typing)
	for _, t := range m.transfers {
		s.Transfers = append(s.Transfers, *t)
	}
	return s
}

// MediaOf returns the declared media state of a participant.
func (m *Manager) MediaOf(id string) MediaState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.media[id]; ok {
		return s
	}
	return defaultMedia
}

func (m *Manager) sendRelay(p wire.Payload) {
	m.mu.Lock()
	up := m.relayUp
	m.mu.Unlock()
	if !up {
		return
	}
	if err := m.opts.Relay.Send(p); err != nil {
		log.Debug().Err(err).Str("type", string(p.Kind())).Msg("Failed to send to relay")
	}
}

func (m *Manager) requireRoomLocked(op string) (string, error) {
	if m.roomID == "" {
		return "", opError(op, ErrNotInRoom)
	}
	return m.roomID, nil
}

func displayName(name string) string {
	if name == "" {
		return "Someone"
	}
	return name
}
