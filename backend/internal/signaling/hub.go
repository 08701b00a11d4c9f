package signaling

import (
	"strings"
	"sync"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/BioHazard786/Huddle/backend/internal/clock"
	"github.com/BioHazard786/Huddle/backend/internal/metrics"
	"github.com/BioHazard786/Huddle/internal/wire"
)

// Per-connection defaults.
const (
	DefaultMaxMessageBytes   = 64 * 1024
	DefaultMessagesPerSecond = 50

	sendQueueSize = 256
)

// HubOptions tunes the limits applied to each connection.
type HubOptions struct {
	MaxMessageBytes   int64
	MessagesPerSecond int
	Clock             clock.Clock
}

type inbound struct {
	client  *Client
	payload wire.Payload
	err     error
}

// Hub routes signaling messages between connected clients. Run is the only
// goroutine that touches the connection table or any Client's send queue.
type Hub struct {
	registry *Registry
	metrics  *metrics.Metrics
	opts     HubOptions

	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a hub that keeps membership in registry.
func NewHub(registry *Registry, m *metrics.Metrics, opts HubOptions) *Hub {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = DefaultMessagesPerSecond
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Hub{
		registry:   registry,
		metrics:    m,
		opts:       opts,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound, sendQueueSize),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Registry returns the room registry the hub routes with.
func (h *Hub) Registry() *Registry { return h.registry }

// Stop ends Run, which closes every connection's send queue on its way out.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Run is the hub's event loop.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case c := <-h.register:
			h.clients[c.ID] = c
			h.metrics.Inc(metrics.Connections)
			log.Debug().Str("client", c.ID).Str("remote", c.remoteAddr()).Msg("Client registered")

		case c := <-h.unregister:
			if _, ok := h.clients[c.ID]; !ok {
				continue
			}
			h.leave(c)
			delete(h.clients, c.ID)
			h.closeSend(c)
			h.metrics.Inc(metrics.Disconnections)
			log.Debug().Str("client", c.ID).Msg("Client unregistered")

		case in := <-h.inbound:
			if _, ok := h.clients[in.client.ID]; !ok {
				continue
			}
			if in.err != nil {
				h.metrics.Inc(metrics.DroppedInvalid)
				log.Warn().Err(in.err).Str("client", in.client.ID).Msg("Dropping malformed message")
				h.reply(in.client, wire.ErrorEvent{Message: "Invalid message"})
				continue
			}
			h.route(in.client, in.payload)

		case <-h.quit:
			for id, c := range h.clients {
				h.registry.Leave(id)
				h.closeSend(c)
			}
			h.clients = make(map[string]*Client)
			return
		}
	}
}

func (h *Hub) route(c *Client, p wire.Payload) {
	switch m := p.(type) {
	case *wire.JoinRoom:
		h.join(c, m)

	case *wire.LeaveRoom:
		h.leave(c)

	case *wire.Offer:
		if target := h.peer(c, m.TargetID); target != nil {
			h.send(target, wire.RelayedOffer{SenderID: c.ID, SenderName: c.name, SDP: m.SDP})
		}

	case *wire.Answer:
		if target := h.peer(c, m.TargetID); target != nil {
			h.send(target, wire.RelayedAnswer{SenderID: c.ID, SDP: m.SDP})
		}

	case *wire.ICECandidate:
		if target := h.peer(c, m.TargetID); target != nil {
			h.send(target, wire.RelayedCandidate{SenderID: c.ID, Candidate: m.Candidate})
		}

	case *wire.SendChat:
		if !h.inRoom(c, m.RoomID) {
			return
		}
		id := m.ID
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		h.broadcast(m.RoomID, "", wire.ChatMessage{
			ID:        id,
			Sender:    c.name,
			SenderID:  c.ID,
			Text:      m.Text,
			Timestamp: h.opts.Clock.Now().UTC(),
		})

	case *wire.UpdateMediaState:
		if h.inRoom(c, m.RoomID) {
			h.broadcast(m.RoomID, c.ID, wire.MediaState{
				UserID:      c.ID,
				Video:       m.Video,
				Audio:       m.Audio,
				ScreenShare: m.ScreenShare,
			})
		}

	case *wire.SendCaption:
		if h.inRoom(c, m.RoomID) {
			caption := m.Caption
			if caption.Timestamp.IsZero() {
				caption.Timestamp = h.opts.Clock.Now().UTC()
			}
			h.broadcast(m.RoomID, c.ID, wire.CaptionEvent{Caption: caption, SpeakerID: c.ID, SpeakerName: c.name})
		}

	case *wire.StartScreenShare:
		if h.inRoom(c, m.RoomID) {
			h.broadcast(m.RoomID, c.ID, wire.ScreenShareStarted{UserID: c.ID, UserName: c.name})
		}

	case *wire.StopScreenShare:
		if h.inRoom(c, m.RoomID) {
			h.broadcast(m.RoomID, c.ID, wire.ScreenShareStopped{UserID: c.ID, UserName: c.name})
		}

	case *wire.Typing:
		if h.inRoom(c, m.RoomID) {
			h.broadcast(m.RoomID, c.ID, wire.UserTyping{UserID: c.ID, UserName: c.name, IsTyping: m.IsTyping})
		}

	default:
		h.metrics.Inc(metrics.DroppedInvalid)
		log.Warn().Str("client", c.ID).Str("type", string(p.Kind())).Msg("Unhandled message kind")
		return
	}
	h.metrics.Inc(metrics.MessagesRelayed)
}

func (h *Hub) join(c *Client, m *wire.JoinRoom) {
	name := strings.TrimSpace(m.DisplayName)
	if name == "" {
		name = petname.Generate(2, "-")
	}

	res, err := h.registry.Join(m.RoomID, c.ID, name)
	if err != nil {
		log.Warn().Err(err).Str("client", c.ID).Msg("Join refused")
		h.reply(c, wire.ErrorEvent{Message: "Invalid room id"})
		return
	}
	if res.Left != nil {
		h.announceLeave(*res.Left)
	}
	c.name = name

	existing := make([]wire.Participant, 0, len(res.Existing))
	for _, p := range res.Existing {
		existing = append(existing, p.Public())
	}
	h.send(c, wire.RoomJoined{RoomID: res.RoomID, Participants: existing, UserID: c.ID})

	if res.Rejoined {
		return
	}
	log.Info().Str("room", res.RoomID).Str("client", c.ID).Str("name", name).Int("existing", len(existing)).Msg("Participant joined")
	h.fanout(res.Existing, "", wire.UserJoined{UserID: c.ID, UserName: name})
}

func (h *Hub) leave(c *Client) {
	res, ok := h.registry.Leave(c.ID)
	if !ok {
		return
	}
	h.announceLeave(res)
}

func (h *Hub) announceLeave(res LeaveResult) {
	log.Info().Str("room", res.RoomID).Str("client", res.Participant.ID).Int("remaining", len(res.Remaining)).Msg("Participant left")
	h.fanout(res.Remaining, "", wire.UserLeft{UserID: res.Participant.ID, UserName: res.Participant.Name})
}

// peer resolves targetID, requiring it to share a room with c.
func (h *Hub) peer(c *Client, targetID string) *Client {
	from, ok := h.registry.RoomOf(c.ID)
	if !ok {
		h.metrics.Inc(metrics.DroppedNotInRoom)
		log.Debug().Str("client", c.ID).Msg("Signal from client outside any room")
		return nil
	}
	to, ok := h.registry.RoomOf(targetID)
	target := h.clients[targetID]
	if !ok || to != from || target == nil {
		h.metrics.Inc(metrics.DroppedUnknownTarget)
		log.Debug().Str("client", c.ID).Str("target", targetID).Msg("Signal target not in sender's room")
		return nil
	}
	return target
}

func (h *Hub) inRoom(c *Client, roomID string) bool {
	if current, ok := h.registry.RoomOf(c.ID); ok && current == roomID {
		return true
	}
	h.metrics.Inc(metrics.DroppedNotInRoom)
	log.Debug().Str("client", c.ID).Str("room", roomID).Msg("Sender is not in room")
	return false
}

// broadcast delivers p to every member of roomID except skipID.
func (h *Hub) broadcast(roomID, skipID string, p wire.Payload) {
	h.fanout(h.registry.Members(roomID), skipID, p)
}

func (h *Hub) fanout(members []Participant, skipID string, p wire.Payload) {
	msg, err := wire.Encode(p)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode broadcast")
		return
	}
	for _, member := range members {
		if member.ID == skipID {
			continue
		}
		if c, ok := h.clients[member.ID]; ok {
			h.deliver(c, msg)
		}
	}
}

func (h *Hub) send(c *Client, p wire.Payload) {
	msg, err := wire.Encode(p)
	if err != nil {
		log.Error().Err(err).Str("client", c.ID).Msg("Failed to encode message")
		return
	}
	h.deliver(c, msg)
}

func (h *Hub) reply(c *Client, e wire.ErrorEvent) {
	h.send(c, e)
}

// deliver queues msg without blocking the loop. A client whose queue is
// full is evicted; its read pump notices the closed socket and unregisters.
func (h *Hub) deliver(c *Client, msg *wire.Message) {
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.metrics.Inc(metrics.ClientsEvicted)
		log.Warn().Str("client", c.ID).Msg("Send queue full, evicting client")
		h.closeSend(c)
	}
}

func (h *Hub) closeSend(c *Client) {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// enqueue hands a message from a read pump to the loop. It gives up once
// the hub is stopping.
func (h *Hub) enqueue(in inbound) bool {
	select {
	case h.inbound <- in:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) attach(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}
