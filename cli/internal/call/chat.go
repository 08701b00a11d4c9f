package call

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/BioHazard786/Huddle/cli/internal/datachannel"
	"github.com/BioHazard786/Huddle/cli/internal/peer"
	"github.com/BioHazard786/Huddle/internal/wire"
)

// SendMessage posts a chat line. The id is generated once here and rides on
// both the relay copy and the data channel copies, so receivers can drop
// whichever arrives second.
func (m *Manager) SendMessage(text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, opError("send message", ErrEmptyMessage)
	}
	if len(text) > wire.MaxChatBytes {
		return Message{}, opError("send message", ErrMessageTooLong)
	}

	m.mu.Lock()
	roomID, err := m.requireRoomLocked("send message")
	if err != nil {
		m.mu.Unlock()
		return Message{}, err
	}
	msg := Message{
		ID:        uuid.NewString(),
		Kind:      KindChat,
		SenderID:  m.selfID,
		Sender:    m.opts.Name,
		Text:      text,
		Timestamp: time.Now(),
	}
	m.seen[msg.ID] = struct{}{}
	m.messages = append(m.messages, msg)
	channels := m.openChannelsLocked()
	m.mu.Unlock()
	m.notify()

	m.sendRelay(wire.SendChat{RoomID: roomID, ID: msg.ID, Text: text})

	frame, err := datachannel.Encode(datachannel.TypeChat, datachannel.Chat{
		ID:        msg.ID,
		SenderID:  msg.SenderID,
		Sender:    msg.Sender,
		Text:      msg.Text,
		Timestamp: msg.Timestamp.UnixMilli(),
	})
	if err != nil {
		return msg, opError("send message", err)
	}
	for peerID, dc := range channels {
		if err := dc.Send(frame); err != nil {
			log.Debug().Err(err).Str("peer_id", peerID).Msg("Failed to send chat over data channel")
		}
	}
	return msg, nil
}

// receiveChat inserts a chat line from any delivery path unless it is our
// own echo or an id already shown.
func (m *Manager) receiveChat(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.roomID == "" || msg.ID == "" {
		return
	}
	if m.selfID != "" && msg.SenderID == m.selfID {
		return
	}
	if _, ok := m.seen[msg.ID]; ok {
		return
	}
	m.seen[msg.ID] = struct{}{}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	m.messages = append(m.messages, msg)
}

func (m *Manager) systemLocked(text string) {
	m.messages = append(m.messages, Message{
		ID:        uuid.NewString(),
		Kind:      KindSystem,
		Text:      text,
		Timestamp: time.Now(),
	})
}

func (m *Manager) openChannelsLocked() map[string]peer.DataChannel {
	channels := make(map[string]peer.DataChannel)
	for id, p := range m.peers {
		if p.channel != nil && p.channel.Open() {
			channels[id] = p.channel
		}
	}
	return channels
}

// SendCaption shares a caption line with the room. Interim lines replace
// the current caption; final lines also join the history.
func (m *Manager) SendCaption(text, language string, final bool) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return opError("send caption", ErrEmptyMessage)
	}
	if len(text) > wire.MaxCaptionBytes {
		return opError("send caption", ErrMessageTooLong)
	}

	m.mu.Lock()
	roomID, err := m.requireRoomLocked("send caption")
	if err != nil {
		m.mu.Unlock()
		return err
	}
	c := Caption{
		ID:          uuid.NewString(),
		SpeakerID:   m.selfID,
		SpeakerName: m.opts.Name,
		Text:        text,
		Language:    language,
		Final:       final,
		Timestamp:   time.Now(),
	}
	m.addCaptionLocked(c)
	m.mu.Unlock()
	m.notify()

	m.sendRelay(wire.SendCaption{RoomID: roomID, Caption: wire.Caption{
		ID:        c.ID,
		Text:      c.Text,
		Language:  c.Language,
		IsFinal:   c.Final,
		Timestamp: c.Timestamp,
	}})
	return nil
}

func (m *Manager) receiveCaption(e *wire.CaptionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roomID == "" || e.SpeakerID == m.selfID {
		return
	}
	name := e.SpeakerName
	if p, ok := m.peers[e.SpeakerID]; ok && p.name != "" {
		name = p.name
	}
	m.addCaptionLocked(Caption{
		ID:          e.ID,
		SpeakerID:   e.SpeakerID,
		SpeakerName: name,
		Text:        e.Text,
		Language:    e.Language,
		Final:       e.IsFinal,
		Timestamp:   e.Timestamp,
	})
}

func (m *Manager) addCaptionLocked(c Caption) {
	m.caption = &c
	if !c.Final {
		return
	}
	m.captions = append(m.captions, c)
	if n := len(m.captions); n > maxCaptions {
		m.captions = append([]Caption(nil), m.captions[n-maxCaptions:]...)
	}
}

// StartTyping announces typing once and stops automatically after the idle
// period. Each call pushes the deadline back.
func (m *Manager) StartTyping() {
	m.mu.Lock()
	if m.roomID == "" {
		m.mu.Unlock()
		return
	}
	roomID := m.roomID
	first := !m.typing
	m.typing = true
	if m.typingTimer != nil {
		m.typingTimer.Stop()
	}
	m.typingTimer = time.AfterFunc(m.opts.TypingIdle, m.StopTyping)
	m.mu.Unlock()

	if first {
		m.sendRelay(wire.Typing{RoomID: roomID, IsTyping: true})
	}
}

func (m *Manager) StopTyping() {
	m.mu.Lock()
	if m.typingTimer != nil {
		m.typingTimer.Stop()
		m.typingTimer = nil
	}
	was := m.typing
	m.typing = false
	roomID := m.roomID
	m.mu.Unlock()

	if was && roomID != "" {
		m.sendRelay(wire.Typing{RoomID: roomID, IsTyping: false})
	}
}

// remoteTyping records another participant's indicator. Entries expire on
// their own if the stop notice never arrives.
func (m *Manager) remoteTyping(id, name string, typing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roomID == "" || id == m.selfID {
		return
	}
	if old, ok := m.typingPeers[id]; ok {
		old.timer.Stop()
		delete(m.typingPeers, id)
	}
	if !typing {
		return
	}
	if p, ok := m.peers[id]; ok && p.name != "" {
		name = p.name
	}
	entry := &typingEntry{name: name}
	entry.timer = time.AfterFunc(m.opts.TypingExpiry, func() { m.expireTyping(id, entry) })
	m.typingPeers[id] = entry
}

func (m *Manager) expireTyping(id string, entry *typingEntry) {
	m.mu.Lock()
	if m.typingPeers[id] != entry {
		m.mu.Unlock()
		return
	}
	delete(m.typingPeers, id)
	m.mu.Unlock()
	m.notify()
}
