package call

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/BioHazard786/Huddle/cli/internal/media"
	"github.com/BioHazard786/Huddle/cli/internal/peer"
	"github.com/BioHazard786/Huddle/internal/wire"
)

// ToggleVideo flips the camera track and announces the new state. Receivers
// cannot observe a disabled track, so the announcement always goes out.
func (m *Manager) ToggleVideo() (bool, error) {
	return m.toggle("toggle video", media.KindVideo)
}

// ToggleAudio flips the microphone track and announces the new state.
func (m *Manager) ToggleAudio() (bool, error) {
	return m.toggle("toggle audio", media.KindAudio)
}

func (m *Manager) toggle(op string, kind media.Kind) (bool, error) {
	m.mu.Lock()
	if _, err := m.requireRoomLocked(op); err != nil {
		m.mu.Unlock()
		return false, err
	}

	var (
		track *media.Track
		on    bool
	)
	switch kind {
	case media.KindVideo:
		track = m.stream.VideoTrack()
		if track == nil {
			m.mu.Unlock()
			return false, opError(op, ErrNoVideoTrack)
		}
		m.local.Video = !m.local.Video
		on = m.local.Video
	case media.KindAudio:
		track = m.stream.AudioTrack()
		if track == nil {
			m.mu.Unlock()
			return false, opError(op, ErrNoAudioTrack)
		}
		m.local.Audio = !m.local.Audio
		on = m.local.Audio
	}
	track.SetEnabled(on)
	state := m.mediaStateLocked()
	m.mu.Unlock()

	m.sendRelay(state)
	m.notify()
	return on, nil
}

func (m *Manager) mediaStateLocked() wire.UpdateMediaState {
	return wire.UpdateMediaState{
		RoomID:      m.roomID,
		Video:       m.local.Video,
		Audio:       m.local.Audio,
		ScreenShare: m.local.ScreenShare,
	}
}

// StartScreenShare captures the screen and swaps it in as the outgoing
// video on every existing connection without renegotiating. If no
// connection accepts the screen, sharing is abandoned and nothing is
// announced.
func (m *Manager) StartScreenShare(ctx context.Context) error {
	m.mu.Lock()
	if _, err := m.requireRoomLocked("screen share"); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.screen != nil {
		m.mu.Unlock()
		return opError("screen share", ErrAlreadySharing)
	}
	m.mu.Unlock()

	if m.opts.Capturer == nil {
		return opError("screen share", ErrMediaUnavailable)
	}
	screen, err := m.opts.Capturer.OpenScreen(ctx)
	if err != nil {
		return opError("screen share", fmt.Errorf("%w: %w", ErrMediaUnavailable, err))
	}
	track := screen.VideoTrack()
	if track == nil {
		screen.Stop()
		return opError("screen share", ErrNoVideoTrack)
	}

	m.mu.Lock()
	if m.roomID == "" || m.screen != nil {
		m.mu.Unlock()
		screen.Stop()
		return opError("screen share", ErrNotInRoom)
	}
	m.screen = screen
	m.local.ScreenShare = true
	roomID := m.roomID
	conns := m.connectorsLocked()
	state := m.mediaStateLocked()
	m.mu.Unlock()

	if sent := m.replaceVideo(conns, track); len(conns) > 0 && sent == 0 {
		m.mu.Lock()
		if m.screen == screen {
			m.screen = nil
			m.local.ScreenShare = false
		}
		m.mu.Unlock()
		screen.Stop()
		m.notify()
		return opError("screen share", ErrScreenNotSent)
	}
	m.sendRelay(wire.StartScreenShare{RoomID: roomID})
	m.sendRelay(state)
	m.notify()
	return nil
}

// StopScreenShare restores the camera track on every connection.
func (m *Manager) StopScreenShare() error {
	m.mu.Lock()
	if m.screen == nil {
		m.mu.Unlock()
		return nil
	}
	screen := m.screen
	m.screen = nil
	m.local.ScreenShare = false
	camera := m.stream.VideoTrack()
	roomID := m.roomID
	conns := m.connectorsLocked()
	state := m.mediaStateLocked()
	m.mu.Unlock()

	m.replaceVideo(conns, camera)
	screen.Stop()
	m.sendRelay(wire.StopScreenShare{RoomID: roomID})
	m.sendRelay(state)
	m.notify()
	return nil
}

// replaceVideo reports how many connections took the new track.
func (m *Manager) replaceVideo(conns []*peer.Connector, track *media.Track) int {
	sent := 0
	for _, c := range conns {
		if err := c.ReplaceVideoTrack(track); err != nil {
			log.Warn().Err(&Error{Op: "replace video", Peer: c.PeerID(), Err: err}).Msg("Failed to replace outgoing video")
			continue
		}
		sent++
	}
	return sent
}

func (m *Manager) connectorsLocked() []*peer.Connector {
	var conns []*peer.Connector
	for _, id := range m.order {
		if c := m.peers[id].conn; c != nil {
			conns = append(conns, c)
		}
	}
	return conns
}

func (m *Manager) remoteScreenShare(id, name string, sharing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roomID == "" || id == m.selfID {
		return
	}
	state, ok := m.media[id]
	if !ok {
		state = defaultMedia
	}
	state.ScreenShare = sharing
	m.media[id] = state

	if p, ok := m.peers[id]; ok && p.name != "" {
		name = p.name
	}
	if sharing {
		m.systemLocked(displayName(name) + " started sharing their screen")
	} else {
		m.systemLocked(displayName(name) + " stopped sharing their screen")
	}
}
