package peer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/BioHazard786/Huddle/cli/internal/media"
	"github.com/BioHazard786/Huddle/internal/wire"
)

// pliInterval is how often a keyframe is requested on incoming video.
const pliInterval = 3 * time.Second

// PionFactory creates pion peer connections.
type PionFactory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

// NewPionFactory registers the default codecs and uses the given ICE
// servers and transport policy for every connection.
func NewPionFactory(iceServers []webrtc.ICEServer, policy webrtc.ICETransportPolicy) (*PionFactory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	return &PionFactory{
		api: webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		config: webrtc.Configuration{
			ICEServers:         iceServers,
			ICETransportPolicy: policy,
		},
	}, nil
}

func (f *PionFactory) NewConnection(h Handlers) (Connection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, err
	}
	c := &pionConnection{pc: pc, done: make(chan struct{})}
	states := newStateWatcher(func() TransportState { return transportState(pc.ConnectionState()) }, h.OnStateChange)
	go states.run(c.done)

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || h.OnCandidate == nil {
			return
		}
		init := cand.ToJSON()
		h.OnCandidate(wire.Candidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})

	// pion fires each state change on its own goroutine, so the watcher
	// re-reads the current state instead of trusting the callback order.
	pc.OnConnectionStateChange(func(webrtc.PeerConnectionState) {
		states.kick()
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := media.KindAudio
		if remote.Kind() == webrtc.RTPCodecTypeVideo {
			kind = media.KindVideo
			go c.requestKeyframes(uint32(remote.SSRC()))
		}
		go drain(remote)
		if h.OnTrack != nil {
			go h.OnTrack(RemoteTrack{ID: remote.ID(), StreamID: remote.StreamID(), Kind: kind})
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if h.OnDataChannel != nil {
			go h.OnDataChannel(&pionDataChannel{dc: dc})
		}
	})

	return c, nil
}

type pionConnection struct {
	pc *webrtc.PeerConnection

	mu     sync.Mutex
	video  *webrtc.RTPSender
	closed bool
	done   chan struct{}
}

func (c *pionConnection) AddTracks(tracks []*media.Track) error {
	for _, t := range tracks {
		local := t.Local()
		if local == nil {
			continue
		}
		sender, err := c.pc.AddTrack(local)
		if err != nil {
			return err
		}
		if t.Kind() == media.KindVideo {
			c.mu.Lock()
			c.video = sender
			c.mu.Unlock()
		}
		go readRTCP(sender)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.video != nil {
		return nil
	}
	// Without a camera there is still a video slot, so a screen share can
	// be swapped in later and remote video can be received.
	tr, err := c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		return fmt.Errorf("reserve video sender: %w", err)
	}
	c.video = tr.Sender()
	go readRTCP(c.video)
	return nil
}

func (c *pionConnection) ReplaceVideoTrack(t *media.Track) error {
	c.mu.Lock()
	sender := c.video
	c.mu.Unlock()
	if sender == nil {
		return errors.New("no outgoing video to replace")
	}
	if t == nil {
		return sender.ReplaceTrack(nil)
	}
	return sender.ReplaceTrack(t.Local())
}

func (c *pionConnection) CreateOffer() (wire.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return wire.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return wire.SessionDescription{}, err
	}
	return wire.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (c *pionConnection) AcceptOffer(offer wire.SessionDescription) (wire.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		return wire.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return wire.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return wire.SessionDescription{}, err
	}
	return wire.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (c *pionConnection) AcceptAnswer(answer wire.SessionDescription) error {
	return c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP})
}

func (c *pionConnection) AddICECandidate(cand wire.Candidate) error {
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        cand.Candidate,
		SDPMid:           cand.SDPMid,
		SDPMLineIndex:    cand.SDPMLineIndex,
		UsernameFragment: cand.UsernameFragment,
	})
}

func (c *pionConnection) CreateDataChannel(label string) (DataChannel, error) {
	ordered := true
	dc, err := c.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, err
	}
	return &pionDataChannel{dc: dc}, nil
}

func (c *pionConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	return c.pc.Close()
}

// requestKeyframes sends a PLI now and then periodically until the
// connection closes.
func (c *pionConnection) requestKeyframes(ssrc uint32) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		if err := c.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}}); err != nil {
			return
		}
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}
	}
}

// drain consumes incoming RTP so interceptors keep running. Rendering is
// left to whatever consumes the remote stream.
func drain(remote *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := remote.Read(buf); err != nil {
			return
		}
	}
}

// readRTCP services incoming RTCP for an outgoing track.
func readRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func transportState(s webrtc.PeerConnectionState) TransportState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return TransportFailed
	case webrtc.PeerConnectionStateClosed:
		return TransportClosed
	default:
		return TransportNew
	}
}

type pionDataChannel struct {
	dc *webrtc.DataChannel
}

func (d *pionDataChannel) Label() string { return d.dc.Label() }
func (d *pionDataChannel) Open() bool    { return d.dc.ReadyState() == webrtc.DataChannelStateOpen }

func (d *pionDataChannel) Send(data []byte) error { return d.dc.Send(data) }

func (d *pionDataChannel) OnOpen(f func()) { d.dc.OnOpen(f) }

func (d *pionDataChannel) OnMessage(f func([]byte)) {
	d.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		f(msg.Data)
	})
}

func (d *pionDataChannel) OnClose(f func()) { d.dc.OnClose(f) }

func (d *pionDataChannel) BufferedAmount() uint64 { return d.dc.BufferedAmount() }

func (d *pionDataChannel) SetBufferedAmountLowThreshold(th uint64) {
	d.dc.SetBufferedAmountLowThreshold(th)
}

func (d *pionDataChannel) OnBufferedAmountLow(f func()) { d.dc.OnBufferedAmountLow(f) }

func (d *pionDataChannel) Close() error {
	if err := d.dc.Close(); err != nil {
		log.Debug().Err(err).Str("label", d.dc.Label()).Msg("Error closing data channel")
		return err
	}
	return nil
}
