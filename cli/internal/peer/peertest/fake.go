// Package peertest provides an in-memory transport for exercising
// connectors without a network.
package peertest

import (
	"errors"
	"sync"

	"github.com/BioHazard786/Huddle/cli/internal/media"
	"github.com/BioHazard786/Huddle/cli/internal/peer"
	"github.com/BioHazard786/Huddle/internal/wire"
)

// Factory records every connection it creates.
type Factory struct {
	mu    sync.Mutex
	conns []*Connection

	// FailNext makes the next NewConnection return an error.
	FailNext bool
}

func (f *Factory) NewConnection(h peer.Handlers) (peer.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailNext {
		f.FailNext = false
		return nil, errors.New("fake: connection refused")
	}
	c := &Connection{Handlers: h}
	f.conns = append(f.conns, c)
	return c, nil
}

// Connections returns the connections created so far.
func (f *Factory) Connections() []*Connection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Connection(nil), f.conns...)
}

// Last returns the most recent connection.
func (f *Factory) Last() *Connection {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

// Connection is a scripted peer.Connection.
type Connection struct {
	Handlers peer.Handlers

	// ReplaceErr makes every ReplaceVideoTrack fail.
	ReplaceErr error

	mu         sync.Mutex
	tracks     []*media.Track
	sender     bool
	video      *media.Track
	local      *wire.SessionDescription
	remote     *wire.SessionDescription
	candidates []wire.Candidate
	channels   []*DataChannel
	closed     bool
}

func (c *Connection) AddTracks(tracks []*media.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = append(c.tracks, tracks...)
	// Like the pion transport, adding tracks always leaves a video sender.
	c.sender = true
	for _, t := range tracks {
		if t.Kind() == media.KindVideo {
			c.video = t
		}
	}
	return nil
}

func (c *Connection) ReplaceVideoTrack(t *media.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sender {
		return errors.New("fake: no outgoing video to replace")
	}
	if c.ReplaceErr != nil {
		return c.ReplaceErr
	}
	c.video = t
	return nil
}

func (c *Connection) CreateOffer() (wire.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := wire.SessionDescription{Type: "offer", SDP: "v=0 fake-offer"}
	c.local = &d
	return d, nil
}

func (c *Connection) AcceptOffer(offer wire.SessionDescription) (wire.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote = &offer
	d := wire.SessionDescription{Type: "answer", SDP: "v=0 fake-answer"}
	c.local = &d
	return d, nil
}

func (c *Connection) AcceptAnswer(answer wire.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local == nil {
		return errors.New("fake: no local offer")
	}
	c.remote = &answer
	return nil
}

func (c *Connection) AddICECandidate(cand wire.Candidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == nil {
		return errors.New("fake: candidate before remote description")
	}
	c.candidates = append(c.candidates, cand)
	return nil
}

func (c *Connection) CreateDataChannel(label string) (peer.DataChannel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dc := NewDataChannel(label)
	c.channels = append(c.channels, dc)
	return dc, nil
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, dc := range c.channels {
		dc.Close()
	}
	return nil
}

// Candidates returns the remote candidates applied so far, in order.
func (c *Connection) Candidates() []wire.Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wire.Candidate(nil), c.candidates...)
}

func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) Video() *media.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.video
}

func (c *Connection) Tracks() []*media.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*media.Track(nil), c.tracks...)
}

func (c *Connection) RemoteDescription() *wire.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

// Channels returns the data channels this side created.
func (c *Connection) Channels() []*DataChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*DataChannel(nil), c.channels...)
}

// DataChannel is an in-memory channel. Link two of them to carry messages.
type DataChannel struct {
	label string

	mu        sync.Mutex
	open      bool
	closed    bool
	sent      [][]byte
	peer      *DataChannel
	onOpen    func()
	onMessage func([]byte)
	onClose   func()
	onLow     func()
	threshold uint64
}

func NewDataChannel(label string) *DataChannel {
	return &DataChannel{label: label}
}

// Link connects a and b so that Send on one delivers to the other.
func Link(a, b *DataChannel) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

// SetOpen marks the channel open and fires OnOpen.
func (d *DataChannel) SetOpen() {
	d.mu.Lock()
	d.open = true
	f := d.onOpen
	d.mu.Unlock()
	if f != nil {
		f()
	}
}

// Deliver fires OnMessage as if data arrived from the peer.
func (d *DataChannel) Deliver(data []byte) {
	d.mu.Lock()
	f := d.onMessage
	d.mu.Unlock()
	if f != nil {
		f(data)
	}
}

// Sent returns every payload passed to Send.
func (d *DataChannel) Sent() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.sent...)
}

func (d *DataChannel) Label() string { return d.label }

func (d *DataChannel) Open() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open && !d.closed
}

func (d *DataChannel) Send(data []byte) error {
	d.mu.Lock()
	if !d.open || d.closed {
		d.mu.Unlock()
		return errors.New("fake: channel not open")
	}
	cp := append([]byte(nil), data...)
	d.sent = append(d.sent, cp)
	remote := d.peer
	d.mu.Unlock()

	if remote != nil {
		remote.Deliver(cp)
	}
	return nil
}

func (d *DataChannel) OnOpen(f func()) {
	d.mu.Lock()
	d.onOpen = f
	d.mu.Unlock()
}

func (d *DataChannel) OnMessage(f func([]byte)) {
	d.mu.Lock()
	d.onMessage = f
	d.mu.Unlock()
}

func (d *DataChannel) OnClose(f func()) {
	d.mu.Lock()
	d.onClose = f
	d.mu.Unlock()
}

// BufferedAmount is always zero: sends complete immediately.
func (d *DataChannel) BufferedAmount() uint64 { return 0 }

func (d *DataChannel) SetBufferedAmountLowThreshold(th uint64) {
	d.mu.Lock()
	d.threshold = th
	d.mu.Unlock()
}

func (d *DataChannel) OnBufferedAmountLow(f func()) {
	d.mu.Lock()
	d.onLow = f
	d.mu.Unlock()
}

func (d *DataChannel) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	f := d.onClose
	d.mu.Unlock()
	if f != nil {
		f()
	}
	return nil
}

// Signaler records every payload sent through it.
type Signaler struct {
	mu   sync.Mutex
	sent []wire.Payload
}

func (s *Signaler) Send(p wire.Payload) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.sent = append(s.sent, p)
	s.mu.Unlock()
	return nil
}

func (s *Signaler) Sent() []wire.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.Payload(nil), s.sent...)
}
