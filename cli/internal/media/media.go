// Package media is the local capture capability: it hands out the audio,
// video and screen tracks that peer connections send.
package media

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

var (
	ErrNoDevices = errors.New("no media devices requested")
	ErrStopped   = errors.New("track stopped")
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Constraints selects which devices Open acquires.
type Constraints struct {
	Audio bool
	Video bool
}

// Capturer acquires local media.
type Capturer interface {
	Open(ctx context.Context, c Constraints) (*Stream, error)
	OpenScreen(ctx context.Context) (*Stream, error)
}

// Track is one local media track. Disabling it keeps it negotiated but
// stops samples from reaching the wire.
type Track struct {
	id     string
	kind   Kind
	screen bool
	local  *webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	enabled bool
	stopped bool
}

func (t *Track) ID() string     { return t.id }
func (t *Track) Kind() Kind     { return t.kind }
func (t *Track) IsScreen() bool { return t.screen }

// Local is the pion track to attach to a connection.
func (t *Track) Local() webrtc.TrackLocal {
	if t.local == nil {
		return nil
	}
	return t.local
}

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled && !t.stopped
}

func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *Track) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// WriteSample forwards an encoded sample. It is dropped while the track is
// disabled and refused once the track is stopped.
func (t *Track) WriteSample(s pionmedia.Sample) error {
	t.mu.Lock()
	enabled, stopped := t.enabled, t.stopped
	t.mu.Unlock()

	if stopped {
		return ErrStopped
	}
	if !enabled || t.local == nil {
		return nil
	}
	return t.local.WriteSample(s)
}

// Stream groups the tracks returned by one capture request.
type Stream struct {
	ID     string
	Tracks []*Track
}

func (s *Stream) track(kind Kind) *Track {
	if s == nil {
		return nil
	}
	for _, t := range s.Tracks {
		if t.kind == kind {
			return t
		}
	}
	return nil
}

func (s *Stream) AudioTrack() *Track { return s.track(KindAudio) }
func (s *Stream) VideoTrack() *Track { return s.track(KindVideo) }

// Stop stops every track in the stream.
func (s *Stream) Stop() {
	if s == nil {
		return
	}
	for _, t := range s.Tracks {
		t.Stop()
	}
}

// SampleCapturer builds pion sample tracks (Opus audio, VP8 video). An
// external encoder feeds them through Track.WriteSample.
type SampleCapturer struct{}

func (SampleCapturer) Open(ctx context.Context, c Constraints) (*Stream, error) {
	if !c.Audio && !c.Video {
		return nil, ErrNoDevices
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream := &Stream{ID: uuid.NewString()}
	if c.Audio {
		t, err := newTrack(stream.ID, KindAudio, false)
		if err != nil {
			return nil, err
		}
		stream.Tracks = append(stream.Tracks, t)
	}
	if c.Video {
		t, err := newTrack(stream.ID, KindVideo, false)
		if err != nil {
			return nil, err
		}
		stream.Tracks = append(stream.Tracks, t)
	}
	return stream, nil
}

func (SampleCapturer) OpenScreen(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stream := &Stream{ID: uuid.NewString()}
	t, err := newTrack(stream.ID, KindVideo, true)
	if err != nil {
		return nil, err
	}
	stream.Tracks = []*Track{t}
	return stream, nil
}

func newTrack(streamID string, kind Kind, screen bool) (*Track, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	if kind == KindAudio {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}

	id := string(kind) + "-" + uuid.NewString()
	local, err := webrtc.NewTrackLocalStaticSample(capability, id, streamID)
	if err != nil {
		return nil, err
	}
	return &Track{id: id, kind: kind, screen: screen, local: local, enabled: true}, nil
}

// NewTestTrack returns a track with no pion backing, for fakes.
func NewTestTrack(kind Kind, screen bool) *Track {
	return &Track{id: string(kind) + "-" + uuid.NewString(), kind: kind, screen: screen, enabled: true}
}
