package call

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/Huddle/cli/internal/datachannel"
	"github.com/BioHazard786/Huddle/cli/internal/media"
	"github.com/BioHazard786/Huddle/cli/internal/peer"
	"github.com/BioHazard786/Huddle/cli/internal/peer/peertest"
	"github.com/BioHazard786/Huddle/internal/wire"
)

const room = "ABC234"

type fakeRelay struct {
	mu         sync.Mutex
	connectErr error
	connected  bool
	sent       []wire.Payload
	events     chan wire.Payload
	closeOnce  sync.Once
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{events: make(chan wire.Payload)}
}

func (r *fakeRelay) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connectErr != nil {
		return r.connectErr
	}
	r.connected = true
	return nil
}

func (r *fakeRelay) Send(p wire.Payload) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return errors.New("not connected")
	}
	r.sent = append(r.sent, p)
	return nil
}

func (r *fakeRelay) Events() <-chan wire.Payload { return r.events }

func (r *fakeRelay) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.connected = false
		r.mu.Unlock()
		close(r.events)
	})
}

func (r *fakeRelay) Sent() []wire.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wire.Payload(nil), r.sent...)
}

// sentOf returns every sent payload of type T.
func sentOf[T wire.Payload](r *fakeRelay) []T {
	var out []T
	for _, p := range r.Sent() {
		if v, ok := p.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

type fakeCapturer struct {
	err    error
	stream *media.Stream
	screen *media.Stream
}

func (c *fakeCapturer) Open(ctx context.Context, cons media.Constraints) (*media.Stream, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.stream = &media.Stream{ID: "camera"}
	if cons.Audio {
		c.stream.Tracks = append(c.stream.Tracks, media.NewTestTrack(media.KindAudio, false))
	}
	if cons.Video {
		c.stream.Tracks = append(c.stream.Tracks, media.NewTestTrack(media.KindVideo, false))
	}
	return c.stream, nil
}

func (c *fakeCapturer) OpenScreen(ctx context.Context) (*media.Stream, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.screen = &media.Stream{ID: "screen", Tracks: []*media.Track{media.NewTestTrack(media.KindVideo, true)}}
	return c.screen, nil
}

type fakeRooms struct {
	id  string
	err error
}

func (r fakeRooms) Create(ctx context.Context) (string, error) { return r.id, r.err }

type harness struct {
	m        *Manager
	relay    *fakeRelay
	factory  *peertest.Factory
	capturer *fakeCapturer
}

func newHarness(t *testing.T, name string) *harness {
	t.Helper()
	h := &harness{
		relay:    newFakeRelay(),
		factory:  &peertest.Factory{},
		capturer: &fakeCapturer{},
	}
	h.m = New(Options{
		Name:         name,
		Constraints:  media.Constraints{Audio: true, Video: true},
		OutputDir:    t.TempDir(),
		Relay:        h.relay,
		Capturer:     h.capturer,
		Factory:      h.factory,
		TypingIdle:   30 * time.Millisecond,
		TypingExpiry: 30 * time.Millisecond,
	})
	return h
}

// joined joins room as selfID with the given members already present.
func (h *harness) joined(t *testing.T, selfID string, members ...wire.Participant) {
	t.Helper()
	if err := h.m.JoinRoom(context.Background(), strings.ToLower(room)); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	h.m.handle(&wire.RoomJoined{RoomID: room, UserID: selfID, Participants: members})
}

func description(t *testing.T, typ string) json.RawMessage {
	t.Helper()
	raw, err := wire.Raw(wire.SessionDescription{Type: typ, SDP: "v=0 remote"})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func candidate(t *testing.T, n string) json.RawMessage {
	t.Helper()
	raw, err := wire.Raw(wire.Candidate{Candidate: "candidate:" + n})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func countMessages(s Snapshot, kind MessageKind, text string) int {
	n := 0
	for _, msg := range s.Messages {
		if msg.Kind == kind && strings.Contains(msg.Text, text) {
			n++
		}
	}
	return n
}

func TestJoinRoomNewcomerOffers(t *testing.T) {
	h := newHarness(t, "alice")
	h.joined(t, "a", wire.Participant{ID: "b", Name: "bob"}, wire.Participant{ID: "c", Name: "carol"})

	joins := sentOf[wire.JoinRoom](h.relay)
	if len(joins) != 1 || joins[0].RoomID != room || joins[0].DisplayName != "alice" {
		t.Fatalf("join requests=%+v", joins)
	}

	s := h.m.Snapshot()
	if s.Status != StatusConnected || s.RoomID != room || s.SelfID != "a" {
		t.Fatalf("snapshot=%+v", s)
	}
	if len(s.Participants) != 2 || s.Participants[0].Name != "bob" || s.Participants[1].Name != "carol" {
		t.Fatalf("participants=%+v", s.Participants)
	}

	offers := sentOf[wire.Offer](h.relay)
	if len(offers) != 2 {
		t.Fatalf("sent %d offers, want one per existing member", len(offers))
	}
	if offers[0].TargetID != "b" || offers[1].TargetID != "c" {
		t.Fatalf("offers went to %s, %s", offers[0].TargetID, offers[1].TargetID)
	}
	for _, conn := range h.factory.Connections() {
		if len(conn.Tracks()) != 2 {
			t.Fatalf("connection carries %d tracks, want audio and video", len(conn.Tracks()))
		}
	}
}

func TestExistingMemberWaitsForOffer(t *testing.T) {
	h := newHarness(t, "alice")
	h.joined(t, "a")

	h.m.handle(&wire.UserJoined{UserID: "b", UserName: "bob"})
	h.m.handle(&wire.UserJoined{UserID: "b", UserName: "bob"})

	if n := len(h.factory.Connections()); n != 1 {
		t.Fatalf("created %d connections, want 1", n)
	}
	if n := len(sentOf[wire.Offer](h.relay)); n != 0 {
		t.Fatalf("existing member sent %d offers", n)
	}
	c := h.m.connector("b")
	if c == nil || c.AsOfferer() {
		t.Fatalf("existing member must be the answering side")
	}
	if n := countMessages(h.m.Snapshot(), KindSystem, "bob joined"); n != 1 {
		t.Fatalf("join notice shown %d times", n)
	}

	h.m.handle(&wire.RelayedOffer{SenderID: "b", SenderName: "bob", SDP: description(t, "offer")})
	answers := sentOf[wire.Answer](h.relay)
	if len(answers) != 1 || answers[0].TargetID != "b" {
		t.Fatalf("answers=%+v", answers)
	}
	if c.State() != peer.StateConnected {
		t.Fatalf("state=%s", c.State())
	}
}

func TestCandidatesBeforeConnectorAreKept(t *testing.T) {
	h := newHarness(t, "alice")
	h.joined(t, "a")

	for _, n := range []string{"1", "2", "3"} {
		h.m.handle(&wire.RelayedCandidate{SenderID: "b", Candidate: candidate(t, n)})
	}
	if len(h.factory.Connections()) != 0 {
		t.Fatalf("candidate created a connection")
	}

	// The offer arrives before the user-joined notice.
	h.m.handle(&wire.RelayedOffer{SenderID: "b", SenderName: "bob", SDP: description(t, "offer")})
	h.m.handle(&wire.RelayedCandidate{SenderID: "b", Candidate: candidate(t, "4")})

	got := h.factory.Last().Candidates()
	if len(got) != 4 {
		t.Fatalf("applied %d candidates, want 4", len(got))
	}
	for i, want := range []string{"1", "2", "3", "4"} {
		if got[i].Candidate != "candidate:"+want {
			t.Fatalf("candidate %d = %q", i, got[i].Candidate)
		}
	}
	if s := h.m.Snapshot(); len(s.Participants) != 1 || s.Participants[0].Name != "bob" {
		t.Fatalf("participants=%+v", s.Participants)
	}
}

func TestChatShownOnce(t *testing.T) {
	h := newHarness(t, "alice")
	h.joined(t, "a", wire.Participant{ID: "b", Name: "bob"})
	dc := h.factory.Last().Channels()[0]
	dc.SetOpen()

	msg, err := h.m.SendMessage("hello")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	chats := sentOf[wire.SendChat](h.relay)
	if len(chats) != 1 || chats[0].ID != msg.ID || chats[0].RoomID != room {
		t.Fatalf("relay chat=%+v", chats)
	}
	if len(dc.Sent()) != 1 {
		t.Fatalf("data channel copies=%d", len(dc.Sent()))
	}

	// Relay echo of our own message.
	h.m.handle(&wire.ChatMessage{ID: msg.ID, SenderID: "a", Sender: "alice", Text: "hello", Timestamp: time.Now()})
	if n := countMessages(h.m.Snapshot(), KindChat, "hello"); n != 1 {
		t.Fatalf("own message shown %d times", n)
	}

	// Bob's message over the relay and then the data channel.
	h.m.handle(&wire.ChatMessage{ID: "m2", SenderID: "b", Sender: "bob", Text: "hi alice", Timestamp: time.Now()})
	frameFromBob(t, h.m, "m2", "hi alice")
	frameFromBob(t, h.m, "m3", "second")

	s := h.m.Snapshot()
	if n := countMessages(s, KindChat, "hi alice"); n != 1 {
		t.Fatalf("bob's message shown %d times", n)
	}
	if n := countMessages(s, KindChat, "second"); n != 1 {
		t.Fatalf("data channel only message shown %d times", n)
	}
}

func frameFromBob(t *testing.T, m *Manager, id, text string) {
	t.Helper()
	data, err := datachannel.Encode(datachannel.TypeChat, datachannel.Chat{
		ID:        id,
		SenderID:  "b",
		Sender:    "bob",
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		t.Fatal(err)
	}
	m.handleFrame("b", data)
}

func TestSendMessageValidation(t *testing.T) {
	h := newHarness(t, "alice")
	if _, err := h.m.SendMessage("hi"); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("err=%v, want ErrNotInRoom", err)
	}
	h.joined(t, "a")
	if _, err := h.m.SendMessage("   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err=%v, want ErrEmptyMessage", err)
	}
	if _, err := h.m.SendMessage(strings.Repeat("x", wire.MaxChatBytes+1)); !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("err=%v, want ErrMessageTooLong", err)
	}
}

func TestToggleVideoAnnouncesState(t *testing.T) {
	h := newHarness(t, "alice")
	h.joined(t, "a", wire.Participant{ID: "b", Name: "bob"})

	on, err := h.m.ToggleVideo()
	if err != nil || on {
		t.Fatalf("ToggleVideo = %v, %v", on, err)
	}
	if h.capturer.stream.VideoTrack().Enabled() {
		t.Fatalf("camera track still enabled")
	}
	states := sentOf[wire.UpdateMediaState](h.relay)
	if len(states) != 1 {
		t.Fatalf("sent %d media states", len(states))
	}
	if got := states[0]; got.Video || !got.Audio || got.RoomID != room {
		t.Fatalf("state=%+v", got)
	}

	if on, _ := h.m.ToggleAudio(); on {
		t.Fatalf("audio should now be off")
	}
	if on, _ := h.m.ToggleVideo(); !on {
		t.Fatalf("video should be back on")
	}
	if n := len(sentOf[wire.UpdateMediaState](h.relay)); n != 3 {
		t.Fatalf("every toggle must announce, got %d", n)
	}
	if s := h.m.Snapshot(); !s.Local.Video || s.Local.Audio {
		t.Fatalf("local=%+v", s.Local)
	}
}

func TestRemoteDeclaredMediaState(t *testing.T) {
	h := newHarness(t, "alice")
	h.joined(t, "a", wire.Participant{ID: "b", Name: "bob"})

	if got := h.m.MediaOf("b"); !got.Video || !got.Audio {
		t.Fatalf("default media=%+v", got)
	}
	h.m.handle(&wire.MediaState{UserID: "b", Video: false, Audio: true})
	if got := h.m.MediaOf("b"); got.Video || !got.Audio {
		t.Fatalf("media=%+v", got)
	}
	if p := h.m.Snapshot().Participants[0]; p.Media.Video {
		t.Fatalf("snapshot media=%+v", p.Media)
	}
}

func TestMediaFailureAbortsJoin(t *testing.T) {
	h := newHarness(t, "alice")
	h.capturer.err = errors.New("permission denied")

	err := h.m.JoinRoom(context.Background(), room)
	if !errors.Is(err, ErrMediaUnavailable) {
		t.Fatalf("err=%v, want ErrMediaUnavailable", err)
	}
	var callErr *Error
	if !errors.As(err, &callErr) || callErr.Op != "join" {
		t.Fatalf("err=%#v", err)
	}
	s := h.m.Snapshot()
	if s.RoomID != "" || s.Status != StatusDisconnected || len(h.relay.Sent()) != 0 {
		t.Fatalf("session started after media failure: %+v", s)
	}
}

func TestJoinRejectsBadCode(t *testing.T) {
	h := newHarness(t, "alice")
	for _, code := range []string{"", "   ", strings.Repeat("A", wire.MaxRoomIDBytes+1)} {
		if err := h.m.JoinRoom(context.Background(), code); !errors.Is(err, ErrInvalidRoomCode) {
			t.Errorf("JoinRoom(%q) = %v", code, err)
		}
	}
	if n := len(sentOf[wire.JoinRoom](h.relay)); n != 0 {
		t.Fatalf("sent %d join requests", n)
	}
}

func TestJoinAcceptsCodesFromElsewhere(t *testing.T) {
	for _, tt := range []struct{ in, want string }{
		{"ABC123", "ABC123"},
		{" abc1 ", "ABC1"},
		{strings.Repeat("z", wire.MaxRoomIDBytes), strings.Repeat("Z", wire.MaxRoomIDBytes)},
	} {
		h := newHarness(t, "alice")
		if err := h.m.JoinRoom(context.Background(), tt.in); err != nil {
			t.Fatalf("JoinRoom(%q): %v", tt.in, err)
		}
		joins := sentOf[wire.JoinRoom](h.relay)
		if len(joins) != 1 || joins[0].RoomID != tt.want {
			t.Fatalf("JoinRoom(%q) sent %+v, want room %q", tt.in, joins, tt.want)
		}
		h.m.handle(&wire.RoomJoined{RoomID: tt.want, UserID: "a"})
		if s := h.m.Snapshot(); s.Status != StatusConnected || s.RoomID != tt.want {
			t.Fatalf("snapshot=%+v", s)
		}
		h.m.Close()
	}
}

func TestRelayUnreachableUsesLocalMode(t *testing.T) {
	h := newHarness(t, "alice")
	h.relay.connectErr = errors.New("connection refused")

	if err := h.m.JoinRoom(context.Background(), room); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	s := h.m.Snapshot()
	if s.Status != StatusLocalOnly || s.RoomID != room {
		t.Fatalf("snapshot=%+v", s)
	}
	if countMessages(s, KindSystem, "Failed to connect to server. Using local mode.") != 1 {
		t.Fatalf("missing local mode notice: %+v", s.Messages)
	}
}

func TestCreateRoomFallsBackToLocalCode(t *testing.T) {
	h := newHarness(t, "alice")
	h.m.opts.Rooms = fakeRooms{err: errors.New("503")}

	id, err := h.m.CreateRoom(context.Background())
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if len(id) != 6 || h.m.Snapshot().RoomID != id {
		t.Fatalf("id=%q", id)
	}

	other := newHarness(t, "bob")
	other.m.opts.Rooms = fakeRooms{id: "XYZ789"}
	if id, _ := other.m.CreateRoom(context.Background()); id != "XYZ789" {
		t.Fatalf("id=%q, want the relay's code", id)
	}
}

func TestRelayLossKeepsPeers(t *testing.T) {
	h := newHarness(t, "alice")
	h.joined(t, "a", wire.Participant{ID: "b", Name: "bob"})

	h.relay.Close()
	waitFor(t, "local-only status", func() bool { return h.m.Snapshot().Status == StatusLocalOnly })

	s := h.m.Snapshot()
	if len(s.Participants) != 1 || h.factory.Last().Closed() {
		t.Fatalf("relay loss tore down peers")
	}
	if countMessages(s, KindSystem, "Lost connection to server") != 1 {
		t.Fatalf("missing relay loss notice")
	}
}

func TestTransportLossDropsOnlyThatPeer(t *testing.T) {
	h := newHarness(t, "alice")
	h.joined(t, "a", wire.Participant{ID: "b", Name: "bob"}, wire.Participant{ID: "c", Name: "carol"})
	h.m.handle(&wire.MediaState{UserID: "b", Video: false})

	conns := h.factory.Connections()
	conns[0].Handlers.OnStateChange(peer.TransportFailed)

	s := h.m.Snapshot()
	if len(s.Participants) != 1 || s.Participants[0].ID != "c" {
		t.Fatalf("participants=%+v", s.Participants)
	}
	if !conns[0].Closed() || conns[1].Closed() {
		t.Fatalf("closed: bob=%v carol=%v", conns[0].Closed(), conns[1].Closed())
	}
	if got := h.m.MediaOf("b"); !got.Video {
		t.Fatalf("declared state for a dropped peer should be cleared")
	}
	if countMessages(s, KindSystem, "Lost connection to bob") != 1 {
		t.Fatalf("missing peer loss notice")
	}
}

func TestUserLeftClosesConnector(t *testing.T) {
	h := newHarness(t, "alice")
	h.joined(t, "a", wire.Participant{ID: "b", Name: "bob"})

	h.m.handle(&wire.UserLeft{UserID: "b", UserName: "bob"})
	h.m.handle(&wire.UserLeft{UserID: "b", UserName: "bob"})

	if !h.factory.Last().Closed() {
		t.Fatalf("connection not closed")
	}
	s := h.m.Snapshot()
	if len(s.Participants) != 0 {
		t.Fatalf("participants=%+v", s.Participants)
	}
	if n := countMessages(s, KindSystem, "bob left"); n != 1 {
		t.Fatalf("leave notice shown %d times", n)
	}
}

func TestLeaveRoomTearsDownEverything(t *testing.T) {
	h := newHarness(t, "alice")
	h.joined(t, "a", wire.Participant{ID: "b", Name: "bob"})
	h.m.handle(&wire.MediaState{UserID: "b", Video: false})
	if _, err := h.m.SendMessage("bye"); err != nil {
		t.Fatal(err)
	}

	h.m.LeaveRoom()
	h.m.LeaveRoom()

	if n := len(sentOf[wire.LeaveRoom](h.relay)); n != 1 {
		t.Fatalf("sent %d leave requests", n)
	}
	if !h.factory.Last().Closed() {
		t.Fatalf("connection left open")
	}
	for _, track := range h.capturer.stream.Tracks {
		if !track.Stopped() {
			t.Fatalf("%s track not stopped", track.Kind())
		}
	}
	s := h.m.Snapshot()
	if s.RoomID != "" || len(s.Participants) != 0 || len(s.Messages) != 0 || s.Local != (MediaState{}) {
		t.Fatalf("state survived leave: %+v", s)
	}
	if got := h.m.MediaOf("b"); !got.Video {
		t.Fatalf("declared media survived leave")
	}

	// A second join works on the same relay connection.
	if err := h.m.JoinRoom(context.Background(), room); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
}

func TestScreenShareReplacesVideoInPlace(t *testing.T) {
	h := newHarness(t, "alice")
	h.joined(t, "a", wire.Participant{ID: "b", Name: "bob"})
	conn := h.factory.Last()
	camera := conn.Video()

	if err := h.m.StartScreenShare(context.Background()); err != nil {
		t.Fatalf("StartScreenShare: %v", err)
	}
	if v := conn.Video(); v == nil || !v.IsScreen() {
		t.Fatalf("outgoing video is not the screen")
	}
	if err := h.m.StartScreenShare(context.Background()); !errors.Is(err, ErrAlreadySharing) {
		t.Fatalf("second share: %v", err)
	}
	if len(sentOf[wire.StartScreenShare](h.relay)) != 1 {
		t.Fatalf("screen share not announced")
	}
	if len(h.factory.Connections()) != 1 || len(sentOf[wire.Offer](h.relay)) != 1 {
		t.Fatalf("screen share renegotiated")
	}

	// Newcomers get the screen as their video.
	h.m.handle(&wire.UserJoined{UserID: "c", UserName: "carol"})
	if v := h.factory.Last().Video(); v == nil || !v.IsScreen() {
		t.Fatalf("newcomer does not receive the screen")
	}

	if err := h.m.StopScreenShare(); err != nil {
		t.Fatal(err)
	}
	if conn.Video() != camera {
		t.Fatalf("camera not restored")
	}
	if !h.capturer.screen.VideoTrack().Stopped() {
		t.Fatalf("screen track not stopped")
	}
	states := sentOf[wire.UpdateMediaState](h.relay)
	if len(states) != 2 || !states[0].ScreenShare || states[1].ScreenShare {
		t.Fatalf("states=%+v", states)
	}
}

func TestScreenShareFromAudioOnlyJoin(t *testing.T) {
	h := newHarness(t, "alice")
	h.m.opts.Constraints = media.Constraints{Audio: true}
	h.joined(t, "a", wire.Participant{ID: "b", Name: "bob"})
	conn := h.factory.Last()
	if conn.Video() != nil {
		t.Fatalf("audio-only join sends video")
	}

	if err := h.m.StartScreenShare(context.Background()); err != nil {
		t.Fatalf("StartScreenShare: %v", err)
	}
	if v := conn.Video(); v == nil || !v.IsScreen() {
		t.Fatalf("peer does not receive the screen")
	}
	if len(sentOf[wire.StartScreenShare](h.relay)) != 1 {
		t.Fatalf("screen share not announced")
	}

	if err := h.m.StopScreenShare(); err != nil {
		t.Fatal(err)
	}
	if conn.Video() != nil {
		t.Fatalf("video still sent after stopping")
	}
}

func TestScreenShareNobodyReceives(t *testing.T) {
	h := newHarness(t, "alice")
	h.joined(t, "a", wire.Participant{ID: "b", Name: "bob"})
	h.factory.Last().ReplaceErr = errors.New("sender gone")

	if err := h.m.StartScreenShare(context.Background()); !errors.Is(err, ErrScreenNotSent) {
		t.Fatalf("StartScreenShare = %v, want ErrScreenNotSent", err)
	}
	if h.m.Snapshot().Local.ScreenShare {
		t.Fatalf("still marked as sharing")
	}
	if !h.capturer.screen.VideoTrack().Stopped() {
		t.Fatalf("screen capture left running")
	}
	if len(sentOf[wire.StartScreenShare](h.relay)) != 0 {
		t.Fatalf("failed share was announced")
	}
	for _, st := range sentOf[wire.UpdateMediaState](h.relay) {
		if st.ScreenShare {
			t.Fatalf("failed share announced in media state")
		}
	}

	// Sharing can be retried once the transport recovers.
	h.factory.Last().ReplaceErr = nil
	if err := h.m.StartScreenShare(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestScreenShareAloneInRoom(t *testing.T) {
	h := newHarness(t, "alice")
	h.joined(t, "a")

	if err := h.m.StartScreenShare(context.Background()); err != nil {
		t.Fatalf("StartScreenShare: %v", err)
	}
	if len(sentOf[wire.StartScreenShare](h.relay)) != 1 {
		t.Fatalf("screen share not announced")
	}
}

func TestRemoteScreenShareNotice(t *testing.T) {
	h := newHarness(t, "alice")
	h.joined(t, "a", wire.Participant{ID: "b", Name: "bob"})

	h.m.handle(&wire.ScreenShareStarted{UserID: "b", UserName: "bob"})
	if !h.m.MediaOf("b").ScreenShare {
		t.Fatalf("screen share flag not set")
	}
	h.m.handle(&wire.ScreenShareStopped{UserID: "b", UserName: "bob"})
	if h.m.MediaOf("b").ScreenShare {
		t.Fatalf("screen share flag not cleared")
	}
	if countMessages(h.m.Snapshot(), KindSystem, "bob started sharing") != 1 {
		t.Fatalf("missing notice")
	}
}

func TestCaptions(t *testing.T) {
	h := newHarness(t, "alice")
	h.joined(t, "a", wire.Participant{ID: "b", Name: "bob"})

	if err := h.m.SendCaption("hello there", "en-US", true); err != nil {
		t.Fatalf("SendCaption: %v", err)
	}
	sent := sentOf[wire.SendCaption](h.relay)
	if len(sent) != 1 || !sent[0].Caption.IsFinal || sent[0].Caption.Language != "en-US" {
		t.Fatalf("sent=%+v", sent)
	}

	// Our own caption echoed back is ignored.
	h.m.handle(&wire.CaptionEvent{Caption: wire.Caption{Text: "hello there", IsFinal: true}, SpeakerID: "a"})
	if n := len(h.m.Snapshot().Captions); n != 1 {
		t.Fatalf("captions=%d", n)
	}

	h.m.handle(&wire.CaptionEvent{Caption: wire.Caption{Text: "interim", IsFinal: false}, SpeakerID: "b", SpeakerName: "someone"})
	s := h.m.Snapshot()
	if s.Caption == nil || s.Caption.Text != "interim" || s.Caption.SpeakerName != "bob" {
		t.Fatalf("current=%+v", s.Caption)
	}
	if len(s.Captions) != 1 {
		t.Fatalf("interim caption entered history")
	}

	for i := 0; i < 60; i++ {
		h.m.handle(&wire.CaptionEvent{Caption: wire.Caption{Text: "line", IsFinal: true}, SpeakerID: "b"})
	}
	if n := len(h.m.Snapshot().Captions); n != maxCaptions {
		t.Fatalf("history=%d, want %d", n, maxCaptions)
	}
}

func TestTypingStopsWhenIdle(t *testing.T) {
	h := newHarness(t, "alice")
	h.joined(t, "a")

	h.m.StartTyping()
	h.m.StartTyping()
	starts := 0
	for _, p := range sentOf[wire.Typing](h.relay) {
		if p.IsTyping {
			starts++
		}
	}
	if starts != 1 {
		t.Fatalf("sent %d typing starts, want 1", starts)
	}

	waitFor(t, "typing stop", func() bool {
		typing := sentOf[wire.Typing](h.relay)
		return len(typing) == 2 && !typing[1].IsTyping
	})
}

func TestRemoteTypingExpires(t *testing.T) {
	h := newHarness(t, "alice")
	h.joined(t, "a", wire.Participant{ID: "b", Name: "bob"})

	h.m.handle(&wire.UserTyping{UserID: "b", UserName: "bob", IsTyping: true})
	if got := h.m.Snapshot().Typing; len(got) != 1 || got[0] != "bob" {
		t.Fatalf("typing=%v", got)
	}
	waitFor(t, "typing expiry", func() bool { return len(h.m.Snapshot().Typing) == 0 })

	h.m.handle(&wire.UserTyping{UserID: "b", IsTyping: true})
	h.m.handle(&wire.UserTyping{UserID: "b", IsTyping: false})
	if got := h.m.Snapshot().Typing; len(got) != 0 {
		t.Fatalf("typing=%v after stop", got)
	}
}
