package peertest

import (
	"testing"

	"github.com/BioHazard786/Huddle/cli/internal/media"
	"github.com/BioHazard786/Huddle/cli/internal/peer"
)

func TestReplaceVideoNeedsSender(t *testing.T) {
	f := &Factory{}
	pc, err := f.NewConnection(peer.Handlers{})
	if err != nil {
		t.Fatal(err)
	}
	screen := media.NewTestTrack(media.KindVideo, true)

	if err := pc.ReplaceVideoTrack(screen); err == nil {
		t.Fatalf("replace before any tracks were added succeeded")
	}

	// An audio-only connection still gets a video sender.
	if err := pc.AddTracks([]*media.Track{media.NewTestTrack(media.KindAudio, false)}); err != nil {
		t.Fatal(err)
	}
	if err := pc.ReplaceVideoTrack(screen); err != nil {
		t.Fatalf("replace on audio-only connection: %v", err)
	}
	if f.Last().Video() != screen {
		t.Fatalf("video not replaced")
	}
}
