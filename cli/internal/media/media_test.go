package media

import (
	"context"
	"errors"
	"testing"
	"time"

	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

func TestOpen_NoDevices(t *testing.T) {
	if _, err := (SampleCapturer{}).Open(context.Background(), Constraints{}); !errors.Is(err, ErrNoDevices) {
		t.Fatalf("err=%v, want ErrNoDevices", err)
	}
}

func TestOpen_Tracks(t *testing.T) {
	stream, err := SampleCapturer{}.Open(context.Background(), Constraints{Audio: true, Video: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if stream.AudioTrack() == nil || stream.VideoTrack() == nil {
		t.Fatalf("expected audio and video tracks, got %d", len(stream.Tracks))
	}
	if stream.AudioTrack().Local() == nil {
		t.Fatalf("expected a pion track")
	}

	screen, err := SampleCapturer{}.OpenScreen(context.Background())
	if err != nil {
		t.Fatalf("open screen: %v", err)
	}
	if v := screen.VideoTrack(); v == nil || !v.IsScreen() {
		t.Fatalf("expected a screen video track")
	}
}

func TestTrack_EnableAndStop(t *testing.T) {
	stream, _ := SampleCapturer{}.Open(context.Background(), Constraints{Video: true})
	video := stream.VideoTrack()

	video.SetEnabled(false)
	if video.Enabled() {
		t.Fatalf("expected disabled")
	}
	if err := video.WriteSample(pionmedia.Sample{Data: []byte{1}, Duration: time.Millisecond}); err != nil {
		t.Fatalf("write while disabled: %v", err)
	}

	stream.Stop()
	if video.Enabled() || !video.Stopped() {
		t.Fatalf("expected stopped")
	}
	if err := video.WriteSample(pionmedia.Sample{Data: []byte{1}}); !errors.Is(err, ErrStopped) {
		t.Fatalf("write after stop: %v", err)
	}
}
