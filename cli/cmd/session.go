package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Huddle/cli/internal/call"
	"github.com/BioHazard786/Huddle/cli/internal/config"
	"github.com/BioHazard786/Huddle/cli/internal/media"
	"github.com/BioHazard786/Huddle/cli/internal/peer"
	"github.com/BioHazard786/Huddle/cli/internal/signaling"
	"github.com/BioHazard786/Huddle/cli/internal/ui"
	"github.com/BioHazard786/Huddle/cli/internal/utils"
)

var (
	flagNoVideo   bool
	flagNoAudio   bool
	flagOutputDir string
)

// addCallFlags registers the flags shared by commands that enter a call.
func addCallFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&flagNoVideo, "no-video", false, "Join without a camera")
	cmd.Flags().BoolVar(&flagNoAudio, "no-audio", false, "Join without a microphone")
	cmd.Flags().StringVarP(&flagOutputDir, "out", "o", "", "Directory for received files (env HUDDLE_OUTPUT_DIR)")
}

// Session bundles what a call command needs.
type Session struct {
	Config  *config.Config
	Rooms   *signaling.RoomsClient
	Manager *call.Manager
}

func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		Server:     flagServer,
		Name:       flagName,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
		OutputDir:  flagOutputDir,
	})
	if err != nil {
		return nil, &call.Error{Op: "load config", Err: err}
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, errors.New("cannot force relay mode without TURN server configured")
	}
	if !cfg.ForceRelay && cfg.TURNServer != "" && utils.ShouldForceRelay() {
		log.Info().Msg("Tunnel or CGNAT interface detected, forcing relay mode")
		cfg.ForceRelay = true
	}

	return cfg, nil
}

func NewSession(cfg *config.Config) (*Session, error) {
	factory, err := peer.NewPionFactory(cfg.ICEServers(), cfg.TransportPolicy())
	if err != nil {
		return nil, &call.Error{Op: "create peer factory", Err: err}
	}

	rooms := signaling.NewRoomsClient(cfg.APIURL)
	m := call.New(call.Options{
		Name:        cfg.Name,
		Constraints: media.Constraints{Video: !flagNoVideo, Audio: !flagNoAudio},
		OutputDir:   cfg.OutputDir,
		Relay:       signaling.NewRelay(cfg.WebSocketURL),
		Rooms:       rooms,
		Capturer:    media.SampleCapturer{},
		Factory:     factory,
	})

	return &Session{Config: cfg, Rooms: rooms, Manager: m}, nil
}

// Run shows the call view, then leaves the room and prints a summary.
func (s *Session) Run(ctx context.Context) error {
	err := ui.RunCall(ctx, s.Manager)

	snap := s.Manager.Snapshot()
	s.Manager.Close()

	fmt.Println()
	fmt.Println(ui.CallSummary(snap, time.Now()))
	if snap.Status == call.StatusLocalOnly {
		ui.PrintWarning("The relay was unreachable for part of this call")
	}
	return err
}
