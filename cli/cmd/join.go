package cmd

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Huddle/cli/internal/call"
	"github.com/BioHazard786/Huddle/cli/internal/signaling"
	"github.com/BioHazard786/Huddle/cli/internal/ui"
	"github.com/BioHazard786/Huddle/internal/roomcode"
)

const lookupTimeout = 3 * time.Second

var joinCmd = &cobra.Command{
	Use:     "join <code|url>",
	Aliases: []string{"j"},
	Short:   "Join an existing room",
	Long: `Join a room by its code. Rooms that do not exist yet are created on join.

Examples:
  huddle join XYZ789
  huddle join https://huddle.example.com/room/XYZ789
  huddle join xyz789 --no-video --relay`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}

		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		s, err := NewSession(cfg)
		if err != nil {
			return err
		}

		printRoomStatus(cmd.Context(), s.Rooms, roomID)

		stopSpinner := ui.RunConnectionSpinner("Joining room " + roomID + "...")
		err = s.Manager.JoinRoom(cmd.Context(), roomID)
		stopSpinner()
		if err != nil {
			s.Manager.Close()
			return err
		}

		return s.Run(cmd.Context())
	},
}

// printRoomStatus is informational only. Join goes ahead whatever it finds.
func printRoomStatus(ctx context.Context, rooms *signaling.RoomsClient, roomID string) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	info, err := rooms.Lookup(ctx, roomID)
	switch {
	case errors.Is(err, signaling.ErrRoomNotFound):
		ui.PrintInfof("Room %s is new, you are the first one here", roomID)
	case err != nil:
		ui.PrintWarningf("Could not look up room %s: %v", roomID, err)
	case info.ParticipantCount == 1:
		ui.PrintInfof("1 person is already in room %s", roomID)
	default:
		ui.PrintInfof("%d people are already in room %s", info.ParticipantCount, roomID)
	}
}

// parseRoomInput accepts a bare code or a link whose last path segment is
// the code.
func parseRoomInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", &call.Error{Op: "parse room", Err: call.ErrInvalidRoomCode}
	}

	if strings.Contains(input, "://") {
		u, err := url.Parse(input)
		if err != nil {
			return "", &call.Error{Op: "parse URL", Err: err}
		}
		path := strings.Trim(u.Path, "/")
		input = path[strings.LastIndex(path, "/")+1:]
	}

	code, err := call.NormalizeRoomID(input)
	if err != nil {
		return "", err
	}
	if !roomcode.Valid(code) {
		ui.PrintWarningf("%s does not look like a Huddle room code, joining anyway", code)
	}
	return code, nil
}

func init() {
	rootCmd.AddCommand(joinCmd)
	addCallFlags(joinCmd)
}
