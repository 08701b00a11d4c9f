package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Huddle/cli/internal/signaling"
	"github.com/BioHazard786/Huddle/cli/internal/ui"
)

var roomCmd = &cobra.Command{
	Use:   "room <code|url>",
	Short: "Show what the relay knows about a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}

		stopSpinner := ui.RunConnectionSpinner("Looking up room...")
		info, err := signaling.NewRoomsClient(cfg.APIURL).Lookup(cmd.Context(), roomID)
		stopSpinner()
		if errors.Is(err, signaling.ErrRoomNotFound) {
			return fmt.Errorf("room %s does not exist or has expired", roomID)
		}
		if err != nil {
			return err
		}

		fmt.Println(ui.RoomTable(info))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(roomCmd)
}
