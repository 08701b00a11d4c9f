package cmd

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Huddle/cli/internal/ui"
)

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c", "new"},
	Short:   "Create a room and join it",
	Long: `Create a new room, copy its code to the clipboard and join the call.

Examples:
  huddle create
  huddle create --name alice --no-video
  huddle create --server https://huddle.example.com --out ~/Downloads`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		s, err := NewSession(cfg)
		if err != nil {
			return err
		}

		stopSpinner := ui.RunConnectionSpinner("Creating room...")
		roomID, err := s.Manager.CreateRoom(cmd.Context())
		stopSpinner()
		if err != nil {
			s.Manager.Close()
			return err
		}

		copied := true
		if err := clipboard.WriteAll(roomID); err != nil {
			log.Debug().Err(err).Msg("Clipboard unavailable")
			copied = false
		}
		fmt.Println(ui.RoomBox(roomID, copied))

		return s.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	addCallFlags(createCmd)
}
