package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Huddle/cli/internal/ui"
	"github.com/BioHazard786/Huddle/internal/discovery"
)

var flagDiscoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find Huddle relays on the local network",
	Long: `Browse mDNS for relays started with advertising enabled.

Examples:
  huddle discover
  huddle discover --timeout 10s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stopSpinner := ui.RunSpinner("Looking for relays...")
		relays, err := discovery.Browse(cmd.Context(), flagDiscoverTimeout)
		stopSpinner()
		if err != nil {
			return err
		}

		fmt.Println(ui.RelaysTable(relays))
		if len(relays) > 0 {
			ui.PrintInfof("Use one with: huddle create --server %s", relays[0].URL())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().DurationVar(&flagDiscoverTimeout, "timeout", 3*time.Second, "How long to listen for answers")
}
