package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vidfetch/vidfetch/internal/vidfetch/domain"
	"github.com/vidfetch/vidfetch/internal/vidfetchctl"
)

func init() {
	rootCmd.AddCommand(submitCmd())
}

func submitCmd() *cobra.Command {
	a := vidfetchctl.New()
	cmd := &cobra.Command{
		Use:   "submit <url>",
		Short: "Queue a media download on the backend.",
		Long:  `Queues a download for the given media page url and prints the job id assigned to it.`,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := cmd.Flags().GetString("mode")
			if err != nil {
				return fmt.Errorf("error reading mode: %s", err)
			}
			autoPlay, err := cmd.Flags().GetBool("auto-play")
			if err != nil {
				return fmt.Errorf("error reading auto-play: %s", err)
			}
			playerUrl, err := cmd.Flags().GetString("player-url")
			if err != nil {
				return fmt.Errorf("error reading player-url: %s", err)
			}
			publicUrl, err := cmd.Flags().GetString("public-url")
			if err != nil {
				return fmt.Errorf("error reading public-url: %s", err)
			}

			return a.Submit(&domain.JobRequest{
				URL:        args[0],
				Mode:       domain.Mode(mode),
				AutoPlay:   autoPlay,
				PlayerURL:  playerUrl,
				BackendURL: publicUrl,
			})
		},
	}
	cmd.Flags().String("mode", "", "how to fetch: download or stream")
	cmd.Flags().Bool("auto-play", false, "start the paired player once the download lands")
	cmd.Flags().String("player-url", "", "player to start for --auto-play")
	cmd.Flags().String("public-url", "", "backend address as seen by the player (defaults to backendUrl)")
	return cmd
}
