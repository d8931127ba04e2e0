package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vidfetch/vidfetch/internal/vidfetchctl"
)

func init() {
	rootCmd.AddCommand(watchCmd())
}

func watchCmd() *cobra.Command {
	a := vidfetchctl.New()
	cmd := &cobra.Command{
		Use:   "watch [downloadId]",
		Short: "Stream job events from the backend.",
		Long: `Streams job events as they happen. With a download id the command follows
that one job and exits once it finishes; without one it follows every job
until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			downloadId := ""
			if len(args) > 0 {
				downloadId = args[0]
			}

			raw, err := cmd.Flags().GetBool("raw")
			if err != nil {
				return fmt.Errorf("error reading raw: %s", err)
			}

			return a.Watch(context.Background(), downloadId, raw)
		},
	}
	cmd.Flags().Bool("raw", false, "Output raw events")
	return cmd
}
