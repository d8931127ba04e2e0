package cmd

import (
	"github.com/spf13/cobra"

	"github.com/vidfetch/vidfetch/internal/vidfetchctl"
)

func init() {
	rootCmd.AddCommand(cancelCmd())
}

func cancelCmd() *cobra.Command {
	a := vidfetchctl.New()
	cmd := &cobra.Command{
		Use:   "cancel <downloadId>",
		Short: "Cancel a queued or running download.",
		Long:  `Requests cancellation of one job. Finished jobs cannot be cancelled.`,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Cancel(args[0])
		},
	}
	return cmd
}
