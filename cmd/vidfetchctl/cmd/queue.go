package cmd

import (
	"github.com/spf13/cobra"

	"github.com/vidfetch/vidfetch/internal/vidfetchctl"
)

func init() {
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(clearCmd())
}

func queueCmd() *cobra.Command {
	a := vidfetchctl.New()
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Print every job the backend tracks.",
		Long:  `Prints one line per job, in submission order, with its state, progress and url.`,
		Args:  cobra.ExactArgs(0),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Queue()
		},
	}
	return cmd
}

func clearCmd() *cobra.Command {
	a := vidfetchctl.New()
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished jobs from the queue view.",
		Long:  `Drops every job that already reached a terminal state. Queued and running jobs are untouched.`,
		Args:  cobra.ExactArgs(0),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.ClearFinished()
		},
	}
	return cmd
}
