package cmd

import (
	"github.com/spf13/cobra"

	"github.com/vidfetch/vidfetch/internal/vidfetchctl"
)

func init() {
	rootCmd.AddCommand(listCmd())
}

func listCmd() *cobra.Command {
	a := vidfetchctl.New()
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List downloaded files, newest first.",
		Args:  cobra.ExactArgs(0),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.ListArtifacts()
		},
	}
	return cmd
}
