package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vidfetch/vidfetch/internal/vidfetchctl"
	"github.com/vidfetch/vidfetch/pkg/client"
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.vidfetchctl.yaml)")
	client.AddConnectionFlags(rootCmd)
}

var rootCmd = &cobra.Command{
	Use:   "vidfetchctl",
	Short: "vidfetchctl controls the vidfetch download backend.",
	Long: `
vidfetchctl controls the vidfetch download backend.

Persistent config can be saved in a config file so it doesn't have to be specified every command.

Example structure:

backendUrl: http://localhost:8080

The location of this file can be passed in using --config argument or picked from $HOME/.vidfetchctl.yaml.
`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

var cfgFile string

func initConfig() {
	if err := client.LoadConnectionConfig(cfgFile); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func initParams(a *vidfetchctl.App) error {
	a.Params.ApiConnectionDetails = client.ExtractConnectionDetails()
	return nil
}
