package client

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const connectionConfigName = ".vidfetchctl"

// AddConnectionFlags binds the backend connection flag on the root command.
// The bound viper key unmarshals into ApiConnectionDetails by field name.
func AddConnectionFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("backendUrl", "http://localhost:8080", "vidfetch backend url")
	viper.BindPFlag("backendUrl", rootCmd.PersistentFlags().Lookup("backendUrl"))
}

// LoadConnectionConfig layers connection settings from, in order of
// precedence: environment variables, the file given by cfgFile (or
// ~/.vidfetchctl.yaml when empty), and a vidfetchctl-defaults.yaml shipped
// next to the executable.
func LoadConnectionConfig(cfgFile string) error {
	if err := readBundledDefaults(); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return errors.WithMessage(err, "resolving home directory")
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(connectionConfigName)
	}

	viper.AutomaticEnv()

	if err := viper.MergeInConfig(); err != nil {
		// Only the home dotfile is optional. A path given explicitly with
		// --config has to load.
		if _, notFound := err.(viper.ConfigFileNotFoundError); notFound && cfgFile == "" {
			return nil
		}
		return errors.WithMessagef(err, "reading config file %s", viper.ConfigFileUsed())
	}
	return nil
}

// readBundledDefaults loads vidfetchctl-defaults.yaml from the executable's
// directory when present. Packaged installs use it to point at a site-local
// backend without touching the user's home directory.
func readBundledDefaults() error {
	exePath, err := os.Executable()
	if err != nil {
		return errors.WithMessage(err, "finding executable path")
	}
	viper.SetConfigFile(filepath.Join(filepath.Dir(exePath), "vidfetchctl-defaults.yaml"))
	if err := viper.ReadInConfig(); err != nil {
		switch err.(type) {
		case viper.ConfigFileNotFoundError, *os.PathError:
			return nil
		default:
			return errors.WithMessagef(err, "reading config file %s", viper.ConfigFileUsed())
		}
	}
	return nil
}

// ExtractConnectionDetails unmarshals whatever the layers above resolved.
func ExtractConnectionDetails() *ApiConnectionDetails {
	details := &ApiConnectionDetails{}
	viper.Unmarshal(details)
	return details
}
