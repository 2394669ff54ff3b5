package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/starlogs/starlogs/internal/config"
)

var (
	configDir string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "starlogs",
	Short: "Track kills, deaths and vehicle losses from a Star Citizen Game.log",
	// errors are printed once by main
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "directory containing "+config.FileName)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file. A missing file leaves the defaults in
// place; a malformed one is fatal.
func loadConfig(cmd *cobra.Command, args []string) error {
	if err := config.Load(configDir); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		fmt.Fprintf(os.Stderr, "No %s in %s, using defaults\n", config.FileName, configDir)
	}
	if logLevel != "" {
		viper.Set("logLevel", logLevel)
	}
	return nil
}
