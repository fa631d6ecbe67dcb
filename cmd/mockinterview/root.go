package main

import (
	"github.com/spf13/cobra"

	"github.com/ent0n29/mockinterview/internal/config"
)

const appName = "mockinterview"

var (
	// Used for flags.
	cfgFile  string
	logDebug bool
	logJSON  bool

	rootCmd = &cobra.Command{
		Use:           appName,
		Short:         "mockinterview runs AI-driven mock technical interviews",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional config file (yaml, toml or json); env vars take precedence")
	rootCmd.PersistentFlags().BoolVarP(&logDebug, "debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&logJSON, "json", "j", false, "json format for logging")
}

// loadConfig reads env and the optional file, then applies logging flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if logDebug {
		cfg.LogDebug = true
	}
	if logJSON {
		cfg.LogJSON = true
	}
	return cfg, nil
}
