// Ocf-probe is a command-line tool for poking at CoAP/OCF devices on the
// local network.
//
// It listens on the discovery multicast groups, sends payloads written as
// YAML documents, converts between documents and the wire encoding, and
// browses DNS-SD for advertised peers.
//
// Usage:
//
//	ocf-probe [command] [flags]
//
// See 'ocf-probe --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/ocfstack/internal/config"
	"github.com/muurk/ocfstack/internal/logging"
	"github.com/muurk/ocfstack/internal/version"
)

// Global flags
var (
	configPath string
	logLevel   string
)

// cfg is loaded before any subcommand runs
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logging.Sync()
		os.Exit(1)
	}
	logging.Sync()
}

var rootCmd = &cobra.Command{
	Use:   "ocf-probe",
	Short: "CoAP/OCF transport probe",
	Long: `A standalone utility for exercising the CoAP/OCF IP transport.

Listens for unicast and multicast datagrams on both IP families, sends
payloads described in YAML, and translates between YAML documents and the
binary payload encoding.

Logging is silent unless --log-level or OCF_LOG_LEVEL is set.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		level := logLevel
		if level == "" {
			level = cfg.LogLevel
		}
		return logging.Initialize(level)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is the user config directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ocf-probe %s\n", version.Full())
	},
}
