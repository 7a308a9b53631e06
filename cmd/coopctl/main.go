// Coopctl controls a chicken coop door over an HC-12 radio link.
//
// The door sits at the end of a lossy, half-duplex 433 MHz link. Every
// command is acknowledged by the door and retried until it is, and the
// controller tracks whether the last command was confirmed.
//
// Usage:
//
//	coopctl [command] [flags]
//
// The radio is either a local serial port, a "coopctl bridge" elsewhere on
// the network, or an in-process simulated door. See 'coopctl --help'.
package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/coopdoor/internal/config"
	"github.com/muurk/coopdoor/internal/logging"
	"github.com/muurk/coopdoor/internal/metrics"
	"github.com/muurk/coopdoor/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath  string
	logLevel    string
	metricsAddr string
	radioFlag   string
)

// Loaded in PersistentPreRunE
var (
	cfg      *config.Config
	registry *prometheus.Registry
)

var rootCmd = &cobra.Command{
	Use:   "coopctl",
	Short: "Coop door controller",
	Long: `Open and close a chicken coop door over an HC-12 radio link.

Commands are retried until the door acknowledges them. If the door never
answers, the command is reported as unconfirmed and the door's state is
treated as unknown until the next confirmed command.

Settings are read from the config file (see 'coopctl config init'); flags
override file values.`,
	Version:           version.Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is the OS config directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error; default silent)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9120")
	rootCmd.PersistentFlags().StringVar(&radioFlag, "radio", "", "Radio override: a serial port, a ws:// bridge URL, or \"sim\"")

	rootCmd.AddCommand(versionCmd)
}

// setup loads the config and initializes logging and metrics for every
// command
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	if radioFlag != "" {
		applyRadioFlag(cfg, radioFlag)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("--radio: %w", err)
		}
	}

	level := cfg.Logging.Level
	if cmd.Annotations["ui"] == "true" || os.Getenv(logging.LogLevelEnvVar) != "" {
		// Empty defers to the environment and is silent when that is unset,
		// keeping interactive output clean
		level = ""
	}
	if cmd.Flags().Changed("log-level") {
		level = logLevel
	}
	if err := logging.Initialize(level); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	if cmd.Flags().Changed("metrics-addr") {
		cfg.Metrics.Addr = metricsAddr
	}
	registry = metrics.NewRegistry()

	logging.Debug("Configuration loaded",
		zap.String("radio", cfg.Radio.Kind),
		zap.String("device", cfg.Device.ID),
		zap.Duration("attempt_timeout", cfg.Link.AttemptTimeout),
		zap.Int("max_attempts", cfg.Link.MaxAttempts),
	)
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "coopctl %s\n", version.Full())
		fmt.Fprintf(cmd.OutOrStdout(), "platform: %s\n", version.Platform())
	},
}
