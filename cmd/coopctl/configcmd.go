package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/coopdoor/internal/config"
	"github.com/muurk/coopdoor/internal/ui"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	// The file may not parse yet, so skip the root setup
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.CreateDefaultConfig(configPath, configForce)
		if err != nil && !configForce {
			if _, statErr := os.Stat(path); statErr != nil {
				return err
			}
			if !ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Config file exists",
				path, "Overwriting replaces every setting with the defaults") {
				return nil
			}
			path, err = config.CreateDefaultConfig(configPath, true)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.GetConfigPath()
		if configPath != "" {
			path, err = configPath, nil
		}
		if err == nil {
			if _, statErr := os.Stat(path); statErr != nil {
				path += " (not found, using defaults)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", path)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file without asking")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
