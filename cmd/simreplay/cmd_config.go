package main

import (
	"fmt"
	"path/filepath"

	"github.com/nvandessel/simreplay/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect simreplay configuration",
		Long: `Show the effective configuration after defaults, the config file and
SIMREPLAY_* environment overrides are applied.

Configuration is read from ~/.simreplay/config.yaml unless --config is set.`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigPathCmd(),
	)
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Run: func(cmd *cobra.Command, args []string) {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = filepath.Join(config.HomeDir(), "config.yaml")
			}
			if jsonOutput(cmd) {
				writeJSON(cmd.OutOrStdout(), map[string]string{"path": path})
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		},
	}
}
