package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/nvandessel/simreplay/internal/config"
	"github.com/nvandessel/simreplay/internal/store"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "simreplay",
		Short: "Trajectory replay consistency harness for the vehicle simulator",
		Long: `simreplay replays logged expert actions through the batched vehicle
simulator and checks, step by step, that the simulated agent reproduces the
logged position, heading and speed.

Runs are recorded in ~/.simreplay/runs.db and can be listed, plotted and
exported afterwards.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.simreplay/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newReplayCmd(),
		newDecodeCmd(),
		newSmokeCmd(),
		newGenerateCmd(),
		newHistoryCmd(),
		newPlotCmd(),
		newExportCmd(),
		newConfigCmd(),
		newMCPCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput(cmd) {
				writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "simreplay version %s\n", version)
			}
		},
	}
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadConfig loads --config (or the default locations) and validates it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openStore opens the configured run store.
func openStore(cfg *config.Config) (store.RunStore, error) {
	s, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return s, nil
}
