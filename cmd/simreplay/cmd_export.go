package main

import (
	"fmt"

	"github.com/nvandessel/simreplay/internal/export"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export a recorded run's step records as an Arrow IPC file",
		Long: `Write every checked step of a recorded run to an Arrow IPC file, one
row per step, for analysis in pandas, polars or DuckDB. The run ID,
scenario, world, agent and horizon are stored as schema metadata.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				out = args[0] + ".arrow"
			}

			rep, err := loadRun(cmd, args[0])
			if err != nil {
				return err
			}
			meta := export.Meta{
				RunID:    rep.ID,
				Scenario: rep.Scenario,
				World:    rep.World,
				Agent:    rep.Agent,
				Horizon:  rep.Horizon,
			}
			if err := export.WriteFile(out, meta, rep.Records); err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"run_id": rep.ID, "path": out, "rows": len(rep.Records)})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", len(rep.Records), out)
			return nil
		},
	}

	cmd.Flags().StringP("out", "o", "", "Output file (default <run-id>.arrow)")

	return cmd
}
