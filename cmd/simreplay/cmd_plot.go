package main

import (
	"fmt"

	"github.com/nvandessel/simreplay/internal/chart"
	"github.com/spf13/cobra"
)

func newPlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot <run-id>",
		Short: "Plot a recorded run's deviations or path",
		Long: `Render a recorded run to an image. The format follows the --out
extension (.png, .svg, .pdf, ...).

  --kind deviation   per-step position, heading and speed error with the
                     tolerance bands (default)
  --kind path        replayed path against the logged path`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				out = args[0] + "-" + kind + ".png"
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rep, err := loadRun(cmd, args[0])
			if err != nil {
				return err
			}
			title := fmt.Sprintf("%s world %d agent %d (%s)", rep.Scenario, rep.World, rep.Agent, rep.Status)

			switch kind {
			case "deviation":
				err = chart.Deviations(rep.Records, cfg.Replay.Tolerances, title, out)
			case "path":
				err = chart.Path(rep.Records, title, out)
			default:
				return fmt.Errorf("unknown plot kind %q (want deviation or path)", kind)
			}
			if err != nil {
				return fmt.Errorf("plot failed: %w", err)
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"run_id": rep.ID, "kind": kind, "path": out})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
			return nil
		},
	}

	cmd.Flags().String("kind", "deviation", "Plot kind: deviation or path")
	cmd.Flags().StringP("out", "o", "", "Output file (default <run-id>-<kind>.png)")

	return cmd
}
