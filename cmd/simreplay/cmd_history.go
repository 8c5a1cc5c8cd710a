package main

import (
	"fmt"
	"math"
	"text/tabwriter"

	"github.com/nvandessel/simreplay/internal/store"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded replay runs",
		Long: `List replay runs recorded in the run store, newest first.

Examples:
  simreplay history                        # 20 most recent runs
  simreplay history --status mismatch      # only failed checks
  simreplay history show run-3f2a...       # one run with its failing step
  simreplay history prune --keep 100 --max-age 30d`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runs, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer runs.Close()

			scenarioName, _ := cmd.Flags().GetString("scenario")
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")

			list, err := runs.ListRuns(cmd.Context(), store.RunFilter{
				Scenario: scenarioName,
				Status:   store.Status(status),
				Limit:    limit,
			})
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"runs": list, "count": len(list)})
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tSCENARIO\tWORLD\tAGENT\tSTEPS\tSTATUS\tMAX POS\tMAX SPEED")
			for _, r := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%.2e\t%.2e\n",
					r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Scenario, r.World, r.Agent,
					r.Steps, r.Status, math.Max(r.Max.Position[0], r.Max.Position[1]), r.Max.Speed)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().String("scenario", "", "Only runs of this scenario")
	cmd.Flags().String("status", "", "Only runs with this status (consistent, mismatch, horizon_exceeded, ...)")
	cmd.Flags().Int("limit", 20, "Maximum number of runs (0 for all)")

	cmd.AddCommand(
		newHistoryShowCmd(),
		newHistoryDeleteCmd(),
		newHistoryPruneCmd(),
	)
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its last checked step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := loadRun(cmd, args[0])
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), rep)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run:       %s\n", rep.ID)
			fmt.Fprintf(out, "Scenario:  %s (world %d, agent %d)\n", rep.Scenario, rep.World, rep.Agent)
			fmt.Fprintf(out, "Started:   %s (%s)\n", rep.StartedAt.Local().Format("2006-01-02 15:04:05"), rep.Duration)
			fmt.Fprintf(out, "Status:    %s after %d of %d steps\n", rep.Status, rep.Steps, rep.Horizon-1)
			fmt.Fprintf(out, "Max dev:   position (%.3e, %.3e)  heading %.3e  speed %.3e\n",
				rep.Max.Position[0], rep.Max.Position[1], rep.Max.Heading, rep.Max.Speed)
			if rep.Error != "" {
				fmt.Fprintf(out, "Error:     %s\n", rep.Error)
			}
			if n := len(rep.Records); n > 0 && rep.Status != store.StatusConsistent {
				r := rep.Records[n-1]
				fmt.Fprintf(out, "\nStep %d (action %.4f, %.4f, %.4f):\n", r.Index, r.Action[0], r.Action[1], r.Action[2])
				fmt.Fprintf(out, "  position  %.4f, %.4f  expected %.4f, %.4f\n",
					r.Position[0], r.Position[1], r.ExpectedPosition[0], r.ExpectedPosition[1])
				fmt.Fprintf(out, "  heading   %.4f  expected %.4f\n", r.Heading, r.ExpectedHeading)
				fmt.Fprintf(out, "  speed     %.4f  expected %.4f\n", r.Speed, r.ExpectedSpeed)
			}
			return nil
		},
	}
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runs, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer runs.Close()

			if err := runs.DeleteRun(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to delete run: %w", err)
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"deleted": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newHistoryPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old runs according to a retention policy",
		Long: `Delete every run not kept by at least one retention rule.

--keep keeps the N most recent runs, --max-age keeps runs newer than the
given age (e.g. 720h, 30d, 2w) and --keep-failed keeps every run that did
not end consistently.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keep, _ := cmd.Flags().GetInt("keep")
			maxAge, _ := cmd.Flags().GetString("max-age")
			keepFailed, _ := cmd.Flags().GetBool("keep-failed")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			policy, err := retentionPolicy(keep, maxAge, keepFailed)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runs, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer runs.Close()

			var deleted []string
			if dryRun {
				deleted, err = prunable(cmd, runs, policy)
			} else {
				deleted, err = store.Prune(cmd.Context(), runs, policy)
			}
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"deleted": deleted, "count": len(deleted), "dry_run": dryRun})
			}
			verb := "Deleted"
			if dryRun {
				verb = "Would delete"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d runs\n", verb, len(deleted))
			return nil
		},
	}

	cmd.Flags().Int("keep", 0, "Keep the N most recent runs")
	cmd.Flags().String("max-age", "", "Keep runs newer than this age (e.g. 30d, 2w, 720h)")
	cmd.Flags().Bool("keep-failed", false, "Keep every run that did not end consistently")
	cmd.Flags().Bool("dry-run", false, "Only report what would be deleted")

	return cmd
}

// retentionPolicy combines the prune flags. At least one rule is required.
func retentionPolicy(keep int, maxAge string, keepFailed bool) (store.RetentionPolicy, error) {
	var policies []store.RetentionPolicy
	if keep > 0 {
		policies = append(policies, &store.CountPolicy{MaxCount: keep})
	}
	if maxAge != "" {
		d, err := store.ParseAge(maxAge)
		if err != nil {
			return nil, fmt.Errorf("invalid --max-age: %w", err)
		}
		policies = append(policies, &store.AgePolicy{MaxAge: d})
	}
	if keepFailed {
		policies = append(policies, &store.StatusPolicy{Statuses: []store.Status{
			store.StatusMismatch, store.StatusHorizonExceeded, store.StatusShape,
			store.StatusConfiguration, store.StatusError,
		}})
	}
	if len(policies) == 0 {
		return nil, fmt.Errorf("prune needs at least one of --keep, --max-age or --keep-failed")
	}
	return &store.AnyPolicy{Policies: policies}, nil
}

// prunable lists the runs policy would delete without deleting them.
func prunable(cmd *cobra.Command, runs store.RunStore, policy store.RetentionPolicy) ([]string, error) {
	list, err := runs.ListRuns(cmd.Context(), store.RunFilter{})
	if err != nil {
		return nil, err
	}
	kept := make(map[string]bool)
	for _, r := range policy.Keep(list) {
		kept[r.ID] = true
	}
	var out []string
	for _, r := range list {
		if !kept[r.ID] {
			out = append(out, r.ID)
		}
	}
	return out, nil
}

// loadRun fetches one run, with records, from the configured store.
func loadRun(cmd *cobra.Command, id string) (*store.RunReport, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	runs, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	defer runs.Close()

	rep, err := runs.GetRun(cmd.Context(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if rep == nil {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return rep, nil
}
