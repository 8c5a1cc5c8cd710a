package main

import (
	"fmt"
	"io"
	"math"

	"github.com/nvandessel/simreplay/internal/config"
	"github.com/nvandessel/simreplay/internal/logging"
	"github.com/nvandessel/simreplay/internal/replay"
	"github.com/nvandessel/simreplay/internal/scenario"
	"github.com/nvandessel/simreplay/internal/session"
	"github.com/nvandessel/simreplay/internal/store"
	"github.com/spf13/cobra"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [path...]",
		Short: "Replay expert actions and check every step against the log",
		Long: `Replay one agent's logged expert actions through the simulator.

With no arguments the configured data path is loaded into one engine.
Each argument is a scenario file or a directory of them; every file is
replayed in its own engine, up to --parallel at a time.

The agent must be one the engine controls: the first
engine.params.max_num_controlled_vehicles vehicles valid at step 0.
Replaying any other slot fails with a configuration error.

Examples:
  simreplay replay                               # configured data path
  simreplay replay logs/ --parallel 8            # every file in logs/
  simreplay replay intersection.json --agent 1   # one agent of one file
  simreplay replay logs/ --tolerance 0.05`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyReplayFlags(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			noStore, _ := cmd.Flags().GetBool("no-store")

			logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
			trace := logging.NewTraceLogger(cfg.Logging.TraceDir, cfg.Logging.Level)
			defer trace.Close()

			opts := session.Options{
				Engine:     cfg.Engine,
				World:      cfg.Replay.World,
				Agent:      cfg.Replay.Agent,
				Tolerances: cfg.Replay.Tolerances,
				Logger:     logger,
				Trace:      trace,
			}
			if !noStore {
				runs, err := openStore(cfg)
				if err != nil {
					return err
				}
				defer runs.Close()
				opts.Store = runs
			}

			var outs []*session.Outcome
			if len(args) == 0 {
				out, err := session.Run(cmd.Context(), opts)
				if err != nil {
					return err
				}
				outs = []*session.Outcome{out}
			} else {
				var paths []string
				for _, arg := range args {
					files, err := scenario.Files(arg)
					if err != nil {
						return err
					}
					paths = append(paths, files...)
				}
				outs, err = session.RunAll(cmd.Context(), opts, paths, cfg.Replay.Parallel)
				if err != nil {
					return err
				}
			}

			if jsonOutput(cmd) {
				if err := writeJSON(cmd.OutOrStdout(), outcomeSummaries(outs)); err != nil {
					return err
				}
			} else {
				printOutcomes(cmd.OutOrStdout(), outs)
			}

			if failed := session.Failed(outs); failed > 0 {
				return fmt.Errorf("%d of %d replays failed", failed, len(outs))
			}
			return nil
		},
	}

	cmd.Flags().Int("world", 0, "World index to replay")
	cmd.Flags().Int("agent", 0, "Agent index to replay")
	cmd.Flags().Int("horizon", 0, "Expert trajectory length T (default from config)")
	cmd.Flags().Int("num-worlds", 0, "Number of worlds in the batch (default from config)")
	cmd.Flags().Float64("tolerance", 0, "Tolerance for position, heading and speed (default 1e-2 each)")
	cmd.Flags().Int("parallel", 0, "Scenario files replayed concurrently (default from config)")
	cmd.Flags().String("trace-dir", "", "Directory for per-run JSONL trace files (written at debug or trace level)")
	cmd.Flags().String("log-level", "", "Log level: info, debug or trace")
	cmd.Flags().Bool("no-store", false, "Do not record runs in the history")

	return cmd
}

// applyReplayFlags overrides cfg with every flag the user set.
func applyReplayFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("world") {
		cfg.Replay.World, _ = f.GetInt("world")
	}
	if f.Changed("agent") {
		cfg.Replay.Agent, _ = f.GetInt("agent")
	}
	if f.Changed("horizon") {
		cfg.Engine.Horizon, _ = f.GetInt("horizon")
	}
	if f.Changed("num-worlds") {
		cfg.Engine.NumWorlds, _ = f.GetInt("num-worlds")
	}
	if f.Changed("parallel") {
		cfg.Replay.Parallel, _ = f.GetInt("parallel")
	}
	if f.Changed("tolerance") {
		tol, _ := f.GetFloat64("tolerance")
		if tol <= 0 {
			return fmt.Errorf("--tolerance must be positive, got %v", tol)
		}
		cfg.Replay.Tolerances = replay.Tolerances{Position: tol, Heading: tol, Speed: tol}
	}
	if f.Changed("trace-dir") {
		cfg.Logging.TraceDir, _ = f.GetString("trace-dir")
	}
	if f.Changed("log-level") {
		cfg.Logging.Level, _ = f.GetString("log-level")
	}
	return nil
}

type outcomeSummary struct {
	Path   string           `json:"path"`
	Report *store.RunReport `json:"report"`
}

// outcomeSummaries drops per-step records so the JSON output stays small.
func outcomeSummaries(outs []*session.Outcome) []outcomeSummary {
	sums := make([]outcomeSummary, 0, len(outs))
	for _, o := range outs {
		if o == nil {
			continue
		}
		rep := *o.Report
		rep.Records = nil
		sums = append(sums, outcomeSummary{Path: o.Path, Report: &rep})
	}
	return sums
}

func printOutcomes(w io.Writer, outs []*session.Outcome) {
	for _, o := range outs {
		if o == nil {
			continue
		}
		r := o.Report
		if o.Err == nil {
			fmt.Fprintf(w, "PASS  %-24s world %d agent %d  %3d steps  max dev pos %.2e heading %.2e speed %.2e  %s\n",
				r.Scenario, r.World, r.Agent, r.Steps,
				math.Max(r.Max.Position[0], r.Max.Position[1]), r.Max.Heading, r.Max.Speed, r.ID)
			continue
		}
		fmt.Fprintf(w, "FAIL  %-24s world %d agent %d  %s  %s\n    %v\n",
			r.Scenario, r.World, r.Agent, r.Status, r.ID, o.Err)
	}
}
