// Package session runs replay sessions: it builds the kinematic engine from
// configuration, replays one agent, traces every checked step and records
// the outcome in the run store.
//
// RunAll replays many scenario files concurrently, one engine per file.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvandessel/simreplay/internal/engine"
	"github.com/nvandessel/simreplay/internal/engine/kinematic"
	"github.com/nvandessel/simreplay/internal/logging"
	"github.com/nvandessel/simreplay/internal/replay"
	"github.com/nvandessel/simreplay/internal/store"
	"github.com/nvandessel/simreplay/internal/trajectory"
	"golang.org/x/sync/errgroup"
)

// Options configures a session. Logger, Trace and Store are optional.
type Options struct {
	Engine     engine.Config
	World      int
	Agent      int
	// Tolerances follows replay.Options: the zero value means the defaults.
	Tolerances replay.Tolerances

	Logger *slog.Logger
	Trace  *logging.TraceLogger
	Store  store.RunStore
}

// Outcome is the result of one session.
type Outcome struct {
	// Path is the data path the engine loaded.
	Path   string
	Report *store.RunReport
	Result *replay.Result
	// Err is the replay failure, nil when every step was consistent.
	Err error
	// TracePath is the run's trace file, "" when tracing is off.
	TracePath string
}

// Run replays one agent. The returned error covers failures to build the
// engine or to save the report; replay failures are reported in
// Outcome.Err. Cancelled runs are not saved.
func Run(ctx context.Context, opts Options) (*Outcome, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	eng, err := kinematic.New(opts.Engine, logger)
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	name := eng.ScenarioName(opts.World)
	started := time.Now()
	rt := opts.Trace.Start(logging.RunInfo{
		Scenario: name,
		World:    opts.World,
		Agent:    opts.Agent,
		Horizon:  opts.Engine.Horizon,
		Started:  started,
	})
	d := replay.NewDriver(eng, replay.Options{
		World:      opts.World,
		Agent:      opts.Agent,
		Horizon:    opts.Engine.Horizon,
		Tolerances: opts.Tolerances,
		OnStep: func(rec replay.StepRecord) {
			rt.Step(rec.Event(opts.World, opts.Agent, rt.Verbose()))
		},
	}, logger.With("scenario", name))

	res, runErr := d.Run(ctx)
	out := &Outcome{
		Path:      opts.Engine.DataPath,
		Report:    store.NewRunReport(name, res, runErr, started, time.Since(started)),
		Result:    res,
		Err:       runErr,
		TracePath: rt.Path(),
	}
	rt.End(out.Report.ID, string(out.Report.Status), out.Report.Steps, runErr)

	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		return out, nil
	}
	if opts.Store != nil {
		if err := opts.Store.SaveRun(ctx, out.Report); err != nil {
			return out, fmt.Errorf("saving run %s: %w", out.Report.ID, err)
		}
	}
	if runErr != nil {
		logger.Warn("replay failed", "scenario", name, "status", out.Report.Status, "error", runErr)
	}
	return out, nil
}

// RunAll runs one session per path with at most parallel in flight.
// Outcomes are returned in path order. A build or save failure cancels
// the remaining sessions; replay failures do not.
func RunAll(ctx context.Context, opts Options, paths []string, parallel int) ([]*Outcome, error) {
	if parallel < 1 {
		parallel = 1
	}
	outs := make([]*Outcome, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, p := range paths {
		g.Go(func() error {
			o := opts
			o.Engine.DataPath = p
			out, err := Run(gctx, o)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			outs[i] = out
			return nil
		})
	}
	err := g.Wait()
	return outs, err
}

// Failed counts outcomes whose replay did not complete consistently.
func Failed(outs []*Outcome) int {
	n := 0
	for _, o := range outs {
		if o == nil || o.Err != nil {
			n++
		}
	}
	return n
}

// Expert builds the engine for cfg and decodes the expert trajectory of one
// agent. It also returns the name of the scenario loaded into world.
func Expert(cfg engine.Config, world, agent int, logger *slog.Logger) (*trajectory.Trajectory, string, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	eng, err := kinematic.New(cfg, logger)
	if err != nil {
		return nil, "", err
	}
	defer eng.Close()

	row, err := eng.ExpertTrajectoryTensor().Row(world, agent)
	if err != nil {
		return nil, "", fmt.Errorf("expert trajectory: %w", err)
	}
	tr, err := trajectory.Decode(row, cfg.Horizon)
	if err != nil {
		return nil, "", err
	}
	return tr, eng.ScenarioName(world), nil
}
