// Package replay drives a simulation engine with an agent's recorded
// inverse-dynamics actions and checks, after every step, that the engine's
// observed kinematic state matches the recorded trajectory.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/nvandessel/simreplay/internal/constants"
	"github.com/nvandessel/simreplay/internal/engine"
	"github.com/nvandessel/simreplay/internal/params"
	"github.com/nvandessel/simreplay/internal/trajectory"
)

// Options selects the replayed agent and the acceptance bounds.
type Options struct {
	World   int
	Agent   int
	Horizon int
	// Tolerances left at the zero value means DefaultTolerances, so an
	// all-exact comparison cannot be requested through Options.
	Tolerances Tolerances
	// OnStep, if set, is called after every check, including failing ones.
	OnStep func(StepRecord)
}

// Result summarises a replay. It is returned alongside any error and holds
// every record produced up to that point.
type Result struct {
	World   int          `json:"world"`
	Agent   int          `json:"agent"`
	Horizon int          `json:"horizon"`
	Steps   int          `json:"steps"`
	Records []StepRecord `json:"records"`
	// Max holds the largest deviation seen per quantity.
	Max Deviation `json:"max_deviation"`
}

func (r *Result) add(rec StepRecord) {
	r.Records = append(r.Records, rec)
	r.Max.Position[0] = math.Max(r.Max.Position[0], rec.Deviation.Position[0])
	r.Max.Position[1] = math.Max(r.Max.Position[1], rec.Deviation.Position[1])
	r.Max.Heading = math.Max(r.Max.Heading, rec.Deviation.Heading)
	r.Max.Speed = math.Max(r.Max.Speed, rec.Deviation.Speed)
}

// Driver replays one agent's expert actions through an engine.
type Driver struct {
	eng    engine.Engine
	opts   Options
	logger *slog.Logger
}

// NewDriver prepares a replay. A nil logger discards output.
func NewDriver(eng engine.Engine, opts Options, logger *slog.Logger) *Driver {
	if opts.Horizon == 0 {
		opts.Horizon = constants.DefaultHorizon
	}
	opts.Tolerances = opts.Tolerances.OrDefault()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Driver{eng: eng, opts: opts, logger: logger}
}

// Run requires the agent to be controlled by the engine, decodes its
// expert trajectory once, checks the initial state, then alternates
// action, step and check until the engine reports the agent done. It
// fails fast on the first inconsistent step, on a step that would need an
// expert index at or beyond the horizon, on engine errors, and on context
// cancellation between steps.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	o := d.opts
	res := &Result{World: o.World, Agent: o.Agent, Horizon: o.Horizon}

	if err := o.Tolerances.Validate(); err != nil {
		return res, err
	}
	if !d.eng.Controlled(o.World, o.Agent) {
		return res, &params.ConfigurationError{
			Field:  "agent",
			Value:  fmt.Sprintf("world %d agent %d", o.World, o.Agent),
			Reason: "not controlled by the engine, so replayed actions would be ignored",
		}
	}
	row, err := d.eng.ExpertTrajectoryTensor().Row(o.World, o.Agent)
	if err != nil {
		return res, fmt.Errorf("expert trajectory: %w", err)
	}
	tr, err := trajectory.Decode(row, o.Horizon)
	if err != nil {
		return res, fmt.Errorf("decoding expert trajectory: %w", err)
	}

	checker := Checker{World: o.World, Agent: o.Agent, Tolerances: o.Tolerances}
	check := func(i int, action [3]float64) error {
		rec, err := checker.Check(d.eng, tr, i)
		rec.Action = action
		res.add(rec)
		if o.OnStep != nil {
			o.OnStep(rec)
		}
		d.logger.DebugContext(ctx, "replay step",
			"world", o.World, "agent", o.Agent, "index", i,
			"position_error", math.Max(rec.Deviation.Position[0], rec.Deviation.Position[1]),
			"heading_error", rec.Deviation.Heading,
			"speed_error", rec.Deviation.Speed)
		return err
	}

	if err := check(0, [3]float64{}); err != nil {
		return res, err
	}

	i := 0
	for {
		done, err := d.done()
		if err != nil {
			return res, err
		}
		if done {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if i+1 >= o.Horizon {
			return res, &HorizonExceededError{Horizon: o.Horizon, Index: i + 1}
		}

		action := tr.Action(i)
		if err := d.apply(action); err != nil {
			return res, err
		}
		if err := d.eng.Step(ctx); err != nil {
			return res, fmt.Errorf("step %d: %w", i+1, err)
		}
		i++
		res.Steps = i

		if err := check(i, action); err != nil {
			return res, err
		}
	}

	d.logger.Info("replay consistent",
		"world", o.World, "agent", o.Agent, "steps", res.Steps,
		"max_position_error", math.Max(res.Max.Position[0], res.Max.Position[1]),
		"max_heading_error", res.Max.Heading,
		"max_speed_error", res.Max.Speed)
	return res, nil
}

// apply zeroes the whole action tensor and writes action into the
// replayed agent's slot.
func (d *Driver) apply(action [3]float64) error {
	t := d.eng.ActionTensor()
	t.Zero()
	slot, err := t.Row(d.opts.World, d.opts.Agent)
	if err != nil {
		return fmt.Errorf("action tensor: %w", err)
	}
	if len(slot) < len(action) {
		return fmt.Errorf("action slot has %d values, need %d", len(slot), len(action))
	}
	copy(slot, action[:])
	return nil
}

func (d *Driver) done() (bool, error) {
	v, err := d.eng.DoneTensor().At(d.opts.World, d.opts.Agent, 0)
	if err != nil {
		return false, fmt.Errorf("done tensor: %w", err)
	}
	return v != 0, nil
}
