package simulation

import (
	"github.com/nvandessel/simreplay/internal/engine"
	"github.com/nvandessel/simreplay/internal/replay"
	"github.com/nvandessel/simreplay/internal/scenario"
	"github.com/nvandessel/simreplay/internal/store"
)

// Scenario defines a complete replay experiment.
type Scenario struct {
	Name   string
	Tracks []scenario.Track

	// Horizon defaults to 91 and Timestep to 0.1 s.
	Horizon  int
	Timestep float64

	// Worlds is the number of batched worlds; each gets a copy of the
	// scenario. Defaults to 1.
	Worlds int
	World  int
	Agent  int

	// Tolerances defaults to replay.DefaultTolerances when zero.
	Tolerances replay.Tolerances

	// Configure, when non-nil, adjusts the engine config after defaults are
	// applied and before the engine is built.
	Configure func(cfg *engine.Config)

	// Perturb, when non-nil, edits the synthesized log before it is written
	// to disk. Use it to make the log disagree with itself.
	Perturb func(s *scenario.Scenario)
}

// Result captures the outcome of one replay.
type Result struct {
	Replay *replay.Result
	Err    error
	Report *store.RunReport
	Store  *store.SQLiteRunStore
	// TracePath is the JSONL trace written during the run.
	TracePath string
}

// Perturbations.

// ShiftVelocity adds dv to the logged velocity of agent at step.
func ShiftVelocity(agent, step int, dv [2]float64) func(*scenario.Scenario) {
	return func(s *scenario.Scenario) {
		v := &s.Agents[agent].Velocities[step]
		v[0] += dv[0]
		v[1] += dv[1]
	}
}
