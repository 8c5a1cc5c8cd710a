// Package kinematic implements engine.Engine on the CPU with planar
// delta-local vehicle dynamics over logged scenarios.
//
// A controlled agent applies its action (dx, dy, dyaw) in its own frame:
// the displacement is rotated by the current heading and added to the
// position, dyaw is added to the heading, and the velocity becomes the
// displacement divided by the scenario timestep. The expert tensor carries
// the inverse of that mapping computed from the log, so replaying it
// reproduces the logged track.
package kinematic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/nvandessel/simreplay/internal/constants"
	"github.com/nvandessel/simreplay/internal/engine"
	"github.com/nvandessel/simreplay/internal/params"
	"github.com/nvandessel/simreplay/internal/scenario"
	"github.com/nvandessel/simreplay/internal/tensor"
	"github.com/nvandessel/simreplay/internal/trajectory"
)

// ErrClosed is returned by Step and TriggerReset after Close.
var ErrClosed = errors.New("engine closed")

// Engine is a batch of independent worlds stepped in lockstep.
type Engine struct {
	mu     sync.Mutex
	cfg    engine.Config
	logger *slog.Logger
	worlds []*world
	closed bool

	done    *tensor.Tensor
	expert  *tensor.Tensor
	action  *tensor.Tensor
	selfObs *tensor.Tensor
	absObs  *tensor.Tensor
	reward  *tensor.Tensor
	reset   *tensor.Tensor
	shape   *tensor.Tensor
}

var _ engine.Engine = (*Engine)(nil)

// New loads scenarios from cfg.DataPath and builds an engine.
func New(cfg engine.Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DataPath == "" {
		return nil, &params.ConfigurationError{Field: "data_path", Reason: "must be set"}
	}
	all, err := scenario.LoadAll(cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("loading scenarios: %w", err)
	}
	return NewFromScenarios(cfg, all, logger)
}

// NewFromScenarios builds an engine over already-loaded scenarios.
func NewFromScenarios(cfg engine.Config, all []*scenario.Scenario, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ExecMode != engine.CPU {
		return nil, &params.ConfigurationError{Field: "exec_mode", Value: cfg.ExecMode.String(), Reason: "kinematic engine runs on cpu only"}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	for _, s := range all {
		if err := s.Validate(cfg.Horizon); err != nil {
			return nil, err
		}
	}

	picked, err := assignScenarios(all, cfg.NumWorlds, cfg.Params.DatasetInitOptions, cfg.Seed)
	if err != nil {
		return nil, err
	}

	W, A, T := cfg.NumWorlds, cfg.MaxAgentCount, cfg.Horizon
	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		done:    tensor.MustNew(W, A, 1),
		expert:  tensor.MustNew(W, A, constants.TrajectoryStride*T),
		action:  tensor.MustNew(W, A, constants.ActionWidth),
		selfObs: tensor.MustNew(W, A, constants.SelfObservationWidth),
		absObs:  tensor.MustNew(W, A, constants.AbsoluteObservationWidth),
		reward:  tensor.MustNew(W, A, 1),
		reset:   tensor.MustNew(W, 1),
		shape:   tensor.MustNew(W, 2),
	}

	layout := trajectory.DefaultLayout(T)
	for wi, scn := range picked {
		w, dropped := newWorld(scn, A, cfg.Params, cfg.MaxRoadPoints)
		if dropped > 0 {
			logger.Warn("scenario exceeds agent slots", "scenario", scn.Name, "world", wi, "dropped", dropped)
		}
		for ai := range w.agents {
			row, err := e.expert.Row(wi, ai)
			if err != nil {
				return nil, err
			}
			if err := layout.EncodeInto(row, w.expert(ai, T)); err != nil {
				return nil, fmt.Errorf("packing expert trajectory: %w", err)
			}
		}
		e.worlds = append(e.worlds, w)
		logger.Debug("world initialised", "world", wi, "scenario", scn.Name,
			"agents", w.activeCount(), "road_points", w.roadPoints)
	}

	for wi := range e.worlds {
		e.publish(wi)
	}
	return e, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() engine.Config { return e.cfg }

// ScenarioName returns the scenario loaded into world w.
func (e *Engine) ScenarioName(w int) string {
	if w < 0 || w >= len(e.worlds) {
		return ""
	}
	return e.worlds[w].scn.Name
}

// Controlled reports whether agent a of world w is driven by the action
// tensor.
func (e *Engine) Controlled(w, a int) bool {
	if w < 0 || w >= len(e.worlds) || a < 0 || a >= len(e.worlds[w].agents) {
		return false
	}
	return e.worlds[w].agents[a].controlled
}

// Step advances every world. Worlds flagged in the reset tensor, or whose
// agents are all done while auto reset is enabled, restart instead.
func (e *Engine) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	resets := e.reset.Data()
	for wi, w := range e.worlds {
		if resets[wi] != 0 || (e.cfg.AutoReset && w.allDone()) {
			w.reset()
			resets[wi] = 0
			e.logger.Debug("world reset", "world", wi)
		} else {
			actions, err := e.action.Row(wi)
			if err != nil {
				return err
			}
			w.step(actions, e.cfg.Params, e.cfg.Horizon, e.cfg.Steps())
		}
		e.publish(wi)
	}
	return nil
}

// TriggerReset restores world w to its initial state.
func (e *Engine) TriggerReset(w int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if w < 0 || w >= len(e.worlds) {
		return fmt.Errorf("world %d out of range [0,%d)", w, len(e.worlds))
	}
	e.worlds[w].reset()
	e.publish(w)
	return nil
}

// Close releases the engine. Further steps fail with ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *Engine) DoneTensor() *tensor.Tensor                    { return e.done }
func (e *Engine) ExpertTrajectoryTensor() *tensor.Tensor        { return e.expert }
func (e *Engine) ActionTensor() *tensor.Tensor                  { return e.action }
func (e *Engine) SelfObservationTensor() *tensor.Tensor         { return e.selfObs }
func (e *Engine) AbsoluteSelfObservationTensor() *tensor.Tensor { return e.absObs }
func (e *Engine) RewardTensor() *tensor.Tensor                  { return e.reward }
func (e *Engine) ResetTensor() *tensor.Tensor                   { return e.reset }
func (e *Engine) ShapeTensor() *tensor.Tensor                   { return e.shape }

// publish writes world wi's state into the observation tensors.
func (e *Engine) publish(wi int) {
	w := e.worlds[wi]
	radius := e.cfg.Params.ObservationRadius

	for ai := range w.agents {
		st := &w.agents[ai]
		abs, _ := e.absObs.Row(wi, ai)
		self, _ := e.selfObs.Row(wi, ai)
		done, _ := e.done.Row(wi, ai)
		reward, _ := e.reward.Row(wi, ai)

		done[0] = boolFloat(st.done)
		reward[0] = st.reward
		if st.padding() {
			clear(abs)
			clear(self)
			continue
		}

		goal := vec(st.src.Goal)
		sinH, cosH := math.Sincos(st.heading / 2)
		abs[0], abs[1], abs[2] = st.pos[0], st.pos[1], 0
		abs[3], abs[4], abs[5], abs[6] = cosH, 0, 0, sinH
		abs[7] = st.heading
		abs[8], abs[9] = goal[0], goal[1]

		rel := goal.sub(st.pos).rotate(-st.heading)
		if d := rel.norm(); radius > 0 && d > radius {
			rel = rel.scale(radius / d)
		}
		self[0] = st.vel.norm()
		self[1], self[2] = st.src.Length, st.src.Width
		self[3], self[4] = rel[0], rel[1]
		self[5] = boolFloat(st.collided)
	}

	shape, _ := e.shape.Row(wi)
	shape[0] = float64(w.activeCount())
	shape[1] = float64(w.roadPoints)
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
