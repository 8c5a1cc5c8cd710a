// Package enginetest provides a scripted engine.Engine for exercising the
// replay harness without a simulator.
//
// The fake publishes, after k steps, exactly the expert state at index k
// for the observed agent, optionally perturbed by per-step offsets. It
// records every action row written for that agent.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nvandessel/simreplay/internal/constants"
	"github.com/nvandessel/simreplay/internal/engine"
	"github.com/nvandessel/simreplay/internal/tensor"
	"github.com/nvandessel/simreplay/internal/trajectory"
)

// Offset perturbs the published observation at one step.
type Offset struct {
	Position [2]float64
	Heading  float64
	Speed    float64
}

// Options configures a Fake.
type Options struct {
	Worlds  int
	Agents  int
	World   int
	Agent   int
	Horizon int
	// Expert is packed into the expert tensor for (World, Agent).
	Expert *trajectory.Trajectory
	// DoneAfter is the step count at which the agent reports done. A
	// negative value means never.
	DoneAfter int
	// Offsets maps a step count to an observation perturbation.
	Offsets map[int]Offset
	// FailAt makes Step return StepErr on that step count (1-based).
	FailAt  int
	StepErr error
}

// Fake is a scripted engine.
type Fake struct {
	mu    sync.Mutex
	opts  Options
	steps int

	// Actions holds the (World, Agent) action row seen at each Step.
	Actions [][3]float64
	// Leaked counts steps where any other action slot was non-zero.
	Leaked int
	Closed bool

	done, expert, action, selfObs, absObs, reward, reset, shape *tensor.Tensor
}

var _ engine.Engine = (*Fake)(nil)

// New builds a fake and publishes the step-0 observation.
func New(opts Options) (*Fake, error) {
	if opts.Worlds == 0 {
		opts.Worlds = 1
	}
	if opts.Agents == 0 {
		opts.Agents = 1
	}
	if opts.Expert == nil {
		return nil, errors.New("enginetest: expert trajectory required")
	}
	if opts.Horizon == 0 {
		opts.Horizon = opts.Expert.Horizon
	}
	W, A, T := opts.Worlds, opts.Agents, opts.Horizon
	f := &Fake{
		opts:    opts,
		done:    tensor.MustNew(W, A, 1),
		expert:  tensor.MustNew(W, A, constants.TrajectoryStride*T),
		action:  tensor.MustNew(W, A, constants.ActionWidth),
		selfObs: tensor.MustNew(W, A, constants.SelfObservationWidth),
		absObs:  tensor.MustNew(W, A, constants.AbsoluteObservationWidth),
		reward:  tensor.MustNew(W, A, 1),
		reset:   tensor.MustNew(W, 1),
		shape:   tensor.MustNew(W, 2),
	}
	row, err := f.expert.Row(opts.World, opts.Agent)
	if err != nil {
		return nil, fmt.Errorf("enginetest: %w", err)
	}
	if err := trajectory.DefaultLayout(T).EncodeInto(row, opts.Expert); err != nil {
		return nil, fmt.Errorf("enginetest: %w", err)
	}
	f.publish()
	return f, nil
}

// Steps returns how many times Step succeeded.
func (f *Fake) Steps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.steps
}

func (f *Fake) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opts.FailAt > 0 && f.steps+1 == f.opts.FailAt {
		return f.opts.StepErr
	}

	row, _ := f.action.Row(f.opts.World, f.opts.Agent)
	f.Actions = append(f.Actions, [3]float64{row[0], row[1], row[2]})
	base := (f.opts.World*f.opts.Agents + f.opts.Agent) * constants.ActionWidth
	for i, v := range f.action.Data() {
		if v != 0 && (i < base || i >= base+constants.ActionWidth) {
			f.Leaked++
			break
		}
	}

	f.steps++
	f.publish()
	return nil
}

func (f *Fake) publish() {
	k := min(f.steps, f.opts.Expert.Horizon-1)
	off := f.opts.Offsets[f.steps]
	pos := f.opts.Expert.Position(k)
	abs, _ := f.absObs.Row(f.opts.World, f.opts.Agent)
	abs[constants.AbsObsPosX] = pos[0] + off.Position[0]
	abs[constants.AbsObsPosY] = pos[1] + off.Position[1]
	abs[constants.AbsObsHeading] = f.opts.Expert.Heading(k) + off.Heading
	self, _ := f.selfObs.Row(f.opts.World, f.opts.Agent)
	self[constants.SelfObsSpeed] = f.opts.Expert.Speed(k) + off.Speed

	done := 0.0
	if f.opts.DoneAfter >= 0 && f.steps >= f.opts.DoneAfter {
		done = 1
	}
	_ = f.done.Set(done, f.opts.World, f.opts.Agent, 0)
}

// Controlled reports true only for the scripted (World, Agent) slot.
func (f *Fake) Controlled(world, agent int) bool {
	return world == f.opts.World && agent == f.opts.Agent
}

func (f *Fake) TriggerReset(world int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if world < 0 || world >= f.opts.Worlds {
		return fmt.Errorf("world %d out of range", world)
	}
	f.steps = 0
	f.publish()
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

func (f *Fake) DoneTensor() *tensor.Tensor                    { return f.done }
func (f *Fake) ExpertTrajectoryTensor() *tensor.Tensor        { return f.expert }
func (f *Fake) ActionTensor() *tensor.Tensor                  { return f.action }
func (f *Fake) SelfObservationTensor() *tensor.Tensor         { return f.selfObs }
func (f *Fake) AbsoluteSelfObservationTensor() *tensor.Tensor { return f.absObs }
func (f *Fake) RewardTensor() *tensor.Tensor                  { return f.reward }
func (f *Fake) ResetTensor() *tensor.Tensor                   { return f.reset }
func (f *Fake) ShapeTensor() *tensor.Tensor                   { return f.shape }

// Linear builds a horizon-long trajectory moving at constant velocity
// (vx, vy) from start with a fixed heading, sampled every dt seconds. The
// action at step t is the world-frame displacement, which equals the
// agent-frame displacement when heading is zero.
func Linear(horizon int, start, vel [2]float64, heading, dt float64) *trajectory.Trajectory {
	tr, err := trajectory.New(horizon)
	if err != nil {
		panic(err)
	}
	for t := 0; t < horizon; t++ {
		p := [2]float64{start[0] + vel[0]*dt*float64(t), start[1] + vel[1]*dt*float64(t)}
		tr.SetState(t, p, vel, heading)
		if t < horizon-1 {
			tr.SetAction(t, [3]float64{vel[0] * dt, vel[1] * dt, 0})
		}
	}
	return tr
}
