package kinematic

import (
	"math"

	"github.com/nvandessel/simreplay/internal/params"
	"github.com/nvandessel/simreplay/internal/scenario"
	"github.com/nvandessel/simreplay/internal/trajectory"
)

type agentState struct {
	src        *scenario.Agent // nil for a padding slot
	controlled bool

	pos     vec
	vel     vec
	heading float64

	done     bool
	collided bool
	removed  bool
	reward   float64
}

func (a *agentState) padding() bool { return a.src == nil }

func (a *agentState) box() box {
	return box{center: a.pos, heading: a.heading, length: a.src.Length, width: a.src.Width}
}

type world struct {
	scn        *scenario.Scenario
	dt         float64
	agents     []agentState
	steps      int
	roadPoints int
}

// newWorld places the scenario's agents into maxAgents slots. Non-vehicles
// are skipped when ignoreNonVehicles is set; agents beyond maxAgents are
// dropped. The first maxControlled vehicles valid at step 0 are controlled.
func newWorld(scn *scenario.Scenario, maxAgents int, p params.Parameters, maxRoadPoints int) (*world, int) {
	w := &world{scn: scn, dt: scn.Dt(), agents: make([]agentState, maxAgents)}

	slot, dropped := 0, 0
	for i := range scn.Agents {
		a := &scn.Agents[i]
		if p.IgnoreNonVehicles && !a.IsVehicle() {
			continue
		}
		if slot == maxAgents {
			dropped++
			continue
		}
		w.agents[slot].src = a
		slot++
	}

	controlled := 0
	for i := range w.agents {
		st := &w.agents[i]
		if st.padding() || controlled == p.MaxNumControlledVehicles {
			continue
		}
		if st.src.IsVehicle() && st.src.ValidAt(0) {
			st.controlled = true
			controlled++
		}
	}

	for _, r := range scn.Roads {
		w.roadPoints += len(reducePolyline(r.Points, p.PolylineReductionThreshold))
	}
	if maxRoadPoints > 0 && w.roadPoints > maxRoadPoints {
		w.roadPoints = maxRoadPoints
	}

	w.reset()
	return w, dropped
}

// reset restores every agent to its logged state at step 0.
func (w *world) reset() {
	w.steps = 0
	for i := range w.agents {
		st := &w.agents[i]
		src, controlled := st.src, st.controlled
		*st = agentState{src: src, controlled: controlled}
		if st.padding() {
			st.done = true
			continue
		}
		st.pos = vec(src.Positions[0])
		st.vel = vec(src.Velocities[0])
		st.heading = src.Headings[0]
		st.done = !src.ValidAt(0)
	}
}

func (w *world) allDone() bool {
	for i := range w.agents {
		if !w.agents[i].done {
			return false
		}
	}
	return true
}

func (w *world) activeCount() int {
	n := 0
	for i := range w.agents {
		if !w.agents[i].padding() && !w.agents[i].removed {
			n++
		}
	}
	return n
}

// step advances the world by one timestep. actions holds A rows of
// (dx, dy, dyaw) in each agent's frame.
func (w *world) step(actions []float64, p params.Parameters, horizon, episode int) {
	w.steps++
	t := w.steps
	if t > horizon-1 {
		t = horizon - 1
	}

	for i := range w.agents {
		st := &w.agents[i]
		if st.padding() || st.done {
			continue
		}
		if st.controlled {
			a := actions[i*3 : i*3+3]
			delta := vec{a[0], a[1]}.rotate(st.heading)
			st.pos = st.pos.add(delta)
			st.heading += a[2]
			st.vel = delta.scale(1 / w.dt)
			continue
		}
		if !p.UseExpertModel {
			st.vel = vec{}
			continue
		}
		if !st.src.ValidAt(t) {
			st.vel = vec{}
			st.done = true
			continue
		}
		st.pos = vec(st.src.Positions[t])
		st.vel = vec(st.src.Velocities[t])
		st.heading = st.src.Headings[t]
	}

	w.collide(p.CollisionBehaviour)
	w.score(p, t)

	if w.steps >= episode {
		for i := range w.agents {
			w.agents[i].done = true
		}
	}
}

// collide flags overlapping agents. Agents that finished without a
// collision no longer take part.
func (w *world) collide(behaviour params.CollisionBehaviour) {
	solid := func(st *agentState) bool {
		return !st.padding() && !st.removed && (!st.done || st.collided)
	}
	for i := range w.agents {
		a := &w.agents[i]
		if !solid(a) {
			continue
		}
		for j := i + 1; j < len(w.agents); j++ {
			b := &w.agents[j]
			if !solid(b) {
				continue
			}
			if !a.box().overlaps(b.box()) {
				continue
			}
			a.collided, b.collided = true, true
		}
	}

	if behaviour == params.Ignore {
		return
	}
	for i := range w.agents {
		st := &w.agents[i]
		if !st.collided || st.padding() {
			continue
		}
		st.done = true
		st.vel = vec{}
		if behaviour == params.AgentRemoved {
			st.removed = true
		}
	}
}

func (w *world) score(p params.Parameters, t int) {
	rp := p.RewardParams
	for i := range w.agents {
		st := &w.agents[i]
		st.reward = 0
		if st.padding() || st.removed {
			continue
		}
		switch rp.RewardType {
		case params.DistanceBased, params.OnGoalAchieved:
			if st.pos.sub(vec(st.src.Goal)).norm() < rp.DistanceToGoalThreshold {
				st.reward = 1
				if rp.RewardType == params.OnGoalAchieved {
					st.done = true
				}
			}
		case params.Dense:
			d := st.pos.sub(vec(st.src.Positions[t])).norm()
			if rp.DistanceToExpertThreshold > 0 {
				st.reward = math.Max(0, 1-d/rp.DistanceToExpertThreshold)
			} else if d == 0 {
				st.reward = 1
			}
		}
	}
}

// expert builds the packed expert trajectory for slot i: the logged
// kinematic state plus the inverse-dynamics action between consecutive
// steps. The final action is zero.
func (w *world) expert(i, horizon int) *trajectory.Trajectory {
	tr, _ := trajectory.New(horizon)
	src := w.agents[i].src
	if src == nil {
		return tr
	}
	for t := 0; t < horizon; t++ {
		tr.SetState(t, src.Positions[t], src.Velocities[t], src.Headings[t])
		if t == horizon-1 {
			continue
		}
		delta := vec(src.Positions[t+1]).sub(vec(src.Positions[t]))
		local := delta.rotate(-src.Headings[t])
		tr.SetAction(t, [3]float64{local[0], local[1], src.Headings[t+1] - src.Headings[t]})
	}
	return tr
}
