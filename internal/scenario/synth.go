package scenario

import "math"

// Track describes a synthetic constant-speed, constant-yaw-rate motion.
type Track struct {
	ID      int
	Type    AgentType
	Start   [2]float64
	Heading float64
	// Speed in m/s along the heading.
	Speed float64
	// YawRate in rad/s. Zero gives a straight line.
	YawRate float64
	Length  float64
	Width   float64
}

// Synthesize samples t for steps timesteps at interval dt. Velocities are
// backward differences of the sampled positions, so replaying the
// inverse actions reproduces the track exactly. Velocity at step 0 is the
// nominal velocity along the initial heading.
func Synthesize(t Track, steps int, dt float64) Agent {
	a := Agent{
		ID:         t.ID,
		Type:       t.Type,
		Length:     t.Length,
		Width:      t.Width,
		Positions:  make([][2]float64, steps),
		Velocities: make([][2]float64, steps),
		Headings:   make([]float64, steps),
		Valid:      make([]bool, steps),
	}
	if a.Type == "" {
		a.Type = Vehicle
	}
	if a.Length == 0 {
		a.Length = 4.5
	}
	if a.Width == 0 {
		a.Width = 2.0
	}

	pos := t.Start
	h := t.Heading
	for i := 0; i < steps; i++ {
		if i > 0 {
			// Advance along the chord of the arc so the step length is
			// Speed*dt regardless of yaw rate.
			mid := h + t.YawRate*dt/2
			pos = [2]float64{
				pos[0] + t.Speed*dt*math.Cos(mid),
				pos[1] + t.Speed*dt*math.Sin(mid),
			}
			h += t.YawRate * dt
		}
		a.Positions[i] = pos
		a.Headings[i] = h
		a.Valid[i] = true
		if i == 0 {
			a.Velocities[i] = [2]float64{t.Speed * math.Cos(h), t.Speed * math.Sin(h)}
		} else {
			prev := a.Positions[i-1]
			a.Velocities[i] = [2]float64{(pos[0] - prev[0]) / dt, (pos[1] - prev[1]) / dt}
		}
	}
	a.Goal = a.Positions[steps-1]
	return a
}

// Build assembles a scenario from tracks sampled for steps timesteps at
// interval dt, with one road polyline along each track.
func Build(name string, steps int, dt float64, tracks ...Track) *Scenario {
	s := &Scenario{Name: name, Timestep: dt}
	for _, tr := range tracks {
		s.Agents = append(s.Agents, Synthesize(tr, steps, dt))
	}
	s.Roads = roadsAlong(s.Agents)
	return s
}

// Convoy builds a scenario of n agents that all follow lead's path,
// offset sideways from each other by spacing metres. Every agent is a
// translated copy of the lead, so their separation never changes.
func Convoy(name string, n int, spacing float64, lead Track, steps int, dt float64) *Scenario {
	side := [2]float64{-math.Sin(lead.Heading), math.Cos(lead.Heading)}
	tracks := make([]Track, n)
	for i := range tracks {
		tr := lead
		tr.ID = lead.ID + i
		off := spacing * float64(i)
		tr.Start = [2]float64{lead.Start[0] + off*side[0], lead.Start[1] + off*side[1]}
		tracks[i] = tr
	}
	return Build(name, steps, dt, tracks...)
}

// roadsAlong derives one polyline per agent from its logged path.
func roadsAlong(agents []Agent) []Road {
	roads := make([]Road, 0, len(agents))
	for _, a := range agents {
		pts := make([][2]float64, len(a.Positions))
		copy(pts, a.Positions)
		roads = append(roads, Road{Points: pts})
	}
	return roads
}
