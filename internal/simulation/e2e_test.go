package simulation_test

import (
	"math"
	"testing"

	"github.com/nvandessel/simreplay/internal/engine"
	"github.com/nvandessel/simreplay/internal/params"
	"github.com/nvandessel/simreplay/internal/replay"
	"github.com/nvandessel/simreplay/internal/scenario"
	"github.com/nvandessel/simreplay/internal/simulation"
	"github.com/nvandessel/simreplay/internal/store"
)

// TestE2EStraightReplay is the capstone test: a log written to disk is
// loaded by the engine, replayed for a full episode, traced and stored.
func TestE2EStraightReplay(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name: "straight",
		Tracks: []scenario.Track{
			{ID: 0, Start: [2]float64{-200, -200}},
			{ID: 1, Start: [2]float64{10, 5}, Heading: 0.3, Speed: 1},
		},
		Agent: 1,
	})

	simulation.AssertConsistent(t, result)
	simulation.AssertSteps(t, result, 90)
	simulation.AssertMaxDeviationBelow(t, result, 1e-9)
	simulation.AssertStored(t, result)
	simulation.AssertTraced(t, result)

	first := result.Replay.Records[0]
	if first.Position != [2]float64{10, 5} || first.Heading != 0.3 {
		t.Errorf("initial state = %v heading %v, want (10, 5) heading 0.3", first.Position, first.Heading)
	}
	if result.Report.Scenario != "straight" {
		t.Errorf("report scenario = %q, want straight", result.Report.Scenario)
	}
}

func TestE2EArcs(t *testing.T) {
	tests := []struct {
		name    string
		track   scenario.Track
		horizon int
	}{
		{"gentle left", scenario.Track{Speed: 12, YawRate: 0.15}, 0},
		{"tight right", scenario.Track{Heading: 2, Speed: 5, YawRate: -0.6}, 0},
		// Nine radians of yaw carries the heading past pi more than once.
		{"full circles", scenario.Track{Heading: 3, Speed: 8, YawRate: 1.0}, 0},
		{"short horizon", scenario.Track{Speed: 20, YawRate: 0.3}, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := simulation.NewRunner(t)
			result := r.Run(simulation.Scenario{
				Name:    "arc",
				Tracks:  []scenario.Track{tt.track},
				Horizon: tt.horizon,
			})
			want := 90
			if tt.horizon > 0 {
				want = tt.horizon - 1
			}
			simulation.AssertConsistent(t, result)
			simulation.AssertSteps(t, result, want)
			simulation.AssertMaxDeviationBelow(t, result, 1e-6)
		})
	}
}

func TestE2EBatchedWorlds(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name: "batched",
		Tracks: []scenario.Track{
			{ID: 0, Start: [2]float64{0, 50}, Speed: 4, YawRate: -0.1},
			{ID: 1, Start: [2]float64{0, -50}, Heading: math.Pi / 2, Speed: 7, YawRate: 0.05},
		},
		Worlds: 3,
		World:  2,
		Agent:  1,
	})
	simulation.AssertConsistent(t, result)
	simulation.AssertSteps(t, result, 90)
	if result.Report.World != 2 || result.Report.Agent != 1 {
		t.Errorf("report target = (%d, %d), want (2, 1)", result.Report.World, result.Report.Agent)
	}
}

func TestE2EHorizonExceeded(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:   "overlong",
		Tracks: []scenario.Track{{Speed: 3}},
		Configure: func(cfg *engine.Config) {
			cfg.EpisodeLength = cfg.Horizon
		},
	})
	simulation.AssertHorizonExceeded(t, result)
	simulation.AssertSteps(t, result, 90)
	if result.Report.Status != store.StatusHorizonExceeded {
		t.Errorf("report status = %q, want %q", result.Report.Status, store.StatusHorizonExceeded)
	}
	simulation.AssertStored(t, result)
}

func TestE2EInconsistentLog(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:    "bad-velocity",
		Tracks:  []scenario.Track{{Speed: 10}},
		Perturb: simulation.ShiftVelocity(0, 5, [2]float64{0.5, 0}),
	})
	simulation.AssertMismatch(t, result, 5, replay.FieldSpeed)
	simulation.AssertSteps(t, result, 5)
	if got := replay.MismatchFields(result.Err); len(got) != 1 {
		t.Errorf("mismatch fields = %v, want speed only", got)
	}
	if result.Report.Status != store.StatusMismatch {
		t.Errorf("report status = %q, want %q", result.Report.Status, store.StatusMismatch)
	}
	simulation.AssertStored(t, result)
	simulation.AssertTraced(t, result)
}

func TestE2ELooseTolerance(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:       "bad-velocity-tolerated",
		Tracks:     []scenario.Track{{Speed: 10}},
		Perturb:    simulation.ShiftVelocity(0, 5, [2]float64{0.5, 0}),
		Tolerances: replay.Tolerances{Position: 1e-2, Heading: 1e-2, Speed: 1},
	})
	simulation.AssertConsistent(t, result)
	simulation.AssertSteps(t, result, 90)
	if got := result.Replay.Max.Speed; math.Abs(got-0.5) > 1e-9 {
		t.Errorf("max speed deviation = %v, want 0.5", got)
	}
}

// TestE2ECollision drives agent 0 into agent 1, which follows its own log
// head-on. The boxes first overlap at step 8; stopping or removing the
// agent zeroes its speed, which no longer matches the log.
func TestE2ECollision(t *testing.T) {
	tests := []struct {
		behaviour    params.CollisionBehaviour
		wantMismatch bool
	}{
		{params.AgentStop, true},
		{params.AgentRemoved, true},
		{params.Ignore, false},
	}
	for _, tt := range tests {
		t.Run(tt.behaviour.String(), func(t *testing.T) {
			r := simulation.NewRunner(t)
			result := r.Run(simulation.Scenario{
				Name: "head-on",
				Tracks: []scenario.Track{
					{ID: 0, Speed: 10},
					{ID: 1, Start: [2]float64{20, 0}, Heading: math.Pi, Speed: 10},
				},
				Configure: func(cfg *engine.Config) {
					cfg.Params.CollisionBehaviour = tt.behaviour
					cfg.Params.MaxNumControlledVehicles = 1
				},
			})
			if !tt.wantMismatch {
				simulation.AssertConsistent(t, result)
				simulation.AssertSteps(t, result, 90)
				return
			}
			simulation.AssertMismatch(t, result, 8, replay.FieldSpeed)
			simulation.AssertSteps(t, result, 8)
			last := result.Replay.Records[len(result.Replay.Records)-1]
			if last.Speed != 0 {
				t.Errorf("speed after collision = %v, want 0", last.Speed)
			}
			if last.Deviation.Position != [2]float64{} {
				t.Errorf("position deviation after collision = %v, want zero", last.Deviation.Position)
			}
		})
	}
}
