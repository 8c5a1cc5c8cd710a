package replay

import (
	"context"
	"errors"
	"testing"

	"github.com/nvandessel/simreplay/internal/engine"
	"github.com/nvandessel/simreplay/internal/engine/enginetest"
	"github.com/nvandessel/simreplay/internal/engine/kinematic"
	"github.com/nvandessel/simreplay/internal/params"
	"github.com/nvandessel/simreplay/internal/scenario"
	"github.com/nvandessel/simreplay/internal/trajectory"
)

const horizon = 91

func decodeExpert(t *testing.T, eng engine.Engine, world, agent int) *trajectory.Trajectory {
	t.Helper()
	row, err := eng.ExpertTrajectoryTensor().Row(world, agent)
	if err != nil {
		t.Fatalf("expert row: %v", err)
	}
	tr, err := trajectory.Decode(row, horizon)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return tr
}

func newFake(t *testing.T, opts enginetest.Options) *enginetest.Fake {
	t.Helper()
	if opts.Expert == nil {
		opts.Expert = enginetest.Linear(horizon, [2]float64{10, 5}, [2]float64{1, 0}, 0.3, 0.1)
	}
	f, err := enginetest.New(opts)
	if err != nil {
		t.Fatalf("enginetest.New: %v", err)
	}
	return f
}

func TestRunFullEpisode(t *testing.T) {
	f := newFake(t, enginetest.Options{Worlds: 2, Agents: 3, World: 1, Agent: 2, DoneAfter: horizon - 1})
	// Stale actions elsewhere in the tensor must be cleared before the
	// first step.
	if err := f.ActionTensor().Set(9, 0, 0, 1); err != nil {
		t.Fatal(err)
	}

	var seen int
	res, err := NewDriver(f, Options{World: 1, Agent: 2, Horizon: horizon, OnStep: func(StepRecord) { seen++ }}, nil).
		Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if res.Steps != horizon-1 {
		t.Errorf("Steps = %d, want %d", res.Steps, horizon-1)
	}
	if len(res.Records) != horizon || seen != horizon {
		t.Errorf("records = %d, callbacks = %d, want %d", len(res.Records), seen, horizon)
	}
	if f.Leaked != 0 {
		t.Errorf("%d steps saw non-zero actions outside the replayed slot", f.Leaked)
	}

	tr := decodeExpert(t, f, 1, 2)
	for i, a := range f.Actions {
		if a != tr.Action(i) {
			t.Fatalf("step %d applied %v, want expert action %v", i, a, tr.Action(i))
		}
	}
	if res.Records[0].Action != [3]float64{} {
		t.Errorf("initial record action = %v, want zero", res.Records[0].Action)
	}
	if res.Records[5].Action != tr.Action(4) {
		t.Errorf("record 5 action = %v, want %v", res.Records[5].Action, tr.Action(4))
	}
	if res.Max != (Deviation{}) {
		t.Errorf("Max = %+v, want zero deviation", res.Max)
	}
}

func TestRunHorizonExceeded(t *testing.T) {
	tests := []struct {
		name      string
		doneAfter int
	}{
		{"done one step late", horizon},
		{"never done", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFake(t, enginetest.Options{DoneAfter: tt.doneAfter})
			res, err := NewDriver(f, Options{Horizon: horizon}, nil).Run(context.Background())

			var he *HorizonExceededError
			if !errors.As(err, &he) {
				t.Fatalf("Run() = %v, want *HorizonExceededError", err)
			}
			if he.Horizon != horizon || he.Index != horizon {
				t.Errorf("HorizonExceededError = %+v", he)
			}
			if f.Steps() != horizon-1 || res.Steps != horizon-1 {
				t.Errorf("engine stepped %d times, result %d; want %d", f.Steps(), res.Steps, horizon-1)
			}
			if len(res.Records) != horizon {
				t.Errorf("records = %d, want %d", len(res.Records), horizon)
			}
		})
	}
}

func TestRunDoneImmediately(t *testing.T) {
	f := newFake(t, enginetest.Options{DoneAfter: 0})
	res, err := NewDriver(f, Options{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if res.Steps != 0 || len(res.Records) != 1 || f.Steps() != 0 {
		t.Errorf("steps = %d records = %d engine steps = %d", res.Steps, len(res.Records), f.Steps())
	}
}

func TestRunStopsAtFirstMismatch(t *testing.T) {
	f := newFake(t, enginetest.Options{
		DoneAfter: horizon - 1,
		Offsets: map[int]enginetest.Offset{
			5: {Position: [2]float64{0.02, 0}},
			6: {Heading: 1},
		},
	})
	res, err := NewDriver(f, Options{}, nil).Run(context.Background())

	var mm *MismatchError
	if !errors.As(err, &mm) {
		t.Fatalf("Run() = %v, want *MismatchError", err)
	}
	if mm.Field != FieldPosition || mm.Index != 5 {
		t.Errorf("mismatch = %s at %d, want position at 5", mm.Field, mm.Index)
	}
	if res.Steps != 5 || f.Steps() != 5 {
		t.Errorf("steps = %d (engine %d), want 5", res.Steps, f.Steps())
	}
	last := res.Records[len(res.Records)-1]
	if last.Consistent || last.Index != 5 {
		t.Errorf("last record = %+v", last)
	}
	if res.Max.Position[0] < 0.02-1e-12 {
		t.Errorf("Max position x = %v, want >= 0.02", res.Max.Position[0])
	}
}

func TestRunInitialMismatch(t *testing.T) {
	f := newFake(t, enginetest.Options{DoneAfter: horizon - 1, Offsets: map[int]enginetest.Offset{0: {Speed: 0.5}}})
	res, err := NewDriver(f, Options{}, nil).Run(context.Background())
	if got := MismatchFields(err); len(got) != 1 || got[0] != FieldSpeed {
		t.Fatalf("Run() = %v, want speed mismatch", err)
	}
	if f.Steps() != 0 || res.Steps != 0 {
		t.Errorf("engine stepped after a failed initial check")
	}
}

func TestRunStepError(t *testing.T) {
	boom := errors.New("device lost")
	f := newFake(t, enginetest.Options{DoneAfter: horizon - 1, FailAt: 3, StepErr: boom})
	res, err := NewDriver(f, Options{}, nil).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run() = %v, want wrapped step error", err)
	}
	if res.Steps != 2 {
		t.Errorf("Steps = %d, want 2", res.Steps)
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFake(t, enginetest.Options{DoneAfter: horizon - 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDriver(f, Options{}, nil).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}
	if f.Steps() != 0 {
		t.Errorf("engine stepped %d times after cancellation", f.Steps())
	}
}

func TestRunShapeError(t *testing.T) {
	f := newFake(t, enginetest.Options{DoneAfter: horizon - 1})
	_, err := NewDriver(f, Options{Horizon: 80}, nil).Run(context.Background())
	var se *trajectory.ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("Run() = %v, want *trajectory.ShapeError", err)
	}
	if se.Got != 9*horizon || se.Want != 9*80 {
		t.Errorf("ShapeError = %+v", se)
	}
}

func TestRunAgentOutOfRange(t *testing.T) {
	f := newFake(t, enginetest.Options{DoneAfter: horizon - 1})
	if _, err := NewDriver(f, Options{Agent: 4}, nil).Run(context.Background()); err == nil {
		t.Error("expected error for agent outside the tensor")
	}
}

func TestRunKinematicEngine(t *testing.T) {
	scn := scenario.Build("replay", horizon, 0.1,
		scenario.Track{ID: 0, Start: [2]float64{-100, 40}, Heading: -0.4, Speed: 6, YawRate: -0.05},
		scenario.Track{ID: 1, Start: [2]float64{10, 5}, Heading: 0.3, Speed: 12, YawRate: 0.15},
	)
	eng, err := kinematic.NewFromScenarios(engine.DefaultConfig(), []*scenario.Scenario{scn}, nil)
	if err != nil {
		t.Fatalf("NewFromScenarios: %v", err)
	}
	defer eng.Close()

	d := NewDriver(eng, Options{Agent: 1}, nil)
	first, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if first.Steps != horizon-1 {
		t.Errorf("Steps = %d, want %d", first.Steps, horizon-1)
	}

	// A reset world replays to the same trajectory.
	if err := eng.TriggerReset(0); err != nil {
		t.Fatal(err)
	}
	second, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() = %v", err)
	}
	for i := range first.Records {
		if first.Records[i].Position != second.Records[i].Position {
			t.Fatalf("replay %d diverged: %v vs %v", i, first.Records[i].Position, second.Records[i].Position)
		}
	}
}

func TestRunKinematicHorizonBoundary(t *testing.T) {
	scn := scenario.Build("long", horizon, 0.1, scenario.Track{ID: 0, Speed: 3})
	cfg := engine.DefaultConfig()
	cfg.EpisodeLength = horizon
	eng, err := kinematic.NewFromScenarios(cfg, []*scenario.Scenario{scn}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()

	_, err = NewDriver(eng, Options{}, nil).Run(context.Background())
	var he *HorizonExceededError
	if !errors.As(err, &he) {
		t.Fatalf("Run() = %v, want *HorizonExceededError", err)
	}
}

func TestRunRejectsUncontrolledAgent(t *testing.T) {
	scn := scenario.Build("trio", horizon, 0.1,
		scenario.Track{ID: 0, Start: [2]float64{0, 0}, Speed: 5},
		scenario.Track{ID: 1, Start: [2]float64{0, 20}, Speed: 5},
		scenario.Track{ID: 2, Start: [2]float64{0, 40}, Speed: 5},
	)
	tests := []struct {
		name  string
		agent int
	}{
		// MaxNumControlledVehicles defaults to 2, so agent 2 follows its log.
		{"expert-model vehicle", 2},
		{"padding slot", 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, err := kinematic.NewFromScenarios(engine.DefaultConfig(), []*scenario.Scenario{scn}, nil)
			if err != nil {
				t.Fatalf("NewFromScenarios: %v", err)
			}
			defer eng.Close()
			if eng.Controlled(0, tt.agent) {
				t.Fatalf("agent %d unexpectedly controlled", tt.agent)
			}
			// Garbage actions must not slip through as a passing replay.
			if row, err := eng.ExpertTrajectoryTensor().Row(0, tt.agent); err == nil {
				for i := range row {
					row[i] = 99
				}
			}

			res, err := NewDriver(eng, Options{Agent: tt.agent}, nil).Run(context.Background())
			var ce *params.ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("Run() = %v, want *params.ConfigurationError", err)
			}
			if ce.Field != "agent" {
				t.Errorf("Field = %q, want agent", ce.Field)
			}
			if res.Steps != 0 || len(res.Records) != 0 {
				t.Errorf("steps = %d records = %d, want nothing replayed", res.Steps, len(res.Records))
			}
		})
	}
}

func TestRunRejectsUnscriptedSlot(t *testing.T) {
	f := newFake(t, enginetest.Options{Agents: 2, Agent: 1, DoneAfter: horizon - 1})
	_, err := NewDriver(f, Options{Agent: 0}, nil).Run(context.Background())
	var ce *params.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("Run() = %v, want *params.ConfigurationError", err)
	}
	if f.Steps() != 0 {
		t.Errorf("engine stepped %d times for an uncontrolled agent", f.Steps())
	}
}

func TestRunHeadingComparedRaw(t *testing.T) {
	expert := enginetest.Linear(horizon, [2]float64{}, [2]float64{1, 0}, 3.14, 0.1)
	f := newFake(t, enginetest.Options{
		Expert:    expert,
		DoneAfter: horizon - 1,
		Offsets:   map[int]enginetest.Offset{0: {Heading: -6.28}},
	})
	_, err := NewDriver(f, Options{}, nil).Run(context.Background())
	var mm *MismatchError
	if !errors.As(err, &mm) {
		t.Fatalf("Run() = %v, want heading mismatch", err)
	}
	if mm.Field != FieldHeading || mm.Index != 0 {
		t.Errorf("mismatch = %s at %d, want heading at 0", mm.Field, mm.Index)
	}
}

func TestRunZeroTolerancesUseDefaults(t *testing.T) {
	offsets := map[int]enginetest.Offset{3: {Position: [2]float64{0.005, 0}, Speed: 0.005}}

	f := newFake(t, enginetest.Options{DoneAfter: horizon - 1, Offsets: offsets})
	res, err := NewDriver(f, Options{Tolerances: Tolerances{}}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() with zero tolerances = %v, want the 1e-2 defaults to pass", err)
	}
	if !res.Records[3].Consistent {
		t.Error("record 3 inconsistent under default tolerances")
	}

	// A zero field alongside a set one demands an exact match.
	f = newFake(t, enginetest.Options{DoneAfter: horizon - 1, Offsets: offsets})
	_, err = NewDriver(f, Options{Tolerances: Tolerances{Position: 1, Heading: 1}}, nil).Run(context.Background())
	var mm *MismatchError
	if !errors.As(err, &mm) || mm.Field != FieldSpeed || mm.Index != 3 {
		t.Errorf("Run() = %v, want speed mismatch at 3", err)
	}
}
