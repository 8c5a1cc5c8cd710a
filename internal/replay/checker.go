package replay

import (
	"errors"
	"fmt"
	"math"

	"github.com/nvandessel/simreplay/internal/constants"
	"github.com/nvandessel/simreplay/internal/engine"
	"github.com/nvandessel/simreplay/internal/trajectory"
)

// Field names reported in MismatchError.
const (
	FieldPosition = "position"
	FieldHeading  = "heading"
	FieldSpeed    = "speed"
)

// Tolerances are absolute per-quantity bounds. A difference equal to the
// tolerance passes. The all-zero value stands for DefaultTolerances; a zero
// in a single field, with any other field set, requires an exact match of
// that quantity.
type Tolerances struct {
	Position float64 `json:"position" yaml:"position"`
	Heading  float64 `json:"heading" yaml:"heading"`
	Speed    float64 `json:"speed" yaml:"speed"`
}

// DefaultTolerances returns 1e-2 for every quantity.
func DefaultTolerances() Tolerances {
	return Tolerances{
		Position: constants.DefaultPositionTolerance,
		Heading:  constants.DefaultHeadingTolerance,
		Speed:    constants.DefaultSpeedTolerance,
	}
}

// OrDefault returns t, or DefaultTolerances when t is the zero value.
func (t Tolerances) OrDefault() Tolerances {
	if t == (Tolerances{}) {
		return DefaultTolerances()
	}
	return t
}

// Validate rejects negative or NaN tolerances.
func (t Tolerances) Validate() error {
	for name, v := range map[string]float64{FieldPosition: t.Position, FieldHeading: t.Heading, FieldSpeed: t.Speed} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%s tolerance must be non-negative, got %v", name, v)
		}
	}
	return nil
}

// Deviation is the absolute difference between observed and expected state.
type Deviation struct {
	Position [2]float64 `json:"position"`
	Heading  float64    `json:"heading"`
	Speed    float64    `json:"speed"`
}

// StepRecord captures one consistency check.
type StepRecord struct {
	Index int `json:"index"`
	// Action is the expert action applied to reach this index; zero at 0.
	Action           [3]float64 `json:"action"`
	Position         [2]float64 `json:"position"`
	ExpectedPosition [2]float64 `json:"expected_position"`
	Heading          float64    `json:"heading"`
	ExpectedHeading  float64    `json:"expected_heading"`
	Speed            float64    `json:"speed"`
	ExpectedSpeed    float64    `json:"expected_speed"`
	Deviation        Deviation  `json:"deviation"`
	Consistent       bool       `json:"consistent"`
}

// Checker compares one agent's observed state against the expert
// trajectory. It never mutates the engine.
type Checker struct {
	World      int
	Agent      int
	Tolerances Tolerances
}

// Check compares the engine's current observation against expert index i.
// Position, heading and speed are all evaluated; every failure is returned
// as a *MismatchError joined with errors.Join. The record is filled even
// when the check fails.
func (c Checker) Check(eng engine.Engine, tr *trajectory.Trajectory, i int) (StepRecord, error) {
	rec := StepRecord{Index: i}
	if i < 0 || i >= tr.Horizon {
		return rec, &HorizonExceededError{Horizon: tr.Horizon, Index: i}
	}

	abs, err := eng.AbsoluteSelfObservationTensor().Row(c.World, c.Agent)
	if err != nil {
		return rec, fmt.Errorf("absolute self observation: %w", err)
	}
	self, err := eng.SelfObservationTensor().Row(c.World, c.Agent)
	if err != nil {
		return rec, fmt.Errorf("self observation: %w", err)
	}
	if len(abs) <= constants.AbsObsHeading || len(self) <= constants.SelfObsSpeed {
		return rec, fmt.Errorf("observation too narrow: absolute %d, self %d", len(abs), len(self))
	}

	rec.Position = [2]float64{abs[constants.AbsObsPosX], abs[constants.AbsObsPosY]}
	rec.Heading = abs[constants.AbsObsHeading]
	rec.Speed = self[constants.SelfObsSpeed]
	rec.ExpectedPosition = tr.Position(i)
	rec.ExpectedHeading = tr.Heading(i)
	rec.ExpectedSpeed = tr.Speed(i)

	rec.Deviation = Deviation{
		Position: [2]float64{
			math.Abs(rec.Position[0] - rec.ExpectedPosition[0]),
			math.Abs(rec.Position[1] - rec.ExpectedPosition[1]),
		},
		Heading: math.Abs(rec.Heading - rec.ExpectedHeading),
		Speed:   math.Abs(rec.Speed - rec.ExpectedSpeed),
	}

	var errs []error
	if !within(rec.Deviation.Position[0], c.Tolerances.Position) || !within(rec.Deviation.Position[1], c.Tolerances.Position) {
		errs = append(errs, &MismatchError{
			Field:     FieldPosition,
			Index:     i,
			Actual:    rec.Position[:],
			Expected:  rec.ExpectedPosition[:],
			Tolerance: c.Tolerances.Position,
		})
	}
	if !within(rec.Deviation.Heading, c.Tolerances.Heading) {
		errs = append(errs, &MismatchError{
			Field:     FieldHeading,
			Index:     i,
			Actual:    []float64{rec.Heading},
			Expected:  []float64{rec.ExpectedHeading},
			Tolerance: c.Tolerances.Heading,
		})
	}
	if !within(rec.Deviation.Speed, c.Tolerances.Speed) {
		errs = append(errs, &MismatchError{
			Field:     FieldSpeed,
			Index:     i,
			Actual:    []float64{rec.Speed},
			Expected:  []float64{rec.ExpectedSpeed},
			Tolerance: c.Tolerances.Speed,
		})
	}
	rec.Consistent = len(errs) == 0
	return rec, errors.Join(errs...)
}

// within treats NaN as out of tolerance.
func within(diff, tol float64) bool {
	return diff <= tol
}

// MismatchFields lists the fields named by every MismatchError in err.
func MismatchFields(err error) []string {
	var fields []string
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if m, ok := e.(*MismatchError); ok {
			fields = append(fields, m.Field)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return fields
}
