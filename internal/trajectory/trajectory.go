package trajectory

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Trajectory is a decoded expert trajectory. Row t of each matrix holds the
// values for timestep t. Accessors panic on a timestep outside
// [0, Horizon), like slice indexing.
type Trajectory struct {
	Horizon    int
	Positions  *mat.Dense // T x 2
	Velocities *mat.Dense // T x 2
	Headings   *mat.Dense // T x 1
	Reserved   *mat.Dense // T x 1, carried but not interpreted
	Actions    *mat.Dense // T x 3, inverse-dynamics (dx, dy, dyaw)
}

// New allocates a zero trajectory for horizon T.
func New(horizon int) (*Trajectory, error) {
	l := DefaultLayout(horizon)
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l.Decode(make([]float64, l.Len()))
}

// Decode parses a packed row using DefaultLayout(horizon).
func Decode(flat []float64, horizon int) (*Trajectory, error) {
	return DefaultLayout(horizon).Decode(flat)
}

// Decode parses a packed row. The input is copied, so later writes to flat
// do not affect the returned trajectory.
func (l Layout) Decode(flat []float64) (*Trajectory, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if want := l.Len(); len(flat) != want {
		return nil, &ShapeError{Got: len(flat), Want: want}
	}
	blocks, err := l.Slice(append([]float64(nil), flat...))
	if err != nil {
		return nil, err
	}

	tr := &Trajectory{Horizon: l.Horizon}
	required := []struct {
		name  string
		width int
		dst   **mat.Dense
	}{
		{FieldPosition, 2, &tr.Positions},
		{FieldVelocity, 2, &tr.Velocities},
		{FieldHeading, 1, &tr.Headings},
		{FieldReserved, 1, &tr.Reserved},
		{FieldAction, 3, &tr.Actions},
	}
	for _, r := range required {
		m, ok := blocks[r.name]
		if !ok {
			return nil, fmt.Errorf("layout has no %q block", r.name)
		}
		rows, cols := m.Dims()
		if rows != l.Horizon || cols != r.width {
			return nil, fmt.Errorf("block %q is %dx%d, want %dx%d", r.name, rows, cols, l.Horizon, r.width)
		}
		*r.dst = m
	}
	return tr, nil
}

// Encode packs tr back into a flat row in layout order.
func (l Layout) Encode(tr *Trajectory) ([]float64, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if tr.Horizon != l.Horizon {
		return nil, fmt.Errorf("trajectory horizon %d does not match layout horizon %d", tr.Horizon, l.Horizon)
	}
	out := make([]float64, 0, l.Len())
	for _, f := range l.Fields {
		m := tr.block(f.Name)
		if m == nil {
			return nil, fmt.Errorf("trajectory has no %q block", f.Name)
		}
		rows, cols := m.Dims()
		if rows != f.Count || cols != f.Width {
			return nil, fmt.Errorf("block %q is %dx%d, want %dx%d", f.Name, rows, cols, f.Count, f.Width)
		}
		for i := 0; i < rows; i++ {
			out = append(out, m.RawRowView(i)...)
		}
	}
	return out, nil
}

// EncodeInto packs tr into dst, which must be exactly l.Len() long.
func (l Layout) EncodeInto(dst []float64, tr *Trajectory) error {
	if len(dst) != l.Len() {
		return &ShapeError{Got: len(dst), Want: l.Len()}
	}
	flat, err := l.Encode(tr)
	if err != nil {
		return err
	}
	copy(dst, flat)
	return nil
}

func (tr *Trajectory) block(name string) *mat.Dense {
	switch name {
	case FieldPosition:
		return tr.Positions
	case FieldVelocity:
		return tr.Velocities
	case FieldHeading:
		return tr.Headings
	case FieldReserved:
		return tr.Reserved
	case FieldAction:
		return tr.Actions
	}
	return nil
}

// Position returns the (x, y) position at step t.
func (tr *Trajectory) Position(t int) [2]float64 {
	return [2]float64{tr.Positions.At(t, 0), tr.Positions.At(t, 1)}
}

// Velocity returns the (vx, vy) velocity at step t.
func (tr *Trajectory) Velocity(t int) [2]float64 {
	return [2]float64{tr.Velocities.At(t, 0), tr.Velocities.At(t, 1)}
}

// Speed is the Euclidean norm of the velocity at step t.
func (tr *Trajectory) Speed(t int) float64 {
	return floats.Norm(tr.Velocities.RawRowView(t), 2)
}

// Heading returns the yaw at step t in radians.
func (tr *Trajectory) Heading(t int) float64 {
	return tr.Headings.At(t, 0)
}

// Action returns the inverse-dynamics action that moves the agent from step
// t to step t+1.
func (tr *Trajectory) Action(t int) [3]float64 {
	return [3]float64{tr.Actions.At(t, 0), tr.Actions.At(t, 1), tr.Actions.At(t, 2)}
}

// SetState writes the kinematic state for step t.
func (tr *Trajectory) SetState(t int, pos, vel [2]float64, heading float64) {
	tr.Positions.SetRow(t, pos[:])
	tr.Velocities.SetRow(t, vel[:])
	tr.Headings.Set(t, 0, heading)
}

// SetAction writes the action for step t.
func (tr *Trajectory) SetAction(t int, a [3]float64) {
	tr.Actions.SetRow(t, a[:])
}
