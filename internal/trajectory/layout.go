// Package trajectory decodes the packed per-agent expert trajectory into
// named, per-timestep blocks.
//
// The packed row is a concatenation of fixed-width blocks, each holding one
// value group per timestep:
//
//	position 2T | velocity 2T | heading T | reserved T | action 3T
//
// Blocks are described declaratively by a Layout, so the decoder never
// hard-codes offsets.
package trajectory

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Block names in the default layout.
const (
	FieldPosition = "position"
	FieldVelocity = "velocity"
	FieldHeading  = "heading"
	FieldReserved = "reserved"
	FieldAction   = "action"
)

// Field describes one block: Count rows of Width values each.
type Field struct {
	Name  string
	Width int
	Count int
}

// Len is the number of floats the block occupies.
func (f Field) Len() int { return f.Width * f.Count }

// ShapeError reports a packed buffer whose length does not match its layout.
type ShapeError struct {
	Got  int
	Want int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("trajectory length %d does not match layout length %d", e.Got, e.Want)
}

// Layout is an ordered list of blocks sharing one horizon.
type Layout struct {
	Horizon int
	Fields  []Field
}

// DefaultLayout returns the engine's expert trajectory layout for horizon T.
func DefaultLayout(horizon int) Layout {
	return Layout{
		Horizon: horizon,
		Fields: []Field{
			{Name: FieldPosition, Width: 2, Count: horizon},
			{Name: FieldVelocity, Width: 2, Count: horizon},
			{Name: FieldHeading, Width: 1, Count: horizon},
			{Name: FieldReserved, Width: 1, Count: horizon},
			{Name: FieldAction, Width: 3, Count: horizon},
		},
	}
}

// Validate checks the layout is usable for decoding.
func (l Layout) Validate() error {
	if l.Horizon <= 0 {
		return fmt.Errorf("horizon must be positive, got %d", l.Horizon)
	}
	seen := make(map[string]bool, len(l.Fields))
	for _, f := range l.Fields {
		if f.Width <= 0 || f.Count <= 0 {
			return fmt.Errorf("field %q has non-positive size %dx%d", f.Name, f.Count, f.Width)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Len is the total packed length.
func (l Layout) Len() int {
	n := 0
	for _, f := range l.Fields {
		n += f.Len()
	}
	return n
}

// Offset returns the start index of the named block.
func (l Layout) Offset(name string) (int, bool) {
	off := 0
	for _, f := range l.Fields {
		if f.Name == name {
			return off, true
		}
		off += f.Len()
	}
	return 0, false
}

// Field returns the named block descriptor.
func (l Layout) Field(name string) (Field, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Slice reinterprets flat as one Count x Width matrix per block. The
// matrices are views onto flat; no data is copied.
func (l Layout) Slice(flat []float64) (map[string]*mat.Dense, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if want := l.Len(); len(flat) != want {
		return nil, &ShapeError{Got: len(flat), Want: want}
	}
	blocks := make(map[string]*mat.Dense, len(l.Fields))
	off := 0
	for _, f := range l.Fields {
		n := f.Len()
		blocks[f.Name] = mat.NewDense(f.Count, f.Width, flat[off:off+n:off+n])
		off += n
	}
	return blocks, nil
}
