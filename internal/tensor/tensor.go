// Package tensor provides the fixed-shape float64 buffers exchanged between
// the harness and a simulation engine.
package tensor

import (
	"fmt"
	"strings"
)

// Tensor is a dense row-major buffer with an immutable shape. Row views
// share storage with the tensor they were taken from.
type Tensor struct {
	shape   []int
	strides []int
	data    []float64
}

// New allocates a zeroed tensor. Every dimension must be positive.
func New(shape ...int) (*Tensor, error) {
	n := 1
	for i, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("tensor dimension %d must be positive, got %d", i, d)
		}
		n *= d
	}
	return &Tensor{
		shape:   append([]int(nil), shape...),
		strides: stridesFor(shape),
		data:    make([]float64, n),
	}, nil
}

// MustNew is New for shapes known to be valid at compile time.
func MustNew(shape ...int) *Tensor {
	t, err := New(shape...)
	if err != nil {
		panic(err)
	}
	return t
}

func stridesFor(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// Shape returns a copy of the tensor's dimensions.
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Rank is the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// Len is the total element count.
func (t *Tensor) Len() int { return len(t.data) }

// Data exposes the backing slice.
func (t *Tensor) Data() []float64 { return t.data }

func (t *Tensor) offset(idx []int) (int, error) {
	if len(idx) > len(t.shape) {
		return 0, fmt.Errorf("index rank %d exceeds tensor rank %d", len(idx), len(t.shape))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			return 0, fmt.Errorf("index %d out of range [0,%d) in dimension %d", v, t.shape[i], i)
		}
		off += v * t.strides[i]
	}
	return off, nil
}

// At returns the element at a full index.
func (t *Tensor) At(idx ...int) (float64, error) {
	if len(idx) != len(t.shape) {
		return 0, fmt.Errorf("At needs %d indices, got %d", len(t.shape), len(idx))
	}
	off, err := t.offset(idx)
	if err != nil {
		return 0, err
	}
	return t.data[off], nil
}

// Set writes the element at a full index.
func (t *Tensor) Set(v float64, idx ...int) error {
	if len(idx) != len(t.shape) {
		return fmt.Errorf("Set needs %d indices, got %d", len(t.shape), len(idx))
	}
	off, err := t.offset(idx)
	if err != nil {
		return err
	}
	t.data[off] = v
	return nil
}

// Row returns the contiguous slice addressed by a partial index. For a
// [W, A, F] tensor, Row(w, a) is the F-wide feature vector of agent a in
// world w. Writes through the slice mutate the tensor.
func (t *Tensor) Row(idx ...int) ([]float64, error) {
	if len(idx) >= len(t.shape) {
		return nil, fmt.Errorf("Row needs fewer than %d indices, got %d", len(t.shape), len(idx))
	}
	off, err := t.offset(idx)
	if err != nil {
		return nil, err
	}
	n := 1
	for _, d := range t.shape[len(idx):] {
		n *= d
	}
	return t.data[off : off+n : off+n], nil
}

// Zero clears every element.
func (t *Tensor) Zero() {
	clear(t.data)
}

// CopyFrom copies src into t. Shapes must match exactly.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if !sameShape(t.shape, src.shape) {
		return fmt.Errorf("shape mismatch: %s vs %s", FormatShape(t.shape), FormatShape(src.shape))
	}
	copy(t.data, src.data)
	return nil
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		shape:   append([]int(nil), t.shape...),
		strides: append([]int(nil), t.strides...),
		data:    append([]float64(nil), t.data...),
	}
}

func (t *Tensor) String() string {
	return "Tensor" + FormatShape(t.shape)
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FormatShape renders a shape as "[2, 32, 819]".
func FormatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
