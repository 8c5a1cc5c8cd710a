package replay

import (
	"fmt"
	"strings"
)

// MismatchError reports one observed quantity outside tolerance at a
// trajectory index.
type MismatchError struct {
	Field     string
	Index     int
	Actual    []float64
	Expected  []float64
	Tolerance float64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("step %d: %s mismatch: actual %s, expected %s (tolerance %g)",
		e.Index, e.Field, formatValues(e.Actual), formatValues(e.Expected), e.Tolerance)
}

// HorizonExceededError reports an agent still running when the replay
// would need an expert index at or beyond the horizon.
type HorizonExceededError struct {
	Horizon int
	Index   int
}

func (e *HorizonExceededError) Error() string {
	return fmt.Sprintf("agent not done after %d steps: index %d exceeds expert horizon %d",
		e.Index-1, e.Index, e.Horizon)
}

func formatValues(v []float64) string {
	if len(v) == 1 {
		return fmt.Sprintf("%.6g", v[0])
	}
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.6g", x)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
