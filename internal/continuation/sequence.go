// Package continuation ramps a problem parameter over an increasing sequence,
// warm-starting every nonlinear solve from the previous converged state.
package continuation

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnordered is returned for a sequence that is not strictly increasing in magnitude.
var ErrUnordered = errors.New("continuation: sequence not strictly increasing in magnitude")

// Sequence is an ordered list of parameter values.
type Sequence []float64

// Geometric returns 10^(start + k*step) for k = 0..n-1.
func Geometric(start, step float64, n int) Sequence {
	if n <= 0 {
		return Sequence{}
	}
	s := make(Sequence, n)
	for k := range s {
		s[k] = math.Pow(10, start+float64(k)*step)
	}
	return s
}

// DefaultSequence is the gravity ramp 10^(-4 + k/10), k = 0..39.
func DefaultSequence() Sequence {
	return Geometric(-4, 0.1, 40)
}

// Validate checks that every value is finite and larger in magnitude than
// the one before.
func (s Sequence) Validate() error {
	for k, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: value %d is %g", ErrUnordered, k, v)
		}
		if k > 0 && math.Abs(v) <= math.Abs(s[k-1]) {
			return fmt.Errorf("%w: |%g| at %d does not exceed |%g| at %d", ErrUnordered, v, k, s[k-1], k-1)
		}
	}
	return nil
}
