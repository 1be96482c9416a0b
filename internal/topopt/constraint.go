package topopt

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/tmixerflow/internal/opt"
)

// MassConstraint bounds the area-normalized design mass:
//
//	value(m)    = MaxMass - (∫m dΩ)/Area   (feasible when >= 0)
//	jacobian(m) = -∫(·) dΩ                 (the row -w, independent of m)
//
// The Jacobian is the unnormalized integration row while the value is
// divided by the area. Scaled returns a constraint whose row matches the
// value, which is what the penalty optimizers differentiate.
type MassConstraint struct {
	MaxMass float64
	weights []float64
	area    float64
}

// NewMassConstraint creates the constraint from lumped nodal weights w_i = ∫φ_i dΩ.
func NewMassConstraint(maxMass float64, weights []float64, area float64) (*MassConstraint, error) {
	if area <= 0 {
		return nil, fmt.Errorf("mass constraint: area must be positive, got %g", area)
	}
	if len(weights) == 0 {
		return nil, fmt.Errorf("%w: mass constraint needs integration weights", opt.ErrDimensionMismatch)
	}
	return &MassConstraint{
		MaxMass: maxMass,
		weights: append([]float64(nil), weights...),
		area:    area,
	}, nil
}

// Check reports whether controls of length n fit the integration row.
func (m *MassConstraint) Check(n int) error {
	if n != len(m.weights) {
		return fmt.Errorf("%w: mass constraint has %d weights, design has %d values", opt.ErrDimensionMismatch, len(m.weights), n)
	}
	return nil
}

// Mass returns (∫m dΩ)/Area.
func (m *MassConstraint) Mass(x []float64) float64 {
	return floats.Dot(m.weights, x) / m.area
}

// Value returns the slack.
func (m *MassConstraint) Value(x []float64) float64 {
	return m.MaxMass - m.Mass(x)
}

// Jacobian writes -w into dst.
func (m *MassConstraint) Jacobian(dst, _ []float64) {
	for i, w := range m.weights {
		dst[i] = -w
	}
}

// Scaled returns the constraint with Jacobian -w/Area.
func (m *MassConstraint) Scaled() opt.Constraint {
	return scaledMass{m}
}

type scaledMass struct {
	*MassConstraint
}

func (s scaledMass) Jacobian(dst, x []float64) {
	s.MassConstraint.Jacobian(dst, x)
	floats.Scale(1/s.area, dst)
}
