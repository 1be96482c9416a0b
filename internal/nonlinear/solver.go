package nonlinear

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// System is the discrete residual F(x) = 0 handed to a solver. Residual must
// not retain dst or x.
type System interface {
	Dim() int
	Residual(dst, x []float64) error
}

// Jacobian is implemented by systems that can assemble dF/dx themselves.
// Systems without it are differentiated by finite differences.
type Jacobian interface {
	Jacobian(dst *mat.Dense, x []float64) error
}

// DirichletBC pins unknown Index to Value. Its residual row becomes x_i - Value.
type DirichletBC struct {
	Index int
	Value float64
}

// Bounds is a box constraint on the unknowns. Iterates are projected onto it.
type Bounds struct {
	Lower []float64
	Upper []float64
}

// Problem bundles a system with its essential conditions and optional bounds.
type Problem struct {
	System System
	BCs    []DirichletBC
	Bounds *Bounds
}

// Report summarizes a solve.
type Report struct {
	Iterations          int
	ResidualEvaluations int
	JacobianEvaluations int
	InitialResidual     float64
	Residual            float64
	Converged           bool
	Reason              string
}

// Solver finds x with F(x) = 0. x holds the initial guess on entry and the
// solution on successful return.
type Solver interface {
	Solve(ctx context.Context, p Problem, x []float64) (*Report, error)
}

// ErrNonConvergence matches every *NonConvergenceError through errors.Is.
var ErrNonConvergence = errors.New("nonlinear: solver did not converge")

// ErrDimension is returned when vectors do not match the system size.
var ErrDimension = errors.New("nonlinear: dimension mismatch")

// NonConvergenceError carries the state of a failed solve.
type NonConvergenceError struct {
	Iterations          int
	ResidualEvaluations int
	Residual            float64
	Reason              string
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("nonlinear: solver did not converge after %d iterations (%d residual evaluations, |F|=%.3e): %s",
		e.Iterations, e.ResidualEvaluations, e.Residual, e.Reason)
}

func (e *NonConvergenceError) Is(target error) bool {
	return target == ErrNonConvergence
}

func (p Problem) validate(x []float64) error {
	if p.System == nil {
		return fmt.Errorf("%w: nil system", ErrDimension)
	}
	n := p.System.Dim()
	if len(x) != n {
		return fmt.Errorf("%w: system has %d unknowns, initial guess has %d", ErrDimension, n, len(x))
	}
	for _, bc := range p.BCs {
		if bc.Index < 0 || bc.Index >= n {
			return fmt.Errorf("%w: boundary condition index %d outside [0,%d)", ErrDimension, bc.Index, n)
		}
	}
	if p.Bounds != nil && (len(p.Bounds.Lower) != n || len(p.Bounds.Upper) != n) {
		return fmt.Errorf("%w: bounds have %d/%d entries, want %d", ErrDimension, len(p.Bounds.Lower), len(p.Bounds.Upper), n)
	}
	return nil
}

// project clamps x into the bounds in place.
func (b *Bounds) project(x []float64) {
	if b == nil {
		return
	}
	for i := range x {
		if x[i] < b.Lower[i] {
			x[i] = b.Lower[i]
		} else if x[i] > b.Upper[i] {
			x[i] = b.Upper[i]
		}
	}
}
