package opt

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when bounds, start point or constraint
// rows do not agree on the number of controls.
var ErrDimensionMismatch = errors.New("opt: dimension mismatch")

// ErrInvalidBounds is returned for lower > upper or bounds an adapter cannot represent.
var ErrInvalidBounds = errors.New("opt: invalid bounds")

// Constraint is an inequality g(x) >= 0.
type Constraint interface {
	// Value returns the slack g(x); feasible when >= 0
	Value(x []float64) float64
	// Jacobian writes the row dg/dx into dst
	Jacobian(dst, x []float64)
}

// Problem describes a bound- and inequality-constrained minimization.
type Problem struct {
	// Func evaluates the objective. An error aborts the optimization.
	Func func(x []float64) (float64, error)
	// Grad writes the objective gradient; nil means finite differences
	Grad        func(grad, x []float64) error
	Lower       []float64
	Upper       []float64
	Constraints []Constraint
	// OnEval runs after every successful objective evaluation requested by
	// the optimizer itself (not the finite-difference probes). An error
	// aborts the optimization like an objective error.
	OnEval func(x []float64, f float64) error
}

// Result is the outcome of an optimization. F is the objective at X without
// the penalty an adapter may add for constraint violation.
type Result struct {
	X           []float64
	F           float64
	Violation   float64 // largest constraint violation at X
	Evaluations int
	Iterations  int
}

// Optimizer defines a constrained optimization algorithm
type Optimizer interface {
	// Minimize searches for the minimizer of p starting from x0. Adapters that
	// cannot use a start point ignore it.
	Minimize(ctx context.Context, p Problem, x0 []float64) (*Result, error)
}

// Dim validates the problem against x0 and returns the number of controls.
func (p Problem) Dim(x0 []float64) (int, error) {
	if p.Func == nil {
		return 0, fmt.Errorf("%w: missing objective", ErrDimensionMismatch)
	}
	n := len(x0)
	if len(p.Lower) != n || len(p.Upper) != n {
		return 0, fmt.Errorf("%w: %d controls but bounds have %d/%d entries", ErrDimensionMismatch, n, len(p.Lower), len(p.Upper))
	}
	for i := range p.Lower {
		if p.Lower[i] > p.Upper[i] {
			return 0, fmt.Errorf("%w: lower[%d]=%g > upper[%d]=%g", ErrInvalidBounds, i, p.Lower[i], i, p.Upper[i])
		}
	}
	return n, nil
}

// Violation returns the largest max(0, -g(x)) over the constraints.
func (p Problem) Violation(x []float64) float64 {
	var v float64
	for _, c := range p.Constraints {
		v = math.Max(v, -c.Value(x))
	}
	return v
}

// penalty returns Σ max(0, -g)^2.
func (p Problem) penalty(x []float64) float64 {
	var s float64
	for _, c := range p.Constraints {
		if g := c.Value(x); g < 0 {
			s += g * g
		}
	}
	return s
}

// guard wraps Func so the first failure stops all further evaluations. The
// optimizer libraries only accept float-valued callbacks, so a failed
// evaluation reports +Inf and the error is returned after they stop.
type guard struct {
	ctx    context.Context
	f      func(x []float64) (float64, error)
	onEval func(x []float64, f float64) error
	err    error
	evals  int
}

func newGuard(ctx context.Context, p Problem) *guard {
	return &guard{ctx: ctx, f: p.Func, onEval: p.OnEval}
}

// eval is a primary evaluation and runs the OnEval hook.
func (g *guard) eval(x []float64) float64 {
	v := g.probe(x)
	if g.err != nil || g.onEval == nil {
		return v
	}
	if err := g.onEval(x, v); err != nil {
		g.err = fmt.Errorf("evaluation hook %d: %w", g.evals, err)
		return math.Inf(1)
	}
	return v
}

// probe evaluates without the hook.
func (g *guard) probe(x []float64) float64 {
	if g.err != nil {
		return math.Inf(1)
	}
	if err := g.ctx.Err(); err != nil {
		g.err = err
		return math.Inf(1)
	}
	g.evals++
	v, err := g.f(x)
	if err != nil {
		g.err = fmt.Errorf("objective evaluation %d: %w", g.evals, err)
		return math.Inf(1)
	}
	return v
}

func clampTo(x, lower, upper []float64) {
	for i := range x {
		x[i] = math.Max(lower[i], math.Min(upper[i], x[i]))
	}
}
