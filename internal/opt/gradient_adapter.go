package opt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// GradientAdapter minimizes with gonum's L-BFGS. Box bounds are removed by the
// smooth substitution x = lo + (hi-lo)(1+sin y)/2 and inequality constraints
// by a quadratic penalty whose weight grows by Growth each outer round.
//
// The substitution cannot start on a bound, so L-BFGS begins from x0 moved
// inside the box by a fraction 1-poleMargin of the width. The clamped x0 is
// evaluated first and returned when no iterate improves on it.
type GradientAdapter struct {
	MaxIterations int
	Rounds        int
	Penalty       float64
	Growth        float64
	// Convergence stops the outer rounds once the penalized optimum stalls.
	Convergence ConvergenceConfig
}

// NewGradient creates a gradient-based adapter with total iteration budget maxIters.
func NewGradient(maxIters int, penalty float64) *GradientAdapter {
	return &GradientAdapter{
		MaxIterations: maxIters,
		Rounds:        4,
		Penalty:       penalty,
		Growth:        10,
		Convergence:   DefaultConvergenceConfig(),
	}
}

const poleMargin = 0.999

type boxMap struct {
	lower, upper []float64
}

func (b boxMap) toX(dst, y []float64) {
	for i := range y {
		dst[i] = b.lower[i] + (b.upper[i]-b.lower[i])*0.5*(1+math.Sin(y[i]))
	}
}

func (b boxMap) toY(dst, x []float64) {
	for i := range x {
		w := b.upper[i] - b.lower[i]
		if w == 0 {
			dst[i] = 0
			continue
		}
		// Keep off the poles where dx/dy vanishes.
		s := 2*(x[i]-b.lower[i])/w - 1
		dst[i] = math.Asin(math.Max(-poleMargin, math.Min(poleMargin, s)))
	}
}

// chain scales dF/dx into dF/dy in place.
func (b boxMap) chain(grad, y []float64) {
	for i := range y {
		grad[i] *= 0.5 * (b.upper[i] - b.lower[i]) * math.Cos(y[i])
	}
}

// Minimize runs the penalty rounds starting from x0.
func (a *GradientAdapter) Minimize(ctx context.Context, p Problem, x0 []float64) (*Result, error) {
	n, err := p.Dim(x0)
	if err != nil {
		return nil, err
	}
	rounds := max(1, a.Rounds)
	perRound := 0
	if a.MaxIterations > 0 {
		perRound = max(1, a.MaxIterations/rounds)
	}

	box := boxMap{lower: p.Lower, upper: p.Upper}
	g := newGuard(ctx, p)

	x := make([]float64, n)
	row := make([]float64, n)
	y := make([]float64, n)
	start := append([]float64(nil), x0...)
	clampTo(start, p.Lower, p.Upper)
	box.toY(y, start)

	f0 := g.eval(start)
	if g.err != nil {
		return nil, g.err
	}

	tracker := NewConvergenceTracker(a.Convergence)
	mu := a.Penalty
	weight := mu
	iterations := 0

	for round := 0; round < rounds; round++ {
		weight = mu
		problem := optimize.Problem{
			Func: func(yy []float64) float64 {
				box.toX(x, yy)
				return g.eval(x) + weight*p.penalty(x)
			},
			Grad: func(grad, yy []float64) {
				box.toX(x, yy)
				if g.err == nil {
					if p.Grad != nil {
						// Recorded in the guard so no objective evaluation follows.
						if err := p.Grad(grad, x); err != nil {
							g.err = fmt.Errorf("gradient evaluation: %w", err)
						}
					} else {
						fd.Gradient(grad, g.probe, x, &fd.Settings{Formula: fd.Central})
					}
				}
				// A zero gradient makes the optimizer stop at the next check.
				if g.err != nil {
					for i := range grad {
						grad[i] = 0
					}
					return
				}
				for _, c := range p.Constraints {
					v := c.Value(x)
					if v >= 0 {
						continue
					}
					c.Jacobian(row, x)
					for i := range grad {
						grad[i] += weight * 2 * v * row[i]
					}
				}
				box.chain(grad, yy)
			},
		}

		res, err := optimize.Minimize(problem, y, &optimize.Settings{MajorIterations: perRound}, &optimize.LBFGS{})
		if g.err != nil {
			return nil, g.err
		}
		if res == nil {
			return nil, fmt.Errorf("gradient optimization failed: %w", err)
		}
		if err != nil && !errors.Is(err, optimize.ErrLinesearcherFailure) {
			slog.Warn("Optimizer round ended with error", "round", round, "error", err)
		}

		copy(y, res.X)
		iterations += res.Stats.MajorIterations

		slog.Debug("Penalty round complete",
			"round", round,
			"penalty", weight,
			"value", res.F,
			"status", res.Status.String(),
		)

		if tracker.Update(res.F) {
			break
		}
		mu *= a.Growth
	}

	best := make([]float64, n)
	box.toX(best, y)
	f := g.eval(best)
	if g.err != nil {
		return nil, g.err
	}
	if f0+weight*p.penalty(start) < f+weight*p.penalty(best) {
		best, f = start, f0
	}

	return &Result{
		X:           best,
		F:           f,
		Violation:   p.Violation(best),
		Evaluations: g.evals,
		Iterations:  iterations,
	}, nil
}
