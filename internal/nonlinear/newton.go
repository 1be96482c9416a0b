package nonlinear

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Newton is a Newton-Raphson solver with dense direct linear solves.
type Newton struct {
	opts Options
}

// NewNewton validates the options and returns a solver.
func NewNewton(opts Options) (*Newton, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Newton{opts: opts}, nil
}

// Options returns the solver configuration.
func (s *Newton) Options() Options {
	return s.opts
}

// newtonRun holds per-solve scratch state.
type newtonRun struct {
	p      Problem
	opts   Options
	report Report
	pinned map[int]float64
}

// residual evaluates F with Dirichlet rows replaced. Counted against the budget.
func (r *newtonRun) residual(dst, x []float64) error {
	r.report.ResidualEvaluations++
	return r.raw(dst, x)
}

func (r *newtonRun) raw(dst, x []float64) error {
	if err := r.p.System.Residual(dst, x); err != nil {
		return fmt.Errorf("residual evaluation: %w", err)
	}
	for i, v := range r.pinned {
		dst[i] = x[i] - v
	}
	return nil
}

func (r *newtonRun) jacobian(dst *mat.Dense, x, f []float64) error {
	r.report.JacobianEvaluations++
	if jac, ok := r.p.System.(Jacobian); ok {
		if err := jac.Jacobian(dst, x); err != nil {
			return fmt.Errorf("jacobian evaluation: %w", err)
		}
	} else {
		var evalErr error
		fd.Jacobian(dst, func(y, xx []float64) {
			if evalErr != nil {
				return
			}
			evalErr = r.raw(y, xx)
		}, x, &fd.JacobianSettings{Formula: fd.Central, OriginValue: f})
		if evalErr != nil {
			return fmt.Errorf("finite-difference jacobian: %w", evalErr)
		}
	}
	_, n := dst.Dims()
	for i := range r.pinned {
		for j := 0; j < n; j++ {
			dst.Set(i, j, 0)
		}
		dst.Set(i, i, 1)
	}
	return nil
}

// step solves J dx = -f with the configured direct solver.
func (r *newtonRun) step(dx *mat.VecDense, jac *mat.Dense, f []float64) error {
	rhs := mat.NewVecDense(len(f), nil)
	for i, v := range f {
		rhs.SetVec(i, -v)
	}

	var err error
	switch r.opts.LinearSolver {
	case LinearQR:
		var qr mat.QR
		qr.Factorize(jac)
		err = qr.SolveVecTo(dx, false, rhs)
	default:
		var lu mat.LU
		lu.Factorize(jac)
		err = lu.SolveVecTo(dx, false, rhs)
	}
	if err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return fmt.Errorf("linear solve: %w", err)
		}
		slog.Debug("Ill-conditioned Newton step", "condition", float64(cond))
	}
	if floats.HasNaN(dx.RawVector().Data) {
		return fmt.Errorf("linear solve: NaN in Newton step")
	}
	return nil
}

func (r *newtonRun) fail(reason string) error {
	r.report.Reason = reason
	if !r.opts.ErrorOnNonConvergence {
		return nil
	}
	return &NonConvergenceError{
		Iterations:          r.report.Iterations,
		ResidualEvaluations: r.report.ResidualEvaluations,
		Residual:            r.report.Residual,
		Reason:              reason,
	}
}

// Solve runs Newton iterations from x, overwriting x with the last iterate.
// On failure x holds the last accepted iterate and the returned error wraps
// ErrNonConvergence unless ErrorOnNonConvergence is off.
func (s *Newton) Solve(ctx context.Context, p Problem, x []float64) (*Report, error) {
	if err := p.validate(x); err != nil {
		return nil, err
	}

	run := &newtonRun{p: p, opts: s.opts, pinned: make(map[int]float64, len(p.BCs))}
	for _, bc := range p.BCs {
		run.pinned[bc.Index] = bc.Value
	}

	n := len(x)
	for i, v := range run.pinned {
		x[i] = v
	}
	p.Bounds.project(x)

	f := make([]float64, n)
	if err := run.residual(f, x); err != nil {
		return &run.report, err
	}
	r0 := floats.Norm(f, math.Inf(1))
	run.report.InitialResidual = r0
	run.report.Residual = r0

	if r0 <= s.opts.AbsoluteTolerance {
		run.report.Converged = true
		run.report.Reason = "absolute tolerance"
		return &run.report, nil
	}

	jac := mat.NewDense(n, n, nil)
	dx := mat.NewVecDense(n, nil)
	trial := make([]float64, n)
	ftrial := make([]float64, n)

	for it := 1; it <= s.opts.MaximumIterations; it++ {
		if err := ctx.Err(); err != nil {
			return &run.report, err
		}
		run.report.Iterations = it

		if err := run.jacobian(jac, x, f); err != nil {
			return &run.report, err
		}
		if err := run.step(dx, jac, f); err != nil {
			return &run.report, errors.Join(run.fail("linear solve failed"), err)
		}

		// Line search on the projected update.
		lambda := 1.0
		rOld := run.report.Residual
		var rNew float64
		for h := 0; ; h++ {
			for i := range trial {
				trial[i] = x[i] + lambda*dx.AtVec(i)
			}
			p.Bounds.project(trial)
			if err := run.residual(ftrial, trial); err != nil {
				return &run.report, err
			}
			rNew = floats.Norm(ftrial, math.Inf(1))
			if run.report.ResidualEvaluations >= s.opts.MaximumResidualEvaluations {
				break
			}
			if s.opts.LineSearch == LineSearchBasic || h >= maxBacktrackHalvings {
				break
			}
			if !math.IsNaN(rNew) && rNew <= (1-sufficientDecrease*lambda)*rOld {
				break
			}
			lambda *= 0.5
		}

		var stepNorm float64
		for i := range trial {
			stepNorm = math.Max(stepNorm, math.Abs(trial[i]-x[i]))
		}
		if math.IsNaN(rNew) || math.IsInf(rNew, 0) {
			run.report.Residual = rNew
			return &run.report, run.fail("residual is not finite")
		}

		copy(x, trial)
		copy(f, ftrial)
		run.report.Residual = rNew

		slog.Debug("Newton iteration",
			"iteration", it,
			"residual", rNew,
			"step", stepNorm,
			"lambda", lambda,
		)

		switch {
		case rNew <= s.opts.AbsoluteTolerance:
			run.report.Converged = true
			run.report.Reason = "absolute tolerance"
		case rNew <= s.opts.RelativeTolerance*r0:
			run.report.Converged = true
			run.report.Reason = "relative tolerance"
		case stepNorm <= s.opts.SolutionTolerance*floats.Norm(x, math.Inf(1)):
			run.report.Converged = true
			run.report.Reason = "solution tolerance"
		}
		if run.report.Converged {
			return &run.report, nil
		}

		if run.report.ResidualEvaluations >= s.opts.MaximumResidualEvaluations {
			return &run.report, run.fail("maximum residual evaluations reached")
		}
	}

	return &run.report, run.fail("maximum iterations reached")
}
