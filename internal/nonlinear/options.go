package nonlinear

import (
	"errors"
	"fmt"
)

// Linear solver choices for the Newton step.
const (
	LinearLU = "lu"
	LinearQR = "qr"
)

// Line search choices.
const (
	LineSearchBasic     = "basic"
	LineSearchBacktrack = "bt"
)

const (
	maxBacktrackHalvings = 10
	sufficientDecrease   = 1e-4
)

// ErrInvalidOptions is returned by Options.Validate.
var ErrInvalidOptions = errors.New("nonlinear: invalid options")

// Options configures the Newton solver.
type Options struct {
	MaximumIterations          int     `mapstructure:"maximum_iterations" json:"maximum_iterations"`
	AbsoluteTolerance          float64 `mapstructure:"absolute_tolerance" json:"absolute_tolerance"`
	RelativeTolerance          float64 `mapstructure:"relative_tolerance" json:"relative_tolerance"`
	SolutionTolerance          float64 `mapstructure:"solution_tolerance" json:"solution_tolerance"`
	MaximumResidualEvaluations int     `mapstructure:"maximum_residual_evaluations" json:"maximum_residual_evaluations"`
	LinearSolver               string  `mapstructure:"linear_solver" json:"linear_solver"`
	LineSearch                 string  `mapstructure:"line_search" json:"line_search"`
	ErrorOnNonConvergence      bool    `mapstructure:"error_on_nonconvergence" json:"error_on_nonconvergence"`
}

// DefaultOptions mirrors the SNES settings used for the two-phase column.
func DefaultOptions() Options {
	return Options{
		MaximumIterations:          100,
		AbsoluteTolerance:          6.0e-7,
		RelativeTolerance:          6.0e-7,
		SolutionTolerance:          1.0e-16,
		MaximumResidualEvaluations: 20000,
		LinearSolver:               LinearLU,
		LineSearch:                 LineSearchBacktrack,
		ErrorOnNonConvergence:      true,
	}
}

// Validate checks ranges and enumerations.
func (o Options) Validate() error {
	if o.MaximumIterations <= 0 {
		return fmt.Errorf("%w: maximum_iterations must be positive, got %d", ErrInvalidOptions, o.MaximumIterations)
	}
	if o.AbsoluteTolerance < 0 || o.RelativeTolerance < 0 || o.SolutionTolerance < 0 {
		return fmt.Errorf("%w: tolerances cannot be negative", ErrInvalidOptions)
	}
	if o.MaximumResidualEvaluations <= 0 {
		return fmt.Errorf("%w: maximum_residual_evaluations must be positive, got %d", ErrInvalidOptions, o.MaximumResidualEvaluations)
	}
	switch o.LinearSolver {
	case LinearLU, LinearQR:
	default:
		return fmt.Errorf("%w: unknown linear_solver %q", ErrInvalidOptions, o.LinearSolver)
	}
	switch o.LineSearch {
	case LineSearchBasic, LineSearchBacktrack:
	default:
		return fmt.Errorf("%w: unknown line_search %q", ErrInvalidOptions, o.LineSearch)
	}
	return nil
}
