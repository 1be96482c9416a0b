package topopt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cwbudde/tmixerflow/internal/opt"
	"github.com/cwbudde/tmixerflow/internal/sink"
)

// PorosityStream receives the design after every objective evaluation.
const PorosityStream = "porosity"

// FinalStreams receive the final fields scaled by the design.
var FinalStreams = []string{"velocity", "pressure", "concentration"}

// Driver runs the optimization: one forward solve, the constrained search and
// a final solve at the optimized design. Every failure is fatal.
type Driver struct {
	Model      Model
	Optimizer  opt.Optimizer
	Constraint *MassConstraint
	Sink       sink.Sink
}

// Result summarizes a run.
type Result struct {
	Design      []float64
	Initial     float64 // objective of the starting design
	Final       float64 // objective of the optimized design
	Slack       float64 // mass constraint value at the optimized design
	Evaluations int
	Iterations  int
}

// Run optimizes design in place. On failure design is left unchanged and no
// result is returned.
func (d *Driver) Run(ctx context.Context, design []float64) (*Result, error) {
	n := d.Model.Dim()
	if len(design) != n {
		return nil, fmt.Errorf("%w: design has %d values, model has %d", opt.ErrDimensionMismatch, len(design), n)
	}
	if err := d.Constraint.Check(n); err != nil {
		return nil, err
	}

	initial, err := d.Model.Solve(ctx, design)
	if err != nil {
		return nil, fmt.Errorf("initial forward solve: %w", err)
	}
	slog.Info("Initial design solved",
		"objective", initial,
		"mass", d.Constraint.Mass(design),
		"slack", d.Constraint.Value(design),
	)

	rf := NewReducedFunctional(ctx, d.Model)
	evaluations := 0
	problem := opt.Problem{
		Func:        rf.Value,
		Grad:        rf.Gradient,
		Lower:       Uniform(n, 0),
		Upper:       Uniform(n, 1),
		Constraints: []opt.Constraint{d.Constraint.Scaled()},
		OnEval: func(x []float64, f float64) error {
			evaluations++
			slog.Debug("Objective evaluated", "evaluation", evaluations, "objective", f, "slack", d.Constraint.Value(x))
			return d.Sink.Write(PorosityStream, d.Model.DesignField(x, float64(evaluations)).Snapshot)
		},
	}

	res, err := d.Optimizer.Minimize(ctx, problem, design)
	if err != nil {
		return nil, fmt.Errorf("optimization: %w", err)
	}
	if len(res.X) != n {
		return nil, fmt.Errorf("%w: optimizer returned %d values", opt.ErrDimensionMismatch, len(res.X))
	}

	final, err := d.Model.Solve(ctx, res.X)
	if err != nil {
		return nil, fmt.Errorf("final forward solve: %w", err)
	}
	copy(design, res.X)

	for _, f := range d.Model.Fields(float64(evaluations)) {
		if err := d.Sink.Write(f.Quantity, f.Snapshot.Scaled(design)); err != nil {
			return nil, err
		}
	}

	result := &Result{
		Design:      append([]float64(nil), design...),
		Initial:     initial,
		Final:       final,
		Slack:       d.Constraint.Value(design),
		Evaluations: evaluations,
		Iterations:  res.Iterations,
	}
	slog.Info("Optimized design solved",
		"objective", final,
		"initial_objective", initial,
		"slack", result.Slack,
		"evaluations", evaluations,
	)
	return result, nil
}
