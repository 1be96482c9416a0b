package continuation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/tmixerflow/internal/nonlinear"
	"github.com/cwbudde/tmixerflow/internal/param"
	"github.com/cwbudde/tmixerflow/internal/sink"
	"github.com/cwbudde/tmixerflow/internal/store"
)

// Problem is a parametrized nonlinear problem with tracked projections.
type Problem interface {
	// Nonlinear returns what the solver solves at each step.
	Nonlinear() nonlinear.Problem
	// Initialize writes the initial assignment into state.
	Initialize(state []float64)
	// Project returns the tracked quantities of state solved at value.
	Project(state []float64, value float64) []sink.Field
}

// Checkpointer saves the run after each completed step.
type Checkpointer interface {
	SaveCheckpoint(runID string, checkpoint *store.Checkpoint) error
}

// Driver owns the solution state of one continuation run.
type Driver struct {
	Cell    *param.Cell
	Problem Problem
	Solver  nonlinear.Solver
	Sink    sink.Sink

	// Checkpoints is optional. RunID and Config identify the run in it.
	Checkpoints Checkpointer
	RunID       string
	Config      store.RunConfig
}

// Result summarizes a run.
type Result struct {
	State   []float64
	Solves  int
	Reports []*nonlinear.Report
	// Value is the parameter of the last converged step, or the cell's
	// initial value when no step ran.
	Value float64
}

// Run performs the initial assignment and continues over seq. With an empty
// sequence the initial assignment is written once and nothing is solved.
func (d *Driver) Run(ctx context.Context, seq Sequence) (*Result, error) {
	if err := seq.Validate(); err != nil {
		return nil, err
	}
	state := make([]float64, d.Problem.Nonlinear().System.Dim())
	d.Problem.Initialize(state)

	if len(seq) == 0 {
		value := d.Cell.Get()
		if err := sink.WriteAll(d.Sink, d.Problem.Project(state, value)); err != nil {
			return nil, fmt.Errorf("writing initial state: %w", err)
		}
		slog.Info("Empty sequence, wrote initial state", "parameter", d.Cell.Name())
		return &Result{State: state, Value: value}, nil
	}
	return d.loop(ctx, seq, state, 0)
}

// Resume continues seq after the checkpoint's step from its stored state.
func (d *Driver) Resume(ctx context.Context, seq Sequence, cp *store.Checkpoint) (*Result, error) {
	if err := seq.Validate(); err != nil {
		return nil, err
	}
	if err := cp.IsCompatible(d.Config); err != nil {
		return nil, err
	}
	dim := d.Problem.Nonlinear().System.Dim()
	if len(cp.State) != dim {
		return nil, fmt.Errorf("%w: checkpoint state has %d entries, problem has %d", nonlinear.ErrDimension, len(cp.State), dim)
	}
	if cp.Step >= len(seq) {
		return nil, fmt.Errorf("checkpoint step %d outside sequence of %d values", cp.Step, len(seq))
	}

	state := append([]float64(nil), cp.State...)
	d.Cell.Set(cp.Value)
	slog.Info("Resuming continuation", "run_id", cp.RunID, "completed_step", cp.Step, "value", cp.Value)
	if cp.Step == len(seq)-1 {
		return &Result{State: state, Value: cp.Value}, nil
	}
	return d.loop(ctx, seq, state, cp.Step+1)
}

func (d *Driver) loop(ctx context.Context, seq Sequence, state []float64, first int) (*Result, error) {
	problem := d.Problem.Nonlinear()
	res := &Result{State: state}
	start := time.Now()

	for k := first; k < len(seq); k++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("continuation stopped before step %d: %w", k, err)
		}
		value := seq[k]
		d.Cell.Set(value)

		report, err := d.Solver.Solve(ctx, problem, state)
		if err != nil {
			return nil, fmt.Errorf("continuation step %d (%s=%g): %w", k, d.Cell.Name(), value, err)
		}
		res.Solves++
		res.Reports = append(res.Reports, report)
		res.Value = value
		if !report.Converged {
			slog.Warn("Continuation step did not converge, continuing from its last iterate",
				"step", k, "value", value, "residual", report.Residual, "reason", report.Reason)
		}

		if err := sink.WriteAll(d.Sink, d.Problem.Project(state, value)); err != nil {
			return nil, fmt.Errorf("continuation step %d: writing results: %w", k, err)
		}
		if d.Checkpoints != nil {
			// The streams must hold step k before a checkpoint says it completed.
			if err := sink.Flush(d.Sink); err != nil {
				return nil, fmt.Errorf("continuation step %d: flushing results: %w", k, err)
			}
			cp := store.NewCheckpoint(d.RunID, k, d.Cell.Name(), value, state, d.Config)
			if err := d.Checkpoints.SaveCheckpoint(d.RunID, cp); err != nil {
				return nil, fmt.Errorf("continuation step %d: %w", k, err)
			}
		}

		slog.Info("Continuation step converged",
			"step", k,
			"parameter", d.Cell.Name(),
			"value", value,
			"iterations", report.Iterations,
			"residual", report.Residual,
			"reason", report.Reason,
		)
	}

	slog.Info("Continuation complete", "steps", res.Solves, "elapsed", time.Since(start).String())
	return res, nil
}
