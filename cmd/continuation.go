package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/tmixerflow/internal/config"
	"github.com/cwbudde/tmixerflow/internal/continuation"
	"github.com/cwbudde/tmixerflow/internal/nonlinear"
	"github.com/cwbudde/tmixerflow/internal/param"
	"github.com/cwbudde/tmixerflow/internal/sink"
	"github.com/cwbudde/tmixerflow/internal/store"
	"github.com/cwbudde/tmixerflow/internal/twophase"
)

// columnProblem names the continuation problem in checkpoints.
const columnProblem = "twophase-column"

var runID string

var continuationCmd = &cobra.Command{
	Use:   "continuation",
	Short: "Ramp gravity on the two-phase column",
	Long: `Solves the two-phase drift column for g = 10^(start + k*step), k = 0..steps-1,
warm-starting each solve from the previous one. The nine tracked quantities are
appended to <output-dir>/runs/<run-id>/ after every step, and a checkpoint is
saved so an interrupted run can be resumed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg.OutputDir)
		if err != nil {
			return err
		}
		id := runID
		if id == "" {
			id = uuid.NewString()
		}

		start := time.Now()
		res, err := runContinuation(cmd.Context(), cfg, st, id)
		if err != nil {
			return err
		}
		printContinuation(cmd.OutOrStdout(), id, st.RunDir(id), res, time.Since(start))
		return nil
	},
}

func init() {
	def := config.Default().Continuation
	f := continuationCmd.Flags()
	f.StringVar(&runID, "run-id", "", "Run ID (default: random UUID)")
	f.Int("steps", def.Steps, "Number of gravity values")
	f.Float64("start-exponent", def.StartExponent, "Exponent of the first gravity value")
	f.Float64("exponent-step", def.ExponentStep, "Exponent increment between values")
	f.Int("nodes", def.Column.Nodes, "Column nodes")
	f.String("linear-solver", def.Solver.LinearSolver, "Newton linear solver (lu, qr)")
	f.String("line-search", def.Solver.LineSearch, "Newton line search (basic, bt)")

	bindFlag(f.Lookup("steps"), "continuation.steps")
	bindFlag(f.Lookup("start-exponent"), "continuation.start_exponent")
	bindFlag(f.Lookup("exponent-step"), "continuation.exponent_step")
	bindFlag(f.Lookup("nodes"), "continuation.column.nodes")
	bindFlag(f.Lookup("linear-solver"), "continuation.solver.linear_solver")
	bindFlag(f.Lookup("line-search"), "continuation.solver.line_search")

	rootCmd.AddCommand(continuationCmd)
}

// continuationRun describes cfg in a checkpoint.
func continuationRun(cfg config.Config) store.RunConfig {
	c := cfg.Continuation
	return store.RunConfig{
		Problem:       columnProblem,
		Nodes:         c.Column.Nodes,
		Steps:         c.Steps,
		StartExponent: c.StartExponent,
		ExponentStep:  c.ExponentStep,
		OutputDir:     cfg.OutputDir,
		Physics: map[string]float64{
			"height":             c.Column.Height,
			"density1":           c.Column.Density1,
			"density2":           c.Column.Density2,
			"viscosity1":         c.Column.Viscosity1,
			"viscosity2":         c.Column.Viscosity2,
			"inlet_velocity":     c.Column.InletVelocity,
			"diffusivity":        c.Column.Diffusivity,
			"drag_length":        c.Column.DragLength,
			"fraction":           c.Column.Fraction,
			"pressure":           c.Column.Pressure,
			"max_velocity":       c.Column.MaxVelocity,
			"max_pressure":       c.Column.MaxPressure,
			"absolute_tolerance": c.Solver.AbsoluteTolerance,
			"relative_tolerance": c.Solver.RelativeTolerance,
		},
	}
}

// newColumnDriver builds the driver for cfg writing to out.
func newColumnDriver(cfg config.Config, st *store.FSStore, id string, out sink.Sink) (*continuation.Driver, *twophase.Column, error) {
	table := param.NewTable()
	col, err := twophase.NewColumn(cfg.Continuation.Column.Params(), table)
	if err != nil {
		return nil, nil, err
	}
	solver, err := nonlinear.NewNewton(cfg.Continuation.Solver)
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("Column assembled", "unknowns", col.Dim(), "drag", col.Params().Drag(), "parameters", table.Snapshot())
	return &continuation.Driver{
		Cell:        col.Gravity(),
		Problem:     col,
		Solver:      solver,
		Sink:        out,
		Checkpoints: st,
		RunID:       id,
		Config:      continuationRun(cfg),
	}, col, nil
}

func runContinuation(ctx context.Context, cfg config.Config, st *store.FSStore, id string) (res *continuation.Result, err error) {
	out, err := sink.OpenDir(st.RunDir(id), twophase.QuantityNames(), false)
	if err != nil {
		return nil, err
	}
	defer closeSink(out, &err)

	d, col, err := newColumnDriver(cfg, st, id, out)
	if err != nil {
		return nil, err
	}

	slog.Info("Starting continuation",
		"run_id", id,
		"steps", cfg.Continuation.Steps,
		"nodes", cfg.Continuation.Column.Nodes,
		"output", out.Dir(),
	)
	res, err = d.Run(ctx, cfg.Continuation.Sequence())
	if err != nil {
		return nil, err
	}
	logColumn(col, res)
	return res, nil
}

func logColumn(col *twophase.Column, res *continuation.Result) {
	slog.Info("Column state",
		"g", res.Value,
		"mean_fraction", col.MeanFraction(res.State),
		"max_slip", col.Slip(res.State),
	)
}

func printContinuation(w io.Writer, id, dir string, res *continuation.Result, elapsed time.Duration) {
	fmt.Fprintf(w, "Run %s: %d solve(s), last g = %g, %s\n", id, res.Solves, res.Value, elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Streams written to %s\n", dir)
}
