package continuation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/tmixerflow/internal/nonlinear"
	"github.com/cwbudde/tmixerflow/internal/param"
	"github.com/cwbudde/tmixerflow/internal/sink"
	"github.com/cwbudde/tmixerflow/internal/store"
	"github.com/cwbudde/tmixerflow/internal/twophase"
)

// shiftSystem has the root x_i = g + i.
type shiftSystem struct {
	n    int
	cell *param.Cell
}

func (s *shiftSystem) Dim() int { return s.n }

func (s *shiftSystem) Residual(dst, x []float64) error {
	for i := range x {
		dst[i] = x[i] - s.cell.Get() - float64(i)
	}
	return nil
}

type shiftProblem struct {
	sys *shiftSystem
}

func (p *shiftProblem) Nonlinear() nonlinear.Problem { return nonlinear.Problem{System: p.sys} }

func (p *shiftProblem) Initialize(state []float64) {
	for i := range state {
		state[i] = -1
	}
}

func (p *shiftProblem) Project(state []float64, value float64) []sink.Field {
	return []sink.Field{
		{Quantity: "first", Snapshot: sink.Snapshot{Label: "first", Value: value, Dims: []int{1}, Data: state[:1]}},
		{Quantity: "all", Snapshot: sink.Snapshot{Label: "all", Value: value, Dims: []int{len(state)}, Data: state}},
	}
}

// fakeSolver solves shiftSystem exactly and records what it was handed.
type fakeSolver struct {
	cell    *param.Cell
	values  []float64
	guesses [][]float64
	failAt  int
}

func (s *fakeSolver) Solve(_ context.Context, p nonlinear.Problem, x []float64) (*nonlinear.Report, error) {
	s.values = append(s.values, s.cell.Get())
	s.guesses = append(s.guesses, append([]float64(nil), x...))
	if s.failAt > 0 && len(s.values) == s.failAt {
		return nil, &nonlinear.NonConvergenceError{Iterations: 3, Residual: 1, Reason: "diverged"}
	}
	f := make([]float64, len(x))
	if err := p.System.Residual(f, x); err != nil {
		return nil, err
	}
	for i := range x {
		x[i] -= f[i]
	}
	return &nonlinear.Report{Iterations: 1, Converged: true, Reason: "absolute"}, nil
}

type memCheckpoints struct {
	saved []*store.Checkpoint
}

func (m *memCheckpoints) SaveCheckpoint(_ string, cp *store.Checkpoint) error {
	m.saved = append(m.saved, cp)
	return nil
}

func newShiftDriver(n int) (*Driver, *fakeSolver, *sink.Recorder) {
	table := param.NewTable()
	cell := table.Define("g", 0)
	solver := &fakeSolver{cell: cell}
	rec := sink.NewRecorder()
	return &Driver{
		Cell:    cell,
		Problem: &shiftProblem{sys: &shiftSystem{n: n, cell: cell}},
		Solver:  solver,
		Sink:    rec,
	}, solver, rec
}

func TestRunEmptySequenceWritesInitialState(t *testing.T) {
	d, solver, rec := newShiftDriver(3)

	res, err := d.Run(context.Background(), Sequence{})
	require.NoError(t, err)

	assert.Empty(t, solver.values)
	assert.Equal(t, 0, res.Solves)
	require.Equal(t, 2, rec.Len())
	assert.Equal(t, []float64{-1, -1, -1}, rec.Records()[1].Snapshot.Data)
	assert.Equal(t, []float64{-1, -1, -1}, res.State)
}

func TestRunWarmStartsInOrder(t *testing.T) {
	d, solver, rec := newShiftDriver(2)
	seq := Sequence{1e-4, 1e-3, 1e-2}

	res, err := d.Run(context.Background(), seq)
	require.NoError(t, err)

	assert.Equal(t, []float64(seq), solver.values)
	assert.Equal(t, []float64{-1, -1}, solver.guesses[0])
	// Each guess is the previous converged state.
	assert.InDeltaSlice(t, []float64{1e-4, 1 + 1e-4}, solver.guesses[1], 1e-15)
	assert.InDeltaSlice(t, []float64{1e-3, 1 + 1e-3}, solver.guesses[2], 1e-15)

	assert.Equal(t, 3, res.Solves)
	assert.Equal(t, 1e-2, res.Value)
	assert.Equal(t, 1e-2, d.Cell.Get())
	assert.Equal(t, 3, rec.Count("first"))
	assert.Equal(t, 3, rec.Count("all"))
	assert.Equal(t, 1e-3, rec.Records()[2].Snapshot.Value)
}

func TestRunRejectsUnorderedSequence(t *testing.T) {
	d, solver, rec := newShiftDriver(2)

	_, err := d.Run(context.Background(), Sequence{1e-2, 1e-3})
	require.ErrorIs(t, err, ErrUnordered)
	assert.Empty(t, solver.values)
	assert.Equal(t, 0, rec.Len())
}

func TestRunStopsOnNonConvergence(t *testing.T) {
	d, solver, rec := newShiftDriver(2)
	solver.failAt = 2

	_, err := d.Run(context.Background(), Sequence{1e-4, 1e-3, 1e-2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, nonlinear.ErrNonConvergence))
	assert.Contains(t, err.Error(), "continuation step 1 (g=0.001)")
	assert.Len(t, solver.values, 2)
	assert.Equal(t, 2, rec.Len(), "only the first step was written")
}

func TestRunHonorsCancellation(t *testing.T) {
	d, solver, _ := newShiftDriver(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Run(ctx, Sequence{1e-4})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, solver.values)
}

func TestRunSavesCheckpoints(t *testing.T) {
	d, _, _ := newShiftDriver(2)
	cps := &memCheckpoints{}
	d.Checkpoints = cps
	d.RunID = "run-1"
	d.Config = store.RunConfig{Problem: "shift", Nodes: 2, Steps: 3, StartExponent: -4, ExponentStep: 1}

	_, err := d.Run(context.Background(), Geometric(-4, 1, 3))
	require.NoError(t, err)

	require.Len(t, cps.saved, 3)
	last := cps.saved[2]
	assert.Equal(t, 2, last.Step)
	assert.Equal(t, "g", last.Parameter)
	assert.InDelta(t, 1e-2, last.Value, 1e-15)
	assert.True(t, last.Done())
	require.NoError(t, last.Validate())
}

// diskCheckpoints counts the entries of a stream on disk when a checkpoint is saved.
type diskCheckpoints struct {
	t      *testing.T
	stream string
	lines  []int
}

func (c *diskCheckpoints) SaveCheckpoint(_ string, cp *store.Checkpoint) error {
	r, err := store.NewSeriesReader(c.stream)
	require.NoError(c.t, err)
	defer r.Close()
	entries, err := r.ReadAll()
	require.NoError(c.t, err)
	c.lines = append(c.lines, len(entries))
	return nil
}

func TestRunFlushesStreamsBeforeCheckpoint(t *testing.T) {
	d, _, _ := newShiftDriver(2)
	dir := t.TempDir()
	out, err := sink.OpenDir(dir, []string{"first", "all"}, false)
	require.NoError(t, err)
	t.Cleanup(func() { out.Close() })
	d.Sink = out
	cps := &diskCheckpoints{t: t, stream: filepath.Join(dir, sink.FileName("all"))}
	d.Checkpoints = cps
	d.RunID = "run-1"
	d.Config = store.RunConfig{Problem: "shift", Nodes: 2, Steps: 3, StartExponent: -4, ExponentStep: 1}

	_, err = d.Run(context.Background(), Geometric(-4, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, cps.lines)
}

func TestResumeMatchesUninterruptedRun(t *testing.T) {
	seq := Geometric(-4, 1, 4)
	cfg := store.RunConfig{Problem: "shift", Nodes: 2, Steps: 4, StartExponent: -4, ExponentStep: 1}

	full, fullSolver, _ := newShiftDriver(2)
	full.Config = cfg
	want, err := full.Run(context.Background(), seq)
	require.NoError(t, err)

	first, _, _ := newShiftDriver(2)
	cps := &memCheckpoints{}
	first.Checkpoints, first.RunID, first.Config = cps, "run-1", cfg
	first.Solver.(*fakeSolver).failAt = 3
	_, err = first.Run(context.Background(), seq)
	require.Error(t, err)
	require.Len(t, cps.saved, 2)

	resumed, solver, rec := newShiftDriver(2)
	resumed.Config = cfg
	got, err := resumed.Resume(context.Background(), seq, cps.saved[1])
	require.NoError(t, err)

	assert.Equal(t, []float64(seq[2:]), solver.values)
	assert.Equal(t, fullSolver.guesses[2], solver.guesses[0])
	assert.Equal(t, want.State, got.State)
	assert.Equal(t, 2, got.Solves)
	assert.Equal(t, 4, rec.Len())
}

func TestResumeRejectsIncompatibleCheckpoint(t *testing.T) {
	d, solver, _ := newShiftDriver(2)
	d.Config = store.RunConfig{Problem: "shift", Nodes: 2, Steps: 3, StartExponent: -4, ExponentStep: 1}
	cp := store.NewCheckpoint("run-1", 0, "g", 1e-4, []float64{0, 1}, d.Config)

	other := d.Config
	other.Nodes = 3
	d.Config = other
	_, err := d.Resume(context.Background(), Geometric(-4, 1, 3), cp)
	var compat *store.CompatibilityError
	require.ErrorAs(t, err, &compat)
	assert.Equal(t, "Nodes", compat.Field)
	assert.Empty(t, solver.values)
}

func TestResumeCompletedRunSolvesNothing(t *testing.T) {
	d, solver, _ := newShiftDriver(2)
	d.Config = store.RunConfig{Problem: "shift", Nodes: 2, Steps: 2, StartExponent: -4, ExponentStep: 1}
	cp := store.NewCheckpoint("run-1", 1, "g", 1e-3, []float64{1e-3, 1.001}, d.Config)

	res, err := d.Resume(context.Background(), Geometric(-4, 1, 2), cp)
	require.NoError(t, err)
	assert.Empty(t, solver.values)
	assert.Equal(t, 1e-3, res.Value)
	assert.Equal(t, 1e-3, d.Cell.Get())
}

func TestColumnSingleStepWritesAllQuantities(t *testing.T) {
	table := param.NewTable()
	p := twophase.DefaultParams()
	p.Nodes = 11
	col, err := twophase.NewColumn(p, table)
	require.NoError(t, err)

	newton, err := nonlinear.NewNewton(nonlinear.DefaultOptions())
	require.NoError(t, err)
	rec := sink.NewRecorder()

	d := &Driver{Cell: col.Gravity(), Problem: col, Solver: newton, Sink: rec}
	res, err := d.Run(context.Background(), Sequence{1e-4})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Solves)
	require.Len(t, res.Reports, 1)
	assert.True(t, res.Reports[0].Converged)
	assert.Equal(t, len(twophase.Tracked), rec.Len())
	for _, name := range twophase.QuantityNames() {
		assert.Equal(t, 1, rec.Count(name), name)
	}
	assert.InDelta(t, p.Fraction, col.MeanFraction(res.State), 1e-6)
}
