package topopt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cwbudde/tmixerflow/internal/brinkman"
	"github.com/cwbudde/tmixerflow/internal/nonlinear"
	"github.com/cwbudde/tmixerflow/internal/sink"
)

// Model is the forward problem over a design field.
type Model interface {
	// Dim returns the number of design values.
	Dim() int
	// Solve assigns design, solves the forward problem to convergence and
	// returns the objective. A solver failure is returned as is.
	Solve(ctx context.Context, design []float64) (float64, error)
	// Fields returns the physical fields of the last solve.
	Fields(value float64) []sink.Field
	// DesignField wraps a design vector as a snapshot.
	DesignField(design []float64, value float64) sink.Field
}

// ChannelModel solves the Brinkman channel with a nonlinear solver. Each solve
// warm-starts from the previous state.
type ChannelModel struct {
	channel   *brinkman.Channel
	solver    nonlinear.Solver
	objective Objective
	state     []float64
	solves    int
	last      Terms
}

// NewChannelModel creates the model and its initial state.
func NewChannelModel(ch *brinkman.Channel, solver nonlinear.Solver, objective Objective) *ChannelModel {
	state := make([]float64, ch.Dim())
	ch.Initialize(state)
	return &ChannelModel{
		channel:   ch,
		solver:    solver,
		objective: objective,
		state:     state,
	}
}

func (m *ChannelModel) Dim() int { return m.channel.Grid().NumNodes() }

func (m *ChannelModel) Solve(ctx context.Context, design []float64) (float64, error) {
	if err := m.channel.SetDesign(design); err != nil {
		return 0, err
	}
	m.solves++
	report, err := m.solver.Solve(ctx, m.channel.Problem(), m.state)
	if err != nil {
		return 0, fmt.Errorf("forward solve %d: %w", m.solves, err)
	}
	m.last = m.objective.Evaluate(m.channel, m.state)

	slog.Debug("Forward solve",
		"solve", m.solves,
		"iterations", report.Iterations,
		"residual", report.Residual,
		"objective", m.last.Total(),
	)
	return m.last.Total(), nil
}

func (m *ChannelModel) Fields(value float64) []sink.Field {
	return m.channel.Fields(m.state, value)
}

func (m *ChannelModel) DesignField(design []float64, value float64) sink.Field {
	return m.channel.DesignField(design, value)
}

// Terms returns the objective contributions of the last solve.
func (m *ChannelModel) Terms() Terms { return m.last }

// Solves returns the number of forward solves so far.
func (m *ChannelModel) Solves() int { return m.solves }

// State returns the last solved state.
func (m *ChannelModel) State() []float64 { return m.state }
