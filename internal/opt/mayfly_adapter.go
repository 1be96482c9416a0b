package opt

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// minMayflyPopulation is the smallest population mayfly v0.1.0 accepts.
const minMayflyPopulation = 20

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface.
// Constraints enter the cost as a quadratic penalty.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
	penalty  float64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64, penalty float64) *MayflyAdapter {
	if popSize < minMayflyPopulation {
		popSize = minMayflyPopulation
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
		penalty:  penalty,
	}
}

// Minimize runs the evolutionary search. The population is sampled inside the
// bounds, so x0 only fixes the dimension.
func (m *MayflyAdapter) Minimize(ctx context.Context, p Problem, x0 []float64) (*Result, error) {
	dim, err := p.Dim(x0)
	if err != nil {
		return nil, err
	}

	// External library uses scalar bounds
	for i := 1; i < dim; i++ {
		if p.Lower[i] != p.Lower[0] || p.Upper[i] != p.Upper[0] {
			return nil, fmt.Errorf("%w: mayfly needs uniform bounds, control %d differs", ErrInvalidBounds, i)
		}
	}

	g := newGuard(ctx, p)
	cost := func(x []float64) float64 {
		v := g.eval(x)
		if len(p.Constraints) > 0 {
			v += m.penalty * p.penalty(x)
		}
		return v
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = cost
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = p.Lower[0]
	config.UpperBound = p.Upper[0]

	// Set random seed for reproducibility
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if g.err != nil {
		return nil, g.err
	}
	if err != nil {
		return nil, fmt.Errorf("mayfly optimization failed: %w", err)
	}

	best := append([]float64(nil), result.GlobalBest.Position...)
	clampTo(best, p.Lower, p.Upper)

	slog.Debug("Mayfly search finished", "evaluations", g.evals, "cost", result.GlobalBest.Cost)

	return &Result{
		X:           best,
		F:           result.GlobalBest.Cost - m.penalty*p.penalty(best),
		Violation:   p.Violation(best),
		Evaluations: g.evals,
		Iterations:  m.maxIters,
	}, nil
}
