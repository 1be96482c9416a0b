package topopt

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/diff/fd"
)

// gradientStep is the central-difference step on design values in [0,1] for
// models without a Sensitivity.
const gradientStep = 1e-4

// ReducedFunctional maps a design to the objective through a forward solve.
// Models implementing Sensitivity get the adjoint gradient at the cost of one
// solve. Others are differenced centrally through the forward solve, which
// costs 2·Dim() solves and requires every solve to converge from scratch.
type ReducedFunctional struct {
	ctx   context.Context
	model Model
}

// NewReducedFunctional binds model to ctx.
func NewReducedFunctional(ctx context.Context, model Model) *ReducedFunctional {
	return &ReducedFunctional{ctx: ctx, model: model}
}

// Value returns J(design).
func (rf *ReducedFunctional) Value(design []float64) (float64, error) {
	return rf.model.Solve(rf.ctx, design)
}

// Gradient writes dJ/ddesign into grad.
func (rf *ReducedFunctional) Gradient(grad, design []float64) error {
	if len(grad) != len(design) {
		return fmt.Errorf("gradient: %d entries for %d design values", len(grad), len(design))
	}
	if s, ok := rf.model.(Sensitivity); ok {
		if _, err := rf.Value(design); err != nil {
			return err
		}
		if err := s.Sensitivity(grad); err != nil {
			return fmt.Errorf("adjoint gradient: %w", err)
		}
		return nil
	}

	var evalErr error
	fd.Gradient(grad, func(x []float64) float64 {
		if evalErr != nil {
			return 0
		}
		v, err := rf.Value(x)
		if err != nil {
			evalErr = err
			return 0
		}
		return v
	}, design, &fd.Settings{Formula: fd.Central, Step: gradientStep})
	if evalErr != nil {
		return fmt.Errorf("finite-difference gradient: %w", evalErr)
	}
	return nil
}
