package topopt

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Sensitivity is implemented by models that differentiate the objective of
// their last solve with respect to the design.
type Sensitivity interface {
	Sensitivity(grad []float64) error
}

// Steps of the central differences on explicit partials. J is quadratic in
// the state, so the state step only needs to stay well above rounding.
const (
	designStep = 1e-4
	stateStep  = 1e-2
)

// Sensitivity writes dJ/dγ at the last solve into grad with the discrete
// adjoint:
//
//	Aᵀλ = ∂J/∂x,  dJ/dγ = ∂J/∂γ - (∂F/∂γ)ᵀλ
//
// A is the analytic residual Jacobian with the Dirichlet rows of the solver.
// The partials in γ and ∂J/∂x are central differences at the fixed state, so
// no forward solve is repeated.
func (m *ChannelModel) Sensitivity(grad []float64) error {
	ch := m.channel
	n := m.Dim()
	dim := ch.Dim()
	if len(grad) != n {
		return fmt.Errorf("sensitivity: %d entries for %d design values", len(grad), n)
	}
	if m.solves == 0 {
		return errors.New("sensitivity: no forward solve yet")
	}

	x := m.state
	design := append([]float64(nil), ch.Design()...)
	bcs := ch.Problem().BCs
	defer ch.SetDesign(design)

	a := mat.NewDense(dim, dim, nil)
	if err := ch.Jacobian(a, x); err != nil {
		return fmt.Errorf("sensitivity: %w", err)
	}
	for _, bc := range bcs {
		for j := 0; j < dim; j++ {
			a.Set(bc.Index, j, 0)
		}
		a.Set(bc.Index, bc.Index, 1)
	}

	// ∂J/∂x in scaled variables, pressure in units of the inlet pressure.
	scale := make([]float64, dim)
	pin := math.Abs(ch.Params().Pressure())
	for k := range scale {
		scale[k] = 1
		if k < n && pin > 0 {
			scale[k] = pin
		}
	}
	y := make([]float64, dim)
	for k := range y {
		y[k] = x[k] / scale[k]
	}
	xs := make([]float64, dim)
	jx := make([]float64, dim)
	fd.Gradient(jx, func(yy []float64) float64 {
		for k := range yy {
			xs[k] = yy[k] * scale[k]
		}
		return m.objective.Evaluate(ch, xs).Total()
	}, y, &fd.Settings{Formula: fd.Central, Step: stateStep})
	for k := range jx {
		jx[k] /= scale[k]
	}

	// Partials in γ at the fixed state. The channel is not safe for
	// concurrent design changes, so the differences run sequentially.
	var evalErr error
	setDesign := func(g []float64) bool {
		if evalErr != nil {
			return false
		}
		evalErr = ch.SetDesign(g)
		return evalErr == nil
	}
	fg := mat.NewDense(dim, n, nil)
	fd.Jacobian(fg, func(dst, g []float64) {
		if !setDesign(g) {
			return
		}
		if err := ch.Residual(dst, x); err != nil {
			evalErr = err
		}
	}, design, &fd.JacobianSettings{Formula: fd.Central, Step: designStep})
	jg := make([]float64, n)
	fd.Gradient(jg, func(g []float64) float64 {
		if !setDesign(g) {
			return 0
		}
		return m.objective.Evaluate(ch, x).Total()
	}, design, &fd.Settings{Formula: fd.Central, Step: designStep})
	if evalErr != nil {
		return fmt.Errorf("sensitivity: %w", evalErr)
	}
	for _, bc := range bcs {
		for j := 0; j < n; j++ {
			fg.Set(bc.Index, j, 0)
		}
	}

	var lu mat.LU
	lu.Factorize(a)
	lambda := mat.NewVecDense(dim, nil)
	if err := lu.SolveVecTo(lambda, true, mat.NewVecDense(dim, jx)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return fmt.Errorf("adjoint solve: %w", err)
		}
	}

	var dot mat.VecDense
	dot.MulVec(fg.T(), lambda)
	for i := range grad {
		grad[i] = jg[i] - dot.AtVec(i)
	}
	return nil
}
