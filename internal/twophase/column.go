// Package twophase is a steady vertical drift column of two interpenetrating
// phases. It is the problem the gravity continuation runs on: at small gravity
// the phases barely separate, and each step warm-starts the next.
package twophase

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate"

	"github.com/cwbudde/tmixerflow/internal/mesh"
	"github.com/cwbudde/tmixerflow/internal/nonlinear"
	"github.com/cwbudde/tmixerflow/internal/param"
)

// ErrInvalidParams is returned for non-physical material parameters.
var ErrInvalidParams = errors.New("twophase: invalid parameters")

// GravityParam is the parameter table name the column reads gravity from.
const GravityParam = "g"

// Unknown fields, stored block-wise: field f of node i is at f*N + i.
const (
	FieldFraction = iota
	FieldVelocity1
	FieldVelocity2
	FieldPressure1
	FieldPressure2
	NumFields
)

// Params are the physical constants of the column.
type Params struct {
	Height        float64 // column height [m]
	Nodes         int
	Density1      float64 // light phase [kg/m^3]
	Density2      float64 // heavy phase [kg/m^3]
	Viscosity1    float64 // [Pa s]
	Viscosity2    float64
	InletVelocity float64 // initial velocity of both phases [m/s]
	Diffusivity   float64 // fraction dispersion [m^2/s]
	DragLength    float64 // interfacial length scale δ [m]
	Fraction      float64 // mean light-phase fraction a0
	Pressure      float64 // gauge pressure at the top, also the initial pressure
	MaxVelocity   float64 // velocity bound
	MaxPressure   float64 // pressure bound
}

// DefaultParams returns the constants of the reference two-phase run.
func DefaultParams() Params {
	return Params{
		Height:        0.010,
		Nodes:         51,
		Density1:      1.0e3,
		Density2:      1.2e3,
		Viscosity1:    1.0e-3,
		Viscosity2:    1.1e-3,
		InletVelocity: 1.0e-3,
		Diffusivity:   1.0e-3,
		DragLength:    1e-7,
		Fraction:      0.5,
		Pressure:      1e-1,
		MaxVelocity:   1.0e-2,
		MaxPressure:   1.0e5,
	}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	switch {
	case p.Density1 <= 0 || p.Density2 <= 0:
		return fmt.Errorf("%w: densities must be positive", ErrInvalidParams)
	case p.Viscosity1 <= 0 || p.Viscosity2 <= 0:
		return fmt.Errorf("%w: viscosities must be positive", ErrInvalidParams)
	case p.Diffusivity <= 0:
		return fmt.Errorf("%w: diffusivity must be positive", ErrInvalidParams)
	case p.DragLength <= 0:
		return fmt.Errorf("%w: drag length must be positive", ErrInvalidParams)
	case p.Fraction <= 0 || p.Fraction >= 1:
		return fmt.Errorf("%w: mean fraction %g outside (0,1)", ErrInvalidParams, p.Fraction)
	case p.MaxVelocity <= 0 || p.MaxPressure <= 0:
		return fmt.Errorf("%w: bounds must be positive", ErrInvalidParams)
	case p.InletVelocity < -p.MaxVelocity || p.InletVelocity > p.MaxVelocity:
		return fmt.Errorf("%w: inlet velocity %g outside velocity bound", ErrInvalidParams, p.InletVelocity)
	}
	return nil
}

// Drag returns the interfacial drag coefficient K = μ1μ2/((μ1+μ2)δ).
func (p Params) Drag() float64 {
	return p.Viscosity1 * p.Viscosity2 / ((p.Viscosity1 + p.Viscosity2) * p.DragLength)
}

// Column is the discretized drift column.
//
// Equations per node, with z pointing up and gravity pulling down:
//
//	D da/dz = a u1                 (N-1 midpoints, no net light-phase flux)
//	∫a dz = a0 H                    (fixes the amount of light phase)
//	K (u1 - u2) = a (1-a) g (ρ2-ρ1) (drag balances buoyancy)
//	a u1 + (1-a) u2 = 0             (no net volume flux)
//	dp1/dz + (a ρ1 + (1-a) ρ2) g = 0, p1(H) = p0
//	p2 = p1
type Column struct {
	params  Params
	line    *mesh.Line
	gravity *param.Cell
	drag    float64
	z       []float64
}

// NewColumn creates the column and registers the gravity cell in params.
func NewColumn(p Params, params *param.Table) (*Column, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	line, err := mesh.NewLine(0, p.Height, p.Nodes)
	if err != nil {
		return nil, err
	}
	return &Column{
		params:  p,
		line:    line,
		gravity: params.Define(GravityParam, 0),
		drag:    p.Drag(),
		z:       line.Coordinates(),
	}, nil
}

// Params returns the column constants.
func (c *Column) Params() Params { return c.params }

// Line returns the vertical grid.
func (c *Column) Line() *mesh.Line { return c.line }

// Gravity returns the live gravity cell.
func (c *Column) Gravity() *param.Cell { return c.gravity }

// Nodes returns the number of grid nodes.
func (c *Column) Nodes() int { return c.line.N }

// Dim implements nonlinear.System.
func (c *Column) Dim() int { return NumFields * c.line.N }

// Field returns the slice of state holding field f.
func (c *Column) Field(state []float64, f int) []float64 {
	n := c.line.N
	return state[f*n : (f+1)*n]
}

// Initialize writes the initial assignment: uniform fraction, the inlet
// velocity in both phases and uniform low pressure.
func (c *Column) Initialize(state []float64) {
	fill(c.Field(state, FieldFraction), c.params.Fraction)
	fill(c.Field(state, FieldVelocity1), c.params.InletVelocity)
	fill(c.Field(state, FieldVelocity2), c.params.InletVelocity)
	fill(c.Field(state, FieldPressure1), c.params.Pressure)
	fill(c.Field(state, FieldPressure2), c.params.Pressure)
}

func fill(dst []float64, v float64) {
	for i := range dst {
		dst[i] = v
	}
}

// Residual implements nonlinear.System. Gravity is read from the parameter
// cell on every call.
func (c *Column) Residual(dst, x []float64) error {
	if len(dst) != c.Dim() || len(x) != c.Dim() {
		return fmt.Errorf("%w: column residual needs %d entries", nonlinear.ErrDimension, c.Dim())
	}
	n := c.line.N
	h := c.line.H
	g := c.gravity.Get()
	p := c.params
	buoyancy := g * (p.Density2 - p.Density1)

	a := c.Field(x, FieldFraction)
	u1 := c.Field(x, FieldVelocity1)
	u2 := c.Field(x, FieldVelocity2)
	p1 := c.Field(x, FieldPressure1)
	p2 := c.Field(x, FieldPressure2)

	ra := c.Field(dst, FieldFraction)
	rdrag := c.Field(dst, FieldVelocity1)
	rflux := c.Field(dst, FieldVelocity2)
	rp1 := c.Field(dst, FieldPressure1)
	rp2 := c.Field(dst, FieldPressure2)

	for i := 0; i < n-1; i++ {
		flux := 0.5 * (a[i]*u1[i] + a[i+1]*u1[i+1])
		ra[i] = p.Diffusivity*(a[i+1]-a[i])/h - flux

		am := 0.5 * (a[i] + a[i+1])
		rho := am*p.Density1 + (1-am)*p.Density2
		rp1[i] = (p1[i+1]-p1[i])/h + rho*g
	}
	ra[n-1] = integrate.Trapezoidal(c.z, a) - p.Fraction*p.Height
	rp1[n-1] = p1[n-1] - p.Pressure

	for i := 0; i < n; i++ {
		rdrag[i] = c.drag*(u1[i]-u2[i]) - a[i]*(1-a[i])*buoyancy
		rflux[i] = a[i]*u1[i] + (1-a[i])*u2[i]
		rp2[i] = p2[i] - p1[i]
	}
	return nil
}

// Bounds returns the box the solver projects iterates onto.
func (c *Column) Bounds() *nonlinear.Bounds {
	dim := c.Dim()
	lo := make([]float64, dim)
	hi := make([]float64, dim)
	fill(c.Field(lo, FieldFraction), 0)
	fill(c.Field(hi, FieldFraction), 1)
	for _, f := range []int{FieldVelocity1, FieldVelocity2} {
		fill(c.Field(lo, f), -c.params.MaxVelocity)
		fill(c.Field(hi, f), c.params.MaxVelocity)
	}
	for _, f := range []int{FieldPressure1, FieldPressure2} {
		fill(c.Field(lo, f), -c.params.MaxPressure)
		fill(c.Field(hi, f), c.params.MaxPressure)
	}
	return &nonlinear.Bounds{Lower: lo, Upper: hi}
}

// Nonlinear returns the problem handed to the solver at each step.
func (c *Column) Nonlinear() nonlinear.Problem {
	return nonlinear.Problem{System: c, Bounds: c.Bounds()}
}

// MeanFraction returns (1/H)∫a dz.
func (c *Column) MeanFraction(state []float64) float64 {
	return integrate.Trapezoidal(c.z, c.Field(state, FieldFraction)) / c.params.Height
}

// Slip returns the largest |u1 - u2| over the column.
func (c *Column) Slip(state []float64) float64 {
	u1 := c.Field(state, FieldVelocity1)
	u2 := c.Field(state, FieldVelocity2)
	var s float64
	for i := range u1 {
		s = max(s, math.Abs(u1[i]-u2[i]))
	}
	return s
}
