// Package brinkman discretizes pressure-driven Darcy–Brinkman flow with
// species transport in a two-inlet mixing channel. The inverse permeability
// comes from a design field, which is what the topology optimization varies.
package brinkman

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/tmixerflow/internal/mesh"
	"github.com/cwbudde/tmixerflow/internal/nonlinear"
	"github.com/cwbudde/tmixerflow/internal/sink"
)

// ErrInvalidParams is returned for non-physical channel parameters.
var ErrInvalidParams = errors.New("brinkman: invalid parameters")

// Boundary tags.
const (
	TagInterior mesh.Tag = iota
	TagWall
	TagInlet1
	TagInlet2
	TagOutlet
)

// Params are the channel geometry and fluid constants.
type Params struct {
	Length      float64 // x extent L [m]
	Width       float64 // y extent d [m]
	Nx, Ny      int
	Viscosity   float64 // μ [Pa s]
	Density     float64 // ρ [kg/m^3]
	Diffusivity float64 // D [m^2/s]
	// InletVelocity sets the reference flow; it is used for the default
	// inlet pressure and the Reynolds and Péclet numbers.
	InletVelocity float64
	// PermeabilityLength ℓ gives the open-channel resistance μ/ℓ².
	PermeabilityLength float64
	// InletPressure at both inlets; zero selects vin·L·μ/ℓ².
	InletPressure float64
}

// DefaultParams returns the constants of the reference mixer.
func DefaultParams() Params {
	return Params{
		Length:             0.010,
		Width:              0.010,
		Nx:                 11,
		Ny:                 11,
		Viscosity:          8.5e-4,
		Density:            1.0e3,
		Diffusivity:        8.5e-9,
		InletVelocity:      2e-4,
		PermeabilityLength: 0.010,
	}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	switch {
	case p.Length <= 0 || p.Width <= 0:
		return fmt.Errorf("%w: channel size %gx%g", mesh.ErrInvalidGeometry, p.Length, p.Width)
	case p.Viscosity <= 0 || p.Density <= 0 || p.Diffusivity <= 0:
		return fmt.Errorf("%w: viscosity, density and diffusivity must be positive", ErrInvalidParams)
	case p.PermeabilityLength <= 0:
		return fmt.Errorf("%w: permeability length must be positive", ErrInvalidParams)
	case p.InletVelocity <= 0 && p.InletPressure == 0:
		return fmt.Errorf("%w: need an inlet velocity or an inlet pressure", ErrInvalidParams)
	}
	return nil
}

// Pressure returns the inlet pressure in effect.
func (p Params) Pressure() float64 {
	if p.InletPressure != 0 {
		return p.InletPressure
	}
	return p.InletVelocity * p.Length * p.OpenResistance()
}

// OpenResistance is μ/ℓ², the resistance of fully open channel.
func (p Params) OpenResistance() float64 {
	return p.Viscosity / (p.PermeabilityLength * p.PermeabilityLength)
}

// Reynolds returns ρ v d / μ.
func (p Params) Reynolds() float64 {
	return p.Density * p.InletVelocity * p.Width / p.Viscosity
}

// Peclet returns d v / D.
func (p Params) Peclet() float64 {
	return p.Width * p.InletVelocity / p.Diffusivity
}

// Markers returns the boundary markers of the channel in application order.
// The node at y = d/2 on the inlet edge matches both inlets and ends up in
// inlet 2.
func Markers(p Params) []mesh.Marker {
	tol := p.Width * 1e-6
	half := 0.5 * p.Width
	atInlet := func(pt mesh.Point, _ bool) bool { return mesh.Near(pt.X, 0, tol) }
	return []mesh.Marker{
		{Tag: TagWall, Name: "walls", Is: mesh.OnBoundary},
		{Tag: TagInlet1, Name: "inlet_1", Is: mesh.And(atInlet, func(pt mesh.Point, _ bool) bool {
			return pt.Y >= half-tol
		})},
		{Tag: TagInlet2, Name: "inlet_2", Is: mesh.And(atInlet, func(pt mesh.Point, _ bool) bool {
			return pt.Y <= half+tol
		})},
		{Tag: TagOutlet, Name: "outlet", Is: func(pt mesh.Point, _ bool) bool {
			return mesh.Near(pt.X, p.Length, tol) && pt.Y > tol && pt.Y < p.Width-tol
		}},
	}
}

// Channel is the discretized mixer. Unknowns are nodal pressure followed by
// nodal concentration: p_k at k, c_k at n+k.
//
// Velocity is Darcy–Brinkman, u = -∇p / (alpha(γ) + μ/ℓ²), evaluated on the
// faces between neighbors. Each node balances the face fluxes of its control
// volume (∇·u = 0) and the upwinded advective plus diffusive species fluxes.
// Inlets fix p and c, the outlet fixes p = 0 with zero-gradient c, walls are
// no-flux.
type Channel struct {
	params Params
	grid   *mesh.Grid
	tags   []mesh.Tag
	alpha  func(float64) float64
	design []float64
	resist []float64
	bcs    []nonlinear.DirichletBC
	outlet []int
}

// NewChannel creates the channel with alpha mapping design values to inverse
// permeability. The initial design is fully open (γ = 1).
func NewChannel(p Params, alpha func(float64) float64) (*Channel, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if alpha == nil {
		return nil, fmt.Errorf("%w: missing interpolation", ErrInvalidParams)
	}
	box, err := mesh.NewRectangle(mesh.Point{}, mesh.Point{X: p.Length, Y: p.Width})
	if err != nil {
		return nil, err
	}
	grid, err := mesh.NewGrid(box, p.Nx, p.Ny)
	if err != nil {
		return nil, err
	}

	ch := &Channel{
		params: p,
		grid:   grid,
		tags:   grid.Mark(Markers(p)...),
		alpha:  alpha,
		design: make([]float64, grid.NumNodes()),
		resist: make([]float64, grid.NumNodes()),
	}

	n := grid.NumNodes()
	pin := p.Pressure()
	for k, tag := range ch.tags {
		switch tag {
		case TagInlet1:
			ch.bcs = append(ch.bcs, nonlinear.DirichletBC{Index: k, Value: pin}, nonlinear.DirichletBC{Index: n + k, Value: 1})
		case TagInlet2:
			ch.bcs = append(ch.bcs, nonlinear.DirichletBC{Index: k, Value: pin}, nonlinear.DirichletBC{Index: n + k, Value: 0})
		case TagOutlet:
			ch.bcs = append(ch.bcs, nonlinear.DirichletBC{Index: k, Value: 0})
		}
	}

	ch.outlet = mesh.Nodes(ch.tags, TagOutlet)

	open := make([]float64, n)
	for k := range open {
		open[k] = 1
	}
	if err := ch.SetDesign(open); err != nil {
		return nil, err
	}
	return ch, nil
}

// Params returns the channel constants.
func (ch *Channel) Params() Params { return ch.params }

// Grid returns the nodal grid.
func (ch *Channel) Grid() *mesh.Grid { return ch.grid }

// Tags returns the boundary tag of every node.
func (ch *Channel) Tags() []mesh.Tag { return ch.tags }

// Design returns the live design field. Callers must not modify it.
func (ch *Channel) Design() []float64 { return ch.design }

// Alpha returns the inverse permeability at design value rho.
func (ch *Channel) Alpha(rho float64) float64 { return ch.alpha(rho) }

// SetDesign copies gamma into the live design field.
func (ch *Channel) SetDesign(gamma []float64) error {
	if len(gamma) != len(ch.design) {
		return fmt.Errorf("%w: design has %d values, grid has %d nodes", nonlinear.ErrDimension, len(gamma), len(ch.design))
	}
	copy(ch.design, gamma)
	open := ch.params.OpenResistance()
	for k, g := range gamma {
		ch.resist[k] = ch.alpha(g) + open
	}
	return nil
}

// Dim implements nonlinear.System.
func (ch *Channel) Dim() int { return 2 * ch.grid.NumNodes() }

// Pressure returns the pressure block of x.
func (ch *Channel) Pressure(x []float64) []float64 { return x[:ch.grid.NumNodes()] }

// Concentration returns the concentration block of x.
func (ch *Channel) Concentration(x []float64) []float64 { return x[ch.grid.NumNodes():] }

// Problem returns the system with its inlet and outlet conditions.
func (ch *Channel) Problem() nonlinear.Problem {
	return nonlinear.Problem{System: ch, BCs: ch.bcs}
}

// Initialize writes a linear pressure drop and a half-mixed concentration.
func (ch *Channel) Initialize(x []float64) {
	pin := ch.params.Pressure()
	p := ch.Pressure(x)
	c := ch.Concentration(x)
	for k := range p {
		pt := ch.grid.Coords(k)
		p[k] = pin * (1 - pt.X/ch.params.Length)
		c[k] = 0.5
	}
}

// face is the connection between neighbor nodes a and b.
type face struct {
	a, b    int
	kappa   float64 // flux per unit pressure difference
	diffuse float64 // D times face length over spacing
}

func (ch *Channel) faces() []face {
	g := ch.grid
	d := ch.params.Diffusivity
	out := make([]face, 0, 2*g.NumNodes())
	half := func(edge bool) float64 {
		if edge {
			return 0.5
		}
		return 1
	}
	for j := 0; j < g.Ny; j++ {
		for i := 0; i < g.Nx; i++ {
			k := g.Index(i, j)
			if i+1 < g.Nx {
				e := g.Index(i+1, j)
				length := g.Hy * half(j == 0 || j == g.Ny-1)
				r := 0.5 * (ch.resist[k] + ch.resist[e])
				out = append(out, face{a: k, b: e, kappa: length / (g.Hx * r), diffuse: d * length / g.Hx})
			}
			if j+1 < g.Ny {
				nb := g.Index(i, j+1)
				length := g.Hx * half(i == 0 || i == g.Nx-1)
				r := 0.5 * (ch.resist[k] + ch.resist[nb])
				out = append(out, face{a: k, b: nb, kappa: length / (g.Hy * r), diffuse: d * length / g.Hy})
			}
		}
	}
	return out
}

// upstream returns the neighbor an outlet node copies its concentration from.
func (ch *Channel) upstream(k int) int {
	i, j := ch.grid.IJ(k)
	return ch.grid.Index(i-1, j)
}

// Residual implements nonlinear.System. Rows of Dirichlet nodes are left to
// the solver.
func (ch *Channel) Residual(dst, x []float64) error {
	if len(dst) != ch.Dim() || len(x) != ch.Dim() {
		return fmt.Errorf("%w: channel residual needs %d entries", nonlinear.ErrDimension, ch.Dim())
	}
	n := ch.grid.NumNodes()
	p := x[:n]
	c := x[n:]
	for i := range dst {
		dst[i] = 0
	}

	for _, f := range ch.faces() {
		flux := f.kappa * (p[f.a] - p[f.b])
		s := max(flux, 0)*c[f.a] + min(flux, 0)*c[f.b] - f.diffuse*(c[f.b]-c[f.a])
		dst[f.a] += flux
		dst[f.b] -= flux
		dst[n+f.a] += s
		dst[n+f.b] -= s
	}
	for _, k := range ch.outlet {
		dst[n+k] = c[k] - c[ch.upstream(k)]
	}
	return nil
}

// Jacobian implements nonlinear.Jacobian. At zero face flux the upwind
// derivative takes the a side.
func (ch *Channel) Jacobian(dst *mat.Dense, x []float64) error {
	if r, cols := dst.Dims(); r != ch.Dim() || cols != ch.Dim() || len(x) != ch.Dim() {
		return fmt.Errorf("%w: channel jacobian needs %dx%d", nonlinear.ErrDimension, ch.Dim(), ch.Dim())
	}
	n := ch.grid.NumNodes()
	p := x[:n]
	c := x[n:]
	dst.Zero()
	add := func(i, j int, v float64) { dst.Set(i, j, dst.At(i, j)+v) }

	for _, f := range ch.faces() {
		flux := f.kappa * (p[f.a] - p[f.b])
		up := c[f.b]
		if flux >= 0 {
			up = c[f.a]
		}
		dsa := max(flux, 0) + f.diffuse
		dsb := min(flux, 0) - f.diffuse
		dsp := up * f.kappa

		add(f.a, f.a, f.kappa)
		add(f.a, f.b, -f.kappa)
		add(f.b, f.a, -f.kappa)
		add(f.b, f.b, f.kappa)

		add(n+f.a, n+f.a, dsa)
		add(n+f.a, n+f.b, dsb)
		add(n+f.a, f.a, dsp)
		add(n+f.a, f.b, -dsp)
		add(n+f.b, n+f.a, -dsa)
		add(n+f.b, n+f.b, -dsb)
		add(n+f.b, f.a, -dsp)
		add(n+f.b, f.b, dsp)
	}
	for _, k := range ch.outlet {
		row := n + k
		for j := 0; j < 2*n; j++ {
			dst.Set(row, j, 0)
		}
		dst.Set(row, n+k, 1)
		dst.Set(row, n+ch.upstream(k), -1)
	}
	return nil
}

// Velocity returns the nodal Darcy–Brinkman velocity components of x.
func (ch *Channel) Velocity(x []float64) (ux, uy []float64) {
	dpx, dpy := ch.grid.Gradient(ch.Pressure(x))
	for k := range dpx {
		dpx[k] /= -ch.resist[k]
		dpy[k] /= -ch.resist[k]
	}
	return dpx, dpy
}

// Flux returns the net volume flux from the nodes tagged tag into the rest
// of the domain. Inlets give positive values and the outlet a negative one.
func (ch *Channel) Flux(x []float64, tag mesh.Tag) (float64, error) {
	r := make([]float64, ch.Dim())
	if err := ch.Residual(r, x); err != nil {
		return 0, err
	}
	var q float64
	for k, t := range ch.tags {
		if t == tag {
			q += r[k]
		}
	}
	return q, nil
}

// Fields returns velocity, pressure and concentration snapshots of x.
func (ch *Channel) Fields(x []float64, value float64) []sink.Field {
	g := ch.grid
	dims := []int{g.Nx, g.Ny}
	ux, uy := ch.Velocity(x)
	vel := make([]float64, 2*len(ux))
	for k := range ux {
		vel[2*k] = ux[k]
		vel[2*k+1] = uy[k]
	}
	scalar := func(label string, data []float64) sink.Snapshot {
		return sink.Snapshot{Label: label, Value: value, Dims: dims, Components: 1, Data: append([]float64(nil), data...)}
	}
	return []sink.Field{
		{Quantity: "velocity", Snapshot: sink.Snapshot{Label: "velocity", Value: value, Dims: dims, Components: 2, Data: vel}},
		{Quantity: "pressure", Snapshot: scalar("pressure", ch.Pressure(x))},
		{Quantity: "concentration", Snapshot: scalar("concentration", ch.Concentration(x))},
	}
}

// DesignField returns gamma as a porosity snapshot on the channel grid.
func (ch *Channel) DesignField(gamma []float64, value float64) sink.Field {
	g := ch.grid
	return sink.Field{
		Quantity: "porosity",
		Snapshot: sink.Snapshot{
			Label:      "porosity",
			Value:      value,
			Dims:       []int{g.Nx, g.Ny},
			Components: 1,
			Data:       append([]float64(nil), gamma...),
		},
	}
}
