package topopt

import (
	"github.com/cwbudde/tmixerflow/internal/brinkman"
)

// Objective weighs mixing quality against dissipation:
//
//	J = AmpA ∫(c - Target)² + AmpU ∫ μ mat(γ) |∇u|² + AmpU ∫ alpha(γ) |u|²
type Objective struct {
	Interp    Interpolation
	Viscosity float64
	Target    float64
	AmpA      float64
	AmpU      float64
}

// DefaultObjective returns the reference weights.
func DefaultObjective(interp Interpolation, mu float64) Objective {
	return Objective{
		Interp:    interp,
		Viscosity: mu,
		Target:    0.5,
		AmpA:      1e8,
		AmpU:      1e10,
	}
}

// Terms are the three contributions to J.
type Terms struct {
	Mixing  float64
	Viscous float64
	Porous  float64
}

// Total returns the objective value.
func (t Terms) Total() float64 {
	return t.Mixing + t.Viscous + t.Porous
}

// Evaluate integrates the objective of state x on ch at its current design.
func (o Objective) Evaluate(ch *brinkman.Channel, x []float64) Terms {
	g := ch.Grid()
	gamma := ch.Design()
	c := ch.Concentration(x)
	ux, uy := ch.Velocity(x)
	uxx, uxy := g.Gradient(ux)
	uyx, uyy := g.Gradient(uy)

	n := g.NumNodes()
	mixing := make([]float64, n)
	viscous := make([]float64, n)
	porous := make([]float64, n)
	for k := range mixing {
		dc := c[k] - o.Target
		grad2 := uxx[k]*uxx[k] + uxy[k]*uxy[k] + uyx[k]*uyx[k] + uyy[k]*uyy[k]
		speed2 := ux[k]*ux[k] + uy[k]*uy[k]
		mixing[k] = dc * dc
		viscous[k] = o.Viscosity * Mat(gamma[k]) * grad2
		porous[k] = o.Interp.Alpha(gamma[k]) * speed2
	}
	return Terms{
		Mixing:  o.AmpA * g.Integrate(mixing),
		Viscous: o.AmpU * g.Integrate(viscous),
		Porous:  o.AmpU * g.Integrate(porous),
	}
}
