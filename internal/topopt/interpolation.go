// Package topopt is the penalized topology optimization of the mixer's
// porous design field.
package topopt

// Interpolation is the rational inverse-permeability penalty
//
//	alpha(ρ) = ᾱ + (α̲ - ᾱ) ρ(1+q)/(ρ+q)
//
// between AlphaBar at ρ = 0 (solid) and AlphaUnderbar at ρ = 1 (open).
// Q > 0 controls how strongly intermediate values are pushed to the ends.
type Interpolation struct {
	AlphaBar      float64
	AlphaUnderbar float64
	Q             float64
}

// NewInterpolation derives the extremes from the viscosity:
// ᾱ = 2.5μ/0.01² and α̲ = 2.5μ/100².
func NewInterpolation(mu, q float64) Interpolation {
	return Interpolation{
		AlphaBar:      2.5 * mu / (0.01 * 0.01),
		AlphaUnderbar: 2.5 * mu / (100 * 100),
		Q:             q,
	}
}

// Alpha returns alpha(rho).
func (ip Interpolation) Alpha(rho float64) float64 {
	return ip.AlphaBar + (ip.AlphaUnderbar-ip.AlphaBar)*rho*(1+ip.Q)/(rho+ip.Q)
}

// Derivative returns dalpha/drho = (α̲ - ᾱ)(1+q)q/(ρ+q)².
func (ip Interpolation) Derivative(rho float64) float64 {
	d := rho + ip.Q
	return (ip.AlphaUnderbar - ip.AlphaBar) * (1 + ip.Q) * ip.Q / (d * d)
}

// Mat is the viscous modulation 1e-4 + ρ.
func Mat(rho float64) float64 {
	return 1e-4 + rho
}
