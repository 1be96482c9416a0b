package topopt

import (
	"math"

	"github.com/cwbudde/tmixerflow/internal/mesh"
)

// WaveDesign seeds a sinusoidal open band: γ = 1 where
// A sin(2πN x/L) < y < A sin(2πN x/L) + d, else 0.
func WaveDesign(g *mesh.Grid, amplitude float64, periods float64) []float64 {
	length := g.Box.Width()
	width := g.Box.Height()
	gamma := make([]float64, g.NumNodes())
	for k := range gamma {
		p := g.Coords(k)
		x := p.X - g.Box.Min.X
		y := p.Y - g.Box.Min.Y
		lo := amplitude * math.Sin(2*math.Pi*periods*x/length)
		if y > lo && y < lo+width {
			gamma[k] = 1
		}
	}
	return gamma
}

// Uniform returns a design of n copies of v.
func Uniform(n int, v float64) []float64 {
	gamma := make([]float64, n)
	for k := range gamma {
		gamma[k] = v
	}
	return gamma
}

// Carve closes every node of gamma inside the obstacle.
func Carve(g *mesh.Grid, gamma []float64, obstacle mesh.Circle) {
	for k := range gamma {
		if obstacle.Contains(g.Coords(k)) {
			gamma[k] = 0
		}
	}
}
