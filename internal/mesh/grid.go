package mesh

import "fmt"

// Grid is a uniform nodal grid over a rectangle. Node (i, j) sits at
// Min + (i*Hx, j*Hy) and is stored at index j*Nx + i.
type Grid struct {
	Box    Rectangle
	Nx, Ny int
	Hx, Hy float64
}

// NewGrid creates a grid with nx*ny nodes (at least 2 per direction).
func NewGrid(box Rectangle, nx, ny int) (*Grid, error) {
	if nx < 2 || ny < 2 {
		return nil, fmt.Errorf("%w: grid needs at least 2x2 nodes, got %dx%d", ErrInvalidGeometry, nx, ny)
	}
	return &Grid{
		Box: box,
		Nx:  nx,
		Ny:  ny,
		Hx:  box.Width() / float64(nx-1),
		Hy:  box.Height() / float64(ny-1),
	}, nil
}

// NumNodes returns Nx*Ny
func (g *Grid) NumNodes() int {
	return g.Nx * g.Ny
}

// Index maps (i, j) to the flat node index.
func (g *Grid) Index(i, j int) int {
	return j*g.Nx + i
}

// IJ is the inverse of Index.
func (g *Grid) IJ(k int) (int, int) {
	return k % g.Nx, k / g.Nx
}

// Coords returns the position of node k.
func (g *Grid) Coords(k int) Point {
	i, j := g.IJ(k)
	return Point{
		X: g.Box.Min.X + float64(i)*g.Hx,
		Y: g.Box.Min.Y + float64(j)*g.Hy,
	}
}

// OnBoundary reports whether node (i, j) lies on the outer edge.
func (g *Grid) OnBoundary(i, j int) bool {
	return i == 0 || j == 0 || i == g.Nx-1 || j == g.Ny-1
}

// Weights returns the lumped integration weights w_k = ∫φ_k dΩ of the
// bilinear shape functions. Σ w_k equals the box area.
func (g *Grid) Weights() []float64 {
	w := make([]float64, g.NumNodes())
	cell := g.Hx * g.Hy
	for j := 0; j < g.Ny; j++ {
		for i := 0; i < g.Nx; i++ {
			f := 1.0
			if i == 0 || i == g.Nx-1 {
				f *= 0.5
			}
			if j == 0 || j == g.Ny-1 {
				f *= 0.5
			}
			w[g.Index(i, j)] = f * cell
		}
	}
	return w
}

// Gradient returns the nodal derivatives of f, central in the interior and
// one-sided on the edges. Linear fields are differentiated exactly.
func (g *Grid) Gradient(f []float64) (dx, dy []float64) {
	dx = make([]float64, len(f))
	dy = make([]float64, len(f))
	for j := 0; j < g.Ny; j++ {
		for i := 0; i < g.Nx; i++ {
			k := g.Index(i, j)
			il, ir := max(i-1, 0), min(i+1, g.Nx-1)
			jl, jr := max(j-1, 0), min(j+1, g.Ny-1)
			dx[k] = (f[g.Index(ir, j)] - f[g.Index(il, j)]) / (float64(ir-il) * g.Hx)
			dy[k] = (f[g.Index(i, jr)] - f[g.Index(i, jl)]) / (float64(jr-jl) * g.Hy)
		}
	}
	return dx, dy
}

// Integrate returns Σ w_k f_k with the lumped weights.
func (g *Grid) Integrate(f []float64) float64 {
	var s float64
	for k, w := range g.Weights() {
		s += w * f[k]
	}
	return s
}

// Area returns the integrated domain area.
func (g *Grid) Area() float64 {
	return g.Box.Area()
}

// Line is a uniform 1D grid with N nodes over [Z0, Z0+Length].
type Line struct {
	Z0, Length float64
	N          int
	H          float64
}

// NewLine creates a 1D grid.
func NewLine(z0, length float64, n int) (*Line, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: line needs at least 2 nodes, got %d", ErrInvalidGeometry, n)
	}
	if length <= 0 {
		return nil, fmt.Errorf("%w: line length must be positive, got %g", ErrInvalidGeometry, length)
	}
	return &Line{Z0: z0, Length: length, N: n, H: length / float64(n-1)}, nil
}

// Z returns the coordinate of node i.
func (l *Line) Z(i int) float64 {
	return l.Z0 + float64(i)*l.H
}

// Coordinates returns all node coordinates.
func (l *Line) Coordinates() []float64 {
	z := make([]float64, l.N)
	for i := range z {
		z[i] = l.Z(i)
	}
	return z
}
