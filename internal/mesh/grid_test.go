package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRectangleNormalizes(t *testing.T) {
	r, err := NewRectangle(Point{0.05, 0.01}, Point{0, 0})
	require.NoError(t, err)
	assert.Equal(t, Point{0, 0}, r.Min)
	assert.Equal(t, Point{0.05, 0.01}, r.Max)
	assert.InDelta(t, 5e-4, r.Area(), 1e-15)

	_, err = NewRectangle(Point{0, 0}, Point{1, 0})
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestCircleContains(t *testing.T) {
	c := Circle{Center: Point{0.0125, 0.005}, Radius: 0.002}
	assert.True(t, c.Contains(Point{0.0125, 0.006}))
	assert.False(t, c.Contains(Point{0.0125, 0.0075}))
}

func TestGridWeightsSumToArea(t *testing.T) {
	r, err := NewRectangle(Point{0, 0}, Point{0.01, 0.01})
	require.NoError(t, err)
	g, err := NewGrid(r, 5, 7)
	require.NoError(t, err)

	var sum float64
	for _, w := range g.Weights() {
		sum += w
	}
	assert.InDelta(t, r.Area(), sum, 1e-18)
}

func TestGridIndexRoundTrip(t *testing.T) {
	r, _ := NewRectangle(Point{0, 0}, Point{1, 2})
	g, err := NewGrid(r, 3, 4)
	require.NoError(t, err)

	for k := 0; k < g.NumNodes(); k++ {
		i, j := g.IJ(k)
		assert.Equal(t, k, g.Index(i, j))
	}
	last := g.Coords(g.NumNodes() - 1)
	assert.InDelta(t, 1.0, last.X, 1e-12)
	assert.InDelta(t, 2.0, last.Y, 1e-12)
}

func TestGridRejectsTinySizes(t *testing.T) {
	r, _ := NewRectangle(Point{0, 0}, Point{1, 1})
	_, err := NewGrid(r, 1, 4)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestMarkOrderOverrides(t *testing.T) {
	r, _ := NewRectangle(Point{0, 0}, Point{1, 1})
	g, err := NewGrid(r, 3, 3)
	require.NoError(t, err)

	inlet := And(OnBoundary, func(p Point, _ bool) bool { return Near(p.X, 0, 1e-9) })

	tags := g.Mark(
		Marker{Tag: 2, Name: "walls", Is: OnBoundary},
		Marker{Tag: 1, Name: "inlet", Is: inlet},
	)

	assert.Len(t, Nodes(tags, 1), 3)
	assert.Len(t, Nodes(tags, 2), 5)
	assert.Equal(t, Tag(0), tags[g.Index(1, 1)], "interior node stays unmarked")
}

func TestLine(t *testing.T) {
	l, err := NewLine(0, 0.01, 11)
	require.NoError(t, err)
	assert.InDelta(t, 0.001, l.H, 1e-15)
	z := l.Coordinates()
	assert.InDelta(t, 0.01, z[10], 1e-15)

	_, err = NewLine(0, -1, 5)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestGridGradientExactForLinear(t *testing.T) {
	r, err := NewRectangle(Point{0, 0}, Point{0.01, 0.005})
	require.NoError(t, err)
	g, err := NewGrid(r, 6, 4)
	require.NoError(t, err)

	f := make([]float64, g.NumNodes())
	for k := range f {
		p := g.Coords(k)
		f[k] = 3*p.X - 2*p.Y + 1
	}

	dx, dy := g.Gradient(f)
	for k := range f {
		assert.InDelta(t, 3.0, dx[k], 1e-9, "node %d", k)
		assert.InDelta(t, -2.0, dy[k], 1e-9, "node %d", k)
	}
}

func TestGridIntegrate(t *testing.T) {
	r, err := NewRectangle(Point{0, 0}, Point{2, 1})
	require.NoError(t, err)
	g, err := NewGrid(r, 5, 3)
	require.NoError(t, err)

	ones := make([]float64, g.NumNodes())
	for k := range ones {
		ones[k] = 1
	}
	assert.InDelta(t, 2.0, g.Integrate(ones), 1e-12)
}
