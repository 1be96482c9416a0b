package twophase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/tmixerflow/internal/nonlinear"
	"github.com/cwbudde/tmixerflow/internal/param"
)

func newTestColumn(t *testing.T, nodes int) *Column {
	t.Helper()
	p := DefaultParams()
	p.Nodes = nodes
	c, err := NewColumn(p, param.NewTable())
	require.NoError(t, err)
	return c
}

func maxAbs(v []float64) float64 {
	var m float64
	for _, x := range v {
		if x < 0 {
			x = -x
		}
		m = max(m, x)
	}
	return m
}

func TestInitialize(t *testing.T) {
	c := newTestColumn(t, 5)
	x := make([]float64, c.Dim())
	c.Initialize(x)

	p := c.Params()
	for i := 0; i < c.Nodes(); i++ {
		assert.Equal(t, 0.5, c.Field(x, FieldFraction)[i])
		assert.Equal(t, p.InletVelocity, c.Field(x, FieldVelocity1)[i])
		assert.Equal(t, p.InletVelocity, c.Field(x, FieldVelocity2)[i])
		assert.Equal(t, 0.1, c.Field(x, FieldPressure1)[i])
		assert.Equal(t, 0.1, c.Field(x, FieldPressure2)[i])
	}
}

func TestZeroGravityUniformStateIsSolution(t *testing.T) {
	c := newTestColumn(t, 9)
	x := make([]float64, c.Dim())
	c.Initialize(x)
	for _, f := range []int{FieldVelocity1, FieldVelocity2} {
		fill(c.Field(x, f), 0)
	}

	r := make([]float64, c.Dim())
	require.NoError(t, c.Residual(r, x))
	assert.Less(t, maxAbs(r), 1e-14)
}

func TestResidualReadsGravityCell(t *testing.T) {
	c := newTestColumn(t, 5)
	x := make([]float64, c.Dim())
	c.Initialize(x)

	r0 := make([]float64, c.Dim())
	require.NoError(t, c.Residual(r0, x))

	c.Gravity().Set(1e-2)
	r1 := make([]float64, c.Dim())
	require.NoError(t, c.Residual(r1, x))

	assert.NotEqual(t, r0, r1)
}

func TestResidualDimension(t *testing.T) {
	c := newTestColumn(t, 5)
	err := c.Residual(make([]float64, 3), make([]float64, c.Dim()))
	assert.ErrorIs(t, err, nonlinear.ErrDimension)
}

func TestNewtonSolvesColumn(t *testing.T) {
	c := newTestColumn(t, 11)
	g := 1e-4
	c.Gravity().Set(g)

	x := make([]float64, c.Dim())
	c.Initialize(x)

	opts := nonlinear.DefaultOptions()
	opts.AbsoluteTolerance = 1e-12
	opts.RelativeTolerance = 1e-14
	solver, err := nonlinear.NewNewton(opts)
	require.NoError(t, err)
	report, err := solver.Solve(context.Background(), c.Nonlinear(), x)
	require.NoError(t, err)
	assert.True(t, report.Converged)

	p := c.Params()
	assert.InDelta(t, p.Fraction, c.MeanFraction(x), 1e-9)

	a := c.Field(x, FieldFraction)
	u1 := c.Field(x, FieldVelocity1)
	u2 := c.Field(x, FieldVelocity2)
	for i := range a {
		// Light phase rises, heavy phase sinks, no net volume flux.
		assert.Greater(t, u1[i], 0.0)
		assert.Less(t, u2[i], 0.0)
		assert.InDelta(t, 0, a[i]*u1[i]+(1-a[i])*u2[i], 1e-11)
	}

	p1 := c.Field(x, FieldPressure1)
	p2 := c.Field(x, FieldPressure2)
	rhoMix := p.Fraction*p.Density1 + (1-p.Fraction)*p.Density2
	assert.InDelta(t, p.Pressure, p1[len(p1)-1], 1e-9)
	assert.InDelta(t, p.Pressure+rhoMix*g*p.Height, p1[0], 1e-6)
	assert.InDelta(t, p1[0], p2[0], 1e-9)
	assert.Greater(t, c.Slip(x), 0.0)
}

func TestProjectNineQuantities(t *testing.T) {
	c := newTestColumn(t, 4)
	x := make([]float64, c.Dim())
	c.Initialize(x)
	c.Field(x, FieldFraction)[1] = 0.25

	fields := c.Project(x, 1e-4)
	require.Len(t, fields, 9)

	byName := map[string][]float64{}
	for _, f := range fields {
		assert.Equal(t, 1e-4, f.Snapshot.Value)
		assert.Equal(t, []int{4}, f.Snapshot.Dims)
		byName[f.Quantity] = f.Snapshot.Data
	}
	vin := c.Params().InletVelocity
	assert.Equal(t, 0.25, byName["volume_fraction"][1])
	assert.InDelta(t, 0.25*vin, byName["velocity_mean1"][1], 1e-18)
	assert.InDelta(t, 0.75*vin, byName["velocity_mean2"][1], 1e-18)
	assert.InDelta(t, 0.75*0.1, byName["pressure_mean2"][1], 1e-15)
	assert.Equal(t, 0.1, byName["pressure_intrinsic1"][1])
}

func TestBounds(t *testing.T) {
	c := newTestColumn(t, 3)
	b := c.Bounds()
	p := c.Params()

	assert.Equal(t, 0.0, c.Field(b.Lower, FieldFraction)[0])
	assert.Equal(t, 1.0, c.Field(b.Upper, FieldFraction)[2])
	assert.Equal(t, -p.MaxVelocity, c.Field(b.Lower, FieldVelocity2)[1])
	assert.Equal(t, p.MaxPressure, c.Field(b.Upper, FieldPressure1)[0])
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	bad := DefaultParams()
	bad.Fraction = 1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidParams)

	bad = DefaultParams()
	bad.DragLength = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidParams)

	bad = DefaultParams()
	bad.Nodes = 1
	_, err := NewColumn(bad, param.NewTable())
	assert.Error(t, err)
}

func TestDrag(t *testing.T) {
	p := DefaultParams()
	want := 1e-3 * 1.1e-3 / (2.1e-3 * 1e-7)
	assert.InDelta(t, want, p.Drag(), 1e-9)
}
