package opt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sumConstraint is 1 - Σx >= 0.
type sumConstraint struct{}

func (sumConstraint) Value(x []float64) float64 {
	s := 1.0
	for _, v := range x {
		s -= v
	}
	return s
}

func (sumConstraint) Jacobian(dst, _ []float64) {
	for i := range dst {
		dst[i] = -1
	}
}

func shifted(c float64) func(x []float64) (float64, error) {
	return func(x []float64) (float64, error) {
		var s float64
		for _, v := range x {
			s += (v - c) * (v - c)
		}
		return s, nil
	}
}

func TestGradientAdapterRespectsBounds(t *testing.T) {
	a := NewGradient(400, 0)
	p := Problem{Func: shifted(2)}
	p.Lower, p.Upper = uniformBounds(2, 0, 1)

	res, err := a.Minimize(context.Background(), p, []float64{0.3, 0.6})
	require.NoError(t, err)
	for i, v := range res.X {
		assert.InDelta(t, 1.0, v, 1e-3, "control %d", i)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestGradientAdapterAnalyticGradient(t *testing.T) {
	a := NewGradient(400, 0)
	p := Problem{
		Func: shifted(0.25),
		Grad: func(grad, x []float64) error {
			for i, v := range x {
				grad[i] = 2 * (v - 0.25)
			}
			return nil
		},
	}
	p.Lower, p.Upper = uniformBounds(3, 0, 1)

	res, err := a.Minimize(context.Background(), p, []float64{0.9, 0.9, 0.9})
	require.NoError(t, err)
	for _, v := range res.X {
		assert.InDelta(t, 0.25, v, 1e-4)
	}
}

func TestGradientAdapterPenalizesConstraint(t *testing.T) {
	a := NewGradient(400, 100)
	p := Problem{Func: shifted(1), Constraints: []Constraint{sumConstraint{}}}
	p.Lower, p.Upper = uniformBounds(2, 0, 2)

	res, err := a.Minimize(context.Background(), p, []float64{0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.X[0], 1e-2)
	assert.InDelta(t, 0.5, res.X[1], 1e-2)
	assert.Less(t, res.Violation, 1e-2)
}

func TestGradientAdapterPropagatesObjectiveError(t *testing.T) {
	boom := errors.New("forward solve diverged")
	calls := 0
	p := Problem{
		Func: func(x []float64) (float64, error) {
			calls++
			if calls == 3 {
				return 0, boom
			}
			return shifted(0.5)(x)
		},
	}
	p.Lower, p.Upper = uniformBounds(2, 0, 1)

	res, err := NewGradient(100, 0).Minimize(context.Background(), p, []float64{0.2, 0.2})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, res)
	assert.Equal(t, 3, calls)
}

func TestGradientAdapterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Problem{Func: shifted(0.5)}
	p.Lower, p.Upper = uniformBounds(1, 0, 1)

	_, err := NewGradient(10, 0).Minimize(ctx, p, []float64{0.1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGradientAdapterEvaluatesStartOnBound(t *testing.T) {
	var first []float64
	p := Problem{Func: shifted(2)}
	p.Lower, p.Upper = uniformBounds(2, 0, 1)
	p.OnEval = func(x []float64, _ float64) error {
		if first == nil {
			first = append([]float64(nil), x...)
		}
		return nil
	}

	res, err := NewGradient(40, 0).Minimize(context.Background(), p, []float64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, first)
	assert.Equal(t, []float64{1, 1}, res.X)
	assert.InDelta(t, 2.0, res.F, 1e-12)
}
