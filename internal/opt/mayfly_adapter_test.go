package opt

import (
	"context"
	"errors"
	"math"
	"testing"
)

// Sphere function: f(x) = sum(x_i^2), minimum at origin
func sphere(x []float64) (float64, error) {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum, nil
}

func uniformBounds(dim int, lo, hi float64) ([]float64, []float64) {
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := 0; i < dim; i++ {
		lower[i] = lo
		upper[i] = hi
	}
	return lower, upper
}

func TestMayflyAdapterOnSphere(t *testing.T) {
	optimizer := NewMayfly(100, 20, 42, 0) // maxIters, popSize, seed, penalty

	dim := 3
	lower, upper := uniformBounds(dim, -10, 10)

	res, err := optimizer.Minimize(context.Background(), Problem{Func: sphere, Lower: lower, Upper: upper}, make([]float64, dim))
	if err != nil {
		t.Fatalf("Minimize failed: %v", err)
	}

	if len(res.X) != dim {
		t.Fatalf("Expected %d parameters, got %d", dim, len(res.X))
	}

	// Should converge close to zero
	if res.F > 0.1 {
		t.Errorf("Expected cost near 0, got %f", res.F)
	}

	// Check that best params are near origin
	for i, v := range res.X {
		if math.Abs(v) > 1.0 {
			t.Errorf("Parameter %d = %f, expected near 0", i, v)
		}
	}
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	lower := []float64{-5, -5}
	upper := []float64{5, 5}
	p := Problem{Func: sphere, Lower: lower, Upper: upper}

	// Run twice with same seed (popSize must be >=20 for mayfly v0.1.0)
	res1, err := NewMayfly(50, 20, 123, 0).Minimize(context.Background(), p, []float64{0, 0})
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	res2, err := NewMayfly(50, 20, 123, 0).Minimize(context.Background(), p, []float64{0, 0})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if res1.F != res2.F {
		t.Errorf("Non-deterministic: cost1=%f, cost2=%f", res1.F, res2.F)
	}
}

func TestMayflyAdapterPropagatesObjectiveError(t *testing.T) {
	boom := errors.New("forward solve diverged")
	calls := 0
	p := Problem{
		Func: func(x []float64) (float64, error) {
			calls++
			if calls == 5 {
				return 0, boom
			}
			return sphere(x)
		},
	}
	p.Lower, p.Upper = uniformBounds(2, 0, 1)

	res, err := NewMayfly(10, 20, 1, 0).Minimize(context.Background(), p, []float64{0.5, 0.5})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected objective error, got %v", err)
	}
	if res != nil {
		t.Errorf("Expected no result on failure, got %+v", res)
	}
	if calls != 5 {
		t.Errorf("Objective must not be called after a failure, got %d calls", calls)
	}
}

func TestMayflyAdapterRejectsMixedBounds(t *testing.T) {
	p := Problem{Func: sphere, Lower: []float64{0, 0}, Upper: []float64{1, 2}}

	_, err := NewMayfly(10, 20, 1, 0).Minimize(context.Background(), p, []float64{0, 0})
	if !errors.Is(err, ErrInvalidBounds) {
		t.Errorf("Expected ErrInvalidBounds, got %v", err)
	}
}

func TestProblemDimMismatch(t *testing.T) {
	p := Problem{Func: sphere, Lower: []float64{0}, Upper: []float64{1}}

	if _, err := p.Dim([]float64{0, 0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Expected ErrDimensionMismatch, got %v", err)
	}
}

func TestMayflyAdapterRunsEvalHook(t *testing.T) {
	hooks := 0
	p := Problem{
		Func: sphere,
		OnEval: func(x []float64, f float64) error {
			hooks++
			return nil
		},
	}
	p.Lower, p.Upper = uniformBounds(2, -1, 1)

	res, err := NewMayfly(5, 20, 3, 0).Minimize(context.Background(), p, []float64{0, 0})
	if err != nil {
		t.Fatalf("Minimize failed: %v", err)
	}
	if hooks != res.Evaluations {
		t.Errorf("Expected one hook call per evaluation, got %d hooks for %d evaluations", hooks, res.Evaluations)
	}
}

func TestMayflyAdapterStopsOnHookError(t *testing.T) {
	full := errors.New("disk full")
	calls := 0
	p := Problem{
		Func: func(x []float64) (float64, error) {
			calls++
			return sphere(x)
		},
		OnEval: func(x []float64, f float64) error {
			if calls == 3 {
				return full
			}
			return nil
		},
	}
	p.Lower, p.Upper = uniformBounds(2, -1, 1)

	_, err := NewMayfly(5, 20, 3, 0).Minimize(context.Background(), p, []float64{0, 0})
	if !errors.Is(err, full) {
		t.Fatalf("Expected hook error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Objective must not be called after a hook failure, got %d calls", calls)
	}
}
