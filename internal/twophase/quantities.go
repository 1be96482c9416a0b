package twophase

import "github.com/cwbudde/tmixerflow/internal/sink"

// Quantity is one tracked projection of the column state.
type Quantity struct {
	Name  string // stream name
	Label string
	eval  func(a, u1, u2, p1, p2 float64) float64
}

// Tracked lists the nine tracked projections in write order. Mean fields
// are weighted by the phase fraction, a for phase 1 and 1-a for phase 2.
var Tracked = []Quantity{
	{"volume_fraction", "Fraction", func(a, _, _, _, _ float64) float64 { return a }},
	{"velocity_intrinsic1", "velocity intrinsic 1", func(_, u1, _, _, _ float64) float64 { return u1 }},
	{"velocity_intrinsic2", "velocity intrinsic 2", func(_, _, u2, _, _ float64) float64 { return u2 }},
	{"pressure_intrinsic1", "pressure intrinsic 1", func(_, _, _, p1, _ float64) float64 { return p1 }},
	{"pressure_intrinsic2", "pressure intrinsic 2", func(_, _, _, _, p2 float64) float64 { return p2 }},
	{"velocity_mean1", "velocity mean 1", func(a, u1, _, _, _ float64) float64 { return a * u1 }},
	{"velocity_mean2", "velocity mean 2", func(a, _, u2, _, _ float64) float64 { return (1 - a) * u2 }},
	{"pressure_mean1", "pressure mean 1", func(a, _, _, p1, _ float64) float64 { return a * p1 }},
	{"pressure_mean2", "pressure mean 2", func(a, _, _, _, p2 float64) float64 { return (1 - a) * p2 }},
}

// QuantityNames returns the stream names of Tracked.
func QuantityNames() []string {
	names := make([]string, len(Tracked))
	for i, q := range Tracked {
		names[i] = q.Name
	}
	return names
}

// Project evaluates every tracked quantity on state. value is the gravity the
// state was solved for.
func (c *Column) Project(state []float64, value float64) []sink.Field {
	a := c.Field(state, FieldFraction)
	u1 := c.Field(state, FieldVelocity1)
	u2 := c.Field(state, FieldVelocity2)
	p1 := c.Field(state, FieldPressure1)
	p2 := c.Field(state, FieldPressure2)

	fields := make([]sink.Field, 0, len(Tracked))
	for _, q := range Tracked {
		data := make([]float64, len(a))
		for i := range data {
			data[i] = q.eval(a[i], u1[i], u2[i], p1[i], p2[i])
		}
		fields = append(fields, sink.Field{
			Quantity: q.Name,
			Snapshot: sink.Snapshot{
				Label:      q.Label,
				Value:      value,
				Dims:       []int{len(a)},
				Components: 1,
				Coords:     c.z,
				Data:       data,
			},
		})
	}
	return fields
}
