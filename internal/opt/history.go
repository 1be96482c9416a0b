package opt

import (
	"log/slog"
	"math"
)

// ConvergenceConfig controls stall detection over a sequence of objective values
type ConvergenceConfig struct {
	// Enabled turns stall detection on
	Enabled bool

	// Patience is the number of consecutive values without significant
	// improvement that counts as a stall
	Patience int

	// Threshold is the minimum relative decrease counted as progress,
	// measured as (reference - value) / |reference|
	Threshold float64
}

// DefaultConvergenceConfig returns patience 3 at 0.1% relative improvement
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  3,
		Threshold: 0.001,
	}
}

// ConvergenceTracker records objective values and reports stalls.
type ConvergenceTracker struct {
	config    ConvergenceConfig
	values    []float64
	best      float64
	bestIndex int
	reference float64 // last value that counted as progress
	stale     int
}

// NewConvergenceTracker creates an empty tracker
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:    config,
		best:      math.Inf(1),
		bestIndex: -1,
		reference: math.Inf(1),
	}
}

// Update records v and returns true once the patience is exhausted.
// Non-finite values are recorded but never count as progress.
func (c *ConvergenceTracker) Update(v float64) bool {
	c.values = append(c.values, v)
	if v < c.best {
		c.best = v
		c.bestIndex = len(c.values) - 1
	}

	if !c.config.Enabled {
		return false
	}

	if len(c.values) == 1 || math.IsInf(c.reference, 1) {
		if !math.IsInf(v, 0) && !math.IsNaN(v) {
			c.reference = v
		}
		return false
	}

	scale := math.Abs(c.reference)
	if scale == 0 {
		scale = 1
	}
	improvement := (c.reference - v) / scale

	if improvement >= c.config.Threshold {
		c.reference = v
		c.stale = 0
		return false
	}

	c.stale++
	slog.Debug("No significant improvement",
		"value", v,
		"reference", c.reference,
		"relative_improvement", improvement,
		"stale_count", c.stale,
		"patience", c.config.Patience,
	)
	return c.stale >= c.config.Patience
}

// Best returns the lowest value seen and its position, or (+Inf, -1).
func (c *ConvergenceTracker) Best() (float64, int) {
	return c.best, c.bestIndex
}

// Len returns the number of recorded values
func (c *ConvergenceTracker) Len() int {
	return len(c.values)
}

// History returns a copy of all recorded values
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.values...)
}

// StaleCount returns the current number of values without improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.stale
}
