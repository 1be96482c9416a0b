package store

import (
	"fmt"
	"sort"
	"time"
)

// RunConfig holds the continuation settings a checkpoint was produced with.
// This avoids import cycles with the config package.
type RunConfig struct {
	Problem       string  `json:"problem"` // e.g. "twophase-column"
	Nodes         int     `json:"nodes"`
	Steps         int     `json:"steps"`
	StartExponent float64 `json:"startExponent"`
	ExponentStep  float64 `json:"exponentStep"`
	OutputDir     string  `json:"outputDir"`
	// Physics holds the physical constants and solver tolerances by name.
	// Resuming requires the same set when the checkpoint recorded one.
	Physics map[string]float64 `json:"physics,omitempty"`
}

// Checkpoint is the state of a continuation run after a completed step.
//
// Only the converged Solution State and the position in the parameter
// sequence are saved. Solver internals (Jacobians, line-search state) are
// rebuilt on resume; the first solve after a resume starts from the stored
// state exactly as the uninterrupted run would have.
type Checkpoint struct {
	// RunID is the unique identifier of the run
	RunID string `json:"runId"`

	// Step is the index of the last completed step in the parameter sequence
	Step int `json:"step"`

	// Parameter is the name of the ramped parameter, Value its last assigned value
	Parameter string  `json:"parameter"`
	Value     float64 `json:"value"`

	// State is the converged solution vector after Step
	State []float64 `json:"state"`

	// Timestamp records when this checkpoint was created
	Timestamp time.Time `json:"timestamp"`

	// Config is checked against the resuming run
	Config RunConfig `json:"config"`
}

// CheckpointInfo contains metadata about a checkpoint without the state vector.
type CheckpointInfo struct {
	RunID     string    `json:"runId"`
	Step      int       `json:"step"`
	Steps     int       `json:"steps"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Problem   string    `json:"problem"`
}

// NewCheckpoint creates a checkpoint from the driver state.
func NewCheckpoint(runID string, step int, parameter string, value float64, state []float64, config RunConfig) *Checkpoint {
	return &Checkpoint{
		RunID:     runID,
		Step:      step,
		Parameter: parameter,
		Value:     value,
		State:     append([]float64(nil), state...),
		Timestamp: time.Now(),
		Config:    config,
	}
}

// ToInfo converts a full Checkpoint to CheckpointInfo (metadata only).
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		RunID:     c.RunID,
		Step:      c.Step,
		Steps:     c.Config.Steps,
		Value:     c.Value,
		Timestamp: c.Timestamp,
		Problem:   c.Config.Problem,
	}
}

// Done reports whether every step of the sequence has completed.
func (c *Checkpoint) Done() bool {
	return c.Step >= c.Config.Steps-1
}

// Validate checks if the checkpoint has valid data.
func (c *Checkpoint) Validate() error {
	if c.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if c.Parameter == "" {
		return &ValidationError{Field: "Parameter", Reason: "cannot be empty"}
	}
	if len(c.State) == 0 {
		return &ValidationError{Field: "State", Reason: "cannot be empty"}
	}
	if c.Step < 0 {
		return &ValidationError{Field: "Step", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.Problem == "" {
		return &ValidationError{Field: "Config.Problem", Reason: "cannot be empty"}
	}
	if c.Config.Nodes <= 0 {
		return &ValidationError{Field: "Config.Nodes", Reason: "must be positive"}
	}
	if c.Config.Steps <= 0 {
		return &ValidationError{Field: "Config.Steps", Reason: "must be positive"}
	}
	if c.Step >= c.Config.Steps {
		return &ValidationError{
			Field:  "Step",
			Reason: fmt.Sprintf("%d outside sequence of %d steps", c.Step, c.Config.Steps),
		}
	}
	if len(c.State)%c.Config.Nodes != 0 {
		return &ValidationError{
			Field:  "State",
			Reason: fmt.Sprintf("length %d is not a multiple of %d nodes", len(c.State), c.Config.Nodes),
		}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this checkpoint can be resumed with the given config.
func (c *Checkpoint) IsCompatible(config RunConfig) error {
	if c.Config.Problem != config.Problem {
		return &CompatibilityError{Field: "Problem", Expected: c.Config.Problem, Actual: config.Problem}
	}
	if c.Config.Nodes != config.Nodes {
		return &CompatibilityError{
			Field:    "Nodes",
			Expected: fmt.Sprintf("%d", c.Config.Nodes),
			Actual:   fmt.Sprintf("%d", config.Nodes),
		}
	}
	if c.Config.Steps != config.Steps ||
		c.Config.StartExponent != config.StartExponent ||
		c.Config.ExponentStep != config.ExponentStep {
		return &CompatibilityError{
			Field:    "Sequence",
			Expected: fmt.Sprintf("%d steps from 10^%g by %g", c.Config.Steps, c.Config.StartExponent, c.Config.ExponentStep),
			Actual:   fmt.Sprintf("%d steps from 10^%g by %g", config.Steps, config.StartExponent, config.ExponentStep),
		}
	}
	if len(c.Config.Physics) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.Config.Physics)+len(config.Physics))
	for k := range c.Config.Physics {
		keys = append(keys, k)
	}
	for k := range config.Physics {
		if _, ok := c.Config.Physics[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	show := func(m map[string]float64, k string) string {
		if v, ok := m[k]; ok {
			return fmt.Sprintf("%g", v)
		}
		return "unset"
	}
	for _, k := range keys {
		want, ok1 := c.Config.Physics[k]
		got, ok2 := config.Physics[k]
		if ok1 != ok2 || want != got {
			return &CompatibilityError{
				Field:    "Physics." + k,
				Expected: show(c.Config.Physics, k),
				Actual:   show(config.Physics, k),
			}
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
