// Package config holds the run configuration of both drivers. Defaults are
// the constants of the reference runs; a config file, environment variables
// (TMIXERFLOW_*) and command-line flags override them through viper.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/cwbudde/tmixerflow/internal/brinkman"
	"github.com/cwbudde/tmixerflow/internal/continuation"
	"github.com/cwbudde/tmixerflow/internal/mesh"
	"github.com/cwbudde/tmixerflow/internal/nonlinear"
	"github.com/cwbudde/tmixerflow/internal/twophase"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid configuration")

// Optimizer choices.
const (
	OptimizerLBFGS  = "lbfgs"
	OptimizerMayfly = "mayfly"
)

// EnvPrefix is the prefix of configuration environment variables.
const EnvPrefix = "TMIXERFLOW"

// Config is the complete run configuration.
type Config struct {
	// OutputDir is the base directory for run folders and checkpoints
	OutputDir    string             `mapstructure:"output_dir"`
	Continuation ContinuationConfig `mapstructure:"continuation"`
	Topopt       TopoptConfig       `mapstructure:"topopt"`
}

// ContinuationConfig configures the gravity ramp on the two-phase column.
type ContinuationConfig struct {
	StartExponent float64           `mapstructure:"start_exponent"`
	ExponentStep  float64           `mapstructure:"exponent_step"`
	Steps         int               `mapstructure:"steps"`
	Column        ColumnConfig      `mapstructure:"column"`
	Solver        nonlinear.Options `mapstructure:"solver"`
}

// ColumnConfig mirrors twophase.Params.
type ColumnConfig struct {
	Height        float64 `mapstructure:"height"`
	Nodes         int     `mapstructure:"nodes"`
	Density1      float64 `mapstructure:"density1"`
	Density2      float64 `mapstructure:"density2"`
	Viscosity1    float64 `mapstructure:"viscosity1"`
	Viscosity2    float64 `mapstructure:"viscosity2"`
	InletVelocity float64 `mapstructure:"inlet_velocity"`
	Diffusivity   float64 `mapstructure:"diffusivity"`
	DragLength    float64 `mapstructure:"drag_length"`
	Fraction      float64 `mapstructure:"fraction"`
	Pressure      float64 `mapstructure:"pressure"`
	MaxVelocity   float64 `mapstructure:"max_velocity"`
	MaxPressure   float64 `mapstructure:"max_pressure"`
}

// TopoptConfig configures the mixer topology optimization.
type TopoptConfig struct {
	Channel       ChannelConfig     `mapstructure:"channel"`
	Solver        nonlinear.Options `mapstructure:"solver"`
	Optimizer     string            `mapstructure:"optimizer"`
	MaxIterations int               `mapstructure:"max_iterations"`
	PopSize       int               `mapstructure:"pop_size"`
	Seed          int64             `mapstructure:"seed"`
	Penalty       float64           `mapstructure:"penalty"`
	MaxMass       float64           `mapstructure:"max_mass"`
	Q             float64           `mapstructure:"q"`
	AmpA          float64           `mapstructure:"amp_a"`
	AmpU          float64           `mapstructure:"amp_u"`
	// Initial design: an open band of the channel width following
	// WaveAmplitude·sin(2π WavePeriods x/L).
	WaveAmplitude float64 `mapstructure:"wave_amplitude"`
	WavePeriods   float64 `mapstructure:"wave_periods"`
	// Optional circular obstacle closed in the initial design; radius 0 disables it.
	ObstacleX      float64 `mapstructure:"obstacle_x"`
	ObstacleY      float64 `mapstructure:"obstacle_y"`
	ObstacleRadius float64 `mapstructure:"obstacle_radius"`
}

// ChannelConfig mirrors brinkman.Params.
type ChannelConfig struct {
	Length             float64 `mapstructure:"length"`
	Width              float64 `mapstructure:"width"`
	Nx                 int     `mapstructure:"nx"`
	Ny                 int     `mapstructure:"ny"`
	Viscosity          float64 `mapstructure:"viscosity"`
	Density            float64 `mapstructure:"density"`
	Diffusivity        float64 `mapstructure:"diffusivity"`
	InletVelocity      float64 `mapstructure:"inlet_velocity"`
	PermeabilityLength float64 `mapstructure:"permeability_length"`
	InletPressure      float64 `mapstructure:"inlet_pressure"`
}

// Default returns the reference configuration.
func Default() Config {
	col := twophase.DefaultParams()
	ch := brinkman.DefaultParams()

	topoSolver := nonlinear.DefaultOptions()
	topoSolver.MaximumIterations = 10
	topoSolver.AbsoluteTolerance = 5e-13
	topoSolver.RelativeTolerance = 5e-14

	return Config{
		OutputDir: "out",
		Continuation: ContinuationConfig{
			StartExponent: -4,
			ExponentStep:  0.1,
			Steps:         40,
			Column: ColumnConfig{
				Height:        col.Height,
				Nodes:         col.Nodes,
				Density1:      col.Density1,
				Density2:      col.Density2,
				Viscosity1:    col.Viscosity1,
				Viscosity2:    col.Viscosity2,
				InletVelocity: col.InletVelocity,
				Diffusivity:   col.Diffusivity,
				DragLength:    col.DragLength,
				Fraction:      col.Fraction,
				Pressure:      col.Pressure,
				MaxVelocity:   col.MaxVelocity,
				MaxPressure:   col.MaxPressure,
			},
			Solver: nonlinear.DefaultOptions(),
		},
		Topopt: TopoptConfig{
			Channel: ChannelConfig{
				Length:             ch.Length,
				Width:              ch.Width,
				Nx:                 ch.Nx,
				Ny:                 ch.Ny,
				Viscosity:          ch.Viscosity,
				Density:            ch.Density,
				Diffusivity:        ch.Diffusivity,
				InletVelocity:      ch.InletVelocity,
				PermeabilityLength: ch.PermeabilityLength,
				InletPressure:      ch.InletPressure,
			},
			Solver:        topoSolver,
			Optimizer:     OptimizerLBFGS,
			MaxIterations: 20,
			PopSize:       20,
			Seed:          42,
			Penalty:       1e3,
			MaxMass:       1.0,
			Q:             0.1,
			AmpA:          1e8,
			AmpU:          1e10,
			WaveAmplitude: 0.5 * ch.Width,
			WavePeriods:   2,
			ObstacleX:     0.25 * ch.Length,
			ObstacleY:     0.5 * ch.Width,
		},
	}
}

// Params returns the column parameters.
func (c ColumnConfig) Params() twophase.Params {
	return twophase.Params{
		Height:        c.Height,
		Nodes:         c.Nodes,
		Density1:      c.Density1,
		Density2:      c.Density2,
		Viscosity1:    c.Viscosity1,
		Viscosity2:    c.Viscosity2,
		InletVelocity: c.InletVelocity,
		Diffusivity:   c.Diffusivity,
		DragLength:    c.DragLength,
		Fraction:      c.Fraction,
		Pressure:      c.Pressure,
		MaxVelocity:   c.MaxVelocity,
		MaxPressure:   c.MaxPressure,
	}
}

// Params returns the channel parameters.
func (c ChannelConfig) Params() brinkman.Params {
	return brinkman.Params{
		Length:             c.Length,
		Width:              c.Width,
		Nx:                 c.Nx,
		Ny:                 c.Ny,
		Viscosity:          c.Viscosity,
		Density:            c.Density,
		Diffusivity:        c.Diffusivity,
		InletVelocity:      c.InletVelocity,
		PermeabilityLength: c.PermeabilityLength,
		InletPressure:      c.InletPressure,
	}
}

// Obstacle returns the configured obstacle and whether it is enabled.
func (c TopoptConfig) Obstacle() (mesh.Circle, bool) {
	circle := mesh.Circle{Center: mesh.Point{X: c.ObstacleX, Y: c.ObstacleY}, Radius: c.ObstacleRadius}
	return circle, c.ObstacleRadius > 0
}

// Sequence returns the gravity ramp 10^(StartExponent + k·ExponentStep).
func (c ContinuationConfig) Sequence() continuation.Sequence {
	return continuation.Geometric(c.StartExponent, c.ExponentStep, c.Steps)
}

// Validate checks every section.
func (c Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output_dir cannot be empty", ErrInvalid)
	}
	if err := c.Continuation.Validate(); err != nil {
		return err
	}
	return c.Topopt.Validate()
}

// Validate checks the continuation section.
func (c ContinuationConfig) Validate() error {
	if c.Steps < 0 {
		return fmt.Errorf("%w: continuation.steps cannot be negative, got %d", ErrInvalid, c.Steps)
	}
	if c.Steps > 1 && c.ExponentStep <= 0 {
		return fmt.Errorf("%w: continuation.exponent_step must be positive, got %g", ErrInvalid, c.ExponentStep)
	}
	if c.Column.Nodes < 3 {
		return fmt.Errorf("%w: continuation.column.nodes must be at least 3, got %d", ErrInvalid, c.Column.Nodes)
	}
	if c.Column.Height <= 0 {
		return fmt.Errorf("%w: continuation.column.height must be positive", ErrInvalid)
	}
	if err := c.Column.Params().Validate(); err != nil {
		return fmt.Errorf("%w: continuation.column: %w", ErrInvalid, err)
	}
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("%w: continuation.solver: %w", ErrInvalid, err)
	}
	return nil
}

// Validate checks the topology optimization section.
func (c TopoptConfig) Validate() error {
	if c.Channel.Nx < 2 || c.Channel.Ny < 2 {
		return fmt.Errorf("%w: topopt.channel needs at least 2x2 nodes, got %dx%d", ErrInvalid, c.Channel.Nx, c.Channel.Ny)
	}
	if err := c.Channel.Params().Validate(); err != nil {
		return fmt.Errorf("%w: topopt.channel: %w", ErrInvalid, err)
	}
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("%w: topopt.solver: %w", ErrInvalid, err)
	}
	switch c.Optimizer {
	case OptimizerLBFGS, OptimizerMayfly:
	default:
		return fmt.Errorf("%w: unknown topopt.optimizer %q", ErrInvalid, c.Optimizer)
	}
	switch {
	case c.MaxIterations <= 0:
		return fmt.Errorf("%w: topopt.max_iterations must be positive, got %d", ErrInvalid, c.MaxIterations)
	case c.Optimizer == OptimizerMayfly && c.PopSize <= 0:
		return fmt.Errorf("%w: topopt.pop_size must be positive, got %d", ErrInvalid, c.PopSize)
	case c.Penalty < 0:
		return fmt.Errorf("%w: topopt.penalty cannot be negative", ErrInvalid)
	case c.MaxMass <= 0:
		return fmt.Errorf("%w: topopt.max_mass must be positive, got %g", ErrInvalid, c.MaxMass)
	case c.Q <= 0:
		return fmt.Errorf("%w: topopt.q must be positive, got %g", ErrInvalid, c.Q)
	case c.AmpA < 0 || c.AmpU < 0:
		return fmt.Errorf("%w: topopt objective weights cannot be negative", ErrInvalid)
	case c.WavePeriods < 0:
		return fmt.Errorf("%w: topopt.wave_periods cannot be negative", ErrInvalid)
	case c.ObstacleRadius < 0:
		return fmt.Errorf("%w: topopt.obstacle_radius cannot be negative", ErrInvalid)
	}
	return nil
}

// SetDefaults registers every key of Default with v, so that Unmarshal sees
// the reference values and environment variables can reach every key.
func SetDefaults(v *viper.Viper) {
	walk("", reflect.ValueOf(Default()), v.SetDefault)
}

// walk calls set for every leaf of a mapstructure-tagged struct with its
// dotted key.
func walk(prefix string, rv reflect.Value, set func(key string, value any)) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		tag := rt.Field(i).Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f := rv.Field(i); f.Kind() == reflect.Struct {
			walk(key, f, set)
		} else {
			set(key, f.Interface())
		}
	}
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile merges a YAML, JSON or TOML file into v.
func ReadFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
