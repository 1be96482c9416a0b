package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/tmixerflow/internal/brinkman"
	"github.com/cwbudde/tmixerflow/internal/config"
	"github.com/cwbudde/tmixerflow/internal/mesh"
	"github.com/cwbudde/tmixerflow/internal/nonlinear"
	"github.com/cwbudde/tmixerflow/internal/opt"
	"github.com/cwbudde/tmixerflow/internal/sink"
	"github.com/cwbudde/tmixerflow/internal/store"
	"github.com/cwbudde/tmixerflow/internal/topopt"
)

var topoptCmd = &cobra.Command{
	Use:   "topopt",
	Short: "Optimize the porous design of the mixing channel",
	Long: `Solves the Brinkman channel for a wave-shaped starting design, then minimizes
the mixing objective over the design field subject to 0 <= gamma <= 1 and the
mass constraint. The design is appended to the porosity stream after every
objective evaluation; velocity, pressure and concentration scaled by the final
design are written once at the end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg.OutputDir)
		if err != nil {
			return err
		}
		id := runID
		if id == "" {
			id = uuid.NewString()
		}

		start := time.Now()
		res, err := runTopopt(cmd.Context(), cfg, st, id, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Run %s: objective %.6g -> %.6g, mass slack %.3g, %d evaluation(s), %s\n",
			id, res.Initial, res.Final, res.Slack, res.Evaluations, time.Since(start).Round(time.Millisecond))
		fmt.Fprintf(w, "Streams written to %s\n", st.RunDir(id))
		return nil
	},
}

func init() {
	def := config.Default().Topopt
	f := topoptCmd.Flags()
	f.StringVar(&runID, "run-id", "", "Run ID (default: random UUID)")
	f.String("optimizer", def.Optimizer, "Optimizer: lbfgs or mayfly")
	f.Int("iters", def.MaxIterations, "Max optimizer iterations")
	f.Int("pop", def.PopSize, "Mayfly population size")
	f.Int64("seed", def.Seed, "Mayfly random seed")
	f.Float64("max-mass", def.MaxMass, "Upper bound of the area-normalized design mass")
	f.Float64("q", def.Q, "Interpolation penalty q")
	f.Int("nx", def.Channel.Nx, "Channel nodes along x")
	f.Int("ny", def.Channel.Ny, "Channel nodes along y")
	f.Float64("obstacle-radius", def.ObstacleRadius, "Radius of the obstacle closed in the initial design (0 = none)")

	bindFlag(f.Lookup("optimizer"), "topopt.optimizer")
	bindFlag(f.Lookup("iters"), "topopt.max_iterations")
	bindFlag(f.Lookup("pop"), "topopt.pop_size")
	bindFlag(f.Lookup("seed"), "topopt.seed")
	bindFlag(f.Lookup("max-mass"), "topopt.max_mass")
	bindFlag(f.Lookup("q"), "topopt.q")
	bindFlag(f.Lookup("nx"), "topopt.channel.nx")
	bindFlag(f.Lookup("ny"), "topopt.channel.ny")
	bindFlag(f.Lookup("obstacle-radius"), "topopt.obstacle_radius")

	rootCmd.AddCommand(topoptCmd)
}

// newOptimizer returns the configured optimizer adapter.
func newOptimizer(c config.TopoptConfig) (opt.Optimizer, error) {
	switch c.Optimizer {
	case config.OptimizerLBFGS:
		return opt.NewGradient(c.MaxIterations, c.Penalty), nil
	case config.OptimizerMayfly:
		return opt.NewMayfly(c.MaxIterations, c.PopSize, c.Seed, c.Penalty), nil
	default:
		return nil, fmt.Errorf("%w: unknown optimizer %q", config.ErrInvalid, c.Optimizer)
	}
}

func runTopopt(ctx context.Context, cfg config.Config, st *store.FSStore, id string, w io.Writer) (res *topopt.Result, err error) {
	tc := cfg.Topopt
	p := tc.Channel.Params()
	fmt.Fprintf(w, "Reynolds number: %.4g\n", p.Reynolds())
	fmt.Fprintf(w, "Peclet number: %.4g\n", p.Peclet())

	interp := topopt.NewInterpolation(p.Viscosity, tc.Q)
	ch, err := brinkman.NewChannel(p, interp.Alpha)
	if err != nil {
		return nil, err
	}
	solver, err := nonlinear.NewNewton(tc.Solver)
	if err != nil {
		return nil, err
	}
	optimizer, err := newOptimizer(tc)
	if err != nil {
		return nil, err
	}

	objective := topopt.DefaultObjective(interp, p.Viscosity)
	objective.AmpA = tc.AmpA
	objective.AmpU = tc.AmpU

	grid := ch.Grid()
	mass, err := topopt.NewMassConstraint(tc.MaxMass, grid.Weights(), grid.Area())
	if err != nil {
		return nil, err
	}

	streams := append([]string{topopt.PorosityStream}, topopt.FinalStreams...)
	out, err := sink.OpenDir(st.RunDir(id), streams, false)
	if err != nil {
		return nil, err
	}
	defer closeSink(out, &err)

	model := topopt.NewChannelModel(ch, solver, objective)
	d := &topopt.Driver{
		Model:      model,
		Optimizer:  optimizer,
		Constraint: mass,
		Sink:       out,
	}
	design := topopt.WaveDesign(grid, tc.WaveAmplitude, tc.WavePeriods)
	if obstacle, ok := tc.Obstacle(); ok {
		topopt.Carve(grid, design, obstacle)
	}

	slog.Info("Starting topology optimization",
		"run_id", id,
		"optimizer", tc.Optimizer,
		"nodes", len(design),
		"max_mass", tc.MaxMass,
		"output", out.Dir(),
	)
	res, err = d.Run(ctx, design)
	if err != nil {
		return nil, err
	}

	state := model.State()
	for _, tag := range []mesh.Tag{brinkman.TagInlet1, brinkman.TagInlet2, brinkman.TagOutlet} {
		q, err := ch.Flux(state, tag)
		if err != nil {
			return nil, err
		}
		slog.Info("Boundary flux", "tag", int(tag), "flux", q)
	}
	terms := model.Terms()
	slog.Info("Objective terms", "mixing", terms.Mixing, "viscous", terms.Viscous, "porous", terms.Porous, "forward_solves", model.Solves())
	return res, nil
}
