package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/tmixerflow/internal/config"
	"github.com/cwbudde/tmixerflow/internal/continuation"
	"github.com/cwbudde/tmixerflow/internal/sink"
	"github.com/cwbudde/tmixerflow/internal/store"
	"github.com/cwbudde/tmixerflow/internal/twophase"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Resume a continuation run from its checkpoint",
	Long: `Loads the checkpoint of a continuation run and solves the remaining gravity
values, appending to the run's streams. The configuration must describe the
same problem, node count and gravity sequence as the interrupted run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg.OutputDir)
		if err != nil {
			return err
		}

		start := time.Now()
		res, err := resumeContinuation(cmd.Context(), cfg, st, args[0])
		if err != nil {
			return err
		}
		printContinuation(cmd.OutOrStdout(), args[0], st.RunDir(args[0]), res, time.Since(start))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func resumeContinuation(ctx context.Context, cfg config.Config, st *store.FSStore, id string) (res *continuation.Result, err error) {
	cp, err := st.LoadCheckpoint(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := cp.IsCompatible(continuationRun(cfg)); err != nil {
		return nil, err
	}
	if cp.Done() {
		slog.Info("Run already complete", "run_id", id, "step", cp.Step)
		return &continuation.Result{State: cp.State, Value: cp.Value}, nil
	}

	out, err := sink.OpenDir(st.RunDir(id), twophase.QuantityNames(), true)
	if err != nil {
		return nil, err
	}
	defer closeSink(out, &err)

	d, col, err := newColumnDriver(cfg, st, id, out)
	if err != nil {
		return nil, err
	}
	res, err = d.Resume(ctx, cfg.Continuation.Sequence(), cp)
	if err != nil {
		return nil, err
	}
	logColumn(col, res)
	return res, nil
}
