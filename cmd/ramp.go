package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/tmixerflow/internal/continuation"
)

var rampCmd = &cobra.Command{
	Use:   "ramp",
	Short: "Print the gravity sequence of the configured continuation",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c := cfg.Continuation
		return printRamp(cmd.OutOrStdout(), c.StartExponent, c.ExponentStep, c.Sequence())
	},
}

func init() {
	rootCmd.AddCommand(rampCmd)
}

func printRamp(out io.Writer, start, step float64, seq continuation.Sequence) error {
	if err := seq.Validate(); err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tEXPONENT\tG")
	for k, g := range seq {
		fmt.Fprintf(w, "%d\t%.2f\t%.6e\n", k, start+float64(k)*step, g)
	}
	return w.Flush()
}
