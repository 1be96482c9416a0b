package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/plot/vg"

	"github.com/cwbudde/tmixerflow/internal/plotting"
)

var (
	plotOut       string
	plotSnapshot  int
	plotMaxCurves int
	plotWidth     float64
	plotHeight    float64
	plotExtentX   float64
	plotExtentY   float64
)

var plotCmd = &cobra.Command{
	Use:   "plot [stream.jsonl...]",
	Short: "Render quantity streams to images",
	Long: `Draws column streams as profiles (one curve per gravity value) and channel
streams as a heat map of one snapshot. The output format follows the file
extension of --out (png, svg, pdf); the default is the stream name with .png.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if plotOut != "" && len(args) > 1 {
			return fmt.Errorf("--out needs a single stream, got %d", len(args))
		}
		opts := plotting.DefaultOptions()
		opts.Width = vg.Length(plotWidth) * vg.Inch
		opts.Height = vg.Length(plotHeight) * vg.Inch
		opts.Snapshot = plotSnapshot
		opts.MaxCurves = plotMaxCurves
		opts.ExtentX, opts.ExtentY = plotExtentX, plotExtentY

		for _, path := range args {
			out := plotOut
			if out == "" {
				out = plotPath(path)
			}
			if err := renderStream(path, out, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
		}
		return nil
	},
}

func init() {
	def := plotting.DefaultOptions()
	f := plotCmd.Flags()
	f.StringVar(&plotOut, "out", "", "Output image path")
	f.IntVar(&plotSnapshot, "snapshot", def.Snapshot, "Grid snapshot index, negative counts from the end")
	f.IntVar(&plotMaxCurves, "max-curves", def.MaxCurves, "Profile curves to draw (0 = all)")
	f.Float64Var(&plotWidth, "width", 6, "Image width in inches")
	f.Float64Var(&plotHeight, "height", 4, "Image height in inches")
	f.Float64Var(&plotExtentX, "extent-x", 0, "Physical grid length (0 = node indices)")
	f.Float64Var(&plotExtentY, "extent-y", 0, "Physical grid width (0 = node indices)")
	rootCmd.AddCommand(plotCmd)
}

// plotPath replaces the stream extension with .png.
func plotPath(stream string) string {
	return strings.TrimSuffix(stream, filepath.Ext(stream)) + ".png"
}

func renderStream(path, out string, opts plotting.Options) error {
	p, err := plotting.Render(path, opts)
	if err != nil {
		return fmt.Errorf("failed to plot %s: %w", path, err)
	}
	return plotting.Save(p, out, opts)
}
