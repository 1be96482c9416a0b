// Package plotting renders stored quantity streams to images with gonum/plot.
// Line streams become profile plots with one curve per snapshot, grid
// streams become heat maps of a single snapshot.
package plotting

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/cwbudde/tmixerflow/internal/store"
)

// ErrNoData is returned for an empty stream or snapshot.
var ErrNoData = errors.New("plotting: no data")

// ErrLayout is returned when a snapshot's Dims do not fit the requested plot.
var ErrLayout = errors.New("plotting: unsupported layout")

// Options controls rendering.
type Options struct {
	Width, Height vg.Length
	// MaxCurves limits profile plots to evenly spaced snapshots; 0 plots all
	MaxCurves int
	// Snapshot selects the grid snapshot; negative counts from the end
	Snapshot int
	// Extent is the physical size of a grid; zero uses node indices
	ExtentX, ExtentY float64
}

// DefaultOptions returns 6x4 inch plots of up to 8 curves and the last snapshot.
func DefaultOptions() Options {
	return Options{
		Width:     6 * vg.Inch,
		Height:    4 * vg.Inch,
		MaxCurves: 8,
		Snapshot:  -1,
	}
}

// Profile plots line snapshots against their coordinates.
func Profile(entries []store.SeriesEntry, opts Options) (*plot.Plot, error) {
	if len(entries) == 0 {
		return nil, ErrNoData
	}

	p := plot.New()
	p.Title.Text = entries[0].Label
	p.X.Label.Text = "z"
	p.Y.Label.Text = entries[0].Label
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	picked := pick(len(entries), opts.MaxCurves)
	for n, idx := range picked {
		e := entries[idx]
		if len(e.Dims) != 1 || e.Components > 1 {
			return nil, fmt.Errorf("%w: profile needs scalar line data, entry %d has dims %v", ErrLayout, e.Index, e.Dims)
		}
		pts := make(plotter.XYs, len(e.Data))
		for i, v := range e.Data {
			pts[i].X = float64(i)
			if len(e.Coords) == len(e.Data) {
				pts[i].X = e.Coords[i]
			}
			pts[i].Y = v
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to build profile line: %w", err)
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = curveColor(n, len(picked))
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%.3g", e.Value), line)
	}
	return p, nil
}

// pick returns up to limit evenly spaced indices of n, always including the last.
func pick(n, limit int) []int {
	if limit <= 0 || n <= limit {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := make([]int, 0, limit)
	for k := 0; k < limit; k++ {
		idx = append(idx, int(math.Round(float64(k)*float64(n-1)/float64(limit-1))))
	}
	return idx
}

func curveColor(k, n int) color.Color {
	colors := palette.Heat(max(n, 2), 1).Colors()
	return colors[k]
}

// grid adapts a snapshot to plotter.GridXYZ. Vector data is shown by magnitude.
type grid struct {
	nx, ny     int
	comps      int
	dx, dy     float64
	data       []float64
	minV, maxV float64
}

func newGrid(e store.SeriesEntry, opts Options) (*grid, error) {
	if len(e.Dims) != 2 {
		return nil, fmt.Errorf("%w: heat map needs grid data, got dims %v", ErrLayout, e.Dims)
	}
	g := &grid{nx: e.Dims[0], ny: e.Dims[1], comps: max(1, e.Components), dx: 1, dy: 1, data: e.Data}
	if g.nx < 2 || g.ny < 2 {
		return nil, fmt.Errorf("%w: heat map needs at least 2x2 nodes, got %dx%d", ErrLayout, g.nx, g.ny)
	}
	if len(e.Data) != g.nx*g.ny*g.comps {
		return nil, fmt.Errorf("%w: %d values for %dx%d nodes of %d components", ErrLayout, len(e.Data), g.nx, g.ny, g.comps)
	}
	if opts.ExtentX > 0 && opts.ExtentY > 0 {
		g.dx = opts.ExtentX / float64(g.nx-1)
		g.dy = opts.ExtentY / float64(g.ny-1)
	}
	g.minV, g.maxV = math.Inf(1), math.Inf(-1)
	for j := 0; j < g.ny; j++ {
		for i := 0; i < g.nx; i++ {
			v := g.Z(i, j)
			g.minV = math.Min(g.minV, v)
			g.maxV = math.Max(g.maxV, v)
		}
	}
	return g, nil
}

func (g *grid) Dims() (c, r int) { return g.nx, g.ny }
func (g *grid) X(c int) float64  { return float64(c) * g.dx }
func (g *grid) Y(r int) float64  { return float64(r) * g.dy }

// Z returns the node value, or the vector magnitude for multi-component data.
func (g *grid) Z(c, r int) float64 {
	k := (r*g.nx + c) * g.comps
	if g.comps == 1 {
		return g.data[k]
	}
	var s float64
	for _, v := range g.data[k : k+g.comps] {
		s += v * v
	}
	return math.Sqrt(s)
}

// HeatMap renders one grid snapshot of entries selected by opts.Snapshot.
func HeatMap(entries []store.SeriesEntry, opts Options) (*plot.Plot, error) {
	if len(entries) == 0 {
		return nil, ErrNoData
	}
	idx := opts.Snapshot
	if idx < 0 {
		idx += len(entries)
	}
	if idx < 0 || idx >= len(entries) {
		return nil, fmt.Errorf("%w: snapshot %d of %d", ErrNoData, opts.Snapshot, len(entries))
	}
	e := entries[idx]

	g, err := newGrid(e, opts)
	if err != nil {
		return nil, err
	}

	pal := palette.Heat(12, 1)
	hm := plotter.NewHeatMap(g, pal)
	if g.maxV == g.minV {
		// A constant field needs a non-empty range.
		hm.Min, hm.Max = g.minV-0.5, g.maxV+0.5
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (%.3g)", e.Label, e.Value)
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	p.Add(hm)
	return p, nil
}

// Render reads the stream at path and draws it: 1D streams as profiles,
// 2D streams as a heat map.
func Render(path string, opts Options) (*plot.Plot, error) {
	reader, err := store.NewSeriesReader(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, path)
	}

	switch len(entries[0].Dims) {
	case 1:
		return Profile(entries, opts)
	case 2:
		return HeatMap(entries, opts)
	default:
		return nil, fmt.Errorf("%w: dims %v", ErrLayout, entries[0].Dims)
	}
}

// Save writes p to path; the extension selects the format (png, svg, pdf).
func Save(p *plot.Plot, path string, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create plot directory: %w", err)
	}
	if err := p.Save(opts.Width, opts.Height, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", filepath.Base(path), err)
	}
	return nil
}
