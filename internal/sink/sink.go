// Package sink persists labeled field snapshots, one append-only stream per
// named quantity.
package sink

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cwbudde/tmixerflow/internal/store"
)

// ErrUnknownQuantity is returned when writing to a stream that was not opened.
var ErrUnknownQuantity = errors.New("sink: unknown quantity")

// Snapshot is one labeled nodal field.
type Snapshot struct {
	Label string
	// Value is the driver parameter at write time
	Value      float64
	Dims       []int
	Components int
	Coords     []float64
	Data       []float64
}

// Scaled returns a copy of s with every node multiplied by weight[node].
func (s Snapshot) Scaled(weight []float64) Snapshot {
	out := s
	out.Data = make([]float64, len(s.Data))
	comps := max(1, s.Components)
	for i, v := range s.Data {
		out.Data[i] = v * weight[i/comps]
	}
	return out
}

// Field pairs a snapshot with the quantity stream it belongs to.
type Field struct {
	Quantity string
	Snapshot Snapshot
}

// Sink receives snapshots by quantity name.
type Sink interface {
	Write(quantity string, s Snapshot) error
	Close() error
}

// Flusher is implemented by sinks that buffer writes.
type Flusher interface {
	Flush() error
}

// Flush makes every write to s durable if s buffers.
func Flush(s Sink) error {
	if f, ok := s.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// WriteAll writes fields in order and stops at the first failure.
func WriteAll(s Sink, fields []Field) error {
	for _, f := range fields {
		if err := s.Write(f.Quantity, f.Snapshot); err != nil {
			return err
		}
	}
	return nil
}

// FileName maps a quantity to its stream file, "velocity mean 1" -> "velocity_mean_1.jsonl".
func FileName(quantity string) string {
	return strings.ReplaceAll(strings.TrimSpace(quantity), " ", "_") + ".jsonl"
}

// DirSink writes each quantity to <dir>/<quantity>.jsonl.
type DirSink struct {
	dir     string
	streams map[string]*store.SeriesWriter
}

// OpenDir opens one stream per quantity. With appendMode the streams continue
// existing files, which is how a resumed run keeps its history.
func OpenDir(dir string, quantities []string, appendMode bool) (*DirSink, error) {
	d := &DirSink{dir: dir, streams: make(map[string]*store.SeriesWriter, len(quantities))}
	for _, q := range quantities {
		if _, dup := d.streams[q]; dup {
			d.Close()
			return nil, fmt.Errorf("sink: quantity %q opened twice", q)
		}
		w, err := store.NewSeriesWriter(filepath.Join(dir, FileName(q)), appendMode)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to open stream %q: %w", q, err)
		}
		d.streams[q] = w
	}
	slog.Debug("Opened output streams", "dir", dir, "count", len(quantities), "append", appendMode)
	return d, nil
}

// Write appends the snapshot to the quantity's stream.
func (d *DirSink) Write(quantity string, s Snapshot) error {
	w, ok := d.streams[quantity]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownQuantity, quantity)
	}
	entry := store.SeriesEntry{
		Label:      s.Label,
		Value:      s.Value,
		Timestamp:  time.Now(),
		Dims:       s.Dims,
		Components: s.Components,
		Coords:     s.Coords,
		Data:       s.Data,
	}
	if err := w.Write(entry); err != nil {
		return fmt.Errorf("stream %q: %w", quantity, err)
	}
	return nil
}

// Flush syncs every stream. Drivers call it before saving a checkpoint.
func (d *DirSink) Flush() error {
	var errs []error
	for _, q := range d.Quantities() {
		if err := d.streams[q].Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every stream.
func (d *DirSink) Close() error {
	var errs []error
	for q, w := range d.streams {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stream %q: %w", q, err))
		}
		delete(d.streams, q)
	}
	return errors.Join(errs...)
}

// Dir returns the output directory.
func (d *DirSink) Dir() string {
	return d.dir
}

// Quantities returns the open stream names in sorted order.
func (d *DirSink) Quantities() []string {
	names := make([]string, 0, len(d.streams))
	for q := range d.streams {
		names = append(names, q)
	}
	sort.Strings(names)
	return names
}
