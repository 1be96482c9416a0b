package param

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknown is returned when a parameter name is not registered in the table.
var ErrUnknown = errors.New("param: unknown parameter")

// Cell is an updatable scalar slot. Residual assemblies hold a *Cell and read it
// on every evaluation, so a Set between solves is seen by the next solve.
type Cell struct {
	name  string
	value float64
}

// Name returns the slot name.
func (c *Cell) Name() string {
	return c.name
}

// Get returns the current value.
func (c *Cell) Get() float64 {
	return c.value
}

// Set assigns a new value.
func (c *Cell) Set(v float64) {
	c.value = v
}

// Table holds the named parameters referenced by a problem's residual.
type Table struct {
	cells map[string]*Cell
}

// NewTable creates an empty parameter table
func NewTable() *Table {
	return &Table{cells: make(map[string]*Cell)}
}

// Define registers a parameter with an initial value and returns its cell.
// Defining an existing name resets its value and returns the same cell.
func (t *Table) Define(name string, initial float64) *Cell {
	if c, ok := t.cells[name]; ok {
		c.value = initial
		return c
	}
	c := &Cell{name: name, value: initial}
	t.cells[name] = c
	return c
}

// Cell looks up a parameter by name.
func (t *Table) Cell(name string) (*Cell, error) {
	c, ok := t.cells[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return c, nil
}

// Set assigns the named parameter.
func (t *Table) Set(name string, v float64) error {
	c, err := t.Cell(name)
	if err != nil {
		return err
	}
	c.Set(v)
	return nil
}

// Get reads the named parameter.
func (t *Table) Get(name string) (float64, error) {
	c, err := t.Cell(name)
	if err != nil {
		return 0, err
	}
	return c.Get(), nil
}

// Names returns the registered names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.cells))
	for n := range t.cells {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Snapshot copies all current values, e.g. for checkpoints.
func (t *Table) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(t.cells))
	for n, c := range t.cells {
		out[n] = c.value
	}
	return out
}
