package param

import (
	"errors"
	"testing"
)

func TestTableDefineAndSet(t *testing.T) {
	tbl := NewTable()
	g := tbl.Define("gravity", 1e-3)

	if err := tbl.Set("gravity", 0.5); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// The cell handed out earlier must observe the update
	if g.Get() != 0.5 {
		t.Errorf("Expected cell value 0.5, got %g", g.Get())
	}

	v, err := tbl.Get("gravity")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v != 0.5 {
		t.Errorf("Expected 0.5, got %g", v)
	}
}

func TestTableRedefineKeepsCell(t *testing.T) {
	tbl := NewTable()
	a := tbl.Define("q", 0.1)
	b := tbl.Define("q", 0.2)

	if a != b {
		t.Fatal("Redefining a parameter must return the same cell")
	}
	if a.Get() != 0.2 {
		t.Errorf("Expected 0.2 after redefine, got %g", a.Get())
	}
}

func TestTableUnknown(t *testing.T) {
	tbl := NewTable()

	if err := tbl.Set("missing", 1); !errors.Is(err, ErrUnknown) {
		t.Errorf("Expected ErrUnknown, got %v", err)
	}
	if _, err := tbl.Get("missing"); !errors.Is(err, ErrUnknown) {
		t.Errorf("Expected ErrUnknown, got %v", err)
	}
}

func TestTableNamesAndSnapshot(t *testing.T) {
	tbl := NewTable()
	tbl.Define("b", 2)
	tbl.Define("a", 1)

	names := tbl.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Unexpected names: %v", names)
	}

	snap := tbl.Snapshot()
	tbl.Set("a", 10)
	if snap["a"] != 1 {
		t.Errorf("Snapshot must not follow later updates, got %g", snap["a"])
	}
}
