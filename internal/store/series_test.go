package store

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testEntry(label string, value float64) SeriesEntry {
	return SeriesEntry{
		Label:      label,
		Value:      value,
		Timestamp:  time.Now(),
		Dims:       []int{3},
		Components: 1,
		Coords:     []float64{0, 0.5, 1},
		Data:       []float64{0.5, 0.4, 0.3},
	}
}

func writeEntries(t *testing.T, path string, appendMode bool, values ...float64) {
	t.Helper()

	w, err := NewSeriesWriter(path, appendMode)
	if err != nil {
		t.Fatalf("NewSeriesWriter failed: %v", err)
	}
	for _, v := range values {
		if err := w.Write(testEntry("fraction", v)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func readEntries(t *testing.T, path string) []SeriesEntry {
	t.Helper()

	r, err := NewSeriesReader(path)
	if err != nil {
		t.Fatalf("NewSeriesReader failed: %v", err)
	}
	defer r.Close()

	entries, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	return entries
}

func TestSeriesWriter_WriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "r1", "fraction.jsonl")
	writeEntries(t, path, false, 1e-4, 2e-4)

	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Index != i {
			t.Errorf("Entry %d has index %d", i, e.Index)
		}
		if e.Label != "fraction" || e.Components != 1 || len(e.Data) != 3 {
			t.Errorf("Unexpected entry %+v", e)
		}
	}
	if entries[1].Value != 2e-4 {
		t.Errorf("Expected value 2e-4, got %v", entries[1].Value)
	}
}

func TestSeriesWriter_AppendContinuesIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fraction.jsonl")
	writeEntries(t, path, false, 1, 2, 3)
	writeEntries(t, path, true, 4)

	entries := readEntries(t, path)
	if len(entries) != 4 {
		t.Fatalf("Expected 4 entries, got %d", len(entries))
	}
	if entries[3].Index != 3 || entries[3].Value != 4 {
		t.Errorf("Expected appended entry at index 3, got %+v", entries[3])
	}
}

func TestSeriesWriter_TruncatesWithoutAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fraction.jsonl")
	writeEntries(t, path, false, 1, 2)
	writeEntries(t, path, false, 3)

	entries := readEntries(t, path)
	if len(entries) != 1 || entries[0].Index != 0 {
		t.Errorf("Expected a single fresh entry, got %+v", entries)
	}
}

func TestSeriesWriter_Len(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fraction.jsonl")
	writeEntries(t, path, false, 1, 2)

	w, err := NewSeriesWriter(path, true)
	if err != nil {
		t.Fatalf("NewSeriesWriter failed: %v", err)
	}
	defer w.Close()

	if w.Len() != 2 {
		t.Errorf("Expected Len 2, got %d", w.Len())
	}
	if err := w.Write(testEntry("fraction", 3)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if w.Len() != 3 {
		t.Errorf("Expected Len 3, got %d", w.Len())
	}
	if w.Path() != path {
		t.Errorf("Path = %s", w.Path())
	}
}

func TestSeriesReader_Missing(t *testing.T) {
	_, err := NewSeriesReader(filepath.Join(t.TempDir(), "missing.jsonl"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got %v", err)
	}
}

func TestSeriesReader_EOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fraction.jsonl")
	writeEntries(t, path, false, 1)

	r, err := NewSeriesReader(path)
	if err != nil {
		t.Fatalf("NewSeriesReader failed: %v", err)
	}
	defer r.Close()

	if _, err := r.Read(); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if _, err := r.Read(); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestSeriesReader_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	if err := os.WriteFile(path, []byte("{\"index\":0}\nnot json\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	r, err := NewSeriesReader(path)
	if err != nil {
		t.Fatalf("NewSeriesReader failed: %v", err)
	}
	defer r.Close()

	if _, err := r.ReadAll(); err == nil {
		t.Error("Expected error for malformed line")
	}
}
