package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SeriesEntry is one labeled field snapshot in a quantity stream.
// Each entry is serialized as one JSON line.
type SeriesEntry struct {
	// Index is the position of the snapshot in its stream
	Index int `json:"index"`

	// Label names the quantity, e.g. "velocity mean 1"
	Label string `json:"label"`

	// Value is the driver parameter at write time (gravity, evaluation count)
	Value float64 `json:"value"`

	Timestamp time.Time `json:"timestamp"`

	// Dims is the nodal layout of Data ([n] for a line, [nx, ny] for a grid)
	Dims []int `json:"dims"`

	// Components is the number of values per node (1 scalar, 2 vector)
	Components int `json:"components"`

	// Coords holds the node coordinates of the first dimension when known
	Coords []float64 `json:"coords,omitempty"`

	Data []float64 `json:"data"`
}

// SeriesWriter appends entries to a JSONL file.
// It uses buffered I/O and is safe for concurrent use.
type SeriesWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
	next   int
}

// NewSeriesWriter opens the stream at path, creating parent directories.
// If append is true, new entries are appended to an existing file.
func NewSeriesWriter(path string, append bool) (*SeriesWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create series directory: %w", err)
	}

	next := 0
	var file *os.File
	var err error
	if append {
		if next, err = countLines(path); err != nil {
			return nil, err
		}
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open series file: %w", err)
	}

	return &SeriesWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
		next:   next,
	}, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("failed to open series file: %w", err)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		n++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan series file: %w", err)
	}
	return n, nil
}

// Write assigns the next index to entry and appends it.
func (sw *SeriesWriter) Write(entry SeriesEntry) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	entry.Index = sw.next
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal series entry: %w", err)
	}
	if _, err := sw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write series entry: %w", err)
	}
	if err := sw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	sw.next++
	return nil
}

// Len returns the number of entries in the stream, including pre-existing ones.
func (sw *SeriesWriter) Len() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.next
}

// Flush writes buffered entries and syncs the file.
func (sw *SeriesWriter) Flush() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if err := sw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush series writer: %w", err)
	}
	if err := sw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync series file: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the file.
func (sw *SeriesWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if err := sw.writer.Flush(); err != nil {
		sw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := sw.file.Close(); err != nil {
		return fmt.Errorf("failed to close series file: %w", err)
	}
	return nil
}

// Path returns the filesystem path of the stream.
func (sw *SeriesWriter) Path() string {
	return sw.path
}

// maxLineSize bounds a single snapshot line (large grids).
const maxLineSize = 64 * 1024 * 1024

// SeriesReader reads entries from a JSONL stream.
type SeriesReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewSeriesReader opens the stream at path.
func NewSeriesReader(path string) (*SeriesReader, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("series %s: %w", path, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to open series file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	return &SeriesReader{file: file, scanner: scanner}, nil
}

// Read returns the next entry or io.EOF.
func (sr *SeriesReader) Read() (*SeriesEntry, error) {
	if !sr.scanner.Scan() {
		if err := sr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan series line: %w", err)
		}
		return nil, io.EOF
	}

	var entry SeriesEntry
	if err := json.Unmarshal(sr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal series entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads every remaining entry.
func (sr *SeriesReader) ReadAll() ([]SeriesEntry, error) {
	var entries []SeriesEntry
	for {
		entry, err := sr.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
}

// Close closes the reader.
func (sr *SeriesReader) Close() error {
	if err := sr.file.Close(); err != nil {
		return fmt.Errorf("failed to close series file: %w", err)
	}
	return nil
}
