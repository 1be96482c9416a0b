package sink

import "sync"

// Record is one captured write.
type Record struct {
	Quantity string
	Snapshot Snapshot
}

// Recorder is an in-memory Sink. It keeps every write in order.
type Recorder struct {
	mu      sync.Mutex
	records []Record
	flushes int
	closed  bool
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Write(quantity string, s Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Data = append([]float64(nil), s.Data...)
	r.records = append(r.records, Record{Quantity: quantity, Snapshot: s})
	return nil
}

// Flush counts the call, writes are already in memory.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

// Flushes returns the number of Flush calls.
func (r *Recorder) Flushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Records returns a copy of all writes.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

// Count returns the number of writes to quantity.
func (r *Recorder) Count(quantity string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.Quantity == quantity {
			n++
		}
	}
	return n
}

// Len returns the total number of writes.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
