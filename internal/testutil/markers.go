package testutil

import "sync"

// Mark is one labeled event stamped by Markers.
type Mark struct {
	Seq   int64
	Label string
}

// Markers stamps labeled events with a strictly increasing sequence number.
//
// Tests use it to assert happens-before relations between goroutines:
// if Seq("a:end") < Seq("b:start"), b started after a finished.
//
// Thread-safety: all methods are safe for concurrent use.
type Markers struct {
	mu     sync.Mutex
	seq    int64
	events []Mark
}

// NewMarkers creates an empty marker log. The first Mark returns 1.
func NewMarkers() *Markers {
	return &Markers{}
}

// Mark records label and returns its sequence number.
func (m *Markers) Mark(label string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.events = append(m.events, Mark{Seq: m.seq, Label: label})
	return m.seq
}

// Seq returns the sequence number of the first event with label.
func (m *Markers) Seq(label string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.Label == label {
			return e.Seq, true
		}
	}
	return 0, false
}

// Labels returns all recorded labels in stamp order.
func (m *Markers) Labels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Label
	}
	return out
}

// Reset clears the log. After Reset, the next Mark returns 1.
func (m *Markers) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq = 0
	m.events = nil
}
