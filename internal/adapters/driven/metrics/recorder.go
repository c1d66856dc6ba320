package metrics

import (
	"sync"

	"github.com/custodia-labs/vulnbrief/internal/core/ports/driven"
)

// Ensure Recorder implements the interface.
var _ driven.MetricsSink = (*Recorder)(nil)

// Recorder keeps emitted events in memory. Used by the summary display
// after a pipeline run and by tests.
type Recorder struct {
	mu     sync.Mutex
	events []driven.MetricEvent
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit stores the event.
func (r *Recorder) Emit(event driven.MetricEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Events returns a copy of everything emitted so far.
func (r *Recorder) Events() []driven.MetricEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]driven.MetricEvent(nil), r.events...)
}

// CountByKind returns how many events of one kind were emitted.
func (r *Recorder) CountByKind(kind driven.MetricKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// TotalTokens sums token usage across generation events.
func (r *Recorder) TotalTokens() (in, out int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Kind == driven.MetricGeneration {
			in += e.TokensIn
			out += e.TokensOut
		}
	}
	return in, out
}

// Tee forwards every event to all sinks.
type Tee []driven.MetricsSink

// Emit fans the event out.
func (t Tee) Emit(event driven.MetricEvent) {
	for _, sink := range t {
		sink.Emit(event)
	}
}
