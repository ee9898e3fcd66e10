// Package writertest provides a recording cuke.Writer for tests.
package writertest

import (
	"context"
	"slices"
	"sync"

	"github.com/a2y-d5l/cuke"
)

// Recorder is a sink that keeps every event it is handed. It counts failures
// like a real sink, so it can sit at the end of a Normalize or Repeat
// pipeline in tests. Its methods may be called from several goroutines.
type Recorder struct {
	mu     sync.Mutex
	events []cuke.Event
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{}
}

// HandleEvent keeps ev. A nil Recorder ignores it.
func (r *Recorder) HandleEvent(_ context.Context, ev cuke.Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// NonTransforming implements cuke.NonTransforming.
func (r *Recorder) NonTransforming() {}

// Events returns the kept events in arrival order. The slice is a copy.
func (r *Recorder) Events() []cuke.Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Lines returns the recorded events rendered with Description.String, in
// recorded order.
func (r *Recorder) Lines() []string {
	evs := r.Events()
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Describe().String())
	}
	return out
}

// Reset forgets every kept event, so counters start over too.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// FailedSteps implements cuke.Failure.
func (r *Recorder) FailedSteps() int {
	return r.count(func(ev cuke.Event) bool {
		_, _, se, ok := ev.InScenario()
		return ok &&
			(se.Kind == cuke.ScenarioStep || se.Kind == cuke.ScenarioBackground) &&
			se.StepEvent.Kind == cuke.StepFailed
	})
}

// ParsingErrors implements cuke.Failure.
func (r *Recorder) ParsingErrors() int {
	return r.count(func(ev cuke.Event) bool { return ev.Kind == cuke.EventParsingError })
}

// HookErrors implements cuke.Failure.
func (r *Recorder) HookErrors() int {
	return r.count(func(ev cuke.Event) bool {
		_, _, se, ok := ev.InScenario()
		return ok && se.Kind == cuke.ScenarioHook && se.HookEvent.Kind == cuke.HookFailed
	})
}

// count ignores events after the global Finished event, which are replays.
func (r *Recorder) count(match func(cuke.Event) bool) int {
	n := 0
	for _, ev := range r.Events() {
		if ev.Kind == cuke.EventFinished {
			break
		}
		if match(ev) {
			n++
		}
	}
	return n
}
