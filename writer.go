package cuke

import "context"

// Writer consumes the events of a run.
//
// Pipeline stages call HandleEvent from a single goroutine at a time and wait
// for it to return before delivering the next event. HandleEvent may block on
// I/O; ctx bounds that wait.
type Writer interface {
	HandleEvent(ctx context.Context, ev Event)
}

// Failure is implemented by writers that count failures they have seen.
// Wrapping stages pass these counters through unchanged.
type Failure interface {
	Writer

	// FailedSteps is the number of failed steps and background steps.
	FailedSteps() int

	// ParsingErrors is the number of ParsingError events.
	ParsingErrors() int

	// HookErrors is the number of failed hooks.
	HookErrors() int
}

// NonTransforming marks writers that neither reorder, drop nor add events.
// Only such writers may be wrapped by a Repeater.
type NonTransforming interface {
	Writer
	NonTransforming()
}

// Normalized marks writers whose output is already in normalized order.
type Normalized interface {
	Writer
	Normalized()
}

// WriterFunc adapts a function to the Writer interface.
type WriterFunc func(ctx context.Context, ev Event)

// HandleEvent calls f(ctx, ev).
func (f WriterFunc) HandleEvent(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// NonTransforming marks WriterFunc as non-transforming. A WriterFunc that
// reorders events must not be passed to Repeat.
func (f WriterFunc) NonTransforming() {}

// TeeWriter forwards every event to several writers, in the order they were
// given.
type TeeWriter struct {
	writers []NonTransforming
}

// Tee fans events out to ws. Nil writers are ignored.
func Tee(ws ...NonTransforming) *TeeWriter {
	// Copy to avoid surprises if caller mutates the input slice.
	cp := make([]NonTransforming, 0, len(ws))
	for _, w := range ws {
		if w != nil {
			cp = append(cp, w)
		}
	}
	return &TeeWriter{writers: cp}
}

// HandleEvent forwards ev to every writer.
func (t *TeeWriter) HandleEvent(ctx context.Context, ev Event) {
	for _, w := range t.writers {
		w.HandleEvent(ctx, ev)
	}
}

// NonTransforming implements NonTransforming.
func (t *TeeWriter) NonTransforming() {}

// FailedSteps reports the counter of the Failure branches.
func (t *TeeWriter) FailedSteps() int {
	return t.count(Failure.FailedSteps)
}

// ParsingErrors reports the counter of the Failure branches.
func (t *TeeWriter) ParsingErrors() int {
	return t.count(Failure.ParsingErrors)
}

// HookErrors reports the counter of the Failure branches.
func (t *TeeWriter) HookErrors() int {
	return t.count(Failure.HookErrors)
}

// count reports the highest counter among the branches. Every branch sees
// the same stream, so adding them up would count each failure twice.
func (t *TeeWriter) count(counter func(Failure) int) int {
	n := 0
	for _, w := range t.writers {
		if f, ok := w.(Failure); ok {
			n = max(n, counter(f))
		}
	}
	return n
}

// ExecutionHasFailed reports whether w (when it counts failures) has seen a
// failed step, a failed hook or a parsing error.
func ExecutionHasFailed(w Writer) bool {
	f, ok := w.(Failure)
	if !ok {
		return false
	}
	return f.FailedSteps() > 0 || f.ParsingErrors() > 0 || f.HookErrors() > 0
}

func failedSteps(w Writer) int {
	if f, ok := w.(Failure); ok {
		return f.FailedSteps()
	}
	return 0
}

func parsingErrors(w Writer) int {
	if f, ok := w.(Failure); ok {
		return f.ParsingErrors()
	}
	return 0
}

func hookErrors(w Writer) int {
	if f, ok := w.(Failure); ok {
		return f.HookErrors()
	}
	return 0
}
