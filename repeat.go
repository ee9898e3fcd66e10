package cuke

import (
	"context"
	"slices"
)

// FilterFunc selects events a Repeater should replay.
type FilterFunc func(ev Event) bool

// Repeater forwards every event to a wrapped writer and, once the run has
// finished, writes the selected events a second time. The replayed events
// form a summary tail, for example a list of every failure.
//
// The wrapped writer must be NonTransforming: the replayed tail only makes
// sense if the writer printed the original events as they came.
type Repeater struct {
	writer NonTransforming
	filter FilterFunc
	events []Event
}

// Repeat wraps w, replaying the events matched by filter. A nil filter
// matches nothing.
func Repeat(w NonTransforming, filter FilterFunc) *Repeater {
	if filter == nil {
		filter = matchNothing
	}
	return &Repeater{writer: w, filter: filter}
}

func matchNothing(Event) bool { return false }

// NormalizedRepeater is a Repeater over a Normalized writer. It keeps the
// Normalized marker of the wrapped writer.
type NormalizedRepeater struct {
	*Repeater
}

// RepeatNormalized is Repeat for writers that are both NonTransforming and
// Normalized.
func RepeatNormalized(w interface {
	NonTransforming
	Normalized
}, filter FilterFunc,
) *NormalizedRepeater {
	return &NormalizedRepeater{Repeater: Repeat(w, filter)}
}

// Normalized implements Normalized.
func (*NormalizedRepeater) Normalized() {}

// RepeatSkipped replays skipped steps.
func RepeatSkipped(w NonTransforming) *Repeater {
	return Repeat(w, FilterSkipped)
}

// RepeatFailed replays failed steps, failed hooks and parsing errors.
func RepeatFailed(w NonTransforming) *Repeater {
	return Repeat(w, FilterFailed)
}

// HandleEvent forwards ev. On the global Finished event, the buffered events
// are written after it in arrival order and the buffer is cleared.
func (r *Repeater) HandleEvent(ctx context.Context, ev Event) {
	if r.filter(ev) {
		r.events = append(r.events, ev)
	}

	r.writer.HandleEvent(ctx, ev)

	if ev.Kind == EventFinished {
		tail := r.events
		r.events = nil
		LoggerFrom(ctx).Debug("repeater: replaying", "events", len(tail))
		for _, e := range tail {
			r.writer.HandleEvent(ctx, e)
		}
	}
}

// FailedSteps returns the counter of the wrapped writer.
func (r *Repeater) FailedSteps() int { return failedSteps(r.writer) }

// ParsingErrors returns the counter of the wrapped writer.
func (r *Repeater) ParsingErrors() int { return parsingErrors(r.writer) }

// HookErrors returns the counter of the wrapped writer.
func (r *Repeater) HookErrors() int { return hookErrors(r.writer) }

// FilterSkipped matches skipped steps and background steps.
func FilterSkipped(ev Event) bool {
	_, _, se, ok := ev.InScenario()
	if !ok {
		return false
	}
	switch se.Kind {
	case ScenarioStep, ScenarioBackground:
		return se.StepEvent.Kind == StepSkipped
	}
	return false
}

// FilterFailed matches parsing errors, failed steps, failed background steps
// and failed hooks.
func FilterFailed(ev Event) bool {
	if ev.Kind == EventParsingError {
		return true
	}
	_, _, se, ok := ev.InScenario()
	if !ok {
		return false
	}
	switch se.Kind {
	case ScenarioStep, ScenarioBackground:
		return se.StepEvent.Kind == StepFailed
	case ScenarioHook:
		return se.HookEvent.Kind == HookFailed
	}
	return false
}

var filters = map[string]FilterFunc{
	"failed":  FilterFailed,
	"skipped": FilterSkipped,
}

// LookupFilter returns the filter registered under name ("failed" or
// "skipped").
func LookupFilter(name string) (FilterFunc, bool) {
	f, ok := filters[name]
	return f, ok
}

// FilterNames returns the registered filter names, sorted.
func FilterNames() []string {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// AnyFilter matches events matched by at least one of fs.
func AnyFilter(fs ...FilterFunc) FilterFunc {
	return func(ev Event) bool {
		for _, f := range fs {
			if f(ev) {
				return true
			}
		}
		return false
	}
}
