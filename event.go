package cuke

import (
	"log/slog"
	"strings"
	"time"
)

// EventKind discriminates the top-level Event variants.
type EventKind uint8

const (
	// EventStarted is emitted once when a run begins.
	EventStarted EventKind = iota

	// EventParsingError carries a source that could not be parsed. Err is set.
	EventParsingError

	// EventFinished is emitted once after every feature has finished.
	EventFinished

	// EventFeature wraps a FeatureEvent for Feature.
	EventFeature
)

// FeatureEventKind discriminates FeatureEvent variants.
type FeatureEventKind uint8

const (
	FeatureStarted FeatureEventKind = iota
	FeatureFinished
	// FeatureScenario wraps a ScenarioEvent of a scenario outside any rule.
	FeatureScenario
	// FeatureRule wraps a RuleEvent.
	FeatureRule
)

// RuleEventKind discriminates RuleEvent variants.
type RuleEventKind uint8

const (
	RuleStarted RuleEventKind = iota
	RuleFinished
	RuleScenario
)

// ScenarioEventKind discriminates ScenarioEvent variants.
type ScenarioEventKind uint8

const (
	ScenarioStarted ScenarioEventKind = iota
	ScenarioFinished
	ScenarioStep
	ScenarioBackground
	ScenarioHook
)

// StepEventKind is the status carried by a StepEvent.
type StepEventKind uint8

const (
	StepStarted StepEventKind = iota
	StepPassed
	StepSkipped
	StepFailed
)

// HookEventKind is the status carried by a HookEvent.
type HookEventKind uint8

const (
	HookStarted HookEventKind = iota
	HookPassed
	HookFailed
)

// Event is a single lifecycle notification of a run.
//
// Only the fields of the active variant (selected by Kind) are meaningful.
// Build events with the constructors in this file to get valid shapes.
type Event struct {
	// Time is when the producer created the event.
	Time time.Time

	// Err is the parse failure of an EventParsingError.
	Err error

	Feature      *Feature
	FeatureEvent FeatureEvent
	Kind         EventKind
}

// FeatureEvent is an event nested under a Feature.
type FeatureEvent struct {
	Rule          *Rule
	Scenario      *Scenario
	RuleEvent     RuleEvent
	ScenarioEvent ScenarioEvent
	Kind          FeatureEventKind
}

// RuleEvent is an event nested under a Rule.
type RuleEvent struct {
	Scenario      *Scenario
	ScenarioEvent ScenarioEvent
	Kind          RuleEventKind
}

// ScenarioEvent is an event nested under a Scenario.
type ScenarioEvent struct {
	// Step is set for ScenarioStep and ScenarioBackground.
	Step      *Step
	StepEvent StepEvent

	// Hook and HookEvent are set for ScenarioHook.
	HookEvent HookEvent
	Hook      HookType

	Kind ScenarioEventKind
}

// StepEvent is the status of a (background) step.
type StepEvent struct {
	// Err is set for StepFailed.
	Err  error
	Kind StepEventKind
}

// HookEvent is the status of a hook.
type HookEvent struct {
	// Err is set for HookFailed.
	Err  error
	Kind HookEventKind
}

// StartedEvent returns the global Started event.
func StartedEvent() Event {
	return Event{Kind: EventStarted, Time: time.Now()}
}

// FinishedEvent returns the global Finished event.
func FinishedEvent() Event {
	return Event{Kind: EventFinished, Time: time.Now()}
}

// ParsingErrorEvent wraps a parse failure.
func ParsingErrorEvent(err error) Event {
	return Event{Kind: EventParsingError, Err: err, Time: time.Now()}
}

// FeatureStartedEvent returns the Started boundary of f.
func FeatureStartedEvent(f *Feature) Event {
	return featureEvent(f, FeatureEvent{Kind: FeatureStarted})
}

// FeatureFinishedEvent returns the Finished boundary of f.
func FeatureFinishedEvent(f *Feature) Event {
	return featureEvent(f, FeatureEvent{Kind: FeatureFinished})
}

// RuleStartedEvent returns the Started boundary of r inside f.
func RuleStartedEvent(f *Feature, r *Rule) Event {
	return featureEvent(f, FeatureEvent{
		Kind:      FeatureRule,
		Rule:      r,
		RuleEvent: RuleEvent{Kind: RuleStarted},
	})
}

// RuleFinishedEvent returns the Finished boundary of r inside f.
func RuleFinishedEvent(f *Feature, r *Rule) Event {
	return featureEvent(f, FeatureEvent{
		Kind:      FeatureRule,
		Rule:      r,
		RuleEvent: RuleEvent{Kind: RuleFinished},
	})
}

// ScenarioEventFor wraps ev of scenario s. When r is nil the scenario sits
// directly under f, otherwise under r.
func ScenarioEventFor(f *Feature, r *Rule, s *Scenario, ev ScenarioEvent) Event {
	if r == nil {
		return featureEvent(f, FeatureEvent{
			Kind:          FeatureScenario,
			Scenario:      s,
			ScenarioEvent: ev,
		})
	}
	return featureEvent(f, FeatureEvent{
		Kind: FeatureRule,
		Rule: r,
		RuleEvent: RuleEvent{
			Kind:          RuleScenario,
			Scenario:      s,
			ScenarioEvent: ev,
		},
	})
}

func featureEvent(f *Feature, ev FeatureEvent) Event {
	return Event{Kind: EventFeature, Feature: f, FeatureEvent: ev, Time: time.Now()}
}

// ScenarioStartedEvent returns the Started boundary of a scenario.
func ScenarioStartedEvent() ScenarioEvent {
	return ScenarioEvent{Kind: ScenarioStarted}
}

// ScenarioFinishedEvent returns the Finished boundary of a scenario.
func ScenarioFinishedEvent() ScenarioEvent {
	return ScenarioEvent{Kind: ScenarioFinished}
}

// StepEventFor wraps the status of a regular step.
func StepEventFor(st *Step, ev StepEvent) ScenarioEvent {
	return ScenarioEvent{Kind: ScenarioStep, Step: st, StepEvent: ev}
}

// BackgroundEventFor wraps the status of a background step.
func BackgroundEventFor(st *Step, ev StepEvent) ScenarioEvent {
	return ScenarioEvent{Kind: ScenarioBackground, Step: st, StepEvent: ev}
}

// HookEventFor wraps the status of a hook.
func HookEventFor(h HookType, ev HookEvent) ScenarioEvent {
	return ScenarioEvent{Kind: ScenarioHook, Hook: h, HookEvent: ev}
}

// InScenario reports whether e is a scenario-level event and, if so, returns
// its enclosing rule (nil for feature-scoped scenarios), scenario and payload.
func (e Event) InScenario() (*Rule, *Scenario, ScenarioEvent, bool) {
	if e.Kind != EventFeature {
		return nil, nil, ScenarioEvent{}, false
	}
	fe := e.FeatureEvent
	switch fe.Kind {
	case FeatureScenario:
		return nil, fe.Scenario, fe.ScenarioEvent, true
	case FeatureRule:
		if fe.RuleEvent.Kind == RuleScenario {
			return fe.Rule, fe.RuleEvent.Scenario, fe.RuleEvent.ScenarioEvent, true
		}
	}
	return nil, nil, ScenarioEvent{}, false
}

// Description is a flat, string-only view of an Event.
type Description struct {
	// Kind is a dotted name such as "feature.started" or "step.failed".
	Kind     string
	Feature  string
	Rule     string
	Scenario string
	Step     string
	Error    string
}

// Describe flattens e.
func (e Event) Describe() Description {
	var d Description
	switch e.Kind {
	case EventStarted:
		d.Kind = "started"
		return d
	case EventFinished:
		d.Kind = "finished"
		return d
	case EventParsingError:
		d.Kind = "parsing_error"
		if e.Err != nil {
			d.Error = e.Err.Error()
		}
		return d
	}

	if e.Feature != nil {
		d.Feature = e.Feature.Name
	}
	fe := e.FeatureEvent
	switch fe.Kind {
	case FeatureStarted:
		d.Kind = "feature.started"
		return d
	case FeatureFinished:
		d.Kind = "feature.finished"
		return d
	case FeatureRule:
		if fe.Rule != nil {
			d.Rule = fe.Rule.Name
		}
		switch fe.RuleEvent.Kind {
		case RuleStarted:
			d.Kind = "rule.started"
			return d
		case RuleFinished:
			d.Kind = "rule.finished"
			return d
		}
	}

	_, s, se, _ := e.InScenario()
	if s != nil {
		d.Scenario = s.Name
	}
	describeScenario(&d, se)
	return d
}

func describeScenario(d *Description, se ScenarioEvent) {
	switch se.Kind {
	case ScenarioStarted:
		d.Kind = "scenario.started"
	case ScenarioFinished:
		d.Kind = "scenario.finished"
	case ScenarioStep, ScenarioBackground:
		prefix := "step."
		if se.Kind == ScenarioBackground {
			prefix = "background."
		}
		d.Kind = prefix + stepStatus(se.StepEvent.Kind)
		d.Step = se.Step.String()
		if se.StepEvent.Err != nil {
			d.Error = se.StepEvent.Err.Error()
		}
	case ScenarioHook:
		d.Kind = "hook." + se.Hook.String() + "." + hookStatus(se.HookEvent.Kind)
		if se.HookEvent.Err != nil {
			d.Error = se.HookEvent.Err.Error()
		}
	}
}

func stepStatus(k StepEventKind) string {
	switch k {
	case StepStarted:
		return "started"
	case StepPassed:
		return "passed"
	case StepSkipped:
		return "skipped"
	case StepFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func hookStatus(k HookEventKind) string {
	switch k {
	case HookStarted:
		return "started"
	case HookPassed:
		return "passed"
	case HookFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// String renders d as "<kind> <feature>/<rule>/<scenario>: <step>", omitting
// empty parts.
func (d Description) String() string {
	var b strings.Builder
	b.WriteString(d.Kind)

	var path []string
	for _, p := range []string{d.Feature, d.Rule, d.Scenario} {
		if p != "" {
			path = append(path, p)
		}
	}
	if len(path) > 0 {
		b.WriteByte(' ')
		b.WriteString(strings.Join(path, "/"))
	}
	if d.Step != "" {
		b.WriteString(": ")
		b.WriteString(d.Step)
	}
	return b.String()
}

// Map returns the non-empty fields of d keyed by snake_case names.
func (d Description) Map() map[string]any {
	m := map[string]any{"kind": d.Kind}
	for k, v := range map[string]string{
		"feature":  d.Feature,
		"rule":     d.Rule,
		"scenario": d.Scenario,
		"step":     d.Step,
		"error":    d.Error,
	} {
		if v != "" {
			m[k] = v
		}
	}
	return m
}

// LogValue implements slog.LogValuer.
func (e Event) LogValue() slog.Value {
	d := e.Describe()
	attrs := []slog.Attr{slog.String("kind", d.Kind)}
	if d.Feature != "" {
		attrs = append(attrs, slog.String("feature", d.Feature))
	}
	if d.Rule != "" {
		attrs = append(attrs, slog.String("rule", d.Rule))
	}
	if d.Scenario != "" {
		attrs = append(attrs, slog.String("scenario", d.Scenario))
	}
	if d.Step != "" {
		attrs = append(attrs, slog.String("step", d.Step))
	}
	if d.Error != "" {
		attrs = append(attrs, slog.String("error", d.Error))
	}
	return slog.GroupValue(attrs...)
}
