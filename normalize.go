package cuke

import (
	"context"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Normalizer rearranges the events of a run and feeds them to a wrapped
// Writer in a readable, deterministic order.
//
// Once a Feature has started to be written it is written uninterruptedly
// until its end, even if other Features finished earlier. Inside a Feature,
// Rules and Scenarios are written one at a time in the order their first
// event arrived. Events of a unit that completed early are held back until
// every unit ahead of it has been written.
//
// The resulting order depends only on start order, never on completion
// order, so the output looks as if scenarios had run sequentially.
//
// A Normalizer is not safe for concurrent use. Producers running scenarios in
// parallel must serialize their deliveries (see package stream).
type Normalizer struct {
	writer Writer
	queue  *runQueue
}

// Normalize wraps w.
func Normalize(w Writer) *Normalizer {
	return &Normalizer{
		writer: w,
		queue:  newRunQueue(),
	}
}

// HandleEvent routes ev into the queue and writes out everything that became
// ready.
//
// HandleEvent panics with an error wrapping ErrContractViolation when ev
// references a Feature or Rule that was never started.
func (n *Normalizer) HandleEvent(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventStarted, EventParsingError:
		n.writer.HandleEvent(ctx, ev)
	case EventFinished:
		n.queue.markFinished(ev)
	case EventFeature:
		n.queue.insert(ev)
	}

	n.queue.drain(ctx, n.writer)
}

// Normalized implements Normalized.
func (n *Normalizer) Normalized() {}

// FailedSteps returns the counter of the wrapped writer.
func (n *Normalizer) FailedSteps() int { return failedSteps(n.writer) }

// ParsingErrors returns the counter of the wrapped writer.
func (n *Normalizer) ParsingErrors() int { return parsingErrors(n.writer) }

// HookErrors returns the counter of the wrapped writer.
func (n *Normalizer) HookErrors() int { return hookErrors(n.writer) }

// runQueue holds every Feature seen so far in the order of its Started
// event. The front Feature is the one currently being written.
type runQueue struct {
	features *orderedmap.OrderedMap[*Feature, *featureQueue]

	finish        Event
	finished      bool
	finishEmitted bool
}

func newRunQueue() *runQueue {
	return &runQueue{features: orderedmap.New[*Feature, *featureQueue]()}
}

func (q *runQueue) markFinished(ev Event) {
	q.finish = ev
	q.finished = true
}

func (q *runQueue) insert(ev Event) {
	f := ev.Feature
	fe := ev.FeatureEvent

	switch fe.Kind {
	case FeatureStarted:
		if _, ok := q.features.Get(f); !ok {
			q.features.Set(f, newFeatureQueue(ev))
		}

	case FeatureFinished:
		q.feature(f).markFinished(ev)

	case FeatureScenario:
		q.feature(f).scenario(fe.Scenario).push(ev)

	case FeatureRule:
		fq := q.feature(f)
		switch fe.RuleEvent.Kind {
		case RuleStarted:
			fq.newRule(fe.Rule, ev)
		case RuleFinished:
			fq.rule(f, fe.Rule).markFinished(ev)
		case RuleScenario:
			fq.rule(f, fe.Rule).scenario(fe.RuleEvent.Scenario).push(ev)
		}
	}
}

func (q *runQueue) feature(f *Feature) *featureQueue {
	fq, ok := q.features.Get(f)
	if !ok {
		panic(violation("feature %q was never started", featureName(f)))
	}
	return fq
}

// drain writes out the front Feature for as long as it completes, then
// the global Finished event once nothing is left.
func (q *runQueue) drain(ctx context.Context, w Writer) {
	for head := q.features.Oldest(); head != nil; head = q.features.Oldest() {
		f, fq := head.Key, head.Value
		if !fq.emit(ctx, w) {
			break
		}
		q.features.Delete(f)
		LoggerFrom(ctx).Debug("normalizer: feature flushed",
			"feature", f.Name,
			"queued_features", q.features.Len(),
		)
	}

	if q.finished && !q.finishEmitted && q.features.Len() == 0 {
		q.finishEmitted = true
		w.HandleEvent(ctx, q.finish)
	}
}

// unitKey identifies a direct child of a Feature: either a Rule or a
// Scenario outside any Rule. Exactly one field is set.
type unitKey struct {
	rule     *Rule
	scenario *Scenario
}

// unitQueue is the queue of a unitKey. Exactly one field is set, matching
// the key.
type unitQueue struct {
	rule     *ruleQueue
	scenario *scenarioQueue
}

type featureQueue struct {
	units *orderedmap.OrderedMap[unitKey, *unitQueue]

	started        Event
	finish         Event
	startedEmitted bool
	finished       bool
}

func newFeatureQueue(started Event) *featureQueue {
	return &featureQueue{
		units:   orderedmap.New[unitKey, *unitQueue](),
		started: started,
	}
}

func (fq *featureQueue) markFinished(ev Event) {
	fq.finish = ev
	fq.finished = true
}

func (fq *featureQueue) newRule(r *Rule, started Event) {
	key := unitKey{rule: r}
	if _, ok := fq.units.Get(key); !ok {
		fq.units.Set(key, &unitQueue{rule: newRuleQueue(started)})
	}
}

func (fq *featureQueue) rule(f *Feature, r *Rule) *ruleQueue {
	u, ok := fq.units.Get(unitKey{rule: r})
	if !ok {
		panic(violation("rule %q of feature %q was never started", ruleName(r), featureName(f)))
	}
	return u.rule
}

func (fq *featureQueue) scenario(s *Scenario) *scenarioQueue {
	key := unitKey{scenario: s}
	u, ok := fq.units.Get(key)
	if !ok {
		u = &unitQueue{scenario: &scenarioQueue{}}
		fq.units.Set(key, u)
	}
	return u.scenario
}

// emit writes every ready event of the Feature and reports whether the
// Feature has been written completely.
func (fq *featureQueue) emit(ctx context.Context, w Writer) bool {
	if !fq.startedEmitted {
		w.HandleEvent(ctx, fq.started)
		fq.startedEmitted = true
	}

	for head := fq.units.Oldest(); head != nil; head = fq.units.Oldest() {
		key, u := head.Key, head.Value

		var done bool
		switch {
		case u.rule != nil:
			done = u.rule.emit(ctx, w)
		case u.scenario != nil:
			done = u.scenario.emit(ctx, w)
		}
		if !done {
			return false
		}
		fq.units.Delete(key)
	}

	if !fq.finished {
		return false
	}
	w.HandleEvent(ctx, fq.finish)
	return true
}

type ruleQueue struct {
	scenarios *orderedmap.OrderedMap[*Scenario, *scenarioQueue]

	started        Event
	finish         Event
	startedEmitted bool
	finished       bool
}

func newRuleQueue(started Event) *ruleQueue {
	return &ruleQueue{
		scenarios: orderedmap.New[*Scenario, *scenarioQueue](),
		started:   started,
	}
}

func (rq *ruleQueue) markFinished(ev Event) {
	rq.finish = ev
	rq.finished = true
}

func (rq *ruleQueue) scenario(s *Scenario) *scenarioQueue {
	sq, ok := rq.scenarios.Get(s)
	if !ok {
		sq = &scenarioQueue{}
		rq.scenarios.Set(s, sq)
	}
	return sq
}

// emit writes every ready event of the Rule and reports whether the Rule has
// been written completely.
func (rq *ruleQueue) emit(ctx context.Context, w Writer) bool {
	if !rq.startedEmitted {
		w.HandleEvent(ctx, rq.started)
		rq.startedEmitted = true
	}

	for head := rq.scenarios.Oldest(); head != nil; head = rq.scenarios.Oldest() {
		if !head.Value.emit(ctx, w) {
			return false
		}
		rq.scenarios.Delete(head.Key)
	}

	if !rq.finished {
		return false
	}
	w.HandleEvent(ctx, rq.finish)
	return true
}

// scenarioQueue buffers the events of one Scenario in arrival order.
type scenarioQueue struct {
	events []Event
}

func (sq *scenarioQueue) push(ev Event) {
	sq.events = append(sq.events, ev)
}

// emit writes buffered events and reports whether the Scenario's Finished
// event was among them.
func (sq *scenarioQueue) emit(ctx context.Context, w Writer) bool {
	for len(sq.events) > 0 {
		ev := sq.events[0]
		sq.events[0] = Event{}
		sq.events = sq.events[1:]

		w.HandleEvent(ctx, ev)

		if _, _, se, _ := ev.InScenario(); se.Kind == ScenarioFinished {
			return true
		}
	}
	return false
}
