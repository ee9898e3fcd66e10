package runner

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/a2y-d5l/cuke"
)

// Execute runs every scenario of the plan and reports events to w.
//
// w is called from a single goroutine; see the package documentation for the
// ordering guarantees of the stream.
//
// Errors:
//   - If one or more scenarios fail, Execute returns either the first failure
//     or all failures joined (see WithCollectAllErrors).
//   - If the context is canceled and no scenario failed, Execute returns
//     ctx.Err().
func (p *Plan) Execute(ctx context.Context, w cuke.Writer, opts ...ExecOption) (Summary, error) {
	if ctx == nil {
		return Summary{}, errors.New("runner: execute: nil context")
	}
	if w == nil {
		return Summary{}, errors.New("runner: execute: nil writer")
	}

	cfg := defaultExecConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.maxWorkers <= 0 {
		cfg.maxWorkers = defaultExecConfig().maxWorkers
	}

	logger := cuke.LoggerFrom(ctx)
	n := len(p.units)

	workerCount := max(min(cfg.maxWorkers, n), 1)

	var summary Summary
	emit := func(ev cuke.Event) {
		w.HandleEvent(ctx, ev)
	}

	emit(cuke.StartedEvent())
	for _, err := range cfg.parsingErrors {
		summary.ParsingErrors++
		emit(cuke.ParsingErrorEvent(err))
	}

	// Every scenario is enqueued up front, so readyCh never blocks the
	// coordinator.
	readyCh := make(chan int, n)
	for i := range n {
		readyCh <- i
	}
	close(readyCh)

	workCh := make(chan workerMsg, workerCount*16)

	var stopNewWork atomic.Bool // set true on fail-fast

	var wg sync.WaitGroup
	for range workerCount {
		wg.Go(func() {
			p.worker(ctx, &cfg, &stopNewWork, readyCh, workCh)
		})
	}

	startedFeatures := make(map[*cuke.Feature]bool, len(p.features))
	startedRules := make(map[*cuke.Rule]bool, len(p.ruleScenarios))
	remainingFeature := maps.Clone(p.featureScenarios)
	remainingRule := maps.Clone(p.ruleScenarios)
	outcomes := make([]scenarioOutcome, n)
	firstFailure := -1

	// settle closes the rule and feature of a scenario once their last
	// scenario is done. Units that never started stay silent.
	settle := func(u unit) {
		if u.rule != nil {
			remainingRule[u.rule]--
			if remainingRule[u.rule] == 0 && startedRules[u.rule] {
				emit(cuke.RuleFinishedEvent(u.feature, u.rule))
			}
		}
		remainingFeature[u.feature]--
		if remainingFeature[u.feature] == 0 && startedFeatures[u.feature] {
			emit(cuke.FeatureFinishedEvent(u.feature))
		}
	}

	at := func(ev cuke.Event, t time.Time) cuke.Event {
		ev.Time = t
		return ev
	}

	// Coordinator loop: the only caller of w until the run is over.
	for settled := 0; settled < n; {
		msg := <-workCh
		u := p.units[msg.idx]

		switch msg.kind {
		case msgStarted:
			if !startedFeatures[u.feature] {
				startedFeatures[u.feature] = true
				emit(at(cuke.FeatureStartedEvent(u.feature), msg.at))
			}
			if u.rule != nil && !startedRules[u.rule] {
				startedRules[u.rule] = true
				emit(at(cuke.RuleStartedEvent(u.feature, u.rule), msg.at))
			}
			emit(at(cuke.ScenarioEventFor(u.feature, u.rule, u.scenario, cuke.ScenarioStartedEvent()), msg.at))

		case msgEvent:
			emit(at(cuke.ScenarioEventFor(u.feature, u.rule, u.scenario, msg.event), msg.at))

		case msgDone:
			settled++
			o := msg.outcome
			outcomes[msg.idx] = o

			if o.notRun {
				summary.Scenarios.NotRun++
				settle(u)
				continue
			}

			emit(at(cuke.ScenarioEventFor(u.feature, u.rule, u.scenario, cuke.ScenarioFinishedEvent()), msg.at))

			summary.Steps.Passed += o.steps.Passed
			summary.Steps.Skipped += o.steps.Skipped
			summary.Steps.Failed += o.steps.Failed
			summary.HookErrors += o.hookErrors

			if o.failed {
				summary.Scenarios.Failed++
				summary.Failed = true
				if firstFailure < 0 {
					firstFailure = msg.idx
				}
				if cfg.failFast {
					logger.Debug("runner: fail-fast engaged", "scenario", u.name())
				}
			} else {
				summary.Scenarios.Passed++
			}

			logger.Debug("runner: scenario finished",
				"scenario", u.name(),
				"failed", o.failed,
				"steps", o.steps.Total(),
			)
			settle(u)
		}
	}

	wg.Wait()
	close(workCh)

	emit(cuke.FinishedEvent())

	// Failures take precedence over ctx cancellation.
	if err := collectErrors(cfg.collectAllErrors, p.units, outcomes, firstFailure); err != nil {
		return summary, err
	}
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, nil
}

type msgKind uint8

const (
	msgStarted msgKind = iota
	msgEvent
	msgDone
)

type workerMsg struct {
	at      time.Time
	event   cuke.ScenarioEvent
	outcome scenarioOutcome
	idx     int
	kind    msgKind
}

func (p *Plan) worker(
	ctx context.Context,
	cfg *execConfig,
	stopNewWork *atomic.Bool,
	readyCh <-chan int,
	workCh chan<- workerMsg,
) {
	for idx := range readyCh {
		// Do not start new scenarios after cancellation or fail-fast.
		if ctx.Err() != nil || stopNewWork.Load() {
			workCh <- workerMsg{
				kind:    msgDone,
				idx:     idx,
				at:      time.Now(),
				outcome: scenarioOutcome{notRun: true},
			}
			continue
		}

		workCh <- workerMsg{kind: msgStarted, idx: idx, at: time.Now()}

		report := func(ev cuke.ScenarioEvent) {
			workCh <- workerMsg{kind: msgEvent, idx: idx, event: ev, at: time.Now()}
		}
		o := runScenario(ctx, cfg, p.units[idx], report)

		// Engage fail-fast before reporting, so this worker does not pick up
		// another scenario ahead of the coordinator.
		if o.failed && cfg.failFast {
			stopNewWork.Store(true)
		}

		workCh <- workerMsg{kind: msgDone, idx: idx, outcome: o, at: time.Now()}
	}
}

func isContextCancelErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func collectErrors(collectAll bool, units []unit, outcomes []scenarioOutcome, first int) error {
	if !collectAll {
		if first < 0 {
			return nil
		}
		return fmt.Errorf("scenario %q: %w", units[first].name(), outcomes[first].err)
	}

	var errs []error
	for i, o := range outcomes {
		if o.failed && o.err != nil {
			errs = append(errs, fmt.Errorf("scenario %q: %w", units[i].name(), o.err))
		}
	}
	return errors.Join(errs...)
}
