package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/a2y-d5l/cuke"
)

type scenarioOutcome struct {
	// err is the first step or hook failure.
	err        error
	steps      StepCounts
	hookErrors int
	failed     bool
	notRun     bool
}

func (o *scenarioOutcome) fail(err error) {
	if !o.failed {
		o.err = err
	}
	o.failed = true
}

// runScenario executes u and passes every scenario-level event to report, in
// order. The Started and Finished boundaries are left to the caller.
func runScenario(ctx context.Context, cfg *execConfig, u unit, report func(cuke.ScenarioEvent)) scenarioOutcome {
	var o scenarioOutcome
	world := NewWorld()

	runHooks := func(h cuke.HookType, hooks []HookFunc) {
		for _, fn := range hooks {
			report(cuke.HookEventFor(h, cuke.HookEvent{Kind: cuke.HookStarted}))
			if err := callHook(ctx, fn, world, u.scenario); err != nil {
				o.hookErrors++
				o.fail(fmt.Errorf("%s hook: %w", h, err))
				report(cuke.HookEventFor(h, cuke.HookEvent{Kind: cuke.HookFailed, Err: err}))
				continue
			}
			report(cuke.HookEventFor(h, cuke.HookEvent{Kind: cuke.HookPassed}))
		}
	}

	runHooks(cuke.BeforeHook, cfg.before)

	skipRest := o.failed
	runSteps := func(steps []*cuke.Step, wrap func(*cuke.Step, cuke.StepEvent) cuke.ScenarioEvent) {
		for _, st := range steps {
			if skipRest || ctx.Err() != nil {
				skipRest = true
				o.steps.Skipped++
				report(wrap(st, cuke.StepEvent{Kind: cuke.StepSkipped}))
				continue
			}

			report(wrap(st, cuke.StepEvent{Kind: cuke.StepStarted}))
			err := callStep(ctx, cfg, world, st)
			switch {
			case err == nil:
				o.steps.Passed++
				report(wrap(st, cuke.StepEvent{Kind: cuke.StepPassed}))

			case errors.Is(err, ErrSkip), ctx.Err() != nil && isContextCancelErr(err):
				skipRest = true
				o.steps.Skipped++
				report(wrap(st, cuke.StepEvent{Kind: cuke.StepSkipped}))

			default:
				skipRest = true
				o.steps.Failed++
				o.fail(fmt.Errorf("step %q: %w", st.String(), err))
				report(wrap(st, cuke.StepEvent{Kind: cuke.StepFailed, Err: err}))
			}
		}
	}

	runSteps(u.feature.Background, cuke.BackgroundEventFor)
	if u.rule != nil {
		runSteps(u.rule.Background, cuke.BackgroundEventFor)
	}
	runSteps(u.scenario.Steps, cuke.StepEventFor)

	runHooks(cuke.AfterHook, cfg.after)

	return o
}

func callStep(ctx context.Context, cfg *execConfig, w *World, st *cuke.Step) (err error) {
	if cfg.steps == nil {
		return ErrSkip
	}
	if cfg.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.stepTimeout)
		defer cancel()
	}
	defer recoverPanic(&err)
	return cfg.steps(ctx, w, st)
}

func callHook(ctx context.Context, fn HookFunc, w *World, s *cuke.Scenario) (err error) {
	defer recoverPanic(&err)
	return fn(ctx, w, s)
}

func recoverPanic(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}
