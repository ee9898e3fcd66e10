package runner

import (
	"context"
	"errors"

	"github.com/a2y-d5l/cuke"
)

// StepFunc executes a single step of a scenario.
//
// Returning nil passes the step, ErrSkip (or an error wrapping it) skips it,
// any other error fails it.
type StepFunc func(ctx context.Context, w *World, st *cuke.Step) error

// HookFunc runs before or after a scenario. A non-nil error fails the hook
// and the scenario.
type HookFunc func(ctx context.Context, w *World, s *cuke.Scenario) error

// ErrSkip is returned by a StepFunc to mark a step as skipped.
var ErrSkip = errors.New("runner: step skipped")

// StepCounts tallies step outcomes, background steps included.
type StepCounts struct {
	Passed  int
	Skipped int
	Failed  int
}

// Total returns the number of steps that were reported.
func (c StepCounts) Total() int {
	return c.Passed + c.Skipped + c.Failed
}

// ScenarioCounts tallies scenario outcomes.
type ScenarioCounts struct {
	// Passed scenarios ran without a failed step or hook.
	Passed int

	// Failed scenarios had at least one failed step or hook.
	Failed int

	// NotRun scenarios never started, because of fail-fast or cancellation.
	NotRun int
}

// Summary is the top-level result of an Execute run.
type Summary struct {
	Scenarios ScenarioCounts
	Steps     StepCounts

	// HookErrors is the number of failed hooks.
	HookErrors int

	// ParsingErrors is the number of parsing errors reported with
	// WithParsingErrors.
	ParsingErrors int

	// Failed is true if at least one scenario failed.
	Failed bool
}
