// Package runner executes features and reports their lifecycle as cuke events.
//
// # Execution semantics
//
// A Plan is built from features once and may be executed many times. Execute
// runs every scenario of the plan on a bounded worker pool. Scenarios of
// different features, and of the same feature, may run in parallel.
//
// Inside a scenario the order is fixed: before hooks, feature background,
// rule background, steps, after hooks. After the first failed or skipped step
// the remaining steps are reported as skipped. After hooks always run.
//
// # Writer guarantees
//
// Execute calls cuke.Writer.HandleEvent from a single coordinator goroutine,
// so writers need no locking. The stream is nesting-valid:
//
//   - Started is the first event, followed by any parsing errors.
//   - A Feature (or Rule) Started event is emitted when its first scenario is
//     picked up by a worker, and its Finished event after its last scenario
//     has completed. Units with no scenario that ran emit nothing.
//   - Scenario events of one scenario are in order; events of different
//     scenarios interleave.
//   - Finished is the last event.
//
// Wrap the writer with cuke.Normalize to get sequential-looking output.
//
// # Fail-fast
//
// When WithFailFast is enabled, the runner stops starting new scenarios after
// the first failed scenario. Scenarios already running are allowed to
// complete. Scenarios that did not start emit no events and are counted as
// NotRun in the Summary.
//
// # Cancellation
//
// Canceling ctx stops new scenarios from starting. A running scenario reports
// its remaining steps as skipped once ctx is done.
package runner
