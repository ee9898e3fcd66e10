// Package cuke defines the event model of a Gherkin test run and the writer
// stages that put those events in a readable order.
//
// # Events
//
// A run emits a tree of events: the global Started, ParsingError and Finished
// events, and Feature events that nest Rule, Scenario, Step and Hook events.
// Entities (Feature, Rule, Scenario, Step) are shared by pointer and must not
// be mutated during a run.
//
// # Writers
//
// Events are consumed by a Writer. Stages wrap a Writer and can be stacked:
//
//	w := cuke.Normalize(cuke.RepeatFailed(cuke.Tee(logSink, liveSink)))
//
// # Normalization
//
// Scenarios may execute in parallel, so the raw stream interleaves features
// and scenarios. Normalize buffers events and releases them so that each
// Feature, Rule and Scenario appears as one contiguous block, in the order
// the units were started. Events are never dropped, duplicated or altered.
//
// # Repeating
//
// Repeat forwards every event and, after the global Finished event, writes
// the events selected by a FilterFunc again as a summary tail.
//
// # Writer guarantees
//
//   - HandleEvent is never called concurrently by the stages in this package.
//     Producers running scenarios in parallel serialize their deliveries
//     (package stream does this with a channel).
//   - For every unit, Started is delivered before any nested event and
//     Finished after all of them.
//   - A reference to a Feature or Rule that was never started is a producer
//     bug; Normalizer panics with an error wrapping ErrContractViolation.
package cuke
