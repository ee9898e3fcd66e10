// Package stream decouples event producers from slow writers.
//
// # Serializer
//
// Serializer implements cuke.Writer with a HandleEvent that is safe for
// concurrent callers. Events are queued on a channel in arrival order and a
// single goroutine forwards them to the wrapped writer, so the wrapped writer
// (for example a cuke.Normalizer) never sees concurrent calls.
//
// Events are never dropped while the Serializer is open, whatever the state of
// the caller's context: a full buffer blocks HandleEvent until the forwarding
// goroutine catches up. The wrapped writer sees the caller's context values
// without its cancellation, so sinks still write the end of a canceled run.
//
// # Start
//
// Start runs runner.Plan.Execute in a goroutine against a Serializer and
// exposes completion via a Handle.
package stream
