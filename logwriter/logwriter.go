// Package logwriter writes run events to a structured logger.
package logwriter

import (
	"context"
	"log/slog"
	"sync"

	"github.com/a2y-d5l/cuke"
)

// Writer logs every event it receives, one record per event.
//
// Failures are logged at Error, skips at Warn, run and feature boundaries at
// Info and everything else at Debug. Events that arrive after the global
// Finished event are a replayed tail; they are logged with replay=true and
// are not counted again.
type Writer struct {
	logger *slog.Logger

	mu            sync.Mutex
	finished      bool
	failedSteps   int
	parsingErrors int
	hookErrors    int
}

// New returns a Writer logging to logger. A nil logger discards records.
func New(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{logger: logger}
}

// HandleEvent logs ev.
func (w *Writer) HandleEvent(ctx context.Context, ev cuke.Event) {
	w.mu.Lock()
	replay := w.finished
	if !replay {
		w.count(ev)
	}
	if ev.Kind == cuke.EventFinished {
		w.finished = true
	}
	w.mu.Unlock()

	d := ev.Describe()
	attrs := attrsOf(d)
	if replay {
		attrs = append(attrs, slog.Bool("replay", true))
	}
	w.logger.LogAttrs(ctx, levelOf(ev), d.Kind, attrs...)
}

func (w *Writer) count(ev cuke.Event) {
	if ev.Kind == cuke.EventParsingError {
		w.parsingErrors++
		return
	}
	_, _, se, ok := ev.InScenario()
	if !ok {
		return
	}
	switch se.Kind {
	case cuke.ScenarioStep, cuke.ScenarioBackground:
		if se.StepEvent.Kind == cuke.StepFailed {
			w.failedSteps++
		}
	case cuke.ScenarioHook:
		if se.HookEvent.Kind == cuke.HookFailed {
			w.hookErrors++
		}
	}
}

// NonTransforming implements cuke.NonTransforming.
func (w *Writer) NonTransforming() {}

// FailedSteps implements cuke.Failure.
func (w *Writer) FailedSteps() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failedSteps
}

// ParsingErrors implements cuke.Failure.
func (w *Writer) ParsingErrors() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.parsingErrors
}

// HookErrors implements cuke.Failure.
func (w *Writer) HookErrors() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hookErrors
}

func levelOf(ev cuke.Event) slog.Level {
	switch ev.Kind {
	case cuke.EventParsingError:
		return slog.LevelError
	case cuke.EventStarted, cuke.EventFinished:
		return slog.LevelInfo
	}

	switch ev.FeatureEvent.Kind {
	case cuke.FeatureStarted, cuke.FeatureFinished:
		return slog.LevelInfo
	}

	_, _, se, ok := ev.InScenario()
	if !ok {
		return slog.LevelDebug
	}
	switch se.Kind {
	case cuke.ScenarioStep, cuke.ScenarioBackground:
		switch se.StepEvent.Kind {
		case cuke.StepFailed:
			return slog.LevelError
		case cuke.StepSkipped:
			return slog.LevelWarn
		}
	case cuke.ScenarioHook:
		if se.HookEvent.Kind == cuke.HookFailed {
			return slog.LevelError
		}
	}
	return slog.LevelDebug
}

func attrsOf(d cuke.Description) []slog.Attr {
	attrs := make([]slog.Attr, 0, 6)
	for _, f := range [...]struct{ key, value string }{
		{"feature", d.Feature},
		{"rule", d.Rule},
		{"scenario", d.Scenario},
		{"step", d.Step},
		{"error", d.Error},
	} {
		if f.value != "" {
			attrs = append(attrs, slog.String(f.key, f.value))
		}
	}
	return attrs
}
