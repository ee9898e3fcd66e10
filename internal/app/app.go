package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/a2y-d5l/cuke"
	"github.com/a2y-d5l/cuke/config"
	"github.com/a2y-d5l/cuke/fixture"
	"github.com/a2y-d5l/cuke/live"
	"github.com/a2y-d5l/cuke/logwriter"
	"github.com/a2y-d5l/cuke/runner"
	"github.com/a2y-d5l/cuke/stream"
)

// ErrRunFailed is returned by Run when the run completed but saw a failed
// step, a failed hook or a parsing error.
var ErrRunFailed = errors.New("run failed")

// App holds the configuration and logger of a single run.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	runID  string
}

// New returns an App logging to outW.
func New(outW io.Writer, cfg *config.Config) *App {
	runID := uuid.NewString()
	logger := newLogger(cfg.Log.Level, cfg.Log.Format, outW).With("run_id", runID)
	logger.Debug("Logger configured successfully.")

	return &App{
		cfg:    cfg,
		logger: logger,
		runID:  runID,
	}
}

// RunID identifies this run in logs and live payloads.
func (a *App) RunID() string {
	return a.runID
}

// Run loads the fixtures and executes them.
func (a *App) Run(ctx context.Context) (runner.Summary, error) {
	ctx = cuke.WithLogger(ctx, a.logger)

	suite, err := fixture.Load(a.cfg.Fixtures...)
	if err != nil {
		return runner.Summary{}, fmt.Errorf("failed to load fixtures: %w", err)
	}
	a.logger.Debug("Fixtures loaded.",
		"features", len(suite.Features),
		"parse_errors", len(suite.ParseErrors),
	)

	plan, err := runner.BuildPlan(suite.Features...)
	if err != nil {
		return runner.Summary{}, err
	}

	sinks := []cuke.NonTransforming{logwriter.New(a.logger)}
	if a.cfg.Live != nil {
		lw, err := live.Dial(ctx, live.Config{
			URL:       a.cfg.Live.URL,
			Namespace: a.cfg.Live.Namespace,
			Event:     a.cfg.Live.Event,
			RunID:     a.runID,
		})
		if err != nil {
			return runner.Summary{}, err
		}
		defer lw.Close()
		sinks = append(sinks, lw)
	}

	w := a.pipeline(cuke.Tee(sinks...))

	execOpts := []runner.ExecOption{
		runner.WithSteps(suite.Steps),
		runner.WithMaxWorkers(a.cfg.Workers),
		runner.WithStepTimeout(a.cfg.StepTimeout),
		runner.WithParsingErrors(suite.Errors()...),
	}
	if a.cfg.FailFast {
		execOpts = append(execOpts, runner.WithFailFast())
	}

	a.logger.Info("Starting run.", "scenarios", plan.Len(), "workers", a.cfg.Workers)
	handle := stream.Start(ctx, plan, w, execOpts)
	summary, err := handle.Wait()

	a.logger.Info("Run complete.",
		"scenarios_passed", summary.Scenarios.Passed,
		"scenarios_failed", summary.Scenarios.Failed,
		"scenarios_not_run", summary.Scenarios.NotRun,
		"steps", summary.Steps.Total(),
		"parsing_errors", summary.ParsingErrors,
	)

	if err != nil {
		return summary, err
	}
	if cuke.ExecutionHasFailed(handle.Writer()) {
		return summary, ErrRunFailed
	}
	return summary, nil
}

// pipeline builds Normalize(Repeat(sink, filter)), leaving out the stages
// the configuration disables.
func (a *App) pipeline(sink cuke.NonTransforming) cuke.Writer {
	var w cuke.Writer = sink
	if filter := a.cfg.RepeatFilter(); filter != nil {
		w = cuke.Repeat(sink, filter)
	}
	if a.cfg.Normalize {
		w = cuke.Normalize(w)
	}
	return w
}
