package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/a2y-d5l/cuke"
	"github.com/a2y-d5l/cuke/config"
)

// ExitError is an error carrying the process exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns the merged
// configuration, a boolean indicating if the program should exit cleanly, or
// an ExitError.
func Parse(ctx context.Context, args []string, output io.Writer) (*config.Config, bool, error) {
	logger := cuke.LoggerFrom(ctx)
	logger.Debug("CLI parser started.")

	flagSet := flag.NewFlagSet("cuke", flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, `
cuke - Run scripted Gherkin fixtures and report events in a readable order.

Usage:
  cuke [options] [FIXTURE_PATH...]

Arguments:
  FIXTURE_PATH
    A .yaml/.yml fixture file or a directory searched recursively.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to an HCL configuration file.")
	workersFlag := flagSet.Int("workers", 0, "Number of scenarios run concurrently. Defaults to the number of CPUs.")
	failFastFlag := flagSet.Bool("fail-fast", false, "Stop starting scenarios after the first failure.")
	noNormalizeFlag := flagSet.Bool("no-normalize", false, "Write events in completion order instead of normalized order.")
	repeatFlag := flagSet.String("repeat", "", "Comma-separated filters replayed after the run. Options: 'failed', 'skipped', or 'none'.")
	stepTimeoutFlag := flagSet.Duration("step-timeout", 0, "Timeout of a single step. 0 is disabled.")
	logLevelFlag := flagSet.String("log-level", "", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	logFormatFlag := flagSet.String("log-format", "", "Log output format. Options: 'text' or 'json'.")
	liveURLFlag := flagSet.String("live-url", "", "socket.io endpoint receiving every event.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	logger.Debug("Arguments parsed successfully.")

	cfg := config.Default()
	if *configFlag != "" {
		loaded, err := config.Load(ctx, *configFlag)
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
		cfg = loaded
	}

	set := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["workers"] {
		cfg.Workers = *workersFlag
	}
	if set["fail-fast"] {
		cfg.FailFast = *failFastFlag
	}
	if set["no-normalize"] {
		cfg.Normalize = !*noNormalizeFlag
	}
	if set["repeat"] {
		cfg.Repeat = splitList(*repeatFlag)
	}
	if set["step-timeout"] {
		cfg.StepTimeout = *stepTimeoutFlag
	}
	if set["log-level"] {
		cfg.Log.Level = strings.ToLower(*logLevelFlag)
	}
	if set["log-format"] {
		cfg.Log.Format = strings.ToLower(*logFormatFlag)
	}
	if set["live-url"] {
		live := config.DefaultLive()
		if cfg.Live != nil {
			live = *cfg.Live
		}
		live.URL = *liveURLFlag
		cfg.Live = &live
	}
	cfg.Fixtures = append(cfg.Fixtures, flagSet.Args()...)

	if len(cfg.Fixtures) == 0 {
		logger.Debug("No fixture paths provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	logger.Debug("CLI parser finished successfully.", "fixtures", len(cfg.Fixtures))
	return cfg, false, nil
}

// splitList splits a comma-separated flag value. "none" yields no entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" || part == "none" {
			continue
		}
		out = append(out, part)
	}
	return out
}
