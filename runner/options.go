package runner

import (
	"runtime"
	"time"
)

// ExecOption configures a single Execute run.
type ExecOption func(*execConfig)

type execConfig struct {
	steps            StepFunc
	before           []HookFunc
	after            []HookFunc
	parsingErrors    []error
	stepTimeout      time.Duration
	maxWorkers       int
	failFast         bool
	collectAllErrors bool
}

// WithSteps sets the function executing every step.
//
// Without it every step is reported as skipped.
func WithSteps(fn StepFunc) ExecOption {
	return func(c *execConfig) {
		c.steps = fn
	}
}

// WithBeforeHook adds a hook run before the steps of every scenario. Hooks run
// in the order they were added.
func WithBeforeHook(fn HookFunc) ExecOption {
	return func(c *execConfig) {
		if fn != nil {
			c.before = append(c.before, fn)
		}
	}
}

// WithAfterHook adds a hook run after the steps of every scenario, even when
// a step or a before hook failed.
func WithAfterHook(fn HookFunc) ExecOption {
	return func(c *execConfig) {
		if fn != nil {
			c.after = append(c.after, fn)
		}
	}
}

// WithStepTimeout bounds the execution of every step.
//
// Values <= 0 disable the timeout. A step that does not complete in time
// fails with context.DeadlineExceeded. The run context's deadline still
// applies if it is shorter.
func WithStepTimeout(d time.Duration) ExecOption {
	return func(c *execConfig) {
		c.stepTimeout = d
	}
}

// WithMaxWorkers sets the maximum number of scenarios running concurrently.
//
// Values <= 0 are normalized to runtime.NumCPU().
func WithMaxWorkers(n int) ExecOption {
	return func(c *execConfig) {
		c.maxWorkers = n
	}
}

// WithFailFast stops starting new scenarios after the first failed scenario.
//
// Scenarios already running are allowed to complete.
func WithFailFast() ExecOption {
	return func(c *execConfig) {
		c.failFast = true
	}
}

// WithCollectAllErrors causes Execute to return all scenario failures joined
// via errors.Join, in plan order.
func WithCollectAllErrors() ExecOption {
	return func(c *execConfig) {
		c.collectAllErrors = true
	}
}

// WithParsingErrors reports errs as ParsingError events right after the
// global Started event. Nil errors are ignored.
func WithParsingErrors(errs ...error) ExecOption {
	return func(c *execConfig) {
		for _, err := range errs {
			if err != nil {
				c.parsingErrors = append(c.parsingErrors, err)
			}
		}
	}
}

func defaultExecConfig() execConfig {
	return execConfig{
		maxWorkers: runtime.NumCPU(),
	}
}
