package runner_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2y-d5l/cuke"
	"github.com/a2y-d5l/cuke/runner"
	"github.com/a2y-d5l/cuke/writertest"
)

func steps(texts ...string) []*cuke.Step {
	out := make([]*cuke.Step, 0, len(texts))
	for _, text := range texts {
		out = append(out, &cuke.Step{Keyword: "Given", Text: text})
	}
	return out
}

// scripted fails steps whose text starts with "fail", skips those starting
// with "skip" and passes the rest.
func scripted(_ context.Context, _ *runner.World, st *cuke.Step) error {
	switch {
	case strings.HasPrefix(st.Text, "fail"):
		return errors.New(st.Text)
	case strings.HasPrefix(st.Text, "skip"):
		return runner.ErrSkip
	}
	return nil
}

func mustPlan(t *testing.T, features ...*cuke.Feature) *runner.Plan {
	t.Helper()
	p, err := runner.BuildPlan(features...)
	if err != nil {
		t.Fatalf("BuildPlan error: %v", err)
	}
	return p
}

func TestExecute_SequentialOrderAndBoundaries(t *testing.T) {
	s1 := &cuke.Scenario{Name: "plain", Steps: steps("a")}
	s2 := &cuke.Scenario{Name: "ruled", Steps: steps("b")}
	r := &cuke.Rule{Name: "R", Background: steps("rule bg"), Scenarios: []*cuke.Scenario{s2}}
	f := &cuke.Feature{
		Name:       "F",
		Background: steps("feature bg"),
		Scenarios:  []*cuke.Scenario{s1},
		Rules:      []*cuke.Rule{r},
	}
	empty := &cuke.Feature{Name: "Empty"}

	rec := writertest.New()
	hook := func(context.Context, *runner.World, *cuke.Scenario) error { return nil }
	sum, err := mustPlan(t, f, empty).Execute(context.Background(), rec,
		runner.WithMaxWorkers(1),
		runner.WithSteps(scripted),
		runner.WithBeforeHook(hook),
		runner.WithAfterHook(hook),
	)
	require.NoError(t, err)

	want := []string{
		"started",
		"feature.started F",
		"scenario.started F/plain",
		"hook.before.started F/plain",
		"hook.before.passed F/plain",
		"background.started F/plain: Given feature bg",
		"background.passed F/plain: Given feature bg",
		"step.started F/plain: Given a",
		"step.passed F/plain: Given a",
		"hook.after.started F/plain",
		"hook.after.passed F/plain",
		"scenario.finished F/plain",
		"rule.started F/R",
		"scenario.started F/R/ruled",
		"hook.before.started F/R/ruled",
		"hook.before.passed F/R/ruled",
		"background.started F/R/ruled: Given feature bg",
		"background.passed F/R/ruled: Given feature bg",
		"background.started F/R/ruled: Given rule bg",
		"background.passed F/R/ruled: Given rule bg",
		"step.started F/R/ruled: Given b",
		"step.passed F/R/ruled: Given b",
		"hook.after.started F/R/ruled",
		"hook.after.passed F/R/ruled",
		"scenario.finished F/R/ruled",
		"rule.finished F/R",
		"feature.finished F",
		"finished",
	}
	if diff := cmp.Diff(want, rec.Lines()); diff != "" {
		t.Fatalf("event order mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, runner.ScenarioCounts{Passed: 2}, sum.Scenarios)
	assert.Equal(t, runner.StepCounts{Passed: 5}, sum.Steps)
	assert.False(t, sum.Failed)
}

func TestExecute_FailedStepSkipsRemainingSteps(t *testing.T) {
	s := &cuke.Scenario{Name: "S", Steps: steps("a", "fail here", "c", "d")}
	f := &cuke.Feature{Name: "F", Scenarios: []*cuke.Scenario{s}}

	var afterRan atomic.Bool
	rec := writertest.New()
	sum, err := mustPlan(t, f).Execute(context.Background(), rec,
		runner.WithSteps(scripted),
		runner.WithAfterHook(func(context.Context, *runner.World, *cuke.Scenario) error {
			afterRan.Store(true)
			return nil
		}),
	)

	require.Error(t, err)
	assert.Contains(t, err.Error(), `scenario "F/S"`)
	assert.Contains(t, err.Error(), "fail here")
	assert.True(t, afterRan.Load(), "after hooks must run after a failure")

	assert.Equal(t, runner.StepCounts{Passed: 1, Failed: 1, Skipped: 2}, sum.Steps)
	assert.Equal(t, runner.ScenarioCounts{Failed: 1}, sum.Scenarios)
	assert.True(t, sum.Failed)
	assert.Equal(t, 1, rec.FailedSteps())

	lines := rec.Lines()
	assert.Contains(t, lines, "step.skipped F/S: Given c")
	assert.Contains(t, lines, "step.skipped F/S: Given d")
	assert.NotContains(t, lines, "step.started F/S: Given c")
}

func TestExecute_ErrSkipSkipsRemainingSteps(t *testing.T) {
	s := &cuke.Scenario{Name: "S", Steps: steps("skip me", "b")}
	f := &cuke.Feature{Name: "F", Scenarios: []*cuke.Scenario{s}}

	rec := writertest.New()
	sum, err := mustPlan(t, f).Execute(context.Background(), rec, runner.WithSteps(scripted))
	require.NoError(t, err)

	assert.Equal(t, runner.StepCounts{Skipped: 2}, sum.Steps)
	assert.Equal(t, runner.ScenarioCounts{Passed: 1}, sum.Scenarios)

	lines := rec.Lines()
	assert.Contains(t, lines, "step.started F/S: Given skip me")
	assert.Contains(t, lines, "step.skipped F/S: Given skip me")
	assert.Contains(t, lines, "step.skipped F/S: Given b")
}

func TestExecute_UndefinedStepsAreSkipped(t *testing.T) {
	f := &cuke.Feature{Name: "F", Scenarios: []*cuke.Scenario{{Name: "S", Steps: steps("a", "b")}}}

	sum, err := mustPlan(t, f).Execute(context.Background(), writertest.New())
	require.NoError(t, err)
	assert.Equal(t, runner.StepCounts{Skipped: 2}, sum.Steps)
}

func TestExecute_FailedBeforeHookSkipsStepsButRunsAfterHooks(t *testing.T) {
	f := &cuke.Feature{Name: "F", Scenarios: []*cuke.Scenario{{Name: "S", Steps: steps("a")}}}
	boom := errors.New("boom")

	rec := writertest.New()
	sum, err := mustPlan(t, f).Execute(context.Background(), rec,
		runner.WithSteps(scripted),
		runner.WithBeforeHook(func(context.Context, *runner.World, *cuke.Scenario) error { return boom }),
		runner.WithAfterHook(func(context.Context, *runner.World, *cuke.Scenario) error { return nil }),
	)

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, sum.HookErrors)
	assert.Equal(t, runner.StepCounts{Skipped: 1}, sum.Steps)
	assert.Equal(t, 1, rec.HookErrors())
	assert.Contains(t, rec.Lines(), "hook.after.passed F/S")
}

func TestExecute_PanickingStepFails(t *testing.T) {
	f := &cuke.Feature{Name: "F", Scenarios: []*cuke.Scenario{{Name: "S", Steps: steps("a")}}}

	sum, err := mustPlan(t, f).Execute(context.Background(), writertest.New(),
		runner.WithSteps(func(context.Context, *runner.World, *cuke.Step) error {
			panic("kaboom")
		}),
	)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: kaboom")
	assert.Equal(t, 1, sum.Steps.Failed)
}

func TestExecute_WorldIsPerScenario(t *testing.T) {
	f := &cuke.Feature{Name: "F", Scenarios: []*cuke.Scenario{
		{Name: "one", Steps: steps("store", "load")},
		{Name: "two", Steps: steps("load")},
	}}

	_, err := mustPlan(t, f).Execute(context.Background(), writertest.New(),
		runner.WithSteps(func(_ context.Context, w *runner.World, st *cuke.Step) error {
			if st.Text == "store" {
				runner.Store(w, "n", 1)
				return nil
			}
			if n, ok := runner.Load[int](w, "n"); ok && n == 1 && !w.Has("seen") {
				runner.Store(w, "seen", true)
				return nil
			}
			return errors.New("no value stored in this scenario")
		}),
		runner.WithCollectAllErrors(),
	)

	require.Error(t, err)
	assert.Contains(t, err.Error(), `scenario "F/two"`)
	assert.NotContains(t, err.Error(), `scenario "F/one"`)
}

func TestExecute_StepTimeout(t *testing.T) {
	f := &cuke.Feature{Name: "F", Scenarios: []*cuke.Scenario{{Name: "S", Steps: steps("slow")}}}

	_, err := mustPlan(t, f).Execute(context.Background(), writertest.New(),
		runner.WithStepTimeout(50*time.Millisecond),
		runner.WithSteps(func(ctx context.Context, _ *runner.World, _ *cuke.Step) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(10 * time.Second):
				return nil
			}
		}),
	)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestExecute_ZeroStepTimeoutSetsNoDeadline(t *testing.T) {
	f := &cuke.Feature{Name: "F", Scenarios: []*cuke.Scenario{{Name: "S", Steps: steps("a")}}}

	_, err := mustPlan(t, f).Execute(context.Background(), writertest.New(),
		runner.WithStepTimeout(0),
		runner.WithSteps(func(ctx context.Context, _ *runner.World, _ *cuke.Step) error {
			if _, ok := ctx.Deadline(); ok {
				return errors.New("unexpected deadline")
			}
			return nil
		}),
	)
	require.NoError(t, err)
}

func TestExecute_ParsingErrorsFollowStarted(t *testing.T) {
	f := &cuke.Feature{Name: "F", Scenarios: []*cuke.Scenario{{Name: "S"}}}

	rec := writertest.New()
	sum, err := mustPlan(t, f).Execute(context.Background(), rec,
		runner.WithParsingErrors(errors.New("bad.feature"), nil),
	)
	require.NoError(t, err)

	lines := rec.Lines()
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, []string{"started", "parsing_error"}, lines[:2])
	assert.Equal(t, 1, sum.ParsingErrors)
	assert.True(t, cuke.ExecutionHasFailed(rec))
}

func TestExecute_FailFastSkipsQueuedButNotStarted(t *testing.T) {
	// With a single worker, A fails first and B/C are dequeued and not started.
	f1 := &cuke.Feature{Name: "F1", Scenarios: []*cuke.Scenario{
		{Name: "A", Steps: steps("fail")},
		{Name: "B", Steps: steps("ok")},
	}}
	f2 := &cuke.Feature{Name: "F2", Scenarios: []*cuke.Scenario{{Name: "C", Steps: steps("ok")}}}

	rec := writertest.New()
	sum, err := mustPlan(t, f1, f2).Execute(context.Background(), rec,
		runner.WithMaxWorkers(1),
		runner.WithFailFast(),
		runner.WithSteps(scripted),
	)
	if err == nil {
		t.Fatalf("expected error")
	}

	assert.Equal(t, runner.ScenarioCounts{Failed: 1, NotRun: 2}, sum.Scenarios)

	want := []string{
		"started",
		"feature.started F1",
		"scenario.started F1/A",
		"step.started F1/A: Given fail",
		"step.failed F1/A: Given fail",
		"scenario.finished F1/A",
		"feature.finished F1",
		"finished",
	}
	if diff := cmp.Diff(want, rec.Lines()); diff != "" {
		t.Fatalf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_NoFailFastRunsEverything(t *testing.T) {
	f := &cuke.Feature{Name: "F", Scenarios: []*cuke.Scenario{
		{Name: "A", Steps: steps("fail")},
		{Name: "B", Steps: steps("ok")},
	}}

	sum, err := mustPlan(t, f).Execute(context.Background(), writertest.New(),
		runner.WithMaxWorkers(1),
		runner.WithSteps(scripted),
	)
	require.Error(t, err)
	assert.Equal(t, runner.ScenarioCounts{Passed: 1, Failed: 1}, sum.Scenarios)
}

func TestExecute_PreCanceledContextDoesNotDeadlock(t *testing.T) {
	f := &cuke.Feature{Name: "F", Scenarios: []*cuke.Scenario{{Name: "A"}, {Name: "B"}}}
	p := mustPlan(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel before Execute

	rec := writertest.New()
	done := make(chan struct{})
	var sum runner.Summary
	var runErr error

	go func() {
		sum, runErr = p.Execute(ctx, rec)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deadlock: Execute did not return within timeout")
	}

	if !errors.Is(runErr, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", runErr)
	}
	assert.Equal(t, runner.ScenarioCounts{NotRun: 2}, sum.Scenarios)
	assert.Equal(t, []string{"started", "finished"}, rec.Lines())
}

func TestExecute_CancellationSkipsRemainingSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &cuke.Feature{Name: "F", Scenarios: []*cuke.Scenario{{Name: "S", Steps: steps("block", "after")}}}

	rec := writertest.New()
	sum, err := mustPlan(t, f).Execute(ctx, rec,
		runner.WithSteps(func(ctx context.Context, _ *runner.World, _ *cuke.Step) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		}),
	)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	assert.False(t, sum.Failed)
	assert.Equal(t, runner.StepCounts{Skipped: 2}, sum.Steps)
	assert.Contains(t, rec.Lines(), "scenario.finished F/S")
}

func TestExecute_CollectAllErrorsInPlanOrder(t *testing.T) {
	f := &cuke.Feature{Name: "F", Scenarios: []*cuke.Scenario{
		{Name: "Z", Steps: steps("fail Z")},
		{Name: "A", Steps: steps("fail A")},
		{Name: "M", Steps: steps("ok")},
	}}
	p := mustPlan(t, f)

	var messages []string
	for range 10 {
		_, err := p.Execute(context.Background(), writertest.New(),
			runner.WithSteps(scripted),
			runner.WithCollectAllErrors(),
			runner.WithMaxWorkers(3),
		)
		require.Error(t, err)
		messages = append(messages, err.Error())
	}

	for i := 1; i < len(messages); i++ {
		if messages[i] != messages[0] {
			t.Errorf("non-deterministic error ordering:\n  run 0: %s\n  run %d: %s",
				messages[0], i, messages[i])
		}
	}

	z := strings.Index(messages[0], `"F/Z"`)
	a := strings.Index(messages[0], `"F/A"`)
	if z < 0 || a < 0 || z > a {
		t.Errorf("expected plan ordering Z then A, got: %s", messages[0])
	}
	assert.NotContains(t, messages[0], `"F/M"`)
}

func TestExecute_DefaultReturnsFirstFailureOnly(t *testing.T) {
	f := &cuke.Feature{Name: "F", Scenarios: []*cuke.Scenario{
		{Name: "A", Steps: steps("fail A")},
		{Name: "B", Steps: steps("fail B")},
	}}

	_, err := mustPlan(t, f).Execute(context.Background(), writertest.New(), runner.WithSteps(scripted))
	require.Error(t, err)

	hasA := strings.Contains(err.Error(), "fail A")
	hasB := strings.Contains(err.Error(), "fail B")
	if hasA == hasB {
		t.Fatalf("expected exactly one failure in error, got %v", err)
	}
}

func TestExecute_NilArguments(t *testing.T) {
	p := mustPlan(t, &cuke.Feature{Name: "F"})

	if _, err := p.Execute(nil, writertest.New()); err == nil {
		t.Fatal("expected error for nil context")
	}
	if _, err := p.Execute(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil writer")
	}
}

// assertSequential checks that features and scenarios appear as contiguous
// blocks, which is what a Normalizer guarantees.
func assertSequential(t *testing.T, evs []cuke.Event) {
	t.Helper()
	var (
		feature  *cuke.Feature
		scenario *cuke.Scenario
	)
	for i, ev := range evs {
		if ev.Kind != cuke.EventFeature {
			continue
		}
		switch ev.FeatureEvent.Kind {
		case cuke.FeatureStarted:
			require.Nil(t, feature, "event %d: feature %q started inside another", i, ev.Feature.Name)
			feature = ev.Feature
		case cuke.FeatureFinished:
			require.Same(t, feature, ev.Feature, "event %d", i)
			feature = nil
		default:
			require.Same(t, feature, ev.Feature, "event %d: %s", i, ev.Describe())
			_, s, se, ok := ev.InScenario()
			if !ok {
				continue
			}
			switch se.Kind {
			case cuke.ScenarioStarted:
				require.Nil(t, scenario, "event %d: scenario %q interleaved", i, s.Name)
				scenario = s
			case cuke.ScenarioFinished:
				require.Same(t, scenario, s, "event %d", i)
				scenario = nil
			default:
				require.Same(t, scenario, s, "event %d: %s", i, ev.Describe())
			}
		}
	}
}

func TestExecute_ParallelRunNormalizesToSequentialBlocks(t *testing.T) {
	var features []*cuke.Feature
	for fi := range 4 {
		f := &cuke.Feature{Name: fmt.Sprintf("F%d", fi), Background: steps("bg")}
		for si := range 5 {
			f.Scenarios = append(f.Scenarios, &cuke.Scenario{
				Name:  fmt.Sprintf("S%d", si),
				Steps: steps(fmt.Sprintf("sleep %d", (fi+si)%3), "ok"),
			})
		}
		f.Rules = []*cuke.Rule{{
			Name:      "R",
			Scenarios: []*cuke.Scenario{{Name: "in rule", Steps: steps("sleep 1", "fail maybe")}},
		}}
		features = append(features, f)
	}
	p := mustPlan(t, features...)

	sleepy := func(ctx context.Context, w *runner.World, st *cuke.Step) error {
		var n int
		if _, err := fmt.Sscanf(st.Text, "sleep %d", &n); err == nil {
			time.Sleep(time.Duration(n) * 5 * time.Millisecond)
			return nil
		}
		return scripted(ctx, w, st)
	}

	seq := writertest.New()
	_, _ = p.Execute(context.Background(), seq, runner.WithMaxWorkers(1), runner.WithSteps(sleepy))

	par := writertest.New()
	norm := cuke.Normalize(par)
	_, _ = p.Execute(context.Background(), norm, runner.WithMaxWorkers(8), runner.WithSteps(sleepy))

	assertSequential(t, par.Events())
	assertSequential(t, seq.Events())

	got, want := par.Lines(), seq.Lines()
	require.Equal(t, "finished", got[len(got)-1])
	slices.Sort(got)
	slices.Sort(want)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("normalized content differs from sequential run (-want +got):\n%s", diff)
	}
	assert.Equal(t, 4, norm.FailedSteps())
}
