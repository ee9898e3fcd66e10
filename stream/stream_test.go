package stream_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2y-d5l/cuke"
	"github.com/a2y-d5l/cuke/runner"
	"github.com/a2y-d5l/cuke/stream"
	"github.com/a2y-d5l/cuke/writertest"
)

func TestStart_DeliversNormalizedRun(t *testing.T) {
	var features []*cuke.Feature
	for i := range 3 {
		f := &cuke.Feature{Name: fmt.Sprintf("F%d", i)}
		for j := range 4 {
			f.Scenarios = append(f.Scenarios, &cuke.Scenario{
				Name:  fmt.Sprintf("S%d", j),
				Steps: []*cuke.Step{{Keyword: "Given", Text: fmt.Sprintf("wait %d", (i+j)%3)}},
			})
		}
		features = append(features, f)
	}
	p, err := runner.BuildPlan(features...)
	require.NoError(t, err)

	rec := writertest.New()
	h := stream.Start(context.Background(), p, cuke.Normalize(rec),
		[]runner.ExecOption{
			runner.WithMaxWorkers(4),
			runner.WithSteps(func(_ context.Context, _ *runner.World, st *cuke.Step) error {
				var n int
				_, _ = fmt.Sscanf(st.Text, "wait %d", &n)
				time.Sleep(time.Duration(n) * 3 * time.Millisecond)
				return nil
			}),
		},
		stream.WithBuffer(2),
	)

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not complete")
	}

	sum, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, 12, sum.Scenarios.Passed)

	lines := rec.Lines()
	require.NotEmpty(t, lines)
	assert.Equal(t, "started", lines[0])
	assert.Equal(t, "finished", lines[len(lines)-1])

	// Each feature is one contiguous block.
	var order []string
	for _, line := range lines {
		if name, ok := strings.CutPrefix(line, "feature.started "); ok {
			order = append(order, name)
		}
	}
	assert.Len(t, order, 3)
	open := ""
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "feature.started "):
			require.Empty(t, open, "feature started while %s was open", open)
			open = strings.TrimPrefix(line, "feature.started ")
		case strings.HasPrefix(line, "feature.finished "):
			open = ""
		case strings.HasPrefix(line, "scenario.") || strings.HasPrefix(line, "step."):
			require.NotEmpty(t, open)
			require.True(t, strings.Contains(line, " "+open+"/"), "%q outside %s", line, open)
		}
	}
}

func TestStart_ReturnsRunError(t *testing.T) {
	boom := errors.New("boom")
	f := &cuke.Feature{Name: "F", Scenarios: []*cuke.Scenario{
		{Name: "S", Steps: []*cuke.Step{{Text: "x"}}},
	}}
	p, err := runner.BuildPlan(f)
	require.NoError(t, err)

	rec := writertest.New()
	h := stream.Start(context.Background(), p, rec, []runner.ExecOption{
		runner.WithSteps(func(context.Context, *runner.World, *cuke.Step) error { return boom }),
	})

	sum, err := h.Wait()
	require.ErrorIs(t, err, boom)
	assert.True(t, sum.Failed)
	assert.Equal(t, 1, h.Writer().FailedSteps())
}

func TestStart_CanceledRunStillReachesFinished(t *testing.T) {
	var features []*cuke.Feature
	for i := range 6 {
		f := &cuke.Feature{Name: fmt.Sprintf("F%d", i)}
		for j := range 3 {
			f.Scenarios = append(f.Scenarios, &cuke.Scenario{
				Name: fmt.Sprintf("S%d", j),
				Steps: []*cuke.Step{
					{Keyword: "Given", Text: "a"},
					{Keyword: "Then", Text: "b"},
				},
			})
		}
		features = append(features, f)
	}
	p, err := runner.BuildPlan(features...)
	require.NoError(t, err)

	for range 10 {
		ctx, cancel := context.WithCancel(context.Background())
		rec := writertest.New()
		h := stream.Start(ctx, p, cuke.Normalize(cuke.RepeatSkipped(rec)), []runner.ExecOption{
			runner.WithMaxWorkers(4),
			runner.WithSteps(func(context.Context, *runner.World, *cuke.Step) error {
				cancel()
				return nil
			}),
		})

		_, err := h.Wait()
		cancel()
		require.ErrorIs(t, err, context.Canceled)

		lines := rec.Lines()
		require.NotEmpty(t, lines)
		assert.Equal(t, "started", lines[0])

		finished := slices.Index(lines, "finished")
		require.GreaterOrEqual(t, finished, 0, "finished never reached the writer")
		for _, line := range lines[finished+1:] {
			assert.True(t, strings.HasPrefix(line, "step.skipped "), "unexpected replayed line %q", line)
		}

		starts, ends := 0, 0
		for _, line := range lines[:finished] {
			switch {
			case strings.HasPrefix(line, "feature.started "):
				starts++
			case strings.HasPrefix(line, "feature.finished "):
				ends++
			}
		}
		assert.Equal(t, starts, ends)
	}
}

func TestHandle_Nil(t *testing.T) {
	var h *stream.Handle
	<-h.Done()
	_, err := h.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, h.Writer())
}
