package config_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2y-d5l/cuke"
	"github.com/a2y-d5l/cuke/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.True(t, cfg.Normalize)
	assert.False(t, cfg.FailFast)
	assert.Equal(t, []string{"failed"}, cfg.Repeat)
	assert.Equal(t, config.Log{Level: "info", Format: "text"}, cfg.Log)
	assert.Nil(t, cfg.Live)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Full(t *testing.T) {
	t.Setenv("CUKE_TEST_LIVE_URL", "http://127.0.0.1:9000")

	path := filepath.Join("testdata", "full.hcl")
	cfg, err := config.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Workers)
	assert.True(t, cfg.FailFast)
	assert.False(t, cfg.Normalize)
	assert.Equal(t, []string{"failed", "skipped"}, cfg.Repeat)
	assert.Equal(t, []string{filepath.Join("testdata", "features"), "/abs/features"}, cfg.Fixtures)
	assert.Equal(t, 250*time.Millisecond, cfg.StepTimeout)
	assert.Equal(t, config.Log{Level: "debug", Format: "json"}, cfg.Log)

	require.NotNil(t, cfg.Live)
	assert.Equal(t, config.Live{
		URL:       "http://127.0.0.1:9000",
		Namespace: "/",
		Event:     "run:event",
	}, *cfg.Live)
}

func TestLoad_MinimalKeepsDefaults(t *testing.T) {
	cfg, err := config.Load(context.Background(), filepath.Join("testdata", "minimal.hcl"))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Workers)
	assert.True(t, cfg.Normalize)
	assert.Equal(t, []string{"failed"}, cfg.Repeat)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Fixtures)
}

func TestLoad_InvalidReportsEverything(t *testing.T) {
	_, err := config.Load(context.Background(), filepath.Join("testdata", "invalid.hcl"))
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "workers must be positive, got 0")
	assert.Contains(t, msg, `unknown repeat filter "faild" (did you mean "failed"?)`)
	assert.Contains(t, msg, `unknown log level "verbose"`)
	assert.Contains(t, msg, `unknown log format "jsn" (did you mean "json"?)`)
}

func TestLoad_SyntaxError(t *testing.T) {
	_, err := config.Load(context.Background(), filepath.Join("testdata", "syntax.hcl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := config.Load(context.Background(), filepath.Join("testdata", "duration.hcl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step_timeout")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(context.Background(), filepath.Join("testdata", "nope.hcl"))
	require.Error(t, err)
}

func TestValidate_Live(t *testing.T) {
	cfg := config.Default()
	cfg.Live = &config.Live{Namespace: "chat"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "live url must not be empty")
	assert.Contains(t, err.Error(), "live namespace must start with '/'")
	assert.Contains(t, err.Error(), "live event must not be empty")
}

func TestRepeatFilter(t *testing.T) {
	s := &cuke.Scenario{Name: "S", Steps: []*cuke.Step{{Keyword: "Given", Text: "a"}}}
	f := &cuke.Feature{Name: "F", Scenarios: []*cuke.Scenario{s}}
	skipped := cuke.ScenarioEventFor(f, nil, s,
		cuke.StepEventFor(s.Steps[0], cuke.StepEvent{Kind: cuke.StepSkipped}))

	cfg := config.Default()
	assert.False(t, cfg.RepeatFilter()(skipped))

	cfg.Repeat = append(cfg.Repeat, "skipped")
	assert.True(t, cfg.RepeatFilter()(skipped))

	cfg.Repeat = nil
	assert.Nil(t, cfg.RepeatFilter())
}
