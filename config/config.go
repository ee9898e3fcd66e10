// Package config loads run settings from an HCL file.
//
//	workers      = 4
//	fail_fast    = false
//	normalize    = true
//	repeat       = ["failed"]
//	fixtures     = ["features"]
//	step_timeout = "5s"
//
//	log {
//	  level  = "info"
//	  format = "text"
//	}
//
//	live {
//	  url       = env.CUKE_LIVE_URL
//	  namespace = "/"
//	  event     = "cuke:event"
//	}
//
// Expressions may read the process environment through the env object.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/zclconf/go-cty/cty"

	"github.com/a2y-d5l/cuke"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Config is the resolved run configuration.
type Config struct {
	Workers     int
	FailFast    bool
	Normalize   bool
	Repeat      []string
	Fixtures    []string
	StepTimeout time.Duration
	Log         Log

	// Live is nil unless a live block is present.
	Live *Live
}

// Log configures the process logger.
type Log struct {
	Level  string
	Format string
}

// Live configures the socket.io event sink.
type Live struct {
	URL       string
	Namespace string
	Event     string
}

// hclFile is the on-disk shape. Pointers distinguish unset attributes from
// zero values.
type hclFile struct {
	Workers     *int      `hcl:"workers,optional"`
	FailFast    *bool     `hcl:"fail_fast,optional"`
	Normalize   *bool     `hcl:"normalize,optional"`
	Repeat      *[]string `hcl:"repeat,optional"`
	Fixtures    []string  `hcl:"fixtures,optional"`
	StepTimeout *string   `hcl:"step_timeout,optional"`
	Log         *hclLog   `hcl:"log,block"`
	Live        *hclLive  `hcl:"live,block"`
}

type hclLog struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

type hclLive struct {
	URL       string  `hcl:"url"`
	Namespace *string `hcl:"namespace,optional"`
	Event     *string `hcl:"event,optional"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Workers:   runtime.NumCPU(),
		Normalize: true,
		Repeat:    []string{"failed"},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultLive returns the defaults applied to a live block.
func DefaultLive() Live {
	return Live{Namespace: "/", Event: "cuke:event"}
}

// Load decodes the HCL file at path on top of Default and validates the
// result. Relative fixture paths are resolved against the file's directory.
func Load(ctx context.Context, path string) (*Config, error) {
	logger := cuke.LoggerFrom(ctx)
	logger.Debug("Decoding config file.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, diags)
	}

	var raw hclFile
	diags = gohcl.DecodeBody(file.Body, evalContext(), &raw)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, diags)
	}

	cfg, err := raw.resolve(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	logger.Debug("Successfully decoded config file.", "path", path, "workers", cfg.Workers)
	return cfg, nil
}

// evalContext exposes the process environment as env.<NAME>.
func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" || !hclIdentifier(name) {
			continue
		}
		vars[name] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}

func hclIdentifier(name string) bool {
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-'):
		default:
			return false
		}
	}
	return true
}

func (f *hclFile) resolve(dir string) (*Config, error) {
	cfg := Default()

	if f.Workers != nil {
		cfg.Workers = *f.Workers
	}
	if f.FailFast != nil {
		cfg.FailFast = *f.FailFast
	}
	if f.Normalize != nil {
		cfg.Normalize = *f.Normalize
	}
	if f.Repeat != nil {
		cfg.Repeat = slices.Clone(*f.Repeat)
	}
	for _, p := range f.Fixtures {
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		cfg.Fixtures = append(cfg.Fixtures, p)
	}
	if f.StepTimeout != nil {
		d, err := time.ParseDuration(*f.StepTimeout)
		if err != nil {
			return nil, fmt.Errorf("step_timeout: %w", err)
		}
		cfg.StepTimeout = d
	}
	if f.Log != nil {
		if f.Log.Level != nil {
			cfg.Log.Level = *f.Log.Level
		}
		if f.Log.Format != nil {
			cfg.Log.Format = *f.Log.Format
		}
	}
	if f.Live != nil {
		live := DefaultLive()
		live.URL = f.Live.URL
		if f.Live.Namespace != nil {
			live.Namespace = *f.Live.Namespace
		}
		if f.Live.Event != nil {
			live.Event = *f.Live.Event
		}
		cfg.Live = &live
	}

	return cfg, nil
}

// Validate reports every invalid setting, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.StepTimeout < 0 {
		errs = append(errs, fmt.Errorf("step_timeout must not be negative, got %s", c.StepTimeout))
	}
	if err := oneOf("log level", c.Log.Level, logLevels); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("log format", c.Log.Format, logFormats); err != nil {
		errs = append(errs, err)
	}
	for _, name := range c.Repeat {
		if _, ok := cuke.LookupFilter(name); !ok {
			errs = append(errs, unknown("repeat filter", name, cuke.FilterNames()))
		}
	}
	if c.Live != nil {
		if c.Live.URL == "" {
			errs = append(errs, errors.New("live url must not be empty"))
		}
		if !strings.HasPrefix(c.Live.Namespace, "/") {
			errs = append(errs, fmt.Errorf("live namespace must start with '/', got %q", c.Live.Namespace))
		}
		if c.Live.Event == "" {
			errs = append(errs, errors.New("live event must not be empty"))
		}
	}

	return errors.Join(errs...)
}

// RepeatFilter combines the configured repeat filters. It returns nil when
// none are configured. Call Validate first.
func (c *Config) RepeatFilter() cuke.FilterFunc {
	if len(c.Repeat) == 0 {
		return nil
	}
	fs := make([]cuke.FilterFunc, 0, len(c.Repeat))
	for _, name := range c.Repeat {
		if f, ok := cuke.LookupFilter(name); ok {
			fs = append(fs, f)
		}
	}
	return cuke.AnyFilter(fs...)
}

func oneOf(what, value string, allowed []string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return unknown(what, value, allowed)
}

func unknown(what, value string, candidates []string) error {
	if match := closestMatch(value, candidates); match != "" {
		return fmt.Errorf("unknown %s %q (did you mean %q?)", what, value, match)
	}
	return fmt.Errorf("unknown %s %q (expected one of %s)", what, value, strings.Join(candidates, ", "))
}

// closestMatch finds the closest candidate using fuzzy matching.
func closestMatch(target string, candidates []string) string {
	if target == "" || len(candidates) == 0 {
		return ""
	}
	ranks := fuzzy.RankFindFold(target, candidates)
	if len(ranks) == 0 {
		return ""
	}
	sort.Sort(ranks)
	return ranks[0].Target
}
