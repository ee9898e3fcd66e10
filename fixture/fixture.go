// Package fixture loads features with scripted step outcomes from YAML files.
//
// A fixture document describes one feature:
//
//	feature: Checkout
//	tags: [smoke]
//	background:
//	  - { keyword: Given, text: a cart }
//	scenarios:
//	  - name: pay by card
//	    steps:
//	      - { keyword: When, text: I pay, delay: 20ms }
//	      - { keyword: Then, text: the order is placed, outcome: failed, error: declined }
//	rules:
//	  - name: discounts
//	    scenarios: [...]
//
// A file may hold several documents separated by "---". Every document is
// validated against an embedded JSON Schema before it is built into
// cuke entities.
package fixture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/a2y-d5l/cuke"
	"github.com/a2y-d5l/cuke/runner"
)

// Outcome is the scripted result of a step.
type Outcome string

const (
	Passed  Outcome = "passed"
	Failed  Outcome = "failed"
	Skipped Outcome = "skipped"
)

// ParseError is a fixture document that could not be decoded or did not
// match the schema. Such documents are reported, not executed.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Suite is the result of Load.
type Suite struct {
	// Features in load order: arguments in order, files of a directory in
	// lexical order, documents of a file in order.
	Features []*cuke.Feature

	// ParseErrors lists documents that were skipped.
	ParseErrors []*ParseError

	scripts map[*cuke.Step]script
}

type script struct {
	outcome Outcome
	delay   time.Duration
	message string
}

// Errors returns ParseErrors as plain errors, for runner.WithParsingErrors.
func (s *Suite) Errors() []error {
	out := make([]error, 0, len(s.ParseErrors))
	for _, pe := range s.ParseErrors {
		out = append(out, pe)
	}
	return out
}

// Steps is a runner.StepFunc replaying the scripted outcome of st.
//
// Steps wait for their delay (bounded by ctx), then pass, fail or skip.
// Steps not loaded by this Suite are skipped.
func (s *Suite) Steps(ctx context.Context, _ *runner.World, st *cuke.Step) error {
	sc, ok := s.scripts[st]
	if !ok {
		return runner.ErrSkip
	}

	if sc.delay > 0 {
		t := time.NewTimer(sc.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	switch sc.outcome {
	case Failed:
		msg := sc.message
		if msg == "" {
			msg = "scripted failure"
		}
		return errors.New(msg)
	case Skipped:
		return runner.ErrSkip
	}
	return nil
}

// Load reads fixtures from paths. A directory is walked recursively for
// .yaml and .yml files.
//
// Documents that fail to decode or validate end up in Suite.ParseErrors. I/O
// errors abort the load.
func Load(paths ...string) (*Suite, error) {
	s := &Suite{scripts: make(map[*cuke.Step]script)}

	for _, root := range paths {
		files, err := collect(root)
		if err != nil {
			return nil, err
		}
		for _, path := range files {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read fixture %s: %w", path, err)
			}
			s.parseFile(path, data)
		}
	}

	return s, nil
}

func collect(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("fixture path: %w", err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk fixtures %s: %w", root, err)
	}
	return files, nil
}

func (s *Suite) parseFile(path string, data []byte) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			// The decoder cannot resynchronize after a syntax error.
			s.ParseErrors = append(s.ParseErrors, &ParseError{Path: path, Err: err})
			return
		}

		if err := validate(&doc); err != nil {
			s.ParseErrors = append(s.ParseErrors, &ParseError{Path: path, Line: docLine(&doc), Err: err})
			continue
		}

		var fd featureDoc
		if err := doc.Decode(&fd); err != nil {
			s.ParseErrors = append(s.ParseErrors, &ParseError{Path: path, Line: docLine(&doc), Err: err})
			continue
		}
		s.Features = append(s.Features, s.build(path, docLine(&doc), fd))
	}
}
