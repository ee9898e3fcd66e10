package cuke

// Feature is a parsed feature definition.
//
// Entities are shared by pointer between the executor and every writer in a
// pipeline and must not be mutated once a run has started. Writers key their
// state by pointer identity, so two textually identical features loaded from
// different files are distinct.
type Feature struct {
	// Name is the feature title.
	Name string

	// Path is the source the feature was loaded from, if any.
	Path string

	// Line is the 1-based line of the feature keyword in Path.
	Line int

	Tags []string

	// Background steps run before every scenario of the feature.
	Background []*Step

	// Rules and Scenarios are kept in source order.
	Rules     []*Rule
	Scenarios []*Scenario
}

// Rule groups scenarios inside a feature.
type Rule struct {
	Name string
	Line int
	Tags []string

	// Background steps run after the feature background for every scenario
	// of the rule.
	Background []*Step

	Scenarios []*Scenario
}

// Scenario is a single executable example.
type Scenario struct {
	Name  string
	Line  int
	Tags  []string
	Steps []*Step
}

// Step is a single Given/When/Then line.
type Step struct {
	Keyword string
	Text    string
	Line    int
}

// String returns the keyword and text of the step.
func (s *Step) String() string {
	if s == nil {
		return "<nil>"
	}
	if s.Keyword == "" {
		return s.Text
	}
	return s.Keyword + " " + s.Text
}

// HookType identifies a scenario lifecycle hook.
type HookType uint8

const (
	// BeforeHook runs before the first step of a scenario.
	BeforeHook HookType = iota

	// AfterHook runs after the last step of a scenario, even when a step failed.
	AfterHook
)

func (h HookType) String() string {
	switch h {
	case BeforeHook:
		return "before"
	case AfterHook:
		return "after"
	default:
		return "unknown"
	}
}
