package runner

import (
	"errors"
	"fmt"

	"github.com/a2y-d5l/cuke"
)

// Plan is an immutable, compiled list of scenarios to execute.
//
// A Plan is safe for concurrent read-only use. It does not copy the entities
// it was built from; they must not be mutated while a Plan is in use.
type Plan struct {
	features []*cuke.Feature
	units    []unit

	// featureScenarios and ruleScenarios count the scenarios of each
	// feature and rule, so Finished boundaries can be emitted after the last
	// one settles.
	featureScenarios map[*cuke.Feature]int
	ruleScenarios    map[*cuke.Rule]int
}

// unit is a single scenario together with its enclosing feature and rule.
type unit struct {
	feature  *cuke.Feature
	rule     *cuke.Rule
	scenario *cuke.Scenario
}

func (u unit) name() string {
	return u.feature.Name + "/" + u.scenario.Name
}

// BuildPlan compiles features into an immutable Plan.
//
// It validates:
//   - at least one feature is provided
//   - no feature, rule, scenario or step is nil
//   - no feature, rule or scenario appears twice (pointer identity)
//
// Scenarios are ordered as in the source: for each feature, its scenarios
// outside any rule, then the scenarios of each rule.
func BuildPlan(features ...*cuke.Feature) (*Plan, error) {
	if len(features) == 0 {
		return nil, errors.New("runner: build plan: no features provided")
	}

	p := &Plan{
		features:         append([]*cuke.Feature(nil), features...),
		featureScenarios: make(map[*cuke.Feature]int, len(features)),
		ruleScenarios:    make(map[*cuke.Rule]int),
	}
	seenScenario := make(map[*cuke.Scenario]bool)

	addScenarios := func(f *cuke.Feature, r *cuke.Rule, scenarios []*cuke.Scenario) error {
		for i, s := range scenarios {
			if s == nil {
				return fmt.Errorf("runner: build plan: feature %q: scenario at index %d is nil", f.Name, i)
			}
			if seenScenario[s] {
				return fmt.Errorf("runner: build plan: feature %q: scenario %q is used twice", f.Name, s.Name)
			}
			seenScenario[s] = true
			if err := validateSteps(s.Steps); err != nil {
				return fmt.Errorf("runner: build plan: scenario %q: %w", f.Name+"/"+s.Name, err)
			}

			p.units = append(p.units, unit{feature: f, rule: r, scenario: s})
			p.featureScenarios[f]++
			if r != nil {
				p.ruleScenarios[r]++
			}
		}
		return nil
	}

	for i, f := range features {
		if f == nil {
			return nil, fmt.Errorf("runner: build plan: feature at index %d is nil", i)
		}
		if _, dup := p.featureScenarios[f]; dup {
			return nil, fmt.Errorf("runner: build plan: feature %q is used twice", f.Name)
		}
		p.featureScenarios[f] = 0
		if err := validateSteps(f.Background); err != nil {
			return nil, fmt.Errorf("runner: build plan: feature %q background: %w", f.Name, err)
		}

		if err := addScenarios(f, nil, f.Scenarios); err != nil {
			return nil, err
		}

		for j, r := range f.Rules {
			if r == nil {
				return nil, fmt.Errorf("runner: build plan: feature %q: rule at index %d is nil", f.Name, j)
			}
			if _, dup := p.ruleScenarios[r]; dup {
				return nil, fmt.Errorf("runner: build plan: feature %q: rule %q is used twice", f.Name, r.Name)
			}
			p.ruleScenarios[r] = 0
			if err := validateSteps(r.Background); err != nil {
				return nil, fmt.Errorf("runner: build plan: rule %q background: %w", r.Name, err)
			}
			if err := addScenarios(f, r, r.Scenarios); err != nil {
				return nil, err
			}
		}
	}

	return p, nil
}

func validateSteps(steps []*cuke.Step) error {
	for i, st := range steps {
		if st == nil {
			return fmt.Errorf("step at index %d is nil", i)
		}
	}
	return nil
}

// Features returns the features of the plan in the order they were given.
func (p *Plan) Features() []*cuke.Feature {
	return append([]*cuke.Feature(nil), p.features...)
}

// ScenarioNames returns "<feature>/<scenario>" for every scenario, in
// execution order.
func (p *Plan) ScenarioNames() []string {
	out := make([]string, 0, len(p.units))
	for _, u := range p.units {
		out = append(out, u.name())
	}
	return out
}

// Len returns the number of scenarios in the plan.
func (p *Plan) Len() int {
	return len(p.units)
}
