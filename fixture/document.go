package fixture

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/a2y-d5l/cuke"
)

type featureDoc struct {
	Feature    string        `yaml:"feature"`
	Tags       []string      `yaml:"tags"`
	Background []stepDoc     `yaml:"background"`
	Scenarios  []scenarioDoc `yaml:"scenarios"`
	Rules      []ruleDoc     `yaml:"rules"`
}

type ruleDoc struct {
	Name       string        `yaml:"name"`
	Tags       []string      `yaml:"tags"`
	Background []stepDoc     `yaml:"background"`
	Scenarios  []scenarioDoc `yaml:"scenarios"`
	line       int
}

func (d *ruleDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain ruleDoc
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.line = n.Line
	return nil
}

type scenarioDoc struct {
	Name  string    `yaml:"name"`
	Tags  []string  `yaml:"tags"`
	Steps []stepDoc `yaml:"steps"`
	line  int
}

func (d *scenarioDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain scenarioDoc
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.line = n.Line
	return nil
}

type stepDoc struct {
	Keyword string `yaml:"keyword"`
	Text    string `yaml:"text"`
	Outcome string `yaml:"outcome"`
	Delay   string `yaml:"delay"`
	Error   string `yaml:"error"`
	line    int
}

func (d *stepDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain stepDoc
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.line = n.Line
	return nil
}

// docLine returns the line of the document's root mapping.
func docLine(doc *yaml.Node) int {
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return doc.Content[0].Line
	}
	return doc.Line
}

func (s *Suite) build(path string, line int, fd featureDoc) *cuke.Feature {
	f := &cuke.Feature{
		Name:       fd.Feature,
		Path:       path,
		Line:       line,
		Tags:       fd.Tags,
		Background: s.steps(fd.Background),
	}
	for _, sd := range fd.Scenarios {
		f.Scenarios = append(f.Scenarios, s.scenario(sd))
	}
	for _, rd := range fd.Rules {
		r := &cuke.Rule{
			Name:       rd.Name,
			Line:       rd.line,
			Tags:       rd.Tags,
			Background: s.steps(rd.Background),
		}
		for _, sd := range rd.Scenarios {
			r.Scenarios = append(r.Scenarios, s.scenario(sd))
		}
		f.Rules = append(f.Rules, r)
	}
	return f
}

func (s *Suite) scenario(sd scenarioDoc) *cuke.Scenario {
	return &cuke.Scenario{
		Name:  sd.Name,
		Line:  sd.line,
		Tags:  sd.Tags,
		Steps: s.steps(sd.Steps),
	}
}

// steps builds entities and records their scripts. The schema guarantees
// outcome and delay are well-formed.
func (s *Suite) steps(docs []stepDoc) []*cuke.Step {
	out := make([]*cuke.Step, 0, len(docs))
	for _, d := range docs {
		st := &cuke.Step{Keyword: d.Keyword, Text: d.Text, Line: d.line}
		if st.Keyword == "" {
			st.Keyword = "*"
		}

		sc := script{outcome: Outcome(d.Outcome), message: d.Error}
		if sc.outcome == "" {
			sc.outcome = Passed
		}
		if d.Delay != "" {
			sc.delay, _ = time.ParseDuration(d.Delay)
		}
		s.scripts[st] = sc
		out = append(out, st)
	}
	return out
}
