// Package pipeline models the CI job that drives a deployment and executes it locally.
//
// A pipeline runs its stages in order on a single agent. The first failing stage stops the run and
// the remaining stages are skipped. Post steps run afterwards: always steps whatever the outcome,
// then success or failure steps.
package pipeline

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// AnyAgent allows a pipeline to run on any executor.
const AnyAgent = "any"

// CheckoutSCM checks out the repository the pipeline was loaded from.
const CheckoutSCM = "scm"

// Pipeline is a declarative CI job.
type Pipeline struct {
	Agent       string            `yaml:"agent"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Stages      []Stage           `yaml:"stages"`
	Post        Post              `yaml:"post,omitempty"`
}

// Stage is a named, ordered list of steps.
type Stage struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Post holds the steps run after the stages.
type Post struct {
	Always  []Step `yaml:"always,omitempty"`
	Success []Step `yaml:"success,omitempty"`
	Failure []Step `yaml:"failure,omitempty"`
}

// Step is a single action. Exactly one of Checkout, Sh and CleanWs is set.
type Step struct {
	// Checkout is a git url, or scm for the repository the pipeline runs from.
	Checkout string `yaml:"checkout,omitempty"`
	// Ref is the branch, tag or commit checked out. Default is the remote HEAD.
	Ref string `yaml:"ref,omitempty"`
	// Sh is a command line, split into words without invoking a shell.
	Sh string `yaml:"sh,omitempty"`
	// CleanWs removes the workspace contents.
	CleanWs bool `yaml:"cleanWs,omitempty"`
}

func (s Step) String() string {
	switch {
	case s.Checkout != "":
		return "checkout " + s.Checkout
	case s.Sh != "":
		return "sh " + s.Sh
	case s.CleanWs:
		return "cleanWs"
	}
	return "empty step"
}

func (s Step) validate() error {
	n := 0
	for _, set := range []bool{s.Checkout != "", s.Sh != "", s.CleanWs} {
		if set {
			n++
		}
	}
	if n != 1 {
		return errors.Errorf("step must define exactly one of checkout, sh and cleanWs, got %d", n)
	}
	if s.Ref != "" && s.Checkout == "" {
		return errors.New("ref is only valid for checkout")
	}
	return nil
}

// Default delivers the deployment pipeline: checkout and build, run the deployment, and clean
// the workspace whatever the result.
func Default() *Pipeline {
	return &Pipeline{
		Agent: AnyAgent,
		Stages: []Stage{
			{
				Name: "Checkout and Prepare",
				Steps: []Step{
					{Checkout: CheckoutSCM},
					{Sh: "go build -o bin/netdeploy ./cmd/netdeploy"},
				},
			},
			{
				Name:  "Run Script",
				Steps: []Step{{Sh: "bin/netdeploy deploy"}},
			},
		},
		Post: Post{
			Always: []Step{{CleanWs: true}},
		},
	}
}

// Load reads the pipeline manifest at path.
func Load(path string) (*Pipeline, error) {
	b, err := os.ReadFile(path) // nolint: gosec
	if err != nil {
		return nil, errors.Wrap(err, "read pipeline failed")
	}
	return Parse(b)
}

// Parse decodes a YAML pipeline manifest.
func Parse(b []byte) (*Pipeline, error) {
	p := &Pipeline{}
	if err := yaml.Unmarshal(b, p); err != nil {
		return nil, errors.Wrap(err, "parse pipeline failed")
	}
	if p.Agent == "" {
		p.Agent = AnyAgent
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the pipeline is well formed.
func (p *Pipeline) Validate() error {
	if len(p.Stages) == 0 {
		return errors.New("pipeline has no stages")
	}
	seen := map[string]bool{}
	for i, st := range p.Stages {
		if st.Name == "" {
			return errors.Errorf("stage %d has no name", i+1)
		}
		if seen[st.Name] {
			return errors.Errorf("duplicate stage %q", st.Name)
		}
		seen[st.Name] = true
		if len(st.Steps) == 0 {
			return errors.Errorf("stage %q has no steps", st.Name)
		}
		for j, s := range st.Steps {
			if err := s.validate(); err != nil {
				return errors.Wrapf(err, "stage %q step %d", st.Name, j+1)
			}
		}
	}
	for cond, steps := range map[string][]Step{"always": p.Post.Always, "success": p.Post.Success, "failure": p.Post.Failure} {
		for j, s := range steps {
			if err := s.validate(); err != nil {
				return errors.Wrapf(err, "post %s step %d", cond, j+1)
			}
		}
	}
	return nil
}

// Marshal renders the pipeline as YAML.
func (p *Pipeline) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}
