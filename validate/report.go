package validate

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/damianoneill/netdeploy/driver"
)

// ReasonNotImplemented is reported for checks whose getter the platform does not support.
const ReasonNotImplemented = "NotImplemented"

// Check is one entry of a validation source.
type Check struct {
	Getter string
	// Name identifies the check in reports, defaulting to the getter.
	Name     string
	Kwargs   map[string]interface{}
	Expected interface{}
}

// Source is an ordered list of checks.
type Source []Check

// Getter retrieves device state. It is satisfied by driver.Driver.
type Getter interface {
	Get(ctx context.Context, getter string, kwargs map[string]interface{}) (interface{}, error)
}

// LoadSource reads a validation source file: a YAML list of single entry maps from getter name
// to expected result, where the expected dict may hold _name and _kwargs.
func LoadSource(path string) (Source, error) {
	b, err := os.ReadFile(path) // nolint: gosec
	if err != nil {
		return nil, errors.Wrap(err, "read validation source failed")
	}
	src, err := ParseSource(b)
	return src, errors.Wrapf(err, "parse %s failed", path)
}

// ParseSource parses the content of a validation source.
func ParseSource(b []byte) (Source, error) {
	var items []yaml.Node
	if err := yaml.Unmarshal(b, &items); err != nil {
		return nil, err
	}
	var src Source
	for i := range items {
		item := &items[i]
		if item.Kind != yaml.MappingNode {
			return nil, errors.Errorf("line %d: check must be a map", item.Line)
		}
		// mapping content alternates keys and values
		for j := 0; j+1 < len(item.Content); j += 2 {
			c := Check{Getter: item.Content[j].Value}
			if err := item.Content[j+1].Decode(&c.Expected); err != nil {
				return nil, errors.Wrapf(err, "line %d", item.Content[j].Line)
			}
			if err := c.extractReserved(); err != nil {
				return nil, errors.Wrapf(err, "line %d", item.Content[j].Line)
			}
			src = append(src, c)
		}
	}
	return src, nil
}

func (c *Check) extractReserved() error {
	c.Name = c.Getter
	e, ok := c.Expected.(map[string]interface{})
	if !ok {
		return nil
	}
	if n, ok := e[keyName].(string); ok && n != "" {
		c.Name = n
	}
	delete(e, keyName)
	if kw, ok := e[keyKwargs]; ok {
		if c.Kwargs, ok = kw.(map[string]interface{}); !ok {
			return errors.Errorf("%s of %s must be a map", keyKwargs, c.Getter)
		}
		delete(e, keyKwargs)
	}
	return nil
}

// Report holds the results of a validation run.
type Report struct {
	Complies bool
	// Skipped lists the checks not run, in source order.
	Skipped []string
	// Names lists the checks in source order.
	Names   []string
	Results map[string]*Result
}

// MarshalYAML renders the report as a map from check name to result, plus the complies and
// skipped entries.
func (r *Report) MarshalYAML() (interface{}, error) {
	out := map[string]interface{}{"complies": r.Complies, "skipped": r.Skipped}
	if r.Skipped == nil {
		out["skipped"] = []string{}
	}
	for name, res := range r.Results {
		out[name] = res
	}
	return out, nil
}

// Failed delivers the names of the checks that do not comply, in source order.
func (r *Report) Failed() []string {
	var names []string
	for _, n := range r.Names {
		if res := r.Results[n]; !res.Skipped && !res.Complies {
			names = append(names, n)
		}
	}
	return names
}

// Run evaluates each check of src against the state delivered by g. Checks whose getter is not
// implemented are recorded as skipped.
func Run(ctx context.Context, g Getter, src Source) (*Report, error) {
	rep := &Report{Complies: true, Results: map[string]*Result{}}
	for _, c := range src {
		if _, seen := rep.Results[c.Name]; !seen {
			rep.Names = append(rep.Names, c.Name)
		}
		kwargs := map[string]interface{}{}
		for k, v := range c.Kwargs {
			kwargs[k] = v
		}

		actual, err := g.Get(ctx, c.Getter, kwargs)
		if errors.Is(err, driver.ErrNotImplemented) {
			rep.Results[c.Name] = &Result{Complies: true, Skipped: true, Reason: ReasonNotImplemented}
			rep.Skipped = append(rep.Skipped, c.Name)
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "getter %s failed", c.Getter)
		}

		res, err := Compare(c.Expected, actual)
		if err != nil {
			return nil, errors.Wrapf(err, "check %s failed", c.Name)
		}
		rep.Results[c.Name] = res
	}
	for _, res := range rep.Results {
		if !res.Complies {
			rep.Complies = false
		}
	}
	return rep, nil
}

// Failures maps each host whose report holds failing checks to the names of those checks.
func Failures(reports map[string]*Report) map[string][]string {
	out := map[string][]string{}
	for host, r := range reports {
		if r == nil {
			continue
		}
		if failed := r.Failed(); len(failed) > 0 {
			out[host] = failed
		}
	}
	return out
}
