// Package render builds device configurations from templates.
//
// Templates use text/template syntax with the sprig function library. Every regular file in the
// template directory is parsed together, so a host template can invoke shared definitions from its
// siblings.
package render

import (
	"bytes"
	"os"
	"path/filepath"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"

	"github.com/damianoneill/netdeploy/inventory"
)

// ErrNoTemplate is returned when a host does not name a template.
var ErrNoTemplate = errors.New("host does not define a template")

// Renderer renders templates held in a directory.
type Renderer struct {
	dir string
	set *template.Template
}

// New parses the templates found in dir.
func New(dir string) (*Renderer, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		return nil, errors.Wrap(err, "list templates failed")
	}

	set := template.New(filepath.Base(dir)).Funcs(sprig.TxtFuncMap()).Option("missingkey=error")
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		b, err := os.ReadFile(p) // nolint: gosec
		if err != nil {
			return nil, errors.Wrapf(err, "read template %s failed", p)
		}
		if _, err = set.New(filepath.Base(p)).Parse(string(b)); err != nil {
			return nil, errors.Wrapf(err, "parse template %s failed", p)
		}
	}
	return &Renderer{dir: dir, set: set}, nil
}

// Render executes the named template with vars.
func (r *Renderer) Render(name string, vars map[string]interface{}) (string, error) {
	t := r.set.Lookup(name)
	if t == nil {
		return "", errors.Errorf("template %s not found in %s", name, r.dir)
	}
	var b bytes.Buffer
	if err := t.Execute(&b, vars); err != nil {
		return "", errors.Wrapf(err, "render %s failed", name)
	}
	return b.String(), nil
}

// TemplateName delivers the template a host is rendered with.
func TemplateName(h *inventory.Host) (string, error) {
	for _, key := range []string{inventory.KeyTemplate, inventory.KeyTemplateAlt} {
		if name := h.GetString(key); name != "" {
			return name, nil
		}
	}
	return "", ErrNoTemplate
}

// RenderHost renders the host's template with the host's variables.
func (r *Renderer) RenderHost(h *inventory.Host) (string, error) {
	name, err := TemplateName(h)
	if err != nil {
		return "", err
	}
	return r.Render(name, h.Vars())
}
