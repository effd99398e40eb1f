// Package render expands per-host configuration templates.
package render

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// builtins are the text/template functions a variable may not replace.
var builtins = map[string]bool{
	"and": true, "call": true, "html": true, "index": true, "slice": true,
	"js": true, "len": true, "not": true, "or": true, "print": true,
	"printf": true, "println": true, "urlquery": true,
	"eq": true, "ge": true, "gt": true, "le": true, "lt": true, "ne": true,
}

// Renderer loads templates from a root directory.
type Renderer struct {
	root string
}

func New(root string) *Renderer {
	return &Renderer{root: root}
}

// Render expands the template name with vars as context. Variables are reachable both
// as map lookups ({{ .dev_hostname }}) and as bare names ({{ dev_hostname }}); a bare
// name shadows a sprig helper of the same name, but never a text/template builtin;
// those names stay reachable only as {{ .name }}. References to undefined variables fail.
func (r *Renderer) Render(name string, vars map[string]interface{}) (string, error) {
	if name == "" {
		return "", fmt.Errorf("no template selected")
	}
	path := filepath.Join(r.root, name)
	text, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("load template %s: %w", path, err)
	}

	funcs := sprig.TxtFuncMap()
	for k, v := range vars {
		if !identifier.MatchString(k) || builtins[k] {
			continue
		}
		val := v
		funcs[k] = func() interface{} { return val }
	}

	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(string(text))
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.String(), nil
}
