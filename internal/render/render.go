// Package render wraps the textual template engine used to produce build
// scripts, rendered artifacts, and cluster manifests. It owns a registered
// set of build-kind-specific script templates and a generic render path
// for arbitrary template sources.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/wonop-io/rushd/internal/rushderrors"
)

//go:embed scripts/*.sh.tmpl
var buildScripts embed.FS

// scriptNames maps a logical build-script name (as referenced from the
// build kind dispatch in internal/stackspec) to its embedded template
// file.
var scriptNames = map[string]string{
	"build/wasm_trunk.sh":  "scripts/wasm_trunk.sh.tmpl",
	"build/rust_binary.sh": "scripts/rust_binary.sh.tmpl",
}

// Engine renders template sources against a context value.
type Engine struct{}

// New returns a ready-to-use rendering engine.
func New() *Engine {
	return &Engine{}
}

// Render executes a template source against vars and returns the result
// text. Failures surface the full cause chain; there is no partial
// output on error.
func (e *Engine) Render(source string, vars any) (string, error) {
	tmpl, err := template.New("rushd").Option("missingkey=error").Parse(source)
	if err != nil {
		return "", fmt.Errorf("render: parse template: %w: %v", rushderrors.ErrTemplate, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render: execute template: %w: %v", rushderrors.ErrTemplate, err)
	}
	return buf.String(), nil
}

// BuildScript renders the named build-kind script template, or returns
// empty string if the kind carries no build script (the kind dispatch in
// internal/stackspec passes the empty logical name for those kinds).
func (e *Engine) BuildScript(logicalName string, vars any) (string, error) {
	if logicalName == "" {
		return "", nil
	}
	path, ok := scriptNames[logicalName]
	if !ok {
		return "", fmt.Errorf("render: unknown build script %q: %w", logicalName, rushderrors.ErrTemplate)
	}
	source, err := buildScripts.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("render: read embedded script %s: %w", path, rushderrors.ErrTemplate)
	}
	return e.Render(string(source), vars)
}
