// Package variables implements the environment-scoped key/value store
// that backs {{name}} substitution across stack.yaml strings.
package variables

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wonop-io/rushd/internal/rushderrors"
)

// File is the on-disk shape of a variables YAML file: one string map per
// environment.
type File struct {
	Dev     map[string]string `yaml:"dev"`
	Staging map[string]string `yaml:"staging"`
	Prod    map[string]string `yaml:"prod"`
}

// Store resolves {{name}} references against one active environment.
type Store struct {
	values File
	env    string
}

// Load reads path and scopes lookups to env. A missing file yields an
// empty store rather than failing, matching rushd's historical
// tolerance for products with no variables.yaml.
func Load(path, env string) (*Store, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Store{env: strings.ToLower(env)}, nil
		}
		return nil, fmt.Errorf("variables: read %s: %w", path, rushderrors.ErrIO)
	}

	var f File
	if err := yaml.Unmarshal(contents, &f); err != nil {
		return nil, fmt.Errorf("variables: parse %s: %w: %v", path, rushderrors.ErrSpec, err)
	}

	return &Store{values: f, env: strings.ToLower(env)}, nil
}

// Lookup returns the value bound to key in the active environment.
func (s *Store) Lookup(key string) (string, bool) {
	var m map[string]string
	switch s.env {
	case "dev":
		m = s.values.Dev
	case "staging":
		m = s.values.Staging
	case "prod":
		m = s.values.Prod
	default:
		return "", false
	}
	v, ok := m[key]
	return v, ok
}

// isWrapped reports whether s is exactly of the form "{{ name }}" with
// arbitrary internal whitespace, as opposed to merely containing one.
func isWrapped(s string) bool {
	return strings.HasPrefix(s, "{{") && strings.HasSuffix(s, "}}") && len(s) >= 4
}

// Substitute resolves a single manifest string. Strings not fully wrapped
// in {{ }} are returned verbatim; there is no partial interpolation.
// A wrapped string whose variable is unknown is a fatal load error.
func (s *Store) Substitute(raw string) (string, error) {
	if !isWrapped(raw) {
		return raw, nil
	}
	name := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(raw, "{{"), "}}"))
	v, ok := s.Lookup(name)
	if !ok {
		return "", fmt.Errorf("variables: unknown variable %q: %w", name, rushderrors.ErrSpec)
	}
	return v, nil
}

// SubstitutePort resolves a port field that may arrive as a numeric YAML
// scalar already rendered to a decimal string, or as a {{ name }}
// reference. The resolved value is parsed as an unsigned 16-bit integer.
func (s *Store) SubstitutePort(raw string) (uint16, error) {
	resolved, err := s.Substitute(raw)
	if err != nil {
		return 0, err
	}
	port, err := strconv.ParseUint(strings.TrimSpace(resolved), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("variables: invalid port %q: %w", raw, rushderrors.ErrSpec)
	}
	return uint16(port), nil
}
