// Package ignore implements a minimal gitignore-style path filter used to
// suppress filesystem-watch events for ignored paths. The full gitignore
// matcher is an out-of-scope collaborator per spec.md §1; this is the
// thin glob-based stand-in the reactor's watcher needs to have *a*
// filter to call.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher holds a set of gitignore-style glob patterns rooted at one
// directory.
type Matcher struct {
	root     string
	patterns []string
}

// Load reads a .gitignore file (if present) under root and returns a
// Matcher over its patterns. A missing file yields an empty matcher.
func Load(root string) (*Matcher, error) {
	m := &Matcher{root: root}
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.patterns = append(m.patterns, line)
	}
	return m, scanner.Err()
}

// Ignored reports whether path (absolute or root-relative) matches any
// loaded pattern, plus the conventional .git directory.
func (m *Matcher) Ignored(path string) bool {
	rel, err := filepath.Rel(m.root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	if rel == ".git" || strings.HasPrefix(rel, ".git/") {
		return true
	}

	for _, p := range m.patterns {
		pattern := strings.TrimPrefix(p, "/")
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern+"/**", rel); ok {
			return true
		}
		// Bare basename patterns (no slash) match at any depth.
		if !strings.Contains(pattern, "/") {
			if ok, _ := doublestar.Match("**/"+pattern, rel); ok {
				return true
			}
		}
	}
	return false
}
