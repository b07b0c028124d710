// Package toolchain resolves external executables and cross-compile
// toolchain paths. It is deliberately a thin, opaque map from tool name
// to absolute path: discovery of toolchains beyond PATH lookup and the
// classical cross-compile environment variables is out of scope (see
// spec.md §1's "out of scope" collaborators).
package toolchain

import (
	"fmt"
	"os"
	"os/exec"
)

// classical are the environment variable names the cross-compile guard
// and build scripts expect to find a toolchain component under.
var classical = []string{"CC", "CXX", "AR", "RANLIB", "NM", "STRIP", "OBJDUMP", "OBJCOPY", "LD"}

// Context is an opaque map from logical tool name to its resolved
// absolute path on the host.
type Context struct {
	paths map[string]string
}

// Resolve looks up docker, kubectl, git, minikube, and the classical
// cross-compile toolchain components on PATH, returning a Context that
// every external-tool invocation consults.
func Resolve() (*Context, error) {
	paths := map[string]string{}
	for _, tool := range []string{"docker", "kubectl", "git", "minikube", "sh"} {
		p, err := exec.LookPath(tool)
		if err != nil {
			continue
		}
		paths[tool] = p
	}
	for _, env := range classical {
		bin := os.Getenv(env)
		if bin == "" {
			continue
		}
		if p, err := exec.LookPath(bin); err == nil {
			paths[env] = p
		} else {
			paths[env] = bin
		}
	}
	return &Context{paths: paths}, nil
}

// FromPaths builds a Context directly from a tool-name-to-path map,
// bypassing PATH lookup. Used by tests and by callers that have already
// resolved their own toolchain (e.g. a pinned CI container image).
func FromPaths(paths map[string]string) *Context {
	copied := make(map[string]string, len(paths))
	for k, v := range paths {
		copied[k] = v
	}
	return &Context{paths: copied}
}

// Path returns the resolved absolute path for name, falling back to name
// itself (so PATH lookup at exec time still applies) when the toolchain
// context has no opinion about it.
func (c *Context) Path(name string) string {
	if p, ok := c.paths[name]; ok {
		return p
	}
	return name
}

// Docker returns the resolved docker binary path.
func (c *Context) Docker() string { return c.Path("docker") }

// Kubectl returns the resolved kubectl binary path.
func (c *Context) Kubectl() string { return c.Path("kubectl") }

// Git returns the resolved git binary path.
func (c *Context) Git() string { return c.Path("git") }

// Env returns the classical cross-compile environment variables this
// context resolved, suitable for passing to dirguard.SetEnv during a
// build.
func (c *Context) Env() (map[string]string, error) {
	out := map[string]string{}
	for _, env := range classical {
		if p, ok := c.paths[env]; ok {
			out[env] = p
		}
	}
	if len(out) == 0 {
		return out, nil
	}
	return out, nil
}

// RequireDocker returns an error if docker could not be resolved.
func (c *Context) RequireDocker() error {
	if _, ok := c.paths["docker"]; !ok {
		return fmt.Errorf("toolchain: docker not found on PATH")
	}
	return nil
}
