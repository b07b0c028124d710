// Package builder resolves each component's tagged image identity,
// discovers exposed ports from its container file, renders its
// artifacts and build script, and drives the container engine to build
// and push it.
package builder

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/wonop-io/rushd/internal/imagetag"
	"github.com/wonop-io/rushd/internal/rushderrors"
	"github.com/wonop-io/rushd/internal/stackspec"
)

// Platform describes a build or host platform: "linux/amd64" style.
type Platform struct {
	OS   string
	Arch string
}

// String renders the platform the way --platform flags expect.
func (p Platform) String() string {
	if p.OS == "" && p.Arch == "" {
		return ""
	}
	return p.OS + "/" + p.Arch
}

// CrossCompileTriple returns the Rust-style target triple the original
// toolchain used for native cross-compiles, derived from the target
// platform. This mirrors the toolchain-triple mapping rushd's Rust
// implementation computed for RustBinary builds.
func (p Platform) CrossCompileTriple() string {
	arch := p.Arch
	switch arch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	}
	switch p.OS {
	case "linux":
		return arch + "-unknown-linux-gnu"
	case "darwin":
		return arch + "-apple-darwin"
	default:
		return arch + "-unknown-" + p.OS
	}
}

// TaggedImage is the resolved identity of one component's image: its
// name, optional registry prefix and tag, its resolved dependency
// closure, build context directory, port mapping, and the ports its
// container file exposes.
type TaggedImage struct {
	ImageName    string
	Registry     string
	Tag          string
	Dependencies []string
	ContextDir   string
	Port         *uint16
	TargetPort   *uint16
	Exposes      []string
	Spec         *stackspec.ComponentSpec
}

// TaggedName returns "<image>:<tag>", or the bare image name when no tag
// has been assigned yet.
func (t *TaggedImage) TaggedName() string {
	if t.Tag == "" {
		return t.ImageName
	}
	return t.ImageName + ":" + t.Tag
}

// DiscoverImage resolves a component's image identity and exposed ports,
// per spec.md §4.5. Spec-provided port/target_port always override
// whatever EXPOSE scanning finds.
func DiscoverImage(spec *stackspec.ComponentSpec) (*TaggedImage, error) {
	img := &TaggedImage{
		Spec:       spec,
		ContextDir: stackspec.ContextDirOf(spec.BuildKind),
	}

	deps := make([]string, len(spec.DependsOn))
	for i, d := range spec.DependsOn {
		deps[i] = spec.ProductName + "-" + d
	}
	img.Dependencies = deps

	if prebuilt, ok := spec.BuildKind.(stackspec.PrebuiltImage); ok {
		repo, tag, err := imagetag.ParsePrebuilt(prebuilt.ImageWithTag)
		if err != nil {
			return nil, err
		}
		img.ImageName = repo
		img.Tag = tag
		img.Port = spec.Port
		img.TargetPort = spec.TargetPort
		return img, nil
	}

	img.ImageName = spec.ProductName + "-" + spec.ComponentName

	containerFile, ok := stackspec.ContainerFileOf(spec.BuildKind)
	if ok {
		exposes, err := scanExposes(containerFile)
		if err != nil {
			return nil, err
		}
		img.Exposes = exposes
		if len(exposes) > 0 {
			port, err := parseExposePort(exposes[0])
			if err != nil {
				return nil, err
			}
			img.Port = &port
			target := port
			img.TargetPort = &target
		}
	}

	if spec.Port != nil {
		img.Port = spec.Port
	}
	if spec.TargetPort != nil {
		img.TargetPort = spec.TargetPort
	}

	return img, nil
}

// scanExposes reads containerFile and returns every EXPOSE directive's
// argument, tabs and trailing comments tolerated, in file order.
func scanExposes(containerFile string) ([]string, error) {
	f, err := os.Open(containerFile)
	if err != nil {
		return nil, fmt.Errorf("builder: read container file %s: %w", containerFile, rushderrors.ErrIO)
	}
	defer f.Close()

	var exposes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		trimmed := strings.TrimLeft(line, "\t ")
		if !strings.HasPrefix(trimmed, "EXPOSE") {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "EXPOSE"))
		if rest == "" {
			continue
		}
		// Tolerate trailing comments: "EXPOSE 80 # http".
		if idx := strings.Index(rest, "#"); idx >= 0 {
			rest = strings.TrimSpace(rest[:idx])
		}
		exposes = append(exposes, rest)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("builder: scan container file %s: %w", containerFile, rushderrors.ErrIO)
	}
	return exposes, nil
}

// parseExposePort extracts the first whitespace-delimited numeric token
// from an EXPOSE directive's argument (e.g. "80/tcp" or "80 81").
func parseExposePort(expose string) (uint16, error) {
	fields := strings.Fields(expose)
	if len(fields) == 0 {
		return 0, fmt.Errorf("builder: empty EXPOSE directive: %w", rushderrors.ErrSpec)
	}
	token := fields[0]
	if idx := strings.IndexByte(token, '/'); idx >= 0 {
		token = token[:idx]
	}
	port, err := strconv.ParseUint(token, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("builder: invalid EXPOSE port %q: %w", expose, rushderrors.ErrSpec)
	}
	return uint16(port), nil
}
