// Package manifest discovers each component's cluster-manifest files and
// renders them into the unified reactor output tree.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wonop-io/rushd/internal/render"
	"github.com/wonop-io/rushd/internal/rushderrors"
	"github.com/wonop-io/rushd/internal/stackspec"
)

// Artifact is one manifest file pending render: its template source and
// the path it renders to under the reactor output tree.
type Artifact struct {
	ComponentName string
	SourcePath    string
	OutputPath    string
}

// Group is the ordered set of manifest artifacts for one component,
// keyed for apply/unapply ordering by "<priority>_<component>". The
// reactor's ClusterInstall groups store the target namespace in OrderKey
// instead.
type Group struct {
	OrderKey  string
	Artifacts []Artifact
}

// Discover enumerates every spec's cluster-manifest directory: files
// ending in ".yaml" become manifest artifacts, and subdirectories are
// walked recursively with their relative layout preserved under the
// output directory. ClusterInstall components are excluded — they're
// handled out-of-band by the install/uninstall paths.
func Discover(specs []*stackspec.ComponentSpec, reactorOutput string) ([]Group, error) {
	var groups []Group
	for _, spec := range specs {
		if spec.ClusterManifestDir == "" {
			continue
		}
		if _, isInstall := spec.BuildKind.(stackspec.ClusterInstall); isInstall {
			continue
		}

		entries, err := os.ReadDir(spec.ClusterManifestDir)
		if err != nil {
			return nil, fmt.Errorf("manifest: read %s: %w", spec.ClusterManifestDir, rushderrors.ErrIO)
		}

		orderKey := fmt.Sprintf("%d_%s", spec.Priority, spec.ComponentName)
		outDir := filepath.Join(reactorOutput, orderKey)

		var artifacts []Artifact
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				sub, err := discoverSubdir(spec, filepath.Join(spec.ClusterManifestDir, name), filepath.Join(outDir, name))
				if err != nil {
					return nil, err
				}
				artifacts = append(artifacts, sub...)
				continue
			}
			if !strings.HasSuffix(name, ".yaml") {
				continue
			}
			artifacts = append(artifacts, Artifact{
				ComponentName: spec.ComponentName,
				SourcePath:    filepath.Join(spec.ClusterManifestDir, name),
				OutputPath:    filepath.Join(outDir, name),
			})
		}

		groups = append(groups, Group{OrderKey: orderKey, Artifacts: artifacts})
	}
	return groups, nil
}

// discoverSubdir recurses into a direct subdirectory of a manifest
// directory, preserving relative layout under the output directory.
func discoverSubdir(spec *stackspec.ComponentSpec, srcDir, outDir string) ([]Artifact, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", srcDir, rushderrors.ErrIO)
	}
	var artifacts []Artifact
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			sub, err := discoverSubdir(spec, filepath.Join(srcDir, name), filepath.Join(outDir, name))
			if err != nil {
				return nil, err
			}
			artifacts = append(artifacts, sub...)
			continue
		}
		if !strings.HasSuffix(name, ".yaml") {
			continue
		}
		artifacts = append(artifacts, Artifact{
			ComponentName: spec.ComponentName,
			SourcePath:    filepath.Join(srcDir, name),
			OutputPath:    filepath.Join(outDir, name),
		})
	}
	return artifacts, nil
}

// Pipeline renders manifest artifact groups against a build context.
type Pipeline struct {
	render *render.Engine
}

// New returns a ready-to-use manifest Pipeline.
func New() *Pipeline {
	return &Pipeline{render: render.New()}
}

// RenderAll creates each artifact's output directory and renders its
// source template against context, per spec.md §4.6's render_all.
func (p *Pipeline) RenderAll(groups []Group, context any) error {
	for _, g := range groups {
		for _, a := range g.Artifacts {
			if err := p.renderOne(a, context); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pipeline) renderOne(a Artifact, context any) error {
	source, err := os.ReadFile(a.SourcePath)
	if err != nil {
		return fmt.Errorf("manifest: read %s: %w", a.SourcePath, rushderrors.ErrIO)
	}
	rendered, err := p.render.Render(string(source), context)
	if err != nil {
		return fmt.Errorf("manifest: render %s: %w", a.SourcePath, err)
	}
	if err := os.MkdirAll(filepath.Dir(a.OutputPath), 0o755); err != nil {
		return fmt.Errorf("manifest: create output dir for %s: %w", a.OutputPath, rushderrors.ErrIO)
	}
	if err := os.WriteFile(a.OutputPath, []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("manifest: write %s: %w", a.OutputPath, rushderrors.ErrIO)
	}
	return nil
}

// OutputFiles returns every rendered output path across groups, sorted
// ascending by OrderKey then file order — the order apply/install walk
// them, and the reverse of the order unapply/uninstall delete them.
func OutputFiles(groups []Group) []string {
	sorted := make([]Group, len(groups))
	copy(sorted, groups)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OrderKey < sorted[j].OrderKey })

	var files []string
	for _, g := range sorted {
		for _, a := range g.Artifacts {
			files = append(files, a.OutputPath)
		}
	}
	return files
}
