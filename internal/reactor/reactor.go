// Package reactor is the dependency-aware scheduler and lifecycle
// manager that turns a loaded product stack into a running set of
// supervised containers: it builds and tags every component's image,
// renders cluster manifests, and (via Launch) runs the full stack
// locally with hot rebuilds on source change.
package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/wonop-io/rushd/internal/builder"
	"github.com/wonop-io/rushd/internal/cluster"
	"github.com/wonop-io/rushd/internal/dirguard"
	"github.com/wonop-io/rushd/internal/ignore"
	"github.com/wonop-io/rushd/internal/imagetag"
	"github.com/wonop-io/rushd/internal/infrarepo"
	"github.com/wonop-io/rushd/internal/manifest"
	"github.com/wonop-io/rushd/internal/productconfig"
	"github.com/wonop-io/rushd/internal/procrunner"
	"github.com/wonop-io/rushd/internal/rushderrors"
	"github.com/wonop-io/rushd/internal/stackspec"
	"github.com/wonop-io/rushd/internal/toolchain"
	"github.com/wonop-io/rushd/internal/variables"
)

const startPort = 8000

// reactorOutputDir is the output tree, relative to the product directory,
// that rendered manifests land in, matching the original reactor's
// "./target/k8s".
const reactorOutputDir = "target/k8s"

// Reactor owns one product's loaded specs, resolved images, and the
// collaborators needed to build, render, and run them.
type Reactor struct {
	config            *productconfig.Config
	productDirectory  string
	specs             []*stackspec.ComponentSpec
	images            map[string]*builder.TaggedImage
	services          *stackspec.ServiceTable
	toolchain         *toolchain.Context
	builder           *builder.Builder
	cluster           *cluster.Driver
	manifestPipeline  *manifest.Pipeline
	manifestGroups    []manifest.Group
	installGroups     []manifest.Group
	platform          builder.Platform
	ignored           *ignore.Matcher
}

// New constructs a Reactor for the product rooted at cfg.ProductPath,
// per spec.md §4.8's construction sequence: resolve the image tag,
// load the stack spec, discover every image's identity and ports,
// freeze the shared service table, and register manifest groups.
func New(cfg *productconfig.Config, tc *toolchain.Context, platform builder.Platform) (*Reactor, error) {
	tag, err := imagetag.GitHashTag(context.Background(), cfg.ProductPath)
	if err != nil {
		return nil, err
	}
	if tag == "" {
		return nil, fmt.Errorf("reactor: empty git hash tag for %s: %w", cfg.ProductPath, rushderrors.ErrConfig)
	}

	guard, err := dirguard.Chdir(cfg.ProductPath)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	vars, err := variables.Load("variables.yaml", cfg.Environment)
	if err != nil {
		return nil, err
	}

	specs, err := stackspec.Load(".", cfg, vars)
	if err != nil {
		return nil, err
	}

	images := make(map[string]*builder.TaggedImage, len(specs))
	nextPort := uint16(startPort)
	for _, spec := range specs {
		img, err := builder.DiscoverImage(spec)
		if err != nil {
			return nil, err
		}
		if _, prebuilt := spec.BuildKind.(stackspec.PrebuiltImage); !prebuilt {
			img.Tag = tag
			if img.Port == nil {
				p := nextPort
				img.Port = &p
				img.TargetPort = &p
				nextPort++
			}
		}
		spec.SetTaggedImageName(img.TaggedName())
		images[img.ImageName] = img
	}

	services := stackspec.NewServiceTable()
	for _, spec := range specs {
		img := images[spec.ProductName+"-"+spec.ComponentName]
		if img == nil {
			continue
		}
		if img.Port != nil && img.TargetPort != nil {
			services.Set(spec.ComponentName, stackspec.ServiceEntry{
				Name:       spec.ComponentName,
				Port:       *img.Port,
				TargetPort: *img.TargetPort,
				MountPoint: spec.MountPoint,
			})
		}
	}
	for _, spec := range specs {
		spec.SetServices(services)
	}

	// Discovery runs while the guard above still has us chdir'd into
	// cfg.ProductPath, so the output root is just the product-relative
	// tree name, not cfg.ProductPath joined again.
	manifestGroups, err := manifest.Discover(specs, reactorOutputDir)
	if err != nil {
		return nil, err
	}
	installGroups, err := discoverInstallGroups(stackspec.SortedByPriorityName(specs))
	if err != nil {
		return nil, err
	}

	r := &Reactor{
		config:           cfg,
		productDirectory: cfg.ProductPath,
		specs:            specs,
		images:           images,
		services:         services,
		toolchain:        tc,
		builder:          builder.New(tc),
		cluster:          cluster.New(tc.Kubectl()),
		manifestPipeline: manifest.New(),
		manifestGroups:   manifestGroups,
		installGroups:    installGroups,
		platform:         platform,
	}
	return r, nil
}

// discoverInstallGroups mirrors manifest.Discover for ClusterInstall
// components, whose raw manifest files are applied directly from the
// input directory rather than the rendered output tree.
func discoverInstallGroups(specs []*stackspec.ComponentSpec) ([]manifest.Group, error) {
	var groups []manifest.Group
	for _, spec := range specs {
		install, ok := spec.BuildKind.(stackspec.ClusterInstall)
		if !ok || spec.ClusterManifestDir == "" {
			continue
		}
		entries, err := os.ReadDir(spec.ClusterManifestDir)
		if err != nil {
			return nil, fmt.Errorf("reactor: read install manifests %s: %w", spec.ClusterManifestDir, rushderrors.ErrIO)
		}
		var artifacts []manifest.Artifact
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
				continue
			}
			artifacts = append(artifacts, manifest.Artifact{
				ComponentName: spec.ComponentName,
				SourcePath:    filepath.Join(spec.ClusterManifestDir, e.Name()),
			})
		}
		groups = append(groups, manifest.Group{
			OrderKey:  install.Namespace,
			Artifacts: artifacts,
		})
	}
	return groups, nil
}

// specImage pairs a component spec with its resolved image.
type specImage struct {
	Spec  *stackspec.ComponentSpec
	Image *builder.TaggedImage
}

// imageSpecs returns every (spec, image) pair in stack.yaml file order.
func (r *Reactor) imageSpecs() []specImage {
	out := make([]specImage, 0, len(r.specs))
	for _, spec := range r.specs {
		img := r.images[spec.ProductName+"-"+spec.ComponentName]
		if img == nil {
			continue
		}
		out = append(out, specImage{spec, img})
	}
	return out
}

// Build builds every image sequentially, then renders every manifest.
func (r *Reactor) Build(ctx context.Context) error {
	if err := func() error {
		guard, err := dirguard.Chdir(r.productDirectory)
		if err != nil {
			return err
		}
		defer guard.Release()

		for _, pair := range r.imageSpecs() {
			slog.InfoContext(ctx, "reactor.Build", "component", pair.Spec.ComponentName)
			if err := r.builder.Build(ctx, pair.Spec, pair.Image, r.platform); err != nil {
				return fmt.Errorf("reactor: build %s: %w", pair.Spec.ComponentName, err)
			}
		}
		return nil
	}(); err != nil {
		return err
	}
	return r.buildManifests(ctx)
}

// BuildAndPush builds and pushes every image, sequentially.
func (r *Reactor) BuildAndPush(ctx context.Context) error {
	guard, err := dirguard.Chdir(r.productDirectory)
	if err != nil {
		return err
	}
	defer guard.Release()

	for _, pair := range r.imageSpecs() {
		slog.InfoContext(ctx, "reactor.BuildAndPush", "component", pair.Spec.ComponentName)
		if err := r.builder.Build(ctx, pair.Spec, pair.Image, r.platform); err != nil {
			return fmt.Errorf("reactor: build %s: %w", pair.Spec.ComponentName, err)
		}
		if err := r.builder.Push(ctx, pair.Spec, pair.Image, r.config.DockerRegistry); err != nil {
			return fmt.Errorf("reactor: push %s: %w", pair.Spec.ComponentName, err)
		}
	}
	return nil
}

// buildManifests removes any previous output tree and re-renders every
// manifest group against the build context. It takes its own working-
// directory guard on the relative product path, so Build, Deploy, and
// Rollout each call it outside any product-directory guard of their own.
func (r *Reactor) buildManifests(ctx context.Context) error {
	guard, err := dirguard.Chdir(r.productDirectory)
	if err != nil {
		return err
	}
	defer guard.Release()

	if _, err := os.Stat(reactorOutputDir); err == nil {
		if err := os.RemoveAll(reactorOutputDir); err != nil {
			return fmt.Errorf("reactor: clear manifest output %s: %w", reactorOutputDir, rushderrors.ErrIO)
		}
	}
	slog.InfoContext(ctx, "reactor.buildManifests", "groups", len(r.manifestGroups))
	return r.manifestPipeline.RenderAll(r.manifestGroups, r.config)
}

// Apply applies every rendered manifest recursively.
func (r *Reactor) Apply(ctx context.Context) error {
	guard, err := dirguard.Chdir(r.productDirectory)
	if err != nil {
		return err
	}
	defer guard.Release()
	return r.cluster.Apply(ctx, reactorOutputDir)
}

// Unapply deletes every rendered manifest file in reverse sort order,
// tolerating per-file failures.
func (r *Reactor) Unapply(ctx context.Context) error {
	guard, err := dirguard.Chdir(r.productDirectory)
	if err != nil {
		return err
	}
	defer guard.Release()

	files := manifest.OutputFiles(r.manifestGroups)
	r.cluster.Unapply(ctx, files)
	return nil
}

// InstallManifests creates a namespace then applies every raw manifest
// for each ClusterInstall component. Namespace-create failures are
// tolerated; manifest-apply failures are fatal.
func (r *Reactor) InstallManifests(ctx context.Context) error {
	guard, err := dirguard.Chdir(r.productDirectory)
	if err != nil {
		return err
	}
	defer guard.Release()

	for _, g := range r.installGroups {
		if err := r.cluster.CreateNamespace(ctx, g.OrderKey); err != nil {
			return err
		}
		for _, a := range g.Artifacts {
			if err := r.cluster.ApplyFile(ctx, a.SourcePath); err != nil {
				return fmt.Errorf("reactor: install %s: %w", a.ComponentName, err)
			}
		}
	}
	return nil
}

// UninstallManifests deletes every raw manifest then the namespace for
// each ClusterInstall component, in reverse registration order,
// best-effort throughout.
func (r *Reactor) UninstallManifests(ctx context.Context) error {
	guard, err := dirguard.Chdir(r.productDirectory)
	if err != nil {
		return err
	}
	defer guard.Release()

	for i := len(r.installGroups) - 1; i >= 0; i-- {
		g := r.installGroups[i]
		for _, a := range g.Artifacts {
			r.cluster.DeleteFile(ctx, a.SourcePath)
		}
		r.cluster.DeleteNamespace(ctx, g.OrderKey)
	}
	return nil
}

// Deploy builds and pushes every image, renders manifests, then applies.
func (r *Reactor) Deploy(ctx context.Context) error {
	if err := r.BuildAndPush(ctx); err != nil {
		return err
	}
	if err := r.buildManifests(ctx); err != nil {
		return err
	}
	return r.Apply(ctx)
}

// Rollout builds and pushes every image, renders manifests, then
// promotes them to the infrastructure repository.
func (r *Reactor) Rollout(ctx context.Context) error {
	if err := r.BuildAndPush(ctx); err != nil {
		return err
	}
	if err := r.buildManifests(ctx); err != nil {
		return err
	}

	guard, err := dirguard.Chdir(r.productDirectory)
	if err != nil {
		return err
	}
	defer guard.Release()

	gw := infrarepo.New(r.config.InfrastructureRepository, ".infra", r.config.ProductName, r.config.Environment)
	if err := gw.Checkout(ctx); err != nil {
		return err
	}
	if err := gw.CopyManifests(ctx, reactorOutputDir); err != nil {
		return err
	}
	message := fmt.Sprintf("Deploying %s for %s", r.config.Environment, r.config.ProductName)
	return gw.CommitAndPush(ctx, message)
}

// SelectKubernetesContext switches the cluster driver's active context.
func (r *Reactor) SelectKubernetesContext(ctx context.Context, name string) error {
	return r.cluster.SetContext(ctx, name)
}

// Services returns the frozen service table shared by every spec.
func (r *Reactor) Services() *stackspec.ServiceTable { return r.services }

// ManifestFiles returns every rendered manifest's output path, for
// "rushd describe k8s".
func (r *Reactor) ManifestFiles() []string { return manifest.OutputFiles(r.manifestGroups) }

// Images returns every resolved image, sorted by image name for stable
// describe output.
func (r *Reactor) Images() []*builder.TaggedImage {
	out := make([]*builder.TaggedImage, 0, len(r.images))
	for _, img := range r.images {
		out = append(out, img)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ImageName < out[j].ImageName })
	return out
}

// runCommand is a small helper the launch loop uses for network
// lifecycle management: it runs one command synchronously through a
// fresh procrunner.Runner in streaming mode.
func runCommand(ctx context.Context, label, bin string, args ...string) error {
	return procrunner.New().Run(ctx, label, ".", bin, args...)
}
