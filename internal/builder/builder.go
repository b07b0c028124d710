package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wonop-io/rushd/internal/dirguard"
	"github.com/wonop-io/rushd/internal/imagetag"
	"github.com/wonop-io/rushd/internal/procrunner"
	"github.com/wonop-io/rushd/internal/render"
	"github.com/wonop-io/rushd/internal/rushderrors"
	"github.com/wonop-io/rushd/internal/stackspec"
	"github.com/wonop-io/rushd/internal/toolchain"
)

// stopJoinTimeout bounds how long Run's graceful SIGTERM shutdown waits
// before procrunner escalates to SIGKILL.
const stopJoinTimeout = 5 * time.Second

// buildWindowSize is the rolling line window the build script and docker
// build runs print within, matching the original reactor's "10 lines"
// console footprint.
const buildWindowSize = 10

// Builder renders a component's artifacts and build script, then drives
// the container engine to build and (optionally) push its image.
type Builder struct {
	tc     *toolchain.Context
	render *render.Engine
	proc   *procrunner.Runner
}

// New returns a Builder bound to the given resolved toolchain.
func New(tc *toolchain.Context) *Builder {
	return &Builder{tc: tc, render: render.New(), proc: procrunner.New()}
}

// scriptVars is the value exposed to build-script and artifact templates.
type scriptVars struct {
	ComponentName string
	ProductName   string
	SourceDir     string
	ContextDir    string
	TargetPlatform
}

// TargetPlatform is embedded into scriptVars so templates can reference
// .OS, .Arch, and .CrossCompileTriple directly.
type TargetPlatform = Platform

// sourceDirOf returns the component's build source directory, or "" for
// kinds that have none (Ingress, PrebuiltImage, ClusterOnly,
// ClusterInstall, ApiDoc never compile from a local source tree).
func sourceDirOf(k stackspec.BuildKind) string {
	switch v := k.(type) {
	case stackspec.WasmBundle:
		return v.SourceDir
	case stackspec.NativeBinary:
		return v.SourceDir
	case stackspec.Script:
		return v.SourceDir
	default:
		return ""
	}
}

// Build renders a component's artifacts, runs its build script, and
// invokes the container engine build. Kinds with no image of their own
// (PrebuiltImage, ClusterOnly, ClusterInstall, ApiDoc) are no-ops.
//
// Execution order follows spec.md §4.5: a cross-compile context guard
// is applied for the whole of steps 2-4 and restored on any exit path.
func (b *Builder) Build(ctx context.Context, spec *stackspec.ComponentSpec, img *TaggedImage, platform Platform) error {
	switch spec.BuildKind.(type) {
	case stackspec.PrebuiltImage, stackspec.ClusterOnly, stackspec.ClusterInstall, stackspec.ApiDoc:
		return nil
	}

	if p := platform.String(); p != "" {
		guard, err := dirguard.SetEnv(map[string]string{
			"CROSS_CONTAINER_OPTS":    "--platform " + p,
			"DOCKER_DEFAULT_PLATFORM": p,
		})
		if err != nil {
			return err
		}
		defer guard.Release()
	}

	toolchainEnv, err := b.tc.Env()
	if err != nil {
		return fmt.Errorf("builder: resolve toolchain env: %w", err)
	}
	if len(toolchainEnv) > 0 {
		guard, err := dirguard.SetEnv(toolchainEnv)
		if err != nil {
			return err
		}
		defer guard.Release()
	}

	sourceDir := sourceDirOf(spec.BuildKind)
	vars := scriptVars{
		ComponentName:  spec.ComponentName,
		ProductName:    spec.ProductName,
		SourceDir:      sourceDir,
		ContextDir:     img.ContextDir,
		TargetPlatform: platform,
	}

	if sourceDir != "" {
		if err := b.renderArtifacts(spec, vars); err != nil {
			return err
		}
		if err := b.runBuildScript(ctx, spec, sourceDir, vars); err != nil {
			return err
		}
	}

	return b.dockerBuild(ctx, spec, img, platform)
}

// renderArtifacts renders every configured artifact template into its
// output path. The working directory is the spec's artefact output
// directory, created if missing, per spec.md §4.5. Keys are template
// source paths; values are destination paths relative to that directory.
func (b *Builder) renderArtifacts(spec *stackspec.ComponentSpec, vars scriptVars) error {
	if len(spec.Artifacts) == 0 {
		return nil
	}

	if err := os.MkdirAll(spec.ArtifactOutputDir, 0o755); err != nil {
		return fmt.Errorf("builder: create artefact output dir %s: %w", spec.ArtifactOutputDir, rushderrors.ErrIO)
	}
	guard, err := dirguard.Chdir(spec.ArtifactOutputDir)
	if err != nil {
		return fmt.Errorf("builder: enter artefact output dir %s: %w", spec.ArtifactOutputDir, err)
	}
	defer guard.Release()

	for templatePath, destPath := range spec.Artifacts {
		source, err := os.ReadFile(templatePath)
		if err != nil {
			return fmt.Errorf("builder: read artifact template %s: %w", templatePath, rushderrors.ErrIO)
		}
		rendered, err := b.render.Render(string(source), vars)
		if err != nil {
			return fmt.Errorf("builder: render artifact %s: %w", templatePath, err)
		}
		if dir := filepath.Dir(destPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("builder: create artifact dir %s: %w", dir, rushderrors.ErrIO)
			}
		}
		if err := os.WriteFile(destPath, []byte(rendered), 0o644); err != nil {
			return fmt.Errorf("builder: write artifact %s: %w", destPath, rushderrors.ErrIO)
		}
	}
	return nil
}

// runBuildScript runs the component's build script: an explicit
// spec.Build override if present, otherwise the build kind's default
// template. Run through the process runner in windowed mode with a
// 10-line window, per spec.md §4.5.
func (b *Builder) runBuildScript(ctx context.Context, spec *stackspec.ComponentSpec, sourceDir string, vars scriptVars) error {
	script := spec.Build
	if script == "" {
		logical := stackspec.BuildScriptLogicalName(spec.BuildKind)
		if logical == "" {
			return nil
		}
		rendered, err := b.render.BuildScript(logical, vars)
		if err != nil {
			return err
		}
		script = rendered
	}
	if script == "" {
		return nil
	}

	label := procrunner.Colorize(spec.ComponentName+":build", spec.Color)
	return b.proc.RunWindowed(ctx, buildWindowSize, label, sourceDir, "sh", "-c", script)
}

// dockerBuild invokes the container engine's build subcommand with the
// container file's directory as working directory, per spec.md §4.5.
func (b *Builder) dockerBuild(ctx context.Context, spec *stackspec.ComponentSpec, img *TaggedImage, platform Platform) error {
	if err := b.tc.RequireDocker(); err != nil {
		return err
	}

	containerFile, hasFile := stackspec.ContainerFileOf(spec.BuildKind)

	workDir := "."
	file := containerFile
	if hasFile {
		workDir = filepath.Dir(containerFile)
		file = filepath.Base(containerFile)
	}

	args := []string{"build", "-t", img.TaggedName()}
	if file != "" {
		args = append(args, "-f", file)
	}
	args = append(args, img.ContextDir)

	label := procrunner.Colorize(spec.ComponentName+":build-image", spec.Color)
	return b.proc.RunWindowed(ctx, buildWindowSize, label, workDir, b.tc.Docker(), args...)
}

// Push tags img for registry and pushes it. Skipped when the component
// has no cluster-manifest directory, or its kind is ClusterOnly or
// ClusterInstall (neither produces a pushable local image), per
// spec.md §4.5.
func (b *Builder) Push(ctx context.Context, spec *stackspec.ComponentSpec, img *TaggedImage, registry string) error {
	switch spec.BuildKind.(type) {
	case stackspec.ClusterOnly, stackspec.ClusterInstall:
		return nil
	}
	if spec.ClusterManifestDir == "" {
		return nil
	}

	qualified, err := imagetag.QualifyForRegistry(registry, img.TaggedName())
	if err != nil {
		return err
	}

	if err := b.proc.Run(ctx, spec.ComponentName+":tag", ".", b.tc.Docker(), "tag", img.TaggedName(), qualified); err != nil {
		return err
	}
	if err := b.proc.Run(ctx, spec.ComponentName+":push", ".", b.tc.Docker(), "push", qualified); err != nil {
		return err
	}
	img.Registry = registry
	return nil
}

// Run starts img as a local container for the dev loop, publishing its
// port mapping and mounting its configured volumes. It runs in the
// foreground and blocks until the container exits or ctx is cancelled, in
// which case it sends SIGTERM and gives the container up to five seconds
// to shut down before the runner escalates to SIGKILL.
func (b *Builder) Run(ctx context.Context, spec *stackspec.ComponentSpec, img *TaggedImage, network string) error {
	args := []string{"run", "--name", img.ImageName, "--network", network}

	if img.Port != nil && img.TargetPort != nil {
		args = append(args, "-p", fmt.Sprintf("%d:%d", *img.Port, *img.TargetPort))
	}
	for hostPath, containerPath := range spec.Volumes {
		args = append(args, "-v", hostPath+":"+containerPath)
	}
	for k, v := range spec.Env {
		args = append(args, "-e", k+"="+v)
	}
	args = append(args, spec.ExtraRunArgs...)

	if prebuilt, ok := spec.BuildKind.(stackspec.PrebuiltImage); ok {
		if prebuilt.Entrypoint != "" {
			args = append(args, "--entrypoint", prebuilt.Entrypoint)
		}
		args = append(args, img.TaggedName())
		if prebuilt.Command != "" {
			args = append(args, "sh", "-c", prebuilt.Command)
		}
	} else {
		args = append(args, img.TaggedName())
	}

	return b.proc.RunSupervised(ctx, stopJoinTimeout, spec.ComponentName+":run", ".", b.tc.Docker(), args...)
}

// Stop gracefully stops then removes a component's running container:
// "docker stop" sends SIGTERM and gives the daemon up to five seconds
// before it escalates to SIGKILL, and the following "rm -f" clears the
// name so a subsequent Run doesn't collide with it. Both steps tolerate
// "no such container" failures since Stop is idempotent by design.
func (b *Builder) Stop(ctx context.Context, img *TaggedImage) error {
	_ = b.proc.Run(ctx, img.ImageName+":stop", ".", b.tc.Docker(), "stop", "-t", "5", img.ImageName)
	_ = b.proc.Run(ctx, img.ImageName+":rm", ".", b.tc.Docker(), "rm", "-f", img.ImageName)
	return nil
}
