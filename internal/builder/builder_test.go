package builder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wonop-io/rushd/internal/stackspec"
	"github.com/wonop-io/rushd/internal/toolchain"
)

// fakeDocker returns a toolchain.Context whose "docker" entry is a shell
// script recording its argv to a file, standing in for the real engine.
func fakeDocker(t *testing.T, logPath string) *toolchain.Context {
	t.Helper()
	script := filepath.Join(t.TempDir(), "docker")
	body := "#!/bin/sh\necho \"$@\" >> " + logPath + "\nexit 0\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write fake docker: %v", err)
	}
	return toolchain.FromPaths(map[string]string{"docker": script})
}

func TestBuildRendersArtifactsAndInvokesDocker(t *testing.T) {
	sourceDir := t.TempDir()
	artifactDir := t.TempDir()
	templatePath := filepath.Join(artifactDir, "config.tmpl")
	if err := os.WriteFile(templatePath, []byte("name={{ .ComponentName }}\n"), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	containerFile := filepath.Join(sourceDir, "Dockerfile")
	if err := os.WriteFile(containerFile, []byte("FROM scratch\n"), 0o644); err != nil {
		t.Fatalf("write dockerfile: %v", err)
	}

	log := filepath.Join(t.TempDir(), "docker.log")
	b := New(fakeDocker(t, log))

	spec := &stackspec.ComponentSpec{
		ComponentName: "api",
		ProductName:   "acme",
		BuildKind: stackspec.Script{
			SourceDir:     sourceDir,
			ContainerFile: containerFile,
			ContextDir:    sourceDir,
		},
		Artifacts:         map[string]string{"config.tmpl": "config.out"},
		ArtifactOutputDir: artifactDir,
		Build:             "true",
	}
	img := &TaggedImage{ImageName: "acme-api", Tag: "abc12345", ContextDir: sourceDir, Spec: spec}

	if err := b.Build(context.Background(), spec, img, Platform{OS: "linux", Arch: "amd64"}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	rendered, err := os.ReadFile(filepath.Join(artifactDir, "config.out"))
	if err != nil {
		t.Fatalf("read rendered artifact: %v", err)
	}
	if string(rendered) != "name=api\n" {
		t.Errorf("rendered artifact = %q, want %q", rendered, "name=api\n")
	}

	logged, err := os.ReadFile(log)
	if err != nil {
		t.Fatalf("read docker invocation log: %v", err)
	}
	if !strings.Contains(string(logged), "build -t acme-api:abc12345") {
		t.Errorf("docker log = %q, want it to contain the build invocation", logged)
	}
}

func TestBuildSkipsImagelessKinds(t *testing.T) {
	b := New(fakeDocker(t, filepath.Join(t.TempDir(), "docker.log")))
	spec := &stackspec.ComponentSpec{ComponentName: "ingress-only", BuildKind: stackspec.ClusterOnly{}}
	img := &TaggedImage{ImageName: "acme-ingress-only"}

	if err := b.Build(context.Background(), spec, img, Platform{}); err != nil {
		t.Fatalf("Build on ClusterOnly kind should be a no-op, got: %v", err)
	}
}

func TestPushSkipsComponentsWithNoClusterManifestDir(t *testing.T) {
	log := filepath.Join(t.TempDir(), "docker.log")
	b := New(fakeDocker(t, log))
	spec := &stackspec.ComponentSpec{ComponentName: "cache", BuildKind: stackspec.PrebuiltImage{ImageWithTag: "redis:7.2"}}
	img := &TaggedImage{ImageName: "redis", Tag: "7.2"}

	if err := b.Push(context.Background(), spec, img, "registry.example.com"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if _, err := os.Stat(log); err == nil {
		t.Errorf("expected no docker invocation when spec has no cluster-manifest directory")
	}
}

func TestPushSkipsClusterOnlyKind(t *testing.T) {
	log := filepath.Join(t.TempDir(), "docker.log")
	b := New(fakeDocker(t, log))
	spec := &stackspec.ComponentSpec{ComponentName: "ingress-only", BuildKind: stackspec.ClusterOnly{}, ClusterManifestDir: "k8s"}
	img := &TaggedImage{ImageName: "acme-ingress-only"}

	if err := b.Push(context.Background(), spec, img, "registry.example.com"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if _, err := os.Stat(log); err == nil {
		t.Errorf("expected no docker invocation for ClusterOnly kind")
	}
}

func TestPushQualifiesAndPushesImage(t *testing.T) {
	log := filepath.Join(t.TempDir(), "docker.log")
	b := New(fakeDocker(t, log))
	spec := &stackspec.ComponentSpec{ComponentName: "api", BuildKind: stackspec.NativeBinary{}, ClusterManifestDir: "k8s"}
	img := &TaggedImage{ImageName: "acme-api", Tag: "abc12345"}

	if err := b.Push(context.Background(), spec, img, "registry.example.com"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	logged, err := os.ReadFile(log)
	if err != nil {
		t.Fatalf("read docker invocation log: %v", err)
	}
	if !strings.Contains(string(logged), "tag acme-api:abc12345") {
		t.Errorf("docker log = %q, want a tag invocation", logged)
	}
	if !strings.Contains(string(logged), "push registry.example.com/acme-api:abc12345") {
		t.Errorf("docker log = %q, want a push invocation", logged)
	}
}
